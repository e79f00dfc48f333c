// Command client is a small operator and player tool for arenaledger:
// key generation, attestation signing, token issuing, the live event feed
// and RPC stats.
package main

import (
	"encoding/hex"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/url"
	"os"
	"os/signal"
	"time"

	"github.com/wfunc/arenaledger/api"
	"github.com/wfunc/arenaledger/attest"
	"github.com/wfunc/arenaledger/models"
	"github.com/wfunc/arenaledger/network"
	"github.com/wfunc/arenaledger/rpc"
)

func usage() {
	fmt.Fprintf(os.Stderr, `usage: client <command> [flags]

commands:
  keygen                          generate a validator key
  sign   -key K -session N -score N -nonce HEX
  token  -secret S -address ADDR [-ttl 24h]
  watch  [-host localhost:8080] [-player ADDR]
  stats  [-rpc localhost:8081] [-player ADDR]
`)
	os.Exit(2)
}

func main() {
	if len(os.Args) < 2 {
		usage()
	}
	var err error
	switch os.Args[1] {
	case "keygen":
		err = keygen()
	case "sign":
		err = sign(os.Args[2:])
	case "token":
		err = token(os.Args[2:])
	case "watch":
		err = watch(os.Args[2:])
	case "stats":
		err = stats(os.Args[2:])
	default:
		usage()
	}
	if err != nil {
		log.Fatalf("%s: %v", os.Args[1], err)
	}
}

func keygen() error {
	s, err := attest.GenerateSigner()
	if err != nil {
		return err
	}
	fmt.Printf("address: %s\nprivate: %s\n", s.Address(), s.PrivateKeyHex())
	return nil
}

func sign(args []string) error {
	fs := flag.NewFlagSet("sign", flag.ExitOnError)
	key := fs.String("key", "", "validator private key (hex)")
	sessionID := fs.Uint64("session", 0, "session id")
	score := fs.Uint64("score", 0, "final score")
	nonceHex := fs.String("nonce", "", "32-byte nonce (hex)")
	fs.Parse(args)

	signer, err := attest.NewSignerFromHex(*key)
	if err != nil {
		return err
	}
	nonce, err := models.ParseNonce(*nonceHex)
	if err != nil {
		return err
	}
	fmt.Println(hex.EncodeToString(signer.Sign(*sessionID, *score, nonce)))
	return nil
}

func token(args []string) error {
	fs := flag.NewFlagSet("token", flag.ExitOnError)
	secret := fs.String("secret", os.Getenv("ARENA_AUTH_JWT_SECRET"), "jwt signing secret")
	address := fs.String("address", "", "caller address")
	ttl := fs.Duration("ttl", 24*time.Hour, "token lifetime")
	fs.Parse(args)

	addr, err := models.ParseAddress(*address)
	if err != nil {
		return err
	}
	auth, err := api.NewAuthenticator(*secret, *ttl)
	if err != nil {
		return err
	}
	tok, err := auth.IssueToken(addr)
	if err != nil {
		return err
	}
	fmt.Println(tok)
	return nil
}

func watch(args []string) error {
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	host := fs.String("host", "localhost:8080", "server host")
	player := fs.String("player", "", "only show events for this player")
	fs.Parse(args)

	u := url.URL{Scheme: "ws", Host: *host, Path: "/ws"}
	if *player != "" {
		u.RawQuery = url.Values{"player": {*player}}.Encode()
	}
	log.Printf("Connecting to %s", u.String())

	conn, err := network.Dial(u.String())
	if err != nil {
		return err
	}
	defer conn.Close()

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)
	done := make(chan error, 1)

	go func() {
		for {
			pkt, err := conn.ReadPacket()
			if err != nil {
				done <- err
				return
			}
			switch pkt.MsgID {
			case network.MsgTypeEvent:
				fmt.Println(string(pkt.Data))
			case network.MsgTypeHeartbeat:
			default:
				log.Printf("msg %d: %s", pkt.MsgID, pkt.Data)
			}
		}
	}()

	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case err := <-done:
			return err
		case <-ticker.C:
			if err := conn.Send(network.MsgTypeHeartbeat, nil); err != nil {
				return err
			}
		case <-interrupt:
			log.Println("interrupt")
			return nil
		}
	}
}

func stats(args []string) error {
	fs := flag.NewFlagSet("stats", flag.ExitOnError)
	addr := fs.String("rpc", "localhost:8081", "rpc address")
	player := fs.String("player", "", "player address")
	limit := fs.Int("limit", 10, "recent sessions to show")
	fs.Parse(args)

	c, err := rpc.Dial(*addr)
	if err != nil {
		return err
	}
	defer c.Close()

	var out any
	if *player == "" {
		if out, err = c.Counts(); err != nil {
			return err
		}
	} else {
		p, err := models.ParseAddress(*player)
		if err != nil {
			return err
		}
		if out, err = c.PlayerWithStats(p, *limit); err != nil {
			return err
		}
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
