package rpc

import (
	"context"
	"errors"
	"net"
	"net/rpc"
	"time"

	"go.uber.org/zap"

	"github.com/wfunc/arenaledger/models"
	"github.com/wfunc/arenaledger/platform"
	"github.com/wfunc/arenaledger/services"
)

// ServiceName is the name ArenaService is registered under.
const ServiceName = "ArenaService"

const callTimeout = 5 * time.Second

// Server manages the RPC listener.
type Server struct {
	listener net.Listener
	rpc      *rpc.Server
	log      *zap.SugaredLogger
}

// NewServer listens on addr and registers service.
func NewServer(addr string, service *ArenaService, log *zap.SugaredLogger) (*Server, error) {
	rs := rpc.NewServer()
	if err := rs.RegisterName(ServiceName, service); err != nil {
		return nil, err
	}

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	return &Server{listener: listener, rpc: rs, log: log}, nil
}

func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

// Start begins listening for RPC requests.
func (s *Server) Start() {
	s.log.Infow("rpc server listening", "addr", s.listener.Addr().String())
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				s.log.Info("rpc listener closed")
				return
			}
			s.log.Errorw("rpc accept failed", "error", err)
			continue
		}
		go s.rpc.ServeConn(conn)
	}
}

// Stop closes the RPC listener.
func (s *Server) Stop() {
	if s.listener != nil {
		s.log.Info("stopping rpc server")
		s.listener.Close()
	}
}

// Reader is the read side of the platform the service exposes.
type Reader interface {
	GameStats(ctx context.Context, id uint64) (models.GameStatsView, error)
	Tournament(ctx context.Context, id uint64) (*models.Tournament, error)
	Counts(ctx context.Context) platform.Counts
}

// ArenaService exposes read-only queries for internal tooling.
// Methods follow the net/rpc signature: exported arguments, a pointer
// reply and an error result.
type ArenaService struct {
	reader        Reader
	playerService *services.PlayerService
}

func NewArenaService(reader Reader, ps *services.PlayerService) *ArenaService {
	return &ArenaService{reader: reader, playerService: ps}
}

type GetPlayerArgs struct {
	Player string
	Limit  int
}

type GetPlayerReply struct {
	Profile *services.PlayerProfile
}

func (as *ArenaService) GetPlayerWithStats(args *GetPlayerArgs, reply *GetPlayerReply) error {
	player, err := models.ParseAddress(args.Player)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
	defer cancel()

	profile, err := as.playerService.GetPlayerWithStats(ctx, player, args.Limit)
	if err != nil {
		return err
	}
	reply.Profile = profile
	return nil
}

type GetGameArgs struct {
	GameID uint64
}

type GetGameReply struct {
	Stats models.GameStatsView
}

func (as *ArenaService) GetGameStats(args *GetGameArgs, reply *GetGameReply) error {
	stats, err := as.reader.GameStats(context.Background(), args.GameID)
	if err != nil {
		return err
	}
	reply.Stats = stats
	return nil
}

type GetTournamentArgs struct {
	ID uint64
}

type GetTournamentReply struct {
	Tournament *models.Tournament
}

func (as *ArenaService) GetTournament(args *GetTournamentArgs, reply *GetTournamentReply) error {
	t, err := as.reader.Tournament(context.Background(), args.ID)
	if err != nil {
		return err
	}
	reply.Tournament = t
	return nil
}

// CountsArgs needs an exported field for gob; Source names the caller.
type CountsArgs struct {
	Source string
}

type CountsReply struct {
	Counts platform.Counts
}

func (as *ArenaService) GetCounts(_ *CountsArgs, reply *CountsReply) error {
	reply.Counts = as.reader.Counts(context.Background())
	return nil
}

// Client is a thin typed wrapper over an rpc connection.
type Client struct {
	*rpc.Client
}

func Dial(addr string) (*Client, error) {
	c, err := rpc.Dial("tcp", addr)
	if err != nil {
		return nil, err
	}
	return &Client{Client: c}, nil
}

func (c *Client) PlayerWithStats(player models.Address, limit int) (*services.PlayerProfile, error) {
	var reply GetPlayerReply
	err := c.Call(ServiceName+".GetPlayerWithStats", &GetPlayerArgs{Player: player.String(), Limit: limit}, &reply)
	return reply.Profile, err
}

func (c *Client) GameStats(id uint64) (models.GameStatsView, error) {
	var reply GetGameReply
	err := c.Call(ServiceName+".GetGameStats", &GetGameArgs{GameID: id}, &reply)
	return reply.Stats, err
}

func (c *Client) Tournament(id uint64) (*models.Tournament, error) {
	var reply GetTournamentReply
	err := c.Call(ServiceName+".GetTournament", &GetTournamentArgs{ID: id}, &reply)
	return reply.Tournament, err
}

func (c *Client) Counts() (platform.Counts, error) {
	var reply CountsReply
	err := c.Call(ServiceName+".GetCounts", &CountsArgs{Source: "client"}, &reply)
	return reply.Counts, err
}
