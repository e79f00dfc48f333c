package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/wfunc/arenaledger/api"
	"github.com/wfunc/arenaledger/broadcast"
	"github.com/wfunc/arenaledger/config"
	"github.com/wfunc/arenaledger/ledger"
	"github.com/wfunc/arenaledger/logger"
	"github.com/wfunc/arenaledger/models"
	"github.com/wfunc/arenaledger/monitor"
	"github.com/wfunc/arenaledger/persistence"
	"github.com/wfunc/arenaledger/platform"
	"github.com/wfunc/arenaledger/progression"
	"github.com/wfunc/arenaledger/reward"
	"github.com/wfunc/arenaledger/rpc"
	"github.com/wfunc/arenaledger/server"
	"github.com/wfunc/arenaledger/services"
	"github.com/wfunc/arenaledger/session"
)

func main() {
	// .env is optional; real environment variables win
	_ = godotenv.Load()

	// Load configuration
	cfg, err := config.LoadConfig(".")
	if err != nil {
		logger.Log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize logger
	if err := logger.Init(cfg.Log.Level, cfg.Log.Development); err != nil {
		logger.Log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()
	log := logger.Log

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize Database
	db, err := openDatabase(cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	log.Infow("database connected", "driver", cfg.Database.Driver)

	led, err := openLedger(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to initialize ledger: %v", err)
	}
	if c, ok := led.(io.Closer); ok {
		defer c.Close()
	}

	operator, err := models.ParseAddress(cfg.Platform.Operator)
	if err != nil {
		log.Fatalf("Invalid platform.operator: %v", err)
	}
	var treasury models.Address
	if cfg.Platform.Treasury != "" {
		if treasury, err = models.ParseAddress(cfg.Platform.Treasury); err != nil {
			log.Fatalf("Invalid platform.treasury: %v", err)
		}
	}

	rewards, err := reward.NewCalculator(cfg.Rewards)
	if err != nil {
		log.Fatalf("Invalid reward policy: %v", err)
	}
	engine, err := progression.NewEngine(cfg.Platform.XPPerLevel)
	if err != nil {
		log.Fatalf("Invalid progression settings: %v", err)
	}

	mon := monitor.NewMonitor(cfg.Metrics.Namespace)
	sessions := session.NewManager()
	feed := broadcast.NewEventBroadcaster(sessions, mon, log.Named("feed"))

	p, err := platform.New(platform.Options{
		Operator:        operator,
		Treasury:        treasury,
		Ledger:          led,
		Rewards:         rewards,
		Progression:     engine,
		Committer:       db,
		Observer:        feed,
		Metrics:         mon,
		Logger:          log.Named("platform"),
		MinimumEntryFee: models.Amount(cfg.Platform.MinimumEntryFee),
		MaximumDuration: cfg.Platform.MaximumDuration,
	})
	if err != nil {
		log.Fatalf("Failed to create platform: %v", err)
	}

	snap, err := db.LoadSnapshot(ctx)
	if err != nil {
		log.Fatalf("Failed to load persisted state: %v", err)
	}
	p.Restore(snap)
	if err := p.VerifyOperator(ctx, operator); err != nil {
		log.Fatalw("platform.operator does not match persisted state; set it to the persisted operator",
			"error", err)
	}

	if err := bootstrapValidators(ctx, p, operator, cfg.Platform.Validators); err != nil {
		log.Fatalf("Failed to register validators: %v", err)
	}

	auth, err := api.NewAuthenticator(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	if err != nil {
		log.Fatalf("Failed to initialize auth: %v", err)
	}
	players := services.NewPlayerService(p, db)

	rpcServer, err := rpc.NewServer(cfg.Server.RPCAddress, rpc.NewArenaService(p, players), log.Named("rpc"))
	if err != nil {
		log.Fatalf("Failed to create RPC server: %v", err)
	}

	// Initialize Game Server
	gameServer := server.NewGameServer(server.Options{
		HTTPAddress:     cfg.Server.HTTPAddress,
		GRPCAddress:     cfg.Server.GRPCAddress,
		Platform:        p,
		API:             api.New(p, players, db, auth, log.Named("api")),
		RPC:             rpcServer,
		Monitor:         mon,
		Sessions:        sessions,
		Logger:          log.Named("server"),
		RefreshInterval: cfg.Metrics.RefreshInterval,
	})

	errCh := make(chan error, 1)
	go func() { errCh <- gameServer.Start() }()

	select {
	case err := <-errCh:
		if err != nil {
			log.Fatalf("Failed to start server: %v", err)
		}
	case <-ctx.Done():
		log.Info("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := gameServer.Shutdown(shutdownCtx); err != nil {
		log.Errorw("shutdown", "error", err)
	}
}

func openDatabase(cfg config.DatabaseConfig) (*persistence.GormStore, error) {
	if cfg.Driver == "sqlite" {
		return persistence.NewGormSQLite(cfg.SQLite.Path)
	}
	pg := cfg.Postgres
	return persistence.NewGormPostgreSQL(pg.Host, pg.Port, pg.User, pg.Password, pg.DBName, pg.SSLMode)
}

func openLedger(ctx context.Context, cfg *config.Config) (ledger.Ledger, error) {
	if cfg.Ledger.Backend == "redis" {
		return ledger.NewRedis(ctx, ledger.RedisOptions{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Prefix:   cfg.Redis.Prefix,
		})
	}
	logger.Log.Warn("using the in-memory ledger; balances are lost on restart")
	return ledger.NewMemory(), nil
}

// bootstrapValidators authorizes configured validators that are not yet known.
func bootstrapValidators(ctx context.Context, p *platform.Platform, operator models.Address, raw []string) error {
	for _, s := range raw {
		addr, err := models.ParseAddress(s)
		if err != nil {
			return err
		}
		if p.IsValidator(ctx, addr) {
			continue
		}
		if err := p.SetValidator(ctx, operator, addr, true); err != nil {
			return err
		}
	}
	return nil
}
