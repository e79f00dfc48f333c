package server

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/wfunc/arenaledger/api"
	"github.com/wfunc/arenaledger/models"
	"github.com/wfunc/arenaledger/monitor"
	"github.com/wfunc/arenaledger/network"
	"github.com/wfunc/arenaledger/platform"
	arenarpc "github.com/wfunc/arenaledger/rpc"
	"github.com/wfunc/arenaledger/session"
	"github.com/wfunc/arenaledger/timer"
)

// HealthService is the name reported by the gRPC health endpoint.
const HealthService = "arenaledger"

const (
	DefaultHeartbeat       = 30 * time.Second
	DefaultRefreshInterval = 15 * time.Second
)

type Options struct {
	HTTPAddress     string
	GRPCAddress     string
	Platform        *platform.Platform
	API             *api.API
	RPC             *arenarpc.Server
	Monitor         *monitor.Monitor
	Sessions        *session.Manager
	Logger          *zap.SugaredLogger
	Heartbeat       time.Duration
	RefreshInterval time.Duration
}

type GameServer struct {
	httpAddr       string
	grpcAddr       string
	upgrader       websocket.Upgrader
	router         chi.Router
	platform       *platform.Platform
	sessionManager *session.Manager
	monitor        *monitor.Monitor
	rpcServer      *arenarpc.Server
	grpcServer     *grpc.Server
	health         *health.Server
	httpServer     *http.Server
	log            *zap.SugaredLogger
	heartbeat      time.Duration
	refresh        time.Duration

	mu           sync.Mutex // guards timers
	timers       *timer.TimerManager
	shutdownChan chan struct{}
	shutdownOnce sync.Once
}

func NewGameServer(opts Options) *GameServer {
	s := &GameServer{
		httpAddr:       opts.HTTPAddress,
		grpcAddr:       opts.GRPCAddress,
		platform:       opts.Platform,
		sessionManager: opts.Sessions,
		monitor:        opts.Monitor,
		rpcServer:      opts.RPC,
		log:            opts.Logger,
		heartbeat:      opts.Heartbeat,
		refresh:        opts.RefreshInterval,
		shutdownChan:   make(chan struct{}),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // 允许所有跨域请求
			},
		},
	}
	if s.sessionManager == nil {
		s.sessionManager = session.NewManager()
	}
	if s.log == nil {
		s.log = zap.NewNop().Sugar()
	}
	if s.heartbeat <= 0 {
		s.heartbeat = DefaultHeartbeat
	}
	if s.refresh <= 0 {
		s.refresh = DefaultRefreshInterval
	}

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Get("/healthz", s.handleHealth)
	r.Get("/ws", s.handleWebSocket)
	if s.monitor != nil {
		r.Handle("/metrics", s.monitor.Handler())
	}
	if opts.API != nil {
		r.Route("/api/v1", opts.API.Routes)
	}
	s.router = r
	s.httpServer = &http.Server{
		Addr:              s.httpAddr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.grpcServer = grpc.NewServer()
	s.health = health.NewServer()
	healthpb.RegisterHealthServer(s.grpcServer, s.health)
	s.health.SetServingStatus(HealthService, healthpb.HealthCheckResponse_SERVING)

	return s
}

func (s *GameServer) Handler() http.Handler {
	return s.router
}

// Start runs every listener and blocks on the HTTP server.
func (s *GameServer) Start() error {
	if s.rpcServer != nil {
		go s.rpcServer.Start()
	}
	if s.grpcAddr != "" {
		lis, err := net.Listen("tcp", s.grpcAddr)
		if err != nil {
			return err
		}
		go func() {
			s.log.Infow("grpc health listening", "addr", s.grpcAddr)
			if err := s.grpcServer.Serve(lis); err != nil {
				s.log.Errorw("grpc server stopped", "error", err)
			}
		}()
	}

	s.mu.Lock()
	select {
	case <-s.shutdownChan:
		s.mu.Unlock()
		return nil
	default:
	}
	s.timers = timer.NewTimerManager(timer.DefaultResolution)
	s.timers.AddTimer("refresh_gauges", 0, s.refresh, s.RefreshGauges)
	s.mu.Unlock()

	s.log.Infow("http server listening", "addr", s.httpAddr)
	err := s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// RefreshGauges copies registry sizes into the monitor.
func (s *GameServer) RefreshGauges() {
	if s.monitor == nil || s.platform == nil {
		return
	}
	s.monitor.SetCounts(s.platform.Counts(context.Background()))
}

func (s *GameServer) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		close(s.shutdownChan)
		s.health.Shutdown()
		err = s.httpServer.Shutdown(ctx)
		s.grpcServer.GracefulStop()
		if s.rpcServer != nil {
			s.rpcServer.Stop()
		}
		s.mu.Lock()
		if s.timers != nil {
			s.timers.Stop()
		}
		s.mu.Unlock()
		s.sessionManager.CloseAll()
	})
	return err
}

func (s *GameServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"status": "ok",
		"paused": s.platform != nil && s.platform.Settings(r.Context()).Paused,
	})
}

func (s *GameServer) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	var player models.Address
	if raw := r.URL.Query().Get("player"); raw != "" {
		p, err := models.ParseAddress(raw)
		if err != nil {
			http.Error(w, "invalid player", http.StatusBadRequest)
			return
		}
		player = p
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Infow("websocket upgrade failed", "error", err)
		return
	}
	s.handleConnection(conn, player)
}

func (s *GameServer) handleConnection(conn *websocket.Conn, player models.Address) {
	wsConn := network.NewWSConnection(conn)
	wsConn.SetHeartbeat(s.heartbeat)
	sess := session.NewSession(uuid.New().String(), wsConn)
	sess.SetPlayer(player)
	s.sessionManager.Add(sess)
	if s.monitor != nil {
		s.monitor.IncSubscribers()
	}

	s.log.Infow("feed subscriber connected", "remote", wsConn.RemoteAddr().String(), "session", sess.GetID())

	defer func() {
		s.log.Infow("feed subscriber disconnected", "remote", wsConn.RemoteAddr().String(), "session", sess.GetID())
		s.sessionManager.Remove(sess.GetID())
		if s.monitor != nil {
			s.monitor.DecSubscribers()
		}
		sess.Close()
	}()

	go func() {
		if err := sess.Run(); err != nil && !errors.Is(err, session.ErrSessionClosed) {
			s.log.Debugw("feed writer stopped", "session", sess.GetID(), "error", err)
			sess.Close()
		}
	}()
	s.reply(sess, network.MsgTypeSubscribed, network.SubscribedReply{SessionID: sess.GetID(), Player: playerString(player)})

	for {
		select {
		case <-s.shutdownChan:
			return
		default:
			packet, err := wsConn.ReadPacket()
			if err != nil {
				return
			}
			s.handlePacket(sess, packet)
		}
	}
}

func (s *GameServer) handlePacket(sess *session.Session, packet *network.Packet) {
	switch packet.MsgID {
	case network.MsgTypeHeartbeat:
		sess.Enqueue(network.MsgTypeHeartbeat, nil)
	case network.MsgTypeSubscribe:
		s.handleSubscribe(sess, packet)
	case network.MsgTypeUnsubscribe:
		sess.SetPlayer(models.ZeroAddress)
		s.reply(sess, network.MsgTypeSubscribed, network.SubscribedReply{SessionID: sess.GetID()})
	default:
		s.log.Debugw("unknown message type", "session", sess.GetID(), "msg_id", packet.MsgID)
		s.reply(sess, network.MsgTypeError, network.ErrorReply{Error: "unknown message type"})
	}
}

func (s *GameServer) handleSubscribe(sess *session.Session, packet *network.Packet) {
	var req network.SubscribeRequest
	if err := json.Unmarshal(packet.Data, &req); err != nil {
		s.reply(sess, network.MsgTypeError, network.ErrorReply{Error: "invalid subscribe request"})
		return
	}
	var player models.Address
	if req.Player != "" {
		p, err := models.ParseAddress(req.Player)
		if err != nil {
			s.reply(sess, network.MsgTypeError, network.ErrorReply{Error: err.Error()})
			return
		}
		player = p
	}
	sess.SetPlayer(player)
	s.reply(sess, network.MsgTypeSubscribed, network.SubscribedReply{SessionID: sess.GetID(), Player: playerString(player)})
}

func (s *GameServer) reply(sess *session.Session, msgID uint16, body any) {
	data, err := json.Marshal(body)
	if err != nil {
		s.log.Errorw("encode reply", "msg_id", msgID, "error", err)
		return
	}
	sess.Enqueue(msgID, data)
}

func playerString(p models.Address) string {
	if p.IsZero() {
		return ""
	}
	return p.String()
}
