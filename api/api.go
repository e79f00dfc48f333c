// Package api is the HTTP JSON surface of the platform.
package api

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/wfunc/arenaledger/models"
	"github.com/wfunc/arenaledger/persistence"
	"github.com/wfunc/arenaledger/platform"
	"github.com/wfunc/arenaledger/services"
)

// OperationLog serves the persisted audit trail.
type OperationLog interface {
	RecentOperations(ctx context.Context, limit int) ([]persistence.OperationRecord, error)
}

type API struct {
	platform   *platform.Platform
	players    *services.PlayerService
	operations OperationLog
	auth       *Authenticator
	log        *zap.SugaredLogger
}

func New(p *platform.Platform, players *services.PlayerService, operations OperationLog, auth *Authenticator, log *zap.SugaredLogger) *API {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &API{platform: p, players: players, operations: operations, auth: auth, log: log}
}

// Routes mounts every endpoint on r.
func (a *API) Routes(r chi.Router) {
	r.Get("/games", a.listGames)
	r.Get("/games/{id}", a.getGame)
	r.Get("/games/{id}/stats", a.getGameStats)
	r.Get("/games/{id}/players/{address}", a.getGamePlayer)
	r.Get("/sessions/{id}", a.getSession)
	r.Get("/tournaments", a.listTournaments)
	r.Get("/tournaments/{id}", a.getTournament)
	r.Get("/tournaments/{id}/participants", a.getParticipants)
	r.Get("/players/{address}", a.getPlayerStats)
	r.Get("/players/{address}/achievements", a.getPlayerAchievements)
	r.Get("/players/{address}/profile", a.getPlayerProfile)
	r.Get("/achievements", a.listAchievements)
	r.Get("/settings", a.getSettings)
	r.Get("/validators/{address}", a.getValidator)
	r.Get("/nonces/{nonce}", a.getNonce)

	r.Group(func(r chi.Router) {
		r.Use(a.auth.RequireCaller)

		r.Post("/sessions", a.startSession)
		r.Post("/sessions/{id}/finish", a.finishSession)
		r.Post("/tournaments/{id}/join", a.joinTournament)

		// operator surface; the platform rejects other callers
		r.Post("/games", a.registerGame)
		r.Put("/games/{id}/active", a.setGameActive)
		r.Post("/achievements", a.createAchievement)
		r.Put("/achievements/{id}/active", a.setAchievementActive)
		r.Post("/tournaments", a.createTournament)
		r.Post("/tournaments/{id}/finish", a.finishTournament)
		r.Put("/validators/{address}", a.setValidator)
		r.Put("/settings/platform-fee", a.setPlatformFee)
		r.Put("/settings/treasury", a.setTreasury)
		r.Post("/pause", a.pause)
		r.Post("/unpause", a.unpause)
		r.Get("/operations", a.listOperations)
	})
}

// Handler builds a standalone router with the request middleware.
func (a *API) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Recoverer)
	r.Use(a.requestLogger)
	a.Routes(r)
	return r
}

func (a *API) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		a.log.Infow("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"request_id", chimiddleware.GetReqID(r.Context()),
		)
	})
}

func uintParam(r *http.Request, name string) (uint64, error) {
	v, err := strconv.ParseUint(chi.URLParam(r, name), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s", name)
	}
	return v, nil
}

func addressParam(r *http.Request) (models.Address, error) {
	return models.ParseAddress(chi.URLParam(r, "address"))
}

func decode(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// caller is set by RequireCaller on every route that uses it.
func caller(r *http.Request) models.Address {
	c, _ := CallerFrom(r.Context())
	return c
}

func (a *API) listGames(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.platform.Games(r.Context()))
}

func (a *API) getGame(w http.ResponseWriter, r *http.Request) {
	id, err := uintParam(r, "id")
	if err != nil {
		badRequest(w, a.log, err.Error(), nil)
		return
	}
	g, err := a.platform.Game(r.Context(), id)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, g)
}

func (a *API) getGameStats(w http.ResponseWriter, r *http.Request) {
	id, err := uintParam(r, "id")
	if err != nil {
		badRequest(w, a.log, err.Error(), nil)
		return
	}
	stats, err := a.platform.GameStats(r.Context(), id)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (a *API) getGamePlayer(w http.ResponseWriter, r *http.Request) {
	id, err := uintParam(r, "id")
	if err != nil {
		badRequest(w, a.log, err.Error(), nil)
		return
	}
	player, err := addressParam(r)
	if err != nil {
		badRequest(w, a.log, "invalid address", err)
		return
	}
	rec, err := a.platform.GamePlayer(r.Context(), id, player)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (a *API) getSession(w http.ResponseWriter, r *http.Request) {
	id, err := uintParam(r, "id")
	if err != nil {
		badRequest(w, a.log, err.Error(), nil)
		return
	}
	s, err := a.platform.Session(r.Context(), id)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

func (a *API) listTournaments(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.platform.Tournaments(r.Context()))
}

func (a *API) getTournament(w http.ResponseWriter, r *http.Request) {
	id, err := uintParam(r, "id")
	if err != nil {
		badRequest(w, a.log, err.Error(), nil)
		return
	}
	t, err := a.platform.Tournament(r.Context(), id)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (a *API) getParticipants(w http.ResponseWriter, r *http.Request) {
	id, err := uintParam(r, "id")
	if err != nil {
		badRequest(w, a.log, err.Error(), nil)
		return
	}
	participants, err := a.platform.TournamentParticipants(r.Context(), id)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	if participants == nil {
		participants = []models.Address{}
	}
	writeJSON(w, http.StatusOK, participants)
}

func (a *API) getPlayerStats(w http.ResponseWriter, r *http.Request) {
	player, err := addressParam(r)
	if err != nil {
		badRequest(w, a.log, "invalid address", err)
		return
	}
	writeJSON(w, http.StatusOK, a.platform.PlayerStats(r.Context(), player))
}

func (a *API) getPlayerAchievements(w http.ResponseWriter, r *http.Request) {
	player, err := addressParam(r)
	if err != nil {
		badRequest(w, a.log, "invalid address", err)
		return
	}
	ids := a.platform.PlayerAchievements(r.Context(), player)
	if ids == nil {
		ids = []uint64{}
	}
	writeJSON(w, http.StatusOK, ids)
}

func (a *API) getPlayerProfile(w http.ResponseWriter, r *http.Request) {
	player, err := addressParam(r)
	if err != nil {
		badRequest(w, a.log, "invalid address", err)
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	profile, err := a.players.GetPlayerWithStats(r.Context(), player, limit)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

func (a *API) listAchievements(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.platform.Achievements(r.Context()))
}

func (a *API) getSettings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.platform.Settings(r.Context()))
}

func (a *API) getValidator(w http.ResponseWriter, r *http.Request) {
	addr, err := addressParam(r)
	if err != nil {
		badRequest(w, a.log, "invalid address", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"authorized": a.platform.IsValidator(r.Context(), addr)})
}

func (a *API) getNonce(w http.ResponseWriter, r *http.Request) {
	n, err := models.ParseNonce(chi.URLParam(r, "nonce"))
	if err != nil {
		badRequest(w, a.log, "invalid nonce", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"consumed": a.platform.NonceConsumed(r.Context(), n)})
}

type startSessionRequest struct {
	GameID uint64 `json:"game_id"`
}

func (a *API) startSession(w http.ResponseWriter, r *http.Request) {
	var req startSessionRequest
	if err := decode(w, r, &req); err != nil {
		badRequest(w, a.log, "invalid body", err)
		return
	}
	id, err := a.platform.StartSession(r.Context(), caller(r), req.GameID)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]uint64{"session_id": id})
}

type finishSessionRequest struct {
	Score     uint64       `json:"score"`
	Nonce     models.Nonce `json:"nonce"`
	Signature string       `json:"signature"`
}

func (a *API) finishSession(w http.ResponseWriter, r *http.Request) {
	id, err := uintParam(r, "id")
	if err != nil {
		badRequest(w, a.log, err.Error(), nil)
		return
	}
	var req finishSessionRequest
	if err := decode(w, r, &req); err != nil {
		badRequest(w, a.log, "invalid body", err)
		return
	}
	sig, err := hex.DecodeString(strings.TrimPrefix(req.Signature, "0x"))
	if err != nil {
		badRequest(w, a.log, "invalid signature encoding", err)
		return
	}

	result, err := a.platform.FinishSession(r.Context(), caller(r), platform.FinishRequest{
		SessionID: id,
		Score:     req.Score,
		Nonce:     req.Nonce,
		Signature: sig,
	})
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (a *API) joinTournament(w http.ResponseWriter, r *http.Request) {
	id, err := uintParam(r, "id")
	if err != nil {
		badRequest(w, a.log, err.Error(), nil)
		return
	}
	if err := a.platform.JoinTournament(r.Context(), caller(r), id); err != nil {
		a.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type registerGameRequest struct {
	Name         string         `json:"name"`
	Developer    models.Address `json:"developer"`
	RevenueShare uint8          `json:"revenue_share"`
	Difficulty   uint32         `json:"difficulty"`
}

func (a *API) registerGame(w http.ResponseWriter, r *http.Request) {
	var req registerGameRequest
	if err := decode(w, r, &req); err != nil {
		badRequest(w, a.log, "invalid body", err)
		return
	}
	id, err := a.platform.RegisterGame(r.Context(), caller(r), platform.GameParams{
		Name:         req.Name,
		Developer:    req.Developer,
		RevenueShare: req.RevenueShare,
		Difficulty:   req.Difficulty,
	})
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]uint64{"game_id": id})
}

type activeRequest struct {
	Active bool `json:"active"`
}

func (a *API) setGameActive(w http.ResponseWriter, r *http.Request) {
	a.setActive(w, r, a.platform.SetGameActive)
}

func (a *API) setAchievementActive(w http.ResponseWriter, r *http.Request) {
	a.setActive(w, r, a.platform.SetAchievementActive)
}

func (a *API) setActive(w http.ResponseWriter, r *http.Request, set func(context.Context, models.Address, uint64, bool) error) {
	id, err := uintParam(r, "id")
	if err != nil {
		badRequest(w, a.log, err.Error(), nil)
		return
	}
	var req activeRequest
	if err := decode(w, r, &req); err != nil {
		badRequest(w, a.log, "invalid body", err)
		return
	}
	if err := set(r.Context(), caller(r), id, req.Active); err != nil {
		a.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type achievementRequest struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Kind        models.AchievementKind `json:"kind"`
	Threshold   uint64                 `json:"threshold"`
	Reward      models.Amount          `json:"reward"`
}

func (a *API) createAchievement(w http.ResponseWriter, r *http.Request) {
	var req achievementRequest
	if err := decode(w, r, &req); err != nil {
		badRequest(w, a.log, "invalid body", err)
		return
	}
	id, err := a.platform.CreateAchievement(r.Context(), caller(r), platform.AchievementParams{
		Name:        req.Name,
		Description: req.Description,
		Kind:        req.Kind,
		Threshold:   req.Threshold,
		Reward:      req.Reward,
	})
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]uint64{"achievement_id": id})
}

type tournamentRequest struct {
	Name       string                `json:"name"`
	Type       models.TournamentType `json:"type"`
	EntryFee   models.Amount         `json:"entry_fee"`
	MaxPlayers uint32                `json:"max_players"`
	StartTime  time.Time             `json:"start_time,omitzero"`
	// Duration uses time.ParseDuration syntax, e.g. "48h".
	Duration string `json:"duration"`
}

func (a *API) createTournament(w http.ResponseWriter, r *http.Request) {
	var req tournamentRequest
	if err := decode(w, r, &req); err != nil {
		badRequest(w, a.log, "invalid body", err)
		return
	}
	duration, err := time.ParseDuration(req.Duration)
	if err != nil {
		badRequest(w, a.log, "invalid duration", err)
		return
	}
	id, err := a.platform.CreateTournament(r.Context(), caller(r), platform.TournamentParams{
		Name:       req.Name,
		Type:       req.Type,
		EntryFee:   req.EntryFee,
		MaxPlayers: req.MaxPlayers,
		StartTime:  req.StartTime,
		Duration:   duration,
	})
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]uint64{"tournament_id": id})
}

type finishTournamentRequest struct {
	Winners []models.Address `json:"winners"`
	Prizes  []models.Amount  `json:"prizes"`
}

func (a *API) finishTournament(w http.ResponseWriter, r *http.Request) {
	id, err := uintParam(r, "id")
	if err != nil {
		badRequest(w, a.log, err.Error(), nil)
		return
	}
	var req finishTournamentRequest
	if err := decode(w, r, &req); err != nil {
		badRequest(w, a.log, "invalid body", err)
		return
	}
	if err := a.platform.FinishTournament(r.Context(), caller(r), id, req.Winners, req.Prizes); err != nil {
		a.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type validatorRequest struct {
	Authorized bool `json:"authorized"`
}

func (a *API) setValidator(w http.ResponseWriter, r *http.Request) {
	addr, err := addressParam(r)
	if err != nil {
		badRequest(w, a.log, "invalid address", err)
		return
	}
	var req validatorRequest
	if err := decode(w, r, &req); err != nil {
		badRequest(w, a.log, "invalid body", err)
		return
	}
	if err := a.platform.SetValidator(r.Context(), caller(r), addr, req.Authorized); err != nil {
		a.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type platformFeeRequest struct {
	Bps uint32 `json:"bps"`
}

func (a *API) setPlatformFee(w http.ResponseWriter, r *http.Request) {
	var req platformFeeRequest
	if err := decode(w, r, &req); err != nil {
		badRequest(w, a.log, "invalid body", err)
		return
	}
	if err := a.platform.SetPlatformFee(r.Context(), caller(r), req.Bps); err != nil {
		a.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type treasuryRequest struct {
	Treasury models.Address `json:"treasury"`
}

func (a *API) setTreasury(w http.ResponseWriter, r *http.Request) {
	var req treasuryRequest
	if err := decode(w, r, &req); err != nil {
		badRequest(w, a.log, "invalid body", err)
		return
	}
	if err := a.platform.SetTreasury(r.Context(), caller(r), req.Treasury); err != nil {
		a.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) pause(w http.ResponseWriter, r *http.Request) {
	if err := a.platform.Pause(r.Context(), caller(r)); err != nil {
		a.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) unpause(w http.ResponseWriter, r *http.Request) {
	if err := a.platform.Unpause(r.Context(), caller(r)); err != nil {
		a.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) listOperations(w http.ResponseWriter, r *http.Request) {
	if caller(r) != a.platform.Settings(r.Context()).Operator {
		a.writeError(w, r, platform.ErrNotOperator)
		return
	}
	if a.operations == nil {
		writeJSON(w, http.StatusOK, []persistence.OperationRecord{})
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	ops, err := a.operations.RecentOperations(r.Context(), limit)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ops)
}
