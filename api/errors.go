package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/wfunc/arenaledger/attest"
	"github.com/wfunc/arenaledger/platform"
	"github.com/wfunc/arenaledger/progression"
)

type errorBody struct {
	Error string         `json:"error"`
	Class platform.Class `json:"class,omitempty"`
}

var notFound = []error{
	platform.ErrGameNotFound,
	platform.ErrSessionNotFound,
	platform.ErrTournamentNotFound,
	platform.ErrAchievementNotFound,
}

// unprocessable are precondition errors caused by the request body itself.
var unprocessable = []error{
	platform.ErrEmptyName,
	platform.ErrZeroAddress,
	platform.ErrEntryFeeTooLow,
	platform.ErrInvalidMaxPlayers,
	platform.ErrInvalidDuration,
	platform.ErrInvalidTournamentType,
	platform.ErrLengthMismatch,
	platform.ErrDuplicateWinner,
	platform.ErrUnknownAchievementKind,
	progression.ErrUnsupportedAchievement,
}

func isAny(err error, targets []error) bool {
	for _, target := range targets {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// StatusFor maps a platform error onto an HTTP status by its class.
func StatusFor(err error) int {
	switch platform.Classify(err) {
	case platform.ClassNone:
		return http.StatusOK
	case platform.ClassPrecondition:
		switch {
		case isAny(err, notFound):
			return http.StatusNotFound
		case isAny(err, unprocessable):
			return http.StatusUnprocessableEntity
		}
		return http.StatusConflict
	case platform.ClassUnauthorized:
		if errors.Is(err, platform.ErrNotOperator) {
			return http.StatusForbidden
		}
		if errors.Is(err, attest.ErrMalformedSignature) || errors.Is(err, attest.ErrUnauthorizedSigner) {
			return http.StatusUnauthorized
		}
		return http.StatusForbidden
	case platform.ClassLedger:
		return http.StatusPaymentRequired
	case platform.ClassBounds:
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func (a *API) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := StatusFor(err)
	class := platform.Classify(err)
	if status >= http.StatusInternalServerError {
		a.log.Errorw("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		writeJSON(w, status, errorBody{Error: "internal server error", Class: class})
		return
	}
	a.log.Debugw("request rejected", "method", r.Method, "path", r.URL.Path, "status", status, "error", err)
	writeJSON(w, status, errorBody{Error: err.Error(), Class: class})
}

func badRequest(w http.ResponseWriter, log *zap.SugaredLogger, msg string, err error) {
	if err != nil {
		log.Debugw("bad request", "message", msg, "error", err)
		msg = msg + ": " + err.Error()
	}
	writeJSON(w, http.StatusBadRequest, errorBody{Error: msg})
}
