package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/wfunc/arenaledger/models"
)

const Issuer = "arenaledger"

var (
	ErrMissingToken = errors.New("authorization token required")
	ErrInvalidToken = errors.New("invalid or expired token")
)

type callerKey struct{}

// Authenticator issues and checks HS256 tokens whose subject is the caller
// address.
type Authenticator struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewAuthenticator(secret string, ttl time.Duration) (*Authenticator, error) {
	if secret == "" {
		return nil, errors.New("jwt secret must not be empty")
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Authenticator{secret: []byte(secret), ttl: ttl, now: time.Now}, nil
}

func (a *Authenticator) IssueToken(caller models.Address) (string, error) {
	now := a.now()
	claims := jwt.RegisteredClaims{
		Issuer:    Issuer,
		Subject:   caller.String(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(a.ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

// ParseToken returns the caller address a valid token was issued for.
func (a *Authenticator) ParseToken(token string) (models.Address, error) {
	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(strings.TrimSpace(token), &claims, func(*jwt.Token) (any, error) {
		return a.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(a.now),
	)
	if err != nil {
		return models.Address{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	caller, err := models.ParseAddress(claims.Subject)
	if err != nil {
		return models.Address{}, fmt.Errorf("%w: subject: %v", ErrInvalidToken, err)
	}
	if caller.IsZero() {
		return models.Address{}, fmt.Errorf("%w: zero subject", ErrInvalidToken)
	}
	return caller, nil
}

// tokenFrom reads a bearer token, falling back to the token query parameter
// for WebSocket clients that cannot set headers.
func tokenFrom(r *http.Request) (string, error) {
	if header := r.Header.Get("Authorization"); header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			return "", fmt.Errorf("%w: invalid authorization format", ErrMissingToken)
		}
		return parts[1], nil
	}
	if token := r.URL.Query().Get("token"); token != "" {
		return token, nil
	}
	return "", ErrMissingToken
}

// RequireCaller rejects requests without a valid token and stores the caller
// address in the request context.
func (a *Authenticator) RequireCaller(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, err := tokenFrom(r)
		if err != nil {
			writeJSON(w, http.StatusUnauthorized, errorBody{Error: err.Error()})
			return
		}
		caller, err := a.ParseToken(token)
		if err != nil {
			writeJSON(w, http.StatusUnauthorized, errorBody{Error: ErrInvalidToken.Error()})
			return
		}
		next.ServeHTTP(w, r.WithContext(WithCaller(r.Context(), caller)))
	})
}

func WithCaller(ctx context.Context, caller models.Address) context.Context {
	return context.WithValue(ctx, callerKey{}, caller)
}

func CallerFrom(ctx context.Context) (models.Address, bool) {
	caller, ok := ctx.Value(callerKey{}).(models.Address)
	return caller, ok
}
