// Package api exposes the journal engine over HTTP.
//
// Every route under /v1 needs an HS256 bearer token whose subject is the
// acting user. Account-scoped routes take the account from the X-Account-ID
// header, falling back to the token's account_id claim. Rows are returned in
// the snake_case wire shape.
package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"trade-journal/internal/engine"
	"trade-journal/internal/errors"
	"trade-journal/internal/identity"
	"trade-journal/internal/logging"
	"trade-journal/internal/store"
)

const (
	maxBody       = 1 << 20
	maxBackupBody = 32 << 20
)

// Deps are the collaborators of the HTTP layer.
type Deps struct {
	Engine   *engine.Engine
	Tokens   *identity.Tokens
	Logger   zerolog.Logger
	Location *time.Location   // journal time zone for reviews
	Clock    func() time.Time // defaults to time.Now
}

// Handler serves the journal routes.
type Handler struct {
	engine *engine.Engine
	tokens *identity.Tokens
	logger zerolog.Logger
	loc    *time.Location
	clock  func() time.Time
}

// NewRouter builds the HTTP handler.
func NewRouter(d Deps) http.Handler {
	h := &Handler{
		engine: d.Engine,
		tokens: d.Tokens,
		logger: d.Logger,
		loc:    d.Location,
		clock:  d.Clock,
	}
	if h.loc == nil {
		h.loc = time.UTC
	}
	if h.clock == nil {
		h.clock = time.Now
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(SecurityHeaders)
	r.Use(h.requestLogger)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/v1", func(r chi.Router) {
		r.Get("/instruments", h.Instruments)

		r.Group(func(r chi.Router) {
			r.Use(WithAuth(h.tokens))

			r.Get("/accounts", h.ListAccounts)
			r.Post("/accounts", h.CreateAccount)

			r.Group(func(r chi.Router) {
				r.Use(WithAccount)

				r.Get("/account", h.GetAccount)
				r.Patch("/account", h.UpdateAccount)
				r.Delete("/account", h.DeleteAccount)
				r.Post("/account/recompute", h.RecomputeEquity)

				r.Post("/deposits", h.Deposit)
				r.Post("/withdrawals", h.Withdraw)
				r.Get("/transactions", h.ListTransactions)
				r.Delete("/transactions/{txID}", h.DeleteTransaction)

				r.Get("/trades", h.ListTrades)
				r.Post("/trades", h.OpenTrade)
				r.Get("/trades/{tradeID}", h.GetTrade)
				r.Patch("/trades/{tradeID}", h.EditTrade)
				r.Delete("/trades/{tradeID}", h.DeleteTrade)
				r.Post("/trades/{tradeID}/close", h.CloseTrade)

				r.Post("/sizing", h.PreviewSizing)
				r.Get("/risk", h.RiskUsage)

				r.Route("/reviews", func(r chi.Router) {
					r.Get("/week", h.WeekReview)
					r.Get("/month", h.MonthReview)
					r.Get("/summary", h.Summary)
					r.Get("/groups", h.Groups)
					r.Get("/daily-risk", h.DailyRisk)
				})

				r.Get("/backup", h.ExportBackup)
				r.Post("/backup", h.ImportBackup)
			})
		})
	})
	return r
}

// SecurityHeaders sets conservative response headers for a JSON API.
func SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("Referrer-Policy", "no-referrer")
		w.Header().Set("Cache-Control", "no-store")
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func (h *Handler) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		reqID := r.Header.Get("X-Request-ID")
		if reqID == "" {
			reqID = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", reqID)

		logger := h.logger.With().Str("request_id", reqID).Logger()
		ctx := logging.WithRequestID(r.Context(), reqID)
		ctx = logging.WithLogger(ctx, logger)

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r.WithContext(ctx))

		logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Dur("duration", time.Since(start)).
			Msg("request")
	})
}

type ctxKey string

const userKey ctxKey = "identity"

// WithAuth verifies the bearer token and stores its identity.
func WithAuth(tokens *identity.Tokens) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if tokens == nil {
				writeError(w, r, errors.Wrap(errors.ErrUnauthorized, "api tokens are not configured"))
				return
			}
			authz := r.Header.Get("Authorization")
			parts := strings.SplitN(authz, " ", 2)
			if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
				writeError(w, r, errors.Wrap(errors.ErrUnauthorized, "missing bearer token"))
				return
			}
			id, err := tokens.Parse(strings.TrimSpace(parts[1]))
			if err != nil {
				writeError(w, r, errors.Wrap(errors.ErrUnauthorized, "invalid token"))
				return
			}
			ctx := context.WithValue(r.Context(), userKey, id)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// WithAccount selects the account for account-scoped routes.
func WithAccount(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, _ := r.Context().Value(userKey).(identity.Identity)
		if acct := strings.TrimSpace(r.Header.Get("X-Account-ID")); acct != "" {
			id = id.WithAccount(acct)
		}
		if err := id.Validate(); err != nil {
			writeError(w, r, err)
			return
		}
		ctx := identity.NewContext(r.Context(), id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Identity returns the authenticated identity of the request.
func Identity(r *http.Request) (identity.Identity, bool) {
	if id, ok := identity.FromContext(r.Context()); ok {
		return id, true
	}
	id, ok := r.Context().Value(userKey).(identity.Identity)
	return id, ok
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
	Rule  string `json:"rule,omitempty"`
	Field string `json:"field,omitempty"`
}

// StatusFor maps an error kind to an HTTP status.
func StatusFor(err error) int {
	switch errors.KindOf(err) {
	case errors.KindValidation:
		return http.StatusBadRequest
	case errors.KindPolicy, errors.KindInsufficientFunds:
		return http.StatusUnprocessableEntity
	case errors.KindNotFound:
		return http.StatusNotFound
	case errors.KindConflict:
		return http.StatusConflict
	case errors.KindPersistence:
		return http.StatusServiceUnavailable
	case errors.KindUnauthorized:
		return http.StatusUnauthorized
	}
	return http.StatusInternalServerError
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := StatusFor(err)
	resp := ErrorResponse{Error: err.Error(), Kind: string(errors.KindOf(err))}

	var pe *errors.PolicyError
	if errors.As(err, &pe) {
		resp.Rule = string(pe.Rule)
	}
	var ve *errors.ValidationError
	if errors.As(err, &ve) {
		resp.Field = ve.Field
	}
	if status == http.StatusInternalServerError {
		logger := logging.FromContext(r.Context())
		logger.Error().Err(err).Str("path", r.URL.Path).Msg("unhandled error")
		resp.Error = "internal error"
	}
	writeJSON(w, status, resp)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// readJSON decodes a request object, accepting snake_case or camelCase keys.
func readJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBody))
	if err != nil {
		return errors.NewValidationError("body", "", "cannot be read: "+err.Error())
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		data = []byte("{}")
	}
	if err := store.DecodeNormalized(data, v); err != nil {
		return errors.NewValidationError("body", "", "malformed JSON: "+err.Error())
	}
	return nil
}

// parseTime reads a date or timestamp; empty input yields the zero time.
func parseTime(field, s string) (time.Time, error) {
	if strings.TrimSpace(s) == "" {
		return time.Time{}, nil
	}
	t, err := store.ParseWireTime(s)
	if err != nil {
		return time.Time{}, errors.NewValidationError(field, s, "is not a date")
	}
	return t, nil
}

// parseMoment reads an exit or ledger date. Calendar dates are midnight in
// loc; timestamps with a zone are kept.
func parseMoment(field, s string, loc *time.Location) (time.Time, error) {
	if strings.TrimSpace(s) == "" {
		return time.Time{}, nil
	}
	t, err := store.ParseWireTimeIn(s, loc)
	if err != nil {
		return time.Time{}, errors.NewValidationError(field, s, "is not a date")
	}
	return t, nil
}
