package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"spaceexplorers/internal/auth"
	"spaceexplorers/internal/config"
	"spaceexplorers/internal/events"
	"spaceexplorers/internal/game"
	"spaceexplorers/internal/metrics"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

type contextKey string

const userContextKey contextKey = "user"

type UserContext struct {
	UserID string
	Email  string
	Token  string
}

type Server struct {
	cfg      config.APIConfig
	log      *slog.Logger
	verifier auth.Verifier
	accounts *auth.SupabaseClient
	game     *game.Service
	hub      *events.Hub
	limiter  *RateLimiter
	mux      *chi.Mux

	// users already provisioned by this process
	known sync.Map
}

// New wires the router. accounts may be nil when signup/login are handled
// outside this service.
func New(cfg config.APIConfig, logger *slog.Logger, verifier auth.Verifier, accounts *auth.SupabaseClient, gameSvc *game.Service, hub *events.Hub) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if hub == nil {
		hub = events.NewHub(logger)
	}
	s := &Server{
		cfg:      cfg,
		log:      logger,
		verifier: verifier,
		accounts: accounts,
		game:     gameSvc,
		hub:      hub,
		limiter:  NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst, logger),
		mux:      chi.NewRouter(),
	}
	s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) Limiter() *RateLimiter {
	return s.limiter
}

func (s *Server) routes() {
	r := s.mux
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(metrics.InstrumentHandler)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	})
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(60 * time.Second))
			r.Use(s.limiter.Handler)
			r.Post("/auth/signup", s.handleSignup)
			r.Post("/auth/login", s.handleLogin)
			r.Post("/auth/refresh", s.handleRefresh)
		})

		// websocket streams outlive the request timeout
		r.With(s.authMiddleware).Get("/events", s.handleEvents)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(60 * time.Second))
			r.Use(s.authMiddleware)
			r.Use(s.limiter.Handler)

			r.Get("/me", s.handleProfile)
			r.Put("/me", s.handleUpdateProfile)
			r.Get("/users/{user_id}", s.handleProfile)
			r.Get("/leaderboard", s.handleLeaderboard)

			r.Get("/challenges", s.handleChallengesList)
			r.Post("/challenges", s.handleCreateChallenge)
			r.Put("/challenges/{id}", s.handleUpdateChallenge)
			r.Delete("/challenges/{id}", s.handleDeleteChallenge)
			r.Post("/challenges/{id}/completions", s.handleCompleteChallenge)
			r.Get("/challenges/{id}/completions", s.handleCompletions)
			r.Get("/challenges/{id}/my-completions", s.handleMyCompletions)

			r.Get("/space/journey/{user_id}", s.handleJourney)
			r.Post("/space/discover", s.handleDiscover)
			r.Get("/space/shop", s.handleShop)
			r.Post("/space/shop/purchase", s.handlePurchase)
			r.Get("/space/spacecraft/{user_id}", s.handleSpacecraft)
			r.Put("/space/spacecraft/toggle", s.handleToggle)
			r.Get("/space/achievements/{user_id}", s.handleAchievements)
		})
	})
}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r.Header.Get("Authorization"))
		if token == "" {
			token = strings.TrimSpace(r.URL.Query().Get("access_token"))
		}
		if token == "" {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		if s.verifier == nil {
			writeError(w, http.StatusUnauthorized, "no token verifier configured")
			return
		}
		user, err := s.verifier.VerifyAccessToken(r.Context(), token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, fmt.Sprintf("invalid token: %v", err))
			return
		}
		if err := s.provision(r.Context(), user); err != nil {
			writeDomainError(w, err)
			return
		}
		ctx := context.WithValue(r.Context(), userContextKey, UserContext{
			UserID: user.ID,
			Email:  user.Email,
			Token:  token,
		})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// provision creates the user row on the first authenticated request seen by
// this process.
func (s *Server) provision(ctx context.Context, user auth.User) error {
	if _, ok := s.known.Load(user.ID); ok {
		return nil
	}
	if _, err := s.game.EnsureUser(ctx, user.ID, user.Email, ""); err != nil {
		return err
	}
	s.known.Store(user.ID, struct{}{})
	return nil
}

func userFromContext(ctx context.Context) (UserContext, error) {
	v := ctx.Value(userContextKey)
	user, ok := v.(UserContext)
	if !ok || user.UserID == "" {
		return UserContext{}, errors.New("missing auth context")
	}
	return user, nil
}

func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	if s.accounts == nil {
		writeError(w, http.StatusNotImplemented, "signup is not enabled on this server")
		return
	}
	var in struct {
		Email    string `json:"email"`
		Password string `json:"password"`
		Username string `json:"username"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if in.Username != "" {
		if err := game.ValidateUsername(in.Username); err != nil {
			writeDomainError(w, err)
			return
		}
	}
	session, err := s.accounts.SignUp(r.Context(), strings.TrimSpace(in.Email), strings.TrimSpace(in.Password), in.Username)
	if err != nil {
		writeAuthError(w, http.StatusBadRequest, err)
		return
	}
	if session.User.ID != "" {
		if _, err := s.game.EnsureUser(r.Context(), session.User.ID, session.User.Email, in.Username); err != nil {
			writeDomainError(w, err)
			return
		}
		s.known.Store(session.User.ID, struct{}{})
	}
	writeJSON(w, http.StatusCreated, session)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if s.accounts == nil {
		writeError(w, http.StatusNotImplemented, "login is not enabled on this server")
		return
	}
	var in struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	session, err := s.accounts.Login(r.Context(), strings.TrimSpace(in.Email), strings.TrimSpace(in.Password))
	if err != nil {
		writeAuthError(w, http.StatusUnauthorized, err)
		return
	}
	if _, err := s.game.EnsureUser(r.Context(), session.User.ID, session.User.Email, ""); err != nil {
		writeDomainError(w, err)
		return
	}
	s.known.Store(session.User.ID, struct{}{})
	writeJSON(w, http.StatusOK, session)
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if s.accounts == nil {
		writeError(w, http.StatusNotImplemented, "token refresh is not enabled on this server")
		return
	}
	var in struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	session, err := s.accounts.Refresh(r.Context(), strings.TrimSpace(in.RefreshToken))
	if err != nil {
		writeAuthError(w, http.StatusUnauthorized, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

// writeAuthError answers provider rejections with status and anything else
// (provider unreachable or failing) with 502.
func writeAuthError(w http.ResponseWriter, status int, err error) {
	if errors.Is(err, auth.ErrRejected) {
		writeError(w, status, err.Error())
		return
	}
	writeError(w, http.StatusBadGateway, err.Error())
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	s.hub.ServeWS(w, r, user.UserID)
}

// handleProfile serves /me and /users/{user_id}.
func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	userID, ok := targetUser(w, r)
	if !ok {
		return
	}
	out, err := s.game.Profile(r.Context(), userID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	var in struct {
		Username string `json:"username"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	out, err := s.game.UpdateUsername(r.Context(), user.UserID, in.Username)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}
	out, err := s.game.Leaderboard(r.Context(), limit)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"rows": out})
}

func (s *Server) handleChallengesList(w http.ResponseWriter, r *http.Request) {
	out, err := s.game.Challenges(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"challenges": out})
}

func (s *Server) handleCreateChallenge(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	var in struct {
		Description string `json:"description"`
		Points      int64  `json:"points"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	out, err := s.game.CreateChallenge(r.Context(), user.UserID, in.Description, in.Points)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, out)
}

func (s *Server) handleUpdateChallenge(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	challengeID, ok := int64Param(w, r, "id", "invalid challenge id")
	if !ok {
		return
	}
	var in struct {
		Description string `json:"description"`
		Points      int64  `json:"points"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	out, err := s.game.UpdateChallenge(r.Context(), user.UserID, challengeID, in.Description, in.Points)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleDeleteChallenge(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	challengeID, ok := int64Param(w, r, "id", "invalid challenge id")
	if !ok {
		return
	}
	if err := s.game.DeleteChallenge(r.Context(), user.UserID, challengeID); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleCompleteChallenge(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	challengeID, ok := int64Param(w, r, "id", "invalid challenge id")
	if !ok {
		return
	}
	var in struct {
		Details string `json:"details"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	out, err := s.game.CompleteChallenge(r.Context(), game.CompleteChallengeInput{
		UserID:         user.UserID,
		ChallengeID:    challengeID,
		Details:        in.Details,
		IdempotencyKey: idempotencyKey(r),
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, out)
}

func (s *Server) handleCompletions(w http.ResponseWriter, r *http.Request) {
	s.listCompletions(w, r, false)
}

func (s *Server) handleMyCompletions(w http.ResponseWriter, r *http.Request) {
	s.listCompletions(w, r, true)
}

func (s *Server) listCompletions(w http.ResponseWriter, r *http.Request, mine bool) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	challengeID, ok := int64Param(w, r, "id", "invalid challenge id")
	if !ok {
		return
	}
	filter := ""
	if mine {
		filter = user.UserID
	}
	out, err := s.game.Completions(r.Context(), challengeID, filter)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"completions": out})
}

func (s *Server) handleJourney(w http.ResponseWriter, r *http.Request) {
	userID, ok := targetUser(w, r)
	if !ok {
		return
	}
	out, err := s.game.Journey(r.Context(), userID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleDiscover(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	var in struct {
		PlanetID int64 `json:"planet_id"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if in.PlanetID <= 0 {
		writeError(w, http.StatusBadRequest, "planet_id is required")
		return
	}
	out, err := s.game.DiscoverPlanet(r.Context(), user.UserID, in.PlanetID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleShop(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	out, err := s.game.Shop(r.Context(), user.UserID, r.URL.Query().Get("category"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"upgrades": out})
}

func (s *Server) handlePurchase(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	var in struct {
		UpgradeID int64 `json:"upgrade_id"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if in.UpgradeID <= 0 {
		writeError(w, http.StatusBadRequest, "upgrade_id is required")
		return
	}
	out, err := s.game.PurchaseUpgrade(r.Context(), user.UserID, in.UpgradeID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleSpacecraft(w http.ResponseWriter, r *http.Request) {
	userID, ok := targetUser(w, r)
	if !ok {
		return
	}
	out, err := s.game.Spacecraft(r.Context(), userID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleToggle(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	var in struct {
		UpgradeID  int64 `json:"upgrade_id"`
		IsEquipped *bool `json:"is_equipped"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if in.UpgradeID <= 0 || in.IsEquipped == nil {
		writeError(w, http.StatusBadRequest, "upgrade_id and is_equipped are required")
		return
	}
	if err := s.game.ToggleEquip(r.Context(), user.UserID, in.UpgradeID, *in.IsEquipped); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"upgrade_id":  in.UpgradeID,
		"is_equipped": *in.IsEquipped,
	})
}

func (s *Server) handleAchievements(w http.ResponseWriter, r *http.Request) {
	userID, ok := targetUser(w, r)
	if !ok {
		return
	}
	out, err := s.game.Achievements(r.Context(), userID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// targetUser resolves the {user_id} path parameter; "me" names the caller.
func targetUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return "", false
	}
	id := strings.TrimSpace(chi.URLParam(r, "user_id"))
	if id == "" || id == "me" {
		return user.UserID, true
	}
	return id, true
}

func int64Param(w http.ResponseWriter, r *http.Request, name, msg string) (int64, bool) {
	v, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || v <= 0 {
		writeError(w, http.StatusBadRequest, msg)
		return 0, false
	}
	return v, true
}

func writeDomainError(w http.ResponseWriter, err error) {
	var (
		funds  *game.InsufficientFundsError
		locked *game.LockedError
	)
	switch {
	case errors.As(err, &funds):
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":    err.Error(),
			"required": funds.Required,
			"current":  funds.Current,
		})
	case errors.As(err, &locked):
		writeJSON(w, http.StatusForbidden, map[string]any{
			"error":            err.Error(),
			"required_planets": locked.Required,
			"current_planets":  locked.Current,
		})
	case errors.Is(err, game.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, game.ErrConflict), errors.Is(err, game.ErrTxConflict):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, game.ErrForbidden):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, game.ErrUnauthorized):
		writeError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, game.ErrInsufficientFunds), errors.Is(err, game.ErrValidation):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusGatewayTimeout, "request timed out")
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func decodeJSON(r *http.Request, out any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return err
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"error": strings.TrimSpace(message)})
}

// idempotencyKey is empty when the client sent none; no claim is recorded then.
func idempotencyKey(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get("Idempotency-Key"))
}

func bearerToken(header string) string {
	header = strings.TrimSpace(header)
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
