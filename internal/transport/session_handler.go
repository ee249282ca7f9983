package transport

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"dreampuff/internal/domain"
	"dreampuff/internal/middleware"
	"dreampuff/internal/repository"
	"dreampuff/internal/session"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

var errInvalidQuery = errors.New("query parameter must be a positive integer")

// SessionStartPath is where a freshly signed in client declares its work session
const SessionStartPath = "/session/start"

// SessionLifecycle is the daily work session state machine
type SessionLifecycle interface {
	SignedIn(ctx context.Context, identity domain.Identity, now time.Time) error
	Check(ctx context.Context, identity *domain.Identity, now time.Time) (session.Decision, error)
	StartSession(ctx context.Context, identity *domain.Identity, name string, position domain.Position) (*domain.SessionInfo, error)
	SignOut(ctx context.Context, identity domain.Identity)
}

// StartSessionRequest declares who is working and in which position
type StartSessionRequest struct {
	Name     string `json:"name" validate:"required,max=100"`
	Position string `json:"position" validate:"required,oneof=Cashier Kitchen Management"`
}

// SessionHandler serves the work session endpoints of the staff app
type SessionHandler struct {
	sessions      SessionLifecycle
	notifications session.NotificationFeed
	records       repository.SessionRecordRepository
	logger        *zap.Logger
}

// NewSessionHandler creates a new SessionHandler
func NewSessionHandler(
	sessions SessionLifecycle,
	notifications session.NotificationFeed,
	records repository.SessionRecordRepository,
	logger *zap.Logger,
) *SessionHandler {
	return &SessionHandler{
		sessions:      sessions,
		notifications: notifications,
		records:       records,
		logger:        logger,
	}
}

// RegisterRoutes registers the routes reachable before a session is started
func (h *SessionHandler) RegisterRoutes(r chi.Router) {
	r.Get("/session", h.GetSession)
	r.Post("/session", h.StartSession)
	r.Get("/notifications", h.DrainNotifications)
}

// RegisterLogRoutes registers the session log; callers gate it to Management
func (h *SessionHandler) RegisterLogRoutes(r chi.Router) {
	r.Get("/sessions", h.ListSessions)
}

func identityPtr(r *http.Request) *domain.Identity {
	identity, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		return nil
	}
	return &identity
}

// GetSession reports where the caller stands in the session lifecycle
func (h *SessionHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	decision, err := h.sessions.Check(r.Context(), identityPtr(r), time.Now())
	if err != nil {
		h.logger.Error("Session check failed", zap.Error(err))
		middleware.RespondWithError(w, http.StatusServiceUnavailable, "session state unavailable")
		return
	}

	middleware.RespondWithJSON(w, http.StatusOK, decision)
}

// StartSession activates the caller's work session for the current business day
func (h *SessionHandler) StartSession(w http.ResponseWriter, r *http.Request) {
	identity := identityPtr(r)

	decision, err := h.sessions.Check(r.Context(), identity, time.Now())
	if err != nil {
		h.logger.Error("Session check failed", zap.Error(err))
		middleware.RespondWithError(w, http.StatusServiceUnavailable, "session state unavailable")
		return
	}
	if decision.State != session.StateAwaitingStart && decision.State != session.StateSessionActive {
		middleware.RespondWithRedirect(w, http.StatusUnauthorized, decision.Message, session.EntryPoint)
		return
	}

	var req StartSessionRequest
	if err := middleware.DecodeAndValidate(r, &req); err != nil {
		middleware.RespondWithDecodeError(w, err)
		return
	}

	info, err := h.sessions.StartSession(r.Context(), identity, req.Name, domain.Position(req.Position))
	if err != nil {
		respondWithServiceError(w, h.logger, err, "failed to start session")
		return
	}

	middleware.RespondWithJSON(w, http.StatusCreated, info)
}

// DrainNotifications returns and clears the caller's pending notifications, oldest first
func (h *SessionHandler) DrainNotifications(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		middleware.RespondWithError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	notifications, err := h.notifications.Drain(r.Context(), identity.UserID)
	if err != nil {
		h.logger.Error("Failed to read notifications", zap.Error(err))
		middleware.RespondWithError(w, http.StatusInternalServerError, "failed to read notifications")
		return
	}
	if notifications == nil {
		notifications = []domain.Notification{}
	}

	middleware.RespondWithJSON(w, http.StatusOK, notifications)
}

// ListSessions returns the most recently started work sessions
func (h *SessionHandler) ListSessions(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", 20)
	if err != nil {
		middleware.RespondWithError(w, http.StatusBadRequest, "limit must be a positive integer")
		return
	}

	records, err := h.records.Recent(r.Context(), limit)
	if err != nil {
		respondWithServiceError(w, h.logger, err, "failed to load sessions")
		return
	}
	if records == nil {
		records = []domain.SessionRecord{}
	}

	middleware.RespondWithJSON(w, http.StatusOK, records)
}

// queryInt reads a positive integer query parameter, falling back to def when absent
func queryInt(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value <= 0 {
		return 0, errInvalidQuery
	}
	return value, nil
}
