package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"dreampuff/internal/domain"
	"dreampuff/internal/timeframe"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	ErrNameRequired    = errors.New("name is required")
	ErrInvalidPosition = errors.New("position must be one of Cashier, Kitchen, Management")
	ErrNotSignedIn     = errors.New("not signed in")
)

// EntryPoint is where expired or signed out staff are sent
const EntryPoint = "/"

const (
	persistTimeout = 15 * time.Second
	notifyTimeout  = 5 * time.Second
)

// State is the position of an identity in the session lifecycle
type State string

const (
	StateUnauthenticated State = "unauthenticated"
	// StateAuthenticating covers the credential check inside the login request.
	StateAuthenticating      State = "authenticating"
	StateSessionCheckPending State = "session_check_pending"
	StateSessionExpired      State = "session_expired"
	StateAwaitingStart       State = "awaiting_session_start"
	StateSessionActive       State = "session_active"
)

// Decision is the outcome of a session check
type Decision struct {
	State    State               `json:"state"`
	Info     *domain.SessionInfo `json:"session,omitempty"`
	Message  string              `json:"message,omitempty"`
	Redirect string              `json:"redirect,omitempty"`
}

// IdentityProvider ends an identity's sign-in
type IdentityProvider interface {
	SignOut(ctx context.Context, userID uuid.UUID) error
}

// RecordWriter persists started sessions remotely
type RecordWriter interface {
	Create(ctx context.Context, record *domain.SessionRecord) error
}

// Controller drives the daily work session lifecycle
type Controller struct {
	store    Store
	notifier Notifier
	identity IdentityProvider
	records  RecordWriter
	location *time.Location
	logger   *zap.Logger
	now      func() time.Time
	wg       sync.WaitGroup

	persistTimeout time.Duration
}

// NewController creates a session controller evaluating the daily boundary in loc
func NewController(
	store Store,
	notifier Notifier,
	identity IdentityProvider,
	records RecordWriter,
	loc *time.Location,
	logger *zap.Logger,
) *Controller {
	return &Controller{
		store:    store,
		notifier: notifier,
		identity: identity,
		records:  records,
		location: loc,
		logger:   logger.Named("session"),
		now:      time.Now,

		persistTimeout: persistTimeout,
	}
}

// SignedIn records the session start for a freshly signed in identity.
// Any session declared under an earlier sign-in is discarded.
func (c *Controller) SignedIn(ctx context.Context, identity domain.Identity, now time.Time) error {
	if err := c.store.SetStartTime(ctx, identity.UserID, now); err != nil {
		return err
	}
	if err := c.store.ClearInfo(ctx, identity.UserID); err != nil {
		return err
	}

	c.logger.Info("Session start recorded",
		zap.String("user_id", identity.UserID.String()),
		zap.Time("start", now),
	)
	return nil
}

// Check evaluates where identity stands in the lifecycle at now.
// An error means the state could not be read; the decision is then SessionCheckPending.
func (c *Controller) Check(ctx context.Context, identity *domain.Identity, now time.Time) (Decision, error) {
	if identity == nil {
		return Decision{State: StateUnauthenticated, Redirect: EntryPoint}, nil
	}
	userID := identity.UserID

	start, ok, err := c.store.StartTime(ctx, userID)
	if err != nil {
		return Decision{State: StateSessionCheckPending}, err
	}

	if !ok {
		c.signOutIdentity(ctx, userID)
		c.clearInfo(ctx, userID)

		message := "No active session found, please log in again"
		c.notifier.Notify(ctx, userID, domain.Notification{
			Level:   domain.NotificationError,
			Title:   "Session not found",
			Message: message,
		})
		return Decision{State: StateSessionExpired, Message: message, Redirect: EntryPoint}, nil
	}

	if !timeframe.IsSessionValid(start, now.In(c.location)) {
		c.logger.Info("Daily session ended",
			zap.String("user_id", userID.String()),
			zap.Time("start", start),
		)

		c.signOutIdentity(ctx, userID)
		c.clearStart(ctx, userID)
		c.clearInfo(ctx, userID)

		message := "Your daily session has ended, please log in again"
		c.notifier.Notify(ctx, userID, domain.Notification{
			Level:   domain.NotificationInfo,
			Title:   "Session ended",
			Message: message,
		})
		return Decision{State: StateSessionExpired, Message: message, Redirect: EntryPoint}, nil
	}

	info, err := c.store.Info(ctx, userID)
	if err != nil {
		return Decision{State: StateSessionCheckPending}, err
	}

	if info == nil || !info.Active {
		return Decision{State: StateAwaitingStart, Message: "Start your session to continue"}, nil
	}

	return Decision{State: StateSessionActive, Info: info}, nil
}

// StartSession activates the local session immediately and persists a session
// record in the background. A failed background write never reverts local state.
func (c *Controller) StartSession(ctx context.Context, identity *domain.Identity, name string, position domain.Position) (*domain.SessionInfo, error) {
	if identity == nil {
		return nil, ErrNotSignedIn
	}

	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrNameRequired
	}
	if !position.Valid() {
		return nil, ErrInvalidPosition
	}

	info := domain.SessionInfo{
		Name:      name,
		Position:  position,
		Active:    true,
		StartedAt: c.now().UTC(),
	}
	if err := c.store.SetInfo(ctx, identity.UserID, info); err != nil {
		return nil, fmt.Errorf("failed to activate session: %w", err)
	}

	c.notifier.Notify(ctx, identity.UserID, domain.Notification{
		Level:   domain.NotificationSuccess,
		Title:   "Session started",
		Message: "Welcome, " + name + "!",
	})
	c.notifier.Notify(ctx, identity.UserID, domain.Notification{
		Level:   domain.NotificationInfo,
		Title:   "Dreampuff",
		Message: fmt.Sprintf("%s is working as %s", name, position),
	})

	record := &domain.SessionRecord{
		ID:       uuid.New(),
		UserID:   identity.UserID,
		Name:     name,
		Position: position,
		Status:   domain.SessionStatusActive,
	}

	c.wg.Add(1)
	go c.persist(context.WithoutCancel(ctx), identity.UserID, record)

	return &info, nil
}

func (c *Controller) persist(ctx context.Context, userID uuid.UUID, record *domain.SessionRecord) {
	defer c.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("Panic while saving session record", zap.Any("panic", r))
		}
	}()

	writeCtx, cancel := context.WithTimeout(ctx, c.persistTimeout)
	err := c.records.Create(writeCtx, record)
	cancel()

	if err != nil {
		c.logger.Error("Failed to save session record",
			zap.String("user_id", userID.String()),
			zap.String("record_id", record.ID.String()),
			zap.Error(err),
		)

		// The write deadline may be what failed; the warning gets its own.
		notifyCtx, cancelNotify := context.WithTimeout(ctx, notifyTimeout)
		defer cancelNotify()
		c.notifier.Notify(notifyCtx, userID, domain.Notification{
			Level:   domain.NotificationWarning,
			Title:   "Session not saved",
			Message: "Your session could not be saved to the server but you can keep working",
		})
		return
	}

	c.logger.Info("Session record saved",
		zap.String("user_id", userID.String()),
		zap.String("record_id", record.ID.String()),
		zap.String("position", string(record.Position)),
	)
}

// SignOut ends the identity's sign-in and clears all local session state
func (c *Controller) SignOut(ctx context.Context, identity domain.Identity) {
	c.signOutIdentity(ctx, identity.UserID)
	c.clearStart(ctx, identity.UserID)
	c.clearInfo(ctx, identity.UserID)
}

// Wait blocks until every background session record write has finished
func (c *Controller) Wait() {
	c.wg.Wait()
}

func (c *Controller) signOutIdentity(ctx context.Context, userID uuid.UUID) {
	if err := c.identity.SignOut(ctx, userID); err != nil {
		c.logger.Warn("Sign out failed", zap.String("user_id", userID.String()), zap.Error(err))
	}
}

func (c *Controller) clearStart(ctx context.Context, userID uuid.UUID) {
	if err := c.store.ClearStartTime(ctx, userID); err != nil {
		c.logger.Warn("Failed to clear session start", zap.String("user_id", userID.String()), zap.Error(err))
	}
}

func (c *Controller) clearInfo(ctx context.Context, userID uuid.UUID) {
	if err := c.store.ClearInfo(ctx, userID); err != nil {
		c.logger.Warn("Failed to clear session info", zap.String("user_id", userID.String()), zap.Error(err))
	}
}
