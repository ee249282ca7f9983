package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"dreampuff/internal/domain"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// MaxNotifications is how many undelivered notifications are kept per identity
const MaxNotifications = 50

// Notifier delivers user-facing notifications. Delivery is best effort.
type Notifier interface {
	Notify(ctx context.Context, userID uuid.UUID, notification domain.Notification)
}

// NotificationFeed stores notifications until the staff app drains them
type NotificationFeed interface {
	Push(ctx context.Context, userID uuid.UUID, notification domain.Notification) error
	Drain(ctx context.Context, userID uuid.UUID) ([]domain.Notification, error)
}

// RedisFeed is a capped per-identity list, newest first
type RedisFeed struct {
	client *redis.Client
}

func NewRedisFeed(client *redis.Client) *RedisFeed {
	return &RedisFeed{client: client}
}

func notificationsKey(userID uuid.UUID) string {
	return keyPrefix + userID.String() + ":notifications"
}

func (f *RedisFeed) Push(ctx context.Context, userID uuid.UUID, notification domain.Notification) error {
	raw, err := json.Marshal(notification)
	if err != nil {
		return fmt.Errorf("failed to encode notification: %w", err)
	}

	key := notificationsKey(userID)
	pipe := f.client.TxPipeline()
	pipe.LPush(ctx, key, raw)
	pipe.LTrim(ctx, key, 0, MaxNotifications-1)
	pipe.Expire(ctx, key, StateTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to push notification: %w", err)
	}
	return nil
}

// Drain returns and removes every pending notification, oldest first
func (f *RedisFeed) Drain(ctx context.Context, userID uuid.UUID) ([]domain.Notification, error) {
	key := notificationsKey(userID)

	pipe := f.client.TxPipeline()
	items := pipe.LRange(ctx, key, 0, -1)
	pipe.Del(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("failed to drain notifications: %w", err)
	}

	raw := items.Val()
	notifications := make([]domain.Notification, 0, len(raw))
	for i := len(raw) - 1; i >= 0; i-- {
		var n domain.Notification
		if err := json.Unmarshal([]byte(raw[i]), &n); err != nil {
			continue
		}
		notifications = append(notifications, n)
	}
	return notifications, nil
}

// LoggingNotifier logs every notification and forwards it to a feed
type LoggingNotifier struct {
	feed   NotificationFeed
	logger *zap.Logger
	now    func() time.Time
}

func NewLoggingNotifier(feed NotificationFeed, logger *zap.Logger) *LoggingNotifier {
	return &LoggingNotifier{
		feed:   feed,
		logger: logger.Named("notifier"),
		now:    time.Now,
	}
}

func (n *LoggingNotifier) Notify(ctx context.Context, userID uuid.UUID, notification domain.Notification) {
	if notification.CreatedAt.IsZero() {
		notification.CreatedAt = n.now().UTC()
	}

	n.logger.Info("Notification",
		zap.String("user_id", userID.String()),
		zap.String("level", string(notification.Level)),
		zap.String("title", notification.Title),
		zap.String("message", notification.Message),
	)

	if err := n.feed.Push(ctx, userID, notification); err != nil {
		n.logger.Warn("Failed to store notification", zap.String("user_id", userID.String()), zap.Error(err))
	}
}
