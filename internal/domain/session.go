package domain

import (
	"time"

	"github.com/google/uuid"
)

// Position is the role a staff member declares when starting a work session
type Position string

const (
	PositionCashier    Position = "Cashier"
	PositionKitchen    Position = "Kitchen"
	PositionManagement Position = "Management"
)

// Valid reports whether p is a known position
func (p Position) Valid() bool {
	switch p {
	case PositionCashier, PositionKitchen, PositionManagement:
		return true
	}
	return false
}

// SessionStatus is recorded on a session record but never transitioned
type SessionStatus string

const (
	SessionStatusActive   SessionStatus = "active"
	SessionStatusInactive SessionStatus = "inactive"
)

// SessionRecord is the remote, append-only record of a started work session
type SessionRecord struct {
	ID        uuid.UUID     `json:"id" db:"id"`
	UserID    uuid.UUID     `json:"user_id" db:"user_id"`
	Name      string        `json:"name" db:"name"`
	Position  Position      `json:"position" db:"position"`
	LoginTime time.Time     `json:"login_time" db:"login_time"`
	Status    SessionStatus `json:"status" db:"status"`
}

// SessionInfo is the local work session state of one identity
type SessionInfo struct {
	Name      string    `json:"name"`
	Position  Position  `json:"position"`
	Active    bool      `json:"active"`
	StartedAt time.Time `json:"started_at"`
}

// Snapshot returns the denormalized session fields stored on history entries
func (s SessionInfo) Snapshot() SessionSnapshot {
	return SessionSnapshot{Name: s.Name, Position: s.Position}
}

// SessionSnapshot is copied onto every history and report entry
type SessionSnapshot struct {
	Name     string   `json:"name" db:"session_name"`
	Position Position `json:"position" db:"session_position"`
}

// NotificationLevel classifies a user-facing notification
type NotificationLevel string

const (
	NotificationSuccess NotificationLevel = "success"
	NotificationInfo    NotificationLevel = "info"
	NotificationWarning NotificationLevel = "warning"
	NotificationError   NotificationLevel = "error"
)

// Notification is a message surfaced to a staff member outside the request that caused it
type Notification struct {
	Level     NotificationLevel `json:"level"`
	Title     string            `json:"title"`
	Message   string            `json:"message"`
	CreatedAt time.Time         `json:"created_at"`
}
