package events

import (
	"time"

	"github.com/spec-kit/blog-auth-service/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventAccountRegistered EventType = "account_registered"
	EventLoginSucceeded    EventType = "login_succeeded"
	EventLoginFailed       EventType = "login_failed"
	EventAccountLocked     EventType = "account_locked"
	EventPasswordChanged   EventType = "password_changed"
)

// Event represents a security event emitted by the auth service.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	AccountID string      `json:"account_id"`
	Email     string      `json:"email"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// AccountRegisteredPayload payload.
type AccountRegisteredPayload struct {
	Username string      `json:"username"`
	Role     domain.Role `json:"role"`
}

// LoginSucceededPayload payload.
type LoginSucceededPayload struct {
	Username string `json:"username"`
}

// LoginFailedPayload payload.
type LoginFailedPayload struct {
	FailedAttemptCount int `json:"failed_attempt_count"`
}

// AccountLockedPayload payload.
type AccountLockedPayload struct {
	FailedAttemptCount int       `json:"failed_attempt_count"`
	LockedUntil        time.Time `json:"locked_until"`
}

// PasswordChangedPayload payload.
type PasswordChangedPayload struct {
	ViaReset bool `json:"via_reset"`
}
