package domain

import "time"

// Role is the capability tag attached to an account.
type Role string

const (
	RoleUser      Role = "user"
	RoleModerator Role = "moderator"
	RoleAdmin     Role = "admin"
)

// Valid reports whether the role is one of the known values.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleModerator, RoleAdmin:
		return true
	}
	return false
}

// Account is the domain model for a registered principal.
type Account struct {
	ID                 string
	Email              string
	Username           string
	FirstName          string
	LastName           string
	PasswordHash       string
	Role               Role
	Active             bool
	FailedAttemptCount int
	LockedUntil        *time.Time
	LastLoginAt        *time.Time
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// IsLocked reports whether the account is in the locked state at the given
// instant. Lock expiry is implicit: a LockedUntil in the past means unlocked
// even though the field is still set.
func (a *Account) IsLocked(now time.Time) bool {
	return a.LockedUntil != nil && now.Before(*a.LockedUntil)
}

// LockRemaining returns how long the lock has left at the given instant,
// zero if the account is not locked.
func (a *Account) LockRemaining(now time.Time) time.Duration {
	if !a.IsLocked(now) {
		return 0
	}
	return a.LockedUntil.Sub(now)
}
