package lesson

import (
	"time"

	"github.com/pkg/errors"
	"golang.org/x/crypto/bcrypt"
)

// EffectiveAccessConfig is the lesson's access settings after applying a
// user override. It is computed once per request and passed by value.
type EffectiveAccessConfig struct {
	Available    time.Time
	Deadline     time.Time
	TimeLimit    time.Duration
	MaxAttempts  int
	Retake       bool
	PasswordHash string
}

// EffectiveAccess merges o (may be nil) over l.
func EffectiveAccess(l Lesson, o *Override) EffectiveAccessConfig {
	c := EffectiveAccessConfig{
		Available:    l.Available,
		Deadline:     l.Deadline,
		TimeLimit:    l.TimeLimit,
		MaxAttempts:  l.MaxAttempts,
		Retake:       l.Retake,
		PasswordHash: l.PasswordHash,
	}
	if o == nil {
		return c
	}
	if o.Available != nil {
		c.Available = *o.Available
	}
	if o.Deadline != nil {
		c.Deadline = *o.Deadline
	}
	if o.TimeLimit != nil {
		c.TimeLimit = *o.TimeLimit
	}
	if o.MaxAttempts != nil {
		c.MaxAttempts = *o.MaxAttempts
	}
	if o.Retake != nil {
		c.Retake = *o.Retake
	}
	if o.PasswordHash != nil {
		c.PasswordHash = *o.PasswordHash
	}
	return c
}

// CheckOpen fails outside the available/deadline window.
func (c EffectiveAccessConfig) CheckOpen(now time.Time) error {
	if !c.Available.IsZero() && now.Before(c.Available) {
		return errors.Wrapf(ErrNotAvailable, "opens %s", c.Available.UTC().Format(time.RFC3339))
	}
	if !c.Deadline.IsZero() && now.After(c.Deadline) {
		return errors.Wrapf(ErrDeadlinePassed, "closed %s", c.Deadline.UTC().Format(time.RFC3339))
	}
	return nil
}

// CheckPassword accepts any password when none is set.
func (c EffectiveAccessConfig) CheckPassword(pw string) error {
	if c.PasswordHash == "" {
		return nil
	}
	if err := bcrypt.CompareHashAndPassword([]byte(c.PasswordHash), []byte(pw)); err != nil {
		return ErrWrongPassword
	}
	return nil
}

// HashPassword hashes a lesson password for storage. An empty password
// clears protection.
func HashPassword(pw string) (string, error) {
	if pw == "" {
		return "", nil
	}
	h, err := bcrypt.GenerateFromPassword([]byte(pw), bcrypt.DefaultCost)
	if err != nil {
		return "", errors.Wrap(err, "hash password")
	}
	return string(h), nil
}
