package model

import (
	"context"
	"errors"
)

// Refresher exchanges a refresh credential for a new token.
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (Token, error)
}

// Outcome is the result of one refresh attempt as seen by a single caller.
type Outcome struct {
	AttemptID uint64
	Token     Token
	Err       error
}

// Success reports whether the refresh produced a new token.
func (o Outcome) Success() bool {
	return o.Err == nil
}

// Reason returns a short label of the failure kind, used in logs and metrics.
func (o Outcome) Reason() string {
	switch {
	case o.Err == nil:
		return "success"
	case errors.Is(o.Err, ErrRefreshRejected):
		return "rejected"
	case errors.Is(o.Err, ErrRefreshMalformed):
		return "malformed"
	case errors.Is(o.Err, ErrRefreshTimeout):
		return "timeout"
	case errors.Is(o.Err, ErrRefreshNetwork):
		return "network"
	case errors.Is(o.Err, ErrSessionEnded):
		return "ended"
	default:
		return "unknown"
	}
}
