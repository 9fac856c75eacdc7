package model

import "errors"

var (
	ErrNotFound = errors.New("not found")

	ErrRefreshNetwork   = errors.New("refresh request failed")
	ErrRefreshRejected  = errors.New("refresh credential rejected")
	ErrRefreshMalformed = errors.New("malformed refresh response")
	ErrRefreshTimeout   = errors.New("timed out waiting for refresh")
	ErrSessionEnded     = errors.New("session ended during refresh")

	ErrNoExpiryClaim = errors.New("token carries no expiry claim")
)
