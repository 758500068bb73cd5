package auth

import (
	"context"
	"net/http"
	"time"
)

// RequestClass buckets requests that share a limit
type RequestClass string

const (
	ClassGet   RequestClass = "get"
	ClassOther RequestClass = "other"
)

// ClassForMethod maps an HTTP method onto its request class
func ClassForMethod(method string) RequestClass {
	if method == http.MethodGet {
		return ClassGet
	}
	return ClassOther
}

// Identity is the subject a window is kept for: an authenticated user or a client address
type Identity struct {
	Kind  string
	Value string
}

// UserIdentity identifies an authenticated caller
func UserIdentity(userID string) Identity {
	return Identity{Kind: "user", Value: userID}
}

// IPIdentity identifies an anonymous caller by address
func IPIdentity(addr string) Identity {
	return Identity{Kind: "ip", Value: addr}
}

func (i Identity) String() string {
	return i.Kind + ":" + i.Value
}

// Limit is the number of requests admitted per window
type Limit struct {
	Requests int
	Window   time.Duration
}

// Limits holds the per-class limits and the global switch
type Limits struct {
	Enabled bool
	Get     Limit
	Other   Limit
}

// DefaultLimits returns 100 reads and 30 writes per minute
func DefaultLimits() Limits {
	return Limits{
		Enabled: true,
		Get:     Limit{Requests: 100, Window: time.Minute},
		Other:   Limit{Requests: 30, Window: time.Minute},
	}
}

func (l Limits) For(class RequestClass) Limit {
	if class == ClassGet {
		return l.Get
	}
	return l.Other
}

// Decision is the outcome of one admission check. Remaining and ResetSeconds
// come from the same window snapshot as Allowed.
type Decision struct {
	Allowed      bool
	Limit        int
	Remaining    int
	ResetSeconds int64
}

// RateLimiter admits or rejects requests per identity and class
type RateLimiter interface {
	Check(ctx context.Context, identity Identity, class RequestClass) Decision
	Enabled() bool
}
