// Package access carries the per-request access state from the access key
// middleware to the handlers.
//
// This package is designed to be imported by both middleware and handler
// packages without causing import cycles.
package access

import (
	"context"
	"net/http"

	"github.com/intellivoid/coffeehouse-api/internal/domain"
)

// contextKey is a custom type for context keys to avoid collisions.
type contextKey string

const (
	// requestContextKey is the key used to store the access request in context.
	requestContextKey contextKey = "access_request"
)

// Request is the validated caller of one API request. Record is owned by the
// request for its whole lifetime; the per-key lock held by the middleware
// guarantees no other request mutates the same record concurrently.
type Request struct {
	Record           *domain.AccessRecord
	Subscription     *domain.Subscription
	UserSubscription *domain.UserSubscription
	Renewed          bool // Billing cycle rolled over during validation
}

// FromContext retrieves the access request from the context.
//
// Returns nil if the access middleware did not run.
//
// Usage:
//
//	req := access.FromContext(r.Context())
//	if req == nil {
//	    // Route is not behind the access middleware
//	}
func FromContext(ctx context.Context) *Request {
	req, ok := ctx.Value(requestContextKey).(*Request)
	if !ok {
		return nil
	}
	return req
}

// FromRequest retrieves the access request from the HTTP request context.
func FromRequest(r *http.Request) *Request {
	return FromContext(r.Context())
}

// WithRequest stores an access request in the context.
//
// This is called by the access key middleware after validating the
// caller's subscription.
func WithRequest(ctx context.Context, req *Request) context.Context {
	return context.WithValue(ctx, requestContextKey, req)
}
