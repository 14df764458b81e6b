// Package middleware contains HTTP middleware for the CoffeeHouse API.
//
// Middleware functions follow the standard Go pattern of wrapping http.Handler.
// They are designed to be composed using Stack.
package middleware

import (
	"context"
	"encoding/hex"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/intellivoid/coffeehouse-api/internal/access"
	"github.com/intellivoid/coffeehouse-api/internal/domain"
	"github.com/intellivoid/coffeehouse-api/internal/handler"
	"github.com/intellivoid/coffeehouse-api/internal/keylock"
	"github.com/intellivoid/coffeehouse-api/internal/repository"
	"github.com/intellivoid/coffeehouse-api/internal/service"
)

// AccessKeyParam is the request parameter carrying the access key when no
// Authorization header is sent.
const AccessKeyParam = "access_key"

// DefaultLockWait bounds how long a request waits for another request with
// the same access key to finish.
const DefaultLockWait = 10 * time.Second

// Validator validates an access record's subscription.
type Validator interface {
	Validate(ctx context.Context, rec *domain.AccessRecord) (*service.ValidationResult, error)
}

// AccessMiddleware authenticates the access key of a request, serialises
// requests for the same key and validates the key's subscription.
type AccessMiddleware struct {
	store     service.AccessRecordStore
	validator Validator
	locker    keylock.Locker
	responder *handler.Responder
	logger    *slog.Logger
	lockWait  time.Duration
}

// NewAccessMiddleware creates a new AccessMiddleware. lockWait <= 0 selects
// DefaultLockWait.
func NewAccessMiddleware(
	store service.AccessRecordStore,
	validator Validator,
	locker keylock.Locker,
	responder *handler.Responder,
	logger *slog.Logger,
	lockWait time.Duration,
) *AccessMiddleware {
	if lockWait <= 0 {
		lockWait = DefaultLockWait
	}
	return &AccessMiddleware{
		store:     store,
		validator: validator,
		locker:    locker,
		responder: responder,
		logger:    logger,
		lockWait:  lockWait,
	}
}

// RequireAccess is middleware that requires a valid access key with a
// valid subscription.
//
// Flow:
//
//	Request -> RequireAccess -> Handler
//	           |
//	           +-> Parse params, read the access key
//	           +-> Lock the key (held until the handler returns)
//	           +-> Load the access record
//	           +-> Validate the subscription (sync, billing, persist)
//	           +-> Store access.Request in context
func (m *AccessMiddleware) RequireAccess(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		const op = "access.require"

		r, params, err := handler.BindParams(r)
		if err != nil {
			m.responder.Error(w, r, err)
			return
		}

		key := accessKey(r, params)
		if key == "" {
			m.responder.Error(w, r, domain.Unauthorized(op, "An access key is required"))
			return
		}

		lockCtx, cancel := context.WithTimeout(r.Context(), m.lockWait)
		unlock, err := m.locker.Lock(lockCtx, lockKey(key))
		cancel()
		if err != nil {
			if errors.Is(err, keylock.ErrLockTimeout) {
				m.responder.Error(w, r, domain.RateLimit(op))
				return
			}
			m.responder.Error(w, r, domain.Internal(err, op, "failed to lock access key"))
			return
		}
		defer unlock()

		rec, err := m.store.GetAccessRecord(r.Context(), key)
		if errors.Is(err, repository.ErrNotFound) {
			m.responder.Error(w, r, domain.Unauthorized(op, "The given access key is invalid"))
			return
		}
		if err != nil {
			m.responder.Error(w, r, domain.Internal(err, op, "failed to load access record"))
			return
		}
		if !rec.IsActive() {
			m.responder.Error(w, r, domain.Forbidden(op, "This access key has been disabled"))
			return
		}

		result, err := m.validator.Validate(r.Context(), rec)
		if err != nil {
			m.responder.Error(w, r, err)
			return
		}

		req := &access.Request{
			Record:           rec,
			Subscription:     result.Subscription,
			UserSubscription: result.UserSubscription,
			Renewed:          result.Billing == service.BillingRenewed,
		}
		next.ServeHTTP(w, r.WithContext(access.WithRequest(r.Context(), req)))
	})
}

// accessKey reads the key from a Bearer Authorization header, falling back
// to the access_key parameter.
func accessKey(r *http.Request, params handler.Params) string {
	if auth := r.Header.Get("Authorization"); auth != "" {
		if scheme, token, ok := strings.Cut(auth, " "); ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
	}
	return strings.TrimSpace(params.Get(AccessKeyParam))
}

// lockKey keeps raw access keys out of the lock backend.
func lockKey(key string) string {
	return "access:" + hex.EncodeToString(repository.HashAccessKey(key))
}

// =============================================================================
// Middleware Stack Helpers
// =============================================================================

// Stack composes multiple middleware functions into a single middleware.
//
// Middleware is applied in the order provided, meaning the first middleware
// in the slice is the outermost (runs first on request, last on response).
//
// Example:
//
//	stack := Stack(requestID, recoverer, accessMw.RequireAccess)
//	mux.Handle("POST /v1/coffeehouse/nlp/sentiment", stack(sentimentHandler))
func Stack(middlewares ...func(http.Handler) http.Handler) func(http.Handler) http.Handler {
	return func(final http.Handler) http.Handler {
		for i := len(middlewares) - 1; i >= 0; i-- {
			final = middlewares[i](final)
		}
		return final
	}
}

// Ensure middleware functions have correct signature
var _ func(http.Handler) http.Handler = (&AccessMiddleware{}).RequireAccess
