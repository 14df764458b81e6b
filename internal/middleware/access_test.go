package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/intellivoid/coffeehouse-api/internal/access"
	"github.com/intellivoid/coffeehouse-api/internal/domain"
	"github.com/intellivoid/coffeehouse-api/internal/handler"
	"github.com/intellivoid/coffeehouse-api/internal/keylock"
	"github.com/intellivoid/coffeehouse-api/internal/repository"
	"github.com/intellivoid/coffeehouse-api/internal/service"
)

// =============================================================================
// Test Fakes
// =============================================================================

type fakeStore struct {
	mu      sync.Mutex
	records map[string]*domain.AccessRecord
	err     error
}

func (s *fakeStore) GetAccessRecord(ctx context.Context, key string) (*domain.AccessRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	rec, ok := s.records[key]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copied := *rec
	copied.Variables = rec.Variables.Clone()
	return &copied, nil
}

func (s *fakeStore) UpdateAccessRecord(ctx context.Context, rec *domain.AccessRecord) error {
	return nil
}

type fakeValidator struct {
	result *service.ValidationResult
	err    error
	calls  int
}

func (v *fakeValidator) Validate(ctx context.Context, rec *domain.AccessRecord) (*service.ValidationResult, error) {
	v.calls++
	if v.err != nil {
		return nil, v.err
	}
	return v.result, nil
}

func newAccessMiddleware(store *fakeStore, validator *fakeValidator, locker keylock.Locker) *AccessMiddleware {
	return NewAccessMiddleware(store, validator, locker, handler.NewResponder(discardLogger(), false), discardLogger(), 50*time.Millisecond)
}

func activeStore() *fakeStore {
	return &fakeStore{records: map[string]*domain.AccessRecord{
		"good-key": {ID: 7, Status: domain.AccessRecordStatusActive, Variables: domain.Variables{}},
		"disabled": {ID: 8, Status: domain.AccessRecordStatusDisabled, Variables: domain.Variables{}},
	}}
}

func okValidator() *fakeValidator {
	return &fakeValidator{result: &service.ValidationResult{
		State:        service.StateDone,
		Subscription: &domain.Subscription{ID: 3, Plan: "basic"},
		Billing:      service.BillingRenewed,
	}}
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) handler.Envelope {
	t.Helper()
	var env handler.Envelope
	if err := json.NewDecoder(rec.Body).Decode(&env); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	return env
}

// =============================================================================
// RequireAccess Tests
// =============================================================================

func TestRequireAccess_BearerToken(t *testing.T) {
	validator := okValidator()
	mw := newAccessMiddleware(activeStore(), validator, keylock.NewMemory())

	var got *access.Request
	wrapped := mw.RequireAccess(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = access.FromRequest(r)
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest("POST", "/v1/coffeehouse/nlp/sentiment", nil)
	req.Header.Set("Authorization", "Bearer good-key")
	rec := httptest.NewRecorder()
	wrapped.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if got == nil || got.Record.ID != 7 {
		t.Fatalf("expected access request for record 7, got %+v", got)
	}
	if got.Subscription.Plan != "basic" || !got.Renewed {
		t.Errorf("unexpected access request: %+v", got)
	}
	if validator.calls != 1 {
		t.Errorf("expected one validation, got %d", validator.calls)
	}
}

func TestRequireAccess_KeyFromParams(t *testing.T) {
	mw := newAccessMiddleware(activeStore(), okValidator(), keylock.NewMemory())

	var input string
	wrapped := mw.RequireAccess(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		params, err := handler.RequestParams(r)
		if err != nil {
			t.Errorf("params: %v", err)
		}
		input = params.Get("input")
	}))

	req := httptest.NewRequest("POST", "/v1/coffeehouse/nlp/sentiment", strings.NewReader(`{"access_key":"good-key","input":"hello"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	wrapped.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if input != "hello" {
		t.Errorf("expected body params to reach the handler, got %q", input)
	}
}

func TestRequireAccess_Failures(t *testing.T) {
	tests := []struct {
		name       string
		key        string
		store      *fakeStore
		validator  *fakeValidator
		wantStatus int
		wantCode   int
	}{
		{"missing key", "", activeStore(), okValidator(), http.StatusUnauthorized, domain.ErrCodeGeneric},
		{"unknown key", "nope", activeStore(), okValidator(), http.StatusUnauthorized, domain.ErrCodeGeneric},
		{"disabled key", "disabled", activeStore(), okValidator(), http.StatusForbidden, domain.ErrCodeGeneric},
		{
			"store failure", "good-key",
			&fakeStore{err: errors.New("connection reset")}, okValidator(),
			http.StatusInternalServerError, domain.ErrCodeUnexpected,
		},
		{
			"payment declined", "good-key", activeStore(),
			&fakeValidator{err: &service.ValidationError{
				State: service.StateBillingCheck,
				Err:   domain.Errorf(domain.EPAYMENT, "billing.process", "declined"),
			}},
			http.StatusPaymentRequired, domain.ErrCodeGeneric,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mw := newAccessMiddleware(tt.store, tt.validator, keylock.NewMemory())
			called := false
			wrapped := mw.RequireAccess(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				called = true
			}))

			req := httptest.NewRequest("POST", "/v1/coffeehouse/nlp/sentiment", nil)
			if tt.key != "" {
				req.Header.Set("Authorization", "Bearer "+tt.key)
			}
			rec := httptest.NewRecorder()
			wrapped.ServeHTTP(rec, req)

			if called {
				t.Error("handler should not run")
			}
			if rec.Code != tt.wantStatus {
				t.Fatalf("expected %d, got %d", tt.wantStatus, rec.Code)
			}
			env := decodeEnvelope(t, rec)
			if env.Success || env.ResponseCode != tt.wantStatus {
				t.Errorf("unexpected envelope: %+v", env)
			}
			if env.Error.ErrorCode != tt.wantCode {
				t.Errorf("expected error code %d, got %d", tt.wantCode, env.Error.ErrorCode)
			}
		})
	}
}

func TestRequireAccess_LockTimeout(t *testing.T) {
	locker := keylock.NewMemory()
	unlock, err := locker.Lock(context.Background(), lockKey("good-key"))
	if err != nil {
		t.Fatalf("lock: %v", err)
	}
	defer unlock()

	mw := newAccessMiddleware(activeStore(), okValidator(), locker)
	wrapped := mw.RequireAccess(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler should not run while the key is locked")
	}))

	req := httptest.NewRequest("POST", "/v1/coffeehouse/nlp/sentiment", nil)
	req.Header.Set("Authorization", "Bearer good-key")
	rec := httptest.NewRecorder()
	wrapped.ServeHTTP(rec, req)

	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}
}

func TestLockKey_DoesNotContainRawKey(t *testing.T) {
	key := lockKey("secret-access-key")
	if strings.Contains(key, "secret-access-key") {
		t.Errorf("lock key leaks the access key: %s", key)
	}
	if key != lockKey("secret-access-key") {
		t.Error("lock key should be deterministic")
	}
}

func TestStack_Order(t *testing.T) {
	var order []string
	mark := func(name string) func(http.Handler) http.Handler {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}

	h := Stack(mark("a"), mark("b"), mark("c"))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		order = append(order, "handler")
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/", nil))

	if got := strings.Join(order, ","); got != "a,b,c,handler" {
		t.Errorf("unexpected order: %s", got)
	}
}
