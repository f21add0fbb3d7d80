// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/olegiv/wxdesk/internal/apiclient"
	"github.com/olegiv/wxdesk/internal/kv"
	"github.com/olegiv/wxdesk/internal/metrics"
	"github.com/olegiv/wxdesk/internal/model"
)

// fakeBackend is a scriptable identity API.
type fakeBackend struct {
	me          func(ctx context.Context, credential string) (*model.User, error)
	verify      func(ctx context.Context, a model.ProviderAssertion) (*model.AuthResponse, error)
	adminLogin  func(ctx context.Context, username, password string) (*model.AuthResponse, error)
	logout      func(ctx context.Context, credential string) error
	meCalls     atomic.Int32
	logoutCalls atomic.Int32
}

func (f *fakeBackend) Me(ctx context.Context, credential string) (*model.User, error) {
	f.meCalls.Add(1)
	if f.me == nil {
		return nil, errors.New("unexpected Me call")
	}
	return f.me(ctx, credential)
}

func (f *fakeBackend) VerifyGoogle(ctx context.Context, a model.ProviderAssertion) (*model.AuthResponse, error) {
	return f.verify(ctx, a)
}

func (f *fakeBackend) AdminLogin(ctx context.Context, username, password string) (*model.AuthResponse, error) {
	return f.adminLogin(ctx, username, password)
}

func (f *fakeBackend) Logout(ctx context.Context, credential string) error {
	f.logoutCalls.Add(1)
	if f.logout == nil {
		return nil
	}
	return f.logout(ctx, credential)
}

// failingPersistence fails Set calls once armed.
type failingPersistence struct {
	*kv.MemoryStore
	failSet atomic.Bool
}

func (p *failingPersistence) Set(ctx context.Context, key, value string) error {
	if p.failSet.Load() {
		return errors.New("disk full")
	}
	return p.MemoryStore.Set(ctx, key, value)
}

var (
	observer = model.User{ID: 1, Email: "observer@example.com", IsActive: true}
	admin    = model.User{ID: 2, Email: "admin@example.com", IsAdmin: true, IsActive: true}
	epoch    = time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type harness struct {
	store   *Store
	backend *fakeBackend
	persist *kv.MemoryStore
	clock   *clockwork.FakeClock
	metrics *metrics.Metrics
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		backend: &fakeBackend{},
		persist: kv.NewMemoryStore(),
		clock:   clockwork.NewFakeClockAt(epoch),
		metrics: metrics.New(prometheus.NewRegistry()),
	}
	h.store = New(Options{
		Backend:             h.backend,
		Persistence:         h.persist,
		Clock:               h.clock,
		Logger:              quietLogger(),
		Metrics:             h.metrics,
		LogoutAttempts:      3,
		LogoutRetryInterval: time.Millisecond,
		LogoutTimeout:       time.Second,
	})
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = h.store.Close(ctx)
	})
	return h
}

func (h *harness) persisted(t *testing.T, key string) (string, bool) {
	t.Helper()
	v, ok, err := h.persist.Get(context.Background(), key)
	require.NoError(t, err)
	return v, ok
}

func (h *harness) seed(t *testing.T, token string, u *model.User) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, h.persist.Set(ctx, KeyCredential, token))
	if u != nil {
		b, _ := json.Marshal(u)
		require.NoError(t, h.persist.Set(ctx, KeyProfile, string(b)))
	}
}

// assertConsistent checks the invariants that hold after every operation.
func assertConsistent(t *testing.T, s *Store) {
	t.Helper()
	snap := s.Snapshot()
	cred := s.Credential()

	assert.Equal(t, cred != "" && snap.Identity != nil, snap.Authenticated,
		"authenticated must equal credential && identity")
	if snap.Identity == nil {
		assert.False(t, snap.IsAdmin(), "isAdmin without identity")
	} else {
		assert.Equal(t, snap.Identity.IsAdmin, snap.IsAdmin())
	}
}

func jwtWithExp(t *testing.T, exp time.Time) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "1",
		"exp": exp.Unix(),
	}).SignedString([]byte("test-key"))
	require.NoError(t, err)
	return tok
}

func authResponse(token string, u model.User) *model.AuthResponse {
	return &model.AuthResponse{AccessToken: token, TokenType: "bearer", User: u}
}

func TestNewStoreIsUnresolved(t *testing.T) {
	h := newHarness(t)
	snap := h.store.Snapshot()

	assert.True(t, snap.Resolving)
	assert.False(t, snap.Authenticated)
	assert.Equal(t, StateUnresolved, snap.State)
	assertConsistent(t, h.store)

	select {
	case <-h.store.Ready():
		t.Fatal("Ready closed before Restore")
	default:
	}
}

func TestRestore_NoPersistedCredential(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.persist.Set(context.Background(), KeyProfile, `{"id":1}`))

	h.store.Restore(context.Background())

	snap := h.store.Snapshot()
	assert.False(t, snap.Resolving)
	assert.False(t, snap.Authenticated)
	assert.Equal(t, StateUnauthenticated, snap.State)
	assert.Zero(t, h.backend.meCalls.Load(), "no identity fetch without a credential")

	_, ok := h.persisted(t, KeyProfile)
	assert.False(t, ok, "orphan profile blob should be removed")
	assertConsistent(t, h.store)
}

func TestRestore_ValidCredential(t *testing.T) {
	h := newHarness(t)
	h.seed(t, "tok-valid", &model.User{ID: 1, Email: "stale@example.com"})
	h.backend.me = func(_ context.Context, cred string) (*model.User, error) {
		assert.Equal(t, "tok-valid", cred)
		u := observer
		return &u, nil
	}

	h.store.Restore(context.Background())

	snap := h.store.Snapshot()
	assert.False(t, snap.Resolving)
	assert.True(t, snap.Authenticated)
	assert.Equal(t, StateAuthenticated, snap.State)
	assert.Equal(t, "observer@example.com", snap.Identity.Email)
	assert.Equal(t, "tok-valid", h.store.Credential())

	blob, ok := h.persisted(t, KeyProfile)
	require.True(t, ok)
	assert.Contains(t, blob, "observer@example.com", "cached profile refreshed from the API")

	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.Authenticated))
	assertConsistent(t, h.store)
}

func TestRestore_FailuresPurge(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"unauthorized", &apiclient.APIError{Endpoint: "users.me", Status: 401}},
		{"forbidden", &apiclient.APIError{Endpoint: "users.me", Status: 403}},
		{"server error", &apiclient.APIError{Endpoint: "users.me", Status: 500}},
		{"network error", fmt.Errorf("users.me: %w: connection refused", apiclient.ErrNetwork)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.seed(t, "tok-bad", &observer)
			h.backend.me = func(context.Context, string) (*model.User, error) { return nil, tt.err }

			h.store.Restore(context.Background())

			snap := h.store.Snapshot()
			assert.False(t, snap.Resolving)
			assert.False(t, snap.Authenticated)
			assert.Nil(t, snap.Identity)
			assert.Empty(t, h.store.Credential())

			_, ok := h.persisted(t, KeyCredential)
			assert.False(t, ok, "credential should be purged")
			_, ok = h.persisted(t, KeyProfile)
			assert.False(t, ok, "profile should be purged")
			assertConsistent(t, h.store)
		})
	}
}

func TestRestore_ExpiredCredentialSkipsNetwork(t *testing.T) {
	h := newHarness(t)
	h.seed(t, jwtWithExp(t, epoch.Add(-time.Minute)), &observer)

	h.store.Restore(context.Background())

	assert.Zero(t, h.backend.meCalls.Load())
	assert.False(t, h.store.Snapshot().Authenticated)
	_, ok := h.persisted(t, KeyCredential)
	assert.False(t, ok)
}

func TestRestore_UnexpiredJWTIsChecked(t *testing.T) {
	h := newHarness(t)
	h.seed(t, jwtWithExp(t, epoch.Add(time.Hour)), nil)
	h.backend.me = func(context.Context, string) (*model.User, error) { u := observer; return &u, nil }

	h.store.Restore(context.Background())

	assert.Equal(t, int32(1), h.backend.meCalls.Load())
	assert.True(t, h.store.Snapshot().Authenticated)
}

func TestRestore_CancelledContextStillResolves(t *testing.T) {
	h := newHarness(t)
	h.seed(t, "tok", &observer)
	h.backend.me = func(ctx context.Context, _ string) (*model.User, error) {
		<-ctx.Done()
		return nil, fmt.Errorf("users.me: %w: %w", apiclient.ErrNetwork, ctx.Err())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	h.store.Restore(ctx)

	snap := h.store.Snapshot()
	assert.False(t, snap.Resolving)
	assert.False(t, snap.Authenticated)
	_, ok := h.persisted(t, KeyCredential)
	assert.False(t, ok, "purge must complete even with a cancelled context")
}

func TestRestore_StorageErrorResolves(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.persist.Close())

	h.store.Restore(context.Background())

	assert.False(t, h.store.Snapshot().Resolving)
	assert.False(t, h.store.Snapshot().Authenticated)
}

func TestRestore_RunsOnce(t *testing.T) {
	h := newHarness(t)
	h.seed(t, "tok", nil)
	h.backend.me = func(context.Context, string) (*model.User, error) { u := observer; return &u, nil }

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h.store.Restore(context.Background())
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), h.backend.meCalls.Load())
	select {
	case <-h.store.Ready():
	default:
		t.Fatal("Ready not closed")
	}
}

func TestResolvingWhileRestoreInFlight(t *testing.T) {
	h := newHarness(t)
	h.seed(t, "tok", nil)
	release := make(chan struct{})
	entered := make(chan struct{})
	h.backend.me = func(context.Context, string) (*model.User, error) {
		close(entered)
		<-release
		u := observer
		return &u, nil
	}

	done := make(chan struct{})
	go func() {
		h.store.Restore(context.Background())
		close(done)
	}()

	<-entered
	snap := h.store.Snapshot()
	assert.True(t, snap.Resolving)
	assert.Equal(t, StateUnresolved, snap.State)

	close(release)
	<-done
	assert.False(t, h.store.Snapshot().Resolving)
}

func TestLogin_Success(t *testing.T) {
	h := newHarness(t)
	h.store.Restore(context.Background())

	assertion := model.ProviderAssertion{GoogleID: "g-1", Email: "observer@example.com", Name: "Obs"}
	h.backend.verify = func(_ context.Context, a model.ProviderAssertion) (*model.AuthResponse, error) {
		assert.Equal(t, assertion, a)
		return authResponse("tok-new", observer), nil
	}

	res := h.store.Login(context.Background(), assertion)

	require.True(t, res.Success)
	assert.Equal(t, observer.Email, res.User.Email)
	snap := h.store.Snapshot()
	assert.True(t, snap.Authenticated)
	assert.Equal(t, StateAuthenticated, snap.State)
	assert.False(t, snap.IsAdmin())

	cred, ok := h.persisted(t, KeyCredential)
	assert.True(t, ok)
	assert.Equal(t, "tok-new", cred)
	blob, ok := h.persisted(t, KeyProfile)
	require.True(t, ok)
	var cached model.User
	require.NoError(t, json.Unmarshal([]byte(blob), &cached))
	assert.Equal(t, observer.ID, cached.ID)

	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.SessionTransitions.WithLabelValues("login", "success")))
	assertConsistent(t, h.store)
}

func TestLogin_Failures(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantKind   FailureKind
		wantReason string
	}{
		{"rejected assertion", &apiclient.APIError{Status: 400, Detail: "Invalid Google token"}, KindInvalidAssertion, "Invalid Google token"},
		{"inactive account", &apiclient.APIError{Status: 403, Detail: "Inactive user"}, KindInvalidAssertion, "Inactive user"},
		{"server error", &apiclient.APIError{Status: 500}, KindServer, defaultReasons[KindServer]},
		{"network error", fmt.Errorf("x: %w", apiclient.ErrNetwork), KindNetwork, defaultReasons[KindNetwork]},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.store.Restore(context.Background())
			h.backend.verify = func(context.Context, model.ProviderAssertion) (*model.AuthResponse, error) {
				return nil, tt.err
			}

			res := h.store.Login(context.Background(), model.ProviderAssertion{GoogleID: "g", Email: "e", Name: "n"})

			assert.False(t, res.Success)
			assert.Nil(t, res.User)
			assert.Equal(t, tt.wantKind, res.Kind)
			assert.Equal(t, tt.wantReason, res.Reason)
			assert.Equal(t, apiclient.DetailOf(tt.err), res.Detail)
			assert.False(t, h.store.Snapshot().Authenticated)
			assert.Equal(t, StateUnauthenticated, h.store.Snapshot().State)
			assert.Zero(t, h.persist.Len(), "no partial persistence")
			assertConsistent(t, h.store)
		})
	}
}

func TestLogin_IncompleteAssertionSkipsNetwork(t *testing.T) {
	h := newHarness(t)
	h.store.Restore(context.Background())

	res := h.store.Login(context.Background(), model.ProviderAssertion{Email: "e"})

	assert.False(t, res.Success)
	assert.Equal(t, KindInvalidAssertion, res.Kind)
	assert.NotEmpty(t, res.Reason)
}

func TestLogin_FailureKeepsExistingSession(t *testing.T) {
	h := newHarness(t)
	h.store.Restore(context.Background())
	h.backend.adminLogin = func(_ context.Context, user, _ string) (*model.AuthResponse, error) {
		if user == "admin" {
			return authResponse("tok-admin", admin), nil
		}
		return nil, &apiclient.APIError{Status: 401, Detail: "Incorrect username or password"}
	}

	require.True(t, h.store.AdminLogin(context.Background(), "admin", "pw").Success)
	res := h.store.AdminLogin(context.Background(), "other", "pw")

	assert.False(t, res.Success)
	assert.Equal(t, KindInvalidCredentials, res.Kind)
	assert.Equal(t, "tok-admin", h.store.Credential(), "a failed login leaves state untouched")
	cred, _ := h.persisted(t, KeyCredential)
	assert.Equal(t, "tok-admin", cred)
}

func TestLogin_StorageFailure(t *testing.T) {
	h := newHarness(t)
	fp := &failingPersistence{MemoryStore: kv.NewMemoryStore()}
	fp.failSet.Store(true)
	s := New(Options{Backend: h.backend, Persistence: fp, Clock: h.clock, Logger: quietLogger()})
	s.Restore(context.Background())
	h.backend.verify = func(context.Context, model.ProviderAssertion) (*model.AuthResponse, error) {
		return authResponse("tok", observer), nil
	}

	res := s.Login(context.Background(), model.ProviderAssertion{GoogleID: "g", Email: "e", Name: "n"})

	assert.False(t, res.Success)
	assert.Equal(t, KindStorage, res.Kind)
	assert.False(t, s.Snapshot().Authenticated)
	assert.Zero(t, fp.Len())
}

func TestLogin_EmptyTokenIsServerError(t *testing.T) {
	h := newHarness(t)
	h.store.Restore(context.Background())
	h.backend.verify = func(context.Context, model.ProviderAssertion) (*model.AuthResponse, error) {
		return authResponse("", observer), nil
	}
	res := h.store.Login(context.Background(), model.ProviderAssertion{GoogleID: "g", Email: "e", Name: "n"})
	assert.Equal(t, KindServer, res.Kind)
	assert.False(t, h.store.Snapshot().Authenticated)
}

func TestAdminLogin_Success(t *testing.T) {
	h := newHarness(t)
	h.store.Restore(context.Background())
	h.backend.adminLogin = func(_ context.Context, user, pass string) (*model.AuthResponse, error) {
		assert.Equal(t, "admin", user)
		assert.Equal(t, "secret", pass)
		return authResponse("tok-admin", admin), nil
	}

	res := h.store.AdminLogin(context.Background(), "admin", "secret")

	require.True(t, res.Success)
	assert.True(t, res.User.IsAdmin)
	assert.True(t, h.store.Snapshot().IsAdmin())
	assertConsistent(t, h.store)
}

func TestAdminLogin_EmptyFieldsRejected(t *testing.T) {
	h := newHarness(t)
	res := h.store.AdminLogin(context.Background(), "admin", "")
	assert.Equal(t, KindInvalidCredentials, res.Kind)
}

func TestAuthenticatingState(t *testing.T) {
	h := newHarness(t)
	h.store.Restore(context.Background())

	entered := make(chan struct{})
	release := make(chan struct{})
	h.backend.adminLogin = func(context.Context, string, string) (*model.AuthResponse, error) {
		close(entered)
		<-release
		return nil, &apiclient.APIError{Status: 401}
	}

	done := make(chan Result)
	go func() { done <- h.store.AdminLogin(context.Background(), "admin", "bad") }()

	<-entered
	assert.Equal(t, StateAuthenticating, h.store.Snapshot().State)
	assert.False(t, h.store.Snapshot().Resolving, "login does not reopen the resolving phase")

	close(release)
	<-done
	assert.Equal(t, StateUnauthenticated, h.store.Snapshot().State)
}

func TestConcurrentLogins_LastResponseWins(t *testing.T) {
	h := newHarness(t)
	h.store.Restore(context.Background())

	gates := map[string]chan struct{}{"first": make(chan struct{}), "second": make(chan struct{})}
	var entered sync.WaitGroup
	entered.Add(2)
	h.backend.verify = func(_ context.Context, a model.ProviderAssertion) (*model.AuthResponse, error) {
		entered.Done()
		<-gates[a.GoogleID]
		u := observer
		u.Email = a.Email
		return authResponse("tok-"+a.GoogleID, u), nil
	}

	results := map[string]chan Result{"first": make(chan Result, 1), "second": make(chan Result, 1)}
	for id := range gates {
		go func() {
			results[id] <- h.store.Login(context.Background(), model.ProviderAssertion{GoogleID: id, Email: id + "@example.com", Name: id})
		}()
	}
	entered.Wait()

	// The second request's response arrives first.
	close(gates["second"])
	require.True(t, (<-results["second"]).Success)
	close(gates["first"])
	require.True(t, (<-results["first"]).Success)

	snap := h.store.Snapshot()
	assert.Equal(t, "first@example.com", snap.Identity.Email)
	assert.Equal(t, "tok-first", h.store.Credential())
	cred, _ := h.persisted(t, KeyCredential)
	assert.Equal(t, "tok-first", cred, "persisted state follows the last response")
	assertConsistent(t, h.store)
}

func TestLogout_ClearsEverything(t *testing.T) {
	h := newHarness(t)
	h.store.Restore(context.Background())
	h.backend.verify = func(context.Context, model.ProviderAssertion) (*model.AuthResponse, error) {
		return authResponse("tok", observer), nil
	}
	require.True(t, h.store.Login(context.Background(), model.ProviderAssertion{GoogleID: "g", Email: "e", Name: "n"}).Success)

	var loggedOut atomic.Value
	h.backend.logout = func(_ context.Context, cred string) error {
		loggedOut.Store(cred)
		return nil
	}

	h.store.Logout(context.Background())

	snap := h.store.Snapshot()
	assert.False(t, snap.Authenticated)
	assert.Nil(t, snap.Identity)
	assert.False(t, snap.IsAdmin())
	assert.Zero(t, h.persist.Len())
	assertConsistent(t, h.store)

	require.NoError(t, h.store.Close(context.Background()))
	assert.Equal(t, "tok", loggedOut.Load())
}

func TestLogout_RemoteFailureIsInvisible(t *testing.T) {
	h := newHarness(t)
	h.seed(t, "tok", nil)
	h.backend.me = func(context.Context, string) (*model.User, error) { u := admin; return &u, nil }
	h.store.Restore(context.Background())
	require.True(t, h.store.Snapshot().Authenticated)

	h.backend.logout = func(context.Context, string) error {
		return fmt.Errorf("auth.logout: %w: refused", apiclient.ErrNetwork)
	}

	h.store.Logout(context.Background())

	assert.False(t, h.store.Snapshot().Authenticated)
	assert.Zero(t, h.persist.Len())

	require.NoError(t, h.store.Close(context.Background()))
	assert.Equal(t, int32(3), h.backend.logoutCalls.Load(), "network failures are retried")
}

func TestLogout_PermanentFailureNotRetried(t *testing.T) {
	h := newHarness(t)
	h.seed(t, "tok", nil)
	h.backend.me = func(context.Context, string) (*model.User, error) { u := observer; return &u, nil }
	h.store.Restore(context.Background())
	h.backend.logout = func(context.Context, string) error {
		return &apiclient.APIError{Status: 401}
	}

	h.store.Logout(context.Background())
	require.NoError(t, h.store.Close(context.Background()))

	assert.Equal(t, int32(1), h.backend.logoutCalls.Load())
}

func TestLogout_HungRemoteCall(t *testing.T) {
	h := newHarness(t)
	h.seed(t, "tok", nil)
	h.backend.me = func(context.Context, string) (*model.User, error) { u := observer; return &u, nil }
	h.store.Restore(context.Background())

	h.backend.logout = func(ctx context.Context, _ string) error {
		<-ctx.Done()
		return ctx.Err()
	}

	h.store.Logout(context.Background())

	// Local state is cleared while the remote call is still pending.
	assert.False(t, h.store.Snapshot().Authenticated)
	assert.Zero(t, h.persist.Len())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, h.store.Close(ctx), context.DeadlineExceeded)
}

func TestLogout_WhenSignedOut(t *testing.T) {
	h := newHarness(t)
	h.store.Restore(context.Background())

	h.store.Logout(context.Background())

	require.NoError(t, h.store.Close(context.Background()))
	assert.Zero(t, h.backend.logoutCalls.Load(), "no remote call without a credential")
	assert.False(t, h.store.Snapshot().Authenticated)
}

func TestRefresh_UpdatesIdentity(t *testing.T) {
	h := newHarness(t)
	h.seed(t, "tok", nil)
	calls := 0
	h.backend.me = func(context.Context, string) (*model.User, error) {
		calls++
		u := observer
		if calls > 1 {
			u.FormalName = model.StringPtr("Formal Name")
		}
		return &u, nil
	}
	h.store.Restore(context.Background())

	assert.True(t, h.store.Refresh(context.Background()))

	snap := h.store.Snapshot()
	assert.Equal(t, "Formal Name", snap.Identity.Name())
	assert.Equal(t, "tok", h.store.Credential(), "refresh keeps the credential")
	blob, _ := h.persisted(t, KeyProfile)
	assert.Contains(t, blob, "Formal Name")
}

func TestRefresh_FailureKeepsIdentity(t *testing.T) {
	h := newHarness(t)
	h.seed(t, "tok", nil)
	h.backend.me = func(context.Context, string) (*model.User, error) { u := observer; return &u, nil }
	h.store.Restore(context.Background())

	h.backend.me = func(context.Context, string) (*model.User, error) {
		return nil, fmt.Errorf("users.me: %w", apiclient.ErrNetwork)
	}

	assert.False(t, h.store.Refresh(context.Background()))
	snap := h.store.Snapshot()
	assert.True(t, snap.Authenticated)
	assert.Equal(t, observer.Email, snap.Identity.Email)
}

func TestRefresh_UnauthorizedPurges(t *testing.T) {
	h := newHarness(t)
	h.seed(t, "tok", nil)
	h.backend.me = func(context.Context, string) (*model.User, error) { u := observer; return &u, nil }
	h.store.Restore(context.Background())

	h.backend.me = func(context.Context, string) (*model.User, error) {
		return nil, &apiclient.APIError{Status: 401}
	}
	h.store.Refresh(context.Background())

	assert.False(t, h.store.Snapshot().Authenticated)
	assert.Zero(t, h.persist.Len())
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.ForcedLogouts))
}

func TestRefresh_ExpiredCredentialPurges(t *testing.T) {
	h := newHarness(t)
	h.seed(t, jwtWithExp(t, epoch.Add(time.Minute)), nil)
	h.backend.me = func(context.Context, string) (*model.User, error) { u := observer; return &u, nil }
	h.store.Restore(context.Background())
	require.True(t, h.store.Snapshot().Authenticated)

	h.clock.Advance(2 * time.Minute)
	h.store.Refresh(context.Background())

	assert.False(t, h.store.Snapshot().Authenticated)
	assert.Equal(t, int32(1), h.backend.meCalls.Load(), "expired credential is not sent")
}

func TestRefresh_SignedOutIsNoop(t *testing.T) {
	h := newHarness(t)
	h.store.Restore(context.Background())
	assert.False(t, h.store.Refresh(context.Background()))
	assert.Zero(t, h.backend.meCalls.Load())
}

func TestHandleUnauthorized(t *testing.T) {
	h := newHarness(t)
	h.seed(t, "tok", nil)
	h.backend.me = func(context.Context, string) (*model.User, error) { u := admin; return &u, nil }
	h.store.Restore(context.Background())

	t.Run("stale credential ignored", func(t *testing.T) {
		h.store.HandleUnauthorized("older-token")
		assert.True(t, h.store.Snapshot().Authenticated)
	})

	t.Run("current credential purged", func(t *testing.T) {
		h.store.HandleUnauthorized("tok")
		snap := h.store.Snapshot()
		assert.False(t, snap.Authenticated)
		assert.False(t, snap.IsAdmin())
		assert.Zero(t, h.persist.Len())
		assertConsistent(t, h.store)
	})

	t.Run("repeat is harmless", func(t *testing.T) {
		h.store.HandleUnauthorized("")
		assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.ForcedLogouts))
	})

	assert.Zero(t, h.backend.logoutCalls.Load(), "a rejected credential is not invalidated remotely")
}

func TestUnauthorizedSignalFromAPIClient(t *testing.T) {
	h := newHarness(t)
	h.seed(t, "tok", nil)
	h.backend.me = func(context.Context, string) (*model.User, error) { u := observer; return &u, nil }
	h.store.Restore(context.Background())

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	client := apiclient.New(apiclient.Options{BaseURL: srv.URL, Timeout: time.Second})
	client.SetTokenSource(h.store)
	client.OnUnauthorized(h.store.HandleUnauthorized)

	_, err := client.Dashboard(context.Background())
	assert.ErrorIs(t, err, apiclient.ErrUnauthorized)

	assert.False(t, h.store.Snapshot().Authenticated, "any 401 forces logout")
	assert.Empty(t, h.store.Credential())
	assert.Zero(t, h.persist.Len())
}

func TestSnapshotIsCopy(t *testing.T) {
	h := newHarness(t)
	h.seed(t, "tok", nil)
	h.backend.me = func(context.Context, string) (*model.User, error) { u := observer; return &u, nil }
	h.store.Restore(context.Background())

	snap := h.store.Snapshot()
	snap.Identity.IsAdmin = true

	assert.False(t, h.store.Snapshot().IsAdmin(), "mutating a snapshot must not grant admin")
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "unresolved", StateUnresolved.String())
	assert.Equal(t, "unauthenticated", StateUnauthenticated.String())
	assert.Equal(t, "authenticating", StateAuthenticating.String())
	assert.Equal(t, "authenticated", StateAuthenticated.String())
	assert.Equal(t, "unknown", State(42).String())
}

// TestInvariantUnderRandomOperations drives a fixed pseudo-random sequence of
// operations and checks the invariants after each step.
func TestInvariantUnderRandomOperations(t *testing.T) {
	h := newHarness(t)
	h.seed(t, "tok-0", nil)
	h.backend.me = func(_ context.Context, cred string) (*model.User, error) {
		if len(cred)%2 == 0 {
			return nil, &apiclient.APIError{Status: 401}
		}
		u := observer
		return &u, nil
	}
	h.backend.verify = func(_ context.Context, a model.ProviderAssertion) (*model.AuthResponse, error) {
		if a.GoogleID == "bad" {
			return nil, &apiclient.APIError{Status: 400}
		}
		return authResponse("tok-"+a.GoogleID, observer), nil
	}
	h.backend.adminLogin = func(context.Context, string, string) (*model.AuthResponse, error) {
		return authResponse("tok-adm", admin), nil
	}

	ctx := context.Background()
	h.store.Restore(ctx)
	assertConsistent(t, h.store)

	ops := []func(){
		func() { h.store.Login(ctx, model.ProviderAssertion{GoogleID: "a1", Email: "e", Name: "n"}) },
		func() { h.store.Login(ctx, model.ProviderAssertion{GoogleID: "bad", Email: "e", Name: "n"}) },
		func() { h.store.AdminLogin(ctx, "admin", "pw") },
		func() { h.store.Refresh(ctx) },
		func() { h.store.Logout(ctx) },
		func() { h.store.HandleUnauthorized(h.store.Credential()) },
	}
	seq := []int{0, 3, 1, 4, 2, 3, 5, 0, 0, 4, 4, 2, 1, 3, 5, 5, 0, 3}
	for i, op := range seq {
		ops[op]()
		t.Run(fmt.Sprintf("step %d", i), func(t *testing.T) {
			assertConsistent(t, h.store)
			snap := h.store.Snapshot()
			cred, persistedOK := h.persisted(t, KeyCredential)
			if snap.Authenticated {
				assert.Equal(t, h.store.Credential(), cred)
			} else {
				assert.False(t, persistedOK, "unauthenticated sessions persist nothing")
			}
		})
	}
}
