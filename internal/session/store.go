// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package session holds the authentication state of the web client.
//
// Store is the single source of truth for the current credential and
// identity. It restores a persisted credential at startup, exchanges login
// assertions for credentials, and purges everything on logout or when the
// API rejects the credential. Browser-level sessions (flash messages, OAuth
// state) live in the scs manager built by NewBrowserSessions.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/jonboulle/clockwork"

	"github.com/olegiv/wxdesk/internal/apiclient"
	"github.com/olegiv/wxdesk/internal/metrics"
	"github.com/olegiv/wxdesk/internal/model"
)

// Persisted keys.
const (
	KeyCredential = "access_token"
	KeyProfile    = "user"
)

// persistTimeout bounds local clears that must complete even when the
// caller's context is already done.
const persistTimeout = 5 * time.Second

// Persistence is the durable key-value storage behind the session.
type Persistence interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) error
}

// Backend is the identity API used by the store.
type Backend interface {
	Me(ctx context.Context, credential string) (*model.User, error)
	VerifyGoogle(ctx context.Context, a model.ProviderAssertion) (*model.AuthResponse, error)
	AdminLogin(ctx context.Context, username, password string) (*model.AuthResponse, error)
	Logout(ctx context.Context, credential string) error
}

// Options configures a Store.
type Options struct {
	Backend     Backend
	Persistence Persistence
	Clock       clockwork.Clock
	Logger      *slog.Logger
	Metrics     *metrics.Metrics

	// LogoutAttempts is how many times remote invalidation is tried (default 3).
	LogoutAttempts uint
	// LogoutRetryInterval is the first backoff interval (default 500ms).
	LogoutRetryInterval time.Duration
	// LogoutTimeout bounds all invalidation attempts together (default 30s).
	LogoutTimeout time.Duration
}

// Store is the process-wide session. It is safe for concurrent use.
type Store struct {
	backend Backend
	persist Persistence
	clock   clockwork.Clock
	logger  *slog.Logger
	metrics *metrics.Metrics

	logoutAttempts uint
	logoutInterval time.Duration
	logoutTimeout  time.Duration

	// commitMu serializes persist-then-publish sections so the persisted
	// keys always match the in-memory state. Never held across API calls.
	commitMu sync.Mutex

	mu         sync.RWMutex
	credential string
	identity   *model.User
	resolving  bool
	pending    int    // logins in flight
	generation uint64 // bumped on every credential change

	restoreOnce sync.Once
	ready       chan struct{}

	bg       sync.WaitGroup
	bgCtx    context.Context
	bgCancel context.CancelFunc
}

// New creates an empty, unresolved session store.
func New(opts Options) *Store {
	clock := opts.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{
		backend:        opts.Backend,
		persist:        opts.Persistence,
		clock:          clock,
		logger:         logger,
		metrics:        opts.Metrics,
		logoutAttempts: opts.LogoutAttempts,
		logoutInterval: opts.LogoutRetryInterval,
		logoutTimeout:  opts.LogoutTimeout,
		resolving:      true,
		ready:          make(chan struct{}),
	}
	if s.logoutAttempts == 0 {
		s.logoutAttempts = 3
	}
	if s.logoutInterval <= 0 {
		s.logoutInterval = 500 * time.Millisecond
	}
	if s.logoutTimeout <= 0 {
		s.logoutTimeout = 30 * time.Second
	}
	s.bgCtx, s.bgCancel = context.WithCancel(context.Background())
	s.metrics.SetAuthenticated(false)
	return s
}

// Credential returns the current bearer credential, or "" when signed out.
func (s *Store) Credential() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.credential
}

// Snapshot returns a read-only copy of the current session.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := Snapshot{
		Resolving:     s.resolving,
		Authenticated: s.credential != "" && s.identity != nil,
	}
	if s.identity != nil {
		u := *s.identity
		snap.Identity = &u
	}
	switch {
	case s.resolving:
		snap.State = StateUnresolved
	case snap.Authenticated:
		snap.State = StateAuthenticated
	case s.pending > 0:
		snap.State = StateAuthenticating
	default:
		snap.State = StateUnauthenticated
	}
	return snap
}

// Ready is closed once the initial session determination has completed.
func (s *Store) Ready() <-chan struct{} {
	return s.ready
}

// Restore performs the initial session determination. Only the first call
// does anything; it never fails and always ends the resolving phase.
func (s *Store) Restore(ctx context.Context) {
	s.restoreOnce.Do(func() {
		defer s.finishResolving()
		outcome := s.restore(ctx)
		s.metrics.Transition("restore", outcome)
		s.logger.Info("session restored", "outcome", outcome)
	})
}

func (s *Store) restore(ctx context.Context) string {
	s.mu.RLock()
	gen := s.generation
	s.mu.RUnlock()

	token, ok, err := s.persist.Get(ctx, KeyCredential)
	if err != nil {
		s.logger.Warn("reading persisted credential", "error", err)
		return "storage_error"
	}
	if !ok || token == "" {
		s.discardRestored(ctx, gen)
		return "absent"
	}

	if s.expired(token) {
		s.discardRestored(ctx, gen)
		return "expired"
	}

	user, err := s.backend.Me(ctx, token)
	if err != nil {
		s.logger.Info("persisted credential not accepted", "error", err)
		s.discardRestored(ctx, gen)
		return outcomeOf(err)
	}

	s.commitMu.Lock()
	defer s.commitMu.Unlock()

	s.mu.Lock()
	if s.generation != gen {
		// A login completed while the check was in flight; it wins.
		s.mu.Unlock()
		return "superseded"
	}
	s.credential = token
	s.identity = user
	s.generation++
	s.mu.Unlock()

	s.storeProfile(ctx, user)
	s.metrics.SetAuthenticated(true)
	return "authenticated"
}

// discardRestored removes the persisted keys unless a login replaced them meanwhile.
func (s *Store) discardRestored(ctx context.Context, gen uint64) {
	s.commitMu.Lock()
	defer s.commitMu.Unlock()

	s.mu.RLock()
	unchanged := s.generation == gen
	s.mu.RUnlock()
	if unchanged {
		s.clearPersisted(ctx)
	}
}

func (s *Store) finishResolving() {
	s.mu.Lock()
	s.resolving = false
	s.mu.Unlock()
	close(s.ready)
}

// Login exchanges a provider assertion for a backend credential.
func (s *Store) Login(ctx context.Context, a model.ProviderAssertion) Result {
	if !a.Complete() {
		s.metrics.Transition("login", string(KindInvalidAssertion))
		return failure(KindInvalidAssertion, "")
	}
	return s.authenticate(ctx, "login", KindInvalidAssertion, func(ctx context.Context) (*model.AuthResponse, error) {
		return s.backend.VerifyGoogle(ctx, a)
	})
}

// AdminLogin exchanges static administrator credentials for a backend credential.
func (s *Store) AdminLogin(ctx context.Context, username, password string) Result {
	if username == "" || password == "" {
		s.metrics.Transition("admin_login", string(KindInvalidCredentials))
		return failure(KindInvalidCredentials, "")
	}
	return s.authenticate(ctx, "admin_login", KindInvalidCredentials, func(ctx context.Context) (*model.AuthResponse, error) {
		return s.backend.AdminLogin(ctx, username, password)
	})
}

func (s *Store) authenticate(ctx context.Context, event string, rejected FailureKind,
	exchange func(context.Context) (*model.AuthResponse, error)) Result {

	s.mu.Lock()
	s.pending++
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.pending--
		s.mu.Unlock()
	}()

	resp, err := exchange(ctx)
	if err != nil {
		kind := classify(err, rejected)
		s.metrics.Transition(event, string(kind))
		s.logger.Info("login rejected", "event", event, "kind", kind, "error", err)
		return failure(kind, apiclient.DetailOf(err))
	}
	if resp.AccessToken == "" {
		s.metrics.Transition(event, string(KindServer))
		return failure(KindServer, "")
	}

	user := resp.User

	s.commitMu.Lock()
	defer s.commitMu.Unlock()

	if err := s.persistSession(ctx, resp.AccessToken, &user); err != nil {
		s.logger.Error("persisting session", "error", err)
		s.restorePersisted(ctx)
		s.metrics.Transition(event, string(KindStorage))
		return failure(KindStorage, "")
	}

	s.mu.Lock()
	s.credential = resp.AccessToken
	s.identity = &user
	s.generation++
	s.mu.Unlock()

	s.metrics.Transition(event, "success")
	s.metrics.SetAuthenticated(true)
	s.logger.Info("user signed in", "event", event, "user_id", user.ID, "email", user.Email, "admin", user.IsAdmin)

	out := user
	return Result{Success: true, User: &out}
}

// Logout clears the session locally and then invalidates the credential
// remotely in the background. It always ends unauthenticated.
func (s *Store) Logout(ctx context.Context) {
	s.commitMu.Lock()
	s.mu.Lock()
	token := s.credential
	var userID int64
	if s.identity != nil {
		userID = s.identity.ID
	}
	s.credential = ""
	s.identity = nil
	s.generation++
	s.mu.Unlock()
	s.clearPersisted(ctx)
	s.commitMu.Unlock()

	s.metrics.SetAuthenticated(false)
	s.metrics.Transition("logout", "success")
	s.logger.Info("user signed out", "user_id", userID)

	if token != "" {
		s.invalidateRemote(token)
	}
}

func (s *Store) invalidateRemote(token string) {
	s.bg.Add(1)
	go func() {
		defer s.bg.Done()

		ctx, cancel := context.WithTimeout(s.bgCtx, s.logoutTimeout)
		defer cancel()

		b := backoff.NewExponentialBackOff()
		b.InitialInterval = s.logoutInterval

		_, err := backoff.Retry(ctx, func() (struct{}, error) {
			err := s.backend.Logout(ctx, token)
			if err != nil && !errors.Is(err, apiclient.ErrNetwork) && !errors.Is(err, apiclient.ErrServer) {
				return struct{}{}, backoff.Permanent(err)
			}
			return struct{}{}, err
		}, backoff.WithBackOff(b), backoff.WithMaxTries(s.logoutAttempts))

		if err != nil {
			s.logger.Warn("remote logout failed", "error", err)
			return
		}
		s.logger.Debug("remote logout acknowledged")
	}()
}

// Refresh re-fetches the identity with the current credential. On failure
// the cached identity is kept; a rejected or expired credential is purged.
// It reports whether the identity was updated.
func (s *Store) Refresh(ctx context.Context) bool {
	s.mu.RLock()
	token, gen := s.credential, s.generation
	s.mu.RUnlock()
	if token == "" {
		return false
	}

	if s.expired(token) {
		s.logger.Info("credential expired")
		s.purge(ctx, token, "expired")
		return false
	}

	user, err := s.backend.Me(ctx, token)
	if err != nil {
		if errors.Is(err, apiclient.ErrUnauthorized) {
			s.HandleUnauthorized(token)
		} else {
			s.metrics.Transition("refresh", outcomeOf(err))
			s.logger.Warn("refreshing identity", "error", err)
		}
		return false
	}

	s.commitMu.Lock()
	defer s.commitMu.Unlock()

	s.mu.Lock()
	if s.generation != gen {
		s.mu.Unlock()
		s.metrics.Transition("refresh", "superseded")
		return false
	}
	s.identity = user
	s.mu.Unlock()

	s.storeProfile(ctx, user)
	s.metrics.Transition("refresh", "success")
	return true
}

// HandleUnauthorized is the global reaction to a 401: the rejected credential
// and its identity are purged. A stale rejection of a credential that is no
// longer current is ignored; "" matches any credential.
func (s *Store) HandleUnauthorized(rejected string) {
	s.purge(context.Background(), rejected, "unauthorized")
}

func (s *Store) purge(ctx context.Context, rejected, event string) {
	s.commitMu.Lock()
	s.mu.Lock()
	if s.credential == "" || (rejected != "" && rejected != s.credential) {
		s.mu.Unlock()
		s.commitMu.Unlock()
		return
	}
	s.credential = ""
	s.identity = nil
	s.generation++
	s.mu.Unlock()
	s.clearPersisted(ctx)
	s.commitMu.Unlock()

	s.metrics.SetAuthenticated(false)
	s.metrics.ForcedLogout()
	s.metrics.Transition(event, "purged")
	s.logger.Warn("session purged", "reason", event)
}

// Close waits for background invalidation calls. When ctx ends first the
// calls are cancelled.
func (s *Store) Close(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.bg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.bgCancel()
		return nil
	case <-ctx.Done():
		s.bgCancel()
		<-done
		return ctx.Err()
	}
}

func (s *Store) persistSession(ctx context.Context, token string, user *model.User) error {
	blob, err := json.Marshal(user)
	if err != nil {
		return err
	}
	if err := s.persist.Set(ctx, KeyCredential, token); err != nil {
		return err
	}
	return s.persist.Set(ctx, KeyProfile, string(blob))
}

// restorePersisted rewrites the persisted keys from the in-memory session
// after a failed write. Caller holds commitMu.
func (s *Store) restorePersisted(ctx context.Context) {
	s.mu.RLock()
	token, user := s.credential, s.identity
	s.mu.RUnlock()

	if token == "" || user == nil {
		s.clearPersisted(ctx)
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()
	if err := s.persistSession(ctx, token, user); err != nil {
		s.logger.Error("restoring persisted session", "error", err)
	}
}

func (s *Store) storeProfile(ctx context.Context, user *model.User) {
	blob, err := json.Marshal(user)
	if err != nil {
		return
	}
	if err := s.persist.Set(ctx, KeyProfile, string(blob)); err != nil {
		s.logger.Warn("caching profile", "error", err)
	}
}

// clearPersisted removes both keys even if ctx is already done.
func (s *Store) clearPersisted(ctx context.Context) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()
	for _, key := range []string{KeyCredential, KeyProfile} {
		if err := s.persist.Remove(ctx, key); err != nil {
			s.logger.Error("removing persisted key", "key", key, "error", err)
		}
	}
}
