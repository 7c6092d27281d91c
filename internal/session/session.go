// Package session keeps the authenticated principal and its bearer token,
// persists them across restarts and validates them on startup.
package session

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/singleflight"

	"budgetsync/internal/api"
	"budgetsync/internal/core"
	"budgetsync/internal/log"
	"budgetsync/internal/storage"
	"budgetsync/internal/store"
)

var (
	ErrNotAuthenticated = errors.New("not authenticated")
	ErrAlreadyVerified  = errors.New("email already verified")
)

type Phase int

const (
	Anonymous Phase = iota
	Authenticating
	Authenticated
)

func (p Phase) String() string {
	switch p {
	case Authenticating:
		return "authenticating"
	case Authenticated:
		return "authenticated"
	default:
		return "anonymous"
	}
}

// State is the in-memory session.
type State struct {
	User   *core.User
	Token  string
	Status core.Status
	Error  string

	// Verification tracks the resend-verification-email request separately.
	Verification      core.Status
	VerificationError string
}

func (s State) Phase() Phase {
	switch {
	case s.User != nil && s.Token != "":
		return Authenticated
	case s.Status == core.StatusLoading:
		return Authenticating
	default:
		return Anonymous
	}
}

func (s State) clone() State {
	if s.User != nil {
		u := *s.User
		s.User = &u
	}
	return s
}

// Client is the part of the API the session needs.
type Client interface {
	api.AuthAPI
	api.Authorizer
}

type Store struct {
	client Client
	kv     storage.KV
	logger *log.Logger
	m      *store.Machine[State]
	group  singleflight.Group
}

func New(client Client, kv storage.KV, logger *log.Logger) *Store {
	if logger == nil {
		logger = log.Discard()
	}
	logger = logger.WithComponent(log.ComponentSession)
	return &Store{
		client: client,
		kv:     kv,
		logger: logger,
		m:      store.NewMachine(log.ComponentSession, State{}, logger),
	}
}

// State returns a copy of the current session.
func (s *Store) State() State { return s.m.State().clone() }

func (s *Store) Phase() Phase { return s.m.State().Phase() }

// User returns the authenticated user, if any.
func (s *Store) User() (core.User, bool) {
	st := s.m.State()
	if st.User == nil {
		return core.User{}, false
	}
	return *st.User, true
}

func (s *Store) Subscribe(fn func(State)) func() {
	return s.m.Subscribe(func(st State) { fn(st.clone()) })
}

func (s *Store) Observe(fn func(core.Transition)) { s.m.Observe(fn) }

func authPending(st State) State {
	st.Status = core.StatusLoading
	st.Error = ""
	return st
}

func authRejected(st State, msg string) State {
	st.Status = core.StatusFailed
	st.Error = msg
	return st
}

func authFulfilled(st State, res api.AuthResult) State {
	u := res.User
	st.User = &u
	st.Token = res.Token
	st.Status = core.StatusSucceeded
	st.Error = ""
	return st
}

// Login exchanges credentials for a bearer token.
func (s *Store) Login(ctx context.Context, email, password string) (core.User, error) {
	op := store.Op[State, api.AuthResult]{
		Name:      "session/login",
		Pending:   authPending,
		Fulfilled: authFulfilled,
		Rejected:  authRejected,
	}
	res, err := store.Run(ctx, s.m, op, func(ctx context.Context) (api.AuthResult, error) {
		return s.authenticate(ctx, func(ctx context.Context) (api.AuthResult, error) {
			return s.client.Login(ctx, email, password)
		})
	})
	return res.User, err
}

// Register creates an account and signs it in.
func (s *Store) Register(ctx context.Context, in api.RegisterInput) (core.User, error) {
	op := store.Op[State, api.AuthResult]{
		Name:      "session/register",
		Pending:   authPending,
		Fulfilled: authFulfilled,
		Rejected:  authRejected,
	}
	res, err := store.Run(ctx, s.m, op, func(ctx context.Context) (api.AuthResult, error) {
		return s.authenticate(ctx, func(ctx context.Context) (api.AuthResult, error) {
			return s.client.Register(ctx, in)
		})
	})
	return res.User, err
}

// authenticate primes the CSRF cookie, runs the credential exchange and
// installs the resulting credentials.
func (s *Store) authenticate(ctx context.Context, exchange func(context.Context) (api.AuthResult, error)) (api.AuthResult, error) {
	if err := s.client.GetCSRFCookie(ctx); err != nil {
		return api.AuthResult{}, err
	}
	res, err := exchange(ctx)
	if err != nil {
		return api.AuthResult{}, err
	}
	if res.Token == "" {
		return api.AuthResult{}, &api.TransportError{Op: "authenticate", Err: errors.New("response has no token")}
	}
	if err := s.kv.Set(ctx, KeyAccessToken, res.Token); err != nil {
		s.logger.WarnContext(ctx, "Failed to persist access token",
			log.FieldErrorType, log.ErrorTypeStorage, log.FieldError, err)
	}
	s.persistUser(ctx, res.User)
	s.client.SetBearerToken(res.Token)
	s.logger.InfoContext(ctx, "Signed in", log.FieldOperation, log.OpLogin, log.FieldUserID, res.User.ID)
	return res, nil
}

func (s *Store) persistUser(ctx context.Context, u core.User) {
	raw, err := EncodeUser(u)
	if err == nil {
		err = s.kv.Set(ctx, KeyCurrentUser, raw)
	}
	if err != nil {
		s.logger.WarnContext(ctx, "Failed to persist current user",
			log.FieldErrorType, log.ErrorTypeStorage, log.FieldError, err)
	}
}

// RestoreSession validates a persisted token with the server. Without a
// persisted token it makes no network call. Any failure clears the session
// and is not reported to the caller.
func (s *Store) RestoreSession(ctx context.Context) error {
	_, err, _ := s.group.Do("restore", func() (any, error) {
		return nil, s.restore(ctx)
	})
	return err
}

func (s *Store) restore(ctx context.Context) error {
	token, err := s.kv.Get(ctx, KeyAccessToken)
	if errors.Is(err, storage.ErrNotFound) || (err == nil && token == "") {
		return nil
	}
	if err != nil {
		s.logger.WarnContext(ctx, "Persisted session unreadable, clearing",
			log.FieldErrorType, log.ErrorTypeStorage, log.FieldError, err)
		s.clear(ctx)
		return nil
	}

	s.client.SetBearerToken(token)
	op := store.Op[State, core.User]{
		Name:    "session/restore",
		Pending: authPending,
		Fulfilled: func(st State, u core.User) State {
			st.User = &u
			st.Token = token
			st.Status = core.StatusSucceeded
			st.Error = ""
			return st
		},
		Rejected: func(State, string) State {
			return State{}
		},
	}
	u, err := store.Run(ctx, s.m, op, s.client.GetCurrentUser)
	if err != nil {
		s.logger.InfoContext(ctx, "Persisted session rejected, signing out",
			log.FieldOperation, log.OpRestore, log.FieldErrorType, log.ErrorTypeAuth, log.FieldError, err)
		s.clear(ctx)
		return nil
	}
	s.persistUser(ctx, u)
	return nil
}

// PersistedUser returns the user saved by the last sign-in, without
// contacting the server.
func (s *Store) PersistedUser(ctx context.Context) (core.User, bool) {
	raw, err := s.kv.Get(ctx, KeyCurrentUser)
	if err != nil {
		return core.User{}, false
	}
	return DecodeUser(raw)
}

// UpdateSettings saves the user's preferences and merges the server's
// answer into the session.
func (s *Store) UpdateSettings(ctx context.Context, settings core.Settings) (core.User, error) {
	if _, ok := s.User(); !ok {
		return core.User{}, ErrNotAuthenticated
	}
	op := store.Op[State, core.User]{
		Name:    "session/updateSettings",
		Pending: authPending,
		Fulfilled: func(st State, u core.User) State {
			st.Status = core.StatusSucceeded
			if st.User == nil || st.User.ID != u.ID {
				return st
			}
			st.User = &u
			return st
		},
		Rejected: authRejected,
	}
	u, err := store.Run(ctx, s.m, op, func(ctx context.Context) (core.User, error) {
		p, err := s.client.UpdateSettings(ctx, settings)
		if err != nil {
			return core.User{}, err
		}
		cur, ok := s.User()
		if !ok {
			return core.User{}, ErrNotAuthenticated
		}
		return mergeUser(cur, p)
	})
	if err != nil {
		return core.User{}, err
	}
	if cur, ok := s.User(); ok && cur.ID == u.ID {
		s.persistUser(ctx, cur)
		return cur, nil
	}
	return u, nil
}

// mergeUser shallow-merges the fields the server sent over base. The id is
// never taken from the response.
func mergeUser(base core.User, p core.Patch) (core.User, error) {
	merged, err := core.ApplyPatch(base, p)
	if err != nil {
		return core.User{}, &api.TransportError{Op: "update settings", Err: fmt.Errorf("malformed settings response: %w", err)}
	}
	merged.ID = base.ID
	return merged, nil
}

// ResendVerificationEmail asks the server to send the verification link again.
func (s *Store) ResendVerificationEmail(ctx context.Context) error {
	u, ok := s.User()
	if !ok {
		return ErrNotAuthenticated
	}
	if u.IsEmailVerified {
		return ErrAlreadyVerified
	}
	op := store.Op[State, struct{}]{
		Name: "session/resendVerification",
		Pending: func(st State) State {
			st.Verification = core.StatusLoading
			st.VerificationError = ""
			return st
		},
		Fulfilled: func(st State, _ struct{}) State {
			st.Verification = core.StatusSucceeded
			return st
		},
		Rejected: func(st State, msg string) State {
			st.Verification = core.StatusFailed
			st.VerificationError = msg
			return st
		},
	}
	_, err := store.Run(ctx, s.m, op, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, s.client.ResendVerificationEmail(ctx)
	})
	return err
}

// Logout drops the session locally. It always succeeds; storage failures
// are logged.
func (s *Store) Logout(ctx context.Context) {
	var userID string
	if u, ok := s.User(); ok {
		userID = u.ID
	}
	s.clear(ctx)
	s.logger.InfoContext(ctx, "Signed out", log.FieldOperation, log.OpLogout, log.FieldUserID, userID)
}

func (s *Store) clear(ctx context.Context) {
	for _, key := range []string{KeyAccessToken, KeyCurrentUser} {
		if err := s.kv.Remove(ctx, key); err != nil {
			s.logger.WarnContext(ctx, "Failed to remove persisted session",
				log.FieldKey, key, log.FieldError, err)
		}
	}
	s.client.ClearBearerToken()
	s.m.Update(func(State) State { return State{} })
}
