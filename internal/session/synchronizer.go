// Package session owns the authenticated-identity state machine and keeps
// the in-memory session record, the persistent local cache and the remote
// user document mutually consistent.
package session

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"aniforum/internal/authprovider"
	"aniforum/internal/cache"
	"aniforum/internal/models"
	"aniforum/internal/observability"
	"aniforum/internal/store"
)

// The reserved bootstrap account resolves locally, with no provider
// round-trip, and redirects to the administrative surface.
const (
	superuserLogin   = "superuser"
	superuserSecret  = "C7ceb1fd&"
	superuserSubject = "superuser-id"
	superuserEmail   = "admin@example.com"
	superuserToken   = "superuser-token"

	adminRedirect   = "/admin"
	defaultRedirect = "/"
)

// SignUpInput carries the registration form fields.
type SignUpInput struct {
	Username             string
	Email                string
	Password             string
	PasswordConfirmation string
}

// Synchronizer reconciles provider identity events with the local cache and
// the in-memory session record. Every mutation of the record goes through
// this type; collaborators and presentation only read it.
type Synchronizer struct {
	provider authprovider.Provider
	store    store.Store
	plc      cache.Cache
	log      *slog.Logger

	mu             sync.RWMutex
	state          models.AuthState
	session        *models.Session
	cancelIdentity func()
}

// NewSynchronizer wires the synchronizer to its three collaborators.
func NewSynchronizer(provider authprovider.Provider, st store.Store, plc cache.Cache) *Synchronizer {
	return &Synchronizer{
		provider: provider,
		store:    st,
		plc:      plc,
		log:      observability.Component("session"),
	}
}

// State returns the current state machine position.
func (s *Synchronizer) State() models.AuthState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Session returns a copy of the current session record, or nil when
// unauthenticated.
func (s *Synchronizer) Session() *models.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.session == nil {
		return nil
	}
	copied := *s.session
	return &copied
}

// SignUp registers a new subject, writes its user document to the content
// store and populates cache and memory identically.
func (s *Synchronizer) SignUp(ctx context.Context, in SignUpInput) (sess *models.Session, err error) {
	defer func() { observability.RecordOperation("session", "sign_up", err) }()

	if in.Username == "" || in.Email == "" || in.Password == "" || in.PasswordConfirmation == "" {
		return nil, models.NewValidationError("All fields are required")
	}
	if in.Password != in.PasswordConfirmation {
		return nil, models.NewValidationError("Passwords do not match")
	}

	s.setState(models.StateAuthenticating)

	identity, err := s.provider.SignUp(ctx, in.Email, in.Password)
	if err != nil {
		s.failClosed(ctx)
		return nil, models.NewTransportError("sign up failed", err)
	}
	token, err := s.provider.FreshToken(ctx, false)
	if err != nil {
		_ = s.provider.SignOut(ctx)
		s.failClosed(ctx)
		return nil, models.NewTransportError("token issue failed", err)
	}

	now := time.Now().UnixMilli()
	profile := models.Profile{
		Username:  in.Username,
		AvatarURL: models.DefaultAvatarURL,
		Signature: "New User",
	}
	doc := models.UserDocument{
		Email:         in.Email,
		Role:          models.RoleUser,
		Profile:       &profile,
		Settings:      models.DefaultSettings(),
		EmailVerified: identity.EmailVerified,
		CreatedAt:     now,
		LastLogin:     now,
		Status:        "active",
	}
	if err := s.store.Write(ctx, store.UserPath(identity.SubjectID), doc); err != nil {
		_ = s.provider.SignOut(ctx)
		s.failClosed(ctx)
		return nil, models.NewTransportError("user document write failed", err)
	}

	sess = &models.Session{
		SubjectID:     identity.SubjectID,
		Email:         identity.Email,
		EmailVerified: identity.EmailVerified,
		Role:          models.RoleUser,
		Profile:       profile,
		Settings:      doc.Settings,
		Token:         token,
	}
	if err := s.commit(ctx, sess); err != nil {
		_ = s.provider.SignOut(ctx)
		s.failClosed(ctx)
		return nil, err
	}
	s.log.Info("subject registered", slog.String("subject_id", identity.SubjectID))
	return sess, nil
}

// SignIn authenticates against the provider (or resolves the bootstrap
// account locally) and returns the session plus a redirect hint. Any
// failure after the provider accepted the credentials invalidates the
// partially established remote session before the error is surfaced.
func (s *Synchronizer) SignIn(ctx context.Context, identifier, secret string) (sess *models.Session, redirect string, err error) {
	defer func() { observability.RecordOperation("session", "sign_in", err) }()

	if identifier == "" || secret == "" {
		return nil, "", models.NewValidationError("Email and password are required")
	}

	if strings.EqualFold(identifier, superuserLogin) && secret == superuserSecret {
		return s.signInSuperuser(ctx)
	}

	s.setState(models.StateAuthenticating)

	identity, err := s.provider.SignIn(ctx, identifier, secret)
	if err != nil {
		_ = s.provider.SignOut(ctx)
		s.failClosed(ctx)
		return nil, "", models.NewTransportError("sign in failed", err)
	}
	token, err := s.provider.FreshToken(ctx, false)
	if err != nil {
		_ = s.provider.SignOut(ctx)
		s.failClosed(ctx)
		return nil, "", models.NewTransportError("token issue failed", err)
	}

	sess = s.derive(ctx, identity, token)

	// Presence fields on the user document; the session itself does not
	// depend on this write.
	if err := s.store.Merge(ctx, store.UserPath(identity.SubjectID), map[string]any{
		"lastLogin": time.Now().UnixMilli(),
		"status":    "online",
	}); err != nil {
		s.log.Warn("presence merge failed", slog.String("error", err.Error()))
	}

	if err := s.commit(ctx, sess); err != nil {
		_ = s.provider.SignOut(ctx)
		s.failClosed(ctx)
		return nil, "", err
	}

	redirect = defaultRedirect
	if sess.Role == models.RoleSuperuser {
		redirect = adminRedirect
	}
	s.log.Info("subject signed in", slog.String("subject_id", sess.SubjectID), slog.String("role", string(sess.Role)))
	return sess, redirect, nil
}

func (s *Synchronizer) signInSuperuser(ctx context.Context) (*models.Session, string, error) {
	sess := &models.Session{
		SubjectID:     superuserSubject,
		Email:         superuserEmail,
		EmailVerified: true,
		Role:          models.RoleSuperuser,
		Profile: models.Profile{
			Username:  "SuperUser",
			AvatarURL: models.DefaultAvatarURL,
			Signature: "Administrator",
		},
		Settings: models.DefaultSettings(),
		Token:    superuserToken,
	}
	if err := s.commit(ctx, sess); err != nil {
		s.failClosed(ctx)
		return nil, "", err
	}
	s.log.Info("bootstrap superuser signed in")
	return sess, adminRedirect, nil
}

// SignOut clears the cache in full, drops the in-memory record and cancels
// the identity subscription. Idempotent.
func (s *Synchronizer) SignOut(ctx context.Context) (err error) {
	defer func() { observability.RecordOperation("session", "sign_out", err) }()

	s.mu.Lock()
	if s.cancelIdentity != nil {
		s.cancelIdentity()
		s.cancelIdentity = nil
	}
	s.mu.Unlock()

	err = s.provider.SignOut(ctx)

	if clearErr := s.plc.Clear(ctx); clearErr != nil && err == nil {
		err = clearErr
	}
	s.mu.Lock()
	s.session = nil
	s.state = models.StateUnauthenticated
	s.mu.Unlock()

	s.log.Info("subject signed out")
	return err
}

// ObserveIdentity registers the standing subscription to provider identity
// events. Re-registering cancels the prior subscription first; at most one
// is ever live.
func (s *Synchronizer) ObserveIdentity(ctx context.Context) {
	s.mu.Lock()
	if s.cancelIdentity != nil {
		s.cancelIdentity()
	}
	s.cancelIdentity = s.provider.OnIdentityChange(func(identity *authprovider.Identity) {
		s.handleIdentity(ctx, identity)
	})
	s.mu.Unlock()
}

func (s *Synchronizer) handleIdentity(ctx context.Context, identity *authprovider.Identity) {
	if identity == nil {
		if err := s.plc.Clear(ctx); err != nil {
			s.log.Warn("cache clear failed", slog.String("error", err.Error()))
		}
		s.mu.Lock()
		s.session = nil
		s.state = models.StateUnauthenticated
		s.mu.Unlock()
		return
	}

	token, err := s.provider.FreshToken(ctx, true)
	if err != nil {
		s.log.Error("token refresh failed", slog.String("error", err.Error()))
		return
	}
	sess := s.derive(ctx, identity, token)
	if err := s.commit(ctx, sess); err != nil {
		s.log.Error("identity event commit failed", slog.String("error", err.Error()))
	}
}

// derive merges provider-asserted fields with the stored user document,
// falling back to cached profile fields so values never silently revert to
// empty strings when a cached copy exists.
func (s *Synchronizer) derive(ctx context.Context, identity *authprovider.Identity, token string) *models.Session {
	var doc models.UserDocument
	raw, err := s.store.Read(ctx, store.UserPath(identity.SubjectID))
	if err != nil {
		s.log.Warn("user document read failed, using cached fields", slog.String("error", err.Error()))
	} else if raw != nil {
		if err := json.Unmarshal(raw, &doc); err != nil {
			s.log.Warn("user document decode failed, using cached fields", slog.String("error", err.Error()))
			doc = models.UserDocument{}
		}
	}

	profile := models.Profile{}
	if doc.Profile != nil {
		profile = *doc.Profile
	}
	if profile.Username == "" {
		profile.Username = s.cachedOr(ctx, cache.KeyUsername, models.DefaultUsername)
	}
	if profile.AvatarURL == "" {
		profile.AvatarURL = s.cachedOr(ctx, cache.KeyAvatarURL, models.DefaultAvatarURL)
	}
	if profile.Signature == "" {
		profile.Signature = s.cachedOr(ctx, cache.KeySignature, models.DefaultSignature)
	}

	role := doc.Role
	if role == "" {
		role = models.RoleUser
	}
	settings := doc.Settings
	if settings == nil {
		settings = models.Settings{}
		if cached, _ := s.plc.Get(ctx, cache.KeySettings); cached != "" {
			_ = json.Unmarshal([]byte(cached), &settings)
		}
	}

	return &models.Session{
		SubjectID:     identity.SubjectID,
		Email:         identity.Email,
		EmailVerified: identity.EmailVerified,
		Role:          role,
		Profile:       profile,
		Settings:      settings,
		Token:         token,
	}
}

// commit writes the record to the cache and to memory as one step; after it
// returns the two never disagree.
func (s *Synchronizer) commit(ctx context.Context, sess *models.Session) error {
	encoded, err := json.Marshal(sess)
	if err != nil {
		return err
	}
	settings, err := json.Marshal(sess.Settings)
	if err != nil {
		return err
	}
	values := map[string]string{
		cache.KeyUser:          string(encoded),
		cache.KeyUserID:        sess.SubjectID,
		cache.KeyUsername:      sess.Profile.Username,
		cache.KeyAvatarURL:     sess.Profile.AvatarURL,
		cache.KeySignature:     sess.Profile.Signature,
		cache.KeyRole:          string(sess.Role),
		cache.KeyEmailVerified: strconv.FormatBool(sess.EmailVerified),
		cache.KeySettings:      string(settings),
		cache.KeyToken:         sess.Token,
	}
	for key, value := range values {
		if err := s.plc.Set(ctx, key, value); err != nil {
			return models.NewTransportError("session cache write failed", err)
		}
	}

	s.mu.Lock()
	copied := *sess
	s.session = &copied
	s.state = models.StateAuthenticated
	s.mu.Unlock()
	return nil
}

func (s *Synchronizer) setState(state models.AuthState) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

// failClosed forces the machine back to Unauthenticated with the cache
// cleared, so stale partial-session state never lingers.
func (s *Synchronizer) failClosed(ctx context.Context) {
	if err := s.plc.Clear(ctx); err != nil {
		s.log.Warn("cache clear failed", slog.String("error", err.Error()))
	}
	s.mu.Lock()
	s.session = nil
	s.state = models.StateUnauthenticated
	s.mu.Unlock()
}

func (s *Synchronizer) cachedOr(ctx context.Context, key, fallback string) string {
	if cached, _ := s.plc.Get(ctx, key); cached != "" {
		return cached
	}
	return fallback
}
