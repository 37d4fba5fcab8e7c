package authprovider

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrEmailTaken         = errors.New("email already registered")
	ErrNotSignedIn        = errors.New("no subject signed in")
)

const tokenTTL = time.Hour

type localAccount struct {
	subjectID     string
	passwordHash  []byte
	emailVerified bool
}

// LocalProvider is an in-process Provider: bcrypt-hashed credentials and
// HS256 session tokens. It serves single-node deployments and tests; a
// hosted identity service slots in behind the same interface.
type LocalProvider struct {
	mu        sync.Mutex
	secret    []byte
	accounts  map[string]*localAccount
	current   *Identity
	token     string
	tokenExp  time.Time
	listeners map[int]func(*Identity)
	nextID    int
	now       func() time.Time
}

// NewLocalProvider returns an empty provider signing tokens with secret.
func NewLocalProvider(secret string) *LocalProvider {
	return &LocalProvider{
		secret:    []byte(secret),
		accounts:  make(map[string]*localAccount),
		listeners: make(map[int]func(*Identity)),
		now:       time.Now,
	}
}

func (p *LocalProvider) SignUp(_ context.Context, email, password string) (*Identity, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	if _, exists := p.accounts[email]; exists {
		p.mu.Unlock()
		return nil, ErrEmailTaken
	}
	account := &localAccount{subjectID: uuid.NewString(), passwordHash: hash}
	p.accounts[email] = account
	identity := &Identity{SubjectID: account.subjectID, Email: email}
	p.setCurrentLocked(identity)
	listeners := p.snapshotListenersLocked()
	p.mu.Unlock()

	emit(listeners, identity)
	return identity, nil
}

func (p *LocalProvider) SignIn(_ context.Context, email, password string) (*Identity, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	p.mu.Lock()
	account, ok := p.accounts[email]
	p.mu.Unlock()
	if !ok {
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword(account.passwordHash, []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	identity := &Identity{
		SubjectID:     account.subjectID,
		Email:         email,
		EmailVerified: account.emailVerified,
	}
	p.mu.Lock()
	p.setCurrentLocked(identity)
	listeners := p.snapshotListenersLocked()
	p.mu.Unlock()

	emit(listeners, identity)
	return identity, nil
}

func (p *LocalProvider) SignOut(_ context.Context) error {
	p.mu.Lock()
	p.current = nil
	p.token = ""
	listeners := p.snapshotListenersLocked()
	p.mu.Unlock()

	emit(listeners, nil)
	return nil
}

func (p *LocalProvider) OnIdentityChange(fn func(*Identity)) func() {
	p.mu.Lock()
	id := p.nextID
	p.nextID++
	p.listeners[id] = fn
	p.mu.Unlock()

	return func() {
		p.mu.Lock()
		delete(p.listeners, id)
		p.mu.Unlock()
	}
}

// FreshToken mints (or returns the cached) HS256 token for the signed-in
// subject, carrying the subject ID in the "sub" claim.
func (p *LocalProvider) FreshToken(_ context.Context, forceRefresh bool) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current == nil {
		return "", ErrNotSignedIn
	}
	now := p.now()
	if !forceRefresh && p.token != "" && now.Before(p.tokenExp) {
		return p.token, nil
	}
	claims := jwt.MapClaims{
		"sub": p.current.SubjectID,
		"iat": now.Unix(),
		"exp": now.Add(tokenTTL).Unix(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(p.secret)
	if err != nil {
		return "", err
	}
	p.token = token
	p.tokenExp = now.Add(tokenTTL)
	return token, nil
}

// MarkVerified flags an account as email-verified, the way a hosted
// provider would after the verification link is followed.
func (p *LocalProvider) MarkVerified(email string) {
	email = strings.ToLower(strings.TrimSpace(email))
	p.mu.Lock()
	defer p.mu.Unlock()
	if account, ok := p.accounts[email]; ok {
		account.emailVerified = true
		if p.current != nil && p.current.Email == email {
			p.current.EmailVerified = true
		}
	}
}

func (p *LocalProvider) setCurrentLocked(identity *Identity) {
	copied := *identity
	p.current = &copied
	p.token = ""
}

func (p *LocalProvider) snapshotListenersLocked() []func(*Identity) {
	out := make([]func(*Identity), 0, len(p.listeners))
	for _, fn := range p.listeners {
		out = append(out, fn)
	}
	return out
}

func emit(listeners []func(*Identity), identity *Identity) {
	for _, fn := range listeners {
		if identity == nil {
			fn(nil)
			continue
		}
		copied := *identity
		fn(&copied)
	}
}
