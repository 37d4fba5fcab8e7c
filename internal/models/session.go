// Package models contains data structures for the forum synchronization core.
package models

// Role is the access level asserted for an authenticated subject.
type Role string

const (
	RoleGuest     Role = "guest"
	RoleUser      Role = "user"
	RoleSuperuser Role = "superuser"
)

// DefaultUsername and friends are the display fallbacks applied when neither
// the content store nor the local cache has a profile value.
const (
	DefaultUsername  = "Гость"
	DefaultAvatarURL = "/image/empty_avatar.png"
	DefaultSignature = ""
)

// Profile holds the display attributes of a user.
type Profile struct {
	Username  string `json:"username"`
	AvatarURL string `json:"avatarUrl"`
	Signature string `json:"signature"`
}

// Settings is the free-form per-user settings map.
type Settings map[string]any

// DefaultSettings returns the settings written for a freshly registered user.
func DefaultSettings() Settings {
	return Settings{
		"profileVisibility": true,
		"notifyMessages":    true,
		"notifyReplies":     true,
		"theme":             "light",
	}
}

// Session is the reconciled authenticated-identity record. The provider is
// authoritative for SubjectID, Email and EmailVerified; profile fields come
// from the content store with cache fallback.
type Session struct {
	SubjectID     string   `json:"uid"`
	Email         string   `json:"email"`
	EmailVerified bool     `json:"emailVerified"`
	Role          Role     `json:"role"`
	Profile       Profile  `json:"profile"`
	Settings      Settings `json:"settings"`
	Token         string   `json:"-"`
}

// Valid reports whether the record satisfies the token/subject invariant.
func (s *Session) Valid() bool {
	if s == nil {
		return false
	}
	return s.Token == "" || s.SubjectID != ""
}

// AuthState is the Session Synchronizer state machine position.
type AuthState int

const (
	StateUnauthenticated AuthState = iota
	StateAuthenticating
	StateAuthenticated
)

func (s AuthState) String() string {
	switch s {
	case StateAuthenticating:
		return "authenticating"
	case StateAuthenticated:
		return "authenticated"
	default:
		return "unauthenticated"
	}
}

// UserDocument is the shape of the user record at users/{uid} in the
// content store.
type UserDocument struct {
	Email         string   `json:"email"`
	Role          Role     `json:"role,omitempty"`
	Profile       *Profile `json:"profile,omitempty"`
	Settings      Settings `json:"settings,omitempty"`
	EmailVerified bool     `json:"emailVerified"`
	CreatedAt     int64    `json:"createdAt,omitempty"`
	LastLogin     int64    `json:"lastLogin,omitempty"`
	Status        string   `json:"status,omitempty"`
}
