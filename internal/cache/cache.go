// Package cache provides the persistent local cache holding last-known
// session fields and the post-creation tally across restarts.
package cache

import "context"

// Session field keys. The whole set is wiped on sign-out.
const (
	KeyUser          = "user"
	KeyUserID        = "userId"
	KeyUsername      = "username"
	KeyAvatarURL     = "userAvatarUrl"
	KeySignature     = "userSignature"
	KeyRole          = "userRole"
	KeyEmailVerified = "emailVerified"
	KeySettings      = "userSettings"
	KeyToken         = "userToken"
	KeyCreatedPosts  = "userCreatedPosts"
)

// Cache is a durable key/value store. Get returns "" for absent keys;
// Clear removes everything.
type Cache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Clear(ctx context.Context) error
}
