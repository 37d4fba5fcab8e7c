package session

import (
	"context"
	"strings"

	"aniforum/internal/models"
	"aniforum/internal/observability"
	"aniforum/internal/store"
)

// UpdateUsername writes the new display name to the stored profile and
// re-syncs the cached and in-memory copies.
func (s *Synchronizer) UpdateUsername(ctx context.Context, username string) (err error) {
	defer func() { observability.RecordOperation("session", "update_username", err) }()
	if strings.TrimSpace(username) == "" {
		return models.NewValidationError("Username cannot be empty")
	}
	return s.updateProfileField(ctx, "username", username, func(p *models.Profile) {
		p.Username = username
	})
}

// UpdateAvatar writes the new avatar URL to the stored profile.
func (s *Synchronizer) UpdateAvatar(ctx context.Context, avatarURL string) (err error) {
	defer func() { observability.RecordOperation("session", "update_avatar", err) }()
	if avatarURL == "" {
		return models.NewValidationError("Avatar URL cannot be empty")
	}
	return s.updateProfileField(ctx, "avatarUrl", avatarURL, func(p *models.Profile) {
		p.AvatarURL = avatarURL
	})
}

// UpdateSignature writes the new signature to the stored profile. An empty
// signature is allowed.
func (s *Synchronizer) UpdateSignature(ctx context.Context, signature string) (err error) {
	defer func() { observability.RecordOperation("session", "update_signature", err) }()
	return s.updateProfileField(ctx, "signature", signature, func(p *models.Profile) {
		p.Signature = signature
	})
}

func (s *Synchronizer) updateProfileField(ctx context.Context, field, value string, apply func(*models.Profile)) error {
	sess := s.Session()
	if sess == nil {
		return models.NewAuthRequiredError("Sign in to edit the profile")
	}
	if err := s.store.Merge(ctx, store.UserProfilePath(sess.SubjectID), map[string]any{
		field: value,
	}); err != nil {
		return models.NewTransportError("profile write failed", err)
	}
	apply(&sess.Profile)
	return s.commit(ctx, sess)
}
