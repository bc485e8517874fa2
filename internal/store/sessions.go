package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"betclever/internal/auth"
	"betclever/internal/kv"
	"betclever/internal/models"
)

// Sessions persists sessions under the hash of their bearer token.
type Sessions struct {
	kv       kv.Backend
	now      func() time.Time
	absolute time.Duration
	idle     time.Duration
}

// Create stores a new session for user and returns the raw token for the
// cookie. Only the token hash is persisted.
func (s *Sessions) Create(ctx context.Context, user models.SessionUser, ipHint, uaHash string) (string, models.Session, error) {
	raw, hash, err := auth.NewOpaqueToken()
	if err != nil {
		return "", models.Session{}, err
	}
	now := s.now().UTC()
	sess := models.Session{
		ID:            uuid.NewString(),
		TokenHash:     hash,
		User:          user,
		IPHint:        ipHint,
		UserAgentHash: uaHash,
		ExpiresAt:     now.Add(s.absolute),
		IdleExpiresAt: now.Add(s.idle),
		CreatedAt:     now,
		LastSeenAt:    now,
	}
	if err := putJSON(ctx, s.kv, nsSessions, hash, sess, 0); err != nil {
		return "", models.Session{}, err
	}
	return raw, sess, nil
}

// Get resolves a raw token. Expired sessions are removed and reported as
// ErrNotFound; live ones get their idle expiry extended.
func (s *Sessions) Get(ctx context.Context, rawToken string) (models.Session, error) {
	hash := auth.HashToken(rawToken)
	sess, version, err := getJSON[models.Session](ctx, s.kv, nsSessions, hash)
	if err != nil {
		return models.Session{}, err
	}
	now := s.now().UTC()
	if now.After(sess.ExpiresAt) || now.After(sess.IdleExpiresAt) {
		_ = s.kv.Delete(ctx, nsSessions, hash)
		return models.Session{}, ErrNotFound
	}
	sess.LastSeenAt = now
	sess.IdleExpiresAt = now.Add(s.idle)
	// a concurrent touch already extended it
	if err := putJSON(ctx, s.kv, nsSessions, hash, sess, version); err != nil && !errors.Is(err, kv.ErrVersionConflict) {
		return models.Session{}, err
	}
	return sess, nil
}

// Delete revokes the session behind rawToken. Unknown tokens are ignored.
func (s *Sessions) Delete(ctx context.Context, rawToken string) error {
	err := s.kv.Delete(ctx, nsSessions, auth.HashToken(rawToken))
	if errors.Is(err, kv.ErrNotFound) {
		return nil
	}
	return err
}

// DeleteForUser revokes every session of userID and sweeps expired ones.
func (s *Sessions) DeleteForUser(ctx context.Context, userID string) error {
	recs, err := listJSON[models.Session](ctx, s.kv, nsSessions)
	if err != nil {
		return err
	}
	now := s.now().UTC()
	for _, r := range recs {
		if r.Value.User.ID != userID && !now.After(r.Value.ExpiresAt) && !now.After(r.Value.IdleExpiresAt) {
			continue
		}
		if err := s.kv.Delete(ctx, nsSessions, r.Key); err != nil && !errors.Is(err, kv.ErrNotFound) {
			return err
		}
	}
	return nil
}
