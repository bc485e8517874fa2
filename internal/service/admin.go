package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"betclever/internal/events"
	"betclever/internal/models"
	"betclever/internal/status"
	"betclever/internal/store"
)

// AdminUser is an account as listed in the admin console, without password
// material, joined with its profile and document metadata.
type AdminUser struct {
	ID        string                                  `json:"id"`
	Email     string                                  `json:"email"`
	IsAdmin   bool                                    `json:"is_admin"`
	CreatedAt time.Time                               `json:"created_at"`
	Profile   *models.Profile                         `json:"profile,omitempty"`
	Documents map[models.Bucket][]models.DocumentMeta `json:"documents"`
}

func (s *Service) ListUsers(ctx context.Context) ([]AdminUser, error) {
	accts, err := s.st.Accounts.BootstrapOrLoad(ctx)
	if err != nil {
		return nil, err
	}
	profiles, err := s.st.Profiles.GetAll(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]AdminUser, 0, len(accts))
	for _, a := range accts {
		set, err := s.Documents(ctx, a.ID)
		if err != nil {
			return nil, err
		}
		u := AdminUser{ID: a.ID, Email: a.Email, IsAdmin: a.IsAdmin, CreatedAt: a.CreatedAt, Documents: set.Meta()}
		if p, ok := profiles[a.ID]; ok {
			p := p
			u.Profile = &p
		}
		out = append(out, u)
	}
	return out, nil
}

type Verification struct {
	UserID       string         `json:"user_id"`
	AccountEmail string         `json:"account_email,omitempty"`
	Profile      models.Profile `json:"profile"`
}

// Verifications lists profiles waiting for a review decision.
func (s *Service) Verifications(ctx context.Context) ([]Verification, error) {
	pending, err := s.st.Profiles.Pending(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Verification, 0, len(pending))
	for _, p := range pending {
		v := Verification{UserID: p.UserID, Profile: p.Profile}
		if a, err := s.st.Accounts.Get(ctx, p.UserID); err == nil {
			v.AccountEmail = a.Email
		}
		out = append(out, v)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

// ChangePassword sets a new password for userID and signs the user out
// everywhere unless an administrator changes their own password.
func (s *Service) ChangePassword(ctx context.Context, adminID, userID, newPassword string) error {
	if err := s.ValidatePassword(newPassword); err != nil {
		return err
	}
	if err := s.st.Accounts.ChangePassword(ctx, userID, newPassword); err != nil {
		return err
	}
	if userID != adminID {
		if err := s.st.Sessions.DeleteForUser(ctx, userID); err != nil {
			s.log.Warn(ctx, "revoke sessions failed", "user_id", userID, "error", err)
		}
	}
	s.publish(ctx, events.AccountPasswordChanged, userID)
	s.log.Info(ctx, "password changed by admin", "admin_id", adminID, "user_id", userID)
	return nil
}

// DeleteUser removes a non-admin account and its sessions. Profile and
// documents are kept unless purge is set.
func (s *Service) DeleteUser(ctx context.Context, adminID, userID string, purge bool) error {
	acct, err := s.st.Accounts.Get(ctx, userID)
	if err != nil {
		return err
	}
	if acct.IsAdmin {
		return ErrAdminProtected
	}
	if err := s.st.Accounts.Remove(ctx, userID); err != nil {
		return err
	}
	if err := s.st.Sessions.DeleteForUser(ctx, userID); err != nil {
		s.log.Warn(ctx, "revoke sessions failed", "user_id", userID, "error", err)
	}
	if purge {
		if err := s.st.Profiles.Delete(ctx, userID); err != nil && !errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("purge profile: %w", err)
		}
		if err := s.st.Documents.Purge(ctx, userID); err != nil && !errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("purge documents: %w", err)
		}
	}
	s.publish(ctx, events.AccountDeleted, userID)
	s.log.Info(ctx, "account deleted", "admin_id", adminID, "user_id", userID, "purge", purge)
	return nil
}

func (s *Service) UserProfile(ctx context.Context, userID string) (models.Profile, error) {
	return s.st.Profiles.Get(ctx, userID)
}

// SetReviewStatus records a review decision and notifies the user when the
// profile was approved or rejected.
func (s *Service) SetReviewStatus(ctx context.Context, userID, raw string) (models.Profile, error) {
	to, err := status.ParseReviewStatus(raw)
	if err != nil {
		return models.Profile{}, fmt.Errorf("%w: %v", ErrInvalidStatus, err)
	}
	p, err := s.st.Profiles.SetReviewStatus(ctx, userID, to)
	if err != nil {
		return models.Profile{}, err
	}
	s.metrics.ObserveReviewStatus(string(to))
	s.publish(ctx, events.ReviewStatusChanged, userID)
	if to == status.ReviewApproved || to == status.ReviewRejected {
		s.notifyDecision(ctx, userID, p, to)
	}
	return p, nil
}

// notifyDecision prefers the account email over the contact email of the
// form. Delivery failures are logged only.
func (s *Service) notifyDecision(ctx context.Context, userID string, p models.Profile, to status.ReviewStatus) {
	email := p.Email
	if a, err := s.st.Accounts.Get(ctx, userID); err == nil {
		email = a.Email
	}
	if email == "" {
		return
	}
	if err := s.sender.SendReviewDecision(ctx, email, to); err != nil {
		s.log.Warn(ctx, "review notification failed", "user_id", userID, "error", err)
	}
}

func (s *Service) SetProjectStatus(ctx context.Context, userID, raw string) (models.Profile, error) {
	to, err := status.ParseProjectStatus(raw)
	if err != nil {
		return models.Profile{}, fmt.Errorf("%w: %v", ErrInvalidStatus, err)
	}
	p, err := s.st.Profiles.SetProjectStatus(ctx, userID, to)
	if err != nil {
		return models.Profile{}, err
	}
	s.metrics.ObserveProjectStatus(string(to))
	s.publish(ctx, events.ProjectStatusChanged, userID)
	return p, nil
}
