package store

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"strings"
	"time"

	"betclever/internal/auth"
	"betclever/internal/kv"
	"betclever/internal/models"
)

type Accounts struct {
	kv    kv.Backend
	admin BootstrapAdmin
	hash  auth.Params
	now   func() time.Time
}

type emailIndex struct {
	AccountID string `json:"account_id"`
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// BootstrapOrLoad returns every account ordered by creation. An empty
// namespace is seeded with the bootstrap administrator first.
func (a *Accounts) BootstrapOrLoad(ctx context.Context) ([]models.Account, error) {
	recs, err := listJSON[models.Account](ctx, a.kv, nsAccounts)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		if err := a.seedAdmin(ctx); err != nil {
			return nil, err
		}
		if recs, err = listJSON[models.Account](ctx, a.kv, nsAccounts); err != nil {
			return nil, err
		}
	}
	out := make([]models.Account, 0, len(recs))
	for _, r := range recs {
		out = append(out, r.Value)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (a *Accounts) List(ctx context.Context) ([]models.Account, error) {
	return a.BootstrapOrLoad(ctx)
}

func (a *Accounts) seedAdmin(ctx context.Context) error {
	hash, err := a.hash.Hash(a.admin.Password)
	if err != nil {
		return err
	}
	acct := models.Account{
		ID:           a.admin.ID,
		Email:        strings.TrimSpace(a.admin.Email),
		PasswordHash: hash,
		IsAdmin:      true,
		CreatedAt:    a.now().UTC(),
	}
	err = putJSON(ctx, a.kv, nsAccounts, acct.ID, acct, 0)
	if errors.Is(err, kv.ErrVersionConflict) {
		// another caller seeded concurrently
		return nil
	}
	if err != nil {
		return err
	}
	return putJSON(ctx, a.kv, nsEmails, normalizeEmail(acct.Email), emailIndex{AccountID: acct.ID}, kv.AnyVersion)
}

func (a *Accounts) Get(ctx context.Context, id string) (models.Account, error) {
	acct, _, err := getJSON[models.Account](ctx, a.kv, nsAccounts, id)
	return acct, err
}

// Authenticate matches email case-insensitively and the password exactly.
func (a *Accounts) Authenticate(ctx context.Context, email, password string) (models.SessionUser, error) {
	accts, err := a.BootstrapOrLoad(ctx)
	if err != nil {
		return models.SessionUser{}, err
	}
	want := normalizeEmail(email)
	for _, acct := range accts {
		if normalizeEmail(acct.Email) != want {
			continue
		}
		if auth.VerifyPassword(acct.PasswordHash, password) {
			return acct.SessionUser(), nil
		}
		return models.SessionUser{}, ErrInvalidCredentials
	}
	return models.SessionUser{}, ErrInvalidCredentials
}

// Register creates a non-admin account with a timestamp id. After the
// account is written its email index entry is claimed; the loser of two
// concurrent registrations of the same address removes its account again.
func (a *Accounts) Register(ctx context.Context, email, password string, termsAccepted bool) (models.SessionUser, error) {
	if !termsAccepted {
		return models.SessionUser{}, ErrTermsNotAccepted
	}
	accts, err := a.BootstrapOrLoad(ctx)
	if err != nil {
		return models.SessionUser{}, err
	}
	norm := normalizeEmail(email)
	for _, acct := range accts {
		if normalizeEmail(acct.Email) == norm {
			return models.SessionUser{}, ErrEmailTaken
		}
	}
	hash, err := a.hash.Hash(password)
	if err != nil {
		return models.SessionUser{}, err
	}

	now := a.now().UTC()
	acct := models.Account{
		ID:           strconv.FormatInt(now.UnixMilli(), 10),
		Email:        strings.TrimSpace(email),
		PasswordHash: hash,
		CreatedAt:    now,
	}
	for {
		err = putJSON(ctx, a.kv, nsAccounts, acct.ID, acct, 0)
		if !errors.Is(err, kv.ErrVersionConflict) {
			break
		}
		// same millisecond as another account; take the next free one
		next, _ := strconv.ParseInt(acct.ID, 10, 64)
		acct.ID = strconv.FormatInt(next+1, 10)
		if err := ctx.Err(); err != nil {
			return models.SessionUser{}, err
		}
	}
	if err != nil {
		return models.SessionUser{}, err
	}
	if err := a.claimEmail(ctx, norm, acct.ID); err != nil {
		_ = a.kv.Delete(ctx, nsAccounts, acct.ID)
		return models.SessionUser{}, err
	}
	return acct.SessionUser(), nil
}

func (a *Accounts) claimEmail(ctx context.Context, norm, id string) error {
	for attempt := 0; attempt < mutateAttempts; attempt++ {
		err := putJSON(ctx, a.kv, nsEmails, norm, emailIndex{AccountID: id}, 0)
		if !errors.Is(err, kv.ErrVersionConflict) {
			return err
		}
		idx, version, err := getJSON[emailIndex](ctx, a.kv, nsEmails, norm)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return err
		}
		if _, err := a.Get(ctx, idx.AccountID); !errors.Is(err, ErrNotFound) {
			if err != nil {
				return err
			}
			return ErrEmailTaken
		}
		// the indexed account is gone; the entry is stale
		err = putJSON(ctx, a.kv, nsEmails, norm, emailIndex{AccountID: id}, version)
		if !errors.Is(err, kv.ErrVersionConflict) {
			return err
		}
	}
	return ErrEmailTaken
}

func (a *Accounts) ChangePassword(ctx context.Context, id, newPassword string) error {
	hash, err := a.hash.Hash(newPassword)
	if err != nil {
		return err
	}
	_, err = mutate(ctx, a.kv, nsAccounts, id, func(acct *models.Account) error {
		acct.PasswordHash = hash
		return nil
	})
	return err
}

// Remove deletes the account only; profile and documents stay in place.
func (a *Accounts) Remove(ctx context.Context, id string) error {
	acct, err := a.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := deleteKey(ctx, a.kv, nsAccounts, id); err != nil {
		return err
	}
	norm := normalizeEmail(acct.Email)
	if idx, _, err := getJSON[emailIndex](ctx, a.kv, nsEmails, norm); err == nil && idx.AccountID == id {
		_ = a.kv.Delete(ctx, nsEmails, norm)
	}
	return nil
}
