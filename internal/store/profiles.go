package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"betclever/internal/kv"
	"betclever/internal/models"
	"betclever/internal/status"
)

// BirthDateLayout is the canonical stored form of a birth date.
const BirthDateLayout = "2006-01-02T15:04:05.000Z"

var birthDateInputs = []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02", "02.01.2006"}

// NormalizeBirthDate parses an ISO timestamp, a date-only value or a German
// dd.mm.yyyy date and returns it in BirthDateLayout (UTC). Empty stays empty.
func NormalizeBirthDate(s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", nil
	}
	for _, layout := range birthDateInputs {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC().Format(BirthDateLayout), nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidBirthDate, s)
}

type Profiles struct {
	kv     kv.Backend
	policy status.Policy
}

func (p *Profiles) GetAll(ctx context.Context) (map[string]models.Profile, error) {
	recs, err := listJSON[models.Profile](ctx, p.kv, nsProfiles)
	if err != nil {
		return nil, err
	}
	out := make(map[string]models.Profile, len(recs))
	for _, r := range recs {
		out[r.Key] = r.Value
	}
	return out, nil
}

func (p *Profiles) Get(ctx context.Context, userID string) (models.Profile, error) {
	prof, _, err := getJSON[models.Profile](ctx, p.kv, nsProfiles, userID)
	return prof, err
}

// Save overwrites the whole profile of userID.
func (p *Profiles) Save(ctx context.Context, userID string, prof models.Profile) (models.Profile, error) {
	bd, err := NormalizeBirthDate(prof.BirthDate)
	if err != nil {
		return models.Profile{}, err
	}
	prof.BirthDate = bd
	if err := putJSON(ctx, p.kv, nsProfiles, userID, prof, kv.AnyVersion); err != nil {
		return models.Profile{}, err
	}
	return prof, nil
}

// SetReviewStatus records an administrator decision. A rejected profile
// is reopened for editing; any other status marks it submitted.
func (p *Profiles) SetReviewStatus(ctx context.Context, userID string, to status.ReviewStatus) (models.Profile, error) {
	return mutate(ctx, p.kv, nsProfiles, userID, func(prof *models.Profile) error {
		if err := p.policy.CheckReview(prof.Status, to); err != nil {
			return err
		}
		prof.Status = to
		prof.IsSubmitted = to != status.ReviewRejected
		return nil
	})
}

func (p *Profiles) SetProjectStatus(ctx context.Context, userID string, to status.ProjectStatus) (models.Profile, error) {
	return mutate(ctx, p.kv, nsProfiles, userID, func(prof *models.Profile) error {
		if err := p.policy.CheckProject(prof.ProjectStatus, to); err != nil {
			return err
		}
		prof.ProjectStatus = to
		return nil
	})
}

type PendingProfile struct {
	UserID  string         `json:"user_id"`
	Profile models.Profile `json:"profile"`
}

// Pending lists profiles waiting for review, ordered by user id.
func (p *Profiles) Pending(ctx context.Context) ([]PendingProfile, error) {
	all, err := p.GetAll(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]PendingProfile, 0)
	for id, prof := range all {
		if prof.Status.Pending() {
			out = append(out, PendingProfile{UserID: id, Profile: prof})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

func (p *Profiles) Delete(ctx context.Context, userID string) error {
	return deleteKey(ctx, p.kv, nsProfiles, userID)
}
