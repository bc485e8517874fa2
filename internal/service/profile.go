package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"betclever/internal/events"
	"betclever/internal/models"
	"betclever/internal/status"
	"betclever/internal/store"
)

var phoneRx = regexp.MustCompile(`^\+49\s?[1-9][0-9]{1,14}$`)

// ValidationError carries per-field messages for the profile form.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return "invalid fields: " + strings.Join(keys, ", ")
}

type ProfileInput struct {
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	Email       string `json:"email"`
	Phone       string `json:"phone"`
	BirthDate   string `json:"birth_date"`
	Street      string `json:"street"`
	HouseNumber string `json:"house_number"`
	ZipCode     string `json:"zip_code"`
	City        string `json:"city"`
}

func minLen(s string, n int) bool { return len([]rune(strings.TrimSpace(s))) >= n }

func (in ProfileInput) validate() (ProfileInput, error) {
	fields := map[string]string{}
	if !minLen(in.FirstName, 2) {
		fields["first_name"] = "Vorname muss mindestens 2 Zeichen lang sein"
	}
	if !minLen(in.LastName, 2) {
		fields["last_name"] = "Nachname muss mindestens 2 Zeichen lang sein"
	}
	if !validEmail(in.Email) {
		fields["email"] = "Ungültige E-Mail-Adresse"
	}
	if !phoneRx.MatchString(strings.TrimSpace(in.Phone)) {
		fields["phone"] = "Telefonnummer muss im Format +49 beginnen"
	}
	if strings.TrimSpace(in.BirthDate) == "" {
		fields["birth_date"] = "Geburtsdatum ist erforderlich"
	} else if bd, err := store.NormalizeBirthDate(in.BirthDate); err != nil {
		fields["birth_date"] = "Ungültiges Geburtsdatum"
	} else {
		in.BirthDate = bd
	}
	if !minLen(in.Street, 2) {
		fields["street"] = "Straße ist erforderlich"
	}
	if !minLen(in.HouseNumber, 1) {
		fields["house_number"] = "Hausnummer ist erforderlich"
	}
	if !minLen(in.ZipCode, 5) {
		fields["zip_code"] = "Postleitzahl muss mindestens 5 Zeichen lang sein"
	}
	if !minLen(in.City, 2) {
		fields["city"] = "Ort ist erforderlich"
	}
	if len(fields) > 0 {
		return in, &ValidationError{Fields: fields}
	}
	return in, nil
}

type ProfileView struct {
	Profile  models.Profile `json:"profile"`
	Exists   bool           `json:"exists"`
	Editable bool           `json:"editable"`
}

// Profile returns the caller's profile. A missing profile is reported as
// an empty, editable form prefilled with the account email.
func (s *Service) Profile(ctx context.Context, u models.SessionUser) (ProfileView, error) {
	p, err := s.st.Profiles.Get(ctx, u.ID)
	if errors.Is(err, store.ErrNotFound) {
		return ProfileView{
			Profile:  models.Profile{Email: u.Email, Phone: "+49 ", Status: status.ReviewIncomplete},
			Editable: true,
		}, nil
	}
	if err != nil {
		return ProfileView{}, err
	}
	return ProfileView{Profile: p, Exists: true, Editable: p.Editable()}, nil
}

// editable reports ErrProfileLocked once the profile waits for review or
// was approved.
func (s *Service) editable(ctx context.Context, userID string) (models.Profile, bool, error) {
	p, err := s.st.Profiles.Get(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return models.Profile{}, false, nil
	}
	if err != nil {
		return models.Profile{}, false, err
	}
	if !p.Editable() {
		return p, true, ErrProfileLocked
	}
	return p, true, nil
}

// SubmitProfile validates the form, requires a document in every bucket
// and stores the profile as submitted.
func (s *Service) SubmitProfile(ctx context.Context, u models.SessionUser, in ProfileInput) (models.Profile, error) {
	prev, exists, err := s.editable(ctx, u.ID)
	if err != nil {
		return models.Profile{}, err
	}
	in, err = in.validate()
	if err != nil {
		return models.Profile{}, err
	}
	docs, err := s.st.Documents.GetAll(ctx, u.ID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return models.Profile{}, err
	}
	if !docs.Complete() {
		return models.Profile{}, ErrDocumentsMissing
	}

	p := models.Profile{
		FirstName:     strings.TrimSpace(in.FirstName),
		LastName:      strings.TrimSpace(in.LastName),
		Email:         strings.TrimSpace(in.Email),
		Phone:         strings.TrimSpace(in.Phone),
		BirthDate:     in.BirthDate,
		Street:        strings.TrimSpace(in.Street),
		HouseNumber:   strings.TrimSpace(in.HouseNumber),
		ZipCode:       strings.TrimSpace(in.ZipCode),
		City:          strings.TrimSpace(in.City),
		IsSubmitted:   true,
		Status:        status.ReviewSubmitted,
		ProjectStatus: status.ProjectContact,
	}
	if exists && prev.ProjectStatus.Valid() {
		p.ProjectStatus = prev.ProjectStatus
	}
	saved, err := s.st.Profiles.Save(ctx, u.ID, p)
	if err != nil {
		return models.Profile{}, fmt.Errorf("save profile: %w", err)
	}
	s.publish(ctx, events.ProfileSaved, u.ID)
	return saved, nil
}

type PipelineView struct {
	Current status.ProjectStatus `json:"current"`
	Steps   []status.Step        `json:"steps"`
}

func (s *Service) Pipeline(ctx context.Context, userID string) (PipelineView, error) {
	p, err := s.st.Profiles.Get(ctx, userID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return PipelineView{}, err
	}
	cur := p.ProjectStatus.OrDefault()
	return PipelineView{Current: cur, Steps: status.Steps(cur)}, nil
}
