package status

import (
	"fmt"
	"strings"
)

type ReviewStatus string

const (
	ReviewIncomplete ReviewStatus = "incomplete"
	ReviewSubmitted  ReviewStatus = "submitted"
	ReviewReviewing  ReviewStatus = "reviewing"
	ReviewApproved   ReviewStatus = "approved"
	ReviewRejected   ReviewStatus = "rejected"
)

var reviewLabels = map[ReviewStatus]string{
	ReviewIncomplete: "Nicht vollständig",
	ReviewSubmitted:  "Eingereicht",
	ReviewReviewing:  "Wird überprüft",
	ReviewApproved:   "Bestätigt",
	ReviewRejected:   "Abgelehnt",
}

func ParseReviewStatus(s string) (ReviewStatus, error) {
	v := ReviewStatus(strings.ToLower(strings.TrimSpace(s)))
	if !v.Valid() {
		return "", fmt.Errorf("unknown review status %q", s)
	}
	return v, nil
}

func (s ReviewStatus) Valid() bool {
	_, ok := reviewLabels[s]
	return ok
}

func (s ReviewStatus) Label() string {
	return reviewLabels[s]
}

// Pending reports whether the profile waits for an administrator decision.
func (s ReviewStatus) Pending() bool {
	return s == ReviewSubmitted || s == ReviewReviewing
}

type ProjectStatus string

const (
	ProjectContact      ProjectStatus = "contact"
	ProjectPreparation  ProjectStatus = "preparation"
	ProjectRegistration ProjectStatus = "registration"
	ProjectVerification ProjectStatus = "verification"
	ProjectBetting      ProjectStatus = "betting"
	ProjectPayout       ProjectStatus = "payout"
	ProjectCompleted    ProjectStatus = "completed"
)

type stage struct {
	id          ProjectStatus
	label       string
	description string
}

var pipeline = []stage{
	{ProjectContact, "Kontaktaufnahme", "Wir nehmen Kontakt mit Ihnen auf und besprechen Ihre Anfrage."},
	{ProjectPreparation, "Vorbereitung", "Wir bereiten alles für Sie vor und erstellen einen individuellen Plan."},
	{ProjectRegistration, "Registrierung", "Wir registrieren die erforderlichen Konten für Sie."},
	{ProjectVerification, "Verifizierung", "Wir verifizieren Ihre Konten und stellen sicher, dass alles funktioniert."},
	{ProjectBetting, "Wetten", "Wir platzieren die Wetten gemäß dem erstellten Plan."},
	{ProjectPayout, "Auszahlung", "Wir veranlassen die Auszahlung Ihrer Gewinne."},
	{ProjectCompleted, "Abgeschlossen", "Ihr Projekt ist abgeschlossen und alle Gewinne wurden ausgezahlt."},
}

func ParseProjectStatus(s string) (ProjectStatus, error) {
	v := ProjectStatus(strings.ToLower(strings.TrimSpace(s)))
	if v.Index() < 0 {
		return "", fmt.Errorf("unknown project status %q", s)
	}
	return v, nil
}

// Index returns the position of s in the pipeline, or -1.
func (s ProjectStatus) Index() int {
	for i, st := range pipeline {
		if st.id == s {
			return i
		}
	}
	return -1
}

func (s ProjectStatus) Valid() bool { return s.Index() >= 0 }

func (s ProjectStatus) Label() string {
	if i := s.Index(); i >= 0 {
		return pipeline[i].label
	}
	return ""
}

// OrDefault maps the empty or unknown stage to contact.
func (s ProjectStatus) OrDefault() ProjectStatus {
	if s.Valid() {
		return s
	}
	return ProjectContact
}

// ProjectStatuses lists every stage in pipeline order.
func ProjectStatuses() []ProjectStatus {
	out := make([]ProjectStatus, len(pipeline))
	for i, st := range pipeline {
		out[i] = st.id
	}
	return out
}

type StepState string

const (
	StepCompleted StepState = "completed"
	StepCurrent   StepState = "current"
	StepUpcoming  StepState = "upcoming"
)

type Step struct {
	ID          ProjectStatus `json:"id"`
	Label       string        `json:"label"`
	Description string        `json:"description"`
	State       StepState     `json:"state"`
}

// Steps renders the pipeline relative to current. Skipped stages are shown
// as completed; only list position matters.
func Steps(current ProjectStatus) []Step {
	cur := current.OrDefault().Index()
	out := make([]Step, 0, len(pipeline))
	for i, st := range pipeline {
		state := StepUpcoming
		switch {
		case i < cur:
			state = StepCompleted
		case i == cur:
			state = StepCurrent
		}
		out = append(out, Step{ID: st.id, Label: st.label, Description: st.description, State: state})
	}
	return out
}
