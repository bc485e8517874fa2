package status

import (
	"errors"
	"testing"
)

func TestStepsMarksSkippedStagesCompleted(t *testing.T) {
	steps := Steps(ProjectPayout)
	if len(steps) != 7 {
		t.Fatalf("expected 7 steps, got %d", len(steps))
	}
	for i, st := range steps {
		want := StepUpcoming
		switch {
		case i < ProjectPayout.Index():
			want = StepCompleted
		case i == ProjectPayout.Index():
			want = StepCurrent
		}
		if st.State != want {
			t.Fatalf("step %s: expected %s, got %s", st.ID, want, st.State)
		}
	}
	if steps[5].ID != ProjectPayout || steps[5].Label != "Auszahlung" {
		t.Fatalf("unexpected payout step: %+v", steps[5])
	}
}

func TestStepsDefaultsToContact(t *testing.T) {
	steps := Steps("")
	if steps[0].State != StepCurrent {
		t.Fatalf("expected contact to be current, got %s", steps[0].State)
	}
	for _, st := range steps[1:] {
		if st.State != StepUpcoming {
			t.Fatalf("expected %s upcoming, got %s", st.ID, st.State)
		}
	}
}

func TestParseStatuses(t *testing.T) {
	if got, err := ParseReviewStatus(" Approved "); err != nil || got != ReviewApproved {
		t.Fatalf("ParseReviewStatus: got %q err=%v", got, err)
	}
	if _, err := ParseReviewStatus("archived"); err == nil {
		t.Fatalf("expected unknown review status to fail")
	}
	if got, err := ParseProjectStatus("betting"); err != nil || got != ProjectBetting {
		t.Fatalf("ParseProjectStatus: got %q err=%v", got, err)
	}
	if _, err := ParseProjectStatus("done"); err == nil {
		t.Fatalf("expected unknown project status to fail")
	}
	if !ReviewReviewing.Pending() || ReviewApproved.Pending() {
		t.Fatalf("unexpected Pending result")
	}
}

func TestPermissivePolicyAllowsJumps(t *testing.T) {
	p := Permissive{}
	if err := p.CheckProject(ProjectContact, ProjectPayout); err != nil {
		t.Fatalf("expected jump to be allowed: %v", err)
	}
	if err := p.CheckProject(ProjectCompleted, ProjectContact); err != nil {
		t.Fatalf("expected backwards move to be allowed: %v", err)
	}
	if err := p.CheckReview(ReviewApproved, ReviewIncomplete); err != nil {
		t.Fatalf("expected any review change to be allowed: %v", err)
	}
	if err := p.CheckReview(ReviewApproved, "bogus"); !errors.Is(err, ErrTransition) {
		t.Fatalf("expected ErrTransition for unknown status, got %v", err)
	}
}

func TestStrictPolicy(t *testing.T) {
	p := Strict{}
	cases := []struct {
		from, to ReviewStatus
		ok       bool
	}{
		{"", ReviewSubmitted, true},
		{ReviewIncomplete, ReviewApproved, false},
		{ReviewSubmitted, ReviewReviewing, true},
		{ReviewReviewing, ReviewRejected, true},
		{ReviewRejected, ReviewSubmitted, true},
		{ReviewRejected, ReviewApproved, false},
		{ReviewApproved, ReviewApproved, true},
	}
	for _, tc := range cases {
		err := p.CheckReview(tc.from, tc.to)
		if (err == nil) != tc.ok {
			t.Fatalf("CheckReview(%q,%q) err=%v want ok=%v", tc.from, tc.to, err, tc.ok)
		}
	}
	if err := p.CheckProject(ProjectContact, ProjectPayout); err != nil {
		t.Fatalf("forward jump should be allowed: %v", err)
	}
	if err := p.CheckProject(ProjectPayout, ProjectBetting); !errors.Is(err, ErrTransition) {
		t.Fatalf("expected backwards move to fail, got %v", err)
	}
}

func TestPolicyByName(t *testing.T) {
	if p, err := PolicyByName(""); err != nil || p == nil {
		t.Fatalf("expected default policy, err=%v", err)
	}
	if _, ok := mustPolicy(t, "STRICT").(Strict); !ok {
		t.Fatalf("expected Strict policy")
	}
	if _, err := PolicyByName("chaotic"); err == nil {
		t.Fatalf("expected unknown policy to fail")
	}
}

func mustPolicy(t *testing.T, name string) Policy {
	t.Helper()
	p, err := PolicyByName(name)
	if err != nil {
		t.Fatalf("PolicyByName(%q): %v", name, err)
	}
	return p
}
