package store

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"betclever/internal/auth"
	"betclever/internal/db"
	"betclever/internal/kv"
	"betclever/internal/models"
	"betclever/internal/status"
)

// tickClock advances one millisecond per call so timestamp ids stay distinct.
type tickClock struct {
	mu  sync.Mutex
	cur time.Time
}

func newTickClock() *tickClock {
	return &tickClock{cur: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)}
}

func (c *tickClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cur = c.cur.Add(time.Millisecond)
	return c.cur
}

func (c *tickClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.cur = c.cur.Add(d)
	c.mu.Unlock()
}

func newTestStore(t *testing.T, opts ...Option) (*Store, *tickClock) {
	t.Helper()
	clock := newTickClock()
	base := []Option{WithPasswordParams(auth.FastParams), WithClock(clock.Now)}
	return New(kv.NewMemory(), append(base, opts...)...), clock
}

func newSQLiteStore(t *testing.T) *Store {
	t.Helper()
	sqdb, err := db.OpenSQLite(filepath.Join(t.TempDir(), "store.db"), 1, 1, time.Minute)
	require.NoError(t, err)
	require.NoError(t, db.Migrate(context.Background(), sqdb, db.SQLite))
	st := New(kv.NewSQL(sqdb, db.SQLite), WithPasswordParams(auth.FastParams), WithClock(newTickClock().Now))
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func TestBootstrapSeedsSingleAdmin(t *testing.T) {
	st, _ := newTestStore(t)
	ctx := context.Background()

	accts, err := st.Accounts.BootstrapOrLoad(ctx)
	require.NoError(t, err)
	require.Len(t, accts, 1)
	assert.Equal(t, "1", accts[0].ID)
	assert.Equal(t, "admin@betclever.de", accts[0].Email)
	assert.True(t, accts[0].IsAdmin)
	assert.NotEqual(t, DefaultBootstrapAdmin.Password, accts[0].PasswordHash)

	again, err := st.Accounts.BootstrapOrLoad(ctx)
	require.NoError(t, err)
	assert.Len(t, again, 1)

	u, err := st.Accounts.Authenticate(ctx, "ADMIN@betclever.de", DefaultBootstrapAdmin.Password)
	require.NoError(t, err)
	assert.Equal(t, models.SessionUser{ID: "1", Email: "admin@betclever.de", IsAdmin: true}, u)
}

func TestAuthenticateCaseInsensitiveEmailExactPassword(t *testing.T) {
	st, _ := newTestStore(t)
	ctx := context.Background()

	_, err := st.Accounts.Register(ctx, "Anna@Example.de", "pw123456", true)
	require.NoError(t, err)

	u, err := st.Accounts.Authenticate(ctx, "anna@example.DE", "pw123456")
	require.NoError(t, err)
	assert.Equal(t, "Anna@Example.de", u.Email)
	assert.False(t, u.IsAdmin)

	_, err = st.Accounts.Authenticate(ctx, "anna@example.de", "PW123456")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = st.Accounts.Authenticate(ctx, "other@example.de", "pw123456")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestRegisterScenario(t *testing.T) {
	st, _ := newTestStore(t)
	ctx := context.Background()

	u, err := st.Accounts.Register(ctx, "a@x.de", "pw123456", true)
	require.NoError(t, err)
	assert.NotEmpty(t, u.ID)
	assert.Equal(t, "a@x.de", u.Email)

	raw, sess, err := st.Sessions.Create(ctx, u, "", "")
	require.NoError(t, err)
	assert.Equal(t, u, sess.User)
	got, err := st.Sessions.Get(ctx, raw)
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.User.ID)

	_, err = st.Accounts.Register(ctx, "A@X.DE", "other-pass", true)
	assert.ErrorIs(t, err, ErrEmailTaken)

	accts, err := st.Accounts.List(ctx)
	require.NoError(t, err)
	count := 0
	for _, a := range accts {
		if normalizeEmail(a.Email) == "a@x.de" {
			count++
		}
	}
	assert.Equal(t, 1, count)
}

func TestRegisterRequiresTerms(t *testing.T) {
	st, _ := newTestStore(t)
	ctx := context.Background()

	_, err := st.Accounts.Register(ctx, "b@x.de", "pw123456", false)
	assert.ErrorIs(t, err, ErrTermsNotAccepted)

	accts, err := st.Accounts.List(ctx)
	require.NoError(t, err)
	assert.Len(t, accts, 1)
}

func TestRegisterConcurrentSameEmail(t *testing.T) {
	st, _ := newTestStore(t)
	ctx := context.Background()
	_, err := st.Accounts.List(ctx)
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make([]error, 6)
	for i := range errs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = st.Accounts.Register(ctx, "race@x.de", "pw123456", true)
		}()
	}
	wg.Wait()

	ok := 0
	for _, err := range errs {
		if err == nil {
			ok++
			continue
		}
		assert.ErrorIs(t, err, ErrEmailTaken)
	}
	assert.Equal(t, 1, ok)

	accts, err := st.Accounts.List(ctx)
	require.NoError(t, err)
	assert.Len(t, accts, 2)
}

func TestRegisterSameMillisecondGetsNextID(t *testing.T) {
	fixed := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	st := New(kv.NewMemory(), WithPasswordParams(auth.FastParams), WithClock(func() time.Time { return fixed }))
	ctx := context.Background()

	a, err := st.Accounts.Register(ctx, "one@x.de", "pw123456", true)
	require.NoError(t, err)
	b, err := st.Accounts.Register(ctx, "two@x.de", "pw123456", true)
	require.NoError(t, err)
	assert.NotEqual(t, a.ID, b.ID)
}

func TestChangePasswordAndRemove(t *testing.T) {
	st, _ := newTestStore(t)
	ctx := context.Background()

	u, err := st.Accounts.Register(ctx, "c@x.de", "pw123456", true)
	require.NoError(t, err)

	require.NoError(t, st.Accounts.ChangePassword(ctx, u.ID, "newpass99"))
	_, err = st.Accounts.Authenticate(ctx, "c@x.de", "pw123456")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = st.Accounts.Authenticate(ctx, "c@x.de", "newpass99")
	require.NoError(t, err)

	assert.ErrorIs(t, st.Accounts.ChangePassword(ctx, "nope", "x"), ErrNotFound)

	_, err = st.Profiles.Save(ctx, u.ID, models.Profile{FirstName: "Carla"})
	require.NoError(t, err)

	require.NoError(t, st.Accounts.Remove(ctx, u.ID))
	assert.ErrorIs(t, st.Accounts.Remove(ctx, u.ID), ErrNotFound)

	// no cascade
	prof, err := st.Profiles.Get(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "Carla", prof.FirstName)

	// the address is free again
	_, err = st.Accounts.Register(ctx, "c@x.de", "pw123456", true)
	require.NoError(t, err)
}

func TestSessionsExpireAndRevoke(t *testing.T) {
	st, clock := newTestStore(t, WithSessionTTL(time.Hour, 10*time.Minute))
	ctx := context.Background()
	u := models.SessionUser{ID: "9", Email: "s@x.de"}

	raw, _, err := st.Sessions.Create(ctx, u, "", "")
	require.NoError(t, err)

	clock.Advance(9 * time.Minute)
	_, err = st.Sessions.Get(ctx, raw)
	require.NoError(t, err)

	clock.Advance(9 * time.Minute)
	_, err = st.Sessions.Get(ctx, raw)
	require.NoError(t, err, "touch should extend idle expiry")

	clock.Advance(11 * time.Minute)
	_, err = st.Sessions.Get(ctx, raw)
	assert.ErrorIs(t, err, ErrNotFound)

	raw2, _, err := st.Sessions.Create(ctx, u, "", "")
	require.NoError(t, err)
	require.NoError(t, st.Sessions.Delete(ctx, raw2))
	require.NoError(t, st.Sessions.Delete(ctx, raw2))
	_, err = st.Sessions.Get(ctx, raw2)
	assert.ErrorIs(t, err, ErrNotFound)

	raw3, _, err := st.Sessions.Create(ctx, u, "", "")
	require.NoError(t, err)
	other, _, err := st.Sessions.Create(ctx, models.SessionUser{ID: "10"}, "", "")
	require.NoError(t, err)
	require.NoError(t, st.Sessions.DeleteForUser(ctx, "9"))
	_, err = st.Sessions.Get(ctx, raw3)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = st.Sessions.Get(ctx, other)
	assert.NoError(t, err)
}

func TestProfileRoundTripNormalizesBirthDate(t *testing.T) {
	for name, st := range map[string]*Store{"memory": func() *Store { s, _ := newTestStore(t); return s }(), "sqlite": newSQLiteStore(t)} {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			in := models.Profile{
				FirstName: "Max", LastName: "Muster", Email: "max@x.de", Phone: "+49 1701234567",
				BirthDate: "1990-05-01", Street: "Hauptstraße", HouseNumber: "5", ZipCode: "10115", City: "Berlin",
				IsSubmitted: true, Status: status.ReviewSubmitted, ProjectStatus: status.ProjectContact,
			}
			_, err := st.Profiles.Save(ctx, "42", in)
			require.NoError(t, err)

			out, err := st.Profiles.Get(ctx, "42")
			require.NoError(t, err)
			want := in
			want.BirthDate = "1990-05-01T00:00:00.000Z"
			assert.Equal(t, want, out)

			all, err := st.Profiles.GetAll(ctx)
			require.NoError(t, err)
			assert.Equal(t, want, all["42"])
		})
	}
}

func TestNormalizeBirthDate(t *testing.T) {
	cases := map[string]string{
		"":                          "",
		"1990-05-01":                "1990-05-01T00:00:00.000Z",
		"01.05.1990":                "1990-05-01T00:00:00.000Z",
		"1990-05-01T00:00:00.000Z":  "1990-05-01T00:00:00.000Z",
		"1990-05-01T02:30:00+02:00": "1990-05-01T00:30:00.000Z",
	}
	for in, want := range cases {
		got, err := NormalizeBirthDate(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := NormalizeBirthDate("gestern")
	assert.ErrorIs(t, err, ErrInvalidBirthDate)
}

func TestSetReviewStatusSubmittedFlag(t *testing.T) {
	st, _ := newTestStore(t)
	ctx := context.Background()

	_, err := st.Profiles.SetReviewStatus(ctx, "missing", status.ReviewApproved)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = st.Profiles.Save(ctx, "7", models.Profile{FirstName: "Eva", IsSubmitted: true, Status: status.ReviewSubmitted})
	require.NoError(t, err)

	for _, s := range []status.ReviewStatus{status.ReviewRejected, status.ReviewReviewing, status.ReviewRejected, status.ReviewApproved, status.ReviewIncomplete} {
		prof, err := st.Profiles.SetReviewStatus(ctx, "7", s)
		require.NoError(t, err)
		assert.Equal(t, s, prof.Status)
		assert.Equal(t, s != status.ReviewRejected, prof.IsSubmitted, s)

		stored, err := st.Profiles.Get(ctx, "7")
		require.NoError(t, err)
		assert.Equal(t, prof, stored)
		assert.Equal(t, s == status.ReviewRejected, stored.Editable())
	}
}

func TestStrictPolicyRejectsTransition(t *testing.T) {
	st, _ := newTestStore(t, WithPolicy(status.Strict{}))
	ctx := context.Background()

	_, err := st.Profiles.Save(ctx, "7", models.Profile{IsSubmitted: true, Status: status.ReviewApproved, ProjectStatus: status.ProjectBetting})
	require.NoError(t, err)

	_, err = st.Profiles.SetReviewStatus(ctx, "7", status.ReviewRejected)
	assert.ErrorIs(t, err, status.ErrTransition)
	_, err = st.Profiles.SetProjectStatus(ctx, "7", status.ProjectContact)
	assert.ErrorIs(t, err, status.ErrTransition)

	prof, err := st.Profiles.SetProjectStatus(ctx, "7", status.ProjectPayout)
	require.NoError(t, err)
	assert.Equal(t, status.ProjectPayout, prof.ProjectStatus)
}

func TestProjectStatusJumpAndSteps(t *testing.T) {
	st, _ := newTestStore(t)
	ctx := context.Background()
	_, err := st.Profiles.Save(ctx, "7", models.Profile{ProjectStatus: status.ProjectContact})
	require.NoError(t, err)

	prof, err := st.Profiles.SetProjectStatus(ctx, "7", status.ProjectPayout)
	require.NoError(t, err)

	steps := status.Steps(prof.ProjectStatus)
	for _, s := range steps {
		switch {
		case s.ID == status.ProjectPayout:
			assert.Equal(t, status.StepCurrent, s.State)
		case s.ID.Index() < status.ProjectPayout.Index():
			assert.Equal(t, status.StepCompleted, s.State, s.ID)
		default:
			assert.Equal(t, status.StepUpcoming, s.State, s.ID)
		}
	}
}

func TestPendingProfiles(t *testing.T) {
	st, _ := newTestStore(t)
	ctx := context.Background()
	for id, s := range map[string]status.ReviewStatus{
		"1": "", "2": status.ReviewSubmitted, "3": status.ReviewReviewing, "4": status.ReviewApproved, "5": status.ReviewRejected,
	} {
		_, err := st.Profiles.Save(ctx, id, models.Profile{Status: s})
		require.NoError(t, err)
	}
	pending, err := st.Profiles.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, "2", pending[0].UserID)
	assert.Equal(t, "3", pending[1].UserID)
}

func TestCorruptRecordSurfacesError(t *testing.T) {
	backend := kv.NewMemory()
	st := New(backend, WithPasswordParams(auth.FastParams))
	ctx := context.Background()
	_, err := backend.Put(ctx, nsProfiles, "7", []byte("{not json"), kv.AnyVersion)
	require.NoError(t, err)

	_, err = st.Profiles.Get(ctx, "7")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
	_, err = st.Profiles.GetAll(ctx)
	assert.Error(t, err)
}
