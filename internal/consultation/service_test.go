package consultation_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"audit-portal/internal/audit"
	"audit-portal/internal/consultation"
	"audit-portal/internal/ledger"
	"audit-portal/internal/quoting"
	"audit-portal/internal/rbac"
	"audit-portal/internal/store"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	auditor = consultation.Caller{ID: "aud-1", Role: rbac.RoleAuditor}
	admin   = consultation.Caller{ID: "adm-1", Role: rbac.RoleAdmin}
	owner   = consultation.Caller{ID: "co-1", Role: rbac.RoleCompany}
	other   = consultation.Caller{ID: "co-2", Role: rbac.RolePartner}
)

type published struct {
	topic string
	event string
}

type recorder struct {
	mu     sync.Mutex
	events []published
}

func (r *recorder) Publish(topic, event string, _ any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, published{topic: topic, event: event})
}

func (r *recorder) all() []published {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]published(nil), r.events...)
}

type fixture struct {
	mem *store.Memory
	svc *consultation.Service
	pub *recorder
	now time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mem := store.NewMemory()
	require.NoError(t, mem.SeedCategories(context.Background(), []quoting.Category{
		{ID: "tax-review", Name: "Tax Review", Hours: 3 * ledger.Hour},
		{ID: "custom", Name: "Custom", IsCustom: true},
	}))
	f := &fixture{mem: mem, pub: &recorder{}, now: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)}
	f.svc = consultation.NewService(mem, consultation.Options{
		Audit:     consultation.AuditAdapter{Audit: audit.NewService(mem)},
		Publisher: f.pub,
		Clock:     func() time.Time { return f.now },
	})
	return f
}

func (f *fixture) fund(t *testing.T, collab string, h ledger.Hours) {
	t.Helper()
	if h == 0 {
		return
	}
	_, err := ledger.NewService(f.mem.Ledger(), nil).CreditPurchase(context.Background(), collab, h, "test", "test:"+uuid.NewString())
	require.NoError(t, err)
}

func (f *fixture) balance(t *testing.T, collab string) ledger.Hours {
	t.Helper()
	b, err := ledger.NewService(f.mem.Ledger(), nil).GetBalance(context.Background(), collab)
	require.NoError(t, err)
	return b.Available
}

func (f *fixture) create(t *testing.T, urgent bool) consultation.Consultation {
	t.Helper()
	c, err := f.svc.Create(context.Background(), owner, consultation.NewConsultation{Title: "  Annual review ", Urgent: urgent})
	require.NoError(t, err)
	return c
}

func category(id string) *string { return &id }

func hoursPtr(h ledger.Hours) *ledger.Hours { return &h }

func TestCreate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	c := f.create(t, false)
	assert.Equal(t, "Annual review", c.Title)
	assert.Equal(t, consultation.StatusPending, c.Status)
	assert.Equal(t, consultation.MeetingPending, c.MeetingStatus)
	assert.Nil(t, c.HoursAssigned)
	assert.Equal(t, owner.ID, c.OwnerID)

	_, err := f.svc.Create(ctx, auditor, consultation.NewConsultation{Title: "x"})
	require.ErrorIs(t, err, consultation.ErrUnauthorized)

	_, err = f.svc.Create(ctx, owner, consultation.NewConsultation{Title: "   "})
	require.ErrorIs(t, err, consultation.ErrInvalidArgument)

	_, err = f.svc.Create(ctx, owner, consultation.NewConsultation{Title: "x", CategoryID: category("nope")})
	require.ErrorIs(t, err, consultation.ErrNotFound)

	// creation opens a zero balance
	_, err = f.mem.Ledger().GetBalance(ctx, owner.ID)
	require.NoError(t, err)
}

func TestScenarioA_QuoteThenAccept(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.fund(t, owner.ID, 5*ledger.Hour)
	c := f.create(t, false)

	q, err := f.svc.Quote(ctx, auditor, c.ID, consultation.QuoteInput{CategoryID: category("tax-review")})
	require.NoError(t, err)
	assert.False(t, q.AutoAccepted)
	assert.Equal(t, consultation.StatusQuoted, q.Consultation.Status)
	require.NotNil(t, q.Consultation.HoursAssigned)
	assert.Equal(t, 3*ledger.Hour, *q.Consultation.HoursAssigned)
	assert.Equal(t, 5*ledger.Hour, f.balance(t, owner.ID), "quoting never debits")

	got, err := f.svc.Accept(ctx, owner, c.ID)
	require.NoError(t, err)
	assert.Equal(t, consultation.StatusAccepted, got.Status)
	assert.NotNil(t, got.AcceptedAt)
	assert.Equal(t, 2*ledger.Hour, f.balance(t, owner.ID))

	evs, err := f.mem.AuditEvents(ctx, c.ID)
	require.NoError(t, err)
	require.Len(t, evs, 3)
	assert.Equal(t, "ACCEPTED", evs[2].ToStatus)
	assert.Equal(t, -3*ledger.Hour, evs[2].Hours)
}

func TestScenarioB_UrgentQuoteAutoAcceptsUnderfunded(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.fund(t, owner.ID, 2*ledger.Hour)
	c := f.create(t, true)

	q, err := f.svc.Quote(ctx, auditor, c.ID, consultation.QuoteInput{CategoryID: category("tax-review")})
	require.NoError(t, err)
	assert.True(t, q.AutoAccepted)
	assert.Equal(t, consultation.StatusAccepted, q.Consultation.Status)
	assert.Equal(t, 2*ledger.Hour, q.HoursDebited)
	assert.Equal(t, 1*ledger.Hour, q.Shortfall)
	assert.Equal(t, ledger.Hours(0), f.balance(t, owner.ID))

	stored, err := f.svc.Get(ctx, owner, c.ID)
	require.NoError(t, err)
	assert.Equal(t, consultation.StatusAccepted, stored.Status)
	assert.Equal(t, 3*ledger.Hour, *stored.HoursAssigned)

	// already accepted; a manual accept cannot debit again
	_, err = f.svc.Accept(ctx, owner, c.ID)
	require.ErrorIs(t, err, consultation.ErrInvalidTransition)
	assert.Equal(t, ledger.Hours(0), f.balance(t, owner.ID))
}

func TestScenarioC_SurchargeChargedOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.fund(t, owner.ID, 4*ledger.Hour)
	c := f.create(t, false)

	_, err := f.svc.Quote(ctx, auditor, c.ID, consultation.QuoteInput{CustomHours: hoursPtr(4 * ledger.Hour)})
	require.NoError(t, err)
	_, err = f.svc.Accept(ctx, owner, c.ID)
	require.NoError(t, err)
	f.fund(t, owner.ID, 1*ledger.Hour)

	link := " https://meet.example/abc "
	res, err := f.svc.ScheduleMeeting(ctx, owner, c.ID, consultation.ScheduleInput{Date: f.now.Add(48 * time.Hour), Link: &link})
	require.NoError(t, err)
	assert.Equal(t, ledger.Hours(60), res.Surcharge)
	assert.Equal(t, consultation.MeetingScheduled, res.Consultation.MeetingStatus)
	assert.Equal(t, "https://meet.example/abc", *res.Consultation.MeetingLink)
	assert.Equal(t, rbac.RoleCompany, *res.Consultation.MeetingRequestedBy)
	assert.Equal(t, ledger.Hours(40), f.balance(t, owner.ID))

	res, err = f.svc.ScheduleMeeting(ctx, auditor, c.ID, consultation.ScheduleInput{Date: f.now.Add(72 * time.Hour)})
	require.NoError(t, err)
	assert.Equal(t, ledger.Hours(0), res.Surcharge)
	assert.Equal(t, rbac.RoleAuditor, *res.Consultation.MeetingRequestedBy)
	assert.Equal(t, "https://meet.example/abc", *res.Consultation.MeetingLink)
	assert.Equal(t, ledger.Hours(40), f.balance(t, owner.ID))

	entries, err := f.mem.Ledger().ListEntries(ctx, owner.ID, 0)
	require.NoError(t, err)
	var surcharges int
	for _, e := range entries {
		if e.Reason == ledger.ReasonMeetingSurcharge {
			surcharges++
		}
	}
	assert.Equal(t, 1, surcharges)
}

func TestAccept_InsufficientHoursChangesNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.fund(t, owner.ID, 2*ledger.Hour)
	c := f.create(t, false)
	_, err := f.svc.Quote(ctx, auditor, c.ID, consultation.QuoteInput{CategoryID: category("tax-review")})
	require.NoError(t, err)

	_, err = f.svc.Accept(ctx, owner, c.ID)
	require.ErrorIs(t, err, ledger.ErrInsufficientHours)
	ih, ok := consultation.IsInsufficientHours(err)
	require.True(t, ok)
	assert.Equal(t, 3*ledger.Hour, ih.Required)
	assert.Equal(t, 2*ledger.Hour, ih.Available)

	stored, err := f.svc.Get(ctx, owner, c.ID)
	require.NoError(t, err)
	assert.Equal(t, consultation.StatusQuoted, stored.Status)
	assert.Equal(t, 2*ledger.Hour, f.balance(t, owner.ID))
}

func TestAccept_OwnerOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.fund(t, owner.ID, 5*ledger.Hour)
	c := f.create(t, false)
	_, err := f.svc.Quote(ctx, auditor, c.ID, consultation.QuoteInput{CategoryID: category("tax-review")})
	require.NoError(t, err)

	for _, caller := range []consultation.Caller{other, auditor, admin} {
		_, err := f.svc.Accept(ctx, caller, c.ID)
		require.ErrorIs(t, err, consultation.ErrUnauthorized, caller.Role)
	}
	assert.Equal(t, 5*ledger.Hour, f.balance(t, owner.ID))
}

func TestAccept_ConcurrentCallsDebitOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.fund(t, owner.ID, 5*ledger.Hour)
	c := f.create(t, false)
	_, err := f.svc.Quote(ctx, auditor, c.ID, consultation.QuoteInput{CategoryID: category("tax-review")})
	require.NoError(t, err)

	const n = 8
	errs := make([]error, n)
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			_, errs[i] = f.svc.Accept(ctx, owner, c.ID)
		}(i)
	}
	close(start)
	wg.Wait()

	var ok, invalid int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, consultation.ErrInvalidTransition), errors.Is(err, ledger.ErrInsufficientHours):
			invalid++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, n-1, invalid)
	assert.Equal(t, 2*ledger.Hour, f.balance(t, owner.ID))
}

func TestQuote_Rules(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.create(t, false)

	_, err := f.svc.Quote(ctx, owner, c.ID, consultation.QuoteInput{CustomHours: hoursPtr(ledger.Hour)})
	require.ErrorIs(t, err, consultation.ErrUnauthorized)

	_, err = f.svc.Quote(ctx, auditor, c.ID, consultation.QuoteInput{})
	require.ErrorIs(t, err, quoting.ErrInvalidQuoteInput)

	_, err = f.svc.Quote(ctx, auditor, c.ID, consultation.QuoteInput{CustomHours: hoursPtr(-1)})
	require.ErrorIs(t, err, quoting.ErrInvalidQuoteInput)

	_, err = f.svc.Quote(ctx, auditor, "missing", consultation.QuoteInput{CustomHours: hoursPtr(ledger.Hour)})
	require.ErrorIs(t, err, consultation.ErrNotFound)

	q, err := f.svc.Quote(ctx, admin, c.ID, consultation.QuoteInput{CategoryID: category("custom"), CustomHours: hoursPtr(150)})
	require.NoError(t, err)
	assert.Equal(t, ledger.Hours(150), *q.Consultation.HoursAssigned)
	assert.Equal(t, "custom", *q.Consultation.CategoryID)
	assert.NotNil(t, q.Consultation.QuotedAt)

	_, err = f.svc.Quote(ctx, auditor, c.ID, consultation.QuoteInput{CustomHours: hoursPtr(ledger.Hour)})
	require.ErrorIs(t, err, consultation.ErrInvalidTransition)
}

func TestQuote_FixedCategoryDropsCustomHours(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.create(t, false)

	q, err := f.svc.Quote(ctx, auditor, c.ID, consultation.QuoteInput{CategoryID: category("tax-review"), CustomHours: hoursPtr(7 * ledger.Hour)})
	require.NoError(t, err)
	assert.Equal(t, 3*ledger.Hour, *q.Consultation.HoursAssigned)
	assert.Nil(t, q.Consultation.HoursCustom)

	stored, err := f.svc.Get(ctx, owner, c.ID)
	require.NoError(t, err)
	assert.Equal(t, 3*ledger.Hour, *stored.HoursAssigned)
	assert.Nil(t, stored.HoursCustom)

	d := f.create(t, false)
	q, err = f.svc.Quote(ctx, auditor, d.ID, consultation.QuoteInput{CategoryID: category("custom"), CustomHours: hoursPtr(150)})
	require.NoError(t, err)
	require.NotNil(t, q.Consultation.HoursCustom)
	assert.Equal(t, ledger.Hours(150), *q.Consultation.HoursCustom)
}

func TestReject_TwiceIsInvalid(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.create(t, false)
	_, err := f.svc.Quote(ctx, auditor, c.ID, consultation.QuoteInput{CategoryID: category("tax-review")})
	require.NoError(t, err)

	got, err := f.svc.Reject(ctx, owner, c.ID)
	require.NoError(t, err)
	assert.Equal(t, consultation.StatusRejected, got.Status)

	_, err = f.svc.Reject(ctx, owner, c.ID)
	require.ErrorIs(t, err, consultation.ErrInvalidTransition)

	_, err = f.svc.Accept(ctx, owner, c.ID)
	require.ErrorIs(t, err, consultation.ErrInvalidTransition)
}

func TestStartCompleteAndFeedback(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.fund(t, owner.ID, 3*ledger.Hour)
	c := f.create(t, false)

	_, err := f.svc.Complete(ctx, auditor, c.ID)
	require.ErrorIs(t, err, consultation.ErrInvalidTransition)
	_, err = f.svc.SetFeedback(ctx, auditor, c.ID, "early")
	require.ErrorIs(t, err, consultation.ErrInvalidTransition)

	_, err = f.svc.Quote(ctx, auditor, c.ID, consultation.QuoteInput{CategoryID: category("tax-review")})
	require.NoError(t, err)
	_, err = f.svc.Accept(ctx, owner, c.ID)
	require.NoError(t, err)

	_, err = f.svc.Start(ctx, owner, c.ID)
	require.ErrorIs(t, err, consultation.ErrUnauthorized)
	got, err := f.svc.Start(ctx, auditor, c.ID)
	require.NoError(t, err)
	assert.Equal(t, consultation.StatusInProgress, got.Status)

	got, err = f.svc.SetFeedback(ctx, auditor, c.ID, "  looks fine  ")
	require.NoError(t, err)
	assert.Equal(t, "looks fine", *got.Feedback)
	assert.Equal(t, consultation.StatusInProgress, got.Status)

	got, err = f.svc.Complete(ctx, auditor, c.ID)
	require.NoError(t, err)
	assert.Equal(t, consultation.StatusCompleted, got.Status)

	again, err := f.svc.Complete(ctx, auditor, c.ID)
	require.NoError(t, err)
	assert.Equal(t, consultation.StatusCompleted, again.Status)
	assert.Equal(t, ledger.Hours(0), f.balance(t, owner.ID))
}

func TestCancel(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	c := f.create(t, false)
	_, err := f.svc.Cancel(ctx, other, c.ID)
	require.ErrorIs(t, err, consultation.ErrUnauthorized)
	_, err = f.svc.Cancel(ctx, auditor, c.ID)
	require.ErrorIs(t, err, consultation.ErrUnauthorized)
	got, err := f.svc.Cancel(ctx, owner, c.ID)
	require.NoError(t, err)
	assert.Equal(t, consultation.StatusCancelled, got.Status)

	d := f.create(t, false)
	_, err = f.svc.Quote(ctx, auditor, d.ID, consultation.QuoteInput{CategoryID: category("tax-review")})
	require.NoError(t, err)
	got, err = f.svc.Cancel(ctx, admin, d.ID)
	require.NoError(t, err)
	assert.Equal(t, consultation.StatusCancelled, got.Status)
}

func TestMeeting_Rules(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.fund(t, owner.ID, 3*ledger.Hour)
	c := f.create(t, false)

	_, err := f.svc.ScheduleMeeting(ctx, owner, c.ID, consultation.ScheduleInput{Date: f.now})
	require.ErrorIs(t, err, consultation.ErrInvalidTransition, "not accepted yet")

	_, err = f.svc.Quote(ctx, auditor, c.ID, consultation.QuoteInput{CategoryID: category("tax-review")})
	require.NoError(t, err)
	_, err = f.svc.Accept(ctx, owner, c.ID)
	require.NoError(t, err)

	_, err = f.svc.ScheduleMeeting(ctx, owner, c.ID, consultation.ScheduleInput{})
	require.ErrorIs(t, err, consultation.ErrInvalidArgument)

	_, err = f.svc.ScheduleMeeting(ctx, other, c.ID, consultation.ScheduleInput{Date: f.now})
	require.ErrorIs(t, err, consultation.ErrUnauthorized)

	// balance is 0 and the surcharge on 3h is 0.45h
	_, err = f.svc.ScheduleMeeting(ctx, owner, c.ID, consultation.ScheduleInput{Date: f.now})
	require.ErrorIs(t, err, ledger.ErrInsufficientHours)
	stored, err := f.svc.Get(ctx, owner, c.ID)
	require.NoError(t, err)
	assert.Equal(t, consultation.MeetingPending, stored.MeetingStatus)

	_, err = f.svc.CompleteMeeting(ctx, auditor, c.ID)
	require.ErrorIs(t, err, consultation.ErrInvalidTransition)

	f.fund(t, owner.ID, ledger.Hour)
	res, err := f.svc.MeetingWidgetScheduled(ctx, owner, c.ID)
	require.NoError(t, err)
	assert.Equal(t, ledger.Hours(45), res.Surcharge)
	assert.True(t, res.Consultation.MeetingDate.Equal(f.now))

	got, err := f.svc.CancelMeeting(ctx, owner, c.ID)
	require.NoError(t, err)
	assert.Equal(t, consultation.MeetingCancelled, got.MeetingStatus)
	assert.Equal(t, ledger.Hours(55), f.balance(t, owner.ID), "cancel does not refund")

	res, err = f.svc.ScheduleMeeting(ctx, auditor, c.ID, consultation.ScheduleInput{Date: f.now.Add(time.Hour)})
	require.NoError(t, err)
	assert.Equal(t, ledger.Hours(0), res.Surcharge)

	_, err = f.svc.CompleteMeeting(ctx, owner, c.ID)
	require.ErrorIs(t, err, consultation.ErrUnauthorized)
	got, err = f.svc.CompleteMeeting(ctx, auditor, c.ID)
	require.NoError(t, err)
	assert.Equal(t, consultation.MeetingCompleted, got.MeetingStatus)

	_, err = f.svc.ScheduleMeeting(ctx, owner, c.ID, consultation.ScheduleInput{Date: f.now})
	require.ErrorIs(t, err, consultation.ErrInvalidTransition)
}

func TestGetAndList_Visibility(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	mine := f.create(t, false)
	theirs, err := f.svc.Create(ctx, other, consultation.NewConsultation{Title: "Partner question"})
	require.NoError(t, err)

	_, err = f.svc.Get(ctx, other, mine.ID)
	require.ErrorIs(t, err, consultation.ErrUnauthorized)
	_, err = f.svc.Get(ctx, auditor, mine.ID)
	require.NoError(t, err)

	list, err := f.svc.List(ctx, owner, consultation.Filter{OwnerID: other.ID})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, mine.ID, list[0].ID)

	list, err = f.svc.List(ctx, auditor, consultation.Filter{})
	require.NoError(t, err)
	assert.Len(t, list, 2)

	list, err = f.svc.List(ctx, auditor, consultation.Filter{OwnerID: other.ID})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, theirs.ID, list[0].ID)

	_, err = f.svc.List(ctx, auditor, consultation.Filter{Status: "BOGUS"})
	require.ErrorIs(t, err, consultation.ErrInvalidArgument)

	_, err = f.svc.List(ctx, consultation.Caller{ID: "x", Role: "guest"}, consultation.Filter{})
	require.ErrorIs(t, err, consultation.ErrUnauthorized)
}

func TestTransitionsArePublished(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.create(t, false)
	_, err := f.svc.Quote(ctx, auditor, c.ID, consultation.QuoteInput{CategoryID: category("tax-review")})
	require.NoError(t, err)
	_, err = f.svc.Reject(ctx, owner, c.ID)
	require.NoError(t, err)

	evs := f.pub.all()
	require.Len(t, evs, 2)
	for _, e := range evs {
		assert.Equal(t, c.ID, e.topic)
		assert.Equal(t, consultation.EventConsultationUpdated, e.event)
	}
}
