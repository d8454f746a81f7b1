package payment

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/clinicore/clinicore/internal/domain/audit"
	"github.com/clinicore/clinicore/internal/domain/session"
	"github.com/clinicore/clinicore/internal/platform/auth"
	"github.com/clinicore/clinicore/internal/platform/clock"
)

// -- Mocks --

type mockRepo struct {
	payments map[uuid.UUID]*Payment
	links    map[uuid.UUID]*PaymentSession
}

func newMockRepo() *mockRepo {
	return &mockRepo{
		payments: make(map[uuid.UUID]*Payment),
		links:    make(map[uuid.UUID]*PaymentSession),
	}
}

func (m *mockRepo) Create(_ context.Context, p *Payment) error {
	p.ID = uuid.New()
	p.CreatedAt = time.Now()
	p.UpdatedAt = time.Now()
	cp := *p
	m.payments[p.ID] = &cp
	return nil
}

func (m *mockRepo) GetByID(_ context.Context, id uuid.UUID) (*Payment, error) {
	p, ok := m.payments[id]
	if !ok {
		return nil, fmt.Errorf("not found")
	}
	cp := *p
	return &cp, nil
}

func (m *mockRepo) GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*Payment, error) {
	return m.GetByID(ctx, id)
}

func (m *mockRepo) ReceiptExists(_ context.Context, receipt string) (bool, error) {
	for _, p := range m.payments {
		if p.ReceiptNumber != nil && *p.ReceiptNumber == receipt {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockRepo) MarkVoided(_ context.Context, id uuid.UUID) (bool, error) {
	p, ok := m.payments[id]
	if !ok || p.Status != StatusCompleted {
		return false, nil
	}
	p.Status = StatusVoided
	return true, nil
}

func (m *mockRepo) CreateLink(_ context.Context, l *PaymentSession) error {
	l.ID = uuid.New()
	l.CreatedAt = time.Now()
	cp := *l
	m.links[l.ID] = &cp
	return nil
}

func (m *mockRepo) CountLinks(_ context.Context, paymentID uuid.UUID) (int, error) {
	count := 0
	for _, l := range m.links {
		if l.PaymentID == paymentID {
			count++
		}
	}
	return count, nil
}

func (m *mockRepo) LinkExistsForSession(_ context.Context, sessionID uuid.UUID) (bool, error) {
	for _, l := range m.links {
		if l.SessionID == sessionID {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockRepo) ListLinks(_ context.Context, paymentID uuid.UUID) ([]*PaymentSession, error) {
	var result []*PaymentSession
	for _, l := range m.links {
		if l.PaymentID == paymentID {
			result = append(result, l)
		}
	}
	return result, nil
}

func (m *mockRepo) ListAdvanceByClient(ctx context.Context, clientID uuid.UUID) ([]*AdvanceCredit, error) {
	var result []*AdvanceCredit
	for _, p := range m.payments {
		if p.ClientID != clientID || p.CreditType != CreditAdvance || p.Status != StatusCompleted {
			continue
		}
		used, _ := m.CountLinks(ctx, p.ID)
		if p.SessionsPaid-used <= 0 {
			continue
		}
		cp := *p
		result = append(result, &AdvanceCredit{
			Payment:           &cp,
			SessionsUsed:      used,
			SessionsRemaining: p.SessionsPaid - used,
		})
	}
	return result, nil
}

func (m *mockRepo) SumCompletedForRange(_ context.Context, clinicID uuid.UUID, from, to time.Time) (decimal.Decimal, error) {
	sum := decimal.Zero
	for _, p := range m.payments {
		if p.ClinicID != clinicID || p.Status != StatusCompleted || p.CreditType == CreditNoPayment {
			continue
		}
		if p.PaymentDate.Before(from) || !p.PaymentDate.Before(to) {
			continue
		}
		sum = sum.Add(p.Amount)
	}
	return sum, nil
}

func (m *mockRepo) Search(_ context.Context, params map[string]string, limit, offset int) ([]*Payment, int, error) {
	var result []*Payment
	for _, p := range m.payments {
		result = append(result, p)
	}
	return result, len(result), nil
}

func (m *mockRepo) HasLinkedPaymentForDay(_ context.Context, clientID, clinicID uuid.UUID, day time.Time) (bool, error) {
	for _, l := range m.links {
		p, ok := m.payments[l.PaymentID]
		if ok && p.ClientID == clientID && p.ClinicID == clinicID && p.Status == StatusCompleted {
			return true, nil
		}
	}
	return false, nil
}

type mockRateRepo struct {
	rates []*SessionRate
}

func (m *mockRateRepo) Create(_ context.Context, r *SessionRate) error {
	r.ID = uuid.New()
	r.CreatedAt = time.Now()
	m.rates = append(m.rates, r)
	return nil
}

func (m *mockRateRepo) ListByClinic(_ context.Context, clinicID uuid.UUID) ([]*SessionRate, error) {
	var result []*SessionRate
	for _, r := range m.rates {
		if r.ClinicID == clinicID {
			result = append(result, r)
		}
	}
	return result, nil
}

func (m *mockRateRepo) Resolve(_ context.Context, clinicID uuid.UUID, role string, asOf time.Time) (decimal.Decimal, error) {
	var best *SessionRate
	for _, r := range m.rates {
		if r.ClinicID != clinicID || r.Role != role || r.EffectiveFrom.After(asOf) {
			continue
		}
		if r.EffectiveTo != nil && r.EffectiveTo.Before(asOf) {
			continue
		}
		if best == nil || r.EffectiveFrom.After(best.EffectiveFrom) {
			best = r
		}
	}
	if best == nil {
		return decimal.Zero, nil
	}
	return best.Rate, nil
}

type mockSessions struct {
	sessions map[uuid.UUID]*session.Session
}

func newMockSessions() *mockSessions {
	return &mockSessions{sessions: make(map[uuid.UUID]*session.Session)}
}

func (m *mockSessions) GetByID(_ context.Context, id uuid.UUID) (*session.Session, error) {
	s, ok := m.sessions[id]
	if !ok {
		return nil, fmt.Errorf("not found")
	}
	cp := *s
	return &cp, nil
}

func (m *mockSessions) add(clientID, clinicID uuid.UUID) uuid.UUID {
	id := uuid.New()
	m.sessions[id] = &session.Session{
		ID:       id,
		ClinicID: clinicID,
		ClientID: &clientID,
		Status:   session.StatusScheduled,
	}
	return id
}

type mockRecorder struct {
	entries []*audit.Entry
}

func (m *mockRecorder) Record(_ context.Context, e *audit.Entry) error {
	m.entries = append(m.entries, e)
	return nil
}

func passthroughTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// -- Helpers --

var testNow = time.Date(2024, 7, 1, 10, 0, 0, 0, time.UTC)

type fixture struct {
	repo     *mockRepo
	rates    *mockRateRepo
	sessions *mockSessions
	rec      *mockRecorder
	svc      *Service
}

func newFixture() *fixture {
	f := &fixture{
		repo:     newMockRepo(),
		rates:    &mockRateRepo{},
		sessions: newMockSessions(),
		rec:      &mockRecorder{},
	}
	f.svc = NewService(f.repo, f.rates, f.sessions, f.rec, passthroughTx, clock.Fixed(testNow))
	return f
}

func ownerCtx() context.Context {
	return auth.WithActor(context.Background(), auth.Actor{ID: uuid.New(), Role: auth.RoleOwner})
}

func therapistCtx() context.Context {
	clinic := uuid.New()
	return auth.WithActor(context.Background(), auth.Actor{
		ID: uuid.New(), Role: auth.RoleLicensedTherapist, HomeClinicID: &clinic,
	})
}

func validRequest(clinicID uuid.UUID) *RecordRequest {
	return &RecordRequest{
		ClinicID: clinicID,
		ClientID: uuid.New(),
		Amount:   decimal.NewFromInt(700),
	}
}

func strPtr(s string) *string { return &s }

// -- RecordPayment --

func TestRecordPayment_Valid(t *testing.T) {
	f := newFixture()
	p, err := f.svc.RecordPayment(ownerCtx(), validRequest(uuid.New()))
	if err != nil {
		t.Fatalf("RecordPayment() error: %v", err)
	}
	if p.Status != StatusCompleted {
		t.Errorf("expected completed, got %s", p.Status)
	}
	if p.Method != MethodCash || p.Source != SourceClient || p.CreditType != CreditRegular {
		t.Errorf("expected defaults, got %s/%s/%s", p.Method, p.Source, p.CreditType)
	}
	if p.SessionsPaid != 1 {
		t.Errorf("expected sessions_paid default 1, got %d", p.SessionsPaid)
	}
	if !p.PaymentDate.Equal(testNow) {
		t.Error("expected payment date defaulted to now")
	}
	if len(f.rec.entries) != 1 || f.rec.entries[0].Action != audit.ActionCreate {
		t.Error("expected one create audit entry")
	}
}

func TestRecordPayment_DuplicateReceipt(t *testing.T) {
	f := newFixture()
	clinic := uuid.New()

	first := validRequest(clinic)
	first.ReceiptNumber = strPtr("R-1001")
	if _, err := f.svc.RecordPayment(ownerCtx(), first); err != nil {
		t.Fatalf("RecordPayment() error: %v", err)
	}

	second := validRequest(clinic)
	second.ReceiptNumber = strPtr("R-1001")
	_, err := f.svc.RecordPayment(ownerCtx(), second)
	if !errors.Is(err, ErrDuplicateReceipt) {
		t.Fatalf("expected ErrDuplicateReceipt, got %v", err)
	}
}

func TestRecordPayment_TherapistForbidden(t *testing.T) {
	f := newFixture()
	_, err := f.svc.RecordPayment(therapistCtx(), validRequest(uuid.New()))
	if !errors.Is(err, auth.ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
}

func TestRecordPayment_NoPaymentMustBeZero(t *testing.T) {
	f := newFixture()
	req := validRequest(uuid.New())
	req.CreditType = CreditNoPayment
	if _, err := f.svc.RecordPayment(ownerCtx(), req); err == nil {
		t.Error("expected error for non-zero no_payment amount")
	}

	req2 := validRequest(uuid.New())
	req2.CreditType = CreditNoPayment
	req2.Amount = decimal.Zero
	req2.Method = MethodNone
	if _, err := f.svc.RecordPayment(ownerCtx(), req2); err != nil {
		t.Errorf("expected zero-amount no_payment to be accepted, got %v", err)
	}
}

func TestRecordPayment_MultiSessionRequiresAdvance(t *testing.T) {
	f := newFixture()
	req := validRequest(uuid.New())
	req.SessionsPaid = 4
	if _, err := f.svc.RecordPayment(ownerCtx(), req); err == nil {
		t.Error("expected error for multi-session regular payment")
	}
}

func TestRecordPayment_LinksSessionAtFaceValue(t *testing.T) {
	f := newFixture()
	clinic := uuid.New()

	req := validRequest(clinic)
	sessID := f.sessions.add(req.ClientID, clinic)
	req.SessionID = &sessID

	p, err := f.svc.RecordPayment(ownerCtx(), req)
	if err != nil {
		t.Fatalf("RecordPayment() error: %v", err)
	}
	links, _ := f.repo.ListLinks(context.Background(), p.ID)
	if len(links) != 1 {
		t.Fatalf("expected 1 link, got %d", len(links))
	}
	if !links[0].Amount.Equal(decimal.NewFromInt(700)) {
		t.Errorf("expected link amount 700, got %s", links[0].Amount)
	}
}

// -- Walk-in payments --

func TestRecordWalkInPayment_UnknownMethodCoercedToCash(t *testing.T) {
	f := newFixture()
	p := &Payment{
		ClinicID:   uuid.New(),
		ClientID:   uuid.New(),
		Amount:     decimal.NewFromInt(700),
		Method:     "crypto_wallet",
		RecordedBy: uuid.New(),
	}
	if err := f.svc.RecordWalkInPayment(context.Background(), p); err != nil {
		t.Fatalf("RecordWalkInPayment() error: %v", err)
	}
	if p.Method != MethodCash {
		t.Errorf("expected unknown method coerced to cash, got %s", p.Method)
	}
	stored, err := f.repo.GetByID(context.Background(), p.ID)
	if err != nil {
		t.Fatalf("GetByID() error: %v", err)
	}
	if stored.Method != MethodCash {
		t.Errorf("expected stored method cash, got %s", stored.Method)
	}
}

// -- Advance credits --

func newAdvance(t *testing.T, f *fixture, clinic uuid.UUID, amount int64, sessions int) *Payment {
	t.Helper()
	req := validRequest(clinic)
	req.CreditType = CreditAdvance
	req.Amount = decimal.NewFromInt(amount)
	req.SessionsPaid = sessions
	p, err := f.svc.RecordPayment(ownerCtx(), req)
	if err != nil {
		t.Fatalf("RecordPayment() error: %v", err)
	}
	return p
}

func TestLinkAdvance_SplitsEvenly(t *testing.T) {
	f := newFixture()
	clinic := uuid.New()
	adv := newAdvance(t, f, clinic, 2800, 4)

	for i := 0; i < 4; i++ {
		sessID := f.sessions.add(adv.ClientID, clinic)
		link, err := f.svc.LinkSessionToAdvance(ownerCtx(), adv.ID, sessID)
		if err != nil {
			t.Fatalf("link %d error: %v", i+1, err)
		}
		if !link.Amount.Equal(decimal.NewFromInt(700)) {
			t.Errorf("expected link amount 700, got %s", link.Amount)
		}
	}

	sessID := f.sessions.add(adv.ClientID, clinic)
	_, err := f.svc.LinkSessionToAdvance(ownerCtx(), adv.ID, sessID)
	if !errors.Is(err, ErrCreditExhausted) {
		t.Fatalf("expected ErrCreditExhausted on fifth link, got %v", err)
	}
}

func TestLinkAdvance_SessionAlreadyLinked(t *testing.T) {
	f := newFixture()
	clinic := uuid.New()
	adv := newAdvance(t, f, clinic, 2800, 4)

	sessID := f.sessions.add(adv.ClientID, clinic)
	if _, err := f.svc.LinkSessionToAdvance(ownerCtx(), adv.ID, sessID); err != nil {
		t.Fatalf("first link error: %v", err)
	}
	_, err := f.svc.LinkSessionToAdvance(ownerCtx(), adv.ID, sessID)
	if !errors.Is(err, ErrSessionAlreadyLinked) {
		t.Fatalf("expected ErrSessionAlreadyLinked, got %v", err)
	}
}

func TestLinkAdvance_WrongClient(t *testing.T) {
	f := newFixture()
	clinic := uuid.New()
	adv := newAdvance(t, f, clinic, 1400, 2)

	sessID := f.sessions.add(uuid.New(), clinic)
	if _, err := f.svc.LinkSessionToAdvance(ownerCtx(), adv.ID, sessID); err == nil {
		t.Error("expected error linking another client's session")
	}
}

func TestLinkAdvance_RegularPaymentRejected(t *testing.T) {
	f := newFixture()
	clinic := uuid.New()
	p, err := f.svc.RecordPayment(ownerCtx(), validRequest(clinic))
	if err != nil {
		t.Fatalf("RecordPayment() error: %v", err)
	}
	sessID := f.sessions.add(p.ClientID, clinic)
	if _, err := f.svc.LinkSessionToAdvance(ownerCtx(), p.ID, sessID); err == nil {
		t.Error("expected error linking through a regular payment")
	}
}

func TestListClientAdvanceCredits_FiltersExhausted(t *testing.T) {
	f := newFixture()
	clinic := uuid.New()
	client := uuid.New()

	open := validRequest(clinic)
	open.ClientID = client
	open.CreditType = CreditAdvance
	open.Amount = decimal.NewFromInt(2800)
	open.SessionsPaid = 4
	if _, err := f.svc.RecordPayment(ownerCtx(), open); err != nil {
		t.Fatalf("RecordPayment() error: %v", err)
	}

	spent := validRequest(clinic)
	spent.ClientID = client
	spent.CreditType = CreditAdvance
	spent.Amount = decimal.NewFromInt(700)
	spent.SessionsPaid = 1
	spentPayment, err := f.svc.RecordPayment(ownerCtx(), spent)
	if err != nil {
		t.Fatalf("RecordPayment() error: %v", err)
	}
	sessID := f.sessions.add(client, clinic)
	if _, err := f.svc.LinkSessionToAdvance(ownerCtx(), spentPayment.ID, sessID); err != nil {
		t.Fatalf("link error: %v", err)
	}

	credits, err := f.svc.ListClientAdvanceCredits(ownerCtx(), client)
	if err != nil {
		t.Fatalf("ListClientAdvanceCredits() error: %v", err)
	}
	if len(credits) != 1 {
		t.Fatalf("expected 1 open credit, got %d", len(credits))
	}
	if credits[0].SessionsRemaining != 4 {
		t.Errorf("expected 4 remaining, got %d", credits[0].SessionsRemaining)
	}
}

// -- Void --

func TestVoidPayment_Lifecycle(t *testing.T) {
	f := newFixture()
	p, err := f.svc.RecordPayment(ownerCtx(), validRequest(uuid.New()))
	if err != nil {
		t.Fatalf("RecordPayment() error: %v", err)
	}

	voided, err := f.svc.VoidPayment(ownerCtx(), p.ID, "entered twice")
	if err != nil {
		t.Fatalf("VoidPayment() error: %v", err)
	}
	if voided.Status != StatusVoided {
		t.Errorf("expected voided, got %s", voided.Status)
	}

	_, err = f.svc.VoidPayment(ownerCtx(), p.ID, "again")
	if !errors.Is(err, ErrNotVoidable) {
		t.Fatalf("expected ErrNotVoidable on second void, got %v", err)
	}
}

func TestVoidPayment_RequiresReason(t *testing.T) {
	f := newFixture()
	p, err := f.svc.RecordPayment(ownerCtx(), validRequest(uuid.New()))
	if err != nil {
		t.Fatalf("RecordPayment() error: %v", err)
	}
	if _, err := f.svc.VoidPayment(ownerCtx(), p.ID, "  "); err == nil {
		t.Error("expected error for blank reason")
	}
}

// -- Revenue --

func TestRevenue_ExcludesVoidedAndNoPayment(t *testing.T) {
	f := newFixture()
	clinic := uuid.New()

	if _, err := f.svc.RecordPayment(ownerCtx(), validRequest(clinic)); err != nil {
		t.Fatalf("RecordPayment() error: %v", err)
	}
	toVoid, err := f.svc.RecordPayment(ownerCtx(), validRequest(clinic))
	if err != nil {
		t.Fatalf("RecordPayment() error: %v", err)
	}
	if _, err := f.svc.VoidPayment(ownerCtx(), toVoid.ID, "mistake"); err != nil {
		t.Fatalf("VoidPayment() error: %v", err)
	}
	free := validRequest(clinic)
	free.CreditType = CreditNoPayment
	free.Amount = decimal.Zero
	free.Method = MethodNone
	if _, err := f.svc.RecordPayment(ownerCtx(), free); err != nil {
		t.Fatalf("RecordPayment() error: %v", err)
	}

	report, err := f.svc.Revenue(ownerCtx(), clinic, WindowToday)
	if err != nil {
		t.Fatalf("Revenue() error: %v", err)
	}
	if !report.Total.Equal(decimal.NewFromInt(700)) {
		t.Errorf("expected total 700, got %s", report.Total)
	}
}

func TestRevenue_RequiresReportsPermission(t *testing.T) {
	f := newFixture()
	clinic := uuid.New()
	ctx := auth.WithActor(context.Background(), auth.Actor{
		ID: uuid.New(), Role: auth.RoleSecretary, HomeClinicID: &clinic,
	})
	_, err := f.svc.Revenue(ctx, clinic, WindowToday)
	if !errors.Is(err, auth.ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
}

// -- Rates --

func TestCreateRate_Validation(t *testing.T) {
	f := newFixture()
	_, err := f.svc.CreateRate(ownerCtx(), &RateRequest{
		ClinicID: uuid.New(), Role: auth.RoleLicensedTherapist,
		Rate: decimal.NewFromInt(-1),
	})
	if err == nil {
		t.Error("expected error for non-positive rate")
	}
}

func TestResolveRate_LatestEffectiveWins(t *testing.T) {
	f := newFixture()
	clinic := uuid.New()

	old := &RateRequest{
		ClinicID: clinic, Role: auth.RoleLicensedTherapist,
		Rate:          decimal.NewFromInt(600),
		EffectiveFrom: testNow.AddDate(-1, 0, 0),
	}
	if _, err := f.svc.CreateRate(ownerCtx(), old); err != nil {
		t.Fatalf("CreateRate() error: %v", err)
	}
	current := &RateRequest{
		ClinicID: clinic, Role: auth.RoleLicensedTherapist,
		Rate:          decimal.NewFromInt(700),
		EffectiveFrom: testNow.AddDate(0, -1, 0),
	}
	if _, err := f.svc.CreateRate(ownerCtx(), current); err != nil {
		t.Fatalf("CreateRate() error: %v", err)
	}

	rate, err := f.svc.ResolveRate(ownerCtx(), clinic, auth.RoleLicensedTherapist, testNow)
	if err != nil {
		t.Fatalf("ResolveRate() error: %v", err)
	}
	if !rate.Equal(decimal.NewFromInt(700)) {
		t.Errorf("expected 700, got %s", rate)
	}
}

func TestResolveRate_NoneConfigured(t *testing.T) {
	f := newFixture()
	rate, err := f.svc.ResolveRate(ownerCtx(), uuid.New(), auth.RoleLicensedTherapist, testNow)
	if err != nil {
		t.Fatalf("ResolveRate() error: %v", err)
	}
	if !rate.IsZero() {
		t.Errorf("expected zero rate, got %s", rate)
	}
}
