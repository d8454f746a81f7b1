package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/clinicore/clinicore/internal/domain/audit"
	"github.com/clinicore/clinicore/internal/domain/session"
	"github.com/clinicore/clinicore/internal/platform/auth"
	"github.com/clinicore/clinicore/internal/platform/clock"
	"github.com/clinicore/clinicore/internal/platform/db"
)

// SessionDirectory gives the payment layer read access to scheduled
// sessions without owning them. session.Repository satisfies it.
type SessionDirectory interface {
	GetByID(ctx context.Context, id uuid.UUID) (*session.Session, error)
}

var validMethods = map[string]bool{
	MethodCash:         true,
	MethodElectronic:   true,
	MethodBankTransfer: true,
	MethodNone:         true,
}

var validSources = map[string]bool{
	SourceClient:      true,
	SourceGovNational: true,
	SourceGovLocal:    true,
	SourceGovOther:    true,
}

var validCreditTypes = map[string]bool{
	CreditRegular:   true,
	CreditAdvance:   true,
	CreditNoPayment: true,
}

type Service struct {
	payments Repository
	rates    RateRepository
	sessions SessionDirectory
	recorder audit.Recorder
	runTx    db.TxFn
	clk      clock.Clock
}

func NewService(payments Repository, rates RateRepository, sessions SessionDirectory, recorder audit.Recorder, runTx db.TxFn, clk clock.Clock) *Service {
	return &Service{
		payments: payments,
		rates:    rates,
		sessions: sessions,
		recorder: recorder,
		runTx:    runTx,
		clk:      clk,
	}
}

type RecordRequest struct {
	ClinicID      uuid.UUID       `json:"clinic_id"`
	ClientID      uuid.UUID       `json:"client_id"`
	Amount        decimal.Decimal `json:"amount"`
	Method        string          `json:"method"`
	Source        string          `json:"source"`
	CreditType    string          `json:"credit_type"`
	SessionsPaid  int             `json:"sessions_paid"`
	ReceiptNumber *string         `json:"receipt_number"`
	Notes         *string         `json:"notes"`
	PaymentDate   *time.Time      `json:"payment_date"`
	SessionID     *uuid.UUID      `json:"session_id"`
}

func (req *RecordRequest) validate() error {
	if req.ClinicID == uuid.Nil {
		return fmt.Errorf("clinic_id is required")
	}
	if req.ClientID == uuid.Nil {
		return fmt.Errorf("client_id is required")
	}
	if req.Method == "" {
		req.Method = MethodCash
	}
	if !validMethods[req.Method] {
		return fmt.Errorf("invalid payment method: %s", req.Method)
	}
	if req.Source == "" {
		req.Source = SourceClient
	}
	if !validSources[req.Source] {
		return fmt.Errorf("invalid payment source: %s", req.Source)
	}
	if req.CreditType == "" {
		req.CreditType = CreditRegular
	}
	if !validCreditTypes[req.CreditType] {
		return fmt.Errorf("invalid credit type: %s", req.CreditType)
	}
	if req.CreditType == CreditNoPayment {
		if !req.Amount.IsZero() {
			return fmt.Errorf("no_payment entries must carry a zero amount")
		}
	} else if req.Amount.LessThanOrEqual(decimal.Zero) {
		return fmt.Errorf("amount must be positive")
	}
	if req.SessionsPaid <= 0 {
		req.SessionsPaid = 1
	}
	if req.CreditType != CreditAdvance && req.SessionsPaid != 1 {
		return fmt.Errorf("sessions_paid above 1 requires an advance credit")
	}
	if req.ReceiptNumber != nil {
		trimmed := strings.TrimSpace(*req.ReceiptNumber)
		if trimmed == "" {
			req.ReceiptNumber = nil
		} else {
			req.ReceiptNumber = &trimmed
		}
	}
	return nil
}

// RecordPayment writes a payment and, when a session is supplied,
// its first session link in one transaction.
func (s *Service) RecordPayment(ctx context.Context, req *RecordRequest) (*Payment, error) {
	actor := auth.ActorFromContext(ctx)
	if !actor.Can(auth.PermCollectPayments) {
		return nil, auth.ErrForbidden
	}
	if !actor.CanAccessClinic(req.ClinicID) {
		return nil, fmt.Errorf("clinic %s: %w", req.ClinicID, auth.ErrForbidden)
	}
	if err := req.validate(); err != nil {
		return nil, err
	}

	paymentDate := s.clk.Now()
	if req.PaymentDate != nil {
		paymentDate = *req.PaymentDate
	}

	p := &Payment{
		ClinicID:      req.ClinicID,
		ClientID:      req.ClientID,
		Amount:        req.Amount,
		Method:        req.Method,
		Source:        req.Source,
		CreditType:    req.CreditType,
		SessionsPaid:  req.SessionsPaid,
		ReceiptNumber: req.ReceiptNumber,
		RecordedBy:    actor.ID,
		Status:        StatusCompleted,
		Notes:         req.Notes,
		PaymentDate:   paymentDate,
	}

	err := s.runTx(ctx, func(ctx context.Context) error {
		if p.ReceiptNumber != nil {
			exists, err := s.payments.ReceiptExists(ctx, *p.ReceiptNumber)
			if err != nil {
				return fmt.Errorf("checking receipt: %w", err)
			}
			if exists {
				return fmt.Errorf("receipt %s: %w", *p.ReceiptNumber, ErrDuplicateReceipt)
			}
		}
		if err := s.payments.Create(ctx, p); err != nil {
			return fmt.Errorf("creating payment: %w", err)
		}
		if req.SessionID != nil {
			if err := s.linkSession(ctx, p, *req.SessionID); err != nil {
				return err
			}
		}
		s.audit(ctx, audit.ActionCreate, p, nil)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

// LinkSessionToAdvance consumes one unit of an advance credit. The
// payment row is locked for the duration of the check so concurrent
// links cannot overdraw the credit.
func (s *Service) LinkSessionToAdvance(ctx context.Context, paymentID, sessionID uuid.UUID) (*PaymentSession, error) {
	actor := auth.ActorFromContext(ctx)
	if !actor.Can(auth.PermCollectPayments) {
		return nil, auth.ErrForbidden
	}

	var link *PaymentSession
	err := s.runTx(ctx, func(ctx context.Context) error {
		p, err := s.payments.GetByIDForUpdate(ctx, paymentID)
		if err != nil {
			return ErrNotFound
		}
		if !actor.CanAccessClinic(p.ClinicID) {
			return fmt.Errorf("clinic %s: %w", p.ClinicID, auth.ErrForbidden)
		}
		if p.CreditType != CreditAdvance {
			return fmt.Errorf("payment %s is not an advance credit", paymentID)
		}
		if p.Status != StatusCompleted {
			return fmt.Errorf("payment %s is %s, cannot link", paymentID, p.Status)
		}
		l, err := s.linkAdvance(ctx, p, sessionID)
		if err != nil {
			return err
		}
		link = l
		s.audit(ctx, audit.ActionLink, p, link)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return link, nil
}

func (s *Service) linkAdvance(ctx context.Context, p *Payment, sessionID uuid.UUID) (*PaymentSession, error) {
	sess, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("session %s: %w", sessionID, ErrNotFound)
	}
	if sess.ClientID == nil || *sess.ClientID != p.ClientID {
		return nil, fmt.Errorf("session %s belongs to a different client", sessionID)
	}
	if sess.ClinicID != p.ClinicID {
		return nil, fmt.Errorf("session %s belongs to a different clinic", sessionID)
	}
	taken, err := s.payments.LinkExistsForSession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("checking session link: %w", err)
	}
	if taken {
		return nil, fmt.Errorf("session %s: %w", sessionID, ErrSessionAlreadyLinked)
	}
	used, err := s.payments.CountLinks(ctx, p.ID)
	if err != nil {
		return nil, fmt.Errorf("counting links: %w", err)
	}
	if p.SessionsPaid-used <= 0 {
		return nil, fmt.Errorf("advance %s: %w", p.ID, ErrCreditExhausted)
	}
	link := &PaymentSession{
		PaymentID: p.ID,
		SessionID: sessionID,
		Amount:    p.PerSessionAmount(),
	}
	if err := s.payments.CreateLink(ctx, link); err != nil {
		return nil, fmt.Errorf("creating link: %w", err)
	}
	return link, nil
}

// linkSession handles the optional session attached to a fresh payment.
// Regular payments link at face value, advances at the per-session cut.
func (s *Service) linkSession(ctx context.Context, p *Payment, sessionID uuid.UUID) error {
	if p.CreditType == CreditAdvance {
		_, err := s.linkAdvance(ctx, p, sessionID)
		return err
	}
	sess, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("session %s: %w", sessionID, ErrNotFound)
	}
	if sess.ClientID == nil || *sess.ClientID != p.ClientID {
		return fmt.Errorf("session %s belongs to a different client", sessionID)
	}
	taken, err := s.payments.LinkExistsForSession(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("checking session link: %w", err)
	}
	if taken {
		return fmt.Errorf("session %s: %w", sessionID, ErrSessionAlreadyLinked)
	}
	return s.payments.CreateLink(ctx, &PaymentSession{
		PaymentID: p.ID,
		SessionID: sessionID,
		Amount:    p.Amount,
	})
}

func (s *Service) GetPayment(ctx context.Context, id uuid.UUID) (*Payment, error) {
	actor := auth.ActorFromContext(ctx)
	if !actor.Can(auth.PermViewPayments) {
		return nil, auth.ErrForbidden
	}
	p, err := s.payments.GetByID(ctx, id)
	if err != nil {
		return nil, ErrNotFound
	}
	if !actor.CanAccessClinic(p.ClinicID) {
		return nil, fmt.Errorf("clinic %s: %w", p.ClinicID, auth.ErrForbidden)
	}
	return p, nil
}

func (s *Service) VoidPayment(ctx context.Context, id uuid.UUID, reason string) (*Payment, error) {
	actor := auth.ActorFromContext(ctx)
	if !actor.Can(auth.PermCollectPayments) {
		return nil, auth.ErrForbidden
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, fmt.Errorf("void reason is required")
	}

	var voided *Payment
	err := s.runTx(ctx, func(ctx context.Context) error {
		p, err := s.payments.GetByIDForUpdate(ctx, id)
		if err != nil {
			return ErrNotFound
		}
		if !actor.CanAccessClinic(p.ClinicID) {
			return fmt.Errorf("clinic %s: %w", p.ClinicID, auth.ErrForbidden)
		}
		before := *p
		ok, err := s.payments.MarkVoided(ctx, id)
		if err != nil {
			return fmt.Errorf("voiding payment: %w", err)
		}
		if !ok {
			return fmt.Errorf("payment %s is %s: %w", id, p.Status, ErrNotVoidable)
		}
		p.Status = StatusVoided
		voided = p
		s.auditWithOld(ctx, audit.ActionVoid, &before, p, reason)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return voided, nil
}

// ListClientAdvanceCredits returns open advances only; exhausted
// credits are filtered in the query.
func (s *Service) ListClientAdvanceCredits(ctx context.Context, clientID uuid.UUID) ([]*AdvanceCredit, error) {
	actor := auth.ActorFromContext(ctx)
	if !actor.Can(auth.PermViewPayments) {
		return nil, auth.ErrForbidden
	}
	return s.payments.ListAdvanceByClient(ctx, clientID)
}

// Window names accepted by ListPayments and DailyRevenue.
const (
	WindowToday = "today"
	WindowWeek  = "week"
	WindowMonth = "month"
)

func (s *Service) windowBounds(window string) (time.Time, time.Time, error) {
	now := s.clk.Now()
	switch window {
	case "", WindowToday:
		from, to := clock.DayBounds(now)
		return from, to, nil
	case WindowWeek:
		from, to := clock.WeekBounds(now)
		return from, to, nil
	case WindowMonth:
		from, to := clock.MonthBounds(now)
		return from, to, nil
	default:
		return time.Time{}, time.Time{}, fmt.Errorf("invalid window: %s", window)
	}
}

func (s *Service) ListPayments(ctx context.Context, params map[string]string, limit, offset int) ([]*Payment, int, error) {
	actor := auth.ActorFromContext(ctx)
	if !actor.Can(auth.PermViewPayments) {
		return nil, 0, auth.ErrForbidden
	}
	if actor.HomeClinicID != nil && actor.Role != auth.RoleOwner {
		params["clinic"] = actor.HomeClinicID.String()
	}
	if window, ok := params["window"]; ok {
		delete(params, "window")
		from, to, err := s.windowBounds(window)
		if err != nil {
			return nil, 0, err
		}
		params["from"] = from.Format(time.RFC3339)
		params["to"] = to.Format(time.RFC3339)
	}
	return s.payments.Search(ctx, params, limit, offset)
}

type RevenueReport struct {
	ClinicID uuid.UUID       `json:"clinic_id"`
	Window   string          `json:"window"`
	From     time.Time       `json:"from"`
	To       time.Time       `json:"to"`
	Total    decimal.Decimal `json:"total"`
}

func (s *Service) Revenue(ctx context.Context, clinicID uuid.UUID, window string) (*RevenueReport, error) {
	actor := auth.ActorFromContext(ctx)
	if !actor.Can(auth.PermViewReports) {
		return nil, auth.ErrForbidden
	}
	if !actor.CanAccessClinic(clinicID) {
		return nil, fmt.Errorf("clinic %s: %w", clinicID, auth.ErrForbidden)
	}
	if window == "" {
		window = WindowToday
	}
	from, to, err := s.windowBounds(window)
	if err != nil {
		return nil, err
	}
	total, err := s.payments.SumCompletedForRange(ctx, clinicID, from, to)
	if err != nil {
		return nil, fmt.Errorf("summing revenue: %w", err)
	}
	return &RevenueReport{ClinicID: clinicID, Window: window, From: from, To: to, Total: total}, nil
}

// =========== Rates ===========

type RateRequest struct {
	ClinicID      uuid.UUID       `json:"clinic_id"`
	Role          string          `json:"role"`
	Rate          decimal.Decimal `json:"rate"`
	EffectiveFrom time.Time       `json:"effective_from"`
	EffectiveTo   *time.Time      `json:"effective_to"`
}

func (s *Service) CreateRate(ctx context.Context, req *RateRequest) (*SessionRate, error) {
	actor := auth.ActorFromContext(ctx)
	if !actor.Can(auth.PermManageRates) {
		return nil, auth.ErrForbidden
	}
	if req.ClinicID == uuid.Nil {
		return nil, fmt.Errorf("clinic_id is required")
	}
	if req.Role == "" {
		return nil, fmt.Errorf("role is required")
	}
	if req.Rate.LessThanOrEqual(decimal.Zero) {
		return nil, fmt.Errorf("rate must be positive")
	}
	if req.EffectiveFrom.IsZero() {
		req.EffectiveFrom = s.clk.Now()
	}
	if req.EffectiveTo != nil && req.EffectiveTo.Before(req.EffectiveFrom) {
		return nil, fmt.Errorf("effective_to precedes effective_from")
	}
	sr := &SessionRate{
		ClinicID:      req.ClinicID,
		Role:          req.Role,
		Rate:          req.Rate,
		EffectiveFrom: req.EffectiveFrom,
		EffectiveTo:   req.EffectiveTo,
	}
	if err := s.rates.Create(ctx, sr); err != nil {
		return nil, fmt.Errorf("creating rate: %w", err)
	}
	return sr, nil
}

func (s *Service) ListRates(ctx context.Context, clinicID uuid.UUID) ([]*SessionRate, error) {
	actor := auth.ActorFromContext(ctx)
	if !actor.Can(auth.PermViewPayments) {
		return nil, auth.ErrForbidden
	}
	return s.rates.ListByClinic(ctx, clinicID)
}

// ResolveRate returns the rate in force for a role at a clinic, or
// zero when no rate row covers asOf.
func (s *Service) ResolveRate(ctx context.Context, clinicID uuid.UUID, role string, asOf time.Time) (decimal.Decimal, error) {
	return s.rates.Resolve(ctx, clinicID, role, asOf)
}

// =========== Attendance hooks ===========

// HasCoveredSessionOnDay reports whether any completed payment covers
// a session for the client at the clinic on the given day.
func (s *Service) HasCoveredSessionOnDay(ctx context.Context, clientID, clinicID uuid.UUID, day time.Time) (bool, error) {
	return s.payments.HasLinkedPaymentForDay(ctx, clientID, clinicID, day)
}

// RecordWalkInPayment writes a completed payment on behalf of the
// attendance flow, without a session link.
func (s *Service) RecordWalkInPayment(ctx context.Context, p *Payment) error {
	// Unknown methods collapse to cash rather than failing the visit.
	if !validMethods[p.Method] {
		p.Method = MethodCash
	}
	if p.Source == "" {
		p.Source = SourceClient
	}
	if p.CreditType == "" {
		p.CreditType = CreditRegular
	}
	if p.SessionsPaid <= 0 {
		p.SessionsPaid = 1
	}
	p.Status = StatusCompleted
	if p.PaymentDate.IsZero() {
		p.PaymentDate = s.clk.Now()
	}
	if err := s.payments.Create(ctx, p); err != nil {
		return fmt.Errorf("creating payment: %w", err)
	}
	s.audit(ctx, audit.ActionCreate, p, nil)
	return nil
}

// =========== helpers ===========

func (s *Service) audit(ctx context.Context, action string, p *Payment, detail interface{}) {
	newVal, _ := json.Marshal(p)
	e := &audit.Entry{
		Action:     action,
		EntityType: "payment",
		EntityID:   p.ID,
		NewValue:   newVal,
		ClinicID:   &p.ClinicID,
	}
	if detail != nil {
		if b, err := json.Marshal(detail); err == nil {
			e.OldValue = b
		}
	}
	_ = s.recorder.Record(ctx, e)
}

func (s *Service) auditWithOld(ctx context.Context, action string, before, after *Payment, description string) {
	oldVal, _ := json.Marshal(before)
	newVal, _ := json.Marshal(after)
	_ = s.recorder.Record(ctx, &audit.Entry{
		Action:      action,
		EntityType:  "payment",
		EntityID:    after.ID,
		OldValue:    oldVal,
		NewValue:    newVal,
		Description: description,
		ClinicID:    &after.ClinicID,
	})
}
