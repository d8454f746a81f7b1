package attendance

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/clinicore/clinicore/internal/domain/audit"
	"github.com/clinicore/clinicore/internal/domain/client"
	"github.com/clinicore/clinicore/internal/domain/payment"
	"github.com/clinicore/clinicore/internal/platform/auth"
	"github.com/clinicore/clinicore/internal/platform/clock"
	"github.com/clinicore/clinicore/internal/platform/db"
)

// Ledger is the slice of the payment layer the reconciler needs.
// payment.Service satisfies it.
type Ledger interface {
	HasCoveredSessionOnDay(ctx context.Context, clientID, clinicID uuid.UUID, day time.Time) (bool, error)
	RecordWalkInPayment(ctx context.Context, p *payment.Payment) error
	ResolveRate(ctx context.Context, clinicID uuid.UUID, role string, asOf time.Time) (decimal.Decimal, error)
}

// ClientDirectory resolves client records for visit snapshots.
// client.Repository satisfies it.
type ClientDirectory interface {
	GetByID(ctx context.Context, id uuid.UUID) (*client.Client, error)
}

// StaffDirectory resolves staff roles for rate lookup.
// staff.Repository satisfies it.
type StaffDirectory interface {
	RoleOf(ctx context.Context, id uuid.UUID) (string, error)
}

type Service struct {
	logs     Repository
	ledger   Ledger
	clients  ClientDirectory
	staff    StaffDirectory
	recorder audit.Recorder
	runTx    db.TxFn
	clk      clock.Clock
}

func NewService(logs Repository, ledger Ledger, clients ClientDirectory, staff StaffDirectory, recorder audit.Recorder, runTx db.TxFn, clk clock.Clock) *Service {
	return &Service{
		logs:     logs,
		ledger:   ledger,
		clients:  clients,
		staff:    staff,
		recorder: recorder,
		runTx:    runTx,
		clk:      clk,
	}
}

type LogVisitRequest struct {
	ClinicID uuid.UUID `json:"clinic_id"`
	ClientID uuid.UUID `json:"client_id"`
	Notes    *string   `json:"notes"`
}

// LogVisit records a walk-in visit. The log starts UNPAID, but if a
// completed payment already covers a session for this client at this clinic
// today, the visit is flagged PAID on creation.
func (s *Service) LogVisit(ctx context.Context, req *LogVisitRequest) (*Log, error) {
	actor := auth.ActorFromContext(ctx)
	if !actor.Can(auth.PermManageAttendance) {
		return nil, auth.ErrForbidden
	}
	if req.ClinicID == uuid.Nil {
		return nil, fmt.Errorf("clinic_id is required")
	}
	if req.ClientID == uuid.Nil {
		return nil, fmt.Errorf("client_id is required")
	}
	if !actor.CanAccessClinic(req.ClinicID) {
		return nil, fmt.Errorf("clinic %s: %w", req.ClinicID, auth.ErrForbidden)
	}

	cl, err := s.clients.GetByID(ctx, req.ClientID)
	if err != nil {
		return nil, fmt.Errorf("client %s not found", req.ClientID)
	}

	now := s.clk.Now()
	l := &Log{
		ClinicID:         req.ClinicID,
		ClientID:         cl.ID,
		ClientName:       cl.FullName(),
		GuardianName:     cl.GuardianName,
		GuardianRelation: cl.GuardianRelation,
		GuardianPhone:    cl.GuardianPhone,
		TherapistID:      cl.PrimaryTherapistID,
		LoggedBy:         actor.ID,
		LoggedAt:         now,
		Notes:            req.Notes,
		PaymentStatus:    PaymentUnpaid,
	}

	covered, err := s.ledger.HasCoveredSessionOnDay(ctx, cl.ID, req.ClinicID, now)
	if err != nil {
		return nil, fmt.Errorf("checking coverage: %w", err)
	}
	if covered {
		l.PaymentStatus = PaymentPaid
		l.PaidAt = &now
	}

	err = s.runTx(ctx, func(ctx context.Context) error {
		if err := s.logs.Create(ctx, l); err != nil {
			return fmt.Errorf("creating attendance log: %w", err)
		}
		s.audit(ctx, audit.ActionCreate, l, nil)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return l, nil
}

// MarkPaid settles an UNPAID visit: it resolves the session rate for the
// visit's therapist role, records a completed single-session payment, and
// flips the log to PAID. Calling it on an already-PAID log is a no-op
// success; no second payment is created.
func (s *Service) MarkPaid(ctx context.Context, id uuid.UUID, method string) (*Log, error) {
	actor := auth.ActorFromContext(ctx)
	if !actor.Can(auth.PermCollectPayments) {
		return nil, auth.ErrForbidden
	}

	var result *Log
	err := s.runTx(ctx, func(ctx context.Context) error {
		l, err := s.logs.GetByIDForUpdate(ctx, id)
		if err != nil {
			return ErrNotFound
		}
		if !actor.CanAccessClinic(l.ClinicID) {
			return fmt.Errorf("clinic %s: %w", l.ClinicID, auth.ErrForbidden)
		}
		if l.PaymentStatus == PaymentPaid {
			result = l
			return nil
		}

		role, err := s.therapistRole(ctx, l)
		if err != nil {
			return err
		}
		rate, err := s.ledger.ResolveRate(ctx, l.ClinicID, role, s.clk.Now())
		if err != nil {
			return fmt.Errorf("resolving rate: %w", err)
		}
		if rate.LessThanOrEqual(decimal.Zero) {
			return fmt.Errorf("clinic %s role %s: %w", l.ClinicID, role, payment.ErrNoRateConfigured)
		}

		notes := fmt.Sprintf("[attendance-log:%s] Attendance payment", l.ID)
		p := &payment.Payment{
			ClinicID:     l.ClinicID,
			ClientID:     l.ClientID,
			Amount:       rate,
			Method:       method,
			Source:       payment.SourceClient,
			CreditType:   payment.CreditRegular,
			SessionsPaid: 1,
			Notes:        &notes,
			RecordedBy:   actor.ID,
		}
		if err := s.ledger.RecordWalkInPayment(ctx, p); err != nil {
			return err
		}

		before := *l
		now := s.clk.Now()
		ok, err := s.logs.MarkPaid(ctx, l.ID, &p.ID, now)
		if err != nil {
			return fmt.Errorf("marking paid: %w", err)
		}
		if !ok {
			// Lost the race despite the lock; treat as already settled.
			result, err = s.logs.GetByID(ctx, id)
			return err
		}
		l.PaymentStatus = PaymentPaid
		l.PaymentID = &p.ID
		l.PaidAt = &now
		result = l
		s.audit(ctx, audit.ActionMarkPaid, l, &before)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// therapistRole resolves the role used for rate lookup, preferring the
// log's therapist snapshot and falling back to the client's current primary
// therapist.
func (s *Service) therapistRole(ctx context.Context, l *Log) (string, error) {
	therapistID := l.TherapistID
	if therapistID == nil {
		cl, err := s.clients.GetByID(ctx, l.ClientID)
		if err != nil {
			return "", fmt.Errorf("client %s not found", l.ClientID)
		}
		therapistID = cl.PrimaryTherapistID
	}
	if therapistID == nil {
		return "", fmt.Errorf("visit %s has no therapist: %w", l.ID, payment.ErrNoRateConfigured)
	}
	role, err := s.staff.RoleOf(ctx, *therapistID)
	if err != nil {
		return "", fmt.Errorf("resolving therapist role: %w", err)
	}
	return role, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Log, error) {
	actor := auth.ActorFromContext(ctx)
	if !actor.Can(auth.PermManageAttendance) {
		return nil, auth.ErrForbidden
	}
	l, err := s.logs.GetByID(ctx, id)
	if err != nil {
		return nil, ErrNotFound
	}
	if !actor.CanAccessClinic(l.ClinicID) {
		return nil, fmt.Errorf("clinic %s: %w", l.ClinicID, auth.ErrForbidden)
	}
	return l, nil
}

func (s *Service) Search(ctx context.Context, params map[string]string, limit, offset int) ([]*Log, int, error) {
	actor := auth.ActorFromContext(ctx)
	if !actor.Can(auth.PermManageAttendance) {
		return nil, 0, auth.ErrForbidden
	}
	if actor.HomeClinicID != nil && actor.Role != auth.RoleOwner {
		params["clinic"] = actor.HomeClinicID.String()
	}
	return s.logs.Search(ctx, params, limit, offset)
}

type ExpectedIncomeReport struct {
	ClinicID     uuid.UUID       `json:"clinic_id"`
	Day          time.Time       `json:"day"`
	UnpaidVisits int             `json:"unpaid_visits"`
	Total        decimal.Decimal `json:"total"`
}

// ExpectedIncome sums the resolved rates of the clinic's UNPAID visits for
// the given day. Rate lookups are cached per role for the duration of the
// call.
func (s *Service) ExpectedIncome(ctx context.Context, clinicID uuid.UUID, day time.Time) (*ExpectedIncomeReport, error) {
	actor := auth.ActorFromContext(ctx)
	if !actor.Can(auth.PermViewReports) {
		return nil, auth.ErrForbidden
	}
	if !actor.CanAccessClinic(clinicID) {
		return nil, fmt.Errorf("clinic %s: %w", clinicID, auth.ErrForbidden)
	}
	if day.IsZero() {
		day = s.clk.Now()
	}
	from, to := clock.DayBounds(day)
	logs, err := s.logs.ListUnpaidForRange(ctx, clinicID, from, to)
	if err != nil {
		return nil, fmt.Errorf("listing unpaid visits: %w", err)
	}

	report := &ExpectedIncomeReport{ClinicID: clinicID, Day: from, Total: decimal.Zero}
	rateByRole := map[string]decimal.Decimal{}
	for _, l := range logs {
		report.UnpaidVisits++
		role, err := s.therapistRole(ctx, l)
		if err != nil {
			// A visit without a resolvable rate contributes nothing.
			continue
		}
		rate, ok := rateByRole[role]
		if !ok {
			rate, err = s.ledger.ResolveRate(ctx, clinicID, role, day)
			if err != nil {
				return nil, fmt.Errorf("resolving rate: %w", err)
			}
			rateByRole[role] = rate
		}
		report.Total = report.Total.Add(rate)
	}
	return report, nil
}

func (s *Service) audit(ctx context.Context, action string, l *Log, before *Log) {
	newVal, _ := json.Marshal(l)
	e := &audit.Entry{
		Action:     action,
		EntityType: "attendance_log",
		EntityID:   l.ID,
		NewValue:   newVal,
		ClinicID:   &l.ClinicID,
	}
	if before != nil {
		if b, err := json.Marshal(before); err == nil {
			e.OldValue = b
		}
	}
	_ = s.recorder.Record(ctx, e)
}
