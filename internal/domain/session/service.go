package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/clinicore/clinicore/internal/domain/audit"
	"github.com/clinicore/clinicore/internal/platform/auth"
	"github.com/clinicore/clinicore/internal/platform/clock"
	"github.com/clinicore/clinicore/internal/platform/db"
)

var validSessionTypes = map[string]bool{
	TypeRegular: true, TypeEvaluation: true, TypeMakeUp: true,
}

type Service struct {
	sessions Repository
	recorder audit.Recorder
	runTx    db.TxFn
	clock    clock.Clock
}

func NewService(sessions Repository, recorder audit.Recorder, runTx db.TxFn, clk clock.Clock) *Service {
	return &Service{sessions: sessions, recorder: recorder, runTx: runTx, clock: clk}
}

type CreateRequest struct {
	ClinicID        uuid.UUID
	ClientID        *uuid.UUID
	ClientName      string
	TherapistID     uuid.UUID
	SessionType     string
	Date            time.Time
	TimeOfDay       string
	DurationMinutes int
}

type BulkCreateRequest struct {
	ClinicID        uuid.UUID
	ClientID        *uuid.UUID
	ClientName      string
	TherapistID     uuid.UUID
	SessionType     string
	Dates           []time.Time
	TimeOfDay       string
	DurationMinutes int
}

// BulkResult partitions a multi-date request into what was booked and which
// dates were skipped because the slot was taken.
type BulkResult struct {
	Created      []*Session `json:"created"`
	SkippedDates []string   `json:"skipped_dates"`
}

func (r *CreateRequest) validate() error {
	if r.ClinicID == uuid.Nil {
		return fmt.Errorf("clinic_id is required")
	}
	if r.TherapistID == uuid.Nil {
		return fmt.Errorf("therapist_id is required")
	}
	hasClient := r.ClientID != nil && *r.ClientID != uuid.Nil
	hasName := strings.TrimSpace(r.ClientName) != ""
	if hasClient == hasName {
		return fmt.Errorf("exactly one of client_id and client_name is required")
	}
	if r.SessionType == "" {
		r.SessionType = TypeRegular
	}
	if !validSessionTypes[r.SessionType] {
		return fmt.Errorf("invalid session type: %s", r.SessionType)
	}
	if r.Date.IsZero() {
		return fmt.Errorf("date is required")
	}
	if _, err := time.Parse("15:04", r.TimeOfDay); err != nil {
		return fmt.Errorf("invalid time %q, expected HH:MM", r.TimeOfDay)
	}
	if r.DurationMinutes <= 0 {
		r.DurationMinutes = 45
	}
	return nil
}

func (s *Service) Create(ctx context.Context, req *CreateRequest) (*Session, error) {
	actor := auth.ActorFromContext(ctx)
	if !actor.Can(auth.PermManageSessions) {
		return nil, auth.ErrForbidden
	}
	if !actor.CanAccessClinic(req.ClinicID) {
		return nil, fmt.Errorf("no access to clinic %s: %w", req.ClinicID, auth.ErrForbidden)
	}
	if err := req.validate(); err != nil {
		return nil, err
	}

	sess := s.fromRequest(req, req.Date)
	err := s.runTx(ctx, func(ctx context.Context) error {
		taken, err := s.sessions.HasConflict(ctx, req.TherapistID, req.Date, req.TimeOfDay)
		if err != nil {
			return err
		}
		if taken {
			return ErrSlotTaken
		}
		if err := s.sessions.Create(ctx, sess); err != nil {
			return err
		}
		return s.audit(ctx, audit.ActionCreate, sess, nil, "session scheduled")
	})
	if err != nil {
		return nil, err
	}
	return sess, nil
}

// CreateBulk books each requested date independently. Dates whose slot is
// taken are skipped, not fatal; the call only fails when nothing was
// creatable.
func (s *Service) CreateBulk(ctx context.Context, req *BulkCreateRequest) (*BulkResult, error) {
	actor := auth.ActorFromContext(ctx)
	if !actor.Can(auth.PermManageSessions) {
		return nil, auth.ErrForbidden
	}
	if !actor.CanAccessClinic(req.ClinicID) {
		return nil, fmt.Errorf("no access to clinic %s: %w", req.ClinicID, auth.ErrForbidden)
	}
	if len(req.Dates) == 0 {
		return nil, fmt.Errorf("at least one date is required")
	}
	single := &CreateRequest{
		ClinicID: req.ClinicID, ClientID: req.ClientID, ClientName: req.ClientName,
		TherapistID: req.TherapistID, SessionType: req.SessionType,
		Date: req.Dates[0], TimeOfDay: req.TimeOfDay, DurationMinutes: req.DurationMinutes,
	}
	if err := single.validate(); err != nil {
		return nil, err
	}
	req.SessionType = single.SessionType
	req.DurationMinutes = single.DurationMinutes

	result := &BulkResult{}
	for _, date := range req.Dates {
		sess := s.fromRequest(single, date)
		err := s.runTx(ctx, func(ctx context.Context) error {
			taken, err := s.sessions.HasConflict(ctx, req.TherapistID, date, req.TimeOfDay)
			if err != nil {
				return err
			}
			if taken {
				return ErrSlotTaken
			}
			if err := s.sessions.Create(ctx, sess); err != nil {
				return err
			}
			return s.audit(ctx, audit.ActionCreate, sess, nil, "session scheduled (bulk)")
		})
		switch {
		case err == nil:
			result.Created = append(result.Created, sess)
		case isConflict(err):
			result.SkippedDates = append(result.SkippedDates, date.Format("2006-01-02"))
		default:
			return nil, err
		}
	}
	if len(result.Created) == 0 {
		return result, fmt.Errorf("all %d requested dates conflict: %w", len(req.Dates), ErrSlotTaken)
	}
	return result, nil
}

func (s *Service) fromRequest(req *CreateRequest, date time.Time) *Session {
	sess := &Session{
		ClinicID:        req.ClinicID,
		ClientID:        req.ClientID,
		TherapistID:     req.TherapistID,
		SessionType:     req.SessionType,
		ScheduledDate:   date,
		ScheduledTime:   req.TimeOfDay,
		DurationMinutes: req.DurationMinutes,
		Status:          StatusScheduled,
	}
	if name := strings.TrimSpace(req.ClientName); name != "" {
		sess.ClientName = &name
	}
	return sess
}

// Start moves a scheduled session to in_progress. Allowed for the assigned
// therapist or anyone who can manage sessions.
func (s *Service) Start(ctx context.Context, id uuid.UUID) (*Session, error) {
	actor := auth.ActorFromContext(ctx)
	sess, err := s.sessions.GetByID(ctx, id)
	if err != nil {
		return nil, ErrNotFound
	}
	if actor.ID != sess.TherapistID && !actor.Can(auth.PermManageSessions) {
		return nil, auth.ErrForbidden
	}

	old := *sess
	now := s.clock.Now()
	err = s.runTx(ctx, func(ctx context.Context) error {
		ok, err := s.sessions.MarkStarted(ctx, id, actor.ID, now)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("start requires a scheduled session: %w", ErrInvalidTransition)
		}
		sess.Status = StatusInProgress
		sess.StartedAt = &now
		sess.StartedBy = &actor.ID
		return s.audit(ctx, audit.ActionStart, sess, &old, "session started")
	})
	if err != nil {
		return nil, err
	}
	return sess, nil
}

// Confirm records the verification stamp on an in-progress, started,
// not-yet-verified session. The status itself does not change.
func (s *Service) Confirm(ctx context.Context, id uuid.UUID) (*Session, error) {
	actor := auth.ActorFromContext(ctx)
	if !actor.Can(auth.PermVerifySessions) {
		return nil, auth.ErrForbidden
	}
	sess, err := s.sessions.GetByID(ctx, id)
	if err != nil {
		return nil, ErrNotFound
	}
	if sess.Status != StatusInProgress || sess.StartedAt == nil || sess.VerifiedAt != nil {
		return nil, fmt.Errorf("confirm requires a started, unverified in_progress session: %w", ErrInvalidTransition)
	}

	old := *sess
	now := s.clock.Now()
	err = s.runTx(ctx, func(ctx context.Context) error {
		ok, err := s.sessions.MarkVerified(ctx, id, actor.ID, now)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("session changed state before verification: %w", ErrInvalidTransition)
		}
		sess.VerifiedAt = &now
		sess.VerifiedBy = &actor.ID
		return s.audit(ctx, audit.ActionConfirm, sess, &old, "session verified")
	})
	if err != nil {
		return nil, err
	}
	return sess, nil
}

// Cancel is only legal from scheduled and always needs a reason.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID, reason string) (*Session, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, fmt.Errorf("cancellation reason is required")
	}
	actor := auth.ActorFromContext(ctx)
	sess, err := s.sessions.GetByID(ctx, id)
	if err != nil {
		return nil, ErrNotFound
	}
	if actor.ID != sess.TherapistID && !actor.Can(auth.PermManageSessions) {
		return nil, auth.ErrForbidden
	}

	old := *sess
	now := s.clock.Now()
	err = s.runTx(ctx, func(ctx context.Context) error {
		ok, err := s.sessions.MarkCancelled(ctx, id, actor.ID, now, reason)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("only scheduled sessions can be cancelled: %w", ErrInvalidTransition)
		}
		sess.Status = StatusCancelled
		sess.CancelledAt = &now
		sess.CancelledBy = &actor.ID
		sess.CancelReason = &reason
		return s.audit(ctx, audit.ActionCancel, sess, &old, "session cancelled: "+reason)
	})
	if err != nil {
		return nil, err
	}
	return sess, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Session, error) {
	return s.sessions.GetByID(ctx, id)
}

func (s *Service) ListPendingConfirmations(ctx context.Context, clinicID *uuid.UUID, limit, offset int) ([]*Session, int, error) {
	return s.sessions.ListPendingConfirmations(ctx, clinicID, limit, offset)
}

func (s *Service) Search(ctx context.Context, params map[string]string, limit, offset int) ([]*Session, int, error) {
	return s.sessions.Search(ctx, params, limit, offset)
}

func (s *Service) audit(ctx context.Context, action string, sess *Session, old *Session, desc string) error {
	newVal, _ := json.Marshal(sess)
	e := &audit.Entry{
		Action:      action,
		EntityType:  "session",
		EntityID:    sess.ID,
		NewValue:    newVal,
		Description: desc,
		ClinicID:    &sess.ClinicID,
	}
	if old != nil {
		e.OldValue, _ = json.Marshal(old)
	}
	return s.recorder.Record(ctx, e)
}

func isConflict(err error) bool {
	return errors.Is(err, ErrSlotTaken)
}
