package session

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/clinicore/clinicore/internal/domain/audit"
	"github.com/clinicore/clinicore/internal/platform/auth"
	"github.com/clinicore/clinicore/internal/platform/clock"
)

// -- Mocks --

type mockRepo struct {
	sessions map[uuid.UUID]*Session
}

func newMockRepo() *mockRepo {
	return &mockRepo{sessions: make(map[uuid.UUID]*Session)}
}

func (m *mockRepo) Create(_ context.Context, s *Session) error {
	s.ID = uuid.New()
	s.CreatedAt = time.Now()
	s.UpdatedAt = time.Now()
	cp := *s
	m.sessions[s.ID] = &cp
	return nil
}

func (m *mockRepo) GetByID(_ context.Context, id uuid.UUID) (*Session, error) {
	s, ok := m.sessions[id]
	if !ok {
		return nil, fmt.Errorf("not found")
	}
	cp := *s
	return &cp, nil
}

func (m *mockRepo) HasConflict(_ context.Context, therapistID uuid.UUID, date time.Time, timeOfDay string) (bool, error) {
	for _, s := range m.sessions {
		if s.TherapistID == therapistID && s.ScheduledDate.Equal(date) && s.ScheduledTime == timeOfDay &&
			(s.Status == StatusScheduled || s.Status == StatusCompleted) {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockRepo) MarkStarted(_ context.Context, id, by uuid.UUID, at time.Time) (bool, error) {
	s, ok := m.sessions[id]
	if !ok || s.Status != StatusScheduled {
		return false, nil
	}
	s.Status = StatusInProgress
	s.StartedAt = &at
	s.StartedBy = &by
	return true, nil
}

func (m *mockRepo) MarkVerified(_ context.Context, id, by uuid.UUID, at time.Time) (bool, error) {
	s, ok := m.sessions[id]
	if !ok || s.Status != StatusInProgress || s.StartedAt == nil || s.VerifiedAt != nil {
		return false, nil
	}
	s.VerifiedAt = &at
	s.VerifiedBy = &by
	return true, nil
}

func (m *mockRepo) MarkCancelled(_ context.Context, id, by uuid.UUID, at time.Time, reason string) (bool, error) {
	s, ok := m.sessions[id]
	if !ok || s.Status != StatusScheduled {
		return false, nil
	}
	s.Status = StatusCancelled
	s.CancelledAt = &at
	s.CancelledBy = &by
	s.CancelReason = &reason
	return true, nil
}

func (m *mockRepo) ListPendingConfirmations(_ context.Context, clinicID *uuid.UUID, limit, offset int) ([]*Session, int, error) {
	var result []*Session
	for _, s := range m.sessions {
		if s.Status != StatusInProgress || s.StartedAt == nil || s.VerifiedAt != nil {
			continue
		}
		if clinicID != nil && s.ClinicID != *clinicID {
			continue
		}
		result = append(result, s)
	}
	return result, len(result), nil
}

func (m *mockRepo) Search(_ context.Context, params map[string]string, limit, offset int) ([]*Session, int, error) {
	var result []*Session
	for _, s := range m.sessions {
		if p, ok := params["date"]; ok {
			d, _ := time.Parse("2006-01-02", p)
			if !s.ScheduledDate.Equal(d) {
				continue
			}
		}
		if p, ok := params["from"]; ok {
			d, _ := time.Parse("2006-01-02", p)
			if s.ScheduledDate.Before(d) {
				continue
			}
		}
		if p, ok := params["to"]; ok {
			d, _ := time.Parse("2006-01-02", p)
			if s.ScheduledDate.After(d) {
				continue
			}
		}
		result = append(result, s)
	}
	return result, len(result), nil
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

func newTestService(repo *mockRepo, rec *mockRecorder) *Service {
	return NewService(repo, rec, passthroughTx, clock.Fixed(testNow))
}

func secretaryCtx() context.Context {
	clinic := uuid.New()
	return auth.WithActor(context.Background(), auth.Actor{
		ID: uuid.New(), Role: auth.RoleSecretary, HomeClinicID: &clinic,
	})
}

func ownerCtx() context.Context {
	return auth.WithActor(context.Background(), auth.Actor{ID: uuid.New(), Role: auth.RoleOwner})
}

func therapistCtx(id, clinicID uuid.UUID) context.Context {
	return auth.WithActor(context.Background(), auth.Actor{
		ID: id, Role: auth.RoleLicensedTherapist, HomeClinicID: &clinicID,
	})
}

func validRequest(therapistID uuid.UUID) *CreateRequest {
	clientID := uuid.New()
	return &CreateRequest{
		ClinicID:    uuid.New(),
		ClientID:    &clientID,
		TherapistID: therapistID,
		SessionType: TypeRegular,
		Date:        time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC),
		TimeOfDay:   "09:00",
	}
}

// -- Create --

func TestCreate_Valid(t *testing.T) {
	repo := newMockRepo()
	rec := &mockRecorder{}
	svc := newTestService(repo, rec)

	sess, err := svc.Create(ownerCtx(), validRequest(uuid.New()))
	if err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	if sess.Status != StatusScheduled {
		t.Errorf("expected scheduled, got %s", sess.Status)
	}
	if sess.DurationMinutes != 45 {
		t.Errorf("expected default duration 45, got %d", sess.DurationMinutes)
	}
	if len(rec.entries) != 1 || rec.entries[0].Action != audit.ActionCreate {
		t.Error("expected one create audit entry")
	}
}

func TestCreate_SlotConflict(t *testing.T) {
	repo := newMockRepo()
	svc := newTestService(repo, &mockRecorder{})
	therapist := uuid.New()

	req := validRequest(therapist)
	if _, err := svc.Create(ownerCtx(), req); err != nil {
		t.Fatalf("first Create() error: %v", err)
	}

	second := validRequest(therapist)
	second.Date = req.Date
	second.TimeOfDay = req.TimeOfDay
	_, err := svc.Create(ownerCtx(), second)
	if !errors.Is(err, ErrSlotTaken) {
		t.Fatalf("expected ErrSlotTaken, got %v", err)
	}
}

func TestCreate_CancelledSessionDoesNotBlock(t *testing.T) {
	repo := newMockRepo()
	svc := newTestService(repo, &mockRecorder{})
	therapist := uuid.New()

	req := validRequest(therapist)
	sess, err := svc.Create(ownerCtx(), req)
	if err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	repo.sessions[sess.ID].Status = StatusCancelled

	second := validRequest(therapist)
	second.Date = req.Date
	second.TimeOfDay = req.TimeOfDay
	if _, err := svc.Create(ownerCtx(), second); err != nil {
		t.Fatalf("expected cancelled slot to be bookable, got %v", err)
	}
}

func TestCreate_ExactlyOneClientRef(t *testing.T) {
	svc := newTestService(newMockRepo(), &mockRecorder{})

	req := validRequest(uuid.New())
	req.ClientName = "Free Text"
	if _, err := svc.Create(ownerCtx(), req); err == nil {
		t.Error("expected error when both client_id and client_name are set")
	}

	req2 := validRequest(uuid.New())
	req2.ClientID = nil
	if _, err := svc.Create(ownerCtx(), req2); err == nil {
		t.Error("expected error when neither client_id nor client_name is set")
	}
}

func TestCreate_TherapistLacksPermission(t *testing.T) {
	svc := newTestService(newMockRepo(), &mockRecorder{})
	therapist := uuid.New()
	req := validRequest(therapist)
	_, err := svc.Create(therapistCtx(therapist, req.ClinicID), req)
	if !errors.Is(err, auth.ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
}

func TestCreate_ClinicAccessDenied(t *testing.T) {
	svc := newTestService(newMockRepo(), &mockRecorder{})
	req := validRequest(uuid.New())
	// Secretary of a different clinic.
	_, err := svc.Create(secretaryCtx(), req)
	if !errors.Is(err, auth.ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
}

func TestCreate_InvalidTime(t *testing.T) {
	svc := newTestService(newMockRepo(), &mockRecorder{})
	req := validRequest(uuid.New())
	req.TimeOfDay = "9am"
	if _, err := svc.Create(ownerCtx(), req); err == nil {
		t.Error("expected error for malformed time")
	}
}

// -- CreateBulk --

func TestCreateBulk_PartitionsSkippedDates(t *testing.T) {
	repo := newMockRepo()
	svc := newTestService(repo, &mockRecorder{})
	therapist := uuid.New()

	blocked := validRequest(therapist)
	blocked.Date = time.Date(2024, 7, 2, 0, 0, 0, 0, time.UTC)
	if _, err := svc.Create(ownerCtx(), blocked); err != nil {
		t.Fatalf("Create() error: %v", err)
	}

	clientID := uuid.New()
	result, err := svc.CreateBulk(ownerCtx(), &BulkCreateRequest{
		ClinicID:    uuid.New(),
		ClientID:    &clientID,
		TherapistID: therapist,
		TimeOfDay:   "09:00",
		Dates: []time.Time{
			time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC),
			time.Date(2024, 7, 2, 0, 0, 0, 0, time.UTC),
			time.Date(2024, 7, 3, 0, 0, 0, 0, time.UTC),
		},
	})
	if err != nil {
		t.Fatalf("CreateBulk() error: %v", err)
	}
	if len(result.Created) != 2 {
		t.Errorf("expected 2 created, got %d", len(result.Created))
	}
	if len(result.SkippedDates) != 1 || result.SkippedDates[0] != "2024-07-02" {
		t.Errorf("expected 2024-07-02 skipped, got %v", result.SkippedDates)
	}
}

func TestCreateBulk_AllDatesConflict(t *testing.T) {
	repo := newMockRepo()
	svc := newTestService(repo, &mockRecorder{})
	therapist := uuid.New()

	date := time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC)
	blocked := validRequest(therapist)
	blocked.Date = date
	if _, err := svc.Create(ownerCtx(), blocked); err != nil {
		t.Fatalf("Create() error: %v", err)
	}

	clientID := uuid.New()
	result, err := svc.CreateBulk(ownerCtx(), &BulkCreateRequest{
		ClinicID:    uuid.New(),
		ClientID:    &clientID,
		TherapistID: therapist,
		TimeOfDay:   "09:00",
		Dates:       []time.Time{date},
	})
	if !errors.Is(err, ErrSlotTaken) {
		t.Fatalf("expected ErrSlotTaken, got %v", err)
	}
	if result == nil || len(result.Created) != 0 || len(result.SkippedDates) != 1 {
		t.Errorf("expected empty created with one skipped date, got %+v", result)
	}
}

// -- Start --

func TestStart_AssignedTherapist(t *testing.T) {
	repo := newMockRepo()
	svc := newTestService(repo, &mockRecorder{})
	therapist := uuid.New()

	req := validRequest(therapist)
	sess, err := svc.Create(ownerCtx(), req)
	if err != nil {
		t.Fatalf("Create() error: %v", err)
	}

	got, err := svc.Start(therapistCtx(therapist, req.ClinicID), sess.ID)
	if err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	if got.Status != StatusInProgress {
		t.Errorf("expected in_progress, got %s", got.Status)
	}
	if got.StartedAt == nil || !got.StartedAt.Equal(testNow) {
		t.Error("expected started_at set to now")
	}
}

func TestStart_OtherTherapistForbidden(t *testing.T) {
	repo := newMockRepo()
	svc := newTestService(repo, &mockRecorder{})

	req := validRequest(uuid.New())
	sess, err := svc.Create(ownerCtx(), req)
	if err != nil {
		t.Fatalf("Create() error: %v", err)
	}

	_, err = svc.Start(therapistCtx(uuid.New(), req.ClinicID), sess.ID)
	if !errors.Is(err, auth.ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
}

func TestStart_WrongState(t *testing.T) {
	repo := newMockRepo()
	svc := newTestService(repo, &mockRecorder{})

	sess, err := svc.Create(ownerCtx(), validRequest(uuid.New()))
	if err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	if _, err := svc.Start(ownerCtx(), sess.ID); err != nil {
		t.Fatalf("first Start() error: %v", err)
	}
	_, err = svc.Start(ownerCtx(), sess.ID)
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
}

// -- Confirm --

func TestConfirm_StampsWithoutCompleting(t *testing.T) {
	repo := newMockRepo()
	svc := newTestService(repo, &mockRecorder{})

	sess, err := svc.Create(ownerCtx(), validRequest(uuid.New()))
	if err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	if _, err := svc.Start(ownerCtx(), sess.ID); err != nil {
		t.Fatalf("Start() error: %v", err)
	}

	got, err := svc.Confirm(ownerCtx(), sess.ID)
	if err != nil {
		t.Fatalf("Confirm() error: %v", err)
	}
	if got.VerifiedAt == nil {
		t.Error("expected verified_at set")
	}
	if got.Status != StatusInProgress {
		t.Errorf("confirmation must not change status, got %s", got.Status)
	}
}

func TestConfirm_NotStarted(t *testing.T) {
	repo := newMockRepo()
	svc := newTestService(repo, &mockRecorder{})

	sess, err := svc.Create(ownerCtx(), validRequest(uuid.New()))
	if err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	_, err = svc.Confirm(ownerCtx(), sess.ID)
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
}

func TestConfirm_AlreadyVerified(t *testing.T) {
	repo := newMockRepo()
	svc := newTestService(repo, &mockRecorder{})

	sess, err := svc.Create(ownerCtx(), validRequest(uuid.New()))
	if err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	if _, err := svc.Start(ownerCtx(), sess.ID); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	if _, err := svc.Confirm(ownerCtx(), sess.ID); err != nil {
		t.Fatalf("Confirm() error: %v", err)
	}
	_, err = svc.Confirm(ownerCtx(), sess.ID)
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition on second confirm, got %v", err)
	}
}

func TestConfirm_RequiresVerifyPermission(t *testing.T) {
	repo := newMockRepo()
	svc := newTestService(repo, &mockRecorder{})
	therapist := uuid.New()

	req := validRequest(therapist)
	sess, err := svc.Create(ownerCtx(), req)
	if err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	if _, err := svc.Start(ownerCtx(), sess.ID); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	_, err = svc.Confirm(therapistCtx(therapist, req.ClinicID), sess.ID)
	if !errors.Is(err, auth.ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
}

// -- Cancel --

func TestCancel_RequiresReason(t *testing.T) {
	repo := newMockRepo()
	svc := newTestService(repo, &mockRecorder{})

	sess, err := svc.Create(ownerCtx(), validRequest(uuid.New()))
	if err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	if _, err := svc.Cancel(ownerCtx(), sess.ID, "  "); err == nil {
		t.Error("expected error for blank reason")
	}
}

func TestCancel_FromScheduled(t *testing.T) {
	repo := newMockRepo()
	svc := newTestService(repo, &mockRecorder{})

	sess, err := svc.Create(ownerCtx(), validRequest(uuid.New()))
	if err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	got, err := svc.Cancel(ownerCtx(), sess.ID, "client sick")
	if err != nil {
		t.Fatalf("Cancel() error: %v", err)
	}
	if got.Status != StatusCancelled {
		t.Errorf("expected cancelled, got %s", got.Status)
	}
	if got.CancelReason == nil || *got.CancelReason != "client sick" {
		t.Error("expected cancel reason recorded")
	}
}

func TestCancel_FromInProgressFails(t *testing.T) {
	repo := newMockRepo()
	svc := newTestService(repo, &mockRecorder{})

	sess, err := svc.Create(ownerCtx(), validRequest(uuid.New()))
	if err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	if _, err := svc.Start(ownerCtx(), sess.ID); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	_, err = svc.Cancel(ownerCtx(), sess.ID, "too late")
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
}

func TestCancel_AlreadyCancelledFails(t *testing.T) {
	repo := newMockRepo()
	svc := newTestService(repo, &mockRecorder{})

	sess, err := svc.Create(ownerCtx(), validRequest(uuid.New()))
	if err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	if _, err := svc.Cancel(ownerCtx(), sess.ID, "first"); err != nil {
		t.Fatalf("Cancel() error: %v", err)
	}
	_, err = svc.Cancel(ownerCtx(), sess.ID, "second")
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
}

// -- Pending confirmations --

func TestListPendingConfirmations(t *testing.T) {
	repo := newMockRepo()
	svc := newTestService(repo, &mockRecorder{})

	started, err := svc.Create(ownerCtx(), validRequest(uuid.New()))
	if err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	if _, err := svc.Start(ownerCtx(), started.ID); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	if _, err := svc.Create(ownerCtx(), validRequest(uuid.New())); err != nil {
		t.Fatalf("Create() error: %v", err)
	}

	items, total, err := svc.ListPendingConfirmations(ownerCtx(), nil, 20, 0)
	if err != nil {
		t.Fatalf("ListPendingConfirmations() error: %v", err)
	}
	if total != 1 || len(items) != 1 {
		t.Fatalf("expected 1 pending confirmation, got %d", total)
	}
	if items[0].ID != started.ID {
		t.Error("unexpected pending session")
	}
}

// -- Search --

func TestSearch_DateRange(t *testing.T) {
	repo := newMockRepo()
	svc := newTestService(repo, &mockRecorder{})

	days := []time.Time{
		time.Date(2024, 6, 30, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 7, 2, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 7, 5, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 7, 8, 0, 0, 0, 0, time.UTC),
	}
	for _, day := range days {
		req := validRequest(uuid.New())
		req.Date = day
		if _, err := svc.Create(ownerCtx(), req); err != nil {
			t.Fatalf("Create() error: %v", err)
		}
	}

	items, total, err := svc.Search(ownerCtx(), map[string]string{
		"from": "2024-07-01",
		"to":   "2024-07-07",
	}, 20, 0)
	if err != nil {
		t.Fatalf("Search() error: %v", err)
	}
	if total != 2 || len(items) != 2 {
		t.Fatalf("expected 2 sessions in range, got %d", total)
	}
	for _, s := range items {
		if s.ScheduledDate.Before(days[1]) || s.ScheduledDate.After(days[2]) {
			t.Errorf("session on %s outside requested range", s.ScheduledDate.Format("2006-01-02"))
		}
	}
}
