package staff

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/clinicore/clinicore/internal/platform/auth"
)

type mockRepo struct {
	actors map[uuid.UUID]*StaffActor
}

func newMockRepo() *mockRepo {
	return &mockRepo{actors: make(map[uuid.UUID]*StaffActor)}
}

func (m *mockRepo) Create(_ context.Context, a *StaffActor) error {
	a.ID = uuid.New()
	a.CreatedAt = time.Now()
	a.UpdatedAt = time.Now()
	m.actors[a.ID] = a
	return nil
}

func (m *mockRepo) GetByID(_ context.Context, id uuid.UUID) (*StaffActor, error) {
	a, ok := m.actors[id]
	if !ok {
		return nil, fmt.Errorf("not found")
	}
	return a, nil
}

func (m *mockRepo) List(_ context.Context, limit, offset int) ([]*StaffActor, int, error) {
	var result []*StaffActor
	for _, a := range m.actors {
		result = append(result, a)
	}
	return result, len(result), nil
}

func (m *mockRepo) ListTherapists(_ context.Context, clinicID *uuid.UUID, limit, offset int) ([]*StaffActor, int, error) {
	var result []*StaffActor
	for _, a := range m.actors {
		if !a.Active || !strings.HasSuffix(a.Role, "therapist") {
			continue
		}
		if clinicID != nil && (a.HomeClinicID == nil || *a.HomeClinicID != *clinicID) {
			continue
		}
		result = append(result, a)
	}
	return result, len(result), nil
}

func (m *mockRepo) RoleOf(_ context.Context, id uuid.UUID) (string, error) {
	a, ok := m.actors[id]
	if !ok {
		return "", fmt.Errorf("not found")
	}
	return a.Role, nil
}

func (m *mockRepo) SetActive(_ context.Context, id uuid.UUID, active bool) error {
	a, ok := m.actors[id]
	if !ok {
		return fmt.Errorf("not found")
	}
	a.Active = active
	return nil
}

func TestCreateStaff_TherapistNeedsHomeClinic(t *testing.T) {
	svc := NewService(newMockRepo())
	a := &StaffActor{FirstName: "Dana", LastName: "Levi", Role: auth.RoleLicensedTherapist}
	if err := svc.Create(context.Background(), a); err == nil {
		t.Error("expected error for therapist without home clinic")
	}
}

func TestCreateStaff_OwnerWithoutHomeClinic(t *testing.T) {
	svc := NewService(newMockRepo())
	a := &StaffActor{FirstName: "Noa", LastName: "Adler", Role: auth.RoleOwner}
	if err := svc.Create(context.Background(), a); err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	if !a.Active {
		t.Error("expected new actor to be active")
	}
}

func TestCreateStaff_InvalidRole(t *testing.T) {
	svc := NewService(newMockRepo())
	clinicID := uuid.New()
	a := &StaffActor{FirstName: "X", LastName: "Y", Role: "janitor", HomeClinicID: &clinicID}
	if err := svc.Create(context.Background(), a); err == nil {
		t.Error("expected error for invalid role")
	}
}

func TestListTherapists_FiltersByClinic(t *testing.T) {
	repo := newMockRepo()
	svc := NewService(repo)
	clinicA := uuid.New()
	clinicB := uuid.New()

	for _, a := range []*StaffActor{
		{FirstName: "A", LastName: "A", Role: auth.RoleLicensedTherapist, HomeClinicID: &clinicA},
		{FirstName: "B", LastName: "B", Role: auth.RoleSpeechTherapist, HomeClinicID: &clinicB},
		{FirstName: "C", LastName: "C", Role: auth.RoleSecretary, HomeClinicID: &clinicA},
	} {
		if err := svc.Create(context.Background(), a); err != nil {
			t.Fatalf("Create() error: %v", err)
		}
	}

	items, total, err := svc.ListTherapists(context.Background(), &clinicA, 20, 0)
	if err != nil {
		t.Fatalf("ListTherapists() error: %v", err)
	}
	if total != 1 || len(items) != 1 {
		t.Fatalf("expected 1 therapist at clinic A, got %d", total)
	}
	if items[0].Role != auth.RoleLicensedTherapist {
		t.Errorf("unexpected role %s", items[0].Role)
	}
}

func TestRoleOf(t *testing.T) {
	repo := newMockRepo()
	svc := NewService(repo)
	clinicID := uuid.New()
	a := &StaffActor{FirstName: "Dana", LastName: "Levi", Role: auth.RoleSpeechTherapist, HomeClinicID: &clinicID}
	if err := svc.Create(context.Background(), a); err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	role, err := svc.RoleOf(context.Background(), a.ID)
	if err != nil {
		t.Fatalf("RoleOf() error: %v", err)
	}
	if role != auth.RoleSpeechTherapist {
		t.Errorf("expected %s, got %s", auth.RoleSpeechTherapist, role)
	}
}
