package auth

import (
	"testing"

	"github.com/google/uuid"
)

func TestHasPermission_Owner(t *testing.T) {
	perms := []string{
		PermManageClinics, PermManageSessions, PermCollectPayments,
		PermViewAuditLogs, PermManageRates,
	}
	for _, p := range perms {
		if !HasPermission(RoleOwner, p) {
			t.Errorf("expected owner to have %s", p)
		}
	}
}

func TestHasPermission_Secretary(t *testing.T) {
	if !HasPermission(RoleSecretary, PermManageSessions) {
		t.Error("expected secretary to manage sessions")
	}
	if !HasPermission(RoleSecretary, PermCollectPayments) {
		t.Error("expected secretary to collect payments")
	}
	if HasPermission(RoleSecretary, PermManageClinics) {
		t.Error("secretary must not manage clinics")
	}
	if HasPermission(RoleSecretary, PermManageRates) {
		t.Error("secretary must not manage rates")
	}
}

func TestHasPermission_Therapists(t *testing.T) {
	for _, role := range []string{RoleLicensedTherapist, RoleUnlicensedTherapist, RoleSpeechTherapist} {
		if !HasPermission(role, PermViewOwnSessions) {
			t.Errorf("expected %s to view own sessions", role)
		}
		if HasPermission(role, PermManageSessions) {
			t.Errorf("%s must not manage sessions", role)
		}
		if HasPermission(role, PermCollectPayments) {
			t.Errorf("%s must not collect payments", role)
		}
	}
}

func TestHasPermission_UnknownRole(t *testing.T) {
	if HasPermission("intern", PermViewOwnSessions) {
		t.Error("unknown role must have no permissions")
	}
}

func TestIsTherapistRole(t *testing.T) {
	if !IsTherapistRole(RoleSpeechTherapist) {
		t.Error("expected speech therapist to be a therapist role")
	}
	if IsTherapistRole(RoleSecretary) {
		t.Error("secretary is not a therapist role")
	}
}

func TestCanAccessClinic_OwnerSeesAll(t *testing.T) {
	a := Actor{Role: RoleOwner}
	if !a.CanAccessClinic(uuid.New()) {
		t.Error("expected owner to access any clinic")
	}
}

func TestCanAccessClinic_HomeClinicOnly(t *testing.T) {
	home := uuid.New()
	a := Actor{Role: RoleSecretary, HomeClinicID: &home}
	if !a.CanAccessClinic(home) {
		t.Error("expected access to home clinic")
	}
	if a.CanAccessClinic(uuid.New()) {
		t.Error("expected no access to other clinics")
	}
}

func TestCanAccessClinic_NoHomeClinic(t *testing.T) {
	a := Actor{Role: RoleLicensedTherapist}
	if a.CanAccessClinic(uuid.New()) {
		t.Error("expected no access without a home clinic")
	}
}
