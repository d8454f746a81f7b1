package auth

import (
	"errors"

	"github.com/google/uuid"
)

// ErrForbidden is returned by services when the acting user lacks a
// capability or clinic access. Handlers map it to 403.
var ErrForbidden = errors.New("forbidden")

// Staff roles.
const (
	RoleOwner               = "owner"
	RoleSecretary           = "secretary"
	RoleLicensedTherapist   = "licensed_therapist"
	RoleUnlicensedTherapist = "unlicensed_therapist"
	RoleSpeechTherapist     = "speech_therapist"
)

// Capabilities gate the use-case operations. The assignment of capabilities
// to roles is a fixed table, not stored configuration.
const (
	PermManageClinics    = "manage_clinics"
	PermManageUsers      = "manage_users"
	PermManageClients    = "manage_clients"
	PermManageSessions   = "manage_sessions"
	PermVerifySessions   = "verify_sessions"
	PermManageAttendance = "manage_attendance"
	PermCollectPayments  = "collect_payments"
	PermViewPayments     = "view_payments"
	PermManageRates      = "manage_rates"
	PermViewAllClients   = "view_all_clients"
	PermViewAllSessions  = "view_all_sessions"
	PermViewOwnSessions  = "view_own_sessions"
	PermLogSessionNotes  = "log_session_notes"
	PermViewReports      = "view_reports"
	PermViewAuditLogs    = "view_audit_logs"
)

var therapistPerms = []string{
	PermViewOwnSessions,
	PermLogSessionNotes,
}

var rolePermissions = map[string][]string{
	RoleOwner: {
		PermManageClinics, PermManageUsers, PermManageClients,
		PermManageSessions, PermVerifySessions, PermManageAttendance,
		PermCollectPayments, PermViewPayments, PermManageRates,
		PermViewAllClients, PermViewAllSessions, PermViewOwnSessions,
		PermLogSessionNotes, PermViewReports, PermViewAuditLogs,
	},
	RoleSecretary: {
		PermManageClients, PermManageSessions, PermVerifySessions,
		PermManageAttendance, PermCollectPayments, PermViewPayments,
		PermViewAllClients, PermViewAllSessions,
	},
	RoleLicensedTherapist:   therapistPerms,
	RoleUnlicensedTherapist: therapistPerms,
	RoleSpeechTherapist:     therapistPerms,
}

// HasPermission reports whether the role carries the given capability.
func HasPermission(role, permission string) bool {
	for _, p := range rolePermissions[role] {
		if p == permission {
			return true
		}
	}
	return false
}

// IsTherapistRole reports whether the role is one of the therapist roles
// used for session rate lookup.
func IsTherapistRole(role string) bool {
	switch role {
	case RoleLicensedTherapist, RoleUnlicensedTherapist, RoleSpeechTherapist:
		return true
	}
	return false
}

// Actor is the authenticated staff member attached to a request.
type Actor struct {
	ID           uuid.UUID
	Email        string
	Role         string
	HomeClinicID *uuid.UUID
}

// Can reports whether the actor carries the given capability.
func (a Actor) Can(permission string) bool {
	return HasPermission(a.Role, permission)
}

// CanAccessClinic reports whether the actor may operate on the target
// clinic. Owners see every clinic; everyone else is confined to their home
// clinic.
func (a Actor) CanAccessClinic(clinicID uuid.UUID) bool {
	if a.Role == RoleOwner {
		return true
	}
	return a.HomeClinicID != nil && *a.HomeClinicID == clinicID
}
