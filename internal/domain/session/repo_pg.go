package session

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinicore/clinicore/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

func (r *repoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const sessionCols = `id, clinic_id, client_id, client_name, therapist_id, session_type,
	scheduled_date, scheduled_time, duration_minutes, status,
	started_at, started_by, verified_at, verified_by,
	cancelled_at, cancelled_by, cancel_reason, created_at, updated_at`

func (r *repoPG) scanSession(row pgx.Row) (*Session, error) {
	var s Session
	err := row.Scan(&s.ID, &s.ClinicID, &s.ClientID, &s.ClientName, &s.TherapistID, &s.SessionType,
		&s.ScheduledDate, &s.ScheduledTime, &s.DurationMinutes, &s.Status,
		&s.StartedAt, &s.StartedBy, &s.VerifiedAt, &s.VerifiedBy,
		&s.CancelledAt, &s.CancelledBy, &s.CancelReason, &s.CreatedAt, &s.UpdatedAt)
	return &s, err
}

func (r *repoPG) Create(ctx context.Context, s *Session) error {
	s.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO session (id, clinic_id, client_id, client_name, therapist_id, session_type,
			scheduled_date, scheduled_time, duration_minutes, status)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		s.ID, s.ClinicID, s.ClientID, s.ClientName, s.TherapistID, s.SessionType,
		s.ScheduledDate, s.ScheduledTime, s.DurationMinutes, s.Status)
	return err
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Session, error) {
	return r.scanSession(r.conn(ctx).QueryRow(ctx, `SELECT `+sessionCols+` FROM session WHERE id = $1`, id))
}

func (r *repoPG) HasConflict(ctx context.Context, therapistID uuid.UUID, date time.Time, timeOfDay string) (bool, error) {
	var exists bool
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM session
			WHERE therapist_id = $1 AND scheduled_date = $2 AND scheduled_time = $3
			  AND status IN ('scheduled','completed')
		)`, therapistID, date, timeOfDay).Scan(&exists)
	return exists, err
}

func (r *repoPG) MarkStarted(ctx context.Context, id, by uuid.UUID, at time.Time) (bool, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE session SET status = 'in_progress', started_at = $2, started_by = $3, updated_at = NOW()
		WHERE id = $1 AND status = 'scheduled'`, id, at, by)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *repoPG) MarkVerified(ctx context.Context, id, by uuid.UUID, at time.Time) (bool, error) {
	// Verification stamps the row without leaving in_progress.
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE session SET verified_at = $2, verified_by = $3, updated_at = NOW()
		WHERE id = $1 AND status = 'in_progress' AND started_at IS NOT NULL AND verified_at IS NULL`,
		id, at, by)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *repoPG) MarkCancelled(ctx context.Context, id, by uuid.UUID, at time.Time, reason string) (bool, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE session SET status = 'cancelled', cancelled_at = $2, cancelled_by = $3, cancel_reason = $4, updated_at = NOW()
		WHERE id = $1 AND status = 'scheduled'`, id, at, by, reason)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *repoPG) ListPendingConfirmations(ctx context.Context, clinicID *uuid.UUID, limit, offset int) ([]*Session, int, error) {
	where := `WHERE status = 'in_progress' AND started_at IS NOT NULL AND verified_at IS NULL`
	var args []interface{}
	idx := 1
	if clinicID != nil {
		where += fmt.Sprintf(` AND clinic_id = $%d`, idx)
		args = append(args, *clinicID)
		idx++
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM session `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := fmt.Sprintf(`SELECT %s FROM session %s ORDER BY scheduled_date DESC, scheduled_time DESC LIMIT $%d OFFSET $%d`,
		sessionCols, where, idx, idx+1)
	args = append(args, limit, offset)

	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	return r.collect(rows, total)
}

func (r *repoPG) Search(ctx context.Context, params map[string]string, limit, offset int) ([]*Session, int, error) {
	query := `SELECT ` + sessionCols + ` FROM session WHERE 1=1`
	countQuery := `SELECT COUNT(*) FROM session WHERE 1=1`
	var args []interface{}
	idx := 1

	if p, ok := params["clinic"]; ok {
		query += fmt.Sprintf(` AND clinic_id = $%d`, idx)
		countQuery += fmt.Sprintf(` AND clinic_id = $%d`, idx)
		args = append(args, p)
		idx++
	}
	if p, ok := params["therapist"]; ok {
		query += fmt.Sprintf(` AND therapist_id = $%d`, idx)
		countQuery += fmt.Sprintf(` AND therapist_id = $%d`, idx)
		args = append(args, p)
		idx++
	}
	if p, ok := params["client"]; ok {
		query += fmt.Sprintf(` AND client_id = $%d`, idx)
		countQuery += fmt.Sprintf(` AND client_id = $%d`, idx)
		args = append(args, p)
		idx++
	}
	if p, ok := params["status"]; ok {
		query += fmt.Sprintf(` AND status = $%d`, idx)
		countQuery += fmt.Sprintf(` AND status = $%d`, idx)
		args = append(args, p)
		idx++
	}
	if p, ok := params["date"]; ok {
		query += fmt.Sprintf(` AND scheduled_date = $%d`, idx)
		countQuery += fmt.Sprintf(` AND scheduled_date = $%d`, idx)
		args = append(args, p)
		idx++
	}
	if p, ok := params["from"]; ok {
		query += fmt.Sprintf(` AND scheduled_date >= $%d`, idx)
		countQuery += fmt.Sprintf(` AND scheduled_date >= $%d`, idx)
		args = append(args, p)
		idx++
	}
	if p, ok := params["to"]; ok {
		query += fmt.Sprintf(` AND scheduled_date <= $%d`, idx)
		countQuery += fmt.Sprintf(` AND scheduled_date <= $%d`, idx)
		args = append(args, p)
		idx++
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query += fmt.Sprintf(` ORDER BY scheduled_date DESC, scheduled_time ASC LIMIT $%d OFFSET $%d`, idx, idx+1)
	args = append(args, limit, offset)

	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	return r.collect(rows, total)
}

func (r *repoPG) collect(rows pgx.Rows, total int) ([]*Session, int, error) {
	var items []*Session
	for rows.Next() {
		s, err := r.scanSession(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, s)
	}
	return items, total, nil
}
