package attendance

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

const logCols = `id, clinic_id, client_id, client_name, guardian_name, guardian_relation, guardian_phone,
	therapist_id, logged_by, logged_at, notes, payment_status, payment_id, paid_at, created_at, updated_at`

func (r *repoPG) scanLog(row pgx.Row) (*Log, error) {
	var l Log
	err := row.Scan(&l.ID, &l.ClinicID, &l.ClientID, &l.ClientName, &l.GuardianName, &l.GuardianRelation,
		&l.GuardianPhone, &l.TherapistID, &l.LoggedBy, &l.LoggedAt, &l.Notes, &l.PaymentStatus,
		&l.PaymentID, &l.PaidAt, &l.CreatedAt, &l.UpdatedAt)
	return &l, err
}

func (r *repoPG) Create(ctx context.Context, l *Log) error {
	l.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO attendance_log (id, clinic_id, client_id, client_name, guardian_name, guardian_relation,
			guardian_phone, therapist_id, logged_by, logged_at, notes, payment_status, payment_id, paid_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)`,
		l.ID, l.ClinicID, l.ClientID, l.ClientName, l.GuardianName, l.GuardianRelation, l.GuardianPhone,
		l.TherapistID, l.LoggedBy, l.LoggedAt, l.Notes, l.PaymentStatus, l.PaymentID, l.PaidAt)
	return err
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Log, error) {
	return r.scanLog(r.conn(ctx).QueryRow(ctx, `SELECT `+logCols+` FROM attendance_log WHERE id = $1`, id))
}

func (r *repoPG) GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*Log, error) {
	return r.scanLog(r.conn(ctx).QueryRow(ctx, `SELECT `+logCols+` FROM attendance_log WHERE id = $1 FOR UPDATE`, id))
}

func (r *repoPG) MarkPaid(ctx context.Context, id uuid.UUID, paymentID *uuid.UUID, at time.Time) (bool, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE attendance_log SET payment_status = 'PAID', payment_id = $2, paid_at = $3, updated_at = NOW()
		WHERE id = $1 AND payment_status = 'UNPAID'`, id, paymentID, at)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *repoPG) ListUnpaidForRange(ctx context.Context, clinicID uuid.UUID, from, to time.Time) ([]*Log, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+logCols+` FROM attendance_log
		WHERE clinic_id = $1 AND payment_status = 'UNPAID'
		  AND logged_at >= $2 AND logged_at < $3
		ORDER BY logged_at ASC`, clinicID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Log
	for rows.Next() {
		l, err := r.scanLog(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, l)
	}
	return items, nil
}

func (r *repoPG) Search(ctx context.Context, params map[string]string, limit, offset int) ([]*Log, int, error) {
	query := `SELECT ` + logCols + ` FROM attendance_log WHERE 1=1`
	countQuery := `SELECT COUNT(*) FROM attendance_log WHERE 1=1`
	var args []interface{}
	idx := 1

	if p, ok := params["clinic"]; ok {
		query += fmt.Sprintf(` AND clinic_id = $%d`, idx)
		countQuery += fmt.Sprintf(` AND clinic_id = $%d`, idx)
		args = append(args, p)
		idx++
	}
	if p, ok := params["client"]; ok {
		query += fmt.Sprintf(` AND client_id = $%d`, idx)
		countQuery += fmt.Sprintf(` AND client_id = $%d`, idx)
		args = append(args, p)
		idx++
	}
	if p, ok := params["payment_status"]; ok {
		query += fmt.Sprintf(` AND payment_status = $%d`, idx)
		countQuery += fmt.Sprintf(` AND payment_status = $%d`, idx)
		args = append(args, p)
		idx++
	}
	if p, ok := params["from"]; ok {
		query += fmt.Sprintf(` AND logged_at >= $%d`, idx)
		countQuery += fmt.Sprintf(` AND logged_at >= $%d`, idx)
		args = append(args, p)
		idx++
	}
	if p, ok := params["to"]; ok {
		query += fmt.Sprintf(` AND logged_at < $%d`, idx)
		countQuery += fmt.Sprintf(` AND logged_at < $%d`, idx)
		args = append(args, p)
		idx++
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query += fmt.Sprintf(` ORDER BY logged_at DESC LIMIT $%d OFFSET $%d`, idx, idx+1)
	args = append(args, limit, offset)

	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Log
	for rows.Next() {
		l, err := r.scanLog(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, l)
	}
	return items, total, nil
}
