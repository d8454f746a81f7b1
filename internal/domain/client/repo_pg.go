package client

import (
	"context"
	"fmt"

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

const clientCols = `id, first_name, last_name, guardian_name, guardian_relation, guardian_phone,
	main_clinic_id, primary_therapist_id, status, created_at, updated_at`

func (r *repoPG) scanClient(row pgx.Row) (*Client, error) {
	var c Client
	err := row.Scan(&c.ID, &c.FirstName, &c.LastName, &c.GuardianName, &c.GuardianRelation, &c.GuardianPhone,
		&c.MainClinicID, &c.PrimaryTherapistID, &c.Status, &c.CreatedAt, &c.UpdatedAt)
	return &c, err
}

func (r *repoPG) Create(ctx context.Context, c *Client) error {
	c.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO client (id, first_name, last_name, guardian_name, guardian_relation, guardian_phone,
			main_clinic_id, primary_therapist_id, status)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		c.ID, c.FirstName, c.LastName, c.GuardianName, c.GuardianRelation, c.GuardianPhone,
		c.MainClinicID, c.PrimaryTherapistID, c.Status)
	if err != nil {
		return err
	}
	return r.insertBackups(ctx, c.ID, c.BackupTherapists)
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Client, error) {
	c, err := r.scanClient(r.conn(ctx).QueryRow(ctx, `SELECT `+clientCols+` FROM client WHERE id = $1`, id))
	if err != nil {
		return nil, err
	}
	backups, err := r.loadBackups(ctx, id)
	if err != nil {
		return nil, err
	}
	c.BackupTherapists = backups
	return c, nil
}

func (r *repoPG) Update(ctx context.Context, c *Client) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE client SET first_name=$2, last_name=$3, guardian_name=$4, guardian_relation=$5,
			guardian_phone=$6, primary_therapist_id=$7, updated_at=NOW()
		WHERE id = $1`,
		c.ID, c.FirstName, c.LastName, c.GuardianName, c.GuardianRelation,
		c.GuardianPhone, c.PrimaryTherapistID)
	return err
}

func (r *repoPG) SetStatus(ctx context.Context, id uuid.UUID, status string) error {
	tag, err := r.conn(ctx).Exec(ctx, `UPDATE client SET status = $2, updated_at = NOW() WHERE id = $1`, id, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *repoPG) Search(ctx context.Context, params map[string]string, limit, offset int) ([]*Client, int, error) {
	query := `SELECT ` + clientCols + ` FROM client WHERE 1=1`
	countQuery := `SELECT COUNT(*) FROM client WHERE 1=1`
	var args []interface{}
	idx := 1

	if p, ok := params["clinic"]; ok {
		query += fmt.Sprintf(` AND main_clinic_id = $%d`, idx)
		countQuery += fmt.Sprintf(` AND main_clinic_id = $%d`, idx)
		args = append(args, p)
		idx++
	}
	if p, ok := params["status"]; ok {
		query += fmt.Sprintf(` AND status = $%d`, idx)
		countQuery += fmt.Sprintf(` AND status = $%d`, idx)
		args = append(args, p)
		idx++
	}
	if p, ok := params["name"]; ok {
		query += fmt.Sprintf(` AND (first_name ILIKE $%d OR last_name ILIKE $%d)`, idx, idx)
		countQuery += fmt.Sprintf(` AND (first_name ILIKE $%d OR last_name ILIKE $%d)`, idx, idx)
		args = append(args, "%"+p+"%")
		idx++
	}
	if p, ok := params["therapist"]; ok {
		query += fmt.Sprintf(` AND primary_therapist_id = $%d`, idx)
		countQuery += fmt.Sprintf(` AND primary_therapist_id = $%d`, idx)
		args = append(args, p)
		idx++
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query += fmt.Sprintf(` ORDER BY last_name, first_name LIMIT $%d OFFSET $%d`, idx, idx+1)
	args = append(args, limit, offset)

	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Client
	for rows.Next() {
		c, err := r.scanClient(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, c)
	}
	return items, total, nil
}

func (r *repoPG) ReplaceBackups(ctx context.Context, clientID uuid.UUID, backups []BackupTherapist) error {
	if _, err := r.conn(ctx).Exec(ctx, `DELETE FROM client_backup_therapist WHERE client_id = $1`, clientID); err != nil {
		return err
	}
	return r.insertBackups(ctx, clientID, backups)
}

func (r *repoPG) insertBackups(ctx context.Context, clientID uuid.UUID, backups []BackupTherapist) error {
	for _, b := range backups {
		if _, err := r.conn(ctx).Exec(ctx, `
			INSERT INTO client_backup_therapist (client_id, therapist_id, priority)
			VALUES ($1,$2,$3)`,
			clientID, b.TherapistID, b.Priority); err != nil {
			return err
		}
	}
	return nil
}

func (r *repoPG) loadBackups(ctx context.Context, clientID uuid.UUID) ([]BackupTherapist, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT therapist_id, priority FROM client_backup_therapist
		WHERE client_id = $1 ORDER BY priority ASC`, clientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var backups []BackupTherapist
	for rows.Next() {
		var b BackupTherapist
		if err := rows.Scan(&b.TherapistID, &b.Priority); err != nil {
			return nil, err
		}
		backups = append(backups, b)
	}
	return backups, nil
}

func (r *repoPG) PrimaryTherapist(ctx context.Context, clientID uuid.UUID) (*uuid.UUID, error) {
	var id *uuid.UUID
	err := r.conn(ctx).QueryRow(ctx, `SELECT primary_therapist_id FROM client WHERE id = $1`, clientID).Scan(&id)
	return id, err
}
