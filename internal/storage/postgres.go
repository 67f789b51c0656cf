package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/abdurrahmankhairii/Enhancing-Operational-Safety-at-Fields-Pertamina/internal/config"
	"github.com/abdurrahmankhairii/Enhancing-Operational-Safety-at-Fields-Pertamina/internal/models"
)

const uniqueViolation = "23505"

const (
	DefaultLogLimit = 100
	MaxLogLimit     = 1000
)

type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(cfg config.DatabaseConfig) (*PostgresStore, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	poolCfg.MaxConns = int32(cfg.MaxConns)

	pool, err := pgxpool.NewWithConfig(context.Background(), poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	if err := pool.Ping(context.Background()); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Close() {
	s.pool.Close()
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

// --- Workers ---

const workerColumns = `id, employee_id, name, company, role, license_active, created_at`

func scanWorker(row pgx.Row) (*models.Identity, error) {
	var w models.Identity
	if err := row.Scan(&w.ID, &w.EmployeeCode, &w.Name, &w.Company, &w.Role, &w.LicenseActive, &w.CreatedAt); err != nil {
		return nil, err
	}
	return &w, nil
}

// LoadIdentities returns every worker with its embedding in enrollment order.
func (s *PostgresStore) LoadIdentities(ctx context.Context) ([]models.Identity, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+workerColumns+`, face_embedding FROM workers ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("load identities: %w", err)
	}
	defer rows.Close()

	var out []models.Identity
	for rows.Next() {
		var w models.Identity
		var vec pgvector.Vector
		if err := rows.Scan(&w.ID, &w.EmployeeCode, &w.Name, &w.Company, &w.Role, &w.LicenseActive, &w.CreatedAt, &vec); err != nil {
			return nil, fmt.Errorf("scan identity: %w", err)
		}
		w.Embedding = vec.Slice()
		out = append(out, w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load identities: %w", err)
	}
	return out, nil
}

// AppendIdentity inserts a newly enrolled worker. An existing employee code
// yields models.ErrDuplicateIdentity.
func (s *PostgresStore) AppendIdentity(ctx context.Context, req models.EnrollmentRequest) (*models.Identity, error) {
	w := &models.Identity{
		ID:            uuid.New(),
		EmployeeCode:  req.EmployeeCode,
		Name:          req.Name,
		Company:       req.Company,
		Role:          req.Role,
		LicenseActive: req.LicenseActive,
		Embedding:     req.Embedding,
	}
	err := s.pool.QueryRow(ctx,
		`INSERT INTO workers (id, employee_id, name, company, role, license_active, face_embedding)
		 VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING created_at`,
		w.ID, w.EmployeeCode, w.Name, w.Company, w.Role, w.LicenseActive, pgvector.NewVector(req.Embedding),
	).Scan(&w.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("append identity %s: %w", req.EmployeeCode, models.ErrDuplicateIdentity)
		}
		return nil, fmt.Errorf("append identity: %w", err)
	}
	return w, nil
}

func (s *PostgresStore) ListWorkers(ctx context.Context) ([]models.Identity, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+workerColumns+` FROM workers ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list workers: %w", err)
	}
	defer rows.Close()

	var out []models.Identity
	for rows.Next() {
		w, err := scanWorker(rows)
		if err != nil {
			return nil, fmt.Errorf("scan worker: %w", err)
		}
		out = append(out, *w)
	}
	return out, rows.Err()
}

func (s *PostgresStore) GetWorker(ctx context.Context, id uuid.UUID) (*models.Identity, error) {
	w, err := scanWorker(s.pool.QueryRow(ctx, `SELECT `+workerColumns+` FROM workers WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("get worker: %w", err)
	}
	return w, nil
}

func (s *PostgresStore) UpdateWorker(ctx context.Context, id uuid.UUID, u models.WorkerUpdate) (*models.Identity, error) {
	w, err := scanWorker(s.pool.QueryRow(ctx,
		`UPDATE workers SET employee_id = $1, name = $2, company = $3, role = $4, license_active = $5
		 WHERE id = $6 RETURNING `+workerColumns,
		u.EmployeeCode, u.Name, u.Company, u.Role, u.LicenseActive, id))
	if err != nil {
		switch {
		case errors.Is(err, pgx.ErrNoRows):
			return nil, models.ErrNotFound
		case isUniqueViolation(err):
			return nil, fmt.Errorf("update worker %s: %w", u.EmployeeCode, models.ErrDuplicateIdentity)
		}
		return nil, fmt.Errorf("update worker: %w", err)
	}
	return w, nil
}

// DeleteWorker removes the worker and, by cascade, its gate logs.
func (s *PostgresStore) DeleteWorker(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM workers WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete worker: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// --- CCTV ---

func (s *PostgresStore) ListCCTV(ctx context.Context) ([]models.CCTV, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, ip_address, location, port, username, created_at FROM cctv ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list cctv: %w", err)
	}
	defer rows.Close()

	var out []models.CCTV
	for rows.Next() {
		var c models.CCTV
		if err := rows.Scan(&c.ID, &c.Name, &c.IPAddress, &c.Location, &c.Port, &c.Username, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan cctv: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *PostgresStore) CreateCCTV(ctx context.Context, c *models.CCTV) error {
	c.ID = uuid.New()
	err := s.pool.QueryRow(ctx,
		`INSERT INTO cctv (id, name, ip_address, location, port, username, password)
		 VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING created_at`,
		c.ID, c.Name, c.IPAddress, c.Location, c.Port, c.Username, c.Password,
	).Scan(&c.CreatedAt)
	if err != nil {
		return fmt.Errorf("create cctv: %w", err)
	}
	return nil
}

// --- Gate logs ---

// InsertEvent persists one compliance event.
func (s *PostgresStore) InsertEvent(ctx context.Context, ev *models.ComplianceEvent) error {
	details := ev.Details
	if len(details) == 0 {
		details = []byte("{}")
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO gate_logs (log_id, worker_id, timestamp_in, ppe_status, ppe_details, cctv_id, snapshot_key)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		ev.ID, ev.IdentityID, ev.Timestamp, ev.Overall, details, ev.CCTVID, ev.SnapshotKey)
	if err != nil {
		return fmt.Errorf("insert gate log: %w", err)
	}
	return nil
}

// ClearSnapshot removes the snapshot key of an event whose frame was never stored.
func (s *PostgresStore) ClearSnapshot(ctx context.Context, eventID uuid.UUID) error {
	if _, err := s.pool.Exec(ctx, `UPDATE gate_logs SET snapshot_key = '' WHERE log_id = $1`, eventID); err != nil {
		return fmt.Errorf("clear snapshot key: %w", err)
	}
	return nil
}

const logSelect = `SELECT l.log_id, l.timestamp_in, l.ppe_status, l.ppe_details, l.cctv_id, l.snapshot_key,
	w.name, w.company, w.role
	FROM gate_logs l JOIN workers w ON w.id = l.worker_id`

func scanLog(row pgx.Row) (*models.GateLog, error) {
	var l models.GateLog
	if err := row.Scan(&l.ID, &l.Timestamp, &l.Status, &l.Details, &l.CCTVID, &l.SnapshotKey,
		&l.WorkerName, &l.Company, &l.Role); err != nil {
		return nil, err
	}
	return &l, nil
}

// QueryLogs returns the newest gate logs in [from, to). Nil bounds are open.
func (s *PostgresStore) QueryLogs(ctx context.Context, from, to *time.Time, limit int) ([]models.GateLog, error) {
	if limit <= 0 {
		limit = DefaultLogLimit
	}
	if limit > MaxLogLimit {
		limit = MaxLogLimit
	}

	where := ""
	var args []any
	if from != nil {
		args = append(args, *from)
		where += fmt.Sprintf(" AND l.timestamp_in >= $%d", len(args))
	}
	if to != nil {
		args = append(args, *to)
		where += fmt.Sprintf(" AND l.timestamp_in < $%d", len(args))
	}
	args = append(args, limit)
	query := fmt.Sprintf("%s WHERE TRUE%s ORDER BY l.timestamp_in DESC LIMIT $%d", logSelect, where, len(args))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query gate logs: %w", err)
	}
	defer rows.Close()

	var out []models.GateLog
	for rows.Next() {
		l, err := scanLog(rows)
		if err != nil {
			return nil, fmt.Errorf("scan gate log: %w", err)
		}
		out = append(out, *l)
	}
	return out, rows.Err()
}

func (s *PostgresStore) GetLog(ctx context.Context, id uuid.UUID) (*models.GateLog, error) {
	l, err := scanLog(s.pool.QueryRow(ctx, logSelect+` WHERE l.log_id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("get gate log: %w", err)
	}
	return l, nil
}
