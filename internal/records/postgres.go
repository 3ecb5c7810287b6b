package records

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/BikramMondal5/MediVerify/internal/models"
	"github.com/BikramMondal5/MediVerify/internal/records/migrations"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

// PgxPool is the subset of *pgxpool.Pool the store uses. pgxmock.PgxPoolIface
// satisfies it too.
type PgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

type PostgresStore struct {
	pool PgxPool
}

func NewPostgresStore(pool PgxPool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// OpenPostgres connects to dsn, optionally applying migrations first.
func OpenPostgres(ctx context.Context, dsn string, migrate bool) (*PostgresStore, error) {
	if migrate {
		if err := Migrate(ctx, dsn); err != nil {
			return nil, fmt.Errorf("failed to migrate: %w", err)
		}
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	return NewPostgresStore(pool), nil
}

// Migrate applies the embedded schema migrations.
func Migrate(ctx context.Context, dsn string) error {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return err
	}
	defer db.Close()

	goose.SetBaseFS(migrations.FS)
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}
	return goose.UpContext(ctx, db, ".")
}

func (s *PostgresStore) Close() { s.pool.Close() }

const insertRecord = `INSERT INTO verifications (id, user_id, is_authentic, confidence, verified_at, image_url, medication_name, manufacturer, batch_number, expiry_date, created_at) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`

const selectColumns = `SELECT id, user_id, is_authentic, confidence, verified_at, image_url, medication_name, manufacturer, batch_number, expiry_date, created_at FROM verifications`

func (s *PostgresStore) Save(ctx context.Context, rec models.VerificationRecord) error {
	res := rec.VerificationResult
	meta := rec.Metadata
	_, err := s.pool.Exec(ctx, insertRecord,
		rec.ID, rec.UserID, res.IsAuthentic, res.Confidence, res.Timestamp, res.ImageURL,
		meta.MedicationName, meta.Manufacturer, meta.BatchNumber, meta.ExpiryDate, rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save verification: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListByUser(ctx context.Context, userID string) ([]models.VerificationRecord, error) {
	rows, err := s.pool.Query(ctx, selectColumns+` WHERE user_id=$1 ORDER BY verified_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list verifications: %w", err)
	}
	defer rows.Close()

	out := make([]models.VerificationRecord, 0)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan verification: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list verifications: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) Get(ctx context.Context, id uuid.UUID) (models.VerificationRecord, error) {
	rec, err := scanRecord(s.pool.QueryRow(ctx, selectColumns+` WHERE id=$1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return models.VerificationRecord{}, ErrNotFound
	}
	if err != nil {
		return models.VerificationRecord{}, fmt.Errorf("failed to get verification: %w", err)
	}
	return rec, nil
}

func scanRecord(row pgx.Row) (models.VerificationRecord, error) {
	var (
		rec    models.VerificationRecord
		expiry *time.Time
	)
	err := row.Scan(
		&rec.ID, &rec.UserID,
		&rec.VerificationResult.IsAuthentic, &rec.VerificationResult.Confidence,
		&rec.VerificationResult.Timestamp, &rec.VerificationResult.ImageURL,
		&rec.Metadata.MedicationName, &rec.Metadata.Manufacturer, &rec.Metadata.BatchNumber,
		&expiry, &rec.CreatedAt,
	)
	if err != nil {
		return models.VerificationRecord{}, err
	}
	rec.Metadata.ExpiryDate = expiry
	return rec, nil
}
