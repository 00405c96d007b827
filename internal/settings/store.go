package settings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/facilityhub/backoffice/internal/platform/db"
	"github.com/facilityhub/backoffice/internal/shared"
)

// Store persists settings records. At most one record exists per (kind, owner).
type Store interface {
	// FindByOwner returns shared.ErrNotFound when the owner has no record yet.
	FindByOwner(ctx context.Context, kind Kind, ownerID string) (*Record, error)
	// Create inserts rec and returns shared.ErrConflict when a record already exists for the owner.
	Create(ctx context.Context, rec *Record) (*Record, error)
	// Upsert inserts base merged with patch, or merges patch into the stored fields, in one write.
	Upsert(ctx context.Context, in UpsertInput) (*Record, error)
}

// UpsertInput carries a single upsert request.
type UpsertInput struct {
	Kind      Kind
	OwnerID   string
	Base      map[string]any
	Patch     map[string]any
	UpdatedBy string
	At        time.Time
}

// PGStore implements Store on the settings table.
type PGStore struct {
	q db.Querier
}

// NewPGStore constructs a PostgreSQL backed store.
func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{q: pool}
}

const recordColumns = `kind, owner_id, fields, updated_at, updated_by`

// FindByOwner implements Store.
func (s *PGStore) FindByOwner(ctx context.Context, kind Kind, ownerID string) (*Record, error) {
	row := s.q.QueryRow(ctx, `SELECT `+recordColumns+` FROM settings WHERE kind = $1 AND owner_id = $2`, string(kind), ownerID)
	return scanRecord(row)
}

// Create implements Store.
func (s *PGStore) Create(ctx context.Context, rec *Record) (*Record, error) {
	payload, err := json.Marshal(rec.Fields)
	if err != nil {
		return nil, fmt.Errorf("settings: encode fields: %w", err)
	}
	row := s.q.QueryRow(ctx, `INSERT INTO settings (kind, owner_id, fields, updated_at, updated_by)
		VALUES ($1, $2, $3::jsonb, $4, $5)
		RETURNING `+recordColumns,
		string(rec.Kind), rec.OwnerID, string(payload), rec.UpdatedAt, rec.UpdatedBy)
	out, err := scanRecord(row)
	if err != nil {
		return nil, mapWriteError(err)
	}
	return out, nil
}

// Upsert implements Store.
func (s *PGStore) Upsert(ctx context.Context, in UpsertInput) (*Record, error) {
	base, err := json.Marshal(in.Base)
	if err != nil {
		return nil, fmt.Errorf("settings: encode base: %w", err)
	}
	patch, err := json.Marshal(in.Patch)
	if err != nil {
		return nil, fmt.Errorf("settings: encode patch: %w", err)
	}
	row := s.q.QueryRow(ctx, `INSERT INTO settings (kind, owner_id, fields, updated_at, updated_by)
		VALUES ($1, $2, $3::jsonb || $4::jsonb, $5, $6)
		ON CONFLICT (kind, owner_id) DO UPDATE
		SET fields = settings.fields || $4::jsonb, updated_at = EXCLUDED.updated_at, updated_by = EXCLUDED.updated_by
		RETURNING `+recordColumns,
		string(in.Kind), in.OwnerID, string(base), string(patch), in.At, in.UpdatedBy)
	out, err := scanRecord(row)
	if err != nil {
		return nil, mapWriteError(err)
	}
	return out, nil
}

func scanRecord(row pgx.Row) (*Record, error) {
	var (
		rec  Record
		kind string
		raw  []byte
	)
	if err := row.Scan(&kind, &rec.OwnerID, &raw, &rec.UpdatedAt, &rec.UpdatedBy); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	rec.Kind = Kind(kind)
	if err := json.Unmarshal(raw, &rec.Fields); err != nil {
		return nil, fmt.Errorf("settings: decode fields: %w", err)
	}
	return &rec, nil
}

func mapWriteError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return fmt.Errorf("settings: record already exists: %w", shared.ErrConflict)
	}
	return err
}

var _ Store = (*PGStore)(nil)
