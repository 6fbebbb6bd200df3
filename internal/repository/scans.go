package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/hosteldesk/desk-relay-go/internal/model"
)

// ScanJournal records every scan relayed to a desk, for end-of-event
// reporting. The relay never reads from it on the hot path.
type ScanJournal interface {
	Record(ctx context.Context, params model.CreateScanRecordParams) (*model.ScanRecord, error)
	FindByDeskID(ctx context.Context, deskID string, limit int) ([]model.ScanRecord, error)
	PruneOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// scanDB is an interface satisfied by both *sqlx.DB and *sqlx.Tx
type scanDB interface {
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

type scanJournal struct {
	db scanDB
}

func NewScanJournal(db *sqlx.DB) ScanJournal {
	return &scanJournal{db: db}
}

func (r *scanJournal) Record(ctx context.Context, params model.CreateScanRecordParams) (*model.ScanRecord, error) {
	var record model.ScanRecord
	err := r.db.GetContext(ctx, &record, `
		INSERT INTO scan_records (id, desk_id, unique_id, scanned_at)
		VALUES ($1, $2, $3, NOW())
		RETURNING *
	`, uuid.NewString(), params.DeskID, params.UniqueID)
	if err != nil {
		return nil, err
	}
	return &record, nil
}

func (r *scanJournal) FindByDeskID(ctx context.Context, deskID string, limit int) ([]model.ScanRecord, error) {
	records := []model.ScanRecord{}
	err := r.db.SelectContext(ctx, &records, `
		SELECT * FROM scan_records
		WHERE desk_id = $1
		ORDER BY scanned_at DESC
		LIMIT $2
	`, deskID, limit)
	if errors.Is(err, sql.ErrNoRows) {
		return records, nil
	}
	if err != nil {
		return nil, err
	}
	return records, nil
}

func (r *scanJournal) PruneOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		DELETE FROM scan_records
		WHERE scanned_at < $1
	`, cutoff)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
