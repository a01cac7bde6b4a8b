package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/trogers1052/positions-dashboard/internal/models"
	"github.com/trogers1052/positions-dashboard/internal/repository"
)

// InsertPositionSnapshots appends one observation per snapshot in a single transaction
func (db *DB) InsertPositionSnapshots(ctx context.Context, snapshots []*models.PositionSnapshot) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO hf.positions (
			conid, internal_account_id, symbol, legal_entity,
			accounting_quantity, market_value, computed_cash_flow_on_entry, fetched_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`
	now := time.Now()
	for _, s := range snapshots {
		fetchedAt := s.FetchedAt
		if fetchedAt.IsZero() {
			fetchedAt = now
		}

		err := tx.QueryRowContext(ctx, query,
			s.Conid, s.InternalAccountID, s.Symbol, nullString(s.LegalEntity),
			s.AccountingQuantity, s.MarketValue, s.ComputedCashFlowOnEntry, fetchedAt,
		).Scan(&s.ID)
		if err != nil {
			return fmt.Errorf("failed to insert position snapshot %s: %w", s.Conid, err)
		}
		s.FetchedAt = fetchedAt
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit position snapshots: %w", err)
	}
	return nil
}

// EarliestObservation returns fetched_at of the first recorded row of a position
func (db *DB) EarliestObservation(ctx context.Context, conid, internalAccountID string) (time.Time, error) {
	query := `
		SELECT fetched_at
		FROM hf.positions
		WHERE conid = $1 AND internal_account_id = $2
		ORDER BY id ASC
		LIMIT 1
	`
	var fetchedAt time.Time
	err := db.conn.QueryRowContext(ctx, query, conid, internalAccountID).Scan(&fetchedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, repository.ErrNotFound
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to get earliest observation: %w", err)
	}
	return fetchedAt, nil
}

// GetLatestPositions returns the most recent observation of every position of an account
func (db *DB) GetLatestPositions(ctx context.Context, internalAccountID string) ([]*models.PositionSnapshot, error) {
	query := `
		SELECT DISTINCT ON (conid)
		       id, conid, internal_account_id, symbol, legal_entity,
		       accounting_quantity, market_value, computed_cash_flow_on_entry, fetched_at
		FROM hf.positions
		WHERE internal_account_id = $1
		ORDER BY conid, id DESC
	`
	return db.scanSnapshots(db.conn.QueryContext(ctx, query, internalAccountID))
}

// GetPositionKeysSince returns every position observed at or after since
func (db *DB) GetPositionKeysSince(ctx context.Context, since time.Time) ([]models.PositionKey, error) {
	query := `
		SELECT DISTINCT conid, internal_account_id
		FROM hf.positions
		WHERE fetched_at >= $1
		ORDER BY conid, internal_account_id
	`
	rows, err := db.conn.QueryContext(ctx, query, since)
	if err != nil {
		return nil, fmt.Errorf("failed to query position keys: %w", err)
	}
	defer rows.Close()

	var keys []models.PositionKey
	for rows.Next() {
		var k models.PositionKey
		if err := rows.Scan(&k.Conid, &k.InternalAccountID); err != nil {
			return nil, fmt.Errorf("failed to scan position key: %w", err)
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

func (db *DB) scanSnapshots(rows *sql.Rows, err error) ([]*models.PositionSnapshot, error) {
	if err != nil {
		return nil, fmt.Errorf("failed to query positions: %w", err)
	}
	defer rows.Close()

	var snapshots []*models.PositionSnapshot
	for rows.Next() {
		var s models.PositionSnapshot
		var legalEntity sql.NullString

		err := rows.Scan(
			&s.ID, &s.Conid, &s.InternalAccountID, &s.Symbol, &legalEntity,
			&s.AccountingQuantity, &s.MarketValue, &s.ComputedCashFlowOnEntry, &s.FetchedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan position: %w", err)
		}
		if legalEntity.Valid {
			s.LegalEntity = legalEntity.String
		}

		snapshots = append(snapshots, &s)
	}

	return snapshots, rows.Err()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
