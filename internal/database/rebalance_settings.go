package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/trogers1052/positions-dashboard/internal/models"
	"github.com/trogers1052/positions-dashboard/internal/repository"
)

const rebalanceSettingsColumns = `
	id, user_id, position_key, symbol, internal_account_id, legal_entity,
	delta_start, delta_end, desired_delta, dte_start, dte_end,
	is_enabled, created_at, updated_at
`

// UpsertRebalanceSettings inserts the settings or updates the row with the same (user_id, position_key)
func (db *DB) UpsertRebalanceSettings(ctx context.Context, s *models.RebalanceSettings) (*models.RebalanceSettings, error) {
	query := `
		INSERT INTO hf.rebalance_settings (
			user_id, position_key, symbol, internal_account_id, legal_entity,
			delta_start, delta_end, desired_delta, dte_start, dte_end, is_enabled
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, COALESCE($11, TRUE))
		ON CONFLICT (user_id, position_key) DO UPDATE SET
			symbol = EXCLUDED.symbol,
			internal_account_id = EXCLUDED.internal_account_id,
			legal_entity = EXCLUDED.legal_entity,
			delta_start = EXCLUDED.delta_start,
			delta_end = EXCLUDED.delta_end,
			desired_delta = EXCLUDED.desired_delta,
			dte_start = EXCLUDED.dte_start,
			dte_end = EXCLUDED.dte_end,
			is_enabled = EXCLUDED.is_enabled,
			updated_at = NOW()
		RETURNING ` + rebalanceSettingsColumns

	saved, err := scanRebalanceSettings(db.conn.QueryRowContext(ctx, query,
		s.UserID, s.PositionKey, s.Symbol, s.InternalAccountID, s.LegalEntity,
		s.DeltaStart, s.DeltaEnd, s.DesiredDelta, s.DteStart, s.DteEnd, s.IsEnabled,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to upsert rebalance settings: %w", err)
	}
	return saved, nil
}

// GetRebalanceSettings retrieves the settings of one position
func (db *DB) GetRebalanceSettings(ctx context.Context, userID, positionKey string) (*models.RebalanceSettings, error) {
	query := `SELECT ` + rebalanceSettingsColumns + `
		FROM hf.rebalance_settings
		WHERE user_id = $1 AND position_key = $2
	`
	s, err := scanRebalanceSettings(db.conn.QueryRowContext(ctx, query, userID, positionKey))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get rebalance settings: %w", err)
	}
	return s, nil
}

// ListRebalanceSettings retrieves all settings of a user
func (db *DB) ListRebalanceSettings(ctx context.Context, userID string) ([]*models.RebalanceSettings, error) {
	query := `SELECT ` + rebalanceSettingsColumns + `
		FROM hf.rebalance_settings
		WHERE user_id = $1
		ORDER BY position_key
	`
	rows, err := db.conn.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query rebalance settings: %w", err)
	}
	defer rows.Close()

	var all []*models.RebalanceSettings
	for rows.Next() {
		s, err := scanRebalanceSettings(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan rebalance settings: %w", err)
		}
		all = append(all, s)
	}
	return all, rows.Err()
}

// DeleteRebalanceSettings removes the settings of one position. Deleting a missing row is not an error.
func (db *DB) DeleteRebalanceSettings(ctx context.Context, userID, positionKey string) error {
	query := `DELETE FROM hf.rebalance_settings WHERE user_id = $1 AND position_key = $2`
	if _, err := db.conn.ExecContext(ctx, query, userID, positionKey); err != nil {
		return fmt.Errorf("failed to delete rebalance settings: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRebalanceSettings(row rowScanner) (*models.RebalanceSettings, error) {
	var s models.RebalanceSettings
	var symbol, internalAccountID, legalEntity sql.NullString
	var isEnabled sql.NullBool

	err := row.Scan(
		&s.ID, &s.UserID, &s.PositionKey, &symbol, &internalAccountID, &legalEntity,
		&s.DeltaStart, &s.DeltaEnd, &s.DesiredDelta, &s.DteStart, &s.DteEnd,
		&isEnabled, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if symbol.Valid {
		s.Symbol = &symbol.String
	}
	if internalAccountID.Valid {
		s.InternalAccountID = &internalAccountID.String
	}
	if legalEntity.Valid {
		s.LegalEntity = &legalEntity.String
	}
	if isEnabled.Valid {
		s.IsEnabled = &isEnabled.Bool
	}

	return &s, nil
}
