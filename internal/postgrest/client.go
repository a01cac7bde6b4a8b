package postgrest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
	"github.com/trogers1052/positions-dashboard/internal/config"
	"github.com/trogers1052/positions-dashboard/internal/models"
	"github.com/trogers1052/positions-dashboard/internal/repository"
	"github.com/trogers1052/positions-dashboard/internal/utils"
)

// Client reads positions and stores rebalance settings through a hosted PostgREST API
type Client struct {
	client *resty.Client
}

// New creates a client for the REST backend. Every request targets cfg.Schema.
func New(cfg config.RESTConfig) *Client {
	client := resty.New().
		SetTimeout(cfg.Timeout).
		SetBaseURL(cfg.URL+"/rest/v1").
		SetHeader("Accept", "application/json").
		SetHeader("Accept-Profile", cfg.Schema).
		SetHeader("Content-Profile", cfg.Schema)
	if cfg.APIKey != "" {
		client.SetHeader("apikey", cfg.APIKey).SetAuthToken(cfg.APIKey)
	}
	return &Client{client: client}
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func responseError(resp *resty.Response) error {
	var body apiError
	if err := json.Unmarshal(resp.Body(), &body); err == nil && body.Message != "" {
		return fmt.Errorf("rest api returned %d: %s (%s)", resp.StatusCode(), body.Message, body.Code)
	}
	return fmt.Errorf("rest api returned %d", resp.StatusCode())
}

// zone-less timestamps keep their wall clock and are read as UTC
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

// timestamp decodes timestamptz as well as timestamp columns
type timestamp time.Time

func (t *timestamp) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	for _, layout := range timestampLayouts {
		if parsed, err := time.Parse(layout, raw); err == nil {
			*t = timestamp(parsed)
			return nil
		}
	}
	return fmt.Errorf("unsupported timestamp %q", raw)
}

// EarliestObservation returns fetched_at of the first recorded row of a position
func (c *Client) EarliestObservation(ctx context.Context, conid, internalAccountID string) (time.Time, error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	slog.Debug("start EarliestObservation request", slog.String("rqID", rqID), slog.String("conid", conid))

	var rows []struct {
		FetchedAt timestamp `json:"fetched_at"`
	}
	resp, err := c.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"select":              "fetched_at",
			"conid":               "eq." + conid,
			"internal_account_id": "eq." + internalAccountID,
			"order":               "id.asc",
			"limit":               "1",
		}).
		SetResult(&rows).
		Get("/positions")
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to query positions: %w", err)
	}
	if resp.IsError() {
		return time.Time{}, fmt.Errorf("failed to query positions: %w", responseError(resp))
	}
	if len(rows) == 0 {
		return time.Time{}, repository.ErrNotFound
	}
	return time.Time(rows[0].FetchedAt), nil
}

type settingsBody struct {
	UserID            string  `json:"user_id"`
	PositionKey       string  `json:"position_key"`
	Symbol            *string `json:"symbol"`
	InternalAccountID *string `json:"internal_account_id"`
	LegalEntity       *string `json:"legal_entity"`
	DeltaStart        int     `json:"delta_start"`
	DeltaEnd          int     `json:"delta_end"`
	DesiredDelta      int     `json:"desired_delta"`
	DteStart          int     `json:"dte_start"`
	DteEnd            int     `json:"dte_end"`
	IsEnabled         *bool   `json:"is_enabled,omitempty"`
	UpdatedAt         string  `json:"updated_at"`
}

// UpsertRebalanceSettings inserts the settings or merges them into the row with the same (user_id, position_key)
func (c *Client) UpsertRebalanceSettings(ctx context.Context, s *models.RebalanceSettings) (*models.RebalanceSettings, error) {
	body := settingsBody{
		UserID:            s.UserID,
		PositionKey:       s.PositionKey,
		Symbol:            s.Symbol,
		InternalAccountID: s.InternalAccountID,
		LegalEntity:       s.LegalEntity,
		DeltaStart:        s.DeltaStart,
		DeltaEnd:          s.DeltaEnd,
		DesiredDelta:      s.DesiredDelta,
		DteStart:          s.DteStart,
		DteEnd:            s.DteEnd,
		IsEnabled:         s.IsEnabled,
		UpdatedAt:         time.Now().UTC().Format(time.RFC3339Nano),
	}

	var rows []*models.RebalanceSettings
	resp, err := c.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetHeader("Prefer", "resolution=merge-duplicates,return=representation").
		SetQueryParam("on_conflict", "user_id,position_key").
		SetBody([]settingsBody{body}).
		SetResult(&rows).
		Post("/rebalance_settings")
	if err != nil {
		return nil, fmt.Errorf("failed to upsert rebalance settings: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("failed to upsert rebalance settings: %w", responseError(resp))
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("failed to upsert rebalance settings: empty representation")
	}
	return rows[0], nil
}

// GetRebalanceSettings retrieves the settings of one position
func (c *Client) GetRebalanceSettings(ctx context.Context, userID, positionKey string) (*models.RebalanceSettings, error) {
	var rows []*models.RebalanceSettings
	resp, err := c.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"select":       "*",
			"user_id":      "eq." + userID,
			"position_key": "eq." + positionKey,
			"limit":        "1",
		}).
		SetResult(&rows).
		Get("/rebalance_settings")
	if err != nil {
		return nil, fmt.Errorf("failed to get rebalance settings: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("failed to get rebalance settings: %w", responseError(resp))
	}
	if len(rows) == 0 {
		return nil, repository.ErrNotFound
	}
	return rows[0], nil
}

// ListRebalanceSettings retrieves all settings of a user
func (c *Client) ListRebalanceSettings(ctx context.Context, userID string) ([]*models.RebalanceSettings, error) {
	var rows []*models.RebalanceSettings
	resp, err := c.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"select":  "*",
			"user_id": "eq." + userID,
			"order":   "position_key.asc",
		}).
		SetResult(&rows).
		Get("/rebalance_settings")
	if err != nil {
		return nil, fmt.Errorf("failed to query rebalance settings: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("failed to query rebalance settings: %w", responseError(resp))
	}
	return rows, nil
}

// DeleteRebalanceSettings removes the settings of one position. Deleting a missing row is not an error.
func (c *Client) DeleteRebalanceSettings(ctx context.Context, userID, positionKey string) error {
	resp, err := c.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"user_id":      "eq." + userID,
			"position_key": "eq." + positionKey,
		}).
		Delete("/rebalance_settings")
	if err != nil {
		return fmt.Errorf("failed to delete rebalance settings: %w", err)
	}
	if resp.IsError() && resp.StatusCode() != http.StatusNotFound {
		return fmt.Errorf("failed to delete rebalance settings: %w", responseError(resp))
	}
	return nil
}

type positionRow struct {
	ID                      int64               `json:"id"`
	Conid                   string              `json:"conid"`
	InternalAccountID       string              `json:"internal_account_id"`
	Symbol                  string              `json:"symbol"`
	LegalEntity             *string             `json:"legal_entity"`
	AccountingQuantity      decimal.NullDecimal `json:"accounting_quantity"`
	MarketValue             decimal.NullDecimal `json:"market_value"`
	ComputedCashFlowOnEntry decimal.NullDecimal `json:"computed_cash_flow_on_entry"`
	FetchedAt               timestamp           `json:"fetched_at"`
}

// GetLatestPositions returns the most recent observation of every position of an account.
// PostgREST has no DISTINCT ON, so rows come newest first per conid and older ones are skipped here.
func (c *Client) GetLatestPositions(ctx context.Context, internalAccountID string) ([]*models.PositionSnapshot, error) {
	var rows []positionRow
	resp, err := c.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"select":              "*",
			"internal_account_id": "eq." + internalAccountID,
			"order":               "conid.asc,id.desc",
		}).
		SetResult(&rows).
		Get("/positions")
	if err != nil {
		return nil, fmt.Errorf("failed to query positions: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("failed to query positions: %w", responseError(resp))
	}

	var snapshots []*models.PositionSnapshot
	for i, row := range rows {
		if i > 0 && rows[i-1].Conid == row.Conid {
			continue
		}
		s := &models.PositionSnapshot{
			ID:                      row.ID,
			Conid:                   row.Conid,
			InternalAccountID:       row.InternalAccountID,
			Symbol:                  row.Symbol,
			AccountingQuantity:      row.AccountingQuantity,
			MarketValue:             row.MarketValue,
			ComputedCashFlowOnEntry: row.ComputedCashFlowOnEntry,
			FetchedAt:               time.Time(row.FetchedAt),
		}
		if row.LegalEntity != nil {
			s.LegalEntity = *row.LegalEntity
		}
		snapshots = append(snapshots, s)
	}
	return snapshots, nil
}

// GetPositionKeysSince returns every position observed at or after since
func (c *Client) GetPositionKeysSince(ctx context.Context, since time.Time) ([]models.PositionKey, error) {
	var rows []models.PositionKey
	resp, err := c.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"select":     "conid,internal_account_id",
			"fetched_at": "gte." + since.UTC().Format(time.RFC3339Nano),
			"order":      "conid.asc,internal_account_id.asc",
		}).
		SetResult(&rows).
		Get("/positions")
	if err != nil {
		return nil, fmt.Errorf("failed to query position keys: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("failed to query position keys: %w", responseError(resp))
	}

	var keys []models.PositionKey
	for i, k := range rows {
		if i > 0 && rows[i-1] == k {
			continue
		}
		keys = append(keys, k)
	}
	return keys, nil
}
