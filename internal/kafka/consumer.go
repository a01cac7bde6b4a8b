package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/trogers1052/positions-dashboard/internal/models"
	"github.com/trogers1052/positions-dashboard/internal/utils"
)

// SnapshotRepository persists observed positions
type SnapshotRepository interface {
	InsertPositionSnapshots(ctx context.Context, snapshots []*models.PositionSnapshot) error
}

// SnapshotListener is notified after a snapshot batch has been stored
type SnapshotListener interface {
	PrefetchTradeOpenDates(ctx context.Context, keys []models.PositionKey) error
}

type messageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
	Config() kafka.ReaderConfig
}

// PositionsConsumer appends every received positions snapshot to the positions history.
// The first stored row of a (conid, account) pair is what the rent calculator treats as the trade open.
type PositionsConsumer struct {
	reader   messageReader
	repo     SnapshotRepository
	listener SnapshotListener
}

// NewPositionsConsumer creates a consumer for positions snapshot events; listener may be nil
func NewPositionsConsumer(brokers []string, topic, groupID string, repo SnapshotRepository, listener SnapshotListener) *PositionsConsumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		Topic:          topic,
		GroupID:        groupID,
		MinBytes:       10e3, // 10KB
		MaxBytes:       10e6, // 10MB
		MaxWait:        1 * time.Second,
		StartOffset:    kafka.FirstOffset,
		CommitInterval: time.Second,
	})

	return &PositionsConsumer{
		reader:   reader,
		repo:     repo,
		listener: listener,
	}
}

// Start consumes messages until ctx is cancelled
func (c *PositionsConsumer) Start(ctx context.Context) error {
	slog.Info("starting positions consumer", slog.String("topic", c.reader.Config().Topic))

	for {
		select {
		case <-ctx.Done():
			slog.Info("positions consumer shutting down")
			return c.reader.Close()
		default:
			msg, err := c.reader.ReadMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return c.reader.Close()
				}
				slog.Error("failed to read positions message", slog.String("err", err.Error()))
				continue
			}

			msgCtx := utils.CtxWithRqID(ctx, "")
			if err := c.processMessage(msgCtx, msg); err != nil {
				slog.Error("failed to process positions message",
					slog.String("rqID", utils.GetRequestIDFromCtx(msgCtx)),
					slog.Int("partition", msg.Partition),
					slog.Int64("offset", msg.Offset),
					slog.String("err", err.Error()),
				)
			}
		}
	}
}

func (c *PositionsConsumer) processMessage(ctx context.Context, msg kafka.Message) error {
	var event models.PositionsEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		return fmt.Errorf("failed to unmarshal positions event: %w", err)
	}

	if event.EventType != models.PositionsSnapshotEvent {
		slog.Debug("ignoring positions event", slog.String("eventType", event.EventType))
		return nil
	}

	snapshots := make([]*models.PositionSnapshot, 0, len(event.Data.Positions))
	for _, data := range event.Data.Positions {
		s, err := convertPositionData(data)
		if err != nil {
			return fmt.Errorf("failed to convert position %s: %w", data.Conid, err)
		}
		snapshots = append(snapshots, s)
	}
	if len(snapshots) == 0 {
		return nil
	}

	if err := c.repo.InsertPositionSnapshots(ctx, snapshots); err != nil {
		return fmt.Errorf("failed to store positions snapshot: %w", err)
	}

	slog.Info("stored positions snapshot",
		slog.String("rqID", utils.GetRequestIDFromCtx(ctx)),
		slog.String("source", event.Source),
		slog.Int("positions", len(snapshots)),
	)

	if c.listener != nil {
		keys := make([]models.PositionKey, len(snapshots))
		for i, s := range snapshots {
			keys[i] = models.PositionKey{Conid: s.Conid, InternalAccountID: s.InternalAccountID}
		}
		if err := c.listener.PrefetchTradeOpenDates(ctx, keys); err != nil {
			slog.Warn("trade open date prefetch interrupted", slog.String("err", err.Error()))
		}
	}

	return nil
}

func convertPositionData(data models.PositionData) (*models.PositionSnapshot, error) {
	if data.Conid == "" || data.InternalAccountID == "" {
		return nil, fmt.Errorf("conid and internal_account_id are required")
	}

	s := &models.PositionSnapshot{
		Conid:             data.Conid,
		InternalAccountID: data.InternalAccountID,
		Symbol:            data.Symbol,
		LegalEntity:       data.LegalEntity,
	}

	var err error
	if s.AccountingQuantity, err = parseNullDecimal(data.AccountingQuantity); err != nil {
		return nil, fmt.Errorf("invalid accounting_quantity: %w", err)
	}
	if s.MarketValue, err = parseNullDecimal(data.MarketValue); err != nil {
		return nil, fmt.Errorf("invalid market_value: %w", err)
	}
	if s.ComputedCashFlowOnEntry, err = parseNullDecimal(data.ComputedCashFlowOnEntry); err != nil {
		return nil, fmt.Errorf("invalid computed_cash_flow_on_entry: %w", err)
	}

	if data.FetchedAt != "" {
		fetchedAt, err := time.Parse(time.RFC3339Nano, data.FetchedAt)
		if err != nil {
			return nil, fmt.Errorf("invalid fetched_at %s: %w", data.FetchedAt, err)
		}
		s.FetchedAt = fetchedAt
	}

	return s, nil
}

// parseNullDecimal maps an empty string to a null decimal
func parseNullDecimal(s string) (decimal.NullDecimal, error) {
	if s == "" {
		return decimal.NullDecimal{}, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.NullDecimal{}, err
	}
	return decimal.NewNullDecimal(d), nil
}

// Close closes the underlying reader
func (c *PositionsConsumer) Close() error {
	return c.reader.Close()
}
