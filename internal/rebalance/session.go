package rebalance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/trogers1052/positions-dashboard/internal/models"
	"github.com/trogers1052/positions-dashboard/internal/repository"
	"github.com/trogers1052/positions-dashboard/internal/utils"
)

// ErrNoUser is returned by persistence operations of a session without a user
var ErrNoUser = errors.New("user not authenticated")

// Store persists rebalance settings keyed by (user id, position key).
// GetRebalanceSettings returns repository.ErrNotFound when nothing is stored.
type Store interface {
	UpsertRebalanceSettings(ctx context.Context, s *models.RebalanceSettings) (*models.RebalanceSettings, error)
	GetRebalanceSettings(ctx context.Context, userID, positionKey string) (*models.RebalanceSettings, error)
	DeleteRebalanceSettings(ctx context.Context, userID, positionKey string) error
	ListRebalanceSettings(ctx context.Context, userID string) ([]*models.RebalanceSettings, error)
}

// Publisher announces rebalance settings changes
type Publisher interface {
	PublishRebalanceEvent(ctx context.Context, event models.RebalanceEvent) error
}

// PositionRef carries the position metadata stored alongside its settings
type PositionRef struct {
	Symbol            string `json:"symbol,omitempty"`
	InternalAccountID string `json:"internal_account_id,omitempty"`
	LegalEntity       string `json:"legal_entity,omitempty"`
}

// Session holds one user's rebalance state: the enabled flag and the stored settings of every position key.
// Successful saves set both maps; deletes remove the settings and the toggle-off path also clears the flag.
type Session struct {
	userID    string
	store     Store
	publisher Publisher

	mu       sync.RWMutex
	enabled  map[string]bool
	settings map[string]*models.RebalanceSettings
}

// NewSession creates an empty session; publisher may be nil
func NewSession(userID string, store Store, publisher Publisher) *Session {
	return &Session{
		userID:    userID,
		store:     store,
		publisher: publisher,
		enabled:   make(map[string]bool),
		settings:  make(map[string]*models.RebalanceSettings),
	}
}

// UserID returns the session owner
func (s *Session) UserID() string {
	return s.userID
}

// Load reads every stored setting of the user into the session
func (s *Session) Load(ctx context.Context) ([]*models.RebalanceSettings, error) {
	if s.userID == "" {
		return nil, ErrNoUser
	}

	all, err := s.store.ListRebalanceSettings(ctx, s.userID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch rebalance settings: %w", err)
	}

	s.mu.Lock()
	for _, setting := range all {
		s.enabled[setting.PositionKey] = setting.Enabled()
		s.settings[setting.PositionKey] = setting
	}
	s.mu.Unlock()

	slog.Info("loaded rebalance settings",
		slog.String("rqID", utils.GetRequestIDFromCtx(ctx)),
		slog.String("userID", s.userID),
		slog.Int("positions", len(all)))
	return all, nil
}

// Fetch reads the stored settings of one position without touching the session.
// It returns nil and no error when nothing is stored.
func (s *Session) Fetch(ctx context.Context, positionKey string) (*models.RebalanceSettings, error) {
	if s.userID == "" {
		return nil, ErrNoUser
	}

	setting, err := s.store.GetRebalanceSettings(ctx, s.userID, positionKey)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch rebalance settings: %w", err)
	}
	return setting, nil
}

// Save validates the form and upserts the settings of a position, enabling it
func (s *Session) Save(ctx context.Context, positionKey string, form Form, ref PositionRef) (*models.RebalanceSettings, error) {
	values, err := form.Parse()
	if err != nil {
		return nil, err
	}
	if s.userID == "" {
		return nil, ErrNoUser
	}

	enabled := true
	record := &models.RebalanceSettings{
		UserID:            s.userID,
		PositionKey:       positionKey,
		Symbol:            optional(ref.Symbol),
		InternalAccountID: optional(ref.InternalAccountID),
		LegalEntity:       optional(ref.LegalEntity),
		DeltaStart:        values.DeltaStart,
		DeltaEnd:          values.DeltaEnd,
		DesiredDelta:      values.DesiredDelta,
		DteStart:          values.DteStart,
		DteEnd:            values.DteEnd,
		IsEnabled:         &enabled,
	}

	saved, err := s.store.UpsertRebalanceSettings(ctx, record)
	if err != nil {
		return nil, fmt.Errorf("failed to save rebalance settings: %w", err)
	}

	s.mu.Lock()
	s.enabled[positionKey] = true
	s.settings[positionKey] = saved
	s.mu.Unlock()

	s.publish(ctx, models.RebalanceEventSaved, positionKey, saved)
	return saved, nil
}

// Delete removes the stored settings of a position
func (s *Session) Delete(ctx context.Context, positionKey string) error {
	if s.userID == "" {
		return ErrNoUser
	}

	if err := s.store.DeleteRebalanceSettings(ctx, s.userID, positionKey); err != nil {
		return fmt.Errorf("failed to delete rebalance settings: %w", err)
	}

	s.mu.Lock()
	delete(s.settings, positionKey)
	s.mu.Unlock()

	s.publish(ctx, models.RebalanceEventDeleted, positionKey, nil)
	return nil
}

// Disable switches rebalancing off for a position: its settings are deleted and the flag cleared.
// The flag is cleared even when the delete fails.
func (s *Session) Disable(ctx context.Context, positionKey string) error {
	err := s.Delete(ctx, positionKey)
	s.SetEnabled(positionKey, false)
	if err == nil {
		s.publish(ctx, models.RebalanceEventDisabled, positionKey, nil)
	}
	return err
}

// IsEnabled reports whether rebalancing is enabled for a position
func (s *Session) IsEnabled(positionKey string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.enabled[positionKey]
}

// SetEnabled overrides the enabled flag of a position
func (s *Session) SetEnabled(positionKey string, enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enabled[positionKey] = enabled
}

// Settings returns the loaded settings of a position
func (s *Session) Settings(positionKey string) (*models.RebalanceSettings, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	setting, ok := s.settings[positionKey]
	return setting, ok
}

// IsDeltaInRange checks delta against the loaded settings of a position
func (s *Session) IsDeltaInRange(positionKey string, delta float64) bool {
	setting, _ := s.Settings(positionKey)
	return IsDeltaInRange(setting, delta)
}

func (s *Session) publish(ctx context.Context, eventType, positionKey string, settings *models.RebalanceSettings) {
	if s.publisher == nil {
		return
	}

	event := models.RebalanceEvent{
		EventType:   eventType,
		UserID:      s.userID,
		PositionKey: positionKey,
		Settings:    settings,
		Timestamp:   time.Now(),
	}
	if err := s.publisher.PublishRebalanceEvent(ctx, event); err != nil {
		slog.Error("failed to publish rebalance event",
			slog.String("rqID", utils.GetRequestIDFromCtx(ctx)),
			slog.String("eventType", eventType),
			slog.String("err", err.Error()))
	}
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
