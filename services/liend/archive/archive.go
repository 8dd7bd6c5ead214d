package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"lienledger/core/events"
	"lienledger/core/types"
	"lienledger/rpc/modules"
)

// EventRow is one archived ledger event. Sequence increases in emission order.
type EventRow struct {
	Sequence     uint64    `gorm:"primaryKey;autoIncrement"`
	Type         string    `gorm:"size:64;index"`
	LienID       string    `gorm:"size:66;index"`
	CollateralID string    `gorm:"size:80;index"`
	Attributes   string    `gorm:"type:text"`
	CreatedAt    time.Time `gorm:"index"`
}

// TableName pins the archive table name.
func (EventRow) TableName() string { return "lien_events" }

// Open connects to the archive database for the given driver.
func Open(driver, dsn string) (*gorm.DB, error) {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "postgres":
		return gorm.Open(postgres.Open(dsn), &gorm.Config{})
	case "sqlite":
		return gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	default:
		return nil, fmt.Errorf("archive: unsupported driver %q", driver)
	}
}

// Archive persists bus events and serves them back to the RPC layer.
type Archive struct {
	db     *gorm.DB
	logger *slog.Logger
	nowFn  func() time.Time
}

// New migrates the archive schema and returns a ready archive.
func New(db *gorm.DB, logger *slog.Logger) (*Archive, error) {
	if db == nil {
		return nil, fmt.Errorf("archive: database required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if err := db.AutoMigrate(&EventRow{}); err != nil {
		return nil, fmt.Errorf("archive: migrate: %w", err)
	}
	return &Archive{db: db, logger: logger, nowFn: time.Now}, nil
}

// Record stores a single event.
func (a *Archive) Record(ctx context.Context, evt *types.Event) error {
	if evt == nil {
		return nil
	}
	attrs := evt.Attributes
	if attrs == nil {
		attrs = map[string]string{}
	}
	encoded, err := json.Marshal(attrs)
	if err != nil {
		return fmt.Errorf("archive: encode attributes: %w", err)
	}
	row := EventRow{
		Type:         evt.Type,
		LienID:       attrs["lienId"],
		CollateralID: attrs["collateralId"],
		Attributes:   string(encoded),
		CreatedAt:    a.nowFn().UTC(),
	}
	if err := a.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("archive: insert %s: %w", evt.Type, err)
	}
	return nil
}

// Subscribe attaches the archive to every event on the bus. Write failures
// are logged and never reach the emitter.
func (a *Archive) Subscribe(bus *events.Bus) func() {
	return bus.Subscribe("*", func(evt *types.Event) {
		if err := a.Record(context.Background(), evt); err != nil {
			a.logger.Error("archive event", slog.String("type", evt.Type), slog.Any("error", err))
		}
	})
}

// ListEvents implements modules.EventSource. Results are newest first.
func (a *Archive) ListEvents(ctx context.Context, filter modules.EventFilter) ([]modules.EventRecord, error) {
	query := a.db.WithContext(ctx).Model(&EventRow{})
	if filter.Type != "" {
		query = query.Where("type = ?", filter.Type)
	}
	if filter.LienID != "" {
		query = query.Where("lien_id = ?", filter.LienID)
	}
	if filter.CollateralID != "" {
		query = query.Where("collateral_id = ?", filter.CollateralID)
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}
	var rows []EventRow
	if err := query.Order("sequence desc").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("archive: list events: %w", err)
	}
	out := make([]modules.EventRecord, 0, len(rows))
	for _, row := range rows {
		attrs := map[string]string{}
		if row.Attributes != "" {
			if err := json.Unmarshal([]byte(row.Attributes), &attrs); err != nil {
				return nil, fmt.Errorf("archive: decode event %d: %w", row.Sequence, err)
			}
		}
		out = append(out, modules.EventRecord{
			Sequence:   row.Sequence,
			Type:       row.Type,
			Attributes: attrs,
			CreatedAt:  row.CreatedAt,
		})
	}
	return out, nil
}
