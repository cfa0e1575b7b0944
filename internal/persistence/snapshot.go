// Package persistence is the flush target of the commit coordinator: each
// dirty realm is serialized once per commit and upserted as a whole-realm
// JSON snapshot (copy-on-write, never incremental).
package persistence

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ektropy/realm-authz/internal/models"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type RealmSnapshot struct {
	RealmID   string         `gorm:"primaryKey;size:64"`
	Data      datatypes.JSON `gorm:"type:jsonb;not null"`
	UpdatedAt time.Time
}

func (RealmSnapshot) TableName() string {
	return "realm_snapshots"
}

// RealmExporter produces the full-realm representation to be persisted.
// Implemented by the export gateway; bound after construction because the
// gateway itself is built on top of the coordinator this store flushes for.
type RealmExporter interface {
	ExportRealm(ctx context.Context, realmID string) (*models.RealmRepresentation, error)
}

type SnapshotStore struct {
	db       *gorm.DB
	exporter RealmExporter
	logger   *zap.Logger
}

func NewSnapshotStore(db *gorm.DB, logger *zap.Logger) (*SnapshotStore, error) {
	if err := db.AutoMigrate(&RealmSnapshot{}); err != nil {
		return nil, fmt.Errorf("failed to migrate realm snapshots: %w", err)
	}
	return &SnapshotStore{db: db, logger: logger}, nil
}

// BindExporter completes wiring once the gateway exists.
func (s *SnapshotStore) BindExporter(exporter RealmExporter) {
	s.exporter = exporter
}

// Flush serializes the realm and upserts its snapshot row. Errors propagate
// untouched so the coordinator can poison the session.
func (s *SnapshotStore) Flush(ctx context.Context, realmID string) error {
	if s.exporter == nil {
		return fmt.Errorf("snapshot store has no exporter bound")
	}

	rep, err := s.exporter.ExportRealm(ctx, realmID)
	if err != nil {
		return fmt.Errorf("failed to export realm %s: %w", realmID, err)
	}

	data, err := json.Marshal(rep)
	if err != nil {
		return fmt.Errorf("failed to encode realm %s: %w", realmID, err)
	}

	snapshot := RealmSnapshot{
		RealmID: realmID,
		Data:    datatypes.JSON(data),
	}
	if err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "realm_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"data", "updated_at"}),
	}).Create(&snapshot).Error; err != nil {
		return fmt.Errorf("failed to persist realm %s: %w", realmID, err)
	}

	s.logger.Debug("Realm snapshot persisted",
		zap.String("realm_id", realmID),
		zap.Int("bytes", len(data)))
	return nil
}

// Load reads a persisted snapshot back, for restore at startup.
func (s *SnapshotStore) Load(ctx context.Context, realmID string) (*models.RealmRepresentation, error) {
	var snapshot RealmSnapshot
	if err := s.db.WithContext(ctx).First(&snapshot, "realm_id = ?", realmID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, &models.NotFoundError{Resource: "realm snapshot", Ref: realmID}
		}
		return nil, fmt.Errorf("failed to load realm snapshot: %w", err)
	}

	var rep models.RealmRepresentation
	if err := json.Unmarshal(snapshot.Data, &rep); err != nil {
		return nil, fmt.Errorf("failed to decode realm snapshot: %w", err)
	}
	return &rep, nil
}
