package farm

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/fox-one/pkg/store"
	"github.com/fox-one/pkg/store/db"

	"lever/core"
)

// Row carries one asset farm as a versioned JSON document, keyed by the
// "kind:token_id" farm id.
type Row struct {
	ID        uint64    `sql:"PRIMARY_KEY;AUTO_INCREMENT" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	FarmID    string    `sql:"size:160" json:"farm_id"`
	Data      string    `sql:"type:longtext" json:"data"`
	Version   int64     `sql:"not null" json:"version"`
}

// TableName gorm table name
func (Row) TableName() string {
	return "farms"
}

type envelope struct {
	V    int             `json:"v"`
	Data json.RawMessage `json:"data"`
}

const envelopeVersion = 1

func init() {
	db.RegisterMigrate(func(db *db.DB) error {
		tx := db.Update().Model(Row{})
		if err := tx.AutoMigrate(Row{}).Error; err != nil {
			return err
		}
		if err := tx.AddUniqueIndex("idx_farms_farm_id", "farm_id").Error; err != nil {
			return err
		}
		return nil
	})
}

type farmStore struct {
	db *db.DB
}

// New new farm store
func New(db *db.DB) core.IFarmStore {
	return &farmStore{db: db}
}

func (s *farmStore) Save(ctx context.Context, farm *core.AssetFarm) error {
	data, err := json.Marshal(farm)
	if err != nil {
		return err
	}
	body, err := json.Marshal(envelope{V: envelopeVersion, Data: data})
	if err != nil {
		return err
	}

	var row Row
	err = s.db.View().Where("farm_id = ?", farm.FarmID.String()).First(&row).Error
	if store.IsErrNotFound(err) {
		return s.db.Update().Create(&Row{
			FarmID:  farm.FarmID.String(),
			Data:    string(body),
			Version: 1,
		}).Error
	}
	if err != nil {
		return err
	}

	tx := s.db.Update().Model(Row{}).
		Where("farm_id = ? AND version = ?", farm.FarmID.String(), row.Version).
		Updates(map[string]interface{}{
			"data":    string(body),
			"version": row.Version + 1,
		})
	if tx.Error != nil {
		return tx.Error
	}
	if tx.RowsAffected == 0 {
		return db.ErrOptimisticLock
	}
	return nil
}

// Find returns nil without error for a farm that was never configured; the
// settlement service treats those as no-ops.
func (s *farmStore) Find(ctx context.Context, id core.FarmID) (*core.AssetFarm, error) {
	var row Row
	err := s.db.View().Where("farm_id = ?", id.String()).First(&row).Error
	if store.IsErrNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return unmarshalFarm(&row)
}

func unmarshalFarm(row *Row) (*core.AssetFarm, error) {
	var env envelope
	if err := json.Unmarshal([]byte(row.Data), &env); err != nil {
		return nil, err
	}
	if env.V != envelopeVersion {
		return nil, fmt.Errorf("farm %s: unknown document version %d", row.FarmID, env.V)
	}
	var farm core.AssetFarm
	if err := json.Unmarshal(env.Data, &farm); err != nil {
		return nil, err
	}
	if farm.Rewards == nil {
		farm.Rewards = make(map[string]*core.AssetFarmReward)
	}
	return &farm, nil
}
