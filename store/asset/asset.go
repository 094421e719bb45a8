package asset

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/fox-one/pkg/store"
	"github.com/fox-one/pkg/store/db"

	"lever/core"
)

// Row carries one asset ledger as a versioned JSON document. The row schema
// stays stable while the asset structure evolves; Data holds an envelope with
// a format version so old rows can be upgraded on read.
type Row struct {
	ID        uint64    `sql:"PRIMARY_KEY;AUTO_INCREMENT" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	TokenID   string    `sql:"size:127" json:"token_id"`
	Data      string    `sql:"type:longtext" json:"data"`
	Version   int64     `sql:"not null" json:"version"`
}

// TableName gorm table name
func (Row) TableName() string {
	return "assets"
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
		if err := tx.AddUniqueIndex("idx_assets_token_id", "token_id").Error; err != nil {
			return err
		}
		return nil
	})
}

type assetStore struct {
	db *db.DB
}

// New new asset store
func New(db *db.DB) core.IAssetStore {
	return &assetStore{db: db}
}

func marshalAsset(asset *core.Asset) (string, error) {
	data, err := json.Marshal(asset)
	if err != nil {
		return "", err
	}
	body, err := json.Marshal(envelope{V: envelopeVersion, Data: data})
	if err != nil {
		return "", err
	}
	return string(body), nil
}

func unmarshalAsset(row *Row) (*core.Asset, error) {
	var env envelope
	if err := json.Unmarshal([]byte(row.Data), &env); err != nil {
		return nil, err
	}
	if env.V != envelopeVersion {
		return nil, fmt.Errorf("asset %s: unknown document version %d", row.TokenID, env.V)
	}
	var asset core.Asset
	if err := json.Unmarshal(env.Data, &asset); err != nil {
		return nil, err
	}
	return &asset, nil
}

func (s *assetStore) Save(ctx context.Context, asset *core.Asset) error {
	data, err := marshalAsset(asset)
	if err != nil {
		return err
	}

	var row Row
	err = s.db.View().Where("token_id = ?", asset.TokenID).First(&row).Error
	if store.IsErrNotFound(err) {
		return s.db.Update().Create(&Row{
			TokenID: asset.TokenID,
			Data:    data,
			Version: 1,
		}).Error
	}
	if err != nil {
		return err
	}

	tx := s.db.Update().Model(Row{}).
		Where("token_id = ? AND version = ?", asset.TokenID, row.Version).
		Updates(map[string]interface{}{
			"data":    data,
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

func (s *assetStore) Find(ctx context.Context, tokenID string) (*core.Asset, error) {
	var row Row
	err := s.db.View().Where("token_id = ?", tokenID).First(&row).Error
	if store.IsErrNotFound(err) {
		return nil, core.ErrAssetNotFound
	}
	if err != nil {
		return nil, err
	}
	return unmarshalAsset(&row)
}

func (s *assetStore) All(ctx context.Context) ([]*core.Asset, error) {
	var rows []*Row
	if err := s.db.View().Order("id").Find(&rows).Error; err != nil {
		return nil, err
	}
	assets := make([]*core.Asset, 0, len(rows))
	for _, row := range rows {
		asset, err := unmarshalAsset(row)
		if err != nil {
			return nil, err
		}
		assets = append(assets, asset)
	}
	return assets, nil
}
