package account

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/fox-one/pkg/store"
	"github.com/fox-one/pkg/store/db"

	"lever/core"
)

// Row carries one account position ledger as a versioned JSON document.
type Row struct {
	ID        uint64    `sql:"PRIMARY_KEY;AUTO_INCREMENT" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	AccountID string    `sql:"size:127" json:"account_id"`
	Data      string    `sql:"type:longtext" json:"data"`
	Version   int64     `sql:"not null" json:"version"`
}

// TableName gorm table name
func (Row) TableName() string {
	return "accounts"
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
		if err := tx.AddUniqueIndex("idx_accounts_account_id", "account_id").Error; err != nil {
			return err
		}
		return nil
	})
}

type accountStore struct {
	db *db.DB
}

// New new account store
func New(db *db.DB) core.IAccountStore {
	return &accountStore{db: db}
}

func marshalAccount(account *core.Account) (string, error) {
	data, err := json.Marshal(account)
	if err != nil {
		return "", err
	}
	body, err := json.Marshal(envelope{V: envelopeVersion, Data: data})
	if err != nil {
		return "", err
	}
	return string(body), nil
}

func unmarshalAccount(row *Row) (*core.Account, error) {
	var env envelope
	if err := json.Unmarshal([]byte(row.Data), &env); err != nil {
		return nil, err
	}
	if env.V != envelopeVersion {
		return nil, fmt.Errorf("account %s: unknown document version %d", row.AccountID, env.V)
	}
	account := core.NewAccount("")
	if err := json.Unmarshal(env.Data, account); err != nil {
		return nil, err
	}
	// maps omitted from old documents come back nil
	if account.Supplied == nil {
		account.Supplied = make(map[string]core.Balance)
	}
	if account.Borrowed == nil {
		account.Borrowed = make(map[string]core.Balance)
	}
	if account.NFTSupplied == nil {
		account.NFTSupplied = make(map[string]*core.AccountNFTAsset)
	}
	if account.Farms == nil {
		account.Farms = make(map[core.FarmID]*core.AccountFarm)
	}
	return account, nil
}

func (s *accountStore) Save(ctx context.Context, account *core.Account) error {
	data, err := marshalAccount(account)
	if err != nil {
		return err
	}

	var row Row
	err = s.db.View().Where("account_id = ?", account.AccountID).First(&row).Error
	if store.IsErrNotFound(err) {
		return s.db.Update().Create(&Row{
			AccountID: account.AccountID,
			Data:      data,
			Version:   1,
		}).Error
	}
	if err != nil {
		return err
	}

	tx := s.db.Update().Model(Row{}).
		Where("account_id = ? AND version = ?", account.AccountID, row.Version).
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

func (s *accountStore) Find(ctx context.Context, accountID string) (*core.Account, error) {
	var row Row
	err := s.db.View().Where("account_id = ?", accountID).First(&row).Error
	if store.IsErrNotFound(err) {
		return nil, core.ErrAccountNotFound
	}
	if err != nil {
		return nil, err
	}
	return unmarshalAccount(&row)
}

func (s *accountStore) List(ctx context.Context, offset, limit int) ([]*core.Account, error) {
	var rows []*Row
	if err := s.db.View().Order("id").Offset(offset).Limit(limit).Find(&rows).Error; err != nil {
		return nil, err
	}
	accounts := make([]*core.Account, 0, len(rows))
	for _, row := range rows {
		account, err := unmarshalAccount(row)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, account)
	}
	return accounts, nil
}
