package cmd

import (
	"github.com/fox-one/pkg/store/db"

	"lever/core"
	"lever/service/engine"
	farmservice "lever/service/farm"
	accountstore "lever/store/account"
	assetstore "lever/store/asset"
	farmstore "lever/store/farm"
)

func provideDatabase() *db.DB {
	return db.MustOpen(cfg.DB)
}

func provideAssetStore(db *db.DB) core.IAssetStore {
	return assetstore.New(db)
}

func provideAccountStore(db *db.DB) core.IAccountStore {
	return accountstore.New(db)
}

func provideFarmStore(db *db.DB) core.IFarmStore {
	return farmstore.New(db)
}

func provideFarmService(farmStore core.IFarmStore) core.IFarmService {
	return farmservice.New(farmStore)
}

func provideEngine(assetStore core.IAssetStore, accountStore core.IAccountStore, farmService core.IFarmService) core.IEngine {
	return engine.New(&cfg, assetStore, accountStore, farmService)
}
