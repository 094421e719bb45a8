package interest

import (
	"context"
	"errors"
	"time"

	"github.com/fox-one/pkg/logger"
	"github.com/fox-one/pkg/store/db"
	"github.com/robfig/cron/v3"

	"lever/core"
	"lever/worker"
)

// Worker accrues interest on every asset on a schedule, so pools stay close to
// current even when no transaction touches them. Accrual is lazy on every
// read anyway; this only bounds how stale stored balances can get.
type Worker struct {
	worker.BaseJob
	AssetStore core.IAssetStore
}

// New new interest worker
func New(assetStore core.IAssetStore) *Worker {
	job := Worker{
		AssetStore: assetStore,
	}

	job.Cron = cron.New()
	spec := "@every 1m"
	job.Cron.AddFunc(spec, job.Run)
	job.OnWork = func() error {
		return job.onWork(context.Background())
	}

	return &job
}

func (w *Worker) onWork(ctx context.Context) error {
	log := logger.FromContext(ctx).WithField("worker", "interest")

	assets, err := w.AssetStore.All(ctx)
	if err != nil {
		log.Errorln(err)
		return err
	}

	now := time.Now()
	for _, asset := range assets {
		asset = asset.Clone()
		if err := asset.Update(now); err != nil {
			log.WithField("token", asset.TokenID).Errorln(err)
			continue
		}
		if err := asset.Normalize(); err != nil {
			log.WithField("token", asset.TokenID).Errorln(err)
			continue
		}
		if err := w.AssetStore.Save(ctx, asset); err != nil {
			// a concurrent engine write accrued for us; nothing lost
			if errors.Is(err, db.ErrOptimisticLock) {
				continue
			}
			log.WithField("token", asset.TokenID).Errorln(err)
		}
	}
	return nil
}
