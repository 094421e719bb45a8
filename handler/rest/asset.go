package rest

import (
	"net/http"
	"time"

	"github.com/go-chi/chi"
	"github.com/spf13/cast"

	"lever/core"
	"lever/handler/render"
	"lever/handler/views"
)

func allAssetsHandler(assetStore core.IAssetStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		assets, err := assetStore.All(r.Context())
		if err != nil {
			render.BadRequest(w, err)
			return
		}

		now := time.Now()
		assetViews := make([]*views.Asset, 0, len(assets))
		for _, asset := range assets {
			view, err := views.NewAsset(asset, now)
			if err != nil {
				render.BadRequest(w, err)
				return
			}
			assetViews = append(assetViews, view)
		}
		render.JSON(w, assetViews)
	}
}

func assetHandler(assetStore core.IAssetStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		asset, err := assetStore.Find(r.Context(), chi.URLParam(r, "token"))
		if err != nil {
			render.NotFoundRequest(w, err)
			return
		}
		view, err := views.NewAsset(asset, time.Now())
		if err != nil {
			render.BadRequest(w, err)
			return
		}
		render.JSON(w, view)
	}
}

func assetAPRHandler(assetStore core.IAssetStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		asset, err := assetStore.Find(r.Context(), chi.URLParam(r, "token"))
		if err != nil {
			render.NotFoundRequest(w, err)
			return
		}
		asset = asset.Clone()
		if err := asset.Update(time.Now()); err != nil {
			render.BadRequest(w, err)
			return
		}
		render.JSON(w, views.APR{
			TokenID:   asset.TokenID,
			SupplyAPR: asset.GetSupplyAPR().String(),
			BorrowAPR: asset.GetBorrowAPR().String(),
		})
	}
}

func assetNFTsHandler(assetStore core.IAssetStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		asset, err := assetStore.Find(r.Context(), chi.URLParam(r, "token"))
		if err != nil {
			render.NotFoundRequest(w, err)
			return
		}

		offset := cast.ToInt(r.URL.Query().Get("offset"))
		limit := cast.ToInt(r.URL.Query().Get("limit"))
		if limit <= 0 || limit > 500 {
			limit = 100
		}
		if offset < 0 {
			offset = 0
		}

		total := len(asset.NFTSupplied)
		entries := make([]views.NFTEntry, 0, limit)
		for i := offset; i < total && len(entries) < limit; i++ {
			e := asset.NFTSupplied[i]
			entries = append(entries, views.NFTEntry{
				OwnerID:     e.OwnerID,
				NFTTokenID:  e.NFTTokenID,
				DepositTime: e.DepositTime,
			})
		}
		render.JSON(w, views.Pagination{
			Total:  total,
			Offset: offset,
			Limit:  limit,
			Items:  entries,
		})
	}
}
