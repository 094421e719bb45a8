package rest

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi"
	"github.com/spf13/cast"

	"lever/core"
	"lever/handler/render"
	"lever/handler/views"
)

func accountHandler(assetStore core.IAssetStore, accountStore core.IAccountStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		account, err := accountStore.Find(ctx, chi.URLParam(r, "id"))
		if err != nil {
			render.NotFoundRequest(w, err)
			return
		}
		render.JSON(w, accountView(ctx, assetStore, account, time.Now()))
	}
}

func allAccountsHandler(assetStore core.IAssetStore, accountStore core.IAccountStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		offset := cast.ToInt(r.URL.Query().Get("offset"))
		limit := cast.ToInt(r.URL.Query().Get("limit"))
		if limit <= 0 || limit > 500 {
			limit = 100
		}
		if offset < 0 {
			offset = 0
		}

		accounts, err := accountStore.List(ctx, offset, limit)
		if err != nil {
			render.BadRequest(w, err)
			return
		}

		now := time.Now()
		items := make([]views.Account, 0, len(accounts))
		for _, account := range accounts {
			items = append(items, accountView(ctx, assetStore, account, now))
		}
		render.JSON(w, views.Pagination{
			Total:  len(items),
			Offset: offset,
			Limit:  limit,
			Items:  items,
		})
	}
}

// accountView converts share positions to amounts at the current exchange
// rate; a missing asset row only degrades the view, never fails it.
func accountView(ctx context.Context, assetStore core.IAssetStore, account *core.Account, now time.Time) views.Account {
	view := views.Account{AccountID: account.AccountID}

	for tokenID, shares := range account.Supplied {
		view.Supplied = append(view.Supplied, position(ctx, assetStore, tokenID, shares, now, false))
	}
	for tokenID, shares := range account.Borrowed {
		view.Borrowed = append(view.Borrowed, position(ctx, assetStore, tokenID, shares, now, true))
	}
	sortPositions(view.Supplied)
	sortPositions(view.Borrowed)

	for _, nft := range account.NFTSupplied {
		view.NFTs = append(view.NFTs, nft)
	}
	sort.Slice(view.NFTs, func(i, j int) bool {
		return core.NFTKey(view.NFTs[i].NFTContractID, view.NFTs[i].NFTTokenID) <
			core.NFTKey(view.NFTs[j].NFTContractID, view.NFTs[j].NFTTokenID)
	})
	return view
}

func position(ctx context.Context, assetStore core.IAssetStore, tokenID string, shares core.Balance, now time.Time, borrowed bool) views.Position {
	p := views.Position{TokenID: tokenID, Shares: shares}
	asset, err := assetStore.Find(ctx, tokenID)
	if err != nil {
		return p
	}
	asset = asset.Clone()
	if err := asset.Update(now); err != nil {
		return p
	}
	if borrowed {
		p.Amount = asset.Borrowed.SharesToAmount(shares, true)
	} else {
		p.Amount = asset.Supplied.SharesToAmount(shares, false)
	}
	return p
}

func sortPositions(ps []views.Position) {
	sort.Slice(ps, func(i, j int) bool { return ps[i].TokenID < ps[j].TokenID })
}
