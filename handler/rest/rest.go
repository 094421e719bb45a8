package rest

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi"

	"lever/core"
	"lever/handler/render"
)

// Handle handle rest api request
func Handle(assetStore core.IAssetStore, accountStore core.IAccountStore, eng core.IEngine) http.Handler {
	router := chi.NewRouter()

	router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		render.NotFoundRequest(w, errors.New("not found"))
	})

	router.Get("/assets", allAssetsHandler(assetStore))
	router.Get("/assets/{token}", assetHandler(assetStore))
	router.Get("/assets/{token}/apr", assetAPRHandler(assetStore))
	router.Get("/assets/{token}/nfts", assetNFTsHandler(assetStore))
	router.Get("/accounts", allAccountsHandler(assetStore, accountStore))
	router.Get("/accounts/{id}", accountHandler(assetStore, accountStore))

	router.Post("/accounts/{id}/deposits", depositHandler(eng))
	router.Post("/accounts/{id}/nft-deposits", depositNFTHandler(eng))
	router.Post("/accounts/{id}/actions", executeHandler(eng))
	router.Post("/accounts/{id}/claims", claimFarmsHandler(eng))

	return router
}
