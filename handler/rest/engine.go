package rest

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi"

	"lever/core"
	"lever/handler/render"
)

type depositRequest struct {
	TokenID string       `json:"token_id"`
	Amount  core.Balance `json:"amount"`
}

type executeRequest struct {
	Actions []core.Action `json:"actions"`
	Prices  core.Prices   `json:"prices"`
}

func depositHandler(eng core.IEngine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req depositRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			render.BadRequest(w, err)
			return
		}

		transfers, err := eng.Deposit(r.Context(), chi.URLParam(r, "id"), req.TokenID, req.Amount)
		if err != nil {
			renderEngineError(w, err)
			return
		}
		render.JSON(w, render.H{"transfers": transferList(transfers)})
	}
}

func depositNFTHandler(eng core.IEngine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req core.NFTAsset
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			render.BadRequest(w, err)
			return
		}

		if err := eng.DepositNFT(r.Context(), chi.URLParam(r, "id"), req.NFTContractID, req.NFTTokenID); err != nil {
			renderEngineError(w, err)
			return
		}
		render.JSON(w, render.H{})
	}
}

func executeHandler(eng core.IEngine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req executeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			render.BadRequest(w, err)
			return
		}

		transfers, err := eng.Execute(r.Context(), chi.URLParam(r, "id"), req.Actions, req.Prices)
		if err != nil {
			renderEngineError(w, err)
			return
		}
		render.JSON(w, render.H{"transfers": transferList(transfers)})
	}
}

func claimFarmsHandler(eng core.IEngine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		transfers, err := eng.ClaimFarms(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			renderEngineError(w, err)
			return
		}
		render.JSON(w, render.H{"transfers": transferList(transfers)})
	}
}

func renderEngineError(w http.ResponseWriter, err error) {
	if errors.Is(err, core.ErrAssetNotFound) || errors.Is(err, core.ErrAccountNotFound) {
		render.NotFoundRequest(w, err)
		return
	}
	render.BadRequest(w, err)
}

// transferList keeps empty results as [] instead of null in the response.
func transferList(transfers []*core.Transfer) []*core.Transfer {
	if transfers == nil {
		return []*core.Transfer{}
	}
	return transfers
}
