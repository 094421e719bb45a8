package core

// Transfer is an outgoing token movement produced by the ledger: a withdrawal
// or a farm reward payout. The ledger only stages transfers; the wallet glue
// executes them after the batch commits and re-credits the account if the
// on-chain transfer fails.
type Transfer struct {
	TraceID   string `json:"trace_id"`
	AccountID string `json:"account_id"`
	TokenID   string `json:"token_id"`
	// Amount is zero for NFT transfers.
	Amount Balance `json:"amount"`
	// NFTTokenID set for NFT withdrawals.
	NFTTokenID string `json:"nft_token_id,omitempty"`
}
