package dto

import "time"

// IssueCodeRequest asks for a fresh hand-off code for one repair at one
// relay point.
type IssueCodeRequest struct {
	RepairID     string `json:"repair_id" validate:"required"`
	RelayPointID string `json:"relay_point_id" validate:"required"`
}

// IssueCodeResponse carries the human-enterable code and the encrypted QR
// token. The token is displayed as a scannable artifact and never persisted.
type IssueCodeResponse struct {
	CodeID    string    `json:"code_id"`
	Code      string    `json:"code"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// RedeemCodeRequest is the manual path: staff types the 6-character code at
// a relay terminal. The acting relay point comes from the terminal's claims.
type RedeemCodeRequest struct {
	Code string `json:"code" validate:"required,len=6"`
}

// RedeemTokenRequest is the scanned path: the opaque token from a QR symbol.
type RedeemTokenRequest struct {
	Token string `json:"token" validate:"required"`
}

// RedeemResponse reports the repair affected by a successful hand-off.
type RedeemResponse struct {
	RepairID string `json:"repair_id"`
	ClientID string `json:"client_id,omitempty"`
	Status   string `json:"status"`
}
