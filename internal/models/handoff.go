package models

import "time"

// CodeAlphabet is the character set for hand-off codes. Visually ambiguous
// glyphs (0/O, 1/I) are excluded so codes survive handwriting and bad
// counter lighting.
const CodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// CodeLength is the fixed length of a hand-off code.
const CodeLength = 6

// CodeExpiry is the validity window of a code or token from its issuance.
// Fixed, not runtime configuration.
const CodeExpiry = 24 * time.Hour

// HandoffCode is the persisted single-use authorization artifact binding a
// 6-character code to one repair at one relay point.
type HandoffCode struct {
	ID           string     `db:"id" json:"id"`
	RepairID     string     `db:"repair_id" json:"repair_id"`
	RelayPointID string     `db:"relay_point_id" json:"relay_point_id"`
	Code         string     `db:"code" json:"code"`
	Used         bool       `db:"used" json:"used"`
	UsedAt       *time.Time `db:"used_at" json:"used_at,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
}

// ExpiresAt returns the instant the code stops being redeemable.
func (h *HandoffCode) ExpiresAt() time.Time {
	return h.CreatedAt.Add(CodeExpiry)
}

// TokenPayload is the cleartext of the encrypted QR token. It exists only in
// transit between issuance and a validation attempt and is never persisted.
type TokenPayload struct {
	RepairID     string `json:"repairId"`
	RelayPointID string `json:"relayPointId"`
	ClientID     string `json:"clientId"`
	IssuedAt     int64  `json:"issuedAt"`
	Code         string `json:"code"`
}

// IssuedTime converts the epoch-millisecond issue stamp to a time.Time.
func (p TokenPayload) IssuedTime() time.Time {
	return time.UnixMilli(p.IssuedAt).UTC()
}
