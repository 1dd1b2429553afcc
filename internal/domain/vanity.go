package domain

import "time"

type VanityStatus string

const (
	VanityAvailable VanityStatus = "available"
	VanityReserved  VanityStatus = "reserved"
	VanityUsed      VanityStatus = "used"
)

// VanityKeypair заранее сгенерированная пара с нужным суффиксом адреса.
type VanityKeypair struct {
	ID                  string       `json:"id"`
	Suffix              string       `json:"suffix"`
	PublicKey           string       `json:"publicKey"`
	EncryptedPrivateKey []byte       `json:"-"`
	Status              VanityStatus `json:"status"`
	TokenMint           string       `json:"tokenMint,omitempty"`
	ReservedAt          *time.Time   `json:"reservedAt,omitempty"`
	CreatedAt           time.Time    `json:"createdAt"`
}
