package models

import (
	"time"

	"github.com/rovshanmuradov/solana-launchpad/internal/domain"
)

type VanityKeypair struct {
	ID                  string     `gorm:"primaryKey;type:varchar(36)"`
	Suffix              string     `gorm:"index:idx_vanity_suffix_status;not null;type:varchar(16)"`
	Status              string     `gorm:"index:idx_vanity_suffix_status;not null;type:varchar(16)"`
	PublicKey           string     `gorm:"uniqueIndex;not null;type:varchar(44)"`
	EncryptedPrivateKey []byte     `gorm:"type:bytea;not null"`
	TokenMint           string     `gorm:"type:varchar(44)"`
	ReservedAt          *time.Time `gorm:"index"`
	CreatedAt           time.Time  `gorm:"not null"`
}

func (VanityKeypair) TableName() string { return "vanity_keypairs" }

func VanityFromDomain(kp *domain.VanityKeypair) *VanityKeypair {
	return &VanityKeypair{
		ID:                  kp.ID,
		Suffix:              kp.Suffix,
		Status:              string(kp.Status),
		PublicKey:           kp.PublicKey,
		EncryptedPrivateKey: kp.EncryptedPrivateKey,
		TokenMint:           kp.TokenMint,
		ReservedAt:          kp.ReservedAt,
		CreatedAt:           kp.CreatedAt,
	}
}

func (m *VanityKeypair) ToDomain() *domain.VanityKeypair {
	return &domain.VanityKeypair{
		ID:                  m.ID,
		Suffix:              m.Suffix,
		PublicKey:           m.PublicKey,
		EncryptedPrivateKey: m.EncryptedPrivateKey,
		Status:              domain.VanityStatus(m.Status),
		TokenMint:           m.TokenMint,
		ReservedAt:          m.ReservedAt,
		CreatedAt:           m.CreatedAt,
	}
}

type PreparedTx struct {
	ID                 string    `gorm:"primaryKey;type:varchar(36)"`
	Kind               string    `gorm:"index:idx_prepared_kind_status;not null;type:varchar(16)"`
	Status             string    `gorm:"index:idx_prepared_kind_status;not null;type:varchar(16)"`
	PoolMint           string    `gorm:"index;type:varchar(44)"`
	Wallet             string    `gorm:"type:varchar(44)"`
	Payload            string    `gorm:"type:text"`
	MessageHashes      string    `gorm:"type:text"`
	OutstandingSigners string    `gorm:"type:text"`
	VanityKeypairID    string    `gorm:"index;type:varchar(36)"`
	Signatures         string    `gorm:"type:text"`
	Error              string    `gorm:"type:text"`
	ExpiresAt          time.Time `gorm:"index;not null"`
	Timestamps
}

func (PreparedTx) TableName() string { return "prepared_transactions" }

func PreparedFromDomain(p *domain.PreparedTx) *PreparedTx {
	return &PreparedTx{
		ID:                 p.ID,
		Kind:               string(p.Kind),
		Status:             string(p.Status),
		PoolMint:           p.PoolMint,
		Wallet:             p.Wallet,
		Payload:            string(p.Payload),
		MessageHashes:      joinList(p.MessageHashes),
		OutstandingSigners: joinList(p.OutstandingSigners),
		VanityKeypairID:    p.VanityKeypairID,
		Signatures:         joinList(p.Signatures),
		Error:              p.Error,
		ExpiresAt:          p.ExpiresAt,
		Timestamps:         Timestamps{CreatedAt: p.CreatedAt, UpdatedAt: p.UpdatedAt},
	}
}

func (m *PreparedTx) ToDomain() *domain.PreparedTx {
	return &domain.PreparedTx{
		ID:                 m.ID,
		Kind:               domain.PreparedKind(m.Kind),
		PoolMint:           m.PoolMint,
		Wallet:             m.Wallet,
		Payload:            []byte(m.Payload),
		MessageHashes:      splitList(m.MessageHashes),
		OutstandingSigners: splitList(m.OutstandingSigners),
		VanityKeypairID:    m.VanityKeypairID,
		Signatures:         splitList(m.Signatures),
		Status:             domain.PreparedStatus(m.Status),
		Error:              m.Error,
		ExpiresAt:          m.ExpiresAt,
		CreatedAt:          m.CreatedAt,
		UpdatedAt:          m.UpdatedAt,
	}
}

type APIKey struct {
	KeyHash            string    `gorm:"primaryKey;type:char(64)"`
	Name               string    `gorm:"type:varchar(64)"`
	Active             bool      `gorm:"not null;default:true"`
	// RateLimitPerMinute 0 - общий лимит из конфигурации.
	RateLimitPerMinute int       `gorm:"not null;default:0"`
	CreatedAt          time.Time `gorm:"not null"`
}

func (APIKey) TableName() string { return "api_keys" }
