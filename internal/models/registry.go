package models

import "time"

// PoolVersion records, per pool address, which pool version the factory
// deployed. The reverse lookup "did this factory create this address, and at
// what version" is the compatibility contract that lets newer pool variants
// coexist with older ones under one registry.
type PoolVersion struct {
	PoolAddress string      `gorm:"primaryKey" json:"pool_address"`
	ProjectID   uint        `gorm:"not null;index" json:"project_id"`
	Version     uint        `gorm:"not null" json:"version"`
	Variant     PoolVariant `gorm:"not null" json:"variant"`
	Nonce       uint64      `gorm:"not null" json:"nonce"` // deployment nonce used in the address derivation
	CreatedAt   time.Time   `json:"created_at"`
}

// FactoryState is the singleton factory row: the next deployment nonce plus
// the creation policy. Policy is versioned data, not code; changing it does
// not touch already-created projects or pools.
type FactoryState struct {
	ID        uint   `gorm:"primaryKey" json:"id"`
	NextNonce uint64 `gorm:"not null;default:0" json:"next_nonce"`

	MaxProjectsPerOwner int         `gorm:"not null;default:0" json:"max_projects_per_owner"` // 0 means unlimited
	MinProjectInterval  int64       `gorm:"not null;default:0" json:"min_project_interval"`   // seconds between creations per owner
	PoolVariant         PoolVariant `gorm:"not null;default:standard" json:"pool_variant"`
	PoolVersion         uint        `gorm:"not null;default:1" json:"pool_version"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
