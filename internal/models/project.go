package models

import (
	"time"
)

// ProjectStatus is the stored project status. ACTIVE and ENDED are never
// stored; they are derived from READY plus the wall clock.
type ProjectStatus string

const (
	ProjectStatusStaging  ProjectStatus = "staging"
	ProjectStatusReady    ProjectStatus = "ready"
	ProjectStatusPaused   ProjectStatus = "paused"
	ProjectStatusDelisted ProjectStatus = "delisted"
)

// DisplayStatus is the externally visible status, computed from the stored
// status and the project time window. It is what gates pool operations.
type DisplayStatus string

const (
	DisplayStatusStaging  DisplayStatus = "staging"
	DisplayStatusReady    DisplayStatus = "ready"
	DisplayStatusActive   DisplayStatus = "active"
	DisplayStatusEnded    DisplayStatus = "ended"
	DisplayStatusPaused   DisplayStatus = "paused"
	DisplayStatusDelisted DisplayStatus = "delisted"
)

// Project groups one or more pools sharing a reward asset and time window.
// The reward asset lives only here; pools inherit it so every pool in a
// project pays rewards in the same asset.
type Project struct {
	ID                  uint          `gorm:"primaryKey" json:"id"`
	OwnerAddress        string        `gorm:"not null;index" json:"owner_address"`
	RewardAsset         string        `gorm:"not null" json:"reward_asset"`
	RewardAssetDecimals uint8         `gorm:"not null" json:"reward_asset_decimals"`
	TotalRewardAmount   *BigInt       `gorm:"not null" json:"total_reward_amount"`
	StartTime           int64         `gorm:"not null" json:"start_time"`
	EndTime             int64         `gorm:"not null" json:"end_time"` // mutable only via the explicit end-now action
	Status              ProjectStatus `gorm:"default:staging" json:"status"`
	FundedPoolCount     int           `gorm:"default:0" json:"funded_pool_count"`
	Metadata            JSON          `gorm:"type:text" json:"metadata"`
	ActiveNotified      bool          `gorm:"default:false" json:"-"`
	EndedNotified       bool          `gorm:"default:false" json:"-"`
	CreatedAt           time.Time     `json:"created_at"`
	UpdatedAt           time.Time     `json:"updated_at"`

	Pools []Pool `gorm:"foreignKey:ProjectID" json:"pools,omitempty"`
}

// DisplayStatus derives the visible status at the given unix time.
func (p *Project) DisplayStatus(now int64) DisplayStatus {
	switch p.Status {
	case ProjectStatusStaging:
		return DisplayStatusStaging
	case ProjectStatusPaused:
		return DisplayStatusPaused
	case ProjectStatusDelisted:
		return DisplayStatusDelisted
	case ProjectStatusReady:
		if now < p.StartTime {
			return DisplayStatusReady
		}
		if now < p.EndTime {
			return DisplayStatusActive
		}
		return DisplayStatusEnded
	}
	return DisplayStatus(p.Status)
}
