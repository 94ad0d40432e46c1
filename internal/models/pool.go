package models

import "time"

// PoolVariant tags which pool implementation a pool was created with.
// Variants share identical logic here; the tag is registry metadata that
// keeps older deployments distinguishable from newer ones.
type PoolVariant string

const (
	PoolVariantStandard    PoolVariant = "standard"
	PoolVariantUpgradeable PoolVariant = "upgradeable"
)

// Pool is a single staked-asset reward-distribution ledger within a project.
// Its identity is the deterministic address derived by the factory.
type Pool struct {
	Address          string      `gorm:"primaryKey" json:"address"`
	ProjectID        uint        `gorm:"not null;index" json:"project_id"`
	PoolIndex        int         `gorm:"not null" json:"pool_index"` // append-only position within the project
	StakedAsset      string      `gorm:"not null" json:"staked_asset"`
	Variant          PoolVariant `gorm:"not null;default:standard" json:"variant"`
	PoolRewardAmount *BigInt     `gorm:"not null" json:"pool_reward_amount"` // immutable after creation
	RewardPerSecond  *BigInt     `gorm:"not null" json:"reward_per_second"`  // ceil(poolRewardAmount / duration), stored once
	PrecisionFactor  *BigInt     `gorm:"not null" json:"precision_factor"`

	// Accrual window. Starts as a copy of the project window; EndTime moves
	// only when rewards are stopped early.
	StartTime int64 `gorm:"not null" json:"start_time"`
	EndTime   int64 `gorm:"not null" json:"end_time"`

	AccRewardPerShare *BigInt `gorm:"not null" json:"acc_reward_per_share"`
	LastRewardTime    int64   `gorm:"not null" json:"last_reward_time"`
	TotalStaked       *BigInt `gorm:"not null" json:"total_staked"`

	HasUserLimit     bool    `gorm:"default:false" json:"has_user_limit"`
	PoolLimitPerUser *BigInt `json:"pool_limit_per_user,omitempty"`
	MinStakeAmount   *BigInt `gorm:"not null" json:"min_stake_amount"`

	Funded    bool      `gorm:"default:false" json:"funded"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// UserStake is the per-user position in one pool.
type UserStake struct {
	ID          uint   `gorm:"primaryKey" json:"id"`
	PoolAddress string `gorm:"not null;uniqueIndex:idx_pool_user" json:"pool_address"`
	UserAddress string `gorm:"not null;uniqueIndex:idx_pool_user" json:"user_address"`

	Amount *BigInt `gorm:"not null" json:"amount"`
	// RewardDebt is the accumulator value already accounted for at the last
	// checkpoint; PendingRewards carries rewards computed but not yet paid.
	RewardDebt     *BigInt `gorm:"not null" json:"reward_debt"`
	PendingRewards *BigInt `gorm:"not null" json:"pending_rewards"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// AccountBalance is one (asset, holder) balance row of the internal ledger.
type AccountBalance struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	Asset         string    `gorm:"not null;uniqueIndex:idx_asset_holder" json:"asset"`
	HolderAddress string    `gorm:"not null;uniqueIndex:idx_asset_holder" json:"holder_address"`
	Balance       *BigInt   `gorm:"not null" json:"balance"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}
