package models

import "time"

// EventType classifies observable events.
type EventType string

const (
	EventProjectCreated        EventType = "project_created"
	EventProjectStatusChanged  EventType = "project_status_changed"
	EventProjectMetadataUpdate EventType = "project_metadata_updated"
	EventProjectEnded          EventType = "project_ended"
	EventPoolCreated           EventType = "pool_created"
	EventPoolFunded            EventType = "pool_funded"
	EventPoolUnfunded          EventType = "pool_unfunded"
	EventDeposit               EventType = "deposit"
	EventWithdraw              EventType = "withdraw"
	EventClaimReward           EventType = "claim_reward"
	EventEmergencyWithdraw     EventType = "emergency_withdraw"
	EventPoolParamsUpdated     EventType = "pool_params_updated"
	EventRewardStopped         EventType = "reward_stopped"
	EventTokensRecovered       EventType = "tokens_recovered"
	EventRemainingWithdrawn    EventType = "remaining_rewards_withdrawn"
)

// Event is an append-only notification record for external indexers.
// Nothing in the engine reads events back to make decisions.
type Event struct {
	ID          string    `gorm:"primaryKey" json:"id"` // uuid
	Type        EventType `gorm:"not null;index" json:"type"`
	ProjectID   uint      `gorm:"index" json:"project_id,omitempty"`
	PoolAddress string    `gorm:"index" json:"pool_address,omitempty"`
	UserAddress string    `gorm:"index" json:"user_address,omitempty"`
	Payload     JSON      `gorm:"type:text" json:"payload,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}
