package services

import "errors"

// Precondition violations surfaced to callers. Every mutating entry point
// aborts with no partial state change when one of these fires.
var (
	ErrUnauthorized       = errors.New("caller is not the project owner")
	ErrProjectNotFound    = errors.New("project not found")
	ErrPoolNotFound       = errors.New("pool not found")
	ErrInvalidStatus      = errors.New("operation not allowed in current status")
	ErrInvalidTransition  = errors.New("status transition not allowed")
	ErrInvalidAddress     = errors.New("invalid address")
	ErrAssetMismatch      = errors.New("asset mismatch")
	ErrInvalidWindow      = errors.New("invalid time window")
	ErrInvalidAmount      = errors.New("invalid amount")
	ErrAmountBelowMinimum = errors.New("amount below minimum stake")
	ErrAboveUserLimit     = errors.New("amount exceeds pool limit per user")
	ErrAmountMismatch     = errors.New("funding amount does not match pool commitment")
	ErrAlreadyFunded      = errors.New("pool already funded")
	ErrNotFunded          = errors.New("pool not funded")
	ErrReentrantCall      = errors.New("reentrant call")
	ErrOwnerProjectLimit  = errors.New("owner has reached the project limit")
	ErrOwnerTooFrequent   = errors.New("owner created a project too recently")
	ErrNothingToWithdraw  = errors.New("nothing to withdraw")
)
