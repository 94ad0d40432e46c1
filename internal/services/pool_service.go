package services

import (
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/BulbaSwap/launch-pool/internal/ledger"
	"github.com/BulbaSwap/launch-pool/internal/models"
	"github.com/BulbaSwap/launch-pool/internal/reward"
)

// PoolService exposes the user-facing staking operations and the owner-only
// pool administration. Every mutating call checkpoints the pool accumulator
// first, finalizes all internal state, and only then touches the ledger, so
// a rolled-back transfer can never leave rewards half-accounted.
type PoolService interface {
	GetPool(address string) (*models.Pool, error)
	GetUserStake(poolAddress, user string) (*models.UserStake, error)
	// PendingReward evaluates the user's claimable reward as of now without
	// mutating anything.
	PendingReward(poolAddress, user string) (*big.Int, error)

	// Deposit stakes amount for user. A zero amount is the supported idiom
	// for flushing accrued rewards into the carry bucket; limits and the
	// minimum stake only apply to non-zero amounts.
	Deposit(poolAddress, user string, amount *big.Int) error
	Withdraw(poolAddress, user string, amount *big.Int) error
	// ClaimReward pays out all pending rewards. Only available once the
	// project has ended.
	ClaimReward(poolAddress, user string) (*big.Int, error)
	// EmergencyWithdraw returns the staked balance and forfeits all pending
	// rewards unconditionally.
	EmergencyWithdraw(poolAddress, user string) (*big.Int, error)

	UpdateMinStakeAmount(poolAddress, caller string, amount *big.Int) error
	UpdatePoolLimitPerUser(poolAddress, caller string, hasLimit bool, limit *big.Int) error
	UpdateRewardPerSecond(poolAddress, caller string, rate *big.Int) error
	// StopReward force-ends the pool's reward window at the current time.
	// Staked balances are untouched.
	StopReward(poolAddress, caller string) error
	// RecoverWrongTokens sweeps an asset that is neither staked nor reward.
	RecoverWrongTokens(poolAddress, caller, asset string, amount *big.Int) error
	// WithdrawRemainingRewards sweeps the pool's reward-asset balance in
	// excess of rate*duration, i.e. the truncation dust plus anything left
	// from a shortened window.
	WithdrawRemainingRewards(poolAddress, caller string) (*big.Int, error)
}

type poolService struct {
	db     *gorm.DB
	ledger ledger.Ledger
	events EventService
	logger *zap.Logger
	guard  entryGuard
	now    func() time.Time
}

func NewPoolService(db *gorm.DB, l ledger.Ledger, events EventService, logger *zap.Logger) PoolService {
	return &poolService{
		db:     db,
		ledger: l,
		events: events,
		logger: logger,
		guard:  entryGuard{active: make(map[string]struct{})},
		now:    time.Now,
	}
}

// entryGuard is the per-pool in-call flag. A transfer callback re-invoking a
// mutating entry point on the same pool mid-call is rejected as a
// precondition violation.
type entryGuard struct {
	mu     sync.Mutex
	active map[string]struct{}
}

func (g *entryGuard) enter(key string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.active[key]; ok {
		return ErrReentrantCall
	}
	g.active[key] = struct{}{}
	return nil
}

func (g *entryGuard) exit(key string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.active, key)
}

func (p *poolService) GetPool(address string) (*models.Pool, error) {
	var pool models.Pool
	err := p.db.Where("address = ?", address).First(&pool).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrPoolNotFound
	}
	if err != nil {
		return nil, err
	}
	return &pool, nil
}

func (p *poolService) GetUserStake(poolAddress, user string) (*models.UserStake, error) {
	var stake models.UserStake
	err := p.db.Where("pool_address = ? AND user_address = ?", poolAddress, normalizeAddress(user)).First(&stake).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &stake, nil
}

func (p *poolService) PendingReward(poolAddress, user string) (*big.Int, error) {
	pool, err := p.GetPool(poolAddress)
	if err != nil {
		return nil, err
	}
	stake, err := p.GetUserStake(poolAddress, user)
	if err != nil {
		return nil, err
	}
	if stake == nil {
		return new(big.Int), nil
	}

	acc, _ := reward.Advance(
		pool.AccRewardPerShare.Big(), pool.LastRewardTime,
		pool.RewardPerSecond.Big(), pool.StartTime, pool.EndTime,
		pool.PrecisionFactor.Big(), pool.TotalStaked.Big(), p.now().Unix())
	return reward.PendingOf(stake.Amount.Big(), stake.RewardDebt.Big(), stake.PendingRewards.Big(), acc, pool.PrecisionFactor.Big()), nil
}

func (p *poolService) Deposit(poolAddress, user string, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("%w: deposit amount must not be negative", ErrInvalidAmount)
	}
	if err := p.guard.enter(poolAddress); err != nil {
		return err
	}
	defer p.guard.exit(poolAddress)

	user = normalizeAddress(user)
	return p.db.Transaction(func(tx *gorm.DB) error {
		pool, project, err := p.loadPoolAndProject(tx, poolAddress)
		if err != nil {
			return err
		}
		if err := requireDisplayStatus(project, p.now().Unix(), models.DisplayStatusReady, models.DisplayStatusActive); err != nil {
			return err
		}

		stake, err := p.loadOrCreateStake(tx, pool.Address, user)
		if err != nil {
			return err
		}

		// Limits gate only real deposits; a zero-amount call is a pure
		// reward checkpoint and must always succeed.
		if amount.Sign() > 0 {
			if amount.Cmp(pool.MinStakeAmount.Big()) < 0 {
				return fmt.Errorf("%w: minimum is %s", ErrAmountBelowMinimum, pool.MinStakeAmount.Big())
			}
			if pool.HasUserLimit {
				next := new(big.Int).Add(stake.Amount.Big(), amount)
				if next.Cmp(pool.PoolLimitPerUser.Big()) > 0 {
					return fmt.Errorf("%w: limit is %s", ErrAboveUserLimit, pool.PoolLimitPerUser.Big())
				}
			}
		}

		p.checkpoint(pool)
		p.creditPending(pool, stake)

		newAmount := new(big.Int).Add(stake.Amount.Big(), amount)
		stake.Amount = models.NewBigInt(newAmount)
		pool.TotalStaked = models.NewBigInt(new(big.Int).Add(pool.TotalStaked.Big(), amount))
		stake.RewardDebt = models.NewBigInt(reward.Debt(newAmount, pool.AccRewardPerShare.Big(), pool.PrecisionFactor.Big()))

		if err := tx.Save(pool).Error; err != nil {
			return err
		}
		if err := tx.Save(stake).Error; err != nil {
			return err
		}

		if amount.Sign() > 0 {
			if err := p.ledger.Pull(tx, pool.StakedAsset, user, pool.Address, amount); err != nil {
				return err
			}
		}

		return p.events.Record(tx, models.Event{
			Type:        models.EventDeposit,
			ProjectID:   pool.ProjectID,
			PoolAddress: pool.Address,
			UserAddress: user,
			Payload:     models.JSON{"amount": amount.String()},
		})
	})
}

func (p *poolService) Withdraw(poolAddress, user string, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("%w: withdraw amount must be positive", ErrInvalidAmount)
	}
	if err := p.guard.enter(poolAddress); err != nil {
		return err
	}
	defer p.guard.exit(poolAddress)

	user = normalizeAddress(user)
	return p.db.Transaction(func(tx *gorm.DB) error {
		pool, project, err := p.loadPoolAndProject(tx, poolAddress)
		if err != nil {
			return err
		}
		if err := requireDisplayStatus(project, p.now().Unix(),
			models.DisplayStatusReady, models.DisplayStatusActive, models.DisplayStatusEnded,
			models.DisplayStatusPaused, models.DisplayStatusDelisted); err != nil {
			return err
		}

		stake, err := p.loadOrCreateStake(tx, pool.Address, user)
		if err != nil {
			return err
		}
		if stake.Amount.Big().Cmp(amount) < 0 {
			return fmt.Errorf("%w: staked %s, requested %s", ErrInvalidAmount, stake.Amount.Big(), amount)
		}

		p.checkpoint(pool)
		p.creditPending(pool, stake)

		newAmount := new(big.Int).Sub(stake.Amount.Big(), amount)
		stake.Amount = models.NewBigInt(newAmount)
		pool.TotalStaked = models.NewBigInt(new(big.Int).Sub(pool.TotalStaked.Big(), amount))
		stake.RewardDebt = models.NewBigInt(reward.Debt(newAmount, pool.AccRewardPerShare.Big(), pool.PrecisionFactor.Big()))

		if err := tx.Save(pool).Error; err != nil {
			return err
		}
		if err := tx.Save(stake).Error; err != nil {
			return err
		}

		if err := p.ledger.Push(tx, pool.StakedAsset, pool.Address, user, amount); err != nil {
			return err
		}

		return p.events.Record(tx, models.Event{
			Type:        models.EventWithdraw,
			ProjectID:   pool.ProjectID,
			PoolAddress: pool.Address,
			UserAddress: user,
			Payload:     models.JSON{"amount": amount.String()},
		})
	})
}

func (p *poolService) ClaimReward(poolAddress, user string) (*big.Int, error) {
	if err := p.guard.enter(poolAddress); err != nil {
		return nil, err
	}
	defer p.guard.exit(poolAddress)

	user = normalizeAddress(user)
	total := new(big.Int)
	err := p.db.Transaction(func(tx *gorm.DB) error {
		pool, project, err := p.loadPoolAndProject(tx, poolAddress)
		if err != nil {
			return err
		}
		if err := requireDisplayStatus(project, p.now().Unix(), models.DisplayStatusEnded); err != nil {
			return err
		}

		stake, err := p.loadOrCreateStake(tx, pool.Address, user)
		if err != nil {
			return err
		}

		p.checkpoint(pool)
		total.Set(reward.PendingOf(
			stake.Amount.Big(), stake.RewardDebt.Big(), stake.PendingRewards.Big(),
			pool.AccRewardPerShare.Big(), pool.PrecisionFactor.Big()))

		stake.PendingRewards = models.NewBigIntFromInt64(0)
		stake.RewardDebt = models.NewBigInt(reward.Debt(stake.Amount.Big(), pool.AccRewardPerShare.Big(), pool.PrecisionFactor.Big()))

		if err := tx.Save(pool).Error; err != nil {
			return err
		}
		if err := tx.Save(stake).Error; err != nil {
			return err
		}

		if total.Sign() > 0 {
			if err := p.ledger.Push(tx, project.RewardAsset, pool.Address, user, total); err != nil {
				return err
			}
		}

		return p.events.Record(tx, models.Event{
			Type:        models.EventClaimReward,
			ProjectID:   pool.ProjectID,
			PoolAddress: pool.Address,
			UserAddress: user,
			Payload:     models.JSON{"amount": total.String()},
		})
	})
	if err != nil {
		return nil, err
	}
	return total, nil
}

func (p *poolService) EmergencyWithdraw(poolAddress, user string) (*big.Int, error) {
	if err := p.guard.enter(poolAddress); err != nil {
		return nil, err
	}
	defer p.guard.exit(poolAddress)

	user = normalizeAddress(user)
	staked := new(big.Int)
	err := p.db.Transaction(func(tx *gorm.DB) error {
		pool, project, err := p.loadPoolAndProject(tx, poolAddress)
		if err != nil {
			return err
		}
		if err := requireDisplayStatus(project, p.now().Unix(), models.DisplayStatusPaused, models.DisplayStatusDelisted); err != nil {
			return err
		}

		stake, err := p.loadOrCreateStake(tx, pool.Address, user)
		if err != nil {
			return err
		}
		staked.Set(stake.Amount.Big())

		// All reward accounting for this user is dropped on the floor.
		stake.Amount = models.NewBigIntFromInt64(0)
		stake.RewardDebt = models.NewBigIntFromInt64(0)
		stake.PendingRewards = models.NewBigIntFromInt64(0)
		pool.TotalStaked = models.NewBigInt(new(big.Int).Sub(pool.TotalStaked.Big(), staked))

		if err := tx.Save(pool).Error; err != nil {
			return err
		}
		if err := tx.Save(stake).Error; err != nil {
			return err
		}

		if staked.Sign() > 0 {
			if err := p.ledger.Push(tx, pool.StakedAsset, pool.Address, user, staked); err != nil {
				return err
			}
		}

		return p.events.Record(tx, models.Event{
			Type:        models.EventEmergencyWithdraw,
			ProjectID:   pool.ProjectID,
			PoolAddress: pool.Address,
			UserAddress: user,
			Payload:     models.JSON{"amount": staked.String()},
		})
	})
	if err != nil {
		return nil, err
	}
	return staked, nil
}

func (p *poolService) UpdateMinStakeAmount(poolAddress, caller string, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("%w: min stake must not be negative", ErrInvalidAmount)
	}
	return p.ownerUpdate(poolAddress, caller, []models.DisplayStatus{models.DisplayStatusReady}, func(tx *gorm.DB, pool *models.Pool) error {
		pool.MinStakeAmount = models.NewBigInt(amount)
		return nil
	})
}

func (p *poolService) UpdatePoolLimitPerUser(poolAddress, caller string, hasLimit bool, limit *big.Int) error {
	if hasLimit && (limit == nil || limit.Sign() <= 0) {
		return fmt.Errorf("%w: pool limit per user must be positive", ErrInvalidAmount)
	}
	return p.ownerUpdate(poolAddress, caller, []models.DisplayStatus{models.DisplayStatusReady}, func(tx *gorm.DB, pool *models.Pool) error {
		pool.HasUserLimit = hasLimit
		if hasLimit {
			pool.PoolLimitPerUser = models.NewBigInt(limit)
		} else {
			pool.PoolLimitPerUser = nil
		}
		return nil
	})
}

func (p *poolService) UpdateRewardPerSecond(poolAddress, caller string, rate *big.Int) error {
	if rate == nil || rate.Sign() <= 0 {
		return fmt.Errorf("%w: reward rate must be positive", ErrInvalidAmount)
	}
	// READY only: the rate can change right up to activation, never after
	// users have started accruing against it.
	return p.ownerUpdate(poolAddress, caller, []models.DisplayStatus{models.DisplayStatusReady}, func(tx *gorm.DB, pool *models.Pool) error {
		pool.RewardPerSecond = models.NewBigInt(rate)
		return nil
	})
}

func (p *poolService) StopReward(poolAddress, caller string) error {
	return p.ownerUpdate(poolAddress, caller, []models.DisplayStatus{models.DisplayStatusReady, models.DisplayStatusActive}, func(tx *gorm.DB, pool *models.Pool) error {
		pool.EndTime = p.now().Unix()
		return p.events.Record(tx, models.Event{
			Type:        models.EventRewardStopped,
			ProjectID:   pool.ProjectID,
			PoolAddress: pool.Address,
			Payload:     models.JSON{"end_time": pool.EndTime},
		})
	})
}

func (p *poolService) RecoverWrongTokens(poolAddress, caller, asset string, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("%w: recovery amount must be positive", ErrInvalidAmount)
	}
	if !common.IsHexAddress(asset) {
		return fmt.Errorf("%w: asset %q", ErrInvalidAddress, asset)
	}
	asset = normalizeAddress(asset)
	if err := p.guard.enter(poolAddress); err != nil {
		return err
	}
	defer p.guard.exit(poolAddress)

	return p.db.Transaction(func(tx *gorm.DB) error {
		pool, project, err := p.loadPoolAndProject(tx, poolAddress)
		if err != nil {
			return err
		}
		if err := requireOwner(project, caller); err != nil {
			return err
		}
		if err := requireDisplayStatus(project, p.now().Unix(), models.DisplayStatusPaused, models.DisplayStatusDelisted); err != nil {
			return err
		}
		if asset == pool.StakedAsset || asset == project.RewardAsset {
			return fmt.Errorf("%w: cannot recover the staked or reward asset", ErrAssetMismatch)
		}

		if err := p.ledger.Push(tx, asset, pool.Address, project.OwnerAddress, amount); err != nil {
			return err
		}
		return p.events.Record(tx, models.Event{
			Type:        models.EventTokensRecovered,
			ProjectID:   pool.ProjectID,
			PoolAddress: pool.Address,
			Payload:     models.JSON{"asset": asset, "amount": amount.String()},
		})
	})
}

func (p *poolService) WithdrawRemainingRewards(poolAddress, caller string) (*big.Int, error) {
	if err := p.guard.enter(poolAddress); err != nil {
		return nil, err
	}
	defer p.guard.exit(poolAddress)

	excess := new(big.Int)
	err := p.db.Transaction(func(tx *gorm.DB) error {
		pool, project, err := p.loadPoolAndProject(tx, poolAddress)
		if err != nil {
			return err
		}
		if err := requireOwner(project, caller); err != nil {
			return err
		}
		if err := requireDisplayStatus(project, p.now().Unix(), models.DisplayStatusEnded); err != nil {
			return err
		}

		balance, err := p.ledger.BalanceOf(tx, project.RewardAsset, pool.Address)
		if err != nil {
			return err
		}
		duration := pool.EndTime - pool.StartTime
		if duration < 0 {
			duration = 0
		}
		committed := new(big.Int).Mul(pool.RewardPerSecond.Big(), big.NewInt(duration))
		excess.Sub(balance, committed)
		if excess.Sign() <= 0 {
			return ErrNothingToWithdraw
		}

		if err := p.ledger.Push(tx, project.RewardAsset, pool.Address, project.OwnerAddress, excess); err != nil {
			return err
		}
		return p.events.Record(tx, models.Event{
			Type:        models.EventRemainingWithdrawn,
			ProjectID:   pool.ProjectID,
			PoolAddress: pool.Address,
			Payload:     models.JSON{"amount": excess.String()},
		})
	})
	if err != nil {
		return nil, err
	}
	return excess, nil
}

// ownerUpdate wraps the owner-only configuration mutations that share the
// same load/authorize/gate/save shape.
func (p *poolService) ownerUpdate(poolAddress, caller string, allowed []models.DisplayStatus, mutate func(tx *gorm.DB, pool *models.Pool) error) error {
	if err := p.guard.enter(poolAddress); err != nil {
		return err
	}
	defer p.guard.exit(poolAddress)

	return p.db.Transaction(func(tx *gorm.DB) error {
		pool, project, err := p.loadPoolAndProject(tx, poolAddress)
		if err != nil {
			return err
		}
		if err := requireOwner(project, caller); err != nil {
			return err
		}
		if err := requireDisplayStatus(project, p.now().Unix(), allowed...); err != nil {
			return err
		}
		if err := mutate(tx, pool); err != nil {
			return err
		}
		if err := tx.Save(pool).Error; err != nil {
			return err
		}
		if p.logger != nil {
			p.logger.Info("pool configuration updated",
				zap.String("pool", pool.Address),
				zap.Uint("project_id", pool.ProjectID))
		}
		return p.events.Record(tx, models.Event{
			Type:        models.EventPoolParamsUpdated,
			ProjectID:   pool.ProjectID,
			PoolAddress: pool.Address,
		})
	})
}

// checkpoint advances the pool accumulator to now. Must run before any
// per-user state is read or written.
func (p *poolService) checkpoint(pool *models.Pool) {
	acc, last := reward.Advance(
		pool.AccRewardPerShare.Big(), pool.LastRewardTime,
		pool.RewardPerSecond.Big(), pool.StartTime, pool.EndTime,
		pool.PrecisionFactor.Big(), pool.TotalStaked.Big(), p.now().Unix())
	pool.AccRewardPerShare = models.NewBigInt(acc)
	pool.LastRewardTime = last
}

// creditPending moves the user's newly accrued reward into the carry bucket
// against the freshly advanced accumulator. Runs before the balance changes.
func (p *poolService) creditPending(pool *models.Pool, stake *models.UserStake) {
	if stake.Amount.Big().Sign() == 0 {
		return
	}
	accrued := new(big.Int).Sub(
		reward.Debt(stake.Amount.Big(), pool.AccRewardPerShare.Big(), pool.PrecisionFactor.Big()),
		stake.RewardDebt.Big())
	if accrued.Sign() > 0 {
		stake.PendingRewards = models.NewBigInt(new(big.Int).Add(stake.PendingRewards.Big(), accrued))
	}
}

func (p *poolService) loadPoolAndProject(tx *gorm.DB, poolAddress string) (*models.Pool, *models.Project, error) {
	var pool models.Pool
	err := tx.Where("address = ?", poolAddress).First(&pool).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil, ErrPoolNotFound
	}
	if err != nil {
		return nil, nil, err
	}
	var project models.Project
	if err := tx.First(&project, pool.ProjectID).Error; err != nil {
		return nil, nil, err
	}
	return &pool, &project, nil
}

func (p *poolService) loadOrCreateStake(tx *gorm.DB, poolAddress, user string) (*models.UserStake, error) {
	if !common.IsHexAddress(user) {
		return nil, fmt.Errorf("%w: user %q", ErrInvalidAddress, user)
	}
	var stake models.UserStake
	err := tx.Where("pool_address = ? AND user_address = ?", poolAddress, user).First(&stake).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		stake = models.UserStake{
			PoolAddress:    poolAddress,
			UserAddress:    user,
			Amount:         models.NewBigIntFromInt64(0),
			RewardDebt:     models.NewBigIntFromInt64(0),
			PendingRewards: models.NewBigIntFromInt64(0),
		}
		if err := tx.Create(&stake).Error; err != nil {
			return nil, err
		}
		return &stake, nil
	}
	if err != nil {
		return nil, err
	}
	return &stake, nil
}

// requireDisplayStatus gates an operation on the project's derived status.
func requireDisplayStatus(project *models.Project, now int64, allowed ...models.DisplayStatus) error {
	status := project.DisplayStatus(now)
	for _, a := range allowed {
		if status == a {
			return nil
		}
	}
	return fmt.Errorf("%w: project is %s", ErrInvalidStatus, status)
}

func normalizeAddress(addr string) string {
	if common.IsHexAddress(addr) {
		return common.HexToAddress(addr).Hex()
	}
	return addr
}
