// Package reward holds the pure reward-accrual arithmetic shared by every
// pool. All functions are side-effect free, operate on big integers, and
// truncate division toward zero, so the engine under-distributes dust rather
// than over-paying.
package reward

import (
	"fmt"
	"math/big"
)

// PrecisionCeiling bounds reward-asset decimals. The precision factor is
// 10^(PrecisionCeiling - decimals), so decimals at or above the ceiling
// would truncate the accumulator to zero.
const PrecisionCeiling = 30

// PrecisionFactor returns the fixed accumulator scaling for a reward asset
// with the given decimal count.
func PrecisionFactor(rewardDecimals uint8) (*big.Int, error) {
	if rewardDecimals >= PrecisionCeiling {
		return nil, fmt.Errorf("reward asset decimals %d must be below %d", rewardDecimals, PrecisionCeiling)
	}
	exp := big.NewInt(int64(PrecisionCeiling - rewardDecimals))
	return new(big.Int).Exp(big.NewInt(10), exp, nil), nil
}

// RewardPerSecond derives a pool's reward rate from its committed amount and
// window using ceiling division, so rate*duration always covers the full
// commitment. The per-update truncation in Advance is then the only rounding
// loss.
func RewardPerSecond(poolRewardAmount *big.Int, startTime, endTime int64) (*big.Int, error) {
	duration := endTime - startTime
	if duration <= 0 {
		return nil, fmt.Errorf("invalid reward window: end %d not after start %d", endTime, startTime)
	}
	d := big.NewInt(duration)
	q, r := new(big.Int).QuoRem(poolRewardAmount, d, new(big.Int))
	if r.Sign() != 0 {
		q.Add(q, big.NewInt(1))
	}
	return q, nil
}

// Advance moves the reward-per-share accumulator from lastRewardTime up to
// now, crediting only the overlap of [lastRewardTime, now] with
// [startTime, endTime]. It never mutates its inputs.
//
// An interval with zero total stake advances lastRewardTime without growing
// the accumulator: rewards for that interval are permanently forfeited and
// are later swept by the pool owner as remaining rewards.
func Advance(accRewardPerShare *big.Int, lastRewardTime int64, rewardPerSecond *big.Int, startTime, endTime int64, precision, totalStaked *big.Int, now int64) (*big.Int, int64) {
	acc := new(big.Int).Set(accRewardPerShare)

	if now <= lastRewardTime {
		return acc, lastRewardTime
	}
	if now < startTime {
		return acc, startTime
	}
	if lastRewardTime >= endTime {
		return acc, lastRewardTime
	}

	from := lastRewardTime
	if startTime > from {
		from = startTime
	}
	to := now
	if endTime < to {
		to = endTime
	}
	elapsed := to - from
	if elapsed <= 0 {
		return acc, to
	}
	if totalStaked.Sign() == 0 {
		return acc, to
	}

	delta := new(big.Int).Mul(big.NewInt(elapsed), rewardPerSecond)
	delta.Mul(delta, precision)
	delta.Quo(delta, totalStaked)
	acc.Add(acc, delta)
	return acc, to
}

// PendingOf computes a user's claimable reward from the current accumulator:
// the accrued share minus the debt already accounted for, plus the carried
// bucket. The checkpoint discipline in the pool service guarantees the
// result is never negative when the accumulator is current.
func PendingOf(amount, rewardDebt, pendingRewards, accRewardPerShare, precision *big.Int) *big.Int {
	pending := new(big.Int).Mul(amount, accRewardPerShare)
	pending.Quo(pending, precision)
	pending.Sub(pending, rewardDebt)
	pending.Add(pending, pendingRewards)
	return pending
}

// Debt returns the rewardDebt baseline for a balance under the given
// accumulator value.
func Debt(amount, accRewardPerShare, precision *big.Int) *big.Int {
	debt := new(big.Int).Mul(amount, accRewardPerShare)
	return debt.Quo(debt, precision)
}

// Undistributed returns the reward still owed going forward from
// lastRewardTime for the given window and rate: rate times the remaining
// overlap of [lastRewardTime, endTime] with [startTime, endTime]. Used for
// the solvency check when a paused project resumes.
func Undistributed(rewardPerSecond *big.Int, startTime, endTime, lastRewardTime int64) *big.Int {
	from := lastRewardTime
	if startTime > from {
		from = startTime
	}
	if from >= endTime {
		return new(big.Int)
	}
	return new(big.Int).Mul(rewardPerSecond, big.NewInt(endTime-from))
}
