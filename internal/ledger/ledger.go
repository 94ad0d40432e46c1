// Package ledger provides the asset-transfer collaborator used by the pool
// and project services. Balances move atomically within the caller's
// database transaction; any failure aborts the whole calling operation.
package ledger

import (
	"errors"
	"fmt"
	"math/big"

	"gorm.io/gorm"

	"github.com/BulbaSwap/launch-pool/internal/models"
)

// NativeAsset is the sentinel address representing the chain's native asset.
// Native deposits are value-attached rather than pulled, so the factory
// exempts it from the staked-vs-reward asset check.
const NativeAsset = "0xEeeeeEeeeEeEeeEeEeEeeEEEeeeeEeeeeeeeEEeE"

var (
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrInvalidAmount       = errors.New("invalid amount")
)

// Ledger moves fungible-asset balances between holders. Every method takes
// the caller's transaction handle so a rollback undoes the transfer together
// with the rest of the operation.
type Ledger interface {
	// Pull moves amount of asset from `from` to `to`, failing with
	// ErrInsufficientBalance when `from` cannot cover it.
	Pull(tx *gorm.DB, asset, from, to string, amount *big.Int) error
	// Push moves amount of asset out of `from` to `to`. Same semantics as
	// Pull; the two names keep the direction readable at call sites.
	Push(tx *gorm.DB, asset, from, to string, amount *big.Int) error
	// BalanceOf reports the current balance of holder in asset.
	BalanceOf(tx *gorm.DB, asset, holder string) (*big.Int, error)
	// Mint credits amount of asset to holder out of thin air. Bootstrap and
	// test surface; the production ledger is fed by an external bridge.
	Mint(tx *gorm.DB, asset, holder string, amount *big.Int) error
}

type gormLedger struct{}

// NewLedger returns the database-backed ledger.
func NewLedger() Ledger {
	return &gormLedger{}
}

func (l *gormLedger) Pull(tx *gorm.DB, asset, from, to string, amount *big.Int) error {
	return l.transfer(tx, asset, from, to, amount)
}

func (l *gormLedger) Push(tx *gorm.DB, asset, from, to string, amount *big.Int) error {
	return l.transfer(tx, asset, from, to, amount)
}

func (l *gormLedger) transfer(tx *gorm.DB, asset, from, to string, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	if amount.Sign() == 0 {
		return nil
	}

	var source models.AccountBalance
	err := tx.Where("asset = ? AND holder_address = ?", asset, from).First(&source).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%w: %s holds no %s", ErrInsufficientBalance, from, asset)
	}
	if err != nil {
		return err
	}
	balance := source.Balance.Big()
	if balance.Cmp(amount) < 0 {
		return fmt.Errorf("%w: %s has %s of %s, needs %s", ErrInsufficientBalance, from, balance, asset, amount)
	}

	source.Balance = models.NewBigInt(balance.Sub(balance, amount))
	if err := tx.Save(&source).Error; err != nil {
		return err
	}
	return l.credit(tx, asset, to, amount)
}

func (l *gormLedger) credit(tx *gorm.DB, asset, holder string, amount *big.Int) error {
	var dest models.AccountBalance
	err := tx.Where("asset = ? AND holder_address = ?", asset, holder).First(&dest).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		dest = models.AccountBalance{
			Asset:         asset,
			HolderAddress: holder,
			Balance:       models.NewBigInt(amount),
		}
		return tx.Create(&dest).Error
	}
	if err != nil {
		return err
	}
	dest.Balance = models.NewBigInt(new(big.Int).Add(dest.Balance.Big(), amount))
	return tx.Save(&dest).Error
}

func (l *gormLedger) BalanceOf(tx *gorm.DB, asset, holder string) (*big.Int, error) {
	var row models.AccountBalance
	err := tx.Where("asset = ? AND holder_address = ?", asset, holder).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return new(big.Int), nil
	}
	if err != nil {
		return nil, err
	}
	return row.Balance.Big(), nil
}

func (l *gormLedger) Mint(tx *gorm.DB, asset, holder string, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	return l.credit(tx, asset, holder, amount)
}
