package services

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"gorm.io/gorm"

	"github.com/BulbaSwap/launch-pool/internal/ledger"
	"github.com/BulbaSwap/launch-pool/internal/models"
	"github.com/BulbaSwap/launch-pool/internal/reward"
)

// CreateProjectParams carries everything needed to open a project in STAGING.
type CreateProjectParams struct {
	OwnerAddress        string      `validate:"required"`
	RewardAsset         string      `validate:"required"`
	RewardAssetDecimals uint8       `validate:"-"`
	TotalRewardAmount   *big.Int    `validate:"required"`
	StartTime           int64       `validate:"required"`
	EndTime             int64       `validate:"required"`
	Metadata            models.JSON `validate:"-"`
}

// AddPoolParams describes one pool to be deployed under a project.
type AddPoolParams struct {
	ProjectID        uint     `validate:"required"`
	CallerAddress    string   `validate:"required"`
	StakedAsset      string   `validate:"required"`
	PoolRewardAmount *big.Int `validate:"required"`
	HasUserLimit     bool
	PoolLimitPerUser *big.Int
	MinStakeAmount   *big.Int
}

// FactoryService allocates project ids, deploys pools with deterministic
// identities, and keeps the version registry.
type FactoryService interface {
	CreateProject(params CreateProjectParams) (*models.Project, error)
	AddPool(params AddPoolParams) (*models.Pool, error)
	// PoolVersionOf is the reverse lookup: was this address created by this
	// factory, and at what version. Returns (nil, nil) for foreign addresses.
	PoolVersionOf(address string) (*models.PoolVersion, error)
	// DerivePoolAddress recomputes the deterministic identity so it can be
	// verified independently of the registry.
	DerivePoolAddress(projectID uint, stakedAsset, rewardAsset string, startTime int64, nonce uint64) string
	GetState() (*models.FactoryState, error)
	UpdatePolicy(maxProjectsPerOwner int, minProjectInterval int64, variant models.PoolVariant, version uint) error
}

type factoryService struct {
	db     *gorm.DB
	events EventService
	now    func() time.Time
}

func NewFactoryService(db *gorm.DB, events EventService) FactoryService {
	return &factoryService{db: db, events: events, now: time.Now}
}

// loadState fetches the singleton factory row, creating it with defaults on
// first use.
func loadState(tx *gorm.DB) (*models.FactoryState, error) {
	var state models.FactoryState
	err := tx.First(&state, 1).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		state = models.FactoryState{ID: 1, PoolVariant: models.PoolVariantStandard, PoolVersion: 1}
		if err := tx.Create(&state).Error; err != nil {
			return nil, err
		}
		return &state, nil
	}
	if err != nil {
		return nil, err
	}
	return &state, nil
}

func (f *factoryService) CreateProject(params CreateProjectParams) (*models.Project, error) {
	if !common.IsHexAddress(params.OwnerAddress) || params.OwnerAddress == (common.Address{}).Hex() {
		return nil, fmt.Errorf("%w: owner %q", ErrInvalidAddress, params.OwnerAddress)
	}
	if !common.IsHexAddress(params.RewardAsset) {
		return nil, fmt.Errorf("%w: reward asset %q", ErrInvalidAddress, params.RewardAsset)
	}
	if params.EndTime <= params.StartTime {
		return nil, fmt.Errorf("%w: end %d not after start %d", ErrInvalidWindow, params.EndTime, params.StartTime)
	}
	if params.TotalRewardAmount == nil || params.TotalRewardAmount.Sign() <= 0 {
		return nil, fmt.Errorf("%w: total reward amount must be positive", ErrInvalidAmount)
	}
	if params.RewardAssetDecimals >= reward.PrecisionCeiling {
		return nil, fmt.Errorf("reward asset decimals %d must be below %d", params.RewardAssetDecimals, reward.PrecisionCeiling)
	}

	owner := common.HexToAddress(params.OwnerAddress).Hex()
	var project models.Project
	err := f.db.Transaction(func(tx *gorm.DB) error {
		state, err := loadState(tx)
		if err != nil {
			return err
		}
		if err := f.checkOwnerPolicy(tx, state, owner); err != nil {
			return err
		}

		project = models.Project{
			OwnerAddress:        owner,
			RewardAsset:         common.HexToAddress(params.RewardAsset).Hex(),
			RewardAssetDecimals: params.RewardAssetDecimals,
			TotalRewardAmount:   models.NewBigInt(params.TotalRewardAmount),
			StartTime:           params.StartTime,
			EndTime:             params.EndTime,
			Status:              models.ProjectStatusStaging,
			Metadata:            params.Metadata,
		}
		if err := tx.Create(&project).Error; err != nil {
			return err
		}

		return f.events.Record(tx, models.Event{
			Type:        models.EventProjectCreated,
			ProjectID:   project.ID,
			UserAddress: owner,
			Payload: models.JSON{
				"reward_asset": project.RewardAsset,
				"total_reward": project.TotalRewardAmount.Big().String(),
				"start_time":   project.StartTime,
				"end_time":     project.EndTime,
			},
		})
	})
	if err != nil {
		return nil, err
	}
	return &project, nil
}

// checkOwnerPolicy enforces MaxProjectsPerOwner and MinProjectInterval.
func (f *factoryService) checkOwnerPolicy(tx *gorm.DB, state *models.FactoryState, owner string) error {
	if state.MaxProjectsPerOwner > 0 {
		var count int64
		if err := tx.Model(&models.Project{}).Where("owner_address = ?", owner).Count(&count).Error; err != nil {
			return err
		}
		if count >= int64(state.MaxProjectsPerOwner) {
			return fmt.Errorf("%w: limit %d", ErrOwnerProjectLimit, state.MaxProjectsPerOwner)
		}
	}
	if state.MinProjectInterval > 0 {
		var last models.Project
		err := tx.Where("owner_address = ?", owner).Order("created_at DESC").First(&last).Error
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if err == nil && f.now().Unix()-last.CreatedAt.Unix() < state.MinProjectInterval {
			return fmt.Errorf("%w: interval %ds", ErrOwnerTooFrequent, state.MinProjectInterval)
		}
	}
	return nil
}

func (f *factoryService) AddPool(params AddPoolParams) (*models.Pool, error) {
	if !common.IsHexAddress(params.CallerAddress) {
		return nil, fmt.Errorf("%w: caller %q", ErrInvalidAddress, params.CallerAddress)
	}
	if !common.IsHexAddress(params.StakedAsset) {
		return nil, fmt.Errorf("%w: staked asset %q", ErrInvalidAddress, params.StakedAsset)
	}
	if params.PoolRewardAmount == nil || params.PoolRewardAmount.Sign() <= 0 {
		return nil, fmt.Errorf("%w: pool reward amount must be positive", ErrInvalidAmount)
	}

	var pool models.Pool
	err := f.db.Transaction(func(tx *gorm.DB) error {
		var project models.Project
		if err := tx.First(&project, params.ProjectID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrProjectNotFound
			}
			return err
		}
		caller := common.HexToAddress(params.CallerAddress).Hex()
		if caller != project.OwnerAddress {
			return ErrUnauthorized
		}
		if project.Status != models.ProjectStatusStaging {
			return fmt.Errorf("%w: pools can only be added in staging", ErrInvalidStatus)
		}

		staked := common.HexToAddress(params.StakedAsset).Hex()
		if staked == project.RewardAsset && staked != ledger.NativeAsset {
			return fmt.Errorf("%w: staked asset equals reward asset", ErrAssetMismatch)
		}

		state, err := loadState(tx)
		if err != nil {
			return err
		}

		rps, err := reward.RewardPerSecond(params.PoolRewardAmount, project.StartTime, project.EndTime)
		if err != nil {
			return err
		}
		precision, err := reward.PrecisionFactor(project.RewardAssetDecimals)
		if err != nil {
			return err
		}

		var poolCount int64
		if err := tx.Model(&models.Pool{}).Where("project_id = ?", project.ID).Count(&poolCount).Error; err != nil {
			return err
		}

		nonce := state.NextNonce
		address := f.DerivePoolAddress(project.ID, staked, project.RewardAsset, project.StartTime, nonce)

		var limit *models.BigInt
		if params.HasUserLimit {
			if params.PoolLimitPerUser == nil || params.PoolLimitPerUser.Sign() <= 0 {
				return fmt.Errorf("%w: pool limit per user must be positive", ErrInvalidAmount)
			}
			limit = models.NewBigInt(params.PoolLimitPerUser)
		}
		minStake := new(big.Int)
		if params.MinStakeAmount != nil {
			if params.MinStakeAmount.Sign() < 0 {
				return fmt.Errorf("%w: min stake amount must not be negative", ErrInvalidAmount)
			}
			minStake.Set(params.MinStakeAmount)
		}

		pool = models.Pool{
			Address:           address,
			ProjectID:         project.ID,
			PoolIndex:         int(poolCount),
			StakedAsset:       staked,
			Variant:           state.PoolVariant,
			PoolRewardAmount:  models.NewBigInt(params.PoolRewardAmount),
			RewardPerSecond:   models.NewBigInt(rps),
			PrecisionFactor:   models.NewBigInt(precision),
			StartTime:         project.StartTime,
			EndTime:           project.EndTime,
			AccRewardPerShare: models.NewBigIntFromInt64(0),
			LastRewardTime:    project.StartTime,
			TotalStaked:       models.NewBigIntFromInt64(0),
			HasUserLimit:      params.HasUserLimit,
			PoolLimitPerUser:  limit,
			MinStakeAmount:    models.NewBigInt(minStake),
		}
		if err := tx.Create(&pool).Error; err != nil {
			return err
		}

		version := models.PoolVersion{
			PoolAddress: address,
			ProjectID:   project.ID,
			Version:     state.PoolVersion,
			Variant:     state.PoolVariant,
			Nonce:       nonce,
		}
		if err := tx.Create(&version).Error; err != nil {
			return err
		}

		state.NextNonce = nonce + 1
		if err := tx.Save(state).Error; err != nil {
			return err
		}

		return f.events.Record(tx, models.Event{
			Type:        models.EventPoolCreated,
			ProjectID:   project.ID,
			PoolAddress: address,
			Payload: models.JSON{
				"staked_asset":      staked,
				"pool_reward":       params.PoolRewardAmount.String(),
				"reward_per_second": rps.String(),
				"version":           state.PoolVersion,
				"variant":           string(state.PoolVariant),
			},
		})
	})
	if err != nil {
		return nil, err
	}
	return &pool, nil
}

// DerivePoolAddress hashes (projectId, stakedAsset, rewardAsset, startTime,
// nonce) and takes the trailing 20 bytes. The nonce makes re-deployments with
// identical parameters collision-free.
func (f *factoryService) DerivePoolAddress(projectID uint, stakedAsset, rewardAsset string, startTime int64, nonce uint64) string {
	buf := make([]byte, 0, 8+20+20+8+8)
	var u64 [8]byte

	binary.BigEndian.PutUint64(u64[:], uint64(projectID))
	buf = append(buf, u64[:]...)
	buf = append(buf, common.HexToAddress(stakedAsset).Bytes()...)
	buf = append(buf, common.HexToAddress(rewardAsset).Bytes()...)
	binary.BigEndian.PutUint64(u64[:], uint64(startTime))
	buf = append(buf, u64[:]...)
	binary.BigEndian.PutUint64(u64[:], nonce)
	buf = append(buf, u64[:]...)

	hash := crypto.Keccak256(buf)
	return common.BytesToAddress(hash[12:]).Hex()
}

func (f *factoryService) PoolVersionOf(address string) (*models.PoolVersion, error) {
	if !common.IsHexAddress(address) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAddress, address)
	}
	var version models.PoolVersion
	err := f.db.Where("pool_address = ?", common.HexToAddress(address).Hex()).First(&version).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &version, nil
}

func (f *factoryService) GetState() (*models.FactoryState, error) {
	return loadState(f.db)
}

func (f *factoryService) UpdatePolicy(maxProjectsPerOwner int, minProjectInterval int64, variant models.PoolVariant, version uint) error {
	return f.db.Transaction(func(tx *gorm.DB) error {
		state, err := loadState(tx)
		if err != nil {
			return err
		}
		state.MaxProjectsPerOwner = maxProjectsPerOwner
		state.MinProjectInterval = minProjectInterval
		state.PoolVariant = variant
		state.PoolVersion = version
		return tx.Save(state).Error
	})
}
