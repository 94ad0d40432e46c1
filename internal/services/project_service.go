package services

import (
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/BulbaSwap/launch-pool/internal/ledger"
	"github.com/BulbaSwap/launch-pool/internal/models"
	"github.com/BulbaSwap/launch-pool/internal/reward"
)

// ProjectService owns the project status state machine and the funding
// ledger. ACTIVE/ENDED are derived from READY plus the clock, never stored.
type ProjectService interface {
	GetProject(projectID uint) (*models.Project, error)
	ListProjects(skip, limit int) ([]models.Project, error)
	ListProjectsByOwner(owner string, skip, limit int) ([]models.Project, error)
	ListPools(projectID uint) ([]models.Pool, error)
	DisplayStatus(projectID uint) (models.DisplayStatus, error)

	UpdateMetadata(projectID uint, caller string, metadata models.JSON) error
	// FundPool moves exactly the pool's reward commitment from the owner to
	// the pool. Funding the last unfunded pool auto-transitions the project
	// to READY when the per-pool commitments sum to the project total.
	FundPool(projectID uint, poolAddress, caller string, amount *big.Int) error
	// SetStatus applies an owner-requested transition. The returned status
	// is the stored result, which for PAUSED→READY may be STAGING when a
	// pool turned out to be under-collateralized.
	SetStatus(projectID uint, caller string, target models.ProjectStatus) (models.ProjectStatus, error)
	// EndProjectNow closes the reward window of the project and all its
	// pools at the current time. The only way endTime moves after creation.
	EndProjectNow(projectID uint, caller string) error
}

type projectService struct {
	db     *gorm.DB
	ledger ledger.Ledger
	events EventService
	logger *zap.Logger
	now    func() time.Time
}

func NewProjectService(db *gorm.DB, l ledger.Ledger, events EventService, logger *zap.Logger) ProjectService {
	return &projectService{db: db, ledger: l, events: events, logger: logger, now: time.Now}
}

func (p *projectService) GetProject(projectID uint) (*models.Project, error) {
	var project models.Project
	err := p.db.First(&project, projectID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrProjectNotFound
	}
	if err != nil {
		return nil, err
	}
	return &project, nil
}

func (p *projectService) ListProjects(skip, limit int) ([]models.Project, error) {
	var projects []models.Project
	err := p.db.Order("id ASC").Offset(skip).Limit(limit).Find(&projects).Error
	return projects, err
}

func (p *projectService) ListProjectsByOwner(owner string, skip, limit int) ([]models.Project, error) {
	if !common.IsHexAddress(owner) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAddress, owner)
	}
	var projects []models.Project
	err := p.db.Where("owner_address = ?", common.HexToAddress(owner).Hex()).
		Order("id ASC").Offset(skip).Limit(limit).Find(&projects).Error
	return projects, err
}

func (p *projectService) ListPools(projectID uint) ([]models.Pool, error) {
	var pools []models.Pool
	err := p.db.Where("project_id = ?", projectID).Order("pool_index ASC").Find(&pools).Error
	return pools, err
}

func (p *projectService) DisplayStatus(projectID uint) (models.DisplayStatus, error) {
	project, err := p.GetProject(projectID)
	if err != nil {
		return "", err
	}
	return project.DisplayStatus(p.now().Unix()), nil
}

func (p *projectService) UpdateMetadata(projectID uint, caller string, metadata models.JSON) error {
	return p.db.Transaction(func(tx *gorm.DB) error {
		project, err := lockProject(tx, projectID)
		if err != nil {
			return err
		}
		if err := requireOwner(project, caller); err != nil {
			return err
		}
		project.Metadata = metadata
		if err := tx.Save(project).Error; err != nil {
			return err
		}
		return p.events.Record(tx, models.Event{
			Type:        models.EventProjectMetadataUpdate,
			ProjectID:   project.ID,
			UserAddress: project.OwnerAddress,
		})
	})
}

func (p *projectService) FundPool(projectID uint, poolAddress, caller string, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("%w: funding amount must be positive", ErrInvalidAmount)
	}
	return p.db.Transaction(func(tx *gorm.DB) error {
		project, err := lockProject(tx, projectID)
		if err != nil {
			return err
		}
		if err := requireOwner(project, caller); err != nil {
			return err
		}
		if project.Status != models.ProjectStatusStaging {
			return fmt.Errorf("%w: funding only allowed in staging", ErrInvalidStatus)
		}

		var pool models.Pool
		err = tx.Where("address = ? AND project_id = ?", poolAddress, project.ID).First(&pool).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrPoolNotFound
		}
		if err != nil {
			return err
		}
		if pool.Funded {
			return ErrAlreadyFunded
		}
		if amount.Cmp(pool.PoolRewardAmount.Big()) != 0 {
			return fmt.Errorf("%w: got %s, commitment is %s", ErrAmountMismatch, amount, pool.PoolRewardAmount.Big())
		}

		if err := p.ledger.Pull(tx, project.RewardAsset, project.OwnerAddress, pool.Address, amount); err != nil {
			return err
		}

		pool.Funded = true
		if err := tx.Save(&pool).Error; err != nil {
			return err
		}
		project.FundedPoolCount++
		if err := tx.Save(project).Error; err != nil {
			return err
		}

		if err := p.events.Record(tx, models.Event{
			Type:        models.EventPoolFunded,
			ProjectID:   project.ID,
			PoolAddress: pool.Address,
			Payload:     models.JSON{"amount": amount.String()},
		}); err != nil {
			return err
		}

		// Funding the last pool promotes the project when the per-pool
		// commitments add up to the project total exactly.
		ready, err := p.fullyFunded(tx, project)
		if err != nil {
			return err
		}
		if ready {
			return p.storeStatus(tx, project, models.ProjectStatusReady)
		}
		return nil
	})
}

// fullyFunded reports whether every pool is funded and the committed amounts
// sum to TotalRewardAmount.
func (p *projectService) fullyFunded(tx *gorm.DB, project *models.Project) (bool, error) {
	var pools []models.Pool
	if err := tx.Where("project_id = ?", project.ID).Find(&pools).Error; err != nil {
		return false, err
	}
	if len(pools) == 0 || project.FundedPoolCount != len(pools) {
		return false, nil
	}
	sum := new(big.Int)
	for _, pool := range pools {
		if !pool.Funded {
			return false, nil
		}
		sum.Add(sum, pool.PoolRewardAmount.Big())
	}
	return sum.Cmp(project.TotalRewardAmount.Big()) == 0, nil
}

func (p *projectService) SetStatus(projectID uint, caller string, target models.ProjectStatus) (models.ProjectStatus, error) {
	var result models.ProjectStatus
	err := p.db.Transaction(func(tx *gorm.DB) error {
		project, err := lockProject(tx, projectID)
		if err != nil {
			return err
		}
		if err := requireOwner(project, caller); err != nil {
			return err
		}

		current := project.Status
		switch {
		case current == models.ProjectStatusStaging && target == models.ProjectStatusReady:
			ready, err := p.fullyFunded(tx, project)
			if err != nil {
				return err
			}
			if !ready {
				return fmt.Errorf("%w: project is not fully funded", ErrInvalidTransition)
			}
			result = models.ProjectStatusReady

		case current == models.ProjectStatusReady && target == models.ProjectStatusPaused:
			result = models.ProjectStatusPaused

		case current == models.ProjectStatusPaused && target == models.ProjectStatusReady:
			under, err := p.underCollateralized(tx, project)
			if err != nil {
				return err
			}
			if len(under) > 0 {
				// Resuming with an under-collateralized pool re-opens
				// funding instead of failing outright.
				if err := p.unfund(tx, project, under); err != nil {
					return err
				}
				result = models.ProjectStatusStaging
			} else {
				result = models.ProjectStatusReady
			}

		case current == models.ProjectStatusPaused && target == models.ProjectStatusStaging:
			under, err := p.underCollateralized(tx, project)
			if err != nil {
				return err
			}
			if len(under) == 0 {
				return fmt.Errorf("%w: no pool is under-collateralized", ErrInvalidTransition)
			}
			if err := p.unfund(tx, project, under); err != nil {
				return err
			}
			result = models.ProjectStatusStaging

		case (current == models.ProjectStatusStaging || current == models.ProjectStatusReady) && target == models.ProjectStatusDelisted:
			result = models.ProjectStatusDelisted

		default:
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current, target)
		}

		return p.storeStatus(tx, project, result)
	})
	if err != nil {
		return "", err
	}
	return result, nil
}

// underCollateralized returns the funded pools whose reward-asset balance no
// longer covers the reward still owed for the rest of their window.
func (p *projectService) underCollateralized(tx *gorm.DB, project *models.Project) ([]models.Pool, error) {
	var pools []models.Pool
	if err := tx.Where("project_id = ? AND funded = ?", project.ID, true).Find(&pools).Error; err != nil {
		return nil, err
	}
	var under []models.Pool
	for _, pool := range pools {
		balance, err := p.ledger.BalanceOf(tx, project.RewardAsset, pool.Address)
		if err != nil {
			return nil, err
		}
		owed := reward.Undistributed(pool.RewardPerSecond.Big(), pool.StartTime, pool.EndTime, pool.LastRewardTime)
		// The ceiling-derived rate can overshoot the commitment by up to
		// duration-1 units; the pool never owes more than was committed.
		if owed.Cmp(pool.PoolRewardAmount.Big()) > 0 {
			owed.Set(pool.PoolRewardAmount.Big())
		}
		if balance.Cmp(owed) < 0 {
			under = append(under, pool)
		}
	}
	return under, nil
}

// unfund clears the funded flag on the given pools so they must be funded
// again before the project can return to READY.
func (p *projectService) unfund(tx *gorm.DB, project *models.Project, pools []models.Pool) error {
	for _, pool := range pools {
		pool.Funded = false
		if err := tx.Save(&pool).Error; err != nil {
			return err
		}
		project.FundedPoolCount--
		if err := p.events.Record(tx, models.Event{
			Type:        models.EventPoolUnfunded,
			ProjectID:   project.ID,
			PoolAddress: pool.Address,
		}); err != nil {
			return err
		}
	}
	return nil
}

func (p *projectService) storeStatus(tx *gorm.DB, project *models.Project, status models.ProjectStatus) error {
	previous := project.Status
	project.Status = status
	if err := tx.Save(project).Error; err != nil {
		return err
	}
	if p.logger != nil {
		p.logger.Info("project status changed",
			zap.Uint("project_id", project.ID),
			zap.String("from", string(previous)),
			zap.String("to", string(status)))
	}
	return p.events.Record(tx, models.Event{
		Type:      models.EventProjectStatusChanged,
		ProjectID: project.ID,
		Payload:   models.JSON{"from": string(previous), "to": string(status)},
	})
}

func (p *projectService) EndProjectNow(projectID uint, caller string) error {
	return p.db.Transaction(func(tx *gorm.DB) error {
		project, err := lockProject(tx, projectID)
		if err != nil {
			return err
		}
		if err := requireOwner(project, caller); err != nil {
			return err
		}
		if project.Status != models.ProjectStatusReady {
			return fmt.Errorf("%w: can only end a ready project", ErrInvalidStatus)
		}

		now := p.now().Unix()
		if now >= project.EndTime {
			return fmt.Errorf("%w: project already ended", ErrInvalidStatus)
		}
		if now <= project.StartTime {
			return fmt.Errorf("%w: project has not started", ErrInvalidStatus)
		}

		project.EndTime = now
		if err := tx.Save(project).Error; err != nil {
			return err
		}
		// Shorten every pool window still open. Accrual up to `now` stays
		// intact: the next checkpoint still credits [lastRewardTime, now].
		if err := tx.Model(&models.Pool{}).
			Where("project_id = ? AND end_time > ?", project.ID, now).
			Update("end_time", now).Error; err != nil {
			return err
		}

		return p.events.Record(tx, models.Event{
			Type:      models.EventProjectEnded,
			ProjectID: project.ID,
			Payload:   models.JSON{"end_time": now},
		})
	})
}

// lockProject loads a project for update inside a transaction.
func lockProject(tx *gorm.DB, projectID uint) (*models.Project, error) {
	var project models.Project
	err := tx.First(&project, projectID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrProjectNotFound
	}
	if err != nil {
		return nil, err
	}
	return &project, nil
}

// requireOwner checks the explicit stored-owner authorization.
func requireOwner(project *models.Project, caller string) error {
	if !common.IsHexAddress(caller) {
		return fmt.Errorf("%w: %q", ErrInvalidAddress, caller)
	}
	if common.HexToAddress(caller).Hex() != project.OwnerAddress {
		return ErrUnauthorized
	}
	return nil
}
