package api

import (
	"errors"
	"math/big"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/BulbaSwap/launch-pool/internal/models"
	"github.com/BulbaSwap/launch-pool/internal/services"
)

var errBadAmount = errors.New("amount must be a base-10 integer string")

// parseAmount accepts decimal integer strings. Token amounts routinely exceed
// int64 so they travel as strings on the wire.
func parseAmount(s string) (*big.Int, error) {
	if s == "" {
		return nil, errBadAmount
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, errBadAmount
	}
	return v, nil
}

func parseOptionalAmount(s string) (*big.Int, error) {
	if s == "" {
		return nil, nil
	}
	return parseAmount(s)
}

func (s *APIServer) projectID(c *fiber.Ctx) (uint, error) {
	id, err := strconv.ParseUint(c.Params("id"), 10, 64)
	if err != nil {
		return 0, services.ErrProjectNotFound
	}
	return uint(id), nil
}

func pagination(c *fiber.Ctx) (skip, limit int) {
	skip = c.QueryInt("skip", 0)
	limit = c.QueryInt("limit", 50)
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if skip < 0 {
		skip = 0
	}
	return skip, limit
}

// Projects

type createProjectRequest struct {
	OwnerAddress        string      `json:"owner_address" validate:"required"`
	RewardAsset         string      `json:"reward_asset" validate:"required"`
	RewardAssetDecimals uint8       `json:"reward_asset_decimals"`
	TotalRewardAmount   string      `json:"total_reward_amount" validate:"required"`
	StartTime           int64       `json:"start_time" validate:"required"`
	EndTime             int64       `json:"end_time" validate:"required"`
	Metadata            models.JSON `json:"metadata"`
}

func (s *APIServer) handleCreateProject(c *fiber.Ctx) error {
	var req createProjectRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if err := s.validate.Struct(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	total, err := parseAmount(req.TotalRewardAmount)
	if err != nil {
		return errorResponse(c, err)
	}

	project, err := s.factory.CreateProject(services.CreateProjectParams{
		OwnerAddress:        req.OwnerAddress,
		RewardAsset:         req.RewardAsset,
		RewardAssetDecimals: req.RewardAssetDecimals,
		TotalRewardAmount:   total,
		StartTime:           req.StartTime,
		EndTime:             req.EndTime,
		Metadata:            req.Metadata,
	})
	if err != nil {
		return errorResponse(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(project)
}

func (s *APIServer) handleListProjects(c *fiber.Ctx) error {
	skip, limit := pagination(c)

	var (
		projects []models.Project
		err      error
	)
	if owner := c.Query("owner"); owner != "" {
		projects, err = s.projects.ListProjectsByOwner(owner, skip, limit)
	} else {
		projects, err = s.projects.ListProjects(skip, limit)
	}
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(fiber.Map{"projects": projects})
}

func (s *APIServer) handleGetProject(c *fiber.Ctx) error {
	id, err := s.projectID(c)
	if err != nil {
		return errorResponse(c, err)
	}
	project, err := s.projects.GetProject(id)
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(project)
}

func (s *APIServer) handleProjectStatus(c *fiber.Ctx) error {
	id, err := s.projectID(c)
	if err != nil {
		return errorResponse(c, err)
	}
	project, err := s.projects.GetProject(id)
	if err != nil {
		return errorResponse(c, err)
	}
	display, err := s.projects.DisplayStatus(id)
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(fiber.Map{
		"status":         project.Status,
		"display_status": display,
	})
}

func (s *APIServer) handleProjectPools(c *fiber.Ctx) error {
	id, err := s.projectID(c)
	if err != nil {
		return errorResponse(c, err)
	}
	pools, err := s.projects.ListPools(id)
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(fiber.Map{"pools": pools})
}

func (s *APIServer) handleProjectEvents(c *fiber.Ctx) error {
	id, err := s.projectID(c)
	if err != nil {
		return errorResponse(c, err)
	}
	skip, limit := pagination(c)
	events, err := s.events.ListByProject(id, skip, limit)
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(fiber.Map{"events": events})
}

type addPoolRequest struct {
	CallerAddress    string `json:"caller_address" validate:"required"`
	StakedAsset      string `json:"staked_asset" validate:"required"`
	PoolRewardAmount string `json:"pool_reward_amount" validate:"required"`
	HasUserLimit     bool   `json:"has_user_limit"`
	PoolLimitPerUser string `json:"pool_limit_per_user"`
	MinStakeAmount   string `json:"min_stake_amount"`
}

func (s *APIServer) handleAddPool(c *fiber.Ctx) error {
	id, err := s.projectID(c)
	if err != nil {
		return errorResponse(c, err)
	}
	var req addPoolRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if err := s.validate.Struct(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	rewardAmount, err := parseAmount(req.PoolRewardAmount)
	if err != nil {
		return errorResponse(c, err)
	}
	userLimit, err := parseOptionalAmount(req.PoolLimitPerUser)
	if err != nil {
		return errorResponse(c, err)
	}
	minStake, err := parseOptionalAmount(req.MinStakeAmount)
	if err != nil {
		return errorResponse(c, err)
	}

	pool, err := s.factory.AddPool(services.AddPoolParams{
		ProjectID:        id,
		CallerAddress:    req.CallerAddress,
		StakedAsset:      req.StakedAsset,
		PoolRewardAmount: rewardAmount,
		HasUserLimit:     req.HasUserLimit,
		PoolLimitPerUser: userLimit,
		MinStakeAmount:   minStake,
	})
	if err != nil {
		return errorResponse(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(pool)
}

type fundPoolRequest struct {
	CallerAddress string `json:"caller_address" validate:"required"`
	PoolAddress   string `json:"pool_address" validate:"required"`
	Amount        string `json:"amount" validate:"required"`
}

func (s *APIServer) handleFundPool(c *fiber.Ctx) error {
	id, err := s.projectID(c)
	if err != nil {
		return errorResponse(c, err)
	}
	var req fundPoolRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if err := s.validate.Struct(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		return errorResponse(c, err)
	}

	if err := s.projects.FundPool(id, req.PoolAddress, req.CallerAddress, amount); err != nil {
		return errorResponse(c, err)
	}
	project, err := s.projects.GetProject(id)
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(fiber.Map{"status": project.Status})
}

type setStatusRequest struct {
	CallerAddress string `json:"caller_address" validate:"required"`
	Status        string `json:"status" validate:"required,oneof=staging ready paused delisted"`
}

func (s *APIServer) handleSetStatus(c *fiber.Ctx) error {
	id, err := s.projectID(c)
	if err != nil {
		return errorResponse(c, err)
	}
	var req setStatusRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if err := s.validate.Struct(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	status, err := s.projects.SetStatus(id, req.CallerAddress, models.ProjectStatus(req.Status))
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(fiber.Map{"status": status})
}

type updateMetadataRequest struct {
	CallerAddress string      `json:"caller_address" validate:"required"`
	Metadata      models.JSON `json:"metadata" validate:"required"`
}

func (s *APIServer) handleUpdateMetadata(c *fiber.Ctx) error {
	id, err := s.projectID(c)
	if err != nil {
		return errorResponse(c, err)
	}
	var req updateMetadataRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if err := s.validate.Struct(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	if err := s.projects.UpdateMetadata(id, req.CallerAddress, req.Metadata); err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(fiber.Map{"success": true})
}

type callerRequest struct {
	CallerAddress string `json:"caller_address" validate:"required"`
}

func (s *APIServer) handleEndProject(c *fiber.Ctx) error {
	id, err := s.projectID(c)
	if err != nil {
		return errorResponse(c, err)
	}
	var req callerRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if err := s.validate.Struct(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	if err := s.projects.EndProjectNow(id, req.CallerAddress); err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(fiber.Map{"success": true})
}

// Pools

func (s *APIServer) handleGetPool(c *fiber.Ctx) error {
	pool, err := s.pools.GetPool(c.Params("address"))
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(pool)
}

func (s *APIServer) handlePoolVersion(c *fiber.Ctx) error {
	version, err := s.factory.PoolVersionOf(c.Params("address"))
	if err != nil {
		return errorResponse(c, err)
	}
	if version == nil {
		return c.JSON(fiber.Map{"registered": false})
	}
	return c.JSON(fiber.Map{
		"registered": true,
		"version":    version.Version,
		"variant":    version.Variant,
		"project_id": version.ProjectID,
	})
}

func (s *APIServer) handleGetStake(c *fiber.Ctx) error {
	stake, err := s.pools.GetUserStake(c.Params("address"), c.Params("user"))
	if err != nil {
		return errorResponse(c, err)
	}
	if stake == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "no stake for user"})
	}
	return c.JSON(stake)
}

func (s *APIServer) handlePendingReward(c *fiber.Ctx) error {
	pending, err := s.pools.PendingReward(c.Params("address"), c.Params("user"))
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(fiber.Map{"pending_reward": pending.String()})
}

type stakeRequest struct {
	UserAddress string `json:"user_address" validate:"required"`
	Amount      string `json:"amount"`
}

func (s *APIServer) handleDeposit(c *fiber.Ctx) error {
	var req stakeRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if err := s.validate.Struct(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	// A missing amount means a zero deposit, which checkpoints without staking.
	amount := big.NewInt(0)
	if req.Amount != "" {
		var err error
		amount, err = parseAmount(req.Amount)
		if err != nil {
			return errorResponse(c, err)
		}
	}

	if err := s.pools.Deposit(c.Params("address"), req.UserAddress, amount); err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(fiber.Map{"success": true})
}

func (s *APIServer) handleWithdraw(c *fiber.Ctx) error {
	var req stakeRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if err := s.validate.Struct(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		return errorResponse(c, err)
	}

	if err := s.pools.Withdraw(c.Params("address"), req.UserAddress, amount); err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(fiber.Map{"success": true})
}

type userRequest struct {
	UserAddress string `json:"user_address" validate:"required"`
}

func (s *APIServer) handleClaim(c *fiber.Ctx) error {
	var req userRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if err := s.validate.Struct(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	claimed, err := s.pools.ClaimReward(c.Params("address"), req.UserAddress)
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(fiber.Map{"claimed": claimed.String()})
}

func (s *APIServer) handleEmergencyWithdraw(c *fiber.Ctx) error {
	var req userRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if err := s.validate.Struct(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	returned, err := s.pools.EmergencyWithdraw(c.Params("address"), req.UserAddress)
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(fiber.Map{"returned": returned.String()})
}

type amountUpdateRequest struct {
	CallerAddress string `json:"caller_address" validate:"required"`
	Amount        string `json:"amount" validate:"required"`
}

func (s *APIServer) handleUpdateMinStake(c *fiber.Ctx) error {
	var req amountUpdateRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if err := s.validate.Struct(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		return errorResponse(c, err)
	}

	if err := s.pools.UpdateMinStakeAmount(c.Params("address"), req.CallerAddress, amount); err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(fiber.Map{"success": true})
}

type userLimitRequest struct {
	CallerAddress string `json:"caller_address" validate:"required"`
	HasUserLimit  bool   `json:"has_user_limit"`
	Limit         string `json:"limit"`
}

func (s *APIServer) handleUpdateUserLimit(c *fiber.Ctx) error {
	var req userLimitRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if err := s.validate.Struct(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	limit, err := parseOptionalAmount(req.Limit)
	if err != nil {
		return errorResponse(c, err)
	}

	if err := s.pools.UpdatePoolLimitPerUser(c.Params("address"), req.CallerAddress, req.HasUserLimit, limit); err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(fiber.Map{"success": true})
}

type rewardRateRequest struct {
	CallerAddress   string `json:"caller_address" validate:"required"`
	RewardPerSecond string `json:"reward_per_second" validate:"required"`
}

func (s *APIServer) handleUpdateRewardRate(c *fiber.Ctx) error {
	var req rewardRateRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if err := s.validate.Struct(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	rate, err := parseAmount(req.RewardPerSecond)
	if err != nil {
		return errorResponse(c, err)
	}

	if err := s.pools.UpdateRewardPerSecond(c.Params("address"), req.CallerAddress, rate); err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(fiber.Map{"success": true})
}

func (s *APIServer) handleStopReward(c *fiber.Ctx) error {
	var req callerRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if err := s.validate.Struct(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	if err := s.pools.StopReward(c.Params("address"), req.CallerAddress); err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(fiber.Map{"success": true})
}

type recoverTokensRequest struct {
	CallerAddress string `json:"caller_address" validate:"required"`
	Asset         string `json:"asset" validate:"required"`
	Amount        string `json:"amount" validate:"required"`
}

func (s *APIServer) handleRecoverTokens(c *fiber.Ctx) error {
	var req recoverTokensRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if err := s.validate.Struct(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		return errorResponse(c, err)
	}

	if err := s.pools.RecoverWrongTokens(c.Params("address"), req.CallerAddress, req.Asset, amount); err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(fiber.Map{"success": true})
}

func (s *APIServer) handleWithdrawRemaining(c *fiber.Ctx) error {
	var req callerRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if err := s.validate.Struct(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	swept, err := s.pools.WithdrawRemainingRewards(c.Params("address"), req.CallerAddress)
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(fiber.Map{"swept": swept.String()})
}
