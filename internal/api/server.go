package api

import (
	"errors"
	"fmt"
	"net"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"go.uber.org/zap"

	"github.com/BulbaSwap/launch-pool/internal/ledger"
	"github.com/BulbaSwap/launch-pool/internal/services"
)

// APIServer exposes the engine over HTTP: read endpoints for indexers and
// operation endpoints that carry the acting identity explicitly in the body.
type APIServer struct {
	app      *fiber.App
	validate *validator.Validate
	logger   *zap.Logger

	factory  services.FactoryService
	projects services.ProjectService
	pools    services.PoolService
	events   services.EventService
}

func NewAPIServer(factory services.FactoryService, projects services.ProjectService, pools services.PoolService, events services.EventService, logger *zap.Logger) *APIServer {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
	})

	// Add middleware
	app.Use(cors.New())
	app.Use(fiberlogger.New(fiberlogger.Config{
		Format:     "[${time}] ${status} - ${latency} ${method} ${path}\n",
		TimeFormat: "15:04:05",
		TimeZone:   "Local",
	}))

	server := &APIServer{
		app:      app,
		validate: validator.New(),
		logger:   logger,
		factory:  factory,
		projects: projects,
		pools:    pools,
		events:   events,
	}
	server.setupRoutes()
	return server
}

func (s *APIServer) setupRoutes() {
	apiGroup := s.app.Group("/api")

	// Projects
	apiGroup.Get("/projects", s.handleListProjects)
	apiGroup.Post("/projects", s.handleCreateProject)
	apiGroup.Get("/projects/:id", s.handleGetProject)
	apiGroup.Get("/projects/:id/status", s.handleProjectStatus)
	apiGroup.Get("/projects/:id/pools", s.handleProjectPools)
	apiGroup.Get("/projects/:id/events", s.handleProjectEvents)
	apiGroup.Post("/projects/:id/pools", s.handleAddPool)
	apiGroup.Post("/projects/:id/fund", s.handleFundPool)
	apiGroup.Post("/projects/:id/status", s.handleSetStatus)
	apiGroup.Post("/projects/:id/metadata", s.handleUpdateMetadata)
	apiGroup.Post("/projects/:id/end", s.handleEndProject)

	// Pools
	apiGroup.Get("/pools/:address", s.handleGetPool)
	apiGroup.Get("/pools/:address/version", s.handlePoolVersion)
	apiGroup.Get("/pools/:address/stakes/:user", s.handleGetStake)
	apiGroup.Get("/pools/:address/pending/:user", s.handlePendingReward)
	apiGroup.Post("/pools/:address/deposit", s.handleDeposit)
	apiGroup.Post("/pools/:address/withdraw", s.handleWithdraw)
	apiGroup.Post("/pools/:address/claim", s.handleClaim)
	apiGroup.Post("/pools/:address/emergency-withdraw", s.handleEmergencyWithdraw)
	apiGroup.Post("/pools/:address/min-stake", s.handleUpdateMinStake)
	apiGroup.Post("/pools/:address/user-limit", s.handleUpdateUserLimit)
	apiGroup.Post("/pools/:address/reward-rate", s.handleUpdateRewardRate)
	apiGroup.Post("/pools/:address/stop-reward", s.handleStopReward)
	apiGroup.Post("/pools/:address/recover", s.handleRecoverTokens)
	apiGroup.Post("/pools/:address/withdraw-remaining", s.handleWithdrawRemaining)
}

// Start begins serving on the given port. Pass 0 to pick a free port; the
// chosen port is returned.
func (s *APIServer) Start(port int) (int, error) {
	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return 0, fmt.Errorf("failed to listen on port %d: %w", port, err)
	}

	go func() {
		if err := s.app.Listener(listener); err != nil {
			s.logger.Error("api server stopped", zap.Error(err))
		}
	}()
	return listener.Addr().(*net.TCPAddr).Port, nil
}

func (s *APIServer) Shutdown() error {
	return s.app.Shutdown()
}

// App exposes the fiber application for tests.
func (s *APIServer) App() *fiber.App {
	return s.app
}

// statusFor maps engine errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, services.ErrProjectNotFound),
		errors.Is(err, services.ErrPoolNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, services.ErrUnauthorized):
		return fiber.StatusForbidden
	case errors.Is(err, services.ErrInvalidStatus),
		errors.Is(err, services.ErrInvalidTransition),
		errors.Is(err, services.ErrReentrantCall),
		errors.Is(err, services.ErrAlreadyFunded),
		errors.Is(err, services.ErrNotFunded),
		errors.Is(err, services.ErrNothingToWithdraw):
		return fiber.StatusConflict
	case errors.Is(err, services.ErrInvalidAddress),
		errors.Is(err, services.ErrInvalidAmount),
		errors.Is(err, services.ErrInvalidWindow),
		errors.Is(err, services.ErrAmountBelowMinimum),
		errors.Is(err, services.ErrAboveUserLimit),
		errors.Is(err, services.ErrAmountMismatch),
		errors.Is(err, services.ErrAssetMismatch),
		errors.Is(err, services.ErrOwnerProjectLimit),
		errors.Is(err, services.ErrOwnerTooFrequent),
		errors.Is(err, ledger.ErrInsufficientBalance),
		errors.Is(err, ledger.ErrInvalidAmount):
		return fiber.StatusBadRequest
	default:
		return fiber.StatusInternalServerError
	}
}

func errorResponse(c *fiber.Ctx, err error) error {
	return c.Status(statusFor(err)).JSON(fiber.Map{"error": err.Error()})
}
