package services

import (
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/BulbaSwap/launch-pool/internal/ledger"
	"github.com/BulbaSwap/launch-pool/internal/models"
)

const (
	testOwner       = "0x1000000000000000000000000000000000000001"
	testUserA       = "0x5000000000000000000000000000000000000005"
	testUserB       = "0x6000000000000000000000000000000000000006"
	testRewardAsset = "0x2000000000000000000000000000000000000002"
	testStakedAsset = "0x3000000000000000000000000000000000000003"
	testOtherAsset  = "0x4000000000000000000000000000000000000004"
)

// Window used by most fixtures: one hour starting at t=1000.
const (
	testStart = int64(1000)
	testEnd   = int64(4600)
)

type fakeClock struct {
	now int64
}

func (c *fakeClock) Now() time.Time {
	return time.Unix(c.now, 0)
}

type testEnv struct {
	db       *gorm.DB
	ledger   ledger.Ledger
	events   EventService
	clock    *fakeClock
	factory  *factoryService
	projects *projectService
	pools    *poolService
}

func newTestEnv(t *testing.T) *testEnv {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err, "Failed to connect to in-memory database")

	err = db.AutoMigrate(
		&models.Project{},
		&models.Pool{},
		&models.UserStake{},
		&models.PoolVersion{},
		&models.FactoryState{},
		&models.AccountBalance{},
		&models.Event{},
	)
	require.NoError(t, err, "Failed to run migrations")

	if testing.Verbose() {
		db = db.Debug()
	}

	l := ledger.NewLedger()
	events := NewEventService(db)
	clock := &fakeClock{now: 500}

	return &testEnv{
		db:       db,
		ledger:   l,
		events:   events,
		clock:    clock,
		factory:  &factoryService{db: db, events: events, now: clock.Now},
		projects: &projectService{db: db, ledger: l, events: events, logger: zap.NewNop(), now: clock.Now},
		pools: &poolService{
			db:     db,
			ledger: l,
			events: events,
			logger: zap.NewNop(),
			guard:  entryGuard{active: make(map[string]struct{})},
			now:    clock.Now,
		},
	}
}

// createProject opens a staging project over the standard test window with
// a 6-decimal reward asset.
func (e *testEnv) createProject(t *testing.T, totalReward int64) *models.Project {
	project, err := e.factory.CreateProject(CreateProjectParams{
		OwnerAddress:        testOwner,
		RewardAsset:         testRewardAsset,
		RewardAssetDecimals: 6,
		TotalRewardAmount:   big.NewInt(totalReward),
		StartTime:           testStart,
		EndTime:             testEnd,
		Metadata:            models.JSON{"name": "test project"},
	})
	require.NoError(t, err)
	return project
}

// addPool deploys one pool committing poolReward of the project's reward.
func (e *testEnv) addPool(t *testing.T, projectID uint, poolReward int64) *models.Pool {
	pool, err := e.factory.AddPool(AddPoolParams{
		ProjectID:        projectID,
		CallerAddress:    testOwner,
		StakedAsset:      testStakedAsset,
		PoolRewardAmount: big.NewInt(poolReward),
	})
	require.NoError(t, err)
	return pool
}

// fundPool mints the commitment to the owner and funds the pool with it.
func (e *testEnv) fundPool(t *testing.T, projectID uint, pool *models.Pool) {
	amount := pool.PoolRewardAmount.Big()
	require.NoError(t, e.ledger.Mint(e.db, testRewardAsset, testOwner, amount))
	require.NoError(t, e.projects.FundPool(projectID, pool.Address, testOwner, amount))
}

// readyProject builds the common fixture: one funded pool, project READY.
func (e *testEnv) readyProject(t *testing.T, totalReward int64) (*models.Project, *models.Pool) {
	project := e.createProject(t, totalReward)
	pool := e.addPool(t, project.ID, totalReward)
	e.fundPool(t, project.ID, pool)

	reloaded, err := e.projects.GetProject(project.ID)
	require.NoError(t, err)
	require.Equal(t, models.ProjectStatusReady, reloaded.Status)
	return reloaded, pool
}

// mintStake gives user some of the staked asset.
func (e *testEnv) mintStake(t *testing.T, user string, amount int64) {
	require.NoError(t, e.ledger.Mint(e.db, testStakedAsset, user, big.NewInt(amount)))
}

// setStoredStatus bypasses the state machine for gating-table tests.
func (e *testEnv) setStoredStatus(t *testing.T, projectID uint, status models.ProjectStatus) {
	require.NoError(t, e.db.Model(&models.Project{}).Where("id = ?", projectID).Update("status", status).Error)
}

func (e *testEnv) poolBalance(t *testing.T, asset, holder string) int64 {
	balance, err := e.ledger.BalanceOf(e.db, asset, holder)
	require.NoError(t, err)
	return balance.Int64()
}
