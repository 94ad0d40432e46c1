package services

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BulbaSwap/launch-pool/internal/ledger"
	"github.com/BulbaSwap/launch-pool/internal/models"
)

func TestCreateProject(t *testing.T) {
	t.Run("creates a staging project", func(t *testing.T) {
		env := newTestEnv(t)
		project := env.createProject(t, 1000)

		assert.Equal(t, models.ProjectStatusStaging, project.Status)
		assert.Equal(t, testStart, project.StartTime)
		assert.Equal(t, testEnd, project.EndTime)
		assert.Equal(t, int64(1000), project.TotalRewardAmount.Big().Int64())
		assert.Equal(t, 0, project.FundedPoolCount)
	})

	t.Run("allocates monotonically increasing ids", func(t *testing.T) {
		env := newTestEnv(t)
		first := env.createProject(t, 1000)
		second := env.createProject(t, 2000)
		assert.Greater(t, second.ID, first.ID)
	})

	t.Run("rejects an empty window", func(t *testing.T) {
		env := newTestEnv(t)
		_, err := env.factory.CreateProject(CreateProjectParams{
			OwnerAddress:      testOwner,
			RewardAsset:       testRewardAsset,
			TotalRewardAmount: big.NewInt(1000),
			StartTime:         2000,
			EndTime:           2000,
		})
		assert.ErrorIs(t, err, ErrInvalidWindow)
	})

	t.Run("rejects zero reward amount", func(t *testing.T) {
		env := newTestEnv(t)
		_, err := env.factory.CreateProject(CreateProjectParams{
			OwnerAddress:      testOwner,
			RewardAsset:       testRewardAsset,
			TotalRewardAmount: big.NewInt(0),
			StartTime:         testStart,
			EndTime:           testEnd,
		})
		assert.ErrorIs(t, err, ErrInvalidAmount)
	})

	t.Run("rejects invalid owner address", func(t *testing.T) {
		env := newTestEnv(t)
		_, err := env.factory.CreateProject(CreateProjectParams{
			OwnerAddress:      "not-an-address",
			RewardAsset:       testRewardAsset,
			TotalRewardAmount: big.NewInt(1000),
			StartTime:         testStart,
			EndTime:           testEnd,
		})
		assert.ErrorIs(t, err, ErrInvalidAddress)
	})

	t.Run("rejects reward decimals at the precision ceiling", func(t *testing.T) {
		env := newTestEnv(t)
		_, err := env.factory.CreateProject(CreateProjectParams{
			OwnerAddress:        testOwner,
			RewardAsset:         testRewardAsset,
			RewardAssetDecimals: 30,
			TotalRewardAmount:   big.NewInt(1000),
			StartTime:           testStart,
			EndTime:             testEnd,
		})
		assert.Error(t, err)
	})

	t.Run("enforces max projects per owner", func(t *testing.T) {
		env := newTestEnv(t)
		require.NoError(t, env.factory.UpdatePolicy(1, 0, models.PoolVariantStandard, 1))

		env.createProject(t, 1000)
		_, err := env.factory.CreateProject(CreateProjectParams{
			OwnerAddress:      testOwner,
			RewardAsset:       testRewardAsset,
			TotalRewardAmount: big.NewInt(1000),
			StartTime:         testStart,
			EndTime:           testEnd,
		})
		assert.ErrorIs(t, err, ErrOwnerProjectLimit)

		// A different owner is unaffected.
		_, err = env.factory.CreateProject(CreateProjectParams{
			OwnerAddress:      testUserA,
			RewardAsset:       testRewardAsset,
			TotalRewardAmount: big.NewInt(1000),
			StartTime:         testStart,
			EndTime:           testEnd,
		})
		assert.NoError(t, err)
	})

	t.Run("enforces min project interval", func(t *testing.T) {
		env := newTestEnv(t)
		require.NoError(t, env.factory.UpdatePolicy(0, 3600, models.PoolVariantStandard, 1))

		env.createProject(t, 1000)
		_, err := env.factory.CreateProject(CreateProjectParams{
			OwnerAddress:      testOwner,
			RewardAsset:       testRewardAsset,
			TotalRewardAmount: big.NewInt(1000),
			StartTime:         testStart,
			EndTime:           testEnd,
		})
		assert.ErrorIs(t, err, ErrOwnerTooFrequent)
	})
}

func TestAddPool(t *testing.T) {
	t.Run("derives a verifiable deterministic address", func(t *testing.T) {
		env := newTestEnv(t)
		project := env.createProject(t, 3600)
		pool := env.addPool(t, project.ID, 3600)

		expected := env.factory.DerivePoolAddress(project.ID, testStakedAsset, testRewardAsset, testStart, 0)
		assert.Equal(t, expected, pool.Address)
		assert.Equal(t, testStart, pool.LastRewardTime)
		assert.Equal(t, 0, pool.PoolIndex)
		assert.False(t, pool.Funded)
	})

	t.Run("identical parameters do not collide", func(t *testing.T) {
		env := newTestEnv(t)
		project := env.createProject(t, 7200)
		first := env.addPool(t, project.ID, 3600)
		second := env.addPool(t, project.ID, 3600)
		assert.NotEqual(t, first.Address, second.Address)
		assert.Equal(t, 1, second.PoolIndex)
	})

	t.Run("records a version tag with reverse lookup", func(t *testing.T) {
		env := newTestEnv(t)
		require.NoError(t, env.factory.UpdatePolicy(0, 0, models.PoolVariantUpgradeable, 3))
		project := env.createProject(t, 3600)
		pool := env.addPool(t, project.ID, 3600)

		version, err := env.factory.PoolVersionOf(pool.Address)
		require.NoError(t, err)
		require.NotNil(t, version)
		assert.Equal(t, uint(3), version.Version)
		assert.Equal(t, models.PoolVariantUpgradeable, version.Variant)
		assert.Equal(t, uint64(0), version.Nonce)
	})

	t.Run("reverse lookup of a foreign address returns nil", func(t *testing.T) {
		env := newTestEnv(t)
		version, err := env.factory.PoolVersionOf(testUserA)
		require.NoError(t, err)
		assert.Nil(t, version)
	})

	t.Run("computes the reward rate with ceiling division", func(t *testing.T) {
		env := newTestEnv(t)
		project := env.createProject(t, 3601)
		pool := env.addPool(t, project.ID, 3601) // 3601 over 3600s
		assert.Equal(t, int64(2), pool.RewardPerSecond.Big().Int64())
	})

	t.Run("rejects staked asset equal to reward asset", func(t *testing.T) {
		env := newTestEnv(t)
		project := env.createProject(t, 3600)
		_, err := env.factory.AddPool(AddPoolParams{
			ProjectID:        project.ID,
			CallerAddress:    testOwner,
			StakedAsset:      testRewardAsset,
			PoolRewardAmount: big.NewInt(3600),
		})
		assert.ErrorIs(t, err, ErrAssetMismatch)
	})

	t.Run("native sentinel is exempt from the asset check", func(t *testing.T) {
		env := newTestEnv(t)
		project, err := env.factory.CreateProject(CreateProjectParams{
			OwnerAddress:      testOwner,
			RewardAsset:       ledger.NativeAsset,
			TotalRewardAmount: big.NewInt(3600),
			StartTime:         testStart,
			EndTime:           testEnd,
		})
		require.NoError(t, err)

		_, err = env.factory.AddPool(AddPoolParams{
			ProjectID:        project.ID,
			CallerAddress:    testOwner,
			StakedAsset:      ledger.NativeAsset,
			PoolRewardAmount: big.NewInt(3600),
		})
		assert.NoError(t, err)
	})

	t.Run("rejects non-owner", func(t *testing.T) {
		env := newTestEnv(t)
		project := env.createProject(t, 3600)
		_, err := env.factory.AddPool(AddPoolParams{
			ProjectID:        project.ID,
			CallerAddress:    testUserA,
			StakedAsset:      testStakedAsset,
			PoolRewardAmount: big.NewInt(3600),
		})
		assert.ErrorIs(t, err, ErrUnauthorized)
	})

	t.Run("rejects pool additions after staging", func(t *testing.T) {
		env := newTestEnv(t)
		project, _ := env.readyProject(t, 3600)
		_, err := env.factory.AddPool(AddPoolParams{
			ProjectID:        project.ID,
			CallerAddress:    testOwner,
			StakedAsset:      testStakedAsset,
			PoolRewardAmount: big.NewInt(100),
		})
		assert.ErrorIs(t, err, ErrInvalidStatus)
	})

	t.Run("user limit must be positive when enabled", func(t *testing.T) {
		env := newTestEnv(t)
		project := env.createProject(t, 3600)
		_, err := env.factory.AddPool(AddPoolParams{
			ProjectID:        project.ID,
			CallerAddress:    testOwner,
			StakedAsset:      testStakedAsset,
			PoolRewardAmount: big.NewInt(3600),
			HasUserLimit:     true,
		})
		assert.ErrorIs(t, err, ErrInvalidAmount)
	})
}
