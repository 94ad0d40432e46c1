package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/BulbaSwap/launch-pool/internal/models"
	"github.com/BulbaSwap/launch-pool/internal/services"
)

func setupJob(t *testing.T) (*gorm.DB, *ProjectWindowJob, *int64) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.Project{}, &models.Event{}))

	now := int64(0)
	job := NewProjectWindowJob(db, services.NewEventService(db), zap.NewNop())
	job.now = func() time.Time { return time.Unix(now, 0) }
	return db, job, &now
}

func TestProjectWindowJob(t *testing.T) {
	db, job, now := setupJob(t)

	project := models.Project{
		OwnerAddress:      "0x1000000000000000000000000000000000000001",
		RewardAsset:       "0x2000000000000000000000000000000000000002",
		TotalRewardAmount: models.NewBigIntFromInt64(1000),
		StartTime:         1000,
		EndTime:           2000,
		Status:            models.ProjectStatusReady,
	}
	require.NoError(t, db.Create(&project).Error)

	countEvents := func() int64 {
		var count int64
		require.NoError(t, db.Model(&models.Event{}).Where("project_id = ?", project.ID).Count(&count).Error)
		return count
	}

	// Before the window: nothing to announce.
	*now = 500
	job.Execute()
	assert.Equal(t, int64(0), countEvents())

	// Window opened: exactly one event, idempotent across runs.
	*now = 1200
	job.Execute()
	job.Execute()
	assert.Equal(t, int64(1), countEvents())

	// Window closed: one more event.
	*now = 2500
	job.Execute()
	job.Execute()
	assert.Equal(t, int64(2), countEvents())
}

func TestProjectWindowJobSkipsNonReadyProjects(t *testing.T) {
	db, job, now := setupJob(t)

	project := models.Project{
		OwnerAddress:      "0x1000000000000000000000000000000000000001",
		RewardAsset:       "0x2000000000000000000000000000000000000002",
		TotalRewardAmount: models.NewBigIntFromInt64(1000),
		StartTime:         1000,
		EndTime:           2000,
		Status:            models.ProjectStatusPaused,
	}
	require.NoError(t, db.Create(&project).Error)

	*now = 1500
	job.Execute()

	var count int64
	require.NoError(t, db.Model(&models.Event{}).Count(&count).Error)
	assert.Equal(t, int64(0), count)
}
