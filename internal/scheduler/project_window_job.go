package scheduler

import (
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/BulbaSwap/launch-pool/internal/models"
	"github.com/BulbaSwap/launch-pool/internal/services"
)

// ProjectWindowJob emits a status-changed event once when a ready project's
// window opens and once when it closes. The notified flags keep the job
// idempotent across runs.
type ProjectWindowJob struct {
	db     *gorm.DB
	events services.EventService
	logger *zap.Logger
	now    func() time.Time
}

func NewProjectWindowJob(db *gorm.DB, events services.EventService, logger *zap.Logger) *ProjectWindowJob {
	return &ProjectWindowJob{db: db, events: events, logger: logger, now: time.Now}
}

func (j *ProjectWindowJob) Name() string {
	return "project-window-job"
}

func (j *ProjectWindowJob) Execute() {
	now := j.now().Unix()
	if err := j.announceActivated(now); err != nil {
		j.logger.Error("failed to announce activated projects", zap.Error(err))
	}
	if err := j.announceEnded(now); err != nil {
		j.logger.Error("failed to announce ended projects", zap.Error(err))
	}
}

func (j *ProjectWindowJob) announceActivated(now int64) error {
	var projects []models.Project
	err := j.db.Where("status = ? AND active_notified = ? AND start_time <= ? AND end_time > ?",
		models.ProjectStatusReady, false, now, now).Find(&projects).Error
	if err != nil {
		return err
	}

	for _, project := range projects {
		err := j.db.Transaction(func(tx *gorm.DB) error {
			if err := tx.Model(&models.Project{}).Where("id = ?", project.ID).
				Update("active_notified", true).Error; err != nil {
				return err
			}
			return j.events.Record(tx, models.Event{
				Type:      models.EventProjectStatusChanged,
				ProjectID: project.ID,
				Payload:   models.JSON{"from": string(models.DisplayStatusReady), "to": string(models.DisplayStatusActive), "derived": true},
			})
		})
		if err != nil {
			return err
		}
		j.logger.Info("project window opened", zap.Uint("project_id", project.ID))
	}
	return nil
}

func (j *ProjectWindowJob) announceEnded(now int64) error {
	var projects []models.Project
	err := j.db.Where("status = ? AND ended_notified = ? AND end_time <= ?",
		models.ProjectStatusReady, false, now).Find(&projects).Error
	if err != nil {
		return err
	}

	for _, project := range projects {
		err := j.db.Transaction(func(tx *gorm.DB) error {
			if err := tx.Model(&models.Project{}).Where("id = ?", project.ID).
				Updates(map[string]interface{}{"active_notified": true, "ended_notified": true}).Error; err != nil {
				return err
			}
			return j.events.Record(tx, models.Event{
				Type:      models.EventProjectStatusChanged,
				ProjectID: project.ID,
				Payload:   models.JSON{"from": string(models.DisplayStatusActive), "to": string(models.DisplayStatusEnded), "derived": true},
			})
		})
		if err != nil {
			return err
		}
		j.logger.Info("project window closed", zap.Uint("project_id", project.ID))
	}
	return nil
}
