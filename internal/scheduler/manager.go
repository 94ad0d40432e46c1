// Package scheduler runs the background job that announces project window
// crossings. The derived status is always computed live from the clock;
// these jobs only emit notification events for external indexers.
package scheduler

import (
	"time"

	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/BulbaSwap/launch-pool/internal/services"
)

// Manager owns the gocron scheduler and the registered jobs.
type Manager struct {
	scheduler gocron.Scheduler
	db        *gorm.DB
	events    services.EventService
	logger    *zap.Logger
	interval  time.Duration
}

func NewManager(db *gorm.DB, events services.EventService, logger *zap.Logger, interval time.Duration) (*Manager, error) {
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, err
	}
	return &Manager{
		scheduler: s,
		db:        db,
		events:    events,
		logger:    logger,
		interval:  interval,
	}, nil
}

// Start registers the window job and launches the scheduler.
func (m *Manager) Start() error {
	job := NewProjectWindowJob(m.db, m.events, m.logger)
	_, err := m.scheduler.NewJob(
		gocron.DurationJob(m.interval),
		gocron.NewTask(job.Execute),
		gocron.WithName(job.Name()),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return err
	}

	m.scheduler.Start()
	m.logger.Info("scheduler started", zap.Duration("interval", m.interval))
	return nil
}

// Stop shuts the scheduler down, waiting for a running job to finish.
func (m *Manager) Stop() error {
	return m.scheduler.Shutdown()
}
