package services

import (
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/BulbaSwap/launch-pool/internal/models"
)

// EventService records observable events for external indexers. Events are
// append-only side-effect notifications; no engine code branches on them.
type EventService interface {
	Record(tx *gorm.DB, event models.Event) error
	ListByProject(projectID uint, skip, limit int) ([]models.Event, error)
	ListByPool(poolAddress string, skip, limit int) ([]models.Event, error)
}

type eventService struct {
	db *gorm.DB
}

func NewEventService(db *gorm.DB) EventService {
	return &eventService{db: db}
}

// Record appends an event within the caller's transaction so a rolled-back
// operation leaves no trace.
func (e *eventService) Record(tx *gorm.DB, event models.Event) error {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	return tx.Create(&event).Error
}

func (e *eventService) ListByProject(projectID uint, skip, limit int) ([]models.Event, error) {
	var events []models.Event
	err := e.db.Where("project_id = ?", projectID).
		Order("created_at ASC").
		Offset(skip).Limit(limit).
		Find(&events).Error
	return events, err
}

func (e *eventService) ListByPool(poolAddress string, skip, limit int) ([]models.Event, error) {
	var events []models.Event
	err := e.db.Where("pool_address = ?", poolAddress).
		Order("created_at ASC").
		Offset(skip).Limit(limit).
		Find(&events).Error
	return events, err
}
