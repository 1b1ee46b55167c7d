package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

//Incident statuses an operator can move an incident between. No transition is forbidden.
const (
	IncidentStatusPending    = "pending"
	IncidentStatusInProgress = "in_progress"
	IncidentStatusResolved   = "resolved"
)

//The acoustic event labels known to the dashboard. Detectors may report other labels.
const (
	IncidentTypeSOS          = "SOS"
	IncidentTypeCollapse     = "collapse-sound"
	IncidentTypeScream       = "scream"
	IncidentTypeCrush        = "crush-sound"
	IncidentTypeAmbientSound = "ambient-sound"
)

//KnownIncidentTypes lists the known labels in the order they are charted
var KnownIncidentTypes = []string{
	IncidentTypeSOS,
	IncidentTypeCollapse,
	IncidentTypeScream,
	IncidentTypeCrush,
	IncidentTypeAmbientSound,
}

//IsKnownIncidentType returns true if label is one of KnownIncidentTypes
func IsKnownIncidentType(label string) bool {
	for _, t := range KnownIncidentTypes {
		if t == label {
			return true
		}
	}
	return false
}

//IsValidIncidentStatus returns true if status is one of the three triage states
func IsValidIncidentStatus(status string) bool {
	switch status {
	case IncidentStatusPending, IncidentStatusInProgress, IncidentStatusResolved:
		return true
	}
	return false
}

//Incident is the database model for one detected acoustic event
type Incident struct {
	ID         string    `gorm:"primaryKey" json:"id"`
	UnitID     string    `gorm:"not null;index" json:"unit_id"`
	Unit       *Unit     `gorm:"foreignKey:UnitID;references:ID" json:"-"`
	Type       string    `gorm:"not null" json:"type"`
	Confidence float64   `gorm:"not null" json:"confidence"`
	Status     string    `gorm:"not null;default:pending" json:"status"`
	AudioURL   *string   `json:"audio_url"`
	Latitude   float64   `json:"latitude"`
	Longitude  float64   `json:"longitude"`
	CreatedAt  time.Time `gorm:"index" json:"created_at"`
}

//BeforeCreate assigns a server side id to incidents that were created without one
func (i *Incident) BeforeCreate(tx *gorm.DB) error {
	if i.ID == "" {
		i.ID = uuid.NewString()
	}
	if i.Status == "" {
		i.Status = IncidentStatusPending
	}
	return nil
}

//HasAudio returns true if the incident carries a playable clip reference
func (i Incident) HasAudio() bool {
	return i.AudioURL != nil && *i.AudioURL != ""
}
