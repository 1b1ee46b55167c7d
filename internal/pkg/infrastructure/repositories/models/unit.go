package models

import (
	"time"
)

//UnitStatusOnline is the status reported by a unit that is up and listening
const UnitStatusOnline = "online"

//Default values applied to units that are created without an explicit value
const (
	DefaultBattery        = 100
	DefaultSignalStrength = "Strong"
	DefaultThreshold      = 0.5
)

//Unit is the database model for a physical sensing device
type Unit struct {
	ID             string     `gorm:"primaryKey" json:"id"`
	Latitude       float64    `json:"latitude"`
	Longitude      float64    `json:"longitude"`
	Status         string     `gorm:"not null" json:"status"`
	Battery        int        `gorm:"not null;default:100" json:"battery"`
	SignalStrength string     `gorm:"not null" json:"signal_strength"`
	Threshold      float64    `gorm:"not null;default:0.5" json:"threshold"`
	LastSeen       *time.Time `json:"last_seen"`
}

//IsOnline returns true if the unit reports itself as online
func (u Unit) IsOnline() bool {
	return u.Status == UnitStatusOnline
}

//HasLowBattery returns true when the battery level warrants operator attention
func (u Unit) HasLowBattery() bool {
	return u.Battery < 20
}

//NewUnit creates a unit at the given position with all defaults applied
func NewUnit(id string, latitude, longitude float64) *Unit {
	return &Unit{
		ID:             id,
		Latitude:       latitude,
		Longitude:      longitude,
		Status:         UnitStatusOnline,
		Battery:        DefaultBattery,
		SignalStrength: DefaultSignalStrength,
		Threshold:      DefaultThreshold,
	}
}

//Heartbeat is the periodic self report a unit sends while it is powered
type Heartbeat struct {
	Battery        int       `json:"battery"`
	SignalStrength string    `json:"signal_strength"`
	Status         string    `json:"status"`
	SeenAt         time.Time `json:"-"`
}

//PresetUnits returns the demonstration units that are seeded into an empty registry
func PresetUnits() []Unit {
	return []Unit{
		*NewUnit("unit-kyoto-01", 35.0116, 135.7681),
		*NewUnit("unit-kyoto-02", 35.0000, 135.7500),
		*NewUnit("unit-osaka-01", 34.6937, 135.5023),
		*NewUnit("unit-kobe-01", 34.6901, 135.1955),
	}
}
