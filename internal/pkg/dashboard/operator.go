package dashboard

import (
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/tahought/DisasterSoundManager/internal/pkg/infrastructure/logging"
	"github.com/tahought/DisasterSoundManager/internal/pkg/infrastructure/metrics"
	"github.com/tahought/DisasterSoundManager/internal/pkg/infrastructure/repositories/database"
	"github.com/tahought/DisasterSoundManager/internal/pkg/infrastructure/repositories/models"
)

//DemoAudioURL is the clip attached to injected incidents
const DemoAudioURL = "https://cdn.pixabay.com/download/audio/2022/03/15/audio_c8b82ecab8.mp3?filename=alert-33762.mp3"

//JitterSpan is the full width, in degrees, of the random offset applied to injected incident positions
const JitterSpan = 0.001

//Fallback position for custom units injected without one
const (
	DefaultCustomLatitude  = 35.0
	DefaultCustomLongitude = 135.7
)

//Errors returned for operator input that is out of range
var (
	ErrInvalidStatus          = errors.New("status must be one of pending, in_progress or resolved")
	ErrThresholdOutOfRange    = errors.New("threshold must be within [0,1]")
	ErrConfidenceOutOfRange   = errors.New("confidence must be within [0,1]")
	ErrUnknownPresetUnit      = errors.New("unknown preset unit")
	ErrMissingIncidentType    = errors.New("incident type is required")
	ErrIncidentDeletionFailed = errors.New("failed to delete the incidents of the unit, unit was kept")
)

//InjectMode selects where an injected incident's unit comes from
type InjectMode string

//Injection modes offered by the demo panel
const (
	InjectPreset InjectMode = "preset"
	InjectCustom InjectMode = "custom"
)

//InjectRequest describes a synthetic incident. In preset mode UnitID names one of the
//preset units. In custom mode a blank UnitID gets a random custom id and a nil position
//falls back to DefaultCustomLatitude/DefaultCustomLongitude.
type InjectRequest struct {
	Mode       InjectMode
	UnitID     string
	Latitude   *float64
	Longitude  *float64
	Type       string
	Confidence float64
}

//Operator performs the writes an operator can trigger. Every write is a single round trip to the
//datastore without queueing or retries.
type Operator struct {
	db    database.Datastore
	feed  *FeedView
	units *UnitsView
	log   logging.Logger

	randMu sync.Mutex
	rnd    *rand.Rand
}

//NewOperator creates an operator that applies optimistic updates to feed and units
func NewOperator(db database.Datastore, feed *FeedView, units *UnitsView, log logging.Logger) *Operator {
	return &Operator{
		db:    db,
		feed:  feed,
		units: units,
		log:   log,
		rnd:   rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

//WithRandSource replaces the source used for jitter and generated unit ids
func (o *Operator) WithRandSource(src rand.Source) *Operator {
	o.randMu.Lock()
	o.rnd = rand.New(src)
	o.randMu.Unlock()
	return o
}

//SetIncidentStatus sets the status of incident id without checking its previous status.
//The feed reflects the new status before the datastore has answered.
func (o *Operator) SetIncidentStatus(id, status string) (*models.Incident, error) {
	if !models.IsValidIncidentStatus(status) {
		return nil, ErrInvalidStatus
	}

	if o.feed != nil {
		o.feed.Replace(id, func(i *models.Incident) { i.Status = status })
	}

	incident, err := o.db.UpdateIncidentStatus(id, status)
	if err != nil {
		return nil, err
	}

	o.log.Infof("Incident %s set to %s", id, status)
	return incident, nil
}

//SetUnitThreshold stores a new detection threshold for unit id
func (o *Operator) SetUnitThreshold(id string, threshold float64) (*models.Unit, error) {
	if threshold < 0 || threshold > 1 {
		return nil, ErrThresholdOutOfRange
	}

	if o.units != nil {
		o.units.ReplaceThreshold(id, threshold)
	}

	return o.db.UpdateUnitThreshold(id, threshold)
}

//InjectIncident creates a synthetic pending incident, creating its unit first when it does not exist yet
func (o *Operator) InjectIncident(req InjectRequest) (*models.Incident, error) {
	if req.Type == "" {
		return nil, ErrMissingIncidentType
	}
	if req.Confidence < 0 || req.Confidence > 1 {
		return nil, ErrConfidenceOutOfRange
	}

	target, err := o.resolveTarget(req)
	if err != nil {
		return nil, err
	}

	unit, err := o.ensureUnit(target)
	if err != nil {
		return nil, err
	}

	o.log.Infof("Injecting %s incident for unit %s", req.Type, unit.ID)

	audioURL := DemoAudioURL
	incident, err := o.db.CreateIncident(&models.Incident{
		UnitID:     unit.ID,
		Type:       req.Type,
		Confidence: req.Confidence,
		Status:     models.IncidentStatusPending,
		AudioURL:   &audioURL,
		Latitude:   unit.Latitude + o.jitter(),
		Longitude:  unit.Longitude + o.jitter(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to inject incident: %w", err)
	}

	metrics.IncidentsInjected.Inc()
	return incident, nil
}

//DeleteUnit removes all incidents of unit id and then the unit itself. When the first step
//fails the unit is left in place.
func (o *Operator) DeleteUnit(id string) error {
	if _, err := o.db.GetUnitFromID(id); err != nil {
		return err
	}

	count, err := o.db.DeleteIncidentsForUnit(id)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrIncidentDeletionFailed, err.Error())
	}

	if err = o.db.DeleteUnit(id); err != nil {
		return err
	}

	o.log.Infof("Deleted unit %s and %d incidents", id, count)
	return nil
}

func (o *Operator) resolveTarget(req InjectRequest) (models.Unit, error) {
	if req.Mode == InjectCustom {
		id := req.UnitID
		if id == "" {
			id = fmt.Sprintf("custom-%d", o.intn(10000))
		}

		latitude, longitude := DefaultCustomLatitude, DefaultCustomLongitude
		if req.Latitude != nil && req.Longitude != nil {
			latitude, longitude = *req.Latitude, *req.Longitude
		}

		return *models.NewUnit(id, latitude, longitude), nil
	}

	for _, preset := range models.PresetUnits() {
		if preset.ID == req.UnitID {
			return preset, nil
		}
	}

	return models.Unit{}, fmt.Errorf("%w: %s", ErrUnknownPresetUnit, req.UnitID)
}

func (o *Operator) ensureUnit(target models.Unit) (*models.Unit, error) {
	unit, err := o.db.GetUnitFromID(target.ID)
	if err == nil {
		return unit, nil
	}

	if !errors.Is(err, database.ErrUnitNotFound) {
		return nil, err
	}

	o.log.Infof("Unit %s does not exist. Creating ...", target.ID)
	return o.db.CreateUnit(&target)
}

func (o *Operator) jitter() float64 {
	o.randMu.Lock()
	defer o.randMu.Unlock()
	return (o.rnd.Float64() - 0.5) * JitterSpan
}

func (o *Operator) intn(n int) int {
	o.randMu.Lock()
	defer o.randMu.Unlock()
	return o.rnd.Intn(n)
}
