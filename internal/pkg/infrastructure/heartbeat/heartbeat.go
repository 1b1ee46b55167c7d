//Package heartbeat applies the periodic self reports that units publish over MQTT
package heartbeat

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"

	"github.com/tahought/DisasterSoundManager/internal/pkg/infrastructure/logging"
	"github.com/tahought/DisasterSoundManager/internal/pkg/infrastructure/metrics"
	"github.com/tahought/DisasterSoundManager/internal/pkg/infrastructure/repositories/database"
	"github.com/tahought/DisasterSoundManager/internal/pkg/infrastructure/repositories/models"
)

//DefaultTopic is the subscription used when none is configured. The wildcard level carries the unit id.
const DefaultTopic = "units/+/heartbeat"

//ErrTopicMismatch is returned for messages whose topic does not carry a unit id where the pattern expects it
var ErrTopicMismatch = errors.New("topic does not match the heartbeat pattern")

//Store is the part of the datastore that heartbeats are written to
type Store interface {
	UpdateUnitHeartbeat(id string, heartbeat models.Heartbeat) (*models.Unit, error)
}

type payload struct {
	Battery        *int   `json:"battery" validate:"required,min=0,max=100"`
	SignalStrength string `json:"signal_strength" validate:"omitempty,oneof=Strong Medium Weak None"`
	Status         string `json:"status" validate:"omitempty,max=32"`
}

//Listener turns heartbeat messages into unit updates
type Listener struct {
	store    Store
	log      logging.Logger
	pattern  []string
	validate *validator.Validate
	now      func() time.Time
}

//NewListener creates a listener for messages published on topics matching pattern
func NewListener(store Store, pattern string, log logging.Logger) *Listener {
	if pattern == "" {
		pattern = DefaultTopic
	}

	return &Listener{
		store:    store,
		log:      log,
		pattern:  strings.Split(pattern, "/"),
		validate: validator.New(),
		now:      time.Now,
	}
}

//UnitID extracts the unit id from the topic level that the pattern's single level wildcard matches
func (l *Listener) UnitID(topic string) (string, error) {
	levels := strings.Split(topic, "/")
	if len(levels) != len(l.pattern) {
		return "", fmt.Errorf("%w: %s", ErrTopicMismatch, topic)
	}

	id := ""
	for i, level := range l.pattern {
		switch {
		case level == "+":
			if id == "" {
				id = levels[i]
			}
		case level != levels[i]:
			return "", fmt.Errorf("%w: %s", ErrTopicMismatch, topic)
		}
	}

	if id == "" {
		return "", fmt.Errorf("%w: %s", ErrTopicMismatch, topic)
	}

	return id, nil
}

//Handle decodes and validates a single heartbeat and stores it on the unit named by the topic.
//Heartbeats for units that are not registered are dropped.
func (l *Listener) Handle(topic string, body []byte) error {
	unitID, err := l.UnitID(topic)
	if err != nil {
		metrics.HeartbeatsReceived.WithLabelValues("bad_topic").Inc()
		return err
	}

	p := payload{}
	if err = json.Unmarshal(body, &p); err != nil {
		metrics.HeartbeatsReceived.WithLabelValues("invalid").Inc()
		return fmt.Errorf("failed to decode heartbeat from %s: %w", unitID, err)
	}

	if err = l.validate.Struct(p); err != nil {
		metrics.HeartbeatsReceived.WithLabelValues("invalid").Inc()
		return fmt.Errorf("invalid heartbeat from %s: %w", unitID, err)
	}

	_, err = l.store.UpdateUnitHeartbeat(unitID, models.Heartbeat{
		Battery:        *p.Battery,
		SignalStrength: p.SignalStrength,
		Status:         p.Status,
		SeenAt:         l.now(),
	})
	if err != nil {
		if errors.Is(err, database.ErrUnitNotFound) {
			metrics.HeartbeatsReceived.WithLabelValues("unknown_unit").Inc()
			l.log.Warnf("Dropping heartbeat from unregistered unit %s", unitID)
			return nil
		}

		metrics.HeartbeatsReceived.WithLabelValues("error").Inc()
		return fmt.Errorf("failed to store heartbeat from %s: %w", unitID, err)
	}

	metrics.HeartbeatsReceived.WithLabelValues("ok").Inc()
	l.log.Debugf("Heartbeat from %s: battery %d", unitID, *p.Battery)

	return nil
}
