package application

import (
	"context"
	"time"

	"github.com/tahought/DisasterSoundManager/internal/pkg/infrastructure/changefeed"
	"github.com/tahought/DisasterSoundManager/internal/pkg/infrastructure/logging"
	"github.com/tahought/DisasterSoundManager/internal/pkg/infrastructure/repositories/models"
)

//Topics that incident notifications are published on
const (
	TopicIncidentCreated       = "incident.created"
	TopicIncidentStatusChanged = "incident.statusChanged"
)

//IncidentCreated is published when a new incident has been stored
type IncidentCreated struct {
	IncidentID string    `json:"incidentId"`
	UnitID     string    `json:"unitId"`
	Type       string    `json:"type"`
	Confidence float64   `json:"confidence"`
	Latitude   float64   `json:"latitude"`
	Longitude  float64   `json:"longitude"`
	Timestamp  time.Time `json:"timestamp"`
}

//ContentType returns the content type for this message
func (m *IncidentCreated) ContentType() string {
	return "application/json"
}

//TopicName returns the name of the topic this message is published on
func (m *IncidentCreated) TopicName() string {
	return TopicIncidentCreated
}

//IncidentStatusChanged is published when an operator moved an incident to another status
type IncidentStatusChanged struct {
	IncidentID string    `json:"incidentId"`
	UnitID     string    `json:"unitId"`
	Previous   string    `json:"previous"`
	Status     string    `json:"status"`
	Timestamp  time.Time `json:"timestamp"`
}

//ContentType returns the content type for this message
func (m *IncidentStatusChanged) ContentType() string {
	return "application/json"
}

//TopicName returns the name of the topic this message is published on
func (m *IncidentStatusChanged) TopicName() string {
	return TopicIncidentStatusChanged
}

type incidentNotifier struct {
	messenger MessagingContext
	log       logging.Logger
}

func newIncidentNotifier(messenger MessagingContext, log logging.Logger) *incidentNotifier {
	return &incidentNotifier{messenger: messenger, log: log}
}

func (n *incidentNotifier) Mount(ctx context.Context, feed changefeed.Subscriber) error {
	sub, err := feed.Subscribe(ctx, changefeed.TableIncidents, changefeed.Insert, changefeed.Update)
	if err != nil {
		return err
	}

	go func() {
		defer sub.Unsubscribe()

		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-sub.Events:
				if !ok {
					return
				}
				n.handle(event)
			}
		}
	}()

	return nil
}

func (n *incidentNotifier) handle(event changefeed.Event) {
	current := models.Incident{}
	if err := event.DecodeNew(&current); err != nil {
		n.log.Errorf("Failed to decode incident for notification: %s", err.Error())
		return
	}

	var err error

	switch event.Kind {
	case changefeed.Insert:
		err = n.messenger.PublishOnTopic(&IncidentCreated{
			IncidentID: current.ID,
			UnitID:     current.UnitID,
			Type:       current.Type,
			Confidence: current.Confidence,
			Latitude:   current.Latitude,
			Longitude:  current.Longitude,
			Timestamp:  current.CreatedAt,
		})
	case changefeed.Update:
		previous := models.Incident{}
		if decodeErr := event.DecodeOld(&previous); decodeErr == nil && previous.Status == current.Status {
			return
		}

		err = n.messenger.PublishOnTopic(&IncidentStatusChanged{
			IncidentID: current.ID,
			UnitID:     current.UnitID,
			Previous:   previous.Status,
			Status:     current.Status,
			Timestamp:  event.CommittedAt,
		})
	}

	if err != nil {
		n.log.Errorf("Failed to publish notification for incident %s: %s", current.ID, err.Error())
	}
}
