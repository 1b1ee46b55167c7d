package dashboard

import (
	"context"
	"fmt"
	"sync"

	"github.com/tahought/DisasterSoundManager/internal/pkg/infrastructure/changefeed"
	"github.com/tahought/DisasterSoundManager/internal/pkg/infrastructure/logging"
	"github.com/tahought/DisasterSoundManager/internal/pkg/infrastructure/metrics"
	"github.com/tahought/DisasterSoundManager/internal/pkg/infrastructure/repositories/database"
	"github.com/tahought/DisasterSoundManager/internal/pkg/infrastructure/repositories/models"
)

//FeedCapacity is the number of most recent incidents kept in the feed
const FeedCapacity = 50

//FeedView mirrors the most recent incidents, newest first, and keeps them current from the change feed
type FeedView struct {
	db       database.Datastore
	log      logging.Logger
	listener ChangeListener

	mu        sync.Mutex
	incidents []models.Incident
}

//NewFeedView creates an empty feed. Call Load or Mount to fill it.
func NewFeedView(db database.Datastore, log logging.Logger) *FeedView {
	return &FeedView{db: db, log: log, incidents: []models.Incident{}}
}

//Load replaces the local collection with the latest FeedCapacity incidents
func (v *FeedView) Load() error {
	incidents, err := v.db.GetLatestIncidents(FeedCapacity)
	if err != nil {
		metrics.ViewRefreshErrors.WithLabelValues(ViewFeed).Inc()
		return fmt.Errorf("failed to load incident feed: %w", err)
	}

	v.mu.Lock()
	v.incidents = incidents
	v.mu.Unlock()

	v.changed()
	return nil
}

//Mount subscribes to incident inserts and updates, loads the initial snapshot and keeps merging
//events until ctx is done. A failing snapshot is logged and leaves the feed empty.
func (v *FeedView) Mount(ctx context.Context, feed changefeed.Subscriber) error {
	sub, err := feed.Subscribe(ctx, changefeed.TableIncidents, changefeed.Insert, changefeed.Update)
	if err != nil {
		return err
	}

	if err = v.Load(); err != nil {
		v.log.Errorf("%s", err.Error())
	}

	go consume(ctx, sub, func(event changefeed.Event) { v.Apply(event) })

	return nil
}

//Apply merges a single change event and reports whether the local collection changed
func (v *FeedView) Apply(event changefeed.Event) bool {
	if event.Table != changefeed.TableIncidents {
		return false
	}

	incident := models.Incident{}

	switch event.Kind {
	case changefeed.Insert:
		if err := event.DecodeNew(&incident); err != nil {
			v.log.Errorf("Failed to decode inserted incident: %s", err.Error())
			return false
		}
		return v.Insert(incident)
	case changefeed.Update:
		if err := event.DecodeNew(&incident); err != nil {
			v.log.Errorf("Failed to decode updated incident: %s", err.Error())
			return false
		}
		return v.Update(incident)
	}

	return false
}

//Insert prepends an incident that is not already present and evicts the oldest entries beyond FeedCapacity
func (v *FeedView) Insert(incident models.Incident) bool {
	v.mu.Lock()
	merged, changed := MergeInsert(v.incidents, incident, FeedCapacity)
	v.incidents = merged
	v.mu.Unlock()

	v.record(changefeed.Insert, changed, "duplicate")
	return changed
}

//Update replaces an incident in place. Incidents outside the local window are ignored.
func (v *FeedView) Update(incident models.Incident) bool {
	v.mu.Lock()
	merged, changed := MergeUpdate(v.incidents, incident)
	v.incidents = merged
	v.mu.Unlock()

	v.record(changefeed.Update, changed, "unknown_id")
	return changed
}

//Replace applies mutate to the local copy of incident id ahead of any remote confirmation
func (v *FeedView) Replace(id string, mutate func(*models.Incident)) bool {
	v.mu.Lock()
	found := false
	for i := range v.incidents {
		if v.incidents[i].ID == id {
			updated := v.incidents[i]
			mutate(&updated)
			v.incidents = replaceAt(v.incidents, i, updated)
			found = true
			break
		}
	}
	v.mu.Unlock()

	if found {
		v.changed()
	}
	return found
}

//Snapshot returns a copy of the feed, newest first
func (v *FeedView) Snapshot() []models.Incident {
	v.mu.Lock()
	defer v.mu.Unlock()

	snapshot := make([]models.Incident, len(v.incidents))
	copy(snapshot, v.incidents)
	return snapshot
}

//OnChange registers the listener that is told whenever the feed changes
func (v *FeedView) OnChange(listener ChangeListener) {
	v.listener = listener
}

func (v *FeedView) record(kind changefeed.EventKind, changed bool, reason string) {
	if !changed {
		metrics.FeedEventsDropped.WithLabelValues(ViewFeed, reason).Inc()
		return
	}

	metrics.FeedEventsMerged.WithLabelValues(ViewFeed, changefeed.TableIncidents, string(kind)).Inc()
	v.changed()
}

func (v *FeedView) changed() {
	if v.listener != nil {
		v.listener(ViewFeed)
	}
}

//MergeInsert returns incidents with incident prepended, truncated to capacity.
//The input is returned unchanged when an incident with the same id is already present.
func MergeInsert(incidents []models.Incident, incident models.Incident, capacity int) ([]models.Incident, bool) {
	for _, existing := range incidents {
		if existing.ID == incident.ID {
			return incidents, false
		}
	}

	size := len(incidents) + 1
	if size > capacity {
		size = capacity
	}

	merged := make([]models.Incident, 0, size)
	merged = append(merged, incident)
	for _, existing := range incidents {
		if len(merged) == capacity {
			break
		}
		merged = append(merged, existing)
	}

	return merged, true
}

//MergeUpdate returns incidents with the entry matching incident.ID replaced in place.
//The input is returned unchanged when no entry has that id.
func MergeUpdate(incidents []models.Incident, incident models.Incident) ([]models.Incident, bool) {
	for i := range incidents {
		if incidents[i].ID == incident.ID {
			return replaceAt(incidents, i, incident), true
		}
	}

	return incidents, false
}

func replaceAt(incidents []models.Incident, i int, incident models.Incident) []models.Incident {
	replaced := make([]models.Incident, len(incidents))
	copy(replaced, incidents)
	replaced[i] = incident
	return replaced
}
