package dashboard

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/tahought/DisasterSoundManager/internal/pkg/infrastructure/changefeed"
	"github.com/tahought/DisasterSoundManager/internal/pkg/infrastructure/logging"
	"github.com/tahought/DisasterSoundManager/internal/pkg/infrastructure/metrics"
	"github.com/tahought/DisasterSoundManager/internal/pkg/infrastructure/repositories/database"
	"github.com/tahought/DisasterSoundManager/internal/pkg/infrastructure/repositories/models"
)

const (
	//RecentWindow is how long an incident keeps its unit's marker pinging
	RecentWindow = 5 * time.Minute
	//MapRefreshInterval is the period of the requery that lets pings expire
	MapRefreshInterval = time.Minute
	//RecenterZoom is the zoom level the map flies to when a new incident arrives
	RecenterZoom = 13
)

//Marker is a unit as drawn on the map
type Marker struct {
	Unit           models.Unit      `json:"unit"`
	Pinging        bool             `json:"pinging"`
	RecentIncident *models.Incident `json:"recent_incident,omitempty"`
}

//Recenter is a one shot pan target. Sequence grows by one every time the newest incident changes identity.
type Recenter struct {
	IncidentID string  `json:"incident_id"`
	Latitude   float64 `json:"latitude"`
	Longitude  float64 `json:"longitude"`
	Zoom       int     `json:"zoom"`
	Sequence   uint64  `json:"sequence"`
}

//MapState is a copy of everything the map renders
type MapState struct {
	Markers     []Marker  `json:"markers"`
	Recenter    *Recenter `json:"recenter,omitempty"`
	RefreshedAt time.Time `json:"refreshed_at"`
}

//MapView keeps units and the most recent incident per unit within RecentWindow.
//It is rebuilt by a full requery on every change event and on a fixed timer.
type MapView struct {
	db       database.Datastore
	log      logging.Logger
	now      func() time.Time
	interval time.Duration
	listener ChangeListener

	mu          sync.Mutex
	units       []models.Unit
	recent      map[string]models.Incident
	latestID    string
	recenter    *Recenter
	recenterSeq uint64
	refreshedAt time.Time
}

//NewMapView creates an empty map view
func NewMapView(db database.Datastore, log logging.Logger) *MapView {
	return &MapView{
		db:       db,
		log:      log,
		now:      time.Now,
		interval: MapRefreshInterval,
		units:    []models.Unit{},
		recent:   map[string]models.Incident{},
	}
}

//Mount subscribes to every change on units and incidents, performs the first refresh and keeps
//refreshing on events and on the timer until ctx is done
func (v *MapView) Mount(ctx context.Context, feed changefeed.Subscriber) error {
	incidents, err := feed.Subscribe(ctx, changefeed.TableIncidents)
	if err != nil {
		return err
	}

	units, err := feed.Subscribe(ctx, changefeed.TableUnits)
	if err != nil {
		incidents.Unsubscribe()
		return err
	}

	v.refreshAndLog()

	go v.run(ctx, incidents, units)

	return nil
}

func (v *MapView) run(ctx context.Context, incidents, units *changefeed.Subscription) {
	defer incidents.Unsubscribe()
	defer units.Unsubscribe()

	ticker := time.NewTicker(v.interval)
	defer ticker.Stop()

	incidentEvents, unitEvents := incidents.Events, units.Events

	for incidentEvents != nil || unitEvents != nil {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			v.refreshAndLog()
		case event, ok := <-incidentEvents:
			if !ok {
				incidentEvents = nil
				continue
			}
			metrics.FeedEventsMerged.WithLabelValues(ViewMap, event.Table, string(event.Kind)).Inc()
			v.refreshAndLog()
		case event, ok := <-unitEvents:
			if !ok {
				unitEvents = nil
				continue
			}
			metrics.FeedEventsMerged.WithLabelValues(ViewMap, event.Table, string(event.Kind)).Inc()
			v.refreshAndLog()
		}
	}
}

func (v *MapView) refreshAndLog() {
	if err := v.Refresh(); err != nil {
		v.log.Errorf("%s", err.Error())
	}
}

//Refresh requeries units and the incidents of the last RecentWindow. A failing query leaves
//the corresponding part of the state as it was.
func (v *MapView) Refresh() error {
	now := v.now()
	since := now.Add(-RecentWindow)

	var errs []error

	units, unitsErr := v.db.GetUnits()
	if unitsErr != nil {
		errs = append(errs, fmt.Errorf("failed to fetch units for map: %w", unitsErr))
	}

	incidents, incidentsErr := v.db.GetIncidentsSince(since)
	if incidentsErr != nil {
		errs = append(errs, fmt.Errorf("failed to fetch recent incidents for map: %w", incidentsErr))
	}

	v.mu.Lock()
	if unitsErr == nil {
		v.units = units
	}
	if incidentsErr == nil {
		v.recent = IndexMostRecentByUnit(incidents, since)
		v.observeNewest(incidents, since)
	}
	v.refreshedAt = now
	v.mu.Unlock()

	if len(errs) > 0 {
		metrics.ViewRefreshErrors.WithLabelValues(ViewMap).Inc()
	}

	v.changed()

	return errors.Join(errs...)
}

//observeNewest moves the recenter target when the newest incident is a different one than last time
func (v *MapView) observeNewest(incidents []models.Incident, since time.Time) {
	newest, ok := newestIncident(incidents, since)
	if !ok || newest.ID == v.latestID {
		return
	}

	v.latestID = newest.ID
	v.recenterSeq++
	v.recenter = &Recenter{
		IncidentID: newest.ID,
		Latitude:   newest.Latitude,
		Longitude:  newest.Longitude,
		Zoom:       RecenterZoom,
		Sequence:   v.recenterSeq,
	}

	metrics.MapRecenters.Inc()
}

//State returns a copy of the markers and the current recenter target
func (v *MapView) State() MapState {
	v.mu.Lock()
	defer v.mu.Unlock()

	state := MapState{
		Markers:     make([]Marker, 0, len(v.units)),
		RefreshedAt: v.refreshedAt,
	}

	for _, unit := range v.units {
		marker := Marker{Unit: unit}
		if incident, ok := v.recent[unit.ID]; ok {
			recent := incident
			marker.Pinging = true
			marker.RecentIncident = &recent
		}
		state.Markers = append(state.Markers, marker)
	}

	if v.recenter != nil {
		recenter := *v.recenter
		state.Recenter = &recenter
	}

	return state
}

//IsPinging returns true if the unit has an incident within the window of the last refresh
func (v *MapView) IsPinging(unitID string) bool {
	v.mu.Lock()
	defer v.mu.Unlock()

	_, ok := v.recent[unitID]
	return ok
}

//OnChange registers the listener that is told whenever the map was refreshed
func (v *MapView) OnChange(listener ChangeListener) {
	v.listener = listener
}

func (v *MapView) changed() {
	if v.listener != nil {
		v.listener(ViewMap)
	}
}

//IndexMostRecentByUnit maps each unit id to its first incident in the given newest first
//sequence. Incidents created before since are left out.
func IndexMostRecentByUnit(incidents []models.Incident, since time.Time) map[string]models.Incident {
	index := map[string]models.Incident{}

	for _, incident := range incidents {
		if incident.CreatedAt.Before(since) {
			continue
		}
		if _, seen := index[incident.UnitID]; !seen {
			index[incident.UnitID] = incident
		}
	}

	return index
}

func newestIncident(incidents []models.Incident, since time.Time) (models.Incident, bool) {
	for _, incident := range incidents {
		if !incident.CreatedAt.Before(since) {
			return incident, true
		}
	}
	return models.Incident{}, false
}
