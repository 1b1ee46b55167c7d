package dashboard

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tahought/DisasterSoundManager/internal/pkg/infrastructure/changefeed"
	"github.com/tahought/DisasterSoundManager/internal/pkg/infrastructure/repositories/database"
	"github.com/tahought/DisasterSoundManager/internal/pkg/infrastructure/repositories/models"
)

type dbMock struct {
	mu sync.Mutex

	units     map[string]models.Unit
	incidents []models.Incident
	calls     []string
	nextID    int

	getUnitsError          error
	getIncidentsError      error
	deleteIncidentsError   error
	onUpdateIncidentStatus func()
}

func newDBMock() *dbMock {
	return &dbMock{units: map[string]models.Unit{}}
}

func (db *dbMock) record(call string) {
	db.calls = append(db.calls, call)
}

func (db *dbMock) addUnit(unit models.Unit) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.units[unit.ID] = unit
}

func (db *dbMock) addIncident(incident models.Incident) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.incidents = append(db.incidents, incident)
}

func (db *dbMock) CreateUnit(unit *models.Unit) (*models.Unit, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.record("CreateUnit " + unit.ID)

	if _, exists := db.units[unit.ID]; exists {
		return nil, fmt.Errorf("duplicate unit %s", unit.ID)
	}
	db.units[unit.ID] = *unit
	u := *unit
	return &u, nil
}

func (db *dbMock) GetUnitFromID(id string) (*models.Unit, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	unit, ok := db.units[id]
	if !ok {
		return nil, fmt.Errorf("no unit found matching %s: %w", id, database.ErrUnitNotFound)
	}
	return &unit, nil
}

func (db *dbMock) GetUnits() ([]models.Unit, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	if db.getUnitsError != nil {
		return nil, db.getUnitsError
	}

	units := []models.Unit{}
	for _, unit := range db.units {
		units = append(units, unit)
	}
	sort.Slice(units, func(i, j int) bool { return units[i].ID < units[j].ID })
	return units, nil
}

func (db *dbMock) UpdateUnitThreshold(id string, threshold float64) (*models.Unit, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	unit, ok := db.units[id]
	if !ok {
		return nil, database.ErrUnitNotFound
	}
	unit.Threshold = threshold
	db.units[id] = unit
	return &unit, nil
}

func (db *dbMock) UpdateUnitHeartbeat(id string, heartbeat models.Heartbeat) (*models.Unit, error) {
	return nil, fmt.Errorf("unexpected call to UpdateUnitHeartbeat for %s", id)
}

func (db *dbMock) DeleteUnit(id string) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.record("DeleteUnit " + id)

	if _, ok := db.units[id]; !ok {
		return database.ErrUnitNotFound
	}
	delete(db.units, id)
	return nil
}

func (db *dbMock) CreateIncident(incident *models.Incident) (*models.Incident, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.record("CreateIncident " + incident.UnitID)

	if _, ok := db.units[incident.UnitID]; !ok {
		return nil, database.ErrUnitNotFound
	}

	db.nextID++
	created := *incident
	created.ID = fmt.Sprintf("incident-%d", db.nextID)
	created.CreatedAt = time.Now()
	db.incidents = append(db.incidents, created)
	return &created, nil
}

func (db *dbMock) GetIncidentFromID(id string) (*models.Incident, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	for _, incident := range db.incidents {
		if incident.ID == id {
			i := incident
			return &i, nil
		}
	}
	return nil, database.ErrIncidentNotFound
}

func (db *dbMock) newestFirst(filter func(models.Incident) bool) []models.Incident {
	incidents := []models.Incident{}
	for _, incident := range db.incidents {
		if filter(incident) {
			incidents = append(incidents, incident)
		}
	}
	sort.SliceStable(incidents, func(i, j int) bool { return incidents[i].CreatedAt.After(incidents[j].CreatedAt) })
	return incidents
}

func (db *dbMock) GetLatestIncidents(limit int) ([]models.Incident, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	if db.getIncidentsError != nil {
		return nil, db.getIncidentsError
	}

	incidents := db.newestFirst(func(models.Incident) bool { return true })
	if len(incidents) > limit {
		incidents = incidents[:limit]
	}
	return incidents, nil
}

func (db *dbMock) GetIncidentsSince(since time.Time) ([]models.Incident, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	if db.getIncidentsError != nil {
		return nil, db.getIncidentsError
	}

	return db.newestFirst(func(i models.Incident) bool { return !i.CreatedAt.Before(since) }), nil
}

func (db *dbMock) GetLatestIncidentTypes(limit int) ([]string, error) {
	incidents, err := db.GetLatestIncidents(limit)
	if err != nil {
		return nil, err
	}

	types := []string{}
	for _, incident := range incidents {
		types = append(types, incident.Type)
	}
	return types, nil
}

func (db *dbMock) UpdateIncidentStatus(id, status string) (*models.Incident, error) {
	if db.onUpdateIncidentStatus != nil {
		db.onUpdateIncidentStatus()
	}

	db.mu.Lock()
	defer db.mu.Unlock()

	for i := range db.incidents {
		if db.incidents[i].ID == id {
			db.incidents[i].Status = status
			updated := db.incidents[i]
			return &updated, nil
		}
	}
	return nil, database.ErrIncidentNotFound
}

func (db *dbMock) DeleteIncidentsForUnit(unitID string) (int64, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.record("DeleteIncidentsForUnit " + unitID)

	if db.deleteIncidentsError != nil {
		return 0, db.deleteIncidentsError
	}

	kept := []models.Incident{}
	var deleted int64
	for _, incident := range db.incidents {
		if incident.UnitID == unitID {
			deleted++
			continue
		}
		kept = append(kept, incident)
	}
	db.incidents = kept
	return deleted, nil
}

func (db *dbMock) incidentsOf(unitID string) []models.Incident {
	db.mu.Lock()
	defer db.mu.Unlock()

	found := []models.Incident{}
	for _, incident := range db.incidents {
		if incident.UnitID == unitID {
			found = append(found, incident)
		}
	}
	return found
}

type syntheticFeed struct {
	mu      sync.Mutex
	streams map[string][]chan changefeed.Event
}

func newSyntheticFeed() *syntheticFeed {
	return &syntheticFeed{streams: map[string][]chan changefeed.Event{}}
}

func (f *syntheticFeed) Subscribe(ctx context.Context, table string, kinds ...changefeed.EventKind) (*changefeed.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	events := make(chan changefeed.Event, 16)
	f.streams[table] = append(f.streams[table], events)
	return changefeed.NewSubscription(events, func() {}), nil
}

func (f *syntheticFeed) send(t *testing.T, table string, kind changefeed.EventKind, row interface{}) {
	event, err := changefeed.NewEvent(table, kind, row, nil)
	require.NoError(t, err)

	f.mu.Lock()
	defer f.mu.Unlock()
	for _, stream := range f.streams[table] {
		stream <- event
	}
}

type nopLogger struct{}

func (nopLogger) Fatal(args ...interface{})                 {}
func (nopLogger) Fatalf(format string, args ...interface{}) {}
func (nopLogger) Error(args ...interface{})                 {}
func (nopLogger) Errorf(format string, args ...interface{}) {}
func (nopLogger) Warnf(format string, args ...interface{})  {}
func (nopLogger) Info(args ...interface{})                  {}
func (nopLogger) Infof(format string, args ...interface{})  {}
func (nopLogger) Debugf(format string, args ...interface{}) {}

func incidentAt(id, unitID string, createdAt time.Time) models.Incident {
	return models.Incident{
		ID:         id,
		UnitID:     unitID,
		Type:       models.IncidentTypeSOS,
		Confidence: 0.9,
		Status:     models.IncidentStatusPending,
		Latitude:   35.0,
		Longitude:  135.7,
		CreatedAt:  createdAt,
	}
}
