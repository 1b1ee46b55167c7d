package dashboard

import (
	"errors"
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tahought/DisasterSoundManager/internal/pkg/infrastructure/changefeed"
	"github.com/tahought/DisasterSoundManager/internal/pkg/infrastructure/repositories/database"
	"github.com/tahought/DisasterSoundManager/internal/pkg/infrastructure/repositories/models"
)

func newOperatorForTest(db *dbMock) (*Operator, *FeedView, *UnitsView) {
	feed := NewFeedView(db, nopLogger{})
	units := NewUnitsView(db, nopLogger{})
	operator := NewOperator(db, feed, units, nopLogger{}).WithRandSource(rand.NewSource(42))
	return operator, feed, units
}

func TestInjectIntoNewCustomUnit(t *testing.T) {
	db := newDBMock()
	operator, _, _ := newOperatorForTest(db)

	latitude, longitude := 35.0, 135.7
	incident, err := operator.InjectIncident(InjectRequest{
		Mode:       InjectCustom,
		UnitID:     "custom-42",
		Latitude:   &latitude,
		Longitude:  &longitude,
		Type:       models.IncidentTypeCrush,
		Confidence: 0.9,
	})
	require.NoError(t, err)

	unit, err := db.GetUnitFromID("custom-42")
	require.NoError(t, err)
	assert.Equal(t, models.UnitStatusOnline, unit.Status)
	assert.Equal(t, models.DefaultBattery, unit.Battery)
	assert.Equal(t, models.DefaultThreshold, unit.Threshold)

	assert.Equal(t, "custom-42", incident.UnitID)
	assert.Equal(t, models.IncidentStatusPending, incident.Status)
	assert.Equal(t, models.IncidentTypeCrush, incident.Type)
	require.True(t, incident.HasAudio())
	assert.Equal(t, DemoAudioURL, *incident.AudioURL)

	assert.LessOrEqual(t, math.Abs(incident.Latitude-latitude), JitterSpan/2)
	assert.LessOrEqual(t, math.Abs(incident.Longitude-longitude), JitterSpan/2)

	assert.Equal(t, []string{"CreateUnit custom-42", "CreateIncident custom-42"}, db.calls)
}

func TestInjectIntoExistingUnitUsesStoredPosition(t *testing.T) {
	db := newDBMock()
	db.addUnit(*models.NewUnit("custom-7", 34.0, 134.0))
	operator, _, _ := newOperatorForTest(db)

	latitude, longitude := 10.0, 10.0
	incident, err := operator.InjectIncident(InjectRequest{
		Mode:       InjectCustom,
		UnitID:     "custom-7",
		Latitude:   &latitude,
		Longitude:  &longitude,
		Type:       models.IncidentTypeSOS,
		Confidence: 0.5,
	})
	require.NoError(t, err)

	assert.InDelta(t, 34.0, incident.Latitude, JitterSpan)
	assert.InDelta(t, 134.0, incident.Longitude, JitterSpan)
	assert.Equal(t, []string{"CreateIncident custom-7"}, db.calls)
}

func TestInjectWithoutCustomIDGeneratesOne(t *testing.T) {
	db := newDBMock()
	operator, _, _ := newOperatorForTest(db)

	incident, err := operator.InjectIncident(InjectRequest{
		Mode:       InjectCustom,
		Type:       models.IncidentTypeScream,
		Confidence: 0.7,
	})
	require.NoError(t, err)

	assert.Regexp(t, `^custom-\d+$`, incident.UnitID)
	assert.InDelta(t, DefaultCustomLatitude, incident.Latitude, JitterSpan)
	assert.InDelta(t, DefaultCustomLongitude, incident.Longitude, JitterSpan)
}

func TestInjectIntoPresetUnit(t *testing.T) {
	db := newDBMock()
	operator, _, _ := newOperatorForTest(db)

	incident, err := operator.InjectIncident(InjectRequest{
		Mode:       InjectPreset,
		UnitID:     "unit-osaka-01",
		Type:       models.IncidentTypeSOS,
		Confidence: 0.8,
	})
	require.NoError(t, err)

	assert.InDelta(t, 34.6937, incident.Latitude, JitterSpan)
	assert.InDelta(t, 135.5023, incident.Longitude, JitterSpan)

	_, err = operator.InjectIncident(InjectRequest{
		Mode:       InjectPreset,
		UnitID:     "unit-nowhere",
		Type:       models.IncidentTypeSOS,
		Confidence: 0.8,
	})
	assert.ErrorIs(t, err, ErrUnknownPresetUnit)
}

func TestThatInjectRejectsInvalidInput(t *testing.T) {
	db := newDBMock()
	operator, _, _ := newOperatorForTest(db)

	_, err := operator.InjectIncident(InjectRequest{Mode: InjectCustom, Confidence: 0.5})
	assert.ErrorIs(t, err, ErrMissingIncidentType)

	_, err = operator.InjectIncident(InjectRequest{Mode: InjectCustom, Type: models.IncidentTypeSOS, Confidence: 1.5})
	assert.ErrorIs(t, err, ErrConfidenceOutOfRange)

	assert.Empty(t, db.calls)
}

func TestThatStatusChangeIsVisibleBeforeTheWriteCompletes(t *testing.T) {
	db := newDBMock()
	db.addUnit(*models.NewUnit("unit", 35.0, 135.7))
	incident := incidentAt("i1", "unit", time.Now())
	db.addIncident(incident)

	operator, feed, _ := newOperatorForTest(db)
	require.NoError(t, feed.Load())

	statusDuringWrite := ""
	db.onUpdateIncidentStatus = func() {
		statusDuringWrite = feed.Snapshot()[0].Status
	}

	_, err := operator.SetIncidentStatus("i1", models.IncidentStatusInProgress)
	require.NoError(t, err)
	assert.Equal(t, models.IncidentStatusInProgress, statusDuringWrite)

	confirmed := incident
	confirmed.Status = models.IncidentStatusInProgress
	event, err := changefeed.NewEvent(changefeed.TableIncidents, changefeed.Update, confirmed, incident)
	require.NoError(t, err)
	feed.Apply(event)

	incidents := feed.Snapshot()
	require.Len(t, incidents, 1)
	assert.Equal(t, models.IncidentStatusInProgress, incidents[0].Status)
}

func TestThatStatusMayMoveBackwards(t *testing.T) {
	db := newDBMock()
	db.addIncident(incidentAt("i1", "unit", time.Now()))
	operator, _, _ := newOperatorForTest(db)

	_, err := operator.SetIncidentStatus("i1", models.IncidentStatusResolved)
	require.NoError(t, err)

	incident, err := operator.SetIncidentStatus("i1", models.IncidentStatusPending)
	require.NoError(t, err)
	assert.Equal(t, models.IncidentStatusPending, incident.Status)

	_, err = operator.SetIncidentStatus("i1", "closed")
	assert.ErrorIs(t, err, ErrInvalidStatus)
}

func TestSetUnitThreshold(t *testing.T) {
	db := newDBMock()
	db.addUnit(*models.NewUnit("unit", 35.0, 135.7))
	operator, _, units := newOperatorForTest(db)
	require.NoError(t, units.Load())

	unit, err := operator.SetUnitThreshold("unit", 0.8)
	require.NoError(t, err)
	assert.Equal(t, 0.8, unit.Threshold)
	assert.Equal(t, 0.8, units.Snapshot()[0].Threshold)

	_, err = operator.SetUnitThreshold("unit", 1.2)
	assert.ErrorIs(t, err, ErrThresholdOutOfRange)

	_, err = operator.SetUnitThreshold("unit", -0.1)
	assert.ErrorIs(t, err, ErrThresholdOutOfRange)
}

func TestThatUnitIsDeletedAfterItsIncidents(t *testing.T) {
	db := newDBMock()
	db.addUnit(*models.NewUnit("doomed", 35.0, 135.7))
	db.addIncident(incidentAt("i1", "doomed", time.Now()))
	db.addIncident(incidentAt("i2", "doomed", time.Now()))
	db.addIncident(incidentAt("i3", "survivor", time.Now()))
	operator, _, _ := newOperatorForTest(db)

	require.NoError(t, operator.DeleteUnit("doomed"))

	assert.Equal(t, []string{"DeleteIncidentsForUnit doomed", "DeleteUnit doomed"}, db.calls)
	assert.Empty(t, db.incidentsOf("doomed"))
	assert.Len(t, db.incidentsOf("survivor"), 1)

	_, err := db.GetUnitFromID("doomed")
	assert.ErrorIs(t, err, database.ErrUnitNotFound)
}

func TestThatUnitIsKeptWhenIncidentDeletionFails(t *testing.T) {
	db := newDBMock()
	db.addUnit(*models.NewUnit("stubborn", 35.0, 135.7))
	db.deleteIncidentsError = errors.New("permission denied")
	operator, _, _ := newOperatorForTest(db)

	err := operator.DeleteUnit("stubborn")
	assert.ErrorIs(t, err, ErrIncidentDeletionFailed)

	assert.Equal(t, []string{"DeleteIncidentsForUnit stubborn"}, db.calls)
	_, err = db.GetUnitFromID("stubborn")
	assert.NoError(t, err)
}

func TestThatDeletingAnUnknownUnitFails(t *testing.T) {
	operator, _, _ := newOperatorForTest(newDBMock())

	err := operator.DeleteUnit("ghost")
	assert.ErrorIs(t, err, database.ErrUnitNotFound)
}
