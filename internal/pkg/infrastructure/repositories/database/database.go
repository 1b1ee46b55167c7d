package database

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/tahought/DisasterSoundManager/internal/pkg/infrastructure/changefeed"
	"github.com/tahought/DisasterSoundManager/internal/pkg/infrastructure/logging"
	"github.com/tahought/DisasterSoundManager/internal/pkg/infrastructure/repositories/models"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

//ErrUnitNotFound is returned when an operation references a unit that does not exist
var ErrUnitNotFound = errors.New("unit not found")

//ErrIncidentNotFound is returned when an operation references an incident that does not exist
var ErrIncidentNotFound = errors.New("incident not found")

//Datastore is an interface that is used to inject the database into different handlers to improve testability
type Datastore interface {
	CreateUnit(unit *models.Unit) (*models.Unit, error)
	GetUnitFromID(id string) (*models.Unit, error)
	GetUnits() ([]models.Unit, error)
	UpdateUnitThreshold(id string, threshold float64) (*models.Unit, error)
	UpdateUnitHeartbeat(id string, heartbeat models.Heartbeat) (*models.Unit, error)
	DeleteUnit(id string) error

	CreateIncident(incident *models.Incident) (*models.Incident, error)
	GetIncidentFromID(id string) (*models.Incident, error)
	GetLatestIncidents(limit int) ([]models.Incident, error)
	GetIncidentsSince(since time.Time) ([]models.Incident, error)
	GetLatestIncidentTypes(limit int) ([]string, error)
	UpdateIncidentStatus(id, status string) (*models.Incident, error)
	DeleteIncidentsForUnit(unitID string) (int64, error)
}

type myDB struct {
	impl *gorm.DB
	feed changefeed.Publisher
	log  logging.Logger
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func nowUTC() time.Time {
	return time.Now().UTC()
}

//ConnectorFunc is used to inject a database connection method into NewDatabaseConnection
type ConnectorFunc func() (*gorm.DB, error)

//NewPostgreSQLConnector opens a connection to a postgresql database
func NewPostgreSQLConnector(log logging.Logger) ConnectorFunc {
	dbHost := os.Getenv("DSM_DB_HOST")
	username := os.Getenv("DSM_DB_USER")
	dbName := os.Getenv("DSM_DB_NAME")
	password := os.Getenv("DSM_DB_PASSWORD")
	sslMode := getEnv("DSM_DB_SSLMODE", "require")

	dbURI := fmt.Sprintf("host=%s user=%s dbname=%s sslmode=%s password=%s", dbHost, username, dbName, sslMode, password)

	return func() (*gorm.DB, error) {
		for {
			log.Infof("Connecting to database host %s ...", dbHost)
			db, err := gorm.Open(postgres.Open(dbURI), &gorm.Config{NowFunc: nowUTC})
			if err != nil {
				log.Errorf("Failed to connect to database %s", err)
				time.Sleep(3 * time.Second)
			} else {
				return db, nil
			}
		}
	}
}

//NewSQLiteConnector opens a connection to a local sqlite database
func NewSQLiteConnector() ConnectorFunc {
	return func() (*gorm.DB, error) {
		db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{
			Logger:  logger.Default.LogMode(logger.Silent),
			NowFunc: nowUTC,
		})

		if err == nil {
			db.Exec("PRAGMA foreign_keys = ON")
		}

		return db, err
	}
}

//NewDatabaseConnection initializes a new connection to the database and wraps it in a Datastore.
//Every committed write is announced on the supplied change feed publisher.
func NewDatabaseConnection(connect ConnectorFunc, feed changefeed.Publisher, log logging.Logger) (Datastore, error) {
	impl, err := connect()
	if err != nil {
		return nil, err
	}

	if feed == nil {
		feed = changefeed.NopPublisher()
	}

	db := &myDB{
		impl: impl,
		feed: feed,
		log:  log,
	}

	if err = db.impl.Debug().AutoMigrate(&models.Unit{}, &models.Incident{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	// Make sure that the demonstration units are available to the injection workflow
	for _, preset := range models.PresetUnits() {
		unit := models.Unit{}

		result := db.impl.Where("id = ?", preset.ID).Limit(1).Find(&unit)
		if result.Error != nil {
			return nil, result.Error
		}

		if result.RowsAffected == 0 {
			log.Infof("Unit %s not found in database. Creating ...", preset.ID)

			p := preset
			if _, err = db.CreateUnit(&p); err != nil {
				log.Errorf("Failed to seed Unit into database %s", err.Error())
				return nil, err
			}
		}
	}

	return db, nil
}

func (db *myDB) publish(table string, kind changefeed.EventKind, newRow, oldRow interface{}) {
	event, err := changefeed.NewEvent(table, kind, newRow, oldRow)
	if err == nil {
		err = db.feed.Publish(event)
	}

	if err != nil {
		db.log.Errorf("Failed to publish %s on %s: %s", kind, table, err.Error())
	}
}

func (db *myDB) CreateUnit(src *models.Unit) (*models.Unit, error) {
	if src.ID == "" {
		return nil, errors.New("CreateUnit requires a non-empty unit id")
	}

	unit := *src
	if unit.Status == "" {
		unit.Status = models.UnitStatusOnline
	}
	if unit.SignalStrength == "" {
		unit.SignalStrength = models.DefaultSignalStrength
	}

	result := db.impl.Create(&unit)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to create unit %s: %w", unit.ID, result.Error)
	}

	db.publish(changefeed.TableUnits, changefeed.Insert, unit, nil)

	return &unit, nil
}

func (db *myDB) GetUnitFromID(id string) (*models.Unit, error) {
	unit := &models.Unit{}

	result := db.impl.Where("id = ?", id).Limit(1).Find(unit)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, fmt.Errorf("no unit found matching %s: %w", id, ErrUnitNotFound)
	}

	return unit, nil
}

func (db *myDB) GetUnits() ([]models.Unit, error) {
	units := []models.Unit{}
	result := db.impl.Order("id").Find(&units)
	return units, result.Error
}

func (db *myDB) updateUnit(id string, values map[string]interface{}) (*models.Unit, error) {
	old, err := db.GetUnitFromID(id)
	if err != nil {
		return nil, err
	}

	result := db.impl.Model(&models.Unit{}).Where("id = ?", id).Updates(values)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to update unit %s: %w", id, result.Error)
	}

	unit, err := db.GetUnitFromID(id)
	if err != nil {
		return nil, err
	}

	db.publish(changefeed.TableUnits, changefeed.Update, unit, old)

	return unit, nil
}

func (db *myDB) UpdateUnitThreshold(id string, threshold float64) (*models.Unit, error) {
	return db.updateUnit(id, map[string]interface{}{"threshold": threshold})
}

func (db *myDB) UpdateUnitHeartbeat(id string, heartbeat models.Heartbeat) (*models.Unit, error) {
	seenAt := heartbeat.SeenAt
	if seenAt.IsZero() {
		seenAt = nowUTC()
	}

	values := map[string]interface{}{
		"battery":   heartbeat.Battery,
		"last_seen": seenAt.UTC(),
	}
	if heartbeat.SignalStrength != "" {
		values["signal_strength"] = heartbeat.SignalStrength
	}
	if heartbeat.Status != "" {
		values["status"] = heartbeat.Status
	}

	return db.updateUnit(id, values)
}

func (db *myDB) DeleteUnit(id string) error {
	old, err := db.GetUnitFromID(id)
	if err != nil {
		return err
	}

	result := db.impl.Where("id = ?", id).Delete(&models.Unit{})
	if result.Error != nil {
		return fmt.Errorf("failed to delete unit %s: %w", id, result.Error)
	}

	db.publish(changefeed.TableUnits, changefeed.Delete, nil, old)

	return nil
}

func (db *myDB) CreateIncident(src *models.Incident) (*models.Incident, error) {
	if _, err := db.GetUnitFromID(src.UnitID); err != nil {
		return nil, err
	}

	incident := *src
	incident.Unit = nil

	result := db.impl.Omit(clause.Associations).Create(&incident)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to create incident for unit %s: %w", src.UnitID, result.Error)
	}

	db.publish(changefeed.TableIncidents, changefeed.Insert, incident, nil)

	return &incident, nil
}

func (db *myDB) GetIncidentFromID(id string) (*models.Incident, error) {
	incident := &models.Incident{}

	result := db.impl.Where("id = ?", id).Limit(1).Find(incident)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, fmt.Errorf("no incident found matching %s: %w", id, ErrIncidentNotFound)
	}

	return incident, nil
}

func (db *myDB) GetLatestIncidents(limit int) ([]models.Incident, error) {
	incidents := []models.Incident{}
	result := db.impl.Order("created_at desc").Limit(limit).Find(&incidents)
	return incidents, result.Error
}

func (db *myDB) GetIncidentsSince(since time.Time) ([]models.Incident, error) {
	incidents := []models.Incident{}
	result := db.impl.Where("created_at >= ?", since.UTC()).Order("created_at desc").Find(&incidents)
	return incidents, result.Error
}

func (db *myDB) GetLatestIncidentTypes(limit int) ([]string, error) {
	types := []string{}
	result := db.impl.Model(&models.Incident{}).Order("created_at desc").Limit(limit).Pluck("type", &types)
	return types, result.Error
}

func (db *myDB) UpdateIncidentStatus(id, status string) (*models.Incident, error) {
	old, err := db.GetIncidentFromID(id)
	if err != nil {
		return nil, err
	}

	result := db.impl.Model(&models.Incident{}).Where("id = ?", id).Update("status", status)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to update status of incident %s: %w", id, result.Error)
	}

	incident := *old
	incident.Status = status

	db.publish(changefeed.TableIncidents, changefeed.Update, incident, old)

	return &incident, nil
}

func (db *myDB) DeleteIncidentsForUnit(unitID string) (int64, error) {
	doomed := []models.Incident{}
	if result := db.impl.Where("unit_id = ?", unitID).Find(&doomed); result.Error != nil {
		return 0, result.Error
	}

	result := db.impl.Where("unit_id = ?", unitID).Delete(&models.Incident{})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to delete incidents of unit %s: %w", unitID, result.Error)
	}

	for _, incident := range doomed {
		db.publish(changefeed.TableIncidents, changefeed.Delete, nil, incident)
	}

	return result.RowsAffected, nil
}
