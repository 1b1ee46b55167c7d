package application

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/iot-for-tillgenglighet/ngsi-ld-golang/pkg/datamodels/fiware"
	ngsi "github.com/iot-for-tillgenglighet/ngsi-ld-golang/pkg/ngsi-ld"

	"github.com/tahought/DisasterSoundManager/internal/pkg/infrastructure/logging"
	"github.com/tahought/DisasterSoundManager/internal/pkg/infrastructure/repositories/database"
	"github.com/tahought/DisasterSoundManager/internal/pkg/infrastructure/repositories/models"
)

//ErrReadOnlyRegistry is returned for NGSI-LD writes. Units are managed through the dashboard API.
var ErrReadOnlyRegistry = errors.New("units can not be modified through NGSI-LD")

func (router *RequestRouter) addNGSIHandlers(contextRegistry ngsi.ContextRegistry) {
	router.Get("/ngsi-ld/v1/entities", ngsi.NewQueryEntitiesHandler(contextRegistry))
	router.Get("/ngsi-ld/v1/entities/{entity}", ngsi.NewRetrieveEntityHandler(contextRegistry))
}

func createContextRegistry(log logging.Logger, db database.Datastore) ngsi.ContextRegistry {
	contextRegistry := ngsi.NewContextRegistry()
	ctxSource := contextSource{db: db, log: log}
	contextRegistry.Register(&ctxSource)
	return contextRegistry
}

type contextSource struct {
	db  database.Datastore
	log logging.Logger
}

func (cs contextSource) ProvidesEntitiesWithMatchingID(entityID string) bool {
	return strings.HasPrefix(entityID, fiware.DeviceIDPrefix)
}

func (cs *contextSource) CreateEntity(typeName, entityID string, req ngsi.Request) error {
	return ErrReadOnlyRegistry
}

func (cs *contextSource) GetEntities(query ngsi.Query, callback ngsi.QueryEntitiesCallback) error {
	if query == nil {
		return errors.New("GetEntities: query may not be nil")
	}

	for _, typeName := range query.EntityTypes() {
		if typeName != "Device" {
			continue
		}

		units, err := cs.db.GetUnits()
		if err != nil {
			return fmt.Errorf("unable to get units: %s", err.Error())
		}

		for _, unit := range units {
			if err = callback(fiware.NewDevice(fiware.DeviceIDPrefix+unit.ID, deviceValue(unit))); err != nil {
				return err
			}
		}
	}

	return nil
}

//RetrieveEntity returns nil for unknown units so that the handler answers 404
func (cs *contextSource) RetrieveEntity(entityID string, request ngsi.Request) (ngsi.Entity, error) {
	unit, err := cs.db.GetUnitFromID(strings.TrimPrefix(entityID, fiware.DeviceIDPrefix))
	if err != nil {
		if errors.Is(err, database.ErrUnitNotFound) {
			return nil, nil
		}
		return nil, err
	}

	return fiware.NewDevice(entityID, deviceValue(*unit)), nil
}

func (cs contextSource) ProvidesAttribute(attributeName string) bool {
	return attributeName == "value"
}

func (cs contextSource) ProvidesType(typeName string) bool {
	return typeName == "Device"
}

func (cs *contextSource) UpdateEntityAttributes(entityID string, req ngsi.Request) error {
	return ErrReadOnlyRegistry
}

//deviceValue encodes the unit state the same way sensor values are encoded on Device entities,
//as url escaped key=value pairs separated by semicolons
func deviceValue(unit models.Unit) string {
	return url.QueryEscape(fmt.Sprintf(
		"status=%s;battery=%d;signal=%s;threshold=%.2f;lat=%.6f;lon=%.6f",
		unit.Status, unit.Battery, unit.SignalStrength, unit.Threshold, unit.Latitude, unit.Longitude,
	))
}
