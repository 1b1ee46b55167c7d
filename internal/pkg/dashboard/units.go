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

//UnitsView holds every unit ordered by id and refetches the whole list on any unit change
type UnitsView struct {
	db       database.Datastore
	log      logging.Logger
	listener ChangeListener

	mu    sync.Mutex
	units []models.Unit
}

//NewUnitsView creates an empty units view
func NewUnitsView(db database.Datastore, log logging.Logger) *UnitsView {
	return &UnitsView{db: db, log: log, units: []models.Unit{}}
}

//Load refetches all units
func (v *UnitsView) Load() error {
	units, err := v.db.GetUnits()
	if err != nil {
		metrics.ViewRefreshErrors.WithLabelValues(ViewUnits).Inc()
		return fmt.Errorf("failed to load units: %w", err)
	}

	v.mu.Lock()
	v.units = units
	v.mu.Unlock()

	v.changed()
	return nil
}

//Mount subscribes to every unit change, loads the list and refetches it per event until ctx is done
func (v *UnitsView) Mount(ctx context.Context, feed changefeed.Subscriber) error {
	sub, err := feed.Subscribe(ctx, changefeed.TableUnits)
	if err != nil {
		return err
	}

	if err = v.Load(); err != nil {
		v.log.Errorf("%s", err.Error())
	}

	go consume(ctx, sub, func(event changefeed.Event) {
		metrics.FeedEventsMerged.WithLabelValues(ViewUnits, event.Table, string(event.Kind)).Inc()
		if err := v.Load(); err != nil {
			v.log.Errorf("%s", err.Error())
		}
	})

	return nil
}

//ReplaceThreshold changes the local threshold of unit id ahead of any remote confirmation
func (v *UnitsView) ReplaceThreshold(id string, threshold float64) bool {
	v.mu.Lock()
	found := false
	for i := range v.units {
		if v.units[i].ID == id {
			units := make([]models.Unit, len(v.units))
			copy(units, v.units)
			units[i].Threshold = threshold
			v.units = units
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

//Snapshot returns a copy of the units list
func (v *UnitsView) Snapshot() []models.Unit {
	v.mu.Lock()
	defer v.mu.Unlock()

	snapshot := make([]models.Unit, len(v.units))
	copy(snapshot, v.units)
	return snapshot
}

//OnChange registers the listener that is told whenever the units list changes
func (v *UnitsView) OnChange(listener ChangeListener) {
	v.listener = listener
}

func (v *UnitsView) changed() {
	if v.listener != nil {
		v.listener(ViewUnits)
	}
}
