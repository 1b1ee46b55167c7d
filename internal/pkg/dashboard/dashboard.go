//Package dashboard holds the operator facing views. Each view seeds itself from the datastore,
//follows the change feed and exposes copies of its state for rendering.
package dashboard

import (
	"context"

	"github.com/tahought/DisasterSoundManager/internal/pkg/infrastructure/changefeed"
	"github.com/tahought/DisasterSoundManager/internal/pkg/infrastructure/logging"
	"github.com/tahought/DisasterSoundManager/internal/pkg/infrastructure/repositories/database"
)

//Names of the views, used when telling listeners what changed
const (
	ViewFeed  = "feed"
	ViewMap   = "map"
	ViewUnits = "units"
	ViewChart = "chart"
)

//ChangeListener is told the name of a view whenever that view's state changed
type ChangeListener func(view string)

//Dashboard groups the views shown to an operator
type Dashboard struct {
	Feed  *FeedView
	Map   *MapView
	Units *UnitsView
	Chart *ChartView
}

//New creates the full set of views on top of db
func New(db database.Datastore, log logging.Logger) *Dashboard {
	return &Dashboard{
		Feed:  NewFeedView(db, log),
		Map:   NewMapView(db, log),
		Units: NewUnitsView(db, log),
		Chart: NewChartView(db, log),
	}
}

//OnChange registers listener with every view
func (d *Dashboard) OnChange(listener ChangeListener) {
	d.Feed.OnChange(listener)
	d.Map.OnChange(listener)
	d.Units.OnChange(listener)
	d.Chart.OnChange(listener)
}

//Mount seeds every view and keeps them following feed until ctx is done
func (d *Dashboard) Mount(ctx context.Context, feed changefeed.Subscriber) error {
	mounters := []func(context.Context, changefeed.Subscriber) error{
		d.Feed.Mount,
		d.Map.Mount,
		d.Units.Mount,
		d.Chart.Mount,
	}

	for _, mount := range mounters {
		if err := mount(ctx, feed); err != nil {
			return err
		}
	}

	return nil
}

func consume(ctx context.Context, sub *changefeed.Subscription, apply func(changefeed.Event)) {
	defer sub.Unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-sub.Events:
			if !ok {
				return
			}
			apply(event)
		}
	}
}
