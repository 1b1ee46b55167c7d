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

//ChartSampleSize is the number of most recent incidents the chart is computed from
const ChartSampleSize = 1000

//Bucket is one slice of the incident type chart
type Bucket struct {
	Name  string `json:"name"`
	Value int    `json:"value"`
}

//ChartView counts recent incidents per known type. It recounts from scratch on every incident change.
type ChartView struct {
	db       database.Datastore
	log      logging.Logger
	listener ChangeListener

	mu      sync.Mutex
	buckets []Bucket
}

//NewChartView creates an empty chart
func NewChartView(db database.Datastore, log logging.Logger) *ChartView {
	return &ChartView{db: db, log: log, buckets: []Bucket{}}
}

//Refresh refetches the sample and recomputes the buckets
func (v *ChartView) Refresh() error {
	types, err := v.db.GetLatestIncidentTypes(ChartSampleSize)
	if err != nil {
		metrics.ViewRefreshErrors.WithLabelValues(ViewChart).Inc()
		return fmt.Errorf("failed to fetch incident types for chart: %w", err)
	}

	buckets := CountByKnownType(types)

	v.mu.Lock()
	v.buckets = buckets
	v.mu.Unlock()

	if v.listener != nil {
		v.listener(ViewChart)
	}
	return nil
}

//Mount subscribes to every incident change, computes the chart and recomputes it per event until ctx is done
func (v *ChartView) Mount(ctx context.Context, feed changefeed.Subscriber) error {
	sub, err := feed.Subscribe(ctx, changefeed.TableIncidents)
	if err != nil {
		return err
	}

	if err = v.Refresh(); err != nil {
		v.log.Errorf("%s", err.Error())
	}

	go consume(ctx, sub, func(event changefeed.Event) {
		metrics.FeedEventsMerged.WithLabelValues(ViewChart, event.Table, string(event.Kind)).Inc()
		if err := v.Refresh(); err != nil {
			v.log.Errorf("%s", err.Error())
		}
	})

	return nil
}

//Buckets returns a copy of the current chart
func (v *ChartView) Buckets() []Bucket {
	v.mu.Lock()
	defer v.mu.Unlock()

	buckets := make([]Bucket, len(v.buckets))
	copy(buckets, v.buckets)
	return buckets
}

//OnChange registers the listener that is told whenever the chart was recomputed
func (v *ChartView) OnChange(listener ChangeListener) {
	v.listener = listener
}

//CountByKnownType counts labels per known incident type, in models.KnownIncidentTypes order.
//Unknown labels are not counted anywhere and types without occurrences get no bucket.
func CountByKnownType(labels []string) []Bucket {
	counts := map[string]int{}
	for _, label := range labels {
		counts[label]++
	}

	buckets := []Bucket{}
	for _, known := range models.KnownIncidentTypes {
		if counts[known] > 0 {
			buckets = append(buckets, Bucket{Name: known, Value: counts[known]})
		}
	}

	return buckets
}
