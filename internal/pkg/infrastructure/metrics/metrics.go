package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	//FeedEventsMerged counts change events applied by the dashboard views
	FeedEventsMerged = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dsm_feed_events_merged_total",
			Help: "Change events consumed by dashboard views",
		},
		[]string{"view", "table", "kind"},
	)

	//FeedEventsDropped counts change events that a view discarded (duplicates, unknown ids)
	FeedEventsDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dsm_feed_events_dropped_total",
			Help: "Change events discarded by dashboard views",
		},
		[]string{"view", "reason"},
	)

	//ViewRefreshErrors counts failed snapshot or requery fetches
	ViewRefreshErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dsm_view_refresh_errors_total",
			Help: "Failed view refreshes",
		},
		[]string{"view"},
	)

	//IncidentsInjected counts synthetic incidents created by operators
	IncidentsInjected = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dsm_incidents_injected_total",
			Help: "Synthetic incidents injected through the demo workflow",
		},
	)

	//MapRecenters counts how often the map target moved to a new incident
	MapRecenters = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dsm_map_recenters_total",
			Help: "Map re-centering events",
		},
	)

	//HeartbeatsReceived counts unit heartbeats by outcome
	HeartbeatsReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dsm_heartbeats_received_total",
			Help: "Unit heartbeats received over MQTT",
		},
		[]string{"result"},
	)

	//RealtimeClients is the number of connected realtime websocket clients
	RealtimeClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "dsm_realtime_clients",
			Help: "Connected realtime websocket clients",
		},
	)
)
