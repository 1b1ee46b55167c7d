package application

import (
	"compress/flate"
	"context"
	"net/http"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/iot-for-tillgenglighet/messaging-golang/pkg/messaging"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"github.com/tahought/DisasterSoundManager/internal/pkg/dashboard"
	"github.com/tahought/DisasterSoundManager/internal/pkg/infrastructure/changefeed"
	"github.com/tahought/DisasterSoundManager/internal/pkg/infrastructure/logging"
	"github.com/tahought/DisasterSoundManager/internal/pkg/infrastructure/repositories/database"
	"github.com/tahought/DisasterSoundManager/internal/pkg/presentation/web"
)

//RequestRouter wraps the concrete router implementation
type RequestRouter struct {
	impl *chi.Mux
}

//Get accepts a pattern that should be routed to the handlerFn on a GET request
func (router *RequestRouter) Get(pattern string, handlerFn http.HandlerFunc) {
	router.impl.Get(pattern, handlerFn)
}

//Patch accepts a pattern that should be routed to the handlerFn on a PATCH request
func (router *RequestRouter) Patch(pattern string, handlerFn http.HandlerFunc) {
	router.impl.Patch(pattern, handlerFn)
}

//Post accepts a pattern that should be routed to the handlerFn on a POST request
func (router *RequestRouter) Post(pattern string, handlerFn http.HandlerFunc) {
	router.impl.Post(pattern, handlerFn)
}

//Delete accepts a pattern that should be routed to the handlerFn on a DELETE request
func (router *RequestRouter) Delete(pattern string, handlerFn http.HandlerFunc) {
	router.impl.Delete(pattern, handlerFn)
}

//ServeHTTP lets the router be used as the server's root handler
func (router *RequestRouter) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	router.impl.ServeHTTP(w, r)
}

func newRequestRouter() *RequestRouter {
	router := &RequestRouter{impl: chi.NewRouter()}

	router.impl.Use(cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete},
		AllowCredentials: true,
		Debug:            false,
	}).Handler)

	// The logger must wrap the raw response writer so that websocket upgrades can hijack it
	router.impl.Use(middleware.Logger)

	// Enable gzip compression for json and ngsi-ld responses
	compressor := middleware.NewCompressor(flate.DefaultCompression, "application/json", "application/ld+json", "text/html")
	router.impl.Use(compressor.Handler)

	return router
}

//MessagingContext is an interface that allows mocking of messaging.Context parameters
type MessagingContext interface {
	PublishOnTopic(message messaging.TopicMessage) error
}

//Services holds what the HTTP surface is built on
type Services struct {
	Log       logging.Logger
	DB        database.Datastore
	Dashboard *dashboard.Dashboard
	Operator  *dashboard.Operator
	Auth      Authenticator
	Hub       *Hub
	Pages     *web.Pages
	//SessionMaxAge is the lifetime of the session cookies in seconds
	SessionMaxAge int
}

//CreateRequestRouter registers every route of the service
func CreateRequestRouter(svc Services) *RequestRouter {
	router := newRequestRouter()

	api := &apiHandlers{svc: svc}
	pages := &pageHandlers{svc: svc}
	sessions := &sessionHandlers{svc: svc}

	router.Get("/health", healthHandler)
	router.impl.Handle("/metrics", promhttp.Handler())
	router.impl.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.FS(web.Static()))))

	router.addNGSIHandlers(createContextRegistry(svc.Log, svc.DB))

	router.Get("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/dashboard", http.StatusFound)
	})

	router.impl.Group(func(r chi.Router) {
		r.Use(redirectAuthenticated)
		r.Get("/login", pages.login)
		r.Post("/login", sessions.login)
	})
	router.Post("/logout", sessions.logout)

	router.impl.With(requireSession(false)).Get("/dashboard", pages.dashboard)

	router.impl.Route("/api", func(r chi.Router) {
		r.Use(requireSession(true))

		r.Get("/incidents", api.listIncidents)
		r.Patch("/incidents/{id}/status", api.setIncidentStatus)
		r.Get("/incidents/{id}/audio", api.incidentAudio)

		r.Get("/units", api.listUnits)
		r.Patch("/units/{id}/threshold", api.setUnitThreshold)
		r.Delete("/units/{id}", api.deleteUnit)

		r.Get("/map", api.mapState)
		r.Get("/chart", api.chart)

		r.Post("/demo/incidents", api.injectIncident)

		r.Get("/realtime", svc.Hub.ServeWS)
	})

	return router
}

//Mount starts everything that follows the change feed on behalf of the HTTP surface:
//the dashboard views, the realtime hub and, when a messenger is given, incident notifications
func Mount(ctx context.Context, svc Services, feed changefeed.Subscriber, messenger MessagingContext) error {
	go svc.Hub.Run(ctx)

	svc.Dashboard.OnChange(svc.Hub.NotifyChanged)

	if err := svc.Dashboard.Mount(ctx, feed); err != nil {
		return err
	}

	if messenger != nil {
		notifier := newIncidentNotifier(messenger, svc.Log)
		if err := notifier.Mount(ctx, feed); err != nil {
			return err
		}
	}

	return nil
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
