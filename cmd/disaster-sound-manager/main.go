package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/iot-for-tillgenglighet/messaging-golang/pkg/messaging"

	"github.com/tahought/DisasterSoundManager/internal/pkg/application"
	"github.com/tahought/DisasterSoundManager/internal/pkg/dashboard"
	"github.com/tahought/DisasterSoundManager/internal/pkg/infrastructure/changefeed"
	"github.com/tahought/DisasterSoundManager/internal/pkg/infrastructure/config"
	"github.com/tahought/DisasterSoundManager/internal/pkg/infrastructure/heartbeat"
	"github.com/tahought/DisasterSoundManager/internal/pkg/infrastructure/logging"
	"github.com/tahought/DisasterSoundManager/internal/pkg/infrastructure/repositories/database"
	"github.com/tahought/DisasterSoundManager/internal/pkg/presentation/web"
)

func main() {

	serviceName := "disaster-sound-manager"

	cfg := config.Load(serviceName)

	log := logging.NewLoggerWithLevel(cfg.LogLevel)
	log.Infof("Starting up %s ...", serviceName)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	feed := changefeed.NewInMemoryBroker(log)
	defer feed.Close()

	db, err := database.NewDatabaseConnection(database.NewPostgreSQLConnector(log), feed, log)
	if err != nil {
		log.Fatalf("Failed to connect to database: %s", err.Error())
	}

	var messenger application.MessagingContext
	if cfg.RabbitMQHost != "" {
		msgCtx, err := messaging.Initialize(messaging.LoadConfiguration(serviceName))
		if err != nil {
			log.Errorf("Failed to initialize messaging, incident notifications are disabled: %s", err.Error())
		} else {
			defer msgCtx.Close()
			messenger = msgCtx
		}
	}

	if cfg.MQTTBroker != "" {
		listener := heartbeat.NewListener(db, cfg.MQTTHeartbeatTopic, log)
		mqttClient, err := heartbeat.NewClient(heartbeat.ClientConfig{
			Broker:   cfg.MQTTBroker,
			ClientID: cfg.MQTTClientID,
			Username: cfg.MQTTUsername,
			Password: cfg.MQTTPassword,
			Topic:    cfg.MQTTHeartbeatTopic,
		}, listener, log)
		if err != nil {
			log.Errorf("Heartbeat ingestion is disabled: %s", err.Error())
		} else {
			defer mqttClient.Close()
		}
	}

	pages, err := web.NewPages()
	if err != nil {
		log.Fatalf("Failed to parse page templates: %s", err.Error())
	}

	views := dashboard.New(db, log)
	svc := application.Services{
		Log:           log,
		DB:            db,
		Dashboard:     views,
		Operator:      dashboard.NewOperator(db, views.Feed, views.Units, log),
		Auth:          application.NewBcryptAuthenticator(cfg.AdminEmail, cfg.AdminPasswordHash, log),
		Hub:           application.NewHub(log),
		Pages:         pages,
		SessionMaxAge: cfg.SessionMaxAge,
	}

	if err = application.Mount(ctx, svc, feed, messenger); err != nil {
		log.Fatalf("Failed to mount dashboard views: %s", err.Error())
	}

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           application.CreateRequestRouter(svc),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Infof("Starting %s on port %s.", serviceName, cfg.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal(err)
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down ...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err = server.Shutdown(shutdownCtx); err != nil {
		log.Errorf("Graceful shutdown failed: %s", err.Error())
	}
}
