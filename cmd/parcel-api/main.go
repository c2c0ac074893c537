// README: Entry point; loads config, wires services, starts HTTP server and background jobs.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"parcel/internal/config"
	httptransport "parcel/internal/http"
	"parcel/internal/infra"
	"parcel/internal/jobs"
	"parcel/internal/maps"
	"parcel/internal/modules/membership"
	"parcel/internal/modules/notify"
	"parcel/internal/modules/order"
	"parcel/internal/modules/tracking"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("load config")
	}
	logger := infra.NewLogger(cfg.Log.Level, cfg.Log.Format)
	log := logrus.NewEntry(logger).WithField("service", "parcel-api")
	if logger.GetLevel() < logrus.DebugLevel {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	firebaseApp, err := infra.NewFirebaseApp(ctx, cfg.Firebase.ProjectID, cfg.Firebase.CredentialsFile)
	if err != nil {
		log.WithError(err).Fatal("firebase init")
	}
	verifier, err := infra.NewFirebaseVerifier(ctx, firebaseApp)
	if err != nil {
		log.WithError(err).Fatal("firebase auth init")
	}

	dbPool, err := infra.NewDB(ctx, cfg.DB.DSN)
	if err != nil {
		log.WithError(err).Fatal("database init")
	}
	defer dbPool.Close()

	people := membership.NewStore(dbPool)

	fcmSink, err := notify.NewFCMSink(ctx, firebaseApp, log.WithField("component", "fcm"))
	if err != nil {
		log.WithError(err).Fatal("fcm init")
	}
	sinks := []notify.Sink{fcmSink}
	if cfg.AMQP.URL != "" {
		conn, err := infra.NewAMQP(cfg.AMQP.URL)
		if err != nil {
			log.WithError(err).Fatal("amqp init")
		}
		defer conn.Close()
		amqpSink, err := notify.NewAMQPSink(conn, cfg.AMQP.Exchange)
		if err != nil {
			log.WithError(err).Fatal("amqp sink init")
		}
		defer amqpSink.Close()
		sinks = append(sinks, amqpSink)
	}
	dispatcher := notify.NewDispatcher(cfg.Notify.Attempts, cfg.Notify.Backoff, log.WithField("component", "notify"), sinks...)

	deps := order.ServiceDeps{
		Store:    order.NewStore(dbPool),
		People:   people,
		Notifier: dispatcher,
		Logger:   log,
	}
	if cfg.Maps.APIKey != "" {
		geocoder, err := maps.NewGeocoder(cfg.Maps.APIKey, cfg.Maps.Region)
		if err != nil {
			log.WithError(err).Fatal("maps init")
		}
		deps.Geocoder = geocoder
	}
	orderSvc := order.NewService(deps)

	registry := tracking.NewRegistry()
	var bus tracking.Bus
	switch cfg.Tracking.Bus {
	case config.BusRedis:
		redisClient, err := infra.NewRedis(ctx, cfg.Redis.Addr)
		if err != nil {
			log.WithError(err).Fatal("redis init")
		}
		defer redisClient.Close()
		bus = tracking.NewRedisBus(redisClient, registry, log)
	default:
		bus = tracking.NewLocalBus(registry)
	}
	relay := tracking.NewRelay(orderSvc, bus, log.WithField("component", "relay"))
	orderSvc.SetPublisher(relay)
	admitter := tracking.NewAdmitter(orderSvc, membership.NewGuard(people))

	go func() {
		if err := bus.Run(ctx); err != nil {
			log.WithError(err).Error("tracking bus stopped")
		}
	}()

	jobManager := jobs.NewJobManager(log.WithField("component", "jobs"),
		jobs.NewHeartbeatJob(registry, cfg.Tracking.HeartbeatSchedule, cfg.Tracking.StaleAfter, log.WithField("job", "heartbeat")),
	)
	if err := jobManager.StartAll(); err != nil {
		log.WithError(err).Fatal("start jobs")
	}
	defer jobManager.StopAll()

	router := httptransport.NewRouter(httptransport.RouterDeps{
		Order:    orderSvc,
		Admitter: admitter,
		Registry: registry,
		Relay:    relay,
		Client: tracking.ClientConfig{
			WriteWait:      cfg.Tracking.WriteWait,
			PongWait:       cfg.Tracking.PongWait,
			PingPeriod:     cfg.Tracking.PingPeriod,
			MaxMessageSize: cfg.Tracking.MaxMessageSize,
			SendQueue:      cfg.Tracking.SendQueue,
		},
		Verifier: verifier,
		Logger:   log,
	})

	server := httptransport.NewServer(cfg.HTTP.Addr, router, cfg.HTTP.ShutdownTimeout, log)
	if err := server.Run(ctx); err != nil {
		log.WithError(err).Error("http server stopped")
	}
}
