package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/httprate"
	log "github.com/sirupsen/logrus"

	config "github.com/avvvet/rockefeller-services/configs"
	"github.com/avvvet/rockefeller-services/internal/archive"
	"github.com/avvvet/rockefeller-services/internal/board"
	"github.com/avvvet/rockefeller-services/internal/comm"
	"github.com/avvvet/rockefeller-services/internal/db"
	natscli "github.com/avvvet/rockefeller-services/internal/nats"
	"github.com/avvvet/rockefeller-services/internal/relay"
	"github.com/avvvet/rockefeller-services/internal/room"
	"github.com/avvvet/rockefeller-services/internal/roomsvc/broker"
	roomcfg "github.com/avvvet/rockefeller-services/internal/roomsvc/config"
	"github.com/avvvet/rockefeller-services/internal/roomsvc/handlers"
	"github.com/avvvet/rockefeller-services/internal/roomsvc/janitor"
)

const SERVICE_NAME = "room"

var instanceId string

func init() {
	instanceId = config.CreateUniqueInstance(SERVICE_NAME)
	config.Logging(SERVICE_NAME + "_service_" + instanceId)
	config.LoadEnv(SERVICE_NAME)
}

func main() {
	cfg, err := roomcfg.Load()
	if err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	// Connect to NATS
	n, err := natscli.Connect(SERVICE_NAME+" service "+instanceId, cfg.NatsURL, cfg.NatsToken)
	if err != nil {
		log.Fatalf("Error: unable to connect to NATS server %v", err)
	}
	defer n.Conn.Close()
	log.Printf("NATS connection established successfully %s", n.Url)

	// room updates go to the socket service over NATS, and optionally to the archive
	b := broker.NewBroker(n.Conn, cfg.SubjectPrefix, nil)
	sinks := room.MultiNotifier{b}

	ctx := context.Background()
	switch cfg.ArchiveDriver {
	case roomcfg.ArchivePostgres:
		pool, err := db.ConnectPostgres(ctx, cfg.PostgresURL)
		if err != nil {
			log.Fatalf("Failed to connect to postgres: %v", err)
		}
		defer pool.Close()

		pg, err := archive.NewPostgresArchive(ctx, pool)
		if err != nil {
			log.Fatalf("Failed to prepare room archive: %v", err)
		}
		sinks = append(sinks, pg)
		log.Info("room events archived to postgres")
	case roomcfg.ArchiveMongo:
		mdb, err := db.ConnectMongo(ctx, cfg.MongoURI)
		if err != nil {
			log.Fatalf("Failed to connect to mongodb: %v", err)
		}
		defer mdb.Client().Disconnect(context.Background())

		if err := db.CreateTTLIndex(ctx, mdb, archive.Collection); err != nil {
			log.Fatalf("Failed to create TTL index on %s: %v", archive.Collection, err)
		}
		sinks = append(sinks, archive.NewMongoArchive(mdb.Collection(archive.Collection), archive.DefaultRetention))
		log.Info("room events archived to mongodb")
	}

	notifier := room.NewAsyncNotifier(sinks, cfg.NotifyQueue, cfg.NotifyTimeout)

	rooms := room.NewManager(room.NewStore(),
		room.WithNotifier(notifier),
		room.WithGameState(board.Materialize),
	)
	b.Rooms = rooms // set manager reference for disconnect handling

	// subscribe to socket service
	sub, err := b.SubscribeSocketService(comm.SocketServiceTopic)
	if err != nil {
		log.Fatalf("Error: unable to subscribe to %s %v", comm.SocketServiceTopic, err)
	}
	membership, err := b.SubscribeMembership()
	if err != nil {
		log.Fatalf("Error: unable to subscribe to %s %v", comm.MembershipTopic, err)
	}

	janitorCtx, stopJanitor := context.WithCancel(ctx)
	go janitor.Run(janitorCtx, rooms, cfg.IdleTimeout, cfg.SweepInterval)

	// Setup router
	r := chi.NewRouter()
	c := config.CORS()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(config.CustomLoggerMiddleware())
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(c.Handler)

	// to protect the service api from any over requests
	r.Use(httprate.LimitByIP(cfg.RateLimit, 1*time.Minute))

	// Init handlers and routes
	h := handlers.NewHandler(rooms, cfg.RoomDefaults, relay.NewSigner(cfg.RelaySecret, cfg.RelayTokenTTL), cfg.JWTSecret, cfg.Port)
	h.SetRoutes(r)

	if log.IsLevelEnabled(log.DebugLevel) {
		if token, err := h.AdminToken(7 * 24 * time.Hour); err == nil {
			log.Debugf("DEBUG: admin JWT for testing: %s", token)
		}
	}

	// Create server with timeout settings
	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("ListenAndServe(): %v", err)
		}
	}()
	log.Infof("%s service running at port %s", SERVICE_NAME, server.Addr)

	// Wait for interrupt signal to gracefully shutdown the server
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	sub.Unsubscribe()
	membership.Unsubscribe()
	stopJanitor()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Errorf("%s service shutdown Failed:%+v", SERVICE_NAME, err)
	}

	notifier.Close()
	dropped, failed := notifier.Stats()
	log.Infof("%s service gracefully stopped (notifications dropped %d, failed %d)", SERVICE_NAME, dropped, failed)
}
