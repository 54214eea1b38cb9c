package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	natscli "github.com/avvvet/rockefeller-services/internal/nats"
	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/httprate"
	log "github.com/sirupsen/logrus"

	config "github.com/avvvet/rockefeller-services/configs"

	"github.com/avvvet/rockefeller-services/internal/relay"
	"github.com/avvvet/rockefeller-services/internal/socketsvc/broker"
	"github.com/avvvet/rockefeller-services/internal/socketsvc/routes"
	"github.com/avvvet/rockefeller-services/internal/socketsvc/ws"
)

const SERVICE_NAME = "socket"

var instanceId string

func init() {
	instanceId = config.CreateUniqueInstance(SERVICE_NAME)
	config.Logging(SERVICE_NAME + "_service_" + instanceId)
	config.LoadEnv(SERVICE_NAME)
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func main() {
	port := getenv("SOCKET_SERVICE_PORT", "8001")
	prefix := getenv("ROOM_SUBJECT_PREFIX", "room")

	// Connect to NATS
	n, err := natscli.Connect(SERVICE_NAME+" service "+instanceId, "", "")
	if err != nil {
		log.Fatalf("Error: unable to connect to NATS server %v", err)
	}
	defer n.Conn.Close()
	log.Printf("NATS connection established successfully %s", n.Url)

	// Setup router
	r := chi.NewRouter()
	c := config.CORS()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(config.CustomLoggerMiddleware())
	r.Use(c.Handler)

	// to protect the service api from any over requests
	rateLimit, err := strconv.Atoi(getenv("RATE_LIMIT", "100"))
	if err != nil {
		log.Fatalf("Invalid RATE_LIMIT value: %v", err)
	}
	r.Use(httprate.LimitByIP(rateLimit, 1*time.Minute))

	// Initialize websocket handler
	s := ws.NewWs()
	if secret := os.Getenv("RELAY_SECRET"); secret != "" {
		s.Tokens = relay.NewSigner(secret, 0)
		log.Info("room subscriptions require a relay connection token")
	}

	// Initialize routes
	routes.SetRoutes(r, s, port)

	// Initialize broker, websocket lookups injected
	b := broker.NewBroker(n.Conn, prefix, s.Forward, s.GetRoomSockets, s.ReleaseRoom)
	s.Broker = b // set broker reference for websocket handler logic
	if getenv("CHECK_MEMBERSHIP", "true") != "false" {
		s.Members = b
	}

	// subscribe to room updates
	sub, err := b.SubscribeRooms()
	if err != nil {
		log.Fatalf("Error: unable to subscribe to room updates %v", err)
	}

	// Create server with timeout settings
	server := &http.Server{
		Addr:        ":" + port,
		Handler:     r,
		ReadTimeout: 60 * time.Second,
		IdleTimeout: 60 * time.Second,
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

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Errorf("%s service shutdown Failed:%+v", SERVICE_NAME, err)
	}
	log.Infof("%s service gracefully stopped", SERVICE_NAME)
}
