package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"trackcore/config"
	"trackcore/fleetstate"
	"trackcore/geocode"
	"trackcore/messaging"
	"trackcore/realtime"
	"trackcore/store"
	"trackcore/www"
)

var Version = "dev"

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	configPath := flag.String("config", "trackcore.yaml", "path to config file")
	flag.Parse()

	if *showVersion {
		fmt.Println("trackcore", Version)
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	// Database
	db, err := store.Open(&cfg.Database)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer db.Close()
	log.Printf("trackcore: database open (%s)", cfg.Database.Driver)

	// Redis
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Address,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	var redisStore *fleetstate.RedisStore
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Printf("trackcore: redis not available (%v), running without cache", err)
	} else {
		log.Printf("trackcore: redis connected (%s)", cfg.Redis.Address)
		redisStore = fleetstate.NewRedisStore(redisClient)
	}
	cancel()
	defer redisClient.Close()

	// Realtime hub and the last-known-position cache
	hub := realtime.NewHub(realtime.BestEffort())
	fleet := fleetstate.NewManager(redisStore)
	hub.OnEvent(fleet.Tap())

	// Outbound event mirror (Kafka)
	msgClient := messaging.NewClient(&cfg.Messaging)
	if err := msgClient.Connect(); err != nil {
		log.Printf("trackcore: messaging connect failed (%v)", err)
	} else {
		log.Printf("trackcore: messaging connected (kafka)")
		mirror := messaging.NewMirror(msgClient, cfg.Messaging.MirrorTopic)
		mirror.Start()
		defer mirror.Stop()
		hub.OnEvent(mirror.Tap())
	}
	defer msgClient.Close()

	// Driver position ingest (MQTT)
	ingest := messaging.NewIngest(&cfg.Messaging.MQTT, hub)
	if cfg.Messaging.MQTT.Broker != "" {
		if err := ingest.Start(); err != nil {
			log.Printf("trackcore: mqtt ingest failed (%v)", err)
		} else {
			defer ingest.Stop()
		}
	}

	// Routing engine (ETA lookups)
	geo := geocode.New(&cfg.Geocode)
	if geo.Enabled() {
		pingCtx, pingCancel := context.WithTimeout(context.Background(), 3*time.Second)
		if err := geo.Ping(pingCtx); err == nil {
			log.Printf("trackcore: routing engine connected (%s)", geo.Name())
		} else {
			log.Printf("trackcore: routing engine not available (%v)", err)
		}
		pingCancel()
	}

	// Web server. Connect tokens are driver codes; a match attaches a
	// driver identity to the session, anything else stays anonymous.
	handler := www.NewRouter(www.Deps{
		Hub:     hub,
		DB:      db,
		Fleet:   fleet,
		Geocode: geo,
		Config:  cfg,
		VerifyToken: func(token string) (string, bool) {
			d, err := db.GetDriverByCode(token)
			if err != nil || !d.Active {
				return "", false
			}
			return "driver:" + d.Code, true
		},
	})

	addr := fmt.Sprintf("%s:%d", cfg.Web.Host, cfg.Web.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: handler,
	}

	go func() {
		log.Printf("trackcore: web server listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("web server: %v", err)
		}
	}()

	log.Printf("trackcore: ready")

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Printf("trackcore: shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	srv.Shutdown(shutdownCtx)

	log.Printf("trackcore: stopped")
}
