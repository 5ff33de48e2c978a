package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"github.com/yeremiapane/floor-ops/config"
	"github.com/yeremiapane/floor-ops/database"
	"github.com/yeremiapane/floor-ops/kds"
	"github.com/yeremiapane/floor-ops/provision"
	"github.com/yeremiapane/floor-ops/router"
	"github.com/yeremiapane/floor-ops/services"
	"github.com/yeremiapane/floor-ops/utils"
)

func main() {
	envFile := pflag.String("env-file", ".env", "dotenv file to load before reading the environment")
	seedFile := pflag.String("seed", "", "YAML floor plan to upsert after migrating")
	migrateOnly := pflag.Bool("migrate-only", false, "migrate (and seed) then exit")
	pflag.Parse()

	cfg, err := config.Load(*envFile)
	if err != nil {
		utils.ErrorLogger.Fatalf("Failed to load config: %v", err)
	}
	utils.InitLogger(cfg.LogLevel)

	if cfg.GinMode == gin.ReleaseMode {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := config.InitDB(cfg)
	if err != nil {
		utils.ErrorLogger.Fatalf("Failed to connect to database: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		utils.ErrorLogger.Fatalf("Failed to migrate: %v", err)
	}

	if *seedFile != "" {
		plan, err := provision.LoadFile(*seedFile)
		if err != nil {
			utils.ErrorLogger.Fatalf("Failed to read floor plan: %v", err)
		}
		if _, err := provision.Apply(context.Background(), db, plan); err != nil {
			utils.ErrorLogger.Fatalf("Failed to seed floor plan: %v", err)
		}
	}
	if *migrateOnly {
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	hub := kds.NewHub(cfg.SubscriberBuffer)
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()

		relay := kds.NewRelay(hub, kds.NewRedisTransport(rdb), cfg.Redis.Channel)
		if err := relay.Start(ctx); err != nil {
			utils.ErrorLogger.Fatalf("Failed to start event relay: %v", err)
		}
		defer relay.Stop()
		utils.InfoLogger.WithFields(logrus.Fields{
			"addr":    cfg.Redis.Addr,
			"channel": cfg.Redis.Channel,
			"origin":  relay.Origin,
		}).Info("event relay started")
	}

	engine := services.NewEngine(db, hub, services.NewGormCatalog(db), services.Options{
		TxTimeout:                cfg.TxTimeout,
		StaleRetries:             cfg.StaleWriteRetries,
		DefaultTaxRate:           cfg.DefaultTaxRate,
		DefaultServiceChargeRate: cfg.DefaultServiceChargeRate,
		TokenHashCost:            cfg.TokenHashCost,
	})

	r := router.SetupRouter(router.Deps{
		DB:              db,
		Engine:          engine,
		Projector:       services.NewFloorProjector(db),
		AuditLog:        services.NewAuditLog(db),
		Hub:             hub,
		JWTSecret:       []byte(cfg.JWTSecret),
		CORSOrigin:      cfg.CORSOrigin,
		Heartbeat:       cfg.SSEHeartbeat,
		GuestRatePerSec: cfg.GuestRatePerSec,
		GuestBurst:      cfg.GuestBurst,
	})
	if err := r.SetTrustedProxies(nil); err != nil {
		utils.ErrorLogger.WithError(err).Warn("trusted proxies")
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		// Request contexts end with ctx, which closes open SSE streams on shutdown.
		BaseContext: func(net.Listener) context.Context { return ctx },
	}
	go func() {
		utils.InfoLogger.Printf("Listening on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			utils.ErrorLogger.Fatal(err)
		}
	}()

	<-ctx.Done()
	utils.InfoLogger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		utils.ErrorLogger.WithError(err).Error("graceful shutdown failed")
	}
}
