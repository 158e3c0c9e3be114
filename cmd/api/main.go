package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/golang/glog"

	"Community_Sync/internal/config"
	"Community_Sync/internal/docstore"
	"Community_Sync/internal/middleware"
	"Community_Sync/internal/pkg"
	"Community_Sync/internal/repository/mysql"
	"Community_Sync/internal/repository/redis"
	"Community_Sync/internal/router"
	"Community_Sync/internal/service"
)

func main() {
	flag.Parse()
	defer glog.Flush()

	cfg, err := config.Load()
	if err != nil {
		glog.Fatalf("load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var store docstore.Store
	if cfg.MySQLDSN != "" {
		if err := mysql.InitDB(cfg.MySQLDSN); err != nil {
			glog.Fatalf("init mysql: %v", err)
		}
		defer mysql.Close()
		store = mysql.NewDocumentStore(mysql.DB)
	} else {
		glog.Warning("MYSQL_DSN not set, using in-memory document store")
		store = docstore.NewMemoryStore()
	}

	var (
		guard      service.Guard
		checker    middleware.TokenChecker
		tokenStore service.TokenStore
	)
	if cfg.RedisAddr != "" {
		if err := redis.Init(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB); err != nil {
			glog.Fatalf("init redis: %v", err)
		}
		defer redis.Close()
		tokenRepo := redis.NewTokenRepository(redis.Client)
		guard, checker, tokenStore = redis.NewInflightLock(redis.Client), tokenRepo, tokenRepo
	} else {
		glog.Warning("REDIS_ADDR not set, tokens are checked by signature only")
	}

	var publisher service.EventPublisher
	if producer := pkg.NewKafkaProducer(pkg.KafkaConfig{Brokers: cfg.KafkaBrokersList(), Topic: cfg.KafkaTopic}); producer != nil {
		defer producer.Close()
		publisher = service.NewKafkaEventPublisher(producer)
		glog.Infof("publishing membership events to %s", producer.Topic())
	}

	if cfg.ReconcileInterval > 0 {
		if mysql.DB == nil {
			glog.Warning("RECONCILE_INTERVAL set without MYSQL_DSN, reconciler disabled")
		} else {
			rec := service.NewMemberCountReconciler(&mysql.MemberCountReconcilerRepo{DB: mysql.DB}, cfg.ReconcileBatchSize, cfg.ReconcileInterval)
			go rec.ReconcilerRun(ctx)
		}
	}

	hub := service.NewSessionHub(store, guard, publisher, cfg.SessionIdleTTL)
	go hub.Run(ctx)

	tokens := pkg.NewTokenManager(cfg.JWTAccessSecret, cfg.JWTRefreshSecret)
	r := router.InitRouter(router.Deps{
		Hub:          hub,
		Tokens:       tokens,
		TokenService: service.NewTokenService(tokens, tokenStore),
		Checker:      checker,
	})

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: r}
	go func() {
		glog.Infof("listening on %s", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			glog.Fatalf("serve: %v", err)
		}
	}()

	<-ctx.Done()
	glog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		glog.Errorf("shutdown: %v", err)
	}
}
