// Command token mints an access/refresh pair for a user id so the API can be
// exercised without the external identity provider.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"os"

	"github.com/golang/glog"

	"Community_Sync/internal/config"
	"Community_Sync/internal/pkg"
	"Community_Sync/internal/repository/redis"
	"Community_Sync/internal/service"
)

func main() {
	userID := flag.String("user", "", "user id to issue tokens for")
	flag.Parse()
	defer glog.Flush()

	if *userID == "" {
		glog.Exit("-user is required")
	}

	cfg, err := config.Load()
	if err != nil {
		glog.Exitf("load config: %v", err)
	}

	var store service.TokenStore
	if cfg.RedisAddr != "" {
		if err := redis.Init(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB); err != nil {
			glog.Exitf("init redis: %v", err)
		}
		defer redis.Close()
		store = redis.NewTokenRepository(redis.Client)
	}

	svc := service.NewTokenService(pkg.NewTokenManager(cfg.JWTAccessSecret, cfg.JWTRefreshSecret), store)
	pair, err := svc.Issue(context.Background(), *userID)
	if err != nil {
		glog.Exitf("issue token: %v", err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(pair); err != nil {
		glog.Exitf("write token: %v", err)
	}
}
