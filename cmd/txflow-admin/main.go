// Command txflow-admin runs the observability HTTP surface for a txflow
// deployment: transaction outcome counters and a cache health check.
package main

import (
	"log/slog"
	"os"

	"github.com/sharedcode/txflow"
	"github.com/sharedcode/txflow/api"
	"github.com/sharedcode/txflow/redis"
)

func main() {
	txflow.ConfigureLogging()

	cfgPath := os.Getenv("TXFLOW_CONFIG")
	if cfgPath == "" {
		cfgPath = "txflow.json"
	}
	cfg, err := txflow.LoadConfiguration(cfgPath)
	if err != nil {
		slog.Warn("could not load configuration, falling back to defaults", "path", cfgPath, "error", err)
	}

	cache := redis.NewConnectionClient(redis.Options{
		Address:  cfg.RedisOptions.Address,
		Password: cfg.RedisOptions.Password,
		DB:       cfg.RedisOptions.DB,
	})
	defer cache.Close()

	recorder := api.NewRecorder()
	server := api.NewServer(cache, recorder)

	addr := os.Getenv("TXFLOW_ADMIN_ADDR")
	if addr == "" {
		addr = "localhost:8080"
	}
	if err := server.Run(addr); err != nil {
		slog.Error("admin server exited", "error", err)
		os.Exit(1)
	}
}
