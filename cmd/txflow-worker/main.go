// Command txflow-worker assembles the default Strategy stack (an in-process
// base strategy durably logged to Cassandra and mirrored to S3) behind a
// WorkflowEngine, then runs a sample REQUIRED transaction end-to-end to
// prove the wiring out at startup, the way a deployment's init script would.
package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/sharedcode/txflow"
	"github.com/sharedcode/txflow/aws_s3"
	"github.com/sharedcode/txflow/cassandra"
	"github.com/sharedcode/txflow/fs"
	"github.com/sharedcode/txflow/policy"
	"github.com/sharedcode/txflow/propagation"
	"github.com/sharedcode/txflow/redis"
	"github.com/sharedcode/txflow/strategy/memory"
	"github.com/sharedcode/txflow/strategy/s3"
	txcassandra "github.com/sharedcode/txflow/strategy/cassandra"
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

	if _, err := redis.OpenConnection(redis.Options{
		Address:  cfg.RedisOptions.Address,
		Password: cfg.RedisOptions.Password,
		DB:       cfg.RedisOptions.DB,
	}); err != nil {
		slog.Error("redis connection failed", "error", err)
		os.Exit(1)
	}
	defer redis.CloseConnection()

	if _, err := cassandra.OpenConnection(cassandra.Config{
		ClusterHosts: cfg.CassandraHosts,
		Keyspace:     cfg.CassandraKeyspace,
	}); err != nil {
		slog.Error("cassandra connection failed", "error", err)
		os.Exit(1)
	}
	defer cassandra.CloseConnection()

	s3Client := aws_s3.Connect(aws_s3.Config{
		HostEndpointUrl: cfg.S3HostEndpointUrl,
		Region:          cfg.S3Region,
		Username:        cfg.S3Username,
		Password:        cfg.S3Password,
	})

	bucketMgr, err := aws_s3.NewManageBucket(s3Client, cfg.S3Region)
	if err != nil {
		slog.Error("building bucket manager failed", "error", err)
		os.Exit(1)
	}
	ctx := context.Background()
	if err := bucketMgr.CreateBlobStore(ctx, cfg.S3Bucket); err != nil {
		slog.Warn("bucket may already exist", "bucket", cfg.S3Bucket, "error", err)
	}

	dataShards, parityShards := cfg.ErasureDataShards, cfg.ErasureParityShards
	if dataShards == 0 {
		dataShards, parityShards = 2, 1
	}

	base := memory.New()
	logged := txcassandra.New(base, cassandra.NewTransactionLog())
	durable, err := s3.New(logged, s3Client, cfg.S3Bucket, fs.ErasureCodingConfig{
		DataShardsCount:   dataShards,
		ParityShardsCount: parityShards,
	})
	if err != nil {
		slog.Error("building s3-backed strategy failed", "error", err)
		os.Exit(1)
	}

	opts := propagation.DefaultEngineOptions()
	if cfg.ParticipationPolicy != "" {
		validator, err := policy.NewValidator(cfg.ParticipationPolicy)
		if err != nil {
			slog.Error("compiling participation policy failed", "error", err)
			os.Exit(1)
		}
		opts.Validator = validator
	}
	engine := propagation.NewWorkflowEngine(durable, opts)

	rctx := propagation.WithRegistry(ctx)
	status, err := engine.GetTransaction(rctx, propagation.Definition{
		Propagation: propagation.REQUIRED,
		Name:        "startup-smoke-test",
	})
	if err != nil {
		slog.Error("startup transaction failed to begin", "error", err)
		os.Exit(1)
	}
	if err := engine.Commit(rctx, status); err != nil {
		slog.Error("startup transaction failed to commit", "error", err)
		os.Exit(1)
	}
	slog.Info("txflow-worker ready", "bucket", cfg.S3Bucket, "keyspace", cfg.CassandraKeyspace)
}
