// Command txcoordinatord runs the coordinator process: it loads
// configuration from the environment, opens the Cassandra/Redis session,
// starts the garbage collector, and serves the HTTP facade.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/txcoord/txcoord"
	"github.com/txcoord/txcoord/api"
	"github.com/txcoord/txcoord/audit"
	"github.com/txcoord/txcoord/config"
	"github.com/txcoord/txcoord/coordinator"
	"github.com/txcoord/txcoord/gc"
	"github.com/txcoord/txcoord/policy"
	"github.com/txcoord/txcoord/store"
	"github.com/txcoord/txcoord/store/cassandra"
	"github.com/txcoord/txcoord/store/redisstore"
)

func main() {
	app := &cli.App{
		Name:  "txcoordinatord",
		Usage: "distributed transaction coordinator",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Usage: "unused placeholder; configuration is read from the environment"},
		},
		Action: run,
	}
	if err := app.Run(os.Args); err != nil {
		slog.Error("txcoordinatord exited", "err", err)
		os.Exit(1)
	}
}

func run(*cli.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	txcoord.ConfigureLogging(cfg.LogLevel)

	gcCfg := gc.Config{
		Interval:  cfg.GCInterval,
		TxTimeout: cfg.TxTimeout,
		Deadline:  cfg.CallDeadline,
	}
	if cfg.GCPolicyExpr != "" {
		p, err := policy.New(cfg.GCPolicyExpr, cfg.TxTimeout)
		if err != nil {
			return fmt.Errorf("compiling GC policy: %w", err)
		}
		gcCfg.Policy = p
	}

	open := func() (store.PersistentStore, store.EphemeralStore, error) {
		persistent, err := cassandra.Open(cassandra.Config{
			ClusterHosts: cfg.CassandraHosts,
			Keyspace:     cfg.CassandraKeyspace,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("connecting to cassandra: %w", err)
		}
		ephemeral := redisstore.Open(redisstore.Options{
			Address:  cfg.RedisAddress,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		return persistent, ephemeral, nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	coord, err := coordinator.New(ctx, open, coordinator.Config{
		CallDeadline:   cfg.CallDeadline,
		MaxCallRetries: 5,
		MaxGroupsForXG: cfg.MaxGroupsForXG,
		GC:             gcCfg,
		AuditBucket:    cfg.S3Bucket,
		Audit: audit.Config{
			HostEndpointURL: cfg.S3EndpointURL,
			Region:          cfg.S3Region,
			Username:        cfg.S3Username,
			Password:        cfg.S3Password,
			Bucket:          cfg.S3Bucket,
		},
	})
	if err != nil {
		return fmt.Errorf("starting coordinator: %w", err)
	}
	defer func() {
		if err := coord.Close(); err != nil {
			slog.Error("closing coordinator", "err", err)
		}
	}()

	if cfg.S3Bucket != "" {
		go runAuditLoop(ctx, coord, cfg.GCInterval)
	}

	server := api.NewServer(coord, api.AuthConfig{
		Env:          cfg.Env,
		OktaDomain:   cfg.OktaDomain,
		OktaClientID: cfg.OktaClientID,
		QAToken:      cfg.QAToken,
	})

	srv := server.Router()
	slog.Info("listening", "address", cfg.HTTPListenAddress)
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Run(cfg.HTTPListenAddress) }()

	select {
	case <-ctx.Done():
		slog.Info("shutting down")
		return nil
	case err := <-errCh:
		return err
	}
}

// runAuditLoop periodically archives every application's blacklist to S3
// until ctx is canceled. A failed snapshot for one app is logged and
// skipped rather than aborting the rest of the pass.
func runAuditLoop(ctx context.Context, coord *coordinator.Coordinator, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			apps, err := coord.ListApps(ctx)
			if err != nil {
				slog.Error("listing apps for audit archival", "err", err)
				continue
			}
			for _, app := range apps {
				if err := coord.ArchiveBlacklist(ctx, app); err != nil {
					slog.Error("archiving blacklist", "app", app, "err", err)
				}
			}
		}
	}
}
