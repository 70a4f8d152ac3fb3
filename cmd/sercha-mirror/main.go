// Command sercha-mirror incrementally mirrors connector data into a local graph.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/custodia-labs/sercha-mirror/internal/adapters/driven/auth"
	"github.com/custodia-labs/sercha-mirror/internal/adapters/driven/config/file"
	"github.com/custodia-labs/sercha-mirror/internal/adapters/driven/eventbus"
	"github.com/custodia-labs/sercha-mirror/internal/adapters/driven/storage/firestore"
	"github.com/custodia-labs/sercha-mirror/internal/adapters/driven/storage/sqlite"
	"github.com/custodia-labs/sercha-mirror/internal/adapters/driving/cli"
	"github.com/custodia-labs/sercha-mirror/internal/connectors"
	"github.com/custodia-labs/sercha-mirror/internal/connectors/github"
	"github.com/custodia-labs/sercha-mirror/internal/core/domain"
	"github.com/custodia-labs/sercha-mirror/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-mirror/internal/core/services"
	"github.com/custodia-labs/sercha-mirror/internal/logger"
)

func main() {
	cli.SetBootstrap(bootstrap)
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}

// bootstrap wires the stores, connectors and core services.
func bootstrap(ctx context.Context, configPath string) (*cli.Services, error) {
	log := logger.Default()

	var (
		cfg *file.ConfigStore
		err error
	)
	if configPath != "" {
		cfg, err = file.OpenConfigStore(configPath)
	} else {
		cfg, err = file.NewConfigStore("")
	}
	if err != nil {
		return nil, err
	}

	storage := cfg.Storage()
	store, err := sqlite.NewStore(storage.DataDir)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}
	closers := []func() error{store.Close}

	var checkpoints driven.CheckpointStore = store.CheckpointStore()
	if storage.Checkpoints == domain.CheckpointFirestore {
		var opts []firestore.Option
		if storage.FirestoreCollection != "" {
			opts = append(opts, firestore.WithCollection(storage.FirestoreCollection))
		}
		fs, err := firestore.New(ctx, storage.FirestoreProject, storage.FirestoreDatabase, opts...)
		if err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("opening firestore checkpoints: %w", err)
		}
		checkpoints = fs
		closers = append(closers, fs.Close)
		log.Debug("checkpoints in firestore", "project", storage.FirestoreProject)
	}

	registry := services.NewConnectorRegistry(auth.NewFactory())
	connectors.RegisterBuiltin(registry)

	bus := eventbus.New()
	bus.Subscribe("log", eventbus.LogHandler())

	engine := cfg.Engine()
	graph := store.GraphStore()
	units := cfg.Units()

	resolver := services.NewResolver(graph)
	outbox := services.NewOutbox(graph, bus)
	locks := services.NewCommitLocks()
	materializer := services.NewMaterializer(graph, resolver, outbox, locks, engine)
	paginator := services.NewPaginator(engine)

	var scanner *services.PermissionScanner
	if engine.PermissionScan {
		scanner = services.NewPermissionScanner(graph, resolver, checkpoints, outbox, locks).
			WithMatcher(github.ConnectorType, services.KindMatcher{
				Kinds:       github.PermissionEventKinds,
				ObjectTypes: []string{github.AuditObjectIssue},
			})
	}

	runner := services.NewRunner(registry, checkpoints, paginator, materializer, scanner, outbox, engine)
	controller := services.NewController(units, store.SyncStateStore(), checkpoints, registry, runner, materializer)

	scheduler := services.NewScheduler(cfg.Scheduler(), store.SchedulerStore(), units, controller, outbox)

	return &cli.Services{
		Sync:        controller,
		Units:       units,
		Connectors:  registry,
		Scheduler:   scheduler,
		Recover:     controller.Recover,
		WatchConfig: cfg.Watch,
		Shutdown:    controller.Shutdown,
		Close: func() error {
			var errs []error
			for _, c := range closers {
				errs = append(errs, c())
			}
			return errors.Join(errs...)
		},
	}, nil
}
