package main

import (
	"context"
	"errors"
	"log"
	"log/slog"

	enumspb "go.temporal.io/api/enums/v1"
	"go.temporal.io/api/serviceerror"
	"go.temporal.io/sdk/client"
	tlog "go.temporal.io/sdk/log"
	"go.temporal.io/sdk/worker"

	natsadapter "github.com/samirrijal/seoulbike/internal/adapters/nats"
	"github.com/samirrijal/seoulbike/internal/adapters/postgres"
	"github.com/samirrijal/seoulbike/internal/core/domain"
	"github.com/samirrijal/seoulbike/internal/core/ports"
	"github.com/samirrijal/seoulbike/internal/core/usecases"
	"github.com/samirrijal/seoulbike/internal/pkg/config"
	"github.com/samirrijal/seoulbike/internal/pkg/logging"
	"github.com/samirrijal/seoulbike/internal/workflows"
)

func main() {
	cfg, err := config.Load("seoulbike-archiver")
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger := logging.Setup(cfg.Log.Level, cfg.Log.Format)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := postgres.New(ctx, cfg.Database.DSN())
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer db.Close()

	var events ports.EventPublisher
	if pub, err := natsadapter.NewPublisher(cfg.NATS.URL); err != nil {
		slog.Warn("nats publisher unavailable, archive notifications disabled", "error", err)
	} else {
		defer pub.Close()
		events = pub
	}
	trips := usecases.NewTripService(postgres.NewTripRepo(db), events)

	// Connect to Temporal
	c, err := client.Dial(client.Options{
		HostPort:  cfg.Temporal.HostPort,
		Namespace: cfg.Temporal.Namespace,
		Logger:    tlog.NewStructuredLogger(logger),
	})
	if err != nil {
		log.Fatalf("temporal client: %v", err)
	}
	defer c.Close()

	w := worker.New(c, cfg.Temporal.TaskQueue, worker.Options{})
	w.RegisterWorkflow(workflows.TripArchiveWorkflow)
	w.RegisterActivity(&workflows.TripActivities{Trips: trips})

	sub, err := natsadapter.NewSubscriber(cfg.NATS.URL)
	if err != nil {
		log.Fatalf("nats subscriber: %v", err)
	}
	defer sub.Close()

	err = sub.SubscribeTrips(ctx, func(ctx context.Context, trip *domain.TripRecord) error {
		return startArchive(ctx, c, cfg.Temporal.TaskQueue, trip)
	})
	if err != nil {
		log.Fatalf("subscribe trips: %v", err)
	}

	slog.Info("archiver worker started", "task_queue", cfg.Temporal.TaskQueue)
	if err := w.Run(worker.InterruptCh()); err != nil {
		log.Fatalf("worker: %v", err)
	}
}

// startArchive starts the archive workflow of a trip. A trip whose workflow
// already ran is acknowledged without a new run.
func startArchive(ctx context.Context, c client.Client, queue string, trip *domain.TripRecord) error {
	opts := client.StartWorkflowOptions{
		ID:                    workflows.WorkflowID(trip.Key),
		TaskQueue:             queue,
		WorkflowIDReusePolicy: enumspb.WORKFLOW_ID_REUSE_POLICY_REJECT_DUPLICATE,
	}
	run, err := c.ExecuteWorkflow(ctx, opts, workflows.TripArchiveWorkflow, workflows.TripArchiveInput{Trip: *trip})
	var started *serviceerror.WorkflowExecutionAlreadyStarted
	switch {
	case errors.As(err, &started):
		slog.Debug("trip archive already started", "key", trip.Key)
		return nil
	case err != nil:
		slog.Error("start trip archive", "key", trip.Key, "error", err)
		return err
	}
	slog.Info("trip archive started", "key", trip.Key, "run_id", run.GetRunID())
	return nil
}
