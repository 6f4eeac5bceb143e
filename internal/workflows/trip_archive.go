package workflows

import (
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/samirrijal/seoulbike/internal/core/domain"
)

// TaskQueue is the default task queue of the archive worker.
const TaskQueue = "seoulbike-archive"

// TripArchiveInput is the input for the trip archive workflow.
type TripArchiveInput struct {
	Trip domain.TripRecord
}

// TripArchiveResult reports what the workflow did.
type TripArchiveResult struct {
	Inserted bool
	Notified bool
}

// WorkflowID is the id a trip's archive workflow runs under, so a trip
// announced twice is archived once.
func WorkflowID(tripKey string) string {
	return "trip-" + tripKey
}

// TripArchiveWorkflow stores a newly seen trip and announces it once it is
// durable. A failed announcement does not undo the archive.
func TripArchiveWorkflow(ctx workflow.Context, input TripArchiveInput) (TripArchiveResult, error) {
	logger := workflow.GetLogger(ctx)
	logger.Info("Starting trip archive workflow", "key", input.Trip.Key)

	actOpts := workflow.ActivityOptions{
		StartToCloseTimeout: 30 * time.Second,
		RetryPolicy: &temporal.RetryPolicy{
			MaximumAttempts: 3,
		},
	}
	ctx = workflow.WithActivityOptions(ctx, actOpts)

	var res TripArchiveResult
	if err := workflow.ExecuteActivity(ctx, "ArchiveTrip", input.Trip).Get(ctx, &res.Inserted); err != nil {
		return res, err
	}
	if !res.Inserted {
		logger.Info("Trip already archived", "key", input.Trip.Key)
		return res, nil
	}

	if err := workflow.ExecuteActivity(ctx, "NotifyArchived", input.Trip).Get(ctx, nil); err != nil {
		logger.Warn("archive notification failed", "key", input.Trip.Key, "error", err)
		return res, nil
	}
	res.Notified = true

	logger.Info("Trip archived", "key", input.Trip.Key)
	return res, nil
}
