package commands

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/samirrijal/seoulbike/internal/adapters/bikeseoul"
	"github.com/samirrijal/seoulbike/internal/adapters/openapi"
	"github.com/samirrijal/seoulbike/internal/adapters/valkey"
	"github.com/samirrijal/seoulbike/internal/core/domain"
	"github.com/samirrijal/seoulbike/internal/core/usecases"
	"github.com/samirrijal/seoulbike/internal/pkg/config"
)

var snapshotCached bool

func init() {
	snapshotCmd.Flags().BoolVar(&snapshotCached, "cached", false, "Read the poller's cached snapshot instead of polling.")
	rootCmd.AddCommand(snapshotCmd)
}

var snapshotCmd = &cobra.Command{
	Use:   "snapshot [--cached]",
	Short: "Runs one update cycle and prints the resulting snapshot.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load("seoulbikectl")
		if err != nil {
			return err
		}

		if snapshotCached {
			cache, err := valkey.New(cfg.Valkey.Addr)
			if err != nil {
				return err
			}
			defer cache.Close()
			snap, err := usecases.NewSnapshotCache(cache, 0).Load(cmd.Context())
			if err != nil {
				return fmt.Errorf("load cached snapshot: %w", err)
			}
			return printJSON(cmd.OutOrStdout(), snap)
		}

		timeout := time.Duration(cfg.Bike.RequestTimeout) * time.Second
		deps := usecases.Deps{
			Location: usecases.HomeLocation{Point: domain.GeoPoint{Lat: cfg.Nearby.HomeLat, Lon: cfg.Nearby.HomeLon}},
			Logger:   slog.Default(),
		}
		if cfg.Bike.Mode == "api_key" {
			deps.Source = openapi.New(openapi.Options{
				Host:     cfg.Bike.OpenAPIHost,
				Key:      cfg.Bike.APIKey,
				Timeout:  timeout,
				PageSize: cfg.Bike.PageSize,
				MaxPages: cfg.Bike.MaxPages,
				Retries:  cfg.Bike.PageRetries,
			})
		} else {
			site, err := bikeseoul.New(bikeseoul.Options{
				BaseURL:  cfg.Bike.BaseURL,
				Cookie:   cfg.Bike.Cookie,
				Timeout:  timeout,
				Location: cfg.Bike.Location(),
			})
			if err != nil {
				return err
			}
			deps.Site = site
		}

		coord, err := usecases.NewCoordinator(deps, usecases.Options{
			Auth:          cfg.Bike.AuthMode(),
			StationInputs: cfg.Bike.StationIDs,
			Nearby: usecases.NearbyOptions{
				Radius:     cfg.Nearby.Radius,
				MinBikes:   cfg.Nearby.MinBikes,
				MaxResults: cfg.Nearby.MaxResults,
			},
			HistoryPeriods: cfg.Bike.HistoryPeriods,
			CountPolicy:    cfg.Bike.CountPolicy(),
			Location:       cfg.Bike.Location(),
		})
		if err != nil {
			return err
		}
		coord.Init(cmd.Context())

		// A failed cycle still publishes an error snapshot worth printing.
		cycleErr := coord.Refresh(cmd.Context())
		if snap := coord.Snapshot(); snap != nil {
			if err := printJSON(cmd.OutOrStdout(), snap); err != nil {
				return err
			}
		}
		return cycleErr
	},
}
