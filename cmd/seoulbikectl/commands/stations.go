package commands

import (
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/samirrijal/seoulbike/internal/adapters/bikeseoul"
	"github.com/samirrijal/seoulbike/internal/adapters/openapi"
	"github.com/samirrijal/seoulbike/internal/core/domain"
	"github.com/samirrijal/seoulbike/internal/core/usecases"
	"github.com/samirrijal/seoulbike/internal/pkg/config"
)

var (
	stationsFilter []string
	stationsJSON   bool
	nearLat        float64
	nearLon        float64
	nearRadius     int
)

func init() {
	stationsCmd.Flags().StringSliceVar(&stationsFilter, "id", nil, "Only show these station ids or numbers.")
	stationsCmd.Flags().BoolVar(&stationsJSON, "json", false, "Print JSON instead of a table.")
	stationsCmd.Flags().Float64Var(&nearLat, "lat", 0, "Rank stations around this latitude.")
	stationsCmd.Flags().Float64Var(&nearLon, "lon", 0, "Rank stations around this longitude.")
	stationsCmd.Flags().IntVar(&nearRadius, "radius", 0, "Nearby radius in meters (defaults to nearby.radius).")
	rootCmd.AddCommand(stationsCmd)
}

var stationsCmd = &cobra.Command{
	Use:   "stations [--id ST-1234,...] [--lat <lat> --lon <lon>] [--json]",
	Short: "Lists live station counts through the configured auth mode.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load("seoulbikectl")
		if err != nil {
			return err
		}
		timeout := time.Duration(cfg.Bike.RequestTimeout) * time.Second

		var items []domain.StationStatus
		if cfg.Bike.Mode == "api_key" {
			items, err = openapi.New(openapi.Options{
				Host:     cfg.Bike.OpenAPIHost,
				Key:      cfg.Bike.APIKey,
				Timeout:  timeout,
				PageSize: cfg.Bike.PageSize,
				MaxPages: cfg.Bike.MaxPages,
				Retries:  cfg.Bike.PageRetries,
			}).FetchAll(cmd.Context())
		} else {
			var site *bikeseoul.Client
			site, err = bikeseoul.New(bikeseoul.Options{
				BaseURL:  cfg.Bike.BaseURL,
				Cookie:   cfg.Bike.Cookie,
				Timeout:  timeout,
				Location: cfg.Bike.Location(),
			})
			if err != nil {
				return err
			}
			items, err = site.FetchStationRealtimeAll(cmd.Context())
		}
		if err != nil {
			return fmt.Errorf("fetch stations (%s): %w", domain.ErrorKind(err), err)
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "%d stations\n", len(items))

		if cmd.Flags().Changed("lat") || cmd.Flags().Changed("lon") {
			opts := usecases.NearbyOptions{Radius: cfg.Nearby.Radius, MinBikes: cfg.Nearby.MinBikes, MaxResults: cfg.Nearby.MaxResults}
			if nearRadius > 0 {
				opts.Radius = nearRadius
			}
			nearby := nearbyFrom(items, domain.GeoPoint{Lat: nearLat, Lon: nearLon}, cfg.Bike.CountPolicy(), opts)
			if stationsJSON {
				return printJSON(cmd.OutOrStdout(), nearby)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "center %s: %d bikes nearby, %d recommended\n",
				nearby.Center.Status, nearby.TotalBikes, nearby.RecommendedBikes)
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tBIKES\tDISTANCE")
			for _, s := range nearby.Stations {
				fmt.Fprintf(tw, "%s\t%s\t%d\t%.0fm\n", s.StationID, s.StationName, s.Bikes, s.DistanceM)
			}
			return tw.Flush()
		}

		items = filterStations(items, stationsFilter)
		if stationsJSON {
			return printJSON(cmd.OutOrStdout(), items)
		}
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tNO\tNAME\tTOTAL\tGENERAL\tSPROUT\tREPAIR")
		for _, s := range items {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
				s.StationID, s.StationNo, s.StationName,
				count(s.Total), count(s.General), count(s.Sprout), count(s.Repair))
		}
		return tw.Flush()
	},
}

func filterStations(items []domain.StationStatus, want []string) []domain.StationStatus {
	if len(want) == 0 {
		return items
	}
	keep := make(map[string]bool, len(want))
	for _, w := range want {
		keep[strings.ToUpper(strings.TrimSpace(w))] = true
	}
	var out []domain.StationStatus
	for _, s := range items {
		if keep[strings.ToUpper(s.StationID)] || (s.StationNo != "" && keep[strings.ToUpper(s.StationNo)]) {
			out = append(out, s)
		}
	}
	return out
}

func nearbyFrom(items []domain.StationStatus, at domain.GeoPoint, policy domain.CountPolicy, opts usecases.NearbyOptions) domain.Nearby {
	stations := make([]domain.Station, 0, len(items))
	for _, it := range items {
		if st, ok := usecases.StationFromStatus(it, policy, "", "", ""); ok {
			stations = append(stations, st)
		}
	}
	return usecases.ComputeNearby(usecases.HomeCenter(at), stations, opts)
}

func count(n *int) string {
	if n == nil {
		return "-"
	}
	return fmt.Sprint(*n)
}
