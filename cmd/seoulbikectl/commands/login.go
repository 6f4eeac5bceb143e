package commands

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/samirrijal/seoulbike/internal/adapters/bikeseoul"
	"github.com/samirrijal/seoulbike/internal/adapters/valkey"
)

var (
	loginBaseURL  string
	loginUser     string
	loginPassword string
	loginSaveTo   string
)

func init() {
	loginCmd.Flags().StringVar(&loginBaseURL, "base-url", "https://www.bikeseoul.com", "Member website root.")
	loginCmd.Flags().StringVarP(&loginUser, "username", "u", os.Getenv("SEOULBIKE_BIKE_USERNAME"), "Member id.")
	loginCmd.Flags().StringVarP(&loginPassword, "password", "p", os.Getenv("SEOULBIKE_BIKE_PASSWORD"), "Member password.")
	loginCmd.Flags().StringVar(&loginSaveTo, "save", "", "Valkey address to store the cookie for the poller.")
	rootCmd.AddCommand(loginCmd)
}

var loginCmd = &cobra.Command{
	Use:   "login -u <id> -p <password> [--save <valkey addr>]",
	Short: "Signs in to the member website and prints the session cookie.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if loginUser == "" || loginPassword == "" {
			return fmt.Errorf("username and password are required")
		}
		site, err := bikeseoul.New(bikeseoul.Options{BaseURL: loginBaseURL, Timeout: 20 * time.Second})
		if err != nil {
			return err
		}
		cookie, err := site.Login(cmd.Context(), loginUser, loginPassword)
		if err != nil {
			return fmt.Errorf("login: %w", err)
		}

		if loginSaveTo != "" {
			cache, err := valkey.New(loginSaveTo)
			if err != nil {
				return err
			}
			defer cache.Close()
			if err := valkey.NewCookieStore(cache).Save(cmd.Context(), cookie); err != nil {
				return fmt.Errorf("save cookie: %w", err)
			}
		}
		fmt.Fprintln(cmd.OutOrStdout(), cookie)
		return nil
	},
}
