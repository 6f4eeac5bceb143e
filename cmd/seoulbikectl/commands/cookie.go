package commands

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/samirrijal/seoulbike/internal/adapters/bikeseoul"
)

func init() {
	rootCmd.AddCommand(normalizeCookieCmd)
}

var normalizeCookieCmd = &cobra.Command{
	Use:   "normalize-cookie [cookie]",
	Short: "Cleans a pasted browser cookie. Reads stdin when no argument is given.",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		raw := strings.Join(args, " ")
		if len(args) == 0 {
			data, err := io.ReadAll(cmd.InOrStdin())
			if err != nil {
				return fmt.Errorf("read stdin: %w", err)
			}
			raw = string(data)
		}
		cookie := bikeseoul.NormalizeCookie(raw)
		if cookie == "" {
			return fmt.Errorf("no cookie found in input")
		}
		fmt.Fprintln(cmd.OutOrStdout(), cookie)
		return nil
	},
}
