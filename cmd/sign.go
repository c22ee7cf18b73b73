// Copyright (C) 2025 CardinalHQ, Inc
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, version 3.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

package cmd

import (
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/cardinalhq/auditshipper/internal/loganalytics"
)

func init() {
	rootCmd.AddCommand(newSignCmd())
}

// newSignCmd prints the signed headers for a payload size, to compare
// against a request the API rejected with 403.
func newSignCmd() *cobra.Command {
	var (
		length int
		date   string
	)
	cmd := &cobra.Command{
		Use:   "sign",
		Short: "Print the SharedKey headers for a body of the given length",
		RunE: func(c *cobra.Command, _ []string) error {
			cfg, err := loadConfig(c.Flags())
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			client, err := loganalytics.NewClient(cfg.LogAnalytics)
			if err != nil {
				return err
			}

			when := time.Now()
			if date != "" {
				when, err = http.ParseTime(date)
				if err != nil {
					return fmt.Errorf("date must be in %s form: %w", http.TimeFormat, err)
				}
			}

			out := c.OutOrStdout()
			h := client.Headers(length, when)
			fmt.Fprintf(out, "url: %s\n", cfg.LogAnalytics.URL())
			fmt.Fprintf(out, "string-to-sign: %q\n", loganalytics.StringToSign(length, h.Get("x-ms-date")))
			for _, name := range []string{"Log-Type", "x-ms-date", "time-generated-field", "Authorization"} {
				if v := h.Get(name); v != "" {
					fmt.Fprintf(out, "%s: %s\n", name, v)
				}
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&length, "length", 0, "body length in bytes")
	cmd.Flags().StringVar(&date, "date", "", "x-ms-date value (default now)")
	_ = cmd.MarkFlagRequired("length")
	return cmd
}
