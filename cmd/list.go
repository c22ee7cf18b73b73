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
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/cardinalhq/auditshipper/config"
	"github.com/cardinalhq/auditshipper/internal/cloudstorage"
	"github.com/cardinalhq/auditshipper/internal/importer"
)

func init() {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "Print the audit blobs an import would ship",
		RunE: func(c *cobra.Command, _ []string) error {
			cfg, err := loadConfig(c.Flags(), selectionFlags)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			if err := cfg.ValidateSelection(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}

			doneCtx, doneFx, err := setupTelemetry("auditshipper-list")
			if err != nil {
				return fmt.Errorf("failed to setup telemetry: %w", err)
			}
			defer func() {
				if err := doneFx(); err != nil {
					slog.Error("Error shutting down telemetry", slog.Any("error", err))
				}
			}()

			store, err := cloudstorage.NewClient(doneCtx, cfg.Storage)
			if err != nil {
				return fmt.Errorf("failed to create storage client: %w", err)
			}
			return listBlobs(doneCtx, c.OutOrStdout(), cfg, store)
		},
	}

	addSelectionFlags(cmd.Flags())
	rootCmd.AddCommand(cmd)
}

// listBlobs writes one "key<TAB>size" line per selected blob to out.
func listBlobs(ctx context.Context, out io.Writer, cfg *config.Config, store cloudstorage.Client) error {
	filter, err := cfg.BuildFilter()
	if err != nil {
		return err
	}
	im := importer.New(importer.Config{
		Container: cfg.Storage.Container,
		Filter:    filter,
	}, store, nil, nil, nil)

	skipped := 0
	onSkip := func(s *importer.FilterSkip) {
		skipped++
		slog.Warn("Skipping blob", slog.String("blob", s.Key), slog.Any("error", s.Err))
	}

	matched := 0
	for obj, err := range im.Select(ctx, onSkip) {
		if err != nil {
			return fmt.Errorf("listing %s: %w", cfg.Storage.Container, err)
		}
		matched++
		if _, err := fmt.Fprintf(out, "%s\t%d\n", obj.Key, obj.Size); err != nil {
			return err
		}
	}
	slog.Info("Listing finished", slog.Int("matched", matched), slog.Int("skipped", skipped))
	return nil
}
