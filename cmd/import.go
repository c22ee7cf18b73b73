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
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/cardinalhq/auditshipper/config"
	"github.com/cardinalhq/auditshipper/internal/chunker"
	"github.com/cardinalhq/auditshipper/internal/cloudstorage"
	"github.com/cardinalhq/auditshipper/internal/importer"
	"github.com/cardinalhq/auditshipper/internal/loganalytics"
	"github.com/cardinalhq/auditshipper/internal/xevent"
)

var importFlags = map[string]string{
	"decoder.command":      "decoder",
	"upload.ceiling_bytes": "ceiling",
	"upload.timeout":       "upload-timeout",
	"run.timeout":          "timeout",
	"run.dry_run":          "dry-run",
	"run.temp_dir":         "temp-dir",
}

func init() {
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Ship matching audit blobs to Log Analytics",
		RunE: func(c *cobra.Command, _ []string) error {
			cfg, err := loadConfig(c.Flags(), selectionFlags, importFlags)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}

			servicename := "auditshipper-import"
			doneCtx, doneFx, err := setupTelemetry(servicename)
			if err != nil {
				return fmt.Errorf("failed to setup telemetry: %w", err)
			}

			defer func() {
				if err := doneFx(); err != nil {
					slog.Error("Error shutting down telemetry", slog.Any("error", err))
				}
			}()

			return runImport(doneCtx, cfg)
		},
	}

	addSelectionFlags(cmd.Flags())
	addImportFlags(cmd.Flags())
	rootCmd.AddCommand(cmd)
}

func addImportFlags(fs *pflag.FlagSet) {
	fs.String("decoder", "", "command converting a .xel file to JSON lines; {file} marks the path")
	fs.Int("ceiling", 0, "maximum payload size in bytes")
	fs.Duration("upload-timeout", 0, "timeout for each upload")
	fs.Duration("timeout", 0, "timeout for the whole run")
	fs.Bool("dry-run", false, "list the blobs that would be shipped and stop")
	fs.String("temp-dir", "", "directory for downloaded blobs")
}

func runImport(ctx context.Context, cfg *config.Config) error {
	ctx, cancel := withRunTimeout(ctx, cfg.Run.Timeout)
	defer cancel()

	filter, err := cfg.BuildFilter()
	if err != nil {
		return err
	}

	store, err := cloudstorage.NewClient(ctx, cfg.Storage)
	if err != nil {
		return fmt.Errorf("failed to create storage client: %w", err)
	}

	var uploader loganalytics.Uploader
	if !cfg.Run.DryRun {
		client, err := loganalytics.NewClient(cfg.LogAnalytics, loganalytics.WithTimeout(cfg.Upload.Timeout))
		if err != nil {
			return fmt.Errorf("failed to create Log Analytics client: %w", err)
		}
		uploader = client
	}

	im := importer.New(
		importer.Config{
			Container: cfg.Storage.Container,
			Filter:    filter,
			TempDir:   cfg.Run.TempDir,
			DryRun:    cfg.Run.DryRun,
		},
		store,
		xevent.NewFactory(xevent.Options{
			Command:      cfg.DecoderArgs(),
			MaxLineBytes: cfg.Upload.CeilingBytes,
		}),
		chunker.NewSplitter(cfg.Upload.CeilingBytes),
		uploader,
	)

	summary, err := im.Run(ctx)
	outcome := "success"
	if err != nil {
		outcome = "failed"
	}
	recordRun(ctx, outcome, summary.Duration)

	if err != nil {
		slog.Error("Audit import finished with errors", slog.Any("summary", summary), slog.Any("error", err))
		return fmt.Errorf("audit import failed: %w", err)
	}
	slog.Info("Audit import finished", slog.Any("summary", summary))
	return nil
}
