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

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration with secrets redacted",
		RunE: func(c *cobra.Command, _ []string) error {
			cfg, err := loadConfig(c.Flags(), selectionFlags, importFlags)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			if err := cfg.WriteYAML(c.OutOrStdout()); err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				fmt.Fprintf(c.ErrOrStderr(), "warning: configuration is not valid for import: %v\n", err)
			}
			return nil
		},
	}

	addSelectionFlags(cmd.Flags())
	addImportFlags(cmd.Flags())
	rootCmd.AddCommand(cmd)
}
