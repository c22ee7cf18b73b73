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
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/cardinalhq/auditshipper/config"
)

var configFile string

var rootCmd = &cobra.Command{
	Use:   "auditshipper",
	Short: "Ship SQL Server audit logs to Azure Log Analytics",
	Long: `Read SQL Server audit files written to blob storage, select them by
server, database and date, and post their events to the Azure Monitor HTTP
Data Collector API.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file (default ./config.yaml)")
}

// selectionFlags maps configuration keys to the flags that override them.
var selectionFlags = map[string]string{
	"storage.provider":  "provider",
	"storage.container": "container",
	"storage.path":      "path",
	"filter.server":     "server",
	"filter.database":   "database",
	"filter.start_date": "start",
	"filter.end_date":   "end",
	"filter.extension":  "extension",
}

func addSelectionFlags(fs *pflag.FlagSet) {
	fs.String("provider", "", "storage provider: azure, s3 or file")
	fs.String("container", "", "container or bucket holding the audit logs")
	fs.String("path", "", "root directory for the file provider")
	fs.String("server", "", "SQL server name, first path segment")
	fs.String("database", "", "database name, second path segment")
	fs.String("start", "", "first day to ship, inclusive (e.g. 2020-08-03)")
	fs.String("end", "", "last day to ship, inclusive")
	fs.String("extension", "", "blob name suffix to select (default .xel)")
}

func loadConfig(fs *pflag.FlagSet, keys ...map[string]string) (*config.Config, error) {
	merged := map[string]string{}
	for _, m := range keys {
		for k, v := range m {
			merged[k] = v
		}
	}
	return config.Load(config.WithConfigFile(configFile), config.WithFlags(fs, merged))
}

func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}
