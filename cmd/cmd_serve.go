// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/ibenthos/geotag/geotag"
	"github.com/ibenthos/geotag/server"
	"github.com/ibenthos/geotag/utils/logger"
	"github.com/spf13/cobra"
)

var serveOptions = struct {
	addr   string
	config string
	ledger string
}{}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Expose the geotagging engine over HTTP",
	Long: `Start the JSON API used by the desktop UI. Runs posted to /api/runs are
applied on top of the defaults, the GEOTAG_* environment and --config.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		log := logger.Get()

		base, err := geotag.LoadEnv(ctx)
		if err != nil {
			return err
		}

		if serveOptions.config != "" {
			if base, err = geotag.LoadFile(serveOptions.config, base); err != nil {
				return err
			}
		}

		deps := geotag.DefaultDependencies()
		deps.ProgressBar = false

		db, repo, err := openLedger(serveOptions.ledger)
		if err != nil {
			return err
		}

		if db != nil {
			defer db.Close()

			deps.Recorder = repo
		}

		return server.New(geotag.NewEngine(deps, log), base, log).Run(ctx, serveOptions.addr)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveOptions.addr, "addr", "localhost:8080", "Listen address")
	serveCmd.Flags().StringVar(&serveOptions.config, "config", "", "YAML file with the default run configuration")
	serveCmd.Flags().StringVar(&serveOptions.ledger, "ledger", "", "DuckDB file where runs are recorded")
}
