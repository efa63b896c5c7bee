// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"os"

	"github.com/ibenthos/geotag/utils/logger"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
)

var rootOptions = struct {
	logLevel string
}{}

var rootCmd = &cobra.Command{
	Use:   "geotag",
	Short: "geotag underwater survey photos from a GPS track",
	Long: `
geotag aligns the camera clock with a GPX track recorded by a surface GPS,
interpolates the position of every photo of a survey and writes it into the
photo metadata. It can also export an iFDO document and a KML overview of
the geotagged images.
`,
	SilenceUsage: true,
	PersistentPreRun: func(_ *cobra.Command, _ []string) {
		logger.Init(logger.Options{
			Level:  rootOptions.logLevel,
			Pretty: isatty.IsTerminal(os.Stderr.Fd()),
		})
	},
}

var Version = "dev"

func Execute(version string) {
	Version = version
	rootCmd.Version = version

	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	level := os.Getenv("GEOTAG_LOG_LEVEL")
	if level == "" {
		level = "info"
	}

	rootCmd.PersistentFlags().StringVar(
		&rootOptions.logLevel,
		"log-level",
		level,
		"Minimum log level: trace, debug, info, warn, error",
	)
}
