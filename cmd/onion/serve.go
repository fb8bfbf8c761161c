package main

import (
	"github.com/cloudflare/data-onion/src/ohttp"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the layers over HTTP",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		logger.SetLevel(logrus.InfoLevel)

		return ohttp.RunPeelServer(cfg, logger)
	},
}

func init() {
	serveCmd.Flags().String("addr", "", "listen address")
	serveCmd.Flags().Int("cache-size", 0, "number of extract results kept")
	serveCmd.Flags().Bool("cors", true, "allow cross-origin requests")
	_ = vp.BindPFlag("server.addr", serveCmd.Flags().Lookup("addr"))
	_ = vp.BindPFlag("server.cache_size", serveCmd.Flags().Lookup("cache-size"))
	_ = vp.BindPFlag("server.cors", serveCmd.Flags().Lookup("cors"))

	rootCmd.AddCommand(serveCmd)
}
