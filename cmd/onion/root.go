package main

import (
	"io/ioutil"
	"os"

	"github.com/cloudflare/data-onion/src/config"
	"github.com/cloudflare/data-onion/src/layers"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	cfgFile string
	verbose bool

	vp     = config.NewViper()
	logger = logrus.New()
)

var rootCmd = &cobra.Command{
	Use:          "onion",
	Short:        "Peel and wrap layered data onions",
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if verbose {
			logger.SetLevel(logrus.InfoLevel)
		}
	},
}

func init() {
	logger.SetOutput(os.Stderr)
	logger.SetLevel(logrus.WarnLevel)

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (YAML, JSON or TOML)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log every layer")
	rootCmd.PersistentFlags().Int("stream-offset", config.DefaultStreamKeyOffset, "offset of the known plaintext under the XOR key")
	_ = vp.BindPFlag("layers.stream_key.offset", rootCmd.PersistentFlags().Lookup("stream-offset"))
}

func loadConfig() (*config.Config, error) {
	return config.FromViper(vp, cfgFile)
}

func loadLayers() (*config.Config, []layers.Layer, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}

	ls, err := layers.New(cfg)
	if err != nil {
		return nil, nil, err
	}

	return cfg, ls, nil
}

func readInput(path string) (string, error) {
	raw, err := ioutil.ReadFile(path)
	if err != nil {
		return "", errors.Wrapf(err, "read %s", path)
	}

	return string(raw), nil
}
