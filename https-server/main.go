package main

import (
	"github.com/cloudflare/data-onion/src/config"
	"github.com/cloudflare/data-onion/src/ohttp"
	"github.com/sirupsen/logrus"
)

func main() {
	log := logrus.New()

	cfg, err := config.Load("")
	if err != nil {
		log.WithError(err).Fatal("Invalid configuration.")
	}

	err = ohttp.RunPeelServer(cfg, log)
	if err != nil {
		log.WithError(err).Error("Fatal error occurred while running peel server.")
	}
}
