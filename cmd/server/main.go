package main

import (
	"flag"
	"os"

	"github.com/charmbracelet/log"

	"bankboard/pkg/config"
	"bankboard/pkg/server"
)

func main() {
	logger := log.NewWithOptions(os.Stderr, log.Options{
		ReportCaller:    true,
		ReportTimestamp: true,
		Prefix:          "bankboard",
	})

	var (
		addr    = flag.String("addr", "", "Listen address (overrides config)")
		cfgFile = flag.String("config", "", "Config file (default is config.yaml)")
	)
	flag.Parse()

	cfg, err := config.Build(*cfgFile, nil)
	if err != nil {
		logger.Fatal("invalid configuration", "error", err)
	}
	if *addr != "" {
		cfg.Addr = *addr
	}

	srv := server.New(cfg, logger)
	logger.Info("starting server", "addr", cfg.Addr)
	if err := srv.Start(cfg.Addr); err != nil {
		logger.Fatal("server error", "err", err)
	}
}
