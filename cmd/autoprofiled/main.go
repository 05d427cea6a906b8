package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"

	"autoprofile/internal/app/server"
	"autoprofile/internal/config"
)

func main() {
	file := pflag.StringP("config", "c", "", "path to autoprofile.yaml")
	level := pflag.String("log-level", "", "override server.log_level")
	pflag.Parse()

	cfg, err := config.Load(*file)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	if *level != "" {
		cfg.Server.LogLevel = *level
	}
	config.SetupLogging(cfg.Server.LogLevel, cfg.Server.LogFormat)

	if err := server.Run(cfg); err != nil {
		log.Fatal().Err(err).Msg("autoprofiled")
	}
}
