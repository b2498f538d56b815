// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

// streamhubd is the stream orchestration daemon: it wires the message
// broker, the device managers, and the stream orchestrators, then runs
// until interrupted.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/rapidaai/streamhub/internal/config"
	"github.com/rapidaai/streamhub/internal/supervisor"
	"github.com/rapidaai/streamhub/pkg/commons"
)

func main() {
	projectConfig := flag.String("config", config.ProjectConfigFile, "project-layer config file")
	flag.Parse()

	bootstrap, err := commons.NewApplicationLogger(commons.Name("streamhubd"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "could not create logger: %v\n", err)
		os.Exit(1)
	}

	cfg := config.NewStore(bootstrap, config.WithProjectFile(*projectConfig))
	cfg.Load()

	logger, err := commons.NewApplicationLogger(
		commons.Name("streamhubd"),
		commons.Level(cfg.GetString("system.log_level")),
		commons.Path(cfg.GetString("system.log_path")),
	)
	if err != nil {
		bootstrap.Fatal("could not create logger", "error", err.Error())
	}
	defer logger.Sync()

	sup, err := supervisor.New(logger, cfg)
	if err != nil {
		logger.Fatal("could not build supervisor", "error", err.Error())
	}
	if err := sup.Run(); err != nil {
		logger.Fatal("supervisor failed", "error", err.Error())
	}
}
