// Command nebulite is the engine's CLI front-end: load configuration and
// .env overrides, build a GlobalSpace, run each command-line argument as a
// command, seed the script queue from a task file, and run the frame loop.
package main

import (
	"flag"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/lbastigk/nebulite/internal/config"
	"github.com/lbastigk/nebulite/internal/globalspace"
	"github.com/lbastigk/nebulite/internal/render"
)

func main() {
	configPath := flag.String("config", "config.yml", "path to the engine YAML config")
	taskFile := flag.String("tasks", "", "task file to seed the script queue from")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("nebulite: failed to load config")
	}
	zerolog.SetGlobalLevel(cfg.ZerologLevel())
	log.Logger = log.Output(os.Stderr)
	log.Info().Str("config", cfg.String()).Msg("nebulite: starting")

	gs := globalspace.New(cfg, render.NewNoopRenderer(), render.NoopTextRasterizer{})

	for _, arg := range flag.Args() {
		gs.ResolveTask(arg)
	}
	if *taskFile != "" {
		if res := gs.ResolveTask("task-load " + *taskFile); res.IsCritical() {
			log.Fatal().Err(res.Err).Msg("nebulite: task-load failed")
		}
	}

	gs.Run()
}
