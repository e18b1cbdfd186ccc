package main

import (
	"errors"
	"flag"
	"os"
)

// version is injected at build time with -ldflags "-X main.version=...".
var version = "dev"

// cliConfig holds the flags needed to locate and load the YAML
// configuration document; everything else lives in internal/config.Config.
type cliConfig struct {
	configPath  string
	showVersion bool
}

func parseFlags(args []string) (*cliConfig, error) {
	fs := flag.NewFlagSet("mediabridge", flag.ContinueOnError)
	fs.SetOutput(os.Stdout)

	cfg := &cliConfig{}
	fs.StringVar(&cfg.configPath, "config", "mediabridge.yaml", "Path to the YAML configuration document")
	fs.BoolVar(&cfg.showVersion, "version", false, "Print version and exit")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if !cfg.showVersion && cfg.configPath == "" {
		return nil, errors.New("-config must not be empty")
	}
	return cfg, nil
}
