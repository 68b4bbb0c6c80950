package main

import (
	"flag"
	"fmt"
	"net"
	"os"
	"strconv"

	"kvs/internal/config"
	"kvs/internal/logging"
	"kvs/internal/server"
)

func main() {
	var (
		configPath  string
		addr        string
		engine      string
		environment string
	)
	flag.StringVar(&configPath, "config", "", "Path to configuration file")
	flag.StringVar(&addr, "addr", "", "Listening address as IP:PORT (default 127.0.0.1:4000)")
	flag.StringVar(&engine, "engine", "", "Storage engine: kvs, badger or redis")
	flag.StringVar(&environment, "env", "", "Logging preset: development, production or test")
	flag.Usage = printUsage
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if err := applyFlags(cfg, addr, engine); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid flags: %v\n", err)
		os.Exit(1)
	}
	logging.SetupEnvironmentLogging(cfg, environment)

	logger := logging.NewLogger(&cfg.Logging)
	logger.SetDefault()
	logger.Info("kvs-server starting",
		"version", server.Version,
		"addr", cfg.Address(),
		"engine", cfg.Storage.Engine,
		"data_path", cfg.Storage.DataPath,
	)

	srv, err := server.NewServer(cfg, logger)
	if err != nil {
		logger.WithError(err).Error("Failed to create server")
		os.Exit(1)
	}

	if err := srv.Start(); err != nil {
		logger.WithError(err).Error("Server failed")
		os.Exit(1)
	}
}

// applyFlags overrides the loaded configuration with explicit flags.
func applyFlags(cfg *config.Config, addr, engine string) error {
	if addr != "" {
		host, portStr, err := net.SplitHostPort(addr)
		if err != nil {
			return fmt.Errorf("addr %q: %w", addr, err)
		}
		port, err := strconv.Atoi(portStr)
		if err != nil {
			return fmt.Errorf("addr %q: invalid port", addr)
		}
		cfg.Server.Host = host
		cfg.Server.Port = port
	}
	if engine != "" {
		cfg.Storage.Engine = engine
	}
	return cfg.Validate()
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `kvs-server: key-value store server

Usage:
  %s [options]

Options:
`, os.Args[0])
	flag.PrintDefaults()
	fmt.Fprintf(os.Stderr, `
Environment Variables:
  Configuration can be overridden using environment variables with KV_ prefix,
  e.g. KV_SERVER_PORT=4001 or KV_STORAGE_ENGINE=badger.

Examples:
  %s --addr 127.0.0.1:4000 --engine kvs
  %s -config /etc/kvs/config.yaml
`, os.Args[0], os.Args[0])
}
