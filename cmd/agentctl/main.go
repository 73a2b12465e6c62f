package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/schilltyler/capstone-0/internal/agent"
	"github.com/schilltyler/capstone-0/internal/config"
	"github.com/schilltyler/capstone-0/internal/logging"
)

// defaultAddress is set at build time with -ldflags "-X main.defaultAddress=host:port".
var defaultAddress = "127.0.0.1:4444"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "agentctl: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var configPath, writeConfig, address string
	var strict bool

	flagSet := pflag.NewFlagSet("agentctl", pflag.ContinueOnError)
	flagSet.StringVarP(&configPath, "config", "c", "", "path to agent TOML config")
	flagSet.StringVar(&writeConfig, "write-config", "", "write a config template to this path and exit")
	flagSet.StringVarP(&address, "address", "a", "", "controller host:port (overrides config)")
	flagSet.BoolVar(&strict, "strict", false, "answer unknown commands with an error frame")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}
	if writeConfig != "" {
		return config.WriteTemplate(writeConfig, "agent", false)
	}

	logging.ConfigureRuntime()

	cfg := agent.DefaultServiceConfig()
	cfg.Address = defaultAddress
	if configPath != "" {
		loaded, err := loadServiceConfig(configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	if address != "" {
		cfg.Address = address
	}
	if flagSet.Changed("strict") {
		cfg.Session.StrictUnknownCommands = strict
	}

	svc, err := agent.NewService(cfg)
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return svc.Run(ctx)
}
