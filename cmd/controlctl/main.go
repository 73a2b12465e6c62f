package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"

	"github.com/schilltyler/capstone-0/internal/config"
	"github.com/schilltyler/capstone-0/internal/controller"
	"github.com/schilltyler/capstone-0/internal/logging"
	"github.com/schilltyler/capstone-0/internal/protocol/session"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "controlctl: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var configPath, writeConfig, token string
	file := config.DefaultControllerConfig()

	flagSet := pflag.NewFlagSet("controlctl", pflag.ContinueOnError)
	flagSet.StringVarP(&configPath, "config", "c", "", "path to controller TOML config")
	flagSet.StringVar(&writeConfig, "write-config", "", "write a config template to this path and exit")
	flagSet.StringVarP(&file.Listen, "listen", "l", file.Listen, "address to accept agents on")
	flagSet.StringVar(&file.OnConnect, "oncon", "", "command to run when an agent connects")
	flagSet.StringVar(&file.RCFile, "rc", "", "file of newline separated commands to run on connect")
	flagSet.StringVar(&file.DownloadsDir, "downloads-dir", file.DownloadsDir, "directory for downloaded files")
	flagSet.StringVar(&token, "token", "", "hex handshake token (default deadbeef)")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}
	if writeConfig != "" {
		return config.WriteTemplate(writeConfig, "controller", false)
	}

	logging.ConfigureRuntime()

	if configPath != "" {
		loaded, err := config.LoadControllerConfig(configPath)
		if err != nil {
			return err
		}
		// explicit flags win over the file
		if !flagSet.Changed("listen") {
			file.Listen = loaded.Listen
		}
		if !flagSet.Changed("oncon") {
			file.OnConnect = loaded.OnConnect
		}
		if !flagSet.Changed("rc") {
			file.RCFile = loaded.RCFile
		}
		if !flagSet.Changed("downloads-dir") {
			file.DownloadsDir = loaded.DownloadsDir
		}
		file.Tokens = loaded.Tokens
	}
	if token != "" {
		file.Tokens = []string{token}
	}
	cfg, err := file.SessionConfig(session.DefaultConfig())
	if err != nil {
		return err
	}

	ln, err := controller.Listen(file.Listen, cfg)
	if err != nil {
		return err
	}
	defer ln.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM)
	defer stop()

	// SIGINT cancels a running tail instead of killing the controller.
	interrupts := make(chan os.Signal, 1)
	signal.Notify(interrupts, os.Interrupt)
	defer signal.Stop(interrupts)

	input := bufio.NewScanner(os.Stdin)
	fmt.Printf("listening on %s, waiting for agent\n", ln.Addr())
	for {
		c, err := ln.Accept(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}
		fmt.Printf("agent connected from %s\n", c.RemoteAddr())

		r := &repl{
			client:       c,
			out:          os.Stdout,
			downloadsDir: file.DownloadsDir,
			interrupts:   interrupts,
		}
		err = r.session(input, file.RCFile, file.OnConnect)
		_ = c.Close()
		if errors.Is(err, errInputClosed) {
			return nil
		}
		if err != nil {
			log.Warn().Err(err).Msg("controlctl session ended")
		}
		fmt.Println("connection closed, waiting for next agent")
	}
}
