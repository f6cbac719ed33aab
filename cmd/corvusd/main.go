// Copyright (c) corvus authors. All rights reserved. Use of this source code
// is governed by an MIT license that can be found in the LICENSE file.

// Command corvusd runs a corvus IRC bot instance: it loads a config file,
// constructs the registry/profile/dispatcher/scheduler, starts the
// connection loop, and watches the config and resource directories for
// hot-reload triggers (§4.6, §6, §9).
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	corvus "github.com/corvus-irc/corvus"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "corvusd:", err)
		os.Exit(1)
	}
}

func run() error {
	flagset, err := corvus.ParseFlags(os.Args[1:])
	if err != nil {
		return err
	}

	cfg, err := corvus.LoadConfigFile(flagset.ConfigFile)
	if err != nil {
		return fmt.Errorf("loading %s: %w", flagset.ConfigFile, err)
	}
	cfg.ApplyFlags(flagset)

	if flagset.WriteConfig {
		return cfg.WriteConfig(flagset.ConfigFile)
	}

	resourceRoot := cfg.Core.ResourceDir
	if resourceRoot == "" {
		resourceRoot = "."
	}
	if err := os.MkdirAll(resourceRoot, 0o755); err != nil {
		return fmt.Errorf("creating resource directory: %w", err)
	}

	lock, err := corvus.AcquireInstanceLock(resourceRoot)
	if err != nil {
		return err
	}
	defer lock.Release()

	log := corvus.NewRootLogger(os.Stderr, flagset.Bright, flagset.Headless)

	policy, err := corvus.NewChannelPolicy(cfg.IRCBot.Homes, corvus.CaseMapRFC1459)
	if err != nil {
		return fmt.Errorf("building channel policy: %w", err)
	}

	state := &corvus.State{
		Registry: corvus.NewRegistry(corvus.NewProfile("", cfg.IRCServer.Address)),
		Settings: corvus.CoreSettings{
			Nickname: cfg.IRCBot.Nickname,
			Ident:    cfg.IRCBot.Ident,
			Realname: cfg.IRCBot.Realname,
			Prefix:   cfg.Core.Prefix,
			Homes:    cfg.IRCBot.Homes,
			Channels: cfg.IRCBot.Channels,
		},
		Policy:       policy,
		Classes:      corvus.NewClassTable(),
		Bus:          corvus.NewBus(),
		Squelch:      corvus.NewSquelch(),
		ResourceRoot: resourceRoot,
		Log:          log,
	}

	scheduler := corvus.NewScheduler()
	dispatcher := corvus.NewDispatcher(state, scheduler)
	post := corvus.NewPostprocessor(state.Registry)

	addr := fmt.Sprintf("%s:%d", cfg.IRCServer.Address, cfg.IRCServer.Port)
	connCfg := corvus.DefaultConnectionConfig(addr)
	connCfg.TLS = cfg.IRCServer.TLS
	connCfg.Pass = cfg.IRCBot.Pass
	connCfg.SASLUser = cfg.IRCBot.SASLUser
	connCfg.SASLPass = cfg.IRCBot.AuthPassword

	conn := corvus.NewConnection(connCfg, state, scheduler, dispatcher, post)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	watcher, err := corvus.NewConfigWatcher(flagset.ConfigFile, resourceRoot, state.Bus, log)
	if err == nil {
		go watcher.Run(ctx, resourceRoot)
	} else {
		log.Warn("config watcher disabled", "error", err)
	}

	return conn.Run(ctx)
}
