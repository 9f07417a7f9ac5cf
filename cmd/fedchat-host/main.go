// fedchat-host runs a chat host: it accepts clients and peer hosts on
// every configured socket, delivers messages to local users, keeps them
// for offline users and forwards the rest to their own host.
//
// Usage:
//
//	fedchat-host [--config host.yaml] [--hostname name] [--listen network://address ...]
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/Zereker/fedchat"
	"github.com/Zereker/fedchat/config"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var configPath, hostname, logLevel string
	var listen []string
	var federationPort int

	flagSet := pflag.NewFlagSet("fedchat-host", pflag.ContinueOnError)
	flagSet.StringVar(&configPath, "config", "", "path to YAML config file")
	flagSet.StringVar(&hostname, "hostname", "", "name this host answers to (default: machine hostname)")
	flagSet.StringArrayVar(&listen, "listen", nil, "socket to listen on as network://address (repeatable)")
	flagSet.IntVar(&federationPort, "federation-port", 0, "port dialed on remote hosts")
	flagSet.StringVar(&logLevel, "log-level", "", "debug, info, warn or error")

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	cfg := config.Default()
	if configPath != "" {
		loaded, err := config.Load(configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	if hostname != "" {
		cfg.Hostname = hostname
	}
	if len(listen) > 0 {
		cfg.Listen = cfg.Listen[:0]
		for _, l := range listen {
			lc, err := config.ParseListen(l)
			if err != nil {
				return err
			}
			cfg.Listen = append(cfg.Listen, lc)
		}
	}
	if federationPort > 0 {
		cfg.FederationPort = federationPort
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := cfg.Log.NewLogger(os.Stderr)

	var listeners []*fedchat.Listener
	for _, lc := range cfg.Listen {
		l, err := fedchat.Listen(lc.Network, lc.Address, fedchat.LoggerOption(logger))
		if err != nil {
			for _, opened := range listeners {
				opened.Close()
			}
			return err
		}
		listeners = append(listeners, l)
	}

	host, err := fedchat.NewHost(cfg.Hostname, listeners,
		fedchat.HostLoggerOption(logger),
		fedchat.FederationPortOption(cfg.FederationPort),
		fedchat.ForwardTimeoutOption(time.Duration(cfg.ForwardTimeout)),
		fedchat.HostPollTimeoutOption(time.Duration(cfg.PollTimeout)),
		fedchat.HostWriteTimeoutOption(time.Duration(cfg.WriteTimeout)),
		fedchat.HostMailboxLimitOption(cfg.MailboxLimit),
	)
	if err != nil {
		for _, l := range listeners {
			l.Close()
		}
		return err
	}
	defer host.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return host.Serve(groupCtx)
	})

	err = group.Wait()
	stats := host.Router().Stats()
	logger.Info("shutting down", "hostname", host.Hostname(),
		"users", stats.Users, "sessions", stats.Sessions, "queued", stats.Queued)
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
