// fedchat-echo signs in as a user and sends every message it receives
// back to its sender.
//
// Usage:
//
//	fedchat-echo username host [port]
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/Zereker/fedchat"
	"github.com/Zereker/fedchat/client"
	"github.com/Zereker/fedchat/config"
)

func main() {
	var logLevel string

	flagSet := pflag.NewFlagSet("fedchat-echo", pflag.ContinueOnError)
	flagSet.StringVar(&logLevel, "log-level", "info", "debug, info, warn or error")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		os.Exit(2)
	}

	args := flagSet.Args()
	if len(args) < 2 {
		fmt.Fprintf(os.Stderr, "syntax: %s username host [port]\n", os.Args[0])
		os.Exit(1)
	}
	port := fedchat.DefaultPort
	if len(args) > 2 {
		p, err := strconv.Atoi(args[2])
		if err != nil || p <= 0 || p > 65535 {
			fmt.Fprintf(os.Stderr, "invalid port %q\n", args[2])
			os.Exit(1)
		}
		port = p
	}

	logger := config.LogConfig{Level: logLevel}.NewLogger(os.Stderr)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	c, err := client.Connect(ctx, net.JoinHostPort(args[1], strconv.Itoa(port)), args[0],
		client.LoggerOption(logger))
	if err != nil {
		logger.Error("connect failed", "error", err)
		os.Exit(1)
	}
	defer c.Close()

	logger.Info("echoing", "as", c.Self().String())
	if err := c.Echo(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("echo stopped", "error", err)
	}
}
