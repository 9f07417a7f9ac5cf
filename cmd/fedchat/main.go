// fedchat is a line-oriented chat client.
//
// Usage:
//
//	fedchat [--unix] username host [port]
//
// Commands:
//
//	/msg user@host text   send a message
//	/list                 list contacts
//	/show n               show the conversation with contact n
//	/quit                 leave
package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/Zereker/fedchat"
	"github.com/Zereker/fedchat/client"
	"github.com/Zereker/fedchat/config"
)

func main() {
	var unixSocket bool
	var logLevel string

	flagSet := pflag.NewFlagSet("fedchat", pflag.ContinueOnError)
	flagSet.BoolVar(&unixSocket, "unix", false, "treat host as a Unix socket path")
	flagSet.StringVar(&logLevel, "log-level", "warn", "debug, info, warn or error")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		os.Exit(2)
	}

	args := flagSet.Args()
	if len(args) < 2 {
		fmt.Fprintf(os.Stderr, "syntax: %s username host [port]\n", os.Args[0])
		os.Exit(1)
	}
	username, host := args[0], args[1]
	port := fedchat.DefaultPort
	if len(args) > 2 {
		p, err := strconv.Atoi(args[2])
		if err != nil || p <= 0 || p > 65535 {
			fmt.Fprintf(os.Stderr, "invalid port %q\n", args[2])
			os.Exit(1)
		}
		port = p
	}

	if err := run(username, host, port, unixSocket, logLevel); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(username, host string, port int, unixSocket bool, logLevel string) error {
	logger := config.LogConfig{Level: logLevel}.NewLogger(os.Stderr)

	network, address := "tcp", net.JoinHostPort(host, strconv.Itoa(port))
	if unixSocket {
		network, address = "unix", host
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	fmt.Printf("connecting to %s\n", address)
	c, err := client.Connect(ctx, address, username,
		client.NetworkOption(network),
		client.LoggerOption(logger),
	)
	if err != nil {
		return err
	}
	defer c.Close()
	fmt.Printf("Logged in: %s\n", c.Self())

	lines := make(chan string)
	go readLines(os.Stdin, lines)

	p := &prompt{client: c, contacts: client.NewContacts(c.Self()), out: os.Stdout}
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-c.Messages():
			if !ok {
				return c.Wait()
			}
			p.contacts.Record(msg)
			fmt.Fprintf(p.out, "%s\n", msg)
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if quit := p.handle(line); quit {
				return nil
			}
		}
	}
}

func readLines(r io.Reader, lines chan<- string) {
	defer close(lines)
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		lines <- strings.TrimSpace(scanner.Text())
	}
}

// prompt owns the contact log; only the main loop calls it.
type prompt struct {
	client   *client.Client
	contacts *client.Contacts
	out      io.Writer
}

func (p *prompt) handle(line string) bool {
	cmd, rest, _ := strings.Cut(line, " ")
	switch cmd {
	case "":
	case "/quit":
		return true
	case "/list":
		for i, id := range p.contacts.List() {
			fmt.Fprintf(p.out, "[%d] %s [%d]\n", i, id, p.contacts.Count(id))
		}
	case "/show":
		contacts := p.contacts.List()
		n, err := strconv.Atoi(strings.TrimSpace(rest))
		if err != nil || n < 0 || n >= len(contacts) {
			fmt.Fprintln(p.out, "No contact with that number")
			return false
		}
		for _, m := range p.contacts.Messages(contacts[n]) {
			fmt.Fprintln(p.out, m)
		}
	case "/msg":
		to, text, _ := strings.Cut(rest, " ")
		name, server, ok := strings.Cut(to, "@")
		if !ok || name == "" || server == "" {
			fmt.Fprintln(p.out, "usage: /msg user@host text")
			return false
		}
		sent, err := p.client.Send(server, name, text)
		if err != nil {
			fmt.Fprintf(p.out, "send failed: %v\n", err)
			return false
		}
		p.contacts.Record(sent)
	default:
		fmt.Fprintln(p.out, "Invalid option.")
	}
	return false
}

