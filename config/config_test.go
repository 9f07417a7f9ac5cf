package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	c := Default()
	if err := c.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if len(c.Listen) != 1 || c.Listen[0].Network != "tcp" || c.Listen[0].Address != ":3333" {
		t.Errorf("Listen = %v", c.Listen)
	}
	if c.FederationPort != 3333 {
		t.Errorf("FederationPort = %d", c.FederationPort)
	}
}

func TestParse(t *testing.T) {
	data := []byte(`
hostname: knorr
listen:
  - network: tcp
    address: ":3333"
  - network: unix
    address: /tmp/fedchat.sock
federation_port: 4444
forward_timeout: 2s
poll_timeout: 250ms
mailbox_limit: 100
log:
  level: debug
  format: json
`)
	c, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	if c.Hostname != "knorr" {
		t.Errorf("Hostname = %q", c.Hostname)
	}
	if len(c.Listen) != 2 || c.Listen[1].Network != "unix" {
		t.Errorf("Listen = %v", c.Listen)
	}
	if c.FederationPort != 4444 {
		t.Errorf("FederationPort = %d", c.FederationPort)
	}
	if time.Duration(c.ForwardTimeout) != 2*time.Second {
		t.Errorf("ForwardTimeout = %v", time.Duration(c.ForwardTimeout))
	}
	if time.Duration(c.PollTimeout) != 250*time.Millisecond {
		t.Errorf("PollTimeout = %v", time.Duration(c.PollTimeout))
	}
	if c.MailboxLimit != 100 {
		t.Errorf("MailboxLimit = %d", c.MailboxLimit)
	}
	if c.Log.Level != "debug" || c.Log.Format != "json" {
		t.Errorf("Log = %+v", c.Log)
	}
}

func TestParse_KeepsDefaults(t *testing.T) {
	c, err := Parse([]byte("hostname: lenor\n"))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if len(c.Listen) != 1 || c.FederationPort != DefaultPort || c.Log.Level != "info" {
		t.Errorf("defaults lost: %+v", c)
	}
	if time.Duration(c.ForwardTimeout) != 5*time.Second {
		t.Errorf("ForwardTimeout = %v, want 5s", time.Duration(c.ForwardTimeout))
	}
	if c.Listen[0].Address != ":3333" {
		t.Errorf("listen address = %q, want :3333", c.Listen[0].Address)
	}
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		data string
		want string
	}{
		{"bad network", "listen:\n  - network: sctp\n    address: ':1'\n", "unsupported network"},
		{"empty address", "listen:\n  - network: tcp\n", "empty tcp address"},
		{"bad port", "federation_port: 70000\n", "out of range"},
		{"bad duration", "poll_timeout: soon\n", "poll_timeout"},
		{"bad level", "log:\n  level: loud\n", "log level"},
		{"bad format", "log:\n  format: xml\n", "log format"},
		{"negative mailbox", "mailbox_limit: -1\n", "mailbox_limit"},
		{"not yaml", "listen: [", "parse config"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.data))
			if err == nil {
				t.Fatal("expected error")
			}
			if tt.name != "bad duration" && !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "host.yaml")
	if err := os.WriteFile(path, []byte("hostname: A\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if c.Hostname != "A" {
		t.Errorf("Hostname = %q", c.Hostname)
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestParseListen(t *testing.T) {
	tests := []struct {
		in      string
		want    ListenConfig
		wantErr bool
	}{
		{":3333", ListenConfig{Network: "tcp", Address: ":3333"}, false},
		{"tcp://127.0.0.1:1", ListenConfig{Network: "tcp", Address: "127.0.0.1:1"}, false},
		{"unix:///run/chat.sock", ListenConfig{Network: "unix", Address: "/run/chat.sock"}, false},
		{"udp://:1", ListenConfig{}, true},
		{"unix://", ListenConfig{}, true},
	}
	for _, tt := range tests {
		got, err := ParseListen(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseListen(%q) error = %v", tt.in, err)
			continue
		}
		if !tt.wantErr && got != tt.want {
			t.Errorf("ParseListen(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
