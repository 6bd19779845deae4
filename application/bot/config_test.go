package bot

import (
	"path"
	"testing"
	"time"

	"github.com/sasbridge/sasbridge-go/application"
	"github.com/sasbridge/sasbridge-go/protocol"
)

func TestConfigRoundTrip(t *testing.T) {
	dir := t.TempDir()
	file := path.Join(dir, "botconfig.toml")

	conf := NewConfig(file, "toml", 3*time.Minute, 50*time.Millisecond,
		path.Join(dir, "journal"), path.Join(dir, "events.sock"),
		&application.LoggerConfig{Environment: "development"})
	if err := conf.Save(); err != nil {
		t.Fatal(err)
	}

	loaded := new(Config)
	if err := loaded.Load(file, "toml"); err != nil {
		t.Fatal(err)
	}
	if got := loaded.Window(); got != 3*time.Minute {
		t.Fatal("Expect window 3m got", got)
	}
	if got := loaded.Poll(); got != 50*time.Millisecond {
		t.Fatal("Expect poll interval 50ms got", got)
	}
	if loaded.JournalPath != conf.JournalPath {
		t.Fatal("Expect journal path to survive the round trip")
	}
	if loaded.EventSocket != conf.EventSocket {
		t.Fatal("Expect event socket to survive the round trip")
	}
}

func TestConfigDefaultsOnBadDurations(t *testing.T) {
	conf := &Config{ConfirmationWindow: "soon", PollInterval: ""}
	if got := conf.Window(); got != protocol.DefaultConfirmationWindow {
		t.Fatal("Expect default confirmation window got", got)
	}
	if got := conf.Poll(); got != protocol.DefaultPollInterval {
		t.Fatal("Expect default poll interval got", got)
	}
}
