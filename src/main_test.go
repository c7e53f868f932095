package main

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/apimgr/weatherdash/src/cli"
	"github.com/apimgr/weatherdash/src/config"
)

func TestTrackedCities(t *testing.T) {
	tracked := newTrackedCities([]string{"Oslo", " oslo ", "", "Lima"})
	if got := fmt.Sprint(tracked.Get()); got != "[Oslo Lima]" {
		t.Errorf("Get() = %s, want [Oslo Lima]", got)
	}

	got := tracked.Get()
	got[0] = "changed"
	if tracked.Get()[0] != "Oslo" {
		t.Error("Get() must return a copy")
	}

	tracked.Set(nil)
	if len(tracked.Get()) != 0 {
		t.Errorf("Set(nil) left %v", tracked.Get())
	}
}

func TestReloadFromDisk(t *testing.T) {
	path := filepath.Join(t.TempDir(), "server.yml")
	yml := "server:\n  mode: development\n  port: 9090\nweather:\n  cities: [Paris, Rome]\n"
	if err := os.WriteFile(path, []byte(yml), 0600); err != nil {
		t.Fatal(err)
	}

	var reloaded *config.Config
	opts := &cli.Options{ConfigPath: path, Port: 9191}
	err := reloadFromDisk(opts, func(c *config.Config) error {
		reloaded = c
		return nil
	})
	if err != nil {
		t.Fatalf("reloadFromDisk() error = %v", err)
	}
	if reloaded.Server.Port != 9191 {
		t.Errorf("port = %d, want flag value 9191", reloaded.Server.Port)
	}
	if fmt.Sprint(reloaded.Weather.Cities) != "[Paris Rome]" {
		t.Errorf("cities = %v", reloaded.Weather.Cities)
	}

	opts.ConfigPath = filepath.Join(t.TempDir(), "missing.yml")
	os.WriteFile(opts.ConfigPath, []byte("server: [broken"), 0600)
	if err := reloadFromDisk(opts, func(*config.Config) error { return nil }); err == nil {
		t.Error("reloadFromDisk(broken yaml) should fail")
	}
}
