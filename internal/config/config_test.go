package config

import (
	"testing"
	"time"

	"github.com/robalobadob/mejikuhibiniu/internal/kv"
)

func TestLoadDefaults(t *testing.T) {
	for _, k := range []string{"PORT", "STORE_DRIVER", "SOUND_OUTPUT", "JWT_EXPIRES_DAYS", "NODE_ENV", "JWT_SECRET", "LOG_FORMAT"} {
		t.Setenv(k, "")
	}
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 5175 || cfg.Addr() != ":5175" {
		t.Errorf("port = %d", cfg.Server.Port)
	}
	if cfg.Store.Driver != kv.DriverSQLite || cfg.Store.SQLitePath != "./data/app.db" {
		t.Errorf("store = %+v", cfg.Store)
	}
	if cfg.Sound != SoundNone {
		t.Errorf("sound = %q", cfg.Sound)
	}
	if cfg.Auth.TTL != 14*24*time.Hour {
		t.Errorf("ttl = %v", cfg.Auth.TTL)
	}
	if cfg.Log.Console {
		t.Error("json logging expected by default")
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("STORE_DRIVER", "Memory")
	t.Setenv("SOUND_OUTPUT", "speaker")
	t.Setenv("LOG_FORMAT", "console")
	t.Setenv("SESSION_IDLE", "90s")
	t.Setenv("REDIS_DB", "not-a-number")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 9000 || cfg.Store.Driver != kv.DriverMemory || cfg.Sound != SoundSpeaker {
		t.Fatalf("cfg = %+v", cfg)
	}
	if !cfg.Log.Console || cfg.Cleanup.Idle != 90*time.Second {
		t.Fatalf("log/cleanup = %+v %+v", cfg.Log, cfg.Cleanup)
	}
	if cfg.Store.RedisDB != 0 {
		t.Fatalf("unparsable int should fall back, got %d", cfg.Store.RedisDB)
	}
}

func TestValidate(t *testing.T) {
	cases := map[string]map[string]string{
		"bad port":          {"PORT": "70000"},
		"unknown driver":    {"STORE_DRIVER": "mongo"},
		"postgres no url":   {"STORE_DRIVER": "postgres", "DATABASE_URL": ""},
		"unknown sound":     {"SOUND_OUTPUT": "bluetooth"},
		"prod default jwt":  {"NODE_ENV": "production", "JWT_SECRET": ""},
		"non-positive days": {"JWT_EXPIRES_DAYS": "0"},
	}
	for name, env := range cases {
		t.Run(name, func(t *testing.T) {
			for _, k := range []string{"PORT", "STORE_DRIVER", "SOUND_OUTPUT", "NODE_ENV", "JWT_EXPIRES_DAYS"} {
				t.Setenv(k, "")
			}
			for k, v := range env {
				t.Setenv(k, v)
			}
			if _, err := Load(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}
