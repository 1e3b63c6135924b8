package config

import (
	"errors"
	"strings"
	"testing"
)

func TestDefaultEntries(t *testing.T) {
	entries := DefaultEntries()

	requiredKeys := []string{
		"server.host",
		"server.port",
		"store.backend",
		"defra.port",
		"llm.api_key",
		"llm.default_model",
	}

	keys := make(map[string]bool)
	for _, e := range entries {
		if keys[e.Key] {
			t.Errorf("duplicate key %s", e.Key)
		}
		keys[e.Key] = true
		if e.Description == "" {
			t.Errorf("%s has no description", e.Key)
		}
	}
	for _, key := range requiredKeys {
		if !keys[key] {
			t.Errorf("DefaultEntries() missing required key: %s", key)
		}
	}
}

func TestGetDefault(t *testing.T) {
	t.Run("existing_key", func(t *testing.T) {
		entry, err := GetDefault("store.backend")
		if err != nil {
			t.Fatalf("GetDefault() error = %v", err)
		}
		if entry.Value != BackendDefra {
			t.Errorf("GetDefault() Value = %v, want %q", entry.Value, BackendDefra)
		}
	})

	t.Run("non_existent_key", func(t *testing.T) {
		_, err := GetDefault("does.not.exist")
		if !errors.Is(err, ErrNoDefault) {
			t.Errorf("GetDefault() error = %v, want ErrNoDefault", err)
		}
	})
}

func TestEnvName(t *testing.T) {
	if got := EnvName("llm.default_model"); got != "PROMPTLAB_LLM_DEFAULT_MODEL" {
		t.Errorf("EnvName() = %q", got)
	}
	for _, e := range DefaultEntries() {
		if !strings.HasPrefix(e.Env(), EnvPrefix+"_") {
			t.Errorf("%s env = %q", e.Key, e.Env())
		}
	}
}
