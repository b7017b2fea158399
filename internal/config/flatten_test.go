package config

import (
	"reflect"
	"testing"
)

func TestFlatten(t *testing.T) {
	in := map[string]any{
		"log_level": "info",
		"llm": map[string]any{
			"model":   "gpt-4o-mini",
			"api_key": "sk-1",
		},
		"telegram": map[string]any{
			"owners": map[string]any{"owner-1": 42.0},
		},
		"schedules": []any{map[string]any{"name": "browse"}},
		"empty":     map[string]any{},
	}
	want := map[string]any{
		"log_level":               "info",
		"llm.model":               "gpt-4o-mini",
		"llm.api_key":             "sk-1",
		"telegram.owners.owner-1": 42.0,
		"schedules":               []any{map[string]any{"name": "browse"}},
		"empty":                   map[string]any{},
	}
	if got := Flatten(in); !reflect.DeepEqual(got, want) {
		t.Errorf("Flatten mismatch:\n got %v\nwant %v", got, want)
	}
	if got := Flatten(nil); len(got) != 0 {
		t.Errorf("expected empty map, got %v", got)
	}
}

func TestIsSecretKey(t *testing.T) {
	for key, want := range map[string]bool{
		"llm.api_key":         true,
		"brave.api_key":       true,
		"telegram.token":      true,
		"signing.secret":      true,
		"signing.ed25519_key": true,
		"llm.model":           false,
		"telegram.owners":     false,
		"nats.url":            false,
		"log_level":           false,
	} {
		if got := IsSecretKey(key); got != want {
			t.Errorf("IsSecretKey(%q) = %v, want %v", key, got, want)
		}
	}
}

func TestMaskSecrets(t *testing.T) {
	in := map[string]any{
		"llm.api_key":    "sk-test123456",
		"telegram.token": "ab",
		"signing.secret": "abcd",
		"brave.api_key":  "",
		"giphy.api_key":  nil,
		"llm.model":      "gpt-4",
	}
	want := map[string]any{
		"llm.api_key":    "***3456",
		"telegram.token": "***ab",
		"signing.secret": "***abcd",
		"brave.api_key":  "",
		"giphy.api_key":  nil,
		"llm.model":      "gpt-4",
	}
	if got := MaskSecrets(in); !reflect.DeepEqual(got, want) {
		t.Errorf("MaskSecrets mismatch:\n got %v\nwant %v", got, want)
	}
	if in["llm.api_key"] != "sk-test123456" {
		t.Error("input map was modified")
	}
}

func TestSortedKeys(t *testing.T) {
	got := SortedKeys(map[string]any{"nats.url": 1, "llm.model": 2, "data_dir": 3})
	want := []string{"data_dir", "llm.model", "nats.url"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("SortedKeys = %v, want %v", got, want)
	}
}
