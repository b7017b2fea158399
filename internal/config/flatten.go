package config

import (
	"sort"
	"strings"
)

// secretSuffixes mark the last segment of a dotted key as secret.
var secretSuffixes = []string{"api_key", "token", "secret", "_key"}

// IsSecretKey reports whether a dotted key holds a credential, such as
// llm.api_key, telegram.token or signing.ed25519_key.
func IsSecretKey(key string) bool {
	last := key[strings.LastIndex(key, ".")+1:]
	for _, s := range secretSuffixes {
		if last == s || strings.HasSuffix(last, s) {
			return true
		}
	}
	return false
}

// Flatten turns nested maps into dotted keys. Lists and scalars are
// leaves, so {"llm": {"model": "m"}, "schedules": [...]} yields
// "llm.model" and "schedules".
func Flatten(m map[string]any) map[string]any {
	out := make(map[string]any)
	var walk func(prefix string, m map[string]any)
	walk = func(prefix string, m map[string]any) {
		for k, v := range m {
			if prefix != "" {
				k = prefix + "." + k
			}
			if child, ok := v.(map[string]any); ok && len(child) > 0 {
				walk(k, child)
				continue
			}
			out[k] = v
		}
	}
	walk("", m)
	return out
}

// SortedKeys returns the keys of a flat map in lexical order.
func SortedKeys(flat map[string]any) []string {
	keys := make([]string, 0, len(flat))
	for k := range flat {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// MaskSecrets copies flat, replacing non-empty secret strings with "***"
// plus their last four characters.
func MaskSecrets(flat map[string]any) map[string]any {
	out := make(map[string]any, len(flat))
	for k, v := range flat {
		out[k] = v
		s, ok := v.(string)
		if !ok || s == "" || !IsSecretKey(k) {
			continue
		}
		out[k] = "***" + s[max(len(s)-4, 0):]
	}
	return out
}
