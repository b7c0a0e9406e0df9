package runner

import (
	"os"
	"slices"
	"sort"
	"strings"
)

// Ambient is the execution context a Runner reads at spawn time: the
// inherited environment and lookups of individual variables such as the
// wrapper variable.
type Ambient interface {
	Environ() []string
	LookupEnv(key string) (string, bool)
}

type osAmbient struct{}

func (osAmbient) Environ() []string                   { return os.Environ() }
func (osAmbient) LookupEnv(key string) (string, bool) { return os.LookupEnv(key) }

// OS is the ambient context of the current process.
var OS Ambient = osAmbient{}

// StaticEnv is an Ambient backed by a fixed list of KEY=VALUE entries.
// Later entries win on duplicate keys, as with exec.Cmd.Env.
type StaticEnv []string

func (e StaticEnv) Environ() []string { return slices.Clone(e) }

func (e StaticEnv) LookupEnv(key string) (string, bool) {
	for i := len(e) - 1; i >= 0; i-- {
		k, v, ok := strings.Cut(e[i], "=")
		if ok && k == key {
			return v, true
		}
	}
	return "", false
}

// MergeEnv returns base with every key in overrides replaced. Entries of
// base whose key is overridden are dropped; all others keep their position.
// Overrides are appended in key order.
func MergeEnv(base []string, overrides map[string]string) []string {
	out := make([]string, 0, len(base)+len(overrides))
	for _, kv := range base {
		k, _, _ := strings.Cut(kv, "=")
		if _, ok := overrides[k]; ok {
			continue
		}
		out = append(out, kv)
	}
	for _, k := range SortedKeys(overrides) {
		out = append(out, k+"="+overrides[k])
	}
	return out
}

// SortedKeys returns the keys of env in lexical order.
func SortedKeys(env map[string]string) []string {
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
