// Package featureflags evaluates per-user switches from the FEATURE_FLAGS setting.
package featureflags

import (
	"hash/fnv"
	"strconv"
	"strings"
)

// rule is a parsed flag value. pct is 0..100; a plain "on" is stored as 100.
type rule struct {
	raw string
	pct int
}

// Manager evaluates flags written as a comma-separated list of name=value
// pairs, for example "open_trip_tree=on,comment_video=25%".
type Manager struct {
	rules map[string]rule
}

// NewManager parses raw. Malformed pairs are skipped.
func NewManager(raw string) *Manager {
	m := &Manager{rules: make(map[string]rule)}
	for _, pair := range strings.Split(raw, ",") {
		name, value, ok := strings.Cut(pair, "=")
		if !ok {
			continue
		}
		name, value = normalize(name), normalize(value)
		if name == "" || value == "" {
			continue
		}
		m.rules[name] = rule{raw: value, pct: parsePercent(value)}
	}
	return m
}

// parsePercent maps on/true/1 to 100, off/false/0 to 0 and "N%" to N.
// Anything else disables the flag.
func parsePercent(value string) int {
	switch value {
	case "on", "true", "1":
		return 100
	case "off", "false", "0":
		return 0
	}
	n, ok := strings.CutSuffix(value, "%")
	if !ok {
		return 0
	}
	pct, err := strconv.Atoi(n)
	if err != nil {
		return 0
	}
	return min(max(pct, 0), 100)
}

// Enabled reports whether name is on for userID. Partial rollouts hash the
// flag name with the user ID so a user keeps the same answer, and anonymous
// callers (userID 0) are never part of one.
func (m *Manager) Enabled(name string, userID uint) bool {
	if m == nil {
		return false
	}
	r, ok := m.rules[normalize(name)]
	switch {
	case !ok || r.pct <= 0:
		return false
	case r.pct >= 100:
		return true
	case userID == 0:
		return false
	}
	return bucket(name, userID) < r.pct
}

// Raw returns a copy of the configured values.
func (m *Manager) Raw() map[string]string {
	out := map[string]string{}
	if m == nil {
		return out
	}
	for name, r := range m.rules {
		out[name] = r.raw
	}
	return out
}

// Snapshot evaluates every configured flag for userID.
func (m *Manager) Snapshot(userID uint) map[string]bool {
	out := map[string]bool{}
	if m == nil {
		return out
	}
	for name := range m.rules {
		out[name] = m.Enabled(name, userID)
	}
	return out
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func bucket(name string, userID uint) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(normalize(name) + ":" + strconv.FormatUint(uint64(userID), 10)))
	return int(h.Sum32() % 100)
}
