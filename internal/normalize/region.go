// Package normalize maps inconsistent region-name strings to the canonical
// values used as natural keys in the region dimension.
package normalize

import (
	"log/slog"
	"sort"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// defaultAliases maps known shorthand and variant spellings to canonical
// region names. Keys are lower-cased. Canonical values observed in the
// reference data take precedence over these when both index the same key.
var defaultAliases = map[string]string{
	"europe central":            "Europe Central",
	"east":                      "Europe East",
	"west":                      "Europe West",
	"north":                     "North America",
	"south":                     "South America",
	"asia":                      "Asia Pacific",
	"emea":                      "Europe Middle East Africa",
	"europe":                    "Europe Central",
	"america":                   "North America",
	"apj":                       "Asia Pacific",
	"north america":             "North America",
	"south america":             "South America",
	"europe west":               "Europe West",
	"europe east":               "Europe East",
	"asia pacific":              "Asia Pacific",
	"europe middle east africa": "Europe Middle East Africa",
}

// Normalizer resolves raw region strings against a case-insensitive index of
// canonical names and known aliases. It never fails: unrecognized input
// degrades to a title-cased best-effort value with a warning.
type Normalizer struct {
	index     map[string]string
	keys      []string // index keys, longest first, for the substring pass
	canonical map[string]bool
	titler    cases.Caser
	logger    *slog.Logger
}

// New builds a Normalizer from the distinct canonical region names observed
// in the reference data. If logger is nil, warnings are discarded.
func New(canonicalNames []string, logger *slog.Logger) *Normalizer {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	index := make(map[string]string, len(defaultAliases)+len(canonicalNames))
	for k, v := range defaultAliases {
		index[k] = v
	}

	canonical := make(map[string]bool, len(canonicalNames))
	for _, name := range canonicalNames {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		// Canonical names overwrite alias entries for the same key.
		index[strings.ToLower(name)] = name
		canonical[name] = true
	}

	// Longest key first so overlapping entries resolve to the most
	// specific match ("europe east" before "east").
	keys := make([]string, 0, len(index))
	for k := range index {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if len(keys[i]) != len(keys[j]) {
			return len(keys[i]) > len(keys[j])
		}
		return keys[i] < keys[j]
	})

	return &Normalizer{
		index:     index,
		keys:      keys,
		canonical: canonical,
		titler:    cases.Title(language.English),
		logger:    logger,
	}
}

// Normalize resolves a raw region string to its canonical form.
// Returns "" when the input is empty or whitespace (no region).
// Resolution order: exact index match, substring match (longest key first),
// title-cased canonical match, then a fabricated title-cased fallback with
// a warning.
func (n *Normalizer) Normalize(raw string) string {
	s := strings.ToLower(strings.TrimSpace(raw))
	if s == "" {
		return ""
	}

	if canonical, ok := n.index[s]; ok {
		return canonical
	}

	for _, key := range n.keys {
		if strings.Contains(s, key) || strings.Contains(key, s) {
			return n.index[key]
		}
	}

	titled := n.titler.String(s)
	if n.canonical[titled] {
		return titled
	}

	n.logger.Warn("no match for region, using title-cased input", "region", raw, "fallback", titled)
	return titled
}

// Canonical reports whether name is one of the known canonical region values.
func (n *Normalizer) Canonical(name string) bool {
	return n.canonical[name]
}
