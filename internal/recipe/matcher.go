package recipe

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"

	"github.com/roach88/galley/internal/domain"
)

// Matcher decides whether a modifier name carries a marker.
type Matcher interface {
	Match(name string) bool
}

// NameMatcher matches names containing any configured marker after NFC
// normalization and Unicode case folding, so "DECAF", "Decaf" and "decaf"
// are the same marker and localized names compare reliably.
type NameMatcher struct {
	markers []string
}

// DefaultDecafMarkers are used when no markers are configured. The Hebrew
// markers are whole phrases: "קפאין" alone is the regular option and "נטול"
// alone also names lactose-free milk.
var DefaultDecafMarkers = []string{"decaf", "נטול קפאין", "ללא קפאין", "דקף"}

// NewNameMatcher returns a matcher for the given markers. Empty markers are
// ignored.
func NewNameMatcher(markers ...string) *NameMatcher {
	m := &NameMatcher{}
	for _, marker := range markers {
		if f := fold(marker); f != "" {
			m.markers = append(m.markers, f)
		}
	}
	return m
}

// Match reports whether name contains one of the markers.
func (m *NameMatcher) Match(name string) bool {
	if m == nil || len(m.markers) == 0 {
		return false
	}
	folded := fold(name)
	for _, marker := range m.markers {
		if strings.Contains(folded, marker) {
			return true
		}
	}
	return false
}

// fold allocates a Caser per call; Casers keep state and are not safe to share.
func fold(s string) string {
	return cases.Fold().String(norm.NFC.String(strings.TrimSpace(s)))
}

// IsDecaf reports whether value turns item into its decaf variant.
//
// The only gate is group assignment: the value's group must be assigned to
// the item. The item's category plays no part, so a decaf modifier on a
// shared group applies to every item that carries the group.
func IsDecaf(item domain.MenuItem, value domain.ModifierValue, m Matcher) bool {
	if !item.HasGroup(value.GroupID) {
		return false
	}
	if value.Decaf {
		return true
	}
	return m != nil && m.Match(value.Name)
}
