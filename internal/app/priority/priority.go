// Package priority defines the total order over privilege levels used to gate
// direct-message admission.
package priority

import (
	"fmt"
	"strings"
)

// Level is a privilege tier. Higher values outrank lower ones; gaps are left
// between the built-in tiers so new tiers can be slotted in without renumbering.
type Level int

const (
	// Direct is the tier of an ordinary player accepting direct messages.
	Direct Level = 0
	// Staff is used by staff members who only want staff-level traffic.
	Staff Level = 10
	// Admin is the highest built-in tier.
	Admin Level = 20
)

// Ordering is the result of comparing two levels.
type Ordering int

const (
	Less    Ordering = -1
	Equal   Ordering = 0
	Greater Ordering = 1
)

var names = map[Level]string{
	Direct: "DIRECT",
	Staff:  "STAFF",
	Admin:  "ADMIN",
}

// Compare orders a against b.
func Compare(a, b Level) Ordering {
	switch {
	case a < b:
		return Less
	case a > b:
		return Greater
	default:
		return Equal
	}
}

// IsGreaterThan reports whether l strictly outranks other.
func (l Level) IsGreaterThan(other Level) bool {
	return Compare(l, other) == Greater
}

func (l Level) String() string {
	if name, ok := names[l]; ok {
		return name
	}
	return fmt.Sprintf("LEVEL(%d)", int(l))
}

// Parse resolves a level by name, case-insensitively. An empty string yields Direct.
func Parse(s string) (Level, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return Direct, nil
	}
	for level, name := range names {
		if name == s {
			return level, nil
		}
	}
	return Direct, fmt.Errorf("unknown priority level %q", s)
}
