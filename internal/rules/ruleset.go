// Package rules turns preserve/remove rule lines into the concrete set of
// paths they name inside a tree.
package rules

import (
	"errors"
	"strings"
)

// Mode selects whether a rule set names the entries to keep or the entries
// to delete.
type Mode int

const (
	ModeNone Mode = iota
	Preserve
	Remove
)

func (m Mode) String() string {
	switch m {
	case Preserve:
		return "preserve"
	case Remove:
		return "remove"
	default:
		return "none"
	}
}

var (
	ErrNoMode           = errors.New("no preserve or remove rules given")
	ErrConflictingModes = errors.New("preserve and remove rules are mutually exclusive")
	ErrBadPattern       = errors.New("invalid rule pattern")
)

// RuleSet is an ordered list of glob patterns with the mode they apply in.
type RuleSet struct {
	Mode     Mode
	Patterns []string
}

// Parse tokenizes rule lines by whitespace into one flat pattern list.
func Parse(lines []string) []string {
	var patterns []string
	for _, line := range lines {
		patterns = append(patterns, strings.Fields(line)...)
	}
	return patterns
}

// NewRuleSet builds a rule set from preserve and remove rule lines.
// Exactly one of the two may carry patterns.
func NewRuleSet(preserveLines, removeLines []string) (RuleSet, error) {
	preserve := Parse(preserveLines)
	remove := Parse(removeLines)

	switch {
	case len(preserve) > 0 && len(remove) > 0:
		return RuleSet{}, ErrConflictingModes
	case len(preserve) > 0:
		return RuleSet{Mode: Preserve, Patterns: preserve}, nil
	case len(remove) > 0:
		return RuleSet{Mode: Remove, Patterns: remove}, nil
	default:
		return RuleSet{}, ErrNoMode
	}
}

// Validate checks that the rule set has a mode.
func (rs RuleSet) Validate() error {
	if rs.Mode != Preserve && rs.Mode != Remove {
		return ErrNoMode
	}
	return nil
}
