// Package condition parses and evaluates the conditional-dependency
// grammar from spec.md §3/§4.1: KEY, !KEY, KEY=VAL, KEY!=VAL, KEY~regex,
// KEY!~regex, evaluated against a composed environment with short-circuit
// AND semantics.
package condition

import (
	"regexp"
	"strings"

	lerr "github.com/leafpkg/leaf/pkg/errors"
)

// Op is the comparison operator of a single condition.
type Op int

const (
	OpSet Op = iota
	OpUnset
	OpEqual
	OpNotEqual
	OpMatch
	OpNotMatch
)

// Cond is a single parsed condition (one comma-separated element inside
// the parentheses of a conditional package identifier).
type Cond struct {
	Key   string
	Op    Op
	Value string
	re    *regexp.Regexp
}

// Lookup is the minimal interface a composed environment must offer to be
// evaluated against: the effective (last-layer-wins) value of a key.
type Lookup interface {
	Find(key string) (string, bool)
}

// Parse parses a single condition element such as "KEY", "!KEY",
// "KEY=VAL", "KEY!=VAL", "KEY~regex", or "KEY!~regex".
func Parse(s string) (Cond, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Cond{}, lerr.New(lerr.KindInvalidInput, "empty condition")
	}
	if strings.HasPrefix(s, "!") {
		rest := s[1:]
		if idx := strings.Index(rest, "~"); idx >= 0 {
			key, pattern := rest[:idx], rest[idx+1:]
			re, err := regexp.Compile(pattern)
			if err != nil {
				return Cond{}, lerr.Wrap(lerr.KindInvalidInput, "invalid regex in condition: "+s, err)
			}
			return Cond{Key: key, Op: OpNotMatch, Value: pattern, re: re}, nil
		}
		if idx := strings.Index(rest, "="); idx >= 0 {
			return Cond{Key: rest[:idx], Op: OpNotEqual, Value: rest[idx+1:]}, nil
		}
		return Cond{Key: rest, Op: OpUnset}, nil
	}
	if idx := strings.Index(s, "!="); idx >= 0 {
		return Cond{Key: s[:idx], Op: OpNotEqual, Value: s[idx+2:]}, nil
	}
	if idx := strings.Index(s, "!~"); idx >= 0 {
		key, pattern := s[:idx], s[idx+2:]
		re, err := regexp.Compile(pattern)
		if err != nil {
			return Cond{}, lerr.Wrap(lerr.KindInvalidInput, "invalid regex in condition: "+s, err)
		}
		return Cond{Key: key, Op: OpNotMatch, Value: pattern, re: re}, nil
	}
	if idx := strings.Index(s, "~"); idx >= 0 {
		key, pattern := s[:idx], s[idx+1:]
		re, err := regexp.Compile(pattern)
		if err != nil {
			return Cond{}, lerr.Wrap(lerr.KindInvalidInput, "invalid regex in condition: "+s, err)
		}
		return Cond{Key: key, Op: OpMatch, Value: pattern, re: re}, nil
	}
	if idx := strings.Index(s, "="); idx >= 0 {
		return Cond{Key: s[:idx], Op: OpEqual, Value: s[idx+1:]}, nil
	}
	return Cond{Key: s, Op: OpSet}, nil
}

// Matches evaluates a single condition against a lookup.
func (c Cond) Matches(env Lookup) bool {
	val, ok := env.Find(c.Key)
	switch c.Op {
	case OpSet:
		return ok && val != ""
	case OpUnset:
		return !ok || val == ""
	case OpEqual:
		return ok && val == c.Value
	case OpNotEqual:
		return !ok || val != c.Value
	case OpMatch:
		return ok && c.re.MatchString(val)
	case OpNotMatch:
		return !ok || !c.re.MatchString(val)
	default:
		return false
	}
}

// Group is the parenthesized, comma-separated list of conditions attached
// to a conditional package identifier; all must match (short-circuit AND).
type Group []Cond

// ParseGroup parses a comma-separated condition list.
func ParseGroup(s string) (Group, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	group := make(Group, 0, len(parts))
	for _, p := range parts {
		c, err := Parse(p)
		if err != nil {
			return nil, err
		}
		group = append(group, c)
	}
	return group, nil
}

// Matches evaluates every condition in order, short-circuiting on the
// first failure.
func (g Group) Matches(env Lookup) bool {
	for _, c := range g {
		if !c.Matches(env) {
			return false
		}
	}
	return true
}

// String renders the group back to its source form, comma-joined.
func (g Group) String() string {
	parts := make([]string, 0, len(g))
	for _, c := range g {
		parts = append(parts, c.string())
	}
	return strings.Join(parts, ",")
}

func (c Cond) string() string {
	switch c.Op {
	case OpSet:
		return c.Key
	case OpUnset:
		return "!" + c.Key
	case OpEqual:
		return c.Key + "=" + c.Value
	case OpNotEqual:
		return c.Key + "!=" + c.Value
	case OpMatch:
		return c.Key + "~" + c.Value
	case OpNotMatch:
		return c.Key + "!~" + c.Value
	default:
		return c.Key
	}
}
