package manifest

import (
	"strings"

	"github.com/leafpkg/leaf/pkg/condition"
	lerr "github.com/leafpkg/leaf/pkg/errors"
	"github.com/leafpkg/leaf/pkg/identifier"
)

// ConditionalIdentifier is a "depends" entry: an identifier plus the
// environment conditions that gate the edge (spec.md §3).
type ConditionalIdentifier struct {
	ID         identifier.Identifier
	Conditions condition.Group
}

// ParseConditionalIdentifier parses "name_version[(cond[,cond]...)]".
func ParseConditionalIdentifier(s string) (ConditionalIdentifier, error) {
	body, condPart, hasCond := cutConditions(s)
	id, err := identifier.ParseQuery(body)
	if err != nil {
		return ConditionalIdentifier{}, err
	}
	if !hasCond {
		return ConditionalIdentifier{ID: id}, nil
	}
	group, err := condition.ParseGroup(condPart)
	if err != nil {
		return ConditionalIdentifier{}, err
	}
	return ConditionalIdentifier{ID: id, Conditions: group}, nil
}

func cutConditions(s string) (body, conditions string, hasCond bool) {
	if !strings.HasSuffix(s, ")") {
		return s, "", false
	}
	open := strings.LastIndex(s, "(")
	if open < 0 {
		return s, "", false
	}
	return s[:open], s[open+1 : len(s)-1], true
}

// Matches reports whether every condition on this edge is satisfied by env.
func (c ConditionalIdentifier) Matches(env condition.Lookup) bool {
	return c.Conditions.Matches(env)
}

// String renders back to "name_version(cond,cond)" form.
func (c ConditionalIdentifier) String() string {
	if len(c.Conditions) == 0 {
		return c.ID.String()
	}
	return c.ID.String() + "(" + c.Conditions.String() + ")"
}

// MarshalJSON/UnmarshalJSON let ConditionalIdentifier live inline in a
// Manifest's "depends" list as a plain JSON string.
func (c ConditionalIdentifier) MarshalJSON() ([]byte, error) {
	return marshalQuotedString(c.String())
}

func (c *ConditionalIdentifier) UnmarshalJSON(data []byte) error {
	s, err := unmarshalQuotedString(data)
	if err != nil {
		return err
	}
	parsed, err := ParseConditionalIdentifier(s)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// RequiredIdentifier is an unconditional "requires" entry.
type RequiredIdentifier = identifier.Identifier

func parseRequired(s string) (RequiredIdentifier, error) {
	id, err := identifier.Parse(s)
	if err != nil {
		return identifier.Identifier{}, lerr.Wrap(lerr.KindInvalidInput, "invalid requires entry: "+s, err)
	}
	return id, nil
}
