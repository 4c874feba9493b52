package broker

import (
	"strings"

	"github.com/dbusd/dbusd/internal/wire"
	"github.com/dbusd/dbusd/pkg/broker/dbuserr"
)

// MatchRule is the broker's view of a parsed D-Bus match rule: every field is
// independently optional, and a rule matches a message when every field it
// specifies equals the corresponding field of the message. The broker does
// not resolve a rule's `sender` from a well-known name to the owning
// session's unique name, because every routed message carries the sender's
// unique name; a rule written against a well-known name therefore never
// matches, except `sender='org.freedesktop.DBus'`, which the broker's own
// replies and signals carry.
type MatchRule struct {
	raw       string
	Type      string
	Sender    string
	Interface string
	Member    string
	Path      string
	PathNS    string
	Destination string
	Arg0      string
}

// ParseMatchRule parses the comma-separated `key='value'` rule string
// AddMatch/RemoveMatch receive. Recognised keys: type, sender, interface,
// member, path, path_namespace, destination, arg0. Unrecognised keys are
// ignored (forwards-compatible with clients speaking a newer rule dialect),
// matching real D-Bus broker behaviour; a genuinely malformed rule (an
// unterminated quote, an empty key) fails.
func ParseMatchRule(s string) (*MatchRule, error) {
	r := &MatchRule{raw: s}
	for _, part := range splitRuleTerms(s) {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		eq := strings.IndexByte(part, '=')
		if eq <= 0 {
			return nil, dbuserr.NewMatchRuleInvalid("expected key='value', got " + part)
		}
		key := part[:eq]
		val := part[eq+1:]
		val, err := unquote(val)
		if err != nil {
			return nil, err
		}
		switch key {
		case "type":
			r.Type = val
		case "sender":
			r.Sender = val
		case "interface":
			r.Interface = val
		case "member":
			r.Member = val
		case "path":
			r.Path = val
		case "path_namespace":
			r.PathNS = val
		case "destination":
			r.Destination = val
		case "arg0":
			r.Arg0 = val
		}
	}
	return r, nil
}

// splitRuleTerms splits on top-level commas, respecting single-quoted
// values that may themselves contain commas.
func splitRuleTerms(s string) []string {
	var terms []string
	inQuote := false
	start := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '\'':
			inQuote = !inQuote
		case ',':
			if !inQuote {
				terms = append(terms, s[start:i])
				start = i + 1
			}
		}
	}
	terms = append(terms, s[start:])
	return terms
}

func unquote(v string) (string, error) {
	if len(v) >= 2 && v[0] == '\'' && v[len(v)-1] == '\'' {
		return v[1 : len(v)-1], nil
	}
	if strings.ContainsRune(v, '\'') {
		return "", dbuserr.NewMatchRuleInvalid("unterminated quote in " + v)
	}
	return v, nil
}

// Equal reports whether two rules are the same rule for RemoveMatch's
// "first equal rule" lookup. Equality is defined over the parsed fields,
// not the original string (so AUTH whitespace/ordering differences don't
// prevent matching a later RemoveMatch of a logically identical rule).
func (r *MatchRule) Equal(o *MatchRule) bool {
	return r.Type == o.Type &&
		r.Sender == o.Sender &&
		r.Interface == o.Interface &&
		r.Member == o.Member &&
		r.Path == o.Path &&
		r.PathNS == o.PathNS &&
		r.Destination == o.Destination &&
		r.Arg0 == o.Arg0
}

// Matches reports whether m satisfies every field r specifies.
func (r *MatchRule) Matches(m *wire.Message) bool {
	if r.Type != "" && r.Type != m.Type.String() {
		return false
	}
	if r.Sender != "" && r.Sender != m.Sender {
		return false
	}
	if r.Interface != "" && r.Interface != m.Interface {
		return false
	}
	if r.Member != "" && r.Member != m.Member {
		return false
	}
	if r.Path != "" && r.Path != string(m.Path) {
		return false
	}
	if r.PathNS != "" && !pathInNamespace(string(m.Path), r.PathNS) {
		return false
	}
	if r.Destination != "" && r.Destination != m.Destination {
		return false
	}
	if r.Arg0 != "" {
		if len(m.Values) == 0 {
			return false
		}
		s, ok := m.Values[0].(string)
		if !ok || s != r.Arg0 {
			return false
		}
	}
	return true
}

func pathInNamespace(path, ns string) bool {
	if path == ns {
		return true
	}
	return strings.HasPrefix(path, strings.TrimSuffix(ns, "/")+"/")
}
