// Package transport binds the D-Bus listen addresses of spec.md §6:
// unix:path=<abs-path> and tcp:host=<host>[,port=<port>][,family=ipv4|ipv6].
// It implements only the listen-address half of the D-Bus address grammar —
// never the full client-side connect grammar, which is out of scope for a
// broker that only ever accepts.
package transport

import (
	"fmt"
	"strings"
)

// Address is a parsed listen address: a transport name (unix, tcp) plus
// its key=value properties, as they appeared after the colon.
type Address struct {
	Transport string
	Props     map[string]string
}

// ParseAddress parses one listen address. bind= is accepted as a synonym
// for host= on tcp: addresses, per spec.md §6.
func ParseAddress(s string) (*Address, error) {
	colon := strings.IndexByte(s, ':')
	if colon < 0 {
		return nil, fmt.Errorf("transport: address %q has no transport prefix", s)
	}
	transportName := s[:colon]
	rest := s[colon+1:]

	props := make(map[string]string)
	if rest != "" {
		for _, kv := range strings.Split(rest, ",") {
			eq := strings.IndexByte(kv, '=')
			if eq <= 0 {
				return nil, fmt.Errorf("transport: malformed property %q in address %q", kv, s)
			}
			props[kv[:eq]] = unescape(kv[eq+1:])
		}
	}

	switch transportName {
	case "unix", "tcp":
		// recognised
	default:
		return nil, fmt.Errorf("transport: unknown transport %q", transportName)
	}

	if transportName == "tcp" {
		if host, ok := props["bind"]; ok {
			if _, hasHost := props["host"]; !hasHost {
				props["host"] = host
			}
		}
	}

	return &Address{Transport: transportName, Props: props}, nil
}

// unescape reverses the D-Bus address percent-encoding of a property
// value. The broker only ever needs to decode paths and hostnames, which
// in practice never carry encoded bytes, but any `%XX` sequence is
// decoded per the address grammar.
func unescape(s string) string {
	if !strings.ContainsRune(s, '%') {
		return s
	}
	var sb strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '%' && i+2 < len(s) {
			var b byte
			if _, err := fmt.Sscanf(s[i+1:i+3], "%02x", &b); err == nil {
				sb.WriteByte(b)
				i += 2
				continue
			}
		}
		sb.WriteByte(s[i])
	}
	return sb.String()
}
