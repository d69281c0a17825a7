// Package address parses the single endpoint string the daemon binds and
// the SDK/CLI connect to into a bindable/connectable address: a
// filesystem-path socket, an abstract-namespace socket, a bare IPv4/IPv6
// address with port, or a dual-stack wildcard.
//
// Grounded on original_source/src/common/io/socket_address.cpp, adapted to
// Go's net.Addr-free string address idiom (the one share/endpoint_descriptor.go
// also uses for TCP host:port parsing in the teacher repo).
package address

import (
	"strconv"
	"strings"

	"github.com/ocvsmd-go/ocvsmd/internal/ipcerr"
)

// Family distinguishes the five recognized endpoint forms.
type Family int

const (
	FamilyUnix Family = iota
	FamilyUnixAbstract
	FamilyIPv4
	FamilyIPv6
	FamilyWildcard
)

// maxUnixPathLen mirrors the conventional Linux sockaddr_un.sun_path size.
const maxUnixPathLen = 108

// Endpoint is the parsed, bindable/connectable form of an endpoint string.
type Endpoint struct {
	Family Family
	// Path holds the socket path for FamilyUnix/FamilyUnixAbstract (without
	// the synthesized leading NUL for the abstract case).
	Path string
	// Host holds the numeric address text for FamilyIPv4/FamilyIPv6; empty
	// for FamilyWildcard.
	Host string
	Port uint16
}

// Network returns the net.Listen/net.Dial network name for this endpoint.
func (e Endpoint) Network() string {
	switch e.Family {
	case FamilyUnix, FamilyUnixAbstract:
		return "unix"
	case FamilyIPv4:
		return "tcp4"
	case FamilyIPv6:
		return "tcp6"
	default:
		return "tcp"
	}
}

// String renders a bindable/dialable address string for net.Listen/net.Dial
// (for unix sockets, the abstract-namespace leading NUL is synthesized here).
func (e Endpoint) String() string {
	switch e.Family {
	case FamilyUnix:
		return e.Path
	case FamilyUnixAbstract:
		return "@" + e.Path
	case FamilyIPv6:
		return "[" + e.Host + "]:" + strconv.Itoa(int(e.Port))
	case FamilyWildcard:
		return ":" + strconv.Itoa(int(e.Port))
	default:
		return e.Host + ":" + strconv.Itoa(int(e.Port))
	}
}

// Format renders the textual address in the same grammar Parse accepts,
// i.e. Parse(e.Format(), 0) reproduces e for any representable Endpoint.
func (e Endpoint) Format() string {
	switch e.Family {
	case FamilyUnix:
		return "unix:" + e.Path
	case FamilyUnixAbstract:
		return "unix-abstract:" + e.Path
	case FamilyIPv6:
		return "[" + e.Host + "]:" + strconv.Itoa(int(e.Port))
	case FamilyWildcard:
		if e.Port == 0 {
			return "*"
		}
		return "*:" + strconv.Itoa(int(e.Port))
	default:
		return e.Host + ":" + strconv.Itoa(int(e.Port))
	}
}

// Parse parses a single endpoint string, trying each recognized form in
// turn. defaultPort is used as the port when the textual form carries no
// port of its own (bare IPv4/IPv6 host, or "*").
func Parse(s string, defaultPort uint16) (Endpoint, error) {
	if path, ok := cutPrefix(s, "unix:"); ok {
		if len(path)+1 > maxUnixPathLen {
			return Endpoint{}, ipcerr.New(ipcerr.EINVAL, "unix socket path too long: %q", path)
		}
		return Endpoint{Family: FamilyUnix, Path: path}, nil
	}

	if path, ok := cutPrefix(s, "unix-abstract:"); ok {
		if len(path)+1 > maxUnixPathLen {
			return Endpoint{}, ipcerr.New(ipcerr.EINVAL, "abstract socket path too long: %q", path)
		}
		return Endpoint{Family: FamilyUnixAbstract, Path: path}, nil
	}

	host, port, err := extractHostAndPort(s, defaultPort)
	if err != nil {
		return Endpoint{}, err
	}

	if host == "*" {
		return Endpoint{Family: FamilyWildcard, Port: port}, nil
	}

	if strings.Contains(host, ":") {
		return Endpoint{Family: FamilyIPv6, Host: host, Port: port}, nil
	}

	return Endpoint{Family: FamilyIPv4, Host: host, Port: port}, nil
}

func cutPrefix(s, prefix string) (string, bool) {
	if strings.HasPrefix(s, prefix) {
		return s[len(prefix):], true
	}
	return "", false
}

// extractHostAndPort implements forms 3-7 of spec.md §4.1: bracketed IPv6
// with optional port, bare IPv6 (two-or-more colons, no brackets), IPv4
// with a single colon-delimited port, bare IPv4/wildcard at defaultPort.
func extractHostAndPort(s string, defaultPort uint16) (string, uint16, error) {
	port := defaultPort

	if strings.HasPrefix(s, "[") {
		closeIdx := strings.LastIndex(s, "]")
		if closeIdx < 0 {
			return "", 0, ipcerr.New(ipcerr.EINVAL, "unclosed '[' in address %q", s)
		}
		host := s[1:closeIdx]
		rest := s[closeIdx+1:]
		if rest != "" {
			if !strings.HasPrefix(rest, ":") {
				return "", 0, ipcerr.New(ipcerr.EINVAL, "expected ':' after ']' in address %q", s)
			}
			p, err := parsePort(rest[1:])
			if err != nil {
				return "", 0, err
			}
			port = p
		}
		return host, port, nil
	}

	colonCount := strings.Count(s, ":")
	switch {
	case colonCount >= 2:
		return s, port, nil
	case colonCount == 1:
		idx := strings.IndexByte(s, ':')
		host := s[:idx]
		p, err := parsePort(s[idx+1:])
		if err != nil {
			return "", 0, err
		}
		return host, p, nil
	default:
		return s, port, nil
	}
}

func parsePort(s string) (uint16, error) {
	v, err := strconv.ParseUint(s, 10, 32)
	if err != nil || v > 65535 {
		return 0, ipcerr.New(ipcerr.EINVAL, "invalid port number %q", s)
	}
	return uint16(v), nil
}

// ValidateUnixPath exists so callers (bind/connect) can surface a
// consistent error if the platform path limit is exceeded after
// concatenation with a leading NUL (abstract namespace).
func ValidateUnixPath(e Endpoint) error {
	n := len(e.Path) + 1 // +1 for the NUL terminator (or synthesized leading NUL)
	if n > maxUnixPathLen {
		return ipcerr.New(ipcerr.EINVAL, "unix socket path too long: %q", e.Path)
	}
	return nil
}
