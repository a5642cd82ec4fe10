package handshake

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/oferchen/rsync-sub007/internal/rsyncversion"
)

// LegacyGreetingPrefix is the textual marker a legacy daemon greeting
// line begins with, after the "@RSYNCD:" sniffed by the negotiation
// prologue.
const LegacyGreetingPrefix = "@RSYNCD:"

// LegacyGreeting is a parsed "@RSYNCD: <major>[.<minor>]" line.
type LegacyGreeting struct {
	Major int
	Minor int
}

// ParseLegacyGreeting parses a single greeting line (without its
// trailing newline), tolerating an optional ".minor" subprotocol
// component.
func ParseLegacyGreeting(line string) (LegacyGreeting, error) {
	rest := strings.TrimPrefix(strings.TrimSpace(line), LegacyGreetingPrefix)
	rest = strings.TrimSpace(rest)
	if rest == "" {
		return LegacyGreeting{}, fmt.Errorf("handshake: empty legacy greeting body")
	}

	major, minor := rest, ""
	if idx := strings.IndexByte(rest, '.'); idx >= 0 {
		major, minor = rest[:idx], rest[idx+1:]
	}

	mv, err := rsyncversion.Parse(major)
	if err != nil {
		return LegacyGreeting{}, fmt.Errorf("handshake: parsing legacy major version %q: %w", major, err)
	}
	g := LegacyGreeting{Major: mv.Int()}
	if minor != "" {
		n, err := parseNonNegativeInt(minor)
		if err != nil {
			return LegacyGreeting{}, fmt.Errorf("handshake: parsing legacy minor version %q: %w", minor, err)
		}
		g.Minor = n
	}
	return g, nil
}

func parseNonNegativeInt(s string) (int, error) {
	n := 0
	if s == "" {
		return 0, fmt.Errorf("empty integer")
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return 0, fmt.Errorf("non-digit %q", c)
		}
		n = n*10 + int(c-'0')
	}
	return n, nil
}

// readLegacyLine reads up to and including a '\n', trimming a trailing
// '\r' for CRLF tolerance, and stripping the final '\n' itself.
func readLegacyLine(r *bufio.Reader) (string, error) {
	line, err := r.ReadString('\n')
	if err != nil {
		return "", err
	}
	line = strings.TrimSuffix(line, "\n")
	line = strings.TrimSuffix(line, "\r")
	return line, nil
}

// LegacyDaemon performs the legacy "@RSYNCD:" handshake (spec §4.8):
// read the peer's greeting line (the sniffed "@RSYNCD:" prefix having
// already been replayed onto r by the negotiation layer), reply with
// the negotiated version in the same textual form, then absorb
// greeting/motd lines until "@RSYNCD: OK" is seen.
//
// Module authentication is out of scope for this core engine (spec's
// explicit daemon-auth non-goal) but flows over the same line-oriented
// transport, so callers integrating authentication can continue reading
// lines from br after LegacyDaemon returns.
func LegacyDaemon(r io.Reader, w io.Writer, maxProtocol rsyncversion.ProtocolVersion) (*bufio.Reader, rsyncversion.ProtocolVersion, error) {
	br, ok := r.(*bufio.Reader)
	if !ok {
		br = bufio.NewReader(r)
	}

	line, err := readLegacyLine(br)
	if err != nil {
		return br, 0, fmt.Errorf("handshake: reading legacy greeting: %w", err)
	}
	greeting, err := ParseLegacyGreeting(line)
	if err != nil {
		return br, 0, err
	}

	negotiated, err := rsyncversion.Clamp(greeting.Major)
	if err != nil {
		return br, 0, fmt.Errorf("%w: %v", ErrUnsupportedVersion, err)
	}
	if negotiated > maxProtocol {
		negotiated = maxProtocol
	}

	reply := fmt.Sprintf("%s %d\n", LegacyGreetingPrefix, negotiated.Int())
	if _, err := io.WriteString(w, reply); err != nil {
		return br, 0, fmt.Errorf("handshake: writing legacy reply: %w", err)
	}

	for {
		line, err := readLegacyLine(br)
		if err != nil {
			return br, 0, fmt.Errorf("handshake: reading legacy greeting lines: %w", err)
		}
		trimmed := strings.TrimSpace(line)
		if trimmed == LegacyGreetingPrefix+" OK" {
			break
		}
	}

	return br, negotiated, nil
}
