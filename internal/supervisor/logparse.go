package supervisor

import (
	"strings"

	"github.com/acarl005/stripansi"
)

// lineKind classifies one parsed stdout line (spec §4.6.4).
type lineKind int

const (
	lineKindNone lineKind = iota
	lineKindReady
	lineKindJoin
	lineKindLeave
)

var joinSubstrings = []string{"joined the game", "connected:"}
var leaveSubstrings = []string{"left the game", "disconnected:"}

// parseLine strips ANSI escapes and classifies a raw stdout line, returning
// the stripped text, its kind, and (for join/leave) the extracted username.
func parseLine(raw string) (clean string, kind lineKind, username string) {
	clean = stripansi.Strip(raw)
	lower := strings.ToLower(clean)

	if isReadyLine(lower) {
		return clean, lineKindReady, ""
	}
	// "disconnected:" contains "connected:" as a substring, so leave patterns
	// must be checked before join patterns.
	for _, sub := range leaveSubstrings {
		if strings.Contains(lower, sub) {
			return clean, lineKindLeave, extractUsername(clean, sub)
		}
	}
	for _, sub := range joinSubstrings {
		if strings.Contains(lower, sub) {
			return clean, lineKindJoin, extractUsername(clean, sub)
		}
	}
	return clean, lineKindNone, ""
}

// isReadyLine matches spec §4.6.4's "Ready" pattern family, case-insensitively.
// "done" only gates the two sub-clauses that need it (the vanilla "Done
// (X.Ys)! For help..." banner); the other clauses stand on their own, per
// the original's is_ready_line.
func isReadyLine(lower string) bool {
	switch {
	case strings.Contains(lower, "done") && strings.Contains(lower, `for help, type "help"`):
		return true
	case strings.Contains(lower, `! for help, type "help"`):
		return true
	case strings.Contains(lower, "server started."):
		return true
	case strings.Contains(lower, "rcon running on"):
		return true
	case strings.Contains(lower, "done") && strings.Contains(lower, "(") && strings.Contains(lower, "s)"):
		return true
	case strings.Contains(lower, "timings reset"):
		return true
	default:
		return false
	}
}

// extractUsername pulls the player/proxy username out of a classified line.
// Vanilla-style lines (join/leave) name the player before the matched
// substring; proxy-style lines name the player after it, up to the next
// comma (spec §4.6.4 "Username extraction").
func extractUsername(clean, matched string) string {
	idx := strings.Index(strings.ToLower(clean), matched)
	if idx < 0 {
		return ""
	}

	if matched == "connected:" || matched == "disconnected:" {
		rest := clean[idx+len(matched):]
		if comma := strings.Index(rest, ","); comma >= 0 {
			rest = rest[:comma]
		}
		return strings.TrimSpace(rest)
	}

	prefix := clean[:idx]
	if i := strings.LastIndex(prefix, "INFO]: "); i >= 0 {
		prefix = prefix[i+len("INFO]: "):]
	} else if i := strings.LastIndex(prefix, ": "); i >= 0 {
		prefix = prefix[i+len(": "):]
	}
	return strings.TrimSpace(prefix)
}
