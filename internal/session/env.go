package session

import "strings"

// baselineEnv builds the controlled environment a session's PTY process
// runs with: HOME (and a handful of locale/path essentials) are carried
// over from the gateway process's own environment, TERM and LANG are
// forced to known-good values regardless of what the gateway inherited,
// so a client's terminal rendering doesn't depend on how codeterm itself
// was launched.
func baselineEnv(osEnv []string) []string {
	const (
		forcedTerm = "TERM=xterm-256color"
		forcedLang = "LANG=en_US.UTF-8"
	)

	carry := map[string]bool{
		"HOME": true,
		"USER": true,
		"PATH": true,
		"SHELL": true,
	}

	out := make([]string, 0, len(osEnv)+2)
	for _, kv := range osEnv {
		key, _, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		if carry[key] {
			out = append(out, kv)
		}
	}

	out = append(out, forcedTerm, forcedLang)
	return out
}
