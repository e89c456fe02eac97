package workspace

import "strings"

// elidedNames are directory/file basenames never shown in a tree listing
// or searched, regardless of path depth — build output, VCS metadata,
// and vendored dependencies.
var elidedNames = map[string]bool{
	".git":          true,
	"node_modules":  true,
	"vendor":        true,
	"dist":          true,
	"build":         true,
	"target":        true,
	"__pycache__":   true,
	".next":         true,
	".venv":         true,
	".worktrees":    true,
	"bin":           true,
	".DS_Store":     true,
}

// elided reports whether name should be hidden from a directory listing:
// a dotfile (except the repo root itself, which callers never pass here)
// or a known heavy/generated directory.
func elided(name string) bool {
	if elidedNames[name] {
		return true
	}
	return strings.HasPrefix(name, ".")
}

// globMatch reports whether path matches pattern, adapted from the
// teacher's MCP tool-name glob matcher to path segments: "*" matches one
// segment, "**" matches zero or more.
func globMatch(pattern, path string) bool {
	return globMatchSegments(strings.Split(pattern, "/"), strings.Split(path, "/"))
}

func globMatchSegments(pat, seg []string) bool {
	for len(pat) > 0 {
		p := pat[0]
		pat = pat[1:]

		if p == "**" {
			if len(pat) == 0 {
				return true
			}
			for i := 0; i <= len(seg); i++ {
				if globMatchSegments(pat, seg[i:]) {
					return true
				}
			}
			return false
		}

		if len(seg) == 0 {
			return false
		}
		if p != "*" && p != seg[0] {
			return false
		}
		seg = seg[1:]
	}
	return len(seg) == 0
}
