package artifact

import (
	"path"
	"strings"
)

// Match matches a slash-separated relative path against a glob pattern
// supporting "**" as a full-segment wildcard spanning zero or more
// directories. Single segments use path.Match semantics.
func Match(pattern, rel string) bool {
	return matchPattern(pattern, rel)
}

// hasMeta reports whether the locator contains glob metacharacters.
func hasMeta(locator string) bool {
	return strings.ContainsAny(locator, "*?[")
}

// matchPattern matches a slash-separated relative path against a glob
// pattern supporting "**" as a full-segment wildcard spanning zero or more
// directories. Single segments use path.Match semantics.
func matchPattern(pattern, rel string) bool {
	return matchSegments(strings.Split(pattern, "/"), strings.Split(rel, "/"))
}

func matchSegments(pat, segs []string) bool {
	for len(pat) > 0 {
		if pat[0] == "**" {
			// Collapse consecutive ** segments.
			for len(pat) > 0 && pat[0] == "**" {
				pat = pat[1:]
			}
			if len(pat) == 0 {
				return true
			}
			for i := 0; i <= len(segs); i++ {
				if matchSegments(pat, segs[i:]) {
					return true
				}
			}
			return false
		}
		if len(segs) == 0 {
			return false
		}
		ok, err := path.Match(pat[0], segs[0])
		if err != nil || !ok {
			return false
		}
		pat = pat[1:]
		segs = segs[1:]
	}
	return len(segs) == 0
}

// patternRoot returns the longest literal directory prefix of a pattern,
// used to narrow filesystem walks.
func patternRoot(pattern string) string {
	segs := strings.Split(pattern, "/")
	var literal []string
	for _, s := range segs[:len(segs)-1] {
		if hasMeta(s) || s == "**" {
			break
		}
		literal = append(literal, s)
	}
	return strings.Join(literal, "/")
}
