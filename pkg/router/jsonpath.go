package router

import (
	"strconv"
	"strings"
)

// resolveJSONPath navigates path (a minimal dot/bracket dialect: dot
// segments, optional "[idx]" array indices, optional leading "$" root)
// through v. Any navigation through nil or an absent key yields
// (nil, false) — spec.md's "no match" contract — never a panic.
func resolveJSONPath(v any, path string) (any, bool) {
	path = strings.TrimPrefix(path, "$")
	path = strings.TrimPrefix(path, ".")
	if path == "" {
		return v, true
	}

	for _, segment := range strings.Split(path, ".") {
		if segment == "" {
			continue
		}
		name, indices := splitIndices(segment)
		if name != "" {
			m, ok := v.(map[string]any)
			if !ok {
				return nil, false
			}
			v, ok = m[name]
			if !ok {
				return nil, false
			}
		}
		for _, idx := range indices {
			slice, ok := v.([]any)
			if !ok || idx < 0 || idx >= len(slice) {
				return nil, false
			}
			v = slice[idx]
		}
		if v == nil {
			return nil, false
		}
	}
	return v, true
}

// splitIndices splits "foo[2][3]" into ("foo", [2, 3]) and "[2]" into
// ("", [2]).
func splitIndices(segment string) (string, []int) {
	bracket := strings.IndexByte(segment, '[')
	if bracket == -1 {
		return segment, nil
	}
	name := segment[:bracket]
	rest := segment[bracket:]

	var indices []int
	for len(rest) > 0 {
		if rest[0] != '[' {
			break
		}
		end := strings.IndexByte(rest, ']')
		if end == -1 {
			break
		}
		n, err := strconv.Atoi(rest[1:end])
		if err != nil {
			break
		}
		indices = append(indices, n)
		rest = rest[end+1:]
	}
	return name, indices
}
