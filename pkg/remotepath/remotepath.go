// Package remotepath provides pure helpers for slash-separated remote paths.
package remotepath

import "strings"

// Normalize cleans a remote path into canonical form: a single leading "/",
// no trailing "/" (except root itself), and no "." or ".." segments.
// ".." segments that would climb above root are dropped.
func Normalize(p string) string {
	segments := strings.Split(p, "/")
	stack := make([]string, 0, len(segments))

	for _, seg := range segments {
		switch seg {
		case "", ".":
			continue
		case "..":
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
		default:
			stack = append(stack, seg)
		}
	}

	if len(stack) == 0 {
		return "/"
	}
	return "/" + strings.Join(stack, "/")
}

// Join joins path elements onto base and normalizes the result. Elements
// that are themselves absolute restart the path from root.
func Join(base string, elems ...string) string {
	parts := make([]string, 0, len(elems)+1)
	parts = append(parts, base)
	for _, e := range elems {
		if strings.HasPrefix(e, "/") {
			parts = parts[:0]
		}
		parts = append(parts, e)
	}
	return Normalize(strings.Join(parts, "/"))
}

// Parent returns the normalized parent directory of p. The parent of root
// is root.
func Parent(p string) string {
	p = Normalize(p)
	if p == "/" {
		return "/"
	}
	idx := strings.LastIndexByte(p, '/')
	if idx <= 0 {
		return "/"
	}
	return p[:idx]
}

// Base returns the last segment of p, or "/" for the root path.
func Base(p string) string {
	p = Normalize(p)
	if p == "/" {
		return "/"
	}
	return p[strings.LastIndexByte(p, '/')+1:]
}

// IsRoot reports whether p normalizes to the root directory.
func IsRoot(p string) bool {
	return Normalize(p) == "/"
}
