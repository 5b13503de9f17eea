// Package pathcodec converts absolute project paths to the
// directory names Claude Code uses under ~/.claude/projects and
// back. The encoding is lossy: decoding only restores the drive
// prefix and is meant for display.
package pathcodec

import (
	"path/filepath"
	"regexp"
	"strings"
)

var drivePrefixRe = regexp.MustCompile(`^([A-Za-z])--`)

// Encode maps an absolute path to its store directory name.
// Every character outside [A-Za-z0-9-] becomes a single dash, so
// C:\Users\me\my.app and C:/Users/me/my app share the name
// C--Users-me-my-app.
func Encode(absPath string) string {
	var b strings.Builder
	b.Grow(len(absPath))
	for _, r := range absPath {
		if isNameRune(r) {
			b.WriteRune(r)
		} else {
			b.WriteByte('-')
		}
	}
	return b.String()
}

func isNameRune(r rune) bool {
	return r == '-' ||
		(r >= 'a' && r <= 'z') ||
		(r >= 'A' && r <= 'Z') ||
		(r >= '0' && r <= '9')
}

// Decode turns a leading drive marker (C--) back into C:/ and
// leaves the rest of the name untouched. The result is an
// estimate and must not be used as a migration source without
// the user confirming it.
func Decode(name string) string {
	return drivePrefixRe.ReplaceAllString(name, "$1:/")
}

// IsWindowsAbs reports whether p is a drive-rooted (C:\ or C:/)
// or UNC (\\host\share) path, regardless of the host OS.
func IsWindowsAbs(p string) bool {
	if strings.HasPrefix(p, `\\`) {
		return true
	}
	if len(p) < 3 || p[1] != ':' {
		return false
	}
	c := p[0]
	isLetter := (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
	return isLetter && (p[2] == '\\' || p[2] == '/')
}

// Normalize prepares a user-supplied project path for encoding.
// Surrounding whitespace and quotes are stripped. Windows
// absolute paths are kept verbatim apart from trailing
// separators so they survive on non-Windows hosts; anything else
// is cleaned and made absolute against the working directory.
func Normalize(p string) (string, error) {
	p = strings.TrimSpace(p)
	p = trimQuotes(p)
	if p == "" {
		return "", nil
	}
	if IsWindowsAbs(p) {
		trimmed := strings.TrimRight(p, `\/`)
		if len(trimmed) <= 2 {
			// Drive root: keep "C:\" rather than "C:".
			return p[:3], nil
		}
		return trimmed, nil
	}
	if filepath.IsAbs(p) {
		return filepath.Clean(p), nil
	}
	return filepath.Abs(p)
}

func trimQuotes(s string) string {
	if len(s) >= 2 {
		first, last := s[0], s[len(s)-1]
		if (first == '"' && last == '"') ||
			(first == '\'' && last == '\'') {
			return strings.TrimSpace(s[1 : len(s)-1])
		}
	}
	return s
}

var (
	projectMarkers = []string{
		"code", "projects", "repos", "src", "work", "dev",
	}
	ignoredSystemDirs = map[string]bool{
		"users": true, "home": true, "var": true,
		"tmp": true, "private": true,
	}
)

// ShortName guesses a human-friendly project name from an
// encoded directory name, for listings where no real path was
// recovered. It prefers the part after a well-known parent such
// as "projects" or "code", else the last non-system component.
func ShortName(name string) string {
	if name == "" {
		return ""
	}
	rest := name
	if m := drivePrefixRe.FindString(rest); m != "" {
		rest = rest[len(m):]
	}
	parts := strings.Split(strings.Trim(rest, "-"), "-")

	for _, marker := range projectMarkers {
		for i, part := range parts {
			if strings.EqualFold(part, marker) && i+1 < len(parts) {
				if result := strings.Join(parts[i+1:], "-"); result != "" {
					return result
				}
			}
		}
	}

	for i := len(parts) - 1; i >= 0; i-- {
		if p := parts[i]; p != "" && !ignoredSystemDirs[strings.ToLower(p)] {
			return p
		}
	}
	return name
}
