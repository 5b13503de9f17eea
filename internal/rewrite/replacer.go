// Package rewrite substitutes one project path for another in the
// files Claude Code keeps per project: JSONL session logs, the
// sessions-index.json metadata document and free-form notes.
//
// A path can appear in three spellings: with forward slashes,
// with native backslashes, and with JSON-escaped backslashes
// (C:\\Users\\me). All three are matched case-insensitively.
package rewrite

import (
	"bytes"
	"strings"
	"unicode"
	"unicode/utf8"
)

// pathForms returns the forward-slash, backslash and
// JSON-escaped-backslash spellings of p.
func pathForms(p string) [3]string {
	fwd := strings.ReplaceAll(p, `\`, "/")
	back := strings.ReplaceAll(p, "/", `\`)
	esc := strings.ReplaceAll(back, `\`, `\\`)
	return [3]string{fwd, back, esc}
}

// BuildVariants returns the lower-cased search terms for oldPath:
// forward-slash, backslash and JSON-escaped forms, in that order.
func BuildVariants(oldPath string) []string {
	forms := pathForms(oldPath)
	out := make([]string, len(forms))
	for i, f := range forms {
		out[i] = strings.ToLower(f)
	}
	return out
}

type variant struct {
	old    string
	new    string
	needle []byte // lower-cased old, set when old is ASCII
}

// Replacer rewrites every spelling of one path into the matching
// spelling of another. A Replacer is not safe for concurrent use.
type Replacer struct {
	variants []variant
	ascii    bool
	buf      []byte
}

// NewReplacer builds a Replacer for oldPath -> newPath. Variants
// that coincide (a path without separators has a single
// spelling) are collapsed so no text is replaced twice.
func NewReplacer(oldPath, newPath string) *Replacer {
	r := &Replacer{ascii: true}
	if oldPath == "" {
		return r
	}
	olds, news := pathForms(oldPath), pathForms(newPath)
	for i := range olds {
		dup := false
		for _, v := range r.variants {
			if strings.EqualFold(v.old, olds[i]) {
				dup = true
				break
			}
		}
		if dup {
			continue
		}
		v := variant{old: olds[i], new: news[i]}
		if isASCII(olds[i]) {
			v.needle = []byte(strings.ToLower(olds[i]))
		} else {
			r.ascii = false
		}
		r.variants = append(r.variants, v)
	}
	return r
}

// ReplaceAll replaces every spelling of oldPath in s with the
// corresponding spelling of newPath. The matched text is found
// case-insensitively; newPath is written exactly as given.
func ReplaceAll(s, oldPath, newPath string) string {
	return NewReplacer(oldPath, newPath).Replace(s)
}

// Contains reports whether s holds any spelling of the old path.
func (r *Replacer) Contains(s string) bool {
	if len(r.variants) == 0 {
		return false
	}
	if r.ascii {
		r.buf = appendLowerASCII(r.buf[:0], s)
		for _, v := range r.variants {
			if bytes.Contains(r.buf, v.needle) {
				return true
			}
		}
		return false
	}
	for i := 0; i < len(s); {
		if n, _ := r.matchAt(s, i); n > 0 {
			return true
		}
		_, size := utf8.DecodeRuneInString(s[i:])
		i += size
	}
	return false
}

// Replace scans s once from left to right. At each position the
// longest matching variant is spliced out and scanning resumes
// after it, so replacement text is never matched again.
func (r *Replacer) Replace(s string) string {
	if !r.Contains(s) {
		return s
	}
	var b strings.Builder
	last := 0
	for i := 0; i < len(s); {
		if n, v := r.matchAt(s, i); n > 0 {
			b.WriteString(s[last:i])
			b.WriteString(v.new)
			i += n
			last = i
			continue
		}
		_, size := utf8.DecodeRuneInString(s[i:])
		i += size
	}
	if last == 0 {
		return s
	}
	b.WriteString(s[last:])
	return b.String()
}

// matchAt returns the byte length of the longest variant matching
// at s[i:], or 0.
func (r *Replacer) matchAt(s string, i int) (int, *variant) {
	best, bestIdx := 0, -1
	for idx := range r.variants {
		if n, ok := hasPrefixFold(s[i:], r.variants[idx].old); ok && n > best {
			best, bestIdx = n, idx
		}
	}
	if bestIdx < 0 {
		return 0, nil
	}
	return best, &r.variants[bestIdx]
}

// hasPrefixFold reports whether s starts with prefix under simple
// Unicode case folding, and how many bytes of s matched.
func hasPrefixFold(s, prefix string) (int, bool) {
	n := 0
	for _, pr := range prefix {
		if n >= len(s) {
			return 0, false
		}
		sr, size := utf8.DecodeRuneInString(s[n:])
		if !equalFoldRune(sr, pr) {
			return 0, false
		}
		n += size
	}
	return n, n > 0
}

func equalFoldRune(a, b rune) bool {
	if a == b {
		return true
	}
	if a < utf8.RuneSelf && b < utf8.RuneSelf {
		return lowerASCII(byte(a)) == lowerASCII(byte(b))
	}
	return unicode.ToLower(a) == unicode.ToLower(b) ||
		unicode.ToUpper(a) == unicode.ToUpper(b)
}

func lowerASCII(c byte) byte {
	if c >= 'A' && c <= 'Z' {
		return c + ('a' - 'A')
	}
	return c
}

func appendLowerASCII(dst []byte, s string) []byte {
	for i := 0; i < len(s); i++ {
		dst = append(dst, lowerASCII(s[i]))
	}
	return dst
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= utf8.RuneSelf {
			return false
		}
	}
	return true
}
