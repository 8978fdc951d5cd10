package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode"
)

// expand fills the placeholders of pattern.
func expand(pattern, kind, code, timestamp string) string {
	r := strings.NewReplacer(
		"{tipo}", kind,
		"{codigo}", sanitize(code, 0),
		"{timestamp}", timestamp,
	)
	return r.Replace(pattern)
}

// sanitize keeps letters, digits, '-' and '_' and turns spaces into '_'.
// Anything else is dropped. limit > 0 truncates the result.
func sanitize(s string, limit int) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r == ' ':
			b.WriteByte('_')
		case r == '-' || r == '_' || r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)):
			b.WriteRune(r)
		}
	}
	out := b.String()
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// resolve picks the suffix shared by every file of one capture: "" when all
// base names are free (or overwrite is on), else the first free "_N".
func resolve(dir string, bases map[string]string, overwrite bool) (string, error) {
	if overwrite {
		return "", nil
	}
	for n := 0; n <= maxCollisions; n++ {
		suffix := ""
		if n > 0 {
			suffix = fmt.Sprintf("_%d", n)
		}
		if allFree(dir, bases, suffix) {
			return suffix, nil
		}
	}
	return "", fmt.Errorf("%w in %s", ErrTooManyCollisions, dir)
}

// bases maps a base name to its extension.
func allFree(dir string, bases map[string]string, suffix string) bool {
	for base, ext := range bases {
		_, err := os.Stat(filepath.Join(dir, base+suffix+"."+ext))
		if err == nil || !os.IsNotExist(err) {
			return false
		}
	}
	return true
}
