package storage

import (
	"fmt"
	"path"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"pdf-chat/internal/models"
)

var strippedExtensions = []string{".pdf", ".json"}

// NormalizeKey turns an uploaded filename (or a key a client echoes back,
// with or without extension) into the document key used for storage:
// ASCII only, whitespace folded to underscores, no path components.
// A returned key normalizes to itself.
func NormalizeKey(name string) (string, error) {
	name = path.Base(strings.ReplaceAll(strings.TrimSpace(name), `\`, "/"))

	name = stripExtensions(name)

	fold := transform.Chain(norm.NFKD, runes.Remove(runes.Predicate(func(r rune) bool {
		return r > unicode.MaxASCII
	})))
	ascii, _, err := transform.String(fold, name)
	if err != nil {
		return "", fmt.Errorf("%w: document name %q: %v", models.ErrInvalidInput, name, err)
	}

	var b strings.Builder
	for _, r := range strings.Join(strings.Fields(ascii), "_") {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '.', r == '-':
			b.WriteRune(r)
		}
	}

	key := strings.TrimLeft(stripExtensions(b.String()), "._")
	if key == "" {
		return "", fmt.Errorf("%w: document name %q", models.ErrInvalidInput, name)
	}
	return key, nil
}

// stripExtensions removes every trailing .pdf or .json, so "data.json.pdf"
// and "data" name the same document.
func stripExtensions(name string) string {
	for {
		lower := strings.ToLower(name)
		stripped := false
		for _, ext := range strippedExtensions {
			if strings.HasSuffix(lower, ext) {
				name = name[:len(name)-len(ext)]
				stripped = true
				break
			}
		}
		if !stripped {
			return name
		}
	}
}
