// Package language maps file paths to editor language tags using chroma's
// lexer registry, with a small fallback table for extensions chroma does not
// resolve by filename alone.
package language

import (
	"path/filepath"
	"strings"

	"github.com/alecthomas/chroma/v2/lexers"
)

// fallback covers extensions worth naming even when no lexer matches.
var fallback = map[string]string{
	".env":  "dotenv",
	".lock": "plaintext",
	".log":  "plaintext",
	".txt":  "plaintext",
}

// highValue lists extensions whose cache entries deserve a longer TTL:
// source, markup, data-interchange and docs files that users reopen often.
var highValue = map[string]bool{
	".py":   true,
	".js":   true,
	".jsx":  true,
	".ts":   true,
	".tsx":  true,
	".go":   true,
	".rs":   true,
	".java": true,
	".rb":   true,
	".c":    true,
	".cpp":  true,
	".h":    true,
	".sh":   true,
	".html": true,
	".css":  true,
	".json": true,
	".yaml": true,
	".yml":  true,
	".toml": true,
	".md":   true,
	".txt":  true,
}

// Detect returns a lowercase language tag for the given path, or "plaintext"
// when nothing matches.
func Detect(path string) string {
	base := filepath.Base(path)
	lexer := lexers.Match(base)
	if lexer == nil {
		ext := strings.TrimPrefix(filepath.Ext(base), ".")
		if ext != "" {
			lexer = lexers.Get(ext)
		}
	}
	if lexer != nil {
		return strings.ToLower(lexer.Config().Name)
	}
	if tag, ok := fallback[strings.ToLower(filepath.Ext(base))]; ok {
		return tag
	}
	return "plaintext"
}

// IsHighValue reports whether the path's extension marks it as a frequently
// reopened source/config/doc file.
func IsHighValue(path string) bool {
	return highValue[strings.ToLower(filepath.Ext(path))]
}
