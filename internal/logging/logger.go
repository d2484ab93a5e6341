// Package logging provides structured logging with automatic secret redaction.
package logging

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Known secret field names that must be redacted in all log output.
var secretFieldNames = []string{
	"password",
	"passwd",
	"secret",
	"token",
	"api_key",
	"apikey",
	"private_key",
	"privatekey",
	"credentials",
	"cookie",
	"session_id",
	"authorization",
}

// stringField matches a JSON "key":"value" pair as zerolog emits it.
var stringField = regexp.MustCompile(`"([^"\\]+)":"((?:[^"\\]|\\.)*)"`)

// RedactingWriter wraps an io.Writer and replaces the values of secret fields
// in each JSON log line before it reaches the inner writer.
type RedactingWriter struct {
	inner io.Writer
}

// NewRedactingWriter creates a writer that redacts secret field values from log output.
func NewRedactingWriter(inner io.Writer) *RedactingWriter {
	return &RedactingWriter{inner: inner}
}

func (rw *RedactingWriter) Write(p []byte) (int, error) {
	out := stringField.ReplaceAllFunc(p, func(m []byte) []byte {
		parts := stringField.FindSubmatch(m)
		if !IsSecretField(string(parts[1])) || len(parts[2]) == 0 {
			return m
		}
		return []byte(`"` + string(parts[1]) + `":"` + RedactValue(string(parts[2])) + `"`)
	})
	if _, err := rw.inner.Write(out); err != nil {
		return 0, err
	}
	return len(p), nil
}

// NewLogger creates a console logger on stderr for interactive use.
func NewLogger(level string, instanceUUID string) zerolog.Logger {
	writer := zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: time.RFC3339,
	}

	logger := zerolog.New(NewRedactingWriter(writer)).
		Level(parseLevel(level)).
		With().
		Timestamp().
		Str("component", "wlanmigrate").
		Logger()

	if instanceUUID != "" {
		logger = logger.With().Str("instance_uuid", instanceUUID).Logger()
	}

	return logger
}

// NewJSONLogger creates a JSON-formatted logger for file output or machine consumption.
func NewJSONLogger(w io.Writer, level string) zerolog.Logger {
	return zerolog.New(NewRedactingWriter(w)).
		Level(parseLevel(level)).
		With().
		Timestamp().
		Str("component", "wlanmigrate").
		Logger()
}

func parseLevel(level string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		return zerolog.InfoLevel
	}
	return lvl
}

// IsSecretField checks if a field name is a known secret field that should be redacted.
func IsSecretField(fieldName string) bool {
	lower := strings.ToLower(fieldName)
	for _, secret := range secretFieldNames {
		if strings.Contains(lower, secret) {
			return true
		}
	}
	return false
}

// RedactValue replaces a secret value with a safe placeholder containing a hash prefix.
func RedactValue(value string) string {
	if value == "" {
		return ""
	}
	h := sha256.Sum256([]byte(value))
	return "[REDACTED:sha256:" + hex.EncodeToString(h[:])[:8] + "]"
}
