package storage

import (
	"fmt"
	"path"
	"regexp"
	"strings"
)

var pathComponentPattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]{0,127}$`)

// BuildExportPath returns exports/<chat>/<turn>.<ext>.
func BuildExportPath(chatID, turnID, ext string) (string, error) {
	if err := validatePathComponent(chatID, "chat id"); err != nil {
		return "", err
	}
	if err := validatePathComponent(turnID, "turn id"); err != nil {
		return "", err
	}
	ext = strings.TrimPrefix(strings.TrimSpace(ext), ".")
	if err := validatePathComponent(ext, "extension"); err != nil {
		return "", err
	}
	return path.Join("exports", chatID, turnID+"."+ext), nil
}

// ExportPrefix is the key prefix holding every export of a chat.
func ExportPrefix(chatID string) (string, error) {
	if err := validatePathComponent(chatID, "chat id"); err != nil {
		return "", err
	}
	return path.Join("exports", chatID) + "/", nil
}

func validatePathComponent(value, field string) error {
	if !pathComponentPattern.MatchString(value) {
		return fmt.Errorf("invalid %s: %q", field, value)
	}
	return nil
}
