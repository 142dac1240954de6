package utils

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
)

func SafeJoin(base string, elements ...string) string {
	p := filepath.Join(append([]string{base}, elements...)...)
	return filepath.Clean(p)
}

// RemoteJoin joins SFTP path elements. Remote paths always use forward
// slashes regardless of the local OS.
func RemoteJoin(base string, elements ...string) string {
	parts := make([]string, 0, len(elements)+1)
	parts = append(parts, ToRemote(base))
	for _, e := range elements {
		parts = append(parts, ToRemote(e))
	}
	return path.Join(parts...)
}

// ToRemote converts local separators to the forward slashes SFTP expects.
func ToRemote(p string) string {
	return strings.ReplaceAll(p, "\\", "/")
}

func EnsureDir(path string) error {
	if err := os.MkdirAll(path, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", path, err)
	}
	return nil
}

func PathExists(path string) bool {
	_, err := os.Stat(path)
	return !os.IsNotExist(err)
}

func NormalizePath(path string) string {
	return filepath.Clean(strings.ReplaceAll(path, "\\", string(filepath.Separator)))
}

func GetRelativePath(basePath, targetPath string) (string, error) {
	rel, err := filepath.Rel(basePath, targetPath)
	if err != nil {
		return "", fmt.Errorf("failed to get relative path: %w", err)
	}
	return rel, nil
}

// SplitList turns a comma separated flag value into trimmed, non-empty items.
func SplitList(value string) []string {
	var items []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			items = append(items, part)
		}
	}
	return items
}

// ValidateWritableDir creates dir if needed and proves a file can be written
// into it.
func ValidateWritableDir(dir string) error {
	if err := EnsureDir(dir); err != nil {
		return err
	}

	testFile := filepath.Join(dir, ".write_test")
	file, err := os.Create(testFile)
	if err != nil {
		return fmt.Errorf("path %s is not writable: %w", dir, err)
	}
	file.Close()
	os.Remove(testFile)

	return nil
}
