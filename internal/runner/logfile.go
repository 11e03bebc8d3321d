package runner

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// LogFile returns a timestamped log path under dir with the given prefix and
// refreshes a "<prefix>latest.txt" symlink pointing at it. Symlink failures
// are ignored; the log itself is what matters.
func LogFile(dir, prefix string) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("creating log directory: %w", err)
	}
	ts := time.Now().Format("20060102_150405")
	path := filepath.Join(dir, fmt.Sprintf("%s%s.txt", prefix, ts))

	latest := filepath.Join(dir, prefix+"latest.txt")
	os.Remove(latest)
	os.Symlink(filepath.Base(path), latest)

	return path, nil
}
