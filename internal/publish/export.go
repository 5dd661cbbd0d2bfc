package publish

import (
	"fmt"
	"strings"

	"fwblock/internal/storage"
)

// WriteExport atomically replaces path with lines, one per line.
func WriteExport(path string, lines []string) error {
	var b strings.Builder
	for _, line := range lines {
		b.WriteString(line)
		b.WriteByte('\n')
	}

	if err := storage.WriteAtomic(path, strings.NewReader(b.String()), 0o644); err != nil {
		return fmt.Errorf("write export %s: %w", path, err)
	}
	return nil
}
