package registry

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"podmirror/internal/fileutil"
	"podmirror/internal/logging"
)

// The mapping file holds one `name|id|title` line per artifact. Titles may
// contain '|', so only the first two separators are significant.
const mappingSeparator = "|"

func (r *Registry) loadMapping() error {
	if r.mappingPath == "" {
		return nil
	}
	data, err := os.ReadFile(r.mappingPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read title mapping: %w", err)
	}
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimRight(scanner.Text(), "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		parts := strings.SplitN(line, mappingSeparator, 3)
		if len(parts) < 2 || strings.TrimSpace(parts[0]) == "" {
			r.logger.Warn("skipping malformed title mapping line",
				logging.String("path", r.mappingPath),
				logging.Int("line", lineNo),
				logging.String(logging.FieldEventType, "mapping_line_malformed"),
			)
			continue
		}
		record := Record{ItemID: parts[1]}
		if len(parts) == 3 {
			record.Title = parts[2]
		}
		r.mapping[parts[0]] = record
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("parse title mapping: %w", err)
	}
	return nil
}

func (r *Registry) saveMapping() error {
	if r.mappingPath == "" {
		return nil
	}
	names := make([]string, 0, len(r.mapping))
	for name := range r.mapping {
		names = append(names, name)
	}
	sort.Strings(names)

	var buf bytes.Buffer
	for _, name := range names {
		record := r.mapping[name]
		buf.WriteString(name)
		buf.WriteString(mappingSeparator)
		buf.WriteString(record.ItemID)
		buf.WriteString(mappingSeparator)
		buf.WriteString(sanitizeTitle(record.Title))
		buf.WriteByte('\n')
	}
	if err := os.MkdirAll(filepath.Dir(r.mappingPath), 0o755); err != nil {
		return fmt.Errorf("create mapping directory: %w", err)
	}
	if err := fileutil.WriteFileAtomic(r.mappingPath, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("save title mapping: %w", err)
	}
	return nil
}

func sanitizeTitle(title string) string {
	return strings.NewReplacer("\r", " ", "\n", " ").Replace(title)
}
