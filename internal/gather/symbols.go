package gather

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// LatestSymbolFile returns the newest dir/<prefix>_YYYY-MM-DD.csv, falling
// back to dir/<prefix>.csv when no dated file exists.
func LatestSymbolFile(dir, prefix string) string {
	matches, err := filepath.Glob(filepath.Join(dir, prefix+"_????-??-??.csv"))
	if err == nil && len(matches) > 0 {
		sort.Strings(matches)
		return matches[len(matches)-1]
	}
	return filepath.Join(dir, prefix+".csv")
}

// LoadSymbolFile reads a CSV universe file. Symbols come from the column
// headed "symbol" (any case), or the first column when no header matches.
// Symbols are upper-cased and de-duplicated in file order.
func LoadSymbolFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening symbol file: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1
	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	col, hasHeader := 0, false
	for i, name := range header {
		if strings.EqualFold(strings.TrimSpace(name), "symbol") {
			col, hasHeader = i, true
			break
		}
	}

	seen := make(map[string]struct{})
	var symbols []string
	add := func(record []string) {
		if len(record) <= col {
			return
		}
		sym := strings.ToUpper(strings.TrimSpace(record[col]))
		if _, dup := seen[sym]; sym == "" || dup {
			return
		}
		seen[sym] = struct{}{}
		symbols = append(symbols, sym)
	}
	if !hasHeader {
		add(header)
	}
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", path, err)
		}
		add(record)
	}
	return symbols, nil
}
