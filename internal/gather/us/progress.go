package us

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

const (
	emptyFile     = ".fetch-empty"
	completedFile = ".fetch-completed"
)

// fetchProgress remembers, for the current trading day, which symbols came
// back without any bars and whether a full run finished. It lets a re-run
// on the same day skip symbols the API has nothing for.
type fetchProgress struct {
	mu     sync.Mutex
	dir    string
	empty  map[string]struct{}
	file   *os.File
	writer *bufio.Writer
}

func newFetchProgress(dir string) (*fetchProgress, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating state dir: %w", err)
	}
	p := &fetchProgress{dir: dir, empty: make(map[string]struct{})}

	if data, err := os.ReadFile(p.path(emptyFile)); err == nil {
		for _, line := range strings.Split(string(data), "\n") {
			if sym := strings.TrimSpace(line); sym != "" {
				p.empty[sym] = struct{}{}
			}
		}
	}
	if err := p.open(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *fetchProgress) path(name string) string { return filepath.Join(p.dir, name) }

func (p *fetchProgress) open() error {
	f, err := os.OpenFile(p.path(emptyFile), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("opening %s: %w", emptyFile, err)
	}
	p.file = f
	p.writer = bufio.NewWriter(f)
	return nil
}

// IsEmpty reports whether symbol already came back empty today.
func (p *fetchProgress) IsEmpty(symbol string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.empty[symbol]
	return ok
}

// MarkEmpty records symbols that returned no bars.
func (p *fetchProgress) MarkEmpty(symbols []string) error {
	if len(symbols) == 0 {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, sym := range symbols {
		if _, ok := p.empty[sym]; ok {
			continue
		}
		p.empty[sym] = struct{}{}
		if _, err := p.writer.WriteString(sym + "\n"); err != nil {
			return fmt.Errorf("writing %s: %w", emptyFile, err)
		}
	}
	return p.writer.Flush()
}

// LastCompleted returns the end date of the last finished run, or "".
func (p *fetchProgress) LastCompleted() string {
	data, err := os.ReadFile(p.path(completedFile))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

// MarkCompleted records that a run through endDate finished without errors.
func (p *fetchProgress) MarkCompleted(endDate string) error {
	return os.WriteFile(p.path(completedFile), []byte(endDate), 0o644)
}

// Reset forgets every empty symbol.
func (p *fetchProgress) Reset() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.file != nil {
		p.file.Close()
	}
	p.empty = make(map[string]struct{})
	if err := os.Remove(p.path(emptyFile)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing %s: %w", emptyFile, err)
	}
	return p.open()
}

// Close flushes and closes the empty-symbol file.
func (p *fetchProgress) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.writer != nil {
		p.writer.Flush()
	}
	if p.file != nil {
		return p.file.Close()
	}
	return nil
}
