package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/onewithdev/peterbot/internal/blocklist"
)

// FileKind names one of the three dashboard-editable config files
// (spec.md §9 Design Notes: soul.md, memory.md, blocklist.json).
type FileKind string

const (
	FileSoul      FileKind = "soul"
	FileMemory    FileKind = "memory"
	FileBlocklist FileKind = "blocklist"
)

// ConfigStore reads and atomically writes the three config files. It never
// caches content: callers read on demand each time a system prompt is
// assembled, matching spec.md's "the engine does not cache these" note.
type ConfigStore struct {
	dir string
}

func NewConfigStore(dir string) *ConfigStore {
	return &ConfigStore{dir: dir}
}

func (c *ConfigStore) path(kind FileKind) string {
	switch kind {
	case FileSoul:
		return filepath.Join(c.dir, "soul.md")
	case FileMemory:
		return filepath.Join(c.dir, "memory.md")
	case FileBlocklist:
		return filepath.Join(c.dir, "blocklist.json")
	default:
		return filepath.Join(c.dir, string(kind))
	}
}

// FileInfo describes a config file's content alongside dashboard-facing
// metadata (spec.md §9: read(kind) → (content, lastModified, size)).
type FileInfo struct {
	Content      string
	LastModified time.Time
	Size         int64
}

func (c *ConfigStore) Read(kind FileKind) (FileInfo, error) {
	p := c.path(kind)
	data, err := os.ReadFile(p)
	if os.IsNotExist(err) {
		return FileInfo{}, nil
	}
	if err != nil {
		return FileInfo{}, fmt.Errorf("config: read %s: %w", kind, err)
	}
	st, err := os.Stat(p)
	if err != nil {
		return FileInfo{}, fmt.Errorf("config: stat %s: %w", kind, err)
	}
	return FileInfo{Content: string(data), LastModified: st.ModTime(), Size: st.Size()}, nil
}

// Write atomically replaces a config file's content: write to a temp file
// in the same directory, fsync, then rename over the target. blocklist.json
// is additionally validated before the rename — invalid JSON or a missing
// strict/warn key is rejected without touching the file on disk.
func (c *ConfigStore) Write(kind FileKind, content string) error {
	if kind == FileBlocklist {
		if err := validateBlocklistJSON(content); err != nil {
			return fmt.Errorf("config: invalid blocklist: %w", err)
		}
	}

	p := c.path(kind)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return fmt.Errorf("config: mkdir: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(p), ".tmp-"+string(kind)+"-*")
	if err != nil {
		return fmt.Errorf("config: create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) // no-op once the rename below succeeds

	if _, err := tmp.WriteString(content); err != nil {
		tmp.Close()
		return fmt.Errorf("config: write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("config: sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("config: close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, p); err != nil {
		return fmt.Errorf("config: rename into place: %w", err)
	}
	return nil
}

// validateBlocklistJSON checks the strict/warn shape blocklist.Rules
// expects before a write is allowed to land (spec.md §6: "reject invalid
// JSON or missing strict/warn keys").
func validateBlocklistJSON(content string) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal([]byte(content), &raw); err != nil {
		return fmt.Errorf("malformed json: %w", err)
	}
	if _, ok := raw["strict"]; !ok {
		return fmt.Errorf("missing required key: strict")
	}
	if _, ok := raw["warn"]; !ok {
		return fmt.Errorf("missing required key: warn")
	}
	var rules blocklist.Rules
	if err := json.Unmarshal([]byte(content), &rules); err != nil {
		return fmt.Errorf("malformed rule list: %w", err)
	}
	return blocklist.ValidateRules(rules)
}
