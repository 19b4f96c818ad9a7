package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestConfigStore_WriteThenRead(t *testing.T) {
	dir := t.TempDir()
	cs := NewConfigStore(dir)

	if err := cs.Write(FileSoul, "You are peterbot."); err != nil {
		t.Fatalf("Write: %v", err)
	}
	info, err := cs.Read(FileSoul)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if info.Content != "You are peterbot." {
		t.Fatalf("got content %q", info.Content)
	}
	if info.Size != int64(len("You are peterbot.")) {
		t.Fatalf("got size %d", info.Size)
	}
}

func TestConfigStore_ReadMissingFileReturnsEmpty(t *testing.T) {
	cs := NewConfigStore(t.TempDir())
	info, err := cs.Read(FileMemory)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if info.Content != "" {
		t.Fatalf("expected empty content for missing file, got %q", info.Content)
	}
}

func TestConfigStore_WriteLeavesNoTempFileBehind(t *testing.T) {
	dir := t.TempDir()
	cs := NewConfigStore(dir)

	if err := cs.Write(FileMemory, "remember this"); err != nil {
		t.Fatalf("Write: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 1 || entries[0].Name() != "memory.md" {
		t.Fatalf("expected only memory.md in dir, got %v", entries)
	}
}

func TestConfigStore_WriteBlocklistRejectsMissingKeys(t *testing.T) {
	cs := NewConfigStore(t.TempDir())
	err := cs.Write(FileBlocklist, `{"strict": []}`)
	if err == nil {
		t.Fatal("expected rejection of blocklist missing warn key")
	}
}

func TestConfigStore_WriteBlocklistRejectsMalformedExpr(t *testing.T) {
	cs := NewConfigStore(t.TempDir())
	err := cs.Write(FileBlocklist, `{"strict": [{"name": "x", "expr": "not valid cel("}], "warn": []}`)
	if err == nil {
		t.Fatal("expected rejection of malformed cel expression")
	}
}

func TestConfigStore_WriteBlocklistAcceptsValidRules(t *testing.T) {
	dir := t.TempDir()
	cs := NewConfigStore(dir)
	content := `{"strict": [{"name": "x", "expr": "message.contains('y')"}], "warn": []}`
	if err := cs.Write(FileBlocklist, content); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "blocklist.json")); err != nil {
		t.Fatalf("expected blocklist.json to exist: %v", err)
	}
}
