package nvram

import (
	"path/filepath"
	"testing"
)

func openTest(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	s, err := Open(filepath.Join(dir, "test.nvram"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestWriteReadRoundTrip(t *testing.T) {
	s := openTest(t)
	if err := s.Write("k1", []byte("hello")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	v, err := s.Read("k1")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(v) != "hello" {
		t.Fatalf("got %q, want hello", v)
	}
}

func TestReadMissingKeyIsInvalid(t *testing.T) {
	s := openTest(t)
	if _, err := s.Read("missing"); err == nil {
		t.Fatalf("expected error reading missing key")
	}
}

func TestExistDelete(t *testing.T) {
	s := openTest(t)
	s.Write("k", []byte("v"))
	if !s.Exist("k") {
		t.Fatalf("expected key to exist")
	}
	s.Delete("k")
	if s.Exist("k") {
		t.Fatalf("expected key to be gone after delete")
	}
}

func TestWriteScriptAtomicTriple(t *testing.T) {
	s := openTest(t)
	if err := s.WriteScript([]byte("print('hi')"), "app.js"); err != nil {
		t.Fatalf("WriteScript: %v", err)
	}
	if !s.Exist(KeyScript) || !s.Exist(KeyScriptSize) || !s.Exist(KeyScriptName) {
		t.Fatalf("expected all three script keys to exist")
	}
	n, err := s.Peek(KeyScriptSize)
	if err != nil {
		t.Fatalf("Peek: %v", err)
	}
	// KeyScriptSize stores the decimal length as bytes; Peek reports that
	// blob's own byte length, not the parsed integer it encodes.
	if n == 0 {
		t.Fatalf("expected non-zero script_size blob length")
	}
}

func TestDeleteScriptRemovesAllThree(t *testing.T) {
	s := openTest(t)
	s.WriteScript([]byte("x"), "a.js")
	if err := s.DeleteScript(); err != nil {
		t.Fatalf("DeleteScript: %v", err)
	}
	if s.Exist(KeyScript) || s.Exist(KeyScriptSize) || s.Exist(KeyScriptName) {
		t.Fatalf("expected script keys to be gone")
	}
}
