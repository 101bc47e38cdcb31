package storage

import (
	"bytes"
	"testing"
)

func newTestFiles(t *testing.T) *Files {
	t.Helper()
	f, err := NewFiles(t.TempDir())
	if err != nil {
		t.Fatalf("NewFiles: %v", err)
	}
	return f
}

func TestSaveAndRead(t *testing.T) {
	f := newTestFiles(t)

	data := []byte("fake image bytes")
	ref, err := f.Save(data)
	if err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := f.Read(ref)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Error("round-trip mismatch")
	}
}

func TestReadRejectsPathLikeRefs(t *testing.T) {
	f := newTestFiles(t)

	for _, ref := range []string{"", "../secret", "a/b.img", `a\b.img`, "..img/../x"} {
		if _, err := f.Read(ref); err == nil {
			t.Errorf("Read(%q) should fail", ref)
		}
	}
}

func TestRemoveIdempotent(t *testing.T) {
	f := newTestFiles(t)

	ref, err := f.Save([]byte("x"))
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := f.Remove(ref); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if err := f.Remove(ref); err != nil {
		t.Errorf("second Remove should succeed, got %v", err)
	}
	if _, err := f.Read(ref); err == nil {
		t.Error("Read after Remove should fail")
	}
}
