package artifacts

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestFileStore_Put(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileStore(filepath.Join(dir, "shots"))
	if err != nil {
		t.Fatal(err)
	}
	data := []byte("png-bytes")
	ref, err := s.Put(context.Background(), Object{RunID: "run-1", StepID: "step-2", Data: data})
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	want := filepath.Join(dir, "shots", "run-1", "step-2-screenshot.png")
	if ref.URI != want {
		t.Errorf("URI = %q, want %q", ref.URI, want)
	}
	if ref.Size != int64(len(data)) || ref.SHA256 != Digest(data) {
		t.Errorf("ref = %+v", ref)
	}
	got, err := os.ReadFile(want)
	if err != nil || !bytes.Equal(got, data) {
		t.Errorf("file = %q (err %v)", got, err)
	}
}

func TestFileStore_RejectsTraversal(t *testing.T) {
	s, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	for _, obj := range []Object{
		{RunID: "", Data: []byte("x")},
		{RunID: "..", Data: []byte("x")},
		{RunID: "r", StepID: "a/b", Data: []byte("x")},
	} {
		if _, err := s.Put(context.Background(), obj); err == nil {
			t.Errorf("Put(%+v) succeeded", obj)
		}
	}
}

func TestMemory_Put(t *testing.T) {
	m := NewMemory()
	ref, err := m.Put(context.Background(), Object{RunID: "r", StepID: "s", Name: "final.png", Data: []byte{1, 2}})
	if err != nil {
		t.Fatal(err)
	}
	if ref.URI != "mem://r/s-final.png" {
		t.Errorf("URI = %q", ref.URI)
	}
	if b, ok := m.Get("r/s-final.png"); !ok || len(b) != 2 {
		t.Errorf("Get = %v, %v", b, ok)
	}
	if m.Len() != 1 {
		t.Errorf("Len = %d", m.Len())
	}
}

func TestMinIOConfig_Validate(t *testing.T) {
	valid := MinIOConfig{Endpoint: "localhost:9000", AccessKey: "a", SecretKey: "topsecret", Bucket: "shots"}
	if err := valid.Validate(); err != nil {
		t.Fatalf("Validate() err=%v", err)
	}

	scheme := valid
	scheme.Endpoint = "http://localhost:9000"
	if err := scheme.Validate(); err == nil {
		t.Error("expected error for scheme in endpoint")
	}

	noBucket := valid
	noBucket.Bucket = ""
	err := noBucket.Validate()
	if err == nil {
		t.Fatal("expected error for missing bucket")
	}
	if strings.Contains(err.Error(), "topsecret") {
		t.Errorf("secret leaked: %v", err)
	}
}
