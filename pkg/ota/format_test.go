package ota

import (
	"archive/zip"
	"os"
	"path/filepath"
	"testing"
)

// writeZip builds a zip archive containing the named entries.
func writeZip(t *testing.T, entries map[string][]byte) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "ota.zip")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("failed to create archive: %v", err)
	}
	defer f.Close()

	w := zip.NewWriter(f)
	for name, data := range entries {
		entry, err := w.Create(name)
		if err != nil {
			t.Fatalf("failed to add entry %s: %v", name, err)
		}
		if _, err := entry.Write(data); err != nil {
			t.Fatalf("failed to write entry %s: %v", name, err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("failed to finish archive: %v", err)
	}
	return path
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name    string
		entries map[string][]byte
		want    Format
	}{
		{
			name:    "boot image entry",
			entries: map[string][]byte{"boot.img": []byte("BOOT")},
			want:    FormatBlock,
		},
		{
			name:    "payload entry",
			entries: map[string][]byte{"payload.bin": []byte("PAYLOAD")},
			want:    FormatPayload,
		},
		{
			name: "both entries present, boot.img wins",
			entries: map[string][]byte{
				"boot.img":    []byte("BOOT"),
				"payload.bin": []byte("PAYLOAD"),
			},
			want: FormatBlock,
		},
		{
			name:    "neither entry",
			entries: map[string][]byte{"system/build.prop": []byte("x")},
			want:    FormatFile,
		},
		{
			name:    "nested boot.img does not count",
			entries: map[string][]byte{"images/boot.img": []byte("BOOT")},
			want:    FormatFile,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Classify(writeZip(t, tt.entries))
			if err != nil {
				t.Fatalf("classify failed: %v", err)
			}
			if got != tt.want {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestClassify_NotAnArchive(t *testing.T) {
	path := filepath.Join(t.TempDir(), "garbage.zip")
	if err := os.WriteFile(path, []byte("not a zip"), 0644); err != nil {
		t.Fatalf("failed to write fixture: %v", err)
	}
	if _, err := Classify(path); err == nil {
		t.Error("expected error for a non-zip file")
	}
}
