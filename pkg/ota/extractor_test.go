package ota

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/tim-hub/reinstall-magisk-on-lineageos/pkg/errors"
	"github.com/tim-hub/reinstall-magisk-on-lineageos/pkg/shell"
)

// fixtureFetcher hands out a pre-existing path without any network access.
type fixtureFetcher struct {
	binary string
}

func (f *fixtureFetcher) Fetch(ctx context.Context) (string, error) {
	return f.binary, nil
}

// dumperRunner fakes the payload dumper: it records its invocation and
// writes a boot.img into the -output directory.
type dumperRunner struct {
	calls [][]string
	boot  []byte
}

func (r *dumperRunner) Run(ctx context.Context, name string, args ...string) (shell.Result, error) {
	r.calls = append(r.calls, append([]string{name}, args...))

	for i, a := range args {
		if a == "-output" && i+1 < len(args) {
			if err := os.WriteFile(filepath.Join(args[i+1], BootImageName), r.boot, 0644); err != nil {
				return shell.Result{}, err
			}
		}
	}
	return shell.Result{}, nil
}

func TestExtractBlock(t *testing.T) {
	archive := writeZip(t, map[string][]byte{
		"boot.img":          []byte("RAW BOOT IMAGE"),
		"system/build.prop": []byte("x"),
	})

	workDir := t.TempDir()
	ex := NewExtractor(&dumperRunner{}, &fixtureFetcher{}, workDir)

	path, err := ex.ExtractBootImage(context.Background(), archive, FormatBlock)
	if err != nil {
		t.Fatalf("extraction failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil || string(data) != "RAW BOOT IMAGE" {
		t.Errorf("extracted image wrong: %q, %v", data, err)
	}
	if path != filepath.Join(workDir, BootImageName) {
		t.Errorf("image not in the fixed staging slot: %s", path)
	}
}

func TestExtractPayload_RestrictedToBootPartition(t *testing.T) {
	archive := writeZip(t, map[string][]byte{
		"payload.bin": []byte("PAYLOAD BLOB"),
	})

	workDir := t.TempDir()
	runner := &dumperRunner{boot: []byte("DUMPED BOOT")}
	fetcher := &fixtureFetcher{binary: "/scratch/payload-dumper-go"}
	ex := NewExtractor(runner, fetcher, workDir)

	path, err := ex.ExtractBootImage(context.Background(), archive, FormatPayload)
	if err != nil {
		t.Fatalf("extraction failed: %v", err)
	}

	if len(runner.calls) != 1 {
		t.Fatalf("expected one dumper invocation, got %d", len(runner.calls))
	}
	call := strings.Join(runner.calls[0], " ")
	if !strings.Contains(call, "-partitions boot") {
		t.Errorf("dumper not restricted to boot partition: %s", call)
	}
	if !strings.HasPrefix(call, fetcher.binary) {
		t.Errorf("dumper binary from fetcher not used: %s", call)
	}

	// payload.bin must have been staged for the dumper
	if _, err := os.Stat(filepath.Join(workDir, payloadName)); err != nil {
		t.Errorf("payload.bin not staged: %v", err)
	}

	data, _ := os.ReadFile(path)
	if string(data) != "DUMPED BOOT" {
		t.Errorf("unexpected boot image content: %q", data)
	}
}

func TestExtractPayload_DumperFailureSurfaces(t *testing.T) {
	archive := writeZip(t, map[string][]byte{"payload.bin": []byte("PAYLOAD")})

	runner := &failingRunner{}
	ex := NewExtractor(runner, &fixtureFetcher{binary: "dumper"}, t.TempDir())

	if _, err := ex.ExtractBootImage(context.Background(), archive, FormatPayload); err == nil {
		t.Fatal("expected error when the dumper exits non-zero")
	}
}

type failingRunner struct{}

func (failingRunner) Run(ctx context.Context, name string, args ...string) (shell.Result, error) {
	return shell.Result{ExitCode: 1, Stderr: "corrupt payload"}, nil
}

func TestExtractFile_UnsupportedFormat(t *testing.T) {
	archive := writeZip(t, map[string][]byte{"system/build.prop": []byte("x")})

	workDir := t.TempDir()
	ex := NewExtractor(&dumperRunner{}, &fixtureFetcher{}, workDir)

	_, err := ex.ExtractBootImage(context.Background(), archive, FormatFile)
	if err == nil {
		t.Fatal("file-based extraction must fail")
	}
	if errors.KindOf(err) != errors.UnsupportedFormat {
		t.Errorf("expected UnsupportedFormat kind, got %v", errors.KindOf(err))
	}

	// no partial output
	entries, _ := os.ReadDir(workDir)
	if len(entries) != 0 {
		t.Errorf("file-based extraction left partial output: %v", entries)
	}
}
