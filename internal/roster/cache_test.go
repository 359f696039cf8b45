package roster

import (
	"context"
	"image/color"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/kozaktomas/attendance/internal/logger"
)

func TestCache_ReusesUnchangedFiles(t *testing.T) {
	dir := t.TempDir()
	cachePath := filepath.Join(t.TempDir(), "cache", "roster.gob")
	writePNG(t, filepath.Join(dir, "alice.png"), color.RGBA{10, 0, 0, 255})
	writePNG(t, filepath.Join(dir, "nobody.png"), color.RGBA{0, 0, 0, 255})

	cache, err := LoadCache(cachePath)
	if err != nil {
		t.Fatalf("LoadCache failed: %v", err)
	}
	d := &colorDetector{}
	if _, _, err := Build(context.Background(), dir, d, WithLogger(logger.Nop()), WithCache(cache)); err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if err := cache.Save(); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if d.calls != 2 {
		t.Fatalf("expected 2 detector calls, got %d", d.calls)
	}

	reloaded, err := LoadCache(cachePath)
	if err != nil {
		t.Fatalf("LoadCache failed: %v", err)
	}
	if reloaded.Len() != 2 {
		t.Errorf("expected 2 cached entries, got %d", reloaded.Len())
	}

	d2 := &colorDetector{}
	r, report, err := Build(context.Background(), dir, d2, WithLogger(logger.Nop()), WithCache(reloaded))
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if d2.calls != 0 {
		t.Errorf("expected all files served from cache, got %d detector calls", d2.calls)
	}
	if report.Cached != 1 || r.Len() != 1 {
		t.Errorf("expected 1 cached identity, got cached=%d len=%d", report.Cached, r.Len())
	}
	if len(report.Skipped) != 1 || report.Skipped[0].Reason != ReasonNoFace {
		t.Errorf("expected cached no-face skip, got %v", report.Skipped)
	}
}

func TestCache_InvalidatesChangedFiles(t *testing.T) {
	dir := t.TempDir()
	cachePath := filepath.Join(t.TempDir(), "roster.gob")
	path := filepath.Join(dir, "alice.png")
	writePNG(t, path, color.RGBA{10, 0, 0, 255})

	cache, _ := LoadCache(cachePath)
	if _, _, err := Build(context.Background(), dir, &colorDetector{}, WithLogger(logger.Nop()), WithCache(cache)); err != nil {
		t.Fatal(err)
	}

	writePNG(t, path, color.RGBA{50, 0, 0, 255})
	later := time.Now().Add(time.Hour)
	if err := os.Chtimes(path, later, later); err != nil {
		t.Fatal(err)
	}

	d := &colorDetector{}
	r, _, err := Build(context.Background(), dir, d, WithLogger(logger.Nop()), WithCache(cache))
	if err != nil {
		t.Fatal(err)
	}
	if d.calls != 1 {
		t.Errorf("expected changed file to be re-embedded, got %d calls", d.calls)
	}
	alice, _ := lookup(r, "alice")
	if alice.Embeddings[0][0] != 50 {
		t.Errorf("expected fresh embedding, got %v", alice.Embeddings[0])
	}
}

type otherModelDetector struct{ colorDetector }

func (d *otherModelDetector) Model() string { return "other" }

func TestCache_ModelMismatchDiscards(t *testing.T) {
	dir := t.TempDir()
	writePNG(t, filepath.Join(dir, "alice.png"), color.RGBA{10, 0, 0, 255})

	cache, _ := LoadCache(filepath.Join(t.TempDir(), "roster.gob"))
	if _, _, err := Build(context.Background(), dir, &colorDetector{}, WithLogger(logger.Nop()), WithCache(cache)); err != nil {
		t.Fatal(err)
	}

	d := &otherModelDetector{}
	if _, _, err := Build(context.Background(), dir, d, WithLogger(logger.Nop()), WithCache(cache)); err != nil {
		t.Fatal(err)
	}
	if d.calls != 1 {
		t.Errorf("expected cache from another model to be ignored, got %d calls", d.calls)
	}
}

func TestLoadCache_Corrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "roster.gob")
	if err := os.WriteFile(path, []byte("garbage"), 0o600); err != nil {
		t.Fatal(err)
	}
	c, err := LoadCache(path)
	if err == nil {
		t.Error("expected decode error")
	}
	if c == nil || c.Len() != 0 {
		t.Error("expected usable empty cache alongside the error")
	}
}
