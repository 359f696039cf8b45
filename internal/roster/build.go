package roster

import (
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg" // register JPEG decoder
	_ "image/png"  // register PNG decoder
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	_ "golang.org/x/image/bmp" // register BMP decoder

	"github.com/kozaktomas/attendance/internal/embedding"
)

// ErrNoImagesDir is returned when the reference image directory does not exist.
var ErrNoImagesDir = errors.New("reference images directory not found")

// ImageExtensions are the reference image file extensions, lowercase.
var ImageExtensions = []string{".jpg", ".jpeg", ".png", ".bmp"}

// Skip reasons reported in BuildReport.
const (
	ReasonUnreadable = "unreadable image"
	ReasonNoFace     = "no face detected"
	ReasonNoEmbed    = "empty embedding"
	ReasonBadName    = "invalid identity name"
)

// Skipped is a reference image that did not contribute to the roster.
type Skipped struct {
	Path   string
	Reason string
}

// BuildReport summarizes a roster build.
type BuildReport struct {
	Files   int // candidate image files found
	Loaded  int // files that contributed an embedding
	Cached  int // of Loaded, served from the cache
	Skipped []Skipped
}

// BuildOption configures Build.
type BuildOption func(*buildOptions)

type buildOptions struct {
	logger   *slog.Logger
	progress func()
	total    func(int)
	cache    *Cache
}

// WithLogger sets the logger used for per-file diagnostics.
func WithLogger(l *slog.Logger) BuildOption {
	return func(o *buildOptions) { o.logger = l }
}

// WithProgress registers callbacks: total is called once with the number of
// candidate files, step after each file is processed. Either may be nil.
func WithProgress(total func(int), step func()) BuildOption {
	return func(o *buildOptions) {
		o.total = total
		o.progress = step
	}
}

// WithCache reuses and refreshes embeddings stored in c.
func WithCache(c *Cache) BuildOption {
	return func(o *buildOptions) { o.cache = c }
}

// candidate is a reference image and the identity name it belongs to.
type candidate struct {
	path string // absolute or dir-relative path used for reading
	rel  string // path relative to the images directory
	name string
}

// Build scans dir for reference images and embeds the first face of each.
//
// Files directly in dir are named after the file without extension. Files in
// a subdirectory belong to the identity named after the subdirectory. Files
// that cannot be decoded, show no face or carry a name ValidateName rejects
// are skipped and reported. Detector failures other than an empty embedding
// abort the build.
//
// The roster and the cache are stamped with the model the detector reports.
// Detectors implementing embedding.ModelProber are asked before the first
// image; when the reported model still changes while embedding, the build
// starts over so embeddings of different models are never mixed.
func Build(ctx context.Context, dir string, detector embedding.Detector, opts ...BuildOption) (*Roster, *BuildReport, error) {
	o := buildOptions{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}

	candidates, err := scan(dir)
	if err != nil {
		return nil, nil, err
	}
	if o.total != nil {
		o.total(len(candidates))
	}

	model := probeModel(ctx, detector, o.logger)
	identities, report, err := embedAll(ctx, candidates, detector, model, o)
	if err != nil {
		return nil, nil, err
	}
	if actual := detector.Model(); actual != model {
		o.logger.Warn("embedding model changed while building roster, rebuilding",
			"expected", model, "actual", actual)
		model = actual
		o.progress = nil
		identities, report, err = embedAll(ctx, candidates, detector, model, o)
		if err != nil {
			return nil, nil, err
		}
	}

	r := New(model, identities...)
	o.logger.Info("roster built",
		"model", model,
		"identities", r.Len(),
		"references", r.References(),
		"files", report.Files,
		"skipped", len(report.Skipped),
		"cached", report.Cached)
	return r, report, nil
}

func probeModel(ctx context.Context, detector embedding.Detector, log *slog.Logger) string {
	p, ok := detector.(embedding.ModelProber)
	if !ok {
		return detector.Model()
	}
	model, err := p.ProbeModel(ctx)
	if err != nil {
		log.Warn("failed to query embedding model, using configured one", "model", detector.Model(), "error", err)
		return detector.Model()
	}
	return model
}

// embedAll embeds every candidate, reusing cache entries produced by model.
func embedAll(ctx context.Context, candidates []candidate, detector embedding.Detector, model string, o buildOptions) ([]Identity, *BuildReport, error) {
	report := &BuildReport{Files: len(candidates)}
	if o.cache != nil {
		o.cache.reset(model)
	}

	identities := make([]Identity, 0, len(candidates))
	for _, c := range candidates {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}

		var (
			emb    []float32
			cached bool
			reason string
		)
		if err := ValidateName(c.name); err != nil {
			reason = ReasonBadName
		} else {
			emb, cached, reason, err = embedCandidate(ctx, c, detector, o.cache)
			if err != nil {
				return nil, nil, fmt.Errorf("failed to embed %s: %w", c.rel, err)
			}
		}
		if o.progress != nil {
			o.progress()
		}
		if reason != "" {
			o.logger.Warn("skipping reference image", "path", c.rel, "name", c.name, "reason", reason)
			report.Skipped = append(report.Skipped, Skipped{Path: c.rel, Reason: reason})
			continue
		}

		report.Loaded++
		if cached {
			report.Cached++
		}
		identities = append(identities, Identity{
			Name:       c.name,
			Embeddings: [][]float32{emb},
			Sources:    []string{c.rel},
		})
	}
	return identities, report, nil
}

// embedCandidate returns the embedding of the first face in the candidate
// image, or a skip reason when the file is not usable.
func embedCandidate(ctx context.Context, c candidate, detector embedding.Detector, cache *Cache) ([]float32, bool, string, error) {
	info, err := os.Stat(c.path)
	if err != nil {
		return nil, false, ReasonUnreadable, nil
	}

	if cache != nil {
		if entry, ok := cache.lookup(c.rel, info); ok {
			if len(entry.Embedding) == 0 {
				return nil, true, ReasonNoFace, nil
			}
			return entry.Embedding, true, "", nil
		}
	}

	img, err := decodeImage(c.path)
	if err != nil {
		return nil, false, ReasonUnreadable, nil
	}

	faces, err := detector.Detect(ctx, img)
	if errors.Is(err, embedding.ErrEmptyEmbedding) {
		return nil, false, ReasonNoEmbed, nil
	}
	if err != nil {
		return nil, false, "", err
	}

	if len(faces) == 0 || len(faces[0].Embedding) == 0 {
		if cache != nil {
			cache.put(c.rel, info, nil)
		}
		return nil, false, ReasonNoFace, nil
	}

	emb := faces[0].Embedding
	if cache != nil {
		cache.put(c.rel, info, emb)
	}
	return emb, false, "", nil
}

func decodeImage(path string) (image.Image, error) {
	f, err := os.Open(path) //nolint:gosec // path comes from the configured images directory
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	return img, err
}

// scan lists candidate images in directory listing order. Subdirectories are
// expanded in place, one level deep.
func scan(dir string) ([]candidate, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNoImagesDir, dir)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read images directory: %w", err)
	}

	var out []candidate
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".") {
			continue
		}
		if e.IsDir() {
			sub, err := os.ReadDir(filepath.Join(dir, e.Name()))
			if err != nil {
				return nil, fmt.Errorf("failed to read identity directory %s: %w", e.Name(), err)
			}
			for _, s := range sub {
				if s.IsDir() || !IsImageFile(s.Name()) {
					continue
				}
				rel := filepath.Join(e.Name(), s.Name())
				out = append(out, candidate{path: filepath.Join(dir, rel), rel: rel, name: e.Name()})
			}
			continue
		}
		if !e.Type().IsRegular() || !IsImageFile(e.Name()) {
			continue
		}
		out = append(out, candidate{
			path: filepath.Join(dir, e.Name()),
			rel:  e.Name(),
			name: NameFromFile(e.Name()),
		})
	}
	return out, nil
}

// IsImageFile reports whether the file name has a reference image extension.
func IsImageFile(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range ImageExtensions {
		if ext == e {
			return true
		}
	}
	return false
}

// NameFromFile returns the identity name for a reference image file: the
// base name without its extension.
func NameFromFile(name string) string {
	base := filepath.Base(name)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
