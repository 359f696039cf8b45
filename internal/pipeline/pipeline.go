// Package pipeline runs detection, matching and attendance recording per frame.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"time"

	"golang.org/x/image/draw"

	"github.com/kozaktomas/attendance/internal/constants"
	"github.com/kozaktomas/attendance/internal/embedding"
	"github.com/kozaktomas/attendance/internal/facematch"
	"github.com/kozaktomas/attendance/internal/metrics"
)

// Recorder records attendance at most once per identity per day.
type Recorder interface {
	RecordIfAbsent(ctx context.Context, name string, now time.Time, confidence float64) (bool, error)
}

// FrameSource yields frames until it fails.
type FrameSource interface {
	ReadFrame() (image.Image, error)
}

// Renderer displays a frame with its annotations and reports quit requests.
type Renderer interface {
	Render(frame image.Image, annotations []Annotation) error
	QuitRequested() bool
}

// Pipeline processes frames one at a time.
type Pipeline struct {
	detector embedding.Detector
	matcher  *facematch.Matcher
	recorder Recorder
	scale    float64
	now      func() time.Time
	logger   *slog.Logger
	metrics  *metrics.Manager
	onFrame  func(frames int)
	frames   int
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithScale sets the downscale factor applied before detection. Values
// outside (0, 1) disable downscaling.
func WithScale(factor float64) Option {
	return func(p *Pipeline) { p.scale = factor }
}

// WithClock sets the clock used for attendance timestamps.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) { p.logger = l }
}

// WithMetrics records pipeline metrics on m.
func WithMetrics(m *metrics.Manager) Option {
	return func(p *Pipeline) { p.metrics = m }
}

// WithFrameHook calls fn after every processed frame with the running frame count.
func WithFrameHook(fn func(frames int)) Option {
	return func(p *Pipeline) { p.onFrame = fn }
}

// New creates a pipeline.
func New(detector embedding.Detector, matcher *facematch.Matcher, recorder Recorder, opts ...Option) *Pipeline {
	p := &Pipeline{
		detector: detector,
		matcher:  matcher,
		recorder: recorder,
		scale:    constants.DefaultFrameScale,
		now:      time.Now,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ProcessFrame detects every face in frame, matches it and records
// attendance for matched identities. It returns one annotation per detected
// face in detection order. Ledger failures do not stop the remaining faces;
// they are joined into the returned error alongside the annotations.
func (p *Pipeline) ProcessFrame(ctx context.Context, frame image.Image) ([]Annotation, error) {
	start := time.Now()

	small := Downscale(frame, p.scale)
	faces, err := p.detector.Detect(ctx, small)
	if err != nil {
		if p.metrics != nil {
			p.metrics.DetectorError()
		}
		return nil, fmt.Errorf("face detection failed: %w", err)
	}

	bounds := frame.Bounds()
	annotations := make([]Annotation, 0, len(faces))
	var errs []error
	for _, f := range faces {
		result := p.matcher.Match(f.Embedding)
		if p.metrics != nil {
			p.metrics.ObserveMatch(result.Matched)
		}

		if result.Matched {
			recorded, err := p.recorder.RecordIfAbsent(ctx, result.Name, p.now(), result.Confidence)
			if p.metrics != nil {
				p.metrics.ObserveRecord(recorded, err)
			}
			if err != nil {
				errs = append(errs, fmt.Errorf("record %s: %w", result.Name, err))
			}
		}

		box := facematch.ClampBox(p.toFrame(f.Box, bounds), bounds)
		annotations = append(annotations, Annotate(box, result))
	}

	if p.metrics != nil {
		p.metrics.ObserveFrame(len(faces), time.Since(start))
	}
	return annotations, errors.Join(errs...)
}

// toFrame maps a box from the detector image back to frame coordinates.
func (p *Pipeline) toFrame(box image.Rectangle, bounds image.Rectangle) image.Rectangle {
	if !downscales(p.scale) {
		return box
	}
	return facematch.ScaleBox(box, p.scale).Add(bounds.Min)
}

// Run processes frames from source until the renderer reports a quit
// request, ctx is cancelled or the source fails. A source failure ends the
// loop normally; a render failure is returned.
func (p *Pipeline) Run(ctx context.Context, source FrameSource, renderer Renderer) error {
	for {
		if err := ctx.Err(); err != nil {
			p.logger.Info("processing stopped", "reason", err)
			return nil
		}

		frame, err := source.ReadFrame()
		if err != nil {
			p.logger.Warn("failed to grab frame, stopping", "error", err)
			return nil
		}

		annotations, err := p.ProcessFrame(ctx, frame)
		if err != nil {
			p.logger.Warn("frame processing error", "error", err)
		}

		if err := renderer.Render(frame, annotations); err != nil {
			return fmt.Errorf("failed to render frame: %w", err)
		}

		p.frames++
		if p.onFrame != nil {
			p.onFrame(p.frames)
		}

		if renderer.QuitRequested() {
			p.logger.Info("quit requested", "frames", p.frames)
			return nil
		}
	}
}

// Frames returns the number of frames Run has processed.
func (p *Pipeline) Frames() int {
	return p.frames
}

func downscales(factor float64) bool {
	return factor > 0 && factor < 1
}

// Downscale resizes img by factor with bilinear interpolation. The result
// starts at the origin. Factors outside (0, 1) return img unchanged.
func Downscale(img image.Image, factor float64) image.Image {
	if !downscales(factor) {
		return img
	}
	b := img.Bounds()
	w := max(int(float64(b.Dx())*factor), 1)
	h := max(int(float64(b.Dy())*factor), 1)

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst
}
