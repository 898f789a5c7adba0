package scene

import (
	"context"
	"testing"

	"findit/internal/decoder"
)

func TestValidateCoverageAcceptsFullyCoveredSegments(t *testing.T) {
	scenes := []decoder.Scene{{Start: 0, End: 5}, {Start: 5, End: 12}}
	if err := validateCoverage(scenes, 12); err != nil {
		t.Fatalf("expected valid coverage, got %v", err)
	}
}

func TestValidateCoverageRejectsGap(t *testing.T) {
	scenes := []decoder.Scene{{Start: 0, End: 5}, {Start: 6, End: 12}}
	if err := validateCoverage(scenes, 12); err == nil {
		t.Fatalf("expected error for gap between segments")
	}
}

func TestValidateCoverageRejectsWrongEnd(t *testing.T) {
	scenes := []decoder.Scene{{Start: 0, End: 5}}
	if err := validateCoverage(scenes, 12); err == nil {
		t.Fatalf("expected error when last segment doesn't reach duration")
	}
}

func TestFramesForSceneStaysWithinBounds(t *testing.T) {
	s := decoder.Scene{Start: 10, End: 20}
	times := framesForScene(s, 3)
	if len(times) != 3 {
		t.Fatalf("expected 3 timestamps, got %d", len(times))
	}
	for _, tm := range times {
		if tm < s.Start || tm >= s.End {
			t.Fatalf("timestamp %v out of bounds [%v,%v)", tm, s.Start, s.End)
		}
	}
}

type stubMediaDecoder struct {
	scenes []decoder.Scene
}

func (s *stubMediaDecoder) Capability() decoder.Capability {
	return decoder.Capability{Name: "stub", Priority: 1, FileExtensions: []string{".mp4"}}
}
func (s *stubMediaDecoder) Probe(ctx context.Context, path string) (decoder.ProbeResult, error) {
	return decoder.ProbeResult{Score: 50}, nil
}
func (s *stubMediaDecoder) ExtractKeyframes(ctx context.Context, path string, times []float64, outDir string, maxDim int) ([]decoder.Keyframe, error) {
	out := make([]decoder.Keyframe, len(times))
	for i, t := range times {
		out[i] = decoder.Keyframe{TimeSec: t, Path: "frame.jpg"}
	}
	return out, nil
}
func (s *stubMediaDecoder) ExtractAudio(ctx context.Context, path, outPath string, sampleRate int) (string, error) {
	return outPath, nil
}
func (s *stubMediaDecoder) DetectScenes(ctx context.Context, path string, durationSec float64) ([]decoder.Scene, error) {
	return s.scenes, nil
}

func TestDetectProducesSegmentsWithKeyframes(t *testing.T) {
	stub := &stubMediaDecoder{scenes: []decoder.Scene{{Start: 0, End: 5}, {Start: 5, End: 10}}}
	media := decoder.NewCompositeMediaService(stub)
	d := NewDetector(media, 2, 480)

	segments, err := d.Detect(context.Background(), "clip.mp4", 10, "/tmp/out")
	if err != nil {
		t.Fatalf("detect: %v", err)
	}
	if len(segments) != 2 {
		t.Fatalf("expected 2 segments, got %d", len(segments))
	}
	for i, seg := range segments {
		if len(seg.Keyframes) != 2 {
			t.Fatalf("segment %d: expected 2 keyframes, got %d", i, len(seg.Keyframes))
		}
	}
}
