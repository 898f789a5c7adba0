package decoder

import (
	"context"
	"errors"
	"testing"

	"findit/internal/apperrors"
)

// fakeDecoder is a minimal in-memory MediaDecoder for registry tests, so
// selection logic can be exercised without shelling out to ffmpeg. It does
// NOT implement SceneDetectable; fakeSceneDecoder below does.
type fakeDecoder struct {
	cap      Capability
	score    int
	audioErr error
	probes   int
}

func (f *fakeDecoder) Capability() Capability { return f.cap }

func (f *fakeDecoder) Probe(ctx context.Context, path string) (ProbeResult, error) {
	f.probes++
	return ProbeResult{Score: f.score}, nil
}

func (f *fakeDecoder) ExtractKeyframes(ctx context.Context, path string, times []float64, outDir string, maxDim int) ([]Keyframe, error) {
	out := make([]Keyframe, len(times))
	for i, t := range times {
		out[i] = Keyframe{TimeSec: t, Path: "frame.jpg"}
	}
	return out, nil
}

func (f *fakeDecoder) ExtractAudio(ctx context.Context, path, outPath string, sampleRate int) (string, error) {
	if f.audioErr != nil {
		return "", f.audioErr
	}
	return outPath, nil
}

// fakeSceneDecoder additionally implements SceneDetectable.
type fakeSceneDecoder struct {
	fakeDecoder
	scenes []Scene
}

func (f *fakeSceneDecoder) DetectScenes(ctx context.Context, path string, durationSec float64) ([]Scene, error) {
	return f.scenes, nil
}

func TestSelectPicksHighestScore(t *testing.T) {
	low := &fakeDecoder{cap: Capability{Name: "low", Priority: 10, FileExtensions: []string{".mp4"}}, score: 40}
	high := &fakeDecoder{cap: Capability{Name: "high", Priority: 50, FileExtensions: []string{".mp4"}}, score: 90}
	svc := NewCompositeMediaService(low, high)

	d, result, err := svc.Select(context.Background(), "clip.mp4")
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if d.Capability().Name != "high" {
		t.Fatalf("expected high-scoring decoder selected, got %s", d.Capability().Name)
	}
	if result.Score != 90 {
		t.Fatalf("expected score 90, got %d", result.Score)
	}
}

func TestSelectCachesByExtension(t *testing.T) {
	d := &fakeDecoder{cap: Capability{Name: "only", Priority: 10, FileExtensions: []string{".mp4"}}, score: 50}
	svc := NewCompositeMediaService(d)

	if _, _, err := svc.Select(context.Background(), "a.mp4"); err != nil {
		t.Fatalf("select a: %v", err)
	}
	if _, _, err := svc.Select(context.Background(), "b.mp4"); err != nil {
		t.Fatalf("select b: %v", err)
	}
	// First select probes to discover the winner; second hits the cache and
	// probes again only to produce a fresh ProbeResult for that specific path.
	if d.probes != 2 {
		t.Fatalf("expected 2 probe calls (one per distinct path), got %d", d.probes)
	}
}

func TestSelectReturnsNoDecoderAvailable(t *testing.T) {
	zero := &fakeDecoder{cap: Capability{Name: "zero", Priority: 10, FileExtensions: []string{".mp4"}}, score: 0}
	svc := NewCompositeMediaService(zero)

	_, _, err := svc.Select(context.Background(), "clip.mp4")
	if !errors.Is(err, apperrors.ErrNoDecoderAvailable) {
		t.Fatalf("expected ErrNoDecoderAvailable, got %v", err)
	}
}

func TestExtractAudioSkipsRefusers(t *testing.T) {
	refuser := &fakeDecoder{cap: Capability{Name: "refuser", Priority: 90, FileExtensions: []string{".mp4"}}, score: 80}
	worker := &fakeDecoder{cap: Capability{Name: "worker", Priority: 10, FileExtensions: []string{".mp4"}}, score: 50}
	svc := NewCompositeMediaService(refuser, worker)
	svc.MarkAudioRefuser("refuser")

	out, err := svc.ExtractAudio(context.Background(), "clip.mp4", "out.wav", 16000)
	if err != nil {
		t.Fatalf("extract audio: %v", err)
	}
	if out != "out.wav" {
		t.Fatalf("expected out.wav, got %q", out)
	}
}

func TestDetectScenesDelegatesToSceneDetectableCandidate(t *testing.T) {
	plain := &fakeDecoder{cap: Capability{Name: "plain", Priority: 90, FileExtensions: []string{".mp4"}}, score: 80}
	detectable := &fakeSceneDecoder{
		fakeDecoder: fakeDecoder{cap: Capability{Name: "detectable", Priority: 10, FileExtensions: []string{".mp4"}}, score: 50},
		scenes:      []Scene{{Start: 0, End: 5}, {Start: 5, End: 10}},
	}
	svc := NewCompositeMediaService(plain, detectable)

	scenes, err := svc.DetectScenes(context.Background(), "clip.mp4", 10)
	if err != nil {
		t.Fatalf("detect scenes: %v", err)
	}
	if len(scenes) != 2 {
		t.Fatalf("expected 2 scenes, got %d", len(scenes))
	}
}

func TestDetectScenesFailsWhenNoneImplement(t *testing.T) {
	plain := &fakeDecoder{cap: Capability{Name: "plain", Priority: 10, FileExtensions: []string{".mov"}}, score: 50}
	svc := NewCompositeMediaService(plain)
	_, err := svc.DetectScenes(context.Background(), "clip.mov", 10)
	if !errors.Is(err, apperrors.ErrOperationNotSupported) {
		t.Fatalf("expected ErrOperationNotSupported, got %v", err)
	}
}
