package indexer

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"findit/internal/decoder"
	"findit/internal/mediatypes"
	"findit/internal/providers"
	"findit/internal/scene"
	"findit/internal/storage"
)

type fakeMediaDecoder struct {
	duration float64
	scenes   []decoder.Scene
}

func (f *fakeMediaDecoder) Capability() decoder.Capability {
	return decoder.Capability{Name: "fake", Priority: 10, FileExtensions: []string{".mp4"}}
}

func (f *fakeMediaDecoder) Probe(ctx context.Context, path string) (decoder.ProbeResult, error) {
	return decoder.ProbeResult{Score: 50, DurationSec: f.duration, HasDuration: true}, nil
}

func (f *fakeMediaDecoder) ExtractKeyframes(ctx context.Context, path string, times []float64, outDir string, maxDim int) ([]decoder.Keyframe, error) {
	out := make([]decoder.Keyframe, len(times))
	for i, t := range times {
		out[i] = decoder.Keyframe{TimeSec: t, Path: filepath.Join(outDir, "frame.jpg")}
	}
	return out, nil
}

func (f *fakeMediaDecoder) ExtractAudio(ctx context.Context, path, outPath string, sampleRate int) (string, error) {
	if err := os.WriteFile(outPath, []byte("fake-audio"), 0o644); err != nil {
		return "", err
	}
	return outPath, nil
}

func (f *fakeMediaDecoder) DetectScenes(ctx context.Context, path string, durationSec float64) ([]decoder.Scene, error) {
	return f.scenes, nil
}

type fakeSTT struct {
	result providers.STTResult
}

func (f *fakeSTT) Transcribe(ctx context.Context, audioPath, language string) (providers.STTResult, error) {
	return f.result, nil
}

type fakeVision struct{}

func (f *fakeVision) Describe(ctx context.Context, keyframePaths []string) (providers.VisionDescriptor, error) {
	return providers.VisionDescriptor{Description: "a scene", Tags: []string{"tag1"}}, nil
}

type fakeEmbedder struct{}

func (f *fakeEmbedder) Name() string { return "fake-embed-v1" }

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return []float32{0.1, 0.2, 0.3}, nil
}

func newTestVideoFile(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "clip.mp4")
	if err := os.WriteFile(path, []byte("fake video bytes"), 0o644); err != nil {
		t.Fatalf("write fake video: %v", err)
	}
	return path
}

func newTestIndexer(t *testing.T, fm *fakeMediaDecoder, stt providers.STTProvider, vision providers.VisionProvider, embedder providers.EmbeddingProvider) (*Indexer, *storage.FolderDB, string) {
	t.Helper()
	ctx := context.Background()
	db, err := storage.OpenFolderDBInMemory(ctx, "/folder")
	if err != nil {
		t.Fatalf("open folder db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	media := decoder.NewCompositeMediaService(fm)
	sceneDetector := scene.NewDetector(media, 1, 320)

	work := t.TempDir()
	ix := New(db, media, sceneDetector, stt, vision, embedder, nil, nil, func(videoID string) string {
		return filepath.Join(work, videoID)
	})
	return ix, db, work
}

func TestProcessRunsAllLayersToCompletion(t *testing.T) {
	ctx := context.Background()
	videoPath := newTestVideoFile(t)

	fm := &fakeMediaDecoder{duration: 10, scenes: []decoder.Scene{{Start: 0, End: 5}, {Start: 5, End: 10}}}
	stt := &fakeSTT{result: providers.STTResult{
		Language: "en", Confidence: 0.9,
		Segments: []providers.TranscriptSegment{{StartSec: 0, EndSec: 4, Text: "hello there"}},
	}}
	ix, db, _ := newTestIndexer(t, fm, stt, &fakeVision{}, &fakeEmbedder{})

	folderID, err := db.UpsertWatchedFolder(ctx, "/folder", "", "")
	if err != nil {
		t.Fatalf("upsert folder: %v", err)
	}
	video := &storage.Video{FilePath: videoPath, FolderID: folderID}

	result := ix.Process(ctx, folderID, video, false)
	if result.Outcome != OutcomeCompleted {
		t.Fatalf("expected completed, got %s (err=%v)", result.Outcome, result.Error)
	}
	if result.ClipsCreated != 2 {
		t.Fatalf("expected 2 clips created, got %d", result.ClipsCreated)
	}
	if result.ClipsAnalyzed != 2 || result.ClipsEmbedded != 2 {
		t.Fatalf("expected 2 analyzed/embedded, got %d/%d", result.ClipsAnalyzed, result.ClipsEmbedded)
	}

	clips, err := db.ListClipsForVideo(ctx, video.ID)
	if err != nil {
		t.Fatalf("list clips: %v", err)
	}
	for _, c := range clips {
		if !c.HasEmbedding() {
			t.Fatalf("clip %s missing embedding", c.ID)
		}
		if c.Description != "a scene" {
			t.Fatalf("clip %s missing vision description, got %q", c.ID, c.Description)
		}
	}

	got, err := db.GetVideo(ctx, video.ID)
	if err != nil {
		t.Fatalf("get video: %v", err)
	}
	if got.IndexStatus != mediatypes.StatusCompleted {
		t.Fatalf("expected completed status, got %s", got.IndexStatus)
	}
}

func TestProcessSkipsSTTWhenNoProvider(t *testing.T) {
	ctx := context.Background()
	videoPath := newTestVideoFile(t)

	fm := &fakeMediaDecoder{duration: 5, scenes: []decoder.Scene{{Start: 0, End: 5}}}
	ix, db, _ := newTestIndexer(t, fm, nil, &fakeVision{}, &fakeEmbedder{})

	folderID, _ := db.UpsertWatchedFolder(ctx, "/folder", "", "")
	video := &storage.Video{FilePath: videoPath, FolderID: folderID}

	result := ix.Process(ctx, folderID, video, false)
	if result.Outcome != OutcomeCompleted {
		t.Fatalf("expected completed, got %s (err=%v)", result.Outcome, result.Error)
	}
	if !result.STTSkippedNoAudio {
		t.Fatalf("expected stt skipped due to nil provider")
	}

	got, err := db.GetVideo(ctx, video.ID)
	if err != nil {
		t.Fatalf("get video: %v", err)
	}
	if !got.STTSkippedNoAudio {
		t.Fatalf("expected STTSkippedNoAudio persisted")
	}
}

func TestProcessSkipsUnchangedCompletedVideo(t *testing.T) {
	ctx := context.Background()
	videoPath := newTestVideoFile(t)

	fm := &fakeMediaDecoder{duration: 5, scenes: []decoder.Scene{{Start: 0, End: 5}}}
	ix, db, _ := newTestIndexer(t, fm, nil, &fakeVision{}, &fakeEmbedder{})

	folderID, _ := db.UpsertWatchedFolder(ctx, "/folder", "", "")
	video := &storage.Video{FilePath: videoPath, FolderID: folderID}
	first := ix.Process(ctx, folderID, video, false)
	if first.Outcome != OutcomeCompleted {
		t.Fatalf("first pass expected completed, got %s (%v)", first.Outcome, first.Error)
	}

	reloaded, err := db.GetVideo(ctx, video.ID)
	if err != nil {
		t.Fatalf("get video: %v", err)
	}

	second := ix.Process(ctx, folderID, reloaded, false)
	if second.Outcome != OutcomeSkipped {
		t.Fatalf("expected skipped on unchanged file, got %s", second.Outcome)
	}
}

func TestProcessMtimeChangeWithMatchingHashBackfillsOnly(t *testing.T) {
	ctx := context.Background()
	videoPath := newTestVideoFile(t)

	fm := &fakeMediaDecoder{duration: 5, scenes: []decoder.Scene{{Start: 0, End: 5}}}
	ix, db, _ := newTestIndexer(t, fm, nil, &fakeVision{}, &fakeEmbedder{})

	folderID, _ := db.UpsertWatchedFolder(ctx, "/folder", "", "")
	video := &storage.Video{FilePath: videoPath, FolderID: folderID}
	first := ix.Process(ctx, folderID, video, false)
	if first.Outcome != OutcomeCompleted {
		t.Fatalf("first pass expected completed, got %s (%v)", first.Outcome, first.Error)
	}

	reloaded, err := db.GetVideo(ctx, video.ID)
	if err != nil {
		t.Fatalf("get video: %v", err)
	}

	future := time.Now().Add(1 * time.Hour)
	if err := os.Chtimes(videoPath, future, future); err != nil {
		t.Fatalf("chtimes: %v", err)
	}

	second := ix.Process(ctx, folderID, reloaded, false)
	if second.Outcome != OutcomeCompleted {
		t.Fatalf("expected completed on mtime-only change, got %s (%v)", second.Outcome, second.Error)
	}
	if second.ClipsCreated != 0 {
		t.Fatalf("expected no reprocessing on a backfill-only pass, got %d clips created", second.ClipsCreated)
	}

	clips, err := db.ListClipsForVideo(ctx, video.ID)
	if err != nil {
		t.Fatalf("list clips: %v", err)
	}
	if len(clips) != 1 {
		t.Fatalf("expected original clip untouched, got %d", len(clips))
	}
}

func TestProcessMtimeChangeWithMismatchedHashTriggersReindex(t *testing.T) {
	ctx := context.Background()
	videoPath := newTestVideoFile(t)

	fm := &fakeMediaDecoder{duration: 5, scenes: []decoder.Scene{{Start: 0, End: 5}}}
	ix, db, _ := newTestIndexer(t, fm, nil, &fakeVision{}, &fakeEmbedder{})

	folderID, _ := db.UpsertWatchedFolder(ctx, "/folder", "", "")
	video := &storage.Video{FilePath: videoPath, FolderID: folderID}
	first := ix.Process(ctx, folderID, video, false)
	if first.Outcome != OutcomeCompleted {
		t.Fatalf("first pass expected completed, got %s (%v)", first.Outcome, first.Error)
	}

	reloaded, err := db.GetVideo(ctx, video.ID)
	if err != nil {
		t.Fatalf("get video: %v", err)
	}

	orig, err := os.ReadFile(videoPath)
	if err != nil {
		t.Fatalf("read video: %v", err)
	}
	mutated := append([]byte{}, orig...)
	mutated[0] ^= 0xFF // same size, different content/hash
	if err := os.WriteFile(videoPath, mutated, 0o644); err != nil {
		t.Fatalf("rewrite video: %v", err)
	}
	future := time.Now().Add(1 * time.Hour)
	if err := os.Chtimes(videoPath, future, future); err != nil {
		t.Fatalf("chtimes: %v", err)
	}

	second := ix.Process(ctx, folderID, reloaded, false)
	if second.Outcome != OutcomeCompleted {
		t.Fatalf("expected completed on mismatched-hash reindex, got %s (%v)", second.Outcome, second.Error)
	}
	if second.ClipsCreated != 1 {
		t.Fatalf("expected clips rebuilt from scratch, got %d", second.ClipsCreated)
	}
}

func TestProcessForceReindexRebuildsFromScratch(t *testing.T) {
	ctx := context.Background()
	videoPath := newTestVideoFile(t)

	fm := &fakeMediaDecoder{duration: 5, scenes: []decoder.Scene{{Start: 0, End: 5}}}
	ix, db, _ := newTestIndexer(t, fm, nil, &fakeVision{}, &fakeEmbedder{})

	folderID, _ := db.UpsertWatchedFolder(ctx, "/folder", "", "")
	video := &storage.Video{FilePath: videoPath, FolderID: folderID}
	first := ix.Process(ctx, folderID, video, false)
	if first.Outcome != OutcomeCompleted {
		t.Fatalf("first pass expected completed, got %s (%v)", first.Outcome, first.Error)
	}

	reloaded, err := db.GetVideo(ctx, video.ID)
	if err != nil {
		t.Fatalf("get video: %v", err)
	}

	second := ix.Process(ctx, folderID, reloaded, true)
	if second.Outcome != OutcomeCompleted {
		t.Fatalf("expected completed on forced reindex, got %s (%v)", second.Outcome, second.Error)
	}
	if second.ClipsCreated != 1 {
		t.Fatalf("expected clips recreated, got %d", second.ClipsCreated)
	}
}

func TestComposeEmbeddingTextSkipsEmptyClip(t *testing.T) {
	empty := &storage.Clip{}
	if got := composeEmbeddingText(empty); got != "" {
		t.Fatalf("expected empty text for empty clip, got %q", got)
	}

	full := &storage.Clip{Scene: "beach", Description: "a walk", Transcript: "hi", Tags: []string{"a", "b"}, UserTags: []string{"c"}}
	got := composeEmbeddingText(full)
	want := "beach\na walk\nhi\na, b\nc"
	if got != want {
		t.Fatalf("compose mismatch:\ngot  %q\nwant %q", got, want)
	}
}

func TestVoteLanguageMajorityWins(t *testing.T) {
	samples := []sampleVote{
		{language: "en", confidence: 0.9, text: "hello world"},
		{language: "en", confidence: 0.8, text: "good morning"},
		{language: "fr", confidence: 0.95, text: "bonjour"},
	}
	lang, _ := voteLanguage(samples, 5)
	if lang != "en" {
		t.Fatalf("expected majority language en, got %s", lang)
	}
}

func TestTranscriptForClipConcatenatesOverlappingSegments(t *testing.T) {
	segments := []providers.TranscriptSegment{
		{StartSec: 0, EndSec: 2, Text: "hello"},
		{StartSec: 2, EndSec: 4, Text: "world"},
		{StartSec: 10, EndSec: 12, Text: "unrelated"},
	}
	got := transcriptForClip(0, 5, segments)
	if got != "hello world" {
		t.Fatalf("unexpected transcript: %q", got)
	}
}

func TestSRTTimestampFormatting(t *testing.T) {
	got := srtTimestamp(3725.123)
	want := "01:02:05,123"
	if got != want {
		t.Fatalf("timestamp mismatch: got %q want %q", got, want)
	}
}
