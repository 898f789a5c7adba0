package search

import (
	"context"
	"testing"

	"findit/internal/mediatypes"
	"findit/internal/query"
	"findit/internal/storage"
)

func newTestDB(t *testing.T) *storage.GlobalDB {
	t.Helper()
	g, err := storage.OpenGlobalDBInMemory(context.Background())
	if err != nil {
		t.Fatalf("open global db: %v", err)
	}
	t.Cleanup(func() { g.Close() })
	return g
}

func seedClip(t *testing.T, g *storage.GlobalDB, folder, videoID, clipID, description string, tags []string) {
	t.Helper()
	ctx := context.Background()
	tx, err := g.BeginTx(ctx)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if err := g.UpsertGlobalVideo(ctx, tx, folder, &storage.Video{
		ID: videoID, FilePath: folder + "/" + videoID + ".mp4", FileName: videoID + ".mp4",
		IndexStatus: mediatypes.StatusCompleted,
	}); err != nil {
		g.EndTx(tx, err)
		t.Fatalf("upsert video: %v", err)
	}
	if err := g.UpsertGlobalClip(ctx, tx, folder, &storage.Clip{
		ID: clipID, VideoID: videoID, StartSec: 0, EndSec: 5,
		Description: description, Tags: tags,
	}); err != nil {
		g.EndTx(tx, err)
		t.Fatalf("upsert clip: %v", err)
	}
	if err := g.EndTx(tx, nil); err != nil {
		t.Fatalf("commit: %v", err)
	}
}

func TestSearchEmptyQueryWithNoVectorInputReturnsNoResults(t *testing.T) {
	g := newTestDB(t)
	e := New(g)

	results, err := e.Search(context.Background(), Request{Parsed: query.Parse(""), Limit: 10})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("expected no results, got %d", len(results))
	}
}

func TestSearchFTSOnlyRanksByBM25(t *testing.T) {
	g := newTestDB(t)
	seedClip(t, g, "/videos/demo", "vid-1", "clip-1", "a golden retriever running on the beach at sunset", []string{"dog", "beach"})
	seedClip(t, g, "/videos/demo", "vid-2", "clip-2", "a cat sleeping on a couch", []string{"cat"})

	e := New(g)
	parsed := query.Parse("retriever beach")
	results, err := e.Search(context.Background(), Request{Parsed: parsed, Mode: ModeFTS, Limit: 10})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 hit, got %d", len(results))
	}
	if results[0].Clip.SourceClipID != "clip-1" {
		t.Fatalf("expected clip-1, got %s", results[0].Clip.SourceClipID)
	}
	if results[0].Final != 1.0 {
		t.Fatalf("expected single-result normalize to 1.0, got %f", results[0].Final)
	}
}

func TestSearchHonorsFolderFilter(t *testing.T) {
	g := newTestDB(t)
	seedClip(t, g, "/videos/a", "vid-1", "clip-1", "a golden retriever on the beach", []string{"dog"})
	seedClip(t, g, "/videos/b", "vid-2", "clip-2", "a golden retriever in the park", []string{"dog"})

	e := New(g)
	parsed := query.Parse("retriever")
	results, err := e.Search(context.Background(), Request{
		Parsed: parsed, Mode: ModeFTS, Limit: 10,
		Filter: Filter{FolderPaths: []string{"/videos/a"}},
	})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 hit after folder filter, got %d", len(results))
	}
	if results[0].Clip.SourceFolder != "/videos/a" {
		t.Fatalf("expected folder /videos/a, got %s", results[0].Clip.SourceFolder)
	}
}

func TestSearchVectorChannelFusesWithFTS(t *testing.T) {
	g := newTestDB(t)
	seedClip(t, g, "/videos/demo", "vid-1", "clip-1", "a golden retriever running on the beach", []string{"dog"})
	seedClip(t, g, "/videos/demo", "vid-2", "clip-2", "a golden retriever running on the beach", []string{"dog"})

	e := New(g)
	parsed := query.Parse("retriever")
	results, err := e.Search(context.Background(), Request{
		Parsed: parsed,
		ClipVecHits: []Hit{
			{ClipID: "/videos/demo\x00clip-1", Similarity: 0.9},
			{ClipID: "/videos/demo\x00clip-2", Similarity: 0.1},
		},
		Limit: 10,
	})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 hits, got %d", len(results))
	}
	if results[0].Clip.SourceClipID != "clip-1" {
		t.Fatalf("expected clip-1 to rank first with higher vector similarity, got %s", results[0].Clip.SourceClipID)
	}
}

func TestSelectWeightsMatchesAdaptiveTable(t *testing.T) {
	cases := []struct {
		hasClip, hasText, isQuoted, isLong bool
		want                               Weights
	}{
		{true, true, true, false, Weights{0.1, 0.8, 0.1}},
		{true, true, false, true, Weights{0.6, 0.1, 0.3}},
		{true, true, false, false, Weights{0.5, 0.2, 0.3}},
		{false, true, true, false, Weights{0.0, 0.8, 0.2}},
		{false, true, false, true, Weights{0.0, 0.2, 0.8}},
		{false, true, false, false, Weights{0.0, 0.4, 0.6}},
		{true, false, true, false, Weights{0.1, 0.9, 0.0}},
		{true, false, false, true, Weights{0.8, 0.2, 0.0}},
		{true, false, false, false, Weights{0.7, 0.3, 0.0}},
		{false, false, false, false, Weights{0.0, 1.0, 0.0}},
	}
	for _, c := range cases {
		got := selectWeights(ModeAuto, c.hasClip, c.hasText, c.isQuoted, c.isLong)
		if got != c.want {
			t.Fatalf("selectWeights(%+v) = %+v, want %+v", c, got, c.want)
		}
	}
}

func TestSelectWeightsExplicitModeOverrides(t *testing.T) {
	if got := selectWeights(ModeFTS, true, true, true, true); got != (Weights{0, 1, 0}) {
		t.Fatalf("fts mode override mismatch: %+v", got)
	}
	if got := selectWeights(ModeVector, true, false, false, false); got != (Weights{1, 0, 0}) {
		t.Fatalf("vector mode with clip mismatch: %+v", got)
	}
	if got := selectWeights(ModeVector, false, true, false, false); got != (Weights{0, 0, 1}) {
		t.Fatalf("vector mode with text mismatch: %+v", got)
	}
	if got := selectWeights(ModeImage, false, false, false, false); got != (Weights{1, 0, 0}) {
		t.Fatalf("image mode mismatch: %+v", got)
	}
}

func TestNormalizeSingleResultMapsToOne(t *testing.T) {
	out := normalize(map[string]float64{"a": 0.42}, false)
	if out["a"] != 1.0 {
		t.Fatalf("expected single result normalized to 1.0, got %f", out["a"])
	}
}

func TestNormalizeNegatesFTSChannel(t *testing.T) {
	out := normalize(map[string]float64{"a": -5, "b": -1}, true)
	if out["a"] != 1.0 {
		t.Fatalf("expected lowest raw (best) bm25 score to normalize to 1.0, got %f", out["a"])
	}
	if out["b"] != 0.0 {
		t.Fatalf("expected highest raw (worst) bm25 score to normalize to 0.0, got %f", out["b"])
	}
}

func TestImageSearchUsesClipOnlyWeights(t *testing.T) {
	g := newTestDB(t)
	seedClip(t, g, "/videos/demo", "vid-1", "clip-1", "a sunset over the ocean", nil)

	e := New(g)
	results, err := e.ImageSearch(context.Background(), []Hit{
		{ClipID: "/videos/demo\x00clip-1", Similarity: 0.77},
	}, Filter{}, 10)
	if err != nil {
		t.Fatalf("image search: %v", err)
	}
	if len(results) != 1 || results[0].Final != 1.0 {
		t.Fatalf("expected single clip-only hit normalized to 1.0, got %+v", results)
	}
}
