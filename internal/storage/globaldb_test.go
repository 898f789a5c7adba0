package storage

import (
	"context"
	"testing"

	"findit/internal/mediatypes"
)

func newTestGlobalDB(t *testing.T) *GlobalDB {
	t.Helper()
	g, err := OpenGlobalDBInMemory(context.Background())
	if err != nil {
		t.Fatalf("OpenGlobalDBInMemory: %v", err)
	}
	t.Cleanup(func() { g.Close() })
	return g
}

func TestSyncMetaRoundTripAndMonotonicAdvance(t *testing.T) {
	ctx := context.Background()
	g := newTestGlobalDB(t)

	m, err := g.GetSyncMeta(ctx, "/videos/demo")
	if err != nil {
		t.Fatalf("get sync meta: %v", err)
	}
	if m.LastVideoRowID != 0 || m.LastClipRowID != 0 {
		t.Fatalf("expected zero-valued cursor for unseen folder, got %+v", m)
	}

	tx, err := g.BeginTx(ctx)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if err := g.AdvanceSyncMeta(ctx, tx, "/videos/demo", 10, 50, "vol-1"); err != nil {
		g.EndTx(tx, err)
		t.Fatalf("advance: %v", err)
	}
	if err := g.EndTx(tx, nil); err != nil {
		t.Fatalf("commit: %v", err)
	}

	// Advancing with a lower watermark must not move the cursor backward.
	tx2, _ := g.BeginTx(ctx)
	if err := g.AdvanceSyncMeta(ctx, tx2, "/videos/demo", 5, 5, "vol-1"); err != nil {
		g.EndTx(tx2, err)
		t.Fatalf("advance 2: %v", err)
	}
	if err := g.EndTx(tx2, nil); err != nil {
		t.Fatalf("commit 2: %v", err)
	}

	m2, err := g.GetSyncMeta(ctx, "/videos/demo")
	if err != nil {
		t.Fatalf("get sync meta 2: %v", err)
	}
	if m2.LastVideoRowID != 10 || m2.LastClipRowID != 50 {
		t.Fatalf("expected watermark to stay at (10,50), got (%d,%d)", m2.LastVideoRowID, m2.LastClipRowID)
	}
}

func TestGlobalClipUpsertAndFTSSearch(t *testing.T) {
	ctx := context.Background()
	g := newTestGlobalDB(t)

	tx, err := g.BeginTx(ctx)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	video := &Video{ID: "vid-1", FilePath: "clip.mp4", FileName: "clip.mp4", DurationSeconds: 30, IndexStatus: mediatypes.StatusCompleted}
	if err := g.UpsertGlobalVideo(ctx, tx, "/videos/demo", video); err != nil {
		g.EndTx(tx, err)
		t.Fatalf("upsert video: %v", err)
	}
	clip := &Clip{
		ID: "clip-1", VideoID: "vid-1", StartSec: 0, EndSec: 5,
		Description: "a golden retriever running on the beach at sunset",
		Tags:        []string{"dog", "beach", "sunset"},
		UserTags:    []string{"favorite"},
	}
	if err := g.UpsertGlobalClip(ctx, tx, "/videos/demo", clip); err != nil {
		g.EndTx(tx, err)
		t.Fatalf("upsert clip: %v", err)
	}
	if err := g.EndTx(tx, nil); err != nil {
		t.Fatalf("commit: %v", err)
	}

	hits, err := g.SearchFTS(ctx, "retriever", 10)
	if err != nil {
		t.Fatalf("search fts: %v", err)
	}
	if len(hits) != 1 {
		t.Fatalf("expected 1 hit, got %d", len(hits))
	}
	if hits[0].SourceClipID != "clip-1" {
		t.Fatalf("expected clip-1, got %q", hits[0].SourceClipID)
	}

	hydrated, err := g.HydrateClips(ctx, [][2]string{{"/videos/demo", "clip-1"}}, HydrateFilter{})
	if err != nil {
		t.Fatalf("hydrate: %v", err)
	}
	got, ok := hydrated["/videos/demo\x00clip-1"]
	if !ok {
		t.Fatalf("expected hydrated clip to be present")
	}
	if got.TagsText != "dog beach sunset" {
		t.Fatalf("unexpected tags_text %q", got.TagsText)
	}
}

func TestDeleteFolderDataRemovesMirrorAndCursor(t *testing.T) {
	ctx := context.Background()
	g := newTestGlobalDB(t)

	tx, _ := g.BeginTx(ctx)
	g.UpsertGlobalVideo(ctx, tx, "/videos/demo", &Video{ID: "vid-1", FilePath: "a.mp4", FileName: "a.mp4"})
	g.UpsertGlobalClip(ctx, tx, "/videos/demo", &Clip{ID: "clip-1", VideoID: "vid-1", StartSec: 0, EndSec: 1, Description: "test"})
	g.AdvanceSyncMeta(ctx, tx, "/videos/demo", 1, 1, "vol-1")
	if err := g.EndTx(tx, nil); err != nil {
		t.Fatalf("commit: %v", err)
	}

	if err := g.DeleteFolderData(ctx, "/videos/demo"); err != nil {
		t.Fatalf("delete folder data: %v", err)
	}

	hits, err := g.SearchFTS(ctx, "test", 10)
	if err != nil {
		t.Fatalf("search after delete: %v", err)
	}
	if len(hits) != 0 {
		t.Fatalf("expected no hits after folder data removed, got %d", len(hits))
	}

	m, err := g.GetSyncMeta(ctx, "/videos/demo")
	if err != nil {
		t.Fatalf("get sync meta: %v", err)
	}
	if m.LastVideoRowID != 0 {
		t.Fatalf("expected cursor reset after folder removal, got %+v", m)
	}
}
