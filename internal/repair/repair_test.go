package repair

import (
	"context"
	"testing"
	"time"

	"findit/internal/storage"
)

func TestRebaseRewritesPaths(t *testing.T) {
	ctx := context.Background()
	folder, err := storage.OpenFolderDBInMemory(ctx, "/old/videos")
	if err != nil {
		t.Fatalf("open folder db: %v", err)
	}
	defer folder.Close()

	folderID, err := folder.UpsertWatchedFolder(ctx, "/old/videos", "", "")
	if err != nil {
		t.Fatalf("upsert folder: %v", err)
	}
	tx, _ := folder.BeginTx(ctx)
	videoID, err := folder.UpsertVideoMetadata(ctx, tx, folderID, "/old/videos/clip.mp4", "clip.mp4", 10, 100, "h1", time.Now())
	if err != nil {
		folder.EndTx(tx, err)
		t.Fatalf("upsert video: %v", err)
	}
	clipID, err := folder.InsertClip(ctx, tx, videoID, 0, 5, "/old/videos/.clip-index/thumbs/c1.jpg")
	if err != nil {
		folder.EndTx(tx, err)
		t.Fatalf("insert clip: %v", err)
	}
	folder.EndTx(tx, nil)

	r := NewRebaser(folder)
	changed, err := r.Rebase(ctx, "/new/videos")
	if err != nil {
		t.Fatalf("rebase: %v", err)
	}
	if !changed {
		t.Fatalf("expected rebase to report a change")
	}

	wf, err := folder.GetWatchedFolder(ctx)
	if err != nil {
		t.Fatalf("get watched folder: %v", err)
	}
	if wf.FolderPath != "/new/videos" {
		t.Fatalf("expected folder_path rewritten, got %q", wf.FolderPath)
	}

	v, err := folder.GetVideo(ctx, videoID)
	if err != nil {
		t.Fatalf("get video: %v", err)
	}
	if v.FilePath != "/new/videos/clip.mp4" {
		t.Fatalf("expected video path rewritten, got %q", v.FilePath)
	}

	clips, err := folder.ListClipsForVideo(ctx, videoID)
	if err != nil {
		t.Fatalf("list clips: %v", err)
	}
	if len(clips) != 1 || clips[0].ID != clipID {
		t.Fatalf("expected 1 clip %q, got %+v", clipID, clips)
	}
	if clips[0].ThumbnailPath != "/new/videos/.clip-index/thumbs/c1.jpg" {
		t.Fatalf("expected thumbnail path rewritten, got %q", clips[0].ThumbnailPath)
	}

	// A second rebase to the same path is a no-op.
	changed2, err := r.Rebase(ctx, "/new/videos")
	if err != nil {
		t.Fatalf("second rebase: %v", err)
	}
	if changed2 {
		t.Fatalf("expected second rebase to no-op")
	}
}

func TestOrphanMarkRestore(t *testing.T) {
	ctx := context.Background()
	folder, err := storage.OpenFolderDBInMemory(ctx, "/videos/demo")
	if err != nil {
		t.Fatalf("open folder db: %v", err)
	}
	defer folder.Close()

	folderID, _ := folder.UpsertWatchedFolder(ctx, "/videos/demo", "", "")
	tx, _ := folder.BeginTx(ctx)
	videoID, err := folder.UpsertVideoMetadata(ctx, tx, folderID, "clip.mp4", "clip.mp4", 10, 100, "hash-1", time.Now())
	if err != nil {
		folder.EndTx(tx, err)
		t.Fatalf("upsert video: %v", err)
	}
	folder.EndTx(tx, nil)

	before, err := folder.GetVideo(ctx, videoID)
	if err != nil {
		t.Fatalf("get video before orphaning: %v", err)
	}
	statusBeforeOrphan := before.IndexStatus

	o := NewOrphanRecovery(folder, time.Hour)
	if err := o.MarkMissing(ctx, videoID); err != nil {
		t.Fatalf("mark missing: %v", err)
	}

	orphaned, err := folder.GetVideo(ctx, videoID)
	if err != nil {
		t.Fatalf("get video after orphaning: %v", err)
	}
	if orphaned.IndexStatus != "orphaned" {
		t.Fatalf("expected index_status orphaned, got %s", orphaned.IndexStatus)
	}
	if orphaned.StatusBeforeOrphan != statusBeforeOrphan {
		t.Fatalf("expected prior status %s preserved, got %s", statusBeforeOrphan, orphaned.StatusBeforeOrphan)
	}

	if err := o.RestoreByHash(ctx, videoID, "moved/clip.mp4", "wrong-hash"); err == nil {
		t.Fatalf("expected hash mismatch error")
	}
	if err := o.RestoreByHash(ctx, videoID, "moved/clip.mp4", "hash-1"); err != nil {
		t.Fatalf("restore by hash: %v", err)
	}

	v, err := folder.GetVideo(ctx, videoID)
	if err != nil {
		t.Fatalf("get video: %v", err)
	}
	if !v.OrphanedAt.IsZero() {
		t.Fatalf("expected orphaned_at cleared after restore")
	}
	if v.FilePath != "moved/clip.mp4" {
		t.Fatalf("expected restored path, got %q", v.FilePath)
	}
	if v.IndexStatus != statusBeforeOrphan {
		t.Fatalf("expected status restored to %s, got %s", statusBeforeOrphan, v.IndexStatus)
	}
	if v.StatusBeforeOrphan != "" {
		t.Fatalf("expected status_before_orphan cleared after restore, got %q", v.StatusBeforeOrphan)
	}
}

func TestCleanupExpiredRemovesOldOrphansOnly(t *testing.T) {
	ctx := context.Background()
	folder, err := storage.OpenFolderDBInMemory(ctx, "/videos/demo")
	if err != nil {
		t.Fatalf("open folder db: %v", err)
	}
	defer folder.Close()

	folderID, _ := folder.UpsertWatchedFolder(ctx, "/videos/demo", "", "")
	tx, _ := folder.BeginTx(ctx)
	videoID, _ := folder.UpsertVideoMetadata(ctx, tx, folderID, "gone.mp4", "gone.mp4", 10, 100, "h1", time.Now())
	folder.EndTx(tx, nil)
	if err := folder.MarkVideoOrphaned(ctx, videoID); err != nil {
		t.Fatalf("mark orphaned: %v", err)
	}

	// With a retention window far in the future, nothing is expired yet.
	farFuture := NewOrphanRecovery(folder, 365*24*time.Hour)
	n, err := farFuture.CleanupExpired(ctx, folderID)
	if err != nil {
		t.Fatalf("cleanup (not yet expired): %v", err)
	}
	if n != 0 {
		t.Fatalf("expected 0 removed, got %d", n)
	}

	// With a retention window of 0 (treated as default 30d, still not
	// expired since orphaned_at is "now"), use a negative-duration check
	// instead: anything orphaned before "now + 1h" counts as expired.
	alreadyExpired := NewOrphanRecovery(folder, -time.Hour)
	n2, err := alreadyExpired.CleanupExpired(ctx, folderID)
	if err != nil {
		t.Fatalf("cleanup (expired): %v", err)
	}
	if n2 != 1 {
		t.Fatalf("expected 1 removed, got %d", n2)
	}

	if _, err := folder.GetVideo(ctx, videoID); err == nil {
		t.Fatalf("expected video to be deleted after cleanup")
	}
}

func TestResetPlanGlobalOnlyListsFiles(t *testing.T) {
	ctx := context.Background()
	global, err := storage.OpenGlobalDBInMemory(ctx)
	if err != nil {
		t.Fatalf("open global db: %v", err)
	}
	defer global.Close()

	r := NewReset(global, "/support", "/support/vectors/clip.idx", "/support/vectors/text.idx")
	plan, err := r.Plan(ctx, ScopeGlobalOnly, "")
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	if !plan.DryRun {
		t.Fatalf("expected dry run plan")
	}
	if len(plan.FilesToRemove) != 3 {
		t.Fatalf("expected 3 files listed, got %v", plan.FilesToRemove)
	}
	if _, err := plan.YAML(); err != nil {
		t.Fatalf("render yaml: %v", err)
	}
}

func TestResetExecuteGlobalOnlyClearsDB(t *testing.T) {
	ctx := context.Background()
	global, err := storage.OpenGlobalDBInMemory(ctx)
	if err != nil {
		t.Fatalf("open global db: %v", err)
	}
	defer global.Close()

	tx, _ := global.BeginTx(ctx)
	global.UpsertGlobalVideo(ctx, tx, "/videos/demo", &storage.Video{ID: "v1", FilePath: "a.mp4", FileName: "a.mp4"})
	global.EndTx(tx, nil)

	r := NewReset(global, "/support", "", "")
	if err := r.Execute(ctx, ScopeGlobalOnly, ""); err != nil {
		t.Fatalf("execute: %v", err)
	}

	hits, err := global.SearchFTS(ctx, "a", 10)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(hits) != 0 {
		t.Fatalf("expected empty search index after global reset, got %d hits", len(hits))
	}
}
