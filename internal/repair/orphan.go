package repair

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"findit/internal/storage"
)

// DefaultOrphanRetention is the retention window before cleanup_expired
// hard-deletes an orphaned video, per §4.4.
const DefaultOrphanRetention = 30 * 24 * time.Hour

// OrphanRecovery manages the lifecycle of videos whose source file has
// disappeared from disk.
type OrphanRecovery struct {
	folder    *storage.FolderDB
	retention time.Duration
}

func NewOrphanRecovery(folder *storage.FolderDB, retention time.Duration) *OrphanRecovery {
	if retention == 0 {
		retention = DefaultOrphanRetention
	}
	return &OrphanRecovery{folder: folder, retention: retention}
}

// MarkMissing transitions a video to orphaned when its source file is
// confirmed gone from disk.
func (o *OrphanRecovery) MarkMissing(ctx context.Context, videoID string) error {
	if err := o.folder.MarkVideoOrphaned(ctx, videoID); err != nil {
		return fmt.Errorf("mark video %s orphaned: %w", videoID, err)
	}
	log.Info("video %s marked orphaned", videoID)
	return nil
}

// RestoreByHash restores an orphaned video whose content hash matches a
// file found at newPath, rewriting its path and clearing orphaned_at.
func (o *OrphanRecovery) RestoreByHash(ctx context.Context, videoID, newPath, candidateHash string) error {
	v, err := o.folder.GetVideo(ctx, videoID)
	if err != nil {
		return fmt.Errorf("read video %s: %w", videoID, err)
	}
	if v.OrphanedAt.IsZero() {
		return fmt.Errorf("video %s is not orphaned", videoID)
	}
	if v.FileHash == "" || v.FileHash != candidateHash {
		return fmt.Errorf("hash mismatch restoring video %s: stored %q, candidate %q", videoID, v.FileHash, candidateHash)
	}
	if err := o.folder.RestoreOrphanedVideo(ctx, videoID, newPath, filepath.Base(newPath)); err != nil {
		return fmt.Errorf("restore video %s: %w", videoID, err)
	}
	log.Info("video %s restored to %q after hash match", videoID, newPath)
	return nil
}

// CleanupExpired hard-deletes every orphaned video (and its clips, via
// cascade) whose retention window has elapsed. Returns the number removed.
func (o *OrphanRecovery) CleanupExpired(ctx context.Context, folderID string) (int, error) {
	cutoff := time.Now().Add(-o.retention)
	expired, err := o.folder.ListOrphansExpiredBefore(ctx, folderID, cutoff)
	if err != nil {
		return 0, fmt.Errorf("list expired orphans: %w", err)
	}
	for _, v := range expired {
		if err := o.folder.DeleteVideo(ctx, v.ID); err != nil {
			return 0, fmt.Errorf("delete expired orphan %s: %w", v.ID, err)
		}
	}
	if len(expired) > 0 {
		log.Info("cleaned up %d expired orphaned videos", len(expired))
	}
	return len(expired), nil
}
