// Package sync implements the Sync Engine (C5): incremental, idempotent
// replication of folder-DB rows into the shared global DB, keyed by
// monotonic rowid watermarks. Batch shape and the UPSERT-by-watermark
// approach follow the teacher's BeginBatch/EndBatch transaction helpers in
// database.go, generalized from a single DB to a folder→global pair.
package sync

import (
	"context"
	"fmt"

	"findit/internal/logging"
	"findit/internal/metrics"
	"findit/internal/storage"
)

const batchSize = 500

var log = logging.For("sync")

// Engine replicates one folder DB into the shared global DB.
type Engine struct {
	folder *storage.FolderDB
	global *storage.GlobalDB
	path   string // folder_path key used in sync_meta and global mirror rows
}

// New returns a Sync Engine bound to a specific folder/global DB pair.
func New(folder *storage.FolderDB, global *storage.GlobalDB, folderPath string) *Engine {
	return &Engine{folder: folder, global: global, path: folderPath}
}

// Run performs one incremental sync pass: videos then clips, each in
// batches of up to 500, advancing sync_meta's watermark after each batch
// that made progress. Safe to call repeatedly; a pass with nothing new to
// replicate touches zero rows and leaves watermarks unchanged (§4.3).
func (e *Engine) Run(ctx context.Context) error {
	meta, err := e.global.GetSyncMeta(ctx, e.path)
	if err != nil {
		return fmt.Errorf("read sync_meta: %w", err)
	}

	videoWatermark := meta.LastVideoRowID
	videoRows := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		videos, rowids, err := e.folder.VideosSince(ctx, videoWatermark, batchSize)
		if err != nil {
			return fmt.Errorf("read videos since %d: %w", videoWatermark, err)
		}
		if len(videos) == 0 {
			break
		}

		tx, err := e.global.BeginTx(ctx)
		if err != nil {
			return fmt.Errorf("begin video sync batch: %w", err)
		}
		for _, v := range videos {
			if err := e.global.UpsertGlobalVideo(ctx, tx, e.path, v); err != nil {
				e.global.EndTx(tx, err)
				return fmt.Errorf("upsert global video %s: %w", v.ID, err)
			}
		}
		newWatermark := rowids[len(rowids)-1]
		if err := e.global.AdvanceSyncMeta(ctx, tx, e.path, newWatermark, meta.LastClipRowID, meta.VolumeIdentity); err != nil {
			e.global.EndTx(tx, err)
			return fmt.Errorf("advance video watermark: %w", err)
		}
		if err := e.global.EndTx(tx, nil); err != nil {
			return fmt.Errorf("commit video sync batch: %w", err)
		}

		videoWatermark = newWatermark
		videoRows += len(videos)
		metrics.SyncRowsUpserted.WithLabelValues("videos").Add(float64(len(videos)))

		if len(videos) < batchSize {
			break
		}
	}

	clipWatermark := meta.LastClipRowID
	clipRows := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		clips, rowids, err := e.folder.ClipsSince(ctx, clipWatermark, batchSize)
		if err != nil {
			return fmt.Errorf("read clips since %d: %w", clipWatermark, err)
		}
		if len(clips) == 0 {
			break
		}

		tx, err := e.global.BeginTx(ctx)
		if err != nil {
			return fmt.Errorf("begin clip sync batch: %w", err)
		}
		for _, c := range clips {
			if err := e.global.UpsertGlobalClip(ctx, tx, e.path, c); err != nil {
				e.global.EndTx(tx, err)
				return fmt.Errorf("upsert global clip %s: %w", c.ID, err)
			}
		}
		newWatermark := rowids[len(rowids)-1]
		if err := e.global.AdvanceSyncMeta(ctx, tx, e.path, videoWatermark, newWatermark, meta.VolumeIdentity); err != nil {
			e.global.EndTx(tx, err)
			return fmt.Errorf("advance clip watermark: %w", err)
		}
		if err := e.global.EndTx(tx, nil); err != nil {
			return fmt.Errorf("commit clip sync batch: %w", err)
		}

		clipWatermark = newWatermark
		clipRows += len(clips)
		metrics.SyncRowsUpserted.WithLabelValues("clips").Add(float64(len(clips)))

		if len(clips) < batchSize {
			break
		}
	}

	status := "noop"
	if videoRows > 0 || clipRows > 0 {
		status = "synced"
	}
	metrics.SyncRunsTotal.WithLabelValues(status).Inc()
	metrics.SyncWatermark.WithLabelValues(e.path, "videos").Set(float64(videoWatermark))
	metrics.SyncWatermark.WithLabelValues(e.path, "clips").Set(float64(clipWatermark))
	log.Debug("sync pass for %s: %d videos, %d clips replicated", e.path, videoRows, clipRows)
	return nil
}

// ForceSync resets this folder's watermarks to zero so the next Run
// re-upserts every row — used after bulk embedding refills that change
// payload but not rowids.
func (e *Engine) ForceSync(ctx context.Context) error {
	if err := e.global.ResetSyncMeta(ctx, e.path); err != nil {
		return fmt.Errorf("reset sync_meta: %w", err)
	}
	return e.Run(ctx)
}

// RemoveFolderData deletes every global row mirrored from this folder and
// clears its sync_meta entry, as a single transaction (§4.3's only
// destructive operation).
func (e *Engine) RemoveFolderData(ctx context.Context) error {
	if err := e.global.DeleteFolderData(ctx, e.path); err != nil {
		return fmt.Errorf("remove folder data for %s: %w", e.path, err)
	}
	return nil
}
