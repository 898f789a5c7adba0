package indexer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"findit/internal/apperrors"
	"findit/internal/logging"
	"findit/internal/mediatypes"
	"findit/internal/metrics"
	"findit/internal/providers"
	"findit/internal/storage"
)

var log = logging.For("indexer")

// Process advances video through every remaining layer, resuming from its
// current index_layer unless force is set, in which case it rewinds to
// layer 0 and rebuilds from scratch (§4.6).
func (ix *Indexer) Process(ctx context.Context, folderID string, video *storage.Video, force bool) Result {
	result := Result{VideoPath: video.FilePath}

	action, err := ix.triageEntry(ctx, video, force)
	if err != nil {
		result.Outcome = OutcomeFailed
		result.Error = err
		ix.db.MarkVideoFailed(ctx, video.ID, err)
		metrics.IndexerVideosProcessed.WithLabelValues(string(OutcomeFailed)).Inc()
		return result
	}
	switch action {
	case entrySkip:
		result.Outcome = OutcomeSkipped
		metrics.IndexerVideosProcessed.WithLabelValues(string(OutcomeSkipped)).Inc()
		return result
	case entryBackfillOnly:
		result.Outcome = OutcomeCompleted
		metrics.IndexerVideosProcessed.WithLabelValues(string(OutcomeCompleted)).Inc()
		return result
	}

	work := ix.workDir(video.ID)
	if err := os.MkdirAll(work, 0o755); err != nil {
		return ix.fail(ctx, video, result, fmt.Errorf("create work dir: %w", err))
	}

	if video.IndexLayer < mediatypes.LayerMetadata {
		if err := ix.runMetadataLayer(ctx, folderID, video); err != nil {
			return ix.fail(ctx, video, result, err)
		}
	}

	if video.IndexLayer < mediatypes.LayerScene {
		created, err := ix.runSceneLayer(ctx, video, work)
		if err != nil {
			return ix.fail(ctx, video, result, err)
		}
		result.ClipsCreated = created
	}

	if ctx.Err() != nil {
		result.Outcome = OutcomeCancelled
		metrics.IndexerVideosProcessed.WithLabelValues(string(OutcomeCancelled)).Inc()
		return result
	}

	if video.IndexLayer < mediatypes.LayerSTT {
		skipped, err := ix.runSTTLayer(ctx, video, work)
		if err != nil {
			return ix.fail(ctx, video, result, err)
		}
		result.STTSkippedNoAudio = skipped
	}

	if ctx.Err() != nil {
		result.Outcome = OutcomeCancelled
		metrics.IndexerVideosProcessed.WithLabelValues(string(OutcomeCancelled)).Inc()
		return result
	}

	analyzed, embedded, cancelled, err := ix.runVisionEmbeddingLayer(ctx, video)
	if err != nil {
		return ix.fail(ctx, video, result, err)
	}
	result.ClipsAnalyzed = analyzed
	result.ClipsEmbedded = embedded
	if cancelled {
		result.Outcome = OutcomeCancelled
		metrics.IndexerVideosProcessed.WithLabelValues(string(OutcomeCancelled)).Inc()
		return result
	}

	result.Outcome = OutcomeCompleted
	metrics.IndexerVideosProcessed.WithLabelValues(string(OutcomeCompleted)).Inc()
	log.Info("indexed %s (%s, %.0fs): %d clips, %d analyzed, %d embedded",
		video.FilePath, humanize.Bytes(uint64(video.FileSizeBytes)), video.DurationSeconds,
		result.ClipsCreated, result.ClipsAnalyzed, result.ClipsEmbedded)
	return result
}

func (ix *Indexer) fail(ctx context.Context, video *storage.Video, result Result, err error) Result {
	if errors.Is(err, apperrors.ErrCancelled) || errors.Is(err, context.Canceled) {
		result.Outcome = OutcomeCancelled
		metrics.IndexerVideosProcessed.WithLabelValues(string(OutcomeCancelled)).Inc()
		return result
	}
	result.Outcome = OutcomeFailed
	result.Error = err
	if markErr := ix.db.MarkVideoFailed(ctx, video.ID, err); markErr != nil {
		log.Warn("failed to record failure for %s: %v", video.FilePath, markErr)
	}
	metrics.IndexerVideosProcessed.WithLabelValues(string(OutcomeFailed)).Inc()
	return result
}

type entryAction int

const (
	entryReindex entryAction = iota
	entrySkip
	entryBackfillOnly
)

// triageEntry implements the resolved Open Question on change detection: a
// size difference forces a full rebuild; an mtime-only difference recomputes
// the hash and, if it still matches, stays completed and returns
// entryBackfillOnly; the new mod_time is set on the in-memory video only
// (UpdateVideoIndexState does not write mod_time), so the stored row keeps
// its old mod_time and the hash is recomputed on later passes — a mismatch means the content actually changed despite the
// size staying put, so it forces a full rebuild too. An unchanged file skips
// entirely. A forced reindex always rewinds to layer 0 regardless of state.
func (ix *Indexer) triageEntry(ctx context.Context, video *storage.Video, force bool) (entryAction, error) {
	info, err := os.Stat(video.FilePath)
	if err != nil {
		return entrySkip, nil // missing file: orphan recovery handles this, not the indexer
	}

	if force {
		return ix.resetForReindex(ctx, video)
	}

	if video.IndexStatus != mediatypes.StatusCompleted {
		return entryReindex, nil
	}

	if info.Size() != video.FileSizeBytes {
		video.FileSizeBytes = info.Size()
		return ix.resetForReindex(ctx, video)
	}

	if info.ModTime().Unix() != video.ModTime.Unix() {
		hash, err := hashFile(video.FilePath)
		if err != nil {
			return entrySkip, err
		}
		if hash != video.FileHash {
			return ix.resetForReindex(ctx, video)
		}
		video.ModTime = info.ModTime()
		if err := ix.db.UpdateVideoIndexState(ctx, video.ID, mediatypes.StatusCompleted, video.IndexLayer, video.LastProcessedClip); err != nil {
			return entrySkip, err
		}
		return entryBackfillOnly, nil
	}

	return entrySkip, nil
}

func (ix *Indexer) resetForReindex(ctx context.Context, video *storage.Video) (entryAction, error) {
	tx, err := ix.db.BeginTx(ctx)
	if err != nil {
		return entrySkip, err
	}
	if err := ix.db.DeleteAllClipsForVideo(ctx, tx, video.ID); err != nil {
		return entrySkip, ix.db.EndTx(tx, err)
	}
	if err := ix.db.ResetVideoForReindex(ctx, tx, video.ID); err != nil {
		return entrySkip, ix.db.EndTx(tx, err)
	}
	if err := ix.db.EndTx(tx, nil); err != nil {
		return entrySkip, err
	}
	video.IndexLayer = mediatypes.LayerNone
	video.IndexStatus = mediatypes.StatusPending
	video.LastProcessedClip = ""
	video.FileHash = ""
	return entryReindex, nil
}

func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// runMetadataLayer probes the file and upserts its duration/size/hash.
func (ix *Indexer) runMetadataLayer(ctx context.Context, folderID string, video *storage.Video) error {
	start := time.Now()
	defer func() { metrics.IndexerLayerDuration.WithLabelValues("metadata").Observe(time.Since(start).Seconds()) }()

	probe, err := ix.media.Probe(ctx, video.FilePath)
	if err != nil {
		return fmt.Errorf("probe: %w", err)
	}
	info, err := os.Stat(video.FilePath)
	if err != nil {
		return fmt.Errorf("stat: %w", err)
	}
	hash, err := hashFile(video.FilePath)
	if err != nil {
		return fmt.Errorf("hash: %w", err)
	}

	tx, err := ix.db.BeginTx(ctx)
	if err != nil {
		return err
	}
	id, err := ix.db.UpsertVideoMetadata(ctx, tx, folderID, video.FilePath, filepath.Base(video.FilePath),
		probe.DurationSec, info.Size(), hash, info.ModTime())
	if err != nil {
		return ix.db.EndTx(tx, err)
	}
	if err := ix.db.EndTx(tx, nil); err != nil {
		return err
	}

	video.ID = id
	video.DurationSeconds = probe.DurationSec
	video.FileSizeBytes = info.Size()
	video.FileHash = hash
	video.ModTime = info.ModTime()
	video.IndexLayer = mediatypes.LayerMetadata
	video.IndexStatus = mediatypes.StatusMetadataDone
	return nil
}

// runSceneLayer detects scenes, extracts keyframes, and inserts one clip per
// scene. A decoder that cannot segment video surfaces
// scene_detection_unsupported as a terminal failure (§4.6).
func (ix *Indexer) runSceneLayer(ctx context.Context, video *storage.Video, work string) (int, error) {
	start := time.Now()
	defer func() { metrics.IndexerLayerDuration.WithLabelValues("scene").Observe(time.Since(start).Seconds()) }()

	segments, err := ix.scene.Detect(ctx, video.FilePath, video.DurationSeconds, work)
	if err != nil {
		return 0, err
	}

	tx, err := ix.db.BeginTx(ctx)
	if err != nil {
		return 0, err
	}
	created := 0
	for _, seg := range segments {
		thumb := ""
		if len(seg.Keyframes) > 0 && seg.Keyframes[0].Path != "" {
			thumb = seg.Keyframes[0].Path
		}
		if _, err := ix.db.InsertClip(ctx, tx, video.ID, seg.Start, seg.End, thumb); err != nil {
			return created, ix.db.EndTx(tx, err)
		}
		created++
	}
	if err := ix.db.EndTx(tx, nil); err != nil {
		return created, err
	}

	if err := ix.db.UpdateVideoIndexState(ctx, video.ID, mediatypes.StatusMetadataDone, mediatypes.LayerScene, ""); err != nil {
		return created, err
	}
	video.IndexLayer = mediatypes.LayerScene
	metrics.IndexerClipsCommitted.Add(float64(created))
	return created, nil
}

// runSTTLayer extracts audio, transcribes it, writes the SRT sidecar, and
// maps each transcript segment onto the clips it overlaps (§4.6). Returns
// true if the video had no audio track (an intentional skip, not a failure).
func (ix *Indexer) runSTTLayer(ctx context.Context, video *storage.Video, work string) (bool, error) {
	start := time.Now()
	defer func() { metrics.IndexerLayerDuration.WithLabelValues("stt").Observe(time.Since(start).Seconds()) }()

	if ix.stt == nil {
		return ix.skipSTT(ctx, video)
	}

	audioPath := filepath.Join(work, "audio.wav")
	if _, err := ix.media.ExtractAudio(ctx, video.FilePath, audioPath, ix.sttSampleRate); err != nil {
		return ix.skipSTT(ctx, video)
	}

	if err := ix.awaitProvider(ctx); err != nil {
		return false, err
	}
	result, err := ix.transcribe(ctx, audioPath, "")
	if err != nil {
		return false, fmt.Errorf("transcribe: %w", err)
	}

	samples := make([]sampleVote, 0, ix.maxSTTSampleScenes)
	for i, seg := range result.Segments {
		if i >= ix.maxSTTSampleScenes {
			break
		}
		samples = append(samples, sampleVote{language: result.Language, confidence: result.Confidence, text: seg.Text})
	}
	detectedLanguage, confidence := voteLanguage(samples, ix.maxSTTSampleScenes)
	if detectedLanguage != "" && detectedLanguage != result.Language {
		log.Debug("stt majority vote (%s, conf %.2f) disagreed with provider language %s for %s", detectedLanguage, confidence, result.Language, video.FilePath)
	}

	srtPath := filepath.Join(work, "subtitles.srt")
	if err := writeSRT(srtPath, result.Segments); err != nil {
		log.Warn("failed to write SRT for %s: %v", video.FilePath, err)
	} else if err := ix.db.UpdateVideoSRTPath(ctx, video.ID, srtPath); err != nil {
		return false, err
	}

	clips, err := ix.db.ListClipsForVideo(ctx, video.ID)
	if err != nil {
		return false, err
	}
	tx, err := ix.db.BeginTx(ctx)
	if err != nil {
		return false, err
	}
	for _, clip := range clips {
		transcript := transcriptForClip(clip.StartSec, clip.EndSec, result.Segments)
		if transcript == "" {
			continue
		}
		if err := ix.db.UpdateClipSTT(ctx, tx, clip.ID, transcript); err != nil {
			return false, ix.db.EndTx(tx, err)
		}
	}
	if err := ix.db.EndTx(tx, nil); err != nil {
		return false, err
	}

	if err := ix.db.UpdateVideoIndexState(ctx, video.ID, mediatypes.StatusSTTDone, mediatypes.LayerSTT, ""); err != nil {
		return false, err
	}
	video.IndexLayer = mediatypes.LayerSTT
	return false, nil
}

func (ix *Indexer) skipSTT(ctx context.Context, video *storage.Video) (bool, error) {
	if err := ix.db.MarkVideoSTTSkipped(ctx, video.ID); err != nil {
		return true, err
	}
	if err := ix.db.UpdateVideoIndexState(ctx, video.ID, mediatypes.StatusSTTDone, mediatypes.LayerSTT, ""); err != nil {
		return true, err
	}
	video.IndexLayer = mediatypes.LayerSTT
	video.STTSkippedNoAudio = true
	return true, nil
}

// transcriptForClip concatenates every segment overlapping [start,end) with
// a single space, per §4.6's mapping rule.
func transcriptForClip(start, end float64, segments []providers.TranscriptSegment) string {
	var parts []string
	for _, seg := range segments {
		if seg.EndSec <= start || seg.StartSec >= end {
			continue
		}
		text := strings.TrimSpace(seg.Text)
		if text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, " ")
}

// runVisionEmbeddingLayer processes each remaining clip's vision description
// and embedding, checkpointing last_processed_clip after every clip so a
// crash resumes at clip granularity rather than restarting the video (§4.6).
func (ix *Indexer) runVisionEmbeddingLayer(ctx context.Context, video *storage.Video) (analyzed, embedded int, cancelled bool, err error) {
	start := time.Now()
	defer func() { metrics.IndexerLayerDuration.WithLabelValues("vision_embeddings").Observe(time.Since(start).Seconds()) }()

	clips, err := ix.db.ListClipsForVideo(ctx, video.ID)
	if err != nil {
		return 0, 0, false, err
	}

	startIdx := 0
	if video.LastProcessedClip != "" {
		for i, c := range clips {
			if c.ID == video.LastProcessedClip {
				startIdx = i + 1
				break
			}
		}
	}

	for _, clip := range clips[startIdx:] {
		if ctx.Err() != nil {
			return analyzed, embedded, true, nil
		}

		if ix.vision != nil && clip.Description == "" {
			if err := ix.awaitProvider(ctx); err != nil {
				return analyzed, embedded, false, err
			}
			desc, err := ix.describe(ctx, clip.ThumbnailPath)
			if err != nil {
				return analyzed, embedded, false, fmt.Errorf("vision describe: %w", err)
			}
			tx, err := ix.db.BeginTx(ctx)
			if err != nil {
				return analyzed, embedded, false, err
			}
			if err := ix.db.UpdateClipVision(ctx, tx, clip.ID, desc.Scene, desc.Subjects, desc.Actions, desc.Objects,
				desc.Mood, desc.ShotType, desc.Lighting, desc.Colors, desc.Description, desc.Tags); err != nil {
				return analyzed, embedded, false, ix.db.EndTx(tx, err)
			}
			if err := ix.db.EndTx(tx, nil); err != nil {
				return analyzed, embedded, false, err
			}
			clip.Scene, clip.Subjects, clip.Actions, clip.Objects = desc.Scene, desc.Subjects, desc.Actions, desc.Objects
			clip.Mood, clip.ShotType, clip.Lighting, clip.Colors = desc.Mood, desc.ShotType, desc.Lighting, desc.Colors
			clip.Description, clip.Tags = desc.Description, desc.Tags
			analyzed++
		}

		if ix.embedder != nil && !clip.HasEmbedding() {
			text := composeEmbeddingText(clip)
			if text != "" {
				if err := ix.awaitProvider(ctx); err != nil {
					return analyzed, embedded, false, err
				}
				vec, err := ix.embed(ctx, text)
				if err != nil {
					return analyzed, embedded, false, fmt.Errorf("embed: %w", err)
				}
				tx, err := ix.db.BeginTx(ctx)
				if err != nil {
					return analyzed, embedded, false, err
				}
				if err := ix.db.UpdateClipEmbedding(ctx, tx, clip.ID, vec, ix.embedder.Name()); err != nil {
					return analyzed, embedded, false, ix.db.EndTx(tx, err)
				}
				if err := ix.db.EndTx(tx, nil); err != nil {
					return analyzed, embedded, false, err
				}
				embedded++
			}
		}

		if err := ix.db.UpdateVideoIndexState(ctx, video.ID, mediatypes.StatusSTTDone, mediatypes.LayerSTT, clip.ID); err != nil {
			return analyzed, embedded, false, err
		}
		video.LastProcessedClip = clip.ID
	}

	if err := ix.db.UpdateVideoIndexState(ctx, video.ID, mediatypes.StatusCompleted, mediatypes.LayerVision, video.LastProcessedClip); err != nil {
		return analyzed, embedded, false, err
	}
	video.IndexLayer = mediatypes.LayerVision
	video.IndexStatus = mediatypes.StatusCompleted
	return analyzed, embedded, false, nil
}

// composeEmbeddingText joins every non-empty descriptor field with a
// newline in scene/description/transcript/tags/user_tags order, trimmed.
// An empty result means the clip has nothing worth embedding and is
// skipped (§4.6).
func composeEmbeddingText(clip *storage.Clip) string {
	var parts []string
	if clip.Scene != "" {
		parts = append(parts, clip.Scene)
	}
	if clip.Description != "" {
		parts = append(parts, clip.Description)
	}
	if clip.Transcript != "" {
		parts = append(parts, clip.Transcript)
	}
	if len(clip.Tags) > 0 {
		parts = append(parts, strings.Join(clip.Tags, ", "))
	}
	if len(clip.UserTags) > 0 {
		parts = append(parts, strings.Join(clip.UserTags, ", "))
	}
	return strings.TrimSpace(strings.Join(parts, "\n"))
}

// awaitProvider waits out any active network disconnection before a
// provider call, cancellation-safe per §5's suspension-point requirement.
func (ix *Indexer) awaitProvider(ctx context.Context) error {
	if ix.netMon == nil {
		return nil
	}
	return ix.netMon.WaitForConnection(ctx, providers.CallTimeout)
}

// transcribe calls the STT provider under the rate limiter, retrying once
// more after a reported rate limit before giving up — rate-limit responses
// are not counted as indexer failures (§4.5/§4.6/§7).
func (ix *Indexer) transcribe(ctx context.Context, audioPath, language string) (providers.STTResult, error) {
	for attempt := 0; attempt < 2; attempt++ {
		if ix.rl != nil {
			if err := ix.rl.Acquire(ctx); err != nil {
				return providers.STTResult{}, err
			}
		}
		result, err := ix.stt.Transcribe(ctx, audioPath, language)
		if err == nil {
			if ix.rl != nil {
				ix.rl.ReportSuccess()
			}
			return result, nil
		}
		if errors.Is(err, apperrors.ErrRateLimitExceeded) && ix.rl != nil {
			ix.rl.ReportRateLimit()
			continue
		}
		return providers.STTResult{}, err
	}
	return providers.STTResult{}, apperrors.ErrRateLimitExceeded
}

func (ix *Indexer) describe(ctx context.Context, keyframePath string) (providers.VisionDescriptor, error) {
	var keyframes []string
	if keyframePath != "" {
		keyframes = []string{keyframePath}
	}
	for attempt := 0; attempt < 2; attempt++ {
		if ix.rl != nil {
			if err := ix.rl.Acquire(ctx); err != nil {
				return providers.VisionDescriptor{}, err
			}
		}
		desc, err := ix.vision.Describe(ctx, keyframes)
		if err == nil {
			if ix.rl != nil {
				ix.rl.ReportSuccess()
			}
			return desc, nil
		}
		if errors.Is(err, apperrors.ErrRateLimitExceeded) && ix.rl != nil {
			ix.rl.ReportRateLimit()
			continue
		}
		return providers.VisionDescriptor{}, err
	}
	return providers.VisionDescriptor{}, apperrors.ErrRateLimitExceeded
}

func (ix *Indexer) embed(ctx context.Context, text string) ([]float32, error) {
	for attempt := 0; attempt < 2; attempt++ {
		if ix.rl != nil {
			if err := ix.rl.Acquire(ctx); err != nil {
				return nil, err
			}
		}
		vec, err := ix.embedder.Embed(ctx, text)
		if err == nil {
			if ix.rl != nil {
				ix.rl.ReportSuccess()
			}
			return vec, nil
		}
		if errors.Is(err, apperrors.ErrRateLimitExceeded) && ix.rl != nil {
			ix.rl.ReportRateLimit()
			continue
		}
		return nil, err
	}
	return nil, apperrors.ErrRateLimitExceeded
}
