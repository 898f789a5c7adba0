// Package indexer implements the layered indexing pipeline (C8): a five-
// stage state machine (Metadata, Scene, STT, Vision, Embeddings) that
// advances one Video at a time, checkpointing as it goes so a crash or
// cancellation resumes instead of restarting.
package indexer

import (
	"findit/internal/decoder"
	"findit/internal/providers"
	"findit/internal/ratelimit"
	"findit/internal/scene"
	"findit/internal/storage"
)

// Indexer drives one video through every layer against a single folder's
// FolderDB, calling out to the decoder registry and external providers the
// same way the teacher's Indexer called out to its database and fsnotify
// watcher.
type Indexer struct {
	db    *storage.FolderDB
	media *decoder.CompositeMediaService
	scene *scene.Detector

	stt      providers.STTProvider
	vision   providers.VisionProvider
	embedder providers.EmbeddingProvider

	rl     *ratelimit.RateLimiter
	netMon *ratelimit.NetworkMonitor

	workDir            func(videoID string) string
	sttSampleRate      int
	maxSTTSampleScenes int
}

// New builds an Indexer. Any of stt/vision/embedder may be nil, in which
// case that work is skipped rather than failing the video: a nil stt marks
// the video stt_skipped_no_audio, while a nil vision or embedder leaves the
// clips' descriptions or embeddings empty with no extra bookkeeping.
func New(
	db *storage.FolderDB,
	media *decoder.CompositeMediaService,
	sceneDetector *scene.Detector,
	stt providers.STTProvider,
	vision providers.VisionProvider,
	embedder providers.EmbeddingProvider,
	rl *ratelimit.RateLimiter,
	netMon *ratelimit.NetworkMonitor,
	workDir func(videoID string) string,
) *Indexer {
	return &Indexer{
		db: db, media: media, scene: sceneDetector,
		stt: stt, vision: vision, embedder: embedder,
		rl: rl, netMon: netMon, workDir: workDir,
		sttSampleRate: 16000, maxSTTSampleScenes: 5,
	}
}

// Outcome classifies how Process ended, distinct from a Go error so callers
// (the Scheduler) can tell a real failure from an intentional skip or a
// cooperative cancellation (§4.6/§4.7).
type Outcome string

const (
	OutcomeCompleted Outcome = "completed"
	OutcomeSkipped   Outcome = "skipped"
	OutcomeCancelled Outcome = "cancelled"
	OutcomeFailed    Outcome = "failed"
)

// Result is the per-video completion report the Scheduler aggregates across
// a run (§4.7).
type Result struct {
	VideoPath         string
	Outcome           Outcome
	ClipsCreated      int
	ClipsAnalyzed     int
	ClipsEmbedded     int
	STTSkippedNoAudio bool
	Error             error
}
