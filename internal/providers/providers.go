// Package providers declares the external-service contracts the layered
// indexer and search engine depend on (§6): scene detection, media
// services, speech-to-text, vision description, and embeddings. No
// concrete ML/cloud implementation lives here — that is explicitly out of
// scope; callers supply their own via these interfaces (e.g. a local model
// server, a vendor API client, or a decoder-backed fallback).
package providers

import (
	"context"
	"time"

	"findit/internal/decoder"
)

// SceneDetector abstracts decoder.SceneDetectable behind a provider seam so
// the indexer can depend on an interface rather than the decoder package
// directly, matching §6's provider boundary.
type SceneDetector interface {
	DetectScenes(ctx context.Context, path string, durationSec float64) ([]decoder.Scene, error)
}

// MediaService abstracts the subset of decoder.CompositeMediaService the
// indexer needs: probing, keyframes, and audio extraction.
type MediaService interface {
	Probe(ctx context.Context, path string) (decoder.ProbeResult, error)
	ExtractKeyframes(ctx context.Context, path string, times []float64, outDir string, maxDim int) ([]decoder.Keyframe, error)
	ExtractAudio(ctx context.Context, path, outPath string, sampleRate int) (string, error)
}

// TranscriptSegment is one STT output span with its recognized text.
type TranscriptSegment struct {
	StartSec float64
	EndSec   float64
	Text     string
}

// STTResult is one provider's transcription of an audio sample, used
// during language-detection majority voting (§4.6 L2).
type STTResult struct {
	Language   string
	Confidence float64
	Segments   []TranscriptSegment
}

// STTProvider transcribes an audio file, optionally pinned to a language
// (empty string means auto-detect).
type STTProvider interface {
	Transcribe(ctx context.Context, audioPath, language string) (STTResult, error)
}

// VisionDescriptor is the structured output Layer 3 persists per clip.
type VisionDescriptor struct {
	Scene, Subjects, Actions, Objects string
	Mood, ShotType, Lighting, Colors  string
	Description                       string
	Tags                              []string
}

// VisionProvider describes a clip from its extracted keyframes.
type VisionProvider interface {
	Describe(ctx context.Context, keyframePaths []string) (VisionDescriptor, error)
}

// EmbeddingProvider turns composed text into a fixed-dimension vector,
// naming itself so the stored embedding_model column can record provenance.
type EmbeddingProvider interface {
	Name() string
	Embed(ctx context.Context, text string) ([]float32, error)
}

// VectorIndex is an external nearest-neighbor index over an embedding
// space (CLIP-image or text). The search engine (C11) never performs
// neural work itself — callers supply the two vector-hit lists it fuses,
// typically produced by querying a VectorIndex like this one.
type VectorIndex interface {
	Upsert(ctx context.Context, clipID string, embedding []float32) error
	Delete(ctx context.Context, clipID string) error
	Query(ctx context.Context, embedding []float32, limit int) ([]VectorHit, error)
}

// VectorHit is one nearest-neighbor result, similarity normalized to [0,1].
type VectorHit struct {
	ClipID     string
	Similarity float64
}

// CallTimeout bounds a single provider HTTP call, per §5's suspension-point
// requirement that external calls are cancellation-safe and time-bounded.
const CallTimeout = 30 * time.Second
