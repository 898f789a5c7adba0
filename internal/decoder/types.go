// Package decoder implements the Media Decoder interface and registry (C1):
// a priority-sorted, probe-score-based composite service over several
// concrete backends. Subprocess invocation follows CineVault's ffprobe.go
// (exec.Command with -print_format json, parsed into a typed result).
package decoder

import "context"

// ProbeResult describes what a decoder found when asked whether (and how
// well) it can handle a file. Score 0 means "cannot handle" (§4.1).
type ProbeResult struct {
	Score      int
	MediaType  string
	Container  string
	Codec      string
	DurationSec float64
	HasDuration bool
	Width       int
	Height      int
	HasResolution bool
	FPS         float64
	HasFPS      bool
	HasAudio    bool
}

// Keyframe is one extracted frame, or a null entry (empty Path) when that
// specific timestamp failed to extract (§4.1: best-effort, per-frame).
type Keyframe struct {
	TimeSec float64
	Path    string
	Err     error
}

// Capability is the static {extensions, name, priority} tuple a decoder
// advertises to the registry.
type Capability struct {
	Name          string
	FileExtensions []string // lowercase, with leading dot, e.g. ".mp4"
	Priority      int
}

// MediaDecoder is the core four-operation capability every backend
// implements (§4.1).
type MediaDecoder interface {
	Capability() Capability
	Probe(ctx context.Context, path string) (ProbeResult, error)
	ExtractKeyframes(ctx context.Context, path string, times []float64, outDir string, maxDim int) ([]Keyframe, error)
	ExtractAudio(ctx context.Context, path, outPath string, sampleRate int) (string, error)
}

// Scene is one non-overlapping [Start,End) segment of scene detection output.
type Scene struct {
	Start float64
	End   float64
}

// SceneDetectable is an orthogonal capability: decoders that cannot segment
// a video forward to one that can (§4.1).
type SceneDetectable interface {
	DetectScenes(ctx context.Context, path string, durationSec float64) ([]Scene, error)
}
