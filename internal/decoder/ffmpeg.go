package decoder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"findit/internal/apperrors"
	"findit/internal/metrics"
)

// FFmpegDecoder is the general-purpose backend (priority ~50), shelling out
// to ffprobe/ffmpeg the way CineVault's FFprobe wrapper does: JSON-formatted
// probes, plain subprocess calls for extraction.
type FFmpegDecoder struct {
	FFprobePath string
	FFmpegPath  string
}

// NewFFmpegDecoder defaults to "ffprobe"/"ffmpeg" resolved via PATH.
func NewFFmpegDecoder() *FFmpegDecoder {
	return &FFmpegDecoder{FFprobePath: "ffprobe", FFmpegPath: "ffmpeg"}
}

func (f *FFmpegDecoder) Capability() Capability {
	return Capability{
		Name:     "ffmpeg",
		Priority: 50,
		FileExtensions: []string{
			".mp4", ".mov", ".mkv", ".avi", ".webm", ".m4v", ".mxf", ".ts",
		},
	}
}

type ffprobeFormat struct {
	Duration string `json:"duration"`
	FormatName string `json:"format_name"`
}

type ffprobeStream struct {
	CodecType string `json:"codec_type"`
	CodecName string `json:"codec_name"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
	RFrameRate string `json:"r_frame_rate"`
}

type ffprobeOutput struct {
	Format  ffprobeFormat   `json:"format"`
	Streams []ffprobeStream `json:"streams"`
}

func (f *FFmpegDecoder) Probe(ctx context.Context, path string) (ProbeResult, error) {
	cmd := exec.CommandContext(ctx, f.FFprobePath, "-v", "quiet", "-print_format", "json",
		"-show_format", "-show_streams", path)
	var stdout bytes.Buffer
	cmd.Stdout = &stdout
	if err := cmd.Run(); err != nil {
		if _, ok := err.(*exec.Error); ok {
			return ProbeResult{Score: 0}, nil // ffprobe not on PATH: not a hard failure, just no support
		}
		return ProbeResult{Score: 0}, nil
	}

	var out ffprobeOutput
	if err := json.Unmarshal(stdout.Bytes(), &out); err != nil {
		return ProbeResult{Score: 0}, fmt.Errorf("%w: %v", apperrors.ErrOutputNotParseable, err)
	}

	result := ProbeResult{Score: 60, MediaType: "video", Container: out.Format.FormatName}
	if d, err := strconv.ParseFloat(out.Format.Duration, 64); err == nil {
		result.DurationSec = d
		result.HasDuration = true
	}
	for _, s := range out.Streams {
		switch s.CodecType {
		case "video":
			result.Codec = s.CodecName
			result.Width = s.Width
			result.Height = s.Height
			result.HasResolution = s.Width > 0 && s.Height > 0
			if fps, ok := parseFrameRate(s.RFrameRate); ok {
				result.FPS = fps
				result.HasFPS = true
			}
		case "audio":
			result.HasAudio = true
		}
	}
	if result.Codec == "" {
		return ProbeResult{Score: 0}, nil
	}
	return result, nil
}

func parseFrameRate(s string) (float64, bool) {
	parts := strings.SplitN(s, "/", 2)
	if len(parts) != 2 {
		return 0, false
	}
	num, err1 := strconv.ParseFloat(parts[0], 64)
	den, err2 := strconv.ParseFloat(parts[1], 64)
	if err1 != nil || err2 != nil || den == 0 {
		return 0, false
	}
	return num / den, true
}

func (f *FFmpegDecoder) ExtractKeyframes(ctx context.Context, path string, times []float64, outDir string, maxDim int) ([]Keyframe, error) {
	out := make([]Keyframe, len(times))
	for i, t := range times {
		name := filepath.Join(outDir, fmt.Sprintf("frame_%05d.jpg", i))
		scale := fmt.Sprintf("scale='if(gt(iw,ih),%d,-2)':'if(gt(iw,ih),-2,%d)'", maxDim, maxDim)
		cmd := exec.CommandContext(ctx, f.FFmpegPath, "-y", "-ss", fmt.Sprintf("%.3f", t),
			"-i", path, "-frames:v", "1", "-vf", scale, name)
		if err := cmd.Run(); err != nil {
			out[i] = Keyframe{TimeSec: t, Err: fmt.Errorf("%w: frame at %.3fs: %v", apperrors.ErrDecodeFailed, t, err)}
			continue
		}
		out[i] = Keyframe{TimeSec: t, Path: name}
		metrics.KeyframesExtractedTotal.Inc()
	}
	return out, nil
}

func (f *FFmpegDecoder) ExtractAudio(ctx context.Context, path, outPath string, sampleRate int) (string, error) {
	cmd := exec.CommandContext(ctx, f.FFmpegPath, "-y", "-i", path, "-vn",
		"-ar", strconv.Itoa(sampleRate), "-ac", "1", outPath)
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("%w: %v", apperrors.ErrDecodeFailed, err)
	}
	return outPath, nil
}

var sceneTimeRe = regexp.MustCompile(`pts_time:([0-9.]+)`)

// DetectScenes runs ffmpeg's scene-change filter and turns the reported cut
// timestamps into non-overlapping [start,end) segments covering
// [0,durationSec], satisfying §4.1's segmentation invariant.
func (f *FFmpegDecoder) DetectScenes(ctx context.Context, path string, durationSec float64) ([]Scene, error) {
	cmd := exec.CommandContext(ctx, f.FFmpegPath, "-i", path,
		"-filter:v", "select='gt(scene,0.4)',showinfo", "-f", "null", "-")
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	_ = cmd.Run() // ffmpeg with -f null exits non-zero on some builds even on success; rely on parsed output

	var cuts []float64
	for _, m := range sceneTimeRe.FindAllStringSubmatch(stderr.String(), -1) {
		if t, err := strconv.ParseFloat(m[1], 64); err == nil {
			cuts = append(cuts, t)
		}
	}

	if durationSec <= 0 {
		return nil, fmt.Errorf("%w: unknown duration", apperrors.ErrSceneDetectionUnsupported)
	}

	boundaries := append([]float64{0}, cuts...)
	boundaries = append(boundaries, durationSec)

	scenes := make([]Scene, 0, len(boundaries)-1)
	for i := 0; i < len(boundaries)-1; i++ {
		start, end := boundaries[i], boundaries[i+1]
		if end <= start {
			continue
		}
		scenes = append(scenes, Scene{Start: start, End: end})
	}
	if len(scenes) == 0 {
		scenes = append(scenes, Scene{Start: 0, End: durationSec})
	}
	return scenes, nil
}
