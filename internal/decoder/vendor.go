package decoder

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"

	"findit/internal/apperrors"
)

// vendorCLIDecoder is the shared shape of the BRAW/RED bridges: each wraps a
// vendor-supplied command-line tool, probing for its presence on PATH and
// silently degrading to score 0 when absent (§4.1).
type vendorCLIDecoder struct {
	name       string
	priority   int
	extensions []string
	toolPath   string
	infoArgs   func(path string) []string
	frameArgs  func(path string, timeSec float64, outPath string, maxDim int) []string
}

func (v *vendorCLIDecoder) Capability() Capability {
	return Capability{Name: v.name, Priority: v.priority, FileExtensions: v.extensions}
}

func (v *vendorCLIDecoder) toolAvailable() bool {
	_, err := exec.LookPath(v.toolPath)
	return err == nil
}

func (v *vendorCLIDecoder) Probe(ctx context.Context, path string) (ProbeResult, error) {
	if !v.toolAvailable() {
		return ProbeResult{Score: 0}, nil
	}
	cmd := exec.CommandContext(ctx, v.toolPath, v.infoArgs(path)...)
	if err := cmd.Run(); err != nil {
		return ProbeResult{Score: 0}, nil
	}
	return ProbeResult{Score: 100, MediaType: "video", Container: v.name, Codec: v.name}, nil
}

func (v *vendorCLIDecoder) ExtractKeyframes(ctx context.Context, path string, times []float64, outDir string, maxDim int) ([]Keyframe, error) {
	if !v.toolAvailable() {
		return nil, fmt.Errorf("%w: %s tool not on PATH", apperrors.ErrToolNotFound, v.name)
	}
	out := make([]Keyframe, len(times))
	for i, t := range times {
		name := outDir + "/" + v.name + "_frame_" + strconv.Itoa(i) + ".jpg"
		cmd := exec.CommandContext(ctx, v.toolPath, v.frameArgs(path, t, name, maxDim)...)
		if err := cmd.Run(); err != nil {
			out[i] = Keyframe{TimeSec: t, Err: fmt.Errorf("%w: %v", apperrors.ErrDecodeFailed, err)}
			continue
		}
		out[i] = Keyframe{TimeSec: t, Path: name}
	}
	return out, nil
}

func (v *vendorCLIDecoder) ExtractAudio(ctx context.Context, path, outPath string, sampleRate int) (string, error) {
	return "", fmt.Errorf("%w: %s bridge does not extract audio", apperrors.ErrOperationNotSupported, v.name)
}

// NewBRAWDecoder bridges Blackmagic RAW's "BRAW Toolkit" CLI (priority 150,
// the highest — vendor SDKs decode their own format best).
func NewBRAWDecoder() MediaDecoder {
	return &vendorCLIDecoder{
		name:       "braw",
		priority:   150,
		extensions: []string{".braw"},
		toolPath:   "braw-toolkit",
		infoArgs:   func(path string) []string { return []string{"info", path} },
		frameArgs: func(path string, t float64, outPath string, maxDim int) []string {
			return []string{"extract-frame", path, "--time", strconv.FormatFloat(t, 'f', 3, 64),
				"--out", outPath, "--max-dim", strconv.Itoa(maxDim)}
		},
	}
}

// NewREDDecoder bridges RED's "REDline" CLI (priority 140).
func NewREDDecoder() MediaDecoder {
	return &vendorCLIDecoder{
		name:       "red",
		priority:   140,
		extensions: []string{".r3d"},
		toolPath:   "redline",
		infoArgs:   func(path string) []string { return []string{"--i", path} },
		frameArgs: func(path string, t float64, outPath string, maxDim int) []string {
			return []string{"--i", path, "--o", outPath, "--useTC", formatTimecode(t), "--resizeX", strconv.Itoa(maxDim)}
		},
	}
}

func formatTimecode(t float64) string {
	totalMillis := int64(t * 1000)
	hours := totalMillis / 3600000
	minutes := (totalMillis % 3600000) / 60000
	seconds := (totalMillis % 60000) / 1000
	millis := totalMillis % 1000
	return padInt(hours) + ":" + padInt(minutes) + ":" + padInt(seconds) + "." + strconv.FormatInt(millis, 10)
}

func padInt(n int64) string {
	s := strconv.FormatInt(n, 10)
	if len(s) < 2 {
		return "0" + s
	}
	return s
}
