package decoder

import (
	"context"
	"fmt"

	"findit/internal/apperrors"
)

// NativeDecoder models the platform's built-in hardware-accelerated decode
// path (AVFoundation/VideoToolbox-class APIs), restricted to the codecs the
// platform itself guarantees (§4.1: H.264/H.265/ProRes only). It delegates
// the actual subprocess work to an FFmpegDecoder configured against the
// platform's own ffmpeg build, since FindIt has no cgo bridge to a native
// media framework; probing is what distinguishes it — NativeDecoder claims
// a file only when the codec is one of its three supported families, at a
// higher priority than the general FFmpeg backend so it wins ties on
// otherwise-identical scores.
type NativeDecoder struct {
	inner *FFmpegDecoder
}

func NewNativeDecoder() *NativeDecoder {
	return &NativeDecoder{inner: NewFFmpegDecoder()}
}

var nativeCodecs = map[string]bool{
	"h264":   true,
	"hevc":   true, // h.265
	"prores": true,
}

func (n *NativeDecoder) Capability() Capability {
	return Capability{
		Name:           "native",
		Priority:       80,
		FileExtensions: []string{".mp4", ".mov", ".m4v"},
	}
}

func (n *NativeDecoder) Probe(ctx context.Context, path string) (ProbeResult, error) {
	result, err := n.inner.Probe(ctx, path)
	if err != nil || result.Score <= 0 {
		return ProbeResult{Score: 0}, err
	}
	if !nativeCodecs[result.Codec] {
		return ProbeResult{Score: 0}, nil
	}
	result.Score = 90
	return result, nil
}

func (n *NativeDecoder) ExtractKeyframes(ctx context.Context, path string, times []float64, outDir string, maxDim int) ([]Keyframe, error) {
	return n.inner.ExtractKeyframes(ctx, path, times, outDir, maxDim)
}

func (n *NativeDecoder) ExtractAudio(ctx context.Context, path, outPath string, sampleRate int) (string, error) {
	return "", fmt.Errorf("%w: native decoder does not extract audio, use ffmpeg", apperrors.ErrOperationNotSupported)
}
