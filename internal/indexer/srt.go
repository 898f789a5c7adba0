package indexer

import (
	"fmt"
	"os"
	"strings"

	"findit/internal/providers"
)

// writeSRT renders transcript segments as a SubRip file at path, the
// sidecar §4.6's STT layer produces alongside per-clip transcript text.
func writeSRT(path string, segments []providers.TranscriptSegment) error {
	var sb strings.Builder
	for i, seg := range segments {
		fmt.Fprintf(&sb, "%d\n", i+1)
		fmt.Fprintf(&sb, "%s --> %s\n", srtTimestamp(seg.StartSec), srtTimestamp(seg.EndSec))
		sb.WriteString(strings.TrimSpace(seg.Text))
		sb.WriteString("\n\n")
	}
	return os.WriteFile(path, []byte(sb.String()), 0o644)
}

func srtTimestamp(sec float64) string {
	if sec < 0 {
		sec = 0
	}
	totalMs := int64(sec * 1000)
	ms := totalMs % 1000
	totalSec := totalMs / 1000
	s := totalSec % 60
	totalMin := totalSec / 60
	m := totalMin % 60
	h := totalMin / 60
	return fmt.Sprintf("%02d:%02d:%02d,%03d", h, m, s, ms)
}
