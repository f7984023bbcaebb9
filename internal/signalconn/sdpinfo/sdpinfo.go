// Package sdpinfo is a non-core, debug-only helper that turns an
// opaque SDP blob into a short human-readable summary for logging.
// No package under internal/signalconn/conn imports this one: spec.md
// §1 keeps SDP fully opaque to the state machine, and this package
// exists purely so an application's debug output (spec.md §6) can be
// more legible than a raw SDP dump.
package sdpinfo

import (
	"fmt"
	"strings"

	"github.com/pion/sdp/v3"
)

// Summarize renders the media lines of blob as "media/fmt,fmt ...".
// A blob that fails to parse as SDP yields "(unparsed sdp)" rather
// than an error, since callers use this only for log lines.
func Summarize(blob string) string {
	var sd sdp.SessionDescription
	if err := sd.Unmarshal([]byte(blob)); err != nil {
		return "(unparsed sdp)"
	}

	if len(sd.MediaDescriptions) == 0 {
		return "(no media)"
	}

	parts := make([]string, 0, len(sd.MediaDescriptions))
	for _, m := range sd.MediaDescriptions {
		parts = append(parts, fmt.Sprintf("%s/%s", m.MediaName.Media, strings.Join(m.MediaName.Formats, ",")))
	}
	return strings.Join(parts, " ")
}
