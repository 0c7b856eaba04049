package bridge

import (
	"strings"

	"github.com/signallama/signallama/internal/signalapi"
)

// voiceContentTypes is the recognized set of voice-audio MIME types.
// Signal voice notes arrive as audio/ogg or audio/aac depending on the
// sending platform; the rest cover forwarded audio files.
var voiceContentTypes = map[string]struct{}{
	"audio/aac":   {},
	"audio/flac":  {},
	"audio/mp4":   {},
	"audio/mpeg":  {},
	"audio/ogg":   {},
	"audio/opus":  {},
	"audio/wav":   {},
	"audio/webm":  {},
	"audio/x-m4a": {},
	"audio/x-wav": {},
}

// IsVoiceContentType reports whether contentType denotes a recognized
// voice recording. Media type parameters ("audio/ogg; codecs=opus")
// are ignored for the lookup.
func IsVoiceContentType(contentType string) bool {
	base, _, _ := strings.Cut(contentType, ";")
	_, ok := voiceContentTypes[strings.ToLower(strings.TrimSpace(base))]
	return ok
}

// firstVoiceAttachment returns the first attachment with a recognized
// voice content type.
func firstVoiceAttachment(atts []signalapi.Attachment) (signalapi.Attachment, bool) {
	for _, att := range atts {
		if IsVoiceContentType(att.ContentType) {
			return att, true
		}
	}
	return signalapi.Attachment{}, false
}
