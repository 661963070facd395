package domain

import (
	"fmt"
	"strconv"
	"time"
)

// MaxAudioBytes is the largest recording accepted by the transcription API.
const MaxAudioBytes = 20 * 1024 * 1024

const DefaultAudioMimeType = "audio/webm"

// Recording is an assembled audio object. It lives only in memory.
type Recording struct {
	Data       []byte
	MimeType   string
	Duration   time.Duration
	CapturedAt time.Time
}

func (r *Recording) Size() int {
	if r == nil {
		return 0
	}
	return len(r.Data)
}

type Note struct {
	ID                string   `json:"id"`
	Title             string   `json:"title"`
	Date              string   `json:"date"`
	DurationFormatted string   `json:"durationFormatted"`
	Transcription     string   `json:"transcription"`
	Summary           string   `json:"summary"`
	Tags              []string `json:"tags"`

	// Audio is never serialized; it is gone after a reload.
	Audio *Recording `json:"-"`
}

// NewNote assembles the note produced by a successful transcribe and summarize round trip.
func NewNote(rec *Recording, transcription, summary string) *Note {
	captured := rec.CapturedAt
	if captured.IsZero() {
		captured = time.Now()
	}
	return &Note{
		ID:                strconv.FormatInt(captured.UnixMilli(), 10),
		Title:             "Nota " + captured.Format("15:04"),
		Date:              captured.Format("02/01/2006"),
		DurationFormatted: FormatDuration(rec.Duration),
		Transcription:     transcription,
		Summary:           summary,
		Tags:              []string{},
		Audio:             rec,
	}
}

// FormatDuration renders d as MM:SS, truncating to whole seconds.
func FormatDuration(d time.Duration) string {
	secs := int(d / time.Second)
	if secs < 0 {
		secs = 0
	}
	return fmt.Sprintf("%02d:%02d", secs/60, secs%60)
}

// Stripped returns a copy without the transient audio reference.
func (n Note) Stripped() Note {
	n.Audio = nil
	if n.Tags == nil {
		n.Tags = []string{}
	}
	return n
}
