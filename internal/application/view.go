package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"voznote/internal/domain"
)

type View string

const (
	ViewList   View = "list"
	ViewRecord View = "record"
	ViewEdit   View = "edit"
)

type ProcessingStatus string

const (
	StatusIdle         ProcessingStatus = "idle"
	StatusTranscribing ProcessingStatus = "transcribing"
	StatusSummarizing  ProcessingStatus = "summarizing"
	StatusCompleted    ProcessingStatus = "completed"
	StatusError        ProcessingStatus = "error"
)

var ErrNoActiveNote = errors.New("no note is being edited")

type NoteRepository interface {
	List() []domain.Note
	Get(id string) (domain.Note, bool)
	Upsert(ctx context.Context, note domain.Note) error
	Delete(ctx context.Context, id string) error
}

type Snapshot struct {
	View       View             `json:"view"`
	Status     ProcessingStatus `json:"status"`
	Recording  bool             `json:"recording"`
	ActiveNote *domain.Note     `json:"activeNote,omitempty"`
	Error      string           `json:"error,omitempty"`
}

// ViewController tracks which screen the user is on. It follows pipeline
// events and owns the note being edited.
type ViewController struct {
	notes  NoteRepository
	logger *slog.Logger

	mu        sync.Mutex
	view      View
	status    ProcessingStatus
	recording bool
	active    *domain.Note
	lastErr   string
}

func NewViewController(notes NoteRepository, logger *slog.Logger) *ViewController {
	return &ViewController{
		notes:  notes,
		logger: logger,
		view:   ViewList,
		status: StatusIdle,
	}
}

// HandleEvent is subscribed to the pipeline.
func (v *ViewController) HandleEvent(ev Event) {
	v.mu.Lock()
	defer v.mu.Unlock()

	switch ev.State {
	case StateRecording:
		v.view = ViewRecord
		v.status = StatusIdle
		v.recording = true
		v.lastErr = ""
	case StateFinalizing:
		v.view = ViewRecord
		v.recording = false
	case StateTranscribing:
		v.view = ViewRecord
		v.status = StatusTranscribing
	case StateSummarizing:
		v.status = StatusSummarizing
	case StateDone:
		note := *ev.Note
		v.active = &note
		v.view = ViewEdit
		v.status = StatusCompleted
	case StateError:
		v.status = StatusError
		v.lastErr = domain.UserMessage(ev.Err)
		v.view = ViewList
		v.active = nil
		v.recording = false
	case StateIdle:
		v.status = StatusIdle
		v.recording = false
		if v.view == ViewRecord {
			v.view = ViewList
		}
	}
}

func (v *ViewController) Snapshot() Snapshot {
	v.mu.Lock()
	defer v.mu.Unlock()

	s := Snapshot{
		View:      v.view,
		Status:    v.status,
		Recording: v.recording,
		Error:     v.lastErr,
	}
	if v.active != nil {
		note := *v.active
		s.ActiveNote = &note
	}
	return s
}

// Open starts editing a stored note.
func (v *ViewController) Open(id string) error {
	note, ok := v.notes.Get(id)
	if !ok {
		return fmt.Errorf("note %s: %w", id, domain.ErrNotFound)
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	v.active = &note
	v.view = ViewEdit
	return nil
}

// Edit applies fn to the note being edited.
func (v *ViewController) Edit(fn func(n *domain.Note)) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.active == nil {
		return ErrNoActiveNote
	}
	fn(v.active)
	return nil
}

// Save stores the note being edited and goes back to the list.
func (v *ViewController) Save(ctx context.Context) (*domain.Note, error) {
	v.mu.Lock()
	if v.active == nil {
		v.mu.Unlock()
		return nil, ErrNoActiveNote
	}
	note := *v.active
	v.mu.Unlock()

	if err := v.notes.Upsert(ctx, note); err != nil {
		return nil, fmt.Errorf("saving note: %w", err)
	}

	v.mu.Lock()
	v.active = nil
	v.view = ViewList
	v.status = StatusIdle
	v.mu.Unlock()

	v.logger.Info("note saved", "id", note.ID)
	return &note, nil
}

// Discard drops unsaved edits.
func (v *ViewController) Discard() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.active = nil
	v.view = ViewList
}

func (v *ViewController) Delete(ctx context.Context, id string) error {
	if err := v.notes.Delete(ctx, id); err != nil {
		return err
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	if v.active != nil && v.active.ID == id {
		v.active = nil
	}
	v.view = ViewList
	return nil
}

// Search filters notes by a case-insensitive match on title or summary.
func (v *ViewController) Search(query string) []domain.Note {
	return FilterNotes(v.notes.List(), query)
}

func FilterNotes(notes []domain.Note, query string) []domain.Note {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return notes
	}

	var out []domain.Note
	for _, n := range notes {
		if strings.Contains(strings.ToLower(n.Title), q) || strings.Contains(strings.ToLower(n.Summary), q) {
			out = append(out, n)
		}
	}
	return out
}
