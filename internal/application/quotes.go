package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"voznote/internal/domain"
)

var ErrEmptyTheme = errors.New("theme must not be empty")

type QuoteGenerator interface {
	GenerateQuotes(ctx context.Context, theme string) ([]domain.Quote, error)
	RandomQuote(ctx context.Context) (domain.Quote, error)
}

// ImageSynthesizer is best effort: it always returns a usable image reference.
type ImageSynthesizer interface {
	SynthesizeImage(ctx context.Context, quoteText string) string
}

type FavoriteRepository interface {
	List() []domain.Quote
	Toggle(ctx context.Context, q domain.Quote) (bool, error)
	ReplaceImage(ctx context.Context, text, imageURL string) error
	Contains(text string) bool
}

type QuoteExplorer struct {
	generator QuoteGenerator
	images    ImageSynthesizer
	favorites FavoriteRepository
	logger    *slog.Logger

	mu    sync.Mutex
	live  []domain.Quote
	daily *domain.Quote
}

func NewQuoteExplorer(generator QuoteGenerator, images ImageSynthesizer, favorites FavoriteRepository, logger *slog.Logger) *QuoteExplorer {
	return &QuoteExplorer{
		generator: generator,
		images:    images,
		favorites: favorites,
		logger:    logger,
	}
}

// Search fetches quotes about theme and illustrates all of them concurrently.
func (e *QuoteExplorer) Search(ctx context.Context, theme string) ([]domain.Quote, error) {
	theme = strings.TrimSpace(theme)
	if theme == "" {
		return nil, ErrEmptyTheme
	}

	quotes, err := e.generator.GenerateQuotes(ctx, theme)
	if err != nil {
		return nil, fmt.Errorf("generating quotes: %w", err)
	}

	var g errgroup.Group
	for i := range quotes {
		g.Go(func() error {
			quotes[i].ImageURL = e.images.SynthesizeImage(ctx, quotes[i].Text)
			return nil
		})
	}
	_ = g.Wait()

	e.logger.Info("quotes fetched", "theme", theme, "count", len(quotes))

	e.mu.Lock()
	e.live = quotes
	e.mu.Unlock()

	return cloneQuotes(quotes), nil
}

// Random fetches the quote of the day with its image.
func (e *QuoteExplorer) Random(ctx context.Context) (domain.Quote, error) {
	q, err := e.generator.RandomQuote(ctx)
	if err != nil {
		return domain.Quote{}, fmt.Errorf("generating random quote: %w", err)
	}
	q.ImageURL = e.images.SynthesizeImage(ctx, q.Text)

	e.mu.Lock()
	e.daily = &q
	e.mu.Unlock()

	return q, nil
}

// RegenerateImage replaces the image of the live quote and of every saved
// favorite with the same text.
func (e *QuoteExplorer) RegenerateImage(ctx context.Context, q domain.Quote) (domain.Quote, error) {
	url := e.images.SynthesizeImage(ctx, q.Text)
	q.ImageURL = url

	e.mu.Lock()
	for i := range e.live {
		if e.live[i].ID == q.ID {
			e.live[i].ImageURL = url
		}
	}
	if e.daily != nil && e.daily.ID == q.ID {
		e.daily.ImageURL = url
	}
	e.mu.Unlock()

	if err := e.favorites.ReplaceImage(ctx, q.Text, url); err != nil {
		return q, fmt.Errorf("updating favorites: %w", err)
	}
	return q, nil
}

// ToggleFavorite reports whether q is a favorite after the call.
func (e *QuoteExplorer) ToggleFavorite(ctx context.Context, q domain.Quote) (bool, error) {
	return e.favorites.Toggle(ctx, q)
}

func (e *QuoteExplorer) IsFavorite(q domain.Quote) bool {
	return e.favorites.Contains(q.Text)
}

func (e *QuoteExplorer) Favorites() []domain.Quote {
	return e.favorites.List()
}

// Current returns the last search results.
func (e *QuoteExplorer) Current() []domain.Quote {
	e.mu.Lock()
	defer e.mu.Unlock()
	return cloneQuotes(e.live)
}

func (e *QuoteExplorer) Daily() (domain.Quote, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.daily == nil {
		return domain.Quote{}, false
	}
	return *e.daily, true
}

func cloneQuotes(in []domain.Quote) []domain.Quote {
	out := make([]domain.Quote, len(in))
	copy(out, in)
	return out
}
