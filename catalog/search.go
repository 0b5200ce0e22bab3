package catalog

import (
	"context"
	"strings"

	"github.com/goliatone/go-commercebot/core"
)

// DefaultPageSize is the number of products shown per search page.
const DefaultPageSize = 5

// Result is one page of a keyword search plus how much of the match
// set remains beyond it.
type Result struct {
	Keyword        string
	Items          []core.Product
	Offset         int
	TotalRemaining int
}

// HasMore reports whether another page exists after this one.
func (r Result) HasMore() bool {
	return r.TotalRemaining > 0
}

// NextOffset is the offset the follow-up page should request.
func (r Result) NextOffset() int {
	return r.Offset + len(r.Items)
}

// Config holds the search collaborators.
type Config struct {
	Backend  core.Backend
	PageSize int
	Logger   core.Logger
}

// Searcher pages through catalog keyword matches. The commerce backend
// returns the full match set for a keyword; the searcher windows it so
// a busy keyword never floods the conversation.
type Searcher struct {
	backend  core.Backend
	pageSize int
	logger   core.Logger
}

// NewSearcher builds a Searcher from cfg, applying defaults.
func NewSearcher(cfg Config) (*Searcher, error) {
	if cfg.Backend == nil {
		return nil, core.ConfigMissingError{Field: "catalog.backend"}
	}
	pageSize := cfg.PageSize
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &Searcher{
		backend:  cfg.Backend,
		pageSize: pageSize,
		logger:   cfg.Logger,
	}, nil
}

// PageSize returns the configured page size.
func (s *Searcher) PageSize() int {
	return s.pageSize
}

// Search fetches the page of products matching keyword that starts at
// offset. The keyword is trimmed before use; an empty keyword is
// rejected without touching the backend. A negative offset is treated
// as zero, and an offset past the end of the match set yields an empty
// page with nothing remaining.
func (s *Searcher) Search(ctx context.Context, keyword string, offset int) (Result, error) {
	keyword = strings.TrimSpace(keyword)
	if keyword == "" {
		return Result{}, core.BadInputError{Reason: "search keyword is empty"}
	}
	if offset < 0 {
		offset = 0
	}

	matches, err := s.backend.SearchProducts(ctx, keyword)
	if err != nil {
		return Result{}, err
	}

	page := window(matches, offset, s.pageSize)
	remaining := len(matches) - (offset + len(page))
	if remaining < 0 {
		remaining = 0
	}

	return Result{
		Keyword:        keyword,
		Items:          page,
		Offset:         offset,
		TotalRemaining: remaining,
	}, nil
}

func window(items []core.Product, offset, size int) []core.Product {
	if offset >= len(items) {
		return nil
	}
	end := offset + size
	if end > len(items) {
		end = len(items)
	}
	page := make([]core.Product, end-offset)
	copy(page, items[offset:end])
	return page
}
