package ingest

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/tools/duckduckgo"
)

type searchCaller interface {
	Call(ctx context.Context, input string) (string, error)
}

// Searcher looks up reference recipes for a dish name.
type Searcher struct {
	client searchCaller
}

func NewSearcher(maxResults int) (*Searcher, error) {
	if maxResults <= 0 {
		maxResults = 3
	}
	ddg, err := duckduckgo.New(maxResults, duckduckgo.DefaultUserAgent)
	if err != nil {
		return nil, err
	}
	return &Searcher{client: ddg}, nil
}

func (s *Searcher) Lookup(ctx context.Context, dish string) (string, error) {
	res, err := s.client.Call(ctx, dish+" recipe steps")
	if err != nil {
		return "", fmt.Errorf("search failed: %w", err)
	}
	return res, nil
}
