package ingest

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
)

type Kind string

const (
	KindFile Kind = "file"
	KindURL  Kind = "url"
	KindText Kind = "text"
	KindDish Kind = "dish"
)

// Source is a recipe request ready for the instruction parser.
type Source struct {
	Kind Kind
	Name string
	Text string
}

// Resolver turns a command line argument into a Source. Search is optional.
type Resolver struct {
	Pages  *PageFetcher
	Search *Searcher
}

func NewResolver(search *Searcher) *Resolver {
	return &Resolver{Pages: NewPageFetcher(), Search: search}
}

// Classify decides what kind of input a request is without touching the network.
func Classify(input string) Kind {
	s := strings.TrimSpace(input)
	lower := strings.ToLower(s)
	if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") {
		return KindURL
	}
	if !strings.ContainsAny(s, "\n") {
		if info, err := os.Stat(s); err == nil && info.Mode().IsRegular() {
			return KindFile
		}
		if filepath.Ext(s) != "" && !strings.ContainsAny(s, " \t") && SupportedExtension(s) {
			return KindFile
		}
	}
	if strings.Contains(s, "\n") || len(s) > 80 || len(strings.Fields(s)) > 8 {
		return KindText
	}
	return KindDish
}

func (r *Resolver) Resolve(ctx context.Context, input string) (*Source, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return nil, fmt.Errorf("empty recipe request")
	}

	switch kind := Classify(input); kind {
	case KindURL:
		page, err := r.Pages.FetchPage(ctx, input)
		if err != nil {
			return nil, err
		}
		name := page.Title
		if name == "" {
			name = input
		}
		return &Source{Kind: kind, Name: name, Text: page.Text()}, nil
	case KindFile:
		text, err := LoadDocument(ctx, input)
		if err != nil {
			return nil, err
		}
		return &Source{Kind: kind, Name: filepath.Base(input), Text: text}, nil
	case KindText:
		return &Source{Kind: kind, Name: firstLine(input), Text: input}, nil
	default:
		src := &Source{Kind: KindDish, Name: input, Text: input}
		if r.Search != nil {
			ref, err := r.Search.Lookup(ctx, input)
			if err != nil {
				log.Printf("[Ingest] search for %q failed, continuing without reference: %v", input, err)
			} else if ref != "" {
				src.Text = fmt.Sprintf("%s\n\nReference material:\n%s", input, ref)
			}
		}
		return src, nil
	}
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(s, "\n")
	line = strings.TrimSpace(line)
	if len(line) > 60 {
		line = line[:57] + "..."
	}
	return line
}
