package sources

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"path"
	"strings"

	"github.com/mmcdole/gofeed"

	"gaceta/internal/core"
)

func init() {
	Register("rss", func(name string, settings Settings) (core.Source, error) {
		return NewRSSSource(name, settings), nil
	})
}

// RSSSource discovers artifacts from feed enclosures. Feeds already arrive
// newest-first, so entries are emitted in feed order.
type RSSSource struct {
	name     string
	feedURL  string
	ext      string
	maxItems int
	parser   *gofeed.Parser
	logger   *slog.Logger
}

func NewRSSSource(name string, settings Settings) *RSSSource {
	return &RSSSource{
		name:     name,
		feedURL:  settings.URL,
		ext:      settings.Extension,
		maxItems: settings.MaxItems,
		parser:   gofeed.NewParser(),
		logger:   settings.Logger,
	}
}

func (s *RSSSource) Name() string {
	return s.name
}

func (s *RSSSource) List(ctx context.Context) (<-chan core.Item, <-chan error) {
	itemChan := make(chan core.Item)
	errChan := make(chan error, 1)

	go func() {
		defer close(itemChan)
		defer close(errChan)

		feed, err := s.parser.ParseURLWithContext(s.feedURL, ctx)
		if err != nil {
			errChan <- fmt.Errorf("failed to parse feed %s: %w", s.feedURL, err)
			return
		}

		s.logger.Debug("Feed retrieved", "source", s.name, "entries", len(feed.Items))

		emitted := 0
		for _, feedItem := range feed.Items {
			if s.maxItems > 0 && emitted >= s.maxItems {
				return
			}

			item, ok := s.convertEntry(feedItem)
			if !ok {
				continue
			}

			select {
			case itemChan <- item:
				emitted++
			case <-ctx.Done():
				errChan <- ctx.Err()
				return
			}
		}
	}()

	return itemChan, errChan
}

func (s *RSSSource) convertEntry(feedItem *gofeed.Item) (core.Item, bool) {
	for _, enc := range feedItem.Enclosures {
		if enc == nil || enc.URL == "" {
			continue
		}

		u, err := url.Parse(enc.URL)
		if err != nil || !strings.HasSuffix(u.Path, s.ext) {
			continue
		}

		item := core.Item{
			ID:       path.Base(u.Path),
			FetchURL: enc.URL,
		}
		if feedItem.PublishedParsed != nil {
			item.Group = feedItem.PublishedParsed.Format("2006-01-02")
		}
		return item, true
	}

	return core.Item{}, false
}
