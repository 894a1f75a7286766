package sources

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"

	"gaceta/internal/core"
)

const browserUA = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10.15; rv:146.0) Gecko/20100101 Firefox/146.0"

func init() {
	Register("scrape", func(name string, settings Settings) (core.Source, error) {
		return NewScrapeSource(name, settings), nil
	})
}

// ScrapeSource discovers items from a flat HTML page: every anchor whose
// href ends in the artifact extension is a candidate. GitHub blob links are
// rewritten to their raw counterpart so the fetch URL yields the file itself.
type ScrapeSource struct {
	name     string
	pageURL  string
	ext      string
	maxItems int
	client   *resty.Client
	logger   *slog.Logger
}

func NewScrapeSource(name string, settings Settings) *ScrapeSource {
	client := resty.New().
		SetTimeout(30 * time.Second).
		SetHeader("User-Agent", browserUA)

	return &ScrapeSource{
		name:     name,
		pageURL:  settings.URL,
		ext:      settings.Extension,
		maxItems: settings.MaxItems,
		client:   client,
		logger:   settings.Logger,
	}
}

func (s *ScrapeSource) Name() string {
	return s.name
}

func (s *ScrapeSource) List(ctx context.Context) (<-chan core.Item, <-chan error) {
	itemChan := make(chan core.Item)
	errChan := make(chan error, 1)

	go func() {
		defer close(itemChan)
		defer close(errChan)

		items, err := s.scrape(ctx)
		if err != nil {
			errChan <- err
			return
		}

		s.logger.Debug("Scrape returned links", "source", s.name, "count", len(items))

		for _, item := range items {
			select {
			case itemChan <- item:
			case <-ctx.Done():
				errChan <- ctx.Err()
				return
			}
		}
	}()

	return itemChan, errChan
}

func (s *ScrapeSource) scrape(ctx context.Context) ([]core.Item, error) {
	resp, err := s.client.R().SetContext(ctx).Get(s.pageURL)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch page %s: %w", s.pageURL, err)
	}

	if resp.IsError() {
		return nil, fmt.Errorf("page %s returned status %d", s.pageURL, resp.StatusCode())
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(resp.Body()))
	if err != nil {
		return nil, fmt.Errorf("failed to parse page %s: %w", s.pageURL, err)
	}

	base, err := url.Parse(s.pageURL)
	if err != nil {
		return nil, fmt.Errorf("invalid page url %s: %w", s.pageURL, err)
	}

	var items []core.Item

	selector := fmt.Sprintf(`a[href$="%s"]`, s.ext)
	doc.Find(selector).EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		if s.maxItems > 0 && len(items) >= s.maxItems {
			return false
		}

		href, ok := sel.Attr("href")
		if !ok || href == "" {
			return true
		}

		fetchURL, err := s.resolveHref(base, href)
		if err != nil {
			s.logger.Warn("Skipping unparseable link", "source", s.name, "href", href, "error", err)
			return true
		}

		items = append(items, core.Item{
			ID:       path.Base(href),
			FetchURL: fetchURL,
		})
		return true
	})

	return items, nil
}

// resolveHref turns an anchor href into a downloadable URL. A GitHub
// /blob/ path points at the HTML file viewer, so it becomes the
// raw.githubusercontent.com equivalent instead.
func (s *ScrapeSource) resolveHref(base *url.URL, href string) (string, error) {
	if strings.Contains(href, "/blob/") {
		u, err := url.Parse(href)
		if err != nil {
			return "", err
		}
		return "https://raw.githubusercontent.com" + strings.Replace(u.Path, "/blob/", "/", 1), nil
	}

	ref, err := url.Parse(href)
	if err != nil {
		return "", err
	}
	return base.ResolveReference(ref).String(), nil
}
