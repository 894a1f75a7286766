package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"gaceta/internal/core"
)

func init() {
	Register("github", func(name string, settings Settings) (core.Source, error) {
		return NewGitHubSource(name, settings), nil
	})
}

// GitHubSource lists artifacts through the repository contents API. Entries
// of type dir are date folders: they are walked in descending name order so
// the newest issues surface first. One folder failing to list is logged and
// skipped; only the top-level listing failing kills the run.
type GitHubSource struct {
	name     string
	baseURL  string
	ref      string
	ext      string
	maxItems int
	client   *resty.Client
	logger   *slog.Logger
}

type contentEntry struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	DownloadURL string `json:"download_url"`
}

func NewGitHubSource(name string, settings Settings) *GitHubSource {
	client := resty.New().
		SetTimeout(30 * time.Second).
		SetHeader("Accept", "application/vnd.github+json")

	if settings.Token != "" {
		client.SetAuthToken(settings.Token)
	}

	return &GitHubSource{
		name:     name,
		baseURL:  strings.TrimRight(settings.URL, "/"),
		ref:      settings.Ref,
		ext:      settings.Extension,
		maxItems: settings.MaxItems,
		client:   client,
		logger:   settings.Logger,
	}
}

func (s *GitHubSource) Name() string {
	return s.name
}

func (s *GitHubSource) List(ctx context.Context) (<-chan core.Item, <-chan error) {
	itemChan := make(chan core.Item)
	errChan := make(chan error, 1)

	go func() {
		defer close(itemChan)
		defer close(errChan)

		entries, err := s.listDir(ctx, s.baseURL)
		if err != nil {
			errChan <- err
			return
		}

		emitted := 0
		emit := func(item core.Item) bool {
			if s.maxItems > 0 && emitted >= s.maxItems {
				return false
			}
			select {
			case itemChan <- item:
				emitted++
				return true
			case <-ctx.Done():
				errChan <- ctx.Err()
				return false
			}
		}

		var groups []string
		for _, entry := range entries {
			switch entry.Type {
			case "file":
				if strings.HasSuffix(entry.Name, s.ext) {
					if !emit(core.Item{ID: entry.Name, FetchURL: entry.DownloadURL}) {
						return
					}
				}
			case "dir":
				groups = append(groups, entry.Name)
			}
		}

		// Descending lexicographic order, which for ISO-date folder
		// names is descending chronological order.
		sort.Sort(sort.Reverse(sort.StringSlice(groups)))

		for _, group := range groups {
			sub, err := s.listDir(ctx, s.baseURL+"/"+group)
			if err != nil {
				// One bad folder must not abort the rest of the
				// enumeration.
				s.logger.Warn("Group listing failed, skipping", "source", s.name, "group", group, "error", err)
				continue
			}

			for _, entry := range sub {
				if entry.Type != "file" || !strings.HasSuffix(entry.Name, s.ext) {
					continue
				}
				if !emit(core.Item{ID: entry.Name, FetchURL: entry.DownloadURL, Group: group}) {
					return
				}
			}
		}

		s.logger.Debug("Directory listing complete", "source", s.name, "groups", len(groups), "items", emitted)
	}()

	return itemChan, errChan
}

func (s *GitHubSource) listDir(ctx context.Context, dirURL string) ([]contentEntry, error) {
	req := s.client.R().SetContext(ctx)
	if s.ref != "" {
		req.SetQueryParam("ref", s.ref)
	}

	resp, err := req.Get(dirURL)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", dirURL, err)
	}

	if resp.IsError() {
		return nil, fmt.Errorf("listing %s returned status %d", dirURL, resp.StatusCode())
	}

	var entries []contentEntry
	if err := json.Unmarshal(resp.Body(), &entries); err != nil {
		return nil, fmt.Errorf("malformed listing from %s: %w", dirURL, err)
	}

	return entries, nil
}
