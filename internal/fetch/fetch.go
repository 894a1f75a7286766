// Package fetch downloads artifact payloads. It never retries on its own:
// retry policy lives with the caller, which only needs the HTTP status to
// tell a transient failure from a terminal one.
package fetch

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"gaceta/internal/core"
)

const userAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10.15; rv:146.0) Gecko/20100101 Firefox/146.0"

type HTTPFetcher struct {
	client *resty.Client
}

func NewHTTPFetcher(timeout time.Duration) *HTTPFetcher {
	if timeout == 0 {
		timeout = 2 * time.Minute
	}

	client := resty.New().
		SetTimeout(timeout).
		SetHeader("User-Agent", userAgent)

	return &HTTPFetcher{client: client}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	resp, err := f.client.R().SetContext(ctx).Get(url)
	if err != nil {
		return nil, &core.FetchError{URL: url, Err: err}
	}

	if resp.IsError() {
		return nil, &core.FetchError{
			URL:    url,
			Status: resp.StatusCode(),
			Err:    fmt.Errorf("unexpected status %s", resp.Status()),
		}
	}

	return resp.Body(), nil
}
