package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	items []Item
	err   error
}

func (s *fakeSource) Name() string { return "fake" }

func (s *fakeSource) List(ctx context.Context) (<-chan Item, <-chan error) {
	itemChan := make(chan Item)
	errChan := make(chan error, 1)

	go func() {
		defer close(itemChan)
		defer close(errChan)

		if s.err != nil {
			errChan <- s.err
			return
		}

		for _, item := range s.items {
			select {
			case itemChan <- item:
			case <-ctx.Done():
				return
			}
		}
	}()

	return itemChan, errChan
}

type fakeFetcher struct {
	payloads map[string][]byte
	failures map[string]error
	calls    []string
}

func (f *fakeFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	f.calls = append(f.calls, url)
	if err, ok := f.failures[url]; ok {
		return nil, err
	}
	if payload, ok := f.payloads[url]; ok {
		return payload, nil
	}
	return []byte("payload:" + url), nil
}

type fakeDeliverer struct {
	failures  map[string]error
	delivered []string
	payloads  map[string][]byte
}

func (d *fakeDeliverer) Name() string { return "fake-mail" }

func (d *fakeDeliverer) Deliver(ctx context.Context, id string, payload []byte) error {
	if err, ok := d.failures[id]; ok {
		return err
	}
	if d.payloads == nil {
		d.payloads = make(map[string][]byte)
	}
	d.delivered = append(d.delivered, id)
	d.payloads[id] = payload
	return nil
}

type fakeLedger struct {
	ids       map[string]struct{}
	order     []string
	commitErr map[string]error
}

func newFakeLedger(ids ...string) *fakeLedger {
	l := &fakeLedger{ids: make(map[string]struct{}), commitErr: make(map[string]error)}
	for _, id := range ids {
		l.ids[id] = struct{}{}
		l.order = append(l.order, id)
	}
	return l
}

func (l *fakeLedger) Contains(id string) bool {
	_, ok := l.ids[id]
	return ok
}

func (l *fakeLedger) Commit(ctx context.Context, id string) error {
	if err, ok := l.commitErr[id]; ok {
		return err
	}
	l.ids[id] = struct{}{}
	l.order = append(l.order, id)
	return nil
}

type fakeNotifier struct {
	texts []string
	err   error
}

func (n *fakeNotifier) Notify(ctx context.Context, text string) error {
	n.texts = append(n.texts, text)
	return n.err
}

func newTestEngine(source Source, fetcher *fakeFetcher, deliverer *fakeDeliverer, notifier *fakeNotifier, ledger *fakeLedger) *Engine {
	return NewEngine(EngineConfig{
		Source:    source,
		Fetcher:   fetcher,
		Deliverer: deliverer,
		Notifier:  notifier,
		Ledger:    ledger,
		Logger:    slog.New(slog.DiscardHandler),
	})
}

func TestRunDeliversNewItem(t *testing.T) {
	source := &fakeSource{items: []Item{{ID: "2026-02-09.epub", FetchURL: "L1"}}}
	fetcher := &fakeFetcher{payloads: map[string][]byte{"L1": []byte("b")}}
	deliverer := &fakeDeliverer{}
	notifier := &fakeNotifier{}
	ledger := newFakeLedger()

	engine := newTestEngine(source, fetcher, deliverer, notifier, ledger)
	summary, err := engine.Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 1, summary.Delivered)
	assert.Equal(t, 0, summary.Skipped)
	assert.True(t, ledger.Contains("2026-02-09.epub"))
	assert.Equal(t, []byte("b"), deliverer.payloads["2026-02-09.epub"])
	assert.Contains(t, notifier.texts, "Sent: 2026-02-09.epub")
}

func TestRunSkipsAlreadyDelivered(t *testing.T) {
	source := &fakeSource{items: []Item{
		{ID: "A.epub", FetchURL: "LA"},
		{ID: "B.epub", FetchURL: "LB"},
	}}
	fetcher := &fakeFetcher{}
	deliverer := &fakeDeliverer{}
	ledger := newFakeLedger("A.epub")

	engine := newTestEngine(source, fetcher, deliverer, &fakeNotifier{}, ledger)
	summary, err := engine.Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 1, summary.Delivered)
	assert.Equal(t, 1, summary.Skipped)
	assert.Equal(t, []string{"B.epub"}, deliverer.delivered)
	assert.Equal(t, []string{"LB"}, fetcher.calls, "ledgered item must not be fetched")
	assert.True(t, ledger.Contains("A.epub"))
	assert.True(t, ledger.Contains("B.epub"))
}

func TestRunFetchFailureDoesNotBlockOthers(t *testing.T) {
	source := &fakeSource{items: []Item{
		{ID: "C.epub", FetchURL: "LC"},
		{ID: "D.epub", FetchURL: "LD"},
	}}
	fetcher := &fakeFetcher{failures: map[string]error{
		"LC": &FetchError{URL: "LC", Status: 503, Err: errors.New("unavailable")},
	}}
	deliverer := &fakeDeliverer{}
	ledger := newFakeLedger()

	engine := newTestEngine(source, fetcher, deliverer, &fakeNotifier{}, ledger)
	summary, err := engine.Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 1, summary.FetchFailed)
	assert.Equal(t, 1, summary.Delivered)
	assert.False(t, ledger.Contains("C.epub"), "failed item stays un-ledgered for retry")
	assert.True(t, ledger.Contains("D.epub"))

	// Next run retries the failed item once the remote recovers.
	fetcher.failures = nil
	summary, err = engine.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Delivered)
	assert.Equal(t, 1, summary.Skipped)
	assert.True(t, ledger.Contains("C.epub"))
}

func TestRunDeliveryFailureDoesNotBlockOthers(t *testing.T) {
	source := &fakeSource{items: []Item{
		{ID: "C.epub", FetchURL: "LC"},
		{ID: "D.epub", FetchURL: "LD"},
	}}
	deliverer := &fakeDeliverer{failures: map[string]error{
		"C.epub": &DeliveryError{Target: "fake-mail", ID: "C.epub", Err: errors.New("mailbox full")},
	}}
	ledger := newFakeLedger()

	engine := newTestEngine(source, &fakeFetcher{}, deliverer, &fakeNotifier{}, ledger)
	summary, err := engine.Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 1, summary.DeliveryFailed)
	assert.Equal(t, 1, summary.Delivered)
	assert.False(t, ledger.Contains("C.epub"))
	assert.True(t, ledger.Contains("D.epub"))
}

func TestRunPersistenceErrorAbortsRun(t *testing.T) {
	source := &fakeSource{items: []Item{
		{ID: "A.epub", FetchURL: "LA"},
		{ID: "B.epub", FetchURL: "LB"},
		{ID: "C.epub", FetchURL: "LC"},
	}}
	fetcher := &fakeFetcher{}
	ledger := newFakeLedger()
	ledger.commitErr["B.epub"] = &PersistenceError{Op: "commit", Err: errors.New("disk full")}

	engine := newTestEngine(source, fetcher, &fakeDeliverer{}, &fakeNotifier{}, ledger)
	summary, err := engine.Run(context.Background())

	require.Error(t, err)
	assert.True(t, IsPersistenceError(err))
	assert.Equal(t, 1, summary.Delivered)
	assert.True(t, ledger.Contains("A.epub"), "commits before the failure stay valid")
	assert.False(t, ledger.Contains("C.epub"))
	assert.NotContains(t, fetcher.calls, "LC", "processing stops at the failed commit")
}

func TestRunListingFailureLeavesLedgerUntouched(t *testing.T) {
	source := &fakeSource{err: errors.New("connection refused")}
	notifier := &fakeNotifier{}
	ledger := newFakeLedger("A.epub")

	engine := newTestEngine(source, &fakeFetcher{}, &fakeDeliverer{}, notifier, ledger)
	summary, err := engine.Run(context.Background())

	require.Error(t, err)
	assert.True(t, IsListingError(err))
	assert.Equal(t, 0, summary.Delivered)
	assert.Equal(t, []string{"A.epub"}, ledger.order)
	require.Len(t, notifier.texts, 1)
	assert.Contains(t, notifier.texts[0], "Listing failed")
}

// syncFailingSource reports its failure and closes both channels before List
// even returns, the way a source that fails synchronously does. Both select
// cases are ready at once, so this exercises the engine's handling of a
// listing error racing the end of the item stream.
type syncFailingSource struct {
	err error
}

func (s *syncFailingSource) Name() string { return "sync-fail" }

func (s *syncFailingSource) List(ctx context.Context) (<-chan Item, <-chan error) {
	itemChan := make(chan Item)
	errChan := make(chan error, 1)

	errChan <- s.err
	close(itemChan)
	close(errChan)

	return itemChan, errChan
}

func TestRunListingFailureNotSwallowedOnClosedChannels(t *testing.T) {
	// Repeated runs cover both select orderings.
	for i := 0; i < 100; i++ {
		source := &syncFailingSource{err: errors.New("connection refused")}
		notifier := &fakeNotifier{}
		ledger := newFakeLedger()

		engine := newTestEngine(source, &fakeFetcher{}, &fakeDeliverer{}, notifier, ledger)
		summary, err := engine.Run(context.Background())

		require.Error(t, err, "a fatal listing failure must end the run with an error")
		assert.True(t, IsListingError(err))
		assert.Equal(t, 0, summary.Delivered)
		assert.Empty(t, ledger.order)
		require.Len(t, notifier.texts, 1)
		assert.Contains(t, notifier.texts[0], "Listing failed")
	}
}

func TestRunCollapsesDuplicateWithinRun(t *testing.T) {
	source := &fakeSource{items: []Item{
		{ID: "X.epub", FetchURL: "L1", Group: "2026-02-02"},
		{ID: "X.epub", FetchURL: "L2", Group: "2026-01-26"},
	}}
	fetcher := &fakeFetcher{}
	deliverer := &fakeDeliverer{}
	ledger := newFakeLedger()

	engine := newTestEngine(source, fetcher, deliverer, &fakeNotifier{}, ledger)
	summary, err := engine.Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 1, summary.Delivered)
	assert.Equal(t, 1, summary.Skipped)
	assert.Equal(t, []string{"L1"}, fetcher.calls, "only the first occurrence is fetched")
	assert.Equal(t, []string{"X.epub"}, deliverer.delivered)
}

func TestRunDuplicateOfFailedItemNotRetriedSameRun(t *testing.T) {
	source := &fakeSource{items: []Item{
		{ID: "X.epub", FetchURL: "L1"},
		{ID: "X.epub", FetchURL: "L2"},
	}}
	fetcher := &fakeFetcher{failures: map[string]error{
		"L1": &FetchError{URL: "L1", Status: 404, Err: errors.New("not found")},
	}}
	ledger := newFakeLedger()

	engine := newTestEngine(source, fetcher, &fakeDeliverer{}, &fakeNotifier{}, ledger)
	summary, err := engine.Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 1, summary.FetchFailed)
	assert.Equal(t, 1, summary.Skipped)
	assert.Equal(t, []string{"L1"}, fetcher.calls)
}

func TestRunSecondRunIsIdempotent(t *testing.T) {
	source := &fakeSource{items: []Item{
		{ID: "A.epub", FetchURL: "LA"},
		{ID: "B.epub", FetchURL: "LB"},
	}}
	deliverer := &fakeDeliverer{}
	ledger := newFakeLedger()

	engine := newTestEngine(source, &fakeFetcher{}, deliverer, &fakeNotifier{}, ledger)

	summary, err := engine.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Delivered)

	before := append([]string(nil), ledger.order...)

	summary, err = engine.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Delivered)
	assert.Equal(t, 2, summary.Skipped)
	assert.Equal(t, before, ledger.order, "second run mutates nothing")
	assert.Len(t, deliverer.delivered, 2, "no duplicate external sends")
}

func TestRunNotifierFailureIsSwallowed(t *testing.T) {
	source := &fakeSource{items: []Item{{ID: "A.epub", FetchURL: "LA"}}}
	notifier := &fakeNotifier{err: errors.New("webhook down")}
	ledger := newFakeLedger()

	engine := newTestEngine(source, &fakeFetcher{}, &fakeDeliverer{}, notifier, ledger)
	summary, err := engine.Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 1, summary.Delivered)
	assert.True(t, ledger.Contains("A.epub"))
}

func TestRunEmptyListingIsNotAnError(t *testing.T) {
	engine := newTestEngine(&fakeSource{}, &fakeFetcher{}, &fakeDeliverer{}, &fakeNotifier{}, newFakeLedger())

	summary, err := engine.Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 0, summary.Delivered)
	assert.Empty(t, summary.Results)
}

func TestRunRecordsPerItemResults(t *testing.T) {
	source := &fakeSource{items: []Item{
		{ID: "A.epub", FetchURL: "LA"},
		{ID: "B.epub", FetchURL: "LB"},
	}}
	fetcher := &fakeFetcher{failures: map[string]error{
		"LB": &FetchError{URL: "LB", Status: 404, Err: fmt.Errorf("gone")},
	}}

	engine := newTestEngine(source, fetcher, &fakeDeliverer{}, &fakeNotifier{}, newFakeLedger())
	summary, err := engine.Run(context.Background())

	require.NoError(t, err)
	require.Len(t, summary.Results, 2)
	assert.Equal(t, StatusDelivered, summary.Results[0].Status)
	assert.Equal(t, StatusFetchFailed, summary.Results[1].Status)
	assert.NotEmpty(t, summary.Results[1].Reason)
}
