package loader

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
)

// routeBody serves each known path its payload and 404s the rest.
func routeBody(routes map[string]string) func(string) (int, string) {
	return func(path string) (int, string) {
		if payload, ok := routes[path]; ok {
			return http.StatusOK, payload
		}
		return http.StatusNotFound, "not found"
	}
}

func TestBatchLoadsAllResources(t *testing.T) {
	h := newCountingHandler(routeBody(map[string]string{
		"/page.html": "<section>page</section>",
		"/page.json": `{"title":"page"}`,
		"/more.html": "<footer>more</footer>",
	}))
	l, srv := newTestLoader(t, h)

	res := l.Batch(context.Background(), []Descriptor{
		{Kind: KindMarkup, Source: srv.URL + "/page.html"},
		{Kind: KindData, Source: srv.URL + "/page.json"},
		{Kind: KindMarkup, Source: srv.URL + "/more.html"},
	}, nil)

	if len(res.Errors) != 0 {
		t.Fatalf("unexpected errors: %v", res.Errors)
	}
	if len(res.Results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(res.Results))
	}
	if res.Progress.Progress != 1 {
		t.Fatalf("expected final progress 1, got %v", res.Progress.Progress)
	}
	if got := res.Results[srv.URL+"/page.html"]; got != "<section>page</section>" {
		t.Fatalf("unexpected markup result: %v", got)
	}
}

func TestBatchToleratesPartialFailure(t *testing.T) {
	h := newCountingHandler(routeBody(map[string]string{
		"/ok.html": "<p>ok</p>",
	}))
	l, srv := newTestLoader(t, h)

	res := l.Batch(context.Background(), []Descriptor{
		{Kind: KindMarkup, Source: srv.URL + "/ok.html"},
		{Kind: KindMarkup, Source: srv.URL + "/missing.html"},
		{Kind: KindData, Source: srv.URL + "/also-missing.json"},
	}, nil)

	if len(res.Results) != 1 {
		t.Fatalf("expected 1 successful result, got %d", len(res.Results))
	}
	if len(res.Errors) != 2 {
		t.Fatalf("expected 2 errors, got %d", len(res.Errors))
	}
	var terr *TransportError
	if err := res.Errors[srv.URL+"/missing.html"]; !errors.As(err, &terr) {
		t.Fatalf("expected TransportError for missing resource, got %v", err)
	}
	// The surviving sibling is unaffected.
	if res.Results[srv.URL+"/ok.html"] != "<p>ok</p>" {
		t.Fatalf("sibling result corrupted: %v", res.Results)
	}
}

func TestBatchEmptyDescriptors(t *testing.T) {
	h := newCountingHandler(routeBody(nil))
	l, _ := newTestLoader(t, h)

	res := l.Batch(context.Background(), nil, nil)
	if len(res.Results) != 0 || len(res.Errors) != 0 {
		t.Fatalf("expected empty result, got %+v", res)
	}
}

func TestBatchAggregateProgressReachesOne(t *testing.T) {
	h := newCountingHandler(routeBody(map[string]string{
		"/a.html": "<div>a</div>",
		"/b.html": "<div>bb</div>",
	}))
	l, srv := newTestLoader(t, h)

	var mu sync.Mutex
	var events []LoadingProgress
	res := l.Batch(context.Background(), []Descriptor{
		{Kind: KindMarkup, Source: srv.URL + "/a.html"},
		{Kind: KindMarkup, Source: srv.URL + "/b.html"},
	}, func(p LoadingProgress) {
		mu.Lock()
		events = append(events, p)
		mu.Unlock()
	})

	if res.Progress.Progress != 1 {
		t.Fatalf("expected aggregate progress 1, got %v", res.Progress.Progress)
	}
	if res.Progress.ResourceID != "batch" {
		t.Fatalf("unexpected aggregate resource id %q", res.Progress.ResourceID)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(events) == 0 {
		t.Fatal("expected batch progress events")
	}
	var sawComplete bool
	for _, p := range events {
		if p.Progress < 0 || p.Progress > 1 {
			t.Fatalf("aggregate progress out of range: %v", p.Progress)
		}
		if p.Progress == 1 {
			sawComplete = true
		}
	}
	if !sawComplete {
		t.Fatal("no batch event reported completion")
	}
}

func TestBatchFailedResourceStillCountsAsDone(t *testing.T) {
	h := newCountingHandler(routeBody(map[string]string{
		"/a.html": "<div>a</div>",
	}))
	l, srv := newTestLoader(t, h)

	res := l.Batch(context.Background(), []Descriptor{
		{Kind: KindMarkup, Source: srv.URL + "/a.html"},
		{Kind: KindMarkup, Source: srv.URL + "/gone.html"},
	}, nil)

	if len(res.Errors) != 1 {
		t.Fatalf("expected 1 error, got %v", res.Errors)
	}
	// A failed resource pins at completion so the aggregate still resolves.
	if res.Progress.Progress != 1 {
		t.Fatalf("expected final aggregate 1 despite failure, got %v", res.Progress.Progress)
	}
}

func TestBatchPreservesPerDescriptorCallbacks(t *testing.T) {
	h := newCountingHandler(routeBody(map[string]string{
		"/a.html": "<div>a</div>",
	}))
	l, srv := newTestLoader(t, h)

	var mu sync.Mutex
	var perCall int
	res := l.Batch(context.Background(), []Descriptor{
		{
			Kind:   KindMarkup,
			Source: srv.URL + "/a.html",
			Options: &LoadOptions{OnProgress: func(p LoadingProgress) {
				mu.Lock()
				perCall++
				mu.Unlock()
			}},
		},
	}, nil)

	if len(res.Errors) != 0 {
		t.Fatalf("unexpected errors: %v", res.Errors)
	}
	mu.Lock()
	defer mu.Unlock()
	if perCall == 0 {
		t.Fatal("descriptor's own progress callback was not invoked")
	}
}
