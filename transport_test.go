package loader

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"testing"
)

// streamHandler serves a payload with a declared Content-Length so the
// loader takes the chunked progress path.
func streamHandler(payload string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", fmt.Sprint(len(payload)))
		w.WriteHeader(http.StatusOK)
		flusher, _ := w.(http.Flusher)
		// Dribble the body out so the client observes several chunks.
		for i := 0; i < len(payload); i += 16 * 1024 {
			end := i + 16*1024
			if end > len(payload) {
				end = len(payload)
			}
			_, _ = w.Write([]byte(payload[i:end]))
			if flusher != nil {
				flusher.Flush()
			}
		}
	})
}

func TestProgressMonotonicAndReachesOne(t *testing.T) {
	payload := strings.Repeat("x", 100*1024)
	l, srv := newTestLoader(t, streamHandler(payload))

	var mu sync.Mutex
	var events []LoadingProgress
	opts := &LoadOptions{
		OnProgress: func(p LoadingProgress) {
			mu.Lock()
			events = append(events, p)
			mu.Unlock()
		},
	}

	v, err := l.Load(context.Background(), KindMarkup, srv.URL+"/big.html", opts)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if v != payload {
		t.Fatal("streamed payload reassembled incorrectly")
	}

	if len(events) == 0 {
		t.Fatal("expected progress events")
	}
	var prev int64 = -1
	for i, p := range events {
		if p.Loaded < prev {
			t.Fatalf("event %d: loaded went backwards (%d -> %d)", i, prev, p.Loaded)
		}
		prev = p.Loaded
		if p.Progress < 0 || p.Progress > 1 {
			t.Fatalf("event %d: progress %f out of range", i, p.Progress)
		}
		if p.ResourceID != srv.URL+"/big.html" {
			t.Fatalf("event %d: unexpected resource id %q", i, p.ResourceID)
		}
	}
	last := events[len(events)-1]
	if last.Progress != 1 || last.Loaded != int64(len(payload)) {
		t.Fatalf("expected terminal progress 1 at %d bytes, got %+v", len(payload), last)
	}
}

func TestProgressUnknownLengthEmitsSingleTerminalEvent(t *testing.T) {
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Chunked transfer: no declared total.
		flusher, _ := w.(http.Flusher)
		_, _ = w.Write([]byte("partial "))
		if flusher != nil {
			flusher.Flush()
		}
		_, _ = w.Write([]byte("payload"))
	})
	l, srv := newTestLoader(t, h)

	var events []LoadingProgress
	opts := &LoadOptions{
		OnProgress: func(p LoadingProgress) { events = append(events, p) },
	}

	v, err := l.Load(context.Background(), KindMarkup, srv.URL+"/chunked", opts)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if v != "partial payload" {
		t.Fatalf("unexpected value %v", v)
	}

	if len(events) != 1 {
		t.Fatalf("expected exactly one terminal event, got %d", len(events))
	}
	if events[0].Loaded != 1 || events[0].Total != 1 || events[0].Progress != 1 {
		t.Fatalf("unexpected terminal event %+v", events[0])
	}
}

func TestGlobalListenersAfterPerCallCallback(t *testing.T) {
	payload := strings.Repeat("y", 64*1024)
	l, srv := newTestLoader(t, streamHandler(payload))

	var mu sync.Mutex
	var order []string
	record := func(name string) ProgressFunc {
		return func(LoadingProgress) {
			mu.Lock()
			order = append(order, name)
			mu.Unlock()
		}
	}

	removeA := l.AddProgressListener(record("global-a"))
	defer removeA()
	removeB := l.AddProgressListener(record("global-b"))
	defer removeB()

	_, err := l.Load(context.Background(), KindMarkup, srv.URL+"/ordered.html", &LoadOptions{
		OnProgress: record("per-call"),
	})
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if len(order) == 0 || len(order)%3 != 0 {
		t.Fatalf("expected per-call plus two globals per event, got %v", order)
	}
	for i := 0; i < len(order); i += 3 {
		if order[i] != "per-call" || order[i+1] != "global-a" || order[i+2] != "global-b" {
			t.Fatalf("listener order wrong at event %d: %v", i/3, order[i:i+3])
		}
	}
}

func TestRemovedListenerStopsReceiving(t *testing.T) {
	l, srv := newTestLoader(t, streamHandler("tiny"))

	var calls int
	remove := l.AddProgressListener(func(LoadingProgress) { calls++ })
	remove()

	if _, err := l.Load(context.Background(), KindMarkup, srv.URL+"/t.html", nil); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if calls != 0 {
		t.Fatalf("removed listener still received %d events", calls)
	}
}

func TestPriorityHintForwarded(t *testing.T) {
	var got string
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get("Priority")
		_, _ = w.Write([]byte("ok"))
	})
	l, srv := newTestLoader(t, h)

	_, err := l.Load(context.Background(), KindMarkup, srv.URL+"/p", &LoadOptions{
		Priority: PriorityHigh,
	})
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if got != "high" {
		t.Fatalf("expected priority hint forwarded, got %q", got)
	}
}
