package plugins

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

type fakeUploader struct {
	uploads int
	fail    bool
}

func (f *fakeUploader) UploadMedia(data []byte, contentType, filename string) (string, error) {
	f.uploads++
	if f.fail {
		return "", fmt.Errorf("upload rejected")
	}
	return "mxc://example.com/uploaded", nil
}

func newXkcdTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	var server *httptest.Server
	server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/info.0.json":
			fmt.Fprintf(w, `{"num":2000,"title":"Latest","safe_title":"Latest","img":"%s/comics/latest.png","alt":"the newest one"}`, server.URL)
		case "/614/info.0.json":
			fmt.Fprintf(w, `{"num":614,"title":"","safe_title":"Woodpecker","img":"%s/comics/woodpecker.png","alt":"strong beaks"}`, server.URL)
		case "/comics/latest.png", "/comics/woodpecker.png":
			w.Header().Set("Content-Type", "image/png")
			w.Write([]byte("png-bytes"))
		default:
			http.NotFound(w, r)
		}
	}))
	return server
}

func TestXkcdLatest(t *testing.T) {
	server := newXkcdTestServer(t)
	defer server.Close()

	up := &fakeUploader{}
	p := NewXkcd(up)
	p.baseURL = server.URL

	msg := p.Handle(context.Background(), "xkcd", "xkcd", "@a:x", "!r:x", time.Now())
	if !strings.Contains(msg.Body, "xkcd #2000: Latest") {
		t.Errorf("Unexpected reply body:\n%s", msg.Body)
	}
	if !strings.Contains(msg.Body, "mxc://example.com/uploaded") {
		t.Errorf("Expected re-hosted image URI in body:\n%s", msg.Body)
	}
	if up.uploads != 1 {
		t.Errorf("Expected 1 upload, got %d", up.uploads)
	}
}

func TestXkcdByNumberUsesSafeTitle(t *testing.T) {
	server := newXkcdTestServer(t)
	defer server.Close()

	p := NewXkcd(nil)
	p.baseURL = server.URL

	msg := p.Handle(context.Background(), "xkcd", "xkcd 614", "@a:x", "!r:x", time.Now())
	if !strings.Contains(msg.Body, "xkcd #614: Woodpecker") {
		t.Errorf("Expected safe_title fallback in body:\n%s", msg.Body)
	}
	// No uploader: the external image URL is referenced directly.
	if !strings.Contains(msg.Body, "/comics/woodpecker.png") {
		t.Errorf("Expected external image URL in body:\n%s", msg.Body)
	}
}

func TestXkcdUploadFailureFallsBack(t *testing.T) {
	server := newXkcdTestServer(t)
	defer server.Close()

	up := &fakeUploader{fail: true}
	p := NewXkcd(up)
	p.baseURL = server.URL

	msg := p.Handle(context.Background(), "xkcd", "xkcd", "@a:x", "!r:x", time.Now())
	if !strings.Contains(msg.Body, "/comics/latest.png") {
		t.Errorf("Expected fallback to the external URL:\n%s", msg.Body)
	}
	if up.uploads != 1 {
		t.Errorf("Expected the upload to have been attempted, got %d", up.uploads)
	}
}

func TestXkcdUnknownComic(t *testing.T) {
	server := newXkcdTestServer(t)
	defer server.Close()

	p := NewXkcd(nil)
	p.baseURL = server.URL

	msg := p.Handle(context.Background(), "xkcd", "xkcd 99999", "@a:x", "!r:x", time.Now())
	if !strings.Contains(msg.Body, "Could not fetch the comic") {
		t.Errorf("Expected a fetch error reply:\n%s", msg.Body)
	}
}

func TestXkcdBadArgument(t *testing.T) {
	p := NewXkcd(nil)
	for _, arg := range []string{"xkcd abc", "xkcd -3", "xkcd 0"} {
		msg := p.Handle(context.Background(), "xkcd", arg, "@a:x", "!r:x", time.Now())
		if !strings.Contains(msg.Body, "Usage:") {
			t.Errorf("Handle(%q) = %q, want usage message", arg, msg.Body)
		}
	}
}

func TestXkcdRandom(t *testing.T) {
	latestRequests := 0
	var server *httptest.Server
	server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/info.0.json":
			latestRequests++
			fmt.Fprintf(w, `{"num":3,"title":"Three","safe_title":"Three","img":"%s/comics/3.png","alt":"third"}`, server.URL)
		case "/1/info.0.json", "/2/info.0.json", "/3/info.0.json":
			num := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/"), "/info.0.json")
			fmt.Fprintf(w, `{"num":%s,"title":"Comic %s","safe_title":"Comic %s","img":"%s/comics/%s.png","alt":"x"}`,
				num, num, num, server.URL, num)
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	p := NewXkcd(nil)
	p.baseURL = server.URL

	for i := 0; i < 5; i++ {
		msg := p.Handle(context.Background(), "xkcd", "xkcd random", "@a:x", "!r:x", time.Now())
		if !strings.Contains(msg.Body, "xkcd #1:") &&
			!strings.Contains(msg.Body, "xkcd #2:") &&
			!strings.Contains(msg.Body, "xkcd #3:") {
			t.Fatalf("Random pick outside [1, 3]:\n%s", msg.Body)
		}
	}
	if latestRequests != 1 {
		t.Errorf("Latest comic fetched %d times across random picks, want 1 (cached)", latestRequests)
	}
}

func TestXkcdLatestKnownCaches(t *testing.T) {
	server := newXkcdTestServer(t)
	defer server.Close()

	p := NewXkcd(nil)
	p.baseURL = server.URL

	num, err := p.LatestKnown(context.Background())
	if err != nil {
		t.Fatalf("LatestKnown() error = %v", err)
	}
	if num != 2000 {
		t.Errorf("LatestKnown() = %d, want 2000", num)
	}

	// Second lookup is served from the cache; kill the server to prove it.
	server.Close()
	num, err = p.LatestKnown(context.Background())
	if err != nil {
		t.Fatalf("Cached LatestKnown() error = %v", err)
	}
	if num != 2000 {
		t.Errorf("Cached LatestKnown() = %d, want 2000", num)
	}
}
