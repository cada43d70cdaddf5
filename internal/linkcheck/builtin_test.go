package linkcheck

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/docpublisher/internal/config"
	"git.home.luguber.info/inful/docpublisher/internal/retry"
	helpers "git.home.luguber.info/inful/docpublisher/internal/testutil/testutils"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []*BrokenLinkEvent
}

func (p *recordingPublisher) PublishBrokenLink(_ context.Context, e *BrokenLinkEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

type fakeServer struct {
	*httptest.Server
	hits    sync.Map
	limited atomic.Int64
}

func (s *fakeServer) count(path string) int64 {
	v, ok := s.hits.Load(path)
	if !ok {
		return 0
	}
	return v.(*atomic.Int64).Load()
}

func newFakeServer(t *testing.T) *fakeServer {
	t.Helper()
	fs := &fakeServer{}
	fs.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		v, _ := fs.hits.LoadOrStore(r.URL.Path, &atomic.Int64{})
		v.(*atomic.Int64).Add(1)
		switch r.URL.Path {
		case "/ok":
			w.WriteHeader(http.StatusOK)
		case "/missing":
			w.WriteHeader(http.StatusNotFound)
		case "/no-head":
			if r.Method == http.MethodHead {
				w.WriteHeader(http.StatusMethodNotAllowed)
				return
			}
			w.WriteHeader(http.StatusOK)
		case "/private":
			w.WriteHeader(http.StatusForbidden)
		case "/limited":
			if fs.limited.Add(1) == 1 {
				w.WriteHeader(http.StatusTooManyRequests)
				return
			}
			w.WriteHeader(http.StatusOK)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(fs.Close)
	return fs
}

func newBuiltin(t *testing.T, srv *fakeServer) (*Builtin, []Page) {
	t.Helper()
	site := t.TempDir()
	page := fmt.Sprintf(`<html><body>
<a href="%[1]s/ok">ok</a>
<a href="%[1]s/ok#again">ok again</a>
<a href="%[1]s/missing">missing</a>
<a href="%[1]s/no-head">no head</a>
<a href="%[1]s/private">private</a>
<a href="%[1]s/limited">limited</a>
<a href="https://x.com/someone">social</a>
<a href="../concepts/">concepts</a>
<a href="/base/concepts/">rooted</a>
<a href="../nope.html">nope</a>
<img src="plot.png">
</body></html>`, srv.URL)
	helpers.WriteTree(t, site, map[string]string{
		"quickstart/index.html": page,
		"quickstart/plot.png":   "png",
		"concepts/index.html":   "<html></html>",
	})

	policy, err := NewPolicy([]config.ExcludeRule{{Pattern: `^https://x\.com/`, Reason: "social"}}, true)
	require.NoError(t, err)

	b := &Builtin{
		SiteDir:     site,
		BasePath:    "/base/",
		Policy:      policy,
		Client:      srv.Client(),
		Concurrency: 4,
		Retry:       retry.NewPolicy(config.RetryBackoffFixed, time.Millisecond, time.Millisecond, 2),
		Cache:       NewMemoryCache(time.Hour),
		RunID:       "run-1",
		Branch:      "main",
	}
	pages := []Page{{Source: "quickstart.ipynb", Rel: "quickstart/index.html", HTML: filepath.Join(site, "quickstart", "index.html")}}
	return b, pages
}

func TestBuiltinCheckReportsBrokenLinks(t *testing.T) {
	srv := newFakeServer(t)
	b, pages := newBuiltin(t, srv)
	pub := &recordingPublisher{}
	b.Events = pub

	report, err := b.Check(context.Background(), pages)
	require.ErrorIs(t, err, ErrBrokenLinks)
	require.NotNil(t, report)
	require.False(t, report.NoMatch)
	require.Equal(t, 1, report.Pages)

	require.Len(t, report.Broken, 2)
	require.Equal(t, "../nope.html", report.Broken[0].URL)
	require.True(t, report.Broken[0].Internal)
	require.Equal(t, srv.URL+"/missing", report.Broken[1].URL)
	require.Equal(t, http.StatusNotFound, report.Broken[1].Status)

	require.Equal(t, []ExcludedLink{{Page: "quickstart/index.html", URL: "https://x.com/someone", Reason: "social"}}, report.Excluded)

	require.Equal(t, int64(1), srv.count("/ok"), "duplicate URLs are probed once")
	require.Equal(t, int64(2), srv.count("/no-head"), "HEAD then GET")
	require.Equal(t, int64(2), srv.count("/limited"), "429 is retried")

	require.Len(t, pub.events, 2)
	for _, e := range pub.events {
		require.Equal(t, "run-1", e.RunID)
		require.Equal(t, "quickstart.ipynb", e.Source)
	}
}

func TestBuiltinCacheSkipsKnownGoodLinks(t *testing.T) {
	srv := newFakeServer(t)
	b, pages := newBuiltin(t, srv)

	_, err := b.Check(context.Background(), pages)
	require.Error(t, err)
	_, err = b.Check(context.Background(), pages)
	require.Error(t, err)

	require.Equal(t, int64(1), srv.count("/ok"))
	require.Equal(t, int64(2), srv.count("/missing"), "failures are re-probed")

	entry, err := b.Cache.Get(context.Background(), srv.URL+"/missing")
	require.NoError(t, err)
	require.NotNil(t, entry)
	require.Equal(t, 2, entry.FailureCount)
}

func TestBuiltinSkipExternal(t *testing.T) {
	srv := newFakeServer(t)
	b, pages := newBuiltin(t, srv)
	b.SkipExternal = true

	report, err := b.Check(context.Background(), pages)
	require.ErrorIs(t, err, ErrBrokenLinks)
	require.Len(t, report.Broken, 1)
	require.Equal(t, "../nope.html", report.Broken[0].URL)
	require.Equal(t, int64(0), srv.count("/ok"))
}

func TestBuiltinNoLinksIsNoMatch(t *testing.T) {
	site := t.TempDir()
	helpers.WriteTree(t, site, map[string]string{"a/index.html": "<html><body>plain</body></html>"})
	b := &Builtin{SiteDir: site}

	report, err := b.Check(context.Background(), []Page{{Rel: "a/index.html", HTML: filepath.Join(site, "a", "index.html")}})
	require.NoError(t, err)
	require.True(t, report.NoMatch)
}

func TestBuiltinDefaultPolicyExcludesLocalServer(t *testing.T) {
	srv := newFakeServer(t)
	b, pages := newBuiltin(t, srv)
	policy, err := NewPolicy(nil, false)
	require.NoError(t, err)
	b.Policy = policy

	report, err := b.Check(context.Background(), pages)
	require.ErrorIs(t, err, ErrBrokenLinks)
	require.Equal(t, int64(0), srv.count("/missing"), "httptest URLs are local and excluded by default")
	for _, bl := range report.Broken {
		require.True(t, bl.Internal)
	}
}

func TestClassifyStatus(t *testing.T) {
	require.NoError(t, classifyStatus(http.StatusOK))
	require.NoError(t, classifyStatus(http.StatusMovedPermanently))
	require.NoError(t, classifyStatus(http.StatusUnauthorized))
	require.NoError(t, classifyStatus(http.StatusForbidden))
	require.Error(t, classifyStatus(http.StatusNotFound))
	require.Error(t, classifyStatus(http.StatusTooManyRequests))
	require.Error(t, classifyStatus(http.StatusInternalServerError))
}
