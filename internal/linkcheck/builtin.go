package linkcheck

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"git.home.luguber.info/inful/docpublisher/internal/logfields"
	"git.home.luguber.info/inful/docpublisher/internal/retry"
)

// Builtin verifies links in rendered pages itself: internal links against
// the site directory on disk, external links over HTTP.
type Builtin struct {
	SiteDir string
	// BasePath is stripped from root-relative links.
	BasePath     string
	Policy       *Policy
	Client       *http.Client
	UserAgent    string
	Concurrency  int
	Retry        retry.Policy
	SkipExternal bool
	Cache        Cache
	Events       EventPublisher
	RunID        string
	Branch       string
	Logger       *slog.Logger
}

type probeResult struct {
	status int
	err    error
	prev   *CacheEntry
}

type linkRef struct {
	page Page
	link Link
}

// Check implements Checker.
func (b *Builtin) Check(ctx context.Context, pages []Page) (*Report, error) {
	logger := b.logger()
	report := &Report{Pages: len(pages)}

	external := make(map[string][]linkRef)
	seenExcluded := make(map[string]bool)
	for _, page := range pages {
		links, err := ExtractLinks(page.HTML)
		if err != nil {
			return nil, fmt.Errorf("page %s: %w", page.Rel, err)
		}
		for _, link := range links {
			report.Links++
			if link.Internal {
				report.Checked++
				if !b.internalExists(page, link.URL) {
					report.Broken = append(report.Broken, BrokenLink{
						Page: page.Rel, Source: page.Source, URL: link.URL, Internal: true, Error: "target not found in site",
					})
				}
				continue
			}
			abs := absoluteURL(link.URL)
			if rule, ok := b.Policy.Match(abs); ok {
				if key := page.Rel + "\x00" + abs; !seenExcluded[key] {
					seenExcluded[key] = true
					report.Excluded = append(report.Excluded, ExcludedLink{Page: page.Rel, URL: abs, Reason: rule.Reason})
				}
				continue
			}
			if b.SkipExternal {
				continue
			}
			external[abs] = append(external[abs], linkRef{page: page, link: link})
		}
	}

	results, err := b.probeAll(ctx, external)
	if err != nil {
		return nil, err
	}
	for u, refs := range external {
		report.Checked++
		res := results[u]
		if res.err == nil {
			continue
		}
		pagesSeen := make(map[string]bool)
		for _, ref := range refs {
			if pagesSeen[ref.page.Rel] {
				continue
			}
			pagesSeen[ref.page.Rel] = true
			report.Broken = append(report.Broken, BrokenLink{
				Page: ref.page.Rel, Source: ref.page.Source, URL: u, Status: res.status, Error: res.err.Error(),
			})
		}
	}

	sort.Slice(report.Broken, func(i, j int) bool {
		if report.Broken[i].Page != report.Broken[j].Page {
			return report.Broken[i].Page < report.Broken[j].Page
		}
		return report.Broken[i].URL < report.Broken[j].URL
	})
	report.NoMatch = report.Checked == 0
	b.publish(ctx, report, results)

	for _, bl := range report.Broken {
		logger.Warn("Broken link detected", logfields.URL(bl.URL), slog.String("page", bl.Page), slog.Int("status", bl.Status), slog.String("reason", bl.Error))
	}
	logger.Info("Link check finished",
		slog.Int("pages", report.Pages),
		slog.Int("links", report.Links),
		slog.Int("checked", report.Checked),
		slog.Int("excluded", len(report.Excluded)),
		slog.Int("broken", len(report.Broken)))

	if len(report.Broken) > 0 {
		return report, fmt.Errorf("%w: %d broken", ErrBrokenLinks, len(report.Broken))
	}
	return report, nil
}

func (b *Builtin) logger() *slog.Logger {
	if b.Logger != nil {
		return b.Logger
	}
	return slog.Default()
}

// probeAll verifies each distinct URL once with bounded concurrency.
func (b *Builtin) probeAll(ctx context.Context, external map[string][]linkRef) (map[string]probeResult, error) {
	urls := make([]string, 0, len(external))
	for u := range external {
		urls = append(urls, u)
	}
	sort.Strings(urls)

	limit := b.Concurrency
	if limit <= 0 {
		limit = 8
	}
	sem := make(chan struct{}, limit)
	results := make(map[string]probeResult, len(urls))
	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)

loop:
	for _, u := range urls {
		select {
		case <-ctx.Done():
			break loop
		case sem <- struct{}{}:
		}
		wg.Add(1)
		go func(u string) {
			defer wg.Done()
			defer func() { <-sem }()
			res := b.verify(ctx, u)
			mu.Lock()
			results[u] = res
			mu.Unlock()
		}(u)
	}
	wg.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

// verify consults the cache for a recent success; failures are always
// re-probed.
func (b *Builtin) verify(ctx context.Context, u string) probeResult {
	var prev *CacheEntry
	if b.Cache != nil {
		cached, err := b.Cache.Get(ctx, u)
		switch {
		case err != nil:
			b.logger().Debug("Cache lookup error", logfields.URL(u), logfields.Error(err))
		case cached != nil && cached.Valid:
			return probeResult{status: cached.Status}
		default:
			prev = cached
		}
	}

	status, err := b.probe(ctx, u)
	if b.Cache != nil && ctx.Err() == nil {
		entry := &CacheEntry{URL: u, Status: status, Valid: err == nil, LastChecked: time.Now()}
		if err != nil {
			entry.Error = err.Error()
			entry.FailureCount = 1
			entry.FirstFailedAt = entry.LastChecked
			if prev != nil {
				entry.FailureCount = prev.FailureCount + 1
				if !prev.FirstFailedAt.IsZero() {
					entry.FirstFailedAt = prev.FirstFailedAt
				}
			}
			prev = entry
		}
		if perr := b.Cache.Put(ctx, entry); perr != nil {
			b.logger().Warn("Failed to update link cache", logfields.URL(u), logfields.Error(perr))
		}
	}
	return probeResult{status: status, err: err, prev: prev}
}

// probe issues HEAD, falling back to GET when the server rejects HEAD, and
// retries 429 responses with the retry policy.
func (b *Builtin) probe(ctx context.Context, u string) (int, error) {
	for attempt := 0; ; attempt++ {
		status, err := b.request(ctx, http.MethodHead, u)
		if err == nil && (status == http.StatusMethodNotAllowed || status == http.StatusNotImplemented) {
			status, err = b.request(ctx, http.MethodGet, u)
		}
		if err == nil && status == http.StatusTooManyRequests && attempt < b.Retry.MaxRetries {
			b.logger().Debug("Rate limited, retrying", logfields.URL(u), slog.Int("attempt", attempt+1))
			if werr := b.Retry.Wait(ctx, attempt+1); werr != nil {
				return status, werr
			}
			continue
		}
		if err != nil {
			return 0, err
		}
		return status, classifyStatus(status)
	}
}

func (b *Builtin) request(ctx context.Context, method, u string) (int, error) {
	req, err := http.NewRequestWithContext(ctx, method, u, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	if b.UserAgent != "" {
		req.Header.Set("User-Agent", b.UserAgent)
	}
	client := b.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64*1024))
	return resp.StatusCode, nil
}

// classifyStatus treats auth challenges as reachable: the URL exists but
// needs credentials.
func classifyStatus(status int) error {
	switch {
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return nil
	case status >= 400:
		return fmt.Errorf("HTTP %d %s", status, http.StatusText(status))
	default:
		return nil
	}
}

func absoluteURL(ref string) string {
	if strings.HasPrefix(ref, "//") {
		ref = "https:" + ref
	}
	u, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	u.Fragment = ""
	return u.String()
}

// internalExists resolves a site-relative reference on disk. Directory
// targets need an index.html; extensionless targets may be .html files.
func (b *Builtin) internalExists(page Page, ref string) bool {
	u, err := url.Parse(ref)
	if err != nil {
		return false
	}
	p := u.Path
	if p == "" {
		return true
	}
	if unescaped, err := url.PathUnescape(p); err == nil {
		p = unescaped
	}

	var target string
	if strings.HasPrefix(p, "/") {
		if base := "/" + strings.Trim(b.BasePath, "/"); base != "/" {
			switch {
			case p == base:
				p = "/"
			case strings.HasPrefix(p, base+"/"):
				p = strings.TrimPrefix(p, base)
			}
		}
		target = filepath.Join(b.SiteDir, filepath.FromSlash(p))
	} else {
		target = filepath.Join(filepath.Dir(page.HTML), filepath.FromSlash(p))
	}

	info, err := os.Stat(target)
	if err == nil {
		if !info.IsDir() {
			return true
		}
		_, err = os.Stat(filepath.Join(target, "index.html"))
		return err == nil
	}
	_, err = os.Stat(target + ".html")
	return err == nil
}

func (b *Builtin) publish(ctx context.Context, report *Report, results map[string]probeResult) {
	if b.Events == nil {
		return
	}
	for _, bl := range report.Broken {
		event := &BrokenLinkEvent{
			URL: bl.URL, Status: bl.Status, Error: bl.Error, Internal: bl.Internal,
			Page: bl.Page, Source: bl.Source, RunID: b.RunID, Branch: b.Branch,
			Timestamp: time.Now(), FailureCount: 1,
		}
		if res, ok := results[bl.URL]; ok && res.prev != nil {
			event.FailureCount = res.prev.FailureCount
			event.FirstFailedAt = res.prev.FirstFailedAt
		}
		if err := b.Events.PublishBrokenLink(ctx, event); err != nil {
			b.logger().Error("Failed to publish broken link event", logfields.URL(bl.URL), logfields.Error(err))
		}
	}
}
