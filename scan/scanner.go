// Package scan drives periodic discovery of lazily loaded resources in a
// document and dispatches what it finds to the fetch worker.
package scan

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/fwojciec/autofetch"
	"github.com/fwojciec/autofetch/goquery"
	"golang.org/x/sync/errgroup"
)

// DefaultProxyFetchTimeout bounds one proxied stylesheet fetch.
const DefaultProxyFetchTimeout = 30 * time.Second

// Scanner runs the DOM and stylesheet extraction pipelines over one
// document and posts their results to a worker channel.
type Scanner struct {
	Document autofetch.Document
	Channel  autofetch.WorkerChannel

	// Fetcher and Parser reparse stylesheets whose rules cannot be read.
	Fetcher autofetch.Fetcher
	Parser  autofetch.StyleParser

	// ProxyMagic is the archive proxy host. Sheets already served through
	// it are skipped, and unreadable sheets are refetched through it.
	ProxyMagic string

	// FetchTimeout bounds each proxied fetch. Zero means DefaultProxyFetchTimeout.
	FetchTimeout time.Duration

	Logger *slog.Logger

	passMu   sync.Mutex
	deferred sync.WaitGroup
}

// ExtractFromLocalDoc performs one combined pass: the DOM pipeline, then the
// stylesheet pipeline. Passes never overlap. Failures reduce what is
// discovered and are logged; they never escape the pass.
func (s *Scanner) ExtractFromLocalDoc(ctx context.Context) {
	s.passMu.Lock()
	defer s.passMu.Unlock()

	snap, err := s.Document.Snapshot(ctx)
	if err != nil {
		s.logger().Warn("snapshot failed", "err", err)
		return
	}

	s.ExtractSrcSrcset(snap)
	s.CheckStyleSheets(ctx, snap)
}

// ExtractSrcSrcset posts the srcset and src records found in the snapshot
// markup as one message. Nothing is posted when both are empty.
func (s *Scanner) ExtractSrcSrcset(snap *autofetch.Snapshot) {
	srcset, src, err := goquery.ExtractSrcSrcset(snap.HTML, snap.BaseURI)
	if err != nil {
		s.logger().Warn("element extraction failed", "err", err)
		return
	}
	if len(srcset) == 0 && len(src) == 0 {
		return
	}
	s.PostMessage(&autofetch.Message{
		Type:   autofetch.MessageValues,
		Srcset: srcset,
		Src:    src,
	})
}

// CheckStyleSheets harvests media rules from the snapshot's stylesheets.
//
// Readable sheets contribute to one immediate message. Unreadable sheets
// with an href are refetched through the proxy in the background; their
// rules are posted as a second message once every refetch has finished.
// Background refetches are detached from ctx cancellation.
func (s *Scanner) CheckStyleSheets(ctx context.Context, snap *autofetch.Snapshot) {
	var media []autofetch.MediaRule
	var pending []string

	for _, sheet := range snap.StyleSheets {
		if s.ShouldSkipSheet(sheet) {
			continue
		}
		if sheet.Readable && sheet.Err == nil {
			resolve := sheet.Href
			if resolve == "" {
				resolve = snap.BaseURI
			}
			media = append(media, ExtractMediaRules(sheet.Rules, resolve)...)
			continue
		}
		if sheet.Href != "" {
			pending = append(pending, sheet.Href)
		}
	}

	if len(media) > 0 {
		s.PostMessage(&autofetch.Message{Type: autofetch.MessageValues, Media: media})
	}

	if len(pending) == 0 {
		return
	}
	s.deferred.Add(1)
	go func() {
		defer s.deferred.Done()
		s.extractDeferred(context.WithoutCancel(ctx), snap.URL, pending)
	}()
}

// extractDeferred refetches each href concurrently and posts the combined
// media rules. A failed refetch contributes nothing.
func (s *Scanner) extractDeferred(ctx context.Context, pageURL string, hrefs []string) {
	results := make([][]autofetch.MediaRule, len(hrefs))

	g, gctx := errgroup.WithContext(ctx)
	for i, href := range hrefs {
		g.Go(func() error {
			results[i] = s.fetchCSSAndExtract(gctx, pageURL, href)
			return nil
		})
	}
	_ = g.Wait()

	var media []autofetch.MediaRule
	for _, r := range results {
		media = append(media, r...)
	}
	if len(media) > 0 {
		s.PostMessage(&autofetch.Message{Type: autofetch.MessageValues, Media: media})
	}
}

// fetchCSSAndExtract refetches a stylesheet through the proxy and returns
// its media rules resolved against the original href.
func (s *Scanner) fetchCSSAndExtract(ctx context.Context, pageURL, href string) []autofetch.MediaRule {
	proxyURL, err := ProxyFetchURL(pageURL, s.ProxyMagic, href)
	if err != nil {
		s.logger().Debug("proxy fetch skipped", "href", href, "err", err)
		return nil
	}

	timeout := s.FetchTimeout
	if timeout <= 0 {
		timeout = DefaultProxyFetchTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	text, err := s.Fetcher.Fetch(ctx, proxyURL)
	if err != nil {
		s.logger().Debug("proxy fetch failed", "href", href, "err", err)
		return nil
	}

	rules, err := s.Parser.ParseRules(ctx, text)
	if err != nil {
		s.logger().Debug("stylesheet reparse failed", "href", href, "err", err)
		return nil
	}
	return ExtractMediaRules(rules, href)
}

// Wait blocks until every background stylesheet refetch has posted.
func (s *Scanner) Wait() {
	s.deferred.Wait()
}

// JustFetch asks the worker to fetch an explicit list of URLs.
func (s *Scanner) JustFetch(urls []string) {
	s.PostMessage(&autofetch.Message{Type: autofetch.MessageFetchAll, Values: urls})
}

// PostMessage passes msg to the worker channel.
func (s *Scanner) PostMessage(msg *autofetch.Message) {
	s.Channel.PostMessage(msg)
}

// Terminate terminates the worker channel. It is a no-op for channels that
// do not own a worker.
func (s *Scanner) Terminate() {
	s.Channel.Terminate()
}

// ShouldSkipSheet reports whether a sheet must not be scanned: the scratch
// sheet used for reparsing, and sheets already served by the proxy.
func (s *Scanner) ShouldSkipSheet(sheet autofetch.StyleSheet) bool {
	if sheet.OwnerID == autofetch.ScratchStyleID {
		return true
	}
	return s.ProxyMagic != "" && sheet.Href != "" && strings.Contains(sheet.Href, s.ProxyMagic)
}

func (s *Scanner) logger() *slog.Logger {
	if s.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return s.Logger
}

// ExtractMediaRules returns the media rules among rules, each resolving
// against resolve.
func ExtractMediaRules(rules []autofetch.CSSRule, resolve string) []autofetch.MediaRule {
	var results []autofetch.MediaRule
	for _, rule := range rules {
		if rule.Type == autofetch.RuleMedia {
			results = append(results, autofetch.MediaRule{CSSText: rule.CSSText, Resolve: resolve})
		}
	}
	return results
}

// ProxyFetchURL builds the same-origin URL that refetches href through the
// archive proxy: <scheme>://<proxyMagic>/proxy-fetch/<href>. The scheme is
// taken from the page URL.
func ProxyFetchURL(pageURL, proxyMagic, href string) (string, error) {
	if proxyMagic == "" {
		return "", autofetch.Errorf(autofetch.EINVALID, "proxy magic host required")
	}
	page, err := url.Parse(pageURL)
	if err != nil {
		return "", autofetch.Errorf(autofetch.EINVALID, "invalid page URL: %v", err)
	}
	scheme := page.Scheme
	if scheme == "" {
		scheme = "http"
	}
	return fmt.Sprintf("%s://%s/proxy-fetch/%s", scheme, proxyMagic, href), nil
}
