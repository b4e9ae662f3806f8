package goquery

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/fwojciec/autofetch"
)

// Ensure Document implements autofetch.Document at compile time.
var _ autofetch.Document = (*Document)(nil)

// Document is a page scanned from its served markup rather than a live
// browser. Every snapshot refetches the page, so markup changes between
// ticks are picked up.
//
// A static snapshot cannot read the rules of linked stylesheets; they are
// reported unreadable and go through the proxy-fetch path.
type Document struct {
	url     string
	fetcher autofetch.Fetcher
	parser  autofetch.StyleParser
}

// NewDocument creates a Document for the page at pageURL.
func NewDocument(pageURL string, fetcher autofetch.Fetcher, parser autofetch.StyleParser) *Document {
	return &Document{
		url:     pageURL,
		fetcher: fetcher,
		parser:  parser,
	}
}

// ReadyState always reports complete: served markup is whole once fetched.
func (d *Document) ReadyState(ctx context.Context) (autofetch.ReadyState, error) {
	return autofetch.ReadyComplete, nil
}

// Snapshot fetches the page and builds a snapshot from its markup.
func (d *Document) Snapshot(ctx context.Context) (*autofetch.Snapshot, error) {
	body, err := d.fetcher.Fetch(ctx, d.url)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", d.url, err)
	}
	return BuildSnapshot(ctx, d.url, body, d.parser)
}

// BuildSnapshot parses markup served at pageURL into a snapshot.
// Inline style elements are parsed with parser; linked stylesheets are
// reported unreadable.
func BuildSnapshot(ctx context.Context, pageURL string, htmlText string, parser autofetch.StyleParser) (*autofetch.Snapshot, error) {
	page, err := url.Parse(pageURL)
	if err != nil {
		return nil, autofetch.Errorf(autofetch.EINVALID, "invalid page URL: %v", err)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlText))
	if err != nil {
		return nil, autofetch.Errorf(autofetch.EINVALID, "failed to parse HTML: %v", err)
	}

	base := page
	if href, ok := doc.Find("base[href]").First().Attr("href"); ok {
		if ref, err := url.Parse(strings.TrimSpace(href)); err == nil {
			base = page.ResolveReference(ref)
		}
	}

	snap := &autofetch.Snapshot{
		URL:     page.String(),
		BaseURI: base.String(),
		HTML:    htmlText,
	}

	doc.Find("style, link[rel][href]").Each(func(_ int, sel *goquery.Selection) {
		id := sel.AttrOr("id", "")

		if goquery.NodeName(sel) == "style" {
			sheet := autofetch.StyleSheet{OwnerID: id}
			rules, err := parser.ParseRules(ctx, sel.Text())
			if err != nil {
				sheet.Err = err
			} else {
				sheet.Readable = true
				sheet.Rules = rules
			}
			snap.StyleSheets = append(snap.StyleSheets, sheet)
			return
		}

		if !isStylesheetLink(sel.AttrOr("rel", "")) {
			return
		}
		ref, err := url.Parse(strings.TrimSpace(sel.AttrOr("href", "")))
		if err != nil {
			return
		}
		href := base.ResolveReference(ref).String()
		snap.StyleSheets = append(snap.StyleSheets, autofetch.StyleSheet{
			OwnerID: id,
			Href:    href,
			Err:     autofetch.Errorf(autofetch.ECROSSORIGIN, "rules of %s are not readable from served markup", href),
		})
	})

	return snap, nil
}

// isStylesheetLink reports whether a rel attribute contains the stylesheet
// keyword. Alternate stylesheets are included.
func isStylesheetLink(rel string) bool {
	for _, token := range strings.Fields(strings.ToLower(rel)) {
		if token == "stylesheet" {
			return true
		}
	}
	return false
}
