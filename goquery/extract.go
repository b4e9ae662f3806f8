// Package goquery extracts lazily loaded URLs from HTML and builds document
// snapshots from static markup.
package goquery

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/fwojciec/autofetch"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// ElementSelector matches every element that may carry a URL the browser
// will not request during normal rendering.
const ElementSelector = "img[srcset], img[data-srcset], img[data-src], " +
	"video[srcset], video[data-srcset], video[data-src], " +
	"audio[srcset], audio[data-srcset], audio[data-src], " +
	"picture > source[srcset], picture > source[data-srcset], picture > source[data-src], " +
	"video > source[srcset], video > source[data-srcset], video > source[data-src], " +
	"audio > source[srcset], audio > source[data-srcset], audio > source[data-src]"

// ExtractSrcSrcset finds the elements matched by ElementSelector and returns
// their srcset-category and src-category records in document order.
// The baseURI resolves element src attributes and is the fallback resolve
// base for elements without a usable src.
func ExtractSrcSrcset(htmlText string, baseURI string) (srcset, src []autofetch.URLRecord, err error) {
	base, err := url.Parse(baseURI)
	if err != nil {
		return nil, nil, autofetch.Errorf(autofetch.EINVALID, "invalid base URI: %v", err)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlText))
	if err != nil {
		return nil, nil, autofetch.Errorf(autofetch.EINVALID, "failed to parse HTML: %v", err)
	}

	doc.Find(ElementSelector).Each(func(_ int, sel *goquery.Selection) {
		node := sel.Get(0)

		// The live src is kept so the worker can resolve relative candidates
		// the way the element itself does.
		srcv := liveSrc(base, sel)
		resolve := baseURI
		if srcv != "" {
			resolve = srcv
		}
		mod := ClassifyMod(node)

		if v := sel.AttrOr("srcset", ""); v != "" {
			srcset = append(srcset, autofetch.URLRecord{Value: v, Resolve: resolve, Mod: mod})
		}
		if v := sel.AttrOr("data-srcset", ""); v != "" {
			srcset = append(srcset, autofetch.URLRecord{Value: v, Resolve: resolve, Mod: mod})
		}
		if v := sel.AttrOr("data-src", ""); v != "" {
			src = append(src, autofetch.URLRecord{Value: v, Resolve: resolve, Mod: mod})
		}
		if node.DataAtom == atom.Source && srcv != "" {
			src = append(src, autofetch.URLRecord{Value: srcv, Resolve: baseURI, Mod: mod})
		}
	})

	return srcset, src, nil
}

// ClassifyMod returns the rewrite modifier for a matched element. It depends
// only on the element's tag and its parent's tag.
func ClassifyMod(n *html.Node) autofetch.Mod {
	switch n.DataAtom {
	case atom.Source:
		if n.Parent != nil && n.Parent.DataAtom == atom.Picture {
			return autofetch.ModImage
		}
		return autofetch.ModEmbed
	case atom.Img:
		return autofetch.ModImage
	default:
		return autofetch.ModEmbed
	}
}

// liveSrc returns the element's src resolved against base, or an empty
// string when the src is missing or cannot serve as a resolve base.
func liveSrc(base *url.URL, sel *goquery.Selection) string {
	raw := strings.TrimSpace(sel.AttrOr("src", ""))
	if raw == "" || !UsableResolveBase(raw) {
		return ""
	}
	ref, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return base.ResolveReference(ref).String()
}

// UsableResolveBase reports whether a src value can be used to resolve
// relative references. data: and blob: URIs carry no location.
func UsableResolveBase(src string) bool {
	lower := strings.ToLower(src)
	return src != "" &&
		!strings.HasPrefix(lower, "data:") &&
		!strings.HasPrefix(lower, "blob:")
}
