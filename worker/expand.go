package worker

import (
	"net/url"
	"strings"

	"github.com/fwojciec/autofetch"
	"github.com/gorilla/css/scanner"
)

// Target is one URL the worker will fetch.
type Target struct {
	// URL is the absolute URL of the resource.
	URL string

	// FetchURL is what is requested: URL behind the prefix, if any.
	FetchURL string

	Source string
	Mod    autofetch.Mod
}

// Expand turns a message into fetch targets in message order. References
// that do not resolve to http or https URLs are dropped.
func Expand(msg *autofetch.Message, prefix string) []Target {
	var targets []Target
	add := func(raw, base, source string, mod autofetch.Mod) {
		abs, ok := Resolve(raw, base)
		if !ok {
			return
		}
		targets = append(targets, Target{
			URL:      abs,
			FetchURL: FetchURL(prefix, mod, abs),
			Source:   source,
			Mod:      mod,
		})
	}

	switch msg.Type {
	case autofetch.MessageFetchAll:
		for _, v := range msg.Values {
			add(v, "", autofetch.SourceFetchAll, "")
		}
	case autofetch.MessageValues:
		for _, r := range msg.Srcset {
			for _, candidate := range ParseSrcset(r.Value) {
				add(candidate, r.Resolve, autofetch.SourceSrcset, r.Mod)
			}
		}
		for _, r := range msg.Src {
			add(strings.TrimSpace(r.Value), r.Resolve, autofetch.SourceSrc, r.Mod)
		}
		for _, m := range msg.Media {
			for _, ref := range CSSURLs(m.CSSText) {
				add(ref, m.Resolve, autofetch.SourceMedia, "")
			}
		}
	}
	return targets
}

// FetchURL returns the URL requested for abs. With a prefix, modified
// resources are requested as prefix+mod+"/"+abs and others as prefix+abs.
func FetchURL(prefix string, mod autofetch.Mod, abs string) string {
	if prefix == "" {
		return abs
	}
	if mod != "" {
		return prefix + string(mod) + "/" + abs
	}
	return prefix + abs
}

// Resolve resolves ref against base and reports whether the result is an
// http or https URL.
func Resolve(ref, base string) (string, bool) {
	if ref == "" {
		return "", false
	}
	u, err := url.Parse(ref)
	if err != nil {
		return "", false
	}
	if base != "" {
		b, err := url.Parse(base)
		if err != nil {
			return "", false
		}
		u = b.ResolveReference(u)
	}
	if u.Scheme != "http" && u.Scheme != "https" || u.Host == "" {
		return "", false
	}
	u.Fragment, u.RawFragment = "", ""
	return u.String(), true
}

// ParseSrcset returns the candidate URLs of a srcset value in order.
// Descriptors are dropped. A URL may contain commas as long as they are not
// trailing, as in image CDN transformation paths.
func ParseSrcset(value string) []string {
	var urls []string
	s := value
	for {
		s = strings.TrimLeft(s, " \t\n\r\f,")
		if s == "" {
			return urls
		}

		end := strings.IndexAny(s, " \t\n\r\f")
		var candidate string
		if end == -1 {
			candidate, s = s, ""
		} else {
			candidate, s = s[:end], s[end:]
		}

		if strings.HasSuffix(candidate, ",") {
			if u := strings.TrimRight(candidate, ","); u != "" {
				urls = append(urls, u)
			}
			continue
		}
		urls = append(urls, candidate)
		s = skipDescriptors(s)
	}
}

// skipDescriptors advances past the descriptors of one candidate, up to and
// including the comma that ends it. Commas inside parentheses do not end a
// candidate.
func skipDescriptors(s string) string {
	depth := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '(':
			depth++
		case ')':
			if depth > 0 {
				depth--
			}
		case ',':
			if depth == 0 {
				return s[i+1:]
			}
		}
	}
	return ""
}

// CSSURLs returns every url(...) reference in a block of CSS text, in
// order. Empty and data: references are skipped.
func CSSURLs(cssText string) []string {
	var refs []string
	s := scanner.New(cssText)
	for {
		tok := s.Next()
		if tok.Type == scanner.TokenEOF || tok.Type == scanner.TokenError {
			return refs
		}
		if tok.Type != scanner.TokenURI {
			continue
		}
		ref := uriValue(tok.Value)
		if ref == "" || strings.HasPrefix(strings.ToLower(ref), "data:") {
			continue
		}
		refs = append(refs, ref)
	}
}

// uriValue strips url( ) and optional quotes from a URI token.
func uriValue(tok string) string {
	v := strings.TrimSpace(tok[len("url(") : len(tok)-1])
	if len(v) >= 2 && (v[0] == '"' || v[0] == '\'') && v[len(v)-1] == v[0] {
		v = v[1 : len(v)-1]
	}
	return strings.TrimSpace(v)
}
