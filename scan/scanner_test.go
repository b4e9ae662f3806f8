package scan_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/fwojciec/autofetch"
	"github.com/fwojciec/autofetch/mock"
	"github.com/fwojciec/autofetch/scan"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	pageURL    = "https://example.com/articles/1"
	proxyMagic = "wb-proxy.invalid"
)

// mediaParser treats each line of CSS text as one rule; lines starting with
// @media are media rules.
func mediaParser() *mock.StyleParser {
	return &mock.StyleParser{
		ParseRulesFn: func(ctx context.Context, cssText string) ([]autofetch.CSSRule, error) {
			var rules []autofetch.CSSRule
			for _, line := range strings.Split(strings.TrimSpace(cssText), "\n") {
				typ := autofetch.RuleStyle
				if strings.HasPrefix(line, "@media") {
					typ = autofetch.RuleMedia
				}
				rules = append(rules, autofetch.CSSRule{Type: typ, CSSText: line})
			}
			return rules, nil
		},
	}
}

func snapshotDoc(snap *autofetch.Snapshot) *mock.Document {
	return &mock.Document{
		SnapshotFn: func(ctx context.Context) (*autofetch.Snapshot, error) {
			return snap, nil
		},
	}
}

func unusedFetcher(t *testing.T) *mock.Fetcher {
	return &mock.Fetcher{
		FetchFn: func(ctx context.Context, url string) (string, error) {
			t.Errorf("unexpected fetch of %s", url)
			return "", errors.New("unexpected")
		},
	}
}

func TestScanner_ExtractFromLocalDoc(t *testing.T) {
	t.Parallel()

	t.Run("posts DOM records, immediate media, then deferred media", func(t *testing.T) {
		t.Parallel()

		var mu sync.Mutex
		var fetched []string
		fetcher := &mock.Fetcher{
			FetchFn: func(ctx context.Context, url string) (string, error) {
				mu.Lock()
				fetched = append(fetched, url)
				mu.Unlock()
				return "@media (min-width: 800px) { .hero { background: url(big.jpg) } }", nil
			},
		}
		snap := &autofetch.Snapshot{
			URL:     pageURL,
			BaseURI: pageURL,
			HTML:    `<img data-src="/lazy.jpg">`,
			StyleSheets: []autofetch.StyleSheet{
				{
					Readable: true,
					Rules: []autofetch.CSSRule{
						{Type: autofetch.RuleStyle, CSSText: "p { color: red }"},
						{Type: autofetch.RuleMedia, CSSText: "@media print { .a { background: url(a.png) } }"},
					},
				},
				{
					Href: "https://cdn.example.com/site.css",
					Err:  autofetch.Errorf(autofetch.ECROSSORIGIN, "denied"),
				},
			},
		}
		ch := &mock.RecordingChannel{}
		s := &scan.Scanner{
			Document:   snapshotDoc(snap),
			Channel:    ch,
			Fetcher:    fetcher,
			Parser:     mediaParser(),
			ProxyMagic: proxyMagic,
		}

		s.ExtractFromLocalDoc(context.Background())
		s.Wait()

		msgs := ch.Messages()
		require.Len(t, msgs, 3)

		assert.Equal(t, autofetch.MessageValues, msgs[0].Type)
		assert.Equal(t, []autofetch.URLRecord{{Value: "/lazy.jpg", Resolve: pageURL, Mod: autofetch.ModImage}}, msgs[0].Src)
		assert.Empty(t, msgs[0].Media)

		assert.Equal(t, []autofetch.MediaRule{{
			CSSText: "@media print { .a { background: url(a.png) } }",
			Resolve: pageURL,
		}}, msgs[1].Media)

		assert.Equal(t, []autofetch.MediaRule{{
			CSSText: "@media (min-width: 800px) { .hero { background: url(big.jpg) } }",
			Resolve: "https://cdn.example.com/site.css",
		}}, msgs[2].Media)

		assert.Equal(t, []string{"https://wb-proxy.invalid/proxy-fetch/https://cdn.example.com/site.css"}, fetched)
	})

	t.Run("posts nothing when the document has nothing to fetch", func(t *testing.T) {
		t.Parallel()

		ch := &mock.RecordingChannel{}
		s := &scan.Scanner{
			Document: snapshotDoc(&autofetch.Snapshot{
				URL:     pageURL,
				BaseURI: pageURL,
				HTML:    `<img src="/eager.jpg"><style>p{}</style>`,
				StyleSheets: []autofetch.StyleSheet{
					{Readable: true, Rules: []autofetch.CSSRule{{Type: autofetch.RuleStyle, CSSText: "p {}"}}},
				},
			}),
			Channel:    ch,
			Fetcher:    unusedFetcher(t),
			Parser:     mediaParser(),
			ProxyMagic: proxyMagic,
		}

		s.ExtractFromLocalDoc(context.Background())
		s.Wait()

		assert.Empty(t, ch.Messages())
	})

	t.Run("skips the pass when the snapshot fails", func(t *testing.T) {
		t.Parallel()

		ch := &mock.RecordingChannel{}
		s := &scan.Scanner{
			Document: &mock.Document{
				SnapshotFn: func(ctx context.Context) (*autofetch.Snapshot, error) {
					return nil, errors.New("page closed")
				},
			},
			Channel: ch,
		}

		s.ExtractFromLocalDoc(context.Background())

		assert.Empty(t, ch.Messages())
	})
}

func TestScanner_CheckStyleSheets(t *testing.T) {
	t.Parallel()

	media := autofetch.CSSRule{Type: autofetch.RuleMedia, CSSText: "@media screen { }"}

	t.Run("skips the scratch sheet and proxy-served sheets", func(t *testing.T) {
		t.Parallel()

		ch := &mock.RecordingChannel{}
		s := &scan.Scanner{
			Channel:    ch,
			Fetcher:    unusedFetcher(t),
			Parser:     mediaParser(),
			ProxyMagic: proxyMagic,
		}

		s.CheckStyleSheets(context.Background(), &autofetch.Snapshot{
			URL:     pageURL,
			BaseURI: pageURL,
			StyleSheets: []autofetch.StyleSheet{
				{OwnerID: autofetch.ScratchStyleID, Readable: true, Rules: []autofetch.CSSRule{media}},
				{Href: "https://wb-proxy.invalid/proxy-fetch/https://cdn.example.com/a.css", Readable: true, Rules: []autofetch.CSSRule{media}},
				{Href: "https://wb-proxy.invalid/proxy-fetch/https://cdn.example.com/b.css"},
			},
		})
		s.Wait()

		assert.Empty(t, ch.Messages())
	})

	t.Run("readable sheets resolve against their href or the base URI", func(t *testing.T) {
		t.Parallel()

		ch := &mock.RecordingChannel{}
		s := &scan.Scanner{Channel: ch, ProxyMagic: proxyMagic}

		s.CheckStyleSheets(context.Background(), &autofetch.Snapshot{
			URL:     pageURL,
			BaseURI: "https://example.com/base/",
			StyleSheets: []autofetch.StyleSheet{
				{Href: "https://example.com/css/main.css", Readable: true, Rules: []autofetch.CSSRule{media}},
				{Readable: true, Rules: []autofetch.CSSRule{media}},
			},
		})

		msgs := ch.Messages()
		require.Len(t, msgs, 1)
		require.Len(t, msgs[0].Media, 2)
		assert.Equal(t, "https://example.com/css/main.css", msgs[0].Media[0].Resolve)
		assert.Equal(t, "https://example.com/base/", msgs[0].Media[1].Resolve)
	})

	t.Run("unreadable sheet without href is ignored", func(t *testing.T) {
		t.Parallel()

		ch := &mock.RecordingChannel{}
		s := &scan.Scanner{Channel: ch, Fetcher: unusedFetcher(t), Parser: mediaParser(), ProxyMagic: proxyMagic}

		s.CheckStyleSheets(context.Background(), &autofetch.Snapshot{
			URL:         pageURL,
			BaseURI:     pageURL,
			StyleSheets: []autofetch.StyleSheet{{Err: errors.New("no rule list")}},
		})
		s.Wait()

		assert.Empty(t, ch.Messages())
	})

	t.Run("failed refetch contributes nothing", func(t *testing.T) {
		t.Parallel()

		fetcher := &mock.Fetcher{
			FetchFn: func(ctx context.Context, url string) (string, error) {
				if strings.HasSuffix(url, "broken.css") {
					return "", errors.New("502 bad gateway")
				}
				return "@media print { }", nil
			},
		}
		ch := &mock.RecordingChannel{}
		s := &scan.Scanner{Channel: ch, Fetcher: fetcher, Parser: mediaParser(), ProxyMagic: proxyMagic}

		s.CheckStyleSheets(context.Background(), &autofetch.Snapshot{
			URL:     pageURL,
			BaseURI: pageURL,
			StyleSheets: []autofetch.StyleSheet{
				{Href: "https://cdn.example.com/broken.css"},
				{Href: "https://cdn.example.com/ok.css"},
			},
		})
		s.Wait()

		msgs := ch.Messages()
		require.Len(t, msgs, 1)
		assert.Equal(t, []autofetch.MediaRule{{CSSText: "@media print { }", Resolve: "https://cdn.example.com/ok.css"}}, msgs[0].Media)
	})

	t.Run("no deferred message when every refetch fails", func(t *testing.T) {
		t.Parallel()

		fetcher := &mock.Fetcher{
			FetchFn: func(ctx context.Context, url string) (string, error) {
				return "", errors.New("offline")
			},
		}
		ch := &mock.RecordingChannel{}
		s := &scan.Scanner{Channel: ch, Fetcher: fetcher, Parser: mediaParser(), ProxyMagic: proxyMagic}

		s.CheckStyleSheets(context.Background(), &autofetch.Snapshot{
			URL:         pageURL,
			BaseURI:     pageURL,
			StyleSheets: []autofetch.StyleSheet{{Href: "https://cdn.example.com/a.css"}},
		})
		s.Wait()

		assert.Empty(t, ch.Messages())
	})

	t.Run("deferred refetch outlives the pass context", func(t *testing.T) {
		t.Parallel()

		release := make(chan struct{})
		fetchErr := make(chan error, 1)
		fetcher := &mock.Fetcher{
			FetchFn: func(ctx context.Context, url string) (string, error) {
				<-release
				fetchErr <- ctx.Err()
				return "@media print { }", nil
			},
		}
		ch := &mock.RecordingChannel{}
		s := &scan.Scanner{Channel: ch, Fetcher: fetcher, Parser: mediaParser(), ProxyMagic: proxyMagic}

		ctx, cancel := context.WithCancel(context.Background())
		s.CheckStyleSheets(ctx, &autofetch.Snapshot{
			URL:         pageURL,
			BaseURI:     pageURL,
			StyleSheets: []autofetch.StyleSheet{{Href: "https://cdn.example.com/a.css"}},
		})
		cancel()
		close(release)
		s.Wait()

		assert.NoError(t, receive(t, (<-chan error)(fetchErr)))
		require.Len(t, ch.Messages(), 1)
	})

	t.Run("uses the page scheme for the proxy URL", func(t *testing.T) {
		t.Parallel()

		urls := make(chan string, 1)
		fetcher := &mock.Fetcher{
			FetchFn: func(ctx context.Context, url string) (string, error) {
				urls <- url
				return "", nil
			},
		}
		s := &scan.Scanner{Channel: &mock.RecordingChannel{}, Fetcher: fetcher, Parser: mediaParser(), ProxyMagic: proxyMagic}

		s.CheckStyleSheets(context.Background(), &autofetch.Snapshot{
			URL:         "http://example.com/",
			BaseURI:     "http://example.com/",
			StyleSheets: []autofetch.StyleSheet{{Href: "https://cdn.example.com/a.css"}},
		})
		s.Wait()

		assert.Equal(t, "http://wb-proxy.invalid/proxy-fetch/https://cdn.example.com/a.css", receive(t, (<-chan string)(urls)))
	})
}

func TestScanner_ExtractSrcSrcset(t *testing.T) {
	t.Parallel()

	ch := &mock.RecordingChannel{}
	s := &scan.Scanner{Channel: ch}

	s.ExtractSrcSrcset(&autofetch.Snapshot{
		URL:     pageURL,
		BaseURI: pageURL,
		HTML:    `<picture><source srcset="/a.webp 1x, /a@2x.webp 2x"></picture><video data-src="/clip.mp4"></video>`,
	})

	msgs := ch.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, autofetch.MessageValues, msgs[0].Type)
	assert.Equal(t, []autofetch.URLRecord{{Value: "/a.webp 1x, /a@2x.webp 2x", Resolve: pageURL, Mod: autofetch.ModImage}}, msgs[0].Srcset)
	assert.Equal(t, []autofetch.URLRecord{{Value: "/clip.mp4", Resolve: pageURL, Mod: autofetch.ModEmbed}}, msgs[0].Src)
}

func TestScanner_Passthrough(t *testing.T) {
	t.Parallel()

	t.Run("JustFetch posts a fetch-all message", func(t *testing.T) {
		t.Parallel()

		ch := &mock.RecordingChannel{}
		s := &scan.Scanner{Channel: ch}

		s.JustFetch([]string{"https://example.com/a", "https://example.com/b"})

		msgs := ch.Messages()
		require.Len(t, msgs, 1)
		assert.Equal(t, autofetch.MessageFetchAll, msgs[0].Type)
		assert.Equal(t, []string{"https://example.com/a", "https://example.com/b"}, msgs[0].Values)
	})

	t.Run("PostMessage forwards unchanged", func(t *testing.T) {
		t.Parallel()

		ch := &mock.RecordingChannel{}
		s := &scan.Scanner{Channel: ch}
		msg := &autofetch.Message{Type: "custom", WBType: "other"}

		s.PostMessage(msg)

		assert.Same(t, msg, ch.Messages()[0])
	})

	t.Run("Terminate terminates the channel", func(t *testing.T) {
		t.Parallel()

		ch := &mock.RecordingChannel{}
		s := &scan.Scanner{Channel: ch}

		s.Terminate()

		assert.True(t, ch.Terminated())
	})
}

func TestProxyFetchURL(t *testing.T) {
	t.Parallel()

	got, err := scan.ProxyFetchURL("https://example.com/page", "proxy.invalid", "https://cdn.example.com/x.css?v=1")
	require.NoError(t, err)
	assert.Equal(t, "https://proxy.invalid/proxy-fetch/https://cdn.example.com/x.css?v=1", got)

	_, err = scan.ProxyFetchURL("https://example.com/page", "", "https://cdn.example.com/x.css")
	assert.Equal(t, autofetch.EINVALID, autofetch.ErrorCode(err))

	_, err = scan.ProxyFetchURL("http://[::1", "proxy.invalid", "x.css")
	assert.Equal(t, autofetch.EINVALID, autofetch.ErrorCode(err))
}

func TestExtractMediaRules(t *testing.T) {
	t.Parallel()

	rules := []autofetch.CSSRule{
		{Type: autofetch.RuleImport, CSSText: `@import "a.css";`},
		{Type: autofetch.RuleMedia, CSSText: "@media print { }"},
		{Type: autofetch.RuleStyle, CSSText: "p { }"},
		{Type: autofetch.RuleMedia, CSSText: "@media screen { }"},
	}

	got := scan.ExtractMediaRules(rules, "https://example.com/")

	assert.Equal(t, []autofetch.MediaRule{
		{CSSText: "@media print { }", Resolve: "https://example.com/"},
		{CSSText: "@media screen { }", Resolve: "https://example.com/"},
	}, got)
	assert.Empty(t, scan.ExtractMediaRules(nil, "https://example.com/"))
}
