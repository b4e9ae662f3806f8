package main_test

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"

	"github.com/fwojciec/autofetch"
	main "github.com/fwojciec/autofetch/cmd/autofetch"
	afhttp "github.com/fwojciec/autofetch/http"
	"github.com/fwojciec/autofetch/mock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newArchive serves a page with lazily loaded resources and a worker
// definition. It records every path requested.
func newArchive(t *testing.T) (*httptest.Server, func() []string) {
	t.Helper()

	var mu sync.Mutex
	var hits []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		hits = append(hits, r.URL.Path)
		mu.Unlock()

		switch r.URL.Path {
		case "/page":
			w.Header().Set("Content-Type", "text/html")
			_, _ = w.Write([]byte(`<!DOCTYPE html>
<html><head>
<style>@media print { .x { background: url(/print.png) } }</style>
</head><body>
<img data-src="/lazy.png">
<picture><source srcset="/a.webp 1x, /b.webp 2x"></picture>
</body></html>`))
		case "/worker.json":
			_, _ = w.Write([]byte(`{"prefix":"","concurrency":2,"rps":1000}`))
		case "/lazy.png", "/a.webp", "/b.webp", "/print.png":
			_, _ = w.Write([]byte("binary"))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)

	return srv, func() []string {
		mu.Lock()
		defer mu.Unlock()
		return append([]string(nil), hits...)
	}
}

func TestMain_Run_Scan(t *testing.T) {
	t.Parallel()

	t.Run("fetches lazily referenced resources and records captures", func(t *testing.T) {
		t.Parallel()

		srv, hits := newArchive(t)
		dbPath := filepath.Join(t.TempDir(), "test.db")

		m := main.NewMain()
		m.DBPath = dbPath
		stdout := &bytes.Buffer{}
		stderr := &bytes.Buffer{}

		err := m.Run(context.Background(), []string{"scan", srv.URL + "/page", "--worker-url", srv.URL + "/worker.json"}, stdout, stderr)

		require.NoError(t, err, stderr.String())
		assert.Contains(t, stdout.String(), "4 fetched, 0 failed")
		assert.Subset(t, hits(), []string{"/worker.json", "/page", "/lazy.png", "/a.webp", "/b.webp", "/print.png"})

		listed := &bytes.Buffer{}
		m2 := main.NewMain()
		m2.DBPath = dbPath
		err = m2.Run(context.Background(), []string{"captures", "--source", "media"}, listed, &bytes.Buffer{})
		require.NoError(t, err)
		assert.Contains(t, listed.String(), srv.URL+"/print.png")
		assert.NotContains(t, listed.String(), "lazy.png")
	})

	t.Run("fails when the worker definition cannot be fetched", func(t *testing.T) {
		t.Parallel()

		srv, hits := newArchive(t)

		m := main.NewMain()
		m.DBPath = filepath.Join(t.TempDir(), "test.db")
		stderr := &bytes.Buffer{}

		err := m.Run(context.Background(), []string{"scan", srv.URL + "/page", "--worker-url", srv.URL + "/missing.json"}, &bytes.Buffer{}, stderr)

		require.Error(t, err)
		assert.Contains(t, stderr.String(), "error:")
		assert.NotContains(t, hits(), "/page")
	})
	t.Run("counts only the captures of the current run", func(t *testing.T) {
		t.Parallel()

		srv, _ := newArchive(t)
		dbPath := filepath.Join(t.TempDir(), "test.db")
		args := []string{"scan", srv.URL + "/page", "--worker-url", srv.URL + "/worker.json"}

		for i := 0; i < 2; i++ {
			m := main.NewMain()
			m.DBPath = dbPath
			stdout := &bytes.Buffer{}
			stderr := &bytes.Buffer{}

			err := m.Run(context.Background(), args, stdout, stderr)

			require.NoError(t, err, stderr.String())
			assert.Contains(t, stdout.String(), "4 fetched, 0 failed", "run %d", i+1)
		}
	})

	t.Run("forwards messages to a relay as a subordinate frame", func(t *testing.T) {
		t.Parallel()

		srv, hits := newArchive(t)
		ch := &mock.RecordingChannel{}
		relay := httptest.NewServer(afhttp.NewRelayServer(ch))
		t.Cleanup(relay.Close)

		m := main.NewMain()
		m.DBPath = filepath.Join(t.TempDir(), "test.db")
		stdout := &bytes.Buffer{}
		stderr := &bytes.Buffer{}

		err := m.Run(context.Background(), []string{"scan", srv.URL + "/page", "--relay-url", relay.URL + "/relay"}, stdout, stderr)

		require.NoError(t, err, stderr.String())
		assert.Contains(t, stdout.String(), "forwarded to "+relay.URL+"/relay")
		assert.NotContains(t, hits(), "/worker.json")
		assert.NotContains(t, hits(), "/lazy.png")

		msgs := ch.Messages()
		require.Len(t, msgs, 2)
		assert.Equal(t, autofetch.MessageValues, msgs[0].Type)
		require.Len(t, msgs[0].Src, 1)
		assert.Equal(t, "/lazy.png", msgs[0].Src[0].Value)
		require.Len(t, msgs[1].Media, 1)
		assert.Contains(t, msgs[1].Media[0].CSSText, "print.png")
	})
}
