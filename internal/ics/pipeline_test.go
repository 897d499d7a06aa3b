package ics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"calimport/internal/ical"
)

const sampleDoc = "BEGIN:VCALENDAR\r\n" +
	"VERSION:2.0\r\n" +
	"PRODID:-//Test//EN\r\n" +
	"BEGIN:VEVENT\r\n" +
	"UID:weekly@example.com\r\n" +
	"DTSTART:20240101T090000Z\r\n" +
	"DTEND:20240101T100000Z\r\n" +
	"RRULE:FREQ=WEEKLY;COUNT=4\r\n" +
	"SUMMARY:Team meeting with a summary that is long enough to be fol\r\n" +
	" ded\r\n" +
	"END:VEVENT\r\n" +
	"BEGIN:VEVENT\r\n" +
	"UID:minutely@example.com\r\n" +
	"DTSTART:20240101T090000Z\r\n" +
	"RRULE:FREQ=MINUTELY\r\n" +
	"END:VEVENT\r\n" +
	"END:VCALENDAR\r\n"

func fixedOptions() Options {
	return Options{
		Location: time.UTC,
		Validate: ical.ValidateOptions{
			NewUID: func() string { return "generated" },
			Now:    func() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) },
		},
	}
}

func TestUnfold(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []string
	}{
		{"crlf", "A:1\r\nB:2\r\n", []string{"A:1", "B:2"}},
		{"space continuation", "SUMMARY:ab\r\n cd\r\nX:1", []string{"SUMMARY:abcd", "X:1"}},
		{"tab continuation", "SUMMARY:ab\n\tcd", []string{"SUMMARY:abcd"}},
		{"bom", "\uFEFFBEGIN:VCALENDAR\n", []string{"BEGIN:VCALENDAR"}},
		{"blank lines kept", "A:1\n\nB:2", []string{"A:1", "", "B:2"}},
		{"empty", "", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Unfold(strings.NewReader(tt.in))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestImport(t *testing.T) {
	doc := Import(Source{ID: "work"}, []byte(sampleDoc), fixedOptions())

	require.NoError(t, doc.Err)
	assert.True(t, doc.Report.Valid)
	require.Len(t, doc.Appointments, 1)
	app := doc.Appointments[0]
	assert.Equal(t, "work", app.Basics.SourceID)
	assert.Equal(t, "Team meeting with a summary that is long enough to be folded", app.Basics.Summary)
	assert.Len(t, app.Events, 4)

	require.Len(t, doc.Skipped, 1)
	assert.Equal(t, "minutely@example.com", doc.Skipped[0].UID)
}

func TestImportEmptyBody(t *testing.T) {
	doc := Import(Source{ID: "empty"}, []byte("  \n"), fixedOptions())
	assert.ErrorIs(t, doc.Err, ErrEmptyBody)
	assert.Nil(t, doc.Calendar)
}

func TestImportInvalidDocumentKeepsAppointments(t *testing.T) {
	body := strings.Replace(sampleDoc, "VERSION:2.0\r\n", "", 1)
	doc := Import(Source{ID: "nover"}, []byte(body), fixedOptions())

	require.NoError(t, doc.Err)
	assert.False(t, doc.Report.Valid)
	assert.Len(t, doc.Appointments, 1)
}

func TestFetchFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cal.ics")
	require.NoError(t, os.WriteFile(path, []byte(sampleDoc), 0o600))

	f := NewFetcher(t.TempDir())
	for _, u := range []string{path, "file://" + path} {
		res, err := f.Fetch(context.Background(), Source{ID: "file", URL: u})
		require.NoError(t, err, u)
		assert.Equal(t, sampleDoc, string(res.Body))
		assert.False(t, res.FromCache)
	}

	_, err := f.Fetch(context.Background(), Source{ID: "missing", URL: filepath.Join(dir, "nope.ics")})
	assert.Error(t, err)
}

func TestFetchHTTPCache(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := hits.Add(1)
		switch {
		case n == 1:
			w.Header().Set("ETag", `"v1"`)
			_, _ = w.Write([]byte(sampleDoc))
		case r.Header.Get("If-None-Match") == `"v1"` && n == 2:
			w.WriteHeader(http.StatusNotModified)
		default:
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))
	defer srv.Close()

	f := NewFetcher(t.TempDir())
	src := Source{ID: "remote", URL: srv.URL + "/cal.ics?token=secret"}

	first, err := f.Fetch(context.Background(), src)
	require.NoError(t, err)
	assert.False(t, first.FromCache)

	second, err := f.Fetch(context.Background(), src)
	require.NoError(t, err)
	assert.True(t, second.FromCache)
	assert.Equal(t, first.Body, second.Body)

	third, err := f.Fetch(context.Background(), src)
	require.NoError(t, err, "server errors fall back to the cached body")
	assert.True(t, third.FromCache)
}

func TestImportAll(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "good.ics")
	require.NoError(t, os.WriteFile(good, []byte(sampleDoc), 0o600))

	sources := []Source{
		{ID: "a", URL: good},
		{ID: "b", URL: filepath.Join(dir, "missing.ics")},
		{ID: "c", URL: "file://" + good},
	}
	opts := fixedOptions()
	opts.Workers = 2
	docs, err := ImportAll(context.Background(), NewFetcher(t.TempDir()), sources, opts)
	require.NoError(t, err)
	require.Len(t, docs, 3)

	assert.Equal(t, "a", docs[0].Source.ID)
	assert.NoError(t, docs[0].Err)
	assert.Error(t, docs[1].Err)
	assert.NoError(t, docs[2].Err)
	assert.Len(t, Appointments(docs), 2)
}

func TestRedactURL(t *testing.T) {
	assert.Equal(t, "https://example.com/...(redacted)", redactURL("https://example.com/private.ics?token=abcd"))
	assert.Equal(t, "/tmp/cal.ics", redactURL("/tmp/cal.ics"))
}
