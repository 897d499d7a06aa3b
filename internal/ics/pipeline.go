// Package ics reads calendar documents from their sources and runs them
// through parsing, validation and interpretation.
package ics

import (
	"bytes"
	"context"
	"errors"
	"time"

	"golang.org/x/sync/errgroup"

	"calimport/internal/ical"
	"calimport/internal/interpret"
	appLog "calimport/internal/log"
	"calimport/internal/model"
	"calimport/internal/recurrence"
)

const defaultWorkers = 4

// ErrEmptyBody is reported for a source that produced no bytes.
var ErrEmptyBody = errors.New("ics: empty body")

type Options struct {
	// Location applies to floating times and unknown zones.
	Location *time.Location
	Engine   *recurrence.Engine
	Validate ical.ValidateOptions
	// Workers bounds concurrent documents in ImportAll. Zero means 4.
	Workers int
}

// Document is the outcome of importing one source. Err is set only when
// the source could not be read at all; a document that does not validate
// still carries whatever appointments could be interpreted.
type Document struct {
	Source       Source
	FromCache    bool
	Calendar     *ical.Calendar
	Report       ical.Report
	Appointments []model.Appointment
	Skipped      []interpret.Skip
	Err          error
}

// Import runs one document body through the pipeline.
func Import(src Source, body []byte, opts Options) Document {
	doc := Document{Source: src}
	if len(bytes.TrimSpace(body)) == 0 {
		doc.Err = ErrEmptyBody
		appLog.Error("ics import failed", doc.Err, "id", src.ID)
		return doc
	}

	lines, err := Unfold(bytes.NewReader(body))
	if err != nil {
		doc.Err = err
		appLog.Error("ics unfold failed", err, "id", src.ID)
		return doc
	}

	cal := ical.Parse(lines)
	appLog.Debug("ics parse completed", "id", src.ID, "lines", len(lines),
		"events", len(cal.Events), "diagnostics", len(cal.Diagnostics), "complete", cal.Complete)
	for _, d := range cal.Diagnostics {
		appLog.Warn("ics line rejected", "id", src.ID, "line", d.Line, "component", d.Component, "err", d.Err)
	}

	doc.Calendar, doc.Report = ical.Validate(cal, opts.Validate)
	if !doc.Report.Valid {
		for _, p := range doc.Report.Problems {
			appLog.Warn("ics validation problem", "id", src.ID, "problem", p.String())
		}
	}
	for _, a := range doc.Report.Amendments {
		appLog.Debug("ics property synthesized", "id", src.ID, "component", a.Component, "property", a.Property)
	}

	res := interpret.Interpret(doc.Calendar, interpret.Options{
		Location: opts.Location,
		Engine:   opts.Engine,
		SourceID: src.ID,
	})
	doc.Appointments, doc.Skipped = res.Appointments, res.Skipped
	for _, s := range res.Skipped {
		appLog.Warn("ics event skipped", "id", src.ID, "uid", s.UID, "reason", s.Reason)
	}

	appLog.Info("ics import completed", "id", src.ID, "valid", doc.Report.Valid,
		"appointments", len(doc.Appointments), "skipped", len(doc.Skipped))
	return doc
}

// ImportAll fetches and imports sources concurrently. The returned slice
// is in source order. The error is non-nil only when ctx ends first.
func ImportAll(ctx context.Context, f *Fetcher, sources []Source, opts Options) ([]Document, error) {
	workers := opts.Workers
	if workers <= 0 {
		workers = defaultWorkers
	}
	docs := make([]Document, len(sources))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, src := range sources {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			res, err := f.Fetch(gctx, src)
			if err != nil {
				appLog.Error("ics fetch failed", err, "id", src.ID, "url", redactURL(src.URL))
				docs[i] = Document{Source: src, Err: err}
				return nil
			}
			docs[i] = Import(src, res.Body, opts)
			docs[i].FromCache = res.FromCache
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return docs, err
	}
	return docs, nil
}

// Appointments flattens the appointments of all documents.
func Appointments(docs []Document) []model.Appointment {
	var out []model.Appointment
	for _, d := range docs {
		out = append(out, d.Appointments...)
	}
	return out
}
