package main

import (
	"context"
	"time"

	"github.com/Orbiter-Finance/OB-Submitter/internal/archiver"
	"github.com/Orbiter-Finance/OB-Submitter/internal/bus"
	"github.com/Orbiter-Finance/OB-Submitter/internal/crawler"
	"github.com/Orbiter-Finance/OB-Submitter/internal/ingester"
	ob "github.com/Orbiter-Finance/OB-Submitter/log"
)

// ingesterTask adapts *ingester.Ingester to supervisor.Task by owning its
// own bus subscription for the lifetime of the run.
type ingesterTask struct {
	ingester *ingester.Ingester
	bus      *bus.Bus
	log      *ob.Logger
}

func (t *ingesterTask) Run(ctx context.Context) error {
	sub := t.bus.Subscribe()
	defer sub.Unsubscribe()
	return t.ingester.Run(ctx, sub, func(msg string) { t.log.Warn(msg) })
}

// archiverTask adapts *archiver.Archiver to supervisor.Task, honoring
// archiver.SubmitCooldown between OnHead invocations (spec §4.7 step 6):
// the archiver itself is pure with respect to time, so the task loop is
// what throttles how often it's given a chance to submit.
type archiverTask struct {
	archiver *archiver.Archiver
	bus      *bus.Bus
	log      *ob.Logger
}

func (t *archiverTask) Run(ctx context.Context) error {
	sub := t.bus.Subscribe()
	defer sub.Unsubscribe()

	var last time.Time
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case head, ok := <-sub.Chan():
			if !ok {
				return nil
			}
			if since := time.Since(last); since < archiver.SubmitCooldown*time.Second {
				time.Sleep(archiver.SubmitCooldown*time.Second - since)
			}
			if err := t.archiver.OnHead(ctx, head); err != nil {
				t.log.Warn("archiver step failed", "error", err, "state", t.archiver.State())
			}
			last = time.Now()
		}
	}
}

// crawlerTask adapts *crawler.Crawler to supervisor.Task: it steps as fast
// as there is work, backing off briefly whenever a step finds nothing yet
// to attribute.
type crawlerTask struct {
	crawler *crawler.Crawler
	log     *ob.Logger
}

const crawlerIdleBackoff = 3 * time.Second

func (t *crawlerTask) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		advanced, err := t.crawler.Step(ctx)
		if err != nil {
			t.log.Warn("crawler step failed", "error", err, "cursor", t.crawler.Current())
			advanced = false
		}
		if !advanced {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(crawlerIdleBackoff):
			}
		}
	}
}

// rpcTask adapts an http.Server-backed RPC listener to supervisor.Task.
type rpcTask struct {
	serve func(ctx context.Context) error
}

func (t *rpcTask) Run(ctx context.Context) error { return t.serve(ctx) }
