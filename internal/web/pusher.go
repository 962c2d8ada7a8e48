package web

import (
	"bytes"
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/orchard-dev/orchard/internal/store"
)

// defaultPushInterval is how often the active job is sampled for change
// detection.
const defaultPushInterval = time.Second

// activeJobFrame is the WS payload: the current non-terminal job or null.
type activeJobFrame struct {
	Type string         `json:"type"`
	Job  *store.JobView `json:"job"`
}

// pusher samples the active job and broadcasts a frame whenever the
// serialised payload changes.
type pusher struct {
	store    *store.Store
	hub      *hub
	interval time.Duration
	last     []byte
}

func newPusher(st *store.Store, h *hub, interval time.Duration) *pusher {
	if interval <= 0 {
		interval = defaultPushInterval
	}
	return &pusher{store: st, hub: h, interval: interval}
}

// run polls until ctx is cancelled.
func (p *pusher) run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.tick(ctx)
		}
	}
}

// tick broadcasts the active-job frame when it differs from the last one
// sent.
func (p *pusher) tick(ctx context.Context) {
	frame, err := p.frame(ctx)
	if err != nil {
		log.Printf("dashboard push: %v", err)
		return
	}
	if bytes.Equal(frame, p.last) {
		return
	}
	p.last = frame
	p.hub.broadcast(frame)
}

// frame serialises the current active job.
func (p *pusher) frame(ctx context.Context) ([]byte, error) {
	var job *store.JobView
	if p.store != nil {
		active, err := p.store.ActiveJob(ctx)
		if err != nil {
			return nil, err
		}
		job = active
	}
	return json.Marshal(activeJobFrame{Type: "active_job", Job: job})
}
