package stage

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/orchard-dev/orchard/internal/store"
)

// progressWindow is how many recent output lines a progress artifact
// carries.
const progressWindow = 5

// progressInterval throttles progress artifacts to at most one per
// second.
const progressInterval = time.Second

// progressReporter harvests Worker CLI output lines into throttled
// progress artifacts so the stream API can show live reasoning.
type progressReporter struct {
	ctx       context.Context
	store     *store.Store
	meta      store.JobMeta
	typ       store.ArtifactType
	subtaskID string

	mu    sync.Mutex
	lines []string
	last  time.Time
	now   func() time.Time
}

func newProgressReporter(ctx context.Context, st *store.Store, meta store.JobMeta, typ store.ArtifactType, subtaskID string) *progressReporter {
	return &progressReporter{
		ctx:       ctx,
		store:     st,
		meta:      meta,
		typ:       typ,
		subtaskID: subtaskID,
		now:       time.Now,
	}
}

// Line records one output line and flushes a progress artifact when the
// throttle interval has elapsed.
func (p *progressReporter) Line(line string) {
	if p == nil || p.store == nil {
		return
	}
	line = strings.TrimSpace(line)
	if line == "" {
		return
	}

	p.mu.Lock()
	p.lines = append(p.lines, line)
	if len(p.lines) > progressWindow {
		p.lines = p.lines[len(p.lines)-progressWindow:]
	}
	now := p.now()
	due := now.Sub(p.last) >= progressInterval
	var text string
	if due {
		p.last = now
		text = strings.Join(p.lines, "\n")
	}
	p.mu.Unlock()

	if !due {
		return
	}
	if p.typ != "" {
		p.store.RecordProgress(p.ctx, p.meta, p.typ, p.subtaskID, text)
	}
	if p.subtaskID != "" {
		p.store.RecordSubtaskReasoning(p.ctx, p.meta.ID, p.subtaskID, line)
	}
}
