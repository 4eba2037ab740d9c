package history

import (
	"context"
	"sync/atomic"

	"github.com/zjrosen/jarvis-voice/internal/log"
	"github.com/zjrosen/jarvis-voice/internal/pubsub"
	"github.com/zjrosen/jarvis-voice/internal/turn"
)

// Recorder saves every published turn result to a Repository.
type Recorder struct {
	repo   Repository
	saved  atomic.Int64
	failed atomic.Int64
}

// NewRecorder creates a Recorder writing to repo.
func NewRecorder(repo Repository) *Recorder {
	return &Recorder{repo: repo}
}

// Run consumes events until ch closes or ctx is done. Save failures are
// logged and never stop the loop.
func (r *Recorder) Run(ctx context.Context, ch <-chan pubsub.Event[turn.Result]) {
	pubsub.Consume(ctx, ch, func(ev pubsub.Event[turn.Result]) {
		r.Record(context.WithoutCancel(ctx), ev.Payload)
	})
}

// Record saves one result.
func (r *Recorder) Record(ctx context.Context, res turn.Result) {
	rec := FromResult(res)
	if err := r.repo.Save(ctx, rec); err != nil {
		r.failed.Add(1)
		log.ErrorErr(log.CatDB, "saving turn", err, "turn", res.ID)
		return
	}
	r.saved.Add(1)
	log.Debug(log.CatDB, "turn saved", "turn", res.ID, "id", rec.ID)
}

// Saved returns the number of records written.
func (r *Recorder) Saved() int64 { return r.saved.Load() }

// Failed returns the number of records that could not be written.
func (r *Recorder) Failed() int64 { return r.failed.Load() }
