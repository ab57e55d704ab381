package producer

import (
	"context"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/aukilabs/tilestream/tiles"
)

// Result is the outcome of an asynchronous tile generation.
type Result struct {
	ID      tiles.ID
	Terrain *Terrain
	Err     error
}

type job struct {
	ctx   context.Context
	id    tiles.ID
	reply chan<- Result
}

// Start launches the worker pool that serves Request calls. It returns
// immediately. Workers stop when ctx is canceled or the producer is closed.
func (p *Producer) Start(ctx context.Context, workers int) {
	if workers <= 0 {
		workers = 1
	}

	logs.WithTag("workers", workers).
		WithTag("cols", p.graph.Cols()).
		WithTag("rows", p.graph.Rows()).
		Info("starting tile producer")

	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer p.wg.Done()
			p.work(ctx)
		}()
	}
}

// Request queues the generation of a tile. The result is delivered on reply
// unless ctx is canceled first.
func (p *Producer) Request(ctx context.Context, id tiles.ID, reply chan<- Result) error {
	if !p.graph.Contains(id) {
		return errors.New("tile out of grid").
			WithType(ErrTypeOutOfGrid).
			WithTag("tile", id.Name())
	}

	select {
	case <-p.done:
		return errors.New("producer is closed").
			WithType(ErrTypeClosed).
			WithTag("tile", id.Name())

	default:
	}

	select {
	case p.jobs <- job{ctx: ctx, id: id, reply: reply}:
		instrumentPending(1)
		return nil

	case <-ctx.Done():
		return ctx.Err()

	case <-p.done:
		return errors.New("producer is closed").
			WithType(ErrTypeClosed).
			WithTag("tile", id.Name())
	}
}

// Close stops the worker pool and waits for the workers to return.
func (p *Producer) Close() {
	p.closeOnce.Do(func() {
		close(p.done)
	})
	p.wg.Wait()
}

func (p *Producer) work(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return

		case <-p.done:
			return

		case j := <-p.jobs:
			instrumentPending(-1)

			if j.ctx.Err() != nil {
				continue
			}

			t, err := p.generate(j)
			select {
			case j.reply <- Result{ID: j.id, Terrain: t, Err: err}:
			case <-j.ctx.Done():
			case <-p.done:
			}
		}
	}
}

func (p *Producer) generate(j job) (*Terrain, error) {
	if t, ok := p.Cached(j.id); ok {
		instrumentCacheHit()
		return t, nil
	}

	if p.limiter != nil {
		if err := p.limiter.Wait(j.ctx); err != nil {
			return nil, err
		}
	}
	return p.Ensure(j.ctx, j.id)
}
