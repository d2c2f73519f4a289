package worker

import (
	"context"
	"fmt"
)

// Func computes one item of a batch
type Func[T any] func(ctx context.Context) (T, error)

// indexedJob remembers the submission slot so results can be reordered
type indexedJob[T any] struct {
	index int
	fn    Func[T]
}

func (j *indexedJob[T]) Execute(ctx context.Context) Result {
	if err := ctx.Err(); err != nil {
		return &ItemResult[T]{Index: j.index, Err: err}
	}
	v, err := j.fn(ctx)
	return &ItemResult[T]{Index: j.index, Value: v, Err: err}
}

// ItemResult is the outcome of one batch item
type ItemResult[T any] struct {
	Index int
	Value T
	Err   error
}

func (r *ItemResult[T]) GetError() error {
	return r.Err
}

// RunBatch executes fns on a pool of the given size and returns results in
// submission order. onDone, when non-nil, is called from the collecting
// goroutine as each item finishes.
func RunBatch[T any](ctx context.Context, workers int, fns []Func[T], onDone func(r ItemResult[T])) ([]ItemResult[T], error) {
	out := make([]ItemResult[T], len(fns))
	if len(fns) == 0 {
		return out, nil
	}

	pool := NewPool(ctx, workers)
	pool.Start()

	go func() {
		for i, fn := range fns {
			if !pool.Submit(&indexedJob[T]{index: i, fn: fn}) {
				break
			}
		}
		pool.Close()
	}()

	seen := make([]bool, len(fns))
	received := 0
	for res := range pool.Results() {
		r, ok := res.(*ItemResult[T])
		if !ok {
			continue
		}
		out[r.Index] = *r
		seen[r.Index] = true
		received++
		if onDone != nil {
			onDone(*r)
		}
	}

	if err := ctx.Err(); err != nil || received < len(fns) {
		for i := range out {
			if !seen[i] {
				out[i] = ItemResult[T]{Index: i, Err: ctx.Err()}
			}
		}
		if err != nil {
			return out, err
		}
		return out, fmt.Errorf("batch finished with %d of %d results", received, len(fns))
	}
	return out, nil
}
