package checker

import (
	"sync"

	"github.com/panjf2000/ants/v2"
)

// BatchOptions configures one phase run.
type BatchOptions struct {
	TimeoutSeconds int
	Concurrency    int
	// Stop is polled before each unit is submitted and again before a
	// dispatched unit starts network work. Nil never stops.
	Stop func() bool
}

func (o BatchOptions) stopped() bool {
	return o.Stop != nil && o.Stop()
}

// runPool processes items on a fixed size worker pool. collect is called
// from a single goroutine, once per finished unit, in completion order.
// Units skipped because of Stop produce no result.
func runPool[In, Out any](items []In, opts BatchOptions, work func(In) Out, collect func(Out)) error {
	size := opts.Concurrency
	if size < 1 {
		size = 1
	}

	resultsCh := make(chan Out, size)
	collected := make(chan struct{})
	go func() {
		defer close(collected)
		for r := range resultsCh {
			collect(r)
		}
	}()

	wg := &sync.WaitGroup{}
	pool, err := ants.NewPoolWithFunc(size, func(arg interface{}) {
		defer wg.Done()
		item := arg.(In)
		if opts.stopped() {
			return
		}
		resultsCh <- work(item)
	})
	if err != nil {
		close(resultsCh)
		<-collected
		return err
	}
	defer pool.Release()

	var submitErr error
	for _, it := range items {
		if opts.stopped() {
			break
		}
		wg.Add(1)
		// Invoke blocks while every worker is busy.
		if err := pool.Invoke(it); err != nil {
			wg.Done()
			submitErr = err
			break
		}
	}

	wg.Wait()
	close(resultsCh)
	<-collected
	return submitErr
}
