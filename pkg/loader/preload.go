package loader

import (
	"context"
	"sync"

	"github.com/sourcegraph/conc/pool"
)

// Preload loads names concurrently with at most concurrency workers and
// returns the error of every name that failed. Names not yet started when
// ctx is cancelled report ctx.Err().
func (l *Loader) Preload(ctx context.Context, names []string, concurrency int) map[string]error {
	if concurrency < 1 {
		concurrency = 1
	}

	var mu sync.Mutex
	failed := make(map[string]error)
	record := func(name string, err error) {
		mu.Lock()
		failed[name] = err
		mu.Unlock()
	}

	p := pool.New().WithMaxGoroutines(concurrency)
	for _, name := range names {
		p.Go(func() {
			if err := ctx.Err(); err != nil {
				record(name, err)
				return
			}
			if _, err := l.Load(name); err != nil {
				record(name, err)
			}
		})
	}
	p.Wait()

	if len(failed) > 0 {
		l.log.Info("preload finished with failures", "requested", len(names), "failed", len(failed))
	} else {
		l.log.V(1).Info("preload finished", "requested", len(names))
	}
	return failed
}
