// Package schedule implements the bounded-concurrency fan-out
// scheduler (spec.md §4.7): it launches one task per inventory record,
// bounds concurrent SSH logins against the global max-startups
// semaphore, and streams completions in completion order.
package schedule

import (
	"context"
	"log"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/sync/semaphore"

	"github.com/jeremyschulman/netcfgbu-go/internal/errs"
	"github.com/jeremyschulman/netcfgbu-go/internal/inventory"
	"github.com/jeremyschulman/netcfgbu-go/internal/jumphost"
)

// Runtime is passed to every task. It owns the max-startups semaphore
// and the jump-host registry — both process-global in the source
// implementation, lifted here per the §9 design note ("no static
// singletons").
type Runtime struct {
	sem *semaphore.Weighted
	jh  *jumphost.Manager
}

// NewRuntime builds a Runtime bounding concurrent logins to
// maxStartups and resolving tunnels through jh (which may be nil).
func NewRuntime(maxStartups int, jh *jumphost.Manager) *Runtime {
	if maxStartups <= 0 {
		maxStartups = 100
	}
	return &Runtime{
		sem: semaphore.NewWeighted(int64(maxStartups)),
		jh:  jh,
	}
}

// AcquireLogin blocks until a login slot is free.
func (r *Runtime) AcquireLogin(ctx context.Context) error {
	return r.sem.Acquire(ctx, 1)
}

// ReleaseLogin releases a login slot.
func (r *Runtime) ReleaseLogin() {
	r.sem.Release(1)
}

// Tunnel resolves the jump-host connection, if any, for rec.
func (r *Runtime) Tunnel(rec inventory.Record) (*ssh.Client, error) {
	if r.jh == nil {
		return nil, nil
	}
	jh, err := r.jh.For(rec)
	if err != nil {
		return nil, err
	}
	if jh == nil {
		return nil, nil
	}
	return jh.Tunnel(), nil
}

// TaskFunc runs the per-host work (test-login, backup, or probe) and
// returns an opaque result value alongside any error.
type TaskFunc func(ctx context.Context, rt *Runtime, rec inventory.Record) (interface{}, error)

// Result is one completed task, still attributable to its originating
// record.
type Result struct {
	Rec   inventory.Record
	Value interface{}
	Err   error
}

// Run launches one task per record (subject to the max-startups bound
// held only during each task's login phase) and streams completions,
// in completion order, on the returned channel. If timeout is
// positive, the whole fan-out is cancelled when it elapses, bringing
// every outstanding task to a terminal error state; cancelling one
// task never cancels others outside of that shared deadline.
//
// When jh is non-nil, a pre-pass connects every required jump-host
// first; records requiring a jump-host that failed to connect fail
// fast with JumpHostError without ever starting their task.
func Run(ctx context.Context, recs []inventory.Record, rt *Runtime, jh *jumphost.Manager, fn TaskFunc, timeout time.Duration) <-chan Result {
	out := make(chan Result, len(recs))

	go func() {
		defer close(out)

		runCtx := ctx
		var cancel context.CancelFunc
		if timeout > 0 {
			runCtx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}

		var jhFailures map[string]error
		if jh != nil && jh.Required() {
			jhFailures = jh.Connect()
		}

		var wg sync.WaitGroup
		total := len(recs)
		var done int32
		var mu sync.Mutex

		for _, rec := range recs {
			rec := rec

			if len(jhFailures) > 0 {
				if failedProxy, needs := requiresFailedJumpHost(jh, rec, jhFailures); needs {
					wg.Add(1)
					go func() {
						defer wg.Done()
						res := Result{Rec: rec, Err: &errs.JumpHostError{Proxy: failedProxy, Err: jhFailures[failedProxy]}}
						logProgress(&mu, &done, total, rec, res.Err)
						out <- res
					}()
					continue
				}
			}

			wg.Add(1)
			go func() {
				defer wg.Done()
				val, err := fn(runCtx, rt, rec)
				res := Result{Rec: rec, Value: val, Err: err}
				logProgress(&mu, &done, total, rec, err)
				out <- res
			}()
		}

		wg.Wait()
	}()

	return out
}

func requiresFailedJumpHost(jh *jumphost.Manager, rec inventory.Record, failures map[string]error) (string, bool) {
	required, err := jh.For(rec)
	if err == nil && required != nil {
		return "", false
	}
	var jhErr *errs.JumpHostError
	if ok := asJumpHostError(err, &jhErr); ok {
		if _, failed := failures[jhErr.Proxy]; failed {
			return jhErr.Proxy, true
		}
	}
	return "", false
}

func asJumpHostError(err error, target **errs.JumpHostError) bool {
	if je, ok := err.(*errs.JumpHostError); ok {
		*target = je
		return true
	}
	return false
}

func logProgress(mu *sync.Mutex, done *int32, total int, rec inventory.Record, err error) {
	mu.Lock()
	*done++
	k := *done
	mu.Unlock()

	status := "PASS"
	if err != nil {
		status = "FAIL"
	}
	log.Printf("DONE (%d/%d): %s %s", k, total, rec.Name(), status)
}
