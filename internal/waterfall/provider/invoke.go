package provider

import (
	"context"
	"errors"
	"time"

	"github.com/rotisserie/eris"
)

// Invoke calls the adapter bounded by timeout. A timeout, panic or empty
// response is returned as an error; a result that arrives after the
// deadline is discarded. The returned result always carries a latency.
func Invoke(ctx context.Context, a Adapter, req Request, timeout time.Duration) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type outcome struct {
		res *Result
		err error
	}
	ch := make(chan outcome, 1)
	start := time.Now()

	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- outcome{err: eris.Errorf("provider: %s panicked: %v", a.ID(), r)}
			}
		}()
		res, err := a.Enrich(ctx, req)
		ch <- outcome{res: res, err: err}
	}()

	select {
	case o := <-ch:
		if o.err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, eris.Wrapf(ErrTimeout, "provider: %s after %s", a.ID(), timeout)
		}
		if o.err != nil {
			return nil, eris.Wrapf(o.err, "provider: %s enrich", a.ID())
		}
		if o.res == nil {
			return nil, eris.Errorf("provider: %s returned no result", a.ID())
		}
		if o.res.LatencyMs <= 0 {
			o.res.LatencyMs = time.Since(start).Milliseconds()
		}
		return o.res, nil
	case <-ctx.Done():
		return nil, eris.Wrapf(ErrTimeout, "provider: %s after %s", a.ID(), timeout)
	}
}
