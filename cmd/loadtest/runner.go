package main

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"sync"
	"time"
)

const readyPollInterval = 200 * time.Millisecond

// job is one scheduled render request
type job struct {
	format   string
	asBase64 bool
}

// schedule cycles through the output formats so each gets an even share
// of the load. The base64 flag is drawn per job.
type schedule struct {
	formats    []string
	base64Rate float64
	pos        int
	rng        *rand.Rand
}

func newSchedule(formats []string, base64Rate float64, seed int64) *schedule {
	if len(formats) == 0 {
		formats = []string{"png"}
	}
	return &schedule{
		formats:    formats,
		base64Rate: base64Rate,
		rng:        rand.New(rand.NewSource(seed)),
	}
}

func (s *schedule) next() job {
	j := job{
		format:   s.formats[s.pos%len(s.formats)],
		asBase64: s.rng.Float64() < s.base64Rate,
	}
	s.pos++
	return j
}

// Runner drives a load test against a render service
type Runner struct {
	cfg     Config
	client  *Client
	metrics *Metrics
	out     io.Writer
}

// NewRunner creates a runner. Progress lines go to out.
func NewRunner(cfg Config, client *Client, out io.Writer) *Runner {
	if out == nil {
		out = io.Discard
	}
	return &Runner{
		cfg:     cfg,
		client:  client,
		metrics: NewMetrics(),
		out:     out,
	}
}

// Run waits for the service to report ready, then dispatches jobs at the
// target rate for cfg.Duration or until ctx is cancelled.
func (r *Runner) Run(ctx context.Context) (*Results, error) {
	if r.cfg.ReadyTimeout > 0 {
		readyCtx, cancel := context.WithTimeout(ctx, r.cfg.ReadyTimeout)
		err := r.client.WaitReady(readyCtx, readyPollInterval)
		cancel()
		if err != nil {
			return nil, err
		}
		fmt.Fprintf(r.out, "Service ready at %s\n", r.cfg.Target)
	}

	runCtx, cancel := context.WithTimeout(ctx, r.cfg.Duration)
	defer cancel()

	jobs := make(chan job, r.cfg.Workers*2)
	var wg sync.WaitGroup
	for i := 0; i < r.cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.work(runCtx, jobs)
		}()
	}

	r.metrics.Start()
	r.dispatch(runCtx, jobs)
	close(jobs)
	wg.Wait()
	r.metrics.Stop()

	return r.metrics.GetResults(r.cfg.RPS), nil
}

func (r *Runner) dispatch(ctx context.Context, jobs chan<- job) {
	sched := newSchedule(r.cfg.Formats, r.cfg.Base64Rate, time.Now().UnixNano())

	tick := time.NewTicker(time.Second / time.Duration(r.cfg.RPS))
	defer tick.Stop()
	progress := time.NewTicker(5 * time.Second)
	defer progress.Stop()

	start := time.Now()
	for {
		select {
		case <-ctx.Done():
			return
		case <-progress.C:
			snap := r.metrics.Snapshot()
			elapsed := time.Since(start)
			fmt.Fprintf(r.out, "%s elapsed | %d done | %d dropped | %.1f rps\n",
				formatDuration(elapsed), snap.completed, snap.dropped,
				float64(snap.completed)/elapsed.Seconds())
		case <-tick.C:
			j := sched.next()
			select {
			case jobs <- j:
			default:
				r.metrics.Drop(j.format)
			}
		}
	}
}

func (r *Runner) work(ctx context.Context, jobs <-chan job) {
	for j := range jobs {
		if ctx.Err() != nil {
			continue
		}
		reqCtx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
		result := r.client.SendRequest(reqCtx, j)
		cancel()

		// requests cut short by the end of the run are not failures
		if !result.Success && ctx.Err() != nil {
			continue
		}
		r.metrics.Record(result)
	}
}

func formatDuration(d time.Duration) string {
	if d < 0 {
		return "0s"
	}
	d = d.Round(time.Second)
	if m := d / time.Minute; m > 0 {
		return fmt.Sprintf("%dm%ds", m, (d%time.Minute)/time.Second)
	}
	return fmt.Sprintf("%ds", d/time.Second)
}
