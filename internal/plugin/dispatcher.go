package plugin

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/ayusman/emocall/internal/expression"
)

// Stats reports dispatcher counters.
type Stats struct {
	Runs     uint64 `json:"runs"`
	Failures uint64 `json:"failures"`
	Dropped  uint64 `json:"dropped"`
}

// Dispatcher turns expression updates into plugin runs. Only changes of the
// displayed symbol are dispatched. Plugins run one event at a time; a change
// arriving while one is pending is dropped, never queued.
type Dispatcher struct {
	manager  *Manager
	executor *Executor

	mu     sync.Mutex
	last   string
	events chan Request

	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	closeOnce sync.Once

	runs     atomic.Uint64
	failures atomic.Uint64
	dropped  atomic.Uint64
}

// NewDispatcher starts a dispatcher running the plugins known to manager.
func NewDispatcher(manager *Manager, executor *Executor) *Dispatcher {
	ctx, cancel := context.WithCancel(context.Background())
	d := &Dispatcher{
		manager:  manager,
		executor: executor,
		events:   make(chan Request, 1),
		ctx:      ctx,
		cancel:   cancel,
	}
	d.wg.Add(1)
	go d.work()
	return d
}

// OnUpdate matches expression.UpdateFunc.
func (d *Dispatcher) OnUpdate(score float64, symbol string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if symbol == d.last {
		return
	}

	req := Request{
		Event:     EventExpression,
		Symbol:    symbol,
		Emoji:     expression.Symbol(symbol).Emoji(),
		Score:     score,
		Previous:  d.last,
		Timestamp: time.Now().UnixMilli(),
	}

	select {
	case d.events <- req:
		d.last = symbol
	default:
		d.dropped.Add(1)
	}
}

func (d *Dispatcher) work() {
	defer d.wg.Done()
	for {
		select {
		case <-d.ctx.Done():
			return
		case req := <-d.events:
			d.run(req)
		}
	}
}

func (d *Dispatcher) run(req Request) {
	for _, p := range d.manager.List() {
		if !p.Reacts(req.Symbol) {
			continue
		}

		r := req
		r.Config = p.Manifest.Config
		entry := log.WithFields(log.Fields{"plugin": p.Manifest.Name, "symbol": req.Symbol})

		resp, err := d.executor.Execute(d.ctx, p, &r)
		d.runs.Add(1)
		switch {
		case err != nil:
			d.failures.Add(1)
			entry.WithError(err).Warn("Plugin failed")
		case !resp.Success:
			d.failures.Add(1)
			entry.WithField("error", resp.Error).Warn("Plugin reported failure")
		default:
			entry.Debug("Plugin ran")
		}
	}
}

// Stats returns a snapshot of the counters.
func (d *Dispatcher) Stats() Stats {
	return Stats{
		Runs:     d.runs.Load(),
		Failures: d.failures.Load(),
		Dropped:  d.dropped.Load(),
	}
}

// Close stops the dispatcher and kills any running plugin.
func (d *Dispatcher) Close() {
	d.closeOnce.Do(func() {
		d.cancel()
		d.wg.Wait()
	})
}
