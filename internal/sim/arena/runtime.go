package arena

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"skirmish.gg/internal/protocol"
	"skirmish.gg/internal/sim/match"
	"skirmish.gg/internal/sim/tuning"
)

// TickSink receives one entry per completed tick. Implemented by the
// persistence tick logger; nil disables logging.
type TickSink interface {
	WriteTick(match.TickLogEntry) error
	Close() error
}

type subscribeReq struct {
	out  chan []byte
	resp chan uint64
}

type snapshotReq struct {
	resp chan protocol.SnapshotMsg
}

type endReq struct {
	winner match.PlayerID
	reason string
	ack    chan struct{}
}

// Runtime drives one match on its own goroutine. All match mutation happens
// on that goroutine; outside callers talk to it through channels (or through
// Match.Submit, which is safe concurrently by design).
type Runtime struct {
	m       *match.Match
	tune    tuning.Tuning
	logger  *log.Logger
	sink    TickSink

	subscribe   chan subscribeReq
	unsubscribe chan uint64
	snapshots   chan snapshotReq
	end         chan endReq
	stop        chan struct{}

	nextSub uint64
	subs    map[uint64]chan []byte
}

func newRuntime(m *match.Match, tune tuning.Tuning, logger *log.Logger, sink TickSink) *Runtime {
	return &Runtime{
		m:           m,
		tune:        tune,
		logger:      logger,
		sink:        sink,
		subscribe:   make(chan subscribeReq),
		unsubscribe: make(chan uint64, 8),
		snapshots:   make(chan snapshotReq),
		end:         make(chan endReq),
		stop:        make(chan struct{}),
		subs:        map[uint64]chan []byte{},
	}
}

func (r *Runtime) Match() *match.Match { return r.m }

func (r *Runtime) Run(ctx context.Context) error {
	interval := time.Second / time.Duration(r.m.TickRateHz())
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	defer r.closeSink()

	budget := time.Duration(float64(interval) * r.tune.TickBudgetFraction)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-r.stop:
			return nil
		case req := <-r.subscribe:
			r.nextSub++
			r.subs[r.nextSub] = req.out
			req.resp <- r.nextSub
		case id := <-r.unsubscribe:
			delete(r.subs, id)
		case req := <-r.snapshots:
			req.resp <- r.m.Snapshot()
		case req := <-r.end:
			evs := r.m.End(req.winner, req.reason)
			if len(evs) > 0 {
				r.broadcast(protocol.DeltaMsg{
					Type:            protocol.TypeDelta,
					ProtocolVersion: protocol.Version,
					MatchID:         r.m.ID(),
					Tick:            r.m.CurrentTick(),
					Events:          evs,
				})
			}
			close(req.ack)
		case <-ticker.C:
			if r.m.Status() == match.StatusEnded {
				continue
			}
			start := time.Now()
			res := r.m.Tick(interval)

			if r.sink != nil {
				entry := match.TickLogEntry{
					Tick:    res.Delta.Tick,
					Applied: res.Applied,
					Dropped: res.Dropped,
					Events:  len(res.Delta.Events),
					Digest:  r.m.StateDigest(),
				}
				if err := r.sink.WriteTick(entry); err != nil {
					r.logger.Printf("[arena] match %s: tick log: %v", r.m.ID(), err)
				}
			}
			for _, drop := range res.Dropped {
				r.logger.Printf("[arena] match %s tick %d: dropped %s from %s: %s %s",
					r.m.ID(), res.Delta.Tick, drop.Kind, drop.Actor, drop.Code, drop.Reason)
			}

			r.broadcast(res.Delta)

			if res.Err != nil {
				r.logger.Printf("[arena] match %s tick %d: aborted: %v", r.m.ID(), res.Delta.Tick, res.Err)
				return res.Err
			}
			if budget > 0 {
				if elapsed := time.Since(start); elapsed > budget {
					r.logger.Printf("[arena] match %s tick %d: overran budget: %v > %v",
						r.m.ID(), res.Delta.Tick, elapsed, budget)
				}
			}
		}
	}
}

func (r *Runtime) Stop() { close(r.stop) }

// Subscribe registers an observer channel and returns its id. Deltas are
// delivered best-effort: a slow observer loses old frames, never stalls the
// tick loop.
func (r *Runtime) Subscribe(ctx context.Context, out chan []byte) (uint64, error) {
	req := subscribeReq{out: out, resp: make(chan uint64, 1)}
	select {
	case r.subscribe <- req:
	case <-ctx.Done():
		return 0, ctx.Err()
	}
	select {
	case id := <-req.resp:
		return id, nil
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

func (r *Runtime) Unsubscribe(id uint64) {
	select {
	case r.unsubscribe <- id:
	case <-r.stop:
	}
}

func (r *Runtime) Snapshot(ctx context.Context) (protocol.SnapshotMsg, error) {
	req := snapshotReq{resp: make(chan protocol.SnapshotMsg, 1)}
	select {
	case r.snapshots <- req:
	case <-ctx.Done():
		return protocol.SnapshotMsg{}, ctx.Err()
	}
	select {
	case s := <-req.resp:
		return s, nil
	case <-ctx.Done():
		return protocol.SnapshotMsg{}, ctx.Err()
	}
}

// End forces the match to finish. An empty winner records a draw.
func (r *Runtime) End(ctx context.Context, winner match.PlayerID, reason string) error {
	req := endReq{winner: winner, reason: reason, ack: make(chan struct{})}
	select {
	case r.end <- req:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-req.ack:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Runtime) broadcast(d protocol.DeltaMsg) {
	if len(r.subs) == 0 {
		return
	}
	b, err := json.Marshal(d)
	if err != nil {
		r.logger.Printf("[arena] match %s: marshal delta: %v", r.m.ID(), err)
		return
	}
	for _, out := range r.subs {
		sendLatest(out, b)
	}
}

// sendLatest drops the oldest queued frame when the observer channel is full,
// so deltas stay fresh under backpressure.
func sendLatest(ch chan []byte, b []byte) {
	select {
	case ch <- b:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- b:
	default:
	}
}

func (r *Runtime) closeSink() {
	if r.sink == nil {
		return
	}
	if err := r.sink.Close(); err != nil {
		r.logger.Printf("[arena] match %s: close tick log: %v", r.m.ID(), err)
	}
}
