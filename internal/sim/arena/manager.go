package arena

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"

	"skirmish.gg/internal/protocol"
	"skirmish.gg/internal/sim/catalog"
	"skirmish.gg/internal/sim/match"
	"skirmish.gg/internal/sim/tuning"
)

// SinkFactory builds the tick log sink for a new match. Nil disables tick
// logging entirely.
type SinkFactory func(matchID string) TickSink

// Manager is the registry of running matches. It owns match creation and
// teardown; per-match traffic goes through the Runtime it hands out.
type Manager struct {
	cat     *catalog.Catalog
	tune    tuning.Tuning
	logger  *log.Logger
	newSink SinkFactory

	mu       sync.RWMutex
	runtimes map[string]*Runtime
	cancels  map[string]context.CancelFunc
	wg       sync.WaitGroup
	closed   bool
}

func NewManager(cat *catalog.Catalog, tune tuning.Tuning, logger *log.Logger, newSink SinkFactory) (*Manager, error) {
	if cat == nil {
		return nil, fmt.Errorf("nil catalog")
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Manager{
		cat:      cat,
		tune:     tune,
		logger:   logger,
		newSink:  newSink,
		runtimes: map[string]*Runtime{},
		cancels:  map[string]context.CancelFunc{},
	}, nil
}

// Create registers a new match and starts its tick loop.
func (mgr *Manager) Create(roster []match.PlayerSlot, set match.Settings) (*Runtime, error) {
	if set.MatchID == "" {
		return nil, fmt.Errorf("empty match id")
	}
	m, err := match.New(roster, set, mgr.cat, mgr.tune)
	if err != nil {
		return nil, err
	}

	mgr.mu.Lock()
	defer mgr.mu.Unlock()
	if mgr.closed {
		return nil, fmt.Errorf("manager closed")
	}
	if _, dup := mgr.runtimes[set.MatchID]; dup {
		return nil, fmt.Errorf("match %s already exists", set.MatchID)
	}

	var sink TickSink
	if mgr.newSink != nil {
		sink = mgr.newSink(set.MatchID)
	}
	rt := newRuntime(m, mgr.tune, mgr.logger, sink)
	ctx, cancel := context.WithCancel(context.Background())
	mgr.runtimes[set.MatchID] = rt
	mgr.cancels[set.MatchID] = cancel

	mgr.wg.Add(1)
	go func() {
		defer mgr.wg.Done()
		if err := rt.Run(ctx); err != nil && ctx.Err() == nil {
			mgr.logger.Printf("[arena] match %s: run: %v", set.MatchID, err)
		}
	}()

	mgr.logger.Printf("[arena] match %s: created (%d players, %d hz)",
		set.MatchID, len(roster), m.TickRateHz())
	return rt, nil
}

func (mgr *Manager) Runtime(matchID string) *Runtime {
	mgr.mu.RLock()
	defer mgr.mu.RUnlock()
	return mgr.runtimes[matchID]
}

func (mgr *Manager) MatchIDs() []string {
	mgr.mu.RLock()
	defer mgr.mu.RUnlock()
	out := make([]string, 0, len(mgr.runtimes))
	for id := range mgr.runtimes {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Submit routes a command to a match. Validation beyond routing is the
// match's concern.
func (mgr *Manager) Submit(matchID string, actor match.PlayerID, cmd match.Command) error {
	rt := mgr.Runtime(matchID)
	if rt == nil {
		return fmt.Errorf("%s: match %s", protocol.ErrMatchNotFound, matchID)
	}
	return rt.Match().Submit(actor, cmd)
}

func (mgr *Manager) Snapshot(ctx context.Context, matchID string) (protocol.SnapshotMsg, error) {
	rt := mgr.Runtime(matchID)
	if rt == nil {
		return protocol.SnapshotMsg{}, fmt.Errorf("%s: match %s", protocol.ErrMatchNotFound, matchID)
	}
	return rt.Snapshot(ctx)
}

// Remove force-ends a match, stops its loop and drops it from the registry.
// A non-empty winner records a forced win (forfeit); empty records a draw.
func (mgr *Manager) Remove(ctx context.Context, matchID string, winner match.PlayerID, reason string) error {
	rt := mgr.Runtime(matchID)
	if rt == nil {
		return fmt.Errorf("%s: match %s", protocol.ErrMatchNotFound, matchID)
	}
	if err := rt.End(ctx, winner, reason); err != nil {
		return err
	}

	mgr.mu.Lock()
	cancel := mgr.cancels[matchID]
	delete(mgr.runtimes, matchID)
	delete(mgr.cancels, matchID)
	mgr.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	mgr.logger.Printf("[arena] match %s: removed (%s)", matchID, reason)
	return nil
}

// Close stops every runtime and waits for the loops to exit.
func (mgr *Manager) Close() {
	mgr.mu.Lock()
	if mgr.closed {
		mgr.mu.Unlock()
		return
	}
	mgr.closed = true
	cancels := make([]context.CancelFunc, 0, len(mgr.cancels))
	for _, c := range mgr.cancels {
		cancels = append(cancels, c)
	}
	mgr.mu.Unlock()

	for _, c := range cancels {
		c()
	}
	mgr.wg.Wait()
}
