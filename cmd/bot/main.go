// Scripted bot client. Connects over websocket, mirrors the match state from
// SNAPSHOT/DELTA traffic and plays a simple macro: keep workers mining, keep
// a worker queued at the HQ, and attack-move soldiers at the enemy base.
package main

import (
	"encoding/json"
	"flag"
	"log"
	"math"
	"os"
	"time"

	"github.com/gorilla/websocket"

	"skirmish.gg/internal/protocol"
)

type botState struct {
	actor string

	tick      uint64
	gold      int
	units     map[uint64]protocol.UnitState
	buildings map[uint64]protocol.BuildingState
	nodes     map[uint64]protocol.NodeState
	enemyBase *[2]float64
}

func main() {
	var (
		addr    = flag.String("addr", "ws://127.0.0.1:8080/v1/ws", "server websocket url")
		matchID = flag.String("match", "skirmish-1", "match to join")
		actorID = flag.String("actor", "p2", "player slot to control")
		period  = flag.Duration("period", 2*time.Second, "decision interval")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[bot] ", log.LstdFlags|log.Lmicroseconds)

	conn, _, err := websocket.DefaultDialer.Dial(*addr, nil)
	if err != nil {
		logger.Fatalf("dial %s: %v", *addr, err)
	}
	defer conn.Close()

	hello := protocol.HelloMsg{
		Type:            protocol.TypeHello,
		ProtocolVersion: protocol.Version,
		MatchID:         *matchID,
		ActorID:         *actorID,
		MaxQueue:        32,
	}
	if err := conn.WriteJSON(hello); err != nil {
		logger.Fatalf("hello: %v", err)
	}

	st := &botState{
		actor:     *actorID,
		units:     map[uint64]protocol.UnitState{},
		buildings: map[uint64]protocol.BuildingState{},
		nodes:     map[uint64]protocol.NodeState{},
	}

	cmds := make(chan protocol.CommandMsg, 16)
	go func() {
		for cm := range cmds {
			if err := conn.WriteJSON(cm); err != nil {
				logger.Printf("write: %v", err)
				return
			}
		}
	}()

	last := time.Now()
	for {
		_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			logger.Fatalf("read: %v", err)
		}
		base, err := protocol.DecodeBase(msg)
		if err != nil {
			continue
		}

		switch base.Type {
		case protocol.TypeWelcome:
			var w protocol.WelcomeMsg
			if err := json.Unmarshal(msg, &w); err == nil {
				logger.Printf("joined %s as %s (%d hz, catalog %s)",
					w.MatchID, w.ActorID, w.MatchParams.TickRateHz, w.CatalogDigest)
			}
		case protocol.TypeSnapshot:
			var s protocol.SnapshotMsg
			if err := json.Unmarshal(msg, &s); err != nil {
				continue
			}
			st.applySnapshot(s)
		case protocol.TypeDelta:
			var d protocol.DeltaMsg
			if err := json.Unmarshal(msg, &d); err != nil {
				continue
			}
			st.applyDelta(d)
			for _, ev := range d.Events {
				switch ev.Type {
				case protocol.EventGameEnded:
					if ev.Draw {
						logger.Printf("game over at tick %d: draw (%s)", ev.Tick, ev.Reason)
					} else {
						logger.Printf("game over at tick %d: %s wins (%s)", ev.Tick, ev.Winner, ev.Reason)
					}
					close(cmds)
					return
				case protocol.EventUnitDied:
					if ev.Owner == st.actor {
						logger.Printf("lost a unit to %s at tick %d", ev.Killer, ev.Tick)
					}
				}
			}
			if time.Since(last) >= *period {
				last = time.Now()
				for _, cm := range st.decide() {
					select {
					case cmds <- cm:
					default:
						// decision queue full; skip this round
					}
				}
			}
		case protocol.TypeReject:
			var r protocol.RejectMsg
			if err := json.Unmarshal(msg, &r); err == nil {
				logger.Printf("rejected: %s %s", r.Code, r.Message)
			}
		}
	}
}

func (st *botState) applySnapshot(s protocol.SnapshotMsg) {
	st.tick = s.Tick
	st.units = map[uint64]protocol.UnitState{}
	st.buildings = map[uint64]protocol.BuildingState{}
	st.nodes = map[uint64]protocol.NodeState{}
	for _, u := range s.Units {
		st.units[u.ID] = u
	}
	for _, b := range s.Buildings {
		st.buildings[b.ID] = b
		if b.Owner != st.actor && st.enemyBase == nil {
			pos := b.Pos
			st.enemyBase = &pos
		}
	}
	for _, n := range s.Nodes {
		st.nodes[n.ID] = n
	}
	for _, p := range s.Players {
		if p.ID == st.actor {
			st.gold = p.Resources["gold"]
		}
	}
}

func (st *botState) applyDelta(d protocol.DeltaMsg) {
	st.tick = d.Tick
	for _, u := range d.ChangedUnits {
		st.units[u.ID] = u
	}
	for _, b := range d.ChangedBuildings {
		st.buildings[b.ID] = b
		if b.Owner != st.actor && st.enemyBase == nil {
			pos := b.Pos
			st.enemyBase = &pos
		}
	}
	for _, n := range d.ChangedNodes {
		st.nodes[n.ID] = n
	}
	for _, p := range d.ChangedPlayers {
		if p.ID == st.actor {
			st.gold = p.Resources["gold"]
		}
	}
	for _, id := range d.RemovedUnits {
		delete(st.units, id)
	}
	for _, id := range d.RemovedBuildings {
		delete(st.buildings, id)
	}
}

// decide inspects the mirrored state and emits at most a handful of commands
// per round. Spend decisions are optimistic; the server rejects what the pool
// cannot cover.
func (st *botState) decide() []protocol.CommandMsg {
	var out []protocol.CommandMsg

	// Idle workers go mining at the nearest live node.
	for _, u := range st.units {
		if u.Owner != st.actor || u.State != "IDLE" {
			continue
		}
		if u.Carry > 0 || u.Type != "worker" {
			continue
		}
		if node, ok := st.nearestNode(u.Pos); ok {
			out = append(out, st.command("GATHER", func(cm *protocol.CommandMsg) {
				cm.UnitIDs = []uint64{u.ID}
				cm.TargetID = node.ID
			}))
		}
	}

	// Keep one worker in production while gold allows.
	for _, b := range st.buildings {
		if b.Owner != st.actor || b.BuildRemaining > 0 {
			continue
		}
		if b.Type == "hq" && len(b.Queue) == 0 && st.gold >= 50 {
			out = append(out, st.command("TRAIN", func(cm *protocol.CommandMsg) {
				cm.BuildingID = b.ID
				cm.UnitType = "worker"
			}))
			st.gold -= 50
		}
	}

	// Soldiers push the enemy base.
	if st.enemyBase != nil {
		var army []uint64
		for _, u := range st.units {
			if u.Owner == st.actor && u.Type == "soldier" && u.State == "IDLE" {
				army = append(army, u.ID)
			}
		}
		if len(army) >= 3 {
			pos := *st.enemyBase
			out = append(out, st.command("ATTACK", func(cm *protocol.CommandMsg) {
				cm.UnitIDs = army
				cm.TargetPos = &pos
			}))
		}
	}

	return out
}

func (st *botState) nearestNode(from [2]float64) (protocol.NodeState, bool) {
	var best protocol.NodeState
	bestDist := math.Inf(1)
	found := false
	for _, n := range st.nodes {
		if n.Exhausted || n.Remaining <= 0 {
			continue
		}
		dx, dy := n.Pos[0]-from[0], n.Pos[1]-from[1]
		d := dx*dx + dy*dy
		if d < bestDist {
			best, bestDist, found = n, d, true
		}
	}
	return best, found
}

func (st *botState) command(kind string, fill func(*protocol.CommandMsg)) protocol.CommandMsg {
	cm := protocol.CommandMsg{
		Type:            protocol.TypeCommand,
		ProtocolVersion: protocol.Version,
		ActorID:         st.actor,
		Kind:            kind,
	}
	fill(&cm)
	return cm
}
