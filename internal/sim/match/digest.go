package match

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"hash"
	"math"
	"sort"
)

// StateDigest hashes the full simulation state in a canonical order. Two
// matches fed the same settings and the same command sequence must produce
// the same digest at every tick; any divergence is a determinism bug.
func (m *Match) StateDigest() string {
	h := sha256.New()

	writeU64(h, m.tick.Load())
	writeU64(h, uint64(m.status.Load()))
	writeStr(h, string(m.winner))
	writeBool(h, m.draw)

	for _, p := range m.players {
		writeStr(h, string(p.ID))
		writeBool(h, p.Eliminated)
		kinds := make([]string, 0, len(p.Pool))
		for k := range p.Pool {
			kinds = append(kinds, k)
		}
		sort.Strings(kinds)
		for _, k := range kinds {
			writeStr(h, k)
			writeU64(h, uint64(int64(p.Pool[k])))
		}
		techs := make([]string, 0, len(p.Techs))
		for t, done := range p.Techs {
			if done {
				techs = append(techs, t)
			}
		}
		sort.Strings(techs)
		for _, t := range techs {
			writeStr(h, t)
		}
	}

	for _, id := range m.unitIDs() {
		u := m.units[id]
		writeU64(h, uint64(u.ID))
		writeStr(h, string(u.Owner))
		writeStr(h, u.Type)
		writeF64(h, u.Pos.X)
		writeF64(h, u.Pos.Y)
		writeU64(h, uint64(int64(u.HP)))
		writeU64(h, uint64(u.State))
		writeU64(h, uint64(u.TargetID))
		writeU64(h, uint64(int64(u.Carry)))
		writeStr(h, u.CarryKind)
		writeF64(h, u.Cooldown)
		writeF64(h, u.gatherFrac)
	}

	for _, id := range m.buildingIDs() {
		b := m.buildings[id]
		writeU64(h, uint64(b.ID))
		writeStr(h, string(b.Owner))
		writeStr(h, b.Type)
		writeF64(h, b.Pos.X)
		writeF64(h, b.Pos.Y)
		writeU64(h, uint64(int64(b.HP)))
		writeF64(h, b.BuildRemaining)
		writeU64(h, uint64(len(b.Queue)))
		for _, o := range b.Queue {
			writeStr(h, o.UnitType)
			writeF64(h, o.Remaining)
		}
		if b.Research != nil {
			writeStr(h, b.Research.TechID)
			writeF64(h, b.Research.Remaining)
		}
		writeF64(h, b.Cooldown)
	}

	for _, id := range m.nodeIDs() {
		n := m.nodes[id]
		writeU64(h, uint64(n.ID))
		writeStr(h, n.Kind)
		writeU64(h, uint64(int64(n.Remaining)))
		writeBool(h, n.Exhausted)
	}

	return hex.EncodeToString(h.Sum(nil))
}

func writeU64(h hash.Hash, v uint64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	h.Write(b[:])
}

func writeF64(h hash.Hash, v float64) {
	writeU64(h, math.Float64bits(v))
}

func writeStr(h hash.Hash, s string) {
	writeU64(h, uint64(len(s)))
	h.Write([]byte(s))
}

func writeBool(h hash.Hash, v bool) {
	if v {
		h.Write([]byte{1})
	} else {
		h.Write([]byte{0})
	}
}
