package match

import (
	"errors"
	"fmt"
	"sync"
)

// CommandKind is a closed set; the tick driver dispatches over it
// exhaustively so an unhandled kind is caught at submission.
type CommandKind string

const (
	CmdMove             CommandKind = "MOVE"
	CmdAttack           CommandKind = "ATTACK"
	CmdPatrol           CommandKind = "PATROL"
	CmdHold             CommandKind = "HOLD"
	CmdGather           CommandKind = "GATHER"
	CmdBuild            CommandKind = "BUILD"
	CmdTrain            CommandKind = "TRAIN"
	CmdCancelProduction CommandKind = "CANCEL_PRODUCTION"
	CmdSetRally         CommandKind = "SET_RALLY"
	CmdResearch         CommandKind = "RESEARCH"
	CmdCancelResearch   CommandKind = "CANCEL_RESEARCH"
)

var knownKinds = map[CommandKind]struct{}{
	CmdMove: {}, CmdAttack: {}, CmdPatrol: {}, CmdHold: {}, CmdGather: {},
	CmdBuild: {}, CmdTrain: {}, CmdCancelProduction: {}, CmdSetRally: {},
	CmdResearch: {}, CmdCancelResearch: {},
}

// Command is a single player- or bot-issued instruction. Seq is assigned at
// enqueue and is the sole ordering key; wall-clock timestamps are untrusted
// because producers are not synchronized.
type Command struct {
	Actor PlayerID
	Kind  CommandKind

	UnitIDs      []EntityID
	TargetID     EntityID
	TargetPos    *Vec2
	UnitType     string
	BuildingType string
	BuildingID   EntityID
	TechID       string

	Seq uint64
}

// Submission errors.
var (
	// ErrMatchEnded: submission after the match ended (StateError).
	ErrMatchEnded = errors.New("match has ended")
	// ErrRateLimited: the actor exceeded its per-window submission cap.
	// Unlike in-tick drops this is signalled explicitly to the producer.
	ErrRateLimited = errors.New("submission rate limit exceeded")
	// ErrBadCommand: malformed command shape (ValidationError).
	ErrBadCommand = errors.New("malformed command")
	// ErrUnknownActor: the actor is not on the roster (ValidationError).
	ErrUnknownActor = errors.New("unknown actor")
)

// CommandDrop is an in-tick diagnostic for a command (or command fraction)
// that could not be applied. Drops are never surfaced as errors to the
// producer; they are observable via the tick log only.
type CommandDrop struct {
	Seq    uint64      `json:"seq"`
	Actor  PlayerID    `json:"actor"`
	Kind   CommandKind `json:"kind"`
	Code   string      `json:"code"`
	Reason string      `json:"reason,omitempty"`
}

// inbox is the only structure touched by multiple goroutines concurrently
// with the tick consumer: many producers enqueue, the tick driver swaps the
// whole batch out. Producers never block.
type inbox struct {
	mu      sync.Mutex
	nextSeq uint64
	buf     []Command

	windowIdx uint64
	counts    map[PlayerID]int
}

func (in *inbox) submit(cmd Command, window uint64, capPerWindow int) (uint64, error) {
	in.mu.Lock()
	defer in.mu.Unlock()

	if capPerWindow > 0 {
		if window != in.windowIdx {
			in.windowIdx = window
			clear(in.counts)
		}
		if in.counts[cmd.Actor] >= capPerWindow {
			return 0, fmt.Errorf("actor %s: %w", cmd.Actor, ErrRateLimited)
		}
		in.counts[cmd.Actor]++
	}

	in.nextSeq++
	cmd.Seq = in.nextSeq
	in.buf = append(in.buf, cmd)
	return cmd.Seq, nil
}

// swap atomically takes the accumulated batch for processing.
func (in *inbox) swap() []Command {
	in.mu.Lock()
	defer in.mu.Unlock()
	out := in.buf
	in.buf = nil
	return out
}
