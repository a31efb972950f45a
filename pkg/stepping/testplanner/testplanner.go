// Package testplanner provides an in-memory stepping.Planner backed by a
// plain slice, standing in for the real G-code lookahead planner in tests
// and in cmd/stepcore-sim. It has no smoothing/lookahead of its own: blocks
// are appended pre-computed and handed to the engine in submission order.
package testplanner

import "stepcore/pkg/stepping"

// Planner is a FIFO stepping.Planner: one cursor tracks blocks the engine
// hasn't started compiling yet ("unprocessed"), a second tracks blocks
// already compiled into move segments but still awaiting a
// BeginningOfMoveSegment marker from the Step-ISR side before they can be
// fully discarded ("processed"). Both only ever advance.
type Planner struct {
	blocks []stepping.Block

	unprocessedIdx int
	processedIdx   int

	delayMS uint32
}

// New creates an empty planner.
func New() *Planner {
	return &Planner{}
}

// Push appends a block to the tail of the queue.
func (p *Planner) Push(b stepping.Block) {
	p.blocks = append(p.blocks, b)
}

// SetDelayBeforeDeliveringMS configures the warm-up delay
// isWaitingBeforeDelivering waits out before draining the first block.
func (p *Planner) SetDelayBeforeDeliveringMS(ms uint32) { p.delayMS = ms }

// Len returns the number of blocks still queued (unprocessed + processed).
func (p *Planner) Len() int { return len(p.blocks) - p.processedIdx }

func (p *Planner) CurrentUnprocessedBlock() *stepping.Block {
	if p.unprocessedIdx >= len(p.blocks) {
		return nil
	}
	return &p.blocks[p.unprocessedIdx]
}

func (p *Planner) DiscardCurrentUnprocessedBlock() {
	if p.unprocessedIdx < len(p.blocks) {
		p.unprocessedIdx++
	}
}

func (p *Planner) CurrentProcessedBlock() *stepping.Block {
	if p.processedIdx >= p.unprocessedIdx {
		return nil
	}
	return &p.blocks[p.processedIdx]
}

func (p *Planner) DiscardCurrentBlock() {
	if p.processedIdx < p.unprocessedIdx {
		p.processedIdx++
	}
}

// MovesPlanned returns the number of Move blocks still queued anywhere
// (compiled or not), i.e. pushed but not yet fully discarded.
func (p *Planner) MovesPlanned() int {
	n := 0
	for i := p.processedIdx; i < len(p.blocks); i++ {
		if p.blocks[i].IsMove {
			n++
		}
	}
	return n
}

// MovesPlannedProcessed returns the number of Move blocks the engine has
// already compiled into segments but that are still waiting on the
// Step-ISR side to discard.
func (p *Planner) MovesPlannedProcessed() int {
	n := 0
	for i := p.processedIdx; i < p.unprocessedIdx; i++ {
		if p.blocks[i].IsMove {
			n++
		}
	}
	return n
}

func (p *Planner) DelayBeforeDeliveringMS() uint32 { return p.delayMS }

// ClearBlockBuffer discards every queued block, matching what the engine
// expects after ResetQueues: a print restarts with nothing left in flight.
func (p *Planner) ClearBlockBuffer() {
	p.blocks = nil
	p.unprocessedIdx = 0
	p.processedIdx = 0
}
