// Package rollout implements an on-policy trajectory segment buffer
// with forward view generalized advantage estimation - GAE(λ) -
// following https://arxiv.org/abs/1506.02438. The buffer holds one
// fixed-length segment per parallel environment slot; a segment is
// consumed exactly once by the optimizer and then discarded.
package rollout

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Buffer stores fixed-length trajectory segments, one sub-buffer per
// parallel environment slot. Total capacity is slots x segment
// transitions. Writes beyond a full segment and writes whose
// observation or action shapes disagree with the shapes declared at
// construction are rejected with an error, never silently reshaped or
// wrapped.
//
// The time-limit filter changes how the caller should bootstrap paths
// cut off by an episode step limit: with the filter on, a Timeout end
// bootstraps with the value estimate of the final state rather than
// zero, so an artificial horizon cutoff is not misread as failure.
// The filter is a property of the buffer configuration; the caller
// queries it through TimeLimitFilter when finishing paths.
type Buffer struct {
	obsSize    int
	actionSize int
	slots      int
	segment    int

	lambda float64
	gamma  float64

	timeLimitFilter bool

	subs []*slotBuffer
}

// slotBuffer is the per-slot segment storage
type slotBuffer struct {
	currentPos   int
	pathStartIdx int

	obsBuffer  []float64
	actBuffer  []float64
	advBuffer  []float64
	rewBuffer  []float64
	retBuffer  []float64
	valBuffer  []float64
	logpBuffer []float64
	endBuffer  []bool
}

// Batch is the flattened contents of a full Buffer, transitions of
// slot s occupying indices [s*segment, (s+1)*segment)
type Batch struct {
	Obs     []float64
	Act     []float64
	Adv     []float64
	Ret     []float64
	LogProb []float64
	Ends    []bool
}

// New creates and returns a new segment buffer with capacity
// slots x segment transitions
func New(obsDim, actDim, slots, segment int, lambda, gamma float64,
	timeLimitFilter bool) (*Buffer, error) {
	if obsDim <= 0 || actDim <= 0 {
		return nil, fmt.Errorf("new: observation and action dimensions "+
			"must be positive \n\thave(%v, %v)", obsDim, actDim)
	}
	if slots <= 0 {
		return nil, fmt.Errorf("new: buffer requires at least one slot "+
			"\n\thave(%v)", slots)
	}
	if segment <= 0 {
		return nil, fmt.Errorf("new: segment length must be positive "+
			"\n\thave(%v)", segment)
	}
	if lambda < 0 || lambda > 1 {
		return nil, fmt.Errorf("new: lambda must be in [0, 1] \n\thave(%v)",
			lambda)
	}
	if gamma < 0 || gamma > 1 {
		return nil, fmt.Errorf("new: gamma must be in [0, 1] \n\thave(%v)",
			gamma)
	}

	subs := make([]*slotBuffer, slots)
	for i := range subs {
		subs[i] = &slotBuffer{
			obsBuffer:  make([]float64, segment*obsDim),
			actBuffer:  make([]float64, segment*actDim),
			advBuffer:  make([]float64, segment),
			rewBuffer:  make([]float64, segment),
			retBuffer:  make([]float64, segment),
			valBuffer:  make([]float64, segment),
			logpBuffer: make([]float64, segment),
			endBuffer:  make([]bool, segment),
		}
	}

	return &Buffer{
		obsSize:         obsDim,
		actionSize:      actDim,
		slots:           slots,
		segment:         segment,
		lambda:          lambda,
		gamma:           gamma,
		timeLimitFilter: timeLimitFilter,
		subs:            subs,
	}, nil
}

// Capacity returns the total number of transitions the buffer holds
func (b *Buffer) Capacity() int {
	return b.slots * b.segment
}

// Slots returns the number of parallel environment slots
func (b *Buffer) Slots() int {
	return b.slots
}

// SegmentLength returns the number of transitions per slot
func (b *Buffer) SegmentLength() int {
	return b.segment
}

// TimeLimitFilter returns whether Timeout episode ends should
// bootstrap with the final state's value estimate instead of zero
func (b *Buffer) TimeLimitFilter() bool {
	return b.timeLimitFilter
}

// Full returns whether every slot's segment is full
func (b *Buffer) Full() bool {
	for _, sub := range b.subs {
		if sub.currentPos != b.segment {
			return false
		}
	}
	return true
}

// Store stores a single transition into slot's segment. Store rejects
// writes to a full segment and shape mismatches deterministically.
func (b *Buffer) Store(slot int, obs, act []float64, rew, val, logp float64,
	end bool) error {
	if slot < 0 || slot >= b.slots {
		return fmt.Errorf("store: no such slot \n\twant(0 <= slot < %v) "+
			"\n\thave(%v)", b.slots, slot)
	}

	sub := b.subs[slot]
	if sub.currentPos >= b.segment {
		return fmt.Errorf("store: cannot add new transition, segment of "+
			"slot %v at maximum capacity", slot)
	}
	if len(obs) != b.obsSize {
		return fmt.Errorf("store: illegal obs length \n\twant(%v)\n\thave(%v)",
			b.obsSize, len(obs))
	}
	if len(act) != b.actionSize {
		return fmt.Errorf("store: illegal act length \n\twant(%v)\n\thave(%v)",
			b.actionSize, len(act))
	}

	start := sub.currentPos * b.obsSize
	stop := start + b.obsSize
	copy(sub.obsBuffer[start:stop], obs)

	start = sub.currentPos * b.actionSize
	stop = start + b.actionSize
	copy(sub.actBuffer[start:stop], act)

	sub.rewBuffer[sub.currentPos] = rew
	sub.valBuffer[sub.currentPos] = val
	sub.logpBuffer[sub.currentPos] = logp
	sub.endBuffer[sub.currentPos] = end
	sub.currentPos++
	return nil
}

// FinishPath closes the open trajectory of slot, computing GAE(λ)
// advantages and discounted rewards-to-go for it. The lastVal
// parameter is the value bootstrapped beyond the final stored
// transition: zero for a true terminal state, the final state's value
// estimate for a Timeout end under the time-limit filter or for a
// path cut off by the end of the segment.
func (b *Buffer) FinishPath(slot int, lastVal float64) error {
	if slot < 0 || slot >= b.slots {
		return fmt.Errorf("finishpath: no such slot \n\twant(0 <= slot < "+
			"%v) \n\thave(%v)", b.slots, slot)
	}

	sub := b.subs[slot]
	start := sub.pathStartIdx
	stop := sub.currentPos
	if start == stop {
		return fmt.Errorf("finishpath: no open path in slot %v", slot)
	}

	rews := make([]float64, 0, stop-start+1)
	rews = append(rews, sub.rewBuffer[start:stop]...)
	rews = append(rews, lastVal)
	vals := make([]float64, 0, stop-start+1)
	vals = append(vals, sub.valBuffer[start:stop]...)
	vals = append(vals, lastVal)

	// GAE-lambda advantage calculation
	stateVals := mat.NewVecDense(len(vals)-1, vals[:len(vals)-1])
	nextStateVals := mat.NewVecDense(len(vals)-1, vals[1:])
	rewards := mat.NewVecDense(len(rews)-1, rews[:len(rews)-1])

	deltas := mat.NewVecDense(stateVals.Len(), nil)
	deltas.AddScaledVec(rewards, b.gamma, nextStateVals)
	deltas.SubVec(deltas, stateVals)

	copy(sub.advBuffer[start:stop], discountCumSum(deltas, b.gamma*b.lambda))

	// Rewards-to-go
	rewards = mat.NewVecDense(len(rews), rews)
	rewsToGo := discountCumSum(rewards, b.gamma)
	copy(sub.retBuffer[start:stop], rewsToGo[:len(rewsToGo)-1])

	sub.pathStartIdx = sub.currentPos
	return nil
}

// Get returns the flattened contents of the buffer and resets it for
// the next segment. Get is valid only once every slot's segment is
// full and every path has been finished; partially filled segments
// are invalid for sampling.
func (b *Buffer) Get() (*Batch, error) {
	for i, sub := range b.subs {
		if sub.currentPos != b.segment {
			return nil, fmt.Errorf("get: segment of slot %v must be full "+
				"before sampling \n\twant(%v transitions) \n\thave(%v)", i,
				b.segment, sub.currentPos)
		}
		if sub.pathStartIdx != sub.currentPos {
			return nil, fmt.Errorf("get: slot %v has an unfinished path", i)
		}
	}

	n := b.Capacity()
	batch := &Batch{
		Obs:     make([]float64, 0, n*b.obsSize),
		Act:     make([]float64, 0, n*b.actionSize),
		Adv:     make([]float64, 0, n),
		Ret:     make([]float64, 0, n),
		LogProb: make([]float64, 0, n),
		Ends:    make([]bool, 0, n),
	}

	for _, sub := range b.subs {
		batch.Obs = append(batch.Obs, sub.obsBuffer...)
		batch.Act = append(batch.Act, sub.actBuffer...)
		batch.Adv = append(batch.Adv, sub.advBuffer...)
		batch.Ret = append(batch.Ret, sub.retBuffer...)
		batch.LogProb = append(batch.LogProb, sub.logpBuffer...)
		batch.Ends = append(batch.Ends, sub.endBuffer...)

		sub.currentPos = 0
		sub.pathStartIdx = 0
	}

	return batch, nil
}

// discountCumSum computes the reverse discounted cumulative sums of x
func discountCumSum(x *mat.VecDense, discount float64) []float64 {
	discounts := mat.NewVecDense(x.Len(), nil)
	cumSums := make([]float64, x.Len())
	nextScaledRews := mat.NewVecDense(x.Len(), nil)
	backing := nextScaledRews.RawVector().Data

	for i := 0; i < x.Len(); i++ {
		discounts.ScaleVec(discount, discounts)
		discounts.SetVec(x.Len()-i-1, 1)

		nextScaledRews.MulElemVec(discounts, x)
		cumSums[x.Len()-i-1] = floats.Sum(backing[x.Len()-i-1:])
	}

	return cumSums
}
