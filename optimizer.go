package main

// OptimizerStats counts what one optimizer run rewrote
type OptimizerStats struct {
	SetZero   int // loops replaced by SetZero
	MoveValue int // loops replaced by MoveValue
	Loops     int // loops kept as real loops
}

// Optimizer is a bottom-up, loop-local peephole rewriter. It never reorders
// siblings and never merges across a loop boundary: each loop is rewritten
// using only its own, already optimized, body.
type Optimizer struct {
	Stats OptimizerStats
}

func NewOptimizer() *Optimizer {
	return &Optimizer{}
}

// Optimize runs a fresh optimizer over program
func Optimize(program []Folded) []Folded {
	return NewOptimizer().Run(program)
}

// Run returns the optimized program. The input is not modified.
func (opt *Optimizer) Run(program []Folded) []Folded {
	out := make([]Folded, len(program))
	for i, n := range program {
		out[i] = opt.optimize(n)
	}
	return out
}

func (opt *Optimizer) optimize(n Folded) Folded {
	loop, ok := n.(LoopOp)
	if !ok {
		return n
	}
	body := opt.Run(loop.Body)

	if isSetZero(body) {
		opt.Stats.SetZero++
		return SetZeroOp{}
	}
	if mv, ok := matchMoveValue(body); ok {
		opt.Stats.MoveValue++
		return mv
	}
	opt.Stats.Loops++
	return LoopOp{Body: body}
}

// isSetZero matches [Add(i)] with i < 0. A loop that only decrements ends at
// zero whenever it ends at all, so it is a plain store of zero.
// [Add(i)] with i > 0 must stay a loop.
func isSetZero(body []Folded) bool {
	if len(body) != 1 {
		return false
	}
	add, ok := body[0].(AddOp)
	return ok && add.Delta < 0
}

// matchMoveValue matches [Move(n), Add(i), Move(-n), Add(-1)], the
// copy-and-clear idiom: each iteration adds i to the cell at n and decrements
// the current cell, so the loop adds current*i at n and leaves zero behind.
func matchMoveValue(body []Folded) (MoveValueOp, bool) {
	if len(body) != 4 {
		return MoveValueOp{}, false
	}
	out, ok1 := body[0].(MoveOp)
	add, ok2 := body[1].(AddOp)
	back, ok3 := body[2].(MoveOp)
	dec, ok4 := body[3].(AddOp)
	if !ok1 || !ok2 || !ok3 || !ok4 {
		return MoveValueOp{}, false
	}
	if back.Delta != -out.Delta || dec.Delta != -1 {
		return MoveValueOp{}, false
	}
	return MoveValueOp{Offset: out.Delta, Multiplier: add.Delta}, true
}
