package vm

import (
	"math"

	"github.com/bpowers/simlin/internal/compiler"
)

type stage int

const (
	stageInit stage = iota
	stageStep
)

// execCtx runs instance programs for one pass over the step or init graph.
// commit controls whether OpStateful is allowed to mutate the persistent
// state vector (see callStateful's doc comment): only the pass whose stock
// values are the ones actually being committed this dt should do so.
type execCtx struct {
	sim    *Sim
	stage  stage
	row    []float64 // defaults to sim.cur when nil
	commit bool
}

func (ex *execCtx) values() []float64 {
	if ex.row != nil {
		return ex.row
	}
	return ex.sim.cur
}

func (ex *execCtx) run(ip compiler.InstanceProgram) {
	v := ex.eval(ip.Code)
	ex.values()[ip.Offset] = v
}

func (ex *execCtx) eval(code []compiler.Instr) float64 {
	var stack [64]float64
	sp := 0
	push := func(v float64) {
		if sp < len(stack) {
			stack[sp] = v
		}
		sp++
	}
	pop := func() float64 {
		sp--
		if sp < 0 || sp >= len(stack) {
			return 0
		}
		return stack[sp]
	}

	for _, in := range code {
		switch in.Op {
		case compiler.OpConst:
			push(in.Imm)
		case compiler.OpLoadOffset:
			push(ex.values()[in.A])
		case compiler.OpLoadState:
			push(ex.sim.state[in.A])
		case compiler.OpTime:
			push(ex.sim.time)
		case compiler.OpDt:
			push(ex.sim.dt)
		case compiler.OpAdd:
			b, a := pop(), pop()
			push(a + b)
		case compiler.OpSub:
			b, a := pop(), pop()
			push(a - b)
		case compiler.OpMul:
			b, a := pop(), pop()
			push(a * b)
		case compiler.OpDiv:
			b, a := pop(), pop()
			push(a / b)
		case compiler.OpMod:
			b, a := pop(), pop()
			push(math.Mod(a, b))
		case compiler.OpPow:
			b, a := pop(), pop()
			push(math.Pow(a, b))
		case compiler.OpNeg:
			push(-pop())
		case compiler.OpAbs:
			push(math.Abs(pop()))
		case compiler.OpLt:
			b, a := pop(), pop()
			push(boolF(a < b))
		case compiler.OpLe:
			b, a := pop(), pop()
			push(boolF(a <= b))
		case compiler.OpGt:
			b, a := pop(), pop()
			push(boolF(a > b))
		case compiler.OpGe:
			b, a := pop(), pop()
			push(boolF(a >= b))
		case compiler.OpEq:
			b, a := pop(), pop()
			push(boolF(a == b))
		case compiler.OpNe:
			b, a := pop(), pop()
			push(boolF(a != b))
		case compiler.OpAnd:
			b, a := pop(), pop()
			push(boolF(a != 0 && b != 0))
		case compiler.OpOr:
			b, a := pop(), pop()
			push(boolF(a != 0 || b != 0))
		case compiler.OpNot:
			push(boolF(pop() == 0))
		case compiler.OpSelect:
			elseV, thenV, cond := pop(), pop(), pop()
			if cond != 0 {
				push(thenV)
			} else {
				push(elseV)
			}
		case compiler.OpCallBuiltin:
			args := popN(&sp, stack[:], in.A)
			push(ex.sim.callBuiltin(in.Builtin, args))
		case compiler.OpLookup:
			x := pop()
			push(ex.sim.prog.Lookups[in.A].Fn(x))
		case compiler.OpFold:
			push(ex.fold(in))
		case compiler.OpGather:
			idx := pop()
			i := int(idx+0.5) - 1
			if i < 0 {
				i = 0
			}
			if i >= len(in.Offsets) {
				i = len(in.Offsets) - 1
			}
			push(ex.values()[in.Offsets[i]])
		case compiler.OpStateful:
			args := popN(&sp, stack[:], in.B)
			push(ex.sim.callStateful(ex, in, args))
		}
	}
	if sp <= 0 {
		return 0
	}
	return stack[sp-1]
}

func popN(sp *int, stack []float64, n int) []float64 {
	if n <= 0 {
		return nil
	}
	start := *sp - n
	if start < 0 {
		start = 0
	}
	out := append([]float64(nil), stack[start:*sp]...)
	*sp = start
	return out
}

func boolF(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

func (ex *execCtx) fold(in compiler.Instr) float64 {
	vals := ex.values()
	switch in.Reduce {
	case compiler.ReduceCount:
		return float64(len(in.Offsets))
	case compiler.ReduceSum:
		sum := 0.0
		for _, o := range in.Offsets {
			sum += vals[o]
		}
		return sum
	case compiler.ReduceProd:
		prod := 1.0
		for _, o := range in.Offsets {
			prod *= vals[o]
		}
		return prod
	case compiler.ReduceMin:
		if len(in.Offsets) == 0 {
			return 0
		}
		m := vals[in.Offsets[0]]
		for _, o := range in.Offsets[1:] {
			if vals[o] < m {
				m = vals[o]
			}
		}
		return m
	case compiler.ReduceMax:
		if len(in.Offsets) == 0 {
			return 0
		}
		m := vals[in.Offsets[0]]
		for _, o := range in.Offsets[1:] {
			if vals[o] > m {
				m = vals[o]
			}
		}
		return m
	}
	return 0
}
