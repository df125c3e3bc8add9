package compiler

import (
	"math"
	"strconv"
	"strings"

	"github.com/bpowers/simlin/internal/depgraph"
	"github.com/bpowers/simlin/internal/eqn/ast"
	serr "github.com/bpowers/simlin/internal/errors"
	"github.com/bpowers/simlin/internal/model"
	"github.com/bpowers/simlin/internal/resolve"
)

// builtinIDs maps a canonical function name to its fixed-shape BuiltinID.
var builtinIDs = map[string]BuiltinID{
	"sin": BSin, "cos": BCos, "exp": BExp, "ln": BLn, "log10": BLog10, "sqrt": BSqrt,
	"arcsin": BArcsin, "arccos": BArccos, "arctan": BArctan, "tan": BTan,
	"min": BMin, "max": BMax, "int": BInt, "pulse": BPulse, "ramp": BRamp, "step": BStep,
	"safediv": BSafediv, "pi": BPi, "inf": BInf,
	"random_uniform": BRandomUniform, "random_normal": BRandomNormal,
}

// statefulIDs maps a canonical function name to its StatefulKind and chain
// width (the number of internal first-order stages it's built from).
var statefulIDs = map[string]struct {
	Kind  StatefulKind
	Width int
}{
	"smooth": {StSmooth, 1}, "smoothi": {StSmooth, 1}, "smooth3": {StSmooth, 3}, "smooth3i": {StSmooth, 3},
	"delay1": {StDelay1, 1}, "delay1i": {StDelay1, 1}, "delay3": {StDelay1, 3}, "delay3i": {StDelay1, 3},
	"delayn":         {StDelay1, 0}, // width resolved dynamically from the order argument
	"delay_fixed":    {StDelayFixed, 1},
	"trend":          {StTrend, 1},
	"forecast":       {StForecast, 1},
	"init":           {StInit, 1},
	"active_initial": {StActiveInitial, 1},
	"sample_if_true": {StSampleIfTrue, 1},
	"random_pink":    {StPink, 1},
}

var reduceIDs = map[string]ReduceOp{
	"sum": ReduceSum, "prod": ReduceProd, "min": ReduceMin, "max": ReduceMax, "elmcount": ReduceCount,
}

// foldable built-ins accept a single wildcard-subscripted array argument and
// reduce over it, rather than behaving as fixed-shape scalar calls.
var foldable = map[string]bool{"sum": true, "prod": true, "min": true, "max": true, "elmcount": true}

type emitter struct {
	code []Instr
}

func (e *emitter) emit(i Instr) { e.code = append(e.code, i) }

// context carries everything compileExpr needs to resolve a reference:
// the instance being compiled (for same-shape bare-ident resolution), the
// project's dimensions (for subscript resolution), and shared compiler
// state (offsets, state allocation, lookup pool).
type context struct {
	c        *Compiler
	inst     resolve.Instance
	dims     resolve.VarDims
	instOf   map[string][]resolve.Instance // variable ident -> its instances, in tuple order
	timeUnit string
}

// Compiler accumulates shared state (offset table, state layout, lookup
// pool) across every instance program it compiles for one Model.
type Compiler struct {
	Offsets   map[string]int
	nextCol   int
	States    []StateSlot
	stateLen  int
	Lookups   []*LookupFn
	lookupIdx map[string]int
	dt        float64
	start     float64
	errs      []serr.Detail
	dimLookup func(name string) (*model.Dimension, bool)
}

// Compile lowers every resolved instance of m into init and step programs.
// The Program's StockFlows/NonNegative are derived here from the datamodel
// rather than the AST, since stock net-flow is a structural property, not
// an expression to interpret.
func Compile(proj *model.Project, m *model.Model, res resolve.Result) (*Program, []serr.Detail) {
	c := &Compiler{
		Offsets:   make(map[string]int),
		lookupIdx: make(map[string]int),
		dt:        proj.SimSpecs.Dt.Float(),
		start:     proj.SimSpecs.Start,
		dimLookup: proj.Dimensions.Get,
	}
	c.nextCol = 1 // column 0 is time

	instOf := make(map[string][]resolve.Instance, len(res.Instances))
	for _, in := range res.Instances {
		instOf[in.Ident] = append(instOf[in.Ident], in)
	}
	for _, in := range res.Instances {
		c.Offsets[in.Key()] = c.nextCol
		c.nextCol++
	}

	stepGraph := depgraph.BuildStepGraph(m, res)
	initGraph := depgraph.BuildInitGraph(m, res)
	stocks := make(map[string]bool)
	for _, in := range res.Instances {
		if in.Kind == model.VarStock {
			stocks[in.Ident] = true
		}
	}
	stepOrder, detail := stepGraph.TopoOrder(stocks)
	if detail != nil {
		return nil, []serr.Detail{*detail}
	}
	initOrder, detail := initGraph.TopoOrder(stocks)
	if detail != nil {
		return nil, []serr.Detail{*detail}
	}

	byIdent := make(map[string][]resolve.Instance, len(instOf))
	for ident, insts := range instOf {
		byIdent[ident] = insts
	}

	prog := &Program{
		Offsets:     c.Offsets,
		NumCols:     c.nextCol,
		StockFlows:  make(map[int][]FlowRef),
		NonNegative: make(map[int]bool),
	}

	for _, in := range res.Instances {
		if in.Kind != model.VarStock {
			continue
		}
		col := c.Offsets[in.Key()]
		if in.NonNegative {
			prog.NonNegative[col] = true
		}
		prog.Stocks = append(prog.Stocks, in.Key())
		prog.StockFlows[col] = append(prog.StockFlows[col], resolveFlows(c, in, in.Inflows, 1, res.Dims, byIdent)...)
		prog.StockFlows[col] = append(prog.StockFlows[col], resolveFlows(c, in, in.Outflows, -1, res.Dims, byIdent)...)
	}

	emitFor := func(ident string, useInit bool) []InstanceProgram {
		var out []InstanceProgram
		for _, in := range byIdent[ident] {
			if in.Kind == model.VarModule {
				continue
			}
			expr := in.Expr
			if useInit && in.Kind == model.VarStock {
				if in.InitExpr != nil {
					expr = in.InitExpr
				}
			} else if in.Kind == model.VarStock && !useInit {
				// stocks have no step-phase expression: their value
				// advances purely via StockFlows integration.
				continue
			}
			ctx := &context{c: c, inst: in, dims: res.Dims, instOf: byIdent, timeUnit: proj.SimSpecs.TimeUnits}
			e := &emitter{}
			compileExpr(ctx, e, expr)
			// A flow/aux with an attached table evaluates its equation as the
			// lookup input, not as the value itself.
			if in.GF != nil {
				e.emit(Instr{Op: OpLookup, A: c.lookupID(in.Key(), in.GF)})
			}
			out = append(out, InstanceProgram{Key: in.Key(), Offset: c.Offsets[in.Key()], Code: e.code})
		}
		return out
	}

	for _, ident := range initOrder {
		prog.Init = append(prog.Init, emitFor(ident, true)...)
	}
	for _, ident := range stepOrder {
		prog.Step = append(prog.Step, emitFor(ident, false)...)
	}

	prog.StateLen = c.stateLen
	prog.States = c.States
	prog.Lookups = c.Lookups
	return prog, c.errs
}

// resolveFlows maps a stock's named inflows/outflows to the concrete
// FlowRefs contributing to its derivative: a same-shape flow uses the
// stock instance's own tuple, a scalar flow contributes to every instance
// of an arrayed stock.
func resolveFlows(c *Compiler, stock resolve.Instance, names []string, sign float64, dims resolve.VarDims, byIdent map[string][]resolve.Instance) []FlowRef {
	var out []FlowRef
	for _, name := range names {
		ident := model.Canonical(name)
		flowDims := dims[ident]
		if len(flowDims) == 0 {
			if insts, ok := byIdent[ident]; ok && len(insts) == 1 {
				out = append(out, FlowRef{Col: c.Offsets[insts[0].Key()], Sign: sign})
			}
			continue
		}
		key := ident
		if len(stock.Tuple) > 0 {
			key = ident + "[" + strings.Join(stock.Tuple, ",") + "]"
		}
		if col, ok := c.Offsets[key]; ok {
			out = append(out, FlowRef{Col: col, Sign: sign})
		}
	}
	return out
}

func compileExpr(ctx *context, e *emitter, n ast.Expr) {
	switch v := n.(type) {
	case *ast.Number:
		e.emit(Instr{Op: OpConst, Imm: v.Value})
	case *ast.Ident:
		compileIdent(ctx, e, v.Name)
	case *ast.Index:
		compileIndex(ctx, e, v)
	case *ast.UnaryOp:
		compileExpr(ctx, e, v.Arg)
		switch v.Op {
		case "-":
			e.emit(Instr{Op: OpNeg})
		case "!":
			e.emit(Instr{Op: OpNot})
		}
	case *ast.Transpose:
		compileExpr(ctx, e, v.Arg)
	case *ast.If:
		compileExpr(ctx, e, v.Cond)
		compileExpr(ctx, e, v.Then)
		compileExpr(ctx, e, v.Else)
		e.emit(Instr{Op: OpSelect})
	case *ast.BinOp:
		compileExpr(ctx, e, v.Left)
		compileExpr(ctx, e, v.Right)
		e.emit(Instr{Op: binOp(v.Op)})
	case *ast.Call:
		compileCall(ctx, e, v)
	default:
		e.emit(Instr{Op: OpConst, Imm: 0})
	}
}

func binOp(op string) Op {
	switch op {
	case "+":
		return OpAdd
	case "-":
		return OpSub
	case "*":
		return OpMul
	case "/":
		return OpDiv
	case "%":
		return OpMod
	case "^":
		return OpPow
	case "<":
		return OpLt
	case "<=":
		return OpLe
	case ">":
		return OpGt
	case ">=":
		return OpGe
	case "=":
		return OpEq
	case "<>":
		return OpNe
	case "&&":
		return OpAnd
	case "||":
		return OpOr
	}
	return OpAdd
}

func compileIdent(ctx *context, e *emitter, name string) {
	ident := model.Canonical(name)
	if ident == "time" {
		e.emit(Instr{Op: OpTime})
		return
	}
	if ident == "dt" {
		e.emit(Instr{Op: OpDt})
		return
	}
	insts := ctx.instOf[ident]
	switch len(insts) {
	case 0:
		e.emit(Instr{Op: OpConst, Imm: 0})
	case 1:
		e.emit(Instr{Op: OpLoadOffset, A: ctx.c.Offsets[insts[0].Key()]})
	default:
		// Same-shape bare reference: use the current instance's own tuple.
		key := ident + "[" + strings.Join(ctx.inst.Tuple, ",") + "]"
		if col, ok := ctx.c.Offsets[key]; ok {
			e.emit(Instr{Op: OpLoadOffset, A: col})
			return
		}
		ctx.c.errs = append(ctx.c.errs, serr.Detail{
			Code: serr.ArrayReferenceNeedsExplicitSubscripts, Kind: serr.KindVariable, VarName: ctx.inst.Ident,
			Message: ctx.inst.Ident + " references " + ident + " without the subscripts needed to pick one element",
		})
		e.emit(Instr{Op: OpLoadOffset, A: ctx.c.Offsets[insts[0].Key()]})
	}
}

func compileIndex(ctx *context, e *emitter, idx *ast.Index) {
	ident := model.Canonical(idx.Name)
	insts := ctx.instOf[ident]
	if len(insts) == 0 {
		e.emit(Instr{Op: OpConst, Imm: 0})
		return
	}
	dims := ctx.dims[ident]

	// Fast path: every subscript is a literal element name (SubExpr whose
	// expr is a bare Ident), so the target instance is known at compile
	// time.
	tuple := make([]string, 0, len(idx.Subs))
	allLiteral := true
	dynamicAxis := -1
	for i, s := range idx.Subs {
		switch s.Kind {
		case ast.SubExpr:
			if id, ok := s.Expr.(*ast.Ident); ok {
				canon := model.Canonical(id.Name)
				// A subscript naming one of the compiling instance's own
				// dimensions (e.g. "pop[regions]" inside an apply-to-all
				// equation over regions) means "this axis", not a literal
				// element named "regions" — substitute the current
				// instance's own tuple element for that axis.
				if axis := indexOfDim(ctx.inst.Dims, canon); axis >= 0 && axis < len(ctx.inst.Tuple) {
					tuple = append(tuple, ctx.inst.Tuple[axis])
					continue
				}
				tuple = append(tuple, canon)
				continue
			}
			allLiteral = false
			dynamicAxis = i
		case ast.SubPosition:
			if i < len(dims) {
				if d, ok := ctx.projDim(dims[i]); ok && s.Position >= 1 && s.Position <= d.Len() {
					tuple = append(tuple, d.ElementAt(s.Position-1))
					continue
				}
			}
			allLiteral = false
		default:
			allLiteral = false
		}
	}

	if allLiteral && len(tuple) == len(idx.Subs) {
		key := ident + "[" + strings.Join(tuple, ",") + "]"
		if col, ok := ctx.c.Offsets[key]; ok {
			e.emit(Instr{Op: OpLoadOffset, A: col})
			return
		}
	}

	if dynamicAxis >= 0 && dynamicAxis < len(dims) {
		d, ok := ctx.projDim(dims[dynamicAxis])
		if ok {
			offsets := make([]int, 0, d.Len())
			for i := 0; i < d.Len(); i++ {
				t := append([]string(nil), tuple...)
				// splice the dynamic axis's element into position.
				full := make([]string, len(dims))
				lit := 0
				for j := range dims {
					if j == dynamicAxis {
						full[j] = d.ElementAt(i)
					} else {
						full[j] = t[lit]
						lit++
					}
				}
				key := ident + "[" + strings.Join(full, ",") + "]"
				offsets = append(offsets, ctx.c.Offsets[key])
			}
			compileExpr(ctx, e, idx.Subs[dynamicAxis].Expr)
			e.emit(Instr{Op: OpGather, Offsets: offsets})
			return
		}
	}

	// Wildcard/range reference outside a fold context: compileFold (called
	// from compileCall before compileIndex is ever reached) handles the
	// common SUM(x[*]) case; anything else needing a whole-array value is
	// valid datamodel-side but has no lowering in this compiler.
	ctx.c.errs = append(ctx.c.errs, serr.Detail{
		Code: serr.ArraysNotImplemented, Kind: serr.KindVariable, VarName: ctx.inst.Ident,
		Message: ctx.inst.Ident + " references " + ident + " with a subscript form this compiler cannot lower outside of a reduction",
	})
	e.emit(Instr{Op: OpLoadOffset, A: ctx.c.Offsets[insts[0].Key()]})
}

// indexOfDim returns the position of name within dims (by canonical
// equality), or -1 if absent.
func indexOfDim(dims []string, name string) int {
	for i, d := range dims {
		if model.Canonical(d) == name {
			return i
		}
	}
	return -1
}

func (ctx *context) projDim(name string) (*model.Dimension, bool) {
	return ctx.c.dims(name)
}

func compileCall(ctx *context, e *emitter, call *ast.Call) {
	fn := model.Canonical(call.Func)

	if foldable[fn] && len(call.Args) == 1 {
		if idx, ok := call.Args[0].(*ast.Index); ok && hasWildcard(idx) {
			compileFold(ctx, e, fn, idx)
			return
		}
	}

	switch fn {
	case "lookup":
		if len(call.Args) == 2 {
			if id, ok := call.Args[0].(*ast.Ident); ok {
				gfIdent := model.Canonical(id.Name)
				idx := ctx.c.lookupID(gfIdent, ctx.lookupGF(gfIdent))
				compileExpr(ctx, e, call.Args[1])
				e.emit(Instr{Op: OpLookup, A: idx})
				return
			}
		}
	}

	if st, ok := statefulIDs[fn]; ok {
		compileStateful(ctx, e, fn, st.Kind, st.Width, call.Args)
		return
	}

	if id, ok := builtinIDs[fn]; ok {
		for _, a := range call.Args {
			compileExpr(ctx, e, a)
		}
		e.emit(Instr{Op: OpCallBuiltin, Builtin: id, A: len(call.Args)})
		return
	}

	ctx.c.errs = append(ctx.c.errs, serr.Detail{
		Code: serr.UnknownBuiltin, Kind: serr.KindVariable, VarName: ctx.inst.Ident,
		Message: ctx.inst.Ident + " calls unknown function " + call.Func,
	})
	// Emit a placeholder so compilation of this instance can finish; the
	// error appended above means the Program built from it is discarded.
	e.emit(Instr{Op: OpConst, Imm: 0})
}

func (ctx *context) lookupGF(ident string) *model.GraphicalFunction {
	insts := ctx.instOf[ident]
	if len(insts) == 0 {
		return nil
	}
	return insts[0].GF
}

func (c *Compiler) lookupID(ident string, gf *model.GraphicalFunction) int {
	if idx, ok := c.lookupIdx[ident]; ok {
		return idx
	}
	idx := len(c.Lookups)
	c.lookupIdx[ident] = idx
	if gf == nil {
		c.Lookups = append(c.Lookups, &LookupFn{Fn: func(x float64) float64 { return x }})
	} else {
		c.Lookups = append(c.Lookups, &LookupFn{Fn: gf.Lookup})
	}
	return idx
}

func hasWildcard(idx *ast.Index) bool {
	for _, s := range idx.Subs {
		if s.Kind == ast.SubWildcard || s.Kind == ast.SubWildcardDim || s.Kind == ast.SubRange {
			return true
		}
	}
	return false
}

func compileFold(ctx *context, e *emitter, fn string, idx *ast.Index) {
	ident := model.Canonical(idx.Name)
	insts := ctx.instOf[ident]
	dims := ctx.dims[ident]
	offsets := make([]int, 0, len(insts))
	for _, in := range insts {
		keep := true
		for i, s := range idx.Subs {
			if s.Kind != ast.SubRange || i >= len(dims) || i >= len(in.Tuple) {
				continue
			}
			if d, ok := ctx.projDim(dims[i]); ok {
				pos, lo, hi := d.IndexOf(in.Tuple[i]), d.IndexOf(s.From), d.IndexOf(s.To)
				if lo >= 0 && hi >= 0 && (pos < lo || pos > hi) {
					keep = false
				}
			}
		}
		if !keep {
			continue
		}
		offsets = append(offsets, ctx.c.Offsets[in.Key()])
	}
	e.emit(Instr{Op: OpFold, Reduce: reduceIDs[fn], Offsets: offsets})
}

// compileStateful allocates a state slot for one call site and emits the
// operand values followed by OpStateful, which both produces this call's
// output and (for ODE-integrated kinds) advances the call's internal state;
// internal/vm applies a first-order Euler update to that state once per
// step, whatever the model's integration method.
func compileStateful(ctx *context, e *emitter, fn string, kind StatefulKind, width int, args []ast.Expr) {
	if width == 0 { // delayn: explicit order argument
		width = 3
		if len(args) >= 3 {
			if num, ok := args[2].(*ast.Number); ok {
				width = int(num.Value)
			}
		}
		if width < 1 {
			width = 1
		}
	}
	slotWidth := width
	if kind == StDelayFixed {
		delay := ctx.c.dt * 4
		if len(args) >= 2 {
			if num, ok := args[1].(*ast.Number); ok {
				delay = num.Value
			}
		}
		steps := delay / ctx.c.dt
		n := int(steps + 0.5)
		if n < 1 {
			n = 1
		}
		if math.Abs(steps-float64(n)) > 1e-9 {
			ctx.c.errs = append(ctx.c.errs, serr.Detail{
				Code: serr.BadBuiltinArgs, Kind: serr.KindVariable, VarName: ctx.inst.Ident,
				Message: "delay_fixed delay " + strconv.FormatFloat(delay, 'g', -1, 64) + " is not an integer multiple of dt",
			})
		}
		slotWidth = n + 1
	}

	offset := ctx.c.stateLen
	ctx.c.stateLen += slotWidth
	ctx.c.States = append(ctx.c.States, StateSlot{Kind: kind, Offset: offset, Width: slotWidth, Owner: fn + "@" + ctx.inst.Key()})

	for _, a := range args {
		compileExpr(ctx, e, a)
	}
	e.emit(Instr{Op: OpStateful, A: offset, B: len(args), Stateful: kind})
}

// dims exposes dimension lookup to compileIndex without importing
// internal/model's Project type into the context struct directly.
func (c *Compiler) dims(name string) (*model.Dimension, bool) {
	if c.dimLookup == nil {
		return nil, false
	}
	return c.dimLookup(name)
}
