// Package codegen assigns stack slots to IR temporaries and lowers a
// Program's per-function instruction lists to x86-64 System V assembly text,
// dispatching built-in operator calls to the intrinsics catalog.
package codegen

import (
	"fmt"
	"math"
	"strings"

	"exprc/internal/collections"
	"exprc/internal/diagnostics"
	"exprc/internal/ir"
	"exprc/internal/token"
)

const maxCallArgs = 6

var argRegisters = [maxCallArgs]string{"%rdi", "%rsi", "%rdx", "%rcx", "%r8", "%r9"}

// Generator emits one assembly text string for an entire ir.Program. It
// holds no state across functions beyond the shared output buffer; each
// function gets its own stack-slot assignment.
type Generator struct {
	out strings.Builder

	funcName string
	slots    collections.OrderedMap[ir.IRVar, int]
}

// NewGenerator returns a ready-to-use Generator.
func NewGenerator() *Generator {
	return &Generator{}
}

// Generate lowers program to a single GAS AT&T-syntax assembly text string
// targeting ELF x86-64 Linux.
func Generate(program *ir.Program) (string, error) {
	return NewGenerator().Generate(program)
}

func (g *Generator) Generate(program *ir.Program) (string, error) {
	g.emitPreamble()

	for _, fn := range program.Functions {
		if err := g.generateFunction(fn); err != nil {
			return "", fmt.Errorf("error generating code for function %q: %w", fn.Name, err)
		}
	}

	return g.out.String(), nil
}

func (g *Generator) line(format string, args ...any) {
	g.out.WriteString(fmt.Sprintf(format, args...))
	g.out.WriteByte('\n')
}

func (g *Generator) emitPreamble() {
	g.line(".extern print_int")
	g.line(".extern print_bool")
	g.line(".extern read_int")
	g.line(".text")
}

// generateFunction lowers one function following the seven steps of spec
// §4.5: collect referenced IRVars, assign stack slots, emit the prologue,
// copy parameter registers into their slots, lower every instruction, then
// emit the epilogue.
func (g *Generator) generateFunction(fn *ir.Function) error {
	g.funcName = fn.Name
	g.slots = collectSlots(fn)

	frameSize := alignTo16(8 * g.slots.Len())

	g.line(".global %s", fn.Name)
	g.line(".type %s, @function", fn.Name)
	g.line("%s:", fn.Name)
	g.line("pushq %%rbp")
	g.line("movq %%rsp, %%rbp")
	if frameSize > 0 {
		g.line("subq $%d, %%rsp", frameSize)
	}

	if len(fn.Params) > maxCallArgs {
		return diagnostics.NewLoweringError(token.Location{}, "function %q has %d parameters, more than the %d supported", fn.Name, len(fn.Params), maxCallArgs)
	}
	for i, p := range fn.Params {
		g.line("movq %s, %s", argRegisters[i], g.slotOf(p))
	}

	for _, instr := range fn.Instructions {
		if err := g.generateInstruction(instr); err != nil {
			return err
		}
	}

	if fn.Name == "main" {
		g.line("movq $0, %%rax")
	} else {
		g.line("movq %s, %%rax", g.slotOf(fn.ReturnVar))
	}
	g.line("movq %%rbp, %%rsp")
	g.line("popq %%rbp")
	g.line("ret")

	return nil
}

func (g *Generator) generateInstruction(instr ir.Instruction) error {
	switch n := instr.(type) {

	case *ir.LabelInstr:
		g.line("%s:", g.localLabel(n.Name))
		return nil

	case *ir.LoadIntConst:
		dest := g.slotOf(n.Dest)
		if n.Value >= math.MinInt32 && n.Value <= math.MaxInt32 {
			g.line("movq $%d, %s", n.Value, dest)
		} else {
			g.line("movabsq $%d, %%rax", n.Value)
			g.line("movq %%rax, %s", dest)
		}
		return nil

	case *ir.LoadBoolConst:
		v := 0
		if n.Value {
			v = 1
		}
		g.line("movq $%d, %s", v, g.slotOf(n.Dest))
		return nil

	case *ir.Copy:
		g.line("movq %s, %%rax", g.slotOf(n.Source))
		g.line("movq %%rax, %s", g.slotOf(n.Dest))
		return nil

	case *ir.Jump:
		g.line("jmp %s", g.localLabel(n.Target))
		return nil

	case *ir.CondJump:
		g.line("cmpq $0, %s", g.slotOf(n.Cond))
		g.line("jne %s", g.localLabel(n.ThenTarget))
		g.line("jmp %s", g.localLabel(n.ElseTarget))
		return nil

	case *ir.Call:
		return g.generateCall(n)

	default:
		return diagnostics.NewLoweringError(token.Location{}, "unhandled IR instruction %T", instr)
	}
}

func (g *Generator) generateCall(n *ir.Call) error {
	if emitter, ok := lookupIntrinsic(string(n.Callee)); ok {
		argSlots := make([]string, len(n.Args))
		for i, a := range n.Args {
			argSlots[i] = g.slotOf(a)
		}
		emitter(argSlots, "%rax", func(line string) { g.line("%s", line) })
		g.line("movq %%rax, %s", g.slotOf(n.Dest))
		return nil
	}

	if len(n.Args) > maxCallArgs {
		return diagnostics.NewLoweringError(token.Location{}, "call to %q has %d arguments, more than the %d supported", n.Callee, len(n.Args), maxCallArgs)
	}
	for i, a := range n.Args {
		g.line("movq %s, %s", g.slotOf(a), argRegisters[i])
	}
	g.line("callq %s", n.Callee)
	g.line("movq %%rax, %s", g.slotOf(n.Dest))
	return nil
}

func (g *Generator) localLabel(name ir.Label) string {
	return fmt.Sprintf(".%s_L%s", g.funcName, name)
}

func (g *Generator) slotOf(v ir.IRVar) string {
	slot, _ := g.slots.Get(v)
	return fmt.Sprintf("-%d(%%rbp)", 8*slot)
}

// collectSlots scans every instruction's referenced IRVars (dest, source,
// args, cond and callee; one slot is reserved even for built-in/function
// call targets, per the conservative "one slot per distinct IRVar" policy
// of spec §9) and assigns each a 1-based slot index in first-encounter
// order, using an OrderedMap so two lowerings of the same function produce
// identical slot assignments regardless of Go's randomized map iteration.
func collectSlots(fn *ir.Function) collections.OrderedMap[ir.IRVar, int] {
	slots := collections.NewOrderedMap[ir.IRVar, int]()

	reserve := func(v ir.IRVar) {
		if v == "" || slots.Has(v) {
			return
		}
		slots.Set(v, slots.Len()+1)
	}

	for _, p := range fn.Params {
		reserve(p)
	}
	if fn.ReturnVar != "" {
		reserve(fn.ReturnVar)
	}

	for _, instr := range fn.Instructions {
		switch n := instr.(type) {
		case *ir.LoadIntConst:
			reserve(n.Dest)
		case *ir.LoadBoolConst:
			reserve(n.Dest)
		case *ir.Copy:
			reserve(n.Source)
			reserve(n.Dest)
		case *ir.Call:
			reserve(n.Callee)
			for _, a := range n.Args {
				reserve(a)
			}
			reserve(n.Dest)
		case *ir.CondJump:
			reserve(n.Cond)
		}
	}

	return slots
}

func alignTo16(n int) int {
	if n%16 == 0 {
		return n
	}
	return n + (16 - n%16)
}
