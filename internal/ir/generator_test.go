package ir_test

import (
	"reflect"
	"testing"

	"exprc/internal/check"
	"exprc/internal/ir"
	"exprc/internal/parser"
	"exprc/internal/token"
)

func compile(t *testing.T, src string) *ir.Program {
	t.Helper()
	toks, err := token.Tokenize(src)
	if err != nil {
		t.Fatalf("tokenize error: %v", err)
	}
	module, err := parser.Parse(toks)
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	if err := check.Check(module); err != nil {
		t.Fatalf("check error: %v", err)
	}
	program, err := ir.Generate(module)
	if err != nil {
		t.Fatalf("generate error: %v", err)
	}
	return program
}

func mainOf(program *ir.Program) *ir.Function {
	for _, fn := range program.Functions {
		if fn.Name == "main" {
			return fn
		}
	}
	return nil
}

func TestGenerateArithmeticAutoprintsLastIntResult(t *testing.T) {
	program := compile(t, "1 + 2 * 3;")
	main := mainOf(program)

	var calls []string
	for _, instr := range main.Instructions {
		if call, ok := instr.(*ir.Call); ok {
			calls = append(calls, string(call.Callee))
		}
	}
	if len(calls) != 3 {
		t.Fatalf("expected 3 calls (*, +, print_int), got %v", calls)
	}
	if calls[len(calls)-1] != "print_int" {
		t.Fatalf("expected final call to print_int, got %v", calls)
	}
}

func TestGenerateShortCircuitAndElidesRightOperand(t *testing.T) {
	program := compile(t, "true and { print_bool(false); false };")
	main := mainOf(program)

	// Build the set of labels reachable by unconditionally following Jump
	// instructions and the "false" edge of each CondJump (the and's
	// short-circuit path), starting from the first instruction. The
	// print_bool call inside the right operand must not be among them.
	labelIndex := map[ir.Label]int{}
	for i, instr := range main.Instructions {
		if l, ok := instr.(*ir.LabelInstr); ok {
			labelIndex[l.Name] = i
		}
	}

	visited := map[int]bool{}
	var walk func(i int)
	walk = func(i int) {
		for i < len(main.Instructions) {
			if visited[i] {
				return
			}
			visited[i] = true
			switch instr := main.Instructions[i].(type) {
			case *ir.Jump:
				i = labelIndex[instr.Target]
				continue
			case *ir.CondJump:
				// Follow only the short-circuit (false) edge here; the
				// true edge (evaluate right) is not followed.
				i = labelIndex[instr.ElseTarget]
				continue
			}
			i++
		}
	}
	walk(0)

	// The last instruction is main's auto-print of the Bool 'and' result,
	// which runs on every path and is not part of the right operand.
	autoPrint := len(main.Instructions) - 1
	for i, visitedAt := range visited {
		if !visitedAt || i == autoPrint {
			continue
		}
		if call, ok := main.Instructions[i].(*ir.Call); ok && call.Callee == "print_bool" {
			t.Fatalf("print_bool call at instruction %d is reachable on the short-circuit path", i)
		}
	}
}

func TestGenerateWhileLoopStructure(t *testing.T) {
	program := compile(t, "var x = 5; while x > 0 do { print_int(x); x = x - 1; };")
	main := mainOf(program)

	var labels, jumps, condJumps int
	for _, instr := range main.Instructions {
		switch instr.(type) {
		case *ir.LabelInstr:
			labels++
		case *ir.Jump:
			jumps++
		case *ir.CondJump:
			condJumps++
		}
	}
	if labels != 3 {
		t.Fatalf("expected 3 labels (cond/body/end), got %d", labels)
	}
	if condJumps != 1 {
		t.Fatalf("expected 1 CondJump, got %d", condJumps)
	}
	if jumps < 2 {
		t.Fatalf("expected at least 2 Jumps (initial + loop-back), got %d", jumps)
	}
}

func TestGenerateLabelsAreUniquePerFunction(t *testing.T) {
	program := compile(t, "while true do { 1; }; while true do { 2; };")
	main := mainOf(program)

	seen := map[ir.Label]bool{}
	for _, instr := range main.Instructions {
		if l, ok := instr.(*ir.LabelInstr); ok {
			if seen[l.Name] {
				t.Fatalf("label %q used more than once", l.Name)
			}
			seen[l.Name] = true
		}
	}
}

func functionOf(program *ir.Program, name string) *ir.Function {
	for _, fn := range program.Functions {
		if fn.Name == name {
			return fn
		}
	}
	return nil
}

func TestGenerateEarlyReturnJumpsPastFallthroughCode(t *testing.T) {
	src := "fun fact(n: Int): Int { if n <= 1 then return 1; return n * fact(n - 1); }\nprint_int(fact(5));"
	program := compile(t, src)
	fact := functionOf(program, "fact")
	if fact == nil {
		t.Fatal("expected a 'fact' function in the program")
	}

	var endLabel ir.Label
	if l, ok := fact.Instructions[len(fact.Instructions)-1].(*ir.LabelInstr); ok {
		endLabel = l.Name
	} else {
		t.Fatalf("expected the last instruction to be the function's end label, got %T", fact.Instructions[len(fact.Instructions)-1])
	}

	returnCount := 0
	for i, instr := range fact.Instructions {
		if _, ok := instr.(*ir.Copy); !ok {
			continue
		}
		// Every Copy into the return slot must be immediately followed by a
		// Jump to the end label, never a fallthrough into subsequent code.
		copyInstr := instr.(*ir.Copy)
		if copyInstr.Dest != fact.ReturnVar {
			continue
		}
		if i+1 >= len(fact.Instructions) {
			t.Fatalf("Copy into return slot at %d has no following instruction", i)
		}
		jump, ok := fact.Instructions[i+1].(*ir.Jump)
		if !ok {
			t.Fatalf("expected a Jump immediately after Copy into return slot at %d, got %T", i, fact.Instructions[i+1])
		}
		if jump.Target != endLabel {
			t.Fatalf("expected return's Jump to target the function's end label %q, got %q", endLabel, jump.Target)
		}
		returnCount++
	}
	if returnCount != 2 {
		t.Fatalf("expected 2 return-statement lowerings (the early return and the recursive one), got %d", returnCount)
	}
}

func TestGenerateExpressionBodyWithoutReturnCopiesResultIntoReturnSlot(t *testing.T) {
	program := compile(t, "fun double(x: Int): Int { x * 2 }\nprint_int(double(3));")
	double := functionOf(program, "double")
	if double == nil {
		t.Fatal("expected a 'double' function in the program")
	}

	found := false
	for _, instr := range double.Instructions {
		if c, ok := instr.(*ir.Copy); ok && c.Dest == double.ReturnVar {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a Copy of the body's result into the return slot %q, got none", double.ReturnVar)
	}
}

func TestGenerateIsIdempotent(t *testing.T) {
	src := "fun fact(n: Int): Int { if n <= 1 then return 1; return n * fact(n - 1); } print_int(fact(5));"
	toks, err := token.Tokenize(src)
	if err != nil {
		t.Fatalf("tokenize error: %v", err)
	}
	module, err := parser.Parse(toks)
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	if err := check.Check(module); err != nil {
		t.Fatalf("check error: %v", err)
	}

	first, err := ir.Generate(module)
	if err != nil {
		t.Fatalf("generate error: %v", err)
	}
	second, err := ir.Generate(module)
	if err != nil {
		t.Fatalf("generate error: %v", err)
	}

	if !reflect.DeepEqual(first, second) {
		t.Fatalf("two lowerings of the same typed AST produced different IR")
	}
}
