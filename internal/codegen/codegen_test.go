package codegen_test

import (
	"strconv"
	"strings"
	"testing"

	"exprc/internal/check"
	"exprc/internal/codegen"
	"exprc/internal/ir"
	"exprc/internal/parser"
	"exprc/internal/token"
)

func generate(t *testing.T, src string) string {
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
		t.Fatalf("ir generate error: %v", err)
	}
	asm, err := codegen.Generate(program)
	if err != nil {
		t.Fatalf("codegen error: %v", err)
	}
	return asm
}

func TestGenerateEmitsExternsAndMainLabel(t *testing.T) {
	asm := generate(t, "print_int(1);")
	for _, want := range []string{".extern print_int", ".extern print_bool", ".extern read_int", ".global main", "main:"} {
		if !strings.Contains(asm, want) {
			t.Fatalf("expected assembly to contain %q, got:\n%s", want, asm)
		}
	}
}

func TestGenerateArithmeticUsesIntrinsicSequence(t *testing.T) {
	asm := generate(t, "1 + 2;")
	if !strings.Contains(asm, "addq") {
		t.Fatalf("expected 'addq' in assembly, got:\n%s", asm)
	}
}

func TestGenerateDivisionUsesCqtoAndIdivq(t *testing.T) {
	asm := generate(t, "var a = 10; var b = 3; print_int(a / b);")
	if !strings.Contains(asm, "cqto") || !strings.Contains(asm, "idivq") {
		t.Fatalf("expected cqto/idivq in assembly, got:\n%s", asm)
	}
}

func TestGenerateFunctionCallUsesCallq(t *testing.T) {
	src := "fun fact(n: Int): Int { if n <= 1 then return 1; return n * fact(n - 1); } print_int(fact(5));"
	asm := generate(t, src)
	if !strings.Contains(asm, "callq fact") {
		t.Fatalf("expected 'callq fact' in assembly, got:\n%s", asm)
	}
	if !strings.Contains(asm, ".global fact") {
		t.Fatalf("expected fact to be declared global, got:\n%s", asm)
	}
}

func TestGenerateStackFrameIsAlignedTo16(t *testing.T) {
	asm := generate(t, "var a = 1; var b = 2; var c = 3; print_int(a + b + c);")
	var subLine string
	for _, line := range strings.Split(asm, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "subq $") {
			subLine = line
			break
		}
	}
	if subLine == "" {
		t.Fatalf("expected a 'subq $N, %%rsp' prologue line, got:\n%s", asm)
	}
	trimmed := strings.TrimPrefix(strings.TrimSpace(subLine), "subq $")
	numPart := trimmed[:strings.Index(trimmed, ",")]
	n, err := strconv.Atoi(numPart)
	if err != nil {
		t.Fatalf("could not parse subq line %q: %v", subLine, err)
	}
	if n%16 != 0 {
		t.Fatalf("expected stack frame size to be 16-byte aligned, got %d", n)
	}
}

func TestGenerateIsDeterministicAcrossRuns(t *testing.T) {
	src := "fun fact(n: Int): Int { if n <= 1 then return 1; return n * fact(n - 1); } print_int(fact(5));"
	first := generate(t, src)
	second := generate(t, src)
	if first != second {
		t.Fatalf("expected identical assembly across runs")
	}
}
