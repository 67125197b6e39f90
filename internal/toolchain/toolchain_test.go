package toolchain_test

import (
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"exprc/internal/toolchain"
)

func TestAssembleProducesOutputBinary(t *testing.T) {
	if _, err := exec.LookPath("gcc"); err != nil {
		t.Skip("gcc not available in this environment")
	}

	out := filepath.Join(t.TempDir(), "out")
	asm := ".text\n.global main\nmain:\n\tmovq $0, %rax\n\tret\n"

	if err := toolchain.Assemble(asm, out); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := os.Stat(out); err != nil {
		t.Fatalf("expected output binary at %s: %v", out, err)
	}
}

func TestAssembleCleansUpTemporaryFile(t *testing.T) {
	if _, err := exec.LookPath("gcc"); err != nil {
		t.Skip("gcc not available in this environment")
	}

	before, _ := filepath.Glob(filepath.Join(os.TempDir(), "exprc-*.s"))
	out := filepath.Join(t.TempDir(), "out")
	_ = toolchain.Assemble(".text\n.global main\nmain:\n\tret\n", out)
	after, _ := filepath.Glob(filepath.Join(os.TempDir(), "exprc-*.s"))

	if len(after) > len(before) {
		t.Fatalf("expected temporary assembly file to be removed, found %v", after)
	}
}

func TestAssembleReportsGccFailure(t *testing.T) {
	if _, err := exec.LookPath("gcc"); err != nil {
		t.Skip("gcc not available in this environment")
	}

	out := filepath.Join(t.TempDir(), "out")
	if err := toolchain.Assemble("this is not valid assembly !!!", out); err == nil {
		t.Fatal("expected an error for invalid assembly")
	}
}
