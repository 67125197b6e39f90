package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/teris-io/cli"

	"exprc/internal/compiler"
	"exprc/internal/server"
	"exprc/internal/sourcefmt"
	"exprc/internal/toolchain"
)

var Description = strings.ReplaceAll(`
exprc compiles a small statically-typed, expression-oriented language to a
native x86-64 ELF executable. It exposes two subcommands: 'compile' runs the
tokenizer/parser/checker/IR/codegen pipeline on a single source file and
assembles+links the result; 'serve' exposes the same pipeline over a TCP
socket for remote clients.
`, "\n", " ")

var Compile = cli.NewCommand("compile", "Compiles a single source file to a native executable").
	WithArg(cli.NewArg("input", "The source file to be compiled")).
	WithOption(cli.NewOption("o", "Path of the compiled output executable").WithChar('o').WithType(cli.TypeString)).
	WithOption(cli.NewOption("emit-ir", "Print the lowered IR instead of assembling").WithType(cli.TypeBool)).
	WithOption(cli.NewOption("emit-asm", "Print the generated assembly instead of assembling").WithType(cli.TypeBool)).
	WithOption(cli.NewOption("canonicalize", "Print the canonicalized source instead of compiling").WithType(cli.TypeBool)).
	WithAction(CompileHandler)

var Serve = cli.NewCommand("serve", "Starts a TCP server exposing the compile pipeline over JSON").
	WithOption(cli.NewOption("host", "Address to bind to").WithType(cli.TypeString)).
	WithOption(cli.NewOption("port", "Port to bind to").WithType(cli.TypeString)).
	WithAction(ServeHandler)

var Exprc = cli.New(Description).
	WithCommand(Compile).
	WithCommand(Serve)

func CompileHandler(args []string, options map[string]string) int {
	if len(args) < 1 {
		fmt.Printf("ERROR: Not enough arguments provided, use --help\n")
		return -1
	}

	source, err := os.ReadFile(args[0])
	if err != nil {
		fmt.Printf("ERROR: Unable to open input file: %s\n", err)
		return -1
	}

	if options["canonicalize"] == "true" {
		canonical, err := sourcefmt.Canonicalize(string(source))
		if err != nil {
			fmt.Printf("ERROR: Unable to canonicalize source: %s\n", err)
			return -1
		}
		fmt.Println(canonical)
		return 0
	}

	result, err := compiler.New().Compile(string(source))
	if err != nil {
		fmt.Printf("ERROR: %s\n", err)
		return -1
	}

	if options["emit-ir"] == "true" {
		for _, fn := range result.Program.Functions {
			fmt.Printf("function %s:\n", fn.Name)
			for _, instr := range fn.Instructions {
				fmt.Printf("  %s\n", instr)
			}
		}
		return 0
	}

	if options["emit-asm"] == "true" {
		fmt.Print(result.Assembly)
		return 0
	}

	outPath := options["o"]
	if outPath == "" {
		outPath = "a.out"
	}
	if err := toolchain.Assemble(result.Assembly, outPath); err != nil {
		fmt.Printf("ERROR: Unable to assemble output: %s\n", err)
		return -1
	}

	return 0
}

func ServeHandler(args []string, options map[string]string) int {
	host := options["host"]
	if host == "" {
		host = "0.0.0.0"
	}
	port := options["port"]
	if port == "" {
		port = "4242"
	}

	srv := server.New(fmt.Sprintf("%s:%s", host, port))
	if err := srv.ListenAndServe(); err != nil {
		fmt.Printf("ERROR: Server stopped: %s\n", err)
		return -1
	}

	return 0
}

func main() { os.Exit(Exprc.Run(os.Args, os.Stdout)) }
