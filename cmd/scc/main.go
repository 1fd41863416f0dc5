// Command scc is the compiler/interpreter driver: `scc interpret <path>`
// runs a program directly, `scc compile <path> [out.asm]` lowers it to
// assembly text for an external assembler.
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"regvm/pkg/codegen"
	"regvm/pkg/interp"
	"regvm/pkg/pipeline"
	"regvm/pkg/utils"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "interpret":
		err = runInterpret(os.Args[2:])
	case "compile":
		err = runCompile(os.Args[2:])
	case "-h", "--help", "help":
		usage()
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown subcommand %q\n", os.Args[1])
		usage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "scc: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage:")
	fmt.Fprintln(os.Stderr, "  scc interpret <path>")
	fmt.Fprintln(os.Stderr, "  scc compile <path> [out.asm] [-run]")
}

func runInterpret(args []string) error {
	fs := flag.NewFlagSet("interpret", flag.ExitOnError)
	fs.Parse(args)
	if fs.NArg() != 1 {
		return fmt.Errorf("interpret requires exactly one source path")
	}
	path, err := utils.ResolveSourcePath(fs.Arg(0))
	if err != nil {
		return fmt.Errorf("cannot resolve %q: %w", fs.Arg(0), err)
	}

	program, err := pipeline.BuildAST(path)
	if err != nil {
		return err
	}

	machine, diag := interp.New(program, func(b byte) { os.Stdout.Write([]byte{b}) })
	if diag != nil {
		return diag
	}
	result, diag := machine.Run()
	if diag != nil {
		return diag
	}
	fmt.Printf("main() returned %d\n", result)
	return nil
}

func runCompile(args []string) error {
	fs := flag.NewFlagSet("compile", flag.ExitOnError)
	run := fs.Bool("run", false, "note that -run only prints where the emitted assembly would be handed to an external assembler and simulator")
	// The flag package stops at the first positional argument, so a -run
	// written after the paths (as the usage line shows) is moved in front.
	reordered := make([]string, 0, len(args))
	for _, a := range args {
		if a == "-run" || a == "--run" {
			reordered = append([]string{a}, reordered...)
		} else {
			reordered = append(reordered, a)
		}
	}
	fs.Parse(reordered)
	if fs.NArg() < 1 {
		return fmt.Errorf("compile requires a source path")
	}
	path, err := utils.ResolveSourcePath(fs.Arg(0))
	if err != nil {
		return fmt.Errorf("cannot resolve %q: %w", fs.Arg(0), err)
	}

	program, err := pipeline.BuildAST(path)
	if err != nil {
		return err
	}

	asm, err := codegen.Generate(program)
	if err != nil {
		return err
	}

	out := ""
	if fs.NArg() >= 2 {
		out, err = utils.ResolveSourcePath(fs.Arg(1))
		if err != nil {
			return fmt.Errorf("cannot resolve %q: %w", fs.Arg(1), err)
		}
	} else {
		out = defaultOutputPath(path)
	}
	if err := os.WriteFile(out, []byte(asm), 0o644); err != nil {
		return fmt.Errorf("failed to write output file %q: %w", out, err)
	}
	fmt.Printf("compiled %s -> %s\n", path, out)

	if *run {
		fmt.Println("note: assembling and simulating the generated code is outside scc's scope; hand the .asm file to the external assembler and emulator")
	}
	return nil
}

func defaultOutputPath(inPath string) string {
	ext := filepath.Ext(inPath)
	if ext == "" {
		return inPath + ".asm"
	}
	return strings.TrimSuffix(inPath, ext) + ".asm"
}
