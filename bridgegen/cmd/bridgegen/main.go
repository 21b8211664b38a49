// bridgegen generates tagged Go model structs from a TypeQL schema file.
//
// Usage:
//
//	bridgegen -schema schema.tql [-out models_gen.go] [-pkg models]
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/typebridge/typebridge/bridgegen"
)

const version = "0.1.0"

func main() {
	schemaFile := flag.String("schema", "", "Path to TypeQL schema file (required)")
	outFile := flag.String("out", "", "Output Go file (default: stdout)")
	pkg := flag.String("pkg", "models", "Package name for generated code")
	acronyms := flag.Bool("acronyms", true, "Render well-known acronyms in full caps (ID, URL, ...)")
	skipAbstract := flag.Bool("skip-abstract", true, "Skip abstract types in output")
	inherit := flag.Bool("inherit", true, "Accumulate inherited owns/relates from parent types")
	enums := flag.Bool("enums", true, "Generate string constants from @values constraints")
	registration := flag.Bool("register", true, "Generate a RegisterModels function")
	showVersion := flag.Bool("version", false, "Print version and exit")

	flag.Parse()

	if *showVersion {
		fmt.Printf("bridgegen %s\n", version)
		return
	}
	if *schemaFile == "" {
		fmt.Fprintln(os.Stderr, "error: -schema flag is required")
		flag.Usage()
		os.Exit(1)
	}

	schema, err := bridgegen.ParseFile(*schemaFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	if *inherit {
		schema.AccumulateInheritance()
	}

	w := os.Stdout
	if *outFile != "" {
		w, err = os.Create(*outFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error creating output: %v\n", err)
			os.Exit(1)
		}
		defer w.Close()
	}

	cfg := bridgegen.DefaultConfig()
	cfg.PackageName = *pkg
	cfg.UseAcronyms = *acronyms
	cfg.SkipAbstract = *skipAbstract
	cfg.Enums = *enums
	cfg.Registration = *registration

	if err := bridgegen.Render(w, schema, cfg); err != nil {
		fmt.Fprintf(os.Stderr, "error rendering: %v\n", err)
		os.Exit(1)
	}
}
