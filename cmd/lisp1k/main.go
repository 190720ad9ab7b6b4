// Command lisp1k is the interpreter's entry point: a thin hand-rolled
// os.Args loop in the style of std/compiler/main.go's flag handling (no
// flag-parsing library), wiring internal/interp into either a REPL over
// stdin, a one-shot `-c <expr>` evaluation, or a script-file run.
package main

import (
	"fmt"
	"os"

	"go.uber.org/zap"

	"lisp1k/internal/interp"
)

func main() {
	var (
		debug   bool
		gcstats bool
		expr    string
		hasExpr bool
		file    string
	)

	i := 1
	for i < len(os.Args) {
		switch os.Args[i] {
		case "-debug":
			debug = true
			i++
		case "-gcstats":
			gcstats = true
			i++
		case "-c":
			if i+1 >= len(os.Args) {
				fmt.Fprintln(os.Stderr, "lisp1k: -c requires an argument")
				os.Exit(1)
			}
			expr = os.Args[i+1]
			hasExpr = true
			i += 2
		default:
			if file != "" {
				fmt.Fprintf(os.Stderr, "lisp1k: unexpected argument %q\n", os.Args[i])
				os.Exit(1)
			}
			file = os.Args[i]
			i++
		}
	}

	log := newLogger(debug)
	defer log.Sync()

	it, err := interp.New(interp.Options{Log: log, GCStats: gcstats}, os.Stdout)
	if err != nil {
		log.Error("failed to initialize interpreter", zap.Error(err))
		os.Exit(1)
	}

	switch {
	case hasExpr:
		if err := it.RunExpr(expr); err != nil {
			fmt.Fprintf(os.Stderr, "lisp1k: %v\n", err)
			os.Exit(1)
		}
	case file != "":
		f, err := os.Open(file)
		if err != nil {
			fmt.Fprintf(os.Stderr, "lisp1k: %v\n", err)
			os.Exit(1)
		}
		defer f.Close()
		if err := it.RunLoop(f); err != nil {
			fmt.Fprintf(os.Stderr, "lisp1k: %v\n", err)
			os.Exit(1)
		}
	default:
		if err := it.RunLoop(os.Stdin); err != nil {
			fmt.Fprintf(os.Stderr, "lisp1k: %v\n", err)
			os.Exit(1)
		}
	}
}

// newLogger builds a production (JSON, info-level) logger by default,
// or a development (human-readable console, debug-level) logger under -debug,
// matching §4.K's zap configuration split.
func newLogger(debug bool) *zap.Logger {
	var log *zap.Logger
	var err error
	if debug {
		log, err = zap.NewDevelopment()
	} else {
		log, err = zap.NewProduction()
	}
	if err != nil {
		// zap's own constructors failing means stderr itself is unusable;
		// fall back to a no-op logger rather than crash before we can
		// report anything at all.
		return zap.NewNop()
	}
	return log
}
