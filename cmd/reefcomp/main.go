// Command reefcomp builds cloud-free marine composites and their derived
// products from a directory of satellite scenes.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/banshee-data/marine-composite/internal/version"
)

func main() {
	flag.Usage = printUsage
	flag.Parse()

	if flag.NArg() < 1 {
		printUsage()
		os.Exit(1)
	}

	command := flag.Arg(0)
	args := flag.Args()[1:]

	switch command {
	case "composite":
		handleComposite(args)
	case "migrate":
		handleMigrate(args)
	case "serve":
		handleServe(args)
	case "version":
		fmt.Println(version.String())
	case "help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", command)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`reefcomp - marine satellite compositing

Usage: reefcomp <command> [options]

Commands:
  composite  Composite scenes from a catalog and export styled products
  migrate    Manage the provenance database schema (up|down|status|force N)
  serve      Serve /metrics and provenance admin routes
  version    Show reefcomp version
  help       Show this help message

Run 'reefcomp <command> -h' for command flags.

Examples:
  # True colour and depth for every scene in ./scenes
  reefcomp composite --catalog ./scenes --styles TrueColour,Depth --out ./out

  # Single tile at export scales, with provenance and diagnostics
  reefcomp composite --catalog ./scenes --styles TrueColour,Depth10m \
    --scales 10,30 --single-tile --basename AU_AIMS_S2-marine \
    --db reefcomp.db --report ./out/report

Tracing is configured with REEFCOMP_TRACING_ENABLED, REEFCOMP_TRACING_EXPORTER
(stdout|otlp), REEFCOMP_OTLP_ENDPOINT and REEFCOMP_TRACING_SAMPLE_RATIO.`)
}
