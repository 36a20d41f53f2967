// phitool is the back-office admin tool: key generation, token reindexing,
// search debugging and encrypted exports, all driven by phi.yaml.
package main

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/mbridgescode/BridgesPhysiotherapyServices-sub002/access"
	"github.com/mbridgescode/BridgesPhysiotherapyServices-sub002/providers/s3archive"
)

const version = "0.3.0"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]
	switch command {
	case "keygen":
		keygenCommand(os.Args[2:])
	case "init":
		initCommand(os.Args[2:])
	case "reindex":
		reindexCommand(os.Args[2:])
	case "search":
		searchCommand(os.Args[2:])
	case "export":
		exportCommand(os.Args[2:])
	case "version":
		fmt.Printf("phitool %s\n", version)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, "Usage: %s <command> [options]\n", os.Args[0])
	fmt.Fprintf(os.Stderr, "\nCommands:\n")
	fmt.Fprintf(os.Stderr, "  keygen   Generate base64 key material\n")
	fmt.Fprintf(os.Stderr, "  init     Write a default phi.yaml\n")
	fmt.Fprintf(os.Stderr, "  reindex  Rebuild search tokens for every patient\n")
	fmt.Fprintf(os.Stderr, "  search   Look up patients by blind-index query\n")
	fmt.Fprintf(os.Stderr, "  export   Archive a patient's encrypted record to S3\n")
	fmt.Fprintf(os.Stderr, "  version  Show version information\n")
	fmt.Fprintf(os.Stderr, "\nRun '%s <command> -h' for help on a specific command.\n", os.Args[0])
}

func keygenCommand(args []string) {
	fs := flag.NewFlagSet("keygen", flag.ExitOnError)
	count := fs.Int("n", 2, "Number of keys to generate")
	size := fs.Int("bytes", 32, "Key length in bytes")
	fs.Parse(args)

	for i := 0; i < *count; i++ {
		key, err := randomKey(*size)
		if err != nil {
			fatalf("keygen failed: %v", err)
		}
		fmt.Println(base64.StdEncoding.EncodeToString(key))
	}
}

func initCommand(args []string) {
	fs := flag.NewFlagSet("init", flag.ExitOnError)
	configPath := fs.String("config", "phi.yaml", "Path to write the configuration file")
	force := fs.Bool("force", false, "Overwrite an existing file")
	fs.Parse(args)

	if err := writeDefaultConfig(*configPath, *force); err != nil {
		fatalf("init failed: %v", err)
	}
	fmt.Printf("Wrote %s\n", *configPath)
}

func reindexCommand(args []string) {
	fs := flag.NewFlagSet("reindex", flag.ExitOnError)
	configPath := fs.String("config", "phi.yaml", "Path to configuration file")
	fs.Parse(args)

	ctx := context.Background()
	stack, err := openStack(ctx, *configPath)
	if err != nil {
		fatalf("reindex failed: %v", err)
	}
	defer stack.Close()

	n, err := stack.Store.Reindex(ctx)
	if err != nil {
		fatalf("reindex failed: %v", err)
	}
	fmt.Printf("Reindexed %d patients\n", n)
}

func searchCommand(args []string) {
	fs := flag.NewFlagSet("search", flag.ExitOnError)
	configPath := fs.String("config", "phi.yaml", "Path to configuration file")
	showTokens := fs.Bool("tokens", false, "Print the query tokens instead of searching")
	fs.Parse(args)

	if fs.NArg() == 0 {
		fatalf("search requires a query argument")
	}
	query := fs.Arg(0)

	ctx := context.Background()
	stack, err := openStack(ctx, *configPath)
	if err != nil {
		fatalf("search failed: %v", err)
	}
	defer stack.Close()

	if *showTokens {
		for _, token := range stack.Builder.QueryTokens(query) {
			fmt.Println(token)
		}
		return
	}

	// Admin scope: the tool runs against the database directly, so row
	// filtering is left to the operator's own access controls.
	var adminScope *access.Scope
	matches, err := stack.Store.SearchByQuery(ctx, query, adminScope)
	if err != nil {
		fatalf("search failed: %v", err)
	}
	for _, p := range matches {
		fmt.Printf("%d\t%s\t%s\n", p.PatientID, p.ID, p.Status)
	}
	fmt.Fprintf(os.Stderr, "%d match(es)\n", len(matches))
}

func exportCommand(args []string) {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	configPath := fs.String("config", "phi.yaml", "Path to configuration file")
	patientID := fs.Int("patient", 0, "Patient id to export")
	toStdout := fs.Bool("stdout", false, "Write the export JSON to stdout instead of S3")
	fs.Parse(args)

	if *patientID == 0 {
		fatalf("export requires -patient")
	}

	ctx := context.Background()
	stack, err := openStack(ctx, *configPath)
	if err != nil {
		fatalf("export failed: %v", err)
	}
	defer stack.Close()

	patient, err := stack.Store.GetByPatientID(ctx, *patientID)
	if err != nil {
		fatalf("export failed: %v", err)
	}
	if patient == nil {
		fatalf("no patient with id %d", *patientID)
	}
	notes, err := stack.Store.NotesForPatient(ctx, *patientID)
	if err != nil {
		fatalf("export failed: %v", err)
	}

	if *toStdout {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(map[string]any{"patient": patient, "notes": notes}); err != nil {
			fatalf("export failed: %v", err)
		}
		return
	}

	archiver, err := s3archive.New(ctx, stack.Config.Archive, stack.Logger)
	if err != nil {
		fatalf("export failed: %v", err)
	}
	key, err := archiver.ArchivePatient(ctx, patient, notes)
	if err != nil {
		fatalf("export failed: %v", err)
	}
	fmt.Printf("Archived patient %d to s3://%s/%s\n", *patientID, stack.Config.Archive.Bucket, key)
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
