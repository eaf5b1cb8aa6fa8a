package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/jwebster45206/dialogue-engine/pkg/dialogue"
	"github.com/jwebster45206/dialogue-engine/pkg/integrity"
	"github.com/jwebster45206/dialogue-engine/pkg/textfilter"
)

const (
	exitOK         = 0
	exitRegression = 1
	exitNoBaseline = 2
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr, time.Now))
}

// entryList collects repeated --entry flags.
type entryList []string

func (e *entryList) String() string { return strings.Join(*e, ",") }

func (e *entryList) Set(v string) error {
	*e = append(*e, v)
	return nil
}

func run(args []string, stdout, stderr io.Writer, now func() time.Time) int {
	fs := flag.NewFlagSet("validate", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var (
		content       = fs.String("content", "data/content", "directory of dialogue graphs")
		baselinePath  = fs.String("baseline", "integrity-baseline.json", "baseline of known issues")
		outputPath    = fs.String("output", "", "write the full report as JSON to this path")
		writeBaseline = fs.Bool("write-baseline", false, "record current issues as the new baseline and exit")
		entries       entryList
	)
	fs.Var(&entries, "entry", "extra entry point node ID (repeatable)")
	if err := fs.Parse(args); err != nil {
		return exitRegression
	}

	fmt.Fprintf(stdout, "Validating %s...\n", *content)
	lib, err := dialogue.LoadLibrary(*content)
	if err != nil {
		fmt.Fprintf(stderr, "Failed to load content: %v\n", err)
		return exitRegression
	}

	report := integrity.AnalyzeLibrary(lib, integrity.Options{EntryPoints: entries})
	issues := report.Issues()
	fmt.Fprintf(stdout, "Analyzed %d graphs, %d nodes in %d iterations\n", len(report.Graphs), lib.NodeCount(), report.Iterations)
	if !report.Converged {
		fmt.Fprintln(stdout, "Warning: cross-graph roots did not converge; raise the iteration bound")
	}

	for _, w := range wordingWarnings(lib, textfilter.NewProfanityFilter()) {
		fmt.Fprintf(stdout, "Warning: %s\n", w)
	}

	if *outputPath != "" {
		if err := writeReport(*outputPath, report); err != nil {
			fmt.Fprintf(stderr, "%v\n", err)
			return exitRegression
		}
		fmt.Fprintf(stdout, "Report written to %s\n", *outputPath)
	}

	if *writeBaseline {
		if err := integrity.NewBaseline(report, now()).Save(*baselinePath); err != nil {
			fmt.Fprintf(stderr, "%v\n", err)
			return exitRegression
		}
		fmt.Fprintf(stdout, "Baseline written to %s with %d issues\n", *baselinePath, len(issues))
		return exitOK
	}

	baseline, err := integrity.LoadBaseline(*baselinePath)
	if errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(stderr, "No baseline at %s; run with --write-baseline to create one\n", *baselinePath)
		printIssues(stdout, "Current issues", issues)
		return exitNoBaseline
	}
	if err != nil {
		fmt.Fprintf(stderr, "%v\n", err)
		return exitRegression
	}

	diff := integrity.Compare(issues, baseline)
	printIssues(stdout, "Resolved since baseline", diff.Resolved)
	if diff.Regressed() {
		printIssues(stderr, "New issues", diff.Added)
		return exitRegression
	}
	fmt.Fprintf(stdout, "No new issues (%d known)\n", len(issues))
	return exitOK
}

// wordingWarnings flags authored text the profanity filter matches and
// suggests a cleaned rewrite. They never affect the exit code.
func wordingWarnings(lib *dialogue.Library, pf *textfilter.ProfanityFilter) []string {
	var out []string
	check := func(where, text string) {
		if pf.ContainsProfanity(text) {
			out = append(out, fmt.Sprintf("%s: %q reads as profanity, consider %q", where, text, pf.Clean(text)))
		}
	}
	for _, g := range lib.Graphs() {
		for _, n := range g.Nodes {
			for i, v := range n.Content {
				check(fmt.Sprintf("%s/%s content[%d]", g.ID, n.ID, i), v.Text)
			}
			for _, c := range n.Choices {
				check(fmt.Sprintf("%s/%s choice %s", g.ID, n.ID, c.ID), c.Text)
			}
		}
	}
	return out
}

func printIssues(w io.Writer, title string, issues []string) {
	if len(issues) == 0 {
		return
	}
	fmt.Fprintf(w, "%s (%d):\n", title, len(issues))
	for _, issue := range issues {
		fmt.Fprintf(w, "  %s\n", issue)
	}
}

func writeReport(path string, r *integrity.Report) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}
