package runner

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/testherd/testherd/internal/core"
)

// maxReasonLines caps how much command output is carried per failed test, so
// a chatty suite cannot blow up result reports.
const maxReasonLines = 20

// testEvent mirrors the event stream emitted by `go test -json`.
type testEvent struct {
	Action  string `json:"Action"`
	Package string `json:"Package"`
	Test    string `json:"Test"`
	Output  string `json:"Output"`
}

type testRecord struct {
	kind   core.ResultKind
	done   bool
	output []string
}

// parseGoTestJSON turns a `go test -json` event stream into results, one per
// test. A package that fails without any failing test (a build error) yields
// a single error result carrying the package output.
func parseGoTestJSON(r io.Reader) ([]core.Result, error) {
	tests := make(map[string]*testRecord)
	pkgOutput := make(map[string][]string)
	pkgFailed := make(map[string]bool)
	var order []string

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || !strings.HasPrefix(line, "{") {
			// go test prints bare lines around the JSON stream when the
			// build fails; they belong to the package diagnosis.
			if line != "" {
				pkgOutput[""] = append(pkgOutput[""], line)
			}
			continue
		}

		var ev testEvent
		if err := json.Unmarshal([]byte(line), &ev); err != nil {
			return nil, fmt.Errorf("malformed test event: %w", err)
		}

		if ev.Test == "" {
			switch ev.Action {
			case "output":
				out := strings.TrimRight(ev.Output, "\n")
				if out != "" {
					pkgOutput[ev.Package] = append(pkgOutput[ev.Package], out)
				}
			case "fail":
				pkgFailed[ev.Package] = true
			}
			continue
		}

		// NUL cannot occur in an import path or a test name, so subtest
		// slashes in ev.Test survive the split.
		key := ev.Package + "\x00" + ev.Test
		rec, ok := tests[key]
		if !ok {
			rec = &testRecord{}
			tests[key] = rec
			order = append(order, key)
		}

		switch ev.Action {
		case "output":
			out := strings.TrimRight(ev.Output, "\n")
			if out != "" && len(rec.output) < maxReasonLines {
				rec.output = append(rec.output, out)
			}
		case "pass":
			rec.kind, rec.done = core.ResultPass, true
		case "fail":
			rec.kind, rec.done = core.ResultFail, true
		case "skip":
			rec.kind, rec.done = core.ResultPass, true
			rec.output = nil
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to read test output: %w", err)
	}

	var results []core.Result
	failedTestsByPkg := make(map[string]bool)
	for _, key := range order {
		rec := tests[key]
		pkg, name := splitTestKey(key)

		res := core.Result{TestName: name, Kind: rec.kind}
		if !rec.done {
			// The run ended without a verdict, usually a panic or timeout.
			res.Kind = core.ResultError
			res.Reasons = append([]string{"test never finished"}, rec.output...)
		} else if res.Kind == core.ResultFail {
			res.Reasons = rec.output
		}
		if res.Kind != core.ResultPass {
			failedTestsByPkg[pkg] = true
		}
		results = append(results, res)
	}

	// Surface build failures: failed packages with no failed tests.
	var brokenPkgs []string
	for pkg := range pkgFailed {
		if !failedTestsByPkg[pkg] {
			brokenPkgs = append(brokenPkgs, pkg)
		}
	}
	sort.Strings(brokenPkgs)
	for _, pkg := range brokenPkgs {
		reasons := pkgOutput[pkg]
		if extra := pkgOutput[""]; len(extra) > 0 {
			reasons = append(reasons, extra...)
		}
		if len(reasons) > maxReasonLines {
			reasons = reasons[len(reasons)-maxReasonLines:]
		}
		name := pkg
		if name == "" {
			name = "build"
		}
		results = append(results, core.Result{
			TestName: name,
			Kind:     core.ResultError,
			Reasons:  reasons,
		})
	}

	return results, nil
}

func splitTestKey(key string) (pkg, name string) {
	pkg, name, _ = strings.Cut(key, "\x00")
	return pkg, name
}

// parseExitCode judges a whole suite by its command exit status, for
// repositories whose test command does not speak go test -json.
func parseExitCode(output []string, runErr error) []core.Result {
	if len(output) > maxReasonLines {
		output = output[len(output)-maxReasonLines:]
	}
	if runErr == nil {
		return []core.Result{{TestName: "suite", Kind: core.ResultPass}}
	}
	return []core.Result{{
		TestName: "suite",
		Kind:     core.ResultFail,
		Reasons:  append(output, runErr.Error()),
	}}
}
