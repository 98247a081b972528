// In file: internal/orchestrator/aggregator.go
package orchestrator

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/dileep-u-k/compliance-gateway/internal/tools"
)

// Report is the structured payload a run hands back to its caller.
type Report map[string]any

// Source records where a Report came from.
type Source string

const (
	SourceTerminalTool Source = "terminal_tool"
	SourceFinalText    Source = "final_text"
	SourceWrappedText  Source = "wrapped_text"
)

// DefaultFallbackKey is the key raw free text is wrapped under.
const DefaultFallbackKey = "summary"

// Aggregator decides the final report of one run. Terminal-tool output
// always beats free text; among terminal outputs the last write wins.
type Aggregator struct {
	fallbackKey string
	terminal    Report
	terminalBy  string
}

// NewAggregator returns an empty aggregator. An empty fallbackKey selects
// DefaultFallbackKey.
func NewAggregator(fallbackKey string) *Aggregator {
	if fallbackKey == "" {
		fallbackKey = DefaultFallbackKey
	}
	return &Aggregator{fallbackKey: fallbackKey}
}

// ObserveTerminal records the output of a terminal tool call. Error results
// and outputs that are not JSON objects are ignored. It reports whether the
// output was taken.
func (a *Aggregator) ObserveTerminal(res tools.Result) bool {
	if res.IsError {
		return false
	}
	var report Report
	if err := json.Unmarshal(res.Output, &report); err != nil || report == nil {
		return false
	}
	a.terminal = report
	a.terminalBy = res.Name
	return true
}

// Partial returns the current terminal report, or nil.
func (a *Aggregator) Partial() Report {
	return a.terminal
}

// TerminalTool names the tool that produced the current terminal report.
func (a *Aggregator) TerminalTool() string {
	return a.terminalBy
}

// Final resolves the report once the model stops requesting tools.
func (a *Aggregator) Final(text string) (Report, Source) {
	if a.terminal != nil {
		return a.terminal, SourceTerminalTool
	}
	if report, ok := ParseReport(text); ok {
		return report, SourceFinalText
	}
	return Report{a.fallbackKey: text}, SourceWrappedText
}

// ParseReport parses free text as a JSON object, unwrapping a Markdown code
// fence first. Arrays, scalars and invalid JSON are rejected.
func ParseReport(text string) (Report, bool) {
	body := bytes.TrimSpace([]byte(stripFence(text)))
	if len(body) == 0 || body[0] != '{' {
		return nil, false
	}
	var report Report
	if err := json.Unmarshal(body, &report); err != nil {
		return nil, false
	}
	return report, true
}

// stripFence removes a surrounding ``` or ```json fence.
func stripFence(text string) string {
	s := strings.TrimSpace(text)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		// Drop the info string ("json", "JSON", ...).
		if !strings.ContainsAny(s[:nl], "{[") {
			s = s[nl+1:]
		}
	}
	s = strings.TrimSpace(s)
	return strings.TrimSpace(strings.TrimSuffix(s, "```"))
}
