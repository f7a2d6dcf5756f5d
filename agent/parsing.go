// Package agent understands the agent's output: the newline-delimited JSON
// event stream on stdout and the free-form diagnostics on stderr.
package agent

import (
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/zhubert/plural-agent/exec"
	"github.com/zhubert/plural-agent/logger"
)

// activityLimit caps a single activity feed line.
const activityLimit = 200

// summarySkipKeys are metadata members never used as a human-readable summary.
var summarySkipKeys = []string{"type", "id", "status", "role", "thread_id", "item_type", "exit_code"}

// problemMarkers flag plain-text lines worth surfacing in the activity feed.
var problemMarkers = []string{"error", "warn", "fail", "fatal", "panic", "denied", "refused", "timed out", "not found"}

// Parser classifies output lines. It is stateless apart from its predicate
// and safe for concurrent use.
type Parser struct {
	stale StalePredicate
	log   *slog.Logger
}

// NewParser returns a parser using pred for stale-session detection.
// A nil pred uses DefaultStaleSignature.
func NewParser(pred StalePredicate) *Parser {
	if pred == nil {
		pred = DefaultStaleSignature
	}
	return &Parser{stale: pred, log: logger.WithComponent("agent")}
}

// Stale returns the predicate in use.
func (p *Parser) Stale() StalePredicate {
	return p.stale
}

// Classify turns one output line into an Event. Blank lines yield nil.
// Lines that are not a single JSON object become EventDiagnostic.
func (p *Parser) Classify(line string, src exec.StreamSource) *Event {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return nil
	}

	obj, ok := DecodeObject(trimmed)
	if !ok {
		return p.diagnostic(trimmed, src)
	}

	typ := obj.Path("type").Str()
	ev := &Event{Source: src, Type: typ}

	switch {
	case typ == "thread.started":
		id := strings.TrimSpace(obj.Path("thread_id").Str())
		if id == "" {
			p.log.Warn("thread.started without thread_id")
			ev.Kind = EventOther
			return ev
		}
		ev.Kind = EventThreadStarted
		ev.SessionID = id
		ev.Activity = "Session " + id
	case typ == "turn.started":
		ev.Kind = EventTurnStarted
		ev.Activity = "Turn started"
	case typ == "turn.completed":
		ev.Kind = EventTurnCompleted
		ev.Usage = parseUsage(obj.Path("usage"))
		ev.Activity = "Turn completed"
		if ev.Usage != nil {
			ev.Activity = fmt.Sprintf("Turn completed (%d in / %d out tokens)", ev.Usage.InputTokens, ev.Usage.OutputTokens)
		}
	case typ == "turn.failed":
		ev.Kind = EventTurnFailed
		ev.Text = firstNonEmpty(obj.Path("error", "message").Str(), obj.Path("error").Str(), obj.Path("message").Str())
		ev.Stale = ev.Text != "" && p.stale.IsStale(ev.Text)
		ev.Activity = truncateActivity("Turn failed: " + orUnknown(ev.Text))
	case strings.Contains(typ, "delta"):
		ev.Kind = EventOutputTextDelta
		ev.Text = deltaText(obj)
	case typ == "error":
		ev.Kind = EventError
		ev.Text = firstNonEmpty(obj.Path("message").Str(), obj.Path("error", "message").Str(), obj.Path("error").Str())
		ev.Stale = ev.Text != "" && p.stale.IsStale(ev.Text)
		ev.Activity = truncateActivity("Error: " + orUnknown(ev.Text))
	case strings.HasPrefix(typ, "item."):
		p.classifyItem(obj, ev)
	default:
		ev.Kind = EventOther
		ev.Activity = summarize(obj)
	}
	return ev
}

// classifyItem handles item.started / item.updated / item.completed.
func (p *Parser) classifyItem(obj Value, ev *Event) {
	item := obj.Path("item")
	itemType := firstNonEmpty(item.Path("type").Str(), item.Path("item_type").Str())
	role := item.Path("role").Str()

	switch {
	case role == "assistant" || (role == "" && itemType == "message") || itemType == "agent_message" || itemType == "assistant_message":
		ev.Kind = EventMessage
		ev.Role = "assistant"
		ev.Text = itemText(item)
		if ev.Text != "" {
			ev.Activity = truncateActivity(firstLine(ev.Text))
		}
	case itemType == "command_execution":
		ev.Kind = EventTool
		ev.ToolName = "shell"
		if ev.Type == "item.started" {
			ev.Activity = truncateActivity("Running: " + commandText(item.Path("command")))
		} else if code, ok := item.Path("exit_code").Int(); ok && code != 0 {
			ev.Activity = truncateActivity(fmt.Sprintf("Command exited %d: %s", code, commandText(item.Path("command"))))
		}
	case itemType == "file_change":
		var paths []string
		for _, ch := range item.Path("changes").List {
			if path := ch.Path("path").Str(); path != "" {
				paths = append(paths, path)
			}
		}
		ev.Kind = EventTool
		ev.ToolName = "apply_patch"
		if len(paths) > 0 {
			ev.Activity = truncateActivity("Edited: " + strings.Join(paths, ", "))
		}
	case item.Path("tool_name").Str() != "" || itemType == "mcp_tool_call":
		ev.Kind = EventTool
		ev.ToolName = firstNonEmpty(item.Path("tool_name").Str(), item.Path("tool").Str(), itemType)
		if ev.Type != "item.completed" {
			ev.Activity = truncateActivity("Tool: " + ev.ToolName)
		}
	case itemType == "reasoning":
		ev.Kind = EventOther
		if text := itemText(item); text != "" {
			ev.Activity = truncateActivity("Thinking: " + firstLine(text))
		}
	case itemType == "error":
		ev.Kind = EventError
		ev.Text = firstNonEmpty(item.Path("message").Str(), itemText(item))
		ev.Stale = ev.Text != "" && p.stale.IsStale(ev.Text)
		ev.Activity = truncateActivity("Error: " + orUnknown(ev.Text))
	default:
		ev.Kind = EventOther
		ev.Activity = summarize(obj)
	}
}

// diagnostic handles a line that is not a JSON object.
func (p *Parser) diagnostic(text string, src exec.StreamSource) *Event {
	ev := &Event{
		Kind:   EventDiagnostic,
		Source: src,
		Text:   text,
		Stale:  p.stale.IsStale(text),
	}
	if ev.Stale || looksLikeProblem(text) {
		ev.Activity = truncateActivity(text)
	}
	return ev
}

// summarize picks the first human-readable description of an event: a
// message, a command, a tool name, then any string content.
func summarize(obj Value) string {
	item := obj.Path("item")
	if msg := firstNonEmpty(obj.Path("message").Str(), item.Path("message").Str()); msg != "" {
		return truncateActivity(msg)
	}
	for _, cmd := range []Value{obj.Path("command"), item.Path("command")} {
		if text := commandText(cmd); text != "" {
			return truncateActivity("Running: " + text)
		}
	}
	if tool := item.Path("tool_name").Str(); tool != "" {
		return truncateActivity("Tool: " + tool)
	}
	for _, s := range obj.FlattenSkipping(summarySkipKeys...) {
		if t := strings.TrimSpace(s); t != "" {
			return truncateActivity(firstLine(t))
		}
	}
	return ""
}

// itemText returns the readable text of an item payload.
func itemText(item Value) string {
	if t := item.Path("text").Str(); strings.TrimSpace(t) != "" {
		return t
	}
	if content, ok := item.Get("content"); ok {
		return strings.Join(content.FlattenSkipping(summarySkipKeys...), "")
	}
	return strings.Join(item.FlattenSkipping(summarySkipKeys...), "")
}

// deltaText extracts the fragment of a *delta* event.
func deltaText(obj Value) string {
	for _, key := range []string{"delta", "text"} {
		if v, ok := obj.Get(key); ok {
			if v.Kind == Text {
				return v.Text
			}
			return strings.Join(v.FlattenSkipping(summarySkipKeys...), "")
		}
	}
	if item, ok := obj.Get("item"); ok {
		return itemText(item)
	}
	return ""
}

// commandText renders a command given either as a string or an argv list.
func commandText(v Value) string {
	switch v.Kind {
	case Text:
		return strings.TrimSpace(v.Text)
	case List:
		return strings.Join(v.Flatten(), " ")
	}
	return ""
}

func parseUsage(v Value) *Usage {
	if v.Kind != Object {
		return nil
	}
	u := &Usage{}
	u.InputTokens, _ = v.Path("input_tokens").Int()
	u.CachedInputTokens, _ = v.Path("cached_input_tokens").Int()
	u.OutputTokens, _ = v.Path("output_tokens").Int()
	return u
}

func looksLikeProblem(text string) bool {
	lower := strings.ToLower(text)
	for _, m := range problemMarkers {
		if strings.Contains(lower, m) {
			return true
		}
	}
	return false
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

func orUnknown(s string) string {
	if s == "" {
		return "(no details)"
	}
	return s
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return strings.TrimSpace(s[:i])
	}
	return s
}

// truncateActivity keeps feed lines short without splitting a rune.
func truncateActivity(s string) string {
	if len(s) <= activityLimit {
		return s
	}
	cut := activityLimit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
