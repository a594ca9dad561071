package generation

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/dancout/openai-tool-flow-sub001/internal/forwarding"
)

// systemPrompt is prepended to every request.
const systemPrompt = `You are one step in a multi-step tool pipeline.

Produce the output for the tool "%s" by calling it with arguments that satisfy its schema.
%s
Respond ONLY through the tool call. If you cannot call the tool, respond with a single JSON object and no additional text.`

// functionNamePattern lists characters that are not allowed in function names.
var functionNamePattern = regexp.MustCompile(`[^a-zA-Z0-9_-]`)

// functionName maps a tool id onto the function name alphabet.
func functionName(toolID string) string {
	name := functionNamePattern.ReplaceAllString(toolID, "_")
	if len(name) > 64 {
		name = name[:64]
	}
	return name
}

// buildSystemText renders the system message, including forwarded context.
func buildSystemText(req Request) (string, error) {
	var b strings.Builder
	if req.Description != "" {
		b.WriteString("\nTool description: ")
		b.WriteString(req.Description)
		b.WriteString("\n")
	}

	if len(req.Context.Prior) > 0 {
		rendered, err := renderEntries(req.Context.Prior)
		if err != nil {
			return "", fmt.Errorf("rendering prior context: %w", err)
		}
		b.WriteString("\nResults from earlier steps and the issues found in them:\n")
		b.WriteString(rendered)
		b.WriteString("\n")
	}

	if len(req.Context.Retries) > 0 {
		rendered, err := renderEntries(req.Context.Retries)
		if err != nil {
			return "", fmt.Errorf("rendering retry context: %w", err)
		}
		fmt.Fprintf(&b, "\nThis is attempt %d. Your previous attempts and the issues found in them:\n", req.Round+1)
		b.WriteString(rendered)
		b.WriteString("\nFix these issues in this attempt.\n")
	}

	return fmt.Sprintf(systemPrompt, req.ToolID, b.String()), nil
}

// buildUserText renders the step input.
func buildUserText(req Request) (string, error) {
	input, err := json.MarshalIndent(req.Input, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encoding input: %w", err)
	}
	return "Input:\n" + string(input), nil
}

func renderEntries(entries []forwarding.Entry) (string, error) {
	maps := make([]map[string]any, len(entries))
	for i, e := range entries {
		maps[i] = e.ToMap()
	}
	data, err := json.MarshalIndent(maps, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// codeFencePattern strips a surrounding markdown code fence.
var codeFencePattern = regexp.MustCompile("(?s)^```(?:json)?\\s*(.*?)\\s*```$")

// parseObject decodes a JSON object from model text.
func parseObject(text string) (map[string]any, error) {
	trimmed := strings.TrimSpace(text)
	if m := codeFencePattern.FindStringSubmatch(trimmed); m != nil {
		trimmed = m[1]
	}
	if trimmed == "" {
		return nil, fmt.Errorf("%w: empty content", ErrMalformedOutput)
	}
	var out map[string]any
	if err := json.Unmarshal([]byte(trimmed), &out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedOutput, err)
	}
	if out == nil {
		return nil, fmt.Errorf("%w: null", ErrMalformedOutput)
	}
	return out, nil
}
