// Package optional implements the per-agent optional tool sets: code
// execution and web search/fetch, enumerated on the agent row alongside the
// always-on base set (§4.4).
package optional

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"time"
)

// ExecutePythonTool runs a short Python snippet in a subprocess with a
// bounded timeout. There is no sandboxing SDK in this module's dependency
// surface, so isolation relies on the timeout plus whatever containment the
// deployment environment already applies to the worker process itself.
type ExecutePythonTool struct {
	// Timeout bounds the subprocess; defaults to 10s.
	Timeout time.Duration
	// Interpreter is the python binary to invoke; defaults to "python3".
	Interpreter string
}

func (t *ExecutePythonTool) Name() string { return "execute_python" }

func (t *ExecutePythonTool) JSONSchema() map[string]any {
	return map[string]any{
		"description": "Execute a short Python snippet and return its stdout/stderr.",
		"parameters": map[string]any{
			"type":       "object",
			"properties": map[string]any{"code": map[string]any{"type": "string"}},
			"required":   []string{"code"},
		},
	}
}

func (t *ExecutePythonTool) Call(ctx context.Context, raw json.RawMessage) (any, error) {
	var args struct {
		Code string `json:"code"`
	}
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, fmt.Errorf("invalid arguments: %w", err)
	}

	timeout := t.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	interpreter := t.Interpreter
	if interpreter == "" {
		interpreter = "python3"
	}

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, interpreter, "-c", args.Code)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	result := map[string]any{
		"ok":     err == nil,
		"stdout": stdout.String(),
		"stderr": stderr.String(),
	}
	if err != nil {
		result["error"] = err.Error()
	}
	return result, nil
}
