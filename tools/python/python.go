// Package python implements the run_python tool (§4.6): a bounded
// python3 -c subprocess runner.
package python

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/lucentlabs/havenmem"
)

const (
	timeout        = 30 * time.Second
	maxOutputBytes = 1 << 20 // 1 MiB
)

// Tool runs Python snippets via "python3 -c" in the agent workspace.
type Tool struct {
	workspacePath string
}

// New creates a python Tool restricted to workspacePath.
func New(workspacePath string) *Tool {
	return &Tool{workspacePath: workspacePath}
}

func (t *Tool) Definitions() []havenmem.ToolDefinition {
	return []havenmem.ToolDefinition{{
		Name:        "run_python",
		Description: "Run a Python code snippet via python3 -c in the workspace directory. Returns combined stdout+stderr.",
		Parameters:  json.RawMessage(`{"type":"object","properties":{"code":{"type":"string","description":"Python source to execute"}},"required":["code"]}`),
	}}
}

func (t *Tool) Execute(ctx context.Context, _ string, args json.RawMessage) (havenmem.ToolResult, error) {
	var params struct {
		Code string `json:"code"`
	}
	if err := json.Unmarshal(args, &params); err != nil {
		return havenmem.ToolResult{Error: "invalid args: " + err.Error()}, nil
	}
	if strings.TrimSpace(params.Code) == "" {
		return havenmem.ToolResult{Error: "code is required"}, nil
	}

	cmdCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(cmdCtx, "python3", "-c", params.Code)
	cmd.Dir = t.workspacePath
	cmd.Env = restrictedEnv()

	var out limitedWriter
	out.limit = maxOutputBytes
	cmd.Stdout = &out
	cmd.Stderr = &out

	runErr := cmd.Run()
	output := out.String()
	if out.truncated {
		output += "\n... (truncated at 1 MiB)"
	}

	if cmdCtx.Err() == context.DeadlineExceeded {
		return havenmem.ToolResult{Content: output, Error: fmt.Sprintf("execution timed out after %s", timeout)}, nil
	}
	if runErr != nil {
		if output == "" {
			output = runErr.Error()
		}
		return havenmem.ToolResult{Content: output, Error: "exit: " + runErr.Error()}, nil
	}

	if output == "" {
		output = "(no output)"
	}
	return havenmem.ToolResult{Content: output}, nil
}

func restrictedEnv() []string {
	var env []string
	for _, key := range []string{"PATH", "HOME", "LANG"} {
		if v := os.Getenv(key); v != "" {
			env = append(env, key+"="+v)
		}
	}
	return env
}

// limitedWriter captures up to limit bytes and discards the rest, marking
// truncation rather than growing unbounded on chatty subprocess output.
type limitedWriter struct {
	buf       strings.Builder
	limit     int
	truncated bool
}

func (w *limitedWriter) Write(p []byte) (int, error) {
	if w.buf.Len() < w.limit {
		remaining := w.limit - w.buf.Len()
		if len(p) > remaining {
			p = p[:remaining]
			w.truncated = true
		}
		w.buf.Write(p)
	} else if len(p) > 0 {
		w.truncated = true
	}
	return len(p), nil
}

func (w *limitedWriter) String() string { return w.buf.String() }
