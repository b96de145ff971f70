// Package shell implements the run_command tool (§4.5): a whitelisted,
// directly-executed (no shell interpreter) command runner.
package shell

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/google/shlex"

	"github.com/lucentlabs/havenmem"
)

const (
	defaultTimeout = 30 * time.Second
	maxOutputBytes = 1 << 20 // 1 MiB
)

var executableWhitelist = map[string]bool{
	"ls": true, "cat": true, "head": true, "tail": true, "wc": true,
	"grep": true, "find": true, "pwd": true, "whoami": true, "date": true,
	"python3": true, "pytest": true, "git": true,
}

var gitSubcommandWhitelist = map[string]bool{
	"log": true, "status": true, "diff": true, "show": true, "ls-files": true,
}

var shellMetacharacters = []string{"&&", "||", "$(", "${", "&", "|", ";", ">", "<", "`"}

// Tool runs whitelisted commands directly (no shell interpreter) within a
// workspace directory.
type Tool struct {
	workspacePath string
}

// New creates a shell Tool restricted to workspacePath.
func New(workspacePath string) *Tool {
	return &Tool{workspacePath: workspacePath}
}

func (t *Tool) Definitions() []havenmem.ToolDefinition {
	return []havenmem.ToolDefinition{{
		Name:        "run_command",
		Description: "Run a whitelisted read-only command (ls, cat, head, tail, wc, grep, find, pwd, whoami, date, python3, pytest, or a read-only git subcommand) in the workspace. No shell operators allowed.",
		Parameters:  json.RawMessage(`{"type":"object","properties":{"command":{"type":"string","description":"Command to execute"}},"required":["command"]}`),
	}}
}

func (t *Tool) Execute(ctx context.Context, _ string, args json.RawMessage) (havenmem.ToolResult, error) {
	var params struct {
		Command string `json:"command"`
	}
	if err := json.Unmarshal(args, &params); err != nil {
		return havenmem.ToolResult{Error: "invalid args: " + err.Error()}, nil
	}
	if strings.TrimSpace(params.Command) == "" {
		return havenmem.ToolResult{Error: "command is required"}, nil
	}

	if op := findMetacharacter(params.Command); op != "" {
		return havenmem.ToolResult{Error: fmt.Sprintf("command rejected: contains shell operator %q", op)}, nil
	}

	tokens, err := shlex.Split(params.Command)
	if err != nil {
		return havenmem.ToolResult{Error: "command rejected: unterminated quote"}, nil
	}
	if len(tokens) == 0 {
		return havenmem.ToolResult{Error: "command rejected: empty after tokenizing"}, nil
	}

	exe := tokens[0]
	if !executableWhitelist[exe] {
		return havenmem.ToolResult{Error: fmt.Sprintf("command rejected: %q is not in the allowed executable list", exe)}, nil
	}
	if exe == "git" {
		if len(tokens) < 2 || !gitSubcommandWhitelist[tokens[1]] {
			return havenmem.ToolResult{Error: "command rejected: only read-only git subcommands (log, status, diff, show, ls-files) are allowed"}, nil
		}
	}

	cmdCtx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	cmd := exec.CommandContext(cmdCtx, exe, tokens[1:]...)
	cmd.Dir = t.workspacePath
	cmd.Env = restrictedEnv()

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()

	output := combineOutput(stdout.String(), stderr.String())
	truncated := false
	if len(output) > maxOutputBytes {
		output = output[:maxOutputBytes]
		truncated = true
	}
	if truncated {
		output += "\n... (truncated at 1 MiB)"
	}

	if cmdCtx.Err() == context.DeadlineExceeded {
		return havenmem.ToolResult{Content: output, Error: fmt.Sprintf("command timed out after %s", defaultTimeout)}, nil
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

func findMetacharacter(command string) string {
	for _, op := range shellMetacharacters {
		if strings.Contains(command, op) {
			return op
		}
	}
	return ""
}

func combineOutput(stdout, stderr string) string {
	if stdout != "" && stderr != "" {
		return stdout + "\n--- stderr ---\n" + stderr
	}
	return stdout + stderr
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
