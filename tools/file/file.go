// Package file implements the workspace-scoped file tools (§4.6):
// read_file, write_file, edit_file, delete_file, find_files, and
// search_in_files.
package file

import (
	"bufio"
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/lucentlabs/havenmem"
	"github.com/lucentlabs/havenmem/workspace"
)

const (
	maxReadBytes  = 10 << 20 // 10 MiB
	maxWriteBytes = 10 << 20
	maxListed     = 1000
)

// Tool provides file operations within a sandboxed workspace.
type Tool struct {
	sandbox *workspace.Sandbox
}

// New creates a file Tool restricted to the given workspace root.
func New(sb *workspace.Sandbox) *Tool {
	return &Tool{sandbox: sb}
}

func (t *Tool) Definitions() []havenmem.ToolDefinition {
	return []havenmem.ToolDefinition{
		{
			Name:        "read_file",
			Description: "Read a file from the workspace. Binary content is returned base64-encoded.",
			Parameters:  json.RawMessage(`{"type":"object","properties":{"path":{"type":"string"}},"required":["path"]}`),
		},
		{
			Name:        "write_file",
			Description: "Write content to a file in the workspace, creating parent directories as needed. Overwrites atomically.",
			Parameters:  json.RawMessage(`{"type":"object","properties":{"path":{"type":"string"},"content":{"type":"string"}},"required":["path","content"]}`),
		},
		{
			Name:        "edit_file",
			Description: "Replace an exact-match substring within a file. Fails if the substring is not found.",
			Parameters:  json.RawMessage(`{"type":"object","properties":{"path":{"type":"string"},"old":{"type":"string"},"new":{"type":"string"},"replace_all":{"type":"boolean"}},"required":["path","old","new"]}`),
		},
		{
			Name:        "delete_file",
			Description: "Delete a file or directory (recursively) from the workspace.",
			Parameters:  json.RawMessage(`{"type":"object","properties":{"path":{"type":"string"}},"required":["path"]}`),
		},
		{
			Name:        "find_files",
			Description: "List workspace paths matching a glob pattern, rooted at an optional directory. Does not follow symlinks.",
			Parameters:  json.RawMessage(`{"type":"object","properties":{"glob":{"type":"string"},"root":{"type":"string"}},"required":["glob"]}`),
		},
		{
			Name:        "search_in_files",
			Description: "Search files matching a glob for lines matching a regular expression, rooted at an optional directory.",
			Parameters:  json.RawMessage(`{"type":"object","properties":{"regex":{"type":"string"},"file_glob":{"type":"string"},"root":{"type":"string"}},"required":["regex","file_glob"]}`),
		},
	}
}

func (t *Tool) Execute(_ context.Context, name string, args json.RawMessage) (havenmem.ToolResult, error) {
	switch name {
	case "read_file":
		return t.readFile(args)
	case "write_file":
		return t.writeFile(args)
	case "edit_file":
		return t.editFile(args)
	case "delete_file":
		return t.deleteFile(args)
	case "find_files":
		return t.findFiles(args)
	case "search_in_files":
		return t.searchInFiles(args)
	default:
		return havenmem.ToolResult{Error: "unknown file tool: " + name}, nil
	}
}

func (t *Tool) readFile(args json.RawMessage) (havenmem.ToolResult, error) {
	var params struct {
		Path string `json:"path"`
	}
	if err := json.Unmarshal(args, &params); err != nil {
		return havenmem.ToolResult{Error: "invalid args: " + err.Error()}, nil
	}
	resolved, err := t.sandbox.ResolveForRead(params.Path)
	if err != nil {
		return havenmem.ToolResult{Error: err.Error()}, nil
	}

	f, err := os.Open(resolved)
	if err != nil {
		return havenmem.ToolResult{Error: "read error: " + err.Error()}, nil
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, maxReadBytes+1))
	if err != nil {
		return havenmem.ToolResult{Error: "read error: " + err.Error()}, nil
	}
	if len(data) > maxReadBytes {
		return havenmem.ToolResult{Error: fmt.Sprintf("file exceeds %d byte read limit", maxReadBytes)}, nil
	}

	if !utf8.Valid(data) || bytes.ContainsRune(data, 0) {
		return havenmem.ToolResult{Content: "[base64] " + base64.StdEncoding.EncodeToString(data)}, nil
	}

	return havenmem.ToolResult{Content: string(data)}, nil
}

func (t *Tool) writeFile(args json.RawMessage) (havenmem.ToolResult, error) {
	var params struct {
		Path    string `json:"path"`
		Content string `json:"content"`
	}
	if err := json.Unmarshal(args, &params); err != nil {
		return havenmem.ToolResult{Error: "invalid args: " + err.Error()}, nil
	}
	if len(params.Content) > maxWriteBytes {
		return havenmem.ToolResult{Error: fmt.Sprintf("content exceeds %d byte limit", maxWriteBytes)}, nil
	}
	resolved, err := t.sandbox.Resolve(params.Path)
	if err != nil {
		return havenmem.ToolResult{Error: err.Error()}, nil
	}

	dir := filepath.Dir(resolved)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return havenmem.ToolResult{Error: "mkdir error: " + err.Error()}, nil
	}

	tmp, err := os.CreateTemp(dir, ".havenmem-write-*")
	if err != nil {
		return havenmem.ToolResult{Error: "write error: " + err.Error()}, nil
	}
	tmpName := tmp.Name()
	if _, err := tmp.WriteString(params.Content); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return havenmem.ToolResult{Error: "write error: " + err.Error()}, nil
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return havenmem.ToolResult{Error: "write error: " + err.Error()}, nil
	}
	if err := os.Rename(tmpName, resolved); err != nil {
		os.Remove(tmpName)
		return havenmem.ToolResult{Error: "write error: " + err.Error()}, nil
	}

	return havenmem.ToolResult{Content: fmt.Sprintf("Wrote %d bytes to %s", len(params.Content), params.Path)}, nil
}

func (t *Tool) editFile(args json.RawMessage) (havenmem.ToolResult, error) {
	var params struct {
		Path       string `json:"path"`
		Old        string `json:"old"`
		New        string `json:"new"`
		ReplaceAll bool   `json:"replace_all"`
	}
	if err := json.Unmarshal(args, &params); err != nil {
		return havenmem.ToolResult{Error: "invalid args: " + err.Error()}, nil
	}
	if params.Old == "" {
		return havenmem.ToolResult{Error: "old must be non-empty"}, nil
	}
	resolved, err := t.sandbox.Resolve(params.Path)
	if err != nil {
		return havenmem.ToolResult{Error: err.Error()}, nil
	}

	data, err := os.ReadFile(resolved)
	if err != nil {
		return havenmem.ToolResult{Error: "read error: " + err.Error()}, nil
	}
	content := string(data)

	count := strings.Count(content, params.Old)
	if count == 0 {
		return havenmem.ToolResult{Error: fmt.Sprintf("old string not found in %s", params.Path)}, nil
	}

	var replaced string
	var n int
	if params.ReplaceAll {
		replaced = strings.ReplaceAll(content, params.Old, params.New)
		n = count
	} else {
		replaced = strings.Replace(content, params.Old, params.New, 1)
		n = 1
	}

	if err := os.WriteFile(resolved, []byte(replaced), 0o644); err != nil {
		return havenmem.ToolResult{Error: "write error: " + err.Error()}, nil
	}
	return havenmem.ToolResult{Content: fmt.Sprintf("Edited %s (%d replacements)", params.Path, n)}, nil
}

func (t *Tool) deleteFile(args json.RawMessage) (havenmem.ToolResult, error) {
	var params struct {
		Path string `json:"path"`
	}
	if err := json.Unmarshal(args, &params); err != nil {
		return havenmem.ToolResult{Error: "invalid args: " + err.Error()}, nil
	}
	resolved, err := t.sandbox.Resolve(params.Path)
	if err != nil {
		return havenmem.ToolResult{Error: err.Error()}, nil
	}
	if err := os.RemoveAll(resolved); err != nil {
		return havenmem.ToolResult{Error: "delete error: " + err.Error()}, nil
	}
	return havenmem.ToolResult{Content: fmt.Sprintf("Deleted %s", params.Path)}, nil
}

func (t *Tool) findFiles(args json.RawMessage) (havenmem.ToolResult, error) {
	var params struct {
		Glob string `json:"glob"`
		Root string `json:"root"`
	}
	if err := json.Unmarshal(args, &params); err != nil {
		return havenmem.ToolResult{Error: "invalid args: " + err.Error()}, nil
	}
	root := params.Root
	if root == "" {
		root = "."
	}
	resolvedRoot, err := t.sandbox.Resolve(root)
	if err != nil {
		return havenmem.ToolResult{Error: err.Error()}, nil
	}

	var matches []string
	err = filepath.WalkDir(resolvedRoot, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return nil // skip unreadable entries
		}
		if d.Type()&os.ModeSymlink != 0 {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(resolvedRoot, p)
		if err != nil {
			return nil
		}
		ok, err := filepath.Match(params.Glob, rel)
		if err != nil {
			return err
		}
		if !ok {
			ok, _ = filepath.Match(params.Glob, filepath.Base(p))
		}
		if ok {
			matches = append(matches, rel)
			// Keep one match past the cap so an exact-cap result count can
			// be told apart from a truncated one below.
			if len(matches) > maxListed {
				return errStopWalk
			}
		}
		return nil
	})
	if err != nil && err != errStopWalk {
		return havenmem.ToolResult{Error: "find error: " + err.Error()}, nil
	}

	truncated := len(matches) > maxListed
	if truncated {
		matches = matches[:maxListed]
	}
	content := strings.Join(matches, "\n")
	if truncated {
		content += "\n... (truncated at 1000 results)"
	}
	return havenmem.ToolResult{Content: content}, nil
}

var errStopWalk = fmt.Errorf("find_files: result limit reached")

func (t *Tool) searchInFiles(args json.RawMessage) (havenmem.ToolResult, error) {
	var params struct {
		Regex    string `json:"regex"`
		FileGlob string `json:"file_glob"`
		Root     string `json:"root"`
	}
	if err := json.Unmarshal(args, &params); err != nil {
		return havenmem.ToolResult{Error: "invalid args: " + err.Error()}, nil
	}
	re, err := regexp.Compile(params.Regex)
	if err != nil {
		return havenmem.ToolResult{Error: "invalid regex: " + err.Error()}, nil
	}
	root := params.Root
	if root == "" {
		root = "."
	}
	resolvedRoot, err := t.sandbox.Resolve(root)
	if err != nil {
		return havenmem.ToolResult{Error: err.Error()}, nil
	}

	var lines []string
	walkErr := filepath.WalkDir(resolvedRoot, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.Type()&os.ModeSymlink != 0 {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		if params.FileGlob != "" {
			ok, _ := filepath.Match(params.FileGlob, filepath.Base(p))
			if !ok {
				return nil
			}
		}
		f, err := os.Open(p)
		if err != nil {
			return nil
		}
		defer f.Close()

		scanner := bufio.NewScanner(f)
		scanner.Buffer(make([]byte, 64*1024), 1<<20)
		lineNo := 0
		rel, _ := filepath.Rel(resolvedRoot, p)
		for scanner.Scan() {
			lineNo++
			if re.MatchString(scanner.Text()) {
				lines = append(lines, fmt.Sprintf("%s:%d:%s", rel, lineNo, scanner.Text()))
				// Keep one match past the cap so an exact-cap match count
				// can be told apart from a truncated one below.
				if len(lines) > maxListed {
					return errStopWalk
				}
			}
		}
		return nil
	})
	if walkErr != nil && walkErr != errStopWalk {
		return havenmem.ToolResult{Error: "search error: " + walkErr.Error()}, nil
	}

	truncated := len(lines) > maxListed
	if truncated {
		lines = lines[:maxListed]
	}
	content := strings.Join(lines, "\n")
	if len(lines) == 0 {
		content = "no matches"
	}
	if truncated {
		content += "\n... (truncated at 1000 matches)"
	}
	return havenmem.ToolResult{Content: content}, nil
}
