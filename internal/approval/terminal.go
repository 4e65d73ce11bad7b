// Package approval provides caller-side approvers for patch confirmation.
package approval

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"

	"file-patch-server/internal/patch"
)

// EditFunc lets the user rewrite content and returns the result.
type EditFunc func(ctx context.Context, fileName, content string) (string, error)

// TerminalOption configures a TerminalApprover.
type TerminalOption func(*TerminalApprover)

// WithEditFunc replaces the function used for the "e" answer.
func WithEditFunc(f EditFunc) TerminalOption {
	return func(a *TerminalApprover) { a.edit = f }
}

// TerminalApprover prints the diff of a proposal and asks the user to answer
// y (apply), n (discard) or e (edit the proposal before applying).
//
// Input is consumed by a single reader goroutine started on the first prompt and
// kept until in reaches EOF or fails. A line typed after a cancelled Approve is
// delivered to the next Approve on the same approver.
type TerminalApprover struct {
	in   *bufio.Reader
	out  io.Writer
	edit EditFunc

	start   sync.Once
	lines   chan string
	readErr error
}

// NewTerminalApprover reads answers from in and writes prompts to out.
func NewTerminalApprover(in io.Reader, out io.Writer, opts ...TerminalOption) *TerminalApprover {
	a := &TerminalApprover{in: bufio.NewReader(in), out: out, edit: EditInEditor, lines: make(chan string)}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Approve implements patch.Approver. When ctx is done while waiting for input the
// pending read is abandoned and ctx's error returned.
func (a *TerminalApprover) Approve(ctx context.Context, p patch.Proposal) (patch.Verdict, error) {
	fmt.Fprintf(a.out, "=== %s ===\n", p.FilePath)
	if p.UnifiedDiff == "" {
		fmt.Fprintln(a.out, "(no changes)")
	} else {
		fmt.Fprint(a.out, p.UnifiedDiff)
	}
	fmt.Fprintf(a.out, "%d line(s) added, %d line(s) removed\n", p.Stat.AddedLines, p.Stat.RemovedLines)

	for {
		fmt.Fprint(a.out, "Apply these changes? [y]es / [n]o / [e]dit: ")
		answer, err := a.readLine(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) {
				fmt.Fprintln(a.out)
				return patch.Verdict{Decision: patch.DecisionReject}, nil
			}
			return patch.Verdict{}, err
		}

		switch strings.ToLower(strings.TrimSpace(answer)) {
		case "y", "yes":
			return patch.Verdict{Decision: patch.DecisionAccept}, nil
		case "n", "no", "":
			return patch.Verdict{Decision: patch.DecisionReject}, nil
		case "e", "edit":
			edited, err := a.edit(ctx, p.FileName, p.ProposedContent)
			if err != nil {
				return patch.Verdict{}, fmt.Errorf("editing proposal: %w", err)
			}
			return patch.Verdict{Decision: patch.DecisionAcceptModified, Content: edited}, nil
		default:
			fmt.Fprintf(a.out, "Unrecognized answer %q.\n", strings.TrimSpace(answer))
		}
	}
}

func (a *TerminalApprover) readLine(ctx context.Context) (string, error) {
	a.start.Do(func() { go a.readLoop() })
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case text, ok := <-a.lines:
		if !ok {
			return "", a.readErr
		}
		return text, nil
	}
}

// readLoop is the only reader of a.in. It closes a.lines after the first error;
// readErr is set before the close.
func (a *TerminalApprover) readLoop() {
	for {
		s, err := a.in.ReadString('\n')
		if s != "" && (err == nil || errors.Is(err, io.EOF)) {
			a.lines <- s
		}
		if err != nil {
			a.readErr = err
			close(a.lines)
			return
		}
	}
}

// EditInEditor writes content to a temporary file, opens it in $VISUAL or $EDITOR
// (vi when neither is set) and returns the saved content.
func EditInEditor(ctx context.Context, fileName, content string) (string, error) {
	editor := os.Getenv("VISUAL")
	if editor == "" {
		editor = os.Getenv("EDITOR")
	}
	if editor == "" {
		editor = "vi"
	}

	dir, err := os.MkdirTemp("", "file-patcher-edit-")
	if err != nil {
		return "", fmt.Errorf("creating temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	path := filepath.Join(dir, filepath.Base(fileName))
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		return "", fmt.Errorf("writing proposal: %w", err)
	}

	args := append(strings.Fields(editor), path)
	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stderr
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("running %s: %w", args[0], err)
	}

	edited, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading edited proposal: %w", err)
	}
	return string(edited), nil
}

var _ patch.Approver = (*TerminalApprover)(nil)
