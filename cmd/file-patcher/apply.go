package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"file-patch-server/internal/config"
	"file-patch-server/internal/models"
)

func newApplyCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "apply [file]",
		Short: "Apply an edit list to a file after confirmation",
		Long: `Apply reads an edit list (YAML or JSON) and patches the target file in one step.

The edit list is either a bare list of edits or a document with "file_path",
"edits" and "instruction". A file argument overrides "file_path". Line numbers
refer to the file before any edit; use "read" to obtain them.

   - start_line: 3
     end_line: 4
     content: |-
       replacement for lines 3-4
   - start_line: 10
     end_line: 9
     content: inserted before line 10`,
		Args: cobra.MaximumNArgs(1),
		RunE: runApply,
	}
	cmd.Flags().StringP("edits", "e", "", "Edit list file (YAML or JSON), '-' for stdin")
	cmd.Flags().BoolP("yes", "y", false, "Apply without asking (same as --approval auto)")
	cmd.Flags().Bool("json", false, "Print the result as JSON")
	_ = cmd.MarkFlagRequired("edits")
	return cmd
}

func newPreviewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "preview [file]",
		Short: "Show the diff an edit list would produce without writing",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runPreview,
	}
	cmd.Flags().StringP("edits", "e", "", "Edit list file (YAML or JSON), '-' for stdin")
	cmd.Flags().Bool("json", false, "Print the result as JSON")
	_ = cmd.MarkFlagRequired("edits")
	return cmd
}

// editDocument is the on-disk form of an edit list.
type editDocument struct {
	FilePath    string            `yaml:"file_path"`
	Instruction string            `yaml:"instruction"`
	Edits       []models.EditSpec `yaml:"edits"`
}

// decodeEditRequest parses an edit list. Both a bare sequence of edits and a full
// document are accepted; JSON parses as YAML.
func decodeEditRequest(data []byte) (models.EditRequest, error) {
	var node yaml.Node
	if err := yaml.Unmarshal(data, &node); err != nil {
		return models.EditRequest{}, fmt.Errorf("parsing edit list: %w", err)
	}
	if len(node.Content) == 0 {
		return models.EditRequest{}, fmt.Errorf("edit list is empty")
	}

	root := node.Content[0]
	switch root.Kind {
	case yaml.SequenceNode:
		var edits []models.EditSpec
		if err := root.Decode(&edits); err != nil {
			return models.EditRequest{}, fmt.Errorf("decoding edits: %w", err)
		}
		return models.EditRequest{Edits: edits}, nil
	case yaml.MappingNode:
		var doc editDocument
		if err := root.Decode(&doc); err != nil {
			return models.EditRequest{}, fmt.Errorf("decoding edit document: %w", err)
		}
		return models.EditRequest{FilePath: doc.FilePath, Instruction: doc.Instruction, Edits: doc.Edits}, nil
	default:
		return models.EditRequest{}, fmt.Errorf("edit list must be a sequence of edits or a mapping with an edits key")
	}
}

func readEditRequest(cmd *cobra.Command, args []string) (models.EditRequest, error) {
	source, _ := cmd.Flags().GetString("edits")
	var data []byte
	var err error
	if source == "-" {
		data, err = io.ReadAll(cmd.InOrStdin())
	} else {
		data, err = os.ReadFile(source)
	}
	if err != nil {
		return models.EditRequest{}, fmt.Errorf("reading edit list: %w", err)
	}
	req, err := decodeEditRequest(data)
	if err != nil {
		return models.EditRequest{}, err
	}
	if len(args) == 1 {
		req.FilePath = args[0]
	}
	if strings.TrimSpace(req.FilePath) == "" {
		return models.EditRequest{}, fmt.Errorf("no target file: pass it as an argument or set file_path in the edit list")
	}
	return req, nil
}

func runApply(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, true)
	if err != nil {
		return err
	}
	if yes, _ := cmd.Flags().GetBool("yes"); yes {
		cfg.Approval = config.ApprovalAuto
	}
	if source, _ := cmd.Flags().GetString("edits"); source == "-" && cfg.Approval == config.ApprovalInteractive {
		return fmt.Errorf("--edits - cannot be combined with interactive approval, which reads answers from stdin")
	}

	req, err := readEditRequest(cmd, args)
	if err != nil {
		return err
	}
	logger, err := newLogger(cmd, cfg, "")
	if err != nil {
		return err
	}
	a, err := newApp(cmd.Context(), cfg, logger, appOptions{
		promptIn:  cmd.InOrStdin(),
		promptOut: cmd.ErrOrStderr(),
	})
	if err != nil {
		return err
	}
	defer a.Close()

	resp, errDetail := a.service.PatchFile(cmd.Context(), req)
	if errDetail != nil {
		return &detailError{detail: errDetail}
	}

	out := cmd.OutOrStdout()
	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		if err := writeJSON(out, resp); err != nil {
			return err
		}
	} else {
		printPatchResult(out, resp)
	}
	if !resp.Success {
		return errRejected
	}
	return nil
}

func runPreview(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, true)
	if err != nil {
		return err
	}
	req, err := readEditRequest(cmd, args)
	if err != nil {
		return err
	}
	logger, err := newLogger(cmd, cfg, "")
	if err != nil {
		return err
	}
	// Preview never confirms, so the approval mode is irrelevant here.
	cfg.Approval = config.ApprovalAuto
	a, err := newApp(cmd.Context(), cfg, logger, appOptions{})
	if err != nil {
		return err
	}
	defer a.Close()

	resp, errDetail := a.service.PreviewPatch(cmd.Context(), req)
	if errDetail != nil {
		return &detailError{detail: errDetail}
	}

	out := cmd.OutOrStdout()
	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		return writeJSON(out, resp)
	}
	d := resp.Display
	if d.UnifiedDiff == "" {
		fmt.Fprintf(out, "No changes to %s.\n", req.FilePath)
		return nil
	}
	fmt.Fprint(out, d.UnifiedDiff)
	printStat(out, d.DiffStat)
	return nil
}

func printPatchResult(w io.Writer, resp *models.PatchFileResponse) {
	fmt.Fprintln(w, resp.Message)
	if !resp.Success {
		return
	}
	printStat(w, resp.Display.DiffStat)
	if resp.Display.Snippet != "" {
		fmt.Fprintln(w)
		fmt.Fprintln(w, resp.Display.Snippet)
	}
}

func printStat(w io.Writer, s models.DiffStat) {
	fmt.Fprintf(w, "%d line(s) added, %d line(s) removed (+%d/-%d chars)\n",
		s.AddedLines, s.RemovedLines, s.AddedChars, s.RemovedChars)
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
