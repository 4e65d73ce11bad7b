package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"file-patch-server/internal/config"
	"file-patch-server/internal/models"
)

func newReadCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "read <file>",
		Short: "Print a file, or a line range, with the numbering edits refer to",
		Args:  cobra.ExactArgs(1),
		RunE:  runRead,
	}
	cmd.Flags().Int("start", 0, "First line to print (1-based)")
	cmd.Flags().Int("end", 0, "Last line to print (inclusive)")
	cmd.Flags().BoolP("number", "n", false, "Prefix lines with their numbers")
	cmd.Flags().Bool("json", false, "Print the result as JSON")
	return cmd
}

func runRead(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, true)
	if err != nil {
		return err
	}
	cfg.Approval = config.ApprovalAuto
	logger, err := newLogger(cmd, cfg, "")
	if err != nil {
		return err
	}
	a, err := newApp(cmd.Context(), cfg, logger, appOptions{})
	if err != nil {
		return err
	}
	defer a.Close()

	start, _ := cmd.Flags().GetInt("start")
	end, _ := cmd.Flags().GetInt("end")
	resp, errDetail := a.service.ReadFile(cmd.Context(), models.ReadFileRequest{FilePath: args[0], StartLine: start, EndLine: end})
	if errDetail != nil {
		return &detailError{detail: errDetail}
	}

	out := cmd.OutOrStdout()
	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		return writeJSON(out, resp)
	}
	if number, _ := cmd.Flags().GetBool("number"); !number {
		fmt.Fprintln(out, resp.Content)
		return nil
	}

	first := 1
	last := resp.TotalLines
	if resp.RangeRequested != nil {
		first, last = resp.RangeRequested.StartLine, resp.RangeRequested.EndLine
	}
	width := len(fmt.Sprint(last))
	for i, line := range strings.Split(resp.Content, "\n") {
		fmt.Fprintf(out, "%*d | %s\n", width, first+i, line)
	}
	return nil
}
