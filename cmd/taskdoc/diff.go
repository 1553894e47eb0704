package main

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"github.com/pmezard/go-difflib/difflib"
	"github.com/spf13/cobra"

	"github.com/zenibako/taskdoc-golang/codec"
)

func runDiff(cmd *cobra.Command, args []string) error {
	patch, err := diffFiles(args[0], args[1])
	if err != nil {
		return err
	}
	if patch == "" {
		fmt.Fprintln(cmd.OutOrStdout(), "No differences")
		return nil
	}
	fmt.Fprint(cmd.OutOrStdout(), patch)
	return nil
}

// diffFiles compares the content of two task files, ignoring formatting and
// writer bookkeeping
func diffFiles(a, b string) (string, error) {
	ca, err := canonical(a)
	if err != nil {
		return "", err
	}
	cb, err := canonical(b)
	if err != nil {
		return "", err
	}
	return difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(ca),
		B:        difflib.SplitLines(cb),
		FromFile: a,
		ToFile:   b,
		Context:  3,
	})
}

func canonical(filename string) (string, error) {
	f, err := os.Open(filename)
	if err != nil {
		return "", err
	}
	defer f.Close()

	enc := codec.JSON{Indent: true}
	snap, err := enc.Read(f)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", filename, err)
	}
	snap.Guid = ""
	snap.Registry = nil

	var buf bytes.Buffer
	if err := enc.Write(&buf, snap); err != nil {
		return "", err
	}
	return strings.TrimRight(buf.String(), "\n") + "\n", nil
}
