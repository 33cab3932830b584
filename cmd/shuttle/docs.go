package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/cobra/doc"
)

// exitStatus is appended to the description of every operation's page.
const exitStatus = `Exit status:
  0    every entry was copied, moved, removed or skipped
  1    at least one entry failed
  2    invalid arguments, patterns or configuration; nothing was touched
  130  interrupted; partial files end on a chunk boundary and can be resumed`

func newDocsCmd() *cobra.Command {
	var dir, format string
	cmd := &cobra.Command{
		Use:    "gen-docs",
		Short:  "Generate man pages or markdown for shuttle",
		Hidden: true,
		Args:   cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return genDocs(cmd.Root(), dir, format)
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "docs", "output directory")
	cmd.Flags().StringVar(&format, "format", "man", "output format (man or markdown)")
	return cmd
}

// genDocs writes one page per visible command: shuttle.1, shuttle-copy.1
// and so on, or their markdown equivalents.
func genDocs(root *cobra.Command, dir, format string) error {
	if format != "man" && format != "markdown" {
		return fmt.Errorf("unknown format %q (use man or markdown)", format)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	root.DisableAutoGenTag = true

	if format == "man" {
		return doc.GenManTreeFromOpts(root, doc.GenManTreeOptions{
			Header: &doc.GenManHeader{
				Title:   "SHUTTLE",
				Section: "1",
				Source:  "shuttle " + version,
				Manual:  "Shuttle Manual",
			},
			Path:             dir,
			CommandSeparator: "-",
		})
	}

	prepend := func(filename string) string {
		name := strings.TrimSuffix(filepath.Base(filename), ".md")
		return fmt.Sprintf("---\ntitle: %q\n---\n\n", strings.ReplaceAll(name, "_", " "))
	}
	link := func(name string) string {
		return strings.TrimSuffix(name, ".md")
	}
	return doc.GenMarkdownTreeCustom(root, dir, prepend, link)
}
