package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dgnsrekt/readaloud/internal/sentence"
	"github.com/spf13/cobra"
)

var showSentences bool

var extractCmd = &cobra.Command{
	Use:     "extract FILE.pdf",
	Short:   "Print the text of a PDF",
	Long:    paragraph(fmt.Sprintf("\nPrint the page-marked text of a PDF, or %s with --sentences. Details go to stderr.", keyword("one sentence per line"))),
	Example: paragraph("readaloud extract paper.pdf\nreadaloud extract --sentences paper.pdf | wc -l"),
	Args:    cobra.ExactArgs(1),
	ValidArgsFunction: func(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective) {
		return []string{"pdf"}, cobra.ShellCompDirectiveFilterFileExt
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := filepath.Abs(args[0])
		if err != nil {
			return fmt.Errorf("unable to get absolute path: %w", err)
		}

		extractor, store := newExtractor(cfg, newClient(cfg))
		if store != nil {
			defer store.Close() //nolint:errcheck
		}
		doc, err := extractor.Extract(cmd.Context(), path)
		if err != nil {
			return err
		}

		sentences := sentence.Segment(doc.Text)
		fmt.Fprintln(os.Stderr, subtle(fmt.Sprintf("%s · %d sentences", doc.Describe(), len(sentences))))

		w := cmd.OutOrStdout()
		if !showSentences {
			_, err := fmt.Fprintln(w, strings.TrimSpace(doc.Text))
			return err
		}
		for _, s := range sentences {
			if _, err := fmt.Fprintln(w, strings.Join(strings.Fields(s), " ")); err != nil {
				return err
			}
		}
		return nil
	},
}

func init() {
	extractCmd.Flags().BoolVar(&showSentences, "sentences", false, "print one sentence per line")
}
