package main

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/dgnsrekt/readaloud/internal/chat"
	"github.com/dgnsrekt/readaloud/internal/document"
	"github.com/spf13/cobra"
)

var askCmd = &cobra.Command{
	Use:     "ask FILE.pdf QUESTION",
	Short:   "Ask one question about a PDF",
	Long:    paragraph(fmt.Sprintf("\n%s about a PDF and print the answer. Needs a reader server.", keyword("Ask a question"))),
	Example: paragraph("readaloud ask paper.pdf \"What is the main result?\""),
	Args:    cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		client := newClient(cfg)
		if client == nil {
			return errors.New("ask needs a reader server: set server.url or --server")
		}

		path, err := filepath.Abs(args[0])
		if err != nil {
			return fmt.Errorf("unable to get absolute path: %w", err)
		}
		question := strings.Join(args[1:], " ")

		extractor, store := newExtractor(cfg, client)
		if store != nil {
			defer store.Close() //nolint:errcheck
		}
		ctx := cmd.Context()
		doc, err := extractor.Extract(ctx, path)
		if err != nil {
			return err
		}
		if err := document.Register(ctx, client, doc); err != nil {
			return fmt.Errorf("unable to register %s: %w", doc.Filename, err)
		}
		if store != nil {
			// Remember the server ID so the next question skips the upload.
			_ = store.Save(doc)
		}

		answer, err := chat.NewSession(client, doc.PDFID, doc.Filename).Ask(ctx, question)
		if err != nil {
			return err
		}

		r, err := glamour.NewTermRenderer(
			glamour.WithColorProfile(lipgloss.ColorProfile()),
			glamour.WithStylePath(style),
			glamour.WithWordWrap(int(width)), //nolint:gosec
		)
		if err != nil {
			return fmt.Errorf("unable to create renderer: %w", err)
		}
		out, err := r.Render(answer)
		if err != nil {
			return fmt.Errorf("unable to render markdown: %w", err)
		}
		_, err = fmt.Fprint(cmd.OutOrStdout(), out)
		return err
	},
}
