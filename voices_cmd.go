package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/dgnsrekt/readaloud/internal/api"
	"github.com/mattn/go-runewidth"
	"github.com/sahilm/fuzzy"
	"github.com/spf13/cobra"
)

var voicesCmd = &cobra.Command{
	Use:     "voices [FILTER]",
	Short:   "List the remote voices",
	Long:    paragraph(fmt.Sprintf("\nList the voices offered by the reader server, %s. The built-in voices are listed when the server is unreachable.", keyword("fuzzy-filtered by name"))),
	Example: paragraph("readaloud voices\nreadaloud voices ch"),
	Args:    cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		voices := listVoices(cmd.Context(), newClient(cfg))
		if len(args) == 1 {
			voices = filterVoices(voices, args[0])
		}

		nameWidth := 0
		for _, v := range voices {
			nameWidth = max(nameWidth, runewidth.StringWidth(v.Name))
		}

		w := cmd.OutOrStdout()
		for _, v := range voices {
			name := runewidth.FillRight(v.Name, nameWidth)
			mark := "  "
			if v.Name == cfg.Voice || v.ID == cfg.Voice {
				mark = "* "
				name = keyword(name)
			}
			if _, err := fmt.Fprintf(w, "%s%s  %s  %s\n", mark, name, subtle(v.ID), v.Category); err != nil {
				return err
			}
		}
		return nil
	},
}

// listVoices asks the server and falls back to the built-in table.
func listVoices(ctx context.Context, client *api.Client) []api.Voice {
	if client == nil {
		return api.BuiltinVoices()
	}
	voices, err := client.ListVoices(ctx)
	if err != nil || len(voices) == 0 {
		log.Warn("Using built-in voices", "err", err)
		return api.BuiltinVoices()
	}
	return voices
}

type voiceSource []api.Voice

func (s voiceSource) String(i int) string { return s[i].Name }
func (s voiceSource) Len() int            { return len(s) }

// filterVoices returns the voices whose name fuzzy-matches term, best
// match first.
func filterVoices(voices []api.Voice, term string) []api.Voice {
	term = strings.TrimSpace(term)
	if term == "" {
		return voices
	}
	matches := fuzzy.FindFrom(term, voiceSource(voices))
	out := make([]api.Voice, len(matches))
	for i, m := range matches {
		out[i] = voices[m.Index]
	}
	return out
}
