package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/vvka-141/txwrap/pkg/txwrap"
)

type kindDocument struct {
	Name             string `json:"name"`
	DisallowedInside bool   `json:"disallowed_inside"`
}

func newKindsCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "kinds",
		Short: "List the error kinds the wrapper flags accept",
		Long: `Kinds lists every error kind name accepted by the *-errors flags and the
wrapper section of txwrap.yaml.

Kinds marked "outside only" invalidate the PostgreSQL transaction once raised
and are rejected in the inside rescued, prepared and retriable lists.`,
		Args: usageArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			registry := txwrap.DefaultKinds()
			docs := make([]kindDocument, 0, len(registry))
			for _, name := range registry.Names() {
				kind, _ := registry.Lookup(name)
				docs = append(docs, kindDocument{
					Name:             name,
					DisallowedInside: txwrap.DisallowedInsideTransaction.Contains(kind),
				})
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(docs)
			}

			s := newStyles(isTerminal(os.Stdout) && out == os.Stdout)
			for _, d := range docs {
				if d.DisallowedInside {
					fmt.Fprintf(out, "%-22s %s\n", d.Name, s.warning.Render("outside only"))
					continue
				}
				fmt.Fprintln(out, d.Name)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the kinds as JSON")
	return cmd
}
