package main

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kbukum/flowgate/plan"
	"github.com/kbukum/flowgate/workflow"
)

func newCompileCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "compile FILE",
		Short: "Compile a YAML workflow and print its execution plan",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			file, err := workflow.LoadDefinition(args[0])
			if err != nil {
				return err
			}
			catalog := workflow.DefaultCatalog()
			p, err := plan.Compile(file.Definition, catalog, plan.Options{})
			if err != nil {
				return err
			}
			credits, err := p.Credits(catalog)
			if err != nil {
				return err
			}
			raw, err := p.Encode()
			if err != nil {
				return err
			}
			var out bytes.Buffer
			if err := json.Indent(&out, raw, "", "  "); err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s\n# %d phases, %d nodes, %d credits per run\n",
				out.String(), len(p.Phases), p.NodeCount(), credits)
			return err
		},
	}
}
