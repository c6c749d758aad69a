package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/corehttpd/corehttpd/core/prebind"
)

// newPreBindCmd implements the -b/-B pre-bind surface: bind the listed
// privileged ports before any privilege drop and report them. The command
// returns once the ports are bound; it does not stay running to hand its
// fd table to another process.
func newPreBindCmd() *cobra.Command {
	var spec string
	var specFile string

	cmd := &cobra.Command{
		Use:   "prebind",
		Short: "Pre-bind privileged listening ports before dropping privileges",
		RunE: func(cmd *cobra.Command, args []string) error {
			reg := prebind.NewRegistry()

			if specFile != "" {
				data, err := os.ReadFile(specFile)
				if err != nil {
					return err
				}
				spec = string(data)
			}
			if spec == "" {
				return fmt.Errorf("prebind: no -b spec or -B file given")
			}
			if err := reg.PreBind(spec); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "pre-bound: %s\n", spec)
			return nil
		},
	}

	cmd.Flags().StringVarP(&spec, "spec", "b", "", "comma-separated [addr:]port list")
	cmd.Flags().StringVarP(&specFile, "file", "B", "", "file containing the pre-bind spec")
	return cmd
}
