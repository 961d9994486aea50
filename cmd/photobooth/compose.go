package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/LeeRoiii/Photoboots/modules/selection"
)

var composeCmd = &cobra.Command{
	Use:   "compose",
	Short: "Build a captioned photo strip from selected gallery positions",
	Example: `  photobooth compose --select 0,2,4 --caption "My Trip"`,
	Args:    cobra.NoArgs,
	RunE:    runCompose,
}

var (
	composeSelect  string
	composeCaption string
	composeNoSave  bool
)

func init() {
	composeCmd.Flags().StringVarP(&composeSelect, "select", "s", "", "Comma-separated gallery positions, in strip order")
	composeCmd.Flags().StringVarP(&composeCaption, "caption", "c", "", "Caption printed under the photos")
	composeCmd.Flags().BoolVar(&composeNoSave, "no-save", false, "Compose without writing the strip file")
	composeCmd.MarkFlagRequired("select")
	rootCmd.AddCommand(composeCmd)
}

func runCompose(cmd *cobra.Command, args []string) error {
	positions, err := parsePositions(composeSelect)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer shutdown(a)

	out := cmd.OutOrStdout()
	for _, pos := range positions {
		outcome, err := a.booth.TogglePosition(pos)
		if err != nil {
			return err
		}
		if outcome == selection.Ignored {
			fmt.Fprintf(out, "position %d ignored: only %d photos fit in a strip\n", pos, cfg.Composite.Capacity)
		}
	}

	art, err := a.booth.Compose(ctx, composeCaption)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "composite %s: %d photos", art.ID, len(art.Images))
	if art.Caption != "" {
		fmt.Fprintf(out, ", caption %q", art.Caption)
	}
	fmt.Fprintln(out)

	if composeNoSave {
		return nil
	}
	path, err := a.booth.Export(ctx, art)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "strip saved to %s\n", path)
	return nil
}
