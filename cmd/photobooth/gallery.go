package main

import (
	"fmt"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/LeeRoiii/Photoboots/modules/gallery"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List the photos in the gallery",
	Args:  cobra.NoArgs,
	RunE:  runList,
}

var deleteCmd = &cobra.Command{
	Use:   "delete <position>",
	Short: "Delete the photo at a gallery position",
	Args:  cobra.ExactArgs(1),
	RunE:  runDelete,
}

var downloadCmd = &cobra.Command{
	Use:   "download <position>",
	Short: "Save the photo at a gallery position to the download directory",
	Args:  cobra.ExactArgs(1),
	RunE:  runDownload,
}

var infoCmd = &cobra.Command{
	Use:   "info <id|position>",
	Short: "Show details for one photo",
	Args:  cobra.ExactArgs(1),
	RunE:  runInfo,
}

func init() {
	rootCmd.AddCommand(listCmd, deleteCmd, downloadCmd, infoCmd)
}

func runList(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer shutdown(a)

	images := a.booth.Gallery().Images()
	out := cmd.OutOrStdout()
	if len(images) == 0 {
		fmt.Fprintln(out, "No photos yet.")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "POS\tID\tFACING\tSHOT\tCAPTURED\tSIZE")
	for i, img := range images {
		fmt.Fprintf(w, "%d\t%s\t%s\t%d\t%s\t%s\n",
			i, img.ID, img.Facing, img.Shot,
			img.CapturedAt.Local().Format(time.DateTime),
			humanBytes(len(img.Data)),
		)
	}
	return w.Flush()
}

func runDelete(cmd *cobra.Command, args []string) error {
	pos, err := parsePosition(args[0])
	if err != nil {
		return err
	}

	a, err := newApp(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer shutdown(a)

	img, err := a.booth.Delete(cmd.Context(), pos)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Image deleted! (%s)\n", img.ID)
	return nil
}

func runDownload(cmd *cobra.Command, args []string) error {
	pos, err := parsePosition(args[0])
	if err != nil {
		return err
	}

	a, err := newApp(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer shutdown(a)

	path, err := a.booth.Download(cmd.Context(), pos)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Image downloaded! %s\n", path)
	return nil
}

func runInfo(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer shutdown(a)

	g := a.booth.Gallery()
	img, ok := g.ByID(args[0])
	if !ok {
		pos, err := parsePosition(args[0])
		if err != nil {
			return fmt.Errorf("%w: %s", gallery.ErrImageNotFound, args[0])
		}
		if img, err = g.Get(pos); err != nil {
			return err
		}
	}

	preview := gallery.DataURL(img)
	if len(preview) > 48 {
		preview = preview[:48] + "..."
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "id:        %s\n", img.ID)
	fmt.Fprintf(out, "position:  %d of %d\n", g.Position(img.ID), g.Len())
	fmt.Fprintf(out, "facing:    %s\n", img.Facing)
	fmt.Fprintf(out, "shot:      %d\n", img.Shot)
	fmt.Fprintf(out, "captured:  %s\n", img.CapturedAt.Local().Format(time.RFC3339))
	fmt.Fprintf(out, "type:      %s (%s)\n", img.MIME, humanBytes(len(img.Data)))
	fmt.Fprintf(out, "preview:   %s\n", preview)
	return nil
}

func parsePosition(s string) (int, error) {
	pos, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("invalid position %q: %w", s, err)
	}
	return pos, nil
}

func parsePositions(s string) ([]int, error) {
	var out []int
	for _, part := range strings.Split(s, ",") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		pos, err := parsePosition(part)
		if err != nil {
			return nil, err
		}
		out = append(out, pos)
	}
	return out, nil
}

func humanBytes(n int) string {
	return humanize.IBytes(uint64(n))
}
