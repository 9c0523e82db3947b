package main

import (
	"errors"
	"fmt"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"overlay-studio/internal/compositor"
	"overlay-studio/internal/overlay"
)

func newListCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List overlays",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			oc, err := opts.overlays()
			if err != nil {
				return err
			}
			ctx, cancel := opts.context(cmd)
			defer cancel()

			list, err := oc.List(ctx)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(opts.out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tKIND\tPOSITION\tSIZE\tCONTENT")
			for _, o := range list {
				fmt.Fprintf(tw, "%s\t%s\t%g,%g\t%gx%g\t%s\n",
					o.ID, o.Kind, o.Position.X, o.Position.Y, o.Size.Width, o.Size.Height, o.Content)
			}
			return tw.Flush()
		},
	}
}

func newAddCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "add <text|image> <content>",
		Short: "Add an overlay at the default position",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := overlay.ParseKind(args[0])
			if err != nil {
				return err
			}
			comp, err := newCompositor(opts)
			if err != nil {
				return err
			}
			defer comp.Close()

			ctx, cancel := opts.context(cmd)
			defer cancel()

			o, added, err := comp.AddOverlay(ctx, kind, args[1])
			if err != nil {
				return err
			}
			if !added {
				fmt.Fprintln(opts.out, "nothing to add: content is empty")
				return nil
			}
			fmt.Fprintln(opts.out, o.ID)
			return nil
		},
	}
}

func newMoveCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "move <id> <dx> <dy>",
		Short: "Move an overlay by a relative offset",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			dx, dy, err := parsePair(args[1], args[2])
			if err != nil {
				return err
			}
			return mutate(cmd, opts, overlay.ID(args[0]), func(c *compositor.Compositor, id overlay.ID) {
				c.MoveOverlay(id, dx, dy)
			})
		},
	}
	// Offsets may be negative; "-3" is an argument, not a shorthand flag.
	cmd.Flags().SetInterspersed(false)
	return cmd
}

func newResizeCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "resize <id> <width> <height>",
		Short: "Set an overlay's size",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			w, h, err := parsePair(args[1], args[2])
			if err != nil {
				return err
			}
			return mutate(cmd, opts, overlay.ID(args[0]), func(c *compositor.Compositor, id overlay.ID) {
				c.ResizeOverlay(id, w, h)
			})
		},
	}
	// Numbers after the id are arguments even when they start with "-".
	cmd.Flags().SetInterspersed(false)
	return cmd
}

func newRemoveCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:     "rm <id>",
		Aliases: []string{"delete"},
		Short:   "Delete an overlay",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			oc, err := opts.overlays()
			if err != nil {
				return err
			}
			ctx, cancel := opts.context(cmd)
			defer cancel()

			if err := oc.Delete(ctx, overlay.ID(args[0])); err != nil {
				return err
			}
			fmt.Fprintln(opts.out, "Overlay deleted")
			return nil
		},
	}
}

// mutate loads the collection, applies fn to id and waits for the update to
// be persisted. The local change is optimistic, so a failed update is
// surfaced through the error handler rather than fn.
func mutate(cmd *cobra.Command, opts *options, id overlay.ID, fn func(*compositor.Compositor, overlay.ID)) error {
	var persistErr error
	comp, err := newCompositor(opts, compositor.WithErrorHandler(func(_ compositor.Op, _ overlay.ID, err error) {
		persistErr = err
	}))
	if err != nil {
		return err
	}
	defer comp.Close()

	ctx, cancel := opts.context(cmd)
	defer cancel()
	if err := comp.Initialize(ctx); err != nil {
		return err
	}
	if _, ok := comp.Get(id); !ok {
		return fmt.Errorf("%s: %w", id, overlay.ErrNotFound)
	}

	fn(comp, id)
	comp.Drain()
	if persistErr != nil {
		return persistErr
	}

	o, _ := comp.Get(id)
	fmt.Fprintf(opts.out, "%s at %g,%g size %gx%g\n", o.ID, o.Position.X, o.Position.Y, o.Size.Width, o.Size.Height)
	return nil
}

func newCompositor(opts *options, extra ...compositor.Option) (*compositor.Compositor, error) {
	oc, err := opts.overlays()
	if err != nil {
		return nil, err
	}
	base := []compositor.Option{compositor.WithLogger(opts.logger())}
	return compositor.New(oc, append(base, extra...)...), nil
}

func parsePair(a, b string) (float64, float64, error) {
	x, errX := strconv.ParseFloat(a, 64)
	y, errY := strconv.ParseFloat(b, 64)
	if err := errors.Join(errX, errY); err != nil {
		return 0, 0, fmt.Errorf("expected two numbers: %w", err)
	}
	return x, y, nil
}
