package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newStreamCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stream",
		Short: "Start or stop the RTSP to HLS transcoder",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "start <rtsp-url>",
			Short: "Start transcoding an RTSP source",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				sc, err := opts.streams()
				if err != nil {
					return err
				}
				ctx, cancel := opts.context(cmd)
				defer cancel()

				playlist, err := sc.Start(ctx, args[0])
				if err != nil {
					return err
				}
				fmt.Fprintln(opts.out, "Stream started!")
				fmt.Fprintln(opts.out, playlist)
				return nil
			},
		},
		&cobra.Command{
			Use:   "stop",
			Short: "Stop the running transcoder",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				sc, err := opts.streams()
				if err != nil {
					return err
				}
				ctx, cancel := opts.context(cmd)
				defer cancel()

				if err := sc.Stop(ctx); err != nil {
					return err
				}
				fmt.Fprintln(opts.out, "Stream stopped")
				return nil
			},
		},
	)
	return cmd
}
