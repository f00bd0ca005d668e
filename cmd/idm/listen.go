package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/underwhelmingperformance/idm-sub000/internal/device"
	"github.com/underwhelmingperformance/idm-sub000/internal/notify"
)

var (
	ackColor     = color.New(color.FgGreen)
	errorColor   = color.New(color.FgRed, color.Bold)
	infoColor    = color.New(color.FgCyan)
	unknownColor = color.New(color.FgYellow)
)

func newListenCmd(opts *rootOptions) *cobra.Command {
	var count int

	cmd := &cobra.Command{
		Use:   "listen",
		Short: "Print decoded display notifications",
		Long: `Subscribes to the read/notify characteristic and prints every notification until
--count notifications arrived or Ctrl+C is pressed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if count < 0 {
				return fmt.Errorf("--count must not be negative")
			}
			env, err := opts.prepare(cmd)
			if err != nil {
				return err
			}

			var limit *int
			if count > 0 {
				limit = &count
			}

			return opts.withSession(cmd, env, func(ctx context.Context, s *device.Session) error {
				stream, err := s.NotificationStream(ctx, device.RoleReadNotifyCharacteristic, limit, nil)
				if err != nil {
					return err
				}
				defer stream.Close()

				out := cmd.OutOrStdout()
				for stream.Next(ctx) {
					printNotification(out, stream.Notification())
				}
				summary, err := stream.Summary()
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "Received %d notifications (%s)\n", summary.Received, summary.Reason)
				return nil
			})
		},
	}

	cmd.Flags().IntVar(&count, "count", 0, "Stop after this many notifications (0 = until Ctrl+C)")
	return cmd
}

func eventColor(e notify.Event) *color.Color {
	switch e.(type) {
	case notify.NextPackage, notify.Finished, notify.ScheduleAck:
		return ackColor
	case notify.Error:
		return errorColor
	case notify.LedInfo, notify.ScreenLightTimeout:
		return infoColor
	default:
		return unknownColor
	}
}

func printNotification(out io.Writer, n device.Notification) {
	raw := hex.EncodeToString(n.Raw)
	if n.Err != nil {
		fmt.Fprintf(out, "#%d %s  %s\n", n.Index, errorColor.Sprintf("undecodable: %v", n.Err), raw)
		return
	}
	fmt.Fprintf(out, "#%d %s  %s\n", n.Index, eventColor(n.Event).Sprint(n.Event.String()), raw)
}
