package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/underwhelmingperformance/idm-sub000/internal/device"
	"github.com/underwhelmingperformance/idm-sub000/internal/protocol"
)

var clockStyles = map[string]protocol.ClockStyle{
	"default":   protocol.ClockDefault,
	"christmas": protocol.ClockChristmas,
	"racing":    protocol.ClockRacing,
	"inverted":  protocol.ClockInverted,
	"hourglass": protocol.ClockHourglass,
	"color":     protocol.ClockColor,
}

var countdownActions = map[string]protocol.CountdownAction{
	"disable": protocol.CountdownDisable,
	"start":   protocol.CountdownStart,
	"pause":   protocol.CountdownPause,
	"restart": protocol.CountdownRestart,
}

func parseOnOff(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "on", "true", "1":
		return true, nil
	case "off", "false", "0":
		return false, nil
	default:
		return false, fmt.Errorf("invalid state %q: use on or off", s)
	}
}

// commandRunner builds a frame from the arguments and sends it as a device command.
func commandRunner(opts *rootOptions, build func(args []string) ([]byte, error)) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		frame, err := build(args)
		if err != nil {
			return err
		}
		env, err := opts.prepare(cmd)
		if err != nil {
			return err
		}
		return opts.withSession(cmd, env, func(ctx context.Context, s *device.Session) error {
			if err := s.SendCommand(ctx, frame); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "OK")
			return nil
		})
	}
}

func newControlCmds(opts *rootOptions) []*cobra.Command {
	power := &cobra.Command{
		Use:   "power <on|off>",
		Short: "Turn the panel on or off",
		Args:  cobra.ExactArgs(1),
		RunE: commandRunner(opts, func(args []string) ([]byte, error) {
			on, err := parseOnOff(args[0])
			if err != nil {
				return nil, err
			}
			return protocol.PowerFrame(on), nil
		}),
	}

	brightness := &cobra.Command{
		Use:   "brightness <percent>",
		Short: "Set panel brightness",
		Args:  cobra.ExactArgs(1),
		RunE: commandRunner(opts, func(args []string) ([]byte, error) {
			pct, err := strconv.Atoi(args[0])
			if err != nil {
				return nil, fmt.Errorf("invalid brightness %q: %w", args[0], err)
			}
			return protocol.BrightnessFrame(pct)
		}),
	}

	flip := &cobra.Command{
		Use:   "flip <on|off>",
		Short: "Rotate the picture by 180 degrees",
		Args:  cobra.ExactArgs(1),
		RunE: commandRunner(opts, func(args []string) ([]byte, error) {
			on, err := parseOnOff(args[0])
			if err != nil {
				return nil, err
			}
			return protocol.FlipFrame(on), nil
		}),
	}

	freeze := &cobra.Command{
		Use:   "freeze",
		Short: "Toggle freezing the current frame",
		Args:  cobra.NoArgs,
		RunE: commandRunner(opts, func([]string) ([]byte, error) {
			return protocol.FreezeFrame(), nil
		}),
	}

	var at string
	syncTime := &cobra.Command{
		Use:   "sync-time",
		Short: "Set the panel clock (local time by default)",
		Args:  cobra.NoArgs,
		RunE: commandRunner(opts, func([]string) ([]byte, error) {
			t := time.Now()
			if at != "" {
				parsed, err := time.Parse(time.RFC3339, at)
				if err != nil {
					return nil, fmt.Errorf("invalid --at: %w", err)
				}
				t = parsed
			}
			return protocol.SetTimeFrame(t), nil
		}),
	}
	syncTime.Flags().StringVar(&at, "at", "", "Time to set, RFC3339")

	fill := &cobra.Command{
		Use:   "color <rrggbb>",
		Short: "Fill the panel with one colour",
		Args:  cobra.ExactArgs(1),
		RunE: commandRunner(opts, func(args []string) ([]byte, error) {
			c, err := protocol.ParseRGB(args[0])
			if err != nil {
				return nil, err
			}
			return protocol.FullscreenColorFrame(c), nil
		}),
	}

	var (
		clockStyle string
		clockDate  bool
		clock12h   bool
		clockColor string
	)
	clock := &cobra.Command{
		Use:   "clock",
		Short: "Show a built-in clock face",
		Args:  cobra.NoArgs,
		RunE: commandRunner(opts, func([]string) ([]byte, error) {
			style, ok := clockStyles[clockStyle]
			if !ok {
				return nil, fmt.Errorf("unknown clock style %q", clockStyle)
			}
			c, err := protocol.ParseRGB(clockColor)
			if err != nil {
				return nil, err
			}
			return protocol.ClockFrame(style, clockDate, !clock12h, c)
		}),
	}
	clock.Flags().StringVar(&clockStyle, "style", "default", "Clock face (default, christmas, racing, inverted, hourglass, color)")
	clock.Flags().BoolVar(&clockDate, "date", false, "Show the date")
	clock.Flags().BoolVar(&clock12h, "12h", false, "Use a 12-hour clock")
	clock.Flags().StringVar(&clockColor, "color", "ffffff", "Clock colour as rrggbb")

	var (
		cdMinutes int
		cdSeconds int
	)
	countdown := &cobra.Command{
		Use:   "countdown <start|pause|restart|disable>",
		Short: "Control the countdown timer",
		Args:  cobra.ExactArgs(1),
		RunE: commandRunner(opts, func(args []string) ([]byte, error) {
			action, ok := countdownActions[args[0]]
			if !ok {
				return nil, fmt.Errorf("unknown countdown action %q", args[0])
			}
			return protocol.CountdownFrame(action, cdMinutes, cdSeconds)
		}),
	}
	countdown.Flags().IntVar(&cdMinutes, "minutes", 0, "Minutes")
	countdown.Flags().IntVar(&cdSeconds, "seconds", 0, "Seconds")

	scoreboard := &cobra.Command{
		Use:   "scoreboard <left> <right>",
		Short: "Show a two-player scoreboard",
		Args:  cobra.ExactArgs(2),
		RunE: commandRunner(opts, func(args []string) ([]byte, error) {
			left, err := strconv.Atoi(args[0])
			if err != nil {
				return nil, fmt.Errorf("invalid score %q: %w", args[0], err)
			}
			right, err := strconv.Atoi(args[1])
			if err != nil {
				return nil, fmt.Errorf("invalid score %q: %w", args[1], err)
			}
			return protocol.ScoreboardFrame(left, right)
		}),
	}

	return []*cobra.Command{power, brightness, flip, freeze, syncTime, fill, clock, countdown, scoreboard}
}
