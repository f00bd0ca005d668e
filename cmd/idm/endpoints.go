package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/underwhelmingperformance/idm-sub000/internal/device"
	"github.com/underwhelmingperformance/idm-sub000/internal/notify"
)

func newEndpointsCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "endpoints",
		Short: "Show the negotiated GATT profile and endpoints",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			env, err := opts.prepare(cmd)
			if err != nil {
				return err
			}

			return opts.withSession(cmd, env, func(ctx context.Context, s *device.Session) error {
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Profile: %s\n", s.GattProfile())
				for pair := s.Endpoints().Oldest(); pair != nil; pair = pair.Next() {
					fmt.Fprintf(out, "%-28s %s\n", pair.Key.String()+":", pair.Value)
				}
				fmt.Fprintf(out, "Write limit: %d bytes\n", s.WriteLimit())

				value, ok, err := s.ReadOptional(ctx, device.RoleReadNotifyCharacteristic)
				if err != nil {
					return err
				}
				if ok {
					if event, err := notify.Decode(value); err == nil {
						fmt.Fprintf(out, "Device info: %s\n", event)
					}
				}
				return nil
			})
		},
	}
}
