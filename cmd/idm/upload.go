package main

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"

	"github.com/spf13/cobra"

	"github.com/underwhelmingperformance/idm-sub000/internal/device"
	"github.com/underwhelmingperformance/idm-sub000/internal/protocol"
	"github.com/underwhelmingperformance/idm-sub000/internal/upload"
)

func newTextCmd(opts *rootOptions) *cobra.Command {
	var (
		mode       string
		speed      uint8
		color      string
		background string
		large      bool
	)

	cmd := &cobra.Command{
		Use:   "text <message>",
		Short: "Show a text message",
		Long: `Renders the message into glyph bitmaps and uploads it as one text transfer.

Examples:
  idm text "Hello" --address AA:BB:CC:DD:EE:FF
  idm text "Breaking news" --mode marquee --speed 80 --color 00ff00 --name IDM-`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			options := protocol.DefaultTextOptions()
			var err error
			if options.Mode, err = protocol.ParseTextMode(mode); err != nil {
				return err
			}
			if options.Color, err = protocol.ParseRGB(color); err != nil {
				return err
			}
			if background != "" {
				if options.Background, err = protocol.ParseRGB(background); err != nil {
					return err
				}
				options.BackgroundMode = 1
			}
			if large {
				options.GlyphSize = protocol.Glyph16x32
			}
			options.Speed = speed
			if err := options.Validate(); err != nil {
				return err
			}

			env, err := opts.prepare(cmd)
			if err != nil {
				return err
			}

			req := upload.TextRequest{Text: args[0], Options: options, Pacing: env.cfg.TextPacing()}
			return runUpload(cmd, opts, env, fmt.Sprintf("Sending text (%d characters)", len([]rune(args[0]))),
				func(ctx context.Context, u *upload.Uploader) (upload.Receipt, error) {
					return u.UploadText(ctx, req)
				})
		},
	}

	cmd.Flags().StringVar(&mode, "mode", protocol.DefaultTextOptions().Mode.String(), "Text mode (replace, marquee, reversed-marquee, vertical-rise, vertical-lower, blink, breathe, snowflake, laser)")
	cmd.Flags().Uint8Var(&speed, "speed", protocol.DefaultTextOptions().Speed, "Animation speed 1..100")
	cmd.Flags().StringVar(&color, "color", "ff0000", "Text colour as rrggbb")
	cmd.Flags().StringVar(&background, "background", "", "Background colour as rrggbb (off by default)")
	cmd.Flags().BoolVar(&large, "large", false, "Use 16x32 glyphs")
	return cmd
}

func newGifCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "gif <file>",
		Short: "Upload a GIF animation",
		Long: `Uploads a GIF file in 4 KiB chunks. The file is sent as-is; it must already match
the panel size when the configuration knows it.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, width, height, err := readMedia(args[0])
			if err != nil {
				return err
			}
			env, err := opts.prepare(cmd)
			if err != nil {
				return err
			}

			req := upload.GifRequest{Data: data, Width: width, Height: height, Pacing: env.cfg.BulkPacing()}
			return runUpload(cmd, opts, env, fmt.Sprintf("Uploading %s (%d bytes)", args[0], len(data)),
				func(ctx context.Context, u *upload.Uploader) (upload.Receipt, error) {
					return u.UploadGif(ctx, req)
				})
		},
	}
}

func newImageCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "image <file>",
		Short: "Upload a still image",
		Long: `Switches the panel to DIY mode and uploads a still image. In raw-rgb image mode the
file must hold exactly width*height*3 bytes; its dimensions are taken from the panel size.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := opts.prepare(cmd)
			if err != nil {
				return err
			}

			var (
				data          []byte
				width, height int
			)
			if env.profile.ImageMode == device.ImageRawRGB {
				if data, err = os.ReadFile(args[0]); err != nil {
					return err
				}
				width, height = env.profile.PanelWidth, env.profile.PanelHeight
			} else if data, width, height, err = readMedia(args[0]); err != nil {
				return err
			}

			req := upload.ImageRequest{Data: data, Width: width, Height: height, Pacing: env.cfg.BulkPacing()}
			return runUpload(cmd, opts, env, fmt.Sprintf("Uploading %s (%d bytes)", args[0], len(data)),
				func(ctx context.Context, u *upload.Uploader) (upload.Receipt, error) {
					return u.UploadImage(ctx, req)
				})
		},
	}
}

// readMedia loads an encoded image and reads its dimensions from the header.
func readMedia(path string) ([]byte, int, int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, 0, 0, err
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, 0, 0, fmt.Errorf("read %s: %w", path, err)
	}
	return data, cfg.Width, cfg.Height, nil
}

func runUpload(cmd *cobra.Command, opts *rootOptions, env *commandEnv, label string, send func(context.Context, *upload.Uploader) (upload.Receipt, error)) error {
	progress := NewProgressPrinter(cmd.ErrOrStderr(), label, "Connecting")
	progress.Start()
	defer progress.Stop()

	return opts.withSession(cmd, env, func(ctx context.Context, s *device.Session) error {
		progress.SetPhase("Sending")
		receipt, err := send(ctx, upload.NewUploader(s, env.logger))
		progress.Stop()
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if receipt.Cached {
			fmt.Fprintln(out, "Display already has this animation")
		}
		fmt.Fprintf(out, "Sent %d bytes in %d chunks (%d writes)\n", receipt.BytesWritten, receipt.LogicalChunks, receipt.TransportChunks)
		return nil
	})
}
