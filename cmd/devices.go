package cmd

import (
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"depthcap/internal/camera"
	dclog "depthcap/internal/log"
)

func newDevicesCmd(load configLoader) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "devices",
		Short: "検出されたカメラデバイスを一覧表示する",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load(cmd)
			if err != nil {
				return err
			}

			p, err := newPlatform(cfg, dclog.WithComponent("camera"))
			if err != nil {
				return err
			}

			devices, err := p.discovery.ScanDevices(cmd.Context())
			if err != nil {
				return fmt.Errorf("デバイスのスキャンに失敗: %w", err)
			}

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(devices)
			}
			return printDevices(cmd, devices, cfg.PreferredTypes())
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "JSON で出力する")

	return cmd
}

// printDevices はデバイスを表形式で出力し、選択されるデバイスに印を付ける
func printDevices(cmd *cobra.Command, devices []camera.DeviceDescriptor, preferred []camera.DeviceType) error {
	out := cmd.OutOrStdout()
	if len(devices) == 0 {
		_, err := fmt.Fprintln(out, "カメラデバイスが見つかりません")
		return err
	}

	picked, ok := camera.Pick(devices, preferred)

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "\tDEVICE\tNAME\tTYPE\tPOSITION\tMEDIA")
	for _, d := range devices {
		mark := ""
		if ok && d.ID == picked.ID {
			mark = "*"
		}
		var media []string
		if d.SupportsVideo {
			media = append(media, string(camera.MediaVideo))
		}
		if d.SupportsDepth {
			media = append(media, string(camera.MediaDepth))
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n", mark, d.Device, d.Name, d.Type, d.Position, strings.Join(media, ","))
	}
	return w.Flush()
}
