package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/born-ml/born-optim/internal/backend/webgpu"
	"github.com/born-ml/born-optim/internal/config"
	"github.com/born-ml/born-optim/internal/device"
)

// openDevices returns a context with the host plus every configured WebGPU
// device that could be opened. Devices that fail to open are logged and
// skipped. The returned function releases the opened devices.
func openDevices(cfg config.DevicesConfig, logger *zap.Logger) (*device.Context, func(), error) {
	devices := device.NewContext()
	var opened []*webgpu.Backend
	release := func() {
		for _, b := range opened {
			b.Release()
		}
	}

	for _, idx := range cfg.WebGPU {
		b, err := webgpu.New(idx)
		if err != nil {
			logger.Warn("webgpu device unavailable", zap.Int("index", idx), zap.Error(err))
			continue
		}
		if err := devices.Register(b); err != nil {
			b.Release()
			release()
			return nil, nil, err
		}
		opened = append(opened, b)
		logger.Debug("opened device", zap.Stringer("location", b.Location()), zap.String("name", b.Name()))
	}
	return devices, release, nil
}

func newDevicesCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "devices",
		Short: "List usable compute devices",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			devices, release, err := openDevices(a.cfg.Devices, a.logger)
			if err != nil {
				return err
			}
			defer release()

			for _, loc := range devices.Locations() {
				fmt.Fprintln(cmd.OutOrStdout(), loc)
			}
			return nil
		},
	}
}
