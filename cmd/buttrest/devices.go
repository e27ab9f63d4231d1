package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/nerrad567/buttrest/internal/device"
	"github.com/nerrad567/buttrest/internal/gateway"
	"github.com/nerrad567/buttrest/internal/infrastructure/config"
	"github.com/nerrad567/buttrest/internal/infrastructure/logging"
)

func newDevicesCmd(load func() (*config.Config, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "devices",
		Short: "Connect, scan and print the devices the control server reports",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			gw, cleanup, err := connectGateway(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer cleanup()

			devices, err := gw.ListDevices()
			if err != nil {
				return fmt.Errorf("listing devices: %w", err)
			}
			return printDevices(cmd.OutOrStdout(), devices)
		},
	}
}

// actuateOptions are the flags of the actuate command.
type actuateOptions struct {
	device    uint32
	actuator  uint32
	intensity float64
	duration  time.Duration
}

func newActuateCmd(load func() (*config.Config, error)) *cobra.Command {
	var opts actuateOptions

	cmd := &cobra.Command{
		Use:     "actuate",
		Short:   "Drive one scalar actuator for a while, then stop the device",
		Example: "  buttrest actuate --device 0 --actuator 0 --intensity 0.5 --duration 10s",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if opts.intensity < 0 || opts.intensity > 1 {
				return fmt.Errorf("intensity %v out of range [0, 1]", opts.intensity)
			}
			if opts.duration <= 0 {
				return errors.New("duration must be positive")
			}
			cfg, err := load()
			if err != nil {
				return err
			}
			gw, cleanup, err := connectGateway(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer cleanup()

			return actuate(cmd.Context(), gw, opts)
		},
	}

	cmd.Flags().Uint32Var(&opts.device, "device", 0, "device index")
	cmd.Flags().Uint32Var(&opts.actuator, "actuator", 0, "scalar actuator index")
	cmd.Flags().Float64Var(&opts.intensity, "intensity", 0.5, "intensity in [0, 1]")
	cmd.Flags().DurationVar(&opts.duration, "duration", time.Second, "how long to run before stopping")
	return cmd
}

// actuateGateway is the part of the gateway used by actuate.
type actuateGateway interface {
	SetActuator(ctx context.Context, deviceIndex, actuatorIndex uint32, intensity float64) error
	StopDevice(ctx context.Context, deviceIndex uint32) error
}

// actuate runs the actuator for opts.duration or until ctx ends, then
// stops the device. The stop is sent even after ctx is cancelled.
func actuate(ctx context.Context, gw actuateGateway, opts actuateOptions) error {
	if err := gw.SetActuator(ctx, opts.device, opts.actuator, opts.intensity); err != nil {
		return fmt.Errorf("setting actuator: %w", err)
	}

	timer := time.NewTimer(opts.duration)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}

	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := gw.StopDevice(stopCtx, opts.device); err != nil {
		return fmt.Errorf("stopping device: %w", err)
	}
	return nil
}

// connectGateway builds a gateway with logging to stderr and connects it
// once, scanning for the configured duration. The cleanup closes it.
func connectGateway(ctx context.Context, cfg *config.Config) (*gateway.Gateway, func(), error) {
	logCfg := cfg.Logging
	logCfg.Output = "stderr"
	log := logging.New(logCfg, version)

	gw, err := newGateway(cfg, log, nil, nil)
	if err != nil {
		return nil, nil, err
	}
	if err := gw.Connect(ctx); err != nil {
		gw.Close() //nolint:errcheck // already failing
		return nil, nil, fmt.Errorf("connecting to %s: %w", cfg.Intiface.URL, err)
	}

	cleanup := func() {
		if err := gw.Close(); err != nil {
			log.Error("error closing gateway", "error", err)
		}
	}
	return gw, cleanup, nil
}

// printDevices writes one row per capability.
func printDevices(w io.Writer, devices []device.Device) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "DEVICE\tNAME\tKIND\tINDEX\tDESCRIPTION\tTYPE")
	for _, d := range devices {
		name := d.Label()
		if d.CapabilityCount() == 0 {
			fmt.Fprintf(tw, "%d\t%s\t-\t-\t-\t-\n", d.Index, name)
			continue
		}
		for _, a := range d.Actuators {
			fmt.Fprintf(tw, "%d\t%s\tactuator\t%d\t%s\t%s\n", d.Index, name, a.Index, a.Description, a.ActuatorType)
		}
		for _, a := range d.RotatoryActuators {
			fmt.Fprintf(tw, "%d\t%s\trotatory_actuator\t%d\t%s\t-\n", d.Index, name, a.Index, a.Description)
		}
		for _, a := range d.LinearActuators {
			fmt.Fprintf(tw, "%d\t%s\tlinear_actuator\t%d\t%s\t-\n", d.Index, name, a.Index, a.Description)
		}
		for _, s := range d.Sensors {
			fmt.Fprintf(tw, "%d\t%s\tsensor\t%d\t%s\t%s\n", d.Index, name, s.Index, s.Description, s.SensorType)
		}
	}
	if err := tw.Flush(); err != nil {
		return fmt.Errorf("writing device table: %w", err)
	}
	return nil
}
