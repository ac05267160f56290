package main

import (
	"context"
	"encoding/json"
	"os"
	"time"

	"codeberg.org/mutker/fand/internal/api"
	"codeberg.org/mutker/fand/internal/fan"
	"codeberg.org/mutker/fand/internal/render"
	"github.com/spf13/cobra"
)

const requestTimeout = 10 * time.Second

func newRootCmd() *cobra.Command {
	var addr string

	root := &cobra.Command{
		Use:           "fanctl",
		Short:         "Show and configure system fans managed by fand",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	defaultAddr := api.DefaultAddr
	if env := os.Getenv("FAND_LISTEN"); env != "" {
		defaultAddr = env
	}
	root.PersistentFlags().StringVar(&addr, "addr", defaultAddr, "Address of the fand API")

	client := func() *api.Client { return api.NewClient(addr) }

	root.AddCommand(
		newShowCmd(client),
		newFanSpeedCmd(client),
		newNoCmd(client),
		newFanCmd(client),
		newDumpCmd(client),
	)
	return root
}

func withTimeout(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithTimeout(ctx, requestTimeout)
}

func newShowCmd(client func() *api.Client) *cobra.Command {
	show := &cobra.Command{
		Use:   "show",
		Short: "Show operational state",
	}

	system := &cobra.Command{
		Use:   "system",
		Short: "Show system state",
	}
	system.AddCommand(&cobra.Command{
		Use:   "fan",
		Short: "Show fan information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := withTimeout(cmd)
			defer cancel()

			c := client()
			fans, err := c.Fans(ctx)
			if err != nil {
				return err
			}
			ov, err := c.Override(ctx)
			if err != nil {
				return err
			}
			return render.SystemFan(cmd.OutOrStdout(), fans, ov)
		},
	})

	show.AddCommand(system, &cobra.Command{
		Use:   "running-config",
		Short: "Show the fan configuration lines",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := withTimeout(cmd)
			defer cancel()

			ov, err := client().Override(ctx)
			if err != nil {
				return err
			}
			return render.RunningConfig(cmd.OutOrStdout(), ov)
		},
	})
	return show
}

func newFanSpeedCmd(client func() *api.Client) *cobra.Command {
	return &cobra.Command{
		Use:       "fan-speed <slow|normal|medium|fast|max>",
		Short:     "Force every fan to a speed tier",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"slow", "normal", "medium", "fast", "max"},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := withTimeout(cmd)
			defer cancel()

			_, err := client().SetOverride(ctx, args[0])
			return err
		},
	}
}

func newNoCmd(client func() *api.Client) *cobra.Command {
	no := &cobra.Command{
		Use:   "no",
		Short: "Negate a configuration command",
	}
	no.AddCommand(&cobra.Command{
		Use:   "fan-speed",
		Short: "Return fans to policy control",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := withTimeout(cmd)
			defer cancel()

			return client().ClearOverride(ctx)
		},
	})
	return no
}

func newFanCmd(client func() *api.Client) *cobra.Command {
	fanCmd := &cobra.Command{
		Use:   "fan",
		Short: "Simulation helpers",
	}

	var (
		name, subsystem, direction, speed, status string
		rpm                                       int
	)
	insert := &cobra.Command{
		Use:   "insert",
		Short: "Insert a fan row (daemon must run with --simulation)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rec, err := parseRecord(name, subsystem, direction, speed, status, rpm)
			if err != nil {
				return err
			}

			ctx, cancel := withTimeout(cmd)
			defer cancel()
			return client().InsertFan(ctx, rec)
		},
	}
	insert.Flags().StringVar(&name, "name", "", "Fan name")
	insert.Flags().StringVar(&subsystem, "subsystem", "sim", "Owning subsystem")
	insert.Flags().StringVar(&direction, "direction", "f2b", "Airflow direction (f2b, b2f)")
	insert.Flags().StringVar(&speed, "speed", "normal", "Speed tier")
	insert.Flags().StringVar(&status, "status", "ok", "Status (ok, fault)")
	insert.Flags().IntVar(&rpm, "rpm", 0, "Measured rpm")
	_ = insert.MarkFlagRequired("name")

	fanCmd.AddCommand(insert)
	return fanCmd
}

func parseRecord(name, subsystem, direction, speed, status string, rpm int) (fan.Record, error) {
	dir, err := fan.ParseDirection(direction)
	if err != nil {
		return fan.Record{}, err
	}
	sp, err := fan.ParseSpeed(speed)
	if err != nil {
		return fan.Record{}, err
	}
	st, err := fan.ParseStatus(status)
	if err != nil {
		return fan.Record{}, err
	}

	rec := fan.Record{
		Name:      name,
		Subsystem: subsystem,
		Direction: dir,
		Speed:     sp,
		Status:    st,
		RPM:       rpm,
	}
	if err := rec.Validate(); err != nil {
		return fan.Record{}, err
	}
	return rec, nil
}

func newDumpCmd(client func() *api.Client) *cobra.Command {
	return &cobra.Command{
		Use:   "dump",
		Short: "Dump the daemon's internal fan state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := withTimeout(cmd)
			defer cancel()

			rep, err := client().Dump(ctx)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(rep)
		},
	}
}
