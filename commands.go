package main

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/borgmon/alarm-clock/pkg/api"
	"github.com/borgmon/alarm-clock/pkg/config"
	"github.com/spf13/cobra"
)

type rootOptions struct {
	configPath string
	listen     string
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:          "alarm-clock",
		Short:        "Weekly alarm clock daemon",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", config.DefaultPath(), "path to the config file")
	root.PersistentFlags().StringVar(&opts.listen, "listen", "", "command API address, overrides the config")

	root.AddCommand(
		newRunCommand(opts),
		newListCommand(opts),
		newExportCommand(opts),
		newImportCommand(opts),
		newRingControlCommand(opts, "stop", "Stop the ringing alarm"),
		newRingControlCommand(opts, "snooze", "Snooze the ringing alarm"),
		newAutostartCommand(opts),
	)
	return root
}

func (o *rootOptions) load() (*config.Config, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, err
	}
	if o.listen != "" {
		cfg.Listen = o.listen
	}
	return cfg, nil
}

func (o *rootOptions) client() (*apiClient, error) {
	cfg, err := o.load()
	if err != nil {
		return nil, err
	}
	if cfg.Listen == "" {
		return nil, errors.New("the command API is disabled in the config")
	}
	return newAPIClient(cfg.Listen), nil
}

func newRunCommand(opts *rootOptions) *cobra.Command {
	var boot bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the alarm clock in the system tray",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			ac := newAlarmClock(cfg, opts.configPath)
			if err := ac.initialize(ctx, boot); err != nil {
				return err
			}
			return ac.run(ctx)
		},
	}
	cmd.Flags().BoolVar(&boot, "boot", false, "started by the session at login")
	return cmd
}

func newListCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List alarms",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := opts.client()
			if err != nil {
				return err
			}
			records, err := client.listAlarms(cmd.Context())
			if err != nil {
				return err
			}
			return printAlarms(cmd.OutOrStdout(), records)
		},
	}
}

func printAlarms(w io.Writer, records []api.AlarmRecord) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "UID\tTIME\tDAYS\tREPEAT\tACTIVE\tTITLE")
	for _, rec := range records {
		days := "-"
		if alarm, err := rec.ToAlarm(); err == nil && len(alarm.Days) > 0 {
			names := make([]string, 0, len(alarm.Days))
			for _, d := range alarm.Days {
				names = append(names, d.String()[:3])
			}
			days = strings.Join(names, ",")
		}
		fmt.Fprintf(tw, "%s\t%02d:%02d\t%s\t%v\t%v\t%s\n",
			rec.UID, rec.Hour, rec.Minutes, days, rec.Repeating, rec.Active, rec.Title)
	}
	return tw.Flush()
}

func newExportCommand(opts *rootOptions) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export alarms as iCalendar",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := opts.client()
			if err != nil {
				return err
			}
			ics, err := client.exportCalendar(cmd.Context())
			if err != nil {
				return err
			}
			if output == "" || output == "-" {
				_, err = cmd.OutOrStdout().Write(ics)
				return err
			}
			if err := os.WriteFile(output, ics, 0o644); err != nil {
				return fmt.Errorf("failed to write %s: %w", output, err)
			}
			log.Printf("Exported alarms to %s", output)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "write to file instead of stdout")
	return cmd
}

func newImportCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file|url>",
		Short: "Import alarms from an iCalendar file or URL",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := opts.client()
			if err != nil {
				return err
			}
			result, err := client.importCalendar(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Imported %d of %d alarms\n", result.Imported, result.Found)
			if result.Error != "" {
				return errors.New(result.Error)
			}
			return nil
		},
	}
}

func newRingControlCommand(opts *rootOptions, action, short string) *cobra.Command {
	var uid string

	cmd := &cobra.Command{
		Use:   action,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := opts.client()
			if err != nil {
				return err
			}
			return client.ringControl(cmd.Context(), action, uid)
		},
	}
	cmd.Flags().StringVar(&uid, "uid", "", "only act if this alarm is ringing")
	return cmd
}

func newAutostartCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "autostart",
		Short: "Start the alarm clock at login",
	}
	for _, enable := range []bool{true, false} {
		use := "disable"
		if enable {
			use = "enable"
		}
		cmd.AddCommand(&cobra.Command{
			Use:  use,
			Args: cobra.NoArgs,
			RunE: func(_ *cobra.Command, _ []string) error {
				cfg, err := config.Load(opts.configPath)
				if err != nil {
					return err
				}
				cfg.AutoStart = enable
				if err := config.Save(opts.configPath, cfg); err != nil {
					return err
				}
				return setupAutostart(enable, opts.configPath)
			},
		})
	}
	return cmd
}
