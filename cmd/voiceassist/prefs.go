package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/v0xg/voiceassist/internal/prefs"
)

func appsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "apps",
		Short: "Manage which apps the assistant follows",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List enabled apps and their modes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openPrefs()
			if err != nil {
				return err
			}
			defer store.Close()

			ctx := cmd.Context()
			apps, err := store.EnabledApps(ctx)
			if err != nil {
				return err
			}
			if len(apps) == 0 {
				fmt.Println("No apps enabled")
				return nil
			}
			for _, pkg := range apps {
				mode, err := store.Mode(ctx, pkg)
				if err != nil {
					return err
				}
				fmt.Printf("  %s  %s\n", pkg, mode)
			}
			return nil
		},
	}

	var mode string
	enable := &cobra.Command{
		Use:   "enable <package>",
		Short: "Enable the assistant for an app",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openPrefs()
			if err != nil {
				return err
			}
			defer store.Close()

			ctx := cmd.Context()
			if err := store.SetAppEnabled(ctx, args[0], true); err != nil {
				return err
			}
			if mode != "" {
				m, err := prefs.ParseMode(mode)
				if err != nil {
					return err
				}
				if err := store.SetMode(ctx, args[0], m); err != nil {
					return err
				}
			}
			fmt.Printf("✓ Enabled %s\n", args[0])
			return nil
		},
	}
	enable.Flags().StringVar(&mode, "mode", "", "Assistance mode: always_on, on_demand, disabled")

	disable := &cobra.Command{
		Use:   "disable <package>",
		Short: "Disable the assistant for an app",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openPrefs()
			if err != nil {
				return err
			}
			defer store.Close()

			if err := store.SetAppEnabled(cmd.Context(), args[0], false); err != nil {
				return err
			}
			fmt.Printf("✓ Disabled %s\n", args[0])
			return nil
		},
	}

	setMode := &cobra.Command{
		Use:   "mode <package> <always_on|on_demand|disabled>",
		Short: "Set an app's assistance mode",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := prefs.ParseMode(args[1])
			if err != nil {
				return err
			}
			store, err := openPrefs()
			if err != nil {
				return err
			}
			defer store.Close()

			if err := store.SetMode(cmd.Context(), args[0], m); err != nil {
				return err
			}
			fmt.Printf("✓ %s → %s\n", args[0], m)
			return nil
		},
	}

	cmd.AddCommand(list, enable, disable, setMode)
	return cmd
}

func settingsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Show or change global settings",
	}

	show := &cobra.Command{
		Use:   "show",
		Short: "Show global settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openPrefs()
			if err != nil {
				return err
			}
			defer store.Close()

			ctx := cmd.Context()
			floating, err := store.FloatingButtonEnabled(ctx)
			if err != nil {
				return err
			}
			autoRead, err := store.AutoReadEnabled(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("  floating_button  %t\n", floating)
			fmt.Printf("  auto_read        %t\n", autoRead)
			fmt.Printf("  database         %s\n", cfg.Prefs.DBPath)
			return nil
		},
	}

	set := &cobra.Command{
		Use:   "set <floating_button|auto_read> <true|false>",
		Short: "Change a global setting",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := strconv.ParseBool(args[1])
			if err != nil {
				return fmt.Errorf("invalid value %q: %w", args[1], err)
			}
			store, err := openPrefs()
			if err != nil {
				return err
			}
			defer store.Close()

			ctx := cmd.Context()
			switch args[0] {
			case "floating_button":
				err = store.SetFloatingButtonEnabled(ctx, v)
			case "auto_read":
				err = store.SetAutoReadEnabled(ctx, v)
			default:
				return fmt.Errorf("unknown setting %q", args[0])
			}
			if err != nil {
				return err
			}
			fmt.Printf("✓ %s = %t\n", args[0], v)
			return nil
		},
	}

	cmd.AddCommand(show, set)
	return cmd
}
