package main

import (
	"context"
	"fmt"
	"io"
	"os/signal"
	"runtime"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/CloudNativeWorks/cnw-activation-sdk/cnwactivation"
)

// withApp builds the app for one command run and closes it afterwards.
func withApp(run func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close(ctx)
		return run(ctx, a, cmd, args)
	}
}

func addLicenseCommands(root *cobra.Command) {
	var licenseKey string
	activateCmd := &cobra.Command{
		Use:   "activate",
		Short: "Activate this machine",
		Example: `  cnw-activate activate --key ABCD-EFGH-IJKL-MNOP
  cnw-activate activate   # reuse the stored key`,
		Args: cobra.NoArgs,
		RunE: withApp(func(ctx context.Context, a *app, cmd *cobra.Command, _ []string) error {
			if licenseKey != "" {
				if err := a.manager.SetLicenseKey(ctx, licenseKey); err != nil {
					return err
				}
			}
			status, err := a.manager.ActivateLicense(ctx)
			fmt.Fprintf(cmd.OutOrStdout(), "Activation: %s\n", status)
			return err
		}),
	}
	activateCmd.Flags().StringVar(&licenseKey, "key", "", "license key to store before activating")

	deactivateCmd := &cobra.Command{
		Use:   "deactivate",
		Short: "Release this machine's activation",
		Args:  cobra.NoArgs,
		RunE: withApp(func(ctx context.Context, a *app, cmd *cobra.Command, _ []string) error {
			status, err := a.manager.DeactivateLicense(ctx)
			fmt.Fprintf(cmd.OutOrStdout(), "Deactivation: %s\n", status)
			return err
		}),
	}

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Verify the local activation and show the license",
		Args:  cobra.NoArgs,
		RunE: withApp(func(ctx context.Context, a *app, cmd *cobra.Command, _ []string) error {
			status, err := a.manager.IsLicenseGenuine(ctx)
			if err != nil {
				return err
			}
			printStatus(ctx, cmd.OutOrStdout(), a.manager, status)
			return nil
		}),
	}

	watchCmd := &cobra.Command{
		Use:   "watch",
		Short: "Keep the activation in sync with the server until interrupted",
		Args:  cobra.NoArgs,
		RunE: withApp(func(ctx context.Context, a *app, cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			a.serveMetrics(ctx)

			out := cmd.OutOrStdout()
			a.manager.SetLicenseCallback(func(s cnwactivation.Status) {
				fmt.Fprintf(out, "%s sync: %s\n", time.Now().Format(time.RFC3339), s)
			})
			status, err := a.manager.IsLicenseGenuine(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "License: %s\n", status)
			<-ctx.Done()
			return nil
		}),
	}

	metadataCmd := &cobra.Command{
		Use:   "metadata <key>",
		Short: "Print a license metadata value, falling back to user metadata",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
			value, err := a.manager.GetLicenseMetadata(ctx, args[0])
			if s, _ := cnwactivation.StatusOf(err); s == cnwactivation.StatusEMetadataKeyNotFound {
				value, err = a.manager.GetLicenseUserMetadata(ctx, args[0])
			}
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), value)
			return nil
		}),
	}

	offlineCmd := &cobra.Command{
		Use:   "offline <response-file>",
		Short: "Activate from an offline activation response file",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
			status, err := a.manager.ActivateLicenseOffline(ctx, args[0])
			fmt.Fprintf(cmd.OutOrStdout(), "Offline activation: %s\n", status)
			return err
		}),
	}

	root.AddCommand(activateCmd, deactivateCmd, statusCmd, watchCmd, metadataCmd, offlineCmd, newMeterCmd(), newReleaseCmd())
}

func newMeterCmd() *cobra.Command {
	meterCmd := &cobra.Command{
		Use:   "meter",
		Short: "Inspect and update activation meter attributes",
	}

	getCmd := &cobra.Command{
		Use:   "get <name>",
		Short: "Show allowed, total and activation uses of a meter attribute",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
			attr, err := a.manager.GetLicenseMeterAttribute(ctx, args[0])
			if err != nil {
				return err
			}
			uses, err := a.manager.GetActivationMeterAttributeUses(ctx, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: allowed=%d total=%d activation=%d\n", attr.Name, attr.AllowedUses, attr.TotalUses, uses)
			return nil
		}),
	}

	mutate := func(use, short string, apply func(ctx context.Context, m *cnwactivation.Manager, name string, n uint32) error) *cobra.Command {
		return &cobra.Command{
			Use:   use + " <name> [n]",
			Short: short,
			Args:  cobra.RangeArgs(1, 2),
			RunE: withApp(func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
				n := uint64(1)
				if len(args) == 2 {
					var err error
					if n, err = strconv.ParseUint(args[1], 10, 32); err != nil {
						return fmt.Errorf("invalid count %q: %w", args[1], err)
					}
				}
				if err := apply(ctx, a.manager, args[0], uint32(n)); err != nil {
					return err
				}
				uses, err := a.manager.GetActivationMeterAttributeUses(ctx, args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %d\n", args[0], uses)
				return nil
			}),
		}
	}

	meterCmd.AddCommand(
		getCmd,
		mutate("inc", "Increment a meter attribute", func(ctx context.Context, m *cnwactivation.Manager, name string, n uint32) error {
			return m.IncrementActivationMeterAttributeUses(ctx, name, n)
		}),
		mutate("dec", "Decrement a meter attribute", func(ctx context.Context, m *cnwactivation.Manager, name string, n uint32) error {
			return m.DecrementActivationMeterAttributeUses(ctx, name, n)
		}),
		&cobra.Command{
			Use:   "reset <name>",
			Short: "Reset a meter attribute to zero",
			Args:  cobra.ExactArgs(1),
			RunE: withApp(func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
				if err := a.manager.ResetActivationMeterAttributeUses(ctx, args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: 0\n", args[0])
				return nil
			}),
		},
	)
	return meterCmd
}

func newReleaseCmd() *cobra.Command {
	var platform string
	releaseCmd := &cobra.Command{
		Use:   "release",
		Short: "Query published releases",
	}
	releaseCmd.PersistentFlags().StringVar(&platform, "platform", runtime.GOOS+"-"+runtime.GOARCH, "release platform")

	checkCmd := &cobra.Command{
		Use:   "check <version>",
		Short: "Report whether a release newer than version is published",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
			published, err := a.manager.CheckForReleaseUpdate(ctx, platform, args[0])
			if err != nil {
				return err
			}
			if published {
				fmt.Fprintln(cmd.OutOrStdout(), "Update available")
			} else {
				fmt.Fprintln(cmd.OutOrStdout(), "Up to date")
			}
			return nil
		}),
	}

	latestCmd := &cobra.Command{
		Use:   "latest",
		Short: "Show the latest release and its files",
		Args:  cobra.NoArgs,
		RunE: withApp(func(ctx context.Context, a *app, cmd *cobra.Command, _ []string) error {
			release, err := a.manager.GetLatestRelease(ctx, platform)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Version: %s\n", release.Version)
			for _, f := range release.Files {
				fmt.Fprintf(out, "  %s %s\n", f.Name, f.URL)
			}
			return nil
		}),
	}

	releaseCmd.AddCommand(checkCmd, latestCmd)
	return releaseCmd
}

// printStatus writes the status and, for a verified license, its details.
func printStatus(ctx context.Context, out io.Writer, m *cnwactivation.Manager, status cnwactivation.Status) {
	fmt.Fprintf(out, "Status:  %s\n", status)
	if !status.IsSuccess() {
		return
	}
	if licenseType, err := m.GetLicenseType(ctx); err == nil {
		fmt.Fprintf(out, "Type:    %s\n", licenseType)
	}
	if expiry, err := m.GetLicenseExpiryDate(ctx); err == nil {
		if expiry.IsZero() {
			fmt.Fprintln(out, "Expires: never")
		} else {
			fmt.Fprintf(out, "Expires: %s\n", expiry.Format(time.RFC3339))
		}
	}
	name, _ := m.GetLicenseUserName(ctx)
	email, _ := m.GetLicenseUserEmail(ctx)
	company, _ := m.GetLicenseUserCompany(ctx)
	if name != "" || email != "" {
		fmt.Fprintf(out, "User:    %s <%s>\n", name, email)
	}
	if company != "" {
		fmt.Fprintf(out, "Company: %s\n", company)
	}
}
