// Copyright 2026 The Svcmux Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use file except in compliance with the License.
// You may obtain a copy of the license at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Command svcmux talks to the status API of a running svcmuxd.
//
// Subcommands are
//
//	services            - list all services, in startup order
//	status [<svc> ...]  - show status for the named services (or all)
//	info <svc>          - show more detailed service info
//	log [<svc>]         - print the log for the named service (or all)
//	follow              - print the combined log as it is written
//	top                 - full screen status display
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/svcmux/svcmux"
	"github.com/svcmux/svcmux/rest"
	"github.com/svcmux/svcmux/svcmux/util"
)

const requestTimeout = 5 * time.Second

var (
	flagAddr    string
	flagTimeout time.Duration
	client      *rest.Client
)

func main() {
	rootCmd.PersistentFlags().StringVarP(&flagAddr, "addr", "a", "http://127.0.0.1:8321", "svcmuxd status address")
	rootCmd.PersistentFlags().DurationVar(&flagTimeout, "timeout", requestTimeout, "request timeout")
	rootCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		client = rest.NewClient(nil, flagAddr)
	}
	rootCmd.SilenceErrors = true

	rootCmd.AddCommand(servicesCmd, statusCmd, infoCmd, logCmd, followCmd, topCmd)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:          "svcmux",
	Short:        "Query a running svcmuxd",
	SilenceUsage: true,
}

var servicesCmd = &cobra.Command{
	Use:   "services",
	Short: "list all services",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), flagTimeout)
		defer cancel()
		names, err := client.Services(ctx)
		if err != nil {
			return err
		}
		for _, name := range names {
			fmt.Println(name)
		}
		return nil
	},
}

func showStatus(s *rest.ServiceInfo) {
	d := util.Since(s, time.Now())
	fmt.Printf("%-12s %-20s %10s %s\n", s.Name,
		util.Status(s), util.FormatDuration(d), s.Status)
}

var statusCmd = &cobra.Command{
	Use:   "status [service...]",
	Short: "show status for the named services (or all)",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), flagTimeout)
		defer cancel()
		names := args
		if len(names) == 0 {
			var err error
			if names, err = client.Services(ctx); err != nil {
				return err
			}
		}
		infos := make([]*rest.ServiceInfo, 0, len(names))
		for _, name := range names {
			info, err := client.GetService(ctx, name)
			if err != nil {
				return fmt.Errorf("%s: %w", name, err)
			}
			infos = append(infos, info)
		}
		if len(args) == 0 {
			util.SortServices(infos)
		}
		for _, info := range infos {
			showStatus(info)
		}
		return nil
	},
}

var infoCmd = &cobra.Command{
	Use:   "info service",
	Short: "show more detailed service info",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), flagTimeout)
		defer cancel()
		s, err := client.GetService(ctx, args[0])
		if err != nil {
			return err
		}
		fmt.Printf("Name:      %s\n", s.Name)
		fmt.Printf("Desc:      %s\n", s.Description)
		fmt.Printf("Required:  %v\n", s.Required)
		fmt.Printf("Status:    %s\n", util.Status(s))
		fmt.Printf("Since:     %s\n", util.FormatDuration(util.Since(s, time.Now())))
		fmt.Printf("Detail:    %s\n", s.Status)
		if s.Pid != 0 {
			fmt.Printf("PID:       %d\n", s.Pid)
			fmt.Printf("Handle:    %s\n", s.Handle)
			fmt.Printf("Started:   %s\n", s.Started.Format(time.RFC3339))
		}
		if s.ExitCode >= 0 {
			fmt.Printf("Exit code: %d\n", s.ExitCode)
		}
		fmt.Printf("Lines:     %d forwarded, %d filtered\n", s.Forwarded, s.Filtered)
		return nil
	},
}

func printRecord(r svcmux.LogRecord) {
	fmt.Printf("%s [%s] %s\n", r.Time.Format("15:04:05.000"), r.Service, r.Text)
}

var logCmd = &cobra.Command{
	Use:   "log [service]",
	Short: "print the log for the named service (or all)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), flagTimeout)
		defer cancel()
		name := ""
		if len(args) == 1 {
			name = args[0]
		}
		li, err := client.GetLog(ctx, name)
		if err != nil {
			return err
		}
		for _, r := range li.Records {
			printRecord(r)
		}
		return nil
	},
}

var followCmd = &cobra.Command{
	Use:   "follow",
	Short: "print the combined log as it is written",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return client.StreamLog(cmd.Context(), 0, func(r svcmux.LogRecord) error {
			printRecord(r)
			return nil
		})
	},
}

var topCmd = &cobra.Command{
	Use:   "top",
	Short: "full screen status display",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return doTop(cmd.Context(), client, flagAddr)
	},
}
