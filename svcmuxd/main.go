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

// Command svcmuxd starts a fixed set of local services, multiplexes their
// output, and stops them all again on SIGINT or SIGTERM.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"runtime/debug"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/net/netutil"
	"golang.org/x/sync/errgroup"

	"github.com/svcmux/svcmux"
	svclog "github.com/svcmux/svcmux/internal/log"
	"github.com/svcmux/svcmux/rpc"
)

const (
	defaultConfig = "svcmux.yaml"
	maxStatusConn = 16
	serverGrace   = 5 * time.Second
)

var (
	configPath string // actual config file used (if loaded)

	flagConfig      string
	flagEnvFile     string
	flagNoMessaging bool
	flagNoWeb       bool
	flagCoreOnly    bool
	flagSkip        []string
	flagStatusAddr  string
	flagVerbose     bool
)

func main() {
	f := rootCmd.Flags()
	f.StringVar(&flagConfig, "config", "", "Manifest to load - default is "+defaultConfig+" in the current directory, or the built in stack")
	f.StringVar(&flagEnvFile, "env-file", "", "env file holding credentials (overrides the manifest)")
	f.BoolVar(&flagNoMessaging, "no-messaging", false, "do not start the messaging service")
	f.BoolVar(&flagNoWeb, "no-web", false, "do not start the web service")
	f.BoolVar(&flagCoreOnly, "core-only", false, "start only required services")
	f.StringArrayVar(&flagSkip, "skip", nil, "service to leave out (repeatable)")
	f.StringVar(&flagStatusAddr, "status-addr", "", "address for the read-only status API, e.g. 127.0.0.1:8321")
	f.BoolVar(&flagVerbose, "verbose", false, "verbose logging")

	rootCmd.SilenceErrors = true
	rootCmd.AddCommand(versionCmd)

	if err := rootCmd.Execute(); err != nil {
		// Startup failures have been logged by the supervisor already.
		if !errors.Is(err, svcmux.ErrPreflight) && !errors.Is(err, svcmux.ErrSpawn) {
			slog.Error("svcmuxd failed", "error", err)
		}
		os.Exit(svcmux.ExitCode(err))
	}
}

var rootCmd = &cobra.Command{
	Use:          "svcmuxd",
	Short:        "Start a local service stack and supervise it",
	Args:         cobra.NoArgs,
	SilenceUsage: true,
	RunE:         doRun,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "print version information",
	Run: func(cmd *cobra.Command, args []string) {
		info, ok := debug.ReadBuildInfo()
		if !ok {
			fmt.Println("svcmuxd: version info not available")
			return
		}
		fmt.Printf("svcmuxd: %s\n", info.Main.Version)
		fmt.Printf("go:      %s\n", info.GoVersion)
		for _, s := range info.Settings {
			switch s.Key {
			case "vcs.revision":
				fmt.Printf("commit:  %s\n", s.Value)
			case "vcs.time":
				fmt.Printf("date:    %s\n", s.Value)
			}
		}
	},
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func loadConfig() (*svcmux.Config, error) {
	if flagConfig != "" {
		configPath = flagConfig
	} else if exists(defaultConfig) {
		configPath = defaultConfig
	}
	var c *svcmux.Config
	if configPath == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, err
		}
		c = svcmux.DefaultConfig(wd)
	} else {
		var err error
		if c, err = svcmux.LoadConfigFile(configPath); err != nil {
			return nil, fmt.Errorf("loading %s: %w", configPath, err)
		}
	}
	if flagEnvFile != "" {
		abs, err := filepath.Abs(flagEnvFile)
		if err != nil {
			return nil, err
		}
		c.EnvFile = abs
	}
	return c, nil
}

func selection() svcmux.Selection {
	sel := svcmux.Selection{
		Skip:         append([]string(nil), flagSkip...),
		RequiredOnly: flagCoreOnly,
	}
	if flagNoMessaging {
		sel.Skip = append(sel.Skip, "messaging")
	}
	if flagNoWeb {
		sel.Skip = append(sel.Skip, "web")
	}
	return sel
}

func doRun(cmd *cobra.Command, _ []string) error {
	sink := svcmux.NewSink(svcmux.NewLog(0), os.Stdout)
	defer sink.Flush(time.Second)
	logger := svclog.New(sink, flagVerbose)
	slog.SetDefault(logger)

	c, err := loadConfig()
	if err != nil {
		return err
	}
	ctx := svclog.WithService(cmd.Context(), svcmux.SystemService)
	if configPath != "" {
		slog.InfoContext(ctx, "Loaded manifest", "path", configPath)
	}

	env, err := svcmux.LoadEnvFile(c.EnvPath())
	if err != nil && !os.IsNotExist(err) {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())

	token := svcmux.NewShutdownSignal()
	bridge := svcmux.NewSignalBridge(token, logger)
	bridge.Start()
	defer bridge.Stop()

	specs := c.Specs(selection())
	s, err := svcmux.New(specs,
		svcmux.WithName(c.Name),
		svcmux.WithLogger(logger),
		svcmux.WithSink(sink),
		svcmux.WithMetrics(svcmux.NewMetrics(reg)),
		svcmux.WithPreflight(svcmux.NewChecklist(c, specs)),
		svcmux.WithEnv(env.Lookup),
		svcmux.WithPollInterval(c.PollInterval),
		svcmux.WithGraceTime(c.GraceTime),
		svcmux.WithProbeTimeout(c.ProbeTimeout),
		svcmux.WithShutdownSignal(token))
	if err != nil {
		return err
	}

	var ln net.Listener
	if flagStatusAddr != "" {
		if ln, err = net.Listen("tcp", flagStatusAddr); err != nil {
			return fmt.Errorf("status listener: %w", err)
		}
		ln = netutil.LimitListener(ln, maxStatusConn)
	}

	g, gctx := errgroup.WithContext(cmd.Context())
	if ln == nil {
		g.Go(func() error {
			return s.Run(gctx)
		})
		return g.Wait()
	}

	h := rpc.NewHandler(s, reg)
	srv := &http.Server{Handler: h, ReadHeaderTimeout: 10 * time.Second}
	g.Go(func() error {
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), serverGrace)
			defer cancel()
			h.Close()
			srv.Shutdown(sctx)
		}()
		return s.Run(gctx)
	})
	g.Go(func() error {
		slog.InfoContext(ctx, "Status API listening", "addr", ln.Addr().String())
		if err := srv.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	return g.Wait()
}
