/*
Copyright 2025.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	// Import all Kubernetes client auth plugins (e.g. Azure, GCP, OIDC, etc.)
	// so configmap sources work against any cluster.
	_ "k8s.io/client-go/plugin/pkg/client/auth"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/runtime"
	utilruntime "k8s.io/apimachinery/pkg/util/runtime"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/log/zap"
	"sigs.k8s.io/controller-runtime/pkg/metrics"

	"github.com/chazu/harpoon/internal/config"
	"github.com/chazu/harpoon/pkg/cueunit"
	"github.com/chazu/harpoon/pkg/launch"
	"github.com/chazu/harpoon/pkg/loader"
)

var (
	scheme   = runtime.NewScheme()
	setupLog = ctrl.Log.WithName("setup")
)

func init() {
	utilruntime.Must(corev1.AddToScheme(scheme))
}

// Flags holds the command-line configuration
type Flags struct {
	ConfigPath         string
	Components         []string
	Home               string
	AssetsDir          string
	Profile            string
	MetricsAddr        string
	PreloadConcurrency int
}

func newRootCommand() *cobra.Command {
	var flags Flags
	zapOpts := zap.Options{Development: true}

	cmd := &cobra.Command{
		Use:   "harpoon [flags] [-- args...]",
		Short: "Resolve, transform and launch units",
		Long: "harpoon loads named components from the configured sources, lets each one " +
			"configure the bootstrap, then runs the primary component's launch target.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PreRun: func(_ *cobra.Command, _ []string) {
			ctrl.SetLogger(zap.New(zap.UseFlagOptions(&zapOpts)))
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), flags, args, cmd.OutOrStdout())
		},
	}

	f := cmd.Flags()
	f.StringVar(&flags.ConfigPath, "config", "", "Path to the CUE configuration file.")
	f.StringArrayVar(&flags.Components, "component", nil,
		"Component to bootstrap; repeatable. Overrides the configured components.")
	f.StringVar(&flags.Home, "home", "", "Home directory handed to components.")
	f.StringVar(&flags.AssetsDir, "assets-dir", "", "Assets directory handed to components.")
	f.StringVar(&flags.Profile, "profile", "", "Profile name handed to components.")
	f.StringVar(&flags.MetricsAddr, "metrics-bind-address", "0",
		"The address the metrics endpoint binds to, or 0 to disable it.")
	f.IntVar(&flags.PreloadConcurrency, "preload-concurrency", 4, "Units preloaded in parallel.")

	goFlags := flag.NewFlagSet("zap", flag.ExitOnError)
	zapOpts.BindFlags(goFlags)
	f.AddGoFlagSet(goFlags)

	return cmd
}

func run(ctx context.Context, flags Flags, args []string, out io.Writer) error {
	cfg, err := config.Load(ctx, flags.ConfigPath)
	if err != nil {
		setupLog.Error(err, "unable to load configuration")
		return err
	}

	var reader client.Reader
	if cfg.NeedsCluster() {
		restCfg, err := ctrl.GetConfig()
		if err != nil {
			setupLog.Error(err, "unable to get kubeconfig")
			return err
		}
		c, err := client.New(restCfg, client.Options{Scheme: scheme})
		if err != nil {
			setupLog.Error(err, "unable to create client")
			return err
		}
		reader = c
	}

	l, err := cfg.NewLoader(ctx, config.BuildOptions{
		Reader:  reader,
		Definer: cueunit.NewDefiner(),
	})
	if err != nil {
		setupLog.Error(err, "unable to build loader")
		return err
	}
	defer func() {
		if err := l.Store().Close(); err != nil {
			setupLog.Error(err, "unable to close sources")
		}
	}()

	if flags.MetricsAddr != "" && flags.MetricsAddr != "0" {
		stop := serveMetrics(flags.MetricsAddr)
		defer stop()
	}

	if len(cfg.Preload) > 0 {
		concurrency := max(flags.PreloadConcurrency, 1)
		failed := 0
		for name, err := range l.Preload(ctx, cfg.Preload, concurrency) {
			if err != nil {
				failed++
				setupLog.Info("preload failed", "unit", name, "error", err.Error())
			}
		}
		setupLog.Info("preloaded units", "requested", len(cfg.Preload), "failed", failed)
	}

	components := cfg.Components
	if len(flags.Components) > 0 {
		components = flags.Components
	}

	registry := launch.NewRegistry()
	registry.SetDefaultComponent(launch.UnitFactory)
	registry.SetDefaultEntrypoint(printEntrypoint(out))

	res, err := launch.New(l, registry).Launch(ctx, launch.Options{
		Home:      flags.Home,
		AssetsDir: flags.AssetsDir,
		Profile:   flags.Profile,
		Args:      args,
	}, components)
	if err != nil {
		return err
	}
	setupLog.Info("launch complete", "primary", res.Primary, "target", res.Target, "components", res.Components)
	return nil
}

// printEntrypoint writes the launch target and its arguments as JSON
func printEntrypoint(out io.Writer) launch.Entrypoint {
	return func(_ context.Context, h loader.Handle, args []string) error {
		doc := struct {
			Target    string          `json:"target"`
			Arguments []string        `json:"arguments"`
			Unit      json.RawMessage `json:"unit,omitempty"`
		}{Target: h.UnitName(), Arguments: args}

		if m, ok := h.(*cueunit.Module); ok {
			data, err := m.JSON()
			if err != nil {
				return err
			}
			doc.Unit = data
		}

		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(doc)
	}
}

func serveMetrics(addr string) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		setupLog.Info("serving metrics", "address", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			setupLog.Error(err, "problem serving metrics")
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}

func main() {
	cmd := newRootCommand()
	if err := cmd.ExecuteContext(ctrl.SetupSignalHandler()); err != nil {
		if launch.IsFatal(err) {
			setupLog.Error(err, "bootstrap failed")
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
