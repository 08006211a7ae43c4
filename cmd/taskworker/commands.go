/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/acronis/go-callkit/internal/libinfo"
	"github.com/acronis/go-callkit/log"
	"github.com/acronis/go-callkit/service"
	"github.com/acronis/go-callkit/worker"
	"github.com/acronis/go-callkit/worker/httpchannel"
)

type serveFlags struct {
	configPath  string
	httpAddr    string
	metricsAddr string
}

func newRootCommand() *cobra.Command {
	var configPath string
	rootCmd := &cobra.Command{
		Use:          "taskworker",
		Short:        "Demo task worker",
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to YAML or JSON config file")
	rootCmd.AddCommand(newServeCommand(&configPath), newDispatchCommand(&configPath), newVersionCommand())
	return rootCmd
}

func newServeCommand(configPath *string) *cobra.Command {
	flags := serveFlags{}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve echo, sha256 and sleep tasks over stdio or HTTP",
		Long: `Serves tasks over stdio by default: TASK messages are read from stdin as newline-delimited JSON,
RESULT and ERROR messages are written to stdout. With --http-addr tasks are accepted by POST /tasks.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			flags.configPath = *configPath
			return runServe(cmd.Context(), flags, os.Stdin, os.Stdout)
		},
	}
	cmd.Flags().StringVar(&flags.httpAddr, "http-addr", "", "serve tasks over HTTP on this address instead of stdio")
	cmd.Flags().StringVar(&flags.metricsAddr, "metrics-addr", "", "expose Prometheus metrics on this address (stdio mode)")
	return cmd
}

func runServe(ctx context.Context, flags serveFlags, stdin io.Reader, stdout io.Writer) error {
	cfg, err := loadAppConfig(flags.configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if flags.httpAddr == "" && cfg.Log.Output == log.OutputStdout {
		// stdout carries the protocol in stdio mode
		cfg.Log.Output = log.OutputStderr
	}
	logger, closeLogger := log.NewLogger(cfg.Log)
	defer closeLogger()

	metrics := worker.NewPrometheusMetrics()
	workerOpts := cfg.Worker.Opts()
	workerOpts.Logger = logger
	workerOpts.MetricsCollector = metrics
	w, err := worker.New(workerOpts)
	if err != nil {
		return err
	}
	if err = registerHandlers(w, cfg); err != nil {
		return err
	}

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var unit service.Unit
	if flags.httpAddr != "" {
		handler := httpchannel.NewHandler(w, httpchannel.HandlerOpts{ExposeMetrics: true, Logger: logger})
		unit = &metricsUnit{
			Unit:    service.NewHTTPUnit(flags.httpAddr, handler, service.HTTPUnitOpts{ReadHeaderTimeout: time.Second * 10, Logger: logger}),
			metrics: metrics,
		}
	} else {
		workerUnit := service.NewWorkerUnit(w, worker.NewStreamChannel(stdin, stdout), service.WorkerUnitOpts{
			GracefulStopTimeout: time.Duration(cfg.Worker.SendTimeout),
			MetricsRegisterer:   &metricsUnit{metrics: metrics},
		})
		go func() {
			<-workerUnit.Done()
			cancel()
		}()
		unit = workerUnit
		if flags.metricsAddr != "" {
			unit = service.NewCompositeUnit(workerUnit,
				service.NewHTTPUnit(flags.metricsAddr, promhttp.Handler(), service.HTTPUnitOpts{Logger: logger}))
		}
	}

	logger.Info("task worker is starting", log.Bool("http", flags.httpAddr != ""))
	return service.New(logger, unit).Run(ctx)
}

// metricsUnit adds registration of worker metrics to a unit.
type metricsUnit struct {
	service.Unit
	metrics *worker.PrometheusMetrics
}

func (u *metricsUnit) MustRegisterMetrics() { u.metrics.MustRegister() }
func (u *metricsUnit) UnregisterMetrics()   { u.metrics.Unregister() }

func newDispatchCommand(configPath *string) *cobra.Command {
	var url string
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "dispatch TASK_TYPE [JSON_DATA]",
		Short: "Dispatch a task to a worker served over HTTP and print its result",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var data json.RawMessage
			if len(args) == 2 {
				data = json.RawMessage(args[1])
				if !json.Valid(data) {
					return fmt.Errorf("task data is not a valid JSON: %s", args[1])
				}
			}
			return runDispatch(cmd.Context(), *configPath, url, timeout, args[0], data, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&url, "url", "http://127.0.0.1:8080", "base URL of the worker")
	cmd.Flags().DurationVar(&timeout, "timeout", time.Minute, "time to wait for the task result")
	return cmd
}

func runDispatch(
	ctx context.Context, configPath, url string, timeout time.Duration, taskType string, data json.RawMessage, out io.Writer,
) error {
	cfg, err := loadAppConfig(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	cfg.Log.Output = log.OutputStderr
	logger, closeLogger := log.NewLogger(cfg.Log)
	defer closeLogger()

	client := httpchannel.NewClient(url, httpchannel.ClientOpts{RetryPolicy: cfg.Retry.NewPolicy(), Logger: logger})
	d := worker.NewDispatcher(client, worker.DispatcherOpts{Logger: logger})
	defer func() { _ = d.Close() }()

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	res, err := d.Dispatch(ctx, taskType, data)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, string(res))
	return err
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the library version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := fmt.Fprintln(cmd.OutOrStdout(), libinfo.UserAgent())
			return err
		},
	}
}
