package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"
	"k8s.io/klog/v2"

	freqv1 "github.com/freqtrade-operator/freqtrade-operator/internal/apis/freqtrade/v1alpha1"
	"github.com/freqtrade-operator/freqtrade-operator/internal/controller"
	"github.com/freqtrade-operator/freqtrade-operator/internal/metrics"
	"github.com/freqtrade-operator/freqtrade-operator/internal/operator"
)

type runOptions struct {
	metricsAddr string
	settings    operator.Settings
}

func newRunCmd(global *globalOptions) *cobra.Command {
	opts := &runOptions{settings: operator.DefaultSettings()}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the operator",
		Long: `Watches FreqtradeBot and FreqtradeWebserver resources and reconciles them.
Metrics and the liveness probe are served on --metrics-addr.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.settings.Namespace = global.namespace
			return runOperator(cmd.Context(), global, opts)
		},
	}
	opts.installFlags(cmd.Flags())
	return cmd
}

// installFlags adds the flags of the run command on the FlagSet
func (o *runOptions) installFlags(flags *pflag.FlagSet) {
	workers, err := strconv.Atoi(envOr("WORKERS", ""))
	if err != nil {
		workers = o.settings.Workers
	}
	flags.StringVar(&o.metricsAddr, "metrics-addr", envOr("METRICS_ADDR", ":8080"),
		"Address to serve /metrics and "+operator.HealthPath+" on")
	flags.IntVar(&o.settings.Workers, "workers", workers, "Number of workers per resource")
	flags.DurationVar(&o.settings.ResyncPeriod, "resync-period", o.settings.ResyncPeriod,
		"How often all resources are handed to the workers again")
	flags.StringVar(&o.settings.Finalizer, "finalizer", o.settings.Finalizer,
		"Finalizer held on resources until their deletion is handled")
}

func newMux(recorder *metrics.Recorder) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", recorder.Handler())
	mux.Handle(operator.HealthPath, operator.ProbeHandler())
	return mux
}

func runOperator(ctx context.Context, global *globalOptions, opts *runOptions) error {
	klog.Infof("Starting up freqtrade-operator %s", version)
	if opts.settings.Namespace != "" {
		klog.Infof("Watching namespace %s", opts.settings.Namespace)
	}
	clientset, dynamicClient, err := global.clients()
	if err != nil {
		return err
	}
	recorder := metrics.NewRecorder()

	bots, err := operator.NewDispatcher(dynamicClient,
		freqv1.FreqtradeBotResource,
		freqv1.FreqtradeBotKind,
		controller.NewBotHandler(clientset, dynamicClient),
		recorder,
		opts.settings)
	if err != nil {
		return err
	}
	webservers, err := operator.NewDispatcher(dynamicClient,
		freqv1.FreqtradeWebserverResource,
		freqv1.FreqtradeWebserverKind,
		controller.NewWebserverHandler(clientset),
		recorder,
		opts.settings)
	if err != nil {
		return err
	}

	server := &http.Server{
		Addr:              opts.metricsAddr,
		Handler:           newMux(recorder),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return bots.Run(ctx)
	})
	g.Go(func() error {
		return webservers.Run(ctx)
	})
	g.Go(func() error {
		klog.Infof("Serving metrics on %s", opts.metricsAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("metrics server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	err = g.Wait()
	klog.Info("Shut down")
	return err
}
