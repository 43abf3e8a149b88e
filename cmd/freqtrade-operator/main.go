package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"k8s.io/klog/v2"
)

// version can be set during build with -ldflags
var version = "dev"

// signalContext returns a context that is cancelled when SIGINT or SIGTERM
// is received
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	c := make(chan os.Signal, 2)
	signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-c
		klog.Infof("Signal handler: received signal %s", sig)
		cancel()
	}()
	return ctx, cancel
}

func main() {
	ctx, cancel := signalContext()
	defer cancel()
	rootCmd := newRootCmd()
	rootCmd.Version = version
	err := rootCmd.ExecuteContext(ctx)
	klog.Flush()
	if err != nil {
		os.Exit(1)
	}
}
