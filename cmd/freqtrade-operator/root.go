package main

import (
	goflag "flag"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"k8s.io/client-go/dynamic"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
	"k8s.io/klog/v2"
)

// globalOptions are shared by all subcommands
type globalOptions struct {
	kubeconfig string
	namespace  string
}

// envOr returns the value of the environment variable key, or fallback if
// it is not set
func envOr(key string, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}
	rootCmd := &cobra.Command{
		Use:   "freqtrade-operator",
		Short: "Run freqtrade trading bots on Kubernetes",
		Long: `freqtrade-operator reconciles FreqtradeBot and FreqtradeWebserver resources
into the deployments, services, config maps and secrets that run freqtrade
and FreqUI.`,
		SilenceUsage: true,
	}
	rootCmd.SetVersionTemplate(`{{printf "freqtrade-operator version %s\n" .Version}}`)

	// klog registers its flags on a go flag set
	klogFlags := goflag.NewFlagSet("klog", goflag.ExitOnError)
	klog.InitFlags(klogFlags)
	rootCmd.PersistentFlags().AddGoFlagSet(klogFlags)

	opts.installFlags(rootCmd.PersistentFlags())

	rootCmd.AddCommand(
		newRunCmd(opts),
		newRenderCmd(opts),
		newBacktestCmd(opts),
		newCredentialsCmd(opts),
		newVersionCmd(),
	)
	return rootCmd
}

// installFlags adds the flags of the global options on the FlagSet
func (o *globalOptions) installFlags(flags *pflag.FlagSet) {
	flags.StringVar(&o.kubeconfig, "kubeconfig", envOr("KUBECONFIG", ""),
		"The kubectl configuration file to use, in-cluster configuration if empty")
	flags.StringVarP(&o.namespace, "namespace", "n", envOr("WATCH_NAMESPACE", ""),
		"Namespace to work in, all namespaces if empty")
}

func (o *globalOptions) restConfig() (*rest.Config, error) {
	if o.kubeconfig != "" {
		klog.V(1).Infof("Trying stand-alone configuration with kubectl config file %s", o.kubeconfig)
	}
	config, err := clientcmd.BuildConfigFromFlags("", o.kubeconfig)
	if err != nil {
		return nil, fmt.Errorf("could not get cluster configuration: %w", err)
	}
	return config, nil
}

// clients creates the typed and the dynamic client
func (o *globalOptions) clients() (kubernetes.Interface, dynamic.Interface, error) {
	config, err := o.restConfig()
	if err != nil {
		return nil, nil, err
	}
	clientset, err := kubernetes.NewForConfig(config)
	if err != nil {
		return nil, nil, fmt.Errorf("could not create clientset: %w", err)
	}
	dynamicClient, err := dynamic.NewForConfig(config)
	if err != nil {
		return nil, nil, fmt.Errorf("could not create dynamic client: %w", err)
	}
	return clientset, dynamicClient, nil
}

// namespaceOrDefault is used by commands that address a single resource
func (o *globalOptions) namespaceOrDefault() string {
	if o.namespace == "" {
		return "default"
	}
	return o.namespace
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version number of freqtrade-operator",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "freqtrade-operator version %s\n", cmd.Root().Version)
		},
	}
}
