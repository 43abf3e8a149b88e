package main

import (
	"fmt"

	"github.com/spf13/cobra"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	freqv1 "github.com/freqtrade-operator/freqtrade-operator/internal/apis/freqtrade/v1alpha1"
	"github.com/freqtrade-operator/freqtrade-operator/internal/controller"
	"github.com/freqtrade-operator/freqtrade-operator/internal/resources"
	"github.com/freqtrade-operator/freqtrade-operator/internal/secrets"
)

func newBacktestCmd(global *globalOptions) *cobra.Command {
	var name, strategy, timerange string
	cmd := &cobra.Command{
		Use:   "backtest BOT --strategy STRATEGY",
		Short: "Start a backtest job for a strategy of a bot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			clientset, dynamicClient, err := global.clients()
			if err != nil {
				return err
			}
			namespace := global.namespaceOrDefault()
			u, err := dynamicClient.Resource(freqv1.FreqtradeBotResource).Namespace(namespace).Get(cmd.Context(), args[0], metav1.GetOptions{})
			if err != nil {
				return fmt.Errorf("could not get bot %s/%s: %w", namespace, args[0], err)
			}
			bot, err := freqv1.BotFromUnstructured(u)
			if err != nil {
				return err
			}
			job, err := controller.LaunchBacktest(cmd.Context(), clientset, bot, name, strategy, timerange)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "job/%s created\n", job.Name)
			return nil
		},
	}
	cmd.Flags().StringVar(&strategy, "strategy", "", "Name of the strategy to backtest")
	cmd.Flags().StringVar(&timerange, "timerange", "", "Timerange in freqtrade format, e.g. 20240101-20240301")
	cmd.Flags().StringVar(&name, "name", "", "Name of the job, generated if empty")
	_ = cmd.MarkFlagRequired("strategy")
	return cmd
}

func newCredentialsCmd(global *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "credentials BOT",
		Short: "Print the REST API login of a bot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			clientset, _, err := global.clients()
			if err != nil {
				return err
			}
			user, password, err := secrets.APICredentials(cmd.Context(), clientset, global.namespaceOrDefault(), resources.APISecretName(args[0]))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "username: %s\npassword: %s\n", user, password)
			return nil
		},
	}
}
