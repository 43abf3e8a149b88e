package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"sigs.k8s.io/yaml"

	freqv1 "github.com/freqtrade-operator/freqtrade-operator/internal/apis/freqtrade/v1alpha1"
	"github.com/freqtrade-operator/freqtrade-operator/internal/botconfig"
	"github.com/freqtrade-operator/freqtrade-operator/internal/resources"
)

func newRenderCmd(global *globalOptions) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "render -f BOT.yaml",
		Short: "Print the objects the operator would create for a bot",
		Long: `Reads a FreqtradeBot manifest and prints the objects the operator creates
for it, without talking to the cluster. The API secret is left out since its
content is generated at creation. PostgreSQL bots are rendered as if
CloudNativePG is installed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(file)
			if err != nil {
				return err
			}
			bot := &freqv1.FreqtradeBot{}
			if err := yaml.Unmarshal(data, bot); err != nil {
				return fmt.Errorf("could not parse %s: %w", file, err)
			}
			if bot.Namespace == "" {
				bot.Namespace = global.namespaceOrDefault()
			}
			return renderBot(cmd.OutOrStdout(), bot)
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "FreqtradeBot manifest")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

// renderBot writes the graph of a bot as a multi document YAML stream
func renderBot(w io.Writer, bot *freqv1.FreqtradeBot) error {
	if bot.Name == "" {
		return fmt.Errorf("bot has no name")
	}
	owner := resources.OwnerReference(bot, freqv1.FreqtradeBotKind)
	port := resources.AllocatePort(bot.Name)
	dbURL := botconfig.DatabaseURL(bot.Name, bot.Namespace, &bot.Spec)
	graph, err := resources.Compose(bot, nil, port, dbURL, owner)
	if err != nil {
		return err
	}
	for _, obj := range graph.Objects() {
		data, err := yaml.Marshal(obj)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "---\n%s", data); err != nil {
			return err
		}
	}
	return nil
}
