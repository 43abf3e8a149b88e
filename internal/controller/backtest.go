package controller

import (
	"context"
	"fmt"

	batchv1 "k8s.io/api/batch/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/klog/v2"

	freqv1 "github.com/freqtrade-operator/freqtrade-operator/internal/apis/freqtrade/v1alpha1"
	"github.com/freqtrade-operator/freqtrade-operator/internal/resources"
)

// LaunchBacktest starts a backtest job for one strategy of a bot. The job
// reads the bot's config map and is owned by the bot. An empty name lets
// the API server pick one.
func LaunchBacktest(ctx context.Context, clientset kubernetes.Interface, bot *freqv1.FreqtradeBot, name string, strategy string, timerange string) (*batchv1.Job, error) {
	owner := resources.OwnerReference(bot, freqv1.FreqtradeBotKind)
	job, err := resources.BacktestJob(bot, name, strategy, timerange, owner)
	if err != nil {
		return nil, err
	}
	result, err := clientset.BatchV1().Jobs(bot.Namespace).Create(ctx, job, metav1.CreateOptions{})
	if err != nil {
		return nil, fmt.Errorf("could not create backtest job for bot %s: %w", bot.Name, err)
	}
	klog.Infof("Started backtest job %s for strategy %s of bot %s", result.Name, strategy, bot.Name)
	return result, nil
}
