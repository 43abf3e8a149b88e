package resources

import (
	"fmt"

	batchv1 "k8s.io/api/batch/v1"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/api/resource"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/utils/ptr"

	freqv1 "github.com/freqtrade-operator/freqtrade-operator/internal/apis/freqtrade/v1alpha1"
	"github.com/freqtrade-operator/freqtrade-operator/internal/botconfig"
)

// BacktestApp is the app label of backtest jobs
const BacktestApp = "freqtrade-backtest"

// BacktestTTL is how long a finished backtest job is kept
const BacktestTTL = int32(3600)

const resultsVolume = "results"

// BacktestJob runs freqtrade backtesting for one strategy of a bot, reusing
// the bot's configuration bundle. If name is empty the API server generates
// one from the bot name.
func BacktestJob(bot *freqv1.FreqtradeBot, name string, strategyName string, timerange string, owner metav1.OwnerReference) (*batchv1.Job, error) {
	var strategy *freqv1.Strategy
	for i := range bot.Spec.Strategies {
		if bot.Spec.Strategies[i].Name == strategyName {
			strategy = &bot.Spec.Strategies[i]
			break
		}
	}
	if strategy == nil {
		return nil, fmt.Errorf("bot %s has no strategy %s", bot.Name, strategyName)
	}

	labels := map[string]string{
		AppLabel: BacktestApp,
		BotLabel: bot.Name,
	}
	meta := objectMeta(name, bot.Namespace, labels, owner)
	if name == "" {
		meta.GenerateName = bot.Name + "-backtest-"
	}

	args := []string{
		"backtesting",
		"--config", botconfig.ConfigMountPath + "/" + botconfig.ConfigKey,
		"--strategy", strategy.ClassNameOrDefault(),
	}
	if timerange != "" {
		args = append(args, "--timerange", timerange)
	}
	args = append(args, "--strategy-path", botconfig.StrategiesMountPath)

	var initContainers []corev1.Container
	var volumes []corev1.Volume
	if strategy.GitRepository != nil {
		initContainers = append(initContainers, gitSyncContainer(strategy, true))
		if key := sshKeyVolume([]freqv1.Strategy{*strategy}); key != nil {
			volumes = append(volumes, *key)
		}
	}
	volumes = append(volumes,
		corev1.Volume{
			Name: ConfigVolume,
			VolumeSource: corev1.VolumeSource{
				ConfigMap: &corev1.ConfigMapVolumeSource{
					LocalObjectReference: corev1.LocalObjectReference{Name: ConfigMapName(bot.Name)},
				},
			},
		},
		corev1.Volume{
			Name:         StrategiesVolume,
			VolumeSource: corev1.VolumeSource{EmptyDir: &corev1.EmptyDirVolumeSource{}},
		},
		corev1.Volume{
			Name:         resultsVolume,
			VolumeSource: corev1.VolumeSource{EmptyDir: &corev1.EmptyDirVolumeSource{}},
		},
	)

	return &batchv1.Job{
		TypeMeta: metav1.TypeMeta{
			Kind:       "Job",
			APIVersion: "batch/v1",
		},
		ObjectMeta: meta,
		Spec: batchv1.JobSpec{
			TTLSecondsAfterFinished: ptr.To(BacktestTTL),
			Template: corev1.PodTemplateSpec{
				ObjectMeta: metav1.ObjectMeta{
					Labels: labels,
				},
				Spec: corev1.PodSpec{
					RestartPolicy:  corev1.RestartPolicyNever,
					InitContainers: initContainers,
					Containers: []corev1.Container{
						{
							Name:    "backtest",
							Image:   bot.Spec.ImageOrDefault(),
							Command: []string{"freqtrade"},
							Args:    args,
							VolumeMounts: []corev1.VolumeMount{
								{Name: ConfigVolume, MountPath: botconfig.ConfigMountPath},
								{Name: StrategiesVolume, MountPath: botconfig.StrategiesMountPath},
								{Name: resultsVolume, MountPath: botconfig.UserDataPath + "/backtest_results"},
							},
							Resources: corev1.ResourceRequirements{
								Requests: corev1.ResourceList{
									corev1.ResourceCPU:    resource.MustParse("500m"),
									corev1.ResourceMemory: resource.MustParse("1Gi"),
								},
								Limits: corev1.ResourceList{
									corev1.ResourceCPU:    resource.MustParse("2000m"),
									corev1.ResourceMemory: resource.MustParse("2Gi"),
								},
							},
						},
					},
					Volumes: volumes,
				},
			},
		},
	}, nil
}
