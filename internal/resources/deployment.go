package resources

import (
	"strconv"

	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/util/intstr"
	"k8s.io/utils/ptr"

	freqv1 "github.com/freqtrade-operator/freqtrade-operator/internal/apis/freqtrade/v1alpha1"
	"github.com/freqtrade-operator/freqtrade-operator/internal/botconfig"
	"github.com/freqtrade-operator/freqtrade-operator/internal/secrets"
)

// Names of the containers and volumes of a bot pod
const (
	FreqtradeContainer = "freqtrade"
	InitUserDirName    = "init-userdir"
	ConfigVolume       = "config"
	DataVolume         = "data"
)

// ConfigHashAnnotation carries a hash of the rendered configuration on the
// pod template, so that a configuration change rolls the pod
const ConfigHashAnnotation = "trading.freqtrade.io/config-hash"

// HealthPath is polled by the liveness and readiness probes
const HealthPath = "/api/v1/ping"

const (
	exchangeKeyKey    = "api-key"
	exchangeSecretKey = "api-secret"
	cnpgPasswordKey   = "password"
	podUser           = int64(1000)
)

// freqtradeArgs builds the command line of the trading engine
func freqtradeArgs(strategies []freqv1.Strategy) []string {
	args := []string{"trade", "--config", botconfig.ConfigMountPath + "/" + botconfig.ConfigKey}
	if hasGitStrategies(strategies) {
		args = append(args, "--strategy-path", botconfig.StrategiesMountPath)
	}
	if len(strategies) == 1 {
		args = append(args, "--strategy", strategies[0].ClassNameOrDefault())
	}
	return args
}

func secretEnv(name string, secret string, key string, optional bool) corev1.EnvVar {
	ref := &corev1.SecretKeySelector{
		LocalObjectReference: corev1.LocalObjectReference{Name: secret},
		Key:                  key,
	}
	if optional {
		ref.Optional = ptr.To(true)
	}
	return corev1.EnvVar{
		Name:      name,
		ValueFrom: &corev1.EnvVarSource{SecretKeyRef: ref},
	}
}

// freqtradeEnv maps the secrets onto the variables the config placeholders
// refer to
func freqtradeEnv(bot *freqv1.FreqtradeBot) []corev1.EnvVar {
	exchangeSecret := bot.ExchangeSecretName()
	env := []corev1.EnvVar{
		secretEnv("EXCHANGE_API_KEY", exchangeSecret, exchangeKeyKey, true),
		secretEnv("EXCHANGE_API_SECRET", exchangeSecret, exchangeSecretKey, true),
		{Name: "API_USERNAME", Value: secrets.APIUser},
		secretEnv("API_PASSWORD", APISecretName(bot.Name), secrets.PasswordKey, false),
		secretEnv("JWT_SECRET_KEY", APISecretName(bot.Name), secrets.JWTSecretKey, false),
	}
	if bot.Spec.IsPostgreSQL() {
		// CNPG publishes the application role password in <cluster>-app
		env = append(env, secretEnv("DB_PASSWORD", bot.Spec.Database.ClusterName()+"-app", cnpgPasswordKey, true))
	}
	return env
}

func httpProbe(port int32, initialDelay int32, period int32) *corev1.Probe {
	return &corev1.Probe{
		ProbeHandler: corev1.ProbeHandler{
			HTTPGet: &corev1.HTTPGetAction{
				Path: HealthPath,
				Port: intstr.FromInt32(port),
			},
		},
		InitialDelaySeconds: initialDelay,
		PeriodSeconds:       period,
	}
}

func freqtradeContainer(bot *freqv1.FreqtradeBot, port int32) corev1.Container {
	container := corev1.Container{
		Name:    FreqtradeContainer,
		Image:   bot.Spec.ImageOrDefault(),
		Command: []string{"freqtrade"},
		Args:    freqtradeArgs(bot.Spec.Strategies),
		Env:     freqtradeEnv(bot),
		Ports: []corev1.ContainerPort{
			{
				Name:          "api",
				ContainerPort: port,
				Protocol:      corev1.ProtocolTCP,
			},
		},
		VolumeMounts: []corev1.VolumeMount{
			{Name: ConfigVolume, MountPath: botconfig.ConfigMountPath},
			{Name: StrategiesVolume, MountPath: botconfig.StrategiesMountPath},
			{Name: DataVolume, MountPath: botconfig.UserDataPath},
		},
		LivenessProbe:  httpProbe(port, 30, 10),
		ReadinessProbe: httpProbe(port, 10, 5),
	}
	if bot.Spec.Resources != nil {
		container.Resources = *bot.Spec.Resources.DeepCopy()
	}
	return container
}

// initUserDir prepares the persistent user_data directory
func initUserDir(bot *freqv1.FreqtradeBot) corev1.Container {
	return corev1.Container{
		Name:    InitUserDirName,
		Image:   bot.Spec.ImageOrDefault(),
		Command: []string{"freqtrade"},
		Args:    []string{"create-userdir", "--userdir", botconfig.UserDataPath},
		VolumeMounts: []corev1.VolumeMount{
			{Name: DataVolume, MountPath: botconfig.UserDataPath},
		},
	}
}

func podVolumes(bot *freqv1.FreqtradeBot) []corev1.Volume {
	data := corev1.VolumeSource{EmptyDir: &corev1.EmptyDirVolumeSource{}}
	if bot.Spec.Storage != nil {
		data = corev1.VolumeSource{
			PersistentVolumeClaim: &corev1.PersistentVolumeClaimVolumeSource{ClaimName: ClaimName(bot.Name)},
		}
	}
	volumes := []corev1.Volume{
		{
			Name: ConfigVolume,
			VolumeSource: corev1.VolumeSource{
				ConfigMap: &corev1.ConfigMapVolumeSource{
					LocalObjectReference: corev1.LocalObjectReference{Name: ConfigMapName(bot.Name)},
				},
			},
		},
		{
			Name:         StrategiesVolume,
			VolumeSource: corev1.VolumeSource{EmptyDir: &corev1.EmptyDirVolumeSource{}},
		},
		{
			Name:         DataVolume,
			VolumeSource: data,
		},
	}
	if key := sshKeyVolume(bot.Spec.Strategies); key != nil {
		volumes = append(volumes, *key)
	}
	return volumes
}

// Deployment runs the trading engine of a bot, one git-sync sidecar per git
// backed strategy and, with persistent storage, an init container creating
// the user_data layout
func Deployment(bot *freqv1.FreqtradeBot, port int32, configHash string, owner metav1.OwnerReference) *appsv1.Deployment {
	labels := Labels(bot.Name)
	containers := []corev1.Container{freqtradeContainer(bot, port)}
	for i := range bot.Spec.Strategies {
		if bot.Spec.Strategies[i].GitRepository != nil {
			containers = append(containers, gitSyncContainer(&bot.Spec.Strategies[i], false))
		}
	}
	var initContainers []corev1.Container
	if bot.Spec.Storage != nil {
		initContainers = append(initContainers, initUserDir(bot))
	}

	return &appsv1.Deployment{
		TypeMeta: metav1.TypeMeta{
			Kind:       "Deployment",
			APIVersion: "apps/v1",
		},
		ObjectMeta: objectMeta(bot.Name, bot.Namespace, labels, owner),
		Spec: appsv1.DeploymentSpec{
			Replicas: ptr.To(int32(1)),
			Selector: &metav1.LabelSelector{
				MatchLabels: Labels(bot.Name),
			},
			// A read-write-once claim cannot be mounted by two pods at a time
			Strategy: appsv1.DeploymentStrategy{
				Type: appsv1.RecreateDeploymentStrategyType,
			},
			Template: corev1.PodTemplateSpec{
				ObjectMeta: metav1.ObjectMeta{
					Labels: Labels(bot.Name),
					Annotations: map[string]string{
						"prometheus.io/scrape": "true",
						"prometheus.io/port":   strconv.Itoa(int(port)),
						"prometheus.io/path":   "/api/v1/metrics",
						ConfigHashAnnotation:   configHash,
					},
				},
				Spec: corev1.PodSpec{
					InitContainers: initContainers,
					Containers:     containers,
					Volumes:        podVolumes(bot),
					SecurityContext: &corev1.PodSecurityContext{
						FSGroup:      ptr.To(podUser),
						RunAsNonRoot: ptr.To(true),
						RunAsUser:    ptr.To(podUser),
					},
				},
			},
		},
	}
}
