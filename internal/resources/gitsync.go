package resources

import (
	"fmt"
	"path"

	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/api/resource"
	"k8s.io/utils/ptr"

	freqv1 "github.com/freqtrade-operator/freqtrade-operator/internal/apis/freqtrade/v1alpha1"
	"github.com/freqtrade-operator/freqtrade-operator/internal/botconfig"
)

// Settings of the git-sync sidecars
const (
	GitSyncImage     = "registry.k8s.io/git-sync/git-sync:v4.0.0"
	GitSyncPeriod    = 60
	StrategiesVolume = "strategies"
	SSHKeyVolume     = "git-ssh-key"
	sshKeyMountPath  = "/etc/git-secret"
	sshKeyFile       = sshKeyMountPath + "/ssh-privatekey"
)

// gitSyncContainer pulls the repository of one strategy into the shared
// strategies volume. oneTime makes it exit after the first sync, which is
// what init containers of batch jobs need.
func gitSyncContainer(strategy *freqv1.Strategy, oneTime bool) corev1.Container {
	repo := strategy.GitRepository
	args := []string{
		fmt.Sprintf("--repo=%s", repo.URL),
		fmt.Sprintf("--branch=%s", repo.BranchOrDefault()),
		fmt.Sprintf("--period=%ds", GitSyncPeriod),
		"--depth=1",
		fmt.Sprintf("--root=%s", path.Join(botconfig.StrategiesMountPath, strategy.Name)),
		"--link=current",
	}
	if oneTime {
		args = append(args, "--one-time")
	}
	container := corev1.Container{
		Name:  GitSyncContainerName(strategy.Name),
		Image: GitSyncImage,
		Args:  args,
		VolumeMounts: []corev1.VolumeMount{
			{
				Name:      StrategiesVolume,
				MountPath: botconfig.StrategiesMountPath,
			},
		},
		Resources: corev1.ResourceRequirements{
			Requests: corev1.ResourceList{
				corev1.ResourceCPU:    resource.MustParse("10m"),
				corev1.ResourceMemory: resource.MustParse("32Mi"),
			},
			Limits: corev1.ResourceList{
				corev1.ResourceCPU:    resource.MustParse("50m"),
				corev1.ResourceMemory: resource.MustParse("64Mi"),
			},
		},
	}
	if repo.SSHKeySecret != "" {
		container.Env = []corev1.EnvVar{{Name: "GIT_SYNC_SSH", Value: "true"}}
		container.VolumeMounts = append(container.VolumeMounts, corev1.VolumeMount{
			Name:      SSHKeyVolume,
			MountPath: sshKeyMountPath,
			ReadOnly:  true,
		})
		container.Args = append(container.Args, fmt.Sprintf("--ssh-key-file=%s", sshKeyFile))
	}
	return container
}

// sshKeyVolume returns the volume for the first strategy referencing an SSH
// key secret, or nil if none does. Only one key volume is mounted per pod.
func sshKeyVolume(strategies []freqv1.Strategy) *corev1.Volume {
	for i := range strategies {
		repo := strategies[i].GitRepository
		if repo == nil || repo.SSHKeySecret == "" {
			continue
		}
		return &corev1.Volume{
			Name: SSHKeyVolume,
			VolumeSource: corev1.VolumeSource{
				Secret: &corev1.SecretVolumeSource{
					SecretName:  repo.SSHKeySecret,
					DefaultMode: ptr.To(int32(0400)),
				},
			},
		}
	}
	return nil
}

// SSHKeyConflicts returns the strategies whose SSH key secret differs from
// the one that gets mounted. Their sidecars authenticate with the wrong key.
func SSHKeyConflicts(strategies []freqv1.Strategy) []string {
	var mounted string
	var conflicts []string
	for i := range strategies {
		repo := strategies[i].GitRepository
		if repo == nil || repo.SSHKeySecret == "" {
			continue
		}
		if mounted == "" {
			mounted = repo.SSHKeySecret
			continue
		}
		if repo.SSHKeySecret != mounted {
			conflicts = append(conflicts, strategies[i].Name)
		}
	}
	return conflicts
}

func hasGitStrategies(strategies []freqv1.Strategy) bool {
	for i := range strategies {
		if strategies[i].GitRepository != nil {
			return true
		}
	}
	return false
}
