package resources

import (
	"fmt"

	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/api/resource"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/util/intstr"
	"k8s.io/utils/ptr"

	freqv1 "github.com/freqtrade-operator/freqtrade-operator/internal/apis/freqtrade/v1alpha1"
	"github.com/freqtrade-operator/freqtrade-operator/internal/botconfig"
	"github.com/freqtrade-operator/freqtrade-operator/internal/secrets"
)

// APISecret holds the generated REST API password and JWT signing secret
func APISecret(bot *freqv1.FreqtradeBot, creds secrets.Credentials, owner metav1.OwnerReference) *corev1.Secret {
	return &corev1.Secret{
		TypeMeta: metav1.TypeMeta{
			Kind:       "Secret",
			APIVersion: "v1",
		},
		ObjectMeta: objectMeta(APISecretName(bot.Name), bot.Namespace, Labels(bot.Name), owner),
		Type:       corev1.SecretTypeOpaque,
		StringData: map[string]string{
			secrets.PasswordKey:  creds.Password,
			secrets.JWTSecretKey: creds.JWTSecret,
		},
	}
}

// ConfigMap holds the serialized freqtrade configuration
func ConfigMap(bot *freqv1.FreqtradeBot, config []byte, owner metav1.OwnerReference) *corev1.ConfigMap {
	return &corev1.ConfigMap{
		TypeMeta: metav1.TypeMeta{
			Kind:       "ConfigMap",
			APIVersion: "v1",
		},
		ObjectMeta: objectMeta(ConfigMapName(bot.Name), bot.Namespace, Labels(bot.Name), owner),
		Data: map[string]string{
			botconfig.ConfigKey: string(config),
		},
	}
}

// DataClaim requests the persistent user_data volume. It returns nil if
// the bot does not ask for storage.
func DataClaim(bot *freqv1.FreqtradeBot, owner metav1.OwnerReference) (*corev1.PersistentVolumeClaim, error) {
	storage := bot.Spec.Storage
	if storage == nil {
		return nil, nil
	}
	size, err := resource.ParseQuantity(storage.SizeOrDefault())
	if err != nil {
		return nil, fmt.Errorf("invalid storage size %q: %w", storage.Size, err)
	}
	claim := &corev1.PersistentVolumeClaim{
		TypeMeta: metav1.TypeMeta{
			Kind:       "PersistentVolumeClaim",
			APIVersion: "v1",
		},
		ObjectMeta: objectMeta(ClaimName(bot.Name), bot.Namespace, Labels(bot.Name), owner),
		Spec: corev1.PersistentVolumeClaimSpec{
			AccessModes: []corev1.PersistentVolumeAccessMode{corev1.ReadWriteOnce},
			Resources: corev1.VolumeResourceRequirements{
				Requests: corev1.ResourceList{
					corev1.ResourceStorage: size,
				},
			},
		},
	}
	if storage.StorageClassName != "" {
		claim.Spec.StorageClassName = ptr.To(storage.StorageClassName)
	}
	return claim, nil
}

// Service exposes the REST API of a bot inside the cluster
func Service(bot *freqv1.FreqtradeBot, port int32, owner metav1.OwnerReference) *corev1.Service {
	return &corev1.Service{
		TypeMeta: metav1.TypeMeta{
			Kind:       "Service",
			APIVersion: "v1",
		},
		ObjectMeta: objectMeta(bot.Name, bot.Namespace, Labels(bot.Name), owner),
		Spec: corev1.ServiceSpec{
			Type:     corev1.ServiceTypeClusterIP,
			Selector: Labels(bot.Name),
			Ports: []corev1.ServicePort{
				{
					Name:       "api",
					Port:       port,
					TargetPort: intstr.FromInt32(port),
					Protocol:   corev1.ProtocolTCP,
				},
			},
		},
	}
}
