// Package resources contains the builders for all objects the operator
// manages. Every builder is a pure function of its arguments and stamps
// exactly one controller owner reference on the object it returns, so that
// the garbage collector removes the object together with its owner.
package resources

import (
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime/schema"
)

// Label keys and the application label value
const (
	AppLabel = "app"
	BotLabel = "bot"
	AppName  = "freqtrade"
)

// These postfixes are added to the name of a bot to derive the names of
// the objects it owns. Deployment and service carry the bot name itself.
const (
	apiSecretPostfix = "-api"
	configPostfix    = "-config"
	dataPostfix      = "-data"
	databasePostfix  = "-db"
	gitSyncPrefix    = "git-sync-"
)

// APISecretName returns the name of the secret with the generated credentials
func APISecretName(bot string) string { return bot + apiSecretPostfix }

// ConfigMapName returns the name of the configuration bundle
func ConfigMapName(bot string) string { return bot + configPostfix }

// ClaimName returns the name of the user_data claim
func ClaimName(bot string) string { return bot + dataPostfix }

// DatabaseObjectName returns the name of the CNPG Database object
func DatabaseObjectName(bot string) string { return bot + databasePostfix }

// GitSyncContainerName returns the name of the sidecar syncing a strategy
func GitSyncContainerName(strategy string) string { return gitSyncPrefix + strategy }

// Labels returns the labels put on every object of a bot
func Labels(bot string) map[string]string {
	return map[string]string{
		AppLabel: AppName,
		BotLabel: bot,
	}
}

// OwnerReference builds the controller reference pointing to owner
func OwnerReference(owner metav1.Object, gvk schema.GroupVersionKind) metav1.OwnerReference {
	return *metav1.NewControllerRef(owner, gvk)
}

// Stamp makes owner the one and only owner of obj
func Stamp(obj metav1.Object, owner metav1.OwnerReference) {
	obj.SetOwnerReferences([]metav1.OwnerReference{owner})
}

func objectMeta(name string, namespace string, labels map[string]string, owner metav1.OwnerReference) metav1.ObjectMeta {
	return metav1.ObjectMeta{
		Name:            name,
		Namespace:       namespace,
		Labels:          labels,
		OwnerReferences: []metav1.OwnerReference{owner},
	}
}
