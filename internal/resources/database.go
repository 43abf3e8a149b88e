package resources

import (
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime/schema"

	freqv1 "github.com/freqtrade-operator/freqtrade-operator/internal/apis/freqtrade/v1alpha1"
	"github.com/freqtrade-operator/freqtrade-operator/internal/botconfig"
)

// DatabaseResource is the CloudNativePG Database resource. If the CRD is not
// installed, requests against it fail with NotFound.
var DatabaseResource = schema.GroupVersionResource{
	Group:    "postgresql.cnpg.io",
	Version:  "v1",
	Resource: "databases",
}

// Database asks the CNPG operator for a logical database owned by the
// freqtrade role
func Database(bot *freqv1.FreqtradeBot, owner metav1.OwnerReference) *unstructured.Unstructured {
	db := &unstructured.Unstructured{
		Object: map[string]interface{}{
			"spec": map[string]interface{}{
				"cluster": map[string]interface{}{
					"name": bot.Spec.Database.ClusterName(),
				},
				"owner": botconfig.DatabaseUser,
				"name":  botconfig.DatabaseName(bot.Name),
			},
		},
	}
	db.SetAPIVersion(DatabaseResource.GroupVersion().String())
	db.SetKind("Database")
	db.SetName(DatabaseObjectName(bot.Name))
	db.SetNamespace(bot.Namespace)
	db.SetLabels(Labels(bot.Name))
	Stamp(db, owner)
	return db
}
