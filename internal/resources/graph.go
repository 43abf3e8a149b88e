package resources

import (
	"fmt"
	"strconv"

	"github.com/cespare/xxhash/v2"
	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime"

	freqv1 "github.com/freqtrade-operator/freqtrade-operator/internal/apis/freqtrade/v1alpha1"
	"github.com/freqtrade-operator/freqtrade-operator/internal/botconfig"
	"github.com/freqtrade-operator/freqtrade-operator/internal/secrets"
)

// Graph is the desired set of objects of one bot. Secret, Database and
// Claim are optional.
type Graph struct {
	Secret     *corev1.Secret
	Database   *unstructured.Unstructured
	ConfigMap  *corev1.ConfigMap
	Claim      *corev1.PersistentVolumeClaim
	Deployment *appsv1.Deployment
	Service    *corev1.Service
}

// Objects returns the objects of the graph in the order they are applied
func (g *Graph) Objects() []runtime.Object {
	var objects []runtime.Object
	if g.Secret != nil {
		objects = append(objects, g.Secret)
	}
	if g.Database != nil {
		objects = append(objects, g.Database)
	}
	objects = append(objects, g.ConfigMap)
	if g.Claim != nil {
		objects = append(objects, g.Claim)
	}
	return append(objects, g.Deployment, g.Service)
}

// ConfigHash is the value of the config hash annotation for a rendered
// configuration
func ConfigHash(config []byte) string {
	return strconv.FormatUint(xxhash.Sum64(config), 16)
}

// Compose builds the graph of a bot. The credentials secret is only part of
// the graph if creds is not nil, so that an update never regenerates them.
// The database object is part of the graph whenever the bot asks for
// PostgreSQL; dbURL decides what the configuration points to.
func Compose(bot *freqv1.FreqtradeBot, creds *secrets.Credentials, port int32, dbURL string, owner metav1.OwnerReference) (*Graph, error) {
	config, err := botconfig.Render(&bot.Spec, port, dbURL).Marshal()
	if err != nil {
		return nil, fmt.Errorf("could not render configuration of bot %s: %w", bot.Name, err)
	}
	claim, err := DataClaim(bot, owner)
	if err != nil {
		return nil, err
	}
	graph := &Graph{
		ConfigMap:  ConfigMap(bot, config, owner),
		Claim:      claim,
		Deployment: Deployment(bot, port, ConfigHash(config), owner),
		Service:    Service(bot, port, owner),
	}
	if creds != nil {
		graph.Secret = APISecret(bot, *creds, owner)
	}
	if bot.Spec.IsPostgreSQL() {
		graph.Database = Database(bot, owner)
	}
	return graph, nil
}
