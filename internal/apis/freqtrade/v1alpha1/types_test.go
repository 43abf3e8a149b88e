package v1alpha1

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/utils/ptr"
)

func TestDefaults(t *testing.T) {
	bot := &FreqtradeBot{ObjectMeta: metav1.ObjectMeta{Name: "bot-a"}}
	assert.Equal(t, DefaultImage, bot.Spec.ImageOrDefault())
	assert.False(t, bot.Spec.IsPostgreSQL())
	assert.Equal(t, DefaultClusterName, bot.Spec.Database.ClusterName())
	assert.Equal(t, "bot-a-exchange", bot.ExchangeSecretName())

	strategy := &Strategy{Name: "s1"}
	assert.Equal(t, 1, strategy.WeightOrDefault())
	assert.Equal(t, "s1", strategy.ClassNameOrDefault())
	assert.Equal(t, "main", (&GitRepository{}).BranchOrDefault())
	assert.Equal(t, "1Gi", (&StorageSpec{}).SizeOrDefault())
	assert.True(t, (&IngressSpec{}).TLSEnabled())
}

func TestOverrides(t *testing.T) {
	bot := &FreqtradeBot{
		ObjectMeta: metav1.ObjectMeta{Name: "bot-a"},
		Spec: FreqtradeBotSpec{
			Image:    "freqtradeorg/freqtrade:develop",
			Exchange: ExchangeSpec{APIKeySecret: "keys"},
			Database: DatabaseSpec{
				Type:       DatabasePostgreSQL,
				PostgreSQL: &PostgreSQLSpec{ClusterName: "c1"},
			},
		},
	}
	assert.Equal(t, "freqtradeorg/freqtrade:develop", bot.Spec.ImageOrDefault())
	assert.True(t, bot.Spec.IsPostgreSQL())
	assert.Equal(t, "c1", bot.Spec.Database.ClusterName())
	assert.Equal(t, "keys", bot.ExchangeSecretName())

	// a weight of zero is kept, the strategy is then not listed at all
	strategy := &Strategy{Name: "s1", ClassName: "S1Strategy", Weight: ptr.To(0)}
	assert.Equal(t, 0, strategy.WeightOrDefault())
	assert.Equal(t, "S1Strategy", strategy.ClassNameOrDefault())
	assert.Equal(t, "dev", (&GitRepository{Branch: "dev"}).BranchOrDefault())
	assert.Equal(t, "5Gi", (&StorageSpec{Size: "5Gi"}).SizeOrDefault())
	assert.False(t, (&IngressSpec{TLS: ptr.To(false)}).TLSEnabled())
}

func TestBotFromUnstructured(t *testing.T) {
	u := &unstructured.Unstructured{Object: map[string]interface{}{
		"apiVersion": SchemeGroupVersion.String(),
		"kind":       FreqtradeBotKind.Kind,
		"metadata": map[string]interface{}{
			"name":      "bot-a",
			"namespace": "trading",
		},
		"spec": map[string]interface{}{
			"exchange": map[string]interface{}{"name": "binance"},
			"stake":    map[string]interface{}{"currency": "USDT", "amount": int64(100)},
			"strategies": []interface{}{
				map[string]interface{}{"name": "s1", "weight": int64(2)},
			},
		},
	}}
	bot, err := BotFromUnstructured(u)
	require.NoError(t, err)
	assert.Equal(t, "trading", bot.Namespace)
	assert.Equal(t, "binance", bot.Spec.Exchange.Name)
	assert.Equal(t, float64(100), bot.Spec.Stake.Amount)
	require.Len(t, bot.Spec.Strategies, 1)
	assert.Equal(t, 2, bot.Spec.Strategies[0].WeightOrDefault())

	u.Object["spec"] = "not an object"
	_, err = BotFromUnstructured(u)
	assert.Error(t, err)
}

func TestWebserverFromUnstructured(t *testing.T) {
	u := &unstructured.Unstructured{Object: map[string]interface{}{
		"apiVersion": SchemeGroupVersion.String(),
		"kind":       FreqtradeWebserverKind.Kind,
		"metadata":   map[string]interface{}{"name": "ui"},
		"spec": map[string]interface{}{
			"ingress": map[string]interface{}{"host": "ui.example.com", "tls": false},
		},
	}}
	ws, err := WebserverFromUnstructured(u)
	require.NoError(t, err)
	assert.Equal(t, "ui.example.com", ws.Spec.Ingress.Host)
	assert.False(t, ws.Spec.Ingress.TLSEnabled())
}

func TestResources(t *testing.T) {
	assert.Equal(t, "trading.freqtrade.io", FreqtradeBotResource.Group)
	assert.Equal(t, "freqtradebots", FreqtradeBotResource.Resource)
	assert.Equal(t, "freqtradewebservers", FreqtradeWebserverResource.Resource)
	assert.Equal(t, "v1alpha1", FreqtradeBotKind.Version)
}
