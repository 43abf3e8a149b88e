package v1alpha1

import (
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

// FreqtradeBot specifies a single trading bot instance
type FreqtradeBot struct {
	metav1.TypeMeta   `json:",inline"`
	metav1.ObjectMeta `json:"metadata,omitempty"`

	Spec   FreqtradeBotSpec   `json:"spec"`
	Status FreqtradeBotStatus `json:"status,omitempty"`
}

// FreqtradeBotSpec is the to-be state of a bot
type FreqtradeBotSpec struct {
	Exchange   ExchangeSpec                 `json:"exchange"`
	Stake      StakeSpec                    `json:"stake"`
	Strategies []Strategy                   `json:"strategies,omitempty"`
	Database   DatabaseSpec                 `json:"database,omitempty"`
	Storage    *StorageSpec                 `json:"storage,omitempty"`
	APIServer  APIServerSpec                `json:"apiServer,omitempty"`
	Webhooks   []Webhook                    `json:"webhooks,omitempty"`
	Resources  *corev1.ResourceRequirements `json:"resources,omitempty"`
	Image      string                       `json:"image,omitempty"`
	// DryRun makes the operator validate the resource without touching the cluster.
	// It is unrelated to exchange.dryRun, which is freqtrade's paper trading mode.
	DryRun bool `json:"dryRun,omitempty"`
}

// ExchangeSpec selects the exchange and the secret holding its API key
type ExchangeSpec struct {
	Name   string `json:"name"`
	DryRun *bool  `json:"dryRun,omitempty"`
	// APIKeySecret names a secret with the keys api-key and api-secret.
	// Defaults to <bot>-exchange.
	APIKeySecret string `json:"apiKeySecret,omitempty"`
}

// StakeSpec is the stake currency and amount per trade
type StakeSpec struct {
	Currency string  `json:"currency"`
	Amount   float64 `json:"amount"`
}

// Strategy is one trading strategy of a bot
type Strategy struct {
	Name          string         `json:"name"`
	ClassName     string         `json:"className,omitempty"`
	Weight        *int           `json:"weight,omitempty"`
	GitRepository *GitRepository `json:"gitRepository,omitempty"`
}

// GitRepository is the source a strategy is synced from
type GitRepository struct {
	URL          string `json:"url"`
	Branch       string `json:"branch,omitempty"`
	Path         string `json:"path"`
	SSHKeySecret string `json:"sshKeySecret,omitempty"`
}

// DatabaseType is the trade database backend
type DatabaseType string

// Supported database backends
const (
	DatabaseSQLite     DatabaseType = "sqlite"
	DatabasePostgreSQL DatabaseType = "postgresql"
)

// DatabaseSpec selects the trade database
type DatabaseSpec struct {
	Type       DatabaseType    `json:"type,omitempty"`
	PostgreSQL *PostgreSQLSpec `json:"postgresql,omitempty"`
}

// PostgreSQLSpec names the CloudNativePG cluster hosting the bot database
type PostgreSQLSpec struct {
	ClusterName string `json:"clusterName,omitempty"`
}

// StorageSpec requests a persistent user_data volume
type StorageSpec struct {
	Size             string `json:"size,omitempty"`
	StorageClassName string `json:"storageClassName,omitempty"`
}

// APIServerSpec configures freqtrade's REST API
type APIServerSpec struct {
	Enabled   *bool  `json:"enabled,omitempty"`
	Verbosity string `json:"verbosity,omitempty"`
}

// Webhook is a notification target
type Webhook struct {
	URL    string   `json:"url"`
	Events []string `json:"events,omitempty"`
}

// Phase is the lifecycle phase reported in the status
type Phase string

// Phases written by the operator
const (
	PhaseCreating Phase = "Creating"
	PhaseUpdating Phase = "Updating"
	PhaseReady    Phase = "Ready"
	PhaseError    Phase = "Error"
	PhaseFailed   Phase = "Failed"
)

// FreqtradeBotStatus is the as-is state of a bot
type FreqtradeBotStatus struct {
	Phase              Phase  `json:"phase,omitempty"`
	Message            string `json:"message,omitempty"`
	APIPort            string `json:"apiPort,omitempty"`
	URL                string `json:"url,omitempty"`
	ObservedGeneration int64  `json:"observedGeneration,omitempty"`
}

// FreqtradeWebserver runs FreqUI behind an ingress
type FreqtradeWebserver struct {
	metav1.TypeMeta   `json:",inline"`
	metav1.ObjectMeta `json:"metadata,omitempty"`

	Spec   FreqtradeWebserverSpec `json:"spec"`
	Status FreqtradeBotStatus     `json:"status,omitempty"`
}

// FreqtradeWebserverSpec is the to-be state of a webserver
type FreqtradeWebserverSpec struct {
	Ingress   IngressSpec                  `json:"ingress"`
	Resources *corev1.ResourceRequirements `json:"resources,omitempty"`
}

// IngressSpec exposes FreqUI on a host name
type IngressSpec struct {
	Host          string            `json:"host"`
	Annotations   map[string]string `json:"annotations,omitempty"`
	TLS           *bool             `json:"tls,omitempty"`
	TLSSecretName string            `json:"tlsSecretName,omitempty"`
}
