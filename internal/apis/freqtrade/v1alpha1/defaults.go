package v1alpha1

// Defaults applied when a field is left empty
const (
	DefaultImage          = "freqtradeorg/freqtrade:stable"
	DefaultClusterName    = "freqtrade-db"
	DefaultStorageSize    = "1Gi"
	DefaultGitBranch      = "main"
	DefaultAPIVerbosity   = "info"
	DefaultStrategyWeight = 1
)

const exchangeSecretSuffix = "-exchange"

// ImageOrDefault returns the freqtrade image to run
func (s *FreqtradeBotSpec) ImageOrDefault() string {
	if s.Image == "" {
		return DefaultImage
	}
	return s.Image
}

// IsPostgreSQL reports whether the bot stores trades in a CNPG database
func (s *FreqtradeBotSpec) IsPostgreSQL() bool {
	return s.Database.Type == DatabasePostgreSQL
}

// ClusterName returns the CNPG cluster for a postgresql bot
func (d *DatabaseSpec) ClusterName() string {
	if d.PostgreSQL == nil || d.PostgreSQL.ClusterName == "" {
		return DefaultClusterName
	}
	return d.PostgreSQL.ClusterName
}

// SizeOrDefault returns the requested claim size
func (s *StorageSpec) SizeOrDefault() string {
	if s.Size == "" {
		return DefaultStorageSize
	}
	return s.Size
}

// WeightOrDefault returns how many times a strategy is listed
func (s *Strategy) WeightOrDefault() int {
	if s.Weight == nil {
		return DefaultStrategyWeight
	}
	return *s.Weight
}

// ClassNameOrDefault returns the python class implementing the strategy
func (s *Strategy) ClassNameOrDefault() string {
	if s.ClassName == "" {
		return s.Name
	}
	return s.ClassName
}

// BranchOrDefault returns the branch to sync
func (g *GitRepository) BranchOrDefault() string {
	if g.Branch == "" {
		return DefaultGitBranch
	}
	return g.Branch
}

// ExchangeSecretName returns the secret holding the exchange credentials
func (b *FreqtradeBot) ExchangeSecretName() string {
	if b.Spec.Exchange.APIKeySecret != "" {
		return b.Spec.Exchange.APIKeySecret
	}
	return b.Name + exchangeSecretSuffix
}

// TLSEnabled defaults to true
func (i *IngressSpec) TLSEnabled() bool {
	return i.TLS == nil || *i.TLS
}
