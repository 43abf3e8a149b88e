// Package botconfig renders the freqtrade configuration document of a bot.
//
// The document never carries secret values. Credentials appear as ${VAR}
// placeholders that the container environment resolves from the API secret,
// the exchange secret and the database secret, so the rendered document can
// live in a ConfigMap.
package botconfig

import (
	"encoding/json"
	"fmt"
	"path"
	"strings"

	freqv1 "github.com/freqtrade-operator/freqtrade-operator/internal/apis/freqtrade/v1alpha1"
)

// Placeholders substituted from the container environment
const (
	ExchangeKeyPlaceholder    = "${EXCHANGE_API_KEY}"
	ExchangeSecretPlaceholder = "${EXCHANGE_API_SECRET}"
	APIUserPlaceholder        = "${API_USERNAME}"
	APIPasswordPlaceholder    = "${API_PASSWORD}"
	JWTSecretPlaceholder      = "${JWT_SECRET_KEY}"
	DBPasswordPlaceholder     = "${DB_PASSWORD}"
)

// Paths inside the freqtrade container
const (
	StrategiesMountPath = "/strategies"
	UserDataPath        = "/freqtrade/user_data"
	ConfigMountPath     = "/config"
	ConfigKey           = "config.json"
)

// Config is the freqtrade configuration document. Field order is the
// serialization order.
type Config struct {
	MaxOpenTrades          int           `json:"max_open_trades"`
	StakeCurrency          string        `json:"stake_currency"`
	StakeAmount            float64       `json:"stake_amount"`
	TradableBalanceRatio   float64       `json:"tradable_balance_ratio"`
	FiatDisplayCurrency    string        `json:"fiat_display_currency"`
	DryRun                 bool          `json:"dry_run"`
	CancelOpenOrdersOnExit bool          `json:"cancel_open_orders_on_exit"`
	EntryPricing           EntryPricing  `json:"entry_pricing"`
	ExitPricing            ExitPricing   `json:"exit_pricing"`
	Exchange               Exchange      `json:"exchange"`
	Pairlists              []Pairlist    `json:"pairlists"`
	DBURL                  string        `json:"db_url"`
	StrategyList           []string      `json:"strategy_list"`
	APIServer              APIServer     `json:"api_server"`
	Webhook                WebhookConfig `json:"webhook"`
}

// EntryPricing configures how entry prices are picked
type EntryPricing struct {
	PriceSide          string             `json:"price_side"`
	UseOrderBook       bool               `json:"use_order_book"`
	OrderBookTop       int                `json:"order_book_top"`
	PriceLastBalance   float64            `json:"price_last_balance"`
	CheckDepthOfMarket CheckDepthOfMarket `json:"check_depth_of_market"`
}

// CheckDepthOfMarket guards entries against thin order books
type CheckDepthOfMarket struct {
	Enabled        bool    `json:"enabled"`
	BidsToAskDelta float64 `json:"bids_to_ask_delta"`
}

// ExitPricing configures how exit prices are picked
type ExitPricing struct {
	PriceSide    string `json:"price_side"`
	UseOrderBook bool   `json:"use_order_book"`
	OrderBookTop int    `json:"order_book_top"`
}

// Exchange is the exchange block, keys are placeholders
type Exchange struct {
	Name            string                 `json:"name"`
	Key             string                 `json:"key"`
	Secret          string                 `json:"secret"`
	CCXTConfig      map[string]interface{} `json:"ccxt_config"`
	CCXTAsyncConfig map[string]interface{} `json:"ccxt_async_config"`
	PairWhitelist   []string               `json:"pair_whitelist"`
	PairBlacklist   []string               `json:"pair_blacklist"`
}

// Pairlist is one pairlist handler
type Pairlist struct {
	Method string `json:"method"`
}

// APIServer is the REST API block
type APIServer struct {
	Enabled         bool     `json:"enabled"`
	ListenIPAddress string   `json:"listen_ip_address"`
	ListenPort      int32    `json:"listen_port"`
	Verbosity       string   `json:"verbosity"`
	Username        string   `json:"username"`
	Password        string   `json:"password"`
	JWTSecretKey    string   `json:"jwt_secret_key"`
	CORSOrigins     []string `json:"CORS_origins"`
}

// WebhookConfig is the webhook block
type WebhookConfig struct {
	Enabled  bool            `json:"enabled"`
	Webhooks []WebhookTarget `json:"webhooks"`
}

// WebhookTarget is one rendered webhook
type WebhookTarget struct {
	URL    string   `json:"url"`
	Format string   `json:"format"`
	Events []string `json:"events"`
}

// Render builds the configuration document of a bot. It is a pure function of
// its arguments.
func Render(spec *freqv1.FreqtradeBotSpec, port int32, dbURL string) *Config {
	dryRun := true
	if spec.Exchange.DryRun != nil {
		dryRun = *spec.Exchange.DryRun
	}
	apiEnabled := true
	if spec.APIServer.Enabled != nil {
		apiEnabled = *spec.APIServer.Enabled
	}
	verbosity := spec.APIServer.Verbosity
	if verbosity == "" {
		verbosity = freqv1.DefaultAPIVerbosity
	}

	return &Config{
		MaxOpenTrades:          3,
		StakeCurrency:          spec.Stake.Currency,
		StakeAmount:            spec.Stake.Amount,
		TradableBalanceRatio:   0.99,
		FiatDisplayCurrency:    "USD",
		DryRun:                 dryRun,
		CancelOpenOrdersOnExit: false,
		EntryPricing: EntryPricing{
			PriceSide:        "same",
			UseOrderBook:     true,
			OrderBookTop:     1,
			PriceLastBalance: 0.0,
			CheckDepthOfMarket: CheckDepthOfMarket{
				Enabled:        false,
				BidsToAskDelta: 1,
			},
		},
		ExitPricing: ExitPricing{
			PriceSide:    "same",
			UseOrderBook: true,
			OrderBookTop: 1,
		},
		Exchange: Exchange{
			Name:            spec.Exchange.Name,
			Key:             ExchangeKeyPlaceholder,
			Secret:          ExchangeSecretPlaceholder,
			CCXTConfig:      map[string]interface{}{},
			CCXTAsyncConfig: map[string]interface{}{},
			PairWhitelist:   []string{},
			PairBlacklist:   []string{},
		},
		Pairlists:    []Pairlist{{Method: "StaticPairList"}},
		DBURL:        dbURL,
		StrategyList: StrategyList(spec.Strategies),
		APIServer: APIServer{
			Enabled:         apiEnabled,
			ListenIPAddress: "0.0.0.0",
			ListenPort:      port,
			Verbosity:       verbosity,
			Username:        APIUserPlaceholder,
			Password:        APIPasswordPlaceholder,
			JWTSecretKey:    JWTSecretPlaceholder,
			CORSOrigins:     []string{},
		},
		Webhook: renderWebhooks(spec.Webhooks),
	}
}

// StrategyList expands the strategies into freqtrade's flat list. A strategy
// with weight n appears n times, in declared order.
func StrategyList(strategies []freqv1.Strategy) []string {
	list := []string{}
	for i := range strategies {
		p := StrategyPath(&strategies[i])
		for n := 0; n < strategies[i].WeightOrDefault(); n++ {
			list = append(list, p)
		}
	}
	return list
}

// StrategyPath is where the strategy code is found inside the pod
func StrategyPath(s *freqv1.Strategy) string {
	if s.GitRepository != nil {
		return path.Join(StrategiesMountPath, s.Name, "current", s.GitRepository.Path)
	}
	return path.Join(UserDataPath, "strategies", s.ClassNameOrDefault())
}

func renderWebhooks(webhooks []freqv1.Webhook) WebhookConfig {
	targets := make([]WebhookTarget, 0, len(webhooks))
	for _, wh := range webhooks {
		events := wh.Events
		if len(events) == 0 {
			events = []string{"*"}
		}
		targets = append(targets, WebhookTarget{
			URL:    wh.URL,
			Format: "json",
			Events: events,
		})
	}
	return WebhookConfig{
		Enabled:  len(webhooks) > 0,
		Webhooks: targets,
	}
}

// Marshal serializes the document the way it is stored in the ConfigMap
func (c *Config) Marshal() ([]byte, error) {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("could not serialize freqtrade config: %w", err)
	}
	return data, nil
}

// SQLiteURL is used for sqlite bots and as fallback when CNPG is missing
const SQLiteURL = "sqlite:///" + UserDataPath + "/tradesv3.sqlite"

// DatabaseUser is the CNPG role owning all bot databases
const DatabaseUser = "freqtrade"

const postgresPort = 5432

// DatabaseName is the postgres identifier of a bot's database
func DatabaseName(botName string) string {
	return strings.ReplaceAll(botName, "-", "_")
}

// DatabaseURL resolves the trade database URL of a bot
func DatabaseURL(botName string, namespace string, spec *freqv1.FreqtradeBotSpec) string {
	if !spec.IsPostgreSQL() {
		return SQLiteURL
	}
	host := fmt.Sprintf("%s-rw.%s.svc.cluster.local", spec.Database.ClusterName(), namespace)
	return fmt.Sprintf("postgresql://%s:%s@%s:%d/%s", DatabaseUser, DBPasswordPlaceholder, host, postgresPort, DatabaseName(botName))
}
