package config

import (
	"fmt"
	"math/big"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"
)

type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("duration must be a scalar")
	}
	if value.Value == "" {
		d.Duration = 0
		return nil
	}
	if value.Tag == "!!int" {
		var v int64
		if err := value.Decode(&v); err != nil {
			return err
		}
		d.Duration = time.Duration(v) * time.Millisecond
		return nil
	}
	dur, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", value.Value, err)
	}
	d.Duration = dur
	return nil
}

const (
	CloudLocal = "local"
	CloudAWS   = "aws"
	CloudGCP   = "gcp"
)

type CloudProvider struct {
	Type         string `yaml:"type"`
	Region       string `yaml:"region"`
	ProjectID    string `yaml:"project_id"`
	URL          string `yaml:"url"`
	AuthTokenEnv string `yaml:"auth_token_env"`
}

type Chain struct {
	ID        string `yaml:"id"`
	Name      string `yaml:"name"`
	Type      string `yaml:"type"`
	Contracts struct {
		AirnodeRrp string `yaml:"airnode_rrp"`
	} `yaml:"contracts"`
	Providers                        map[string]Provider `yaml:"providers"`
	AuthorizedRequesters             []string            `yaml:"authorized_requesters"`
	FeeMarket                        bool                `yaml:"fee_market"`
	IgnoreBlockedRequestsAfterBlocks *uint64             `yaml:"ignore_blocked_requests_after_blocks"`
	RequestsPath                     string              `yaml:"requests_path"`
	RateLimit                        struct {
		RPS   float64 `yaml:"rps"`
		Burst int     `yaml:"burst"`
	} `yaml:"rate_limit"`
}

type Provider struct {
	URL string `yaml:"url"`
}

type Config struct {
	Node struct {
		AirnodeAddress string        `yaml:"airnode_address"`
		Stage          string        `yaml:"stage"`
		LogLevel       string        `yaml:"log_level"`
		LogFormat      string        `yaml:"log_format"`
		CloudProvider  CloudProvider `yaml:"cloud_provider"`
		CycleInterval  Duration      `yaml:"cycle_interval"`
	} `yaml:"node"`

	Chains []Chain `yaml:"chains"`

	Tx struct {
		ApiCallGasLimit       uint64 `yaml:"api_call_gas_limit"`
		WithdrawalGasMargin   uint64 `yaml:"withdrawal_gas_margin"`
		BaseFeeMultiplier     uint64 `yaml:"base_fee_multiplier"`
		MinPriorityFeeWei     string `yaml:"min_priority_fee_wei"`
		MaxRequestsPerSponsor int    `yaml:"max_requests_per_sponsor"`
	} `yaml:"tx"`

	Performance struct {
		RequestTimeout     Duration `yaml:"request_timeout"`
		RetryMax           int      `yaml:"retry_max"`
		RetryBackoff       Duration `yaml:"retry_backoff"`
		SponsorConcurrency int      `yaml:"sponsor_concurrency"`
	} `yaml:"performance"`

	KeyStore struct {
		Dir           string `yaml:"dir"`
		PassphraseEnv string `yaml:"passphrase_env"`
	} `yaml:"keystore"`

	API struct {
		Listen    string `yaml:"listen"`
		AuthToken string `yaml:"auth_token"`
	} `yaml:"api"`

	ApiExecutor struct {
		URL          string `yaml:"url"`
		AuthTokenEnv string `yaml:"auth_token_env"`
	} `yaml:"api_executor"`

	Output struct {
		JSONLPath string `yaml:"jsonl_path"`
	} `yaml:"output"`

	Checkpoint struct {
		Path string `yaml:"path"`
	} `yaml:"checkpoint"`
}

func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(b)
}

func Parse(b []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Node.Stage == "" {
		c.Node.Stage = "dev"
	}
	if c.Node.LogLevel == "" {
		c.Node.LogLevel = "info"
	}
	if c.Node.LogFormat == "" {
		c.Node.LogFormat = "json"
	}
	if c.Node.CloudProvider.Type == "" {
		c.Node.CloudProvider.Type = CloudLocal
	}
	if c.Node.CycleInterval.Duration == 0 {
		c.Node.CycleInterval = Duration{Duration: time.Minute}
	}
	for i := range c.Chains {
		ch := &c.Chains[i]
		if ch.Type == "" {
			ch.Type = "evm"
		}
		if ch.Name == "" {
			ch.Name = "chain-" + ch.ID
		}
		if ch.IgnoreBlockedRequestsAfterBlocks == nil {
			n := uint64(20)
			ch.IgnoreBlockedRequestsAfterBlocks = &n
		}
		if ch.RateLimit.RPS == 0 {
			ch.RateLimit.RPS = 20
		}
		if ch.RateLimit.Burst == 0 {
			ch.RateLimit.Burst = 10
		}
	}
	if c.Tx.ApiCallGasLimit == 0 {
		c.Tx.ApiCallGasLimit = 500_000
	}
	if c.Tx.WithdrawalGasMargin == 0 {
		c.Tx.WithdrawalGasMargin = 20_000
	}
	if c.Tx.BaseFeeMultiplier == 0 {
		c.Tx.BaseFeeMultiplier = 2
	}
	if c.Tx.MinPriorityFeeWei == "" {
		c.Tx.MinPriorityFeeWei = "3120000000"
	}
	if c.Performance.RequestTimeout.Duration == 0 {
		c.Performance.RequestTimeout = Duration{Duration: 10 * time.Second}
	}
	if c.Performance.RetryMax == 0 {
		c.Performance.RetryMax = 3
	}
	if c.Performance.RetryBackoff.Duration == 0 {
		c.Performance.RetryBackoff = Duration{Duration: 500 * time.Millisecond}
	}
	if c.Performance.SponsorConcurrency == 0 {
		c.Performance.SponsorConcurrency = 8
	}
	if c.KeyStore.Dir == "" {
		c.KeyStore.Dir = "data/keystore"
	}
	if c.KeyStore.PassphraseEnv == "" {
		c.KeyStore.PassphraseEnv = "RRPNODE_KEYSTORE_PASSPHRASE"
	}
	if c.API.Listen == "" {
		c.API.Listen = ":8080"
	}
	if c.Output.JSONLPath == "" {
		c.Output.JSONLPath = "data/cycles.jsonl"
	}
	if c.Checkpoint.Path == "" {
		c.Checkpoint.Path = "data/checkpoint.json"
	}
}

func (c *Config) validate() error {
	if !common.IsHexAddress(c.Node.AirnodeAddress) {
		return fmt.Errorf("node.airnode_address is required")
	}
	switch c.Node.CloudProvider.Type {
	case CloudLocal:
	case CloudAWS, CloudGCP:
		if c.Node.CloudProvider.URL == "" {
			return fmt.Errorf("node.cloud_provider.url is required for %s", c.Node.CloudProvider.Type)
		}
	default:
		return fmt.Errorf("unknown cloud provider %q", c.Node.CloudProvider.Type)
	}
	switch strings.ToLower(c.Node.LogFormat) {
	case "json", "plain":
	default:
		return fmt.Errorf("unknown log format %q", c.Node.LogFormat)
	}
	if len(c.Chains) == 0 {
		return fmt.Errorf("at least one chain is required")
	}
	seen := map[string]bool{}
	for _, ch := range c.Chains {
		if ch.ID == "" {
			return fmt.Errorf("chain id is required")
		}
		if seen[ch.ID] {
			return fmt.Errorf("chain %s is configured twice", ch.ID)
		}
		seen[ch.ID] = true
		if ch.Type != "evm" {
			return fmt.Errorf("chain %s: unsupported type %q", ch.ID, ch.Type)
		}
		if _, err := ch.ChainID(); err != nil {
			return err
		}
		if !common.IsHexAddress(ch.Contracts.AirnodeRrp) {
			return fmt.Errorf("chain %s: contracts.airnode_rrp is required", ch.ID)
		}
		if len(ch.Providers) == 0 {
			return fmt.Errorf("chain %s: at least one provider is required", ch.ID)
		}
		for name, p := range ch.Providers {
			if p.URL == "" {
				return fmt.Errorf("chain %s: provider %s has no url", ch.ID, name)
			}
		}
		for _, r := range ch.AuthorizedRequesters {
			if !common.IsHexAddress(r) {
				return fmt.Errorf("chain %s: invalid authorized requester %q", ch.ID, r)
			}
		}
	}
	if c.Tx.BaseFeeMultiplier < 1 {
		return fmt.Errorf("tx.base_fee_multiplier must be >= 1")
	}
	if c.Tx.MaxRequestsPerSponsor < 0 {
		return fmt.Errorf("tx.max_requests_per_sponsor must be >= 0")
	}
	if c.Performance.SponsorConcurrency < 1 {
		return fmt.Errorf("performance.sponsor_concurrency must be >= 1")
	}
	return nil
}

func (ch Chain) ChainID() (*big.Int, error) {
	v, ok := new(big.Int).SetString(ch.ID, 10)
	if !ok || v.Sign() <= 0 {
		return nil, fmt.Errorf("invalid chain id %q", ch.ID)
	}
	return v, nil
}

// IgnoreAfterBlocks is the number of blocks a request may stay blocked
// before it is ignored. An explicit 0 keeps blocked requests forever.
func (ch Chain) IgnoreAfterBlocks() uint64 {
	if ch.IgnoreBlockedRequestsAfterBlocks == nil {
		return 0
	}
	return *ch.IgnoreBlockedRequestsAfterBlocks
}

func (ch Chain) AirnodeRrpAddress() common.Address {
	return common.HexToAddress(ch.Contracts.AirnodeRrp)
}

func (c *Config) AirnodeAddress() common.Address {
	return common.HexToAddress(c.Node.AirnodeAddress)
}

func (c *Config) Chain(id string) (Chain, bool) {
	for _, ch := range c.Chains {
		if ch.ID == id {
			return ch, true
		}
	}
	return Chain{}, false
}
