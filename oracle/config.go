package oracle

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"net/url"
	"os"
	"sort"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pelletier/go-toml/v2"
	"go.uber.org/zap/zapcore"
)

const (
	defaultEpochDuration             = 6_646
	defaultPollingIntervalSeconds    = 120
	defaultRetryMaxWaitSeconds       = 60
	defaultFreshnessThreshold        = 10
	defaultTxConfirmationPollSeconds = 5
	defaultTxConfirmationCount       = 0
)

// CliOptions are the flags collected by the command line before the TOML
// file is read.
type CliOptions struct {
	OwnerPrivateKey string
	LogLevel        string
	SubgraphURL     string
	ConfigFile      string
}

// Config is the process-wide read-only configuration, materialized once at
// startup from CLI flags and the TOML configuration file.
type Config struct {
	LogLevel           zapcore.Level
	OwnerAddress       common.Address
	OwnerPrivateKey    *ecdsa.PrivateKey
	ContractAddress    common.Address
	SubgraphURL        string
	EpochDuration      uint64
	FreshnessThreshold uint64
	IndexedChains      []IndexedChain
	ProtocolChain      ProtocolChain
	RetryMaxWaitTime   time.Duration

	// Reserved for transaction confirmation monitoring.
	TxConfirmationPollInterval time.Duration
	TxConfirmationCount        int
}

// IndexedChain is a network the oracle observes.
type IndexedChain struct {
	ID      Caip2ChainID
	JrpcURL string
}

// ProtocolChain is the chain carrying the DataEdge contract.
type ProtocolChain struct {
	ID              Caip2ChainID
	JrpcURL         string
	PollingInterval time.Duration
}

type configFile struct {
	OwnerAddress                                 string            `toml:"owner_address"`
	ContractAddress                              string            `toml:"contract_address"`
	IndexedChains                                map[string]string `toml:"indexed_chains"`
	ProtocolChain                                protocolChainFile `toml:"protocol_chain"`
	EpochDuration                                *uint64           `toml:"epoch_duration"`
	ProtocolChainPollingIntervalInSeconds        *uint64           `toml:"protocol_chain_polling_interval_in_seconds"`
	Web3TransportRetryMaxWaitTimeInSeconds       *uint64           `toml:"web3_transport_retry_max_wait_time_in_seconds"`
	FreshnessThreshold                           *uint64           `toml:"freshness_threshold"`
	TransactionConfirmationPollIntervalInSeconds *uint64           `toml:"transaction_confirmation_poll_interval_in_seconds"`
	TransactionConfirmationCount                 *int              `toml:"transaction_confirmation_count"`
}

type protocolChainFile struct {
	Name string `toml:"name"`
	Jrpc string `toml:"jrpc"`
}

// LoadConfig reads the TOML file named by the CLI options and merges both
// into a validated Config. Any failure here is fatal.
func LoadConfig(opts CliOptions) (*Config, error) {
	raw, err := os.ReadFile(opts.ConfigFile)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	var file configFile
	if err := toml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}
	return newConfig(opts, file)
}

func newConfig(opts CliOptions, file configFile) (*Config, error) {
	cfg := &Config{
		EpochDuration:              orDefault(file.EpochDuration, defaultEpochDuration),
		FreshnessThreshold:         orDefault(file.FreshnessThreshold, defaultFreshnessThreshold),
		RetryMaxWaitTime:           secondsOrDefault(file.Web3TransportRetryMaxWaitTimeInSeconds, defaultRetryMaxWaitSeconds),
		TxConfirmationPollInterval: secondsOrDefault(file.TransactionConfirmationPollIntervalInSeconds, defaultTxConfirmationPollSeconds),
		TxConfirmationCount:        defaultTxConfirmationCount,
		SubgraphURL:                opts.SubgraphURL,
	}
	if file.TransactionConfirmationCount != nil {
		cfg.TxConfirmationCount = *file.TransactionConfirmationCount
	}

	level, err := zapcore.ParseLevel(opts.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", opts.LogLevel, err)
	}
	cfg.LogLevel = level

	if cfg.EpochDuration == 0 {
		return nil, errors.New("epoch_duration must be > 0")
	}
	if err := validateURL(cfg.SubgraphURL); err != nil {
		return nil, fmt.Errorf("invalid subgraph url: %w", err)
	}

	if cfg.OwnerAddress, err = parseAddress(file.OwnerAddress, "owner_address"); err != nil {
		return nil, err
	}
	if cfg.ContractAddress, err = parseAddress(file.ContractAddress, "contract_address"); err != nil {
		return nil, err
	}

	key, err := crypto.HexToECDSA(trimHexPrefix(opts.OwnerPrivateKey))
	if err != nil {
		return nil, fmt.Errorf("invalid owner private key: %w", err)
	}
	cfg.OwnerPrivateKey = key
	if derived := crypto.PubkeyToAddress(key.PublicKey); derived != cfg.OwnerAddress {
		return nil, fmt.Errorf("owner_address %s does not match the address %s derived from the owner private key",
			cfg.OwnerAddress.Hex(), derived.Hex())
	}

	if len(file.IndexedChains) == 0 {
		return nil, errors.New("indexed_chains is required")
	}
	// TOML tables are unordered; sort by chain id so the config presents
	// networks in a stable order.
	names := make([]string, 0, len(file.IndexedChains))
	for name := range file.IndexedChains {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		id, err := NewCaip2ChainID(name)
		if err != nil {
			return nil, fmt.Errorf("indexed_chains: %w", err)
		}
		jrpc := file.IndexedChains[name]
		if err := validateURL(jrpc); err != nil {
			return nil, fmt.Errorf("indexed chain %q: invalid jrpc url: %w", name, err)
		}
		cfg.IndexedChains = append(cfg.IndexedChains, IndexedChain{ID: id, JrpcURL: jrpc})
	}

	protocolID, err := NewCaip2ChainID(file.ProtocolChain.Name)
	if err != nil {
		return nil, fmt.Errorf("protocol_chain.name: %w", err)
	}
	if err := validateURL(file.ProtocolChain.Jrpc); err != nil {
		return nil, fmt.Errorf("protocol_chain.jrpc: %w", err)
	}
	cfg.ProtocolChain = ProtocolChain{
		ID:              protocolID,
		JrpcURL:         file.ProtocolChain.Jrpc,
		PollingInterval: secondsOrDefault(file.ProtocolChainPollingIntervalInSeconds, defaultPollingIntervalSeconds),
	}
	return cfg, nil
}

// IndexedChainIDs returns the configured chain ids in config order.
func (c *Config) IndexedChainIDs() []Caip2ChainID {
	ids := make([]Caip2ChainID, len(c.IndexedChains))
	for i, chain := range c.IndexedChains {
		ids[i] = chain.ID
	}
	return ids
}

func parseAddress(s, field string) (common.Address, error) {
	if s == "" {
		return common.Address{}, fmt.Errorf("%s is required", field)
	}
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("%s is not a valid 20-byte hex address", field)
	}
	return common.HexToAddress(s), nil
}

func validateURL(s string) error {
	if s == "" {
		return errors.New("empty url")
	}
	u, err := url.Parse(s)
	if err != nil {
		return err
	}
	if u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("url %q must be absolute", s)
	}
	return nil
}

func trimHexPrefix(s string) string {
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		return s[2:]
	}
	return s
}

func orDefault(v *uint64, def uint64) uint64 {
	if v != nil {
		return *v
	}
	return def
}

func secondsOrDefault(v *uint64, def uint64) time.Duration {
	return time.Duration(orDefault(v, def)) * time.Second
}
