// Package config loads the paywall server configuration from environment vars.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/robfig/cron/v3"

	"github.com/and161185/paywall/internal/wallet"
)

const (
	envVarPrefix = "paywall"

	usageListFormat = `The paywall server is configured via environment vars only. The following environment variables can be used:
{{range .}}
{{usage_key .}}
  description: {{usage_description .}}
  type:        {{usage_type .}}
  default:     {{usage_default .}}
  required:    {{usage_required .}}
{{end}}
`
)

// Store backends.
const (
	StoreMemory     = "memory"
	StorePostgresql = "postgresql"
)

// Chain backends.
const (
	ChainExplorer = "explorer"
	ChainRPC      = "rpc"
	ChainNone     = "none"
)

// Config is the master config for the server derived from environment variables.
type Config struct {
	Addr string `default:":5000" desc:"HTTP listen address"`
	Dev  bool   `default:"false" desc:"Development logger and gin debug mode"`

	Store       string `default:"memory" desc:"Ledger store backend: memory or postgresql"`
	PostgresDSN string `envconfig:"postgres_dsn" desc:"PostgreSQL DSN, required for the postgresql store"`
	Seed        bool   `default:"true" desc:"Seed sample articles into an empty store"`

	CreatorAddress   string `split_words:"true" default:"0x36F322fC85B24aB13263CFE9217B28f8E2b38381" desc:"Creator wallet with unconditional access"`
	RecipientAddress string `split_words:"true" desc:"Payment recipient, defaults to the creator address"`
	Currency         string `default:"USDC" desc:"Payment currency symbol"`
	Network          string `default:"base-sepolia" desc:"Network identifier announced in challenges"`
	ChainID          int64  `envconfig:"chain_id" default:"84532" desc:"EVM chain id used in sign-in messages"`
	TokenContract    string `split_words:"true" default:"0x036CbD53842c5426634e7929541eC2318f3dCF7e" desc:"ERC-20 token contract"`
	TokenDecimals    int    `split_words:"true" default:"6" desc:"Token decimal precision"`

	ChainBackend   string        `split_words:"true" default:"explorer" desc:"Chain verifier source: explorer, rpc or none"`
	ExplorerURL    string        `envconfig:"explorer_url" default:"https://api-sepolia.basescan.org/api" desc:"Etherscan compatible API endpoint"`
	ExplorerAPIKey string        `envconfig:"explorer_api_key" desc:"Explorer API key, required for the explorer backend"`
	RPCURL         string        `envconfig:"rpc_url" desc:"JSON-RPC endpoint, required for the rpc backend"`
	ChainTimeout   time.Duration `split_words:"true" default:"5s" desc:"Bound on every chain lookup"`
	ChainRetries   uint64        `split_words:"true" default:"2" desc:"Explorer retries on transport errors"`

	ConfirmDelay  time.Duration `split_words:"true" default:"2s" desc:"Simulated confirmation delay for wallet payments"`
	PendingTTL    time.Duration `envconfig:"pending_ttl" default:"10m" desc:"Pending payments older than this are failed"`
	SweepSchedule string        `split_words:"true" default:"@every 1m" desc:"Cron spec of the pending sweeper"`

	SessionKey  string        `split_words:"true" required:"true" desc:"HS256 session signing key"`
	SessionTTL  time.Duration `envconfig:"session_ttl" default:"24h" desc:"Session lifetime"`
	SIWEDomain  string        `envconfig:"siwe_domain" default:"localhost:5000" desc:"Domain expected in sign-in messages"`
	NonceTTL    time.Duration `envconfig:"nonce_ttl" default:"5m" desc:"Sign-in nonce lifetime"`
	ActivityCap int           `split_words:"true" default:"50" desc:"Agent activity retention cap"`

	PersistChainGrants  bool `split_words:"true" default:"true" desc:"Record chain verified access as completed payments"`
	ReadRequiresSession bool `split_words:"true" default:"false" desc:"Wallet read claims must match the signed-in wallet"`
}

// OutputUsage prints the usage string to os.Stdout.
func (c *Config) OutputUsage() {
	c.WriteUsage(os.Stdout)
}

// WriteUsage prints the usage string to w.
func (c *Config) WriteUsage(w io.Writer) {
	tabs := tabwriter.NewWriter(w, 1, 0, 4, ' ', 0)
	_ = envconfig.Usagef(envVarPrefix, c, tabs, usageListFormat)
	_ = tabs.Flush()
}

// PopulateFromEnv processes the environment vars, populates Config
// with the respective values, and validates the values.
func (c *Config) PopulateFromEnv() error {
	if err := envconfig.Process(envVarPrefix, c); err != nil {
		return err
	}
	return c.Validate()
}

// Validate checks cross-field constraints and normalises addresses.
func (c *Config) Validate() error {
	if err := c.validateStore(); err != nil {
		return err
	}
	if err := c.validateAddresses(); err != nil {
		return err
	}
	if err := c.validateChain(); err != nil {
		return err
	}
	if _, err := cron.ParseStandard(c.SweepSchedule); err != nil {
		return fmt.Errorf("invalid sweep schedule %q: %w", c.SweepSchedule, err)
	}
	if c.SessionKey == "" {
		return errors.New("session key required")
	}
	if c.ConfirmDelay < 0 || c.PendingTTL <= c.ConfirmDelay {
		return fmt.Errorf("pending ttl %s must exceed confirm delay %s", c.PendingTTL, c.ConfirmDelay)
	}
	return nil
}

func (c *Config) validateStore() error {
	switch c.Store {
	case StoreMemory:
	case StorePostgresql:
		if c.PostgresDSN == "" {
			return errors.New("postgres dsn required for the postgresql store")
		}
	default:
		return fmt.Errorf("invalid store %q; valid stores [%s %s]", c.Store, StoreMemory, StorePostgresql)
	}
	return nil
}

func (c *Config) validateAddresses() error {
	creator, ok := wallet.Normalize(c.CreatorAddress)
	if !ok {
		return fmt.Errorf("invalid creator address %q", c.CreatorAddress)
	}
	c.CreatorAddress = creator
	if strings.TrimSpace(c.RecipientAddress) == "" {
		c.RecipientAddress = creator
		return nil
	}
	recipient, ok := wallet.Normalize(c.RecipientAddress)
	if !ok {
		return fmt.Errorf("invalid recipient address %q", c.RecipientAddress)
	}
	c.RecipientAddress = recipient
	return nil
}

func (c *Config) validateChain() error {
	if c.TokenDecimals < 0 || c.TokenDecimals > 36 {
		return fmt.Errorf("invalid token decimals %d", c.TokenDecimals)
	}
	switch c.ChainBackend {
	case ChainNone:
		return nil
	case ChainExplorer:
		if c.ExplorerURL == "" {
			return errors.New("explorer url required for the explorer backend")
		}
		if c.ExplorerAPIKey == "" {
			return errors.New("explorer api key required for the explorer backend")
		}
	case ChainRPC:
		if c.RPCURL == "" {
			return errors.New("rpc url required for the rpc backend")
		}
	default:
		return fmt.Errorf("invalid chain backend %q; valid backends [%s %s %s]", c.ChainBackend, ChainExplorer, ChainRPC, ChainNone)
	}
	token, ok := wallet.Normalize(c.TokenContract)
	if !ok {
		return fmt.Errorf("invalid token contract %q", c.TokenContract)
	}
	c.TokenContract = token
	if c.ChainTimeout <= 0 {
		return errors.New("chain timeout must be positive")
	}
	return nil
}
