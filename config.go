package reservekit

import (
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Mode selects signature enforcement. The zero value is ModeProduction so a
// forgotten setting can never silently bypass signature checks.
type Mode int

const (
	// ModeProduction enforces strict eligibility signature verification
	ModeProduction Mode = iota

	// ModeDevelopment substitutes a locally-fabricated placeholder proof
	// and skips signature recovery. It must be switched on explicitly and
	// is logged loudly at construction time
	ModeDevelopment
)

func (m Mode) String() string {
	switch m {
	case ModeProduction:
		return "production"
	case ModeDevelopment:
		return "development"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// Config holds the client configuration for one escrow contract deployment
type Config struct {
	// ChainID is the target chain. Submissions are rejected client-side
	// with a wrong-network error when the signer's chain differs
	ChainID *big.Int

	// Contract is the escrow contract address
	Contract common.Address

	// TrustedSigner is the address eligibility signatures must recover
	// to. Required in production mode
	TrustedSigner common.Address

	// SignerServiceURL is the off-chain eligibility signer endpoint.
	// Required in production mode
	SignerServiceURL string

	// Mode selects production (strict) or development (signature bypass)
	Mode Mode

	// ProofTTL bounds how far in the future a proof may expire.
	// Defaults to 10 minutes, the maximum the ledger accepts
	ProofTTL time.Duration

	// ConfirmTimeout bounds each confirmation wait. On expiry the
	// operation reports still-pending rather than failure.
	// Defaults to 90 seconds
	ConfirmTimeout time.Duration

	// Logger receives debug/warn lines. Defaults to a discarding logger
	Logger *slog.Logger
}

// Validate checks the configuration and applies defaults
func (c *Config) Validate() error {
	if c.ChainID == nil || c.ChainID.Sign() <= 0 {
		return fmt.Errorf("chain id is required")
	}

	if c.Contract == (common.Address{}) {
		return fmt.Errorf("contract address is required")
	}

	if c.Mode == ModeProduction {
		if c.TrustedSigner == (common.Address{}) {
			return fmt.Errorf("trusted signer address is required in production mode")
		}
		if c.SignerServiceURL == "" {
			return fmt.Errorf("signer service URL is required in production mode")
		}
	}

	if c.ProofTTL == 0 {
		c.ProofTTL = 10 * time.Minute
	}

	if c.ConfirmTimeout == 0 {
		c.ConfirmTimeout = 90 * time.Second
	}

	if c.Logger == nil {
		c.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return nil
}

// ConfigFromEnv builds a Config from RESERVEKIT_* environment variables:
// RESERVEKIT_CHAIN_ID, RESERVEKIT_CONTRACT, RESERVEKIT_TRUSTED_SIGNER,
// RESERVEKIT_SIGNER_URL and RESERVEKIT_MODE ("production" or "development").
// Validate is not called; callers pass the result to NewCoordinator.
func ConfigFromEnv() (Config, error) {
	var cfg Config

	rawChain := os.Getenv("RESERVEKIT_CHAIN_ID")
	if rawChain == "" {
		return cfg, fmt.Errorf("RESERVEKIT_CHAIN_ID is required")
	}
	chainID, ok := new(big.Int).SetString(rawChain, 10)
	if !ok {
		return cfg, fmt.Errorf("invalid RESERVEKIT_CHAIN_ID %q", rawChain)
	}
	cfg.ChainID = chainID

	rawContract := os.Getenv("RESERVEKIT_CONTRACT")
	if !common.IsHexAddress(rawContract) {
		return cfg, fmt.Errorf("invalid RESERVEKIT_CONTRACT %q", rawContract)
	}
	cfg.Contract = common.HexToAddress(rawContract)

	if raw := os.Getenv("RESERVEKIT_TRUSTED_SIGNER"); raw != "" {
		if !common.IsHexAddress(raw) {
			return cfg, fmt.Errorf("invalid RESERVEKIT_TRUSTED_SIGNER %q", raw)
		}
		cfg.TrustedSigner = common.HexToAddress(raw)
	}

	cfg.SignerServiceURL = os.Getenv("RESERVEKIT_SIGNER_URL")

	switch mode := os.Getenv("RESERVEKIT_MODE"); mode {
	case "", "production":
		cfg.Mode = ModeProduction
	case "development":
		cfg.Mode = ModeDevelopment
	default:
		return cfg, fmt.Errorf("invalid RESERVEKIT_MODE %q", mode)
	}

	return cfg, nil
}
