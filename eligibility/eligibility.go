// Package eligibility builds and validates the signed, time-bounded proofs
// that gate reservation creation. The production path fetches proofs from a
// trusted off-chain signer and verifies that signatures recover to the
// configured trusted-signer address; the development path fabricates a
// syntactically valid placeholder and skips recovery, loudly.
package eligibility

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"

	"github.com/becomeliminal/reservekit"
)

// Typed-data schema binding {user, listingId, expiry, nonce} to the protocol
// domain. Changing any of this invalidates every signature in flight.
const (
	domainName    = "StayEscrow"
	domainVersion = "1"
	primaryType   = "Eligibility"
)

// Service implements reservekit.ProofService
type Service struct {
	mode     reservekit.Mode
	chainID  *big.Int
	contract common.Address
	trusted  common.Address
	maxTTL   time.Duration
	client   *SignerClient
	log      *slog.Logger

	// now is replaced in tests to pin the TTL window
	now func() time.Time
}

// New creates a proof service from the client configuration
func New(cfg reservekit.Config) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	s := &Service{
		mode:     cfg.Mode,
		chainID:  cfg.ChainID,
		contract: cfg.Contract,
		trusted:  cfg.TrustedSigner,
		maxTTL:   cfg.ProofTTL,
		log:      cfg.Logger,
		now:      time.Now,
	}

	if cfg.Mode == reservekit.ModeDevelopment {
		s.log.Warn("eligibility proofs are FABRICATED and signature recovery is BYPASSED (development mode)")
	} else {
		s.client = NewSignerClient(cfg.SignerServiceURL)
	}

	return s, nil
}

// BuildProof obtains a proof that signer may reserve listingID. In
// production it round-trips to the trusted signer service and verifies the
// returned signature before handing it out; in development it fabricates a
// placeholder locally.
func (s *Service) BuildProof(ctx context.Context, signer common.Address, listingID *big.Int) (reservekit.EligibilityProof, error) {
	if s.mode == reservekit.ModeDevelopment {
		return s.placeholderProof(signer, listingID)
	}

	resp, err := s.client.Sign(ctx, signer, listingID)
	if err != nil {
		return reservekit.EligibilityProof{}, fmt.Errorf("fetch eligibility proof: %w", err)
	}

	proof := reservekit.EligibilityProof{
		Expiry:    resp.Expiry,
		Nonce:     resp.Nonce,
		Signature: resp.Signature,
	}

	// Never hand out a proof the ledger would reject
	if err := s.Validate(proof); err != nil {
		return reservekit.EligibilityProof{}, err
	}
	if err := s.Verify(proof, signer, listingID); err != nil {
		return reservekit.EligibilityProof{}, err
	}

	return proof, nil
}

// Validate runs the TTL and signature format checks. It performs no I/O and
// is called before every submission.
func (s *Service) Validate(proof reservekit.EligibilityProof) error {
	now := uint64(s.now().Unix())

	if proof.Expiry < now {
		return reservekit.ErrProofExpired
	}

	if proof.Expiry > now+uint64(s.maxTTL/time.Second) {
		return reservekit.ErrProofTTLTooLong
	}

	return checkSignatureFormat(proof.Signature)
}

// Verify checks that the proof's signature recovers to the trusted signer
// for the given signer address and listing. In development mode recovery is
// skipped; the bypass is logged on every call.
func (s *Service) Verify(proof reservekit.EligibilityProof, signer common.Address, listingID *big.Int) error {
	if s.mode == reservekit.ModeDevelopment {
		s.log.Warn("skipping eligibility signature recovery (development mode)",
			"signer", signer, "listing", listingID)
		return nil
	}

	if err := checkSignatureFormat(proof.Signature); err != nil {
		return err
	}

	hash, _, err := apitypes.TypedDataAndHash(s.typedData(signer, listingID, proof.Expiry, proof.Nonce))
	if err != nil {
		return fmt.Errorf("hash typed data: %w", err)
	}

	sig := make([]byte, len(proof.Signature))
	copy(sig, proof.Signature)
	if sig[64] >= 27 {
		sig[64] -= 27
	}

	pub, err := crypto.SigToPub(hash, sig)
	if err != nil {
		return fmt.Errorf("%w: %v", reservekit.ErrProofMalformed, err)
	}

	if crypto.PubkeyToAddress(*pub) != s.trusted {
		return reservekit.ErrUntrustedSigner
	}

	return nil
}

// typedData builds the fixed structured-data payload the trusted signer
// signs: domain {name, version, chainId, verifyingContract} over
// Eligibility{user, listingId, expiry, nonce}.
func (s *Service) typedData(user common.Address, listingID *big.Int, expiry, nonce uint64) apitypes.TypedData {
	return apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": []apitypes.Type{
				{Name: "name", Type: "string"},
				{Name: "version", Type: "string"},
				{Name: "chainId", Type: "uint256"},
				{Name: "verifyingContract", Type: "address"},
			},
			primaryType: []apitypes.Type{
				{Name: "user", Type: "address"},
				{Name: "listingId", Type: "uint256"},
				{Name: "expiry", Type: "uint64"},
				{Name: "nonce", Type: "uint64"},
			},
		},
		PrimaryType: primaryType,
		Domain: apitypes.TypedDataDomain{
			Name:              domainName,
			Version:           domainVersion,
			ChainId:           (*math.HexOrDecimal256)(s.chainID),
			VerifyingContract: s.contract.Hex(),
		},
		Message: apitypes.TypedDataMessage{
			"user":      user.Hex(),
			"listingId": (*math.HexOrDecimal256)(listingID),
			"expiry":    (*math.HexOrDecimal256)(new(big.Int).SetUint64(expiry)),
			"nonce":     (*math.HexOrDecimal256)(new(big.Int).SetUint64(nonce)),
		},
	}
}

// placeholderProof fabricates a syntactically valid proof for development
// configurations: 65 bytes, non-zero r/s, recovery id 27. It will never
// recover to anything meaningful.
func (s *Service) placeholderProof(signer common.Address, listingID *big.Int) (reservekit.EligibilityProof, error) {
	nonce, err := randomNonce()
	if err != nil {
		return reservekit.EligibilityProof{}, fmt.Errorf("generate nonce: %w", err)
	}

	seed := make([]byte, 0, 60)
	seed = append(seed, signer.Bytes()...)
	seed = append(seed, listingID.Bytes()...)
	seed = binary.BigEndian.AppendUint64(seed, nonce)

	sig := make([]byte, 65)
	copy(sig[:32], crypto.Keccak256(append(seed, 'r')))
	copy(sig[32:64], crypto.Keccak256(append(seed, 's')))
	sig[64] = 27

	return reservekit.EligibilityProof{
		Expiry:    uint64(s.now().Add(5 * time.Minute).Unix()),
		Nonce:     nonce,
		Signature: sig,
	}, nil
}

// checkSignatureFormat enforces the recoverable-signature shape: exactly 65
// bytes, non-zero r and s, recovery id in {0, 1, 27, 28}.
func checkSignatureFormat(sig []byte) error {
	if len(sig) != 65 {
		return fmt.Errorf("%w: expected 65 bytes, got %d", reservekit.ErrProofMalformed, len(sig))
	}

	if allZero(sig[:32]) || allZero(sig[32:64]) {
		return fmt.Errorf("%w: zero r or s component", reservekit.ErrProofMalformed)
	}

	switch sig[64] {
	case 0, 1, 27, 28:
	default:
		return fmt.Errorf("%w: invalid recovery id %d", reservekit.ErrProofMalformed, sig[64])
	}

	return nil
}

func allZero(b []byte) bool {
	for _, v := range b {
		if v != 0 {
			return false
		}
	}
	return true
}

func randomNonce() (uint64, error) {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(buf[:]), nil
}
