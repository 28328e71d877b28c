package reservekit

import (
	"context"
	"fmt"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

var (
	testChainID  = big.NewInt(1337)
	escrowAddr   = common.HexToAddress("0xAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA")
	tokenAddr    = common.HexToAddress("0xBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBB")
	builderAddr  = common.HexToAddress("0xCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCC")
)

// mockBackend simulates the escrow contract and an ERC-20 payment token.
// Receipts are produced synchronously on SendTransaction so confirmation
// waits resolve on the first poll.
type mockBackend struct {
	chainID *big.Int

	reservations map[uint64]*ReservationRecord
	listings     map[uint64]*ListingSnapshot
	allowance    *big.Int
	balance      *big.Int

	// nextID is the reservation id the next createReservation emits
	nextID uint64

	// activates is emitted verbatim on the ReservationFunded event
	activates bool

	nonce    uint64
	sent     []*types.Transaction
	receipts map[common.Hash]*types.Receipt

	estimateErr error // surfaces at gas estimation, like a node-side revert
	callErr     error // surfaces on read calls
	omitLogs    bool  // mine successfully but emit no events
	failStatus  bool  // mine with failed status
}

func newMockBackend() *mockBackend {
	return &mockBackend{
		chainID:      new(big.Int).Set(testChainID),
		reservations: make(map[uint64]*ReservationRecord),
		listings:     make(map[uint64]*ListingSnapshot),
		allowance:    big.NewInt(0),
		balance:      big.NewInt(0),
		nextID:       1,
		receipts:     make(map[common.Hash]*types.Receipt),
	}
}

func (m *mockBackend) addListing(id uint64, paymentToken common.Address, nightlyRate int64) {
	m.listings[id] = &ListingSnapshot{
		ID:           new(big.Int).SetUint64(id),
		Builder:      builderAddr,
		PaymentToken: paymentToken,
		NightlyRate:  big.NewInt(nightlyRate),
		MaxGuests:    4,
		Active:       true,
	}
}

func (m *mockBackend) addReservation(id, listingID uint64, totalDue, amountPaid int64, active bool) {
	m.reservations[id] = &ReservationRecord{
		ID:         new(big.Int).SetUint64(id),
		ListingID:  new(big.Int).SetUint64(listingID),
		Renter:     builderAddr,
		StartDate:  1_700_000_000,
		EndDate:    1_700_000_000 + 2*86400,
		TotalDue:   big.NewInt(totalDue),
		AmountPaid: big.NewInt(amountPaid),
		Active:     active,
	}
}

func (m *mockBackend) ChainID(ctx context.Context) (*big.Int, error) {
	return m.chainID, nil
}

func (m *mockBackend) CodeAt(ctx context.Context, contract common.Address, blockNumber *big.Int) ([]byte, error) {
	return []byte{0x01}, nil
}

func (m *mockBackend) PendingCodeAt(ctx context.Context, account common.Address) ([]byte, error) {
	return []byte{0x01}, nil
}

func (m *mockBackend) CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	if m.callErr != nil {
		return nil, m.callErr
	}
	if call.To == nil || len(call.Data) < 4 {
		return nil, fmt.Errorf("malformed call")
	}

	if *call.To == tokenAddr {
		method, err := erc20ABI.MethodById(call.Data[:4])
		if err != nil {
			return nil, err
		}
		switch method.Name {
		case "allowance":
			return method.Outputs.Pack(m.allowance)
		case "balanceOf":
			return method.Outputs.Pack(m.balance)
		}
		return nil, fmt.Errorf("unexpected token call %s", method.Name)
	}

	method, err := escrowABI.MethodById(call.Data[:4])
	if err != nil {
		return nil, err
	}

	args, err := method.Inputs.Unpack(call.Data[4:])
	if err != nil {
		return nil, err
	}

	switch method.Name {
	case "reservations":
		id := args[0].(*big.Int).Uint64()
		r, ok := m.reservations[id]
		if !ok {
			r = &ReservationRecord{
				ListingID:  big.NewInt(0),
				TotalDue:   big.NewInt(0),
				AmountPaid: big.NewInt(0),
			}
		}
		return method.Outputs.Pack(r.ListingID, r.Renter, r.StartDate, r.EndDate, r.TotalDue, r.AmountPaid, r.Active)
	case "listings":
		id := args[0].(*big.Int).Uint64()
		l, ok := m.listings[id]
		if !ok {
			l = &ListingSnapshot{NightlyRate: big.NewInt(0)}
		}
		return method.Outputs.Pack(l.Builder, l.PaymentToken, l.NightlyRate, l.MaxGuests, l.RequiresProof, l.Active)
	}

	return nil, fmt.Errorf("unexpected escrow call %s", method.Name)
}

func (m *mockBackend) HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error) {
	// No base fee: transactions take the legacy gas-price path
	return &types.Header{Number: big.NewInt(1)}, nil
}

func (m *mockBackend) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	return m.nonce, nil
}

func (m *mockBackend) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	return big.NewInt(1_000_000_000), nil
}

func (m *mockBackend) SuggestGasTipCap(ctx context.Context) (*big.Int, error) {
	return big.NewInt(1), nil
}

func (m *mockBackend) EstimateGas(ctx context.Context, call ethereum.CallMsg) (uint64, error) {
	if m.estimateErr != nil {
		return 0, m.estimateErr
	}
	return 210_000, nil
}

func (m *mockBackend) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	m.sent = append(m.sent, tx)
	m.nonce++

	receipt := &types.Receipt{
		Status:      types.ReceiptStatusSuccessful,
		TxHash:      tx.Hash(),
		BlockNumber: big.NewInt(1),
	}
	if m.failStatus {
		receipt.Status = types.ReceiptStatusFailed
	}

	if receipt.Status == types.ReceiptStatusSuccessful {
		if entry := m.apply(tx); entry != nil && !m.omitLogs {
			receipt.Logs = []*types.Log{entry}
		}
	}

	m.receipts[tx.Hash()] = receipt
	return nil
}

func (m *mockBackend) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	receipt, ok := m.receipts[txHash]
	if !ok {
		return nil, ethereum.NotFound
	}
	return receipt, nil
}

func (m *mockBackend) FilterLogs(ctx context.Context, query ethereum.FilterQuery) ([]types.Log, error) {
	return nil, nil
}

func (m *mockBackend) SubscribeFilterLogs(ctx context.Context, query ethereum.FilterQuery, ch chan<- types.Log) (ethereum.Subscription, error) {
	return nil, fmt.Errorf("subscriptions not supported")
}

// apply mutates mock state for a state-changing call and returns the event
// log the contract would emit.
func (m *mockBackend) apply(tx *types.Transaction) *types.Log {
	to := tx.To()
	data := tx.Data()
	if to == nil || len(data) < 4 {
		return nil
	}

	sender, err := types.Sender(types.LatestSignerForChainID(m.chainID), tx)
	if err != nil {
		return nil
	}

	if *to == tokenAddr {
		method, err := erc20ABI.MethodById(data[:4])
		if err != nil || method.Name != "approve" {
			return nil
		}
		args, err := method.Inputs.Unpack(data[4:])
		if err != nil {
			return nil
		}
		m.allowance = args[1].(*big.Int)
		return nil
	}

	if *to != escrowAddr {
		return nil
	}

	method, err := escrowABI.MethodById(data[:4])
	if err != nil {
		return nil
	}
	args, err := method.Inputs.Unpack(data[4:])
	if err != nil {
		return nil
	}

	switch method.Name {
	case "createReservation":
		listingID := args[0].(*big.Int)
		nights := args[3].(uint32)

		listing, ok := m.listings[listingID.Uint64()]
		if !ok {
			listing = &ListingSnapshot{NightlyRate: big.NewInt(0)}
		}
		totalDue := new(big.Int).Mul(listing.NightlyRate, big.NewInt(int64(nights)))

		id := m.nextID
		m.nextID++
		m.reservations[id] = &ReservationRecord{
			ID:         new(big.Int).SetUint64(id),
			ListingID:  listingID,
			Renter:     sender,
			StartDate:  args[1].(uint64),
			EndDate:    args[2].(uint64),
			TotalDue:   totalDue,
			AmountPaid: big.NewInt(0),
		}

		event := escrowABI.Events[eventReservationCreated]
		payload, err := event.Inputs.NonIndexed().Pack(args[1].(uint64), args[2].(uint64), totalDue)
		if err != nil {
			return nil
		}
		return &types.Log{
			Address: escrowAddr,
			Topics: []common.Hash{
				event.ID,
				common.BigToHash(new(big.Int).SetUint64(id)),
				common.BigToHash(listingID),
				common.BytesToHash(sender.Bytes()),
			},
			Data: payload,
		}

	case "fundReservation":
		id := args[0].(*big.Int)
		amount := args[1].(*big.Int)

		record, ok := m.reservations[id.Uint64()]
		if !ok {
			return nil
		}
		record.AmountPaid = new(big.Int).Add(record.AmountPaid, amount)

		event := escrowABI.Events[eventReservationFunded]
		payload, err := event.Inputs.NonIndexed().Pack(amount, record.AmountPaid, m.activates)
		if err != nil {
			return nil
		}
		return &types.Log{
			Address: escrowAddr,
			Topics: []common.Hash{
				event.ID,
				common.BigToHash(id),
				common.BytesToHash(sender.Bytes()),
			},
			Data: payload,
		}

	case "addGuest":
		event := escrowABI.Events[eventGuestAdded]
		return &types.Log{
			Address: escrowAddr,
			Topics: []common.Hash{
				event.ID,
				common.BigToHash(args[0].(*big.Int)),
				common.BytesToHash(args[1].(common.Address).Bytes()),
			},
		}
	}

	return nil
}

// stubProofs satisfies ProofService without an off-chain round-trip
type stubProofs struct {
	validateErr error
}

func (s *stubProofs) BuildProof(ctx context.Context, signer common.Address, listingID *big.Int) (EligibilityProof, error) {
	return testProof(), nil
}

func (s *stubProofs) Validate(proof EligibilityProof) error {
	return s.validateErr
}

func testProof() EligibilityProof {
	sig := make([]byte, 65)
	for i := range sig[:64] {
		sig[i] = 0x01
	}
	sig[64] = 27
	return EligibilityProof{Expiry: 1_800_000_000, Nonce: 7, Signature: sig}
}

func testOpts(t *testing.T) *bind.TransactOpts {
	t.Helper()

	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}

	opts, err := bind.NewKeyedTransactorWithChainID(key, testChainID)
	if err != nil {
		t.Fatalf("failed to build transactor: %v", err)
	}
	return opts
}

func testCoordinator(t *testing.T, backend *mockBackend, proofs ProofService) *Coordinator {
	t.Helper()

	if proofs == nil {
		proofs = &stubProofs{}
	}

	coord, err := NewCoordinator(Config{
		ChainID:  testChainID,
		Contract: escrowAddr,
		Mode:     ModeDevelopment,
	}, backend, proofs)
	if err != nil {
		t.Fatalf("failed to build coordinator: %v", err)
	}
	return coord
}
