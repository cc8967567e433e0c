package core

import (
	"context"
	"sync"

	"splitpay/core/events"
	"splitpay/core/state"
	"splitpay/native/common"
	"splitpay/native/registry"
	"splitpay/native/settlement"
	"splitpay/native/swap"
	"splitpay/storage"
)

// Node owns the database handle and serialises all state mutations. Each
// operation runs against a fresh storage overlay; the overlay is committed
// only when the engine call succeeds, so a failed finalize leaves no partial
// swap or fee writes behind.
type Node struct {
	mu      sync.Mutex
	db      storage.Database
	venue   swap.Venue
	emitter events.Emitter
	fees    settlement.FeePolicy
}

// NewNode creates a node on top of the given database with the default fee
// policy and a no-op event emitter.
func NewNode(db storage.Database) *Node {
	return &Node{
		db:      db,
		emitter: events.NoopEmitter{},
		fees:    settlement.DefaultFeePolicy(),
	}
}

// SetVenue configures the external swap venue used during settlement.
func (n *Node) SetVenue(venue swap.Venue) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.venue = venue
}

// SetEmitter configures the event emitter. Passing nil resets to no-op.
func (n *Node) SetEmitter(emitter events.Emitter) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if emitter == nil {
		n.emitter = events.NoopEmitter{}
		return
	}
	n.emitter = emitter
}

// SetFeePolicy overrides the protocol fee constants applied at finalize.
func (n *Node) SetFeePolicy(policy settlement.FeePolicy) error {
	if err := policy.Validate(); err != nil {
		return err
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.fees = policy
	return nil
}

func (n *Node) settlementEngine(manager *state.Manager) *settlement.Engine {
	engine := settlement.NewEngine()
	engine.SetState(manager)
	engine.SetVenue(n.venue)
	engine.SetEmitter(n.emitter)
	engine.SetFeePolicy(n.fees)
	return engine
}

func (n *Node) registryEngine(manager *state.Manager) *registry.Engine {
	engine := registry.NewEngine()
	engine.SetState(manager)
	engine.SetEmitter(n.emitter)
	return engine
}

// withOverlay runs fn against a buffered view of the database and commits the
// buffered writes only when fn succeeds.
func (n *Node) withOverlay(fn func(manager *state.Manager) error) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	overlay := storage.NewOverlay(n.db)
	if err := fn(state.NewManager(overlay)); err != nil {
		overlay.Close()
		return err
	}
	return overlay.Commit()
}

// withView runs fn against the database without buffering. Read-only.
func (n *Node) withView(fn func(manager *state.Manager) error) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	return fn(state.NewManager(n.db))
}

// RegisterMerchant creates or replaces a merchant's settlement configuration.
func (n *Node) RegisterMerchant(addr [20]byte, acceptedTokens []string, fallbackToken string) (*registry.Merchant, error) {
	var record *registry.Merchant
	err := n.withOverlay(func(manager *state.Manager) error {
		var innerErr error
		record, innerErr = n.registryEngine(manager).Register(addr, acceptedTokens, fallbackToken)
		return innerErr
	})
	if err != nil {
		return nil, err
	}
	return record, nil
}

// Merchant loads a merchant's settlement configuration.
func (n *Node) Merchant(addr [20]byte) (*registry.Merchant, error) {
	var record *registry.Merchant
	err := n.withView(func(manager *state.Manager) error {
		var innerErr error
		record, innerErr = n.registryEngine(manager).Get(addr)
		return innerErr
	})
	if err != nil {
		return nil, err
	}
	return record, nil
}

// CreateSession opens a new pending payment session.
func (n *Node) CreateSession(payer, merchant [20]byte, preferredToken string, splits []settlement.SplitToken, totalRequested, nonce uint64) (*settlement.PaymentSession, error) {
	var session *settlement.PaymentSession
	err := n.withOverlay(func(manager *state.Manager) error {
		var innerErr error
		session, innerErr = n.settlementEngine(manager).CreateSession(payer, merchant, preferredToken, splits, totalRequested, nonce)
		return innerErr
	})
	if err != nil {
		return nil, err
	}
	return session, nil
}

// Deposit moves payer funds into a session's escrow custody.
func (n *Node) Deposit(id [32]byte, caller [20]byte, token string, amount uint64) error {
	return n.withOverlay(func(manager *state.Manager) error {
		return n.settlementEngine(manager).Deposit(id, caller, token, amount)
	})
}

// Finalize settles a pending session. All swap, fee and payout writes land
// atomically with the Completed status, and the receipt is persisted for
// later lookup.
func (n *Node) Finalize(ctx context.Context, req settlement.FinalizeRequest) (*settlement.SettlementReceipt, error) {
	var receipt *settlement.SettlementReceipt
	err := n.withOverlay(func(manager *state.Manager) error {
		var innerErr error
		receipt, innerErr = n.settlementEngine(manager).Finalize(ctx, req)
		if innerErr != nil {
			return innerErr
		}
		return manager.ReceiptPut(receipt)
	})
	if err != nil {
		return nil, err
	}
	return receipt, nil
}

// Cancel refunds a pending session's escrow holdings to the payer.
func (n *Node) Cancel(id [32]byte, caller [20]byte) error {
	return n.withOverlay(func(manager *state.Manager) error {
		return n.settlementEngine(manager).Cancel(id, caller)
	})
}

// WithdrawFees sweeps accumulated protocol fees to the admin account. Caller
// authentication is the RPC layer's responsibility.
func (n *Node) WithdrawFees(admin [20]byte, token string, amount uint64) error {
	return n.withOverlay(func(manager *state.Manager) error {
		return n.settlementEngine(manager).WithdrawFees(admin, token, amount)
	})
}

// FundAccount credits an account balance directly. Exposed for local
// development and tests; production deployments keep the funding RPC
// disabled.
func (n *Node) FundAccount(addr [20]byte, token string, amount uint64) error {
	normalized, err := common.NormalizeToken(token)
	if err != nil {
		return err
	}
	return n.withOverlay(func(manager *state.Manager) error {
		return manager.Credit(addr, normalized, amount)
	})
}

// Session loads a payment session by id.
func (n *Node) Session(id [32]byte) (*settlement.PaymentSession, error) {
	var session *settlement.PaymentSession
	err := n.withView(func(manager *state.Manager) error {
		var innerErr error
		session, innerErr = n.settlementEngine(manager).Session(id)
		return innerErr
	})
	if err != nil {
		return nil, err
	}
	return session, nil
}

// Receipt loads a settlement receipt by identifier.
func (n *Node) Receipt(id string) (*settlement.SettlementReceipt, error) {
	var receipt *settlement.SettlementReceipt
	err := n.withView(func(manager *state.Manager) error {
		loaded, ok, innerErr := manager.ReceiptGet(id)
		if innerErr != nil {
			return innerErr
		}
		if !ok {
			return settlement.ErrReceiptNotFound
		}
		receipt = loaded
		return nil
	})
	if err != nil {
		return nil, err
	}
	return receipt, nil
}

// Balance reports an account's balance for a token.
func (n *Node) Balance(addr [20]byte, token string) (uint64, error) {
	normalized, err := common.NormalizeToken(token)
	if err != nil {
		return 0, err
	}
	var balance uint64
	err = n.withView(func(manager *state.Manager) error {
		var innerErr error
		balance, innerErr = manager.BalanceOf(addr, normalized)
		return innerErr
	})
	return balance, err
}

// EscrowBalance reports a session escrow's balance for a token.
func (n *Node) EscrowBalance(id [32]byte, token string) (uint64, error) {
	var balance uint64
	err := n.withView(func(manager *state.Manager) error {
		var innerErr error
		balance, innerErr = n.settlementEngine(manager).EscrowBalance(id, token)
		return innerErr
	})
	return balance, err
}

// FeeSinkBalance reports the accumulated protocol fees for a token.
func (n *Node) FeeSinkBalance(token string) (uint64, error) {
	var balance uint64
	err := n.withView(func(manager *state.Manager) error {
		var innerErr error
		balance, innerErr = n.settlementEngine(manager).FeeSinkBalance(token)
		return innerErr
	})
	return balance, err
}
