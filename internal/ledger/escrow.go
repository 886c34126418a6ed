package ledger

import (
	"context"
	"fmt"
	"sync"
	"time"

	u64math "MarketSettle/internal/math"

	"github.com/google/uuid"
)

// EscrowTracker is the in-process Gateway implementation. It maintains
// account balances, refuses transfers the source cannot cover, and records
// a journal entry per executed transfer. Operations against different
// markets run concurrently, so all access is mutex-guarded.
type EscrowTracker struct {
	mu       sync.Mutex
	balances map[AccountKey]uint64
	journal  []Journal

	// onJournal, when set, observes each committed transfer. Used to mirror
	// journal rows into durable storage.
	onJournal func(Journal)
}

func NewEscrowTracker() *EscrowTracker {
	return &EscrowTracker{
		balances: make(map[AccountKey]uint64),
	}
}

// SetJournalObserver installs a hook invoked after each committed transfer.
func (t *EscrowTracker) SetJournalObserver(fn func(Journal)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onJournal = fn
}

// Transfer moves amount from one account to another. The external boundary
// account is an unlimited source: funds entering the system are not balance
// checked, everything else is. A failed transfer mutates nothing. The ref
// names the operation the transfer belongs to and is journaled with it.
func (t *EscrowTracker) Transfer(ctx context.Context, from, to AccountKey, amount uint64, ref string) error {
	if amount == 0 {
		return fmt.Errorf("transfer amount must be positive")
	}
	if from == to {
		return fmt.Errorf("self-transfer: %s", from.AccountPath())
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if from.Scope != AccountScopeExternal {
		if t.balances[from] < amount {
			return fmt.Errorf("%w: account %s has %d, need %d",
				ErrInsufficientFunds, from.AccountPath(), t.balances[from], amount)
		}
	}

	credited, err := u64math.CheckedAdd(t.balances[to], amount)
	if err != nil {
		return fmt.Errorf("credit %s: %w", to.AccountPath(), err)
	}

	if from.Scope != AccountScopeExternal {
		t.balances[from] -= amount
	}
	t.balances[to] = credited

	entry := Journal{
		From:      from,
		To:        to,
		Amount:    amount,
		Reference: ref,
		Timestamp: time.Now(),
	}
	t.journal = append(t.journal, entry)
	if t.onJournal != nil {
		t.onJournal(entry)
	}

	return nil
}

// Deposit credits a user's account from the external boundary.
func (t *EscrowTracker) Deposit(ctx context.Context, userID uuid.UUID, amount uint64) error {
	return t.Transfer(ctx, ExternalAccount(), UserAccount(userID), amount, "deposit:"+userID.String())
}

// Balance returns the current balance of an account.
func (t *EscrowTracker) Balance(key AccountKey) uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.balances[key]
}

// EscrowBalance returns a market's held funds.
func (t *EscrowTracker) EscrowBalance(marketID uuid.UUID) uint64 {
	return t.Balance(EscrowAccount(marketID))
}

// VerifyEscrowCovers checks the escrow invariant for one market: the held
// balance must cover the payouts not yet disbursed.
func (t *EscrowTracker) VerifyEscrowCovers(marketID uuid.UUID, undisbursed uint64) error {
	held := t.EscrowBalance(marketID)
	if held < undisbursed {
		return fmt.Errorf("escrow %s holds %d, short of undisbursed payouts %d",
			marketID, held, undisbursed)
	}
	return nil
}

// JournalEntries returns a copy of the journal in commit order.
func (t *EscrowTracker) JournalEntries() []Journal {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Journal, len(t.journal))
	copy(out, t.journal)
	return out
}
