package ledger

import (
	"fmt"

	"github.com/google/uuid"
)

// AccountScope represents the top-level account namespace
type AccountScope uint8

const (
	// AccountScopeUser is a bettor's or creator's funds account.
	AccountScopeUser AccountScope = iota
	// AccountScopeEscrow is a market's held-funds balance, funded by stakes
	// and drawn down by payouts.
	AccountScopeEscrow
	// AccountScopeExternal is the boundary account funds enter the system
	// through.
	AccountScopeExternal
)

// AccountKey is the in-memory key for balance tracking (17 bytes, cache-friendly)
type AccountKey struct {
	Scope    AccountScope
	EntityID [16]byte // user identity or market id; zero for external
}

// UserAccount returns the key for a user's funds account.
func UserAccount(userID uuid.UUID) AccountKey {
	return AccountKey{Scope: AccountScopeUser, EntityID: userID}
}

// EscrowAccount returns the key for a market's escrow account.
func EscrowAccount(marketID uuid.UUID) AccountKey {
	return AccountKey{Scope: AccountScopeEscrow, EntityID: marketID}
}

// ExternalAccount returns the external boundary account key.
func ExternalAccount() AccountKey {
	return AccountKey{Scope: AccountScopeExternal}
}

// AccountPath returns the string representation for storage/logging
func (k AccountKey) AccountPath() string {
	switch k.Scope {
	case AccountScopeUser:
		return fmt.Sprintf("user:%s", uuid.UUID(k.EntityID).String())
	case AccountScopeEscrow:
		return fmt.Sprintf("escrow:%s", uuid.UUID(k.EntityID).String())
	case AccountScopeExternal:
		return "external:deposits"
	}
	return "unknown"
}
