package wallet

import (
	"time"

	"github.com/shopspring/decimal"
)

const CurrencyToken = "TOKEN"

type TransactionType string

const (
	TransactionTypeAdd    TransactionType = "ADD"
	TransactionTypeDeduct TransactionType = "DEDUCT"
)

func (t TransactionType) Valid() bool {
	return t == TransactionTypeAdd || t == TransactionTypeDeduct
}

// StatusCompleted is the only status ever persisted.
const StatusCompleted = "COMPLETED"

const (
	DefaultAddDescription    = "Add tokens to wallet"
	DefaultDeductDescription = "Deduct tokens from wallet"
)

type Wallet struct {
	ID        string          `gorm:"column:id;primaryKey" json:"id"`
	UserID    string          `gorm:"column:user_id;index;uniqueIndex:idx_wallets_active_user,where:is_active = true" json:"userId"`
	Balance   decimal.Decimal `gorm:"column:balance;type:decimal(20,2);not null" json:"balance"`
	Currency  string          `gorm:"column:currency" json:"currency"`
	Version   int64           `gorm:"column:version;not null" json:"version"`
	IsActive  bool            `gorm:"column:is_active;index" json:"isActive"`
	CreatedAt time.Time       `gorm:"column:created_at" json:"createdAt"`
	UpdatedAt time.Time       `gorm:"column:updated_at" json:"updatedAt"`
}

func (Wallet) TableName() string { return "wallets" }

type Transaction struct {
	ID              string          `gorm:"column:id;primaryKey" json:"transactionId"`
	UserID          string          `gorm:"column:user_id;uniqueIndex:idx_wallet_transactions_user_key,priority:1" json:"userId"`
	WalletID        string          `gorm:"column:wallet_id;index" json:"walletId"`
	Type            TransactionType `gorm:"column:type" json:"type"`
	Amount          decimal.Decimal `gorm:"column:amount;type:decimal(20,2)" json:"amount"`
	PreviousBalance decimal.Decimal `gorm:"column:previous_balance;type:decimal(20,2)" json:"previousBalance"`
	NewBalance      decimal.Decimal `gorm:"column:new_balance;type:decimal(20,2)" json:"newBalance"`
	Description     string          `gorm:"column:description" json:"description"`
	Status          string          `gorm:"column:status" json:"status"`
	IdempotencyKey  string          `gorm:"column:idempotency_key;uniqueIndex:idx_wallet_transactions_user_key,priority:2" json:"idempotencyKey"`
	CreatedAt       time.Time       `gorm:"column:created_at;index" json:"createdAt"`
	UpdatedAt       time.Time       `gorm:"column:updated_at" json:"updatedAt"`
}

func (Transaction) TableName() string { return "wallet_transactions" }

// Apply returns the balance after applying a mutation of this type.
func (t TransactionType) Apply(balance, amount decimal.Decimal) decimal.Decimal {
	if t == TransactionTypeDeduct {
		return balance.Sub(amount)
	}
	return balance.Add(amount)
}

type TransactionOutcome string

const (
	TransactionOutcomeCompleted           TransactionOutcome = "COMPLETED"
	TransactionOutcomeReplayed            TransactionOutcome = "REPLAYED"
	TransactionOutcomeInsufficientBalance TransactionOutcome = "INSUFFICIENT_BALANCE"
)

// TransactionResult carries the record for Completed and Replayed outcomes.
// For InsufficientBalance, Transaction is nil and Wallet holds the unchanged snapshot.
type TransactionResult struct {
	Outcome     TransactionOutcome
	Transaction *Transaction
	Wallet      *Wallet
}

type AddTokensRequest struct {
	UserID         string
	Amount         decimal.Decimal
	IdempotencyKey string
	Description    string
}

type DeductTokensRequest struct {
	UserID         string
	Amount         decimal.Decimal
	IdempotencyKey string
	Description    string
}

type ListTransactionsFilter struct {
	Type   TransactionType
	Limit  int
	Offset int
}

const (
	DefaultListLimit = 50
	MaxListLimit     = 1000
)
