package wallet

import (
	"context"
	"errors"
	"fmt"
	"time"

	"flyerportal/pkg/db"
	"flyerportal/pkg/db/option"
	"flyerportal/pkg/db/pagination"
	"flyerportal/pkg/errutil"
	"flyerportal/pkg/events"
	"flyerportal/pkg/repository"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	ErrUserIDRequired         = errutil.BadRequest("User ID is required", nil)
	ErrWalletNotFound         = errutil.NotFound("Wallet not found", nil)
	ErrInvalidAmount          = errutil.BadRequest("Amount must be greater than 0", nil)
	ErrAmountPrecision        = errutil.BadRequest("Amount must have at most 2 decimal places", nil)
	ErrIdempotencyKeyRequired = errutil.BadRequest("Idempotency key is required", nil)
	ErrTransactionNotFound    = errutil.NotFound("Transaction not found", nil)
)

type Service struct {
	db        *gorm.DB
	node      *snowflake.Node
	publisher events.Publisher

	wallet      repository.Repository[Wallet]
	transaction repository.Repository[Transaction]
}

type ServiceParams struct {
	fx.In
	DB        *gorm.DB
	Node      *snowflake.Node
	Publisher events.Publisher `optional:"true"`
}

func NewService(p ServiceParams) *Service {
	publisher := p.Publisher
	if publisher == nil {
		publisher = events.NewNoop()
	}

	return &Service{
		db:        p.DB,
		node:      p.Node,
		publisher: publisher,

		wallet:      repository.ProvideStore[Wallet](p.DB),
		transaction: repository.ProvideStore[Transaction](p.DB),
	}
}

func spanFields(ctx context.Context) []zap.Field {
	sc := trace.SpanFromContext(ctx).SpanContext()
	return []zap.Field{
		zap.String("trace_id", sc.TraceID().String()),
		zap.String("span_id", sc.SpanID().String()),
	}
}

func (s *Service) AddTokens(ctx context.Context, req AddTokensRequest) (*TransactionResult, error) {
	description := req.Description
	if description == "" {
		description = DefaultAddDescription
	}
	return s.mutate(ctx, TransactionTypeAdd, req.UserID, req.Amount, req.IdempotencyKey, description)
}

func (s *Service) DeductTokens(ctx context.Context, req DeductTokensRequest) (*TransactionResult, error) {
	description := req.Description
	if description == "" {
		description = DefaultDeductDescription
	}
	return s.mutate(ctx, TransactionTypeDeduct, req.UserID, req.Amount, req.IdempotencyKey, description)
}

// mutate applies one idempotent balance change. The idempotency lookup, the
// balance check and both writes share a transaction holding the wallet row lock.
func (s *Service) mutate(ctx context.Context, typ TransactionType, userID string, amount decimal.Decimal, key, description string) (*TransactionResult, error) {
	logger := zap.L().With(spanFields(ctx)...).With(
		zap.String("user_id", userID),
		zap.String("type", string(typ)),
		zap.String("idempotency_key", key),
	)

	if userID == "" {
		return nil, ErrUserIDRequired
	}
	if !amount.IsPositive() {
		return nil, ErrInvalidAmount
	}
	if !HasCentPrecision(amount) {
		return nil, ErrAmountPrecision
	}
	if key == "" {
		return nil, ErrIdempotencyKeyRequired
	}

	var result *TransactionResult
	err := db.Transaction(ctx, s.db, func(tx *gorm.DB) error {
		result = nil

		w, err := s.FindActiveWallet(ctx, tx, userID)
		if errors.Is(err, ErrWalletNotFound) {
			// A stored result outlives the wallet it was applied to.
			result, err = s.replayWithoutWallet(ctx, tx, userID, key)
			if err != nil {
				return err
			}
			if result == nil {
				return ErrWalletNotFound
			}
			return nil
		}
		if err != nil {
			return err
		}

		existing, err := s.transaction.WithTrx(tx).FindOne(ctx, &Transaction{
			UserID:         userID,
			IdempotencyKey: key,
		})
		if err != nil {
			return err
		}
		if existing != nil {
			result = &TransactionResult{Outcome: TransactionOutcomeReplayed, Transaction: existing, Wallet: w}
			return nil
		}

		if typ == TransactionTypeDeduct && w.Balance.LessThan(amount) {
			result = &TransactionResult{Outcome: TransactionOutcomeInsufficientBalance, Wallet: w}
			return nil
		}

		previous := w.Balance
		if err := s.Apply(ctx, tx, w, typ, amount); err != nil {
			return err
		}

		record := &Transaction{
			ID:              s.node.Generate().String(),
			UserID:          userID,
			WalletID:        w.ID,
			Type:            typ,
			Amount:          amount,
			PreviousBalance: previous,
			NewBalance:      w.Balance,
			Description:     description,
			Status:          StatusCompleted,
			IdempotencyKey:  key,
			CreatedAt:       w.UpdatedAt,
			UpdatedAt:       w.UpdatedAt,
		}
		if err := s.transaction.WithTrx(tx).Create(ctx, record); err != nil {
			return err
		}

		result = &TransactionResult{Outcome: TransactionOutcomeCompleted, Transaction: record, Wallet: w}
		return nil
	})
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		logger.Info("idempotency key raced, replaying stored transaction")
		return s.replay(ctx, userID, key)
	}
	if err != nil {
		if _, ok := errutil.As(err); ok {
			return nil, err
		}
		logger.Error("failed to apply wallet transaction", zap.Error(err))
		return nil, fmt.Errorf("wallet transaction: %w", err)
	}

	switch result.Outcome {
	case TransactionOutcomeCompleted:
		logger.Info("wallet transaction completed",
			zap.String("transaction_id", result.Transaction.ID),
			zap.String("amount", amount.StringFixed(2)),
		)
		events.PublishQuietly(ctx, s.publisher, events.Event{
			Subject: events.SubjectWalletTransactionCompleted,
			Key:     result.Transaction.ID,
			Payload: result.Transaction,
		})
	case TransactionOutcomeReplayed:
		logger.Info("wallet transaction replayed", zap.String("transaction_id", result.Transaction.ID))
	case TransactionOutcomeInsufficientBalance:
		logger.Info("wallet transaction rejected: insufficient balance")
	}

	return result, nil
}

func (s *Service) replay(ctx context.Context, userID, key string) (*TransactionResult, error) {
	existing, err := s.transaction.FindOne(ctx, &Transaction{UserID: userID, IdempotencyKey: key})
	if err != nil {
		return nil, fmt.Errorf("read replayed transaction: %w", err)
	}
	if existing == nil {
		return nil, errutil.Internal("Internal server error", fmt.Errorf("duplicate idempotency key %q without stored record", key))
	}

	w, err := s.wallet.FindOne(ctx, &Wallet{ID: existing.WalletID})
	if err != nil {
		return nil, fmt.Errorf("read wallet: %w", err)
	}

	return &TransactionResult{Outcome: TransactionOutcomeReplayed, Transaction: existing, Wallet: w}, nil
}

func (s *Service) replayWithoutWallet(ctx context.Context, tx *gorm.DB, userID, key string) (*TransactionResult, error) {
	existing, err := s.transaction.WithTrx(tx).FindOne(ctx, &Transaction{UserID: userID, IdempotencyKey: key})
	if err != nil || existing == nil {
		return nil, err
	}

	w, err := s.wallet.WithTrx(tx).FindOne(ctx, &Wallet{ID: existing.WalletID})
	if err != nil {
		return nil, err
	}

	return &TransactionResult{Outcome: TransactionOutcomeReplayed, Transaction: existing, Wallet: w}, nil
}

// HasCentPrecision reports whether amount needs no more than 2 decimal places.
func HasCentPrecision(amount decimal.Decimal) bool {
	return amount.Equal(amount.Truncate(2))
}

// FindActiveWallet locks and returns the user's single active wallet inside tx.
// Zero or several active wallets yield ErrWalletNotFound.
func (s *Service) FindActiveWallet(ctx context.Context, tx *gorm.DB, userID string) (*Wallet, error) {
	if userID == "" {
		return nil, ErrWalletNotFound
	}

	wallets, err := s.wallet.WithTrx(tx).Find(ctx, &Wallet{UserID: userID, IsActive: true},
		option.WithLockingUpdate(),
		option.WithLimit(2),
	)
	if err != nil {
		return nil, err
	}
	if len(wallets) != 1 {
		if len(wallets) > 1 {
			zap.L().With(spanFields(ctx)...).Warn("user has more than one active wallet", zap.String("user_id", userID))
		}
		return nil, ErrWalletNotFound
	}

	return wallets[0], nil
}

// Apply writes balance and version for a wallet already locked in tx and
// updates w in place. Callers check sufficiency before deducting.
func (s *Service) Apply(ctx context.Context, tx *gorm.DB, w *Wallet, typ TransactionType, amount decimal.Decimal) error {
	now := time.Now().UTC()
	balance := typ.Apply(w.Balance, amount)
	if balance.IsNegative() {
		return fmt.Errorf("wallet %s balance would become negative", w.ID)
	}

	if err := s.wallet.WithTrx(tx).Update(ctx, w.ID, map[string]any{
		"balance":    balance,
		"version":    gorm.Expr("version + ?", 1),
		"updated_at": now,
	}); err != nil {
		return err
	}

	w.Balance = balance
	w.Version++
	w.UpdatedAt = now
	return nil
}

func (s *Service) GetBalance(ctx context.Context, userID string) (*Wallet, error) {
	if userID == "" {
		return nil, ErrUserIDRequired
	}

	wallets, err := s.wallet.Find(ctx, &Wallet{UserID: userID, IsActive: true}, option.WithLimit(2))
	if err != nil {
		zap.L().With(spanFields(ctx)...).Error("failed to query wallet", zap.Error(err))
		return nil, err
	}
	if len(wallets) != 1 {
		return nil, ErrWalletNotFound
	}
	return wallets[0], nil
}

func (s *Service) ListTransactions(ctx context.Context, userID string, filter ListTransactionsFilter) ([]*Transaction, error) {
	if userID == "" {
		return nil, ErrUserIDRequired
	}
	if filter.Type != "" && !filter.Type.Valid() {
		return nil, errutil.BadRequest("Invalid transaction type", nil)
	}

	page := pagination.OffsetPagination{Limit: filter.Limit, Offset: filter.Offset}.Normalize(DefaultListLimit, MaxListLimit)

	txs, err := s.transaction.Find(ctx, &Transaction{UserID: userID, Type: filter.Type},
		option.WithSortBy(option.QuerySortBy{
			SortBy:  "created_at",
			OrderBy: "desc",
			Allow:   map[string]bool{"created_at": true},
		}),
		option.ApplyPagination(page),
	)
	if err != nil {
		zap.L().With(spanFields(ctx)...).Error("failed to query transactions", zap.Error(err))
		return nil, err
	}

	return txs, nil
}

func (s *Service) GetTransaction(ctx context.Context, userID, transactionID string) (*Transaction, error) {
	if userID == "" {
		return nil, ErrUserIDRequired
	}
	if transactionID == "" {
		return nil, errutil.BadRequest("Transaction ID is required", nil)
	}

	record, err := s.transaction.FindOne(ctx, &Transaction{ID: transactionID, UserID: userID})
	if err != nil {
		zap.L().With(spanFields(ctx)...).Error("failed to query transaction", zap.Error(err))
		return nil, err
	}
	if record == nil {
		return nil, ErrTransactionNotFound
	}

	return record, nil
}

// OpenWallet creates the user's TOKEN wallet, or returns the active one.
func (s *Service) OpenWallet(ctx context.Context, userID string) (*Wallet, error) {
	if userID == "" {
		return nil, ErrUserIDRequired
	}

	var out *Wallet
	err := db.Transaction(ctx, s.db, func(tx *gorm.DB) error {
		existing, err := s.wallet.WithTrx(tx).FindOne(ctx, &Wallet{UserID: userID, IsActive: true}, option.WithLockingUpdate())
		if err != nil {
			return err
		}
		if existing != nil {
			out = existing
			return nil
		}

		now := time.Now().UTC()
		out = &Wallet{
			ID:        s.node.Generate().String(),
			UserID:    userID,
			Balance:   decimal.Zero,
			Currency:  CurrencyToken,
			Version:   1,
			IsActive:  true,
			CreatedAt: now,
			UpdatedAt: now,
		}
		return s.wallet.WithTrx(tx).Create(ctx, out)
	})
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		// Another request opened the wallet between our lookup and insert.
		existing, findErr := s.wallet.FindOne(ctx, &Wallet{UserID: userID, IsActive: true})
		if findErr != nil {
			return nil, fmt.Errorf("read wallet: %w", findErr)
		}
		if existing != nil {
			return existing, nil
		}
	}
	if err != nil {
		zap.L().With(spanFields(ctx)...).Error("failed to open wallet", zap.String("user_id", userID), zap.Error(err))
		return nil, err
	}

	return out, nil
}

// ListActiveWallets pages through active wallets in id order.
func (s *Service) ListActiveWallets(ctx context.Context, cursor string, limit int) ([]*Wallet, *pagination.PageInfo, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}

	after, err := pagination.DecodeCursor(cursor)
	if err != nil {
		return nil, nil, errutil.BadRequest("Invalid cursor", err)
	}

	wallets, err := s.wallet.Find(ctx, &Wallet{IsActive: true},
		option.After(after),
		option.WithSortBy(option.QuerySortBy{SortBy: "id", Allow: map[string]bool{"id": true}}),
		option.WithLimit(limit+1),
	)
	if err != nil {
		return nil, nil, err
	}

	wallets, page := pagination.BuildCursorPageInfo(wallets, limit, func(w *Wallet) string {
		next, _ := pagination.EncodeCursor(pagination.Cursor{ID: w.ID})
		return next
	})

	return wallets, page, nil
}

func (s *Service) CountActiveWallets(ctx context.Context) (int64, error) {
	return s.wallet.Count(ctx, &Wallet{IsActive: true})
}
