package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"prediction-trade-gateway/internal/core/domain"
	"prediction-trade-gateway/internal/core/ports"
	"prediction-trade-gateway/pkg/apperror"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const (
	orderIdempotencyTTL = 24 * time.Hour

	defaultMarketLimit = 50
	maxMarketLimit     = 200
)

// TradingServiceImpl implements ports.TradingService.
type TradingServiceImpl struct {
	orderRepo  ports.OrderRepository
	idempCache ports.IdempotencyCache
	walletSvc  ports.WalletService
	settlement ports.SettlementClient
	marketData ports.MarketDataClient
	transactor ports.DBTransactor
	log        zerolog.Logger
}

// NewTradingService creates a new TradingServiceImpl.
func NewTradingService(
	orderRepo ports.OrderRepository,
	idempCache ports.IdempotencyCache,
	walletSvc ports.WalletService,
	settlement ports.SettlementClient,
	marketData ports.MarketDataClient,
	transactor ports.DBTransactor,
	log zerolog.Logger,
) *TradingServiceImpl {
	return &TradingServiceImpl{
		orderRepo:  orderRepo,
		idempCache: idempCache,
		walletSvc:  walletSvc,
		settlement: settlement,
		marketData: marketData,
		transactor: transactor,
		log:        log,
	}
}

// ListMarkets returns tradeable markets from the upstream data service.
func (s *TradingServiceImpl) ListMarkets(ctx context.Context, params ports.MarketListParams) ([]ports.Market, error) {
	if params.Limit <= 0 {
		params.Limit = defaultMarketLimit
	}
	if params.Limit > maxMarketLimit {
		params.Limit = maxMarketLimit
	}
	return s.marketData.ListMarkets(ctx, params)
}

// GetQuote returns the current top of book for one outcome token.
func (s *TradingServiceImpl) GetQuote(ctx context.Context, tokenID string) (*ports.Quote, error) {
	if tokenID == "" {
		return nil, apperror.Validation("token_id is required")
	}
	quote, err := s.marketData.GetQuote(ctx, tokenID)
	if err != nil {
		return nil, err
	}
	if quote == nil {
		return nil, apperror.ErrMarketNotFound(tokenID)
	}
	return quote, nil
}

// PlaceOrder runs the full order lifecycle: idempotency check, unsigned
// transaction build, persist as PENDING, then hand the transaction to
// the wallet service, which signs, submits and waits for confirmation.
//
// A replayed client order id returns the stored order when it confirmed,
// re-attempts it when it failed (submit-side errors are retriable with
// the same id), and fails with a duplicate error while it is still in
// flight. A confirmation timeout leaves the order UNKNOWN, never FAILED:
// the signed transaction may still land and resubmitting would
// double-trade.
func (s *TradingServiceImpl) PlaceOrder(ctx context.Context, req ports.PlaceOrderRequest) (*domain.Order, error) {
	if err := validatePlaceOrder(req); err != nil {
		return nil, err
	}

	idempKey := orderIdempotencyKey(req.UserID, req.ClientOrderID)

	// Layer 1: Redis idempotency check
	cached, err := s.idempCache.Get(ctx, idempKey)
	if err != nil {
		s.log.Warn().Err(err).Str("key", idempKey).Msg("redis idempotency check failed, falling through to DB")
	}
	if cached != nil {
		return s.unmarshalCachedOrder(cached)
	}

	// Layer 2: DB idempotency check
	existing, err := s.orderRepo.GetByClientOrderID(ctx, req.UserID, req.ClientOrderID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("db idempotency check: %w", err))
	}
	if existing != nil {
		switch existing.Status {
		case domain.OrderStatusConfirmed:
			return existing, nil
		case domain.OrderStatusFailed:
			// A failed order never reached the book, so the retry gets a
			// fresh attempt under the original record instead of the
			// stored failure.
			return s.retryOrder(ctx, idempKey, existing, req.Password)
		default:
			return nil, apperror.ErrDuplicateOrder()
		}
	}

	wallet, err := s.walletSvc.Resolve(ctx, req.UserID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	order := &domain.Order{
		ID:            uuid.New(),
		UserID:        req.UserID,
		ClientOrderID: req.ClientOrderID,
		MarketID:      req.MarketID,
		TokenID:       req.TokenID,
		Side:          req.Side,
		Size:          req.Size,
		LimitPrice:    req.LimitPrice,
		Status:        domain.OrderStatusPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	unsignedTx, err := s.buildOrderTx(ctx, wallet.PublicKey, order)
	if err != nil {
		return nil, err
	}

	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	if err := s.orderRepo.Create(ctx, dbTx, order); err != nil {
		return nil, err
	}
	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}

	return s.dispatchOrder(ctx, idempKey, order, unsignedTx, req.Password)
}

// retryOrder re-runs the submit pipeline for an order whose previous
// attempt failed. The transaction is rebuilt from the stored record so a
// retry cannot smuggle in different order parameters under the same
// client order id.
func (s *TradingServiceImpl) retryOrder(ctx context.Context, idempKey string, order *domain.Order, password string) (*domain.Order, error) {
	wallet, err := s.walletSvc.Resolve(ctx, order.UserID)
	if err != nil {
		return nil, err
	}
	unsignedTx, err := s.buildOrderTx(ctx, wallet.PublicKey, order)
	if err != nil {
		return nil, err
	}
	return s.dispatchOrder(ctx, idempKey, order, unsignedTx, password)
}

// dispatchOrder marks the order SUBMITTED, hands it to the custody layer
// and records the outcome.
func (s *TradingServiceImpl) dispatchOrder(ctx context.Context, idempKey string, order *domain.Order, unsignedTx, password string) (*domain.Order, error) {
	s.markOrder(ctx, order, domain.OrderStatusSubmitted, nil)

	signature, err := s.walletSvc.SignAndSubmit(ctx, order.UserID, unsignedTx, password)
	if err != nil {
		if signature != "" && apperror.Code(err) == "EXT_003" {
			s.markOrder(ctx, order, domain.OrderStatusUnknown, &signature)
			s.log.Warn().Str("order_id", order.ID.String()).Str("signature", signature).Msg("confirmation timed out, order left UNKNOWN")
			// Not cached: UNKNOWN is not terminal, replays go to the DB.
			return order, nil
		}
		var sigPtr *string
		if signature != "" {
			sigPtr = &signature
		}
		s.markOrder(ctx, order, domain.OrderStatusFailed, sigPtr)
		return nil, err
	}

	s.markOrder(ctx, order, domain.OrderStatusConfirmed, &signature)
	s.cacheOrder(ctx, idempKey, order)

	s.log.Info().
		Str("order_id", order.ID.String()).
		Str("market_id", order.MarketID).
		Str("side", string(order.Side)).
		Str("signature", signature).
		Msg("order confirmed")
	return order, nil
}

func (s *TradingServiceImpl) buildOrderTx(ctx context.Context, publicKey string, order *domain.Order) (string, error) {
	return s.settlement.BuildOrderTx(ctx, ports.BuildOrderTxRequest{
		PublicKey:  publicKey,
		MarketID:   order.MarketID,
		TokenID:    order.TokenID,
		Side:       order.Side,
		Size:       order.Size,
		LimitPrice: order.LimitPrice,
	})
}

// ListOrders returns the user's most recent orders.
func (s *TradingServiceImpl) ListOrders(ctx context.Context, userID uuid.UUID, limit int) ([]domain.Order, error) {
	if limit <= 0 {
		limit = defaultMarketLimit
	}
	if limit > maxMarketLimit {
		limit = maxMarketLimit
	}
	orders, err := s.orderRepo.ListByUser(ctx, userID, limit)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("list orders: %w", err))
	}
	return orders, nil
}

// RedeemPositions redeems winning positions in a resolved market and
// returns the settlement signature.
func (s *TradingServiceImpl) RedeemPositions(ctx context.Context, req ports.RedeemRequest) (string, error) {
	if req.MarketID == "" {
		return "", apperror.Validation("market_id is required")
	}

	wallet, err := s.walletSvc.Resolve(ctx, req.UserID)
	if err != nil {
		return "", err
	}
	unsignedTx, err := s.settlement.BuildRedeemTx(ctx, wallet.PublicKey, req.MarketID)
	if err != nil {
		return "", err
	}
	signature, err := s.walletSvc.SignAndSubmit(ctx, req.UserID, unsignedTx, req.Password)
	if err != nil {
		return "", err
	}
	return signature, nil
}

// Swap exchanges between outcome tokens and the collateral token.
func (s *TradingServiceImpl) Swap(ctx context.Context, req ports.SwapRequest) (string, error) {
	if req.FromTokenID == "" || req.ToTokenID == "" {
		return "", apperror.Validation("from_token_id and to_token_id are required")
	}
	if req.FromTokenID == req.ToTokenID {
		return "", apperror.Validation("cannot swap a token for itself")
	}
	if !req.Amount.IsPositive() {
		return "", apperror.Validation("amount must be positive")
	}

	wallet, err := s.walletSvc.Resolve(ctx, req.UserID)
	if err != nil {
		return "", err
	}
	unsignedTx, err := s.settlement.BuildSwapTx(ctx, ports.BuildSwapTxRequest{
		PublicKey:   wallet.PublicKey,
		FromTokenID: req.FromTokenID,
		ToTokenID:   req.ToTokenID,
		Amount:      req.Amount,
	})
	if err != nil {
		return "", err
	}
	signature, err := s.walletSvc.SignAndSubmit(ctx, req.UserID, unsignedTx, req.Password)
	if err != nil {
		return "", err
	}
	return signature, nil
}

// markOrder persists a status transition. Losing one is logged, not
// fatal: the order row may lag the settlement state, and UNKNOWN orders
// are reconciled by polling anyway.
func (s *TradingServiceImpl) markOrder(ctx context.Context, order *domain.Order, status domain.OrderStatus, signature *string) {
	order.Status = status
	order.TxSignature = signature
	order.UpdatedAt = time.Now().UTC()
	if err := s.orderRepo.UpdateStatus(ctx, order.ID, status, signature); err != nil {
		s.log.Error().Err(err).Str("order_id", order.ID.String()).Str("status", string(status)).Msg("update order status failed")
	}
}

func (s *TradingServiceImpl) cacheOrder(ctx context.Context, key string, order *domain.Order) {
	data, err := json.Marshal(order)
	if err != nil {
		return
	}
	if err := s.idempCache.Set(ctx, key, data, orderIdempotencyTTL); err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("cache order failed")
	}
}

func (s *TradingServiceImpl) unmarshalCachedOrder(data []byte) (*domain.Order, error) {
	var order domain.Order
	if err := json.Unmarshal(data, &order); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("unmarshal cached order: %w", err))
	}
	return &order, nil
}

func validatePlaceOrder(req ports.PlaceOrderRequest) error {
	if req.ClientOrderID == "" {
		return apperror.ErrInvalidOrder("client_order_id is required")
	}
	if req.MarketID == "" || req.TokenID == "" {
		return apperror.ErrInvalidOrder("market_id and token_id are required")
	}
	if req.Side != domain.OrderSideBuy && req.Side != domain.OrderSideSell {
		return apperror.ErrInvalidOrder("side must be BUY or SELL")
	}
	if !req.Size.IsPositive() {
		return apperror.ErrInvalidOrder("size must be positive")
	}
	// Outcome shares settle at 0 or 1, so a limit price outside (0, 1)
	// can never fill.
	if !req.LimitPrice.IsPositive() || req.LimitPrice.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return apperror.ErrInvalidOrder("limit_price must be between 0 and 1 exclusive")
	}
	return nil
}

func orderIdempotencyKey(userID uuid.UUID, clientOrderID string) string {
	return "order:" + userID.String() + ":" + clientOrderID
}
