package binanceclient

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"equityBot/internal/domain"
	"equityBot/internal/ports"

	"github.com/adshao/go-binance/v2/common"
	"github.com/adshao/go-binance/v2/futures"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	// Base URLs
	baseURLProduction = "https://fapi.binance.com"
	baseURLTestnet    = "https://testnet.binancefuture.com"

	maxKlineLimit = 1500
)

// Client implements ports.MarketDataProvider, ports.OrderFlowProvider and
// ports.BrokerClient using the go-binance library.
type Client struct {
	futuresClient  *futures.Client
	logger         ports.Logger
	quoteAsset     string
	pricePrecision int32
	depthLimit     int
}

// Config holds configuration specific to the Binance client adapter.
type Config struct {
	APIKey         string
	SecretKey      string
	UseTestnet     bool
	BaseURL        string // Overrides the production/testnet URL when set
	QuoteAsset     string // Cash asset, e.g. "USDT"
	PricePrecision int32  // Decimal places for limit prices
	DepthLimit     int    // Order book levels summed for order flow
	Logger         ports.Logger
}

// New creates a new Binance client adapter.
func New(cfg Config) (*Client, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for Binance client")
	}
	if cfg.APIKey == "" || cfg.SecretKey == "" {
		cfg.Logger.Warn(context.Background(), "APIKey or SecretKey is empty. Client will only work for public endpoints.")
	}

	client := futures.NewClient(cfg.APIKey, cfg.SecretKey)
	switch {
	case cfg.BaseURL != "":
		client.BaseURL = cfg.BaseURL
	case cfg.UseTestnet:
		client.BaseURL = baseURLTestnet
	default:
		client.BaseURL = baseURLProduction
	}
	cfg.Logger.Info(context.Background(), "Binance client configured", map[string]interface{}{"baseURL": client.BaseURL})

	if cfg.QuoteAsset == "" {
		cfg.QuoteAsset = "USDT"
	}
	if cfg.PricePrecision <= 0 {
		cfg.PricePrecision = 2
	}
	if cfg.DepthLimit <= 0 {
		cfg.DepthLimit = 20
	}

	return &Client{
		futuresClient:  client,
		logger:         cfg.Logger,
		quoteAsset:     cfg.QuoteAsset,
		pricePrecision: cfg.PricePrecision,
		depthLimit:     cfg.DepthLimit,
	}, nil
}

// handleError translates common Binance API errors into standardized ports errors.
func (c *Client) handleError(ctx context.Context, err error, operation string) error {
	if err == nil {
		return nil
	}

	fields := map[string]interface{}{"operation": operation, "originalError": err.Error()}

	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		fields["apiErrorCode"] = apiErr.Code
		fields["apiErrorMessage"] = apiErr.Message

		var mappedErr error
		switch apiErr.Code {
		case -1003: // Too many requests
			mappedErr = ports.ErrRateLimited
		case -1001, -1007: // Disconnected / timeout waiting for backend
			mappedErr = ports.ErrBrokerUnavailable
		case -1021: // Timestamp for this request is outside of the recvWindow
			mappedErr = ports.ErrTimeout
		case -1022, -2014, -2015: // Signature or API key invalid
			mappedErr = ports.ErrAuthenticationFailed
		case -1121: // Invalid symbol
			mappedErr = ports.ErrDataUnavailable
		case -1100, -1101, -1102, -1103, -1104, -1105, -1106, -1111, -1115, -1116, -1117, -1120, -1125, -1127, -1128, -1130:
			mappedErr = ports.ErrInvalidRequest
		case -2010, -2022, -4003, -4014: // Order rejected, reduce-only rejected, qty or price out of range
			mappedErr = ports.ErrOrderRejected
		case -2019, -3005, -4047: // Margin or balance insufficient
			mappedErr = ports.ErrInsufficientFunds
		default:
			mappedErr = ports.ErrUnknown
		}
		c.logger.Error(ctx, err, fmt.Sprintf("%s failed with API error", operation), fields)
		return fmt.Errorf("%s failed: %w: %w", operation, mappedErr, err)
	}

	var finalErr error
	var netErr net.Error
	switch {
	case errors.Is(err, context.Canceled):
		finalErr = fmt.Errorf("%s operation canceled: %w: %w", operation, ports.ErrContextCanceled, err)
	case errors.Is(err, context.DeadlineExceeded), errors.As(err, &netErr) && netErr.Timeout():
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrTimeout, err)
	case strings.Contains(err.Error(), "use of closed network connection"),
		strings.Contains(err.Error(), "connection refused"),
		strings.Contains(err.Error(), "connection reset by peer"),
		strings.Contains(err.Error(), "EOF"):
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrConnectionFailed, err)
	default:
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrUnknown, err)
	}

	c.logger.Error(ctx, err, fmt.Sprintf("%s failed", operation), fields)
	return finalErr
}

// SetServerTime synchronizes the client's time with the server's time.
func (c *Client) SetServerTime(ctx context.Context) error {
	op := "SetServerTime"
	_, err := c.futuresClient.NewSetServerTimeService().Do(ctx)
	if err != nil {
		return c.handleError(ctx, err, op)
	}
	c.logger.Debug(ctx, op+" successful")
	return nil
}

// Ping checks the connectivity to the exchange API.
func (c *Client) Ping(ctx context.Context) error {
	op := "Ping"
	if err := c.futuresClient.NewPingService().Do(ctx); err != nil {
		return c.handleError(ctx, err, op)
	}
	return nil
}

// GetBars retrieves the most recent count bars, oldest first.
func (c *Client) GetBars(ctx context.Context, symbol string, tf domain.Timeframe, count int) ([]*domain.Bar, error) {
	op := "GetBars"
	if count <= 0 || count > maxKlineLimit {
		count = maxKlineLimit
	}
	klines, err := c.futuresClient.NewKlinesService().Symbol(symbol).Interval(string(tf)).Limit(count).Do(ctx)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}
	if len(klines) == 0 {
		return nil, fmt.Errorf("%s failed: no %s bars for %s: %w", op, tf, symbol, ports.ErrDataUnavailable)
	}

	bars := make([]*domain.Bar, 0, len(klines))
	now := time.Now()
	for _, k := range klines {
		b, err := translateKline(k, symbol, tf)
		if err != nil {
			return nil, c.handleError(ctx, fmt.Errorf("failed to translate kline: %w", err), op)
		}
		b.IsFinal = !b.CloseTime.After(now)
		bars = append(bars, b)
	}
	return bars, nil
}

// GetBarsRange fetches all bars for symbol between start and end, paging as needed.
func (c *Client) GetBarsRange(ctx context.Context, symbol string, tf domain.Timeframe, start, end time.Time) ([]*domain.Bar, error) {
	op := "GetBarsRange"
	var all []*domain.Bar
	from := start

	for {
		klines, err := c.futuresClient.NewKlinesService().
			Symbol(symbol).
			Interval(string(tf)).
			StartTime(from.UnixMilli()).
			EndTime(end.UnixMilli()).
			Limit(maxKlineLimit).
			Do(ctx)
		if err != nil {
			return nil, c.handleError(ctx, err, op)
		}
		if len(klines) == 0 {
			break
		}
		for _, k := range klines {
			b, err := translateKline(k, symbol, tf)
			if err != nil {
				return nil, c.handleError(ctx, fmt.Errorf("failed to translate kline range: %w", err), op)
			}
			all = append(all, b)
		}
		last := klines[len(klines)-1]
		from = time.UnixMilli(last.CloseTime + 1)
		if from.After(end) || len(klines) < maxKlineLimit {
			break
		}
	}
	return all, nil
}

// GetOrderFlow sums the top order book levels and reads the taker-buy volume of the
// latest one-minute bar. ok is false when the book is empty.
func (c *Client) GetOrderFlow(ctx context.Context, symbol string) (domain.OrderFlow, bool, error) {
	op := "GetOrderFlow"
	depth, err := c.futuresClient.NewDepthService().Symbol(symbol).Limit(c.depthLimit).Do(ctx)
	if err != nil {
		return domain.OrderFlow{}, false, c.handleError(ctx, err, op)
	}

	var flow domain.OrderFlow
	for _, bid := range depth.Bids {
		flow.BidDepth += notional(bid.Price, bid.Quantity)
	}
	for _, ask := range depth.Asks {
		flow.AskDepth += notional(ask.Price, ask.Quantity)
	}
	if flow.BidDepth+flow.AskDepth == 0 {
		return domain.OrderFlow{}, false, nil
	}

	klines, err := c.futuresClient.NewKlinesService().Symbol(symbol).Interval(string(domain.Timeframe1m)).Limit(1).Do(ctx)
	if err != nil {
		return domain.OrderFlow{}, false, c.handleError(ctx, err, op)
	}
	if len(klines) > 0 {
		flow.TotalVolume, _ = strconv.ParseFloat(klines[0].Volume, 64)
		flow.TakerBuyVolume, _ = strconv.ParseFloat(klines[0].TakerBuyBaseAssetVolume, 64)
	}
	return flow, true, nil
}

func notional(price, qty string) float64 {
	p, err1 := decimal.NewFromString(price)
	q, err2 := decimal.NewFromString(qty)
	if err1 != nil || err2 != nil {
		return 0
	}
	f, _ := p.Mul(q).Float64()
	return f
}

// FormatPrice renders a limit price at the configured precision.
func (c *Client) FormatPrice(price float64) string {
	return decimal.NewFromFloat(price).StringFixed(c.pricePrecision)
}

// PlaceOrder submits a market order, or an immediate-or-cancel limit order at priceHint
// for HintLimit. The response carries the executed quantity; an unfilled limit
// remainder is cancelled by the exchange and never rests on the book.
func (c *Client) PlaceOrder(ctx context.Context, symbol string, side domain.OrderSide, qty int64, hint domain.ExecutionHint, priceHint float64) (*ports.OrderResult, error) {
	op := "PlaceOrder"
	if qty <= 0 {
		return &ports.OrderResult{ErrorMessage: "quantity must be positive"},
			fmt.Errorf("%s failed: %w: %w", op, ports.ErrOrderRejected, ports.ErrInvalidRequest)
	}

	quantity := decimal.NewFromInt(qty).String()
	svc := c.futuresClient.NewCreateOrderService().
		Symbol(symbol).
		Side(futures.SideType(side)).
		Quantity(quantity).
		NewClientOrderID(uuid.New().String()).
		NewOrderResponseType(futures.NewOrderRespTypeRESULT)

	fields := map[string]interface{}{"symbol": symbol, "side": side, "quantity": quantity, "hint": hint}
	if hint == domain.HintLimit && priceHint > 0 {
		price := c.FormatPrice(priceHint)
		fields["price"] = price
		svc = svc.Type(futures.OrderTypeLimit).TimeInForce(futures.TimeInForceTypeIOC).Price(price)
	} else {
		svc = svc.Type(futures.OrderTypeMarket)
	}

	order, err := svc.Do(ctx)
	if err != nil {
		mapped := c.handleError(ctx, err, op)
		if ports.IsTransient(mapped) || errors.Is(mapped, ports.ErrContextCanceled) {
			return nil, mapped
		}
		result := &ports.OrderResult{Accepted: false, ErrorMessage: err.Error()}
		if errors.Is(mapped, ports.ErrOrderRejected) {
			return result, mapped
		}
		return result, fmt.Errorf("%w: %w", ports.ErrOrderRejected, mapped)
	}

	result := translateOrder(order)
	fields["orderID"] = result.OrderID
	fields["avgPrice"] = result.AvgPrice
	fields["status"] = order.Status
	c.logger.Info(ctx, op+" successful", fields)
	return result, nil
}

// GetAccountState reports cash in the quote asset, total margin balance as equity and
// long positions as holdings.
func (c *Client) GetAccountState(ctx context.Context) (*ports.AccountState, error) {
	op := "GetAccountState"
	account, err := c.futuresClient.NewGetAccountService().Do(ctx)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}

	state := &ports.AccountState{}
	for _, a := range account.Assets {
		if a.Asset == c.quoteAsset {
			state.Cash, _ = strconv.ParseFloat(a.AvailableBalance, 64)
		}
	}
	equity, err := strconv.ParseFloat(account.TotalMarginBalance, 64)
	if err != nil {
		return nil, c.handleError(ctx, fmt.Errorf("could not parse margin balance '%s': %w", account.TotalMarginBalance, err), op)
	}
	state.Equity = equity

	for _, p := range account.Positions {
		amt, err := decimal.NewFromString(p.PositionAmt)
		if err != nil || !amt.IsPositive() {
			continue
		}
		avg, _ := strconv.ParseFloat(p.EntryPrice, 64)
		state.Holdings = append(state.Holdings, ports.Holding{
			Symbol:   p.Symbol,
			Quantity: amt.IntPart(),
			AvgPrice: avg,
		})
	}
	return state, nil
}

// --- Translation Helpers ---

func translateOrder(order *futures.CreateOrderResponse) *ports.OrderResult {
	avgPrice, _ := strconv.ParseFloat(order.AvgPrice, 64)
	filled, _ := decimal.NewFromString(order.ExecutedQuantity)
	return &ports.OrderResult{
		Accepted:  true,
		OrderID:   strconv.FormatInt(order.OrderID, 10),
		AvgPrice:  avgPrice,
		FilledQty: filled.IntPart(),
	}
}

func translateKline(k *futures.Kline, symbol string, tf domain.Timeframe) (*domain.Bar, error) {
	if k == nil {
		return nil, errors.New("received nil kline")
	}
	values := []struct {
		name string
		raw  string
		dst  *float64
	}{
		{"open", k.Open, new(float64)},
		{"high", k.High, new(float64)},
		{"low", k.Low, new(float64)},
		{"close", k.Close, new(float64)},
		{"volume", k.Volume, new(float64)},
	}
	for _, v := range values {
		f, err := strconv.ParseFloat(v.raw, 64)
		if err != nil {
			return nil, fmt.Errorf("parsing %s '%s': %w", v.name, v.raw, err)
		}
		*v.dst = f
	}
	takerBuy, _ := strconv.ParseFloat(k.TakerBuyBaseAssetVolume, 64)

	return &domain.Bar{
		OpenTime:       time.UnixMilli(k.OpenTime),
		CloseTime:      time.UnixMilli(k.CloseTime),
		Symbol:         symbol,
		Timeframe:      tf,
		Open:           *values[0].dst,
		High:           *values[1].dst,
		Low:            *values[2].dst,
		Close:          *values[3].dst,
		Volume:         *values[4].dst,
		TakerBuyVolume: takerBuy,
		IsFinal:        true,
	}, nil
}
