// Package jobs defines the background tasks the POS hands to the asynq worker.
package jobs

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/backend-kasir/internal/obs"
	"github.com/noah-isme/backend-kasir/internal/resilience"
)

// TypeStockSync pushes sold quantities to the external shop platform.
const TypeStockSync = "shop:stock-sync"

// DefaultQueue is the asynq queue POS tasks are placed on.
const DefaultQueue = "pos"

// StockItem is a sold quantity of a single product.
type StockItem struct {
	Kind      string          `json:"kind"`
	ProductID string          `json:"productId"`
	Quantity  decimal.Decimal `json:"quantity"`
}

// StockSyncPayload describes the stock movements of a completed order.
type StockSyncPayload struct {
	TenantID string      `json:"tenantId,omitempty"`
	OrderID  string      `json:"orderId"`
	Items    []StockItem `json:"items"`
}

// NewStockSyncTask builds the asynq task for p.
func NewStockSyncTask(p StockSyncPayload) (*asynq.Task, error) {
	if strings.TrimSpace(p.OrderID) == "" {
		return nil, errors.New("jobs: order id required")
	}
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("encode stock sync payload: %w", err)
	}
	return asynq.NewTask(TypeStockSync, data), nil
}

// Enqueuer places tasks on asynq. The order id doubles as the task id so a
// replayed checkout never syncs stock twice.
type Enqueuer struct {
	Client   *asynq.Client
	Queue    string
	MaxRetry int
	Timeout  time.Duration
}

// EnqueueStockSync schedules a stock sync for a completed order.
func (e Enqueuer) EnqueueStockSync(ctx context.Context, p StockSyncPayload) error {
	if e.Client == nil {
		return errors.New("jobs: asynq client not configured")
	}
	task, err := NewStockSyncTask(p)
	if err != nil {
		return err
	}
	queue := e.Queue
	if queue == "" {
		queue = DefaultQueue
	}
	opts := []asynq.Option{asynq.Queue(queue), asynq.TaskID(stockSyncTaskID(p))}
	if e.MaxRetry > 0 {
		opts = append(opts, asynq.MaxRetry(e.MaxRetry))
	}
	if e.Timeout > 0 {
		opts = append(opts, asynq.Timeout(e.Timeout))
	}
	if _, err := e.Client.EnqueueContext(ctx, task, opts...); err != nil {
		if errors.Is(err, asynq.ErrTaskIDConflict) {
			return nil
		}
		return fmt.Errorf("enqueue stock sync: %w", err)
	}
	return nil
}

func stockSyncTaskID(p StockSyncPayload) string {
	if p.TenantID == "" {
		return "stock-sync:" + p.OrderID
	}
	return p.TenantID + ":stock-sync:" + p.OrderID
}

var stockSyncNopLogger = zerolog.Nop()

// StockSyncHandler posts stock adjustments to the shop platform.
type StockSyncHandler struct {
	HTTP    *resilience.HTTPClient
	BaseURL string
	APIKey  string
	Logger  *zerolog.Logger
}

func (h *StockSyncHandler) logger() *zerolog.Logger {
	if h.Logger == nil {
		return &stockSyncNopLogger
	}
	return h.Logger
}

// ProcessTask implements asynq.Handler. Client errors from the platform are
// final; everything else is retried by asynq.
func (h *StockSyncHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var p StockSyncPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		obs.ObserveShopSync("invalid")
		return fmt.Errorf("decode stock sync payload: %v: %w", err, asynq.SkipRetry)
	}
	if h.HTTP == nil || h.BaseURL == "" {
		obs.ObserveShopSync("skipped")
		h.logger().Warn().Str("order_id", p.OrderID).Msg("shop_sync_not_configured")
		return nil
	}
	if len(p.Items) == 0 {
		obs.ObserveShopSync("skipped")
		return nil
	}

	body, err := json.Marshal(map[string]any{"orderId": p.OrderID, "items": p.Items})
	if err != nil {
		return err
	}
	endpoint := strings.TrimRight(h.BaseURL, "/") + "/api/stock-adjustments"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", stockSyncTaskID(p))
	if h.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+h.APIKey)
	}

	resp, err := h.HTTP.Do(ctx, req)
	if err != nil {
		obs.ObserveShopSync("error")
		h.logger().Error().Err(err).Str("order_id", p.OrderID).Msg("shop_sync_failed")
		return fmt.Errorf("post stock adjustments: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode >= http.StatusBadRequest {
		obs.ObserveShopSync("rejected")
		h.logger().Error().Int("status", resp.StatusCode).Str("order_id", p.OrderID).Msg("shop_sync_rejected")
		return fmt.Errorf("shop platform responded %d: %w", resp.StatusCode, asynq.SkipRetry)
	}
	obs.ObserveShopSync("ok")
	h.logger().Info().Str("order_id", p.OrderID).Int("items", len(p.Items)).Msg("shop_sync_done")
	return nil
}

// NewMux registers every POS task handler.
func NewMux(stock *StockSyncHandler) *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.Handle(TypeStockSync, stock)
	return mux
}
