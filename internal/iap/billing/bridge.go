package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"matchBack/internal/models"
)

const (
	bridgeReadTimeout  = 60 * time.Second
	bridgeWriteTimeout = 5 * time.Second
	bridgePingInterval = 25 * time.Second
	bridgeReadLimit    = 1 << 20
)

// ErrBridgeClosed is returned for calls made after the device disconnected.
var ErrBridgeClosed = errors.New("billing bridge closed")

// Notice is a user facing message pushed to the device.
type Notice struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

type outFrame struct {
	Type     string          `json:"type"`
	ID       string          `json:"id,omitempty"`
	Method   string          `json:"method,omitempty"`
	Params   interface{}     `json:"params,omitempty"`
	Platform models.Platform `json:"platform,omitempty"`
	Notice   *Notice         `json:"notice,omitempty"`
}

type inFrame struct {
	Type     string                `json:"type"`
	ID       string                `json:"id,omitempty"`
	Result   json.RawMessage       `json:"result,omitempty"`
	Error    *ProviderError        `json:"error,omitempty"`
	Event    string                `json:"event,omitempty"`
	Purchase *models.PurchaseEvent `json:"purchase,omitempty"`
}

// Bridge is a Provider backed by the native billing SDK on the other end of
// a websocket. Calls are request/response frames matched by id; listener
// callbacks arrive as event frames and are dispatched one at a time.
type Bridge struct {
	conn     *websocket.Conn
	platform models.Platform
	logger   Logger
	newID    func() string

	wmu sync.Mutex

	mu      sync.Mutex
	pending map[string]chan inFrame
	closed  bool

	qmu   sync.Mutex
	queue []inFrame
	wake  chan struct{}

	ls    *listeners
	ready chan struct{}
	done  chan struct{}
	once  sync.Once
}

var _ Provider = (*Bridge)(nil)

// NewBridge wraps an upgraded websocket connection.
func NewBridge(conn *websocket.Conn, platform models.Platform, logger Logger) *Bridge {
	return &Bridge{
		conn:     conn,
		platform: platform,
		logger:   logger,
		newID:    func() string { return uuid.NewString() },
		pending:  make(map[string]chan inFrame),
		wake:     make(chan struct{}, 1),
		ls:       newListeners(),
		ready:    make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Run sends the hello frame and serves the connection until it drops or ctx ends.
func (b *Bridge) Run(ctx context.Context) error {
	defer b.shutdown()

	if err := b.write(outFrame{Type: "hello", Platform: b.platform}); err != nil {
		return fmt.Errorf("send hello: %w", err)
	}
	close(b.ready)

	go b.dispatchLoop()
	go b.pingLoop(ctx)
	go func() {
		select {
		case <-ctx.Done():
			b.shutdown()
		case <-b.done:
		}
	}()

	b.conn.SetReadLimit(bridgeReadLimit)
	b.conn.SetReadDeadline(time.Now().Add(bridgeReadTimeout))
	b.conn.SetPongHandler(func(string) error {
		b.conn.SetReadDeadline(time.Now().Add(bridgeReadTimeout))
		return nil
	})

	for {
		mt, msg, err := b.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return err
		}
		b.conn.SetReadDeadline(time.Now().Add(bridgeReadTimeout))
		if mt != websocket.TextMessage {
			continue
		}
		if strings.EqualFold(strings.TrimSpace(string(msg)), "ping") {
			b.writeRaw([]byte("pong"))
			continue
		}

		var f inFrame
		if err := json.Unmarshal(msg, &f); err != nil {
			b.logger.Errorf("billing bridge: bad frame: %v", err)
			continue
		}
		b.route(f)
	}
}

// Ready is closed once the hello frame is out and calls may be made.
func (b *Bridge) Ready() <-chan struct{} { return b.ready }

// Done is closed once the bridge has shut down.
func (b *Bridge) Done() <-chan struct{} { return b.done }

func (b *Bridge) route(f inFrame) {
	if f.Event != "" {
		b.qmu.Lock()
		b.queue = append(b.queue, f)
		b.qmu.Unlock()
		select {
		case b.wake <- struct{}{}:
		default:
		}
		return
	}
	if f.ID == "" {
		return
	}
	b.mu.Lock()
	ch, ok := b.pending[f.ID]
	delete(b.pending, f.ID)
	b.mu.Unlock()
	if !ok {
		b.logger.Errorf("billing bridge: response for unknown call %s", f.ID)
		return
	}
	ch <- f
}

func (b *Bridge) dispatchLoop() {
	for {
		select {
		case <-b.done:
			return
		case <-b.wake:
		}
		for {
			b.qmu.Lock()
			if len(b.queue) == 0 {
				b.qmu.Unlock()
				break
			}
			f := b.queue[0]
			b.queue = b.queue[1:]
			b.qmu.Unlock()
			b.dispatch(f)
		}
	}
}

func (b *Bridge) dispatch(f inFrame) {
	switch f.Event {
	case "purchaseUpdated":
		if f.Purchase == nil {
			return
		}
		ev := *f.Purchase
		if ev.Platform == "" {
			ev.Platform = b.platform
		}
		b.ls.emitUpdated(ev)
	case "purchaseError":
		if f.Error == nil {
			return
		}
		b.ls.emitFailed(f.Error)
	default:
		b.logger.Errorf("billing bridge: unknown event %q", f.Event)
	}
}

func (b *Bridge) pingLoop(ctx context.Context) {
	ticker := time.NewTicker(bridgePingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-b.done:
			return
		case <-ticker.C:
			b.wmu.Lock()
			err := b.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(bridgeWriteTimeout))
			b.wmu.Unlock()
			if err != nil {
				b.logger.Errorf("billing bridge: ping failed: %v", err)
				return
			}
		}
	}
}

func (b *Bridge) shutdown() {
	b.once.Do(func() {
		b.mu.Lock()
		b.closed = true
		for id, ch := range b.pending {
			close(ch)
			delete(b.pending, id)
		}
		b.mu.Unlock()
		close(b.done)
		b.conn.Close()
	})
}

func (b *Bridge) write(f outFrame) error {
	data, err := json.Marshal(f)
	if err != nil {
		return err
	}
	return b.writeRaw(data)
}

func (b *Bridge) writeRaw(data []byte) error {
	b.wmu.Lock()
	defer b.wmu.Unlock()
	b.conn.SetWriteDeadline(time.Now().Add(bridgeWriteTimeout))
	return b.conn.WriteMessage(websocket.TextMessage, data)
}

// call sends a request frame and waits for the matching response.
func (b *Bridge) call(ctx context.Context, method string, params interface{}, out interface{}) error {
	id := b.newID()
	ch := make(chan inFrame, 1)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrBridgeClosed
	}
	b.pending[id] = ch
	b.mu.Unlock()

	if err := b.write(outFrame{Type: "call", ID: id, Method: method, Params: params}); err != nil {
		b.mu.Lock()
		delete(b.pending, id)
		b.mu.Unlock()
		return fmt.Errorf("%s: %w: %v", method, models.ErrNetwork, err)
	}

	select {
	case <-ctx.Done():
		b.mu.Lock()
		delete(b.pending, id)
		b.mu.Unlock()
		return ctx.Err()
	case f, ok := <-ch:
		if !ok {
			return fmt.Errorf("%s: %w", method, ErrBridgeClosed)
		}
		if f.Error != nil {
			return f.Error
		}
		if out != nil && len(f.Result) > 0 {
			if err := json.Unmarshal(f.Result, out); err != nil {
				return fmt.Errorf("%s: decode result: %w", method, err)
			}
		}
		return nil
	}
}

// Notify pushes a user facing notice to the device.
func (b *Bridge) Notify(n Notice) error {
	return b.write(outFrame{Type: "notice", Notice: &n})
}

func (b *Bridge) Platform() models.Platform { return b.platform }

func (b *Bridge) InitConnection(ctx context.Context) error {
	var res struct {
		Connected bool `json:"connected"`
	}
	if err := b.call(ctx, "initConnection", nil, &res); err != nil {
		return err
	}
	if !res.Connected {
		return models.ErrConnection
	}
	return nil
}

func (b *Bridge) EndConnection(ctx context.Context) error {
	err := b.call(ctx, "endConnection", nil, nil)
	if errors.Is(err, ErrBridgeClosed) {
		return nil
	}
	return err
}

func (b *Bridge) GetProducts(ctx context.Context, skus []string) ([]models.StoreProduct, error) {
	var res struct {
		Products []models.StoreProduct `json:"products"`
	}
	if err := b.call(ctx, "getProducts", map[string]interface{}{"skus": skus}, &res); err != nil {
		return nil, err
	}
	return res.Products, nil
}

func purchaseParams(req PurchaseRequest) map[string]interface{} {
	if req.Shape == ShapeList {
		return map[string]interface{}{"skus": []string{req.SKU}}
	}
	return map[string]interface{}{"sku": req.SKU}
}

func (b *Bridge) RequestPurchase(ctx context.Context, req PurchaseRequest) error {
	return b.call(ctx, "requestPurchase", purchaseParams(req), nil)
}

func (b *Bridge) RequestSubscription(ctx context.Context, req PurchaseRequest) error {
	return b.call(ctx, "requestSubscription", purchaseParams(req), nil)
}

func (b *Bridge) OnPurchaseUpdated(fn func(models.PurchaseEvent)) func() {
	return b.ls.addUpdated(fn)
}

func (b *Bridge) OnPurchaseError(fn func(error)) func() {
	return b.ls.addFailed(fn)
}

func (b *Bridge) FinishTransaction(ctx context.Context, p models.PurchaseEvent, consumable bool) error {
	return b.call(ctx, "finishTransaction", map[string]interface{}{
		"purchase":     p,
		"isConsumable": consumable,
	}, nil)
}

func (b *Bridge) listPurchases(ctx context.Context, method string) ([]models.PurchaseEvent, error) {
	var res struct {
		Purchases []models.PurchaseEvent `json:"purchases"`
	}
	if err := b.call(ctx, method, nil, &res); err != nil {
		return nil, err
	}
	for i := range res.Purchases {
		if res.Purchases[i].Platform == "" {
			res.Purchases[i].Platform = b.platform
		}
	}
	return res.Purchases, nil
}

func (b *Bridge) PendingPurchases(ctx context.Context) ([]models.PurchaseEvent, error) {
	return b.listPurchases(ctx, "getPendingPurchases")
}

func (b *Bridge) AvailablePurchases(ctx context.Context) ([]models.PurchaseEvent, error) {
	return b.listPurchases(ctx, "getAvailablePurchases")
}

func (b *Bridge) OpenSubscriptionManagement(ctx context.Context, sku string) error {
	return b.call(ctx, "openSubscriptionManagement", map[string]interface{}{"sku": sku}, nil)
}
