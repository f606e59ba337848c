package ethereum

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/ndmikkelsen/flashloaner/business/blockchain/domain"
	"github.com/ndmikkelsen/flashloaner/internal/apperror"
	"github.com/ndmikkelsen/flashloaner/internal/circuitbreaker"
	"github.com/ndmikkelsen/flashloaner/internal/logger"
	"github.com/ndmikkelsen/flashloaner/internal/wsconn"
)

// WatcherConfig holds configuration for the block watcher.
type WatcherConfig struct {
	WSURL          string        // WebSocket endpoint (primary)
	HTTPURL        string        // HTTP endpoint (fallback)
	PollInterval   time.Duration // Polling interval for HTTP fallback
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	MaxReconnects  int
	BufferSize     int // Block channel buffer size
}

// DefaultWatcherConfig returns sensible defaults.
func DefaultWatcherConfig(wsURL, httpURL string) WatcherConfig {
	return WatcherConfig{
		WSURL:          wsURL,
		HTTPURL:        httpURL,
		PollInterval:   12 * time.Second, // ~1 block time
		InitialBackoff: 1 * time.Second,
		MaxBackoff:     30 * time.Second,
		MaxReconnects:  0, // infinite
		BufferSize:     16,
	}
}

// watcherMetrics holds OTEL metric instruments.
type watcherMetrics struct {
	blocksReceived   metric.Int64Counter
	subscribeErrors  metric.Int64Counter
	connectionState  metric.Int64Gauge
	httpFallbackUsed metric.Int64Counter
}

// wsHeader is the newHeads notification payload. All numeric fields are
// hex quantities.
type wsHeader struct {
	Number        string `json:"number"`
	Hash          string `json:"hash"`
	ParentHash    string `json:"parentHash"`
	Timestamp     string `json:"timestamp"`
	GasLimit      string `json:"gasLimit"`
	GasUsed       string `json:"gasUsed"`
	BaseFeePerGas string `json:"baseFeePerGas"`
}

type wsNotification struct {
	Method string `json:"method"`
	Params struct {
		Subscription string          `json:"subscription"`
		Result       json.RawMessage `json:"result"`
	} `json:"params"`
	ID     *int64          `json:"id,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Watcher implements BlockWatcher. It subscribes to newHeads over a raw
// JSON-RPC WebSocket and falls back to HTTP header polling when the
// socket is unavailable.
type Watcher struct {
	config WatcherConfig
	logger logger.LoggerInterface

	ws         *wsconn.Client
	httpClient *ethclient.Client
	clientMu   sync.RWMutex

	// State
	state     domain.ConnectionState
	stateMu   sync.RWMutex
	usingHTTP atomic.Bool
	lastBlock atomic.Uint64

	// Channels
	blocks  chan *domain.Block
	done    chan struct{}
	closeMu sync.Mutex
	closed  atomic.Bool

	httpCB *circuitbreaker.CircuitBreaker[*types.Header]

	// Observability
	tracer  trace.Tracer
	metrics *watcherMetrics
}

// NewWatcher creates a new block watcher.
func NewWatcher(cfg WatcherConfig, log logger.LoggerInterface) (*Watcher, error) {
	w := &Watcher{
		config: cfg,
		logger: log,
		state:  domain.StateDisconnected,
		blocks: make(chan *domain.Block, cfg.BufferSize),
		done:   make(chan struct{}),
		tracer: otel.Tracer(tracerName),
	}

	if err := w.initMetrics(); err != nil {
		return nil, err
	}

	w.httpCB = circuitbreaker.New[*types.Header](circuitbreaker.DefaultConfig("eth-head-poll"))

	return w, nil
}

func (w *Watcher) initMetrics() error {
	meter := otel.Meter(meterName)
	var err error

	w.metrics = &watcherMetrics{}

	w.metrics.blocksReceived, err = meter.Int64Counter(
		"eth_blocks_received_total",
		metric.WithDescription("Total Ethereum blocks received"),
		metric.WithUnit("{block}"),
	)
	if err != nil {
		return err
	}

	w.metrics.subscribeErrors, err = meter.Int64Counter(
		"eth_subscribe_errors_total",
		metric.WithDescription("Total Ethereum subscription errors"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return err
	}

	w.metrics.connectionState, err = meter.Int64Gauge(
		"eth_connection_state",
		metric.WithDescription("Ethereum connection state (0=disconnected, 1=connecting, 2=connected, 3=reconnecting)"),
		metric.WithUnit("{state}"),
	)
	if err != nil {
		return err
	}

	w.metrics.httpFallbackUsed, err = meter.Int64Counter(
		"eth_http_fallback_total",
		metric.WithDescription("Times HTTP fallback was used"),
		metric.WithUnit("{fallback}"),
	)
	return err
}

// Subscribe starts listening for new blocks and returns a channel.
func (w *Watcher) Subscribe(ctx context.Context) (<-chan *domain.Block, error) {
	ctx, span := w.tracer.Start(ctx, "watcher.subscribe",
		trace.WithAttributes(
			attribute.String("ws_url", w.config.WSURL),
			attribute.String("http_url", w.config.HTTPURL),
		),
	)
	defer span.End()

	if w.closed.Load() {
		err := errors.New("watcher is closed")
		span.RecordError(err)
		return nil, err
	}

	w.setState(domain.StateConnecting)

	// Try WebSocket first
	if err := w.connectWS(ctx); err != nil {
		w.logger.Warn(ctx, "ws connection failed, trying http fallback", "error", err)
		span.AddEvent("ws_failed_trying_http")

		if err := w.connectHTTP(ctx); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "both connections failed")
			w.setState(domain.StateDisconnected)
			return nil, apperror.New(apperror.CodeEthereumConnectionFailed,
				apperror.WithCause(err),
				apperror.WithContext("failed to connect via WS and HTTP"))
		}

		w.usingHTTP.Store(true)
		w.metrics.httpFallbackUsed.Add(ctx, 1)
		go w.runHTTPPoller()
	}

	w.setState(domain.StateConnected)
	span.SetStatus(codes.Ok, "subscribed")

	return w.blocks, nil
}

// connectWS dials the WebSocket endpoint and sends the newHeads
// subscription request.
func (w *Watcher) connectWS(ctx context.Context) error {
	if w.config.WSURL == "" {
		return errors.New("ws url not configured")
	}

	wsCfg := wsconn.DefaultConfig(w.config.WSURL, "eth-newheads")
	wsCfg.InitialBackoff = w.config.InitialBackoff
	wsCfg.MaxBackoff = w.config.MaxBackoff
	wsCfg.MaxReconnects = w.config.MaxReconnects

	conn, err := wsconn.New(wsCfg)
	if err != nil {
		return err
	}

	conn.OnMessage(func(msgCtx context.Context, msg []byte) {
		w.handleWSMessage(msgCtx, msg)
	})
	conn.OnStateChange(func(state wsconn.State, cause error) {
		w.handleWSStateChange(state, cause)
	})

	if err := conn.Connect(ctx); err != nil {
		return err
	}

	w.clientMu.Lock()
	w.ws = conn
	w.clientMu.Unlock()

	return w.sendSubscribeRequest(ctx, conn)
}

func (w *Watcher) sendSubscribeRequest(ctx context.Context, conn *wsconn.Client) error {
	req := map[string]any{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  "eth_subscribe",
		"params":  []string{"newHeads"},
	}
	if err := conn.SendJSON(ctx, req); err != nil {
		return apperror.New(apperror.CodeEthereumSubscribeFailed,
			apperror.WithCause(err),
			apperror.WithContext("failed to send newHeads subscription"))
	}
	w.logger.Info(ctx, "subscribed to new heads via ws")
	return nil
}

// connectHTTP establishes an HTTP connection to the Ethereum node.
func (w *Watcher) connectHTTP(ctx context.Context) error {
	if w.config.HTTPURL == "" {
		return errors.New("http url not configured")
	}

	client, err := ethclient.DialContext(ctx, w.config.HTTPURL)
	if err != nil {
		return err
	}

	w.clientMu.Lock()
	w.httpClient = client
	w.clientMu.Unlock()
	return nil
}

// handleWSMessage parses subscription traffic from the node.
func (w *Watcher) handleWSMessage(ctx context.Context, msg []byte) {
	var note wsNotification
	if err := json.Unmarshal(msg, &note); err != nil {
		w.logger.Warn(ctx, "unparseable ws message", "error", err)
		return
	}

	if note.Error != nil {
		w.logger.Error(ctx, "subscription error from node",
			"code", note.Error.Code, "message", note.Error.Message)
		w.metrics.subscribeErrors.Add(ctx, 1)
		return
	}

	// Subscription confirmation carries an id, notifications don't.
	if note.ID != nil {
		w.logger.Debug(ctx, "subscription confirmed", "result", string(note.Result))
		return
	}

	if note.Method != "eth_subscription" {
		return
	}

	var header wsHeader
	if err := json.Unmarshal(note.Params.Result, &header); err != nil {
		w.logger.Warn(ctx, "unparseable header notification", "error", err)
		return
	}

	block, err := header.toBlock()
	if err != nil {
		w.logger.Warn(ctx, "invalid header fields", "error", err)
		return
	}
	w.emitBlock(ctx, block)
}

// handleWSStateChange mirrors the socket state into the watcher state
// and flips to HTTP polling while the socket is down.
func (w *Watcher) handleWSStateChange(state wsconn.State, cause error) {
	if w.closed.Load() {
		return
	}

	ctx := context.Background()
	switch state {
	case wsconn.StateConnected:
		w.usingHTTP.Store(false)
		w.setState(domain.StateConnected)
		// Re-subscribe after every reconnect: subscriptions don't
		// survive the underlying socket.
		w.clientMu.RLock()
		conn := w.ws
		w.clientMu.RUnlock()
		if conn != nil {
			if err := w.sendSubscribeRequest(ctx, conn); err != nil {
				w.logger.Error(ctx, "resubscribe failed", "error", err)
			}
		}
	case wsconn.StateReconnecting:
		w.setState(domain.StateReconnecting)
		w.metrics.subscribeErrors.Add(ctx, 1)
		if cause != nil {
			w.logger.Warn(ctx, "ws connection lost", "error", cause)
		}
		w.startHTTPFallback(ctx)
	case wsconn.StateDisconnected:
		w.setState(domain.StateDisconnected)
	}
}

// startHTTPFallback begins polling headers over HTTP until the socket
// comes back.
func (w *Watcher) startHTTPFallback(ctx context.Context) {
	if w.usingHTTP.Swap(true) {
		return // already polling
	}

	w.clientMu.RLock()
	client := w.httpClient
	w.clientMu.RUnlock()

	if client == nil {
		if err := w.connectHTTP(ctx); err != nil {
			w.logger.Error(ctx, "http fallback connection failed", "error", err)
			w.usingHTTP.Store(false)
			return
		}
	}

	w.metrics.httpFallbackUsed.Add(ctx, 1)
	go w.runHTTPPoller()
}

// runHTTPPoller polls the latest header while usingHTTP is set.
func (w *Watcher) runHTTPPoller() {
	ctx := context.Background()
	ticker := time.NewTicker(w.config.PollInterval)
	defer ticker.Stop()

	w.logger.Info(ctx, "starting http polling fallback", "interval", w.config.PollInterval)

	for {
		select {
		case <-w.done:
			return
		case <-ticker.C:
			if !w.usingHTTP.Load() {
				return // socket recovered
			}
			w.pollLatestHeader(ctx)
		}
	}
}

func (w *Watcher) pollLatestHeader(ctx context.Context) {
	ctx, span := w.tracer.Start(ctx, "watcher.poll")
	defer span.End()

	w.clientMu.RLock()
	client := w.httpClient
	w.clientMu.RUnlock()

	if client == nil {
		span.AddEvent("no_http_client")
		return
	}

	header, err := w.httpCB.Execute(func() (*types.Header, error) {
		return client.HeaderByNumber(ctx, nil) // nil = latest
	})
	if err != nil {
		span.RecordError(err)
		w.logger.Error(ctx, "http poll failed", "error", err)
		w.metrics.subscribeErrors.Add(ctx, 1)
		return
	}

	if header.Number.Uint64() <= w.lastBlock.Load() {
		span.AddEvent("duplicate_block")
		return
	}

	w.emitBlock(ctx, headerToBlock(header))
	span.SetStatus(codes.Ok, "polled")
}

// emitBlock publishes a block to subscribers without blocking.
func (w *Watcher) emitBlock(ctx context.Context, block *domain.Block) {
	if block.Number <= w.lastBlock.Load() {
		return
	}
	w.lastBlock.Store(block.Number)

	select {
	case w.blocks <- block:
		w.metrics.blocksReceived.Add(ctx, 1)
		w.logger.Debug(ctx, "block received",
			"number", block.Number,
			"hash", block.Hash.Hex()[:10])
	default:
		w.logger.Warn(ctx, "block dropped, buffer full", "number", block.Number)
	}
}

// LatestBlock retrieves the most recent block header over HTTP.
func (w *Watcher) LatestBlock(ctx context.Context) (*domain.Block, error) {
	ctx, span := w.tracer.Start(ctx, "watcher.latest_block")
	defer span.End()

	w.clientMu.RLock()
	client := w.httpClient
	w.clientMu.RUnlock()

	if client == nil {
		if err := w.connectHTTP(ctx); err != nil {
			span.RecordError(err)
			return nil, apperror.New(apperror.CodeEthereumConnectionFailed,
				apperror.WithCause(err),
				apperror.WithContext("no ethereum client connected"))
		}
		w.clientMu.RLock()
		client = w.httpClient
		w.clientMu.RUnlock()
	}

	header, err := w.httpCB.Execute(func() (*types.Header, error) {
		return client.HeaderByNumber(ctx, nil)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "fetch failed")
		return nil, apperror.New(apperror.CodeBlockNotFound,
			apperror.WithCause(err),
			apperror.WithContext("failed to fetch latest block"))
	}

	span.SetStatus(codes.Ok, "fetched")
	return headerToBlock(header), nil
}

// State returns the current connection state.
func (w *Watcher) State() domain.ConnectionState {
	w.stateMu.RLock()
	defer w.stateMu.RUnlock()
	return w.state
}

// Status returns detailed connection status.
func (w *Watcher) Status() domain.ConnectionStatus {
	return domain.ConnectionStatus{
		State:      w.State(),
		LastBlock:  w.lastBlock.Load(),
		LastUpdate: time.Now(),
		UsingHTTP:  w.usingHTTP.Load(),
	}
}

// Close gracefully closes the watcher.
func (w *Watcher) Close() error {
	w.closeMu.Lock()
	defer w.closeMu.Unlock()

	if w.closed.Load() {
		return nil
	}

	w.logger.Info(context.Background(), "closing block watcher")

	w.closed.Store(true)
	close(w.done)

	w.clientMu.Lock()
	if w.ws != nil {
		w.ws.Close()
		w.ws = nil
	}
	if w.httpClient != nil {
		w.httpClient.Close()
		w.httpClient = nil
	}
	w.clientMu.Unlock()

	close(w.blocks)
	w.setState(domain.StateDisconnected)
	return nil
}

// setState updates the connection state and records metrics.
func (w *Watcher) setState(state domain.ConnectionState) {
	w.stateMu.Lock()
	w.state = state
	w.stateMu.Unlock()

	stateValue := int64(0)
	switch state {
	case domain.StateDisconnected:
		stateValue = 0
	case domain.StateConnecting:
		stateValue = 1
	case domain.StateConnected:
		stateValue = 2
	case domain.StateReconnecting:
		stateValue = 3
	}

	w.metrics.connectionState.Record(context.Background(), stateValue)
}

// toBlock converts hex-encoded header fields to a domain Block.
func (h *wsHeader) toBlock() (*domain.Block, error) {
	number, err := parseHexUint64(h.Number)
	if err != nil {
		return nil, err
	}
	timestamp, err := parseHexUint64(h.Timestamp)
	if err != nil {
		return nil, err
	}
	gasLimit, err := parseHexUint64(h.GasLimit)
	if err != nil {
		return nil, err
	}
	gasUsed, err := parseHexUint64(h.GasUsed)
	if err != nil {
		return nil, err
	}

	var baseFee *big.Int
	if h.BaseFeePerGas != "" {
		baseFee, err = parseHexBig(h.BaseFeePerGas)
		if err != nil {
			return nil, err
		}
	}

	return &domain.Block{
		Number:     number,
		Hash:       common.HexToHash(h.Hash),
		ParentHash: common.HexToHash(h.ParentHash),
		Timestamp:  time.Unix(int64(timestamp), 0),
		GasLimit:   gasLimit,
		GasUsed:    gasUsed,
		BaseFee:    baseFee,
	}, nil
}

func headerToBlock(header *types.Header) *domain.Block {
	return &domain.Block{
		Number:     header.Number.Uint64(),
		Hash:       header.Hash(),
		ParentHash: header.ParentHash,
		Timestamp:  time.Unix(int64(header.Time), 0),
		GasLimit:   header.GasLimit,
		GasUsed:    header.GasUsed,
		BaseFee:    header.BaseFee,
	}
}

func parseHexUint64(s string) (uint64, error) {
	v, err := parseHexBig(s)
	if err != nil {
		return 0, err
	}
	return v.Uint64(), nil
}

func parseHexBig(s string) (*big.Int, error) {
	cleaned := strings.TrimPrefix(s, "0x")
	if cleaned == "" {
		return nil, errors.New("empty hex quantity")
	}
	v, ok := new(big.Int).SetString(cleaned, 16)
	if !ok {
		return nil, errors.New("invalid hex quantity: " + s)
	}
	return v, nil
}
