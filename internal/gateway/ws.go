package gateway

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/newplayman/exchange-operations/internal/metrics"
	"github.com/newplayman/exchange-operations/internal/model"
	"github.com/newplayman/exchange-operations/internal/ratelimit"
	"github.com/rs/zerolog/log"
)

// WSConfig 描述 WS 撮合通道的配置。
type WSConfig struct {
	URL          string
	APIKey       string
	SecretKey    string
	AckTimeout   time.Duration
	Dialer       *websocket.Dialer
	KeepAlive    time.Duration
	RetryBackoff time.Duration
	MaxRetries   int
	Limiter      ratelimit.Limiter
}

// WSClient 通过 WebSocket 向撮合引擎提交操作。
// 核心职责：连接、登录、发送请求、按 id 分发 ACK/ERR、超时失败。
type WSClient struct {
	cfg WSConfig

	// connMu 保护 conn 和生命周期字段；拨号在锁外进行
	connMu  sync.Mutex
	conn    *websocket.Conn
	cancel  context.CancelFunc
	started bool
	closed  bool

	// dialMu 串行化拨号，不阻塞写入和保活
	dialMu sync.Mutex

	wg sync.WaitGroup

	nextID int64

	pendingMu sync.Mutex
	pending   map[int64]*pendingRequest
}

type pendingRequest struct {
	method      string
	respCh      chan wsResult
	expireTimer *time.Timer
}

type wsRequest struct {
	ID        int64           `json:"id"`
	Method    string          `json:"method"`
	Params    json.RawMessage `json:"params,omitempty"`
	Timestamp int64           `json:"timestamp,omitempty"`
	Signature string          `json:"signature,omitempty"`
}

type wsResponse struct {
	ID     int64           `json:"id"`
	Status int             `json:"status,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *wsError        `json:"error,omitempty"`
}

type wsError struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

type wsResult struct {
	result json.RawMessage
	err    error
}

const (
	defaultAckTimeout = 3 * time.Second
	defaultKeepAlive  = 15 * time.Second
)

// 可覆盖的时间函数，便于测试。
var timeNowMillis = func() int64 { return time.Now().UnixMilli() }

// NewWSClient 创建 WS 客户端（惰性连接，首次请求时拨号）。
func NewWSClient(cfg WSConfig) *WSClient {
	if cfg.AckTimeout <= 0 {
		cfg.AckTimeout = defaultAckTimeout
	}
	if cfg.Dialer == nil {
		cfg.Dialer = &websocket.Dialer{
			Proxy:            websocket.DefaultDialer.Proxy,
			HandshakeTimeout: websocket.DefaultDialer.HandshakeTimeout,
		}
	}
	if cfg.KeepAlive <= 0 {
		cfg.KeepAlive = defaultKeepAlive
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = 200 * time.Millisecond
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	return &WSClient{
		cfg:     cfg,
		pending: make(map[int64]*pendingRequest),
	}
}

// ErrClientClosed Close 之后的所有调用返回该错误
var ErrClientClosed = errors.New("ws client closed")

// Start 启动后台保活 goroutine；重复调用或 Close 之后调用无效果。
func (c *WSClient) Start(ctx context.Context) {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	if c.started || c.closed {
		return
	}
	c.started = true
	var loopCtx context.Context
	loopCtx, c.cancel = context.WithCancel(ctx)
	c.wg.Add(1)
	go c.keepAliveLoop(loopCtx)
}

// Close 关闭连接并终止后台 goroutine；关闭后客户端不可再用。
func (c *WSClient) Close() error {
	c.connMu.Lock()
	if c.closed {
		c.connMu.Unlock()
		return nil
	}
	c.closed = true
	cancel := c.cancel
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
	c.connMu.Unlock()
	if cancel != nil {
		cancel()
	}
	c.wg.Wait()
	return nil
}

// Ping 连接不存在时尝试建立
func (c *WSClient) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return c.ensureConnection(ctx)
}

func (c *WSClient) SubmitCashInOut(ctx context.Context, req *model.CashInOutOperation) (*model.Response, error) {
	var resp model.Response
	if err := c.submit(ctx, wsCashInOut, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *WSClient) SubmitCashTransfer(ctx context.Context, req *model.CashTransferOperation) (*model.Response, error) {
	var resp model.Response
	if err := c.submit(ctx, wsCashTransfer, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *WSClient) SubmitLimitOrder(ctx context.Context, req *model.LimitOrder) (*model.Response, error) {
	var resp model.Response
	if err := c.submit(ctx, wsLimitOrder, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *WSClient) CancelLimitOrder(ctx context.Context, req *model.LimitOrderCancel) (*model.Response, error) {
	var resp model.Response
	if err := c.submit(ctx, wsCancelLimitOrder, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *WSClient) SubmitMarketOrder(ctx context.Context, req *model.MarketOrder) (*model.MarketOrderResponse, error) {
	var resp model.MarketOrderResponse
	if err := c.submit(ctx, wsMarketOrder, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *WSClient) submit(ctx context.Context, method string, req, out any) error {
	if c.cfg.Limiter != nil {
		if err := c.cfg.Limiter.Wait(ctx); err != nil {
			return fmt.Errorf("ws %s: %w", method, err)
		}
	}
	start := time.Now()
	params, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("ws %s encode: %w", method, err)
	}
	raw, err := c.call(ctx, method, params)
	if err == nil {
		if uerr := json.Unmarshal(raw, out); uerr != nil {
			err = fmt.Errorf("ws %s decode: %w", method, uerr)
		}
	}
	metrics.ObserveRemote("engine."+method, start, err)
	return err
}

// call 发起请求并等待 ACK/ERR。
func (c *WSClient) call(ctx context.Context, method string, params json.RawMessage) (json.RawMessage, error) {
	c.Start(context.Background())
	if err := c.ensureConnection(ctx); err != nil {
		return nil, err
	}
	reqID := atomic.AddInt64(&c.nextID, 1)
	ts := timeNowMillis()
	req := wsRequest{
		ID:        reqID,
		Method:    method,
		Params:    params,
		Timestamp: ts,
		Signature: c.sign(method + "&" + string(params) + "&timestamp=" + strconv.FormatInt(ts, 10)),
	}
	respCh := make(chan wsResult, 1)
	timer := time.AfterFunc(c.cfg.AckTimeout, func() {
		c.pendingTimeout(reqID)
	})
	c.pendingMu.Lock()
	c.pending[reqID] = &pendingRequest{
		method:      method,
		respCh:      respCh,
		expireTimer: timer,
	}
	c.pendingMu.Unlock()
	if err := c.writeJSON(req); err != nil {
		c.removePending(reqID)
		return nil, err
	}
	select {
	case <-ctx.Done():
		c.removePending(reqID)
		return nil, ctx.Err()
	case resp := <-respCh:
		return resp.result, resp.err
	}
}

func (c *WSClient) pendingTimeout(id int64) {
	c.pendingMu.Lock()
	p, ok := c.pending[id]
	if ok {
		delete(c.pending, id)
	}
	c.pendingMu.Unlock()
	if !ok {
		return
	}
	p.respCh <- wsResult{nil, fmt.Errorf("ws request %d (%s) timeout", id, p.method)}
}

func (c *WSClient) removePending(id int64) {
	c.pendingMu.Lock()
	if p, ok := c.pending[id]; ok {
		p.expireTimer.Stop()
		delete(c.pending, id)
	}
	c.pendingMu.Unlock()
}

func (c *WSClient) connected() (bool, error) {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	if c.closed {
		return false, ErrClientClosed
	}
	return c.conn != nil, nil
}

// ensureConnection 拨号和登录都在 connMu 之外完成，成功后再换入 conn
func (c *WSClient) ensureConnection(ctx context.Context) error {
	c.dialMu.Lock()
	defer c.dialMu.Unlock()
	if ok, err := c.connected(); ok || err != nil {
		return err
	}

	conn, err := c.dial(ctx)
	if err != nil {
		return err
	}
	if err := c.login(conn); err != nil {
		_ = conn.Close()
		return err
	}

	c.connMu.Lock()
	if c.closed {
		c.connMu.Unlock()
		_ = conn.Close()
		return ErrClientClosed
	}
	c.conn = conn
	c.wg.Add(1)
	c.connMu.Unlock()

	go c.readLoop(conn)
	log.Info().Str("url", c.cfg.URL).Msg("撮合 WS 已连接")
	return nil
}

func (c *WSClient) dial(ctx context.Context) (*websocket.Conn, error) {
	header := http.Header{}
	if c.cfg.APIKey != "" {
		header.Set("X-Api-Key", c.cfg.APIKey)
	}
	var err error
	backoff := c.cfg.RetryBackoff
	for attempt := 0; attempt < c.cfg.MaxRetries; attempt++ {
		conn, resp, dialErr := c.cfg.Dialer.DialContext(ctx, c.cfg.URL, header)
		if dialErr == nil {
			return conn, nil
		}
		err = dialErr
		if resp != nil {
			body, _ := io.ReadAll(resp.Body)
			resp.Body.Close()
			log.Warn().
				Int("attempt", attempt+1).
				Int("max", c.cfg.MaxRetries).
				Str("status", resp.Status).
				Str("body", strings.TrimSpace(string(body))).
				Msg("撮合 WS 握手失败")
		}
		if attempt == c.cfg.MaxRetries-1 {
			break
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("ws dial failed: %w", ctx.Err())
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	return nil, fmt.Errorf("ws dial failed: %w", err)
}

func (c *WSClient) login(conn *websocket.Conn) error {
	ts := timeNowMillis()
	// 签名: apiKey={key}&timestamp={ts}
	query := url.Values{}
	query.Set("apiKey", c.cfg.APIKey)
	query.Set("timestamp", strconv.FormatInt(ts, 10))
	params, _ := json.Marshal(map[string]any{
		"apiKey":    c.cfg.APIKey,
		"timestamp": ts,
	})
	req := wsRequest{
		ID:        atomic.AddInt64(&c.nextID, 1),
		Method:    "session.logon",
		Params:    params,
		Timestamp: ts,
		Signature: c.sign(query.Encode()),
	}
	if err := conn.WriteJSON(req); err != nil {
		return fmt.Errorf("ws login send: %w", err)
	}
	// 等待一次 ACK
	_ = conn.SetReadDeadline(time.Now().Add(c.cfg.AckTimeout))
	_, message, err := conn.ReadMessage()
	if err != nil {
		return fmt.Errorf("ws login ack read: %w", err)
	}
	_ = conn.SetReadDeadline(time.Time{})
	var resp wsResponse
	if err := json.Unmarshal(message, &resp); err != nil {
		return fmt.Errorf("ws login ack parse: %w", err)
	}
	if resp.Error != nil {
		return &EngineError{Method: "session.logon", Code: resp.Error.Code, Message: resp.Error.Msg}
	}
	return nil
}

func (c *WSClient) writeJSON(payload any) error {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	if c.closed {
		return ErrClientClosed
	}
	if c.conn == nil {
		return fmt.Errorf("ws not connected")
	}
	return c.conn.WriteJSON(payload)
}

func (c *WSClient) readLoop(conn *websocket.Conn) {
	defer c.wg.Done()
	defer func() {
		c.connMu.Lock()
		if c.conn == conn {
			c.conn = nil
		}
		c.connMu.Unlock()
	}()
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			c.failAllPending(err)
			return
		}
		var resp wsResponse
		if err := json.Unmarshal(message, &resp); err != nil {
			log.Warn().Err(err).Msg("撮合 WS 消息解析失败")
			continue
		}
		c.handleResponse(resp)
	}
}

func (c *WSClient) handleResponse(resp wsResponse) {
	c.pendingMu.Lock()
	req, ok := c.pending[resp.ID]
	if ok {
		delete(c.pending, resp.ID)
	}
	c.pendingMu.Unlock()
	if !ok {
		return
	}
	req.expireTimer.Stop()
	if resp.Error != nil {
		req.respCh <- wsResult{nil, &EngineError{Method: req.method, Code: resp.Error.Code, Message: resp.Error.Msg}}
		return
	}
	if resp.Status != 200 && resp.Status != 0 {
		req.respCh <- wsResult{nil, &EngineError{Method: req.method, Code: resp.Status, Message: "unexpected status"}}
		return
	}
	req.respCh <- wsResult{resp.Result, nil}
}

func (c *WSClient) failAllPending(err error) {
	c.pendingMu.Lock()
	defer c.pendingMu.Unlock()
	for id, req := range c.pending {
		req.expireTimer.Stop()
		req.respCh <- wsResult{nil, err}
		delete(c.pending, id)
	}
}

func (c *WSClient) keepAliveLoop(ctx context.Context) {
	defer c.wg.Done()
	ticker := time.NewTicker(c.cfg.KeepAlive)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.sendPing()
		case <-ctx.Done():
			return
		}
	}
}

func (c *WSClient) sendPing() {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	if c.conn == nil {
		return
	}
	_ = c.conn.WriteControl(websocket.PingMessage, []byte("keepalive"), time.Now().Add(time.Second))
}

func (c *WSClient) sign(payload string) string {
	mac := hmac.New(sha256.New, []byte(c.cfg.SecretKey))
	_, _ = mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}
