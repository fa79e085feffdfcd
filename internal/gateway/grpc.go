package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/newplayman/exchange-operations/internal/metrics"
	"github.com/newplayman/exchange-operations/internal/model"
	"github.com/newplayman/exchange-operations/internal/ratelimit"
	"github.com/rs/zerolog/log"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/encoding"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

const jsonCodecName = "json"

// jsonCodec 撮合引擎接口以 JSON 作为 gRPC 载荷，无需生成代码
type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error)      { return json.Marshal(v) }
func (jsonCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }
func (jsonCodec) Name() string                       { return jsonCodecName }

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

// GRPCConfig 撮合引擎 gRPC 连接配置
type GRPCConfig struct {
	Target      string
	Timeout     time.Duration
	Limiter     ratelimit.Limiter
	DialOptions []grpc.DialOption
}

// GRPCClient 通过 gRPC 提交操作
// 提交请求不做重试，超时由 Timeout 控制
type GRPCClient struct {
	conn    *grpc.ClientConn
	health  healthpb.HealthClient
	timeout time.Duration
	limiter ratelimit.Limiter
}

func NewGRPCClient(cfg GRPCConfig) (*GRPCClient, error) {
	opts := append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	}, cfg.DialOptions...)
	conn, err := grpc.NewClient(cfg.Target, opts...)
	if err != nil {
		return nil, fmt.Errorf("grpc client %s: %w", cfg.Target, err)
	}
	log.Info().Str("target", cfg.Target).Msg("撮合引擎 gRPC 客户端已创建")
	return &GRPCClient{
		conn:    conn,
		health:  healthpb.NewHealthClient(conn),
		timeout: cfg.Timeout,
		limiter: cfg.Limiter,
	}, nil
}

func (c *GRPCClient) invoke(ctx context.Context, method string, req, resp any) error {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("grpc %s: %w", method, err)
		}
	}
	start := time.Now()
	err := c.conn.Invoke(ctx, method, req, resp, grpc.CallContentSubtype(jsonCodecName))
	metrics.ObserveRemote("engine"+method, start, err)
	if err != nil {
		return fmt.Errorf("grpc %s: %w", method, err)
	}
	return nil
}

func (c *GRPCClient) SubmitCashInOut(ctx context.Context, req *model.CashInOutOperation) (*model.Response, error) {
	var resp model.Response
	if err := c.invoke(ctx, MethodCashInOut, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *GRPCClient) SubmitCashTransfer(ctx context.Context, req *model.CashTransferOperation) (*model.Response, error) {
	var resp model.Response
	if err := c.invoke(ctx, MethodCashTransfer, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *GRPCClient) SubmitLimitOrder(ctx context.Context, req *model.LimitOrder) (*model.Response, error) {
	var resp model.Response
	if err := c.invoke(ctx, MethodLimitOrder, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *GRPCClient) CancelLimitOrder(ctx context.Context, req *model.LimitOrderCancel) (*model.Response, error) {
	var resp model.Response
	if err := c.invoke(ctx, MethodCancelLimitOrder, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *GRPCClient) SubmitMarketOrder(ctx context.Context, req *model.MarketOrder) (*model.MarketOrderResponse, error) {
	var resp model.MarketOrderResponse
	if err := c.invoke(ctx, MethodMarketOrder, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Ping 标准 gRPC 健康检查
func (c *GRPCClient) Ping(ctx context.Context) error {
	resp, err := c.health.Check(ctx, &healthpb.HealthCheckRequest{})
	if err != nil {
		return err
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		return fmt.Errorf("matching engine status %s", resp.GetStatus())
	}
	return nil
}

func (c *GRPCClient) Close() error {
	return c.conn.Close()
}
