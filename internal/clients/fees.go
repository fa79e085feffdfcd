package clients

import (
	"context"
	"net/url"

	"github.com/newplayman/exchange-operations/internal/model"
)

// FeesClient 费率服务客户端，实现 fees.Source
type FeesClient struct {
	rest *restClient
}

func NewFeesClient(cfg ServiceConfig) *FeesClient {
	return &FeesClient{rest: newRestClient("fees", cfg)}
}

func (c *FeesClient) GetCashFee(ctx context.Context, brokerID, asset string) (*model.CashFeeConfig, error) {
	var dto cashFeeDTO
	found, err := c.rest.get(ctx, "get_cash_fee",
		"/api/cash-operations-fees/"+url.PathEscape(brokerID)+"/"+url.PathEscape(asset), nil, &dto)
	if err != nil || !found {
		return nil, err
	}
	return &dto, nil
}

func (c *FeesClient) GetTradingFee(ctx context.Context, brokerID, assetPair string) (*model.TradingFeeConfig, error) {
	var dto tradingFeeDTO
	found, err := c.rest.get(ctx, "get_trading_fee",
		"/api/trading-fees/"+url.PathEscape(brokerID)+"/"+url.PathEscape(assetPair), nil, &dto)
	if err != nil || !found {
		return nil, err
	}
	return dto.toModel(), nil
}

func (c *FeesClient) GetBrokerFeeSettings(ctx context.Context, brokerID string) (*model.FeeSettings, error) {
	var dto feeSettingsDTO
	found, err := c.rest.get(ctx, "get_fee_settings", "/api/settings/"+url.PathEscape(brokerID), nil, &dto)
	if err != nil || !found {
		return nil, err
	}
	return dto.toModel(), nil
}

func (c *FeesClient) Ping(ctx context.Context) error {
	return c.rest.ping(ctx)
}
