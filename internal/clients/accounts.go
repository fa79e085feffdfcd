package clients

import (
	"context"
	"net/url"
	"strings"

	"github.com/newplayman/exchange-operations/internal/model"
)

// AccountsClient 账户服务客户端，实现 wallets.Source
type AccountsClient struct {
	rest *restClient
}

func NewAccountsClient(cfg ServiceConfig) *AccountsClient {
	return &AccountsClient{rest: newRestClient("accounts", cfg)}
}

// GetWallet 钱包不存在时返回 (nil, nil)
func (c *AccountsClient) GetWallet(ctx context.Context, id model.WalletID, brokerID string) (*model.Wallet, error) {
	var dto walletDTO
	found, err := c.rest.get(ctx, "get_wallet", "/api/wallets/"+url.PathEscape(id.String()),
		url.Values{"brokerId": {brokerID}}, &dto)
	if err != nil || !found {
		return nil, err
	}
	w := dto.toModel()
	return &w, nil
}

func (c *AccountsClient) GetWallets(ctx context.Context, ids []model.WalletID, brokerID string) ([]model.Wallet, error) {
	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		parts = append(parts, id.String())
	}
	var dtos []walletDTO
	found, err := c.rest.get(ctx, "get_wallets", "/api/wallets",
		url.Values{"ids": {strings.Join(parts, ",")}, "brokerId": {brokerID}}, &dtos)
	if err != nil || !found {
		return nil, err
	}
	out := make([]model.Wallet, 0, len(dtos))
	for _, d := range dtos {
		out = append(out, d.toModel())
	}
	return out, nil
}

func (c *AccountsClient) Ping(ctx context.Context) error {
	return c.rest.ping(ctx)
}
