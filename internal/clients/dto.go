package clients

import (
	"github.com/newplayman/exchange-operations/internal/model"
)

type walletDTO struct {
	ID        model.WalletID  `json:"id"`
	BrokerID  string          `json:"brokerId"`
	AccountID model.AccountID `json:"accountId"`
	Name      string          `json:"name"`
	Type      string          `json:"type"`
	IsEnabled bool            `json:"isEnabled"`
}

func (w walletDTO) toModel() model.Wallet {
	return model.Wallet{
		ID:        w.ID,
		BrokerID:  w.BrokerID,
		AccountID: w.AccountID,
		Name:      w.Name,
		Type:      model.WalletType(w.Type),
		IsEnabled: w.IsEnabled,
	}
}

type feeSettingsDTO struct {
	BrokerID     string          `json:"brokerId"`
	FeeAccountID model.AccountID `json:"feeAccountId"`
	FeeWalletID  model.WalletID  `json:"feeWalletId"`
}

func (s feeSettingsDTO) toModel() *model.FeeSettings {
	return &model.FeeSettings{
		BrokerID:     s.BrokerID,
		FeeAccountID: s.FeeAccountID,
		FeeWalletID:  s.FeeWalletID,
	}
}

// 费率服务直接返回与模型同构的 JSON，decimal 支持数字和字符串两种表示
type cashFeeDTO = model.CashFeeConfig

type tradingFeeDTO struct {
	BrokerID  string                  `json:"brokerId"`
	AssetPair string                  `json:"assetPair"`
	Asset     string                  `json:"asset"`
	Levels    []model.TradingFeeLevel `json:"levels"`
}

func (t tradingFeeDTO) toModel() *model.TradingFeeConfig {
	return &model.TradingFeeConfig{
		BrokerID:  t.BrokerID,
		AssetPair: t.AssetPair,
		Asset:     t.Asset,
		Levels:    t.Levels,
	}
}
