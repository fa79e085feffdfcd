package model

import "github.com/shopspring/decimal"

// WalletType 钱包类型
type WalletType string

const (
	WalletTypeMain    WalletType = "Main"
	WalletTypeTrading WalletType = "Trading"
)

// Wallet 账户服务返回的钱包快照，只在单次调用内使用，不做缓存
type Wallet struct {
	ID        WalletID   `json:"id"`
	BrokerID  string     `json:"brokerId"`
	AccountID AccountID  `json:"accountId"`
	Name      string     `json:"name,omitempty"`
	Type      WalletType `json:"type"`
	IsEnabled bool       `json:"isEnabled"`
}

// CashFeeSizeType 现金费率配置的数值类型
type CashFeeSizeType string

const (
	CashFeeSizeTypeNone       CashFeeSizeType = "None"
	CashFeeSizeTypeAbsolute   CashFeeSizeType = "Absolute"
	CashFeeSizeTypePercentage CashFeeSizeType = "Percentage"
)

// CashFeeConfig 经纪商 + 资产维度的现金操作费率配置
type CashFeeConfig struct {
	BrokerID            string          `json:"brokerId"`
	Asset               string          `json:"asset"`
	CashInValue         decimal.Decimal `json:"cashInValue"`
	CashInFeeType       CashFeeSizeType `json:"cashInFeeType"`
	CashOutValue        decimal.Decimal `json:"cashOutValue"`
	CashOutFeeType      CashFeeSizeType `json:"cashOutFeeType"`
	CashTransferValue   decimal.Decimal `json:"cashTransferValue"`
	CashTransferFeeType CashFeeSizeType `json:"cashTransferFeeType"`
}

// TradingFeeLevel 交易费率档位：成交量门槛 + maker/taker 百分比
type TradingFeeLevel struct {
	Volume   decimal.Decimal `json:"volume"`
	MakerFee decimal.Decimal `json:"makerFee"`
	TakerFee decimal.Decimal `json:"takerFee"`
}

// TradingFeeConfig 经纪商 + 交易对维度的交易费率配置
type TradingFeeConfig struct {
	BrokerID  string            `json:"brokerId"`
	AssetPair string            `json:"assetPair"`
	Asset     string            `json:"asset,omitempty"`
	Levels    []TradingFeeLevel `json:"levels"`
}

// FeeSettings 经纪商手续费归集设置
type FeeSettings struct {
	BrokerID     string    `json:"brokerId"`
	FeeAccountID AccountID `json:"feeAccountId"`
	FeeWalletID  WalletID  `json:"feeWalletId"`
}

// HasTarget 归集钱包为空或为 0 时视为未配置
func (s *FeeSettings) HasTarget() bool {
	return s != nil && !s.FeeWalletID.IsZero()
}
