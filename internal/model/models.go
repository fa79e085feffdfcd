package model

import "github.com/shopspring/decimal"

// 客户端提交的模型。validate 标签由 HTTP 层校验；ID 可选，缺省时生成新的操作 ID。

// CashInOutModel 充值/提现
type CashInOutModel struct {
	ID          string          `json:"id,omitempty" validate:"omitempty,max=64"`
	AccountID   AccountID       `json:"accountId,omitempty"`
	WalletID    WalletID        `json:"walletId" validate:"required"`
	Asset       string          `json:"asset" validate:"required,max=16"`
	Volume      decimal.Decimal `json:"volume" validate:"ne=0"`
	Description string          `json:"description,omitempty" validate:"max=512"`
}

// CashTransferModel 同一账户下两个钱包之间划转
type CashTransferModel struct {
	ID           string          `json:"id,omitempty" validate:"omitempty,max=64"`
	AccountID    AccountID       `json:"accountId,omitempty"`
	FromWalletID WalletID        `json:"fromWalletId" validate:"required"`
	ToWalletID   WalletID        `json:"toWalletId" validate:"required"`
	Asset        string          `json:"asset" validate:"required,max=16"`
	Volume       decimal.Decimal `json:"volume" validate:"gt=0"`
	Description  string          `json:"description,omitempty" validate:"max=512"`
}

// LimitOrderType 限价单类型
type LimitOrderType string

const (
	LimitOrderTypeLimit     LimitOrderType = "Limit"
	LimitOrderTypeStopLimit LimitOrderType = "StopLimit"
)

// LimitOrderCreateModel 创建限价单
type LimitOrderCreateModel struct {
	ID             string          `json:"id,omitempty" validate:"omitempty,max=64"`
	AccountID      AccountID       `json:"accountId,omitempty"`
	WalletID       WalletID        `json:"walletId" validate:"required"`
	AssetPair      string          `json:"assetPairId" validate:"required,max=32"`
	Price          decimal.Decimal `json:"price" validate:"gt=0"`
	Volume         decimal.Decimal `json:"volume" validate:"ne=0"`
	Type           LimitOrderType  `json:"type,omitempty" validate:"omitempty,oneof=Limit StopLimit"`
	CancelPrevious bool            `json:"cancelPrevious"`
}

// MarketOrderCreateModel 创建市价单
type MarketOrderCreateModel struct {
	ID        string          `json:"id,omitempty" validate:"omitempty,max=64"`
	AccountID AccountID       `json:"accountId,omitempty"`
	WalletID  WalletID        `json:"walletId" validate:"required"`
	AssetPair string          `json:"assetPair" validate:"required,max=32"`
	Volume    decimal.Decimal `json:"volume" validate:"ne=0"`
}
