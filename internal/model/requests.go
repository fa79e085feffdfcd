package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// OperationRequest 提交给撮合引擎的规范化请求，每次调用构建一次，之后不再修改
type OperationRequest interface {
	OperationID() string
	Kind() OperationKind
}

// CashInOutOperation 充值/提现请求；提现的 Volume 恒为非正数
type CashInOutOperation struct {
	ID          string          `json:"id"`
	BrokerID    string          `json:"brokerId"`
	AccountID   AccountID       `json:"accountId,omitempty"`
	WalletID    WalletID        `json:"walletId"`
	AssetID     string          `json:"assetId"`
	Volume      decimal.Decimal `json:"volume"`
	Description string          `json:"description"`
	Fee         Fee             `json:"fee"`
	Timestamp   time.Time       `json:"timestamp"`

	kind OperationKind
}

func NewCashInOutOperation(kind OperationKind) *CashInOutOperation {
	return &CashInOutOperation{kind: kind}
}

func (o *CashInOutOperation) OperationID() string { return o.ID }
func (o *CashInOutOperation) Kind() OperationKind { return o.kind }

// CashTransferOperation 划转请求
type CashTransferOperation struct {
	ID           string          `json:"id"`
	BrokerID     string          `json:"brokerId"`
	AccountID    AccountID       `json:"accountId,omitempty"`
	FromWalletID WalletID        `json:"fromWalletId"`
	ToWalletID   WalletID        `json:"toWalletId"`
	AssetID      string          `json:"assetId"`
	Volume       decimal.Decimal `json:"volume"`
	Description  string          `json:"description"`
	Fee          Fee             `json:"fee"`
	Timestamp    time.Time       `json:"timestamp"`
}

func (o *CashTransferOperation) OperationID() string { return o.ID }
func (o *CashTransferOperation) Kind() OperationKind { return OperationCashTransfer }

// LimitOrder 限价单请求
type LimitOrder struct {
	ID                          string          `json:"id"`
	BrokerID                    string          `json:"brokerId"`
	AccountID                   AccountID       `json:"accountId,omitempty"`
	WalletID                    WalletID        `json:"walletId"`
	AssetPairID                 string          `json:"assetPairId"`
	Price                       decimal.Decimal `json:"price"`
	Volume                      decimal.Decimal `json:"volume"`
	Type                        LimitOrderType  `json:"type"`
	CancelAllPreviousLimitOrder bool            `json:"cancelAllPreviousLimitOrders"`
	Fee                         Fee             `json:"fee"`
	Timestamp                   time.Time       `json:"timestamp"`
}

func (o *LimitOrder) OperationID() string { return o.ID }
func (o *LimitOrder) Kind() OperationKind { return OperationLimitOrder }

// LimitOrderCancel 撤销限价单请求
type LimitOrderCancel struct {
	ID            string    `json:"id"`
	BrokerID      string    `json:"brokerId"`
	LimitOrderIDs []string  `json:"limitOrderId"`
	Timestamp     time.Time `json:"timestamp"`
}

func (o *LimitOrderCancel) OperationID() string { return o.ID }
func (o *LimitOrderCancel) Kind() OperationKind { return OperationLimitOrderCancel }

// MarketOrder 市价单请求
type MarketOrder struct {
	ID          string          `json:"id"`
	BrokerID    string          `json:"brokerId"`
	AccountID   AccountID       `json:"accountId,omitempty"`
	WalletID    WalletID        `json:"walletId"`
	AssetPairID string          `json:"assetPairId"`
	Volume      decimal.Decimal `json:"volume"`
	Fee         Fee             `json:"fee"`
	Timestamp   time.Time       `json:"timestamp"`
}

func (o *MarketOrder) OperationID() string { return o.ID }
func (o *MarketOrder) Kind() OperationKind { return OperationMarketOrder }
