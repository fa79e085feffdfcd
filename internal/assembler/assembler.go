package assembler

import (
	"time"

	"github.com/google/uuid"
	"github.com/newplayman/exchange-operations/internal/model"
	"github.com/shopspring/decimal"
)

// Assembler 把客户端模型 + 已解析的手续费组装为规范化的撮合请求
// 纯函数，不访问任何外部服务
type Assembler struct {
	ids func() string
	now func() time.Time
}

// New 使用随机 UUID 和 UTC 当前时间
func New() *Assembler {
	return NewWith(uuid.NewString, func() time.Time { return time.Now().UTC() })
}

// NewWith 测试中注入固定的 ID 生成器和时钟
func NewWith(ids func() string, now func() time.Time) *Assembler {
	return &Assembler{ids: ids, now: now}
}

// operationID 调用方提供 ID 时复用（幂等重试），否则生成新的
func (a *Assembler) operationID(supplied string) string {
	if supplied != "" {
		return supplied
	}
	return a.ids()
}

// CashOutVolume 提现数量规范为非正数，保持绝对值
func CashOutVolume(v decimal.Decimal) decimal.Decimal {
	if v.IsPositive() {
		return v.Neg()
	}
	return v
}

func (a *Assembler) CashIn(m *model.CashInOutModel, brokerID string, accountID model.AccountID, fee model.Fee) *model.CashInOutOperation {
	return a.cashInOut(model.OperationCashIn, m, brokerID, accountID, m.Volume, fee)
}

func (a *Assembler) CashOut(m *model.CashInOutModel, brokerID string, accountID model.AccountID, fee model.Fee) *model.CashInOutOperation {
	return a.cashInOut(model.OperationCashOut, m, brokerID, accountID, CashOutVolume(m.Volume), fee)
}

func (a *Assembler) cashInOut(kind model.OperationKind, m *model.CashInOutModel, brokerID string, accountID model.AccountID, volume decimal.Decimal, fee model.Fee) *model.CashInOutOperation {
	op := model.NewCashInOutOperation(kind)
	op.ID = a.operationID(m.ID)
	op.BrokerID = brokerID
	op.AccountID = accountID
	op.WalletID = m.WalletID
	op.AssetID = m.Asset
	op.Volume = volume
	op.Description = m.Description
	op.Fee = fee
	op.Timestamp = a.now()
	return op
}

// CashTransfer 数量原样透传（正数由上游校验保证）
func (a *Assembler) CashTransfer(m *model.CashTransferModel, brokerID string, accountID model.AccountID, fee model.Fee) *model.CashTransferOperation {
	return &model.CashTransferOperation{
		ID:           a.operationID(m.ID),
		BrokerID:     brokerID,
		AccountID:    accountID,
		FromWalletID: m.FromWalletID,
		ToWalletID:   m.ToWalletID,
		AssetID:      m.Asset,
		Volume:       m.Volume,
		Description:  m.Description,
		Fee:          fee,
		Timestamp:    a.now(),
	}
}

func (a *Assembler) LimitOrder(m *model.LimitOrderCreateModel, brokerID string, accountID model.AccountID, fee model.Fee) *model.LimitOrder {
	orderType := m.Type
	if orderType == "" {
		orderType = model.LimitOrderTypeLimit
	}
	return &model.LimitOrder{
		ID:                          a.operationID(m.ID),
		BrokerID:                    brokerID,
		AccountID:                   accountID,
		WalletID:                    m.WalletID,
		AssetPairID:                 m.AssetPair,
		Price:                       m.Price,
		Volume:                      m.Volume,
		Type:                        orderType,
		CancelAllPreviousLimitOrder: m.CancelPrevious,
		Fee:                         fee,
		Timestamp:                   a.now(),
	}
}

// LimitOrderCancel 撤单请求总是使用新的操作 ID
func (a *Assembler) LimitOrderCancel(orderID, brokerID string) *model.LimitOrderCancel {
	return &model.LimitOrderCancel{
		ID:            a.ids(),
		BrokerID:      brokerID,
		LimitOrderIDs: []string{orderID},
		Timestamp:     a.now(),
	}
}

func (a *Assembler) MarketOrder(m *model.MarketOrderCreateModel, brokerID string, accountID model.AccountID, fee model.Fee) *model.MarketOrder {
	return &model.MarketOrder{
		ID:          a.operationID(m.ID),
		BrokerID:    brokerID,
		AccountID:   accountID,
		WalletID:    m.WalletID,
		AssetPairID: m.AssetPair,
		Volume:      m.Volume,
		Fee:         fee,
		Timestamp:   a.now(),
	}
}
