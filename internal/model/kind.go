package model

// OperationKind 操作类型
type OperationKind int

const (
	OperationCashIn OperationKind = iota
	OperationCashOut
	OperationCashTransfer
	OperationLimitOrder
	OperationLimitOrderCancel
	OperationMarketOrder
)

func (k OperationKind) String() string {
	switch k {
	case OperationCashIn:
		return "cash_in"
	case OperationCashOut:
		return "cash_out"
	case OperationCashTransfer:
		return "cash_transfer"
	case OperationLimitOrder:
		return "limit_order"
	case OperationLimitOrderCancel:
		return "limit_order_cancel"
	case OperationMarketOrder:
		return "market_order"
	default:
		return "unknown"
	}
}

// IsTrading 限价单/市价单按交易费率计费
func (k OperationKind) IsTrading() bool {
	return k == OperationLimitOrder || k == OperationMarketOrder
}

// IsCash 现金类操作按现金费率计费
func (k OperationKind) IsCash() bool {
	return k == OperationCashIn || k == OperationCashOut || k == OperationCashTransfer
}
