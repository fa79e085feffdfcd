package gateway

import (
	"fmt"
)

// 撮合引擎远程方法
const (
	MethodCashInOut        = "/matchingengine.CashOperations/CashInOut"
	MethodCashTransfer     = "/matchingengine.CashOperations/CashTransfer"
	MethodLimitOrder       = "/matchingengine.Trading/LimitOrder"
	MethodCancelLimitOrder = "/matchingengine.Trading/CancelLimitOrder"
	MethodMarketOrder      = "/matchingengine.Trading/MarketOrder"
)

// WS 通道上的方法名
const (
	wsCashInOut        = "cash.inout"
	wsCashTransfer     = "cash.transfer"
	wsLimitOrder       = "order.limit.place"
	wsCancelLimitOrder = "order.limit.cancel"
	wsMarketOrder      = "order.market.place"
)

// EngineError 撮合引擎在传输层返回的错误（区别于业务状态码）
type EngineError struct {
	Method  string
	Code    int
	Message string
}

func (e *EngineError) Error() string {
	return fmt.Sprintf("engine %s: %d %s", e.Method, e.Code, e.Message)
}
