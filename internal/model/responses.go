package model

import "github.com/shopspring/decimal"

// Status 撮合引擎返回的状态，原样透传，不在本层重新解释
type Status string

const (
	StatusOK                 Status = "Ok"
	StatusLowBalance         Status = "LowBalance"
	StatusDisabledAsset      Status = "DisabledAsset"
	StatusUnknownAsset       Status = "UnknownAsset"
	StatusDuplicate          Status = "Duplicate"
	StatusInvalidVolume      Status = "InvalidVolume"
	StatusInvalidPrice       Status = "InvalidPrice"
	StatusLimitOrderNotFound Status = "LimitOrderNotFound"
	StatusRuntime            Status = "Runtime"
)

// IsOK 撮合引擎是否受理
func (s Status) IsOK() bool { return s == StatusOK }

// Response 撮合引擎通用应答
type Response struct {
	ID           string `json:"id"`
	Status       Status `json:"status"`
	StatusReason string `json:"statusReason,omitempty"`
}

// MarketOrderResponse 市价单应答，额外带成交价格（字符串）
type MarketOrderResponse struct {
	Response
	Price string `json:"price,omitempty"`
}

// OperationResult 对外统一返回 {id, status, reason}
type OperationResult struct {
	ID     string `json:"id"`
	Status Status `json:"status"`
	Reason string `json:"reason,omitempty"`
}

// NewOperationResult 将撮合应答映射为统一结果
func NewOperationResult(resp *Response) *OperationResult {
	return &OperationResult{
		ID:     resp.ID,
		Status: resp.Status,
		Reason: resp.StatusReason,
	}
}

// MarketOrderResult 市价单结果
type MarketOrderResult struct {
	OperationResult
	Price decimal.Decimal `json:"price"`
}

// NewMarketOrderResult 价格无法解析时记为 0
func NewMarketOrderResult(resp *MarketOrderResponse) *MarketOrderResult {
	price, err := decimal.NewFromString(resp.Price)
	if err != nil {
		price = decimal.Zero
	}
	return &MarketOrderResult{
		OperationResult: *NewOperationResult(&resp.Response),
		Price:           price,
	}
}
