package model

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// FeeType 手续费类型
type FeeType int

const (
	FeeTypeNoFee FeeType = iota
	FeeTypeClientFee
)

func (t FeeType) String() string {
	switch t {
	case FeeTypeNoFee:
		return "NoFee"
	case FeeTypeClientFee:
		return "ClientFee"
	default:
		return fmt.Sprintf("FeeType(%d)", int(t))
	}
}

func (t FeeType) MarshalText() ([]byte, error) { return []byte(t.String()), nil }

func (t *FeeType) UnmarshalText(b []byte) error {
	switch string(b) {
	case "NoFee", "":
		*t = FeeTypeNoFee
	case "ClientFee":
		*t = FeeTypeClientFee
	default:
		return fmt.Errorf("unknown fee type %q", string(b))
	}
	return nil
}

// FeeSizeType 手续费数值类型；NoFee 时为 Unset
type FeeSizeType int

const (
	FeeSizeTypeUnset FeeSizeType = iota
	FeeSizeTypePercentage
	FeeSizeTypeAbsolute
)

func (t FeeSizeType) String() string {
	switch t {
	case FeeSizeTypeUnset:
		return ""
	case FeeSizeTypePercentage:
		return "Percentage"
	case FeeSizeTypeAbsolute:
		return "Absolute"
	default:
		return fmt.Sprintf("FeeSizeType(%d)", int(t))
	}
}

func (t FeeSizeType) MarshalText() ([]byte, error) { return []byte(t.String()), nil }

func (t *FeeSizeType) UnmarshalText(b []byte) error {
	switch string(b) {
	case "":
		*t = FeeSizeTypeUnset
	case "Percentage":
		*t = FeeSizeTypePercentage
	case "Absolute":
		*t = FeeSizeTypeAbsolute
	default:
		return fmt.Errorf("unknown fee size type %q", string(b))
	}
	return nil
}

// Fee 附加到撮合请求上的手续费描述。
// 现金操作和市价单使用 Size，限价单使用 MakerSize/TakerSize。
// 百分比以小数存储（配置值 / 100）。
type Fee struct {
	Type            FeeType         `json:"type"`
	Size            decimal.Decimal `json:"size"`
	MakerSize       decimal.Decimal `json:"makerSize"`
	TakerSize       decimal.Decimal `json:"takerSize"`
	SizeType        FeeSizeType     `json:"sizeType,omitempty"`
	TargetWalletID  WalletID        `json:"targetWalletId,omitempty"`
	TargetAccountID AccountID       `json:"targetAccountId,omitempty"`
}

// NoFee 返回零费率描述：所有数值为 0，SizeType 未设置
func NoFee() Fee {
	return Fee{
		Type:      FeeTypeNoFee,
		Size:      decimal.Zero,
		MakerSize: decimal.Zero,
		TakerSize: decimal.Zero,
	}
}

// IsNoFee 判断是否为零费率
func (f Fee) IsNoFee() bool {
	return f.Type == FeeTypeNoFee
}
