package fees

import (
	"context"
	"fmt"

	"github.com/newplayman/exchange-operations/internal/model"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// Source 费率配置服务
// 返回 (nil, nil) 表示配置不存在
type Source interface {
	GetCashFee(ctx context.Context, brokerID, asset string) (*model.CashFeeConfig, error)
	GetTradingFee(ctx context.Context, brokerID, assetPair string) (*model.TradingFeeConfig, error)
	GetBrokerFeeSettings(ctx context.Context, brokerID string) (*model.FeeSettings, error)
}

// Reason 降级为 NoFee 的原因
type Reason string

const (
	ReasonNone                 Reason = ""
	ReasonConfigUnavailable    Reason = "config_unavailable"
	ReasonConfigMissing        Reason = "config_missing"
	ReasonSettingsUnavailable  Reason = "settings_unavailable"
	ReasonSettingsMissing      Reason = "settings_missing"
	ReasonTargetEmpty          Reason = "target_empty"
	ReasonNoLevels             Reason = "no_levels"
	ReasonUnsupportedOperation Reason = "unsupported_operation"
)

// Resolution 费率解析结果
// Reason 非空表示走了降级路径，Err 为触发降级的下游错误（如有）
type Resolution struct {
	Fee    model.Fee
	Reason Reason
	Err    error
}

// Degraded 是否降级为 NoFee
func (r Resolution) Degraded() bool {
	return r.Reason != ReasonNone
}

var hundred = decimal.NewFromInt(100)

// Resolver 按经纪商 + 资产/交易对 + 操作类型解析手续费
// 任何下游错误或配置缺失都降级为 NoFee，不向调用方返回错误
type Resolver struct {
	source Source
}

func NewResolver(source Source) *Resolver {
	return &Resolver{source: source}
}

// Resolve subject 对现金操作是资产，对交易操作是交易对
func (r *Resolver) Resolve(ctx context.Context, brokerID, subject string, kind model.OperationKind) Resolution {
	if !kind.IsCash() && !kind.IsTrading() {
		return r.degrade(brokerID, subject, kind, ReasonUnsupportedOperation, nil)
	}

	var (
		cashCfg    *model.CashFeeConfig
		tradingCfg *model.TradingFeeConfig
		cfgErr     error
		hasConfig  bool
	)
	if kind.IsCash() {
		cashCfg, cfgErr = r.source.GetCashFee(ctx, brokerID, subject)
		hasConfig = cashCfg != nil
	} else {
		tradingCfg, cfgErr = r.source.GetTradingFee(ctx, brokerID, subject)
		hasConfig = tradingCfg != nil
	}
	settings, settingsErr := r.source.GetBrokerFeeSettings(ctx, brokerID)

	switch {
	case cfgErr != nil:
		return r.degrade(brokerID, subject, kind, ReasonConfigUnavailable, cfgErr)
	case !hasConfig:
		return r.degrade(brokerID, subject, kind, ReasonConfigMissing, nil)
	case settingsErr != nil:
		return r.degrade(brokerID, subject, kind, ReasonSettingsUnavailable, settingsErr)
	case settings == nil:
		return r.degrade(brokerID, subject, kind, ReasonSettingsMissing, nil)
	case !settings.HasTarget():
		return r.degrade(brokerID, subject, kind, ReasonTargetEmpty, nil)
	}

	var size, maker, taker decimal.Decimal
	var sizeType model.FeeSizeType
	if kind.IsCash() {
		value, cashType := cashRate(cashCfg, kind)
		size, sizeType = normalize(value, cashType == model.CashFeeSizeTypePercentage)
		return r.build(settings, size, maker, taker, sizeType)
	}

	level, found := SelectLevel(tradingCfg.Levels)
	if !found {
		return r.degrade(brokerID, subject, kind, ReasonNoLevels, nil)
	}
	if kind == model.OperationMarketOrder {
		size, sizeType = normalize(level.TakerFee, true)
	} else {
		maker, sizeType = normalize(level.MakerFee, true)
		taker, _ = normalize(level.TakerFee, true)
	}
	return r.build(settings, size, maker, taker, sizeType)
}

func (r *Resolver) build(settings *model.FeeSettings, size, maker, taker decimal.Decimal, sizeType model.FeeSizeType) Resolution {
	if size.IsZero() && maker.IsZero() && taker.IsZero() {
		return Resolution{Fee: model.NoFee()}
	}
	return Resolution{Fee: model.Fee{
		Type:            model.FeeTypeClientFee,
		Size:            size,
		MakerSize:       maker,
		TakerSize:       taker,
		SizeType:        sizeType,
		TargetWalletID:  settings.FeeWalletID,
		TargetAccountID: settings.FeeAccountID,
	}}
}

func (r *Resolver) degrade(brokerID, subject string, kind model.OperationKind, reason Reason, err error) Resolution {
	ev := log.Warn().
		Str("broker", brokerID).
		Str("subject", subject).
		Str("kind", kind.String()).
		Str("reason", string(reason))
	if err != nil {
		ev = ev.Err(err)
	}
	ev.Msg("手续费降级为 NoFee")
	return Resolution{Fee: model.NoFee(), Reason: reason, Err: err}
}

// cashRate 按操作类型取现金费率字段
func cashRate(cfg *model.CashFeeConfig, kind model.OperationKind) (decimal.Decimal, model.CashFeeSizeType) {
	switch kind {
	case model.OperationCashIn:
		return cfg.CashInValue, cfg.CashInFeeType
	case model.OperationCashOut:
		return cfg.CashOutValue, cfg.CashOutFeeType
	case model.OperationCashTransfer:
		return cfg.CashTransferValue, cfg.CashTransferFeeType
	default:
		panic(fmt.Sprintf("cashRate: unexpected kind %s", kind))
	}
}

// normalize 百分比按小数存储
func normalize(value decimal.Decimal, percentage bool) (decimal.Decimal, model.FeeSizeType) {
	if percentage {
		return value.Div(hundred), model.FeeSizeTypePercentage
	}
	return value, model.FeeSizeTypeAbsolute
}

// SelectLevel 取成交量门槛最小的档位，相同门槛取先出现者
// TODO: 接入 30 天滚动成交量后按实际成交量选档
func SelectLevel(levels []model.TradingFeeLevel) (model.TradingFeeLevel, bool) {
	if len(levels) == 0 {
		return model.TradingFeeLevel{}, false
	}
	best := levels[0]
	for _, l := range levels[1:] {
		if l.Volume.LessThan(best.Volume) {
			best = l
		}
	}
	return best, true
}
