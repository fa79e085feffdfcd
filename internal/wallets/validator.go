package wallets

import (
	"context"
	"errors"
	"fmt"

	"github.com/newplayman/exchange-operations/internal/model"
)

// Source 账户服务
// GetWallet 返回 (nil, nil) 表示钱包不存在
type Source interface {
	GetWallet(ctx context.Context, id model.WalletID, brokerID string) (*model.Wallet, error)
	GetWallets(ctx context.Context, ids []model.WalletID, brokerID string) ([]model.Wallet, error)
}

// Reason 钱包校验失败原因
type Reason string

const (
	ReasonNotFound        Reason = "NotFound"
	ReasonDisabled        Reason = "Disabled"
	ReasonWrongType       Reason = "WrongType"
	ReasonAccountMismatch Reason = "AccountMismatch"
	ReasonMalformedPair   Reason = "MalformedPair"
)

// Error 钱包校验错误，调用方据此拒绝请求
type Error struct {
	Reason        Reason
	WalletID      model.WalletID
	OtherWalletID model.WalletID
}

func (e *Error) Error() string {
	if e.OtherWalletID != "" {
		return fmt.Sprintf("wallet %s/%s: %s", e.WalletID, e.OtherWalletID, e.Reason)
	}
	return fmt.Sprintf("wallet %s: %s", e.WalletID, e.Reason)
}

// Is 按原因匹配，便于 errors.Is(err, wallets.ErrDisabled)
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Reason == e.Reason
}

var (
	ErrNotFound        = &Error{Reason: ReasonNotFound}
	ErrDisabled        = &Error{Reason: ReasonDisabled}
	ErrWrongType       = &Error{Reason: ReasonWrongType}
	ErrAccountMismatch = &Error{Reason: ReasonAccountMismatch}
	ErrMalformedPair   = &Error{Reason: ReasonMalformedPair}
)

// LookupError 账户服务不可用，区别于校验失败
type LookupError struct {
	WalletIDs []model.WalletID
	Err       error
}

func (e *LookupError) Error() string {
	return fmt.Sprintf("wallet lookup %v: %v", e.WalletIDs, e.Err)
}

func (e *LookupError) Unwrap() error { return e.Err }

// Validator 每次调用实时查询钱包，不缓存
type Validator struct {
	source Source
}

func NewValidator(source Source) *Validator {
	return &Validator{source: source}
}

// ValidateSingle 校验钱包存在且启用；requireMain 时还要求为 Main 钱包（充值/提现）
// 不属于该经纪商的钱包按不存在处理
func (v *Validator) ValidateSingle(ctx context.Context, id model.WalletID, brokerID string, requireMain bool) (*model.Wallet, error) {
	if id.IsZero() {
		return nil, &Error{Reason: ReasonNotFound, WalletID: id}
	}
	w, err := v.source.GetWallet(ctx, id, brokerID)
	if err != nil {
		return nil, &LookupError{WalletIDs: []model.WalletID{id}, Err: err}
	}
	if w == nil || (w.BrokerID != "" && w.BrokerID != brokerID) {
		return nil, &Error{Reason: ReasonNotFound, WalletID: id}
	}
	if !w.IsEnabled {
		return nil, &Error{Reason: ReasonDisabled, WalletID: id}
	}
	if requireMain && w.Type != model.WalletTypeMain {
		return nil, &Error{Reason: ReasonWrongType, WalletID: id}
	}
	return w, nil
}

// ValidateTransferPair 两个钱包都存在、目标钱包启用、同属一个账户
// 返回共同的账户 ID
func (v *Validator) ValidateTransferPair(ctx context.Context, from, to model.WalletID, brokerID string) (model.AccountID, error) {
	if from.IsZero() || to.IsZero() || from == to {
		return "", &Error{Reason: ReasonMalformedPair, WalletID: from, OtherWalletID: to}
	}

	list, err := v.source.GetWallets(ctx, []model.WalletID{from, to}, brokerID)
	if err != nil {
		return "", &LookupError{WalletIDs: []model.WalletID{from, to}, Err: err}
	}

	var src, dst *model.Wallet
	for i := range list {
		w := &list[i]
		if w.BrokerID != "" && w.BrokerID != brokerID {
			continue
		}
		switch w.ID {
		case from:
			src = w
		case to:
			dst = w
		}
	}

	if src == nil {
		return "", &Error{Reason: ReasonNotFound, WalletID: from}
	}
	if dst == nil {
		return "", &Error{Reason: ReasonNotFound, WalletID: to}
	}
	if !dst.IsEnabled {
		return "", &Error{Reason: ReasonDisabled, WalletID: to}
	}
	if src.AccountID != dst.AccountID {
		return "", &Error{Reason: ReasonAccountMismatch, WalletID: from, OtherWalletID: to}
	}
	return src.AccountID, nil
}
