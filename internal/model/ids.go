package model

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
)

// WalletID 钱包标识。
// 数字或字符串的表示差异只在 API 边界处理，内部一律按不透明字符串传递。
type WalletID string

func (id WalletID) String() string { return string(id) }

// IsZero 空字符串或 "0" 视为未设置（上游服务用 0 表示缺省）
func (id WalletID) IsZero() bool { return id == "" || id == "0" }

// UnmarshalJSON 接受字符串或非负整数（旧版接口使用数字 ID）
func (id *WalletID) UnmarshalJSON(b []byte) error {
	s, err := parseID(b)
	if err != nil {
		return fmt.Errorf("wallet id: %w", err)
	}
	*id = WalletID(s)
	return nil
}

// AccountID 账户标识，语义同 WalletID。
type AccountID string

func (id AccountID) String() string { return string(id) }

func (id AccountID) IsZero() bool { return id == "" || id == "0" }

func (id *AccountID) UnmarshalJSON(b []byte) error {
	s, err := parseID(b)
	if err != nil {
		return fmt.Errorf("account id: %w", err)
	}
	*id = AccountID(s)
	return nil
}

// parseID null 视为未设置
func parseID(b []byte) (string, error) {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return "", nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return "", err
		}
		return s, nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return "", err
	}
	if _, err := strconv.ParseUint(n.String(), 10, 64); err != nil {
		return "", fmt.Errorf("numeric id %s is not an unsigned integer", n)
	}
	return n.String(), nil
}

// ErrInvalidModel 客户端模型缺少必需字段
var ErrInvalidModel = errors.New("invalid model")
