package wallets

import (
	"context"
	"errors"
	"testing"

	"github.com/newplayman/exchange-operations/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memSource struct {
	wallets map[model.WalletID]model.Wallet
	err     error
	calls   int
}

func (m *memSource) GetWallet(_ context.Context, id model.WalletID, _ string) (*model.Wallet, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	w, ok := m.wallets[id]
	if !ok {
		return nil, nil
	}
	return &w, nil
}

func (m *memSource) GetWallets(_ context.Context, ids []model.WalletID, _ string) ([]model.Wallet, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	var out []model.Wallet
	for _, id := range ids {
		if w, ok := m.wallets[id]; ok {
			out = append(out, w)
		}
	}
	return out, nil
}

func newSource() *memSource {
	return &memSource{wallets: map[model.WalletID]model.Wallet{
		"W1":    {ID: "W1", BrokerID: "B1", AccountID: "A1", Type: model.WalletTypeMain, IsEnabled: true},
		"W2":    {ID: "W2", BrokerID: "B1", AccountID: "A1", Type: model.WalletTypeTrading, IsEnabled: true},
		"W3":    {ID: "W3", BrokerID: "B1", AccountID: "A2", Type: model.WalletTypeMain, IsEnabled: true},
		"OFF":   {ID: "OFF", BrokerID: "B1", AccountID: "A1", Type: model.WalletTypeMain, IsEnabled: false},
		"OTHER": {ID: "OTHER", BrokerID: "B2", AccountID: "A1", Type: model.WalletTypeMain, IsEnabled: true},
	}}
}

func TestValidateSingle(t *testing.T) {
	v := NewValidator(newSource())
	ctx := context.Background()

	w, err := v.ValidateSingle(ctx, "W1", "B1", true)
	require.NoError(t, err)
	assert.Equal(t, model.AccountID("A1"), w.AccountID)

	_, err = v.ValidateSingle(ctx, "W2", "B1", false)
	assert.NoError(t, err)

	cases := []struct {
		id          model.WalletID
		requireMain bool
		want        error
	}{
		{"MISSING", false, ErrNotFound},
		{"", false, ErrNotFound},
		{"OTHER", false, ErrNotFound},
		{"OFF", false, ErrDisabled},
		{"W2", true, ErrWrongType},
	}
	for _, tc := range cases {
		_, err := v.ValidateSingle(ctx, tc.id, "B1", tc.requireMain)
		assert.ErrorIs(t, err, tc.want, "wallet %q", tc.id)
	}
}

func TestValidateSingleLookupFailure(t *testing.T) {
	src := newSource()
	src.err = errors.New("connection refused")
	_, err := NewValidator(src).ValidateSingle(context.Background(), "W1", "B1", true)

	var lookup *LookupError
	require.ErrorAs(t, err, &lookup)
	assert.ErrorContains(t, err, "connection refused")

	var werr *Error
	assert.False(t, errors.As(err, &werr))
}

func TestValidateTransferPair(t *testing.T) {
	src := newSource()
	v := NewValidator(src)
	ctx := context.Background()

	account, err := v.ValidateTransferPair(ctx, "W1", "W2", "B1")
	require.NoError(t, err)
	assert.Equal(t, model.AccountID("A1"), account)

	// 源钱包禁用不影响划转
	_, err = v.ValidateTransferPair(ctx, "OFF", "W1", "B1")
	assert.NoError(t, err)

	_, err = v.ValidateTransferPair(ctx, "W1", "W3", "B1")
	assert.ErrorIs(t, err, ErrAccountMismatch)

	_, err = v.ValidateTransferPair(ctx, "W1", "OFF", "B1")
	assert.ErrorIs(t, err, ErrDisabled)

	_, err = v.ValidateTransferPair(ctx, "MISSING", "W1", "B1")
	var werr *Error
	require.ErrorAs(t, err, &werr)
	assert.Equal(t, ReasonNotFound, werr.Reason)
	assert.Equal(t, model.WalletID("MISSING"), werr.WalletID)

	_, err = v.ValidateTransferPair(ctx, "W1", "OTHER", "B1")
	require.ErrorAs(t, err, &werr)
	assert.Equal(t, model.WalletID("OTHER"), werr.WalletID)
}

func TestValidateTransferPairMalformed(t *testing.T) {
	src := newSource()
	v := NewValidator(src)

	for _, pair := range [][2]model.WalletID{{"W1", "W1"}, {"", "W1"}, {"W1", "0"}} {
		_, err := v.ValidateTransferPair(context.Background(), pair[0], pair[1], "B1")
		assert.ErrorIs(t, err, ErrMalformedPair)
	}
	assert.Zero(t, src.calls)
}
