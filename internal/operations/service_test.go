package operations

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/newplayman/exchange-operations/internal/assembler"
	"github.com/newplayman/exchange-operations/internal/events"
	"github.com/newplayman/exchange-operations/internal/fees"
	"github.com/newplayman/exchange-operations/internal/model"
	"github.com/newplayman/exchange-operations/internal/wallets"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockEngine 撮合引擎 mock
type MockEngine struct {
	mock.Mock
}

func (m *MockEngine) SubmitCashInOut(ctx context.Context, req *model.CashInOutOperation) (*model.Response, error) {
	args := m.Called(ctx, req)
	resp, _ := args.Get(0).(*model.Response)
	return resp, args.Error(1)
}

func (m *MockEngine) SubmitCashTransfer(ctx context.Context, req *model.CashTransferOperation) (*model.Response, error) {
	args := m.Called(ctx, req)
	resp, _ := args.Get(0).(*model.Response)
	return resp, args.Error(1)
}

func (m *MockEngine) SubmitLimitOrder(ctx context.Context, req *model.LimitOrder) (*model.Response, error) {
	args := m.Called(ctx, req)
	resp, _ := args.Get(0).(*model.Response)
	return resp, args.Error(1)
}

func (m *MockEngine) CancelLimitOrder(ctx context.Context, req *model.LimitOrderCancel) (*model.Response, error) {
	args := m.Called(ctx, req)
	resp, _ := args.Get(0).(*model.Response)
	return resp, args.Error(1)
}

func (m *MockEngine) SubmitMarketOrder(ctx context.Context, req *model.MarketOrder) (*model.MarketOrderResponse, error) {
	args := m.Called(ctx, req)
	resp, _ := args.Get(0).(*model.MarketOrderResponse)
	return resp, args.Error(1)
}

// walletStore 内存钱包源
type walletStore struct {
	mu      sync.Mutex
	wallets map[model.WalletID]model.Wallet
	calls   int
}

func (s *walletStore) GetWallet(_ context.Context, id model.WalletID, _ string) (*model.Wallet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	w, ok := s.wallets[id]
	if !ok {
		return nil, nil
	}
	return &w, nil
}

func (s *walletStore) GetWallets(_ context.Context, ids []model.WalletID, _ string) ([]model.Wallet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	var out []model.Wallet
	for _, id := range ids {
		if w, ok := s.wallets[id]; ok {
			out = append(out, w)
		}
	}
	return out, nil
}

// feeStore 内存费率源，记录调用次数
type feeStore struct {
	mu       sync.Mutex
	cash     *model.CashFeeConfig
	trading  *model.TradingFeeConfig
	settings *model.FeeSettings
	err      error
	calls    int
}

func (s *feeStore) GetCashFee(context.Context, string, string) (*model.CashFeeConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return s.cash, s.err
}

func (s *feeStore) GetTradingFee(context.Context, string, string) (*model.TradingFeeConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return s.trading, s.err
}

func (s *feeStore) GetBrokerFeeSettings(context.Context, string) (*model.FeeSettings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return s.settings, s.err
}

type capturePublisher struct {
	mu     sync.Mutex
	events []events.OperationEvent
	err    error
}

func (p *capturePublisher) Publish(_ context.Context, ev events.OperationEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return p.err
}

func (p *capturePublisher) Close() error { return nil }

type fixture struct {
	wallets   *walletStore
	fees      *feeStore
	engine    *MockEngine
	publisher *capturePublisher
	svc       *Service
}

func newFixture(t *testing.T, parallel bool) *fixture {
	t.Helper()
	f := &fixture{
		wallets: &walletStore{wallets: map[model.WalletID]model.Wallet{
			"W1":  {ID: "W1", BrokerID: "B1", AccountID: "A1", Type: model.WalletTypeMain, IsEnabled: true},
			"W2":  {ID: "W2", BrokerID: "B1", AccountID: "A2", Type: model.WalletTypeMain, IsEnabled: true},
			"W3":  {ID: "W3", BrokerID: "B1", AccountID: "A1", Type: model.WalletTypeTrading, IsEnabled: true},
			"OFF": {ID: "OFF", BrokerID: "B1", AccountID: "A1", Type: model.WalletTypeMain, IsEnabled: false},
		}},
		fees:      &feeStore{},
		engine:    &MockEngine{},
		publisher: &capturePublisher{},
	}
	asm := assembler.NewWith(func() string { return "gen-id" }, func() time.Time {
		return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	})
	f.svc = NewService(
		wallets.NewValidator(f.wallets),
		fees.NewResolver(f.fees),
		asm,
		f.engine,
		f.publisher,
		Config{ParallelLookups: parallel},
	)
	return f
}

func okResponse(id string) *model.Response {
	return &model.Response{ID: id, Status: model.StatusOK}
}

func TestCashInWithoutFeeConfig(t *testing.T) {
	f := newFixture(t, false)
	var sent *model.CashInOutOperation
	f.engine.On("SubmitCashInOut", mock.Anything, mock.AnythingOfType("*model.CashInOutOperation")).
		Run(func(args mock.Arguments) { sent = args.Get(1).(*model.CashInOutOperation) }).
		Return(okResponse("gen-id"), nil)

	res, err := f.svc.CashIn(context.Background(), "B1", &model.CashInOutModel{
		WalletID: "W1", Asset: "BTC", Volume: decimal.NewFromInt(1), Description: "d",
	})
	require.NoError(t, err)
	assert.Equal(t, model.StatusOK, res.Status)
	assert.Equal(t, "gen-id", res.ID)

	require.NotNil(t, sent)
	assert.Equal(t, "1", sent.Volume.String())
	assert.Equal(t, model.FeeTypeNoFee, sent.Fee.Type)
	assert.Equal(t, "d", sent.Description)
	assert.Equal(t, model.AccountID("A1"), sent.AccountID)
	assert.Equal(t, model.OperationCashIn, sent.Kind())
	f.engine.AssertExpectations(t)

	require.Len(t, f.publisher.events, 1)
	assert.Equal(t, "cash_in", f.publisher.events[0].Kind)
}

func TestCashOutWithPercentageFee(t *testing.T) {
	f := newFixture(t, false)
	f.fees.cash = &model.CashFeeConfig{CashOutValue: decimal.NewFromInt(1), CashOutFeeType: model.CashFeeSizeTypePercentage}
	f.fees.settings = &model.FeeSettings{BrokerID: "B1", FeeWalletID: "FW"}

	var sent *model.CashInOutOperation
	f.engine.On("SubmitCashInOut", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { sent = args.Get(1).(*model.CashInOutOperation) }).
		Return(okResponse("op-7"), nil)

	_, err := f.svc.CashOut(context.Background(), "B1", &model.CashInOutModel{
		ID: "op-7", WalletID: "W1", Asset: "BTC", Volume: decimal.NewFromInt(1),
	})
	require.NoError(t, err)

	require.NotNil(t, sent)
	assert.Equal(t, "op-7", sent.ID)
	assert.Equal(t, "-1", sent.Volume.String())
	assert.Equal(t, "0.01", sent.Fee.Size.String())
	assert.Equal(t, model.FeeTypeClientFee, sent.Fee.Type)
	assert.Equal(t, model.FeeSizeTypePercentage, sent.Fee.SizeType)
	assert.Equal(t, model.WalletID("FW"), sent.Fee.TargetWalletID)
}

func TestCashTransferAccountMismatch(t *testing.T) {
	for _, parallel := range []bool{false, true} {
		f := newFixture(t, parallel)
		_, err := f.svc.CashTransfer(context.Background(), "B1", &model.CashTransferModel{
			FromWalletID: "W1", ToWalletID: "W2", Asset: "BTC", Volume: decimal.NewFromInt(2),
		})
		assert.ErrorIs(t, err, wallets.ErrAccountMismatch)
		f.engine.AssertNotCalled(t, "SubmitCashTransfer", mock.Anything, mock.Anything)
		assert.Empty(t, f.publisher.events)
	}
}

func TestCashTransferStampsAccount(t *testing.T) {
	f := newFixture(t, true)
	var sent *model.CashTransferOperation
	f.engine.On("SubmitCashTransfer", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { sent = args.Get(1).(*model.CashTransferOperation) }).
		Return(okResponse("gen-id"), nil)

	_, err := f.svc.CashTransfer(context.Background(), "B1", &model.CashTransferModel{
		FromWalletID: "W1", ToWalletID: "W3", Asset: "BTC", Volume: decimal.NewFromInt(2),
	})
	require.NoError(t, err)
	assert.Equal(t, model.AccountID("A1"), sent.AccountID)
	assert.Equal(t, "2", sent.Volume.String())
}

func TestDisabledWalletBlocksBeforeFeeLookup(t *testing.T) {
	f := newFixture(t, false)
	_, err := f.svc.CashOut(context.Background(), "B1", &model.CashInOutModel{
		WalletID: "OFF", Asset: "BTC", Volume: decimal.NewFromInt(1),
	})
	assert.ErrorIs(t, err, wallets.ErrDisabled)
	assert.Zero(t, f.fees.calls)
	f.engine.AssertNotCalled(t, "SubmitCashInOut", mock.Anything, mock.Anything)
}

func TestDisabledWalletBlocksInParallelMode(t *testing.T) {
	f := newFixture(t, true)
	_, err := f.svc.CashIn(context.Background(), "B1", &model.CashInOutModel{
		WalletID: "OFF", Asset: "BTC", Volume: decimal.NewFromInt(1),
	})
	assert.ErrorIs(t, err, wallets.ErrDisabled)
	f.engine.AssertNotCalled(t, "SubmitCashInOut", mock.Anything, mock.Anything)
}

func TestCashInRequiresMainWallet(t *testing.T) {
	f := newFixture(t, false)
	_, err := f.svc.CashIn(context.Background(), "B1", &model.CashInOutModel{
		WalletID: "W3", Asset: "BTC", Volume: decimal.NewFromInt(1),
	})
	assert.ErrorIs(t, err, wallets.ErrWrongType)
}

func TestFeeServiceDownDoesNotBlock(t *testing.T) {
	f := newFixture(t, true)
	f.fees.err = errors.New("fee service unavailable")
	var sent *model.LimitOrder
	f.engine.On("SubmitLimitOrder", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { sent = args.Get(1).(*model.LimitOrder) }).
		Return(okResponse("gen-id"), nil)

	res, err := f.svc.CreateLimitOrder(context.Background(), "B1", &model.LimitOrderCreateModel{
		WalletID: "W3", AssetPair: "BTCUSD", Price: decimal.NewFromInt(100), Volume: decimal.NewFromInt(1),
	})
	require.NoError(t, err)
	assert.True(t, res.Status.IsOK())
	assert.True(t, sent.Fee.IsNoFee())
	assert.Equal(t, model.LimitOrderTypeLimit, sent.Type)
}

func TestLimitOrderWithTradingFee(t *testing.T) {
	f := newFixture(t, false)
	f.fees.trading = &model.TradingFeeConfig{Levels: []model.TradingFeeLevel{
		{Volume: decimal.NewFromInt(1), MakerFee: decimal.NewFromInt(4), TakerFee: decimal.NewFromInt(6)},
		{Volume: decimal.RequireFromString("0.5"), MakerFee: decimal.NewFromInt(2), TakerFee: decimal.NewFromInt(3)},
	}}
	f.fees.settings = &model.FeeSettings{FeeWalletID: "FW", FeeAccountID: "FA"}

	var sent *model.LimitOrder
	f.engine.On("SubmitLimitOrder", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { sent = args.Get(1).(*model.LimitOrder) }).
		Return(&model.Response{ID: "gen-id", Status: model.StatusLowBalance, StatusReason: "funds"}, nil)

	res, err := f.svc.CreateLimitOrder(context.Background(), "B1", &model.LimitOrderCreateModel{
		WalletID: "W1", AssetPair: "BTCUSD", Price: decimal.NewFromInt(100), Volume: decimal.NewFromInt(-1),
		Type: model.LimitOrderTypeStopLimit, CancelPrevious: true,
	})
	require.NoError(t, err)
	// 远端拒绝原样透传
	assert.Equal(t, model.StatusLowBalance, res.Status)
	assert.Equal(t, "funds", res.Reason)

	assert.Equal(t, "0.02", sent.Fee.MakerSize.String())
	assert.Equal(t, "0.03", sent.Fee.TakerSize.String())
	assert.True(t, sent.CancelAllPreviousLimitOrder)
	assert.Equal(t, model.LimitOrderTypeStopLimit, sent.Type)
}

func TestCancelLimitOrder(t *testing.T) {
	f := newFixture(t, false)
	var sent *model.LimitOrderCancel
	f.engine.On("CancelLimitOrder", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { sent = args.Get(1).(*model.LimitOrderCancel) }).
		Return(okResponse("gen-id"), nil)

	res, err := f.svc.CancelLimitOrder(context.Background(), "B1", "order-1")
	require.NoError(t, err)
	assert.Equal(t, "gen-id", res.ID)
	assert.Equal(t, []string{"order-1"}, sent.LimitOrderIDs)
	assert.Zero(t, f.wallets.calls)
	assert.Zero(t, f.fees.calls)

	_, err = f.svc.CancelLimitOrder(context.Background(), "B1", "")
	assert.ErrorIs(t, err, model.ErrInvalidModel)
}

func TestMarketOrder(t *testing.T) {
	f := newFixture(t, false)
	f.fees.trading = &model.TradingFeeConfig{Levels: []model.TradingFeeLevel{
		{Volume: decimal.Zero, MakerFee: decimal.NewFromInt(1), TakerFee: decimal.NewFromInt(2)},
	}}
	f.fees.settings = &model.FeeSettings{FeeWalletID: "FW"}

	var sent *model.MarketOrder
	f.engine.On("SubmitMarketOrder", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { sent = args.Get(1).(*model.MarketOrder) }).
		Return(&model.MarketOrderResponse{Response: *okResponse("gen-id"), Price: "250.5"}, nil)

	res, err := f.svc.CreateMarketOrder(context.Background(), "B1", &model.MarketOrderCreateModel{
		WalletID: "W1", AssetPair: "ETHUSD", Volume: decimal.NewFromInt(3),
	})
	require.NoError(t, err)
	assert.Equal(t, "250.5", res.Price.String())
	assert.Equal(t, "0.02", sent.Fee.Size.String())
	assert.True(t, sent.Fee.MakerSize.IsZero())
}

func TestSubmissionFailure(t *testing.T) {
	f := newFixture(t, false)
	f.engine.On("SubmitMarketOrder", mock.Anything, mock.Anything).Return(nil, errors.New("connection reset"))

	_, err := f.svc.CreateMarketOrder(context.Background(), "B1", &model.MarketOrderCreateModel{
		WalletID: "W1", AssetPair: "ETHUSD", Volume: decimal.NewFromInt(3),
	})
	var subErr *SubmissionError
	require.ErrorAs(t, err, &subErr)
	assert.Equal(t, model.OperationMarketOrder, subErr.Kind)
	assert.Equal(t, "gen-id", subErr.OperationID)
	assert.ErrorContains(t, err, "connection reset")
	assert.Empty(t, f.publisher.events)
}

func TestNilEngineResponseIsSubmissionError(t *testing.T) {
	f := newFixture(t, false)
	f.engine.On("SubmitCashInOut", mock.Anything, mock.Anything).Return(nil, nil)

	_, err := f.svc.CashIn(context.Background(), "B1", &model.CashInOutModel{
		WalletID: "W1", Asset: "BTC", Volume: decimal.NewFromInt(1),
	})
	var subErr *SubmissionError
	require.ErrorAs(t, err, &subErr)
	assert.ErrorIs(t, err, errEmptyResponse)
}

func TestPublishFailureDoesNotFailCall(t *testing.T) {
	f := newFixture(t, false)
	f.publisher.err = errors.New("kafka down")
	f.engine.On("SubmitCashInOut", mock.Anything, mock.Anything).Return(okResponse("gen-id"), nil)

	res, err := f.svc.CashIn(context.Background(), "B1", &model.CashInOutModel{
		WalletID: "W1", Asset: "BTC", Volume: decimal.NewFromInt(1),
	})
	require.NoError(t, err)
	assert.True(t, res.Status.IsOK())
}

func TestNilModelRejected(t *testing.T) {
	f := newFixture(t, false)
	_, err := f.svc.CashIn(context.Background(), "B1", nil)
	assert.ErrorIs(t, err, model.ErrInvalidModel)
	_, err = f.svc.CashTransfer(context.Background(), "B1", nil)
	assert.ErrorIs(t, err, model.ErrInvalidModel)
	_, err = f.svc.CreateLimitOrder(context.Background(), "B1", nil)
	assert.ErrorIs(t, err, model.ErrInvalidModel)
	_, err = f.svc.CreateMarketOrder(context.Background(), "B1", nil)
	assert.ErrorIs(t, err, model.ErrInvalidModel)
}

func TestCashInRejectsNonPositiveVolume(t *testing.T) {
	f := newFixture(t, false)
	for _, v := range []int64{-5, 0} {
		_, err := f.svc.CashIn(context.Background(), "B1", &model.CashInOutModel{
			WalletID: "W1", Asset: "BTC", Volume: decimal.NewFromInt(v),
		})
		assert.ErrorIs(t, err, model.ErrInvalidModel, "volume %d", v)
	}
	assert.Equal(t, 0, f.wallets.calls)
	assert.Equal(t, 0, f.fees.calls)
	f.engine.AssertNotCalled(t, "SubmitCashInOut", mock.Anything, mock.Anything)
	assert.Empty(t, f.publisher.events)
}

func TestCashOutAcceptsNegativeVolume(t *testing.T) {
	f := newFixture(t, false)
	var sent *model.CashInOutOperation
	f.engine.On("SubmitCashInOut", mock.Anything, mock.AnythingOfType("*model.CashInOutOperation")).
		Run(func(args mock.Arguments) { sent = args.Get(1).(*model.CashInOutOperation) }).
		Return(okResponse("gen-id"), nil)

	_, err := f.svc.CashOut(context.Background(), "B1", &model.CashInOutModel{
		WalletID: "W1", Asset: "BTC", Volume: decimal.NewFromInt(-5),
	})
	require.NoError(t, err)
	require.NotNil(t, sent)
	assert.Equal(t, "-5", sent.Volume.String())
}
