package operations

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/newplayman/exchange-operations/internal/assembler"
	"github.com/newplayman/exchange-operations/internal/events"
	"github.com/newplayman/exchange-operations/internal/fees"
	"github.com/newplayman/exchange-operations/internal/metrics"
	"github.com/newplayman/exchange-operations/internal/model"
	"github.com/newplayman/exchange-operations/internal/wallets"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// MatchingEngine 撮合引擎远程接口
type MatchingEngine interface {
	SubmitCashInOut(ctx context.Context, req *model.CashInOutOperation) (*model.Response, error)
	SubmitCashTransfer(ctx context.Context, req *model.CashTransferOperation) (*model.Response, error)
	SubmitLimitOrder(ctx context.Context, req *model.LimitOrder) (*model.Response, error)
	CancelLimitOrder(ctx context.Context, req *model.LimitOrderCancel) (*model.Response, error)
	SubmitMarketOrder(ctx context.Context, req *model.MarketOrder) (*model.MarketOrderResponse, error)
}

// WalletValidator 钱包校验
type WalletValidator interface {
	ValidateSingle(ctx context.Context, id model.WalletID, brokerID string, requireMain bool) (*model.Wallet, error)
	ValidateTransferPair(ctx context.Context, from, to model.WalletID, brokerID string) (model.AccountID, error)
}

// FeeResolver 手续费解析，永不失败
type FeeResolver interface {
	Resolve(ctx context.Context, brokerID, subject string, kind model.OperationKind) fees.Resolution
}

// CashOperations 充值/提现/划转
type CashOperations interface {
	CashIn(ctx context.Context, brokerID string, m *model.CashInOutModel) (*model.OperationResult, error)
	CashOut(ctx context.Context, brokerID string, m *model.CashInOutModel) (*model.OperationResult, error)
	CashTransfer(ctx context.Context, brokerID string, m *model.CashTransferModel) (*model.OperationResult, error)
}

// LimitOrderOperations 限价单
type LimitOrderOperations interface {
	CreateLimitOrder(ctx context.Context, brokerID string, m *model.LimitOrderCreateModel) (*model.OperationResult, error)
	CancelLimitOrder(ctx context.Context, brokerID, orderID string) (*model.OperationResult, error)
}

// MarketOrderOperations 市价单
type MarketOrderOperations interface {
	CreateMarketOrder(ctx context.Context, brokerID string, m *model.MarketOrderCreateModel) (*model.MarketOrderResult, error)
}

// Operations 全部对外操作
type Operations interface {
	CashOperations
	LimitOrderOperations
	MarketOrderOperations
}

// SubmissionError 提交到撮合引擎时传输层失败
type SubmissionError struct {
	Kind        model.OperationKind
	OperationID string
	Err         error
}

func (e *SubmissionError) Error() string {
	return fmt.Sprintf("submit %s %s: %v", e.Kind, e.OperationID, e.Err)
}

func (e *SubmissionError) Unwrap() error { return e.Err }

var errEmptyResponse = errors.New("empty response from matching engine")

// Config 服务选项
type Config struct {
	// ParallelLookups 钱包校验与手续费查询并发执行
	ParallelLookups bool
}

// Service 串联 钱包校验 -> 手续费解析 -> 组装 -> 提交
// 调用之间无共享可变状态
type Service struct {
	wallets   WalletValidator
	fees      FeeResolver
	assembler *assembler.Assembler
	engine    MatchingEngine
	publisher events.Publisher
	cfg       Config
}

var _ Operations = (*Service)(nil)

func NewService(wv WalletValidator, fr FeeResolver, asm *assembler.Assembler, engine MatchingEngine, publisher events.Publisher, cfg Config) *Service {
	if asm == nil {
		asm = assembler.New()
	}
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	return &Service{
		wallets:   wv,
		fees:      fr,
		assembler: asm,
		engine:    engine,
		publisher: publisher,
		cfg:       cfg,
	}
}

// call 单次调用上下文
type call struct {
	kind     model.OperationKind
	brokerID string
	start    time.Time
}

func (s *Service) begin(kind model.OperationKind, brokerID string) *call {
	return &call{kind: kind, brokerID: brokerID, start: time.Now()}
}

// prepare 执行校验和手续费解析
// 串行时校验失败不再查询手续费；并行时两者都会完成，校验失败仍然拒绝
func (s *Service) prepare(ctx context.Context, c *call, subject string, validate func(ctx context.Context) error) (model.Fee, error) {
	var res fees.Resolution
	resolve := func(ctx context.Context) {
		res = s.fees.Resolve(ctx, c.brokerID, subject, c.kind)
		if res.Degraded() {
			metrics.RecordFeeDegraded(c.kind.String(), string(res.Reason))
		}
	}

	if !s.cfg.ParallelLookups {
		if err := validate(ctx); err != nil {
			return model.Fee{}, err
		}
		resolve(ctx)
		return res.Fee, nil
	}

	// 不使用 WithContext：一方失败不取消另一方
	var g errgroup.Group
	g.Go(func() error { return validate(ctx) })
	g.Go(func() error {
		resolve(ctx)
		return nil
	})
	if err := g.Wait(); err != nil {
		return model.Fee{}, err
	}
	return res.Fee, nil
}

// accountOr 调用方未提供账户时使用校验得到的账户
func accountOr(supplied, validated model.AccountID) model.AccountID {
	if !supplied.IsZero() {
		return supplied
	}
	return validated
}

func (s *Service) reject(c *call, err error) error {
	reason := "wallet_lookup"
	var werr *wallets.Error
	if errors.As(err, &werr) {
		reason = string(werr.Reason)
	} else if errors.Is(err, model.ErrInvalidModel) {
		reason = "invalid_model"
	}
	metrics.RecordRejection(c.kind.String(), reason, time.Since(c.start))
	log.Warn().
		Err(err).
		Str("kind", c.kind.String()).
		Str("broker", c.brokerID).
		Str("reason", reason).
		Msg("操作被拒绝")
	return err
}

func (s *Service) submitFailed(c *call, id string, err error) error {
	if err == nil {
		err = errEmptyResponse
	}
	metrics.RecordRejection(c.kind.String(), "submission", time.Since(c.start))
	log.Error().
		Err(err).
		Str("kind", c.kind.String()).
		Str("broker", c.brokerID).
		Str("id", id).
		Msg("提交撮合引擎失败")
	return &SubmissionError{Kind: c.kind, OperationID: id, Err: err}
}

// complete 记录结果并发布事件，发布失败只记日志
func (s *Service) complete(ctx context.Context, c *call, req model.OperationRequest, fee *model.Fee, result *model.OperationResult) {
	metrics.RecordOperation(c.kind.String(), string(result.Status), time.Since(c.start))
	ev := log.Info()
	if !result.Status.IsOK() {
		ev = log.Warn().Str("reason", result.Reason)
	}
	ev.Str("kind", c.kind.String()).
		Str("broker", c.brokerID).
		Str("id", req.OperationID()).
		Str("status", string(result.Status)).
		Dur("elapsed", time.Since(c.start)).
		Msg("操作已提交")

	err := s.publisher.Publish(ctx, events.OperationEvent{
		OperationID: req.OperationID(),
		Kind:        c.kind.String(),
		BrokerID:    c.brokerID,
		Status:      result.Status,
		Reason:      result.Reason,
		Fee:         fee,
		Request:     req,
		OccurredAt:  time.Now().UTC(),
	})
	if err != nil {
		metrics.RecordPublishFailure(c.kind.String())
		log.Error().Err(err).Str("id", req.OperationID()).Msg("操作事件发布失败")
	}
}

func (s *Service) CashIn(ctx context.Context, brokerID string, m *model.CashInOutModel) (*model.OperationResult, error) {
	return s.cashInOut(ctx, model.OperationCashIn, brokerID, m)
}

func (s *Service) CashOut(ctx context.Context, brokerID string, m *model.CashInOutModel) (*model.OperationResult, error) {
	return s.cashInOut(ctx, model.OperationCashOut, brokerID, m)
}

func (s *Service) cashInOut(ctx context.Context, kind model.OperationKind, brokerID string, m *model.CashInOutModel) (*model.OperationResult, error) {
	c := s.begin(kind, brokerID)
	if m == nil {
		return nil, s.reject(c, model.ErrInvalidModel)
	}
	// 充值数量必须为正；提现的符号由 assembler 规范
	if kind == model.OperationCashIn && !m.Volume.IsPositive() {
		return nil, s.reject(c, fmt.Errorf("cash-in volume must be positive: %w", model.ErrInvalidModel))
	}

	var wallet *model.Wallet
	fee, err := s.prepare(ctx, c, m.Asset, func(ctx context.Context) error {
		w, err := s.wallets.ValidateSingle(ctx, m.WalletID, brokerID, true)
		wallet = w
		return err
	})
	if err != nil {
		return nil, s.reject(c, err)
	}

	var req *model.CashInOutOperation
	if kind == model.OperationCashOut {
		req = s.assembler.CashOut(m, brokerID, accountOr(m.AccountID, wallet.AccountID), fee)
	} else {
		req = s.assembler.CashIn(m, brokerID, accountOr(m.AccountID, wallet.AccountID), fee)
	}

	resp, err := s.engine.SubmitCashInOut(ctx, req)
	if err != nil || resp == nil {
		return nil, s.submitFailed(c, req.ID, err)
	}
	result := model.NewOperationResult(resp)
	s.complete(ctx, c, req, &req.Fee, result)
	return result, nil
}

func (s *Service) CashTransfer(ctx context.Context, brokerID string, m *model.CashTransferModel) (*model.OperationResult, error) {
	c := s.begin(model.OperationCashTransfer, brokerID)
	if m == nil {
		return nil, s.reject(c, model.ErrInvalidModel)
	}

	var account model.AccountID
	fee, err := s.prepare(ctx, c, m.Asset, func(ctx context.Context) error {
		a, err := s.wallets.ValidateTransferPair(ctx, m.FromWalletID, m.ToWalletID, brokerID)
		account = a
		return err
	})
	if err != nil {
		return nil, s.reject(c, err)
	}

	req := s.assembler.CashTransfer(m, brokerID, accountOr(m.AccountID, account), fee)
	resp, err := s.engine.SubmitCashTransfer(ctx, req)
	if err != nil || resp == nil {
		return nil, s.submitFailed(c, req.ID, err)
	}
	result := model.NewOperationResult(resp)
	s.complete(ctx, c, req, &req.Fee, result)
	return result, nil
}

func (s *Service) CreateLimitOrder(ctx context.Context, brokerID string, m *model.LimitOrderCreateModel) (*model.OperationResult, error) {
	c := s.begin(model.OperationLimitOrder, brokerID)
	if m == nil {
		return nil, s.reject(c, model.ErrInvalidModel)
	}

	var wallet *model.Wallet
	fee, err := s.prepare(ctx, c, m.AssetPair, func(ctx context.Context) error {
		w, err := s.wallets.ValidateSingle(ctx, m.WalletID, brokerID, false)
		wallet = w
		return err
	})
	if err != nil {
		return nil, s.reject(c, err)
	}

	req := s.assembler.LimitOrder(m, brokerID, accountOr(m.AccountID, wallet.AccountID), fee)
	resp, err := s.engine.SubmitLimitOrder(ctx, req)
	if err != nil || resp == nil {
		return nil, s.submitFailed(c, req.ID, err)
	}
	result := model.NewOperationResult(resp)
	s.complete(ctx, c, req, &req.Fee, result)
	return result, nil
}

// CancelLimitOrder 撤单不校验钱包也不计费
func (s *Service) CancelLimitOrder(ctx context.Context, brokerID, orderID string) (*model.OperationResult, error) {
	c := s.begin(model.OperationLimitOrderCancel, brokerID)
	if orderID == "" {
		return nil, s.reject(c, model.ErrInvalidModel)
	}

	req := s.assembler.LimitOrderCancel(orderID, brokerID)
	resp, err := s.engine.CancelLimitOrder(ctx, req)
	if err != nil || resp == nil {
		return nil, s.submitFailed(c, req.ID, err)
	}
	result := model.NewOperationResult(resp)
	s.complete(ctx, c, req, nil, result)
	return result, nil
}

func (s *Service) CreateMarketOrder(ctx context.Context, brokerID string, m *model.MarketOrderCreateModel) (*model.MarketOrderResult, error) {
	c := s.begin(model.OperationMarketOrder, brokerID)
	if m == nil {
		return nil, s.reject(c, model.ErrInvalidModel)
	}

	var wallet *model.Wallet
	fee, err := s.prepare(ctx, c, m.AssetPair, func(ctx context.Context) error {
		w, err := s.wallets.ValidateSingle(ctx, m.WalletID, brokerID, false)
		wallet = w
		return err
	})
	if err != nil {
		return nil, s.reject(c, err)
	}

	req := s.assembler.MarketOrder(m, brokerID, accountOr(m.AccountID, wallet.AccountID), fee)
	resp, err := s.engine.SubmitMarketOrder(ctx, req)
	if err != nil || resp == nil {
		return nil, s.submitFailed(c, req.ID, err)
	}
	result := model.NewMarketOrderResult(resp)
	s.complete(ctx, c, req, &req.Fee, &result.OperationResult)
	return result, nil
}
