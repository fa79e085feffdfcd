package httpapi

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/newplayman/exchange-operations/internal/model"
	"github.com/newplayman/exchange-operations/internal/operations"
	"github.com/newplayman/exchange-operations/internal/wallets"
)

// bind 解析并校验请求体；失败时已写入 400
func (h *Handler) bind(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return false
	}
	if err := h.validator.Struct(dst); err != nil {
		writeError(c, err)
		return false
	}
	return true
}

func broker(c *gin.Context) string {
	return c.GetString(brokerKey)
}

// POST /api/cash-management/cash-in
func (h *Handler) CashIn(c *gin.Context) {
	var m model.CashInOutModel
	if !h.bind(c, &m) {
		return
	}
	if !m.Volume.IsPositive() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "volume must be positive"})
		return
	}
	res, err := h.ops.CashIn(c.Request.Context(), broker(c), &m)
	respond(c, res, err)
}

// POST /api/cash-management/cash-out
func (h *Handler) CashOut(c *gin.Context) {
	var m model.CashInOutModel
	if !h.bind(c, &m) {
		return
	}
	res, err := h.ops.CashOut(c.Request.Context(), broker(c), &m)
	respond(c, res, err)
}

// POST /api/cash-management/transfer
func (h *Handler) Transfer(c *gin.Context) {
	var m model.CashTransferModel
	if !h.bind(c, &m) {
		return
	}
	res, err := h.ops.CashTransfer(c.Request.Context(), broker(c), &m)
	respond(c, res, err)
}

// POST /api/trading/limit-order
func (h *Handler) CreateLimitOrder(c *gin.Context) {
	var m model.LimitOrderCreateModel
	if !h.bind(c, &m) {
		return
	}
	res, err := h.ops.CreateLimitOrder(c.Request.Context(), broker(c), &m)
	respond(c, res, err)
}

// DELETE /api/trading/limit-order/:limitOrderId
func (h *Handler) CancelLimitOrder(c *gin.Context) {
	id, err := uuid.Parse(c.Param("limitOrderId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "limitOrderId must be a uuid"})
		return
	}
	res, err := h.ops.CancelLimitOrder(c.Request.Context(), broker(c), id.String())
	respond(c, res, err)
}

// POST /api/trading/market-order
func (h *Handler) CreateMarketOrder(c *gin.Context) {
	var m model.MarketOrderCreateModel
	if !h.bind(c, &m) {
		return
	}
	res, err := h.ops.CreateMarketOrder(c.Request.Context(), broker(c), &m)
	respond(c, res, err)
}

// GET /healthz
func (h *Handler) Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// GET /readyz
func (h *Handler) Readyz(c *gin.Context) {
	if h.ready == nil {
		c.JSON(http.StatusOK, gin.H{"ready": true})
		return
	}
	code := http.StatusOK
	healthy := h.ready.Healthy()
	if !healthy {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, gin.H{"ready": healthy, "dependencies": h.ready.Snapshot()})
}

// GET /api/isalive
func (h *Handler) IsAlive(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"name":    h.opts.Name,
		"version": h.opts.Version,
		"uptime":  time.Since(h.started).Round(time.Second).String(),
	})
}

func respond[T any](c *gin.Context, res *T, err error) {
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// writeError 错误映射：校验类 400，上游不可用 502，其余 500
func writeError(c *gin.Context, err error) {
	var (
		verrs     validator.ValidationErrors
		walletErr *wallets.Error
		lookupErr *wallets.LookupError
		submitErr *operations.SubmissionError
	)
	switch {
	case errors.As(err, &verrs):
		fields := make(map[string]string, len(verrs))
		for _, e := range verrs {
			fields[e.Field()] = "failed on tag '" + e.Tag() + "'"
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation failed", "fields": fields})
	case errors.As(err, &walletErr):
		body := gin.H{"error": err.Error(), "reason": walletErr.Reason, "walletId": walletErr.WalletID}
		if walletErr.OtherWalletID != "" {
			body["otherWalletId"] = walletErr.OtherWalletID
		}
		c.JSON(http.StatusBadRequest, body)
	case errors.Is(err, model.ErrInvalidModel):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.As(err, &lookupErr), errors.As(err, &submitErr):
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
