package handler

import (
	"strconv"

	"banking-ledger/internal/adapter/http/dto"
	"banking-ledger/internal/adapter/http/middleware"
	"banking-ledger/internal/core/domain"
	"banking-ledger/internal/core/ports"
	"banking-ledger/pkg/apperror"
	"banking-ledger/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// HeaderIdempotencyKey carries the idempotency token when the body omits it.
const HeaderIdempotencyKey = "Idempotency-Key"

// TransactionHandler serves transfers and history.
type TransactionHandler struct {
	transferSvc ports.TransferService
	historySvc  ports.HistoryService
}

// NewTransactionHandler creates a new TransactionHandler.
func NewTransactionHandler(transferSvc ports.TransferService, historySvc ports.HistoryService) *TransactionHandler {
	return &TransactionHandler{transferSvc: transferSvc, historySvc: historySvc}
}

// Transfer handles POST /api/transactions/transfer. A transfer that ran but
// failed for insufficient funds is still a 200 with status FAILED.
func (h *TransactionHandler) Transfer(c *gin.Context) {
	var req dto.TransferRequest
	if err := dto.DecodeJSON(c.Request.Body, &req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	amount, err := domain.ParseMoney(*req.Amount)
	if err != nil {
		response.Error(c, apperror.ErrInvalidAmount())
		return
	}

	token := ""
	if req.IdempotencyToken != nil {
		token = *req.IdempotencyToken
	} else if hdr := c.GetHeader(HeaderIdempotencyKey); hdr != "" {
		if !dto.ValidIdempotencyToken(hdr) {
			response.Error(c, apperror.Validation("Idempotency-Key header is malformed"))
			return
		}
		token = hdr
	}

	txn, err := h.transferSvc.Transfer(c.Request.Context(), ports.TransferRequest{
		FromAccountID:    uuid.MustParse(req.FromAccountID),
		ToAccountID:      uuid.MustParse(req.ToAccountID),
		Amount:           amount,
		IdempotencyToken: token,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	c.Set(middleware.CtxResourceID, txn.ID.String())
	response.OK(c, dto.NewTransactionResponse(txn))
}

// GetHistory handles GET /api/transactions/history/:accountId with optional
// page and pageSize query parameters.
func (h *TransactionHandler) GetHistory(c *gin.Context) {
	accountID, err := uuid.Parse(c.Param("accountId"))
	if err != nil {
		response.Error(c, apperror.Validation("account id must be a UUID"))
		return
	}

	page, err := queryInt(c, "page")
	if err != nil {
		response.Error(c, apperror.Validation("page must be an integer"))
		return
	}
	pageSize, err := queryInt(c, "pageSize")
	if err != nil {
		response.Error(c, apperror.Validation("pageSize must be an integer"))
		return
	}

	txns, err := h.historySvc.GetHistory(c.Request.Context(), accountID, ports.HistoryQuery{
		Page:     page,
		PageSize: pageSize,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, dto.NewTransactionListResponse(txns))
}

func queryInt(c *gin.Context, name string) (int, error) {
	raw := c.Query(name)
	if raw == "" {
		return 0, nil
	}
	return strconv.Atoi(raw)
}
