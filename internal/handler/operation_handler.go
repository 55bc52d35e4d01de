package handler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/saharasol/relief-admin/internal/domain"
	"github.com/saharasol/relief-admin/internal/repository"
	"github.com/saharasol/relief-admin/internal/service"
)

const (
	defaultPage     = 1
	defaultPageSize = 50
	maxPageSize     = 100
)

type OperationService interface {
	Create(ctx context.Context, input service.CreateOperationInput) (*domain.Operation, error)
	GetByID(ctx context.Context, id string) (*domain.Operation, error)
	List(ctx context.Context, params repository.ListParams) ([]domain.Operation, int64, error)
	Cancel(ctx context.Context, id string) error
}

type OperationHandler struct {
	service OperationService
}

func NewOperationHandler(service OperationService) (*OperationHandler, error) {
	if service == nil {
		return nil, fmt.Errorf("operation service is required")
	}
	return &OperationHandler{service: service}, nil
}

func RegisterOperationRoutes(router fiber.Router, service OperationService) error {
	h, err := NewOperationHandler(service)
	if err != nil {
		return err
	}

	v1 := router.Group("/v1")
	v1.Post("/operations", h.CreateOperation)
	v1.Get("/operations/:id", h.GetOperation)
	v1.Post("/operations/:id/cancel", h.CancelOperation)
	v1.Get("/operations", h.ListOperations)

	return nil
}

type targetRequest struct {
	Authority string `json:"authority"`
	Name      string `json:"name"`
}

type createOperationRequest struct {
	Action   string          `json:"action"`
	Strategy string          `json:"strategy,omitempty"`
	Reason   string          `json:"reason,omitempty"`
	AdminKey string          `json:"adminKey"`
	Targets  []targetRequest `json:"targets"`
}

type itemResponse struct {
	Position  int     `json:"position"`
	Name      string  `json:"name,omitempty"`
	Authority string  `json:"authority"`
	Status    string  `json:"status"`
	Note      string  `json:"note,omitempty"`
	Error     *string `json:"error,omitempty"`
	ActionID  *uint64 `json:"actionId,omitempty"`
	Signature *string `json:"signature,omitempty"`
}

type operationResponse struct {
	ID         string         `json:"id"`
	Action     string         `json:"action"`
	Strategy   string         `json:"strategy"`
	Reason     string         `json:"reason,omitempty"`
	AdminKey   string         `json:"adminKey"`
	Status     string         `json:"status"`
	TotalCount int            `json:"totalCount"`
	Error      *string        `json:"error,omitempty"`
	StartedAt  *time.Time     `json:"startedAt,omitempty"`
	FinishedAt *time.Time     `json:"finishedAt,omitempty"`
	CreatedAt  time.Time      `json:"createdAt,omitempty"`
	UpdatedAt  time.Time      `json:"updatedAt,omitempty"`
	Items      []itemResponse `json:"items,omitempty"`
}

type listOperationsResponse struct {
	Data []operationResponse `json:"data"`
	Meta listMeta            `json:"meta"`
}

type listMeta struct {
	Page     int   `json:"page"`
	PageSize int   `json:"pageSize"`
	Total    int64 `json:"total"`
}

func (h *OperationHandler) CreateOperation(c *fiber.Ctx) error {
	var req createOperationRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	input := service.CreateOperationInput{
		Action:   req.Action,
		Strategy: req.Strategy,
		Reason:   req.Reason,
		AdminKey: req.AdminKey,
	}
	for _, target := range req.Targets {
		input.Targets = append(input.Targets, service.TargetInput{
			Authority: target.Authority,
			Name:      target.Name,
		})
	}

	op, err := h.service.Create(c.Context(), input)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusAccepted).JSON(toOperationResponse(op))
}

func (h *OperationHandler) GetOperation(c *fiber.Ctx) error {
	id := strings.TrimSpace(c.Params("id"))
	op, err := h.service.GetByID(c.Context(), id)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(toOperationResponse(op))
}

func (h *OperationHandler) CancelOperation(c *fiber.Ctx) error {
	id := strings.TrimSpace(c.Params("id"))
	if err := h.service.Cancel(c.Context(), id); err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"operationId":     id,
		"cancelRequested": true,
	})
}

func (h *OperationHandler) ListOperations(c *fiber.Ctx) error {
	params, err := parseListParams(c)
	if err != nil {
		return toHTTPError(err)
	}

	operations, total, err := h.service.List(c.Context(), params)
	if err != nil {
		return toHTTPError(err)
	}

	responses := make([]operationResponse, 0, len(operations))
	for i := range operations {
		responses = append(responses, toOperationResponse(&operations[i]))
	}

	return c.Status(fiber.StatusOK).JSON(listOperationsResponse{
		Data: responses,
		Meta: listMeta{
			Page:     params.Page,
			PageSize: params.PageSize,
			Total:    total,
		},
	})
}

func parseListParams(c *fiber.Ctx) (repository.ListParams, error) {
	params := repository.ListParams{
		Page:     c.QueryInt("page", defaultPage),
		PageSize: c.QueryInt("pageSize", defaultPageSize),
	}

	if params.Page < 1 {
		return repository.ListParams{}, fmt.Errorf("%w: page must be >= 1", domain.ErrValidation)
	}
	if params.PageSize < 1 || params.PageSize > maxPageSize {
		return repository.ListParams{}, fmt.Errorf("%w: pageSize must be between 1 and %d", domain.ErrValidation, maxPageSize)
	}

	if rawStatus := strings.TrimSpace(c.Query("status")); rawStatus != "" {
		status := domain.OperationStatus(strings.ToUpper(rawStatus))
		if !status.IsValid() {
			return repository.ListParams{}, fmt.Errorf("%w: invalid status %q", domain.ErrValidation, rawStatus)
		}
		params.Status = &status
	}

	if rawAction := strings.TrimSpace(c.Query("action")); rawAction != "" {
		action, err := domain.ParseActionKindFromString(rawAction)
		if err != nil {
			return repository.ListParams{}, err
		}
		params.Action = &action
	}

	if rawAdmin := strings.TrimSpace(c.Query("adminKey")); rawAdmin != "" {
		params.AdminKey = &rawAdmin
	}

	from, err := parseRFC3339Query(c.Query("from"), "from")
	if err != nil {
		return repository.ListParams{}, err
	}
	to, err := parseRFC3339Query(c.Query("to"), "to")
	if err != nil {
		return repository.ListParams{}, err
	}
	params.From = from
	params.To = to

	return params, nil
}

func parseRFC3339Query(value string, field string) (*time.Time, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, nil
	}

	t, err := time.Parse(time.RFC3339, trimmed)
	if err != nil {
		return nil, fmt.Errorf("%w: %s must be RFC3339", domain.ErrValidation, field)
	}
	return &t, nil
}

func toOperationResponse(op *domain.Operation) operationResponse {
	if op == nil {
		return operationResponse{}
	}

	resp := operationResponse{
		ID:         op.ID,
		Action:     op.Action.String(),
		Strategy:   op.Strategy.String(),
		Reason:     op.Reason,
		AdminKey:   op.AdminKey,
		Status:     op.Status.String(),
		TotalCount: op.TotalCount,
		Error:      op.Error,
		StartedAt:  op.StartedAt,
		FinishedAt: op.FinishedAt,
		CreatedAt:  op.CreatedAt,
		UpdatedAt:  op.UpdatedAt,
	}
	for _, item := range op.Items {
		resp.Items = append(resp.Items, itemResponse{
			Position:  item.Position,
			Name:      item.Name,
			Authority: item.Authority,
			Status:    item.Status.String(),
			Note:      item.Note,
			Error:     item.Error,
			ActionID:  item.ActionID,
			Signature: item.Signature,
		})
	}
	return resp
}

func toHTTPError(err error) error {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrConflict):
		return fiber.NewError(fiber.StatusConflict, err.Error())
	default:
		return err
	}
}
