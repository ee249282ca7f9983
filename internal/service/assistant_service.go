package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"dreampuff/internal/assistant"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var ErrMessageRequired = errors.New("message is required")

// AppliedChange is a stock adjustment the assistant carried out
type AppliedChange struct {
	ProductID uuid.UUID `json:"productId"`
	Amount    int       `json:"amount"`
}

// AssistantReply is the answer shown to the staff member
type AssistantReply struct {
	Reply   string         `json:"reply"`
	Applied *AppliedChange `json:"applied,omitempty"`
}

// AssistantService answers stock questions and applies requested adjustments
type AssistantService interface {
	Ask(ctx context.Context, actor Actor, message string) (*AssistantReply, error)
}

type assistantService struct {
	executor assistant.Executor
	ledger   LedgerService
	logger   *zap.Logger
}

// NewAssistantService creates a new instance of AssistantService
func NewAssistantService(executor assistant.Executor, ledger LedgerService, logger *zap.Logger) AssistantService {
	return &assistantService{
		executor: executor,
		ledger:   ledger,
		logger:   logger.Named("assistant"),
	}
}

func (s *assistantService) Ask(ctx context.Context, actor Actor, message string) (*AssistantReply, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return nil, ErrMessageRequired
	}

	products, err := s.ledger.ListProducts(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to load products: %w", err)
	}

	text, err := s.executor.Execute(ctx, assistant.PromptRequest{
		Type:       assistant.PromptTypeStockChat,
		EntityName: actor.Session.Name,
		Message:    message,
		Products:   assistant.NewProductContext(products),
	})
	if err != nil {
		return nil, err
	}

	reply, err := assistant.ParseReply(text)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", assistant.ErrUpstreamFailed, err)
	}

	result := &AssistantReply{Reply: reply.Message}
	if reply.ToolCall == nil {
		return result, nil
	}

	call := reply.ToolCall
	if err := s.ledger.AdjustStock(ctx, actor, call.ProductID, call.Amount); err != nil {
		s.logger.Warn("Assistant stock adjustment rejected",
			zap.String("product_id", call.ProductID.String()),
			zap.Int("amount", call.Amount),
			zap.Error(err),
		)
		return nil, err
	}

	s.logger.Info("Assistant adjusted stock",
		zap.String("product_id", call.ProductID.String()),
		zap.Int("amount", call.Amount),
		zap.String("session_name", actor.Session.Name),
	)
	result.Applied = &AppliedChange{ProductID: call.ProductID, Amount: call.Amount}
	return result, nil
}
