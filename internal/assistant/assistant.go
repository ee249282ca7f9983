package assistant

import (
	"context"
	"errors"

	"dreampuff/internal/domain"
)

var (
	ErrEmptyResponse  = errors.New("assistant returned an empty response")
	ErrNotConfigured  = errors.New("assistant is not configured")
	ErrUpstreamFailed = errors.New("assistant request failed")
)

// PromptTypeStockChat is the only prompt type the staff app sends
const PromptTypeStockChat = "stock_chat"

// ProductContext is the product view handed to the model
type ProductContext struct {
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	Stock    int             `json:"stock"`
	Category domain.Category `json:"category"`
}

// PromptRequest is the structured prompt payload
type PromptRequest struct {
	Type       string           `json:"type"`
	EntityName string           `json:"entityName"`
	Message    string           `json:"message"`
	Products   []ProductContext `json:"products"`
}

// PromptResponse is the structured answer
type PromptResponse struct {
	Response string `json:"response"`
}

// Executor runs a prompt and returns the raw model text
type Executor interface {
	Execute(ctx context.Context, req PromptRequest) (string, error)
}

// NewProductContext converts catalog products into the prompt view
func NewProductContext(products []*domain.Product) []ProductContext {
	out := make([]ProductContext, 0, len(products))
	for _, p := range products {
		out = append(out, ProductContext{
			ID:       p.ID.String(),
			Name:     p.Name,
			Stock:    p.Stock,
			Category: p.Category,
		})
	}
	return out
}
