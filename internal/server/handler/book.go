package handler

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/madschristensen99/rushTrade/internal/domain"
)

// BookService is the slice of the service layer the book endpoints need.
type BookService interface {
	GetBook(ctx context.Context, tokenID string, depth int) (domain.BookSnapshot, error)
	MarketBook(ctx context.Context, conditionID string, depth int) (domain.MarketBook, error)
}

// BookHandler serves order-book snapshots.
type BookHandler struct {
	books  BookService
	logger *slog.Logger
}

// NewBookHandler creates a BookHandler.
func NewBookHandler(books BookService, logger *slog.Logger) *BookHandler {
	return &BookHandler{books: books, logger: logger}
}

// Get returns the aggregated book for one outcome token. Depth 0 uses the
// configured default.
// GET /api/v1/book?token_id=101&depth=10
func (h *BookHandler) Get(w http.ResponseWriter, r *http.Request) {
	tokenID := r.URL.Query().Get("token_id")
	if tokenID == "" {
		writeError(w, http.StatusBadRequest, "token_id required")
		return
	}
	depth, err := parseDepth(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	snap, err := h.books.GetBook(r.Context(), tokenID, depth)
	if err != nil {
		writeServiceError(w, r, h.logger, "get book", err)
		return
	}
	writeJSON(w, http.StatusOK, renderBook(snap))
}

type marketBookResponse struct {
	ConditionID string   `json:"condition_id"`
	Yes         bookJSON `json:"yes"`
	No          bookJSON `json:"no"`
}

// GetMarket returns both outcome books of one market.
// GET /api/v1/markets/{conditionID}/book?depth=10
func (h *BookHandler) GetMarket(w http.ResponseWriter, r *http.Request) {
	depth, err := parseDepth(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	book, err := h.books.MarketBook(r.Context(), r.PathValue("conditionID"), depth)
	if err != nil {
		writeServiceError(w, r, h.logger, "get market book", err)
		return
	}
	writeJSON(w, http.StatusOK, marketBookResponse{
		ConditionID: book.ConditionID,
		Yes:         renderBook(book.Yes),
		No:          renderBook(book.No),
	})
}

func parseDepth(r *http.Request) (int, error) {
	v := r.URL.Query().Get("depth")
	if v == "" {
		return 0, nil
	}
	depth, err := strconv.Atoi(v)
	if err != nil || depth < 0 {
		return 0, fmt.Errorf("depth must be a non-negative integer")
	}
	return depth, nil
}
