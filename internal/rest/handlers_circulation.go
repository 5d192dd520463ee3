package rest

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/bookhaven/library/internal/db"
	"github.com/bookhaven/library/internal/events"
	"github.com/bookhaven/library/internal/metrics"
)

type circulationRequest struct {
	BookID   uint `json:"book_id" validate:"required"`
	ReaderID uint `json:"reader_id" validate:"required"`
}

// POST /circulation/borrow
func (s *Server) handleBorrow(w http.ResponseWriter, r *http.Request) {
	var req circulationRequest
	if !s.decode(w, r, &req) {
		return
	}

	loan, err := s.circulation.Borrow(r.Context(), req.BookID, req.ReaderID)
	if err != nil {
		s.repoError(w, err)
		return
	}

	metrics.LoansCreatedTotal.Inc()

	// Publish event (async, don't fail request if event publishing fails)
	requestID := w.Header().Get("X-Request-ID")
	go func() {
		eventCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		eventCtx = events.WithCorrelationID(eventCtx, requestID)

		if err := s.publisher.PublishLoanCreated(eventCtx, loan.ID, loan.BookID, loan.ReaderID, loan.BorrowDate); err != nil {
			s.log.Error("Failed to publish loan created event",
				zap.Uint("loan_id", loan.ID),
				zap.Error(err),
			)
		}
	}()

	w.Header().Set("Location", fmt.Sprintf("/borrow/%d", loan.ID))
	writeJSON(w, http.StatusCreated, loan)
}

// POST /circulation/return
func (s *Server) handleReturn(w http.ResponseWriter, r *http.Request) {
	var req circulationRequest
	if !s.decode(w, r, &req) {
		return
	}

	loan, err := s.circulation.Return(r.Context(), req.BookID, req.ReaderID)
	if err != nil {
		s.repoError(w, err)
		return
	}

	metrics.LoansReturnedTotal.Inc()

	requestID := w.Header().Get("X-Request-ID")
	returnedAt := *loan.ReturnDate
	go func() {
		eventCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		eventCtx = events.WithCorrelationID(eventCtx, requestID)

		if err := s.publisher.PublishLoanReturned(eventCtx, loan.ID, loan.BookID, loan.ReaderID, returnedAt); err != nil {
			s.log.Error("Failed to publish loan returned event",
				zap.Uint("loan_id", loan.ID),
				zap.Error(err),
			)
		}
	}()

	w.Header().Set("Location", fmt.Sprintf("/borrow/%d", loan.ID))
	writeJSON(w, http.StatusOK, loan)
}

// GET /circulation/{readerId}
func (s *Server) handleActiveLoans(w http.ResponseWriter, r *http.Request) {
	readerID, ok := pathID(w, mux.Vars(r), "readerId")
	if !ok {
		return
	}

	loans, err := s.circulation.ActiveLoans(r.Context(), readerID)
	if err != nil {
		s.repoError(w, err)
		return
	}
	if loans == nil {
		loans = []*db.BorrowedBook{}
	}
	writeJSON(w, http.StatusOK, loans)
}
