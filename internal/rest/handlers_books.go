package rest

import (
	"fmt"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/bookhaven/library/internal/db"
	"github.com/bookhaven/library/internal/repo"
)

type bookCreateRequest struct {
	Title       string  `json:"title" validate:"required"`
	Author      string  `json:"author" validate:"required"`
	Year        *int    `json:"year"`
	ISBN        *string `json:"isbn"`
	Copies      *int    `json:"copies" validate:"omitempty,gte=0"`
	Description *string `json:"description"`
}

type bookUpdateRequest struct {
	Title       *string `json:"title"`
	Author      *string `json:"author"`
	Year        *int    `json:"year"`
	ISBN        *string `json:"isbn"`
	Copies      *int    `json:"copies" validate:"omitempty,gte=0"`
	Description *string `json:"description"`
}

// POST /books
func (s *Server) handleCreateBook(w http.ResponseWriter, r *http.Request) {
	var req bookCreateRequest
	if !s.decode(w, r, &req) {
		return
	}

	book := &db.Book{
		Title:       req.Title,
		Author:      req.Author,
		Year:        req.Year,
		ISBN:        req.ISBN,
		Copies:      1,
		Description: req.Description,
	}
	if req.Copies != nil {
		book.Copies = *req.Copies
	}

	if err := s.books.Create(r.Context(), book); err != nil {
		s.repoError(w, err)
		return
	}

	w.Header().Set("Location", fmt.Sprintf("/books/%d", book.ID))
	writeJSON(w, http.StatusCreated, book)
}

// GET /books
func (s *Server) handleListBooks(w http.ResponseWriter, r *http.Request) {
	books, err := s.books.List(r.Context())
	if err != nil {
		s.repoError(w, err)
		return
	}
	if books == nil {
		books = []*db.Book{}
	}
	writeJSON(w, http.StatusOK, books)
}

// GET /books/{id}
func (s *Server) handleGetBook(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, mux.Vars(r), "id")
	if !ok {
		return
	}

	book, err := s.books.GetByID(r.Context(), id)
	if err != nil {
		s.repoError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, book)
}

// PUT /books/{id}
func (s *Server) handleUpdateBook(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, mux.Vars(r), "id")
	if !ok {
		return
	}

	var req bookUpdateRequest
	if !s.decode(w, r, &req) {
		return
	}

	book, err := s.books.Update(r.Context(), id, repo.BookPatch{
		Title:       req.Title,
		Author:      req.Author,
		Year:        req.Year,
		ISBN:        req.ISBN,
		Copies:      req.Copies,
		Description: req.Description,
	})
	if err != nil {
		s.repoError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, book)
}

// DELETE /books/{id}
func (s *Server) handleDeleteBook(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, mux.Vars(r), "id")
	if !ok {
		return
	}

	if err := s.books.Delete(r.Context(), id); err != nil {
		s.repoError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
