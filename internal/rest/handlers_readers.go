package rest

import (
	"fmt"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/bookhaven/library/internal/db"
	"github.com/bookhaven/library/internal/repo"
)

type readerCreateRequest struct {
	Name  string `json:"name" validate:"required"`
	Email string `json:"email" validate:"required,email"`
}

type readerUpdateRequest struct {
	Name  *string `json:"name"`
	Email *string `json:"email" validate:"omitempty,email"`
}

// POST /readers
func (s *Server) handleCreateReader(w http.ResponseWriter, r *http.Request) {
	var req readerCreateRequest
	if !s.decode(w, r, &req) {
		return
	}

	reader := &db.Reader{Name: req.Name, Email: req.Email}
	if err := s.readers.Create(r.Context(), reader); err != nil {
		s.repoError(w, err)
		return
	}

	w.Header().Set("Location", fmt.Sprintf("/readers/%d", reader.ID))
	writeJSON(w, http.StatusCreated, reader)
}

// GET /readers
func (s *Server) handleListReaders(w http.ResponseWriter, r *http.Request) {
	readers, err := s.readers.List(r.Context())
	if err != nil {
		s.repoError(w, err)
		return
	}
	if readers == nil {
		readers = []*db.Reader{}
	}
	writeJSON(w, http.StatusOK, readers)
}

// GET /readers/{id}
func (s *Server) handleGetReader(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, mux.Vars(r), "id")
	if !ok {
		return
	}

	reader, err := s.readers.GetByID(r.Context(), id)
	if err != nil {
		s.repoError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, reader)
}

// PUT /readers/{id}
func (s *Server) handleUpdateReader(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, mux.Vars(r), "id")
	if !ok {
		return
	}

	var req readerUpdateRequest
	if !s.decode(w, r, &req) {
		return
	}

	reader, err := s.readers.Update(r.Context(), id, repo.ReaderPatch{
		Name:  req.Name,
		Email: req.Email,
	})
	if err != nil {
		s.repoError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, reader)
}

// DELETE /readers/{id}
func (s *Server) handleDeleteReader(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, mux.Vars(r), "id")
	if !ok {
		return
	}

	if err := s.readers.Delete(r.Context(), id); err != nil {
		s.repoError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
