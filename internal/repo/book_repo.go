package repo

import (
	"context"
	"errors"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/bookhaven/library/internal/db"
)

var (
	// ErrBookNotFound is returned when a book is not found
	ErrBookNotFound = errors.New("book not found")

	// ErrDuplicateISBN is returned when another book already holds the ISBN
	ErrDuplicateISBN = errors.New("isbn already exists")

	// ErrBookHasActiveLoans is returned when deleting a book that is still lent out
	ErrBookHasActiveLoans = errors.New("book has active loans")
)

// BookRepository handles book catalog operations
type BookRepository struct {
	db  *db.DB
	log *zap.Logger
}

// NewBookRepository creates a new book repository
func NewBookRepository(database *db.DB, logger *zap.Logger) *BookRepository {
	return &BookRepository{
		db:  database,
		log: logger,
	}
}

// BookPatch carries the fields of a partial book update. Nil fields are left
// untouched.
type BookPatch struct {
	Title       *string
	Author      *string
	Year        *int
	ISBN        *string
	Copies      *int
	Description *string
}

// Create inserts a new book, enforcing ISBN uniqueness when an ISBN is given.
func (r *BookRepository) Create(ctx context.Context, book *db.Book) error {
	if book.ISBN != nil && *book.ISBN != "" {
		var existing db.Book
		err := r.db.WithContext(ctx).Where("isbn = ?", *book.ISBN).First(&existing).Error
		if err == nil {
			return ErrDuplicateISBN
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			r.log.Error("Failed to check isbn uniqueness", zap.String("isbn", *book.ISBN), zap.Error(err))
			return err
		}
	}

	if err := r.db.WithContext(ctx).Create(book).Error; err != nil {
		// Unique index backstop for concurrent creates
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrDuplicateISBN
		}
		r.log.Error("Failed to create book", zap.String("title", book.Title), zap.Error(err))
		return err
	}

	r.log.Info("Book created", zap.Uint("id", book.ID), zap.String("title", book.Title))
	return nil
}

// GetByID retrieves a book by its identifier
func (r *BookRepository) GetByID(ctx context.Context, id uint) (*db.Book, error) {
	var book db.Book
	err := r.db.WithContext(ctx).First(&book, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrBookNotFound
		}
		r.log.Error("Failed to get book", zap.Uint("id", id), zap.Error(err))
		return nil, err
	}

	return &book, nil
}

// List returns all books in creation order
func (r *BookRepository) List(ctx context.Context) ([]*db.Book, error) {
	var books []*db.Book
	if err := r.db.WithContext(ctx).Order("id").Find(&books).Error; err != nil {
		r.log.Error("Failed to list books", zap.Error(err))
		return nil, err
	}

	return books, nil
}

// Update applies the non-nil fields of the patch to an existing book and
// returns the updated row.
func (r *BookRepository) Update(ctx context.Context, id uint, patch BookPatch) (*db.Book, error) {
	book, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if patch.ISBN != nil && *patch.ISBN != "" && (book.ISBN == nil || *book.ISBN != *patch.ISBN) {
		var existing db.Book
		err := r.db.WithContext(ctx).Where("isbn = ? AND id <> ?", *patch.ISBN, id).First(&existing).Error
		if err == nil {
			return nil, ErrDuplicateISBN
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			r.log.Error("Failed to check isbn uniqueness", zap.String("isbn", *patch.ISBN), zap.Error(err))
			return nil, err
		}
	}

	updates := make(map[string]interface{})
	if patch.Title != nil {
		updates["title"] = *patch.Title
	}
	if patch.Author != nil {
		updates["author"] = *patch.Author
	}
	if patch.Year != nil {
		updates["year"] = *patch.Year
	}
	if patch.ISBN != nil {
		updates["isbn"] = *patch.ISBN
	}
	if patch.Copies != nil {
		updates["copies"] = *patch.Copies
	}
	if patch.Description != nil {
		updates["description"] = *patch.Description
	}

	if len(updates) == 0 {
		return book, nil
	}

	if err := r.db.WithContext(ctx).Model(&db.Book{}).Where("id = ?", id).Updates(updates).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrDuplicateISBN
		}
		r.log.Error("Failed to update book", zap.Uint("id", id), zap.Error(err))
		return nil, err
	}

	r.log.Info("Book updated", zap.Uint("id", id))
	return r.GetByID(ctx, id)
}

// Delete removes a book. Books with active loans are kept; returned-loan
// history rows go with the book via ON DELETE CASCADE.
func (r *BookRepository) Delete(ctx context.Context, id uint) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var book db.Book
		if err := lockForUpdate(tx).First(&book, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrBookNotFound
			}
			return err
		}

		var active int64
		if err := tx.Model(&db.BorrowedBook{}).
			Where("book_id = ? AND return_date IS NULL", id).
			Count(&active).Error; err != nil {
			return err
		}
		if active > 0 {
			return ErrBookHasActiveLoans
		}

		return tx.Delete(&db.Book{}, id).Error
	})
	if err != nil {
		if errors.Is(err, ErrBookNotFound) || errors.Is(err, ErrBookHasActiveLoans) {
			return err
		}
		r.log.Error("Failed to delete book", zap.Uint("id", id), zap.Error(err))
		return err
	}

	r.log.Info("Book deleted", zap.Uint("id", id))
	return nil
}
