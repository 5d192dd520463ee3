package repo

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/bookhaven/library/internal/db"
)

// maxActiveLoans is the number of books a reader may hold at once.
const maxActiveLoans = 3

var (
	// ErrNoCopiesAvailable is returned when borrowing a book with no copies left
	ErrNoCopiesAvailable = errors.New("no copies available")

	// ErrBorrowLimitExceeded is returned when a reader already holds the maximum number of books
	ErrBorrowLimitExceeded = errors.New("borrow limit exceeded")

	// ErrLoanNotFound is returned when no active loan matches a (book, reader) pair
	ErrLoanNotFound = errors.New("active loan not found")
)

// CirculationRepository handles the borrow/return workflow. Every mutation
// runs inside a single transaction so the copy count and the loan records
// never drift apart.
type CirculationRepository struct {
	db  *db.DB
	log *zap.Logger
}

// NewCirculationRepository creates a new circulation repository
func NewCirculationRepository(database *db.DB, logger *zap.Logger) *CirculationRepository {
	return &CirculationRepository{
		db:  database,
		log: logger,
	}
}

// lockForUpdate takes a row lock so concurrent circulation requests against
// the same book or reader serialize. SQLite has no FOR UPDATE clause and
// serializes writers on its own.
func lockForUpdate(tx *gorm.DB) *gorm.DB {
	if tx.Dialector.Name() == "postgres" {
		return tx.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return tx
}

// Borrow lends a book to a reader. Checks run in a fixed order: book exists,
// reader exists, a copy is available, the reader is under the loan limit.
// On success the copy count drops by one and a loan row is created, both in
// the same transaction.
func (r *CirculationRepository) Borrow(ctx context.Context, bookID, readerID uint) (*db.BorrowedBook, error) {
	var loan *db.BorrowedBook

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var book db.Book
		if err := lockForUpdate(tx).First(&book, bookID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrBookNotFound
			}
			return err
		}

		var reader db.Reader
		if err := lockForUpdate(tx).First(&reader, readerID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrReaderNotFound
			}
			return err
		}

		if book.Copies < 1 {
			return ErrNoCopiesAvailable
		}

		var active int64
		if err := tx.Model(&db.BorrowedBook{}).
			Where("reader_id = ? AND return_date IS NULL", readerID).
			Count(&active).Error; err != nil {
			return err
		}
		if active >= maxActiveLoans {
			return ErrBorrowLimitExceeded
		}

		if err := tx.Model(&db.Book{}).Where("id = ?", bookID).
			UpdateColumn("copies", gorm.Expr("copies - ?", 1)).Error; err != nil {
			return err
		}

		loan = &db.BorrowedBook{
			BookID:     bookID,
			ReaderID:   readerID,
			BorrowDate: time.Now(),
		}
		return tx.Create(loan).Error
	})
	if err != nil {
		return nil, err
	}

	r.log.Info("Book borrowed",
		zap.Uint("loan_id", loan.ID),
		zap.Uint("book_id", bookID),
		zap.Uint("reader_id", readerID),
	)
	return loan, nil
}

// Return closes an active loan. The loan's return date is set and the copy
// count raised by one, both in the same transaction. Returning a loan that
// is already closed reports ErrLoanNotFound.
func (r *CirculationRepository) Return(ctx context.Context, bookID, readerID uint) (*db.BorrowedBook, error) {
	var loan db.BorrowedBook

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var book db.Book
		if err := lockForUpdate(tx).First(&book, bookID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrBookNotFound
			}
			return err
		}

		var reader db.Reader
		if err := lockForUpdate(tx).First(&reader, readerID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrReaderNotFound
			}
			return err
		}

		err := tx.Where("book_id = ? AND reader_id = ? AND return_date IS NULL", bookID, readerID).
			First(&loan).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrLoanNotFound
			}
			return err
		}

		now := time.Now()
		if err := tx.Model(&db.BorrowedBook{}).Where("id = ?", loan.ID).
			Update("return_date", now).Error; err != nil {
			return err
		}
		loan.ReturnDate = &now

		return tx.Model(&db.Book{}).Where("id = ?", bookID).
			UpdateColumn("copies", gorm.Expr("copies + ?", 1)).Error
	})
	if err != nil {
		return nil, err
	}

	r.log.Info("Book returned",
		zap.Uint("loan_id", loan.ID),
		zap.Uint("book_id", bookID),
		zap.Uint("reader_id", readerID),
	)
	return &loan, nil
}

// ActiveLoans lists a reader's open loans in creation order.
func (r *CirculationRepository) ActiveLoans(ctx context.Context, readerID uint) ([]*db.BorrowedBook, error) {
	var reader db.Reader
	if err := r.db.WithContext(ctx).First(&reader, readerID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrReaderNotFound
		}
		r.log.Error("Failed to get reader", zap.Uint("id", readerID), zap.Error(err))
		return nil, err
	}

	var loans []*db.BorrowedBook
	if err := r.db.WithContext(ctx).
		Where("reader_id = ? AND return_date IS NULL", readerID).
		Order("id").
		Find(&loans).Error; err != nil {
		r.log.Error("Failed to list active loans", zap.Uint("reader_id", readerID), zap.Error(err))
		return nil, err
	}

	return loans, nil
}
