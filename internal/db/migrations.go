package db

import (
	"gorm.io/gorm"
)

// RunMigrations runs all database migrations
func RunMigrations(db *DB) error {
	if err := db.AutoMigrate(&Book{}, &Reader{}, &BorrowedBook{}, &User{}); err != nil {
		return err
	}

	if err := createIndexes(db.DB); err != nil {
		return err
	}

	return nil
}

func createIndexes(db *gorm.DB) error {
	indexes := []string{
		// Active-loan lookups filter on return_date IS NULL; a partial index
		// keeps the borrow-limit count and return-by-pair queries cheap.
		`CREATE INDEX IF NOT EXISTS idx_borrowed_books_active_reader ON borrowed_books(reader_id) WHERE return_date IS NULL`,

		// Return resolves a (book, reader) pair
		`CREATE INDEX IF NOT EXISTS idx_borrowed_books_book_reader ON borrowed_books(book_id, reader_id)`,
	}

	for _, indexSQL := range indexes {
		if err := db.Exec(indexSQL).Error; err != nil {
			return err
		}
	}

	return nil
}
