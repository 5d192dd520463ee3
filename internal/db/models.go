package db

import (
	"time"

	"gorm.io/gorm"
)

// Book represents a title in the library catalog.
type Book struct {
	ID          uint    `gorm:"primaryKey" json:"id"`
	Title       string  `gorm:"type:varchar(255);not null" json:"title"`
	Author      string  `gorm:"type:varchar(255);not null" json:"author"`
	Year        *int    `json:"year"`
	ISBN        *string `gorm:"type:varchar(32);uniqueIndex" json:"isbn"`
	Copies      int     `gorm:"not null;default:1;check:copies >= 0" json:"copies"`
	Description *string `gorm:"type:text" json:"description"`
}

// TableName specifies the table name for Book model
func (Book) TableName() string {
	return "books"
}

// Reader represents a registered library patron who can borrow books.
type Reader struct {
	ID    uint   `gorm:"primaryKey" json:"id"`
	Name  string `gorm:"type:varchar(255);not null" json:"name"`
	Email string `gorm:"type:varchar(255);not null;uniqueIndex" json:"email"`
}

// TableName specifies the table name for Reader model
func (Reader) TableName() string {
	return "readers"
}

// BorrowedBook is one circulation record. A null ReturnDate means the loan
// is still active.
type BorrowedBook struct {
	ID         uint       `gorm:"primaryKey" json:"id"`
	BookID     uint       `gorm:"not null;index" json:"book_id"`
	ReaderID   uint       `gorm:"not null;index" json:"reader_id"`
	BorrowDate time.Time  `gorm:"not null" json:"borrow_date"`
	ReturnDate *time.Time `json:"return_date"`

	Book   *Book   `gorm:"foreignKey:BookID;constraint:OnDelete:CASCADE" json:"-"`
	Reader *Reader `gorm:"foreignKey:ReaderID;constraint:OnDelete:CASCADE" json:"-"`
}

// TableName specifies the table name for BorrowedBook model
func (BorrowedBook) TableName() string {
	return "borrowed_books"
}

// BeforeCreate hook to stamp the borrow date
func (b *BorrowedBook) BeforeCreate(tx *gorm.DB) error {
	if b.BorrowDate.IsZero() {
		b.BorrowDate = time.Now()
	}
	return nil
}

// User is an authentication principal. It gates access to the API and is
// unrelated to Reader, which is a library domain entity.
type User struct {
	ID             uint   `gorm:"primaryKey" json:"id"`
	Email          string `gorm:"type:varchar(255);not null;uniqueIndex" json:"email"`
	HashedPassword string `gorm:"type:varchar(255);not null" json:"-"`
}

// TableName specifies the table name for User model
func (User) TableName() string {
	return "users"
}
