package repo

import (
	"context"
	"errors"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/bookhaven/library/internal/db"
)

var (
	// ErrReaderNotFound is returned when a reader is not found
	ErrReaderNotFound = errors.New("reader not found")

	// ErrDuplicateEmail is returned when another reader already uses the email
	ErrDuplicateEmail = errors.New("email already exists")

	// ErrReaderHasActiveLoans is returned when deleting a reader who still holds books
	ErrReaderHasActiveLoans = errors.New("reader has active loans")
)

// ReaderRepository handles library patron records
type ReaderRepository struct {
	db  *db.DB
	log *zap.Logger
}

// NewReaderRepository creates a new reader repository
func NewReaderRepository(database *db.DB, logger *zap.Logger) *ReaderRepository {
	return &ReaderRepository{
		db:  database,
		log: logger,
	}
}

// ReaderPatch carries the fields of a partial reader update. Nil fields are
// left untouched.
type ReaderPatch struct {
	Name  *string
	Email *string
}

// Create inserts a new reader, enforcing email uniqueness.
func (r *ReaderRepository) Create(ctx context.Context, reader *db.Reader) error {
	var existing db.Reader
	err := r.db.WithContext(ctx).Where("email = ?", reader.Email).First(&existing).Error
	if err == nil {
		return ErrDuplicateEmail
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		r.log.Error("Failed to check email uniqueness", zap.String("email", reader.Email), zap.Error(err))
		return err
	}

	if err := r.db.WithContext(ctx).Create(reader).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrDuplicateEmail
		}
		r.log.Error("Failed to create reader", zap.String("email", reader.Email), zap.Error(err))
		return err
	}

	r.log.Info("Reader created", zap.Uint("id", reader.ID), zap.String("email", reader.Email))
	return nil
}

// GetByID retrieves a reader by identifier
func (r *ReaderRepository) GetByID(ctx context.Context, id uint) (*db.Reader, error) {
	var reader db.Reader
	err := r.db.WithContext(ctx).First(&reader, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrReaderNotFound
		}
		r.log.Error("Failed to get reader", zap.Uint("id", id), zap.Error(err))
		return nil, err
	}

	return &reader, nil
}

// List returns all readers in creation order
func (r *ReaderRepository) List(ctx context.Context) ([]*db.Reader, error) {
	var readers []*db.Reader
	if err := r.db.WithContext(ctx).Order("id").Find(&readers).Error; err != nil {
		r.log.Error("Failed to list readers", zap.Error(err))
		return nil, err
	}

	return readers, nil
}

// Update applies the non-nil fields of the patch to an existing reader. A
// changed email is re-checked for uniqueness.
func (r *ReaderRepository) Update(ctx context.Context, id uint, patch ReaderPatch) (*db.Reader, error) {
	reader, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if patch.Email != nil && *patch.Email != reader.Email {
		var existing db.Reader
		err := r.db.WithContext(ctx).Where("email = ?", *patch.Email).First(&existing).Error
		if err == nil {
			return nil, ErrDuplicateEmail
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			r.log.Error("Failed to check email uniqueness", zap.String("email", *patch.Email), zap.Error(err))
			return nil, err
		}
	}

	updates := make(map[string]interface{})
	if patch.Name != nil {
		updates["name"] = *patch.Name
	}
	if patch.Email != nil {
		updates["email"] = *patch.Email
	}

	if len(updates) == 0 {
		return reader, nil
	}

	if err := r.db.WithContext(ctx).Model(&db.Reader{}).Where("id = ?", id).Updates(updates).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrDuplicateEmail
		}
		r.log.Error("Failed to update reader", zap.Uint("id", id), zap.Error(err))
		return nil, err
	}

	r.log.Info("Reader updated", zap.Uint("id", id))
	return r.GetByID(ctx, id)
}

// Delete removes a reader. Readers with active loans are kept; returned-loan
// history rows go with the reader via ON DELETE CASCADE.
func (r *ReaderRepository) Delete(ctx context.Context, id uint) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var reader db.Reader
		if err := lockForUpdate(tx).First(&reader, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrReaderNotFound
			}
			return err
		}

		var active int64
		if err := tx.Model(&db.BorrowedBook{}).
			Where("reader_id = ? AND return_date IS NULL", id).
			Count(&active).Error; err != nil {
			return err
		}
		if active > 0 {
			return ErrReaderHasActiveLoans
		}

		return tx.Delete(&db.Reader{}, id).Error
	})
	if err != nil {
		if errors.Is(err, ErrReaderNotFound) || errors.Is(err, ErrReaderHasActiveLoans) {
			return err
		}
		r.log.Error("Failed to delete reader", zap.Uint("id", id), zap.Error(err))
		return err
	}

	r.log.Info("Reader deleted", zap.Uint("id", id))
	return nil
}
