package repo

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bookhaven/library/internal/db"
	"github.com/bookhaven/library/pkg/logger"
)

func TestCreateReader(t *testing.T) {
	database := setupTestDB(t)
	log := logger.NewLogger("test", "info")
	repo := NewReaderRepository(database, log)

	ctx := context.Background()

	reader := &db.Reader{Name: "Winston", Email: "winston@example.com"}
	require.NoError(t, repo.Create(ctx, reader))
	assert.NotZero(t, reader.ID)

	fetched, err := repo.GetByID(ctx, reader.ID)
	require.NoError(t, err)
	assert.Equal(t, "Winston", fetched.Name)
	assert.Equal(t, "winston@example.com", fetched.Email)
}

func TestCreateReaderDuplicateEmail(t *testing.T) {
	database := setupTestDB(t)
	log := logger.NewLogger("test", "info")
	repo := NewReaderRepository(database, log)

	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, &db.Reader{Name: "Winston", Email: "winston@example.com"}))

	err := repo.Create(ctx, &db.Reader{Name: "Impostor", Email: "winston@example.com"})
	assert.ErrorIs(t, err, ErrDuplicateEmail)
}

func TestGetReaderNotFound(t *testing.T) {
	database := setupTestDB(t)
	log := logger.NewLogger("test", "info")
	repo := NewReaderRepository(database, log)

	_, err := repo.GetByID(context.Background(), 999)
	assert.ErrorIs(t, err, ErrReaderNotFound)
}

func TestListReaders(t *testing.T) {
	database := setupTestDB(t)
	log := logger.NewLogger("test", "info")
	repo := NewReaderRepository(database, log)

	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, &db.Reader{Name: "Winston", Email: "winston@example.com"}))
	require.NoError(t, repo.Create(ctx, &db.Reader{Name: "Julia", Email: "julia@example.com"}))

	readers, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, readers, 2)
	assert.Equal(t, "Winston", readers[0].Name)
	assert.Equal(t, "Julia", readers[1].Name)
}

func TestUpdateReaderPartial(t *testing.T) {
	database := setupTestDB(t)
	log := logger.NewLogger("test", "info")
	repo := NewReaderRepository(database, log)

	ctx := context.Background()

	reader := &db.Reader{Name: "Winston", Email: "winston@example.com"}
	require.NoError(t, repo.Create(ctx, reader))

	updated, err := repo.Update(ctx, reader.ID, ReaderPatch{Name: strPtr("W. Smith")})
	require.NoError(t, err)
	assert.Equal(t, "W. Smith", updated.Name)
	assert.Equal(t, "winston@example.com", updated.Email)
}

func TestUpdateReaderDuplicateEmail(t *testing.T) {
	database := setupTestDB(t)
	log := logger.NewLogger("test", "info")
	repo := NewReaderRepository(database, log)

	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, &db.Reader{Name: "Winston", Email: "winston@example.com"}))
	julia := &db.Reader{Name: "Julia", Email: "julia@example.com"}
	require.NoError(t, repo.Create(ctx, julia))

	_, err := repo.Update(ctx, julia.ID, ReaderPatch{Email: strPtr("winston@example.com")})
	assert.ErrorIs(t, err, ErrDuplicateEmail)
}

func TestUpdateReaderNotFound(t *testing.T) {
	database := setupTestDB(t)
	log := logger.NewLogger("test", "info")
	repo := NewReaderRepository(database, log)

	_, err := repo.Update(context.Background(), 999, ReaderPatch{Name: strPtr("Ghost")})
	assert.ErrorIs(t, err, ErrReaderNotFound)
}

func TestDeleteReader(t *testing.T) {
	database := setupTestDB(t)
	log := logger.NewLogger("test", "info")
	repo := NewReaderRepository(database, log)

	ctx := context.Background()

	reader := &db.Reader{Name: "Winston", Email: "winston@example.com"}
	require.NoError(t, repo.Create(ctx, reader))

	require.NoError(t, repo.Delete(ctx, reader.ID))

	_, err := repo.GetByID(ctx, reader.ID)
	assert.ErrorIs(t, err, ErrReaderNotFound)
}

func TestDeleteReaderNotFound(t *testing.T) {
	database := setupTestDB(t)
	log := logger.NewLogger("test", "info")
	repo := NewReaderRepository(database, log)

	err := repo.Delete(context.Background(), 999)
	assert.ErrorIs(t, err, ErrReaderNotFound)
}

func TestDeleteReaderWithActiveLoan(t *testing.T) {
	database := setupTestDB(t)
	log := logger.NewLogger("test", "info")
	readers := NewReaderRepository(database, log)
	circulation := NewCirculationRepository(database, log)

	ctx := context.Background()

	book := seedBook(t, database, "1984", 1)
	reader := seedReader(t, database, "Winston", "winston@example.com")
	_, err := circulation.Borrow(ctx, book.ID, reader.ID)
	require.NoError(t, err)

	err = readers.Delete(ctx, reader.ID)
	assert.ErrorIs(t, err, ErrReaderHasActiveLoans)
}

func TestDeleteReaderAfterReturn(t *testing.T) {
	database := setupTestDB(t)
	log := logger.NewLogger("test", "info")
	readers := NewReaderRepository(database, log)
	circulation := NewCirculationRepository(database, log)

	ctx := context.Background()

	book := seedBook(t, database, "1984", 1)
	reader := seedReader(t, database, "Winston", "winston@example.com")
	_, err := circulation.Borrow(ctx, book.ID, reader.ID)
	require.NoError(t, err)
	_, err = circulation.Return(ctx, book.ID, reader.ID)
	require.NoError(t, err)

	require.NoError(t, readers.Delete(ctx, reader.ID))

	// History rows go with the reader
	var remaining int64
	require.NoError(t, database.Model(&db.BorrowedBook{}).Where("reader_id = ?", reader.ID).Count(&remaining).Error)
	assert.Equal(t, int64(0), remaining)
}
