package queue

import (
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gigboard/dispatch/errors"
)

func TestStore_GetJobNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT (.+) FROM jobs WHERE id").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	store := NewStore(db)
	_, err = store.GetJob("missing")
	require.Error(t, err)
	assert.True(t, errors.IsNotFoundError(err))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_CreateJobWrapsDatabaseError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("INSERT INTO jobs").
		WillReturnError(assert.AnError)

	store := NewStore(db)
	err = store.CreateJob(NewJob("skillfolio", nil, EnqueueOptions{}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to create job")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_UpdateProgressUnknownJob(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("UPDATE jobs SET progress").
		WillReturnResult(sqlmock.NewResult(0, 0))

	store := NewStore(db)
	err = store.UpdateProgress("missing", 50)
	require.Error(t, err)
	assert.True(t, errors.IsNotFoundError(err))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_CountOutstandingQueryFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT COUNT").
		WillReturnError(assert.AnError)

	store := NewStore(db)
	_, err = store.CountOutstanding()
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
