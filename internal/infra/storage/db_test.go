package storage

import (
	"database/sql"
	"io/fs"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jose-valero/pug-league-bot/internal/domain"
)

func TestMigrationsEmbedded(t *testing.T) {
	files, err := fs.Glob(migrations, "migrations/*.sql")
	require.NoError(t, err)
	require.Len(t, files, 2)
	for _, f := range files {
		data, err := fs.ReadFile(migrations, f)
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(string(data), "-- +goose Up"), f)
		assert.Contains(t, string(data), "-- +goose Down", f)
	}
}

func TestNotFound(t *testing.T) {
	err := notFound(sql.ErrNoRows, "league x")
	assert.True(t, errors.Is(err, domain.ErrNotFound))
	assert.Nil(t, notFound(nil, "x"))

	other := errors.New("boom")
	assert.Equal(t, other, notFound(other, "x"))
}
