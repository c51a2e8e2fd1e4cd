package db

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpen_EmptyDSN(t *testing.T) {
	t.Parallel()

	_, err := Open(context.Background(), "")
	assert.Error(t, err)
}

func TestOpen_SQLiteMemory(t *testing.T) {
	t.Parallel()

	gdb, err := Open(context.Background(), "sqlite:file::memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = Close(gdb) })

	var one int
	require.NoError(t, gdb.Raw("SELECT 1").Scan(&one).Error)
	assert.Equal(t, 1, one)
}
