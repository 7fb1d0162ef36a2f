package ingestion

import (
	"context"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jeovahfialho/lntools/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateTableSQL(t *testing.T) {
	fields := []domain.Field{
		{Name: "code", Kind: domain.KindString},
		{Name: "qty", Kind: domain.KindInt},
		{Name: "px", Kind: domain.KindDecimal},
		{Name: "trade_date", Kind: domain.KindTime},
		{Name: "halted", Kind: domain.KindBool},
		{Name: "unused", Kind: domain.KindNull},
	}

	got := createTableSQL("market.daily_quotes", fields)
	assert.Equal(t,
		`CREATE TABLE IF NOT EXISTS "market"."daily_quotes" ("code" TEXT, "qty" BIGINT, "px" NUMERIC, "trade_date" TIMESTAMPTZ, "halted" BOOLEAN, "unused" TEXT)`,
		got)
}

func TestFrameSourceConvertsDecimals(t *testing.T) {
	src := &frameSource{rows: [][]any{
		{"600000", decimal.RequireFromString("10.25")},
		{"600519", nil},
	}}

	require.True(t, src.Next())
	values, err := src.Values()
	require.NoError(t, err)

	num, ok := values[1].(pgtype.Numeric)
	require.True(t, ok)
	assert.True(t, num.Valid)
	assert.Equal(t, int64(1025), num.Int.Int64())
	assert.Equal(t, int32(-2), num.Exp)

	require.True(t, src.Next())
	values, err = src.Values()
	require.NoError(t, err)
	assert.Nil(t, values[1])

	assert.False(t, src.Next())
	assert.NoError(t, src.Err())
}

func TestSplitIntoChunks(t *testing.T) {
	rows := make([][]any, 25)
	chunks := splitIntoChunks(rows, 10)

	require.Len(t, chunks, 3)
	assert.Len(t, chunks[2], 5)
	assert.Empty(t, splitIntoChunks(nil, 10))
}

func TestLoadFrameIntoPostgres(t *testing.T) {
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	defer pool.Close()

	_, err = pool.Exec(ctx, `DROP TABLE IF EXISTS loader_test`)
	require.NoError(t, err)

	frame := domain.NewFrame(
		domain.Field{Name: "code", Kind: domain.KindString},
		domain.Field{Name: "px", Kind: domain.KindDecimal},
	)
	for i := 0; i < 25; i++ {
		require.NoError(t, frame.Append("600000", decimal.NewFromFloat(10.5)))
	}

	count, err := NewBulkLoader(pool, 10).LoadFrame(ctx, "loader_test", frame)
	require.NoError(t, err)
	assert.Equal(t, int64(25), count)
}
