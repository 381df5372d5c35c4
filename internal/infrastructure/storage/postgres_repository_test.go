package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"PriceAggregator/internal/domain"
	"PriceAggregator/internal/ports"
)

func sampleRun() ports.Run {
	return ports.Run{
		ID:        "6f1c2b1e-8c1a-4c1d-9f5e-0d7c7b8e9a10",
		StartedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Results: []domain.AggregateResult{
			{
				StoreID:     "tienda",
				URL:         "https://tienda.example/p/1",
				ProductType: "Notebook",
				Product: domain.Product{
					Name: "Ultrabook 14",
					Prices: domain.PriceQuote{
						"cash": decimal.RequireFromString("1010990"),
						"card": decimal.RequireFromString("1060990"),
					},
				},
			},
			{
				StoreID:     "tienda",
				URL:         "https://tienda.example/p/2",
				ProductType: "Notebook",
				Product:     domain.Product{Name: "Gamer 15"},
			},
			{
				StoreID:     "tienda",
				URL:         "https://tienda.example/p/3",
				ProductType: "Notebook",
				Err:         errors.New("timeout"),
			},
		},
	}
}

func TestBuildInsert(t *testing.T) {
	t.Parallel()

	repo := NewPostgresRepository(nil)
	batches, err := repo.buildInserts(sampleRun())
	require.NoError(t, err)
	require.Len(t, batches, 1)
	query, args := batches[0].query, batches[0].args

	assert.True(t, strings.HasPrefix(query, "INSERT INTO price_snapshots (run_id,store_id,url,product_type,product_name,payment_method,amount,available,error,fetched_at) VALUES "))
	assert.Contains(t, query, "$40")
	assert.NotContains(t, query, "?")
	require.Len(t, args, 4*len(snapshotColumns))

	// card row comes first: methods are written in lexical order
	assert.Equal(t, "card", args[5])
	assert.Equal(t, "1060990", args[6])
	assert.Equal(t, true, args[7])
	assert.Equal(t, "cash", args[15])

	unavailable := args[20:30]
	assert.Equal(t, "Gamer 15", unavailable[4])
	assert.Nil(t, unavailable[6])
	assert.Equal(t, false, unavailable[7])
	assert.Nil(t, unavailable[8])

	failed := args[30:40]
	assert.Equal(t, "https://tienda.example/p/3", failed[2])
	assert.Equal(t, false, failed[7])
	assert.Equal(t, "timeout", failed[8])
}

func TestBuildInsertBatchesLargeRuns(t *testing.T) {
	t.Parallel()

	const products = 3500
	run := ports.Run{ID: "run", StartedAt: time.Now()}
	for i := 0; i < products; i++ {
		run.Results = append(run.Results, domain.AggregateResult{
			StoreID:     "tienda",
			URL:         fmt.Sprintf("https://tienda.example/p/%d", i),
			ProductType: "Notebook",
			Product: domain.Product{
				Name: fmt.Sprintf("Notebook %d", i),
				Prices: domain.PriceQuote{
					"cash": decimal.NewFromInt(int64(1000 + i)),
					"card": decimal.NewFromInt(int64(1100 + i)),
				},
			},
		})
	}

	batches, err := NewPostgresRepository(nil).buildInserts(run)
	require.NoError(t, err)
	require.Len(t, batches, 7)

	total := 0
	for _, b := range batches {
		assert.LessOrEqual(t, len(b.args), 65535)
		assert.NotContains(t, b.query, "$10001")
		total += len(b.args)
	}
	assert.Equal(t, 2*products*len(snapshotColumns), total)

	last := batches[len(batches)-1].args
	assert.Equal(t, "https://tienda.example/p/3499", last[len(last)-8])
}

func TestSaveRunWithoutDatabase(t *testing.T) {
	t.Parallel()

	repo := NewPostgresRepository(nil)
	assert.NoError(t, repo.SaveRun(context.Background(), sampleRun()))
	assert.NoError(t, repo.EnsureSchema(context.Background()))
}
