// Package usertest holds the behaviour every user.Store must share.
package usertest

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m3rciful/funnelbot/internal/user"
)

// RunStoreSuite exercises a fresh store returned by open for every subtest.
func RunStoreSuite(t *testing.T, open func(t *testing.T) user.Store) {
	t.Helper()

	t.Run("unknown id is absent", func(t *testing.T) {
		s := open(t)
		_, ok := s.Get(context.Background(), 404)
		assert.False(t, ok)
		assert.Empty(t, s.ListIDs(context.Background()))
		assert.Zero(t, s.CountWhere(context.Background(), user.All))
	})

	t.Run("upsert creates default record", func(t *testing.T) {
		s := open(t)
		ctx := context.Background()

		rec, err := s.Upsert(ctx, 10, func(r *user.Record) { r.Username = "anya" })
		require.NoError(t, err)
		assert.EqualValues(t, 10, rec.ID)
		assert.Equal(t, user.LangEN, rec.Lang())
		assert.False(t, rec.Registered)

		got, ok := s.Get(ctx, 10)
		require.True(t, ok)
		assert.Equal(t, "anya", got.Username)
	})

	t.Run("round trip keeps every field", func(t *testing.T) {
		s := open(t)
		ctx := context.Background()
		regAt := time.Date(2025, 3, 1, 9, 30, 0, 0, time.UTC)
		depAt := regAt.Add(2 * time.Hour)

		_, err := s.Upsert(ctx, 20, func(r *user.Record) {
			r.Username = "dev"
			r.Language = user.LangHI
			r.Registered = true
			r.RegistrationTime = &regAt
			r.Deposited = true
			r.DepositTime = &depAt
			r.Country = "IN"
			r.Amount = decimal.NewNullDecimal(decimal.RequireFromString("49.99"))
			r.AdminApproved = true
			r.LastSignalMessageID = 321
			r.DepositMessageID = 123
		})
		require.NoError(t, err)

		got, ok := s.Get(ctx, 20)
		require.True(t, ok)
		assert.Equal(t, user.LangHI, got.Language)
		assert.True(t, got.Registered)
		require.NotNil(t, got.RegistrationTime)
		assert.True(t, regAt.Equal(*got.RegistrationTime))
		require.NotNil(t, got.DepositTime)
		assert.True(t, depAt.Equal(*got.DepositTime))
		assert.Equal(t, "IN", got.Country)
		assert.True(t, decimal.RequireFromString("49.99").Equal(got.Amount.Decimal))
		assert.True(t, got.AdminApproved)
		assert.Equal(t, 321, got.LastSignalMessageID)
		assert.Equal(t, 123, got.DepositMessageID)
	})

	t.Run("timestamps follow flags", func(t *testing.T) {
		s := open(t)
		ctx := context.Background()
		now := time.Now().UTC()

		rec, err := s.Upsert(ctx, 30, func(r *user.Record) {
			r.Registered = false
			r.RegistrationTime = &now
		})
		require.NoError(t, err)
		assert.Nil(t, rec.RegistrationTime)
	})

	t.Run("list ids and counts", func(t *testing.T) {
		s := open(t)
		ctx := context.Background()
		for id := int64(1); id <= 5; id++ {
			id := id
			_, err := s.Upsert(ctx, id, func(r *user.Record) {
				r.Registered = id <= 3
				r.Deposited = id <= 1
				r.AdminApproved = id == 5
			})
			require.NoError(t, err)
		}

		ids := s.ListIDs(ctx)
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
		assert.Equal(t, []int64{1, 2, 3, 4, 5}, ids)
		assert.Equal(t, 5, s.CountWhere(ctx, user.All))
		assert.Equal(t, 3, s.CountWhere(ctx, user.IsRegistered))
		assert.Equal(t, 1, s.CountWhere(ctx, user.IsDeposited))
		assert.Equal(t, 1, s.CountWhere(ctx, user.IsApproved))
		assert.Len(t, s.List(ctx), 5)
	})

	t.Run("unchanged upsert is a no-op", func(t *testing.T) {
		s := open(t)
		ctx := context.Background()
		first, err := s.Upsert(ctx, 40, func(r *user.Record) { r.AdminApproved = true })
		require.NoError(t, err)
		second, err := s.Upsert(ctx, 40, func(r *user.Record) { r.AdminApproved = true })
		require.NoError(t, err)
		assert.True(t, first.Equal(second))
	})

	t.Run("concurrent upserts do not lose updates", func(t *testing.T) {
		s := open(t)
		ctx := context.Background()

		var wg sync.WaitGroup
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := s.Upsert(ctx, 50, func(r *user.Record) { r.LastSignalMessageID++ })
				assert.NoError(t, err)
			}()
		}
		wg.Wait()

		got, ok := s.Get(ctx, 50)
		require.True(t, ok)
		assert.Equal(t, 20, got.LastSignalMessageID)
	})
}
