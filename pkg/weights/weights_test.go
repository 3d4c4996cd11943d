package weights

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/holiman/uint256"
	"github.com/inclawbate/staking-engine/pkg/stakeLedger"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func stake(id string, token stakeLedger.TokenClass, amount uint64) *stakeLedger.Stake {
	return &stakeLedger.Stake{
		Id:     id,
		Wallet: fmt.Sprintf("0x%040s", id),
		Token:  token,
		Amount: uint256.NewInt(amount),
		Active: true,
		Policy: stakeLedger.KeepPolicy(),
	}
}

func Test_Weights(t *testing.T) {
	t.Run("Should weigh boosted stakes at twice the primary rate", func(t *testing.T) {
		snap, err := Compute([]*stakeLedger.Stake{
			stake("a", stakeLedger.TokenClass_Primary, 100),
			stake("b", stakeLedger.TokenClass_Boosted, 100),
		})
		assert.Nil(t, err)
		assert.Equal(t, uint64(300), snap.Total.Uint64())
		assert.Equal(t, "33.333333", snap.Weights[0].SharePct.String())
		assert.Equal(t, "66.666667", snap.Weights[1].SharePct.String())
	})
	t.Run("Should skip inactive stakes", func(t *testing.T) {
		inactive := stake("c", stakeLedger.TokenClass_Boosted, 1000)
		inactive.Active = false
		snap, err := Compute([]*stakeLedger.Stake{stake("a", stakeLedger.TokenClass_Primary, 10), inactive})
		assert.Nil(t, err)
		assert.Len(t, snap.Weights, 1)
		assert.Equal(t, uint64(10), snap.Total.Uint64())
	})
	t.Run("Should report zero shares when nothing is staked", func(t *testing.T) {
		snap, err := Compute(nil)
		assert.Nil(t, err)
		assert.True(t, snap.Total.IsZero())
		assert.True(t, SharePct(uint256.NewInt(5), snap.Total).IsZero())
	})
	t.Run("Should keep the share sum within one rounding unit of 100", func(t *testing.T) {
		r := rand.New(rand.NewSource(7))
		for run := 0; run < 50; run++ {
			stakes := make([]*stakeLedger.Stake, 0)
			n := 1 + r.Intn(40)
			for i := 0; i < n; i++ {
				class := stakeLedger.TokenClass_Primary
				if r.Intn(2) == 0 {
					class = stakeLedger.TokenClass_Boosted
				}
				stakes = append(stakes, stake(fmt.Sprintf("%d", i), class, 1+uint64(r.Int63n(1_000_000_000))))
			}
			snap, err := Compute(stakes)
			assert.Nil(t, err)
			sum := decimal.Zero
			for _, w := range snap.Weights {
				sum = sum.Add(w.SharePct)
			}
			unit := decimal.New(1, -SharePlaces).Mul(decimal.NewFromInt(int64(len(snap.Weights))))
			assert.True(t, sum.Sub(decimal.NewFromInt(100)).Abs().LessThanOrEqual(unit), "sum %s", sum.String())
		}
	})
	t.Run("Should carry the weekly remainder in sevenths", func(t *testing.T) {
		pool, sevenths, err := DailyPool(uint256.NewInt(100), 0, uint256.NewInt(0))
		assert.Nil(t, err)
		assert.Equal(t, uint64(14), pool.Uint64())
		assert.Equal(t, uint8(2), sevenths)

		total := uint64(0)
		carry := uint8(0)
		for day := 0; day < 7; day++ {
			pool, carry, err = DailyPool(uint256.NewInt(100), carry, uint256.NewInt(0))
			assert.Nil(t, err)
			total += pool.Uint64()
		}
		assert.Equal(t, uint64(100), total)
		assert.Equal(t, uint8(0), carry)
	})
	t.Run("Should add carried units to the pool", func(t *testing.T) {
		pool, _, err := DailyPool(uint256.NewInt(70), 0, uint256.NewInt(3))
		assert.Nil(t, err)
		assert.Equal(t, uint64(13), pool.Uint64())
	})
	t.Run("Should allocate by weight and return the floor dust", func(t *testing.T) {
		snap, _ := Compute([]*stakeLedger.Stake{
			stake("a", stakeLedger.TokenClass_Primary, 1),
			stake("b", stakeLedger.TokenClass_Primary, 1),
			stake("c", stakeLedger.TokenClass_Primary, 1),
		})
		allocations, dust, err := Allocate(snap, uint256.NewInt(10))
		assert.Nil(t, err)
		for _, a := range allocations {
			assert.Equal(t, uint64(3), a.Amount.Uint64())
		}
		assert.Equal(t, uint64(1), dust.Uint64())
	})
	t.Run("Should carry the whole pool when nothing is staked", func(t *testing.T) {
		allocations, dust, err := Allocate(&Snapshot{Total: uint256.NewInt(0)}, uint256.NewInt(10))
		assert.Nil(t, err)
		assert.Len(t, allocations, 0)
		assert.Equal(t, uint64(10), dust.Uint64())
	})
	t.Run("Should never allocate more than the pool", func(t *testing.T) {
		r := rand.New(rand.NewSource(11))
		for run := 0; run < 50; run++ {
			stakes := make([]*stakeLedger.Stake, 0)
			n := 1 + r.Intn(30)
			for i := 0; i < n; i++ {
				stakes = append(stakes, stake(fmt.Sprintf("%d", i), stakeLedger.TokenClasses[r.Intn(2)], 1+uint64(r.Int63n(1e12))))
			}
			snap, _ := Compute(stakes)
			pool := uint256.NewInt(uint64(r.Int63n(1e15)))
			allocations, dust, err := Allocate(snap, pool)
			assert.Nil(t, err)
			sum := new(uint256.Int).Set(dust)
			for _, a := range allocations {
				sum.Add(sum, a.Amount)
			}
			assert.Equal(t, pool.Dec(), sum.Dec())
		}
	})
}
