package stakeLedger

import (
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
)

const orgWallet = "0x2222222222222222222222222222222222222222"

func Test_RedirectPolicy(t *testing.T) {
	t.Run("Should accept the simple policies", func(t *testing.T) {
		assert.Nil(t, KeepPolicy().Validate())
		assert.Nil(t, ReinvestPolicy().Validate())
		assert.Nil(t, PhilanthropyPolicy(orgWallet).Validate())
	})
	t.Run("Should require an org wallet for philanthropy", func(t *testing.T) {
		assert.ErrorIs(t, PhilanthropyPolicy("").Validate(), ErrInvalidSplit)
	})
	t.Run("Should reject splits that do not sum to 100", func(t *testing.T) {
		assert.ErrorIs(t, SplitPolicy(50, 30, 30, orgWallet).Validate(), ErrInvalidSplit)
		assert.ErrorIs(t, SplitPolicy(50, 30, 10, orgWallet).Validate(), ErrInvalidSplit)
		assert.Nil(t, SplitPolicy(50, 30, 20, orgWallet).Validate())
	})
	t.Run("Should require an org wallet only when the org share is positive", func(t *testing.T) {
		assert.Nil(t, SplitPolicy(60, 0, 40, "").Validate())
		assert.ErrorIs(t, SplitPolicy(60, 40, 0, "").Validate(), ErrInvalidSplit)
	})
	t.Run("Should fall back to the period default for an empty split", func(t *testing.T) {
		p := RedirectPolicy{Kind: PolicyKind_Split}
		assert.Nil(t, p.Validate())
		assert.Equal(t, SplitPct{Keep: 70, Reinvest: 30}, p.EffectiveSplit(SplitPct{Keep: 70, Reinvest: 30}))
	})
	t.Run("Should reject unknown kinds", func(t *testing.T) {
		assert.ErrorIs(t, RedirectPolicy{Kind: "burn"}.Validate(), ErrInvalidSplit)
	})
}

func Test_Stake(t *testing.T) {
	t.Run("Should weigh boosted stakes double", func(t *testing.T) {
		s := &Stake{Token: TokenClass_Boosted, Amount: uint256.NewInt(50), Active: true}
		assert.Equal(t, uint64(100), s.WeightedAmount().Uint64())
	})
	t.Run("Should weigh inactive stakes as zero", func(t *testing.T) {
		s := &Stake{Token: TokenClass_Primary, Amount: uint256.NewInt(50)}
		assert.True(t, s.WeightedAmount().IsZero())
	})
	t.Run("Should reject an active stake with zero amount", func(t *testing.T) {
		s := &Stake{Token: TokenClass_Primary, Amount: uint256.NewInt(0), Active: true}
		assert.ErrorIs(t, s.Validate(), ErrInvalidAmount)
	})
}
