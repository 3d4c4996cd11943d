package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func Test_Utils(t *testing.T) {
	t.Run("Should normalize a mixed-case address", func(t *testing.T) {
		a, err := NormalizeAddress("0x91B5C0D07859CFEAFEB67D9694121CD741F049BD")
		assert.Nil(t, err)
		assert.Equal(t, "0x91b5c0d07859cfeafeb67d9694121cd741f049bd", a)
	})
	t.Run("Should reject short addresses", func(t *testing.T) {
		_, err := NormalizeAddress("0x1234")
		assert.NotNil(t, err)
	})
	t.Run("Should validate tx hashes", func(t *testing.T) {
		h, err := NormalizeTxHash("0xABCDEF0000000000000000000000000000000000000000000000000000000001")
		assert.Nil(t, err)
		assert.Equal(t, "0xabcdef0000000000000000000000000000000000000000000000000000000001", h)

		_, err = NormalizeTxHash("abcdef")
		assert.NotNil(t, err)
		_, err = NormalizeTxHash("0xzz" + "00000000000000000000000000000000000000000000000000000000000000")
		assert.NotNil(t, err)
	})
	t.Run("Should compare addresses case-insensitively", func(t *testing.T) {
		assert.True(t, AreAddressesEqual("0xAbC", "0xabc"))
	})
}
