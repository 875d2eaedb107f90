package util_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Thetimii/dashboard-sub001/internal/model"
	"github.com/Thetimii/dashboard-sub001/internal/util"
)

func TestNormalizeEmail(t *testing.T) {
	got, err := util.NormalizeEmail("  Jane.Doe@Example.COM \n")
	require.NoError(t, err)
	assert.Equal(t, "jane.doe@example.com", got)

	_, err = util.NormalizeEmail("   ")
	require.Error(t, err)
	assert.True(t, model.IsValidation(err))
}

func TestHashEmail_Deterministic(t *testing.T) {
	inputs := []string{
		"jane@example.com",
		"JANE@EXAMPLE.COM",
		"  Jane@Example.com",
		"jane@example.com\t",
	}

	want, err := util.HashEmail(inputs[0])
	require.NoError(t, err)
	for _, in := range inputs {
		got, err := util.HashEmail(in)
		require.NoError(t, err)
		assert.Equal(t, want, got, "input %q", in)
	}
}

func TestHash_KnownVector(t *testing.T) {
	// sha256("abc")
	assert.Equal(t, "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad", util.Hash("abc"))
	assert.Len(t, util.Hash("jane@example.com"), 64)
}

func TestNormalizePhone(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		hint string
		want string
	}{
		{"us national", "(212) 555-1234", "US", "12125551234"},
		{"us with code no plus", "1 212 555 1234", "us", "12125551234"},
		{"plus prefix keeps code", "+41 79 123 45 67", "US", "41791234567"},
		{"double zero prefix", "0041 79 123 45 67", "", "41791234567"},
		{"ch trunk zero", "079 123 45 67", "CH", "41791234567"},
		{"ch with code", "41791234567", "CH", "41791234567"},
		{"de trunk zero", "030 123456", "DE", "4930123456"},
		{"gb mobile", "07911 123456", "GB", "447911123456"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := util.NormalizePhone(tt.raw, tt.hint)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNormalizePhone_Errors(t *testing.T) {
	_, err := util.NormalizePhone(" - ( ) ", "US")
	require.Error(t, err)
	assert.True(t, model.IsValidation(err))

	_, err = util.NormalizePhone("0791234567", "ZZ")
	require.Error(t, err)
	assert.True(t, model.IsValidation(err))
}

func TestSplitName(t *testing.T) {
	first, last := util.SplitName("  Jane  Q  Doe ")
	assert.Equal(t, "Jane", first)
	assert.Equal(t, "Doe", last)

	first, last = util.SplitName("Cher")
	assert.Equal(t, "Cher", first)
	assert.Empty(t, last)

	assert.Equal(t, "jane", util.NormalizeName(" JANE "))
}

func TestNewID(t *testing.T) {
	a, b := util.NewID(), util.NewID()
	assert.Len(t, a, 26)
	assert.NotEqual(t, a, b)
}
