package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validPolicy() CollectionPolicy {
	return CollectionPolicy{
		Mode:        ModeIncremental,
		From:        "2024-01-01",
		To:          "2025-12-31",
		OverlapDays: 7,
		Workers:     4,
		Accounts:    []AccountConfig{{Name: "main", AccountID: "1234"}},
	}
}

func TestValidateCollectionPolicy(t *testing.T) {
	require.NoError(t, ValidateCollectionPolicy(validPolicy()))
}

func TestValidateRejectsBadMode(t *testing.T) {
	p := validPolicy()
	p.Mode = "weekly"
	assert.Error(t, ValidateCollectionPolicy(p))
}

func TestValidateRejectsBadDates(t *testing.T) {
	p := validPolicy()
	p.From = "01/01/2024"
	assert.Error(t, ValidateCollectionPolicy(p))

	p = validPolicy()
	p.To = "2023-12-31"
	assert.Error(t, ValidateCollectionPolicy(p))
}

func TestValidateRejectsNegativeOverlap(t *testing.T) {
	p := validPolicy()
	p.OverlapDays = -1
	assert.Error(t, ValidateCollectionPolicy(p))
}

func TestValidateAllowsEmptyTo(t *testing.T) {
	p := validPolicy()
	p.To = ""
	require.NoError(t, ValidateCollectionPolicy(p))
}

func TestStaticPolicyHolder(t *testing.T) {
	p := validPolicy()
	holder := NewStaticPolicyHolder(p)
	assert.Equal(t, p, holder.Get())
}

func TestDefaultCollectionPolicy(t *testing.T) {
	p := DefaultCollectionPolicy()
	require.NoError(t, ValidateCollectionPolicy(p))
	assert.Equal(t, ModeIncremental, p.Mode)
	assert.Equal(t, 7, p.OverlapDays)
}
