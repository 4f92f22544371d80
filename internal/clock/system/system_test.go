package system

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/ratings-crawler/internal/dataset"
)

func TestClockNowIsUTC(t *testing.T) {
	t.Parallel()

	before := time.Now().Add(-time.Second)
	got := New().Now()
	after := time.Now().Add(time.Second)

	assert.Equal(t, time.UTC, got.Location())
	assert.True(t, got.After(before) && got.Before(after), "now %v outside [%v, %v]", got, before, after)
}

func TestClockStampsUpdateLogByDay(t *testing.T) {
	t.Parallel()

	clk := New()
	log := dataset.UpdateLog{}
	now := clk.Now()
	log.Stamp("amy", now)

	stamped, ok := log["amy"]
	require.True(t, ok)
	assert.Equal(t, dataset.Day(now), stamped)
	assert.False(t, stamped.After(clk.Now()))
}
