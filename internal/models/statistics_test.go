package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	apperrors "github.com/zfogg/listingboard/internal/errors"
)

func TestTallyToggle(t *testing.T) {
	var tally Tally

	assert.True(t, tally.Toggle("A"))
	assert.True(t, tally.Toggle("B"))
	assert.Equal(t, 2, tally.Count)
	assert.Equal(t, []string{"A", "B"}, tally.Users)

	assert.False(t, tally.Toggle("A"))
	assert.Equal(t, 1, tally.Count)
	assert.Equal(t, []string{"B"}, tally.Users)
	assert.False(t, tally.Contains("A"))
}

func TestTallyToggleDoesNotAliasClone(t *testing.T) {
	stats := Statistics{Recommend: Tally{Count: 3, Users: []string{"A", "B", "C"}}}
	clone := stats.Clone()

	clone.Recommend.Toggle("A")

	assert.Equal(t, []string{"A", "B", "C"}, stats.Recommend.Users)
	assert.Equal(t, []string{"B", "C"}, clone.Recommend.Users)
}

func TestClickRecordIsIdempotent(t *testing.T) {
	var clicks ClickTally
	first := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	assert.True(t, clicks.Record("C", first))
	assert.False(t, clicks.Record("C", first.Add(time.Hour)))

	require.Len(t, clicks.Users, 1)
	assert.Equal(t, 1, clicks.Count)
	assert.Equal(t, first, clicks.Users[0].Date)
}

func TestNormalizeRepairsDrift(t *testing.T) {
	stats := Statistics{
		Recommend: Tally{Count: 7, Users: []string{"A", "A", "", "B"}},
		Click:     ClickTally{Count: 0, Users: []ClickEntry{{UID: "X"}, {UID: "X"}}},
	}

	stats.Normalize()

	assert.Equal(t, Tally{Count: 2, Users: []string{"A", "B"}}, stats.Recommend)
	assert.Equal(t, Tally{Count: 0, Users: []string{}}, stats.Favorite)
	assert.Equal(t, 1, stats.Click.Count)
}

func TestStatisticsJSONShape(t *testing.T) {
	var stats Statistics
	stats.Normalize()
	stats.Recommend.Toggle("A")
	stats.Click.Record("C", time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC))

	raw, err := json.Marshal(stats)
	require.NoError(t, err)

	var decoded map[string]map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Len(t, decoded, 3)
	assert.Contains(t, decoded, "recommend")
	assert.Contains(t, decoded, "favorite")
	assert.Contains(t, decoded, "click")
	assert.Equal(t, []any{}, decoded["favorite"]["users"])
	assert.JSONEq(t,
		`{"recommend":{"count":1,"users":["A"]},"favorite":{"count":0,"users":[]},"click":{"count":1,"users":[{"uid":"C","date":"2026-01-02T03:04:05Z"}]}}`,
		string(raw))
}

func TestEmptyObjectDecodesToZeroState(t *testing.T) {
	var stats Statistics
	require.NoError(t, json.Unmarshal([]byte(`{}`), &stats))
	stats.Normalize()

	assert.Equal(t, 0, stats.Recommend.Count)
	assert.NotNil(t, stats.Recommend.Users)
	assert.NotNil(t, stats.Click.Users)
}

func TestStatisticsToggleRejectsClick(t *testing.T) {
	var stats Statistics
	_, err := stats.Toggle(SignalClick, "A")
	assert.Error(t, err)
	assert.False(t, stats.Has(SignalRecommend, ""))
}

func TestListingRef(t *testing.T) {
	ref, err := NewListingRef("Job", " owner-1 ", "ad-9")
	require.NoError(t, err)
	assert.Equal(t, KindJob, ref.Kind)
	assert.Equal(t, "job_ads:owner-1:ad-9", ref.Key())
	assert.Equal(t, "job/owner-1/ad-9", ref.String())

	parsed, err := ParseListingKey(ref.Key())
	require.NoError(t, err)
	assert.Equal(t, ref, parsed)

	partner, err := NewListingRef("partner", "o", "l")
	require.NoError(t, err)
	assert.Equal(t, "partner_ads:o:l", partner.Key())

	_, err = NewListingRef("venue", "o", "l")
	assert.ErrorIs(t, err, apperrors.ErrInvalidListing)

	_, err = NewListingRef("job", "", "l")
	assert.ErrorIs(t, err, apperrors.ErrInvalidListing)

	_, err = NewListingRef("job", "a:b", "l")
	assert.ErrorIs(t, err, apperrors.ErrInvalidListing)

	_, err = ParseListingKey("nope")
	assert.ErrorIs(t, err, apperrors.ErrInvalidListing)

	assert.Equal(t, []ListingKind{KindJob, KindPartner}, ListingKinds())
}
