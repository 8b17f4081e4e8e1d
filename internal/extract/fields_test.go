package extract

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/BD4L/breachwatch/internal/pipeline"
)

func TestNewFieldExtractorCompilesRules(t *testing.T) {
	t.Parallel()

	// Every rule pattern must compile; MustCompile panics otherwise.
	require.NotPanics(t, func() { NewFieldExtractor() })
}

func TestAffectedCount_HighRuleWinsOverLow(t *testing.T) {
	t.Parallel()

	f := NewFieldExtractor()
	text := "The database held 9,999 records. Approximately 1,234 individuals were affected by the incident."

	res := f.AffectedCount(text)
	require.NotNil(t, res.Value)
	require.EqualValues(t, 1234, *res.Value)
	require.Equal(t, "count.individuals-affected", res.Ref.RuleID)
	require.Equal(t, pipeline.ConfidenceHigh, res.Ref.Confidence)
}

func TestAffectedCount_LowRuleUsedWhenNothingBetterMatches(t *testing.T) {
	t.Parallel()

	f := NewFieldExtractor()
	res := f.AffectedCount("an intruder copied 9,999 records from the file server")
	require.NotNil(t, res.Value)
	require.EqualValues(t, 9999, *res.Value)
	require.Equal(t, "count.records", res.Ref.RuleID)
	require.Equal(t, pipeline.ConfidenceLow, res.Ref.Confidence)
}

func TestAffectedCount_RejectsYearLikeNumbers(t *testing.T) {
	t.Parallel()

	f := NewFieldExtractor()
	res := f.AffectedCount("the incident affecting 2024 operations is under review")
	require.Nil(t, res.Value)
	require.Equal(t, pipeline.ConfidenceNone, res.Ref.Confidence)
}

func TestAffectedCount_CommaFormattedCountInYearRange(t *testing.T) {
	t.Parallel()

	// 1,934 parses to a number inside the year-guard range; the comma
	// marks it as a count, not a year.
	f := NewFieldExtractor()
	res := f.AffectedCount("Approximately 1,934 individuals were affected by the incident.")
	require.NotNil(t, res.Value)
	require.EqualValues(t, 1934, *res.Value)
	require.Equal(t, "count.individuals-affected", res.Ref.RuleID)
}

func TestAffectedCount_NoMatchYieldsNone(t *testing.T) {
	t.Parallel()

	f := NewFieldExtractor()
	res := f.AffectedCount("no numbers here at all")
	require.Nil(t, res.Value)
	require.Equal(t, pipeline.ConfidenceNone, res.Ref.Confidence)
	require.Empty(t, res.Ref.RuleID)
}

func TestNarrative_StopsAtSentinel(t *testing.T) {
	t.Parallel()

	f := NewFieldExtractor()
	text := "What Happened? On February 14, 2025 we detected unauthorized access to our network and began an investigation with outside counsel. What We Are Doing: we engaged forensic experts."

	res := f.Narrative(text)
	require.Equal(t, "narrative.what-happened", res.Ref.RuleID)
	require.Contains(t, res.Value, "unauthorized access")
	require.NotContains(t, res.Value, "forensic experts")
}

func TestNarrative_RejectsShortMatches(t *testing.T) {
	t.Parallel()

	f := NewFieldExtractor()
	// Header-only capture is shorter than the minimum narrative length
	// once the sentinel cut is applied.
	res := f.Narrative("What happened? See below. What we are doing: lots of things, described at great length further on.")
	require.NotEqual(t, "narrative.what-happened", res.Ref.RuleID)
}

func TestNarrative_LongCaptureIsCapped(t *testing.T) {
	t.Parallel()

	f := NewFieldExtractor()
	text := "What happened? " + strings.Repeat("An unauthorized actor moved through the network. ", 200)

	res := f.Narrative(text)
	require.Equal(t, "narrative.what-happened", res.Ref.RuleID)
	require.LessOrEqual(t, len(res.Value), maxNarrativeLen)
	require.Contains(t, res.Value, "unauthorized actor")
}

func TestDataCategories(t *testing.T) {
	t.Parallel()

	f := NewFieldExtractor()
	res := f.DataCategories("The files contained names and Social Security numbers, dates of birth, and medical record numbers.")
	require.Equal(t, pipeline.ConfidenceHigh, res.Ref.Confidence)
	require.Contains(t, res.Values, "ssn")
	require.Contains(t, res.Values, "dob")
	require.Contains(t, res.Values, "medical")
	require.NotContains(t, res.Values, "passport")
}

func TestDataCategories_Empty(t *testing.T) {
	t.Parallel()

	f := NewFieldExtractor()
	res := f.DataCategories("nothing sensitive mentioned")
	require.Empty(t, res.Values)
	require.Equal(t, pipeline.ConfidenceNone, res.Ref.Confidence)
}

func TestTimelineDates(t *testing.T) {
	t.Parallel()

	f := NewFieldExtractor()
	text := "We discovered suspicious activity on January 5, 2025. The intrusion occurred on 12/28/2024."

	dates := f.TimelineDates(text)
	require.Len(t, dates, 2)
	require.Equal(t, "discovered", dates[0].Kind)
	require.Equal(t, 2025, dates[0].Value.Year())
	require.Equal(t, "occurred", dates[1].Kind)
	require.Equal(t, 2024, dates[1].Value.Year())
}
