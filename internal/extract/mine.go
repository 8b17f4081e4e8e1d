package extract

import (
	"github.com/BD4L/breachwatch/internal/pipeline"
)

// Mine runs every field extraction over the document text and bundles the
// results for the orchestrator. When full is false the latency-heavy
// narrative and timeline extractions are skipped (the enhanced tier).
func (f *FieldExtractor) Mine(text string, full bool) pipeline.FieldsResult {
	out := pipeline.FieldsResult{}

	count := f.AffectedCount(text)
	out.AffectedCount = count.Value
	out.CountRef = count.Ref

	cats := f.DataCategories(text)
	out.Categories = cats.Values
	out.CategoriesRef = cats.Ref

	if !full {
		return out
	}

	narrative := f.Narrative(text)
	out.Narrative = narrative.Value
	out.NarrativeRef = narrative.Ref

	for _, d := range f.TimelineDates(text) {
		d := d
		switch d.Kind {
		case "discovered":
			out.DiscoveredDate = &d.Value
		case "occurred":
			out.OccurredDate = &d.Value
		}
	}
	return out
}
