package pipeline

// fallbackScore is the mid-range sub-score assumed when the backend's
// validation response is unusable
const fallbackScore = 0.5

// FallbackValidate is the deterministic rule-based outcome used when the
// Validate stage's response cannot be parsed. It checks required-field
// presence and assigns mid-range scores so a malformed upstream response
// never silently drops a record.
func FallbackValidate(rec ExtractedRecord) ValidationOutcome {
	out := ValidationOutcome{
		IsValid:      true,
		Completeness: fallbackScore,
		Accuracy:     fallbackScore,
		Consistency:  fallbackScore,
		QualityScore: scoreFromParts(fallbackScore, fallbackScore, fallbackScore),
		Issues:       []string{"validator fallback: upstream response unusable"},
	}

	if missing := rec.MissingRequired(); len(missing) > 0 {
		out.IsValid = false
		for _, m := range missing {
			out.Issues = append(out.Issues, "missing required field: "+m)
		}
	}

	return out
}
