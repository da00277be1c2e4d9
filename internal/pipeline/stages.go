package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
)

// Explore fetches a source entry page and asks the backend for candidate
// detail URLs. A fetch failure ends the source run with zero candidates.
func Explore(ctx context.Context, fetcher PageFetcher, gen Generator, entryURL string, cap int) (ExploreOutput, error) {
	page, err := fetcher.GetPage(ctx, entryURL)
	if err != nil {
		return ExploreOutput{}, fmt.Errorf("explore fetch %s: %w", entryURL, err)
	}

	prompt := fmt.Sprintf(
		"You are scanning a vehicle dealership listing page. "+
			"Return JSON {\"items\":[{\"url\":string,\"title\":string,\"price\":number,\"opportunity\":string}],\"has_more_pages\":bool} "+
			"with up to %d listing detail URLs found on the page. Absolute URLs only.\n\nPage URL: %s\n\nPage content:\n%s",
		cap, entryURL, clip(page),
	)

	var out ExploreOutput
	if err := gen.Generate(ctx, prompt, &out); err != nil {
		return ExploreOutput{}, fmt.Errorf("explore inference: %w", err)
	}

	if len(out.Items) > cap {
		out.Items = out.Items[:cap]
	}

	return out, nil
}

// Extract fetches one candidate detail page and asks the backend for the
// structured record
func Extract(ctx context.Context, fetcher PageFetcher, gen Generator, item CandidateItem) (ExtractedRecord, error) {
	page, err := fetcher.GetPage(ctx, item.URL)
	if err != nil {
		return ExtractedRecord{}, fmt.Errorf("extract fetch %s: %w", item.URL, err)
	}

	prompt := fmt.Sprintf(
		"Extract the vehicle listing from this page as JSON "+
			"{\"brand\":string|null,\"model\":string|null,\"condition\":string|null,\"year\":int|null,"+
			"\"price\":number|null,\"mileage\":number|null,\"description\":string|null,"+
			"\"features\":[string],\"image_urls\":[string]}. "+
			"Use null for anything not stated on the page; never guess.\n\nPage URL: %s\n\nPage content:\n%s",
		item.URL, clip(page),
	)

	var rec ExtractedRecord
	if err := gen.Generate(ctx, prompt, &rec); err != nil {
		return ExtractedRecord{}, fmt.Errorf("extract inference: %w", err)
	}

	rec.Normalize()

	return rec, nil
}

// Validate asks the backend to judge one extracted record. Callers fall back
// to FallbackValidate when the response is malformed.
func Validate(ctx context.Context, gen Generator, rec ExtractedRecord) (ValidationOutcome, error) {
	recJSON, err := json.Marshal(rec)
	if err != nil {
		return ValidationOutcome{}, fmt.Errorf("marshal record: %w", err)
	}

	prompt := fmt.Sprintf(
		"Judge this extracted vehicle listing record. Return JSON "+
			"{\"is_valid\":bool,\"completeness\":0..1,\"accuracy\":0..1,\"consistency\":0..1,"+
			"\"is_duplicate\":bool,\"issues\":[string]}. "+
			"A record missing brand, model, year or price is invalid.\n\nRecord:\n%s",
		recJSON,
	)

	var out ValidationOutcome
	if err := gen.Generate(ctx, prompt, &out); err != nil {
		return ValidationOutcome{}, fmt.Errorf("validate inference: %w", err)
	}

	// Quality score is derived from the sub-scores, never trusted verbatim
	out.QualityScore = scoreFromParts(out.Completeness, out.Accuracy, out.Consistency)

	// Required-field invariant holds no matter what the backend said
	if missing := rec.MissingRequired(); len(missing) > 0 {
		out.IsValid = false
		for _, m := range missing {
			out.Issues = append(out.Issues, "missing required field: "+m)
		}
	}

	return out, nil
}

const maxPromptPageBytes = 48 * 1024

// clip bounds page content embedded in prompts
func clip(page []byte) string {
	if len(page) > maxPromptPageBytes {
		page = page[:maxPromptPageBytes]
	}
	return string(page)
}
