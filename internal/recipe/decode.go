package recipe

import (
	"encoding/json"
	"fmt"
	"strings"
)

// DecodeSteps turns instruction parser output into step records. Strict JSON
// is tried first, then the text between the first opening and last closing
// bracket, then the field-format reader.
func DecodeSteps(raw string) ([]StepRecord, error) {
	return decodeRecords(raw, "steps", ReadSteps)
}

// DecodeScenes applies the same policy to scene descriptor output.
func DecodeScenes(raw string) ([]SceneRecord, error) {
	return decodeRecords(raw, "scenes", ReadScenes)
}

func decodeRecords[T any](raw, wrapKey string, read func(string) ([]T, error)) ([]T, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, ErrNoParsableOutput
	}

	candidates := []string{trimmed}
	if repaired, ok := bracketSpan(trimmed); ok && repaired != trimmed {
		candidates = append(candidates, repaired)
	}
	for _, c := range candidates {
		if recs, ok := decodeJSONRecords[T](c, wrapKey); ok && len(recs) > 0 {
			return recs, nil
		}
	}

	recs, err := read(trimmed)
	if err != nil || len(recs) == 0 {
		return nil, ErrNoParsableOutput
	}
	return recs, nil
}

// decodeJSONRecords accepts a bare array, an object wrapping the array under
// wrapKey, or a single record object.
func decodeJSONRecords[T any](text, wrapKey string) ([]T, bool) {
	var list []T
	if err := json.Unmarshal([]byte(text), &list); err == nil {
		return list, true
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal([]byte(text), &obj); err != nil {
		return nil, false
	}
	if inner, ok := obj[wrapKey]; ok {
		if err := json.Unmarshal(inner, &list); err != nil {
			return nil, false
		}
		return list, true
	}
	if _, ok := obj["step_number"]; ok {
		var one T
		if err := json.Unmarshal([]byte(text), &one); err != nil {
			return nil, false
		}
		return []T{one}, true
	}
	return nil, false
}

// bracketSpan returns the text from the first '[' or '{' to the last ']' or '}'.
func bracketSpan(s string) (string, bool) {
	start := strings.IndexAny(s, "[{")
	end := strings.LastIndexAny(s, "]}")
	if start < 0 || end <= start {
		return "", false
	}
	return s[start : end+1], true
}

// DecodeParsedRecipe decodes a schema-parsed recipe. When strict decoding
// fails the text between the first '{' and the last '}' is decoded instead.
// No partially populated recipe is ever returned.
func DecodeParsedRecipe(raw, sourceFilename string) (*ParsedRecipe, error) {
	var r ParsedRecipe
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &r); err != nil {
		start := strings.Index(raw, "{")
		end := strings.LastIndex(raw, "}")
		if start < 0 || end <= start {
			return nil, ErrNoValidJSON
		}
		r = ParsedRecipe{}
		if err := json.Unmarshal([]byte(raw[start:end+1]), &r); err != nil {
			return nil, fmt.Errorf("failed to decode recipe: %w", err)
		}
	}
	r.SourceFilename = sourceFilename
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return &r, nil
}
