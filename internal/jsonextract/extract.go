// Package jsonextract recovers JSON values from free-form model output.
package jsonextract

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/kaptinlin/jsonrepair"

	apperrors "github.com/rajpdus/meeting-sidekick/internal/errors"
)

// ErrNotFound means the content held no delimited JSON value.
var ErrNotFound = errors.New("no JSON value found")

// Extractor parses model replies. With Repair set, a syntactically broken
// candidate gets one more attempt after jsonrepair.
type Extractor struct {
	Repair bool
}

// Object decodes the JSON object in content into v.
func (e Extractor) Object(content string, v any) error {
	return e.decode(content, '{', '}', v)
}

// Array decodes the JSON array in content into v.
func (e Extractor) Array(content string, v any) error {
	return e.decode(content, '[', ']', v)
}

// decode tries the whole reply first, then the span from the first open
// delimiter to the last close delimiter.
func (e Extractor) decode(content string, openDelim, closeDelim byte, v any) error {
	trimmed := strings.TrimSpace(content)
	if strings.HasPrefix(trimmed, string(openDelim)) && strings.HasSuffix(trimmed, string(closeDelim)) {
		if err := json.Unmarshal([]byte(trimmed), v); err == nil {
			return nil
		}
	}

	start := strings.IndexByte(content, openDelim)
	end := strings.LastIndexByte(content, closeDelim)
	if start < 0 || end <= start {
		return apperrors.Wrap(ErrNotFound, apperrors.CodeLLMInvalidResponse, "parse model reply")
	}
	candidate := content[start : end+1]

	err := json.Unmarshal([]byte(candidate), v)
	if err == nil {
		return nil
	}
	var syntaxErr *json.SyntaxError
	if e.Repair && errors.As(err, &syntaxErr) {
		fixed, rerr := jsonrepair.JSONRepair(candidate)
		if rerr == nil {
			if err = json.Unmarshal([]byte(fixed), v); err == nil {
				return nil
			}
		}
	}
	return apperrors.Wrap(err, apperrors.CodeLLMInvalidResponse, "parse model reply")
}
