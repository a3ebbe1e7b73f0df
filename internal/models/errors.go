package models

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	ErrProviderTimeout       = errors.New("provider timeout")
	ErrProviderError         = errors.New("provider error")
	ErrEmptyResponse         = errors.New("empty response")
	ErrNoMentionData         = errors.New("no mention data")
	ErrInvalidCompetitorName = errors.New("invalid competitor name")
	ErrCompetitorNotFound    = errors.New("competitor not found")
	ErrSnapshotWriteConflict = errors.New("snapshot write conflict")
	ErrSnapshotOutOfOrder    = errors.New("snapshot out of order")
	ErrBrandNotFound         = errors.New("brand not found")
	ErrNoSnapshots           = errors.New("brand has not been analyzed")
	ErrAllPromptsFailed      = errors.New("all prompts failed")
	ErrFetchFailed           = errors.New("page fetch failed")
	ErrEvaluationFailed      = errors.New("factor evaluation failed")
	ErrInvalidInput          = errors.New("invalid input")
)

type errorInfo struct {
	code   string
	status int
}

// Ordered so that the most specific sentinel wins when an error wraps several
var errorTable = []struct {
	err  error
	info errorInfo
}{
	{ErrAllPromptsFailed, errorInfo{"ALL_PROMPTS_FAILED", http.StatusBadGateway}},
	{ErrProviderTimeout, errorInfo{"PROVIDER_TIMEOUT", http.StatusGatewayTimeout}},
	{ErrProviderError, errorInfo{"PROVIDER_ERROR", http.StatusBadGateway}},
	{ErrEmptyResponse, errorInfo{"EMPTY_RESPONSE", http.StatusBadGateway}},
	{ErrNoMentionData, errorInfo{"NO_MENTION_DATA", http.StatusOK}},
	{ErrInvalidCompetitorName, errorInfo{"INVALID_COMPETITOR_NAME", http.StatusBadRequest}},
	{ErrCompetitorNotFound, errorInfo{"COMPETITOR_NOT_FOUND", http.StatusNotFound}},
	{ErrSnapshotWriteConflict, errorInfo{"SNAPSHOT_WRITE_CONFLICT", http.StatusConflict}},
	{ErrSnapshotOutOfOrder, errorInfo{"SNAPSHOT_OUT_OF_ORDER", http.StatusConflict}},
	{ErrBrandNotFound, errorInfo{"BRAND_NOT_FOUND", http.StatusNotFound}},
	{ErrNoSnapshots, errorInfo{"NO_SNAPSHOTS", http.StatusNotFound}},
	{ErrFetchFailed, errorInfo{"FETCH_FAILED", http.StatusBadGateway}},
	{ErrEvaluationFailed, errorInfo{"EVALUATION_FAILED", http.StatusBadGateway}},
	{ErrInvalidInput, errorInfo{"INVALID_INPUT", http.StatusBadRequest}},
}

// ErrorCode maps an error to its machine-readable code and HTTP status
func ErrorCode(err error) (string, int) {
	for _, e := range errorTable {
		if errors.Is(err, e.err) {
			return e.info.code, e.info.status
		}
	}
	return "INTERNAL", http.StatusInternalServerError
}

// PromptFailure records why a single prompt produced no response
type PromptFailure struct {
	PromptID string `json:"prompt_id"`
	Kind     error  `json:"-"`
	Err      error  `json:"-"`
}

func (f *PromptFailure) Error() string {
	if f.Err == nil {
		return fmt.Sprintf("prompt %s: %v", f.PromptID, f.Kind)
	}
	return fmt.Sprintf("prompt %s: %v: %v", f.PromptID, f.Kind, f.Err)
}

func (f *PromptFailure) Unwrap() []error {
	if f.Err == nil {
		return []error{f.Kind}
	}
	return []error{f.Kind, f.Err}
}

// BatchError is returned when every prompt of a non-empty batch failed
type BatchError struct {
	Failures []*PromptFailure
}

func (e *BatchError) Error() string {
	kinds := make(map[string]int)
	for _, f := range e.Failures {
		kinds[f.Kind.Error()]++
	}
	parts := make([]string, 0, len(kinds))
	for _, k := range []error{ErrProviderTimeout, ErrProviderError, ErrEmptyResponse} {
		if n := kinds[k.Error()]; n > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", n, k))
		}
	}
	return fmt.Sprintf("%v (%d prompts: %s)", ErrAllPromptsFailed, len(e.Failures), strings.Join(parts, ", "))
}

func (e *BatchError) Unwrap() error { return ErrAllPromptsFailed }
