package entity

import (
	"time"

	"github.com/google/uuid"

	"github.com/femi-ajayi/transfer-extractor/constants"
)

// ExtractionAttempt records one backend invocation. Attempts exist for
// decision-making and diagnostics within a single orchestration call; they
// are not persisted.
type ExtractionAttempt struct {
	Backend    string                  `json:"backend"`
	Role       string                  `json:"role"` // primary | secondary
	Data       ExtractedBankData       `json:"data"`
	Status     constants.AttemptStatus `json:"status"`
	DurationMs int64                   `json:"duration_ms"`
	ErrorCode  string                  `json:"error_code,omitempty"`
	Error      string                  `json:"error,omitempty"`
}

// Succeeded reports whether the attempt produced a usable result.
func (a ExtractionAttempt) Succeeded() bool {
	return a.Status == constants.AttemptStatusOK
}

// ExtractionMetadata carries the diagnostics for one orchestration call as
// an explicit value, returned alongside the result instead of being hidden
// on it.
type ExtractionMetadata struct {
	RequestID        uuid.UUID                     `json:"request_id"`
	ImageRef         string                        `json:"image_ref,omitempty"`
	States           []constants.OrchestratorState `json:"states"`
	Attempts         []ExtractionAttempt           `json:"attempts"`
	Winner           string                        `json:"winner,omitempty"` // role of the winning attempt
	CompareReason    string                        `json:"compare_reason,omitempty"`
	BankCorrected    bool                          `json:"bank_corrected"`
	OriginalBankName string                        `json:"original_bank_name,omitempty"`
	CacheHit         bool                          `json:"cache_hit"`
	SimilarAccount   string                        `json:"similar_account,omitempty"`
	AcquireError     string                        `json:"acquire_error,omitempty"`
	StartedAt        time.Time                     `json:"started_at"`
	FinishedAt       time.Time                     `json:"finished_at"`
	DurationMs       int64                         `json:"duration_ms"`
}

// ExtractionOutcome is the {result, metadata} pair every extraction path
// returns.
type ExtractionOutcome struct {
	Result   ExtractedBankData  `json:"result"`
	Metadata ExtractionMetadata `json:"metadata"`
}
