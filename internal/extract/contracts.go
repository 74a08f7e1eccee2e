package extract

import (
	"context"

	"github.com/femi-ajayi/transfer-extractor/internal/entity"
	"github.com/femi-ajayi/transfer-extractor/internal/imaging"
)

// Request is one backend invocation: the screenshot plus optional steering.
// Seed carries the primary result into the secondary call for
// confirm-or-override; Context carries prompt guidance from the adapter.
type Request struct {
	Image   *imaging.Image
	Seed    *entity.ExtractedBankData
	Context *entity.PromptContext
}

// Backend is an opaque remote recognition service that turns a screenshot
// into a structured extraction guess. Implementations must honor ctx
// cancellation; the orchestrator owns the deadlines. The raw response bytes
// come back for diagnostics.
type Backend interface {
	Name() string
	Recognize(ctx context.Context, req Request) (entity.ExtractedBankData, []byte, error)
}

// BankNameCorrector maps raw bank-name text to a canonical name.
type BankNameCorrector interface {
	Correct(raw string) (string, bool)
}

// ContextBuilder assembles prompt guidance for context-aware backends.
type ContextBuilder interface {
	BuildContext(bankNameHint string) entity.PromptContext
}
