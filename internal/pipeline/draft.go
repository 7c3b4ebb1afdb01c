package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/ppiankov/bluebridge/internal/model"
	"github.com/ppiankov/bluebridge/internal/validate"
)

// DraftFile is a stored generator draft plus what it is checked against.
// Files without a "draft" key are treated as raw generator output.
type DraftFile struct {
	// Draft is either the draft object or the raw output as a string
	Draft       json.RawMessage `json:"draft"`
	Context     any             `json:"context,omitempty"`
	Category    string          `json:"category,omitempty"`
	AllowedDOIs []string        `json:"allowed_dois,omitempty"`
	Hops        int             `json:"hops,omitempty"`
}

// ValidateFile validates a draft stored on disk
func (p *Pipeline) ValidateFile(ctx context.Context, path string) (*model.QueryResponse, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read draft: %w", err)
	}

	var df DraftFile
	if err := json.Unmarshal(data, &df); err != nil || len(bytes.TrimSpace(df.Draft)) == 0 {
		return p.validator.ValidateRaw(ctx, string(data), validate.Input{}), nil
	}

	raw := string(df.Draft)
	var text string
	if err := json.Unmarshal(df.Draft, &text); err == nil {
		raw = text
	}

	return p.validator.ValidateRaw(ctx, raw, validate.Input{
		Context:     df.Context,
		Category:    df.Category,
		AllowedDOIs: df.AllowedDOIs,
		Hops:        df.Hops,
	}), nil
}
