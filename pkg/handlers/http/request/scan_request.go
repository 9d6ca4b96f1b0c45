package request

import (
	"encoding/json"
	"fmt"
)

const maxScanContextLength = 64

// ScanRequest carries arbitrary JSON input; objects and arrays are walked
// by the scanner the same way an intercepted JSON body is.
type ScanRequest struct {
	SourceID string          `json:"source_id"`
	Input    json.RawMessage `json:"input"`
	Context  string          `json:"context"`
}

func (r *ScanRequest) Validate() error {
	if r.SourceID == "" {
		return fmt.Errorf("source_id is required")
	}
	if len(r.Input) == 0 {
		return fmt.Errorf("input is required")
	}
	if r.Context == "" {
		r.Context = "api"
	}
	if len(r.Context) > maxScanContextLength {
		return fmt.Errorf("context must be at most %d characters", maxScanContextLength)
	}
	return nil
}

// ScanInput returns the input as the scanner expects it: JSON strings are
// unwrapped, everything else is passed as raw JSON bytes.
func (r *ScanRequest) ScanInput() any {
	var s string
	if err := json.Unmarshal(r.Input, &s); err == nil {
		return s
	}
	return []byte(r.Input)
}
