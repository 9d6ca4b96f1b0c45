package request

import (
	"fmt"

	"github.com/NeuralTrust/TrustSentinel/pkg/domain/honeypot"
)

type DeployHoneypotRequest struct {
	SourceID   string `json:"source_id"`
	Kind       string `json:"kind"`
	Aggressive bool   `json:"aggressive"`
}

func (r *DeployHoneypotRequest) Validate() error {
	if r.SourceID == "" {
		return fmt.Errorf("source_id is required")
	}
	if r.Kind == "" {
		r.Kind = string(honeypot.KindDatabase)
	}
	if _, err := honeypot.ParseKind(r.Kind); err != nil {
		return err
	}
	return nil
}
