// Package capability implements the pre-flight validator that rejects a
// canonical request before it ever reaches a provider's transport.
package capability

import (
	"fmt"

	"github.com/corenexus/llmfabric/model"
)

// Validate checks req against caps and returns a *model.ProviderError with
// kind capabilityNotSupported on the first violation found, in the fixed
// order: temperature, tools, structured output, system message, vision.
// No HTTP call is issued when this returns a non-nil error.
func Validate(req *model.CompletionRequest, caps model.Capabilities) error {
	if req.Config.Temperature != nil && !caps.SupportsTemperature {
		return notSupported("temperature not supported")
	}
	if len(req.Tools) > 0 && !caps.SupportsTools {
		return notSupported("tools not supported")
	}
	if req.OutputSchema != nil && !caps.SupportsStructuredOutput {
		return notSupported("structured output not supported")
	}
	if hasSystemMessage(req) && !caps.SupportsSystemMessage {
		return notSupported("system message not supported")
	}
	if hasImagePart(req) && !caps.SupportsVision {
		return notSupported("vision input not supported")
	}
	return nil
}

func hasSystemMessage(req *model.CompletionRequest) bool {
	for _, m := range req.Messages {
		if m.Role == model.RoleSystem {
			return true
		}
	}
	return false
}

func hasImagePart(req *model.CompletionRequest) bool {
	for _, m := range req.Messages {
		if m.Role != model.RoleUser {
			continue
		}
		for _, p := range m.Parts {
			if _, ok := p.(model.ImagePart); ok {
				return true
			}
		}
	}
	return false
}

func notSupported(detail string) error {
	return model.NewProviderError(model.ErrCapabilityNotSupported, detail, nil)
}

// WithModelName returns a copy of err's detail prefixed with the model
// name, matching the literal form in the testable-properties scenario:
// "temperature not supported by <name>".
func WithModelName(err error, name string) error {
	pe, ok := err.(*model.ProviderError)
	if !ok {
		return err
	}
	return model.NewProviderError(pe.Kind(), fmt.Sprintf("%s by %s", pe.Detail(), name), pe.Unwrap())
}
