package bedrock

import (
	"strings"

	"github.com/corenexus/llmfabric/model"
)

var regionPrefixes = []string{"us.", "eu.", "apac.", "global."}

// stripRegionPrefix removes one leading cross-region inference prefix
// (us., eu., apac., global.) from a Bedrock model identifier, if present.
func stripRegionPrefix(modelID string) string {
	for _, p := range regionPrefixes {
		if strings.HasPrefix(modelID, p) {
			return modelID[len(p):]
		}
	}
	return modelID
}

// capabilitiesForModel derives a conservative capability set for a Bedrock
// model identifier by substring-matching its known family name after
// stripping any region prefix. Unknown families get the conservative
// default: text and tools only, no vision, no structured output.
func capabilitiesForModel(modelID string) model.Capabilities {
	id := strings.ToLower(stripRegionPrefix(modelID))
	switch {
	case strings.Contains(id, "claude"):
		return model.Capabilities{
			SupportsTemperature:      true,
			SupportsTools:            true,
			SupportsVision:           true,
			SupportsStructuredOutput: false,
			SupportsSystemMessage:    true,
		}
	case strings.Contains(id, "nova"):
		return model.Capabilities{
			SupportsTemperature:      true,
			SupportsTools:            true,
			SupportsVision:           true,
			SupportsStructuredOutput: false,
			SupportsSystemMessage:    true,
		}
	case strings.Contains(id, "llama"):
		return model.Capabilities{
			SupportsTemperature:      true,
			SupportsTools:            true,
			SupportsVision:           false,
			SupportsStructuredOutput: false,
			SupportsSystemMessage:    true,
		}
	case strings.Contains(id, "mistral"):
		return model.Capabilities{
			SupportsTemperature:      true,
			SupportsTools:            true,
			SupportsVision:           false,
			SupportsStructuredOutput: false,
			SupportsSystemMessage:    true,
		}
	default:
		return model.Capabilities{
			SupportsTemperature:      true,
			SupportsTools:            true,
			SupportsVision:           false,
			SupportsStructuredOutput: false,
			SupportsSystemMessage:    true,
		}
	}
}

// isNovaModel reports whether modelID (after stripping a region prefix)
// refers to an Amazon Nova family model. Nova models do not support
// tool-level cache checkpoints.
func isNovaModel(modelID string) bool {
	return strings.HasPrefix(stripRegionPrefix(modelID), "amazon.nova-")
}
