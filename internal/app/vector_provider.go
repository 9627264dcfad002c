package app

import (
	"fmt"

	"github.com/mnemos-app/mnemos-backend/internal/platform/logger"
	"github.com/mnemos-app/mnemos-backend/internal/platform/vectorindex"
	"github.com/mnemos-app/mnemos-backend/internal/platform/vectorindex/pinecone"
	"github.com/mnemos-app/mnemos-backend/internal/platform/vectorindex/qdrant"
)

// resolveVectorIndex builds the configured vector index, or nil when the
// provider is disabled. The linker degrades to its recent-entries fallback
// on a nil index.
func resolveVectorIndex(provider string, log *logger.Logger) (vectorindex.Index, error) {
	switch provider {
	case "disabled", "":
		log.Warn("Vector provider disabled; linking will use the recent-entries fallback")
		return nil, nil
	case "qdrant":
		cfg := qdrant.ResolveConfigFromEnv()
		idx, err := qdrant.New(log, cfg)
		if err != nil {
			return nil, fmt.Errorf("qdrant bootstrap: %w", err)
		}
		return idx, nil
	case "pinecone":
		cfg := pinecone.ResolveConfigFromEnv()
		idx, err := pinecone.New(log, cfg)
		if err != nil {
			return nil, fmt.Errorf("pinecone bootstrap: %w", err)
		}
		return idx, nil
	default:
		return nil, fmt.Errorf("unknown vector provider %q", provider)
	}
}
