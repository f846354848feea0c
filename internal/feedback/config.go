package feedback

import (
	"fmt"

	"github.com/Adithya-Monish-Kumar-K/Relevance-Feedback-Platform/pkg/config"
)

// Config holds the options shared by every estimator. It is a value and is
// never mutated after construction.
type Config struct {
	FbTerms             int
	FbDocs              int
	OriginalQueryWeight float64
	OutputQuery         bool
	RemoveStopwords     bool
	PruneDocTerms       bool
	PruneModel          bool
	Normalize           bool
	// ShortText selects the stopword thresholds tuned for tweet-sized documents.
	ShortText bool
}

// DefaultConfig mirrors the defaults in pkg/config.
func DefaultConfig() Config {
	return Config{
		FbTerms:             10,
		FbDocs:              10,
		OriginalQueryWeight: 0.5,
		RemoveStopwords:     true,
	}
}

// FromConfig copies the feedback options out of the service configuration.
func FromConfig(c config.FeedbackConfig) Config {
	return Config{
		FbTerms:             c.FbTerms,
		FbDocs:              c.FbDocs,
		OriginalQueryWeight: c.OriginalQueryWeight,
		OutputQuery:         c.OutputQuery,
		RemoveStopwords:     c.RemoveStopwords,
		PruneDocTerms:       c.PruneDocTerms,
		PruneModel:          c.PruneModel,
		Normalize:           c.Normalize,
		ShortText:           c.ShortText,
	}
}

func (c Config) Validate() error {
	if c.FbTerms <= 0 {
		return fmt.Errorf("%w: fbTerms must be positive, got %d", ErrInvalidConfig, c.FbTerms)
	}
	if c.FbDocs <= 0 {
		return fmt.Errorf("%w: fbDocs must be positive, got %d", ErrInvalidConfig, c.FbDocs)
	}
	if c.OriginalQueryWeight < 0 || c.OriginalQueryWeight > 1 {
		return fmt.Errorf("%w: originalQueryWeight must be in [0,1], got %g", ErrInvalidConfig, c.OriginalQueryWeight)
	}
	return nil
}
