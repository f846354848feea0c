package model

import (
	"fmt"
	"sort"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/Relevance-Feedback-Platform/internal/feedback"
	"github.com/Adithya-Monish-Kumar-K/Relevance-Feedback-Platform/pkg/config"
)

const (
	KindRM3         = "rm3"
	KindRocchio     = "rocchio"
	KindLogLogistic = "loglogistic"
	KindDistill     = "distill"
)

// Params collects the per-model free parameters.
type Params struct {
	LogLogistic LogLogisticParams
	Rocchio     RocchioParams
	Distill     DistillParams
}

func DefaultParams() Params {
	return Params{
		LogLogistic: LogLogisticParams{C: DefaultLogLogisticC},
		Rocchio:     DefaultRocchioParams(),
		Distill:     DefaultDistillParams(),
	}
}

// ParamsFromConfig copies the estimator parameters out of the service
// configuration.
func ParamsFromConfig(c config.FeedbackConfig) Params {
	return Params{
		LogLogistic: LogLogisticParams{C: c.LogLogistic.C},
		Rocchio: RocchioParams{
			Alpha: c.Rocchio.Alpha,
			Beta:  c.Rocchio.Beta,
			Gamma: c.Rocchio.Gamma,
		},
		Distill: DistillParams{
			NonRelevantWeight: c.Distill.NonRelevantWeight,
			CollectionWeight:  c.Distill.CollectionWeight,
			Iterations:        c.Distill.Iterations,
		},
	}
}

// Kinds lists the registered model kinds.
func Kinds() []string {
	kinds := []string{KindRM3, KindRocchio, KindLogLogistic, KindDistill}
	sort.Strings(kinds)
	return kinds
}

// New builds the model named by kind after validating cfg and params.
func New(kind string, analyzer feedback.Analyzer, cfg feedback.Config, params Params, events feedback.Events) (Model, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case KindRM3:
		return NewRM3(analyzer, cfg, events), nil
	case KindRocchio:
		return NewRocchio(analyzer, cfg, params.Rocchio, events), nil
	case KindLogLogistic:
		return NewLogLogistic(analyzer, cfg, params.LogLogistic, events), nil
	case KindDistill:
		if err := params.Distill.Validate(); err != nil {
			return nil, err
		}
		return NewDistill(analyzer, cfg, params.Distill, events), nil
	default:
		return nil, fmt.Errorf("%w: %q (known: %s)", feedback.ErrUnknownModel, kind, strings.Join(Kinds(), ", "))
	}
}
