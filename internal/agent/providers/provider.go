package providers

import (
	"time"

	"go.uber.org/zap"

	"github.com/ibeckermayer/rina/internal/store"
)

// Options are the sampling parameters shared by every provider.
type Options struct {
	Model       string
	Temperature float64
	MaxTokens   int
	BaseURL     string // empty uses the provider default
}

// Recorder persists prompt/response pairs for debugging.
// *store.ExchangeCache satisfies it.
type Recorder interface {
	Record(exchange store.LLMExchange) (string, error)
}

// record saves an exchange when a recorder is configured. Failures are
// logged and never fail the completion.
func record(rec Recorder, log *zap.SugaredLogger, exchange store.LLMExchange) {
	if rec == nil {
		return
	}
	exchange.Timestamp = time.Now()
	if path, err := rec.Record(exchange); err != nil {
		log.Warnw("failed to cache LLM exchange", "error", err)
	} else {
		log.Debugw("cached LLM exchange", "path", path)
	}
}
