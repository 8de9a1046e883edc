package modelclient

import (
	"context"

	"github.com/ragcore/ragcore/internal/obs"
	"github.com/ragcore/ragcore/pkg/fn"
	"github.com/ragcore/ragcore/pkg/resilience"
)

// ResilienceOpts configures the breaker, limiter and retry wrapping
// applied uniformly to every backend client.
type ResilienceOpts struct {
	Breaker resilience.BreakerOpts
	Limiter struct {
		RatePerSecond float64
		Burst         int
	}
	Retry fn.RetryOpts
	// Backend labels RecordModelCall datapoints, e.g. "anthropic", "ollama".
	Backend string
	Metrics *obs.Metrics
}

// DefaultResilienceOpts holds conservative circuit breaker and retry
// defaults, with a 5 req/s, burst-2 per-client limiter.
var DefaultResilienceOpts = ResilienceOpts{
	Breaker: resilience.DefaultBreakerOpts,
	Retry:   fn.DefaultRetry,
}

func init() {
	DefaultResilienceOpts.Limiter.RatePerSecond = 5
	DefaultResilienceOpts.Limiter.Burst = 2
}

// ResilientEmbedder wraps an Embedder with rate limiting, circuit
// breaking and retry. Every failed call is retried up to Retry.MaxAttempts;
// errors are not classified, so permanent failures are retried as well.
type ResilientEmbedder struct {
	inner   Embedder
	limiter *ConcurrencyLimiter
	breaker *resilience.Breaker
	retry   fn.RetryOpts
	backend string
	metrics *obs.Metrics
}

// WrapEmbedder decorates inner with the resilience stack described by opts.
func WrapEmbedder(inner Embedder, opts ResilienceOpts) *ResilientEmbedder {
	return &ResilientEmbedder{
		inner:   inner,
		limiter: NewConcurrencyLimiter(opts.Limiter.RatePerSecond, opts.Limiter.Burst),
		breaker: resilience.NewBreaker(opts.Breaker),
		retry:   opts.Retry,
		backend: opts.Backend,
		metrics: opts.Metrics,
	}
}

// EmbedBatch implements Embedder.
func (r *ResilientEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	result := fn.Retry(ctx, r.retry, func(ctx context.Context) fn.Result[[][]float32] {
		return resilience.CallResult(r.breaker, ctx, func(ctx context.Context) fn.Result[[][]float32] {
			return fn.FromPair(r.inner.EmbedBatch(ctx, texts))
		})
	})
	out, err := result.Unwrap()
	r.metrics.RecordModelCall(ctx, r.backend, "embed", err)
	return out, err
}

// ResilientLLM wraps an LLMClient with rate limiting and circuit breaking.
// Streaming calls are not retried (a partially-consumed stream cannot be
// safely replayed); Complete calls are retried on any failure, transient
// or not.
type ResilientLLM struct {
	inner   LLMClient
	limiter *ConcurrencyLimiter
	breaker *resilience.Breaker
	retry   fn.RetryOpts
	backend string
	metrics *obs.Metrics
}

// WrapLLM decorates inner with the resilience stack described by opts.
func WrapLLM(inner LLMClient, opts ResilienceOpts) *ResilientLLM {
	return &ResilientLLM{
		inner:   inner,
		limiter: NewConcurrencyLimiter(opts.Limiter.RatePerSecond, opts.Limiter.Burst),
		breaker: resilience.NewBreaker(opts.Breaker),
		retry:   opts.Retry,
		backend: opts.Backend,
		metrics: opts.Metrics,
	}
}

// Complete implements LLMClient.
func (r *ResilientLLM) Complete(ctx context.Context, msgs []Message, opts CompletionOpts) (CompletionResult, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return CompletionResult{}, err
	}
	result := fn.Retry(ctx, r.retry, func(ctx context.Context) fn.Result[CompletionResult] {
		return resilience.CallResult(r.breaker, ctx, func(ctx context.Context) fn.Result[CompletionResult] {
			return fn.FromPair(r.inner.Complete(ctx, msgs, opts))
		})
	})
	out, err := result.Unwrap()
	r.metrics.RecordModelCall(ctx, r.backend, "complete", err)
	return out, err
}

// CompleteStream implements LLMClient. The circuit breaker observes
// whether the stream could be established at all; mid-stream errors
// surface as a TokenChunk with Finish=FinishError instead of tripping
// the breaker a second time.
func (r *ResilientLLM) CompleteStream(ctx context.Context, msgs []Message, opts CompletionOpts) (<-chan TokenChunk, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	result := resilience.CallResult(r.breaker, ctx, func(ctx context.Context) fn.Result[<-chan TokenChunk] {
		return fn.FromPair(r.inner.CompleteStream(ctx, msgs, opts))
	})
	out, err := result.Unwrap()
	r.metrics.RecordModelCall(ctx, r.backend, "complete_stream", err)
	return out, err
}

// ResilientReranker wraps a Reranker with rate limiting and circuit
// breaking; callers are expected to fall back to FallbackOrder on error.
type ResilientReranker struct {
	inner   Reranker
	limiter *ConcurrencyLimiter
	breaker *resilience.Breaker
	backend string
	metrics *obs.Metrics
}

// WrapReranker decorates inner with the resilience stack described by opts.
func WrapReranker(inner Reranker, opts ResilienceOpts) *ResilientReranker {
	return &ResilientReranker{
		inner:   inner,
		limiter: NewConcurrencyLimiter(opts.Limiter.RatePerSecond, opts.Limiter.Burst),
		breaker: resilience.NewBreaker(opts.Breaker),
		backend: opts.Backend,
		metrics: opts.Metrics,
	}
}

// Rerank implements Reranker.
func (r *ResilientReranker) Rerank(ctx context.Context, query string, passages []string, topK int) ([]Scored, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	result := resilience.CallResult(r.breaker, ctx, func(ctx context.Context) fn.Result[[]Scored] {
		return fn.FromPair(r.inner.Rerank(ctx, query, passages, topK))
	})
	out, err := result.Unwrap()
	r.metrics.RecordModelCall(ctx, r.backend, "rerank", err)
	return out, err
}

// ResilientVisionLanguage wraps a VisionLanguageClient with rate limiting,
// circuit breaking and retry. Every failed call is retried; errors are not
// classified, so permanent failures are retried as well.
type ResilientVisionLanguage struct {
	inner   VisionLanguageClient
	limiter *ConcurrencyLimiter
	breaker *resilience.Breaker
	retry   fn.RetryOpts
	backend string
	metrics *obs.Metrics
}

// WrapVisionLanguage decorates inner with the resilience stack described by opts.
func WrapVisionLanguage(inner VisionLanguageClient, opts ResilienceOpts) *ResilientVisionLanguage {
	return &ResilientVisionLanguage{
		inner:   inner,
		limiter: NewConcurrencyLimiter(opts.Limiter.RatePerSecond, opts.Limiter.Burst),
		breaker: resilience.NewBreaker(opts.Breaker),
		retry:   opts.Retry,
		backend: opts.Backend,
		metrics: opts.Metrics,
	}
}

// DescribeImage implements VisionLanguageClient.
func (r *ResilientVisionLanguage) DescribeImage(ctx context.Context, image []byte, prompt string) (string, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return "", err
	}
	result := fn.Retry(ctx, r.retry, func(ctx context.Context) fn.Result[string] {
		return resilience.CallResult(r.breaker, ctx, func(ctx context.Context) fn.Result[string] {
			return fn.FromPair(r.inner.DescribeImage(ctx, image, prompt))
		})
	})
	out, err := result.Unwrap()
	r.metrics.RecordModelCall(ctx, r.backend, "vision_describe", err)
	return out, err
}
