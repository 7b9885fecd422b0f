// Package embedder turns batches of text into unit-normalized vectors.
//
// A Service prefers a local encoder (an Ollama-served model) and falls back
// to a remote OpenAI-compatible provider. Fallback is decided per sub-batch:
// a batch of 500 texts with a batch size of 64 makes eight backend calls, and
// only the sub-batches whose local call failed are re-sent to the remote
// provider. A sub-batch is always answered by exactly one backend.
//
// # Basic Usage
//
//	svc, err := embedder.New(ctx, embedder.Config{
//	    PreferLocal: true,
//	    APIKey:      os.Getenv("OPENAI_API_KEY"),
//	}, logger)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	vecs, err := svc.Embed(ctx, []string{"What is LedgerMind?"})
//
// Every returned vector has Euclidean norm 1 regardless of backend, so cosine
// similarity is a plain dot product (see Dot).
//
// # Providers
//
// LocalEncoder and RemoteProvider are the two ports. The concrete adapters
// wrap eino embedding components:
//
//   - NewOllamaEncoder: local model through an Ollama server
//   - NewOpenAIRemote: hosted model through an OpenAI-compatible API
//
// Tests and callers may supply their own implementations through WithLocal
// and WithRemote.
//
// The local encoder is constructed lazily, exactly once per Service, on the
// first Embed call. A construction error is remembered and every later
// sub-batch goes straight to the remote provider.
//
// # Retries
//
// Remote calls carry a per-request timeout and are retried with exponential
// backoff (RetryConfig). Only a remote failure after all retries is returned
// to the caller, wrapped in ErrProviderFailed.
//
// # Caching
//
// Vectors are cached in an LRU keyed by backend, model and the SHA-256 of
// the text. Cached vectors are copied on the way in and out.
//
// # Telemetry
//
// Every backend call is reported to an Observer with its backend name,
// batch size, duration and error. The default observer is the telemetry
// package recorder.
package embedder
