// Package logging provides structured logging for agentkb.
//
// Logger wraps Zap with:
//   - a Trace level (-2, below Debug)
//   - stdout output with an optional OpenTelemetry bridge core
//   - context field injection (trace_id, span_id, session.id, request.id)
//   - secret redaction by field name and value pattern
//   - level-aware sampling (errors never sampled)
//
// Library packages (embeddings, vectorstore, knowledge, storage) accept a
// plain *zap.Logger; pass Logger.Underlying() to them.
//
// Usage:
//
//	logger, err := logging.NewLogger(logging.NewDefaultConfig(), nil)
//	if err != nil {
//	    return err
//	}
//	defer logger.Sync()
//
//	ctx = logging.WithSessionID(ctx, sessionID)
//	logger.Info(ctx, "run completed", zap.Duration("duration", d))
//
// Tests use NewTestLogger and its Assert helpers.
package logging
