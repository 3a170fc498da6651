package embeddings

// Outcome is the result of one trained model call: either the vectors it
// produced or the reason it failed. Callers branch on OK to decide whether
// to use the fallback.
type Outcome struct {
	vectors [][]float32
	reason  error
}

// Succeeded wraps vectors returned by the model.
func Succeeded(vectors [][]float32) Outcome {
	return Outcome{vectors: vectors}
}

// Failed wraps the reason a model call failed. A nil reason is replaced by
// ErrEmbeddingFailed so a failed Outcome always carries an error.
func Failed(reason error) Outcome {
	if reason == nil {
		reason = ErrEmbeddingFailed
	}
	return Outcome{reason: reason}
}

// OK reports whether the call succeeded.
func (o Outcome) OK() bool {
	return o.reason == nil
}

// Vectors returns the model output; nil when the call failed.
func (o Outcome) Vectors() [][]float32 {
	return o.vectors
}

// Reason returns why the call failed; nil when it succeeded.
func (o Outcome) Reason() error {
	return o.reason
}
