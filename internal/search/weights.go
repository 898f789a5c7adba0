package search

// selectWeights implements the adaptive weight-selection table (§4.8),
// keyed on whether vector hits are present and on query shape. Explicit
// modes (fts/vector/image) override the table entirely.
func selectWeights(mode Mode, hasClip, hasText, isQuoted, isLong bool) Weights {
	switch mode {
	case ModeFTS:
		return Weights{0, 1, 0}
	case ModeVector:
		if hasClip {
			return Weights{1, 0, 0}
		}
		if hasText {
			return Weights{0, 0, 1}
		}
		return Weights{0, 1, 0}
	case ModeImage:
		return Weights{1, 0, 0}
	}

	switch {
	case hasClip && hasText && isQuoted:
		return Weights{0.1, 0.8, 0.1}
	case hasClip && hasText && isLong:
		return Weights{0.6, 0.1, 0.3}
	case hasClip && hasText:
		return Weights{0.5, 0.2, 0.3}
	case hasText && isQuoted:
		return Weights{0.0, 0.8, 0.2}
	case hasText && isLong:
		return Weights{0.0, 0.2, 0.8}
	case hasText:
		return Weights{0.0, 0.4, 0.6}
	case hasClip && isQuoted:
		return Weights{0.1, 0.9, 0.0}
	case hasClip && isLong:
		return Weights{0.8, 0.2, 0.0}
	case hasClip:
		return Weights{0.7, 0.3, 0.0}
	default:
		return Weights{0.0, 1.0, 0.0}
	}
}
