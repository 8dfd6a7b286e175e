package domain

import "errors"

var (
	// ErrIndexUnavailable signals that no index snapshot is loaded.
	ErrIndexUnavailable = errors.New("index unavailable")
	// ErrEmptyCorpus signals a loaded index with zero entries.
	ErrEmptyCorpus = errors.New("empty corpus")
	// ErrNoEvidence signals that retrieval produced too little grounding to draft from.
	ErrNoEvidence = errors.New("no evidence")
	// ErrCorpusMisaligned signals a vector/metadata identifier mismatch at load time.
	ErrCorpusMisaligned = errors.New("corpus misaligned")
	// ErrEncoderMismatch signals that the query-time embedding configuration differs
	// from the one recorded at index-build time.
	ErrEncoderMismatch = errors.New("encoder mismatch")
	// ErrUpstreamUnavailable signals a failed classifier or language-model call.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	// ErrCitationsAltered signals that a polish pass modified the citation list.
	ErrCitationsAltered = errors.New("citations altered by polish")
)
