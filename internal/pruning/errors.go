package pruning

import "errors"

var (
	// ErrNodeNotFound means a node evaluator was requested for an id that the
	// model analysis does not contain. The analysis documents are mismatched.
	ErrNodeNotFound = errors.New("node not found in model analysis")

	// ErrUnknownNode means an override referenced an id that is not one of the
	// evaluator's prunable nodes.
	ErrUnknownNode = errors.New("unknown prunable node")

	// ErrInvalidSettings wraps every Settings validation failure.
	ErrInvalidSettings = errors.New("invalid pruning settings")
)
