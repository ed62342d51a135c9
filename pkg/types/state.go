package types

// ValidDocumentStatuses contains all valid document status values
var ValidDocumentStatuses = []DocumentStatus{
	StatusUploaded,
	StatusNormalizing,
	StatusSegmented,
	StatusEmbedded,
	StatusGraphExtracting,
	StatusDone,
	StatusFailed,
}

// IsValidDocumentStatus checks if the given status is a known document status.
func IsValidDocumentStatus(status DocumentStatus) bool {
	for _, valid := range ValidDocumentStatuses {
		if status == valid {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transitions are allowed out of s.
func (s DocumentStatus) IsTerminal() bool {
	return s == StatusDone || s == StatusFailed
}

// IsValidStatusTransition validates ingestion status transitions.
//
// Valid transitions:
//
//	uploaded -> normalizing
//	normalizing -> segmented
//	segmented -> embedded
//	embedded -> graph_extracting | done
//	graph_extracting -> done
//	any non-terminal -> failed
//	done, failed -> (terminal, no transitions out)
func IsValidStatusTransition(current, next DocumentStatus) bool {
	if current.IsTerminal() || !IsValidDocumentStatus(current) {
		return false
	}
	if next == StatusFailed {
		return true
	}

	switch current {
	case StatusUploaded:
		return next == StatusNormalizing
	case StatusNormalizing:
		return next == StatusSegmented
	case StatusSegmented:
		return next == StatusEmbedded
	case StatusEmbedded:
		return next == StatusGraphExtracting || next == StatusDone
	case StatusGraphExtracting:
		return next == StatusDone
	default:
		return false
	}
}
