package pipeline

import "sync"

// RunLog keeps the most recent run reports in memory for the status API.
type RunLog struct {
	mu      sync.RWMutex
	reports []RunReport
	limit   int
}

// NewRunLog builds a RunLog retaining up to limit reports.
func NewRunLog(limit int) *RunLog {
	if limit <= 0 {
		limit = 50
	}
	return &RunLog{limit: limit}
}

// Add appends a report, evicting the oldest past the retention limit.
func (l *RunLog) Add(report RunReport) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.reports = append(l.reports, report)
	if len(l.reports) > l.limit {
		l.reports = l.reports[len(l.reports)-l.limit:]
	}
}

// Recent returns the retained reports, newest last.
func (l *RunLog) Recent() []RunReport {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]RunReport, len(l.reports))
	copy(out, l.reports)
	return out
}
