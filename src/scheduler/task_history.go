package scheduler

import "time"

// historySize is how many runs each task remembers
const historySize = 20

// TaskRun represents a single execution of a task
type TaskRun struct {
	StartTime time.Time `json:"start_time"`
	// milliseconds
	Duration int64 `json:"duration_ms"`
	// "success", "error"
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// TaskInfo provides detailed information about a task
type TaskInfo struct {
	Name         string     `json:"name"`
	Schedule     string     `json:"schedule"`
	Enabled      bool       `json:"enabled"`
	Running      bool       `json:"running"`
	NextRun      *time.Time `json:"next_run,omitempty"`
	LastRun      *TaskRun   `json:"last_run,omitempty"`
	Recent       []TaskRun  `json:"recent_runs,omitempty"`
	RunCount     int        `json:"run_count"`
	SuccessCount int        `json:"success_count"`
	ErrorCount   int        `json:"error_count"`
}

// runHistory keeps counters for the life of the process and the last few
// runs. Callers hold the owning task's lock.
type runHistory struct {
	runs      []TaskRun
	total     int
	successes int
	failures  int
}

func (h *runHistory) record(run TaskRun) {
	h.total++
	if run.Status == "success" {
		h.successes++
	} else {
		h.failures++
	}

	h.runs = append(h.runs, run)
	if over := len(h.runs) - historySize; over > 0 {
		h.runs = append(h.runs[:0:0], h.runs[over:]...)
	}
}

func (h *runHistory) fill(info *TaskInfo) {
	info.RunCount = h.total
	info.SuccessCount = h.successes
	info.ErrorCount = h.failures

	if n := len(h.runs); n > 0 {
		last := h.runs[n-1]
		info.LastRun = &last

		info.Recent = make([]TaskRun, 0, n)
		for i := n - 1; i >= 0; i-- {
			info.Recent = append(info.Recent, h.runs[i])
		}
	}
}
