package domain

// TaskState is the lifecycle of a single addon inside a batch run.
type TaskState string

const (
	TaskFetching    TaskState = "fetching"
	TaskCacheHit    TaskState = "cache_hit"
	TaskDownloading TaskState = "downloading"
	TaskExtracting  TaskState = "extracting"
	TaskDone        TaskState = "done"
	TaskFailed      TaskState = "failed"
)

// Terminal reports whether no further transition is possible.
func (s TaskState) Terminal() bool {
	return s == TaskDone || s == TaskFailed
}

// CanTransition validates a state change. Failed is reachable from anywhere
// that is not already terminal.
func (s TaskState) CanTransition(next TaskState) bool {
	if s.Terminal() {
		return false
	}
	if next == TaskFailed {
		return true
	}

	switch s {
	case TaskFetching:
		return next == TaskCacheHit || next == TaskDownloading
	case TaskCacheHit, TaskDownloading:
		return next == TaskExtracting
	case TaskExtracting:
		return next == TaskDone
	}
	return false
}
