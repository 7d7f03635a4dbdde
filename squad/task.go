package squad

// taskDescriptor is the single shared record the controller publishes
// before a round and every participating worker reads during it. It is
// single-writer (the controller) and multi-reader (the workers), valid only
// between publication and the controller's post-round return.
type taskDescriptor struct {
	action               func(ctx *TaskContext)
	concurrency          int
	terminationRequested bool
}
