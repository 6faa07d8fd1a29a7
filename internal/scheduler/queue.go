package scheduler

// jobQueue is the FIFO of pending work. It is only ever touched by the
// dispatching goroutine, so it needs no locking. Retried jobs go to the back
// so other pending jobs are not starved.
type jobQueue struct {
	items []*Job
}

func (q *jobQueue) push(job *Job) {
	q.items = append(q.items, job)
}

func (q *jobQueue) pop() *Job {
	if len(q.items) == 0 {
		return nil
	}
	job := q.items[0]
	q.items = q.items[1:]
	return job
}

func (q *jobQueue) empty() bool {
	return len(q.items) == 0
}
