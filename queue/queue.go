package queue

import "sync"

// Queue is the single FIFO shared by every worker. Workers call Get under
// the queue's own lock; if the queue is empty and input is still alive
// they block on workerCond until Add or Terminate wakes them. The main
// goroutine blocks on mainCond to learn when a job completes, for
// progress reporting and termination detection.
type Queue struct {
	mu         sync.Mutex
	workerCond *sync.Cond
	mainCond   *sync.Cond

	head, tail *Job
	size       int

	producing  bool // input producer (CLI args or stdin reader) still alive
	terminated bool
	completed  int
	inFlight   int
}

// New returns an empty queue. producing should be true until the input
// source (argument list or --input-file/stdin reader) has been fully
// consumed; once it is false and the queue drains, Get reports that there
// is no more work rather than blocking forever.
func New() *Queue {
	q := &Queue{producing: true}
	q.workerCond = sync.NewCond(&q.mu)
	q.mainCond = sync.NewCond(&q.mu)
	return q
}

// Add appends a job to the tail and wakes one waiting worker.
func (q *Queue) Add(j *Job) {
	q.mu.Lock()
	defer q.mu.Unlock()
	j.next = nil
	if q.tail == nil {
		q.head, q.tail = j, j
	} else {
		q.tail.next = j
		q.tail = j
	}
	q.size++
	q.workerCond.Signal()
}

// DoneProducing marks the input source exhausted; once the queue is also
// empty, waiting workers are released rather than blocked forever.
func (q *Queue) DoneProducing() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.producing = false
	q.workerCond.Broadcast()
}

// Get blocks until a job is available, the queue is terminated, or
// producing has stopped with nothing left to hand out. ok is false in the
// latter two cases.
func (q *Queue) Get() (j *Job, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for {
		if q.terminated {
			return nil, false
		}
		if q.head != nil {
			j = q.head
			q.head = j.next
			if q.head == nil {
				q.tail = nil
			}
			j.next = nil
			q.size--
			q.inFlight++
			return j, true
		}
		// A recursive crawl keeps discovering jobs from jobs already in
		// flight, so the queue being momentarily empty does not mean no
		// more work is coming: only give up once every in-flight job has
		// also finished without adding anything.
		if !q.producing && q.inFlight == 0 {
			return nil, false
		}
		q.workerCond.Wait()
	}
}

// Remove records that job j finished (successfully or with a final
// error), decrementing the in-flight count and waking the main goroutine.
// When the last in-flight job finishes, waiting workers are woken too so
// Get can report that no more work is coming.
func (q *Queue) Remove(j *Job) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.inFlight--
	q.completed++
	q.mainCond.Signal()
	if q.inFlight == 0 {
		q.workerCond.Broadcast()
	}
}

// WaitForProgress blocks until q.completed has advanced past since, or the
// queue has both stopped producing and drained, in which case ok is false.
// Callers loop passing back the returned completed count as the next since.
func (q *Queue) WaitForProgress(since int) (completed int, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for {
		if q.terminated {
			return q.completed, false
		}
		if !q.producing && q.size == 0 && q.inFlight == 0 {
			return q.completed, false
		}
		if q.completed > since {
			return q.completed, true
		}
		q.mainCond.Wait()
	}
}

// Empty reports whether the queue currently holds no jobs (in-flight jobs
// held by workers do not count).
func (q *Queue) Empty() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.size == 0
}

// Size returns the number of jobs currently queued (not counting jobs a
// worker has already claimed).
func (q *Queue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.size
}

// Terminate sets the global termination flag; every blocked or future Get
// call returns immediately with ok=false so workers can drain.
func (q *Queue) Terminate() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.terminated = true
	q.workerCond.Broadcast()
	q.mainCond.Broadcast()
}

// Free drops every remaining queued job, used during shutdown after
// Terminate so held references can be garbage collected promptly.
func (q *Queue) Free() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.head, q.tail = nil, nil
	q.size = 0
}

// ClaimPart finds the first not-yet-claimed, not-yet-done part of j's
// metalink and marks it in-use, returning false if every part is already
// claimed or done.
func (q *Queue) ClaimPart(j *Job) (*Part, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if j.Metalink == nil {
		return nil, false
	}
	for _, p := range j.Metalink.Parts {
		if !p.Done && !p.InUse {
			p.InUse = true
			return p, true
		}
	}
	return nil, false
}

// CompletePart marks a part done and releases its claim. allDone reports
// whether every part of the job's metalink is now done.
func (q *Queue) CompletePart(j *Job, p *Part) (allDone bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	p.Done = true
	p.InUse = false
	for _, part := range j.Metalink.Parts {
		if !part.Done {
			return false
		}
	}
	return true
}

// ReleasePart undoes a failed claim so another worker can retry the part.
func (q *Queue) ReleasePart(p *Part) {
	q.mu.Lock()
	defer q.mu.Unlock()
	p.InUse = false
}
