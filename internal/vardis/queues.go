package vardis

import "github.com/dcp-vardis/dcp-vardis-go/internal/wire"

// idQueue is a FIFO of VarIds without duplicates (§3 "Six VD queues").
type idQueue struct {
	order []wire.VarId
	in    map[wire.VarId]bool
}

func newIdQueue() idQueue {
	return idQueue{in: make(map[wire.VarId]bool)}
}

func (q *idQueue) contains(id wire.VarId) bool { return q.in[id] }

func (q *idQueue) push(id wire.VarId) {
	if q.in[id] {
		return
	}
	q.order = append(q.order, id)
	q.in[id] = true
}

func (q *idQueue) remove(id wire.VarId) {
	if !q.in[id] {
		return
	}
	delete(q.in, id)
	for i, v := range q.order {
		if v == id {
			q.order = append(q.order[:i], q.order[i+1:]...)
			break
		}
	}
}

func (q *idQueue) pop() (wire.VarId, bool) {
	if len(q.order) == 0 {
		return 0, false
	}
	id := q.order[0]
	q.order = q.order[1:]
	delete(q.in, id)
	return id, true
}

// rotate moves the head to the tail in place, used by summaryQ to achieve
// round-robin summaries (§3).
func (q *idQueue) rotate() {
	if len(q.order) < 2 {
		return
	}
	head := q.order[0]
	q.order = append(q.order[1:], head)
}

func (q *idQueue) snapshot() []wire.VarId {
	out := make([]wire.VarId, len(q.order))
	copy(out, q.order)
	return out
}

// filterInPlace keeps only the ids for which keep returns true, preserving
// order — this is Step A of §4.4, "drop stale ids".
func (q *idQueue) filterInPlace(keep func(wire.VarId) bool) {
	kept := q.order[:0]
	for _, id := range q.order {
		if keep(id) {
			kept = append(kept, id)
		} else {
			delete(q.in, id)
		}
	}
	q.order = kept
}

// sixQueues bundles createQ, deleteQ, updateQ, summaryQ, reqUpdQ, reqCreateQ.
type sixQueues struct {
	createQ    idQueue
	deleteQ    idQueue
	updateQ    idQueue
	summaryQ   idQueue
	reqUpdQ    idQueue
	reqCreateQ idQueue
}

func newSixQueues() sixQueues {
	return sixQueues{
		createQ: newIdQueue(), deleteQ: newIdQueue(), updateQ: newIdQueue(),
		summaryQ: newIdQueue(), reqUpdQ: newIdQueue(), reqCreateQ: newIdQueue(),
	}
}

// purgeAll removes id from every one of the six queues, used whenever a
// VarId's lifecycle transitions (new create, delete, etc).
func (q *sixQueues) purgeAll(id wire.VarId) {
	q.createQ.remove(id)
	q.deleteQ.remove(id)
	q.updateQ.remove(id)
	q.summaryQ.remove(id)
	q.reqUpdQ.remove(id)
	q.reqCreateQ.remove(id)
}

// purgeModifying removes id from the five "modifying" queues (everything
// but summaryQ, whose membership is independent per §3).
func (q *sixQueues) purgeModifying(id wire.VarId) {
	q.createQ.remove(id)
	q.deleteQ.remove(id)
	q.updateQ.remove(id)
	q.reqUpdQ.remove(id)
	q.reqCreateQ.remove(id)
}
