package cmn

import (
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/teris-io/shortid"
)

// Alphabet for short correlation ids (request traces, upload temp-file
// templates). Length matters: shortid requires exactly 64 distinct symbols.
const idABC = "-5nZJDft6LuzsjGNpPwY7rQa39vehq4i1cV2FROo8yHSlC0BUEdWbIxMmTgKXAk_"

var (
	sidOnce sync.Once
	sid     *shortid.Shortid
)

func initShortID() {
	sidOnce.Do(func() {
		sid = shortid.MustNew(4 /*worker*/, idABC, uint64(time.Now().UnixNano()))
	})
}

// GenTraceID returns a short, human-legible id attached to a connection or
// request for the lifetime of its logs, task submissions, and upload
// records. It is NOT the 64-bit task id - see TaskID below.
func GenTraceID() string {
	initShortID()
	id := sid.MustGenerate()
	if len(id) == 0 || !isAlpha(id[0]) {
		id = string(rune('a'+rand.Intn(26))) + id
	}
	return id
}

func isAlpha(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

// TaskID is the spec-mandated 64-bit task identifier: a monotonic
// timestamp (milliseconds) in the high bits XOR'd with a low-bits counter,
// so that ids are monotonically increasing under single-producer use and
// collision-free under concurrent submission. Retries reuse the same id.
type TaskID uint64

var taskSeq uint64

// NewTaskID mints a fresh task id. The low 20 bits come from a
// process-wide counter; the remaining high bits come from the current
// monotonic-ish unix milli clock. The two parts occupy disjoint bits, so
// the XOR leaves both readable.
func NewTaskID() TaskID {
	seq := atomic.AddUint64(&taskSeq, 1) & 0xFFFFF
	ts := uint64(time.Now().UnixMilli()) << 20
	return TaskID(ts ^ seq)
}

func (id TaskID) String() string { return fmt.Sprintf("%016x", uint64(id)) }
