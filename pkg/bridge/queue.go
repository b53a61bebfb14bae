package bridge

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/fasthttp/websocket"

	customlog "github.com/open-teleop/console/pkg/log"
)

// QueueMetrics tracks outbound traffic across connections
type QueueMetrics struct {
	QueuedCount  atomic.Int64
	SentCount    atomic.Int64
	DroppedCount atomic.Int64
	ErrorCount   atomic.Int64
	LastSentTime atomic.Int64 // unix nanoseconds
}

// sendQueue serializes writes to one connection through a single writer.
// Enqueue never blocks: a full queue drops the message.
type sendQueue struct {
	name     string
	conn     Conn
	logger   customlog.Logger
	messages chan []byte
	done     chan struct{}
	stopOnce sync.Once
	metrics  *QueueMetrics
	onError  func(error)
}

func newSendQueue(name string, conn Conn, size int, metrics *QueueMetrics, logger customlog.Logger, onError func(error)) *sendQueue {
	return &sendQueue{
		name:     name,
		conn:     conn,
		logger:   logger,
		messages: make(chan []byte, size),
		done:     make(chan struct{}),
		metrics:  metrics,
		onError:  onError,
	}
}

// enqueue adds a frame for the writer. It reports false when the queue is
// stopped or full.
func (q *sendQueue) enqueue(data []byte) bool {
	select {
	case <-q.done:
		return false
	default:
	}

	select {
	case q.messages <- data:
		q.metrics.QueuedCount.Add(1)
		return true
	default:
		q.metrics.DroppedCount.Add(1)
		q.logger.Warnf("%s send queue is full, discarding message", q.name)
		return false
	}
}

func (q *sendQueue) start() {
	go q.writer()
}

// stop ends the writer. Pending frames are discarded. The data channel is
// never closed so a racing enqueue cannot panic.
func (q *sendQueue) stop() {
	q.stopOnce.Do(func() {
		close(q.done)
	})
}

func (q *sendQueue) writer() {
	q.logger.Debugf("%s writer started", q.name)
	defer q.logger.Debugf("%s writer stopped", q.name)

	for {
		select {
		case <-q.done:
			return
		case data := <-q.messages:
			if err := q.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				q.metrics.ErrorCount.Add(1)
				q.onError(err)
				return
			}
			q.metrics.SentCount.Add(1)
			q.metrics.LastSentTime.Store(time.Now().UnixNano())
		}
	}
}

// length returns the number of frames waiting for the writer
func (q *sendQueue) length() int {
	return len(q.messages)
}
