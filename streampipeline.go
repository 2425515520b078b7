package dnsval

import (
	"context"
	"encoding/binary"
	"io"
	"net"
	"sync"
	"time"

	"github.com/hlandau/dnsval/dnsmsg"
)

// Defines how long to wait for a response from the resolver if no other timeout is given.
const defaultQueryTimeout = 2 * time.Second

// Tear down an upstream connection if nothing has been received for this long.
const idleTimeout = 10 * time.Second

// streamDialer opens a new connection to the upstream server.
type streamDialer interface {
	Dial() (net.Conn, error)
}

// streamPipeline multiplexes concurrent Exchange calls over a single
// underlying length-prefixed stream connection (TCP, DoT, DTLS), matching
// responses to requests out of order and reconnecting after an idle
// timeout or I/O error. Adapted from the teacher's Pipeline/tlsConn,
// generalized over any streamDialer and dnsmsg.Message so the TCP, DoT and
// DTLS transports can all share it instead of duplicating the run loop
// three times as the teacher does across pipeline.go/dotclient.go/dtlsclient.go.
type streamPipeline struct {
	id       string
	dialer   streamDialer
	requests chan *streamRequest
	metrics  *transportMetrics
	timeout  time.Duration
	inFlight *streamInFlightQueue
}

func newStreamPipeline(id string, dialer streamDialer, timeout time.Duration) *streamPipeline {
	if timeout == 0 {
		timeout = defaultQueryTimeout
	}
	p := &streamPipeline{
		id:       id,
		dialer:   dialer,
		requests: make(chan *streamRequest),
		metrics:  newTransportMetrics(id),
		timeout:  timeout,
		inFlight: &streamInFlightQueue{},
	}
	go p.run()
	return p
}

func (p *streamPipeline) exchange(ctx context.Context, q *dnsmsg.Message) (*dnsmsg.Message, error) {
	r := newStreamRequest(q)
	timeout := time.NewTimer(p.timeout)
	defer timeout.Stop()

	select {
	case p.requests <- r:
	case <-timeout.C:
		p.metrics.err.Add("querytimeout", 1)
		r.cancel(p.inFlight)
		return nil, QueryTimeoutError{questionName(q), questionType(q)}
	case <-ctx.Done():
		r.cancel(p.inFlight)
		return nil, ctx.Err()
	}

	select {
	case <-r.done:
	case <-timeout.C:
		p.metrics.err.Add("querytimeout", 1)
		r.cancel(p.inFlight)
		return nil, QueryTimeoutError{questionName(q), questionType(q)}
	case <-ctx.Done():
		r.cancel(p.inFlight)
		return nil, ctx.Err()
	}
	return r.waitFor()
}

// run waits for queries and opens an upstream connection on demand, writing
// queries and reading answers concurrently on the same connection. It
// reconnects whenever the connection is idle-closed or errors out.
func (p *streamPipeline) run() {
	var wg sync.WaitGroup
	inFlight := p.inFlight
	log := Log.WithField("transport", p.id)
	for req := range p.requests {
		done := make(chan struct{})
		log.Debug("opening connection")
		conn, err := p.dialer.Dial()
		if err != nil {
			p.metrics.err.Add("open", 1)
			log.WithError(err).Error("failed to open connection")
			req.markDone(nil, err)
			continue
		}
		wg.Add(2)

		go func(r *streamRequest) { p.requests <- r }(req) // re-queue the request that triggered the connection

		go func() { // writer
			for {
				select {
				case req := <-p.requests:
					query, ok := inFlight.add(req)
					if !ok {
						continue // request was cancelled before we could claim an ID
					}
					p.metrics.query.Add(1)
					_ = conn.SetWriteDeadline(time.Now().Add(idleTimeout))
					if err := writeStreamMessage(conn, query); err != nil {
						req.markDone(nil, err)
						inFlight.drop(query.Header.ID)
						conn.Close()
						wg.Done()
						p.metrics.err.Add("send", 1)
						log.WithError(err).WithField("qname", questionName(query)).Debug("failed sending query")
						return
					}
				case <-done:
					wg.Done()
					return
				}
			}
		}()
		go func() { // reader
			for {
				_ = conn.SetReadDeadline(time.Now().Add(idleTimeout))
				a, err := readStreamMessage(conn)
				if err != nil {
					if ne, ok := err.(net.Error); ok && ne.Timeout() {
						log.Debug("connection terminated by idle timeout")
					} else if err == io.EOF {
						log.Debug("connection terminated by peer")
					} else {
						p.metrics.err.Add("read", 1)
						log.WithError(err).Error("read failed")
					}
					inFlight.failAll(err)
					conn.Close()
					close(done)
					wg.Done()
					return
				}
				req := inFlight.take(a.Header.ID)
				if req == nil {
					p.metrics.err.Add("unexpected", 1)
					log.WithField("qname", questionName(a)).Warn("unexpected answer received, ignoring")
					continue
				}
				p.metrics.response.Add(rcodeLabel(a), 1)
				req.markDone(a, nil)
			}
		}()

		wg.Wait()
	}
}

func rcodeLabel(m *dnsmsg.Message) string {
	switch m.Rcode() {
	case uint16(dnsmsg.RcodeSuccess):
		return "success"
	case uint16(dnsmsg.RcodeNameError):
		return "nxdomain"
	case uint16(dnsmsg.RcodeServerFailure):
		return "servfail"
	default:
		return "other"
	}
}

// streamRequest is a query queued on a streamPipeline along with the
// channel that's closed once a response or error is available.
type streamRequest struct {
	q, a *dnsmsg.Message
	err  error
	done chan struct{}

	mu         sync.Mutex
	cancelled  bool
	assignedID uint16
	hasID      bool
}

func newStreamRequest(q *dnsmsg.Message) *streamRequest {
	return &streamRequest{q: q, done: make(chan struct{})}
}

// cancel marks r as abandoned by its caller (timeout or context
// cancellation). If the writer goroutine already claimed a wire ID for r,
// its in-flight entry is dropped immediately instead of waiting for a
// connection teardown to clear it — otherwise a long-abandoned request
// would hold its ID's map slot until idCounter wraps back around to it.
func (r *streamRequest) cancel(q *streamInFlightQueue) {
	r.mu.Lock()
	r.cancelled = true
	id, has := r.assignedID, r.hasID
	r.mu.Unlock()
	if has {
		q.drop(id)
	}
}

func (r *streamRequest) waitFor() (*dnsmsg.Message, error) {
	<-r.done
	if r.err == nil {
		if err := checkQuestionMatch(r.q, r.a); err != nil {
			return nil, err
		}
	}
	return r.a, r.err
}

func (r *streamRequest) markDone(a *dnsmsg.Message, err error) {
	if a != nil {
		a.Header.ID = r.q.Header.ID // restore the caller's original ID
	}
	r.a = a
	r.err = err
	close(r.done)
}

// streamInFlightQueue matches responses to requests asynchronously,
// assigning a fresh message ID per outgoing query since a single
// connection can carry requests that happened to be created with
// colliding IDs.
type streamInFlightQueue struct {
	requests  map[uint16]*streamRequest
	mu        sync.Mutex
	idCounter uint16
}

// add claims the next wire ID for r and registers it as in-flight, unless
// r was already cancel()ed by its caller before this ran, in which case
// it is dropped and ok is false.
func (q *streamInFlightQueue) add(r *streamRequest) (query *dnsmsg.Message, ok bool) {
	// r.mu stays held across both the cancelled check and the ID
	// assignment below, so a concurrent cancel() either completes before
	// this starts (seen here as r.cancelled) or blocks until hasID is
	// set and can then drop the entry itself; it can never land in the
	// gap between the two and leave a cancelled request registered.
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancelled {
		return nil, false
	}

	q.mu.Lock()
	if q.requests == nil {
		q.requests = make(map[uint16]*streamRequest)
	}
	q.idCounter++
	id := q.idCounter
	q.requests[id] = r
	q.mu.Unlock()

	r.assignedID, r.hasID = id, true

	qm := *r.q
	qm.Header.ID = id
	return &qm, true
}

func (q *streamInFlightQueue) take(id uint16) *streamRequest {
	q.mu.Lock()
	defer q.mu.Unlock()
	r, ok := q.requests[id]
	if !ok {
		return nil
	}
	delete(q.requests, id)
	return r
}

func (q *streamInFlightQueue) drop(id uint16) {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.requests, id)
}

// failAll completes every still-pending request with err and clears the
// queue, so a dead connection never leaves orphaned entries behind for a
// reconnect to inherit.
func (q *streamInFlightQueue) failAll(err error) {
	q.mu.Lock()
	pending := q.requests
	q.requests = nil
	q.mu.Unlock()
	for _, r := range pending {
		r.markDone(nil, err)
	}
}

// writeStreamMessage writes a DNS message prefixed with its 2-byte length,
// per RFC 1035 §4.2.2.
func writeStreamMessage(w io.Writer, m *dnsmsg.Message) error {
	b, err := dnsmsg.EncodeMessage(m)
	if err != nil {
		return err
	}
	return writeStreamFrame(w, b)
}

// writeStreamFrame writes an already-encoded DNS message prefixed with its
// 2-byte length, for callers that need to encode once and inspect the
// result before writing it.
func writeStreamFrame(w io.Writer, b []byte) error {
	var lenBuf [2]byte
	binary.BigEndian.PutUint16(lenBuf[:], uint16(len(b)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err := w.Write(b)
	return err
}

// readStreamMessage reads one length-prefixed DNS message from r.
func readStreamMessage(r io.Reader) (*dnsmsg.Message, error) {
	var lenBuf [2]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint16(lenBuf[:])
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return dnsmsg.DecodeMessage(buf)
}
