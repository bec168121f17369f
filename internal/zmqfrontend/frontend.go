// Package zmqfrontend implements the ZMQ Frontend: two router
// sockets (receive and send), a client routing map, a slab-indexed
// payload arena, a response queue, and the per-application dispatch
// table. Socket handling follows the reactor and message-framing
// idioms of a pebbe/zmq4-based ROUTER server (receive identity + empty
// delimiter + payload, reply the same way), split here across two
// dedicated threads instead of a single reactor loop.
package zmqfrontend

import (
	"fmt"
	"sync"
	"time"

	zmq4 "github.com/pebbe/zmq4"

	"github.com/clipper-ml/clipper/internal/logging"
	"github.com/clipper-ml/clipper/internal/metrics"
	"github.com/clipper-ml/clipper/internal/types"
)

const (
	logComponent = "zmqfrontend"

	recvDrainPerIteration = 100
	sendDrainPerIteration = 1000
	pollTimeout           = 100 * time.Millisecond
)

// FrontendRequest is handed to the per-application dispatch function
// installed via AddApplication.
type FrontendRequest struct {
	ClientID         uint32
	RequestID        uint32
	Input            types.InputTensor
	Lineage          *types.Lineage
	DeadlineUnixNano int64

	// ArenaSlot identifies the payload-arena slot holding this
	// request's raw payload (Input is decoded into its own slices);
	// pass it to SendResponse so the slot is released once the
	// response is written to the wire.
	ArenaSlot int
}

// DispatchFunc processes one decoded request and is responsible for
// eventually calling SendResponse (directly or via a completion
// callback).
type DispatchFunc func(FrontendRequest)

// Frontend owns the two ROUTER sockets and their dedicated threads.
type Frontend struct {
	recvAddr string
	sendAddr string

	zctx       *zmq4.Context
	recvSocket *zmq4.Socket
	sendSocket *zmq4.Socket

	arena   *Arena
	queue   *responseQueue
	routing *routingTable

	appFnMu sync.RWMutex
	appFns  map[string]DispatchFunc

	active chan struct{}
	done   chan struct{}

	requestsTotal   *metrics.Counter
	decodeErrors    *metrics.Counter
	dispatchMisses  *metrics.Counter
	handshakesTotal *metrics.Counter
}

// New constructs a Frontend bound to recvAddr/sendAddr once Start is
// called. Both addresses are used as given; clipperd's flags default
// their ports to 4455 (receive) and 4456 (send).
func New(recvAddr, sendAddr string, registry *metrics.Registry) (*Frontend, error) {
	requestsTotal, err := registry.CreateCounter("zmq_requests_total")
	if err != nil {
		return nil, err
	}
	decodeErrors, err := registry.CreateCounter("zmq_decode_errors_total")
	if err != nil {
		return nil, err
	}
	dispatchMisses, err := registry.CreateCounter("zmq_dispatch_misses_total")
	if err != nil {
		return nil, err
	}
	handshakesTotal, err := registry.CreateCounter("zmq_handshakes_total")
	if err != nil {
		return nil, err
	}
	responseOverflow, err := registry.CreateCounter("zmq_response_queue_overflow_total")
	if err != nil {
		return nil, err
	}

	return &Frontend{
		recvAddr:        recvAddr,
		sendAddr:        sendAddr,
		arena:           NewArena(DefaultSlotCount, DefaultSlotSize),
		queue:           newResponseQueue(responseOverflow),
		routing:         newRoutingTable(),
		appFns:          make(map[string]DispatchFunc),
		active:          make(chan struct{}),
		done:            make(chan struct{}),
		requestsTotal:   requestsTotal,
		decodeErrors:    decodeErrors,
		dispatchMisses:  dispatchMisses,
		handshakesTotal: handshakesTotal,
	}, nil
}

// AddApplication installs fn as the dispatch function for name, under
// the app-functions lock.
func (f *Frontend) AddApplication(name string, fn DispatchFunc) {
	f.appFnMu.Lock()
	defer f.appFnMu.Unlock()
	f.appFns[name] = fn
}

func (f *Frontend) dispatchFor(name string) (DispatchFunc, bool) {
	f.appFnMu.RLock()
	defer f.appFnMu.RUnlock()
	fn, ok := f.appFns[name]
	return fn, ok
}

// Start binds both router sockets and launches the receive and send
// threads. It returns once both sockets are bound; the threads run
// until Stop is called.
func (f *Frontend) Start() error {
	zctx, err := zmq4.NewContext()
	if err != nil {
		return fmt.Errorf("zmqfrontend: new context: %w", err)
	}
	f.zctx = zctx

	recvSocket, err := f.bindRouter(f.recvAddr)
	if err != nil {
		return fmt.Errorf("zmqfrontend: bind receive socket: %w", err)
	}
	f.recvSocket = recvSocket

	sendSocket, err := f.bindRouter(f.sendAddr)
	if err != nil {
		return fmt.Errorf("zmqfrontend: bind send socket: %w", err)
	}
	f.sendSocket = sendSocket

	recvDone := make(chan struct{})
	go func() {
		defer close(recvDone)
		f.receiveLoop()
	}()
	go func() {
		defer close(f.done)
		f.sendLoop()
		<-recvDone
	}()

	logging.Infof(logComponent, "listening recv=%s send=%s", f.recvAddr, f.sendAddr)
	return nil
}

func (f *Frontend) bindRouter(addr string) (*zmq4.Socket, error) {
	socket, err := f.zctx.NewSocket(zmq4.ROUTER)
	if err != nil {
		return nil, err
	}
	if err := socket.SetLinger(0); err != nil {
		return nil, err
	}
	if err := socket.SetRcvhwm(1000); err != nil {
		return nil, err
	}
	if err := socket.Bind(addr); err != nil {
		return nil, err
	}
	return socket, nil
}

// Stop cooperatively shuts down both threads within one poll timeout,
// closes both sockets, and clears the routing map. The payload arena
// is not freed by Stop; its slots stay allocated for as long as the
// Frontend itself is referenced.
func (f *Frontend) Stop() {
	close(f.active)
	<-f.done

	f.routing.mu.Lock()
	f.routing.byID = make(map[uint32][]byte)
	f.routing.mu.Unlock()

	if f.recvSocket != nil {
		_ = f.recvSocket.Close()
	}
	if f.sendSocket != nil {
		_ = f.sendSocket.Close()
	}
	if f.zctx != nil {
		_ = f.zctx.Term()
	}
	logging.Infof(logComponent, "stopped")
}

func (f *Frontend) stopping() bool {
	select {
	case <-f.active:
		return true
	default:
		return false
	}
}

// receiveLoop is the receive thread: one poll+recv loop draining up to
// recvDrainPerIteration messages per wakeup.
func (f *Frontend) receiveLoop() {
	poller := zmq4.NewPoller()
	poller.Add(f.recvSocket, zmq4.POLLIN)

	for !f.stopping() {
		polled, err := poller.Poll(pollTimeout)
		if err != nil {
			logging.Infof(logComponent, "receive poll error: %v", err)
			continue
		}
		if len(polled) == 0 {
			continue
		}

		for i := 0; i < recvDrainPerIteration; i++ {
			msg, err := f.recvSocket.RecvMessageBytes(zmq4.DONTWAIT)
			if err != nil {
				break // EAGAIN: queue drained for this wakeup
			}
			f.handleRequestFrames(msg)
		}
	}
}

func (f *Frontend) handleRequestFrames(msg [][]byte) {
	payload := lastFrame(msg)
	if len(payload) == 0 {
		return
	}

	f.requestsTotal.Increment(1)

	slot, buf, err := f.arena.Reserve(payload)
	if err != nil {
		f.decodeErrors.Increment(1)
		logging.Debugf(logComponent, "arena reserve failed: %v", err)
		return
	}

	wireReq, err := DecodeRequest(buf)
	if err != nil {
		f.arena.Release(slot)
		f.decodeErrors.Increment(1)
		logging.Debugf(logComponent, "decode error: %v", err)
		return
	}

	fn, ok := f.dispatchFor(wireReq.AppName)
	if !ok {
		f.arena.Release(slot)
		f.dispatchMisses.Increment(1)
		return
	}

	lineage := types.NewLineage()
	lineage.Mark("zmq::recv", time.Now().UnixNano()/int64(time.Microsecond))

	fn(FrontendRequest{
		ClientID:  wireReq.ClientID,
		RequestID: wireReq.RequestID,
		Input:     wireReq.Input,
		Lineage:   lineage,
		ArenaSlot: slot,
	})
}

// sendLoop is the send thread: handles the client-id handshake and
// drains the response queue up to sendDrainPerIteration entries per
// wakeup.
func (f *Frontend) sendLoop() {
	poller := zmq4.NewPoller()
	poller.Add(f.sendSocket, zmq4.POLLIN)

	for !f.stopping() {
		polled, _ := poller.Poll(pollTimeout)
		if len(polled) > 0 {
			for i := 0; i < recvDrainPerIteration; i++ {
				msg, err := f.sendSocket.RecvMessageBytes(zmq4.DONTWAIT)
				if err != nil {
					break
				}
				f.handleHandshakeFrames(msg)
			}
		}

		for _, entry := range f.queue.drain(sendDrainPerIteration) {
			f.writeResponse(entry)
		}
	}

	// Drain any remaining in-flight responses before exiting so a
	// shutdown in progress doesn't strand replies already queued.
	for {
		entries := f.queue.drain(sendDrainPerIteration)
		if len(entries) == 0 {
			return
		}
		for _, entry := range entries {
			f.writeResponse(entry)
		}
	}
}

func (f *Frontend) handleHandshakeFrames(msg [][]byte) {
	if len(msg) == 0 {
		return
	}
	identity := msg[0]
	payload := lastFrame(msg)
	if len(payload) != 0 {
		// Not a handshake; the send socket otherwise only receives
		// the zero-length handshake payload.
		return
	}

	clientID := f.routing.assign(identity)
	f.handshakesTotal.Increment(1)

	var ack [4]byte
	ack[0] = byte(clientID)
	ack[1] = byte(clientID >> 8)
	ack[2] = byte(clientID >> 16)
	ack[3] = byte(clientID >> 24)

	if _, err := f.sendSocket.SendMessage(identity, "", ack[:]); err != nil {
		logging.Debugf(logComponent, "handshake ack failed: %v", err)
	}
}

func (f *Frontend) writeResponse(entry responseEntry) {
	defer f.arena.Release(entry.arenaSlot)

	identity, ok := f.routing.identityFor(entry.clientID)
	if !ok {
		logging.Debugf(logComponent, "no routing entry for client_id %d, dropping response", entry.clientID)
		return
	}

	body, err := EncodeResponse(entry.payload)
	if err != nil {
		logging.Debugf(logComponent, "encode response failed: %v", err)
		return
	}

	if _, err := f.sendSocket.SendMessage(identity, "", body); err != nil {
		logging.Debugf(logComponent, "send response failed: %v", err)
	}
}

// SendResponse enqueues resp for client clientID without blocking.
// arenaSlot is released once the response is written to the wire.
func (f *Frontend) SendResponse(clientID uint32, resp WireResponse, arenaSlot int) {
	f.queue.push(responseEntry{clientID: clientID, arenaSlot: arenaSlot, payload: resp})
}

// ReleaseSlot returns arenaSlot to the free pool directly, bypassing
// the response queue. Dispatch functions call this on any error path
// that abandons a request without ever producing a response, so the
// slot doesn't stay pinned for the life of the process.
func (f *Frontend) ReleaseSlot(arenaSlot int) {
	f.arena.Release(arenaSlot)
}

// QueueDepthForTest exposes the response queue's current backlog for
// tests that exercise dispatch functions without a live ZMQ socket.
func (f *Frontend) QueueDepthForTest() int {
	return f.queue.depth()
}

// ReserveSlotForTest claims an arena slot for payload, for tests that
// need a real ArenaSlot value without going through a live socket.
func (f *Frontend) ReserveSlotForTest(payload []byte) (int, error) {
	slot, _, err := f.arena.Reserve(payload)
	return slot, err
}

// SlotInUseForTest reports whether arenaSlot is still reserved.
func (f *Frontend) SlotInUseForTest(arenaSlot int) bool {
	return f.arena.InUse(arenaSlot)
}

func lastFrame(msg [][]byte) []byte {
	if len(msg) == 0 {
		return nil
	}
	return msg[len(msg)-1]
}
