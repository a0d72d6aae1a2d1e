package reactor

import (
	"bufio"
	"context"
	"net"
)

// adminStream is one accepted administrative connection. Its reader
// goroutine is a dumb pipe: it only forwards lines (or a close
// notification) to the reactor, never touching node state itself.
type adminStream struct {
	id   int
	conn *net.TCPConn
}

// acceptStreams is a dumb pipe for the administrative listener.
func (r *Reactor) acceptStreams(ctx context.Context) {
	for {
		conn, err := r.listener.AcceptTCP()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			continue
		}
		s := &adminStream{conn: conn}
		select {
		case r.newStreams <- s:
		case <-ctx.Done():
			conn.Close()
			return
		}
	}
}

// registerStream assigns a stream its id and starts its line-reading
// goroutine.
func (r *Reactor) registerStream(s *adminStream) {
	s.id = r.nextStreamID
	r.nextStreamID++
	r.streams[s.id] = s
	go r.readLines(r.runCtx, s)
}

// readLines is a dumb pipe: it forwards each line read, and a closed
// notification on EOF or error, never interpreting admin syntax itself.
func (r *Reactor) readLines(ctx context.Context, s *adminStream) {
	scanner := bufio.NewScanner(s.conn)
	for scanner.Scan() {
		select {
		case r.streamEvents <- streamEvent{id: s.id, line: scanner.Text()}:
		case <-ctx.Done():
			return
		}
	}
	select {
	case r.streamEvents <- streamEvent{id: s.id, closed: true}:
	case <-ctx.Done():
	}
}

// handleStreamEvent dispatches one line to Admin, or deregisters a
// stream that read zero bytes / disconnected.
func (r *Reactor) handleStreamEvent(ev streamEvent) {
	s, ok := r.streams[ev.id]
	if !ok {
		return
	}
	if ev.closed {
		s.conn.Close()
		delete(r.streams, ev.id)
		return
	}

	defer r.recoverHandler("admin", ev.line)

	response, closeAfter := r.admin.Handle(ev.line)
	s.conn.Write(append(response, '\n'))
	if closeAfter {
		s.conn.Close()
		delete(r.streams, ev.id)
	}
}
