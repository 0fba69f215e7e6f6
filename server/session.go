package server

import (
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Session owns one client socket. All outbound frames go through a bounded
// queue drained by a dedicated writer goroutine, so a stalled consumer delays
// only its own frames and can never block a group fan-out or another
// client's read loop. When the queue is full the frame is dropped; delivery
// is best-effort throughout.
type Session struct {
	username string
	conn     net.Conn
	out      chan string
	done     chan struct{}
	stop     chan struct{}
	wdone    chan struct{}
	once     sync.Once
	stopOnce sync.Once
	log      zerolog.Logger
}

func newSession(conn net.Conn, queueSize int, log zerolog.Logger) *Session {
	return &Session{
		conn:  conn,
		out:   make(chan string, queueSize),
		done:  make(chan struct{}),
		stop:  make(chan struct{}),
		wdone: make(chan struct{}),
		log:   log,
	}
}

func (s *Session) Username() string {
	return s.username
}

// Send enqueues one frame for the client. It never blocks; it returns false
// if the session is closed or its queue is full.
func (s *Session) Send(line string) bool {
	select {
	case <-s.done:
		return false
	default:
	}

	select {
	case s.out <- line:
		return true
	default:
		droppedFrames.Inc()
		s.log.Warn().Str("user", s.username).Msg("outbound queue full, frame dropped")
		return false
	}
}

// writeLoop drains the outbound queue onto the socket. A write error closes
// the session; the read loop then unwinds on its own. A stop signal makes
// the loop flush whatever is queued and exit.
func (s *Session) writeLoop(timeout time.Duration) {
	defer close(s.wdone)

	for {
		select {
		case line := <-s.out:
			if !s.write(line, timeout) {
				return
			}
		case <-s.done:
			return
		case <-s.stop:
			for {
				select {
				case line := <-s.out:
					if !s.write(line, timeout) {
						return
					}
				default:
					return
				}
			}
		}
	}
}

func (s *Session) write(line string, timeout time.Duration) bool {
	s.conn.SetWriteDeadline(time.Now().Add(timeout))
	if _, err := s.conn.Write([]byte(line + "\n")); err != nil {
		s.log.Debug().Err(err).Str("user", s.username).Msg("write failed")
		s.Close()
		return false
	}
	return true
}

// CloseGraceful tells the writer to flush the queued frames, waits for it up
// to timeout and then closes the session. Used on server shutdown so the
// shutdown notice reaches clients before their sockets go away.
func (s *Session) CloseGraceful(timeout time.Duration) {
	s.stopOnce.Do(func() { close(s.stop) })

	select {
	case <-s.wdone:
	case <-time.After(timeout):
	}
	s.Close()
}

// Close shuts the session down exactly once. Safe to call from any goroutine.
func (s *Session) Close() {
	s.once.Do(func() {
		close(s.done)
		s.conn.Close()
	})
}
