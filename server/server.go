package server

import (
	"bufio"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"chatrelay/protocol"
	"chatrelay/store"
)

type Config struct {
	Addr         string
	WriteTimeout time.Duration
	SendQueue    int
}

// Server accepts client connections, identifies each by username and relays
// protocol lines between them. It holds no message bodies; the only durable
// state is the group directory's mirror in the store.
type Server struct {
	config    *Config
	log       zerolog.Logger
	presence  *Presence
	directory *Directory
	acks      *ackTable

	mu       sync.Mutex
	listener net.Listener
	closed   bool
}

func New(st store.GroupStore, config *Config, log zerolog.Logger) (*Server, error) {
	if config.SendQueue <= 0 {
		config.SendQueue = 64
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = 30 * time.Second
	}

	directory, err := NewDirectory(st, log)
	if err != nil {
		return nil, err
	}

	return &Server{
		config:    config,
		log:       log,
		presence:  NewPresence(),
		directory: directory,
		acks:      newAckTable(ackTableLimit),
	}, nil
}

// Start runs the accept loop until the listener is closed. Per-connection
// work never blocks the loop.
func (s *Server) Start() error {
	listener, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()

	s.log.Info().Str("addr", listener.Addr().String()).Msg("relay server started")

	for {
		conn, err := listener.Accept()
		if err != nil {
			s.mu.Lock()
			closed := s.closed
			s.mu.Unlock()
			if closed {
				return nil
			}
			s.log.Error().Err(err).Msg("accept failed")
			continue
		}

		go s.handleConn(conn)
	}
}

// handleConn drives one connection from handshake to close. The first line
// is the bare username; every later line is parsed and dispatched.
func (s *Server) handleConn(conn net.Conn) {
	remoteAddr := conn.RemoteAddr().String()
	s.log.Info().Str("remote", remoteAddr).Msg("client connected")

	session := newSession(conn, s.config.SendQueue, s.log)
	go session.writeLoop(s.config.WriteTimeout)
	defer session.Close()

	reader := bufio.NewReader(conn)

	first, err := reader.ReadString('\n')
	if err != nil {
		s.log.Debug().Str("remote", remoteAddr).Msg("client gone before identification")
		return
	}
	username := strings.TrimSpace(first)
	if username == "" {
		s.log.Debug().Str("remote", remoteAddr).Msg("empty identification line")
		return
	}

	session.username = username
	if prev := s.presence.Register(username, session); prev != nil {
		// The stale session keeps its socket until it errors out on its own;
		// it is simply no longer reachable under this username. Its close
		// path no longer owns the registration and will not decrement the
		// gauge, so settle its count here.
		activeSessions.Dec()
		s.log.Info().Str("user", username).Msg("session superseded by reconnect")
	}
	activeSessions.Inc()
	s.log.Info().Str("user", username).Str("remote", remoteAddr).Msg("client identified")

	// Push the membership snapshot so a reconnecting client can rebuild its
	// local group state without a separate sync call.
	for _, g := range s.directory.GroupsFor(username) {
		session.Send(protocol.GroupCreated(g.Name, g.Members))
	}

	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			break
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		cmd, err := protocol.Parse(line)
		if err != nil {
			// Malformed lines are skipped, not answered and not fatal.
			s.log.Debug().Err(err).Str("user", username).Str("line", line).Msg("skipping line")
			continue
		}

		commandsTotal.WithLabelValues(cmd.Type).Inc()
		s.dispatch(session, cmd)
	}

	if s.presence.Release(username, session) {
		activeSessions.Dec()
	}
	s.log.Info().Str("user", username).Str("remote", remoteAddr).Msg("client disconnected")
}

// Stats returns a one-line summary for the control socket.
func (s *Server) Stats() string {
	users := s.presence.Users()
	return "connections=" + strconv.Itoa(len(users)) +
		",groups=" + strconv.Itoa(s.directory.Count()) +
		",users=" + strings.Join(users, ";")
}

// Shutdown notifies every connected client, closes their sockets and stops
// the accept loop.
func (s *Server) Shutdown(reason string) {
	s.mu.Lock()
	s.closed = true
	listener := s.listener
	s.mu.Unlock()

	if listener != nil {
		listener.Close()
	}

	sessions := s.presence.Snapshot()
	for _, session := range sessions {
		session.Send(protocol.Shutdown(reason))
	}
	for _, session := range sessions {
		session.CloseGraceful(s.config.WriteTimeout)
		if s.presence.Release(session.Username(), session) {
			activeSessions.Dec()
		}
	}

	s.log.Info().Str("reason", reason).Msg("relay server stopped")
}
