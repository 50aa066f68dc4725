package pgserver

import (
	"fmt"
	"net"

	"github.com/sirupsen/logrus"

	"github.com/yamldb/yamldb/internal/connmgr"
	"github.com/yamldb/yamldb/internal/schema"
	"github.com/yamldb/yamldb/internal/srvconfig"
)

// Server is the PostgreSQL wire listener (spec.md §4.7/§4.11): a plain
// TCP accept loop over internal/pgserver's own protocol implementation,
// handing each accepted socket to its own HandleConnection goroutine.
type Server struct {
	listener net.Listener
	cfg      srvconfig.Config
	storage  *schema.Storage
	mgr      *connmgr.Manager
}

// NewServer binds a TCP listener on host:port. The caller owns storage
// and mgr's lifecycle; mysqlserver.Server can share the same Manager and
// Storage concurrently (spec.md §4.9's manager is protocol-agnostic).
func NewServer(host string, port int, cfg srvconfig.Config, storage *schema.Storage, mgr *connmgr.Manager) (*Server, error) {
	addr := fmt.Sprintf("%s:%d", host, port)
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("binding postgres listener on %s: %w", addr, err)
	}
	return &Server{listener: l, cfg: cfg, storage: storage, mgr: mgr}, nil
}

// Start accepts connections until the listener is closed, handing each
// one off to its own goroutine (spec.md §4.11).
func (s *Server) Start() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			logrus.WithError(err).Info("pgserver: listener closed")
			return
		}
		connmgr.TuneSocket(conn)
		go s.serve(conn)
	}
}

func (s *Server) serve(conn net.Conn) {
	id, release, err := s.mgr.Acquire(conn)
	if err != nil {
		logrus.WithError(err).Warn("pgserver: connection rejected")
		_ = conn.Close()
		return
	}
	defer release()
	defer conn.Close()
	HandleConnection(conn, s.cfg, s.storage, s.mgr, id)
}

func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

func (s *Server) Close() error {
	return s.listener.Close()
}
