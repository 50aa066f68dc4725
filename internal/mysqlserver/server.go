package mysqlserver

import (
	"fmt"
	"net"

	"github.com/sirupsen/logrus"

	"github.com/yamldb/yamldb/internal/connmgr"
	"github.com/yamldb/yamldb/internal/schema"
	"github.com/yamldb/yamldb/internal/srvconfig"
)

// Server is the MySQL wire listener (spec.md §4.8/§4.11): a plain TCP
// accept loop handing each socket to its own HandleConnection goroutine,
// mirroring internal/pgserver.Server's shape so both protocols share one
// connmgr.Manager and schema.Storage.
type Server struct {
	listener net.Listener
	cfg      srvconfig.Config
	storage  *schema.Storage
	mgr      *connmgr.Manager
}

func NewServer(host string, port int, cfg srvconfig.Config, storage *schema.Storage, mgr *connmgr.Manager) (*Server, error) {
	addr := fmt.Sprintf("%s:%d", host, port)
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("binding mysql listener on %s: %w", addr, err)
	}
	return &Server{listener: l, cfg: cfg, storage: storage, mgr: mgr}, nil
}

func (s *Server) Start() {
	for {
		raw, err := s.listener.Accept()
		if err != nil {
			logrus.WithError(err).Info("mysqlserver: listener closed")
			return
		}
		connmgr.TuneSocket(raw)
		go s.serve(raw)
	}
}

func (s *Server) serve(raw net.Conn) {
	id, release, err := s.mgr.Acquire(raw)
	if err != nil {
		logrus.WithError(err).Warn("mysqlserver: connection rejected")
		_ = raw.Close()
		return
	}
	defer release()
	defer raw.Close()
	HandleConnection(raw, s.cfg, s.storage, s.mgr, id)
}

func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

func (s *Server) Close() error {
	return s.listener.Close()
}
