package smtptest

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"io"
	"net"
	"os"
	"sync"
	"time"

	"github.com/docker/go-units"
	"github.com/emersion/go-smtp"
)

// Message is an email received by the test server.
type Message struct {
	Created time.Time
	From    string
	Rcpts   []string
	// Username the client authenticated with
	User string
	Body string
}

// Backend implements smtp.Backend. It's a thin authentication wrapper
// for an InMemoryEmailStore.
type Backend struct {
	*InMemoryEmailStore
	// If set, only this password is accepted
	password string
}

// Login implements smtp.Backend. Any username/password is fine unless the
// server requires a specific password, since we don't want to couple this
// with specific test configurations.
func (be *Backend) Login(_ *smtp.ConnectionState, username string, password string) (smtp.Session, error) {
	if username == "" || password == "" {
		return nil, errors.New("no username or password provided")
	}
	if be.password != "" && password != be.password {
		return nil, errors.New("invalid credentials")
	}
	return &session{store: be.InMemoryEmailStore, user: username}, nil
}

// AnonymousLogin implements smtp.Backend. Not supported since we want to
// enforce AUTH.
func (be *Backend) AnonymousLogin(_ *smtp.ConnectionState) (smtp.Session, error) {
	return nil, smtp.ErrAuthRequired
}

// session implements smtp.Session for a single authenticated connection.
type session struct {
	store *InMemoryEmailStore
	user  string
	from  string
	rcpts []string
}

// Reset implements smtp.Session.
func (s *session) Reset() {
	s.from = ""
	s.rcpts = nil
}

// Logout implements smtp.Session. No-op here.
func (s *session) Logout() error { return nil }

// Mail implements smtp.Session.
func (s *session) Mail(from string, _ smtp.MailOptions) error {
	s.from = from
	return nil
}

// Rcpt implements smtp.Session.
func (s *session) Rcpt(to string) error {
	s.rcpts = append(s.rcpts, to)
	return nil
}

// Data implements smtp.Session. Stores the email data in memory for
// retrieval at the end of the test.
func (s *session) Data(r io.Reader) error {
	// doubtful we'll get an email this big, but we need a limit
	var maxEmailSize int64 = 100 * units.MiB
	buf, err := io.ReadAll(io.LimitReader(r, maxEmailSize))
	if err != nil {
		return err
	}

	s.store.saveEmail(Message{
		Created: time.Now(),
		From:    s.from,
		Rcpts:   append([]string(nil), s.rcpts...),
		User:    s.user,
		Body:    string(buf),
	})
	return nil
}

// InMemoryEmailStore retains email bodies in memory for comparison against
// a test's expected output.
// Designed to be goroutine safe since we don't know how many goroutines will
// be hitting the server at once.
type InMemoryEmailStore struct {
	mu       *sync.Mutex
	messages []Message
}

// InProcessServer is an SMTP server that runs in the same process as the
// test suite, letting us inspect sent emails. You must initialize this
// via NewInProcessServer
type InProcessServer struct {
	*smtp.Server
	*InMemoryEmailStore
	backend  *Backend
	certPath string
	listener net.Listener
	// Wrap connections in TLS right away, as on port 465
	implicitTLS bool
}

// NewInProcessServer creates an InProcessServer, including configuring
// its SMTP server to store incoming messages in memory. Must provide
// the paths to the key and cert used for TLS. The cert must be a
// root cert.
func NewInProcessServer(keypath string, certpath string) *InProcessServer {
	is := &InMemoryEmailStore{
		mu:       &sync.Mutex{},
		messages: []Message{},
	}
	be := &Backend{InMemoryEmailStore: is}

	srv := smtp.NewServer(be)
	srv.Domain = "localhost"
	srv.AllowInsecureAuth = false // need AUTH over TLS here
	srv.AuthDisabled = false      // need AUTH here
	// Strict is undocumented, but it looks like it enforces <address> syntax
	// in messages:
	// https://github.com/emersion/go-smtp/blob/f92bf7f1a25777bcdaa28a142b1cd1a54b74c8f4/conn.go#L321-L325
	srv.Strict = true
	srv.ReadTimeout = 10 * time.Second
	srv.WriteTimeout = 10 * time.Second

	cert, err := tls.LoadX509KeyPair(certpath, keypath)

	// No way to carry on without a cert, so we panic. We're in a test
	// suite, so this should be fine.
	if err != nil {
		panic(err)
	}

	srv.TLSConfig = &tls.Config{
		Certificates: []tls.Certificate{cert},
	}

	return &InProcessServer{
		Server:             srv,
		InMemoryEmailStore: is,
		backend:            be,
		certPath:           certpath,
	}
}

// RequirePassword makes the server reject any other password. Call it
// before Start.
func (is *InProcessServer) RequirePassword(p string) {
	is.backend.password = p
}

// UseImplicitTLS makes the server expect a TLS handshake before the SMTP
// greeting instead of offering STARTTLS. Call it before Start.
func (is *InProcessServer) UseImplicitTLS() {
	is.implicitTLS = true
}

// saveEmail stores a message in memory
func (es *InMemoryEmailStore) saveEmail(m Message) {
	es.mu.Lock()
	defer es.mu.Unlock()

	es.messages = append(es.messages, m)
}

// Start listens on a random port on the loopback interface and serves in
// the background. The port is known once Start returns, so tests don't
// race the server.
func (is *InProcessServer) Start() error {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return err
	}
	if is.implicitTLS {
		l = tls.NewListener(l, is.Server.TLSConfig)
	}
	is.listener = l
	is.Server.Addr = l.Addr().String()

	go is.Server.Serve(l)
	return nil
}

// Close shuts down the test server daemon. You must initialize a new
// InProcessServer instead of restarting this one.
func (is *InProcessServer) Close() {
	is.Server.Close()
	// Serve may not have registered the listener yet
	if is.listener != nil {
		is.listener.Close()
	}
}

// RetrieveEmails returns a slice of all message bodies (as strings)
// received at or after epoch nanoseconds t
func (es *InMemoryEmailStore) RetrieveEmails(t int64) ([]string, error) {
	es.mu.Lock()
	defer es.mu.Unlock()

	r := make([]string, 0, len(es.messages))
	for _, m := range es.messages {
		if m.Created.UnixNano() >= t {
			r = append(r, m.Body)
		}
	}
	return r, nil
}

// Messages returns copies of every message received so far.
func (es *InMemoryEmailStore) Messages() []Message {
	es.mu.Lock()
	defer es.mu.Unlock()

	return append([]Message(nil), es.messages...)
}

// Address returns the host:port of the test SMTP server.
func (is *InProcessServer) Address() string {
	return is.listener.Addr().String()
}

// Host returns the host of the test SMTP server.
func (is *InProcessServer) Host() string {
	h, _, _ := net.SplitHostPort(is.Address())
	return h
}

// Port returns the port of the test SMTP server.
func (is *InProcessServer) Port() int {
	return is.listener.Addr().(*net.TCPAddr).Port
}

// ClientTLSConfig returns a TLS config that trusts the server's
// certificate.
func (is *InProcessServer) ClientTLSConfig() *tls.Config {
	pem, err := os.ReadFile(is.certPath)
	if err != nil {
		panic(err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		panic("can't parse the test certificate " + is.certPath)
	}
	return &tls.Config{RootCAs: pool}
}
