package connect

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/felixge/httpsnoop"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/golang/glog"
)

const WebsocketPath = "/ws"

type ServerSettings struct {
	// the host other processes use to reach this server
	// the advertised address is `Host:<bound port>`
	Host     string
	Password string

	ReadBufferSize  int
	WriteBufferSize int

	ShutdownTimeout time.Duration

	EndpointSettings *EndpointSettings
}

func DefaultServerSettings() *ServerSettings {
	return &ServerSettings{
		Host:             "localhost",
		ReadBufferSize:   4096,
		WriteBufferSize:  4096,
		ShutdownTimeout:  2 * time.Second,
		EndpointSettings: DefaultEndpointSettings(),
	}
}

type SessionFunction func(channel Channel)

// accepts websocket channels on `WebsocketPath`
// other routes can be added to `Router` before `ListenAndServe`
type Server struct {
	ctx    context.Context
	cancel context.CancelFunc

	port     int
	settings *ServerSettings

	router   *mux.Router
	upgrader *websocket.Upgrader

	ready chan struct{}

	stateLock      sync.Mutex
	addr           string
	boundPort      int
	sessionStarted SessionFunction
}

func NewServerWithDefaults(ctx context.Context, port int) *Server {
	return NewServer(ctx, port, DefaultServerSettings())
}

// port 0 binds any free port. The bound port is known once `Ready` is closed.
func NewServer(ctx context.Context, port int, settings *ServerSettings) *Server {
	cancelCtx, cancel := context.WithCancel(ctx)
	server := &Server{
		ctx:      cancelCtx,
		cancel:   cancel,
		port:     port,
		settings: settings,
		router:   mux.NewRouter(),
		upgrader: &websocket.Upgrader{
			ReadBufferSize:  settings.ReadBufferSize,
			WriteBufferSize: settings.WriteBufferSize,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		ready: make(chan struct{}),
	}
	server.router.Use(logRequests)
	server.router.Methods(http.MethodGet).Path(WebsocketPath).HandlerFunc(server.serveWebsocket)
	return server
}

func logRequests(handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m := httpsnoop.CaptureMetrics(handler, w, r)
		glog.V(LogLevelEvent).Infof("[s]handled %s %s %d (%s)\n", r.Method, r.URL, m.Code, m.Duration)
	})
}

func (self *Server) Router() *mux.Router {
	return self.router
}

// must be set before `ListenAndServe`
// the callback runs before the channel listens, so it should register handlers with `OnClose` and `Listen`
func (self *Server) OnSessionStarted(sessionStarted SessionFunction) {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()
	self.sessionStarted = sessionStarted
}

// closed once the listener is bound
func (self *Server) Ready() <-chan struct{} {
	return self.ready
}

// the advertised host:port, or `ErrServerNotReady` before the listener is bound
func (self *Server) Addr() (string, error) {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()
	if self.addr == "" {
		return "", ErrServerNotReady
	}
	return self.addr, nil
}

func (self *Server) Port() int {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()
	return self.boundPort
}

func (self *Server) ListenAndServe() error {
	defer self.cancel()

	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", self.port))
	if err != nil {
		glog.Infof("[s]listen %d error = %s\n", self.port, err)
		return err
	}

	boundPort := listener.Addr().(*net.TCPAddr).Port
	self.stateLock.Lock()
	self.boundPort = boundPort
	self.addr = net.JoinHostPort(self.settings.Host, strconv.Itoa(boundPort))
	self.stateLock.Unlock()
	glog.Infof("[s]listen %s\n", self.addr)
	close(self.ready)

	httpServer := &http.Server{
		Handler: self.router,
	}

	go func() {
		<-self.ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), self.settings.ShutdownTimeout)
		defer shutdownCancel()
		httpServer.Shutdown(shutdownCtx)
		httpServer.Close()
	}()

	if err := httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (self *Server) Close() {
	self.cancel()
}

func (self *Server) serveWebsocket(w http.ResponseWriter, r *http.Request) {
	if err := VerifyAuthRequest(self.settings.Password, r); err != nil {
		glog.Infof("[s]auth error %s = %s\n", r.RemoteAddr, err)
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	self.stateLock.Lock()
	sessionStarted := self.sessionStarted
	self.stateLock.Unlock()

	ws, err := self.upgrader.Upgrade(w, r, nil)
	if err != nil {
		glog.Infof("[s]upgrade error %s = %s\n", r.RemoteAddr, err)
		return
	}

	endpoint := NewEndpoint(self.ctx, ws, r.RemoteAddr, self.settings.EndpointSettings)
	glog.V(LogLevelEvent).Infof("[s]session started %s %s\n", endpoint.Id(), endpoint.RemoteAddr())
	if sessionStarted == nil {
		endpoint.Close()
		return
	}
	HandleError(func() {
		sessionStarted(endpoint)
	}, endpoint.Close)
}
