package nettables

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/golang/glog"
	"github.com/gorilla/websocket"
)

// the http path of the websocket endpoint
const DefaultWebsocketPath = "/nt"

const WebsocketHandshakeTimeout = 2 * time.Second

// websocketStream carries the byte stream in binary websocket messages.
// Message boundaries carry no meaning.
type websocketStream struct {
	ws *websocket.Conn
	// the message being read. Reads happen on one goroutine
	reader io.Reader
}

func newWebsocketStream(ws *websocket.Conn) *websocketStream {
	return &websocketStream{
		ws: ws,
	}
}

func (self *websocketStream) Read(b []byte) (int, error) {
	for {
		if self.reader == nil {
			messageType, reader, err := self.ws.NextReader()
			if err != nil {
				return 0, err
			}
			if messageType != websocket.BinaryMessage {
				glog.V(2).Infof("[ws]other=%d\n", messageType)
				continue
			}
			self.reader = reader
		}
		n, err := self.reader.Read(b)
		if errors.Is(err, io.EOF) {
			self.reader = nil
			if 0 < n {
				return n, nil
			}
			continue
		}
		return n, err
	}
}

// the caller serializes writes
func (self *websocketStream) Write(b []byte) (int, error) {
	if err := self.ws.WriteMessage(websocket.BinaryMessage, b); err != nil {
		return 0, err
	}
	return len(b), nil
}

func (self *websocketStream) Close() error {
	return self.ws.Close()
}

func (self *websocketStream) SetReadDeadline(t time.Time) error {
	return self.ws.SetReadDeadline(t)
}

// note that for websocket a deadline timeout cannot be recovered
func (self *websocketStream) SetWriteDeadline(t time.Time) error {
	return self.ws.SetWriteDeadline(t)
}

func (self *websocketStream) RemoteAddr() net.Addr {
	return self.ws.RemoteAddr()
}

type WebsocketStreamFactory struct {
	url    string
	dialer *websocket.Dialer
}

// `url` is ws://host:port/path
func NewWebsocketStreamFactory(url string) *WebsocketStreamFactory {
	return &WebsocketStreamFactory{
		url: url,
		dialer: &websocket.Dialer{
			NetDialContext: (&net.Dialer{
				KeepAlive: TcpKeepAlive,
			}).DialContext,
			HandshakeTimeout: WebsocketHandshakeTimeout,
		},
	}
}

func (self *WebsocketStreamFactory) Connect(ctx context.Context) (io.ReadWriteCloser, error) {
	ws, _, err := self.dialer.DialContext(ctx, self.url, nil)
	if err != nil {
		return nil, err
	}
	return newWebsocketStream(ws), nil
}

// WebsocketStreamProvider serves a websocket endpoint over http.
// Each upgraded request is one inbound stream.
type WebsocketStreamProvider struct {
	ctx    context.Context
	cancel context.CancelFunc

	listener net.Listener
	server   *http.Server
	upgrader *websocket.Upgrader

	streams chan io.ReadWriteCloser
}

// `address` is host:port, `path` is the http path of the endpoint
func NewWebsocketStreamProvider(ctx context.Context, address string, path string) (*WebsocketStreamProvider, error) {
	listenConfig := &net.ListenConfig{
		KeepAlive: TcpKeepAlive,
	}
	listener, err := listenConfig.Listen(ctx, "tcp", address)
	if err != nil {
		return nil, err
	}

	cancelCtx, cancel := context.WithCancel(ctx)
	provider := &WebsocketStreamProvider{
		ctx:      cancelCtx,
		cancel:   cancel,
		listener: listener,
		upgrader: &websocket.Upgrader{
			HandshakeTimeout: WebsocketHandshakeTimeout,
			// any origin may connect
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		streams: make(chan io.ReadWriteCloser),
	}
	mux := http.NewServeMux()
	mux.HandleFunc(path, provider.upgrade)
	provider.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: WebsocketHandshakeTimeout,
	}
	go func() {
		defer cancel()
		if err := provider.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			glog.Infof("[ws]serve error = %s\n", err)
		}
	}()
	return provider, nil
}

func (self *WebsocketStreamProvider) upgrade(w http.ResponseWriter, r *http.Request) {
	ws, err := self.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// the upgrader replied with the http error
		glog.Infof("[ws]upgrade error %s = %s\n", r.RemoteAddr, err)
		return
	}
	select {
	case <-self.ctx.Done():
		ws.Close()
	case self.streams <- newWebsocketStream(ws):
	}
}

func (self *WebsocketStreamProvider) Addr() net.Addr {
	return self.listener.Addr()
}

func (self *WebsocketStreamProvider) Accept(ctx context.Context) (io.ReadWriteCloser, error) {
	select {
	case <-self.ctx.Done():
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	case stream := <-self.streams:
		return stream, nil
	}
}

func (self *WebsocketStreamProvider) Close() error {
	self.cancel()
	return self.server.Close()
}
