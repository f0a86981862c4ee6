package nettables

import (
	"context"
	"errors"
	"io"
	"net"
	"time"
)

// StreamFactory opens the byte stream of a client connection.
type StreamFactory interface {
	Connect(ctx context.Context) (io.ReadWriteCloser, error)
}

type StreamFactoryFunc func(ctx context.Context) (io.ReadWriteCloser, error)

func (self StreamFactoryFunc) Connect(ctx context.Context) (io.ReadWriteCloser, error) {
	return self(ctx)
}

// StreamProvider produces the byte streams of inbound server connections.
// Accept returns ErrClosed after Close.
type StreamProvider interface {
	Accept(ctx context.Context) (io.ReadWriteCloser, error)
	Close() error
}

const TcpKeepAlive = 5 * time.Second

type TcpStreamFactory struct {
	address string
	dialer  *net.Dialer
}

// `address` is host:port
func NewTcpStreamFactory(address string) *TcpStreamFactory {
	return &TcpStreamFactory{
		address: address,
		dialer: &net.Dialer{
			KeepAlive: TcpKeepAlive,
		},
	}
}

func (self *TcpStreamFactory) Connect(ctx context.Context) (io.ReadWriteCloser, error) {
	conn, err := self.dialer.DialContext(ctx, "tcp", self.address)
	if err != nil {
		return nil, err
	}
	if tcpConn, ok := conn.(*net.TCPConn); ok {
		tcpConn.SetNoDelay(true)
	}
	return conn, nil
}

type TcpStreamProvider struct {
	listener net.Listener
}

// `address` is host:port. Port 0 picks a free port, see `Addr`
func NewTcpStreamProvider(ctx context.Context, address string) (*TcpStreamProvider, error) {
	listenConfig := &net.ListenConfig{
		KeepAlive: TcpKeepAlive,
	}
	listener, err := listenConfig.Listen(ctx, "tcp", address)
	if err != nil {
		return nil, err
	}
	return &TcpStreamProvider{
		listener: listener,
	}, nil
}

func (self *TcpStreamProvider) Addr() net.Addr {
	return self.listener.Addr()
}

func (self *TcpStreamProvider) Accept(ctx context.Context) (io.ReadWriteCloser, error) {
	conn, err := self.listener.Accept()
	if err != nil {
		if errors.Is(err, net.ErrClosed) {
			return nil, ErrClosed
		}
		return nil, err
	}
	if tcpConn, ok := conn.(*net.TCPConn); ok {
		tcpConn.SetNoDelay(true)
	}
	return conn, nil
}

func (self *TcpStreamProvider) Close() error {
	return self.listener.Close()
}

// PipeStreamProvider connects clients and a server in the same process.
// It is both the client factory and the server provider.
type PipeStreamProvider struct {
	ctx    context.Context
	cancel context.CancelFunc

	streams chan io.ReadWriteCloser
}

func NewPipeStreamProvider(ctx context.Context) *PipeStreamProvider {
	cancelCtx, cancel := context.WithCancel(ctx)
	return &PipeStreamProvider{
		ctx:     cancelCtx,
		cancel:  cancel,
		streams: make(chan io.ReadWriteCloser),
	}
}

func (self *PipeStreamProvider) Connect(ctx context.Context) (io.ReadWriteCloser, error) {
	clientConn, serverConn := net.Pipe()
	select {
	case <-self.ctx.Done():
	case <-ctx.Done():
		clientConn.Close()
		serverConn.Close()
		return nil, ctx.Err()
	case self.streams <- serverConn:
		return clientConn, nil
	}
	clientConn.Close()
	serverConn.Close()
	return nil, ErrClosed
}

func (self *PipeStreamProvider) Accept(ctx context.Context) (io.ReadWriteCloser, error) {
	select {
	case <-self.ctx.Done():
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	case stream := <-self.streams:
		return stream, nil
	}
}

func (self *PipeStreamProvider) Close() error {
	self.cancel()
	return nil
}
