package nettables

import (
	"time"
)

const DefaultPort = 1735

type ConnectionSettings struct {
	// zero disables the deadline
	ReadTimeout time.Duration
	// zero disables the deadline
	WriteTimeout       time.Duration
	WriteFlushInterval time.Duration
	// a keep alive is sent when nothing was written for this interval
	KeepAliveInterval time.Duration
	ReadBufferSize    int
	WriteBufferSize   int
}

func DefaultConnectionSettings() *ConnectionSettings {
	return &ConnectionSettings{
		ReadTimeout:        5 * time.Second,
		WriteTimeout:       5 * time.Second,
		WriteFlushInterval: 100 * time.Millisecond,
		KeepAliveInterval:  1 * time.Second,
		ReadBufferSize:     4096,
		WriteBufferSize:    4096,
	}
}

type ClientSettings struct {
	ConnectTimeout time.Duration
	// the first reconnect waits the min timeout,
	// each failed attempt doubles the wait up to the max timeout
	MinReconnectTimeout time.Duration
	MaxReconnectTimeout time.Duration
	ProtocolRevision    uint16
	TypeRegistry        *TypeRegistry

	ConnectionSettings
}

func DefaultClientSettings() *ClientSettings {
	return &ClientSettings{
		ConnectTimeout:      2 * time.Second,
		MinReconnectTimeout: 100 * time.Millisecond,
		MaxReconnectTimeout: 5 * time.Second,
		ProtocolRevision:    ProtocolRevision,
		TypeRegistry:        DefaultTypeRegistry(),
		ConnectionSettings:  *DefaultConnectionSettings(),
	}
}

type ServerSettings struct {
	ProtocolRevision uint16
	TypeRegistry     *TypeRegistry
	// an accept error waits this long before the next accept
	AcceptRetryTimeout time.Duration

	ConnectionSettings
}

func DefaultServerSettings() *ServerSettings {
	return &ServerSettings{
		ProtocolRevision:   ProtocolRevision,
		TypeRegistry:       DefaultTypeRegistry(),
		AcceptRetryTimeout: 100 * time.Millisecond,
		ConnectionSettings: *DefaultConnectionSettings(),
	}
}
