package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/docopt/docopt-go"
	"golang.org/x/term"

	"github.com/bringyour/nettables/nettables"
)

const NtCtlVersion = "0.0.1"

const ConnectWaitTimeout = 5 * time.Second

var Out *log.Logger
var Err *log.Logger

func init() {
	Out = log.New(os.Stdout, "", 0)
	Err = log.New(os.Stderr, "", log.Ldate|log.Ltime|log.Lshortfile)
}

func main() {
	usage := fmt.Sprintf(`Network tables control.

Usage:
    ntctl server [--port=<port>] [--websocket] [--verbosity=<level>]
    ntctl get [--host=<host>] [--port=<port>] [--websocket] [--verbosity=<level>] <name>
    ntctl put [--host=<host>] [--port=<port>] [--websocket] [--verbosity=<level>]
        [--type=<type>] <name> <value>
    ntctl watch [--host=<host>] [--port=<port>] [--websocket] [--verbosity=<level>] [<prefix>]

Options:
    -h --help         Show this screen.
    --version         Show version.
    --host=<host>     Server host [default: localhost].
    --port=<port>     Server port [default: %d].
    --websocket       Use the websocket transport instead of tcp.
    --type=<type>     boolean, double or string. By default the type is inferred from the value.
    --verbosity=<level>  Log verbosity [default: 0].`, nettables.DefaultPort)

	opts, err := docopt.ParseArgs(usage, os.Args[1:], NtCtlVersion)
	if err != nil {
		panic(err)
	}

	flag.Set("logtostderr", "true")
	if level, err := opts.String("--verbosity"); err == nil {
		flag.Set("v", level)
	}

	if server_, _ := opts.Bool("server"); server_ {
		runServer(opts)
	} else if get_, _ := opts.Bool("get"); get_ {
		get(opts)
	} else if put_, _ := opts.Bool("put"); put_ {
		put(opts)
	} else if watch_, _ := opts.Bool("watch"); watch_ {
		watch(opts)
	}
}

func runServer(opts docopt.Opts) {
	port, _ := opts.Int("--port")
	websocket, _ := opts.Bool("--websocket")

	cancelCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	address := fmt.Sprintf(":%d", port)
	var provider nettables.StreamProvider
	var err error
	if websocket {
		provider, err = nettables.NewWebsocketStreamProvider(cancelCtx, address, nettables.DefaultWebsocketPath)
	} else {
		provider, err = nettables.NewTcpStreamProvider(cancelCtx, address)
	}
	if err != nil {
		Err.Printf("Could not listen on %s (%s).\n", address, err)
		os.Exit(1)
	}

	server := nettables.NewServerWithDefaults(cancelCtx)
	defer server.Close()

	server.AddConnectionListener(func(event nettables.ConnectionEvent) {
		Out.Printf("%s %s %s\n", event.State, event.Id, event.Remote)
	})

	if err := server.Start(provider); err != nil {
		Err.Printf("Could not start server (%s).\n", err)
		os.Exit(1)
	}
	Out.Printf("Listening on %s.\n", address)

	waitForSignal(cancelCtx, server.Done())
}

func get(opts docopt.Opts) {
	name, _ := opts.String("<name>")

	cancelCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client, err := connectClient(cancelCtx, opts)
	if err != nil {
		Err.Printf("%s\n", err)
		os.Exit(1)
	}
	defer client.Close()

	value, err := client.GetValue(name)
	if err != nil {
		Err.Printf("%s\n", err)
		os.Exit(1)
	}
	Out.Printf("%s\n", formatValue(value))
}

func put(opts docopt.Opts) {
	name, _ := opts.String("<name>")
	valueStr, _ := opts.String("<value>")
	typeName, _ := opts.String("--type")

	value, err := parseValue(valueStr, typeName)
	if err != nil {
		Err.Printf("%s\n", err)
		os.Exit(1)
	}

	cancelCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client, err := connectClient(cancelCtx, opts)
	if err != nil {
		Err.Printf("%s\n", err)
		os.Exit(1)
	}
	defer client.Close()

	if err := client.PutValue(name, value); err != nil {
		Err.Printf("%s\n", err)
		os.Exit(1)
	}
	if err := client.Flush(); err != nil {
		Err.Printf("%s\n", err)
		os.Exit(1)
	}
	Out.Printf("%s = %s\n", name, formatValue(value))
}

func watch(opts docopt.Opts) {
	prefix, _ := opts.String("<prefix>")

	cancelCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client, err := connectClient(cancelCtx, opts)
	if err != nil {
		Err.Printf("%s\n", err)
		os.Exit(1)
	}
	defer client.Close()

	if term.IsTerminal(int(os.Stdout.Fd())) {
		Out.Printf("%-40s %-10s %-6s %s\n", "NAME", "TYPE", "SEQ", "VALUE")
	}
	client.AddEntryListener(
		func(name string) bool {
			return strings.HasPrefix(name, prefix)
		},
		func(entry nettables.Entry, isNew bool) {
			Out.Printf("%-40s %-10s %-6d %s\n", entry.Name, entry.Type.Name, entry.SequenceNumber, formatValue(entry.Value))
		},
		true,
	)
	client.AddConnectionListener(func(event nettables.ConnectionEvent) {
		if event.Err != nil {
			Err.Printf("%s (%s)\n", event.State, event.Err)
		} else {
			Err.Printf("%s\n", event.State)
		}
	})

	waitForSignal(cancelCtx, client.Done())
}

// connects and waits for the handshake
func connectClient(ctx context.Context, opts docopt.Opts) (*nettables.Client, error) {
	host, _ := opts.String("--host")
	port, _ := opts.Int("--port")
	websocket, _ := opts.Bool("--websocket")

	address := fmt.Sprintf("%s:%d", host, port)
	var streamFactory nettables.StreamFactory
	if websocket {
		streamFactory = nettables.NewWebsocketStreamFactory(
			fmt.Sprintf("ws://%s%s", address, nettables.DefaultWebsocketPath),
		)
	} else {
		streamFactory = nettables.NewTcpStreamFactory(address)
	}

	client := nettables.NewClientWithDefaults(ctx)

	established := make(chan error, 1)
	removeListener := client.AddConnectionListener(func(event nettables.ConnectionEvent) {
		select {
		case established <- event.Err:
		default:
		}
	})
	defer removeListener()

	if err := client.Connect(streamFactory); err != nil {
		client.Close()
		return nil, err
	}

	select {
	case err := <-established:
		if err != nil {
			client.Close()
			return nil, err
		}
		return client, nil
	case <-time.After(ConnectWaitTimeout):
		client.Close()
		return nil, fmt.Errorf("Could not connect to %s (timeout).", address)
	}
}

func parseValue(valueStr string, typeName string) (any, error) {
	switch typeName {
	case "boolean":
		return strconv.ParseBool(valueStr)
	case "double":
		return strconv.ParseFloat(valueStr, 64)
	case "string":
		return valueStr, nil
	case "":
		if v, err := strconv.ParseBool(valueStr); err == nil && (valueStr == "true" || valueStr == "false") {
			return v, nil
		}
		if v, err := strconv.ParseFloat(valueStr, 64); err == nil {
			return v, nil
		}
		return valueStr, nil
	default:
		return nil, fmt.Errorf("Unknown type %s.", typeName)
	}
}

func formatValue(value any) string {
	switch v := value.(type) {
	case string:
		return strconv.Quote(v)
	default:
		return fmt.Sprintf("%v", v)
	}
}

func waitForSignal(ctx context.Context, done <-chan struct{}) {
	signalNotify := make(chan os.Signal, 1)
	signal.Notify(signalNotify, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(signalNotify)

	select {
	case <-ctx.Done():
	case <-done:
	case <-signalNotify:
	}
}
