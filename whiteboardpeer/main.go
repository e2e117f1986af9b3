package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"syscall"

	"golang.org/x/term"

	"github.com/docopt/docopt-go"
	"github.com/joho/godotenv"

	"github.com/golang/glog"

	"github.com/bringyour/whiteboard/connect"
	"github.com/bringyour/whiteboard/peer"
)

const DefaultServerHost = "localhost"
const DefaultServerPort = 3101
const DefaultHost = "localhost"

const LocalVersion = "0.0.0-local"

func main() {
	usage := fmt.Sprintf(
		`Whiteboard peer.

Owns the boards created here and mirrors boards other peers share.
Settings not given as options are read from the environment or a .env file:
    WHITEBOARD_PORT
    WHITEBOARD_SERVER_HOST
    WHITEBOARD_SERVER_PORT
    WHITEBOARD_PASSWORD

Usage:
    whiteboardpeer [--port=<port>] [--host=<host>]
        [--server_host=<host>] [--server_port=<port>]
        [--password=<password>] [--v=<level>]

Options:
    -h --help                  Show this screen.
    --version                  Show version.
    -p --port=<port>           Peer listen port (default any free port).
    --host=<host>              Host other peers reach this peer at (default %s).
    --server_host=<host>       Directory host (default %s).
    --server_port=<port>       Directory port (default %d).
    -s --password=<password>   Shared secret for the directory and peers.
    --v=<level>                Log verbosity.`,
		DefaultHost,
		DefaultServerHost,
		DefaultServerPort,
	)

	opts, err := docopt.ParseArgs(usage, os.Args[1:], RequireVersion())
	if err != nil {
		panic(err)
	}

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		fmt.Printf("env error: %s\n", err)
	}

	initGlog(opts)

	port, err := intSetting(opts, "--port", "WHITEBOARD_PORT", 0)
	if err != nil {
		fmt.Printf("%s\n", err)
		os.Exit(2)
	}
	serverPort, err := intSetting(opts, "--server_port", "WHITEBOARD_SERVER_PORT", DefaultServerPort)
	if err != nil {
		fmt.Printf("%s\n", err)
		os.Exit(2)
	}
	host := stringSetting(opts, "--host", "", DefaultHost)
	serverHost := stringSetting(opts, "--server_host", "WHITEBOARD_SERVER_HOST", DefaultServerHost)
	password := stringSetting(opts, "--password", "WHITEBOARD_PASSWORD", "")

	settings := peer.DefaultPeerSettings()
	settings.DirectoryAddress = net.JoinHostPort(serverHost, strconv.Itoa(serverPort))
	settings.ServerSettings.Host = host
	settings.ServerSettings.Password = password
	settings.DialSettings.Password = password

	run(port, settings)
}

func run(port int, settings *peer.PeerSettings) {
	event := connect.NewEventWithContext(context.Background())
	event.SetOnSignals(syscall.SIGINT, syscall.SIGQUIT, syscall.SIGTERM)
	ctx := event.Ctx()

	in, out, restore := openTerminal()
	defer restore()

	presenter := NewConsolePresenter(out)
	p := peer.NewPeer(ctx, port, presenter, settings)

	fmt.Fprintf(out, "Connecting to directory %s\n", settings.DirectoryAddress)
	if err := p.Start(); err != nil {
		fmt.Fprintf(out, "start error: %s\n", err)
		restore()
		glog.Flush()
		os.Exit(1)
	}
	address, _ := p.Address()
	fmt.Fprintf(out, "Peer %s on %s. Type help for commands.\n", RequireVersion(), address)

	console := NewConsole(p, presenter, out)
	go func() {
		console.Run(ctx, in)
		event.Set()
	}()

	<-ctx.Done()
	p.Close()
	glog.Flush()
}

// a line reader and a writer for the console
// an interactive terminal is put in raw mode and edited with `term.Terminal`
func openTerminal() (lineReader, io.Writer, func()) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return newScannerLineReader(os.Stdin), os.Stdout, func() {}
	}

	state, err := term.MakeRaw(fd)
	if err != nil {
		return newScannerLineReader(os.Stdin), os.Stdout, func() {}
	}
	terminal := term.NewTerminal(struct {
		io.Reader
		io.Writer
	}{os.Stdin, os.Stdout}, "> ")
	if width, height, err := term.GetSize(fd); err == nil {
		terminal.SetSize(width, height)
	}
	restored := false
	restore := func() {
		if !restored {
			restored = true
			term.Restore(fd, state)
		}
	}
	return terminal, terminal, restore
}

func initGlog(opts docopt.Opts) {
	flag.Set("logtostderr", "true")
	flag.Set("stderrthreshold", "INFO")
	if v, ok := opts["--v"].(string); ok {
		flag.Set("v", v)
	} else {
		flag.Set("v", "0")
	}
}

// option, then environment, then the default
func stringSetting(opts docopt.Opts, option string, env string, defaultValue string) string {
	if valueAny := opts[option]; valueAny != nil {
		return valueAny.(string)
	}
	if env != "" {
		if value := os.Getenv(env); value != "" {
			return value
		}
	}
	return defaultValue
}

func intSetting(opts docopt.Opts, option string, env string, defaultValue int) (int, error) {
	value := stringSetting(opts, option, env, "")
	if value == "" {
		return defaultValue, nil
	}
	i, err := strconv.Atoi(value)
	if err != nil || i < 0 || 65535 < i {
		return 0, fmt.Errorf("%s must be a port number: %s", option, value)
	}
	return i, nil
}

func RequireVersion() string {
	if version := os.Getenv("WHITEBOARD_VERSION"); version != "" {
		return version
	}
	return LocalVersion
}
