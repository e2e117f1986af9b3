package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"
	"syscall"

	"github.com/docopt/docopt-go"
	"github.com/joho/godotenv"

	"github.com/golang/glog"

	"github.com/bringyour/whiteboard/connect"
	"github.com/bringyour/whiteboard/directory"
)

const DefaultPort = 3101

const LocalVersion = "0.0.0-local"

func main() {
	usage := fmt.Sprintf(
		`Whiteboard directory server.

Peers connect to share boards and to hear about boards other peers share.
Settings not given as options are read from the environment or a .env file:
    WHITEBOARD_PORT
    WHITEBOARD_PASSWORD

Usage:
    whiteboardserver [--port=<port>] [--password=<password>] [--v=<level>]

Options:
    -h --help                  Show this screen.
    --version                  Show version.
    -p --port=<port>           Listen port (default %d).
    -s --password=<password>   Shared secret peers must present.
    --v=<level>                Log verbosity.`,
		DefaultPort,
	)

	opts, err := docopt.ParseArgs(usage, os.Args[1:], RequireVersion())
	if err != nil {
		panic(err)
	}

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		fmt.Printf("env error: %s\n", err)
	}

	initGlog(opts)

	port, err := intSetting(opts, "--port", "WHITEBOARD_PORT", DefaultPort)
	if err != nil {
		fmt.Printf("%s\n", err)
		os.Exit(2)
	}
	password := stringSetting(opts, "--password", "WHITEBOARD_PASSWORD", "")

	serve(port, password)
}

func serve(port int, password string) {
	event := connect.NewEventWithContext(context.Background())
	event.SetOnSignals(syscall.SIGINT, syscall.SIGQUIT, syscall.SIGTERM)
	ctx := event.Ctx()

	settings := connect.DefaultServerSettings()
	settings.Password = password
	server := connect.NewServer(ctx, port, settings)

	boardDirectory := directory.NewDirectory()
	server.OnSessionStarted(boardDirectory.Connect)
	directory.AddListRoute(server.Router(), boardDirectory)

	go func() {
		<-server.Ready()
		addr, _ := server.Addr()
		fmt.Printf("Directory %s on %s\n", RequireVersion(), addr)
	}()

	if err := server.ListenAndServe(); err != nil {
		glog.Infof("[main]serve error = %s\n", err)
		glog.Flush()
		os.Exit(1)
	}
	glog.Flush()
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
	if value := os.Getenv(env); value != "" {
		return value
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
