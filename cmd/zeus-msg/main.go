// Command zeus-msg is the one-shot send CLI: a thin wrapper around
// queue.Enqueue plus a read-only status view for debugging a stuck
// send.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/zeusmux/zeus/internal/logging"
)

var version = "dev"

func main() {
	logging.Setup()

	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "send":
		err = runSend(os.Args[2:])
	case "status":
		err = runStatus(os.Args[2:])
	case "version":
		fmt.Println(version)
		return
	default:
		usage()
		os.Exit(2)
	}

	if err != nil {
		slog.Error("zeus-msg failed", "error", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: zeus-msg [send|status|version] [flags]")
}
