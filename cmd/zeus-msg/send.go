package main

import (
	"bufio"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/zeusmux/zeus/internal/zeus/config"
	"github.com/zeusmux/zeus/internal/zeus/model"
	"github.com/zeusmux/zeus/internal/zeus/statedir"
	"github.com/zeusmux/zeus/internal/zeus/store"
	"github.com/zeusmux/zeus/internal/zeus/world"
)

func runSend(args []string) error {
	fs := flag.NewFlagSet("send", flag.ExitOnError)
	to := fs.String("to", "", "recipient target (agent:<id>, name:<name>, polemarch, phalanx, or bare display name)")
	text := fs.String("text", "", "message text")
	stdin := fs.Bool("stdin", false, "read message text from stdin")
	file := fs.String("file", "", "read message text from file")
	from := fs.String("from", "", "sender display name")
	fromID := fs.String("from-id", os.Getenv("ZEUS_AGENT_ID"), "sender agent id")
	fromRole := fs.String("from-role", "agent", "sender role")
	deliverAs := fs.String("deliver-as", string(model.DeliverFollowUp), "steer or followUp")
	waitDelivery := fs.Bool("wait-delivery", false, "block until the envelope is fully delivered")
	timeout := fs.Duration("timeout", 30*time.Second, "max wait for --wait-delivery")
	stateDirFlag := fs.String("state-dir", statedir.Resolve(), "root directory for durable bus state")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *to == "" {
		return fmt.Errorf("--to is required")
	}
	if *fromID == "" {
		return fmt.Errorf("--from-id is required (or set ZEUS_AGENT_ID)")
	}
	message, err := resolveMessage(*text, *stdin, *file)
	if err != nil {
		return err
	}

	cfg, err := config.Load(*stateDirFlag, "")
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	w := world.New(cfg, world.Options{})

	id, err := w.Queue.Enqueue(*fromID, *from, *fromRole, *to, message, model.DeliverAs(*deliverAs))
	if err != nil {
		return fmt.Errorf("enqueue: %w", err)
	}
	fmt.Printf("ZEUS_MSG_ENQUEUED=%s\n", id)

	if !*waitDelivery {
		return nil
	}
	return waitForDelivery(w.MessageQueueDir, id, *timeout)
}

func resolveMessage(text string, stdin bool, file string) (string, error) {
	switch {
	case text != "":
		return text, nil
	case stdin:
		data, err := io.ReadAll(bufio.NewReader(os.Stdin))
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		return string(data), nil
	case file != "":
		data, err := os.ReadFile(file)
		if err != nil {
			return "", fmt.Errorf("read file: %w", err)
		}
		return string(data), nil
	default:
		return "", fmt.Errorf("one of --text, --stdin, --file is required")
	}
}

// waitForDelivery polls the envelope's presence in new/ and inflight/.
// A dispatcher typically sweeps on a 2s cadence, so polling rather than
// watching is simple enough for a short-lived CLI invocation.
func waitForDelivery(messageQueueDir, id string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		gone := !store.Exists(filepath.Join(messageQueueDir, "new", id+".json")) &&
			!store.Exists(filepath.Join(messageQueueDir, "inflight", id+".json"))
		if gone {
			return nil
		}
		time.Sleep(200 * time.Millisecond)
	}
	return fmt.Errorf("timed out after %s waiting for envelope %s to be delivered", timeout, id)
}
