package main

import (
	"flag"
	"fmt"
	"path/filepath"

	"github.com/zeusmux/zeus/internal/zeus/config"
	"github.com/zeusmux/zeus/internal/zeus/model"
	"github.com/zeusmux/zeus/internal/zeus/statedir"
	"github.com/zeusmux/zeus/internal/zeus/store"
)

// runStatus is a read-only debugging view: where is this envelope,
// and which resolved recipients still lack a receipt. It directly
// serves --wait-delivery's failure mode (a caller needs to know why a
// send is stuck).
func runStatus(args []string) error {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	stateDirFlag := fs.String("state-dir", statedir.Resolve(), "root directory for durable bus state")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 1 {
		return fmt.Errorf("usage: zeus-msg status <envelope-id>")
	}
	id := fs.Arg(0)

	cfg, err := config.Load(*stateDirFlag, "")
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	messageQueueDir := statedir.MessageQueue(cfg.StateDir)
	agentBusDir := statedir.AgentBus(cfg.StateDir)

	newPath := filepath.Join(messageQueueDir, "new", id+".json")
	inflightPath := filepath.Join(messageQueueDir, "inflight", id+".json")

	var env model.Envelope
	location := "delivered (or unknown id)"
	switch {
	case store.Exists(newPath):
		location = "new"
		env, _ = store.ReadEnvelope(newPath)
	case store.Exists(inflightPath):
		location = "inflight"
		env, _ = store.ReadEnvelope(inflightPath)
	}

	fmt.Printf("envelope %s: location=%s attempts=%d target=%q\n", id, location, env.Attempts, env.Target)
	for _, r := range env.RecipientsResolved {
		receiptPath := filepath.Join(agentBusDir, "receipts", r.AgentID, id+".json")
		if store.Exists(receiptPath) {
			fmt.Printf("  %s: delivered\n", r.AgentID)
		} else {
			fmt.Printf("  %s: pending\n", r.AgentID)
		}
	}
	return nil
}
