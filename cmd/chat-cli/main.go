// chat-cli is a minimal terminal driver for the client core, pointed at a
// deployed gateway. It exists to exercise the conversation controller and
// attachment manager end to end; all rendering is plain line output.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"gemchat/internal/attachment"
	"gemchat/internal/conversation"
	"gemchat/internal/domain"
	"gemchat/internal/integrations/gatewayapi"
)

func main() {
	gatewayURL := os.Getenv("GATEWAY_URL")
	if gatewayURL == "" {
		slog.Error("required environment variable is not set", "key", "GATEWAY_URL")
		os.Exit(1)
	}

	client, err := gatewayapi.NewClient(gatewayURL)
	if err != nil {
		slog.Error("failed to create gateway client", "err", err)
		os.Exit(1)
	}

	attachments := attachment.NewManager()
	ctrl, err := conversation.NewController(client, attachments)
	if err != nil {
		slog.Error("failed to create controller", "err", err)
		os.Exit(1)
	}

	ctx := context.Background()
	if hs := client.Health(ctx); hs.Status != domain.HealthOK {
		fmt.Printf("gateway status: %s\n", hs.Status)
	}

	fmt.Println("commands: /attach <file>, /drop, /regen, /reset, /export <file>, /import <file>, /quit")
	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		switch cmd, arg, _ := strings.Cut(line, " "); cmd {
		case "/quit":
			return
		case "/reset":
			ctrl.Reset()
			attachments.Clear()
			fmt.Println("conversation cleared")
		case "/drop":
			if !attachments.HasPending() {
				fmt.Println("nothing attached")
				continue
			}
			attachments.Clear()
			fmt.Println("attachment discarded")
		case "/attach":
			attachFile(attachments, strings.TrimSpace(arg))
		case "/export":
			exportSnapshot(ctrl, strings.TrimSpace(arg))
		case "/import":
			importSnapshot(ctrl, strings.TrimSpace(arg))
		case "/regen":
			reply, err := ctrl.RegenerateLast(ctx)
			printOutcome(reply, err)
		default:
			reply, err := ctrl.Submit(ctx, line)
			printOutcome(reply, err)
		}
	}
}

func printOutcome(reply string, err error) {
	if err != nil {
		fmt.Printf("error [%s]: %v\n", domain.KindOf(err), err)
		return
	}
	if reply != "" {
		fmt.Println(reply)
	}
}

func attachFile(attachments *attachment.Manager, path string) {
	if path == "" {
		fmt.Println("usage: /attach <file>")
		return
	}
	data, err := os.ReadFile(path)
	if err != nil {
		fmt.Printf("error: %v\n", err)
		return
	}
	mimeType := mime.TypeByExtension(filepath.Ext(path))
	if mimeType == "" {
		mimeType = http.DetectContentType(data)
	}
	if err := attachments.Attach(filepath.Base(path), mimeType, data, int64(len(data))); err != nil {
		fmt.Printf("error: %v\n", err)
		return
	}
	fmt.Printf("attached %s (%s, %d bytes); it will ride the next message\n", filepath.Base(path), mimeType, len(data))
}

func exportSnapshot(ctrl *conversation.Controller, path string) {
	if path == "" {
		fmt.Println("usage: /export <file>")
		return
	}
	raw, err := json.MarshalIndent(ctrl.ExportSnapshot(), "", "  ")
	if err != nil {
		fmt.Printf("error: %v\n", err)
		return
	}
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		fmt.Printf("error: %v\n", err)
		return
	}
	fmt.Printf("exported conversation to %s\n", path)
}

func importSnapshot(ctrl *conversation.Controller, path string) {
	if path == "" {
		fmt.Println("usage: /import <file>")
		return
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		fmt.Printf("error: %v\n", err)
		return
	}
	var snap domain.Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		fmt.Printf("error: %v\n", err)
		return
	}
	if err := ctrl.RestoreSnapshot(snap); err != nil {
		fmt.Printf("error: %v\n", err)
		return
	}
	fmt.Printf("restored %d messages from %s\n", len(snap.Messages), path)
}
