// cmd/client/main.go
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"syscall"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"haptic-bridge/internal/config"
	"haptic-bridge/internal/connector"
	"haptic-bridge/internal/utils"
	"haptic-bridge/pkg/message"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "haptic-bridge client: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	address := pflag.StringP("address", "a", cfg.Connector.Address, "websocket address of the remote server")
	body := pflag.StringP("message", "m", `{"type":"RequestServerInfo"}`, "JSON object to send; the id is assigned automatically")
	pflag.Parse()

	logger, err := utils.NewLogger(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer utils.CloseLogger(logger)

	var request message.Message
	if err := json.Unmarshal([]byte(*body), &request); err != nil {
		return fmt.Errorf("invalid message: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	transport := connector.NewWebsocketTransport(*address, cfg.Connector.HandshakeTimeout, logger)
	conn := connector.New(transport, connector.Options{
		RequestTimeout: cfg.Connector.RequestTimeout,
		InboundBuffer:  cfg.Connector.InboundBuffer,
		OnEvent: func(event message.Message) {
			printMessage("event", event)
		},
	}, *address, logger)

	if err := conn.Connect(ctx); err != nil {
		return fmt.Errorf("failed to connect to %s: %w", *address, err)
	}
	defer conn.Disconnect()

	reply, err := conn.Send(ctx, request)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	printReply(reply)

	logger.Info("Waiting for events, interrupt to exit", zap.String("address", *address))
	select {
	case <-ctx.Done():
	case <-conn.Done():
		logger.Info("Server closed the connection", zap.String("address", *address))
	}
	return nil
}

func printMessage(kind string, m message.Message) {
	raw, err := json.Marshal(m)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", kind, err)
		return
	}
	fmt.Printf("%s %s\n", kind, raw)
}

// printReply renders the reply fields as a table, keys sorted
func printReply(m message.Message) {
	keys := make([]string, 0, len(m.Fields))
	for k := range m.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	tw := tablewriter.NewWriter(os.Stdout)
	tw.SetAutoWrapText(false)
	tw.SetHeader([]string{"Field", "Value"})
	tw.Append([]string{message.IDField, strconv.FormatUint(uint64(m.ID), 10)})
	for _, k := range keys {
		tw.Append([]string{k, string(m.Fields[k])})
	}
	tw.Render()
}
