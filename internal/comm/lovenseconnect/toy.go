// internal/comm/lovenseconnect/toy.go
package lovenseconnect

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"

	"go.uber.org/zap"

	"haptic-bridge/pkg/hardware"
)

type toyConnector struct {
	toy    remoteToy
	client *http.Client
	logger *zap.Logger
}

// Connect hands out a session; the app keeps the actual radio link
func (c *toyConnector) Connect(ctx context.Context) (hardware.Hardware, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.logger.Info("Lovense Connect toy attached",
		zap.String("toy_id", c.toy.ID),
		zap.String("base_url", c.toy.BaseURL),
	)
	return &Toy{toy: c.toy, client: c.client, logger: c.logger.With(zap.String("toy_id", c.toy.ID))}, nil
}

// Toy forwards raw command payloads to the app's command endpoint
type Toy struct {
	toy    remoteToy
	client *http.Client
	logger *zap.Logger

	mu           sync.Mutex
	disconnected bool
}

func (t *Toy) Name() string    { return t.toy.Name }
func (t *Toy) Address() string { return t.toy.ID }

// Write posts data as the command body
func (t *Toy) Write(ctx context.Context, data []byte) error {
	t.mu.Lock()
	disconnected := t.disconnected
	t.mu.Unlock()
	if disconnected {
		return hardware.SpecificErrorf(hardware.KindLovenseConnect, "toy %s disconnected", t.toy.ID)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.toy.BaseURL+"/command", bytes.NewReader(data))
	if err != nil {
		return hardware.NewSpecificError(hardware.KindLovenseConnect, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Platform", "haptic-bridge")

	resp, err := t.client.Do(req)
	if err != nil {
		return hardware.NewSpecificError(hardware.KindLovenseConnect, fmt.Errorf("send command: %w", err))
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return hardware.SpecificErrorf(hardware.KindLovenseConnect, "command returned status %d", resp.StatusCode)
	}

	t.logger.Debug("Lovense Connect command sent", zap.Int("bytes", len(data)))
	return nil
}

// Disconnect stops forwarding writes
func (t *Toy) Disconnect() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.disconnected = true
	return nil
}
