// internal/comm/lovenseconnect/service.go
package lovenseconnect

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
)

// hub is one phone/desktop app instance exposing toys on the LAN
type hub struct {
	DeviceID  string         `json:"deviceId"`
	Domain    string         `json:"domain"`
	HTTPPort  int            `json:"httpPort"`
	HTTPSPort int            `json:"httpsPort"`
	Platform  string         `json:"platform"`
	Toys      map[string]toy `json:"toys"`
}

type toy struct {
	ID       string      `json:"id"`
	Name     string      `json:"name"`
	Nickname string      `json:"nickName"`
	Status   json.Number `json:"status"`
}

// connected reports the app's toy status; "1" means the toy is linked
func (t toy) connected() bool {
	n, err := strconv.Atoi(t.Status.String())
	return err == nil && n == 1
}

// remoteToy is a flattened view of one connected toy
type remoteToy struct {
	ID      string
	Name    string
	BaseURL string
}

// fetchToys queries the toy list service
func fetchToys(ctx context.Context, client *http.Client, url, scheme string) ([]remoteToy, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("query toy list: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("toy list returned status %d", resp.StatusCode)
	}

	var hubs map[string]hub
	if err := json.NewDecoder(resp.Body).Decode(&hubs); err != nil {
		return nil, fmt.Errorf("decode toy list: %w", err)
	}

	var out []remoteToy
	for _, h := range hubs {
		port := h.HTTPSPort
		if scheme == "http" {
			port = h.HTTPPort
		}
		base := fmt.Sprintf("%s://%s:%d", scheme, h.Domain, port)

		for id, t := range h.Toys {
			if !t.connected() {
				continue
			}
			if t.ID != "" {
				id = t.ID
			}
			name := t.Name
			if t.Nickname != "" {
				name = t.Nickname
			}
			out = append(out, remoteToy{ID: id, Name: name, BaseURL: base})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
