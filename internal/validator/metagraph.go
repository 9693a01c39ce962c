package validator

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// HTTPMetagraphSource fetches the current neuron set from a metagraph
// sync endpoint (the blockchain RPC client itself is out of scope; this
// models its response surface only).
type HTTPMetagraphSource struct {
	url    string
	client *http.Client
}

// NewHTTPMetagraphSource creates a source pointed at the given metagraph
// sync URL. A zero-value client is replaced with a 10s-timeout default.
func NewHTTPMetagraphSource(url string, client *http.Client) *HTTPMetagraphSource {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &HTTPMetagraphSource{url: url, client: client}
}

type metagraphNeuronDTO struct {
	Hotkey          string  `json:"hotkey"`
	Active          bool    `json:"active"`
	ValidatorPermit bool    `json:"validator_permit"`
	StakeTao        float64 `json:"stake_tao"`
}

// SyncMetagraph implements MetagraphSource.
func (s *HTTPMetagraphSource) SyncMetagraph(ctx context.Context) ([]Neuron, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, fmt.Errorf("build metagraph request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sync metagraph: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("metagraph source returned status %d", resp.StatusCode)
	}

	var dtos []metagraphNeuronDTO
	if err := json.NewDecoder(resp.Body).Decode(&dtos); err != nil {
		return nil, fmt.Errorf("decode metagraph response: %w", err)
	}

	neurons := make([]Neuron, 0, len(dtos))
	for _, d := range dtos {
		neurons = append(neurons, Neuron{
			Hotkey:          d.Hotkey,
			Active:          d.Active,
			ValidatorPermit: d.ValidatorPermit,
			StakeTao:        d.StakeTao,
		})
	}
	return neurons, nil
}
