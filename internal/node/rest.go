package node

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/samcm/lavafries/internal/protocol"
)

// LoadTracks resolves an identifier (URL or "<source>search:<query>") on the node.
func (n *Node) LoadTracks(ctx context.Context, identifier, requester string) (protocol.LoadResult, error) {
	resp, err := n.request(ctx, http.MethodGet, "/loadtracks?identifier="+url.QueryEscape(identifier), nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: loadtracks returned status %d", ErrRequestFailed, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read loadtracks response: %w", err)
	}

	return protocol.DecodeLoadResult(body, requester)
}

// RoutePlannerStatus returns the route planner status, or nil when the node
// has no route planner configured.
func (n *Node) RoutePlannerStatus(ctx context.Context) (*protocol.RoutePlannerStatus, error) {
	resp, err := n.request(ctx, http.MethodGet, "/routeplanner/status", nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: routeplanner status returned status %d", ErrRequestFailed, resp.StatusCode)
	}

	var status protocol.RoutePlannerStatus
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return nil, fmt.Errorf("failed to decode routeplanner status: %w", err)
	}

	if status.Class == "" {
		return nil, nil
	}

	return &status, nil
}

// FreeAddress unmarks a failed address. It reports whether the node accepted the request.
func (n *Node) FreeAddress(ctx context.Context, address string) (bool, error) {
	body, err := json.Marshal(map[string]string{"address": address})
	if err != nil {
		return false, err
	}

	return n.free(ctx, "/routeplanner/free/address", body)
}

// FreeAllAddresses unmarks every failed address.
func (n *Node) FreeAllAddresses(ctx context.Context) (bool, error) {
	return n.free(ctx, "/routeplanner/free/all", nil)
}

func (n *Node) free(ctx context.Context, path string, body []byte) (bool, error) {
	resp, err := n.request(ctx, http.MethodPost, path, body)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	_, _ = io.Copy(io.Discard, resp.Body)

	return resp.StatusCode == http.StatusNoContent, nil
}

func (n *Node) request(ctx context.Context, method, path string, body []byte) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, n.opts.restURL(path), reader)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	req.Header.Set("Authorization", n.opts.Password)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s %s: %v", ErrRequestFailed, method, path, err)
	}

	return resp, nil
}
