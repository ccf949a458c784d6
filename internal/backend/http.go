package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"

	"PersonaChat/internal/llmerr"
)

const maxResponseBytes = 8 << 20

// postJSON sends in as JSON and decodes a 200 response into out. Every
// failure comes back as an *llmerr.Error.
func postJSON(ctx context.Context, client *http.Client, url string, header http.Header, in, out any) error {
	jsonData, err := json.Marshal(in)
	if err != nil {
		return llmerr.Wrap(llmerr.KindProvider, "failed to marshal request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonData))
	if err != nil {
		return llmerr.FromTransport("failed to create request", err)
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("content-type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return llmerr.FromTransport("failed to send request", err)
	}
	defer resp.Body.Close()

	body, err := readAllLimit(resp.Body, maxResponseBytes)
	if err != nil {
		return llmerr.FromTransport("failed to read response", err)
	}

	if resp.StatusCode != http.StatusOK {
		return llmerr.FromStatus(resp.StatusCode, body)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return llmerr.Wrap(llmerr.KindProvider, "failed to unmarshal response", err)
	}
	return nil
}

func readAllLimit(r io.Reader, n int64) ([]byte, error) {
	return io.ReadAll(io.LimitReader(r, n))
}
