package gesture

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"gorgonia.org/tensor"
)

// RemoteBackend runs inference on an HTTP model server. The model file is
// uploaded once with PUT {base}/models/{name}; each inference POSTs to
// {base}/invoke.
type RemoteBackend struct {
	baseURL   string
	modelPath string
	modelName string
	client    *http.Client
}

// NewRemoteBackend targets baseURL with the model at modelPath. client may be
// nil.
func NewRemoteBackend(baseURL, modelPath string, client *http.Client) *RemoteBackend {
	if client == nil {
		client = &http.Client{Timeout: DefaultTimeout}
	}
	return &RemoteBackend{
		baseURL:   strings.TrimRight(baseURL, "/"),
		modelPath: modelPath,
		modelName: filepath.Base(modelPath),
		client:    client,
	}
}

// ModelName is the name the model is registered under on the server.
func (b *RemoteBackend) ModelName() string { return b.modelName }

// Upload sends the model file to the server.
func (b *RemoteBackend) Upload(ctx context.Context) error {
	blob, err := os.ReadFile(b.modelPath)
	if err != nil {
		return fmt.Errorf("read model: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, b.baseURL+"/models/"+b.modelName, bytes.NewReader(blob))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	resp, err := b.client.Do(req)
	if err != nil {
		return fmt.Errorf("upload model: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("upload model: server returned %s", resp.Status)
	}
	return nil
}

type invokeRequest struct {
	Model string         `json:"model"`
	Input [][][2]float32 `json:"input"`
}

type invokeResponse struct {
	Outputs []struct {
		Data json.RawMessage `json:"data"`
	} `json:"outputs"`
}

// Infer implements Backend.
func (b *RemoteBackend) Infer(ctx context.Context, input *tensor.Dense) ([]float32, error) {
	body, err := b.encode(input)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+"/invoke", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := b.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("invoke: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("invoke: server returned %s", resp.Status)
	}

	var out invokeResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadOutput, err)
	}
	if len(out.Outputs) == 0 || len(out.Outputs[0].Data) == 0 {
		return nil, fmt.Errorf("%w: no outputs", ErrBadOutput)
	}
	return decodeProbabilities(out.Outputs[0].Data)
}

func (b *RemoteBackend) encode(input *tensor.Dense) ([]byte, error) {
	shape := input.Shape()
	if len(shape) != 3 || shape[2] != 2 {
		return nil, fmt.Errorf("input shape %v, want 1×N×2", shape)
	}
	data, ok := input.Data().([]float32)
	if !ok {
		return nil, errors.New("input tensor must be float32")
	}
	batch := make([][][2]float32, shape[0])
	for i := range batch {
		rows := make([][2]float32, shape[1])
		for j := range rows {
			off := (i*shape[1] + j) * 2
			rows[j] = [2]float32{data[off], data[off+1]}
		}
		batch[i] = rows
	}
	return json.Marshal(invokeRequest{Model: b.modelName, Input: batch})
}

// decodeProbabilities accepts either a flat vector or a batch whose first row
// is used.
func decodeProbabilities(raw json.RawMessage) ([]float32, error) {
	var flat []float32
	if err := json.Unmarshal(raw, &flat); err == nil {
		return flat, nil
	}
	var batched [][]float32
	if err := json.Unmarshal(raw, &batched); err != nil || len(batched) == 0 {
		return nil, fmt.Errorf("%w: unexpected data layout", ErrBadOutput)
	}
	return batched[0], nil
}
