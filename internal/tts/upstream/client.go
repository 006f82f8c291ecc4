// Package upstream is the paid synthesis client consulted by the TTS
// Pipeline (C7): a request-with-timeout, inject-or-default http.Client
// that carries a synthesis mode (neural/standard) and returns the raw
// audio bytes plus MIME type, since cached blobs are written whole.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/thunder45/service-translate/internal/apierrors"
)

// Client talks to the external neural/standard TTS service.
type Client struct {
	BaseURL string
	HTTP    *http.Client
	Timeout time.Duration
}

func New(baseURL string, timeout time.Duration) *Client {
	return &Client{BaseURL: baseURL, Timeout: timeout}
}

type synthesizeRequest struct {
	Text  string `json:"text"`
	Voice string `json:"voice"`
	Mode  string `json:"mode"`
	Audio struct {
		Format string `json:"format"`
	} `json:"audio"`
}

// Synthesize issues a synthesis request and returns the audio bytes and
// MIME type, or an apierrors.CodeUpstreamSynthesisFailure error on any
// timeout, non-2xx response, or transport failure — all of which the TTS
// Pipeline treats as triggers for the §4.7 fallback chain, never as a
// frame-level error.
func (c *Client) Synthesize(ctx context.Context, text, voice, mode string) ([]byte, string, error) {
	if text == "" {
		return nil, "", apierrors.New(apierrors.CodeUpstreamSynthesisFailure, "empty text", "Synthesis failed.")
	}

	body, _ := json.Marshal(synthesizeRequest{
		Text:  text,
		Voice: voice,
		Mode:  mode,
		Audio: struct {
			Format string `json:"format"`
		}{Format: "mp3"},
	})

	timeout := c.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/synthesize", bytes.NewReader(body))
	if err != nil {
		return nil, "", apierrors.Wrap(apierrors.CodeUpstreamSynthesisFailure, "could not build synthesis request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	hc := c.HTTP
	if hc == nil {
		hc = &http.Client{}
	}

	resp, err := hc.Do(req)
	if err != nil {
		return nil, "", apierrors.Wrap(apierrors.CodeUpstreamSynthesisFailure, "synthesis request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, "", apierrors.New(apierrors.CodeUpstreamSynthesisFailure,
			fmt.Sprintf("synthesis http %d: %s", resp.StatusCode, string(b)),
			"Synthesis failed.")
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", apierrors.Wrap(apierrors.CodeUpstreamSynthesisFailure, "failed to read synthesis response", err)
	}

	mime := resp.Header.Get("Content-Type")
	if mime == "" {
		mime = "audio/mpeg"
	}
	return data, mime, nil
}
