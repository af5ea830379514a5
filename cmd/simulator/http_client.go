package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"ride-dispatch/internal/mylogger"
)

type HTTPClient struct {
	client *http.Client
	log    mylogger.Logger
}

func NewHTTPClient(log mylogger.Logger) *HTTPClient {
	return &HTTPClient{
		client: &http.Client{Timeout: 10 * time.Second},
		log:    log,
	}
}

func (h *HTTPClient) DoRequest(method, url string, body interface{}, token string) ([]byte, error) {
	var bodyBytes []byte
	var err error

	if body != nil {
		bodyBytes, err = json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshaling request body: %w", err)
		}
	}

	req, err := http.NewRequest(method, url, bytes.NewBuffer(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return data, fmt.Errorf("%s %s: status %d: %s", method, url, resp.StatusCode, string(data))
	}
	return data, nil
}

// Request/Response models mirrored from the service DTOs.
type LocationRequest struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

type BookingCreateRequest struct {
	SearchRequestId string `json:"search_request_id"`
}

type BookingStatusRequest struct {
	Status string `json:"status"`
}

type BookingResponse struct {
	BookingId       string `json:"booking_id"`
	SearchRequestId string `json:"search_request_id"`
	DriverId        string `json:"driver_id"`
	Status          string `json:"status"`
}
