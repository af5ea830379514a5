package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os/signal"
	"syscall"
	"time"

	"ride-dispatch/internal/mylogger"
)

// The simulator plays one driver end to end: it reports presence and
// location over HTTP, listens for dispatched requests on the websocket and
// accepts them, then walks the booking through its statuses.

type notificationFrame struct {
	Topic   string          `json:"topic"`
	Payload json.RawMessage `json:"payload"`
}

type requestView struct {
	RequestId string  `json:"request_id"`
	Status    string  `json:"status"`
	Price     float64 `json:"price"`
}

func main() {
	driverID := flag.String("driver_id", "", "driver id to simulate")
	token := flag.String("token", "", "driver JWT")
	baseURL := flag.String("base_url", "http://localhost:3000", "dispatch service base url")
	wsURL := flag.String("ws_url", "ws://localhost:3000", "dispatch service websocket url")
	lat := flag.Float64("lat", 43.236, "initial latitude")
	lon := flag.Float64("lon", 76.886, "initial longitude")
	flag.Parse()

	if *driverID == "" || *token == "" {
		log.Fatal("driver_id and token are required")
	}

	appLogger, err := mylogger.New(mylogger.LevelInfo)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	appLogger = appLogger.With("driver_id", *driverID)
	appLogger.Action("simulator_started").Info("driver simulator starting up")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	httpClient := NewHTTPClient(appLogger)
	wsClient := NewWebSocketClient(ctx, appLogger)

	url := fmt.Sprintf("%s/ws/drivers/%s?token=%s", *wsURL, *driverID, *token)
	if err := wsClient.Connect(url); err != nil {
		log.Fatalf("Failed to connect to websocket: %v", err)
	}
	defer wsClient.Close()

	// Go online with a first location fix.
	if _, err := httpClient.DoRequest("POST",
		fmt.Sprintf("%s/drivers/%s/location", *baseURL, *driverID),
		LocationRequest{Latitude: *lat, Longitude: *lon}, *token); err != nil {
		log.Fatalf("Failed to report location: %v", err)
	}
	if _, err := httpClient.DoRequest("POST",
		fmt.Sprintf("%s/drivers/%s/online", *baseURL, *driverID), nil, *token); err != nil {
		log.Fatalf("Failed to go online: %v", err)
	}
	appLogger.Action("online").Info("driver is online")

	// Accept every dispatched request and drive the booking to completion.
	go func() {
		err := wsClient.ReadMessages(func(payload []byte) error {
			var frame notificationFrame
			if err := json.Unmarshal(payload, &frame); err != nil {
				return err
			}
			appLogger.Action("notification").Info("received", "topic", frame.Topic)

			switch frame.Topic {
			case "dispatch.request.new":
				var view requestView
				if err := json.Unmarshal(frame.Payload, &view); err != nil {
					return err
				}
				go acceptAndDrive(ctx, appLogger, httpClient, *baseURL, *token, view.RequestId)
			case "dispatch.request.cancel":
				appLogger.Action("request_cancelled").Info("request withdrawn by customer")
			}
			return nil
		})
		if err != nil && ctx.Err() == nil {
			appLogger.Error("websocket read loop stopped", err)
			stop()
		}
	}()

	// Periodically report jittered movement until shutdown.
	curLat, curLon := *lat, *lon
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if _, err := httpClient.DoRequest("POST",
				fmt.Sprintf("%s/drivers/%s/offline", *baseURL, *driverID), nil, *token); err != nil {
				appLogger.Error("failed to go offline", err)
			}
			appLogger.Action("simulator_stopped").Info("driver simulator shut down")
			return
		case <-ticker.C:
			curLat += (rand.Float64() - 0.5) / 1000
			curLon += (rand.Float64() - 0.5) / 1000
			if _, err := httpClient.DoRequest("POST",
				fmt.Sprintf("%s/drivers/%s/location", *baseURL, *driverID),
				LocationRequest{Latitude: curLat, Longitude: curLon}, *token); err != nil {
				appLogger.Error("failed to report location", err)
			}
		}
	}
}

func acceptAndDrive(ctx context.Context, log mylogger.Logger, client *HTTPClient, baseURL, token, requestId string) {
	log = log.Action("drive").With("request_id", requestId)

	data, err := client.DoRequest("POST", baseURL+"/bookings",
		BookingCreateRequest{SearchRequestId: requestId}, token)
	if err != nil {
		log.Error("failed to accept request", err)
		return
	}

	var booking BookingResponse
	if err := json.Unmarshal(data, &booking); err != nil {
		log.Error("failed to decode booking", err)
		return
	}
	log.Info("request accepted", "booking_id", booking.BookingId)

	for _, status := range []string{"ARRIVED", "CHECKED_IN", "COMPLETED"} {
		select {
		case <-ctx.Done():
			return
		case <-time.After(5 * time.Second):
		}

		if _, err := client.DoRequest("PATCH",
			fmt.Sprintf("%s/bookings/%s/status", baseURL, booking.BookingId),
			BookingStatusRequest{Status: status}, token); err != nil {
			log.Error("failed to advance booking", err, "status", status)
			return
		}
		log.Info("booking advanced", "status", status)
	}
	log.Info("trip finished")
}
