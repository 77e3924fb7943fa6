// monitorclient starts a monitoring session and prints transcripts as
// they arrive over the event websocket. Ctrl-C stops the session and
// prints the summary.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
)

type transcriptResult struct {
	ID         string  `json:"id"`
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
	Start      int64   `json:"start"`
	End        int64   `json:"end"`
	IsTarget   bool    `json:"isTarget"`
	Similarity float64 `json:"similarity"`
}

func main() {
	server := flag.String("server", "http://localhost:8080", "monitor service base URL")
	profileID := flag.String("profile", "", "speaker profile ID (required)")
	device := flag.String("device", "", "audio device, e.g. wav:/path/to/file.wav (required)")
	threshold := flag.Float64("threshold", 0, "similarity threshold override (0 = server default)")
	language := flag.String("language", "", "language code override")
	flag.Parse()

	if *profileID == "" || *device == "" {
		flag.Usage()
		os.Exit(2)
	}

	sessionID, err := startSession(*server, *profileID, *device, *threshold, *language)
	if err != nil {
		log.Fatalf("start session: %v", err)
	}
	log.Printf("session %s started", sessionID)

	wsURL, err := eventsURL(*server, sessionID)
	if err != nil {
		log.Fatalf("events url: %v", err)
	}
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		log.Fatalf("connect events feed: %v", err)
	}
	defer conn.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			var res transcriptResult
			if err := conn.ReadJSON(&res); err != nil {
				return
			}
			tag := "target"
			if !res.IsTarget {
				tag = "other "
			}
			fmt.Printf("[%s %6.2fs-%6.2fs sim=%.2f conf=%.2f] %s\n",
				tag,
				time.Duration(res.Start).Seconds(),
				time.Duration(res.End).Seconds(),
				res.Similarity, res.Confidence, res.Text)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sig:
		log.Println("stopping session")
	case <-done:
		log.Println("event feed closed")
	}

	if err := stopSession(*server, sessionID); err != nil {
		log.Fatalf("stop session: %v", err)
	}
	<-done
}

func startSession(server, profileID, device string, threshold float64, language string) (string, error) {
	body, _ := json.Marshal(map[string]any{
		"profileId": profileID,
		"deviceId":  device,
		"threshold": threshold,
		"language":  language,
	})
	resp, err := http.Post(server+"/v1/sessions", "application/json", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		b, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("http %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	var out struct {
		SessionID string `json:"sessionId"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", err
	}
	return out.SessionID, nil
}

func eventsURL(server, sessionID string) (string, error) {
	u, err := url.Parse(server)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = "/v1/sessions/" + sessionID + "/events"
	return u.String(), nil
}

func stopSession(server, sessionID string) error {
	req, err := http.NewRequest(http.MethodDelete, server+"/v1/sessions/"+sessionID, nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	b, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("http %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	var sum struct {
		DurationMs       int64 `json:"durationMs"`
		WindowsProcessed int64 `json:"windowsProcessed"`
		TargetSegments   int   `json:"targetSegments"`
		Failed           bool  `json:"failed"`
	}
	if err := json.Unmarshal(b, &sum); err != nil {
		return err
	}
	log.Printf("session stopped: duration=%s windows=%d targetSegments=%d failed=%v",
		(time.Duration(sum.DurationMs) * time.Millisecond).Round(time.Second),
		sum.WindowsProcessed, sum.TargetSegments, sum.Failed)
	return nil
}
