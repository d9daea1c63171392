// Command podium-mic records a rehearsal from the default microphone,
// streams it to a running podium server, and plays back the spoken
// feedback as a WAV file on disk.
package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	microphone "github.com/deepgram/deepgram-go-sdk/v3/pkg/audio/microphone"
	"github.com/gorilla/websocket"

	"github.com/avendahl/podium/internal/protocol"
)

type command struct {
	Type string `json:"type"`
}

type consentCommand struct {
	Type          string `json:"type"`
	Audio         bool   `json:"audio"`
	Video         bool   `json:"video"`
	RetainOutputs bool   `json:"retain_outputs"`
}

type timeLimitCommand struct {
	Type    string `json:"type"`
	Seconds int    `json:"seconds"`
}

// serverSignals are closed by the read loop as the pipeline advances.
type serverSignals struct {
	delivered chan struct{}
	saved     chan struct{}
}

func main() {
	serverURL := flag.String("server", envOrDefault("PODIUM_URL", "ws://127.0.0.1:8080/ws"), "podium websocket endpoint")
	outPath := flag.String("out", "feedback.wav", "where to write the spoken feedback")
	keep := flag.Bool("keep", false, "ask the server to retain this run's outputs")
	timeLimit := flag.Int("time-limit", 0, "speech time limit in seconds (0 keeps the server default)")
	flag.Parse()

	conn, _, err := websocket.DefaultDialer.Dial(*serverURL, nil)
	if err != nil {
		log.Fatalf("connect %s failed: %v", *serverURL, err)
	}
	defer conn.Close()

	var writeMu sync.Mutex
	sendJSON := func(v any) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		return conn.WriteJSON(v)
	}

	signals := &serverSignals{
		delivered: make(chan struct{}),
		saved:     make(chan struct{}),
	}
	readErrCh := make(chan error, 1)
	go func() {
		readErrCh <- readServerLoop(conn, *outPath, signals)
	}()

	if err := sendJSON(consentCommand{Type: "set_consent", Audio: true, RetainOutputs: *keep}); err != nil {
		log.Fatalf("send consent failed: %v", err)
	}
	if *timeLimit > 0 {
		if err := sendJSON(timeLimitCommand{Type: "set_time_limit", Seconds: *timeLimit}); err != nil {
			log.Fatalf("send time limit failed: %v", err)
		}
	}

	microphone.Initialize()
	defer microphone.Teardown()

	var mic *microphone.Microphone
	for _, rate := range sampleRateCandidates() {
		mic, err = microphone.New(microphone.AudioConfig{InputChannels: 1, SamplingRate: float32(rate)})
		if err != nil {
			log.Printf("warning: microphone open failed at %d Hz: %v", rate, err)
			continue
		}
		log.Printf("microphone open at %d Hz", rate)
		break
	}
	if mic == nil {
		log.Fatal("no usable microphone")
	}
	if err := mic.Start(); err != nil {
		log.Fatalf("microphone start failed: %v", err)
	}
	defer func() { _ = mic.Stop() }()

	if err := sendJSON(command{Type: "start_recording"}); err != nil {
		log.Fatalf("start recording failed: %v", err)
	}

	go streamMicWithRetry(mic, &frameWriter{conn: conn, writeMu: &writeMu}, time.Sleep, log.Printf)

	fmt.Println("recording — press Enter to finish")

	enter := make(chan struct{})
	go func() {
		_, _ = bufio.NewReader(os.Stdin).ReadString('\n')
		close(enter)
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-enter:
	case <-sig:
	case err := <-readErrCh:
		log.Fatalf("connection lost: %v", err)
	}

	mic.Mute()
	_ = sendJSON(command{Type: "stop_recording"})
	_ = sendJSON(command{Type: "deliver_evaluation"})

	select {
	case <-signals.delivered:
	case err := <-readErrCh:
		if err != nil {
			log.Fatalf("connection lost: %v", err)
		}
		return
	case <-time.After(2 * time.Minute):
		log.Fatal("timed out waiting for feedback")
	case <-sig:
		return
	}

	if *keep {
		_ = sendJSON(command{Type: "save_outputs"})
		select {
		case <-signals.saved:
		case <-time.After(5 * time.Second):
			log.Println("warning: no save confirmation from server")
		case err := <-readErrCh:
			if err != nil {
				log.Printf("connection lost: %v", err)
			}
		}
	}

	writeMu.Lock()
	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	writeMu.Unlock()
}

// readServerLoop prints pipeline events and captures the spoken
// feedback. Binary frames are the TTS clip; the last one wins.
func readServerLoop(conn *websocket.Conn, outPath string, signals *serverSignals) error {
	var evaluationShown bool
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return nil
			}
			return err
		}

		if msgType == websocket.BinaryMessage {
			if err := os.WriteFile(outPath, data, 0o644); err != nil {
				log.Printf("warning: write %s failed: %v", outPath, err)
			} else {
				log.Printf("spoken feedback written to %s (%d bytes)", outPath, len(data))
			}
			continue
		}

		var evt struct {
			Type             string  `json:"type"`
			SessionID        string  `json:"session_id"`
			State            string  `json:"state"`
			Stage            string  `json:"stage"`
			Message          string  `json:"message"`
			Evaluation       string  `json:"evaluation"`
			Recoverable      bool    `json:"recoverable"`
			Reason           string  `json:"reason"`
			OutputID         string  `json:"output_id"`
			EstimatedSeconds float64 `json:"estimated_seconds"`
		}
		if err := json.Unmarshal(data, &evt); err != nil {
			log.Printf("warning: unreadable server event: %v", err)
			continue
		}

		switch evt.Type {
		case "session_ready":
			log.Printf("session %s", evt.SessionID)
		case "state_change":
			log.Printf("state: %s", evt.State)
		case "pipeline_progress":
			if evt.Message != "" {
				log.Printf("progress: %s (%s)", evt.Stage, evt.Message)
			} else {
				log.Printf("progress: %s", evt.Stage)
			}
		case "duration_estimate":
			log.Printf("spoke for about %.0f seconds", evt.EstimatedSeconds)
		case "evaluation_ready":
			if !evaluationShown {
				evaluationShown = true
				fmt.Println("\n--- feedback ---")
				fmt.Println(evt.Evaluation)
				fmt.Println("----------------")
			}
		case "tts_complete":
			close(signals.delivered)
		case "output_saved":
			log.Printf("saved as %s", evt.OutputID)
			close(signals.saved)
		case "data_purged":
			log.Printf("server purged session data: %s", evt.Reason)
		case "error":
			if evt.Recoverable {
				log.Printf("server error: %s", evt.Message)
				continue
			}
			return fmt.Errorf("server error: %s", evt.Message)
		}
	}
}

// frameWriter wraps microphone chunks as audio media frames. The
// microphone stream and control messages share one connection, so
// every write holds the connection mutex.
type frameWriter struct {
	conn    *websocket.Conn
	writeMu *sync.Mutex
}

func (w *frameWriter) Write(p []byte) (int, error) {
	frame := make([]byte, 0, len(p)+1)
	frame = append(frame, byte(protocol.MediaAudio))
	frame = append(frame, p...)

	w.writeMu.Lock()
	defer w.writeMu.Unlock()
	if err := w.conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
		return 0, err
	}
	return len(p), nil
}

type micStreamer interface {
	Stream(writer io.Writer) error
}

func streamMicWithRetry(streamer micStreamer, writer io.Writer, wait func(time.Duration), logf func(string, ...any)) {
	for {
		err := streamer.Stream(writer)
		if err == nil {
			return
		}

		if strings.Contains(strings.ToLower(err.Error()), "overflow") {
			logf("warning: mic input overflow, restarting stream")
			wait(250 * time.Millisecond)
			continue
		}

		logf("mic stream error: %v", err)
		return
	}
}

func parseSampleRates(raw string) []int {
	parts := strings.Split(raw, ",")
	seen := make(map[int]struct{}, len(parts))
	result := make([]int, 0, len(parts))

	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}
		rate, err := strconv.Atoi(trimmed)
		if err != nil || rate <= 0 {
			continue
		}
		if _, ok := seen[rate]; ok {
			continue
		}
		seen[rate] = struct{}{}
		result = append(result, rate)
	}
	return result
}

// sampleRateCandidates lists mic rates to try, preferred first. 16 kHz
// leads because that is what the server's transcriber is configured
// for by default.
func sampleRateCandidates() []int {
	defaults := []int{16000, 48000, 44100, 32000, 24000}
	combined := make([]int, 0, 8)

	if preferred := strings.TrimSpace(os.Getenv("MIC_SAMPLE_RATE")); preferred != "" {
		combined = append(combined, parseSampleRates(preferred)...)
	}
	combined = append(combined, parseSampleRates(os.Getenv("MIC_SAMPLE_RATES"))...)
	combined = append(combined, defaults...)

	seen := make(map[int]struct{}, len(combined))
	result := make([]int, 0, len(combined))
	for _, rate := range combined {
		if _, ok := seen[rate]; ok {
			continue
		}
		seen[rate] = struct{}{}
		result = append(result, rate)
	}
	return result
}

func envOrDefault(key, fallback string) string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return val
}
