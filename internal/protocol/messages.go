package protocol

import (
	"encoding/json"
	"fmt"
)

// Bounds for client-adjustable session parameters.
const (
	MinTimeLimitSeconds = 10
	MaxTimeLimitSeconds = 3600
	MinVoiceSpeed       = 0.5
	MaxVoiceSpeed       = 2.0
)

const (
	CodeBadRequest  = "bad_request"
	CodeUnsupported = "unsupported_type"
)

// DecodeError describes a client message the server refused to act on.
type DecodeError struct {
	Code    string
	Message string
	Param   string
}

func (e *DecodeError) Error() string {
	if e.Param != "" {
		return fmt.Sprintf("%s: %s (param %s)", e.Code, e.Message, e.Param)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func badRequest(message, param string) *DecodeError {
	return &DecodeError{Code: CodeBadRequest, Message: message, Param: param}
}

func unsupported(messageType string) *DecodeError {
	return &DecodeError{Code: CodeUnsupported, Message: fmt.Sprintf("unsupported message type %q", messageType)}
}

type StartRecording struct{}

type StopRecording struct{}

type DeliverEvaluation struct{}

type PanicMute struct{}

type ReplayTTS struct{}

type SetTimeLimit struct {
	Seconds int `json:"seconds"`
}

type SetVoice struct {
	Voice string  `json:"voice"`
	Speed float64 `json:"speed"`
}

type SetConsent struct {
	Audio         bool `json:"audio"`
	Video         bool `json:"video"`
	RetainOutputs bool `json:"retain_outputs"`
}

type RevokeConsent struct{}

type SaveOutputs struct{}

// DecodeClientMessage parses one inbound text frame into a typed
// message. The error, when non-nil, is always a *DecodeError the caller
// can surface to the client.
func DecodeClientMessage(data []byte) (any, error) {
	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, badRequest("message is not valid JSON", "")
	}
	if envelope.Type == "" {
		return nil, badRequest("missing message type", "type")
	}

	switch envelope.Type {
	case "start_recording":
		return StartRecording{}, nil

	case "stop_recording":
		return StopRecording{}, nil

	case "deliver_evaluation":
		return DeliverEvaluation{}, nil

	case "panic_mute":
		return PanicMute{}, nil

	case "replay_tts":
		return ReplayTTS{}, nil

	case "set_time_limit":
		var msg SetTimeLimit
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badRequest("malformed set_time_limit", "")
		}
		if msg.Seconds < MinTimeLimitSeconds || msg.Seconds > MaxTimeLimitSeconds {
			return nil, badRequest(
				fmt.Sprintf("seconds must be between %d and %d", MinTimeLimitSeconds, MaxTimeLimitSeconds),
				"seconds",
			)
		}
		return msg, nil

	case "set_voice":
		var msg SetVoice
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badRequest("malformed set_voice", "")
		}
		if msg.Voice == "" {
			return nil, badRequest("voice is required", "voice")
		}
		if msg.Speed == 0 {
			msg.Speed = 1.0
		}
		if msg.Speed < MinVoiceSpeed || msg.Speed > MaxVoiceSpeed {
			return nil, badRequest(
				fmt.Sprintf("speed must be between %v and %v", MinVoiceSpeed, MaxVoiceSpeed),
				"speed",
			)
		}
		return msg, nil

	case "set_consent":
		var msg SetConsent
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badRequest("malformed set_consent", "")
		}
		return msg, nil

	case "revoke_consent":
		return RevokeConsent{}, nil

	case "save_outputs":
		return SaveOutputs{}, nil

	default:
		return nil, unsupported(envelope.Type)
	}
}
