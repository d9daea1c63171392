package protocol

import "errors"

// MediaKind is the leading byte of a binary client frame.
type MediaKind byte

const (
	MediaAudio MediaKind = 0x01
	MediaVideo MediaKind = 0x02
)

func (k MediaKind) String() string {
	switch k {
	case MediaAudio:
		return "audio"
	case MediaVideo:
		return "video"
	default:
		return "unknown"
	}
}

type MediaFrame struct {
	Kind    MediaKind
	Payload []byte
}

var (
	ErrEmptyFrame       = errors.New("empty media frame")
	ErrUnknownMediaKind = errors.New("unknown media kind")
)

// DecodeMediaFrame splits a binary frame into its kind byte and payload.
// The payload aliases the input; callers that retain it must copy.
func DecodeMediaFrame(data []byte) (MediaFrame, error) {
	if len(data) == 0 {
		return MediaFrame{}, ErrEmptyFrame
	}

	kind := MediaKind(data[0])
	if kind != MediaAudio && kind != MediaVideo {
		return MediaFrame{}, ErrUnknownMediaKind
	}

	return MediaFrame{Kind: kind, Payload: data[1:]}, nil
}
