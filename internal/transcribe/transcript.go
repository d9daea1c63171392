package transcribe

import "strings"

type Word struct {
	Speaker int     `json:"speaker"`
	Text    string  `json:"text"`
	Start   float64 `json:"start"`
	End     float64 `json:"end"`
}

type Segment struct {
	Speaker   int     `json:"speaker"`
	Text      string  `json:"text"`
	StartTime float64 `json:"start_time"`
	EndTime   float64 `json:"end_time"`
}

// Transcript is the finalized output of one recording run.
type Transcript struct {
	Words []Word `json:"words"`
}

func (t Transcript) Empty() bool {
	return len(t.Words) == 0
}

func (t Transcript) WordCount() int {
	return len(t.Words)
}

// Duration reports the end time of the last word, in seconds from the
// start of the recording.
func (t Transcript) Duration() float64 {
	if len(t.Words) == 0 {
		return 0
	}
	return t.Words[len(t.Words)-1].End
}

func (t Transcript) Text() string {
	var b strings.Builder
	for i, w := range t.Words {
		if i > 0 {
			b.WriteString(" ")
		}
		b.WriteString(w.Text)
	}
	return b.String()
}

func (t Transcript) Segments() []Segment {
	return GroupWordsBySpeaker(t.Words)
}

func GroupWordsBySpeaker(words []Word) []Segment {
	if len(words) == 0 {
		return nil
	}

	var segments []Segment
	var current Segment
	started := false

	for _, w := range words {
		if !started {
			current = Segment{
				Speaker:   w.Speaker,
				Text:      w.Text,
				StartTime: w.Start,
				EndTime:   w.End,
			}
			started = true
			continue
		}

		if w.Speaker == current.Speaker {
			current.Text += " " + w.Text
			current.EndTime = w.End
		} else {
			segments = append(segments, current)
			current = Segment{
				Speaker:   w.Speaker,
				Text:      w.Text,
				StartTime: w.Start,
				EndTime:   w.End,
			}
		}
	}

	segments = append(segments, current)
	return segments
}
