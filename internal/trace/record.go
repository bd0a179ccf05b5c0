package trace

import (
	"io"
	"time"

	"gopkg.in/yaml.v3"
)

// Record is the human readable form of an Event.
type Record struct {
	Time      time.Time `yaml:"time"`
	Session   string    `yaml:"session,omitempty"`
	Port      string    `yaml:"port,omitempty"`
	Direction string    `yaml:"direction"`
	Category  string    `yaml:"category"`

	Text      string `yaml:"text,omitempty"`
	Size      int    `yaml:"size,omitempty"`
	Truncated bool   `yaml:"truncated,omitempty"`
	TimedOut  bool   `yaml:"timed_out,omitempty"`

	From   string `yaml:"from,omitempty"`
	To     string `yaml:"to,omitempty"`
	Reason string `yaml:"reason,omitempty"`

	Error   string `yaml:"error,omitempty"`
	Context string `yaml:"context,omitempty"`
}

// NewRecord flattens e.
func NewRecord(e Event) Record {
	r := Record{
		Time:      e.Timestamp,
		Session:   e.SessionID,
		Port:      e.Port,
		Direction: e.Direction.String(),
		Category:  e.Category.String(),
	}
	if f := e.Frame; f != nil {
		r.Text = string(f.Data)
		r.Size = f.Size
		r.Truncated = f.Truncated
		r.TimedOut = f.TimedOut
	}
	if s := e.StateChange; s != nil {
		r.From, r.To, r.Reason = s.OldState, s.NewState, s.Reason
	}
	if x := e.Error; x != nil {
		r.Error, r.Context = x.Message, x.Context
	}
	return r
}

// WriteYAML writes events as a YAML sequence.
func WriteYAML(w io.Writer, events []Event) error {
	records := make([]Record, len(events))
	for i, e := range events {
		records[i] = NewRecord(e)
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(records); err != nil {
		return err
	}
	return enc.Close()
}
