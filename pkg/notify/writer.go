package notify

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/goccy/go-yaml"
	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
)

// Writer renders alerts. Implementations must tolerate repeated calls with
// the same alert.
type Writer interface {
	WriteAlert(alert *Alert) error
}

// WriterFunc adapts a function to Writer.
type WriterFunc func(*Alert) error

// WriteAlert calls f.
func (f WriterFunc) WriteAlert(alert *Alert) error {
	return f(alert)
}

// MultiWriter writes each alert to every writer and returns the first error.
func MultiWriter(writers ...Writer) Writer {
	return WriterFunc(func(alert *Alert) error {
		var first error
		for _, w := range writers {
			if err := w.WriteAlert(alert); err != nil && first == nil {
				first = err
			}
		}
		return first
	})
}

// Discard drops every alert.
var Discard Writer = WriterFunc(func(*Alert) error { return nil })

// LogWriter writes alerts as structured log entries.
func LogWriter(logger *zerolog.Logger) Writer {
	return WriterFunc(func(a *Alert) error {
		var ev *zerolog.Event
		switch a.Level {
		case LevelError:
			ev = logger.Error()
		case LevelWarning:
			ev = logger.Warn()
		default:
			ev = logger.Info()
		}
		if a.Err != nil {
			ev = ev.Err(a.Err)
		}
		if a.Source != "" {
			ev = ev.Str("event", a.Source)
		}
		ev.Str("level_name", a.Level.String()).Str("title", a.Title).Msg(a.Message)
		return nil
	})
}

// Format selects a FormatWriter encoding.
type Format string

// Formats understood by FormatWriter.
const (
	FormatText Format = "text"
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// WriterConfig configures a FormatWriter.
type WriterConfig struct {
	ShowTimestamp bool
	ShowDetails   bool
	UseColor      bool
}

// FormatWriter renders alerts to an io.Writer as text, JSON lines or YAML documents.
type FormatWriter struct {
	mu     sync.Mutex
	w      io.Writer
	format Format
	config WriterConfig
}

// NewFormatWriter creates a FormatWriter. Color is enabled for terminals.
func NewFormatWriter(w io.Writer, format Format) *FormatWriter {
	return &FormatWriter{
		w:      w,
		format: format,
		config: WriterConfig{
			ShowDetails: true,
			UseColor:    isTerminal(w),
		},
	}
}

// WithConfig replaces the writer configuration.
func (fw *FormatWriter) WithConfig(config WriterConfig) *FormatWriter {
	fw.config = config
	return fw
}

// alertData is the structured form of an alert.
type alertData struct {
	Level     string   `json:"level" yaml:"level"`
	Title     string   `json:"title,omitempty" yaml:"title,omitempty"`
	Message   string   `json:"message" yaml:"message"`
	Details   []string `json:"details,omitempty" yaml:"details,omitempty"`
	Source    string   `json:"source,omitempty" yaml:"source,omitempty"`
	Error     string   `json:"error,omitempty" yaml:"error,omitempty"`
	Timestamp string   `json:"timestamp,omitempty" yaml:"timestamp,omitempty"`
}

func (fw *FormatWriter) data(a *Alert) alertData {
	d := alertData{
		Level:   a.Level.String(),
		Title:   a.Title,
		Message: a.Message,
		Source:  a.Source,
	}
	if fw.config.ShowDetails {
		d.Details = a.Details
	}
	if a.Err != nil {
		d.Error = a.Err.Error()
	}
	if fw.config.ShowTimestamp {
		d.Timestamp = a.Timestamp.Format("2006-01-02T15:04:05Z07:00")
	}
	return d
}

// WriteAlert implements Writer.
func (fw *FormatWriter) WriteAlert(a *Alert) error {
	fw.mu.Lock()
	defer fw.mu.Unlock()

	switch fw.format {
	case FormatJSON:
		return json.NewEncoder(fw.w).Encode(fw.data(a))
	case FormatYAML:
		out, err := yaml.Marshal(fw.data(a))
		if err != nil {
			return err
		}
		if _, err := io.WriteString(fw.w, "---\n"); err != nil {
			return err
		}
		_, err = fw.w.Write(out)
		return err
	default:
		return fw.writeText(a)
	}
}

func (fw *FormatWriter) writeText(a *Alert) error {
	line := a.String()
	if fw.config.ShowTimestamp {
		line = a.Timestamp.Format("15:04:05") + " " + line
	}
	if fw.config.UseColor {
		line = a.Level.Color() + line + resetColor
	}
	if _, err := fmt.Fprintln(fw.w, line); err != nil {
		return err
	}
	if fw.config.ShowDetails {
		for _, d := range a.Details {
			if _, err := fmt.Fprintf(fw.w, "   %s\n", d); err != nil {
				return err
			}
		}
	}
	return nil
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
