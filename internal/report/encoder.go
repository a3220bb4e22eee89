// Package report encodes a finished run and hands it to its sinks.
package report

import (
	"bytes"
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"

	"firestige.xyz/pulso/internal/aggregator"
	"firestige.xyz/pulso/internal/core"
	"firestige.xyz/pulso/internal/pipeline"
)

// Output formats.
const (
	FormatText = "text"
	FormatJSON = "json"
	FormatYAML = "yaml"
)

// Document is the structured form of a run result.
type Document struct {
	Device         string             `json:"device" yaml:"device"`
	Reason         string             `json:"reason" yaml:"reason"`
	ElapsedSeconds float64            `json:"elapsed_seconds" yaml:"elapsed_seconds"`
	Total          uint64             `json:"total" yaml:"total"`
	Groups         []aggregator.Group `json:"groups" yaml:"groups"`
}

// NewDocument builds a Document from a pipeline result.
func NewDocument(device string, res pipeline.Result) Document {
	groups := res.Report.Groups
	if groups == nil {
		groups = []aggregator.Group{}
	}
	return Document{
		Device:         device,
		Reason:         res.Reason.String(),
		ElapsedSeconds: res.Elapsed.Seconds(),
		Total:          res.Report.Total,
		Groups:         groups,
	}
}

// Encoder turns a Document into output bytes.
type Encoder interface {
	Encode(doc Document) ([]byte, error)
}

// NewEncoder returns the encoder for format.
func NewEncoder(format string) (Encoder, error) {
	switch format {
	case "", FormatText:
		return TextEncoder{}, nil
	case FormatJSON:
		return JSONEncoder{}, nil
	case FormatYAML:
		return YAMLEncoder{}, nil
	default:
		return nil, fmt.Errorf("%w: unknown report format %q", core.ErrConfigInvalid, format)
	}
}

// TextEncoder writes one newline-terminated line per group and nothing for
// an empty report.
type TextEncoder struct{}

func (TextEncoder) Encode(doc Document) ([]byte, error) {
	var buf bytes.Buffer
	for _, g := range doc.Groups {
		buf.WriteString(g.String())
		buf.WriteByte('\n')
	}
	return buf.Bytes(), nil
}

// JSONEncoder writes the document as a single JSON object.
type JSONEncoder struct{}

func (JSONEncoder) Encode(doc Document) ([]byte, error) {
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encode json report: %w", err)
	}
	return append(data, '\n'), nil
}

// YAMLEncoder writes the document as YAML.
type YAMLEncoder struct{}

func (YAMLEncoder) Encode(doc Document) ([]byte, error) {
	data, err := yaml.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encode yaml report: %w", err)
	}
	return data, nil
}
