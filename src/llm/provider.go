// Package llm talks to the vision-capable chat models. Exactly one provider
// client is live at a time; the Adapter rebuilds it when the config changes.
package llm

import (
	"context"
	"encoding/base64"
	"errors"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

const (
	Temperature = 0.2
	MaxTokens   = 4000
)

var (
	// ErrNoClient means no API key is configured.
	ErrNoClient      = errors.New("no AI client configured")
	ErrEmptyResponse = errors.New("empty response from model")
)

// Image is an encoded screenshot ready to attach to a request.
type Image struct {
	Data     []byte
	MIMEType string
}

// NewImage sniffs the MIME type of data, defaulting to PNG when it does
// not look like an image.
func NewImage(data []byte) Image {
	mt := mimetype.Detect(data).String()
	if !strings.HasPrefix(mt, "image/") {
		mt = "image/png"
	}
	return Image{Data: data, MIMEType: mt}
}

// DataURL renders the image as a base64 data URL.
func (i Image) DataURL() string {
	return "data:" + i.MIMEType + ";base64," + base64.StdEncoding.EncodeToString(i.Data)
}

// Request is a single-turn prompt. Images are only sent by Extract.
type Request struct {
	System string
	User   string
	Images []Image
}

// Provider is a model-bound client for one vendor.
type Provider interface {
	Name() string
	Model() string
	// Extract sends the system and user text together with the images.
	Extract(ctx context.Context, req Request) (string, error)
	// Generate sends a text-only prompt.
	Generate(ctx context.Context, req Request) (string, error)
}

// Client is a live vendor connection that can be bound to any of its models.
type Client interface {
	Name() string
	Bind(model string) Provider
}
