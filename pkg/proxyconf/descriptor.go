package proxyconf

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"wayfarer-hq/keeper/pkg/identity"
)

// URIScheme prefixes every encoded descriptor.
const URIScheme = "vmess://"

// ExternalPort is the port the platform's TLS edge publishes. It is never the
// inbound port of the runtime config.
const ExternalPort = "443"

// ErrInvalidURI is returned by DecodeURI for input it cannot parse.
var ErrInvalidURI = errors.New("invalid vmess uri")

// Descriptor is the client-facing connection description. Field order fixes
// the JSON key order, which keeps the encoded URI byte-stable.
type Descriptor struct {
	Version     string `json:"v"`
	DisplayName string `json:"ps"`
	Address     string `json:"add"`
	Port        string `json:"port"`
	ID          string `json:"id"`
	AlterID     string `json:"aid"`
	Network     string `json:"net"`
	Type        string `json:"type"`
	Host        string `json:"host"`
	Path        string `json:"path"`
	TLS         string `json:"tls"`
}

// DescriptorOption adjusts optional descriptor fields.
type DescriptorOption func(*Descriptor)

// WithDisplayName overrides the default "keeper-<domain>" remark.
func WithDisplayName(name string) DescriptorOption {
	return func(d *Descriptor) {
		if name != "" {
			d.DisplayName = name
		}
	}
}

// BuildDescriptor derives the client descriptor for p as published under
// publicDomain. An empty publicDomain falls back to identity.FallbackDomain.
func BuildDescriptor(p identity.Parameters, publicDomain string, opts ...DescriptorOption) Descriptor {
	domain := strings.TrimSpace(publicDomain)
	if domain == "" {
		domain = identity.FallbackDomain
	}

	d := Descriptor{
		Version:     "2",
		DisplayName: "keeper-" + domain,
		Address:     domain,
		Port:        ExternalPort,
		ID:          p.ID(),
		AlterID:     "0",
		Network:     "ws",
		Type:        "none",
		Host:        domain,
		Path:        p.Path(),
		TLS:         "tls",
	}
	for _, opt := range opts {
		opt(&d)
	}
	return d
}

// JSON returns the compact JSON form that EncodeURI encodes. HTML
// characters in the path or host are kept literal.
func (d Descriptor) JSON() ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(d); err != nil {
		return nil, fmt.Errorf("failed to encode descriptor: %w", err)
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// EncodeURI returns "vmess://" followed by the standard base64 of d's JSON.
func EncodeURI(d Descriptor) (string, error) {
	data, err := d.JSON()
	if err != nil {
		return "", err
	}
	return URIScheme + base64.StdEncoding.EncodeToString(data), nil
}

// DecodeURI reverses EncodeURI. Unpadded and URL-safe base64 are accepted
// because clients commonly re-export links in those forms.
func DecodeURI(uri string) (Descriptor, error) {
	payload, ok := strings.CutPrefix(strings.TrimSpace(uri), URIScheme)
	if !ok {
		return Descriptor{}, fmt.Errorf("%w: missing %s prefix", ErrInvalidURI, URIScheme)
	}

	var data []byte
	var err error
	for _, enc := range []*base64.Encoding{
		base64.StdEncoding,
		base64.RawStdEncoding,
		base64.URLEncoding,
		base64.RawURLEncoding,
	} {
		data, err = enc.DecodeString(payload)
		if err == nil {
			break
		}
	}
	if err != nil {
		return Descriptor{}, fmt.Errorf("%w: %v", ErrInvalidURI, err)
	}

	var d Descriptor
	if err := json.Unmarshal(data, &d); err != nil {
		return Descriptor{}, fmt.Errorf("%w: %v", ErrInvalidURI, err)
	}
	return d, nil
}

// QRCodeURL returns an image URL rendering uri as a QR code.
func QRCodeURL(uri string) string {
	return "https://api.qrserver.com/v1/create-qr-code/?size=200x200&data=" + url.QueryEscape(uri)
}
