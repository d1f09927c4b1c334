package greeting

import (
	"fmt"
	"net/url"
)

// ImageRef is an absolute URL to an image plus the provider that found it.
type ImageRef struct {
	URL      *url.URL
	Provider string
}

// NewImageRef validates raw as an absolute http(s) URL.
func NewImageRef(raw, provider string) (ImageRef, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return ImageRef{}, fmt.Errorf("parse image url: %w", err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return ImageRef{}, fmt.Errorf("image url %q is not absolute http(s)", raw)
	}
	return ImageRef{URL: u, Provider: provider}, nil
}

// String returns the image URL.
func (r ImageRef) String() string {
	if r.URL == nil {
		return ""
	}
	return r.URL.String()
}
