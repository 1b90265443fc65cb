// Package file loads the subscription document from a YAML or JSON file.
package file

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/JakeFAU/catalog-alerts/internal/alert"
)

// Source re-reads the document on every fetch so edits apply to the next cycle.
type Source struct {
	path string
}

// New returns a Source for path.
func New(path string) (*Source, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("subscriptions path is required")
	}
	return &Source{path: path}, nil
}

// FetchSubscriptions reads and decodes the document.
func (s *Source) FetchSubscriptions(ctx context.Context) (alert.SubscriptionDocument, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: subscriptions: %w", alert.ErrFetch, err)
	}
	// #nosec G304 -- path comes from operator configuration.
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("%w: read subscriptions: %w", alert.ErrFetch, err)
	}
	doc, err := Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", alert.ErrFetch, s.path, err)
	}
	return doc, nil
}

// Decode parses a YAML (or JSON) subscription document.
// Unknown keys inside a label are rejected; an empty input is an empty document.
func Decode(r io.Reader) (alert.SubscriptionDocument, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	doc := alert.SubscriptionDocument{}
	if err := dec.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return alert.SubscriptionDocument{}, nil
		}
		return nil, fmt.Errorf("decode subscriptions: %w", err)
	}
	for label := range doc {
		if strings.TrimSpace(label) == "" {
			return nil, fmt.Errorf("decode subscriptions: empty label")
		}
	}
	return doc, nil
}
