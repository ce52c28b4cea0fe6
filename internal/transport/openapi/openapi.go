package openapi

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
)

// Document is a loaded and validated OpenAPI description of the REST surface.
type Document struct {
	doc *openapi3.T
}

// Load reads the document at path and rejects it if it is not valid OpenAPI 3.
func Load(ctx context.Context, path string) (*Document, error) {
	loader := openapi3.NewLoader()
	loader.Context = ctx

	doc, err := loader.LoadFromFile(path)
	if err != nil {
		return nil, fmt.Errorf("load openapi document %s: %w", path, err)
	}
	if err := doc.Validate(ctx); err != nil {
		return nil, fmt.Errorf("validate openapi document %s: %w", path, err)
	}
	return &Document{doc: doc}, nil
}

func (d *Document) Version() string {
	if d.doc.Info == nil {
		return ""
	}
	return d.doc.Info.Version
}

// Operations lists every documented operation as "METHOD /path", sorted.
func (d *Document) Operations() []string {
	var ops []string
	for path, item := range d.doc.Paths.Map() {
		for method := range item.Operations() {
			ops = append(ops, strings.ToUpper(method)+" "+path)
		}
	}
	sort.Strings(ops)
	return ops
}

// Documents reports whether the method and path pair is described.
func (d *Document) Documents(method, path string) bool {
	item := d.doc.Paths.Find(path)
	if item == nil {
		return false
	}
	return item.GetOperation(strings.ToUpper(method)) != nil
}
