package config

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"

	"github.com/matthewbaird/outbreak/internal/types"
)

//go:embed catalogue.cue
var catalogueSchema string

// ErrInvalidCatalogue is returned when a catalogue document does not match
// the schema.
var ErrInvalidCatalogue = errors.New("invalid disease catalogue")

// ValidateCatalogue checks a JSON catalogue document against the embedded
// CUE schema.
func ValidateCatalogue(doc []byte) error {
	ctx := cuecontext.New()
	schema := ctx.CompileString(catalogueSchema, cue.Filename("catalogue.cue"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compiling catalogue schema: %w", err)
	}
	def := schema.LookupPath(cue.ParsePath("#Catalogue"))

	val := ctx.CompileBytes(doc, cue.Filename("catalogue.json"))
	if err := val.Err(); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidCatalogue, cueerrors.Details(err, nil))
	}
	if err := def.Unify(val).Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidCatalogue, cueerrors.Details(err, nil))
	}
	return nil
}

// DecodeCatalogue validates and decodes a catalogue document.
func DecodeCatalogue(doc []byte) (types.Catalogue, error) {
	if err := ValidateCatalogue(doc); err != nil {
		return types.Catalogue{}, err
	}
	var cat types.Catalogue
	if err := json.Unmarshal(doc, &cat); err != nil {
		return types.Catalogue{}, fmt.Errorf("%w: %v", ErrInvalidCatalogue, err)
	}
	return cat, nil
}

// DocumentSource fetches a raw catalogue document.
type DocumentSource interface {
	CatalogueDocument(ctx context.Context) ([]byte, error)
}

// ValidatingCatalogue validates every document fetched from Source before
// decoding it.
type ValidatingCatalogue struct {
	Source DocumentSource
}

// Catalogue fetches, validates and decodes the catalogue.
func (v ValidatingCatalogue) Catalogue(ctx context.Context) (types.Catalogue, error) {
	doc, err := v.Source.CatalogueDocument(ctx)
	if err != nil {
		return types.Catalogue{}, err
	}
	return DecodeCatalogue(doc)
}

// FileCatalogue reads the disease catalogue from a local JSON file. The file
// is read on every call so edits apply to the next run.
type FileCatalogue struct {
	Path string
}

// CatalogueDocument reads the file.
func (f FileCatalogue) CatalogueDocument(_ context.Context) ([]byte, error) {
	doc, err := os.ReadFile(f.Path)
	if err != nil {
		return nil, fmt.Errorf("reading catalogue: %w", err)
	}
	return doc, nil
}

// Catalogue reads, validates and decodes the file.
func (f FileCatalogue) Catalogue(ctx context.Context) (types.Catalogue, error) {
	return ValidatingCatalogue{Source: f}.Catalogue(ctx)
}
