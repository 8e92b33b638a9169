// Package accessor reads dimensions, variables and hyperslabs from array
// files on disk.
package accessor

import (
	"context"

	"github.com/gigapi/gigapi-dars/schema"
)

// File is one open array file. A File is not safe for concurrent use.
type File interface {
	Dimensions() []schema.Dimension
	Variables() []schema.Variable
	Attributes() schema.Attributes
	// Read returns the hyperslab of variable selected by one range per
	// dimension.
	Read(variable string, ranges []schema.Range) (*schema.Array, error)
	Close() error
}

// Opener opens files by path.
type Opener interface {
	Open(path string) (File, error)
}

// Accessor is the path based view the rest of the server uses. Every call
// is self-contained and safe for concurrent use.
type Accessor interface {
	Describe(ctx context.Context, path string) (*schema.Dataset, error)
	Read(ctx context.Context, path, variable string, ranges []schema.Range) (*schema.Array, error)
}

// Describe builds the schema of an open file.
func Describe(name string, f File) (*schema.Dataset, error) {
	return schema.New(name, f.Dimensions(), f.Variables(), f.Attributes())
}
