// Package encode serializes a probe wasm.Module to and from bytes, for
// the cache and for the CLI's on-disk output. Grounded on the
// teacher's build manifest/bundle encoding, which marshals its own
// structs through encoding/json rather than a binary format.
package encode

import (
	"encoding/json"
	"fmt"

	pipelineerrors "fuelprobe/internal/errors"
	"fuelprobe/internal/version"
	"fuelprobe/internal/wasm"
)

// document is the on-disk envelope: the format version travels with
// the module so a reader can reject an incompatible payload before
// touching its contents.
type document struct {
	Format string      `json:"format"`
	Module *wasm.Module `json:"module"`
}

// Marshal renders mod as a versioned JSON document.
func Marshal(mod *wasm.Module) ([]byte, error) {
	doc := document{Format: version.Format, Module: mod}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode probe module: %w", err)
	}
	return data, nil
}

// Unmarshal parses a document produced by Marshal, rejecting one
// stamped with an incompatible format version.
func Unmarshal(data []byte) (*wasm.Module, error) {
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, pipelineerrors.New(pipelineerrors.MalformedModule, "probe module is not valid JSON").Wrap(err)
	}
	if !version.Compatible(doc.Format) {
		return nil, pipelineerrors.Newf(pipelineerrors.InvariantViolation, "incompatible probe format: %s", version.Describe(doc.Format))
	}
	return doc.Module, nil
}
