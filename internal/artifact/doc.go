// Package artifact implements the artifact registry: the mapping from
// logical artifact roles (design_doc, test_report, ...) to physical files
// under the project root.
//
// The registry performs no caching. Every Exists and Scan call reflects the
// backing filesystem at the moment of the call; gate decisions built on top
// of it are therefore always computed against current state.
package artifact
