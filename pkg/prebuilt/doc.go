// Package prebuilt provides ready-made functions and graph templates.
//
// The function catalogue (Functions, Register) covers common numeric,
// text and table operations, each bound under the "flowgraph.prebuilt"
// module so saved graphs can be loaded again by any registry that holds
// the catalogue. Templates are Builders that lay out small graphs from the
// catalogue, such as a linspace feeding a waveform generator.
package prebuilt
