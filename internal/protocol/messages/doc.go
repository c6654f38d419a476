// Package messages holds the concrete wire message variants and their
// registration into a registry.Registry.
//
// Adding a variant for a reserved console type is a new file here plus one
// RegisterType call; frame assembly, the registry and the codec stay unchanged.
package messages
