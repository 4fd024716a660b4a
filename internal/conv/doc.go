// Package conv checks integer conversions whose operands come from disk.
//
// Arena and slot sizes are products of counts read from .bvh headers, so
// they are multiplied and narrowed here instead of with bare casts.
package conv
