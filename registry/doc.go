// Package registry keeps the models a session streams from.
//
// Models are added as pending and become visible to lookups only after
// Apply, so a render frame never observes a half registered set. All models
// must share one surfel size and one surfels-per-node count; the first model
// fixes both, and every fixed-size slot of the stream pool holds exactly one
// node of any model.
package registry
