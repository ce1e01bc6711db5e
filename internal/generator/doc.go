// Package generator produces the synthetic documents of a batch.
//
// Plan divides an aggregate size budget across K artifacts, giving each a
// target within ±20% of the mean. Build grows one document field by field
// until its serialized size reaches the target. Sizes are tracked exactly:
// every appended entry adds its own marshaled length, so Document.Size
// always equals the length of the compact JSON encoding.
package generator
