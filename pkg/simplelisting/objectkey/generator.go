package objectkey

import (
	"crypto/sha256"
	"fmt"
	"strings"
)

// Generator derives the blob key of an uploaded media file.
//
// Keys must be deterministic in (mediaType, fileName): static retrieval
// recomputes the key from the public url.
type Generator interface {
	GenerateKey(mediaType, fileName string) string
}

// TypedPathGenerator stores files under their media type:
// image/photo.jpg, video/tour.mp4, ...
type TypedPathGenerator struct{}

func NewTypedPathGenerator() *TypedPathGenerator {
	return &TypedPathGenerator{}
}

func (g *TypedPathGenerator) GenerateKey(mediaType, fileName string) string {
	return fmt.Sprintf("%s/%s", sanitizePathComponent(mediaType), sanitizeFilename(fileName))
}

// FlatGenerator keys files by name only. Files of different media types
// sharing a name overwrite each other.
type FlatGenerator struct{}

func NewFlatGenerator() *FlatGenerator {
	return &FlatGenerator{}
}

func (g *FlatGenerator) GenerateKey(mediaType, fileName string) string {
	return sanitizeFilename(fileName)
}

// ShardedGenerator spreads files over hash-prefixed directories:
// image/3f/photo.jpg
type ShardedGenerator struct {
	// ShardLength controls how many hex characters name the shard (default: 2)
	ShardLength int
}

func NewShardedGenerator() *ShardedGenerator {
	return &ShardedGenerator{ShardLength: 2}
}

func (g *ShardedGenerator) GenerateKey(mediaType, fileName string) string {
	hash := fmt.Sprintf("%x", sha256.Sum256([]byte(mediaType+"/"+fileName)))
	n := g.ShardLength
	if n <= 0 || n > len(hash) {
		n = 2
	}
	return fmt.Sprintf("%s/%s/%s", sanitizePathComponent(mediaType), hash[:n], sanitizeFilename(fileName))
}

// PrefixGenerator places the keys of another generator under a fixed prefix,
// e.g. one per deployment sharing a bucket.
type PrefixGenerator struct {
	Prefix string
	Base   Generator
}

func NewPrefixGenerator(prefix string, base Generator) *PrefixGenerator {
	return &PrefixGenerator{Prefix: strings.Trim(prefix, "/"), Base: base}
}

func (g *PrefixGenerator) GenerateKey(mediaType, fileName string) string {
	key := g.Base.GenerateKey(mediaType, fileName)
	if g.Prefix == "" {
		return key
	}
	return g.Prefix + "/" + key
}

// New returns the generator registered under name: "typed" (default), "flat"
// or "sharded".
func New(name string) (Generator, error) {
	switch name {
	case "", "typed":
		return NewTypedPathGenerator(), nil
	case "flat":
		return NewFlatGenerator(), nil
	case "sharded":
		return NewShardedGenerator(), nil
	}
	return nil, fmt.Errorf("unknown object key strategy %q", name)
}

var unsafeChars = strings.NewReplacer(
	"/", "_",
	"\\", "_",
	":", "_",
	"*", "_",
	"?", "_",
	"\"", "_",
	"<", "_",
	">", "_",
	"|", "_",
)

func sanitizeFilename(filename string) string {
	return unsafeChars.Replace(filename)
}

func sanitizePathComponent(component string) string {
	return strings.ToLower(strings.ReplaceAll(unsafeChars.Replace(component), " ", "_"))
}
