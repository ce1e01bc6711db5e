package generator

import (
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"strconv"
	"time"
)

const (
	// fileIDLen is the length of the metadata file_id
	fileIDLen = 16

	// keySuffixLen is the random suffix length of field keys
	keySuffixLen = 8

	// minEntryBytes is the shortest possible data entry:
	// "field_0_abcdefgh":true
	minEntryBytes = len(`"field_0_abcdefgh":true`)
)

// Spec identifies one planned artifact.
type Spec struct {
	Name        string
	TargetSize  int64
	GeneratedAt time.Time
}

// Option configures a Generator.
type Option func(*Generator)

// WithSeed seeds the random source. Zero selects a time-based seed.
func WithSeed(seed uint64) Option {
	return func(g *Generator) {
		g.seed = seed
	}
}

// WithSchemaVersion sets the version written into document metadata.
func WithSchemaVersion(version string) Option {
	return func(g *Generator) {
		g.version = version
	}
}

// WithBatchID sets the batch_id written into document metadata.
func WithBatchID(id string) Option {
	return func(g *Generator) {
		g.batchID = id
	}
}

// WithMaxFields caps the number of data fields per document.
// Zero derives the cap from each document's target size.
func WithMaxFields(n int) Option {
	return func(g *Generator) {
		g.maxFields = n
	}
}

// WithClock overrides the source of generation timestamps.
func WithClock(now func() time.Time) Option {
	return func(g *Generator) {
		g.now = now
	}
}

// Generator plans and builds documents. It is not safe for concurrent use.
type Generator struct {
	rng       *rand.Rand
	seed      uint64
	version   string
	batchID   string
	maxFields int
	now       func() time.Time
}

// New creates a Generator. The schema version, when set, must be
// compatible with SchemaVersion.
func New(opts ...Option) (*Generator, error) {
	g := &Generator{
		version: SchemaVersion,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}

	ok, err := IsCompatible(g.version)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("payload version %s is not compatible with %s", g.version, SchemaVersion)
	}
	if g.maxFields < 0 {
		return nil, fmt.Errorf("max fields must not be negative, got %d", g.maxFields)
	}

	if g.seed == 0 {
		g.seed = uint64(time.Now().UnixNano())
	}
	g.rng = rand.New(rand.NewPCG(g.seed, g.seed^0x9e3779b97f4a7c15))
	return g, nil
}

// Seed returns the seed in use, for reproducing a run.
func (g *Generator) Seed() uint64 {
	return g.seed
}

// Plan returns count specs whose targets vary ±20% around totalSize/count.
// Names are unique within the plan.
func (g *Generator) Plan(count int, totalSize int64) ([]Spec, error) {
	if count <= 0 {
		return nil, fmt.Errorf("count must be positive, got %d", count)
	}
	if totalSize < 0 {
		return nil, fmt.Errorf("total size must not be negative, got %d", totalSize)
	}

	base := float64(totalSize) / float64(count)
	specs := make([]Spec, 0, count)
	seen := make(map[string]struct{}, count)
	for len(specs) < count {
		name := randomName(g.rng)
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		specs = append(specs, Spec{
			Name:        name,
			TargetSize:  int64(base * (0.8 + 0.4*g.rng.Float64())),
			GeneratedAt: g.now(),
		})
	}
	return specs, nil
}

// Build grows a document until its size reaches spec.TargetSize or the
// field ceiling is hit, whichever comes first.
func (g *Generator) Build(spec Spec) (*Document, error) {
	doc := &Document{
		Metadata: Metadata{
			GeneratedAt: spec.GeneratedAt,
			FileID:      randomString(g.rng, alphanumeric, fileIDLen),
			Version:     g.version,
			BatchID:     g.batchID,
		},
	}

	meta, err := json.Marshal(doc.Metadata)
	if err != nil {
		return nil, fmt.Errorf("failed to encode metadata: %w", err)
	}
	// {"metadata":<meta>,"data":{}}
	doc.size = int64(len(`{"metadata":`) + len(meta) + len(`,"data":{}}`))

	ceiling := g.maxFields
	if ceiling == 0 {
		ceiling = int(spec.TargetSize/int64(minEntryBytes)) + 1
	}

	for i := 0; doc.size < spec.TargetSize && i < ceiling; i++ {
		key := "field_" + strconv.Itoa(i) + "_" + randomString(g.rng, lowerLetters, keySuffixLen)
		value, err := json.Marshal(g.randomValue())
		if err != nil {
			return nil, fmt.Errorf("failed to encode field %s: %w", key, err)
		}

		// quoted key, colon, value, and a comma after the first entry
		entry := int64(len(key) + 2 + 1 + len(value))
		if i > 0 {
			entry++
		}
		doc.Data = append(doc.Data, Field{Key: key, Value: value})
		doc.size += entry
	}
	return doc, nil
}

// randomValue draws one of the five value kinds uniformly.
func (g *Generator) randomValue() any {
	switch g.rng.IntN(5) {
	case 0:
		return randomString(g.rng, textAlphabet, 10+g.rng.IntN(491))
	case 1:
		return g.rng.Float64()*2e6 - 1e6
	case 2:
		list := make([]int, 1+g.rng.IntN(50))
		for i := range list {
			list[i] = 1 + g.rng.IntN(1000)
		}
		return list
	case 3:
		n := 1 + g.rng.IntN(10)
		nested := make(map[string]int, n)
		for i := range n {
			nested["nested_"+strconv.Itoa(i)] = 1 + g.rng.IntN(100)
		}
		return nested
	default:
		return g.rng.IntN(2) == 1
	}
}
