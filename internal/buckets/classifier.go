package buckets

import (
	"fmt"
	"math"

	"github.com/pharmadash/pharmadash-manager/internal/entity"
	gerr "github.com/pharmadash/pharmadash-manager/internal/errors"
)

// Bucket is one named half-open interval [Lower, Upper) of a spec.
// IncludeUpper additionally claims the Upper boundary itself; because rows
// are matched against buckets in definition order, an inclusive upper bound
// takes the boundary value away from the next bucket. That is how the
// evolution tiers keep "stable" symmetric at +/-5.
type Bucket struct {
	Name         string
	Lower        float64
	Upper        float64
	IncludeUpper bool
}

func (b Bucket) contains(v float64) bool {
	if v >= b.Lower && v < b.Upper {
		return true
	}
	return b.IncludeUpper && v == b.Upper
}

// KeyFunc extracts the classification key of a row. ok == false marks an
// undefined key (e.g. stock-months with no sales in period); such rows go to
// the spec's default bucket, or are dropped when the spec has none.
type KeyFunc func(entity.Row) (value float64, ok bool)

// Spec is a validated, ordered, exhaustive partition of (-inf, +inf).
type Spec struct {
	name          string
	buckets       []Bucket
	defaultBucket string
}

// NewSpec fails fast with ErrInvalidBucketSpec unless the buckets cover
// (-inf, +inf) in order, without gaps or overlaps. defaultBucket names the
// bucket receiving undefined-key rows; empty means such rows are excluded.
func NewSpec(name string, buckets []Bucket, defaultBucket string) (*Spec, error) {
	if len(buckets) == 0 {
		return nil, fmt.Errorf("%w: %s: no buckets", gerr.ErrInvalidBucketSpec, name)
	}
	seen := map[string]struct{}{}
	for i, b := range buckets {
		if b.Name == "" {
			return nil, fmt.Errorf("%w: %s: bucket %d has no name", gerr.ErrInvalidBucketSpec, name, i)
		}
		if _, dup := seen[b.Name]; dup {
			return nil, fmt.Errorf("%w: %s: duplicate bucket name %q", gerr.ErrInvalidBucketSpec, name, b.Name)
		}
		seen[b.Name] = struct{}{}
		if !(b.Lower < b.Upper) {
			return nil, fmt.Errorf("%w: %s: bucket %q bounds not increasing", gerr.ErrInvalidBucketSpec, name, b.Name)
		}
		if i > 0 && buckets[i-1].Upper != b.Lower {
			return nil, fmt.Errorf("%w: %s: gap or overlap between %q and %q",
				gerr.ErrInvalidBucketSpec, name, buckets[i-1].Name, b.Name)
		}
	}
	if !math.IsInf(buckets[0].Lower, -1) {
		return nil, fmt.Errorf("%w: %s: first bucket must start at -inf", gerr.ErrInvalidBucketSpec, name)
	}
	if !math.IsInf(buckets[len(buckets)-1].Upper, 1) {
		return nil, fmt.Errorf("%w: %s: last bucket must end at +inf", gerr.ErrInvalidBucketSpec, name)
	}
	if defaultBucket != "" {
		if _, ok := seen[defaultBucket]; !ok {
			return nil, fmt.Errorf("%w: %s: default bucket %q not defined", gerr.ErrInvalidBucketSpec, name, defaultBucket)
		}
	}
	return &Spec{name: name, buckets: buckets, defaultBucket: defaultBucket}, nil
}

// MustSpec panics on an invalid spec. The standard tier tables are package
// constants; a failure here is a programming error.
func MustSpec(name string, buckets []Bucket, defaultBucket string) *Spec {
	s, err := NewSpec(name, buckets, defaultBucket)
	if err != nil {
		panic(err)
	}
	return s
}

func (s *Spec) Name() string { return s.name }

// BucketNames returns the bucket names in definition order.
func (s *Spec) BucketNames() []string {
	names := make([]string, len(s.buckets))
	for i, b := range s.buckets {
		names[i] = b.Name
	}
	return names
}

// BucketRows pairs one bucket with its members, input order preserved.
type BucketRows struct {
	Bucket Bucket
	Rows   []entity.Row
}

// Result is an ordered classification: every bucket of the spec is present,
// even when empty.
type Result struct {
	spec    *Spec
	ordered []BucketRows
	byName  map[string][]entity.Row
}

// Buckets returns the partition in spec definition order.
func (r *Result) Buckets() []BucketRows { return r.ordered }

// Rows returns the members of one bucket (nil-safe empty slice for unknown
// names so callers never special-case missing keys).
func (r *Result) Rows(name string) []entity.Row {
	if rows, ok := r.byName[name]; ok {
		return rows
	}
	return []entity.Row{}
}

// ToMap returns the bucketed response shape {bucketName: rows}, with every
// bucket name present.
func (r *Result) ToMap() map[string][]entity.Row {
	out := make(map[string][]entity.Row, len(r.byName))
	for name, rows := range r.byName {
		out[name] = rows
	}
	return out
}

// Classify assigns each row to exactly one bucket by lower <= key < upper
// (first match in definition order). Rows with undefined keys go to the
// default bucket, or nowhere when the spec excludes them.
func (s *Spec) Classify(rows []entity.Row, key KeyFunc) *Result {
	byName := make(map[string][]entity.Row, len(s.buckets))
	for _, b := range s.buckets {
		byName[b.Name] = []entity.Row{}
	}
	for _, row := range rows {
		v, ok := key(row)
		if !ok || math.IsNaN(v) {
			if s.defaultBucket != "" {
				byName[s.defaultBucket] = append(byName[s.defaultBucket], row)
			}
			continue
		}
		for _, b := range s.buckets {
			if b.contains(v) {
				byName[b.Name] = append(byName[b.Name], row)
				break
			}
		}
	}
	ordered := make([]BucketRows, len(s.buckets))
	for i, b := range s.buckets {
		ordered[i] = BucketRows{Bucket: b, Rows: byName[b.Name]}
	}
	return &Result{spec: s, ordered: ordered, byName: byName}
}
