// Package catalog holds the static job catalog read by the work-shift service.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"reward-engine/models"

	"github.com/gosimple/slug"
	"gopkg.in/yaml.v3"
)

// ErrInvalidCatalog wraps every validation failure found while loading.
var ErrInvalidCatalog = errors.New("invalid job catalog")

// Catalog is immutable once built.
type Catalog struct {
	jobs []models.Job
	byID map[string]models.Job
}

// file is the on-disk YAML layout:
//
//	jobs:
//	  - id: barista
//	    name: Barista
//	    min_reward: 80
//	    max_reward: 150
type file struct {
	Jobs []models.Job `yaml:"jobs"`
}

// New validates jobs and builds a catalog. Ids are slug-normalized; a job
// without an id takes the slug of its name.
func New(jobs []models.Job) (*Catalog, error) {
	c := &Catalog{byID: make(map[string]models.Job, len(jobs))}
	for i, j := range jobs {
		if j.ID == "" {
			j.ID = j.Name
		}
		j.ID = slug.Make(j.ID)
		if j.ID == "" {
			return nil, fmt.Errorf("%w: job #%d has no id or name", ErrInvalidCatalog, i)
		}
		if j.Name == "" {
			j.Name = j.ID
		}
		if j.MinReward < 0 || j.MaxReward < j.MinReward {
			return nil, fmt.Errorf("%w: job %s has reward range [%d, %d]", ErrInvalidCatalog, j.ID, j.MinReward, j.MaxReward)
		}
		if _, dup := c.byID[j.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate job id %s", ErrInvalidCatalog, j.ID)
		}
		c.byID[j.ID] = j
		c.jobs = append(c.jobs, j)
	}
	return c, nil
}

// Parse reads a YAML catalog document.
func Parse(data []byte) (*Catalog, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCatalog, err)
	}
	return New(f.Jobs)
}

// Load reads the catalog named by source: empty for the built-in jobs, an
// s3://bucket/key URI fetched through objects, or a local file path.
func Load(ctx context.Context, source string, objects ObjectGetter) (*Catalog, error) {
	source = strings.TrimSpace(source)
	switch {
	case source == "":
		return Default(), nil
	case strings.HasPrefix(source, "s3://"):
		if objects == nil {
			return nil, fmt.Errorf("job catalog %s: no object storage client configured", source)
		}
		bucket, key, err := splitS3URI(source)
		if err != nil {
			return nil, err
		}
		data, err := fetchObject(ctx, objects, bucket, key)
		if err != nil {
			return nil, err
		}
		return Parse(data)
	default:
		data, err := os.ReadFile(source)
		if err != nil {
			return nil, fmt.Errorf("read job catalog: %w", err)
		}
		return Parse(data)
	}
}

// Default is the built-in catalog served when no source is configured.
func Default() *Catalog {
	c, err := New([]models.Job{
		{ID: "janitor", Name: "Janitor", MinReward: 50, MaxReward: 100},
		{ID: "barista", Name: "Barista", MinReward: 80, MaxReward: 150},
		{ID: "mechanic", Name: "Mechanic", MinReward: 120, MaxReward: 220},
		{ID: "developer", Name: "Developer", MinReward: 200, MaxReward: 400},
		{ID: "surgeon", Name: "Surgeon", MinReward: 350, MaxReward: 600},
	})
	if err != nil {
		panic(err)
	}
	return c
}

// Job resolves id (slug-normalized) to its catalog entry.
func (c *Catalog) Job(id string) (models.Job, bool) {
	j, ok := c.byID[slug.Make(id)]
	return j, ok
}

// Jobs lists the catalog in load order.
func (c *Catalog) Jobs() []models.Job {
	out := make([]models.Job, len(c.jobs))
	copy(out, c.jobs)
	return out
}
