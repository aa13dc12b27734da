package project

import (
	"fmt"
	"sync"
)

// Catalog tracks opened projects by path so cross-project experiment
// dependencies can be resolved when a project is loaded. A project joins
// a catalog through the WithCatalog open option.
type Catalog struct {
	mu       sync.RWMutex
	projects map[string]*Project
}

// NewCatalog returns an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{projects: make(map[string]*Project)}
}

func (c *Catalog) register(p *Project) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.projects[p.path] = p
}

// Project returns the registered project for a path.
func (c *Catalog) Project(path string) (*Project, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.projects[path]
	return p, ok
}

// resolve finds an experiment by slug in the registered project at path.
func (c *Catalog) resolve(path, slug string) (*Experiment, error) {
	p, ok := c.Project(path)
	if !ok {
		return nil, fmt.Errorf("project %q is not in the catalog", path)
	}
	exp, err := p.Get(slug)
	if err != nil {
		return nil, fmt.Errorf("project %q: %w", path, err)
	}
	return exp, nil
}
