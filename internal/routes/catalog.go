// Package routes holds the route catalog: the set of candidate providers the
// routing model may select from, loaded once at startup and read-only for the
// lifetime of the process.
package routes

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Route describes one candidate provider and what it is good at. The
// description is what the routing model reasons over, so it should read like
// usage guidance, not marketing copy.
type Route struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
}

type catalogFile struct {
	Routes []Route `yaml:"routes"`
}

// Catalog is an immutable set of routes plus its rendered prompt form.
type Catalog struct {
	routes   []Route
	rendered string
}

// Load reads a catalog from a YAML file:
//
//	routes:
//	  - name: code
//	    description: code generation, debugging and refactoring
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read routes file %q: %w", path, err)
	}

	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse routes file %q: %w", path, err)
	}

	if len(file.Routes) == 0 {
		return nil, fmt.Errorf("routes file %q defines no routes", path)
	}
	for _, r := range file.Routes {
		if r.Name == "" {
			return nil, fmt.Errorf("routes file %q contains a route without a name", path)
		}
	}

	return New(file.Routes), nil
}

func New(rs []Route) *Catalog {
	lines := make([]string, 0, len(rs))
	for _, r := range rs {
		lines = append(lines, fmt.Sprintf("%s: %s", r.Name, r.Description))
	}
	return &Catalog{
		routes:   rs,
		rendered: strings.Join(lines, "\n"),
	}
}

func (c *Catalog) Routes() []Route {
	return c.routes
}

// Describe renders the catalog as "name: description" lines for the routing
// prompt's {routes} placeholder.
func (c *Catalog) Describe() string {
	return c.rendered
}
