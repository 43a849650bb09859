package pipeline

import (
	_ "embed"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

//go:embed roads.yaml
var roadsYAML []byte

// Road is one entry of the embedded Querétaro road reference.
type Road struct {
	Name        string   `yaml:"name"`
	Type        string   `yaml:"type"`
	Connections []string `yaml:"connections"`
	Zones       []string `yaml:"zones"`
}

// RoadNetwork is the reference set of main roads handed to the route
// recommender as context.
type RoadNetwork struct {
	Roads []Road `yaml:"roads"`
}

// LoadRoads parses the embedded road reference.
func LoadRoads() (*RoadNetwork, error) {
	var network RoadNetwork
	if err := yaml.Unmarshal(roadsYAML, &network); err != nil {
		return nil, eris.Wrap(err, "pipeline: parse embedded road reference")
	}
	return &network, nil
}

// PromptContext renders the network as plain lines for prompt use.
func (n *RoadNetwork) PromptContext() string {
	if n == nil || len(n.Roads) == 0 {
		return ""
	}
	var b strings.Builder
	for _, road := range n.Roads {
		fmt.Fprintf(&b, "- %s (%s): conecta con %s; zonas %s\n",
			road.Name, road.Type,
			strings.Join(road.Connections, ", "),
			strings.Join(road.Zones, ", "),
		)
	}
	return strings.TrimRight(b.String(), "\n")
}
