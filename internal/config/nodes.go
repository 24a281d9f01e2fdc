package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"tron-payout-go/internal/models"

	"gopkg.in/yaml.v2"
)

type NodesConfig struct {
	Nodes []models.NodeEndpoint `yaml:"nodes"`
}

// LoadNodesFile reads the RPC endpoint list from a YAML file.
func LoadNodesFile(nodesFile string) ([]models.NodeEndpoint, error) {
	var nodesPath string
	if filepath.IsAbs(nodesFile) {
		nodesPath = nodesFile
	} else {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get working directory: %w", err)
		}
		nodesPath = filepath.Join(wd, nodesFile)
	}

	data, err := os.ReadFile(nodesPath)
	if err != nil {
		return nil, fmt.Errorf("unable to read %s: %w", nodesFile, err)
	}

	var config NodesConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("unable to parse %s: %w", nodesFile, err)
	}

	apiKey := os.Getenv("TRON_API_KEY")
	for i, node := range config.Nodes {
		if node.Url == "" {
			return nil, fmt.Errorf("node at index %d missing url", i)
		}
		if node.Name == "" {
			config.Nodes[i].Name = node.Url
		}
		if node.ApiKey == "" {
			config.Nodes[i].ApiKey = apiKey
		}
	}

	return config.Nodes, nil
}

// nodesFromEnv builds the endpoint list from TRON_NODE_URLS, earliest first.
func nodesFromEnv() []models.NodeEndpoint {
	raw := os.Getenv("TRON_NODE_URLS")
	if raw == "" {
		return nil
	}
	apiKey := os.Getenv("TRON_API_KEY")

	var nodes []models.NodeEndpoint
	for _, url := range strings.Split(raw, ",") {
		url = strings.TrimSpace(url)
		if url == "" {
			continue
		}
		nodes = append(nodes, models.NodeEndpoint{
			Name:     url,
			Url:      url,
			ApiKey:   apiKey,
			Priority: len(nodes),
			Enabled:  true,
		})
	}
	return nodes
}

// loadNodes prefers the YAML file and falls back to the environment when the
// file does not exist.
func loadNodes(nodesFile string) ([]models.NodeEndpoint, error) {
	nodes, err := LoadNodesFile(nodesFile)
	if err == nil {
		return nodes, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}

	nodes = nodesFromEnv()
	if len(nodes) == 0 && getEnvBool("TRON_REQUIRE_NODES", false) {
		return nil, fmt.Errorf("no TRON nodes configured: create %s or set TRON_NODE_URLS", nodesFile)
	}
	return nodes, nil
}
