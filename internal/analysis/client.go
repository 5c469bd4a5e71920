package analysis

import (
	"github.com/dbsmedya/refmetrics/internal/config"
	"github.com/dbsmedya/refmetrics/internal/logger"
)

// Client combines the service API and the local scanner into the single
// collaborator used by the pipeline.
type Client struct {
	*SonarClient
	*Scanner
}

// New creates a Client from configuration.
func New(cfg config.AnalysisConfig, log *logger.Logger) (*Client, error) {
	sc, err := NewSonarClient(cfg, log)
	if err != nil {
		return nil, err
	}
	return &Client{
		SonarClient: sc,
		Scanner:     NewScanner(cfg, log),
	}, nil
}

// WriteProperties writes the scanner descriptor into dir.
func (c *Client) WriteProperties(dir, serviceProjectID string) error {
	return WriteProperties(dir, serviceProjectID)
}
