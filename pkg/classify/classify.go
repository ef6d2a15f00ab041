// Package classify maps observed open ports onto the vulnerable-port catalog.
package classify

import (
	"github.com/ExclusiveAccount/portguard/pkg/config"
	"github.com/ExclusiveAccount/portguard/pkg/models"
)

// Classifier flags open ports that appear in the vulnerable-port catalog.
// It holds only immutable lookup tables and is safe for concurrent use.
type Classifier struct {
	catalog  map[int]config.CatalogEntry
	highRisk map[int]bool
}

// New creates a classifier from the catalog and high-risk port set
func New(catalog map[int]config.CatalogEntry, highRisk map[int]bool) *Classifier {
	return &Classifier{
		catalog:  catalog,
		highRisk: highRisk,
	}
}

// FromConfig creates a classifier backed by the configured catalog
func FromConfig(cfg config.Config) *Classifier {
	return New(cfg.VulnerablePorts, cfg.HighRiskSet())
}

// Classify returns one vulnerability per input port present in the catalog,
// preserving input order. Ports not in the catalog are silently omitted.
func (c *Classifier) Classify(openPorts []int) []models.Vulnerability {
	var found []models.Vulnerability

	for _, port := range openPorts {
		entry, ok := c.catalog[port]
		if !ok {
			continue
		}

		risk := models.RiskMedium
		if c.highRisk[port] {
			risk = models.RiskHigh
		}

		found = append(found, models.Vulnerability{
			Port:        port,
			Service:     entry.Service,
			Description: entry.Description,
			RiskLevel:   risk,
			Status:      models.VulnDetected,
		})
	}

	return found
}

// ServiceFor returns the catalog service name for a port, or empty if unknown
func (c *Classifier) ServiceFor(port int) string {
	return c.catalog[port].Service
}
