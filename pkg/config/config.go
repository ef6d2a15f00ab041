package config

import (
	"encoding/json"
	"os"
	"time"
)

// CatalogEntry describes a conventionally risky service bound to a well-known port
type CatalogEntry struct {
	Service     string `json:"service"`     // Canonical service name
	Description string `json:"description"` // Human-readable risk description
}

// Config holds the scanner and remediation configuration
type Config struct {
	Target      string        `json:"target"`       // Default scan target
	NmapBinary  string        `json:"nmap_binary"`  // Path or name of the nmap binary
	ScanTimeout time.Duration `json:"scan_timeout"` // Wall-clock limit for one scan
	MaxRetries  int           `json:"max_retries"`  // Remediation attempts per action
	ListenAddr  string        `json:"listen_addr"`  // Address for the API server
	EnableCORS  bool          `json:"enable_cors"`  // Allow cross-origin dashboard access
	LogHistory  int           `json:"log_history"`  // Entries kept for the /logs endpoint
	EventBuffer int           `json:"event_buffer"` // Per-observer event queue depth
	Verbose     bool          `json:"verbose"`      // Enable verbose output
	OutputFile  string        `json:"output_file"`  // File to write the sweep report to

	// VulnerablePorts maps port numbers to service identity and risk description.
	// Immutable after initialization, used only for lookup.
	VulnerablePorts map[int]CatalogEntry `json:"vulnerable_ports"`

	// HighRiskPorts is the subset of catalog ports classified as High risk;
	// remaining catalog matches are Medium.
	HighRiskPorts []int `json:"high_risk_ports"`

	// Packages maps platform name (linux, windows) to port number to the
	// package or service name targeted by the update strategy.
	Packages map[string]map[int]string `json:"packages"`

	// Services maps platform name to port number to the OS service stopped by
	// the close strategy.
	Services map[string]map[int]string `json:"services"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() Config {
	return Config{
		Target:      "127.0.0.1",
		NmapBinary:  "nmap",
		ScanTimeout: 300 * time.Second,
		MaxRetries:  3,
		ListenAddr:  ":8000",
		EnableCORS:  true,
		LogHistory:  100,
		EventBuffer: 64,
		VulnerablePorts: map[int]CatalogEntry{
			21:    {Service: "FTP", Description: "File Transfer Protocol - often unsecured"},
			23:    {Service: "Telnet", Description: "Telnet - unencrypted remote access"},
			445:   {Service: "SMB", Description: "Server Message Block - potential for SMB exploits"},
			3389:  {Service: "RDP", Description: "Remote Desktop Protocol - common attack vector"},
			22:    {Service: "SSH", Description: "Secure Shell - needs proper configuration"},
			80:    {Service: "HTTP", Description: "HTTP - web server vulnerabilities"},
			443:   {Service: "HTTPS", Description: "HTTPS - SSL/TLS vulnerabilities"},
			1433:  {Service: "MSSQL", Description: "Microsoft SQL Server - database vulnerabilities"},
			3306:  {Service: "MySQL", Description: "MySQL - database vulnerabilities"},
			5432:  {Service: "PostgreSQL", Description: "PostgreSQL - database vulnerabilities"},
			5900:  {Service: "VNC", Description: "VNC - remote desktop vulnerabilities"},
			6379:  {Service: "Redis", Description: "Redis - in-memory database vulnerabilities"},
			27017: {Service: "MongoDB", Description: "MongoDB - NoSQL database vulnerabilities"},
		},
		HighRiskPorts: []int{21, 23, 445, 3389, 1433, 3306, 5432, 5900, 6379, 27017},
		Packages: map[string]map[int]string{
			"linux": {
				21:    "vsftpd",
				23:    "telnetd",
				22:    "openssh-server",
				80:    "apache2",
				443:   "apache2",
				3306:  "mysql-server",
				5432:  "postgresql",
				5900:  "tightvncserver",
				6379:  "redis-server",
				27017: "mongodb",
			},
			"windows": {
				21:    "Microsoft-IIS-FTP",
				23:    "Telnet",
				445:   "Server",
				3389:  "TermService",
				80:    "W3SVC",
				443:   "W3SVC",
				1433:  "MSSQLSERVER",
				3306:  "MySQL",
				5432:  "postgresql-x64",
				5900:  "VNC Server",
				6379:  "Redis",
				27017: "MongoDB",
			},
		},
		Services: map[string]map[int]string{
			"linux": {
				21:    "vsftpd",
				22:    "ssh",
				23:    "telnetd",
				80:    "apache2",
				443:   "apache2",
				3306:  "mysql",
				5432:  "postgresql",
				5900:  "vncserver",
				6379:  "redis-server",
				27017: "mongod",
			},
			"windows": {
				445:   "Server",
				3389:  "TermService",
				21:    "FTPSVC",
				23:    "Telnet",
				80:    "W3SVC",
				443:   "W3SVC",
				1433:  "MSSQLSERVER",
				3306:  "MySQL",
				5432:  "postgresql-x64",
				5900:  "VNC Server",
				6379:  "Redis",
				27017: "MongoDB",
			},
		},
	}
}

// LoadConfigFromFile loads configuration from a JSON file
func LoadConfigFromFile(filePath string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(filePath)
	if err != nil {
		return cfg, err
	}

	err = json.Unmarshal(data, &cfg)
	return cfg, err
}

// WriteReportToFile writes a sweep report to a JSON file
func WriteReportToFile(report interface{}, filePath string) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(filePath, data, 0644)
}

// HighRiskSet returns the high-risk ports as a lookup set
func (c Config) HighRiskSet() map[int]bool {
	set := make(map[int]bool, len(c.HighRiskPorts))
	for _, p := range c.HighRiskPorts {
		set[p] = true
	}
	return set
}
