package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/ExclusiveAccount/portguard/pkg/api"
	"github.com/ExclusiveAccount/portguard/pkg/classify"
	"github.com/ExclusiveAccount/portguard/pkg/config"
	"github.com/ExclusiveAccount/portguard/pkg/events"
	"github.com/ExclusiveAccount/portguard/pkg/logbuf"
	"github.com/ExclusiveAccount/portguard/pkg/models"
	"github.com/ExclusiveAccount/portguard/pkg/orchestrator"
	"github.com/ExclusiveAccount/portguard/pkg/registry"
	"github.com/ExclusiveAccount/portguard/pkg/remedy"
	"github.com/ExclusiveAccount/portguard/pkg/scan"
)

const appVersion = "1.0.0"

var (
	log = logrus.New()
	cfg = config.DefaultConfig()
)

func main() {
	app := &cli.App{
		Name:    "portguard",
		Usage:   "Port security scanner and auto-remediation tool",
		Version: appVersion,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Load configuration from `FILE`",
			},
			&cli.StringFlag{
				Name:    "log-level",
				Value:   "info",
				Usage:   "Log level (debug, info, warn, error)",
				EnvVars: []string{"PORTGUARD_LOG_LEVEL"},
			},
		},
		Before: func(c *cli.Context) error {
			level, err := logrus.ParseLevel(c.String("log-level"))
			if err != nil {
				level = logrus.InfoLevel
			}
			log.SetLevel(level)
			log.SetFormatter(&logrus.TextFormatter{
				FullTimestamp:   true,
				TimestampFormat: "2006-01-02 15:04:05",
			})

			if path := c.String("config"); path != "" {
				loaded, err := config.LoadConfigFromFile(path)
				if err != nil {
					return fmt.Errorf("loading config %s: %w", path, err)
				}
				cfg = loaded
			}
			if cfg.Verbose {
				log.SetLevel(logrus.DebugLevel)
			}
			return nil
		},
		Commands: []*cli.Command{
			commandScan(),
			commandServe(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

// buildOrchestrator wires the core components together
func buildOrchestrator() (*orchestrator.Orchestrator, *remedy.Engine) {
	driver := scan.NewDriver(cfg.NmapBinary, cfg.ScanTimeout, log)
	classifier := classify.FromConfig(cfg)
	engine := remedy.NewEngine(cfg, log)
	reg := registry.New(log)
	bus := events.New(cfg.EventBuffer, log)

	return orchestrator.New(cfg, driver, classifier, engine, reg, bus, log), engine
}

func commandScan() *cli.Command {
	return &cli.Command{
		Name:  "scan",
		Usage: "Scan a host and remediate vulnerable ports",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "target",
				Aliases: []string{"t"},
				Value:   "127.0.0.1",
				Usage:   "Target host to scan",
			},
			&cli.BoolFlag{
				Name:    "auto",
				Aliases: []string{"a"},
				Usage:   "Apply updates and close ports without prompting",
			},
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "Write the sweep report to `FILE` (JSON)",
			},
		},
		Action: func(c *cli.Context) error {
			displayBanner()

			automated := c.Bool("auto")
			if automated {
				color.Yellow("AUTOMATED MODE: will apply updates and close ports without confirmation")
			}

			orch, engine := buildOrchestrator()
			defer engine.Close()

			if engine.Platform() == remedy.PlatformLinux && !engine.Elevated() {
				log.Warn("Not running as root. Some remediation tactics may require sudo.")
			}

			var policy orchestrator.DecisionPolicy = orchestrator.AutoPolicy{}
			if !automated {
				policy = &promptPolicy{in: bufio.NewReader(os.Stdin)}
			}

			report, err := orch.RunSweep(c.String("target"), policy)
			if err != nil {
				return err
			}

			displayReport(report)

			out := c.String("output")
			if out == "" {
				out = cfg.OutputFile
			}
			if out != "" {
				if err := config.WriteReportToFile(report, out); err != nil {
					return fmt.Errorf("writing report: %w", err)
				}
				log.Infof("Report written to %s", out)
			}
			return nil
		},
	}
}

func commandServe() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the API server with live progress over WebSocket",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "listen",
				Aliases: []string{"l"},
				Usage:   "Listen address, e.g. :8000",
			},
		},
		Action: func(c *cli.Context) error {
			displayBanner()

			if addr := c.String("listen"); addr != "" {
				cfg.ListenAddr = addr
			}

			hook := logbuf.New(cfg.LogHistory)
			log.AddHook(hook)

			orch, engine := buildOrchestrator()
			defer engine.Close()

			server := api.NewServer(cfg, orch, engine, hook, log)

			color.Green("PortGuard API running at http://localhost%s", cfg.ListenAddr)
			color.Green("Press Ctrl+C to exit")
			return server.Start()
		},
	}
}

// promptPolicy reads remediation decisions from the terminal
type promptPolicy struct {
	in *bufio.Reader
}

func (p *promptPolicy) ChooseAction(v models.Vulnerability) models.Action {
	fmt.Println()
	color.Red("============================================================")
	color.Red("VULNERABLE PORT DETECTED!")
	color.Red("============================================================")
	fmt.Printf("Port:        %d\n", v.Port)
	fmt.Printf("Service:     %s\n", v.Service)
	fmt.Printf("Description: %s\n", v.Description)
	fmt.Printf("Risk level:  %s\n", v.RiskLevel)
	fmt.Println("\nChoose an action:")
	fmt.Println("  u - apply security updates from official sources")
	fmt.Println("  c - close/block the port using multiple methods")
	fmt.Println("  a - apply updates AND close port")
	fmt.Println("  s - skip this port")
	fmt.Println("  r - retry later")

	for {
		fmt.Print("Choose action (u/c/a/s/r): ")
		switch p.readLine() {
		case "u", "update":
			return models.ActionUpdate
		case "c", "close":
			return models.ActionClose
		case "a", "auto", "all":
			return models.ActionAuto
		case "s", "skip":
			return models.ActionSkip
		case "r", "retry":
			log.Infof("Port %d left for a later run", v.Port)
			return models.ActionSkip
		default:
			fmt.Println("Please enter 'u', 'c', 'a', 's' or 'r'.")
		}
	}
}

func (p *promptPolicy) OnFailure(port int, service, message string, attempt int) orchestrator.Decision {
	fmt.Println()
	color.Red("REMEDIATION FAILED (attempt %d)", attempt)
	fmt.Printf("Port:    %d\n", port)
	fmt.Printf("Service: %s\n", service)
	fmt.Printf("Error:   %s\n", message)

	for {
		fmt.Print("Would you like to (r)etry, (s)kip, or (b)ackup current state? ")
		switch p.readLine() {
		case "r", "retry":
			return orchestrator.DecisionRetry
		case "s", "skip":
			return orchestrator.DecisionSkip
		case "b", "backup":
			log.Infof("Backup of current state requested for port %d", port)
			return orchestrator.DecisionBackup
		default:
			fmt.Println("Please enter 'r', 's' or 'b'.")
		}
	}
}

func (p *promptPolicy) readLine() string {
	line, err := p.in.ReadString('\n')
	if err != nil {
		return "s"
	}
	return strings.ToLower(strings.TrimSpace(line))
}

func displayBanner() {
	banner := `
╔══════════════════════════════════════════════════╗
║                                                  ║
║              PortGuard Security Scanner          ║
║                                                  ║
║              Scan - Flag - Remediate             ║
║                                                  ║
╚══════════════════════════════════════════════════╝
`
	fmt.Println(banner)
}

func displayReport(report *orchestrator.SweepReport) {
	fmt.Println("\n=== Sweep Summary ===")
	fmt.Printf("Target: %s\n", report.Scan.Target)
	fmt.Printf("Open ports found: %d\n", report.Scan.TotalPorts)
	fmt.Printf("Vulnerable ports: %d\n", report.Scan.VulnerableCount)

	for _, v := range report.Scan.Vulnerabilities {
		paint := color.Yellow
		if v.RiskLevel == models.RiskHigh {
			paint = color.Red
		}
		paint("  - Port %d (%s, %s risk): %s", v.Port, v.Service, v.RiskLevel, v.Description)
	}

	if len(report.Outcomes) > 0 {
		fmt.Println("\nRemediation outcomes:")
		for _, out := range report.Outcomes {
			if out.Success {
				color.Green("  - Port %d (%s): %s", out.Port, out.Action, out.Message)
			} else {
				color.Red("  - Port %d (%s): %s", out.Port, out.Action, out.Message)
			}
		}
	}

	if report.Verification != nil {
		fmt.Println("\nVerification:")
		if report.Verification.VulnerableCount == 0 {
			color.Green("  No vulnerable ports detected. System is secure!")
		} else {
			color.Red("  %d vulnerable ports still open:", report.Verification.VulnerableCount)
			for _, v := range report.Verification.Vulnerabilities {
				color.Red("    - Port %d: %s", v.Port, v.Service)
			}
		}
	}
}
