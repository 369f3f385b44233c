package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v3"

	"github.com/bastionwaf/bastion/pkg/anomaly"
	"github.com/bastionwaf/bastion/pkg/config"
	"github.com/bastionwaf/bastion/pkg/patterns"
	"github.com/bastionwaf/bastion/pkg/ratelimit"
	"github.com/bastionwaf/bastion/pkg/store"
	"github.com/bastionwaf/bastion/pkg/waf"
)

const Version = "0.1.0"

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "serve":
		port := "8000"
		if len(os.Args) > 2 {
			port = os.Args[2]
		}
		runHTTPServer(port)
	case "analyze":
		if len(os.Args) < 4 {
			fmt.Println("Usage: bastion analyze <method> <path> [body]")
			os.Exit(1)
		}
		body := ""
		if len(os.Args) > 4 {
			body = os.Args[4]
		}
		runCLIAnalyze(os.Args[2], os.Args[3], body)
	case "retrain":
		runCLIRetrain()
	case "version":
		fmt.Printf("Bastion v%s\n", Version)
		fmt.Println("HTTP Request Analysis Engine")
	default:
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Printf("Bastion v%s - HTTP Request Analysis Engine\n\n", Version)
	fmt.Println("Usage:")
	fmt.Println("  bastion serve [port]                  Start HTTP API server (default: 8000)")
	fmt.Println("  bastion analyze <method> <path> [body] Analyze one request from the CLI")
	fmt.Println("  bastion retrain                       Retrain the model from seed data")
	fmt.Println("  bastion version                       Show version")
	fmt.Println("")
	fmt.Println("Examples:")
	fmt.Println("  bastion serve 8080")
	fmt.Println("  bastion analyze GET \"/search?q=1' OR '1'='1\"")
	fmt.Println("")
	fmt.Println("Environment Variables:")
	fmt.Println("  DATABASE_URL                 Postgres DSN for request logging")
	fmt.Println("  REDIS_URL                    Redis URL for per-IP rate limiting")
	fmt.Println("  BASTION_MODEL_PATH           Model artifact path (default: models/bastion_model.json)")
	fmt.Println("  BASTION_DETECTION_CONFIG     YAML file with extra detection indicators")
	fmt.Println("  BASTION_ANOMALY_THRESHOLD    Anomaly verdict threshold (default: 0.7)")
}

// buildAnalyzer assembles the pipeline from the environment. The store and
// the rate limiter are optional collaborators: failures there degrade the
// gateway, they never prevent it from analyzing requests.
func buildAnalyzer(ctx context.Context, cfg *config.Config) (*waf.Analyzer, func()) {
	if path := config.GetEnv("BASTION_DETECTION_CONFIG", ""); path != "" {
		if err := patterns.Get().LoadFromYAML(path); err != nil {
			log.Printf("[WARN] could not load detection config %s: %v", path, err)
		} else {
			log.Printf("[STARTUP] detection config loaded from %s (%d patterns total)",
				path, patterns.Get().TotalPatterns())
		}
	}

	var st store.Store
	if cfg.DatabaseURL != "" {
		pg, err := store.ConnectPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Printf("[WARN] postgres unavailable, request logging in memory only: %v", err)
		} else {
			st = pg
		}
	}
	if st == nil {
		st = store.NewMemoryStore()
	}

	var limiter *ratelimit.Limiter
	if cfg.RedisURL != "" {
		limiter = ratelimit.New(ctx, cfg.RedisURL, cfg.RateLimitPerMinute)
	}

	engine := anomaly.NewEngine(cfg)
	if err := engine.Load(waf.SeedMatrix(cfg.SeedRows)); err != nil {
		log.Fatalf("[FATAL] could not initialize anomaly model: %v", err)
	}

	var analyzer *waf.Analyzer
	if limiter != nil && limiter.Enabled() {
		analyzer = waf.NewAnalyzer(cfg, engine, st, limiter)
	} else {
		analyzer = waf.NewAnalyzer(cfg, engine, st, nil)
	}

	cleanup := func() {
		st.Close()
		if limiter != nil {
			limiter.Close()
		}
	}
	return analyzer, cleanup
}

// ============================================================================
// HTTP Server Mode
// ============================================================================

// analyzeRequest is the wire form of a request descriptor. The body travels
// as a plain string so clients do not need to base64-encode it.
type analyzeRequest struct {
	Method    string              `json:"method"`
	Path      string              `json:"path"`
	Headers   map[string][]string `json:"headers"`
	Body      string              `json:"body"`
	SourceIP  string              `json:"ip_address"`
	UserAgent string              `json:"user_agent"`
}

func (r *analyzeRequest) toRequest() *waf.Request {
	req := &waf.Request{
		Method:    r.Method,
		Path:      r.Path,
		Headers:   r.Headers,
		SourceIP:  r.SourceIP,
		UserAgent: r.UserAgent,
	}
	if r.Body != "" {
		req.Body = []byte(r.Body)
	}
	return req
}

func runHTTPServer(port string) {
	cfg := config.NewDefaultConfig()
	analyzer, cleanup := buildAnalyzer(context.Background(), cfg)
	defer cleanup()

	app := fiber.New(fiber.Config{
		AppName: "Bastion",
	})

	app.Get("/", func(c fiber.Ctx) error {
		return c.JSON(fiber.Map{"service": "bastion", "version": Version})
	})

	app.Get("/health", func(c fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "ok",
			"version": Version,
			"metrics": analyzer.Metrics(),
		})
	})

	// Full analysis of one request descriptor
	app.Post("/api/analyze", func(c fiber.Ctx) error {
		var wire analyzeRequest
		if err := c.Bind().Body(&wire); err != nil {
			return c.Status(400).JSON(fiber.Map{"error": "invalid request"})
		}
		req := wire.toRequest()
		if req.SourceIP == "" {
			req.SourceIP = c.IP()
		}

		verdict, err := analyzer.Analyze(c.Context(), req)
		if err != nil {
			var verr *waf.ValidationError
			if errors.As(err, &verr) {
				return c.Status(422).JSON(fiber.Map{"error": verr.Error()})
			}
			log.Printf("[WARN] analysis failed: %v", err)
			return c.Status(500).JSON(fiber.Map{"error": "analysis failed"})
		}
		return c.JSON(verdict)
	})

	// Aggregate statistics over logged verdicts
	app.Get("/api/stats", func(c fiber.Ctx) error {
		stats, err := analyzer.Statistics(c.Context())
		if err != nil {
			log.Printf("[WARN] stats query failed: %v", err)
			return c.Status(500).JSON(fiber.Map{"error": "stats unavailable"})
		}
		return c.JSON(stats)
	})

	// Recent verdict log, newest first
	app.Get("/api/logs", func(c fiber.Ctx) error {
		limit := 100
		if v := c.Query("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 1 || n > 1000 {
				return c.Status(400).JSON(fiber.Map{"error": "limit must be 1-1000"})
			}
			limit = n
		}
		maliciousOnly := c.Query("malicious_only") == "true"

		logs, err := analyzer.RecentLogs(c.Context(), limit, maliciousOnly)
		if err != nil {
			log.Printf("[WARN] log query failed: %v", err)
			return c.Status(500).JSON(fiber.Map{"error": "logs unavailable"})
		}
		return c.JSON(fiber.Map{"logs": logs, "count": len(logs)})
	})

	// Synchronous retrain from the seed dataset or posted samples
	app.Post("/api/retrain", func(c fiber.Ctx) error {
		var req struct {
			Samples []analyzeRequest `json:"samples"`
		}
		if len(c.Body()) > 0 {
			if err := c.Bind().Body(&req); err != nil {
				return c.Status(400).JSON(fiber.Map{"error": "invalid request"})
			}
		}
		samples := make([]*waf.Request, len(req.Samples))
		for i := range req.Samples {
			samples[i] = req.Samples[i].toRequest()
		}

		report, err := analyzer.Retrain(c.Context(), samples)
		switch {
		case errors.Is(err, anomaly.ErrRetrainInProgress):
			return c.Status(409).JSON(fiber.Map{"error": err.Error()})
		case errors.Is(err, anomaly.ErrInsufficientData):
			return c.Status(422).JSON(fiber.Map{"error": err.Error()})
		case errors.Is(err, anomaly.ErrPersistence):
			log.Printf("[WARN] retrain failed: %v", err)
			return c.Status(500).JSON(fiber.Map{"error": err.Error()})
		case err != nil:
			log.Printf("[WARN] retrain failed: %v", err)
			return c.Status(500).JSON(fiber.Map{"error": "retrain failed"})
		}
		return c.JSON(report)
	})

	app.Get("/api/model/info", func(c fiber.Ctx) error {
		info, err := analyzer.ModelInfo()
		if err != nil {
			return c.Status(503).JSON(fiber.Map{"error": err.Error()})
		}
		return c.JSON(info)
	})

	log.Printf("[STARTUP] Bastion HTTP server starting on :%s", port)
	log.Printf("Endpoints:")
	log.Printf("  GET  /health          - Health check")
	log.Printf("  POST /api/analyze     - Analyze one request")
	log.Printf("  GET  /api/stats       - Aggregate verdict statistics")
	log.Printf("  GET  /api/logs        - Recent verdicts (limit, malicious_only)")
	log.Printf("  POST /api/retrain     - Retrain the anomaly model")
	log.Printf("  GET  /api/model/info  - Active model provenance")

	if err := app.Listen(":" + port); err != nil {
		log.Fatal(err)
	}
}

// ============================================================================
// CLI Mode
// ============================================================================

func runCLIAnalyze(method, path, body string) {
	cfg := config.NewDefaultConfig()
	analyzer, cleanup := buildAnalyzer(context.Background(), cfg)
	defer cleanup()

	req := &waf.Request{
		Method:   method,
		Path:     path,
		SourceIP: "127.0.0.1",
	}
	if body != "" {
		req.Body = []byte(body)
	}

	verdict, err := analyzer.Analyze(context.Background(), req)
	if err != nil {
		log.Fatalf("[FATAL] analysis failed: %v", err)
	}

	out, _ := json.MarshalIndent(verdict, "", "  ")
	fmt.Println(string(out))
}

func runCLIRetrain() {
	cfg := config.NewDefaultConfig()
	analyzer, cleanup := buildAnalyzer(context.Background(), cfg)
	defer cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	report, err := analyzer.Retrain(ctx, nil)
	if err != nil {
		log.Fatalf("[FATAL] retrain failed: %v", err)
	}

	out, _ := json.MarshalIndent(report, "", "  ")
	fmt.Println(string(out))
}
