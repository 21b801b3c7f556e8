// Shelfcast operator CLI.
//
// Usage:
//
//	shelfcast weights --rmse lgbm=1520.4 --rmse xgb=1610.2 --rmse prophet=2400
//	shelfcast ensemble --artifacts ./artifacts
//	shelfcast decide --artifacts ./artifacts --features row.json --stock 12000 --horizon week
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"
	"go.opentelemetry.io/otel"

	"shelfcast/internal/advisor"
	"shelfcast/internal/decision"
	"shelfcast/internal/domain"
	"shelfcast/internal/inventory"
	"shelfcast/internal/ml/artifacts"
	"shelfcast/internal/ml/ensemble"
	"shelfcast/internal/ml/inference"
	"shelfcast/pkg/logger"
	"shelfcast/pkg/tracing"
)

var (
	version = "dev"

	loadEnvFunc      = godotenv.Load
	newLLMClientFunc = advisor.NewOpenAIClient
)

func main() {
	_ = loadEnvFunc()

	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:    "shelfcast",
		Usage:   "Ensemble demand forecasts and inventory decisions from the command line",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Value:   "warn",
				Usage:   "Log level (debug, info, warn, error)",
				EnvVars: []string{"LOG_LEVEL"},
			},
		},
		Commands: []*cli.Command{
			weightsCommand(),
			ensembleCommand(),
			decideCommand(),
		},
	}
}

func weightsCommand() *cli.Command {
	return &cli.Command{
		Name:  "weights",
		Usage: "Compute inverse-RMSE ensemble weights",
		Flags: []cli.Flag{
			&cli.StringSliceFlag{
				Name:     "rmse",
				Usage:    "Validation error as model=value, repeatable",
				Required: true,
			},
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Print the weight set as JSON",
			},
		},
		Action: runWeights,
	}
}

func runWeights(c *cli.Context) error {
	errs, err := parseErrorScores(c.StringSlice("rmse"))
	if err != nil {
		return err
	}
	weights, err := ensemble.CalculateWeights(errs)
	if err != nil {
		return err
	}
	if c.Bool("json") {
		return writeJSON(c, weights)
	}

	rows := make([][2]string, 0, len(weights))
	for _, k := range weights.Models() {
		rows = append(rows, [2]string{k, strconv.FormatFloat(weights[k], 'f', 6, 64)})
	}
	var dropped []string
	for k := range errs {
		if _, ok := weights[k]; !ok {
			dropped = append(dropped, k)
		}
	}
	sort.Strings(dropped)

	fmt.Fprintln(c.App.Writer, renderPanel("Ensemble weights", rows))
	if len(dropped) > 0 {
		fmt.Fprintln(c.App.Writer, mutedStyle.Render("ignored (non-positive or non-finite error): "+strings.Join(dropped, ", ")))
	}
	return nil
}

func parseErrorScores(pairs []string) (domain.ErrorScore, error) {
	errs := make(domain.ErrorScore, len(pairs))
	for _, pair := range pairs {
		key, raw, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid --rmse %q, want model=value", pair)
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid --rmse %q: %w", pair, err)
		}
		errs[key] = v
	}
	return errs, nil
}

func artifactsFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "artifacts",
		Aliases: []string{"a"},
		Value:   "artifacts",
		Usage:   "Directory holding ensemble_config.json and model artifacts",
		EnvVars: []string{"ARTIFACT_DIR"},
	}
}

func ensembleCommand() *cli.Command {
	return &cli.Command{
		Name:  "ensemble",
		Usage: "Load and validate the ensemble in an artifact directory",
		Flags: []cli.Flag{
			artifactsFlag(),
			&cli.BoolFlag{Name: "json", Usage: "Print as JSON"},
		},
		Action: runEnsemble,
	}
}

func runEnsemble(c *cli.Context) error {
	lg, err := newLogger(c)
	if err != nil {
		return err
	}
	loader := newFileLoader(c.String("artifacts"), lg)
	snap, err := loader.Build(c.Context)
	if err != nil {
		return err
	}

	loaded := make([]string, 0, len(snap.Predictors))
	for k := range snap.Predictors {
		loaded = append(loaded, k)
	}
	sort.Strings(loaded)

	if c.Bool("json") {
		return writeJSON(c, map[string]any{
			"version":       snap.Version,
			"weights":       snap.Weights,
			"rmse":          snap.Errors,
			"predictors":    loaded,
			"feature_names": snap.FeatureNames,
		})
	}

	rows := [][2]string{{"version", strconv.Itoa(snap.Version)}}
	for _, k := range snap.Weights.Models() {
		rows = append(rows, [2]string{
			"weight " + k,
			fmt.Sprintf("%.6f (rmse %.4f)", snap.Weights[k], snap.Errors[k]),
		})
	}
	rows = append(rows,
		[2]string{"predictors", strings.Join(loaded, ", ")},
		[2]string{"features", strconv.Itoa(len(snap.FeatureNames))},
	)
	fmt.Fprintln(c.App.Writer, renderPanel("Ensemble", rows))
	return nil
}

func decideCommand() *cli.Command {
	return &cli.Command{
		Name:  "decide",
		Usage: "Forecast one feature row and size inventory against it",
		Flags: []cli.Flag{
			artifactsFlag(),
			&cli.StringFlag{
				Name:     "features",
				Aliases:  []string{"f"},
				Usage:    "JSON file with one feature row (feature name to value; optional \"Date\" as YYYY-MM-DD)",
				Required: true,
			},
			&cli.Float64Flag{
				Name:     "stock",
				Usage:    "Current stock in units",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "horizon",
				Value: "week",
				Usage: "Forecast horizon fed to the optimizer (week, month, quarter)",
			},
			&cli.Float64Flag{
				Name:    "historical-std",
				Value:   2000,
				Usage:   "Historical standard deviation of weekly sales",
				EnvVars: []string{"DEFAULT_HISTORICAL_STD"},
			},
			&cli.Float64Flag{
				Name:    "service-level-z",
				Value:   inventory.DefaultServiceLevelZ,
				Usage:   "Service level z-score",
				EnvVars: []string{"SERVICE_LEVEL_Z"},
			},
			&cli.IntFlag{
				Name:    "lead-time",
				Value:   inventory.DefaultLeadTimeDays,
				Usage:   "Lead time in days",
				EnvVars: []string{"LEAD_TIME_DAYS"},
			},
			&cli.StringFlag{
				Name:    "policy",
				Value:   string(ensemble.PolicyStrict),
				Usage:   "Missing predictor policy (strict, renormalize)",
				EnvVars: []string{"MISSING_PREDICTOR_POLICY"},
			},
			&cli.BoolFlag{
				Name:    "normalize-horizon",
				Usage:   "Convert month and quarter forecasts back to weekly demand",
				EnvVars: []string{"DECISION_NORMALIZE_HORIZON"},
			},
			&cli.BoolFlag{
				Name:  "advice",
				Usage: "Ask the AI advisor for an action plan",
			},
			&cli.StringFlag{
				Name:    "openai-api-key",
				Usage:   "OpenAI API key for --advice",
				EnvVars: []string{"OPENAI_API_KEY"},
			},
			&cli.StringFlag{
				Name:    "openai-model",
				Value:   "gpt-4o-mini",
				EnvVars: []string{"OPENAI_MODEL"},
			},
			&cli.BoolFlag{Name: "json", Usage: "Print the decision record as JSON"},
		},
		Action: runDecide,
	}
}

func runDecide(c *cli.Context) error {
	lg, err := newLogger(c)
	if err != nil {
		return err
	}
	horizon, err := domain.ParseHorizon(c.String("horizon"))
	if err != nil {
		return err
	}
	policy, err := ensemble.ParseMissingPolicy(c.String("policy"))
	if err != nil {
		return err
	}
	row, err := readFeatureRow(c.String("features"))
	if err != nil {
		return err
	}

	loader := newFileLoader(c.String("artifacts"), lg)
	if _, err := loader.Reload(c.Context); err != nil {
		return err
	}

	tracer := otel.Tracer(tracing.ServiceName)
	orchestrator := decision.NewOrchestrator(
		ensemble.NewForecaster(tracer, loader.Store(), policy, lg),
		decision.Options{
			NormalizeHorizon: c.Bool("normalize-horizon"),
			ServiceLevelZ:    c.Float64("service-level-z"),
			LeadTimeDays:     c.Int("lead-time"),
		},
		lg,
	)
	z, lead := c.Float64("service-level-z"), c.Int("lead-time")
	d, err := orchestrator.Decide(c.Context, decision.Request{
		Features:      row,
		CurrentStock:  c.Float64("stock"),
		HistoricalStd: c.Float64("historical-std"),
		Horizon:       horizon,
		ServiceLevelZ: &z,
		LeadTimeDays:  &lead,
	})
	if err != nil {
		return err
	}
	rec := d.Record()
	rec.Store, rec.Dept = row.Store, row.Dept

	var suggestion string
	if c.Bool("advice") {
		var llm advisor.LLMClient
		if key := c.String("openai-api-key"); key != "" {
			llm = newLLMClientFunc(key)
		}
		suggestion, err = advisor.NewAdvisor(tracer, llm, c.String("openai-model")).Suggest(c.Context, rec)
		if err != nil {
			lg.Warn().Err(err).Msg("advisor failed")
		}
	}

	if c.Bool("json") {
		return writeJSON(c, struct {
			domain.DecisionRecord
			AISuggestion string `json:"ai_suggestion,omitempty"`
		}{rec, suggestion})
	}
	fmt.Fprintln(c.App.Writer, renderDecision(rec, d.PredictedSales, suggestion))
	return nil
}

// readFeatureRow reads a JSON object of feature values. Booleans count as 0/1
// and a "Date" string fills the calendar features.
func readFeatureRow(path string) (domain.FeatureRow, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return domain.FeatureRow{}, err
	}
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return domain.FeatureRow{}, fmt.Errorf("decode %s: %w", path, err)
	}

	var date time.Time
	values := make(map[string]float64, len(doc))
	for k, v := range doc {
		switch x := v.(type) {
		case float64:
			values[k] = x
		case bool:
			if x {
				values[k] = 1
			} else {
				values[k] = 0
			}
		case string:
			if k != "Date" {
				return domain.FeatureRow{}, &domain.InvalidFeatureRowError{Feature: k, Reason: "is not a number"}
			}
			date, err = time.Parse(time.DateOnly, x)
			if err != nil {
				return domain.FeatureRow{}, &domain.InvalidFeatureRowError{Feature: "Date", Reason: "must be YYYY-MM-DD"}
			}
		}
	}
	if !date.IsZero() {
		calendar := domain.FeatureRow{}.WithCalendar(date).Values()
		for _, k := range []string{"Year", "Month", "Week", "Day", "DayOfWeek"} {
			values[k] = calendar[k]
		}
	}
	return domain.ParseFeatureRow(values)
}

func newFileLoader(dir string, lg zerolog.Logger) *inference.Loader {
	return inference.NewLoader(otel.Tracer(tracing.ServiceName), artifacts.NewFileStore(dir), ensemble.NewStore(nil), nil, lg)
}

func newLogger(c *cli.Context) (zerolog.Logger, error) {
	return logger.New(logger.Config{Level: c.String("log-level"), Format: "console", Output: c.App.ErrWriter})
}

func writeJSON(c *cli.Context, v any) error {
	enc := json.NewEncoder(c.App.Writer)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
