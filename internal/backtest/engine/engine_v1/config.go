package engine

import (
	"encoding/json"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/invopop/jsonschema"
	"github.com/moznion/go-optional"
	"github.com/quantra-lab/barsim/pkg/errors"
	"gopkg.in/yaml.v3"
)

// StopMode selects the mark price used to evaluate the stop-loss line.
type StopMode string

// TrailMode selects the mark price used for the trailing watermark and line.
type TrailMode string

// ExitMode controls which of the trend-break/signal exits are active.
// Risk exits (stop-loss, trailing-stop, take-profit) are always active when
// their thresholds are configured non-zero.
type ExitMode string

const (
	StopModeClose StopMode = "close"
	StopModeLow   StopMode = "low"

	TrailModeClose TrailMode = "close"
	TrailModeLow   TrailMode = "low"

	ExitModeBoth   ExitMode = "both"
	ExitModeTrend  ExitMode = "trend"
	ExitModeSignal ExitMode = "signal"
)

var (
	AllStopModes  = []any{StopModeClose, StopModeLow}
	AllTrailModes = []any{TrailModeClose, TrailModeLow}
	AllExitModes  = []any{ExitModeBoth, ExitModeTrend, ExitModeSignal}
)

type BacktestEngineV1Config struct {
	InitialCash  float64 `yaml:"initial_cash" json:"initial_cash" validate:"gt=0" jsonschema:"title=Initial Cash,description=Starting cash balance,minimum=0"`
	CooldownBars int     `yaml:"cooldown_bars" json:"cooldown_bars" validate:"gte=0" jsonschema:"title=Cooldown Bars,description=Bars to wait after an exit before a new entry is allowed,minimum=0"`

	BuyFeeRate  float64 `yaml:"buy_fee_rate" json:"buy_fee_rate" validate:"gte=0" jsonschema:"title=Buy Fee Rate,description=Multiplicative fee rate on buy notional,minimum=0"`
	SellFeeRate float64 `yaml:"sell_fee_rate" json:"sell_fee_rate" validate:"gte=0" jsonschema:"title=Sell Fee Rate,description=Multiplicative fee rate on sell notional,minimum=0"`
	SellTaxRate float64 `yaml:"sell_tax_rate" json:"sell_tax_rate" validate:"gte=0" jsonschema:"title=Sell Tax Rate,description=Multiplicative tax rate on sell notional,minimum=0"`
	SlippageBps float64 `yaml:"slippage_bps" json:"slippage_bps" validate:"gte=0" jsonschema:"title=Slippage,description=Execution slippage in basis points applied against the trader on both sides,minimum=0"`

	StopLossPct  float64  `yaml:"stop_loss_pct" json:"stop_loss_pct" validate:"gte=0" jsonschema:"title=Stop Loss,description=Stop-loss threshold as a fraction of entry price; 0 disables,minimum=0"`
	StopLossMode StopMode `yaml:"stop_loss_mode" json:"stop_loss_mode" validate:"oneof=close low" jsonschema:"title=Stop Loss Mode,description=Mark price source for the stop-loss check"`

	TrailingStopPct float64   `yaml:"trailing_stop_pct" json:"trailing_stop_pct" validate:"gte=0" jsonschema:"title=Trailing Stop,description=Trailing-stop threshold as a fraction of the watermark; 0 disables,minimum=0"`
	TrailingMode    TrailMode `yaml:"trailing_mode" json:"trailing_mode" validate:"oneof=close low" jsonschema:"title=Trailing Mode,description=Mark price source for the trailing watermark and check"`

	TakeProfitPct float64 `yaml:"take_profit_pct" json:"take_profit_pct" validate:"gte=0" jsonschema:"title=Take Profit,description=Take-profit threshold on close as a fraction of entry price; 0 disables,minimum=0"`

	ExitMode ExitMode `yaml:"exit_mode" json:"exit_mode" validate:"oneof=both trend signal" jsonschema:"title=Exit Mode,description=Which of the trend-break and signal exits are active"`

	StartTime optional.Option[time.Time] `yaml:"start_time" json:"start_time" jsonschema:"title=Start Time,description=Optional start of the bar window"`
	EndTime   optional.Option[time.Time] `yaml:"end_time" json:"end_time" jsonschema:"title=End Time,description=Optional end of the bar window"`
}

// UnmarshalYAML implements custom unmarshaling for BacktestEngineV1Config.
// Unset fields fall back to the defaults of DefaultConfig, and the optional
// time bounds map from nullable YAML fields.
func (c *BacktestEngineV1Config) UnmarshalYAML(value *yaml.Node) error {
	type plainConfig struct {
		InitialCash     *float64   `yaml:"initial_cash"`
		CooldownBars    *int       `yaml:"cooldown_bars"`
		BuyFeeRate      *float64   `yaml:"buy_fee_rate"`
		SellFeeRate     *float64   `yaml:"sell_fee_rate"`
		SellTaxRate     *float64   `yaml:"sell_tax_rate"`
		SlippageBps     *float64   `yaml:"slippage_bps"`
		StopLossPct     *float64   `yaml:"stop_loss_pct"`
		StopLossMode    *StopMode  `yaml:"stop_loss_mode"`
		TrailingStopPct *float64   `yaml:"trailing_stop_pct"`
		TrailingMode    *TrailMode `yaml:"trailing_mode"`
		TakeProfitPct   *float64   `yaml:"take_profit_pct"`
		ExitMode        *ExitMode  `yaml:"exit_mode"`
		StartTime       *time.Time `yaml:"start_time"`
		EndTime         *time.Time `yaml:"end_time"`
	}

	var plain plainConfig
	if err := value.Decode(&plain); err != nil {
		return err
	}

	*c = DefaultConfig()

	if plain.InitialCash != nil {
		c.InitialCash = *plain.InitialCash
	}

	if plain.CooldownBars != nil {
		c.CooldownBars = *plain.CooldownBars
	}

	if plain.BuyFeeRate != nil {
		c.BuyFeeRate = *plain.BuyFeeRate
	}

	if plain.SellFeeRate != nil {
		c.SellFeeRate = *plain.SellFeeRate
	}

	if plain.SellTaxRate != nil {
		c.SellTaxRate = *plain.SellTaxRate
	}

	if plain.SlippageBps != nil {
		c.SlippageBps = *plain.SlippageBps
	}

	if plain.StopLossPct != nil {
		c.StopLossPct = *plain.StopLossPct
	}

	if plain.StopLossMode != nil {
		c.StopLossMode = *plain.StopLossMode
	}

	if plain.TrailingStopPct != nil {
		c.TrailingStopPct = *plain.TrailingStopPct
	}

	if plain.TrailingMode != nil {
		c.TrailingMode = *plain.TrailingMode
	}

	if plain.TakeProfitPct != nil {
		c.TakeProfitPct = *plain.TakeProfitPct
	}

	if plain.ExitMode != nil {
		c.ExitMode = *plain.ExitMode
	}

	if plain.StartTime != nil {
		c.StartTime = optional.Some(*plain.StartTime)
	}

	if plain.EndTime != nil {
		c.EndTime = optional.Some(*plain.EndTime)
	}

	return nil
}

// Validate checks the configuration against the rules that must hold before
// any bar is processed. A failure here is fatal for the whole run.
func (c *BacktestEngineV1Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidConfiguration, "engine config failed validation", err)
	}

	if c.StartTime.IsSome() && c.EndTime.IsSome() && c.EndTime.Unwrap().Before(c.StartTime.Unwrap()) {
		return errors.New(errors.ErrCodeInvalidParameter, "end_time must not be before start_time")
	}

	return nil
}

// GenerateSchema generates a JSON schema for the BacktestEngineV1Config.
func (c *BacktestEngineV1Config) GenerateSchema() *jsonschema.Schema {
	reflector := jsonschema.Reflector{
		ExpandedStruct:            true,
		AllowAdditionalProperties: false,
		Mapper: func(t reflect.Type) *jsonschema.Schema {
			if t.String() == "optional.Option[time.Time]" {
				return &jsonschema.Schema{
					Type:   "string",
					Format: "date-time",
				}
			}

			if strings.HasSuffix(t.String(), "engine.StopMode") {
				return &jsonschema.Schema{Type: "string", Enum: AllStopModes}
			}

			if strings.HasSuffix(t.String(), "engine.TrailMode") {
				return &jsonschema.Schema{Type: "string", Enum: AllTrailModes}
			}

			if strings.HasSuffix(t.String(), "engine.ExitMode") {
				return &jsonschema.Schema{Type: "string", Enum: AllExitModes}
			}

			return nil
		},
	}

	schema := reflector.Reflect(c)

	schema.Title = "backtest-engine-v1-config"
	schema.Description = "Configuration schema for BacktestEngineV1"
	schema.Version = "http://json-schema.org/draft-07/schema#"

	return schema
}

// GenerateSchemaJSON generates a JSON schema string for the BacktestEngineV1Config.
func (c *BacktestEngineV1Config) GenerateSchemaJSON() (string, error) {
	schema := c.GenerateSchema()

	schemaBytes, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return "", err
	}

	return string(schemaBytes), nil
}

// DefaultConfig returns a BacktestEngineV1Config with the historical default
// rates: Taiwan-market brokerage fee on both sides and transaction tax on
// sells. Risk exits default to disabled.
func DefaultConfig() BacktestEngineV1Config {
	return BacktestEngineV1Config{
		InitialCash:     1_000_000,
		CooldownBars:    0,
		BuyFeeRate:      0.001425,
		SellFeeRate:     0.001425,
		SellTaxRate:     0.003,
		SlippageBps:     0,
		StopLossPct:     0,
		StopLossMode:    StopModeClose,
		TrailingStopPct: 0,
		TrailingMode:    TrailModeClose,
		TakeProfitPct:   0,
		ExitMode:        ExitModeBoth,
		StartTime:       optional.None[time.Time](),
		EndTime:         optional.None[time.Time](),
	}
}

// TestConfig returns a config suitable for tests: no fees, no slippage, all
// risk exits disabled unless the test enables them.
func TestConfig(initialCash float64) BacktestEngineV1Config {
	cfg := DefaultConfig()
	cfg.InitialCash = initialCash
	cfg.BuyFeeRate = 0
	cfg.SellFeeRate = 0
	cfg.SellTaxRate = 0

	return cfg
}
