// Package strategy implements the EMA-cross signal generator with an RSI
// filter and an optional volume floor, plus the validated parameter set
// shared by the backtest simulator and the live worker.
package strategy

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

var validate = validator.New()

// Params is the full strategy and execution parameter set. A zero MinVolume
// disables the volume floor.
type Params struct {
	Fast             int     `yaml:"fast" json:"fast" validate:"gte=2"`
	Slow             int     `yaml:"slow" json:"slow" validate:"gtfield=Fast"`
	RSIPeriod        int     `yaml:"rsi_period" json:"rsi_period" validate:"gte=2"`
	RSIBuyThreshold  int     `yaml:"rsi_buy_threshold" json:"rsi_buy_threshold" validate:"gte=1,lte=99"`
	RSISellThreshold int     `yaml:"rsi_sell_threshold" json:"rsi_sell_threshold" validate:"gte=1,lte=99"`
	MinVolume        float64 `yaml:"min_volume" json:"min_volume" validate:"gte=0"`

	RiskPerTrade float64 `yaml:"risk_per_trade" json:"risk_per_trade" validate:"gt=0,lte=1"`
	InitialCash  float64 `yaml:"initial_cash" json:"initial_cash" validate:"gt=0"`
	MinOrderUSD  float64 `yaml:"min_order_usd" json:"min_order_usd" validate:"gt=0"`

	PollIntervalSeconds float64 `yaml:"poll_interval_seconds" json:"poll_interval_seconds" validate:"gt=0"`
}

// Defaults returns the conventional parameter set.
func Defaults() Params {
	return Params{
		Fast:                9,
		Slow:                21,
		RSIPeriod:           14,
		RSIBuyThreshold:     40,
		RSISellThreshold:    60,
		MinVolume:           0,
		RiskPerTrade:        0.01,
		InitialCash:         10000,
		MinOrderUSD:         10,
		PollIntervalSeconds: 10,
	}
}

// Validate checks all field constraints. A non-nil error means the parameter
// set must not be used to start a worker or a backtest.
func (p Params) Validate() error {
	if err := validate.Struct(p); err != nil {
		return fmt.Errorf("invalid params: %w", err)
	}
	return nil
}

// PollInterval converts PollIntervalSeconds to a duration.
func (p Params) PollInterval() time.Duration {
	return time.Duration(p.PollIntervalSeconds * float64(time.Second))
}

// MinCandles is the smallest candle window that lets both the slow EMA and
// the RSI settle and still leaves a (prev, last) pair to evaluate.
func (p Params) MinCandles() int {
	n := p.Slow
	if p.RSIPeriod > n {
		n = p.RSIPeriod
	}
	return n + 2
}

// LoadFile reads a YAML parameter file over Defaults. Keys omitted in the
// file keep their default values.
func LoadFile(path string) (Params, error) {
	p := Defaults()
	data, err := os.ReadFile(path)
	if err != nil {
		return p, fmt.Errorf("read params file: %w", err)
	}
	if err := yaml.Unmarshal(data, &p); err != nil {
		return p, fmt.Errorf("parse params file: %w", err)
	}
	if err := p.Validate(); err != nil {
		return p, err
	}
	return p, nil
}
