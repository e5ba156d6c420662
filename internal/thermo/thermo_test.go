package thermo

import (
	"errors"
	"testing"

	"periph.io/x/conn/v3/physic"

	"epdfast/internal/cog"
	"epdfast/internal/config"
)

func TestCheckMode(t *testing.T) {
	for _, tc := range []struct {
		celsius   float64
		requested cog.UpdateMode
		want      cog.UpdateMode
	}{
		{25, cog.Fast, cog.Fast},
		{15, cog.Partial, cog.Partial},
		{30, cog.Fast, cog.Fast},
		{14.9, cog.Fast, cog.Global},
		{31, cog.Partial, cog.Global},
		{0, cog.Fast, cog.Global},
		{50, cog.Global, cog.Global},
		{-1, cog.Fast, cog.None},
		{51, cog.Global, cog.None},
		{60, cog.None, cog.None},
	} {
		if got := CheckMode(tc.celsius, tc.requested); got != tc.want {
			t.Errorf("CheckMode(%v, %v) = %v, want %v", tc.celsius, tc.requested, got, tc.want)
		}
	}
}

type fakeSensor struct {
	temps []physic.Temperature
	err   error
}

func (f *fakeSensor) Sense(env *physic.Env) error {
	if f.err != nil {
		return f.err
	}
	env.Temperature = f.temps[0]
	f.temps = f.temps[1:]
	return nil
}

func TestSensorReader(t *testing.T) {
	s := &fakeSensor{temps: []physic.Temperature{physic.ZeroCelsius + 25*physic.Kelvin}}
	got, err := NewSensorReader(s).Celsius()
	if err != nil {
		t.Fatal(err)
	}
	if got < 24.99 || got > 25.01 {
		t.Errorf("Celsius() = %v, want 25", got)
	}
}

func TestCheckerFallback(t *testing.T) {
	s := &fakeSensor{temps: []physic.Temperature{physic.ZeroCelsius + 40*physic.Kelvin}}
	c := NewChecker(NewSensorReader(s))

	if got := c.CheckTemperatureMode(cog.Fast); got != cog.Global {
		t.Errorf("at 40°C got %v, want global", got)
	}

	s.err = errors.New("nack")
	if got := c.CheckTemperatureMode(cog.Fast); got != cog.Global {
		t.Errorf("after failed read got %v, want global from last reading", got)
	}
	if last, ok := c.Last(); !ok || last < 39.99 || last > 40.01 {
		t.Errorf("Last() = %v, %v", last, ok)
	}
}

func TestCheckerNoReading(t *testing.T) {
	c := NewChecker(NewSensorReader(&fakeSensor{err: errors.New("nack")}))
	if got := c.CheckTemperatureMode(cog.Partial); got != cog.Partial {
		t.Errorf("got %v, want partial passed through", got)
	}
}

func TestOpenFixed(t *testing.T) {
	for _, tc := range []struct {
		name    string
		celsius *float64
		want    float64
	}{
		{name: "set", celsius: ptr(10), want: 10},
		{name: "freezing", celsius: ptr(0), want: 0},
		{name: "unset", want: 25},
	} {
		r, closer, err := Open(config.TemperatureConfig{Source: "fixed", Celsius: tc.celsius})
		if err != nil || closer != nil {
			t.Fatalf("%s: Open() = %v, %v", tc.name, closer, err)
		}
		if got, _ := r.Celsius(); got != tc.want {
			t.Errorf("%s: Celsius() = %v, want %v", tc.name, got, tc.want)
		}
	}
	if _, _, err := Open(config.TemperatureConfig{Source: "infrared"}); err == nil {
		t.Error("Open() with unknown source succeeded")
	}
}

func ptr(v float64) *float64 { return &v }
