package config

import (
	"math"
	"sort"

	"github.com/milosgajdos/go-control"
	"github.com/pkg/errors"
)

const inch = 0.0254

var presets = map[string]func() *Config{
	"arm": func() *Config {
		return &Config{
			Kind:       KindAngular,
			Namespaces: []string{"frc", "control_loops", "arm"},
			Systems: []System{{
				Name:            "Arm",
				Motor:           Motor{Type: "falcon"},
				G:               14.0 / 48.0,
				J:               0.45,
				Radius:          1.7 * inch / 2.0,
				QPos:            0.10,
				QVel:            5.5,
				KalmanQPos:      0.12,
				KalmanQVel:      2.0,
				KalmanQVoltage:  40.0,
				KalmanRPosition: 0.05,
			}},
			Plot: Plot{Goal: Float(math.Pi / 2.0), MaxVelocity: Float(10.0), MaxAcceleration: Float(90.0)},
		}
	},
	"elevator": func() *Config {
		return &Config{
			Kind:       KindLinear,
			Namespaces: []string{"frc", "control_loops", "elevator"},
			Systems: []System{{
				Name:            "Elevator",
				Motor:           Motor{Type: "falcon", Count: 2},
				G:               14.0 / 48.0,
				Radius:          1.7 * inch / 2.0,
				Mass:            (14.5 + 3.5) / 2.2,
				QPos:            0.10,
				QVel:            5.5,
				KalmanQPos:      0.12,
				KalmanQVel:      2.0,
				KalmanQVoltage:  40.0,
				KalmanRPosition: 0.05,
			}},
			Plot: Plot{Goal: Float(1.0), MaxVelocity: Float(3.0), MaxAcceleration: Float(40.0)},
		}
	},
	"wrapped": func() *Config {
		return &Config{
			Kind:       KindAngular,
			Namespaces: []string{"frc", "control_loops", "wrapped"},
			Systems: []System{{
				Name:            "TestWrappedSystem",
				Motor:           Motor{Type: "775pro"},
				G:               (1.0 / 35.0) * (20.0 / 40.0),
				Radius:          16.0 * 0.25 / (2.0 * math.Pi) * inch,
				J:               5.4,
				QPos:            0.015,
				QVel:            0.3,
				KalmanQPos:      0.12,
				KalmanQVel:      2.0,
				KalmanQVoltage:  40.0,
				KalmanRPosition: 0.05,
				WrapPoint:       2.0 * math.Pi,
			}},
			Plot: Plot{Goal: Float(0.1)},
		}
	},
	"drivetrain": func() *Config {
		return &Config{
			Kind:       KindDrivetrain,
			Namespaces: []string{"frc", "control_loops", "drivetrain"},
			Drivetrain: &Drivetrain{
				Name:           "Drivetrain",
				J:              1.5,
				Mass:           38.5,
				RobotRadius:    0.45 / 2.0,
				WheelRadius:    4.0 * inch / 2.0,
				G:              9.0 / 52.0,
				QPos:           0.14,
				QVel:           1.30,
				Efficiency:     Float(0.80),
				KalmanQVoltage: Float(13.0),
			},
			Plot: Plot{Goal: Float(1.0), MaxVelocity: Float(3.0), MaxAcceleration: Float(10.0)},
		}
	},
	"flywheel": func() *Config {
		return &Config{
			Kind:       KindFlywheel,
			Namespaces: []string{"frc", "control_loops", "flywheel"},
			Flywheels: []Flywheel{{
				Name:     "FlywheelTest",
				Motor:    Motor{Type: "falcon"},
				G:        60.0 / 48.0,
				J:        0.0035,
				QPos:     0.01,
				QVel:     10.0,
				QVoltage: 4.0,
				RPos:     0.01,
				Pole:     0.95,
			}},
			Plot: Plot{Goal: Float(500.0)},
		}
	},
}

// Preset returns a fresh copy of the named built-in target with defaults applied.
// It returns error wrapping control.ErrConfig if no such preset exists.
func Preset(name string) (*Config, error) {
	f, ok := presets[name]
	if !ok {
		return nil, errors.Wrapf(control.ErrConfig, "unknown preset %q, expected one of %v", name, PresetNames())
	}

	c := f()
	c.SetDefaults()

	if err := c.Validate(); err != nil {
		return nil, errors.Wrapf(err, "preset %q", name)
	}

	return c, nil
}

// PresetNames returns sorted built-in target names.
func PresetNames() []string {
	names := make([]string, 0, len(presets))
	for name := range presets {
		names = append(names, name)
	}
	sort.Strings(names)

	return names
}
