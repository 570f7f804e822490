// Package config loads generator targets from YAML.
package config

import (
	"bytes"
	"io"
	"os"

	"github.com/milosgajdos/go-control"
	"github.com/milosgajdos/go-control/motor"
	"github.com/milosgajdos/go-control/plant"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Target kinds
const (
	KindAngular    = "angular"
	KindLinear     = "linear"
	KindDrivetrain = "drivetrain"
	KindFlywheel   = "flywheel"
)

// Defaults applied to unset plot and drivetrain observer fields.
const (
	DefaultGoal            = 1.0
	DefaultMaxVelocity     = 10.0
	DefaultMaxAcceleration = 70.0
	DefaultPlotDuration    = 2.0
	DefaultKick            = 2.0

	DefaultDrivetrainKalmanQPos      = 0.05
	DefaultDrivetrainKalmanQVel      = 1.0
	DefaultDrivetrainKalmanQVoltage  = 10.0
	DefaultDrivetrainKalmanRPosition = 0.0001
)

// Config is a generator target.
type Config struct {
	Kind         string      `yaml:"kind"`
	Namespaces   []string    `yaml:"namespaces"`
	PlantType    string      `yaml:"plant_type"`
	ObserverType string      `yaml:"observer_type"`
	ScalarType   string      `yaml:"scalar_type"`
	Systems      []System    `yaml:"systems"`
	Drivetrain   *Drivetrain `yaml:"drivetrain"`
	Flywheels    []Flywheel  `yaml:"flywheels"`
	Plot         Plot        `yaml:"plot"`
}

// Motor selects Count identical catalog motors.
type Motor struct {
	Type  string `yaml:"type"`
	Count int    `yaml:"count"`
}

// System is a single-axis system.
type System struct {
	Name               string   `yaml:"name"`
	Motor              Motor    `yaml:"motor"`
	G                  float64  `yaml:"g"`
	J                  float64  `yaml:"j"`
	Mass               float64  `yaml:"mass"`
	Radius             float64  `yaml:"radius"`
	QPos               float64  `yaml:"q_pos"`
	QVel               float64  `yaml:"q_vel"`
	KalmanQPos         float64  `yaml:"kalman_q_pos"`
	KalmanQVel         float64  `yaml:"kalman_q_vel"`
	KalmanQVoltage     float64  `yaml:"kalman_q_voltage"`
	KalmanRPosition    float64  `yaml:"kalman_r_position"`
	Dt                 *float64 `yaml:"dt"`
	VoltageLimit       *float64 `yaml:"voltage_limit"`
	EnableVoltageError *bool    `yaml:"enable_voltage_error"`
	DelayedU           int      `yaml:"delayed_u"`
	WrapPoint          float64  `yaml:"wrap_point"`
	QPosFF             *float64 `yaml:"q_pos_ff"`
	QVelFF             *float64 `yaml:"q_vel_ff"`
}

// Drivetrain is a two sided differential drivetrain.
// G sets both gears of a single speed gearbox.
type Drivetrain struct {
	Name            string   `yaml:"name"`
	Motor           Motor    `yaml:"motor"`
	J               float64  `yaml:"j"`
	Mass            float64  `yaml:"mass"`
	RobotRadius     float64  `yaml:"robot_radius"`
	WheelRadius     float64  `yaml:"wheel_radius"`
	G               float64  `yaml:"g"`
	GLow            *float64 `yaml:"g_low"`
	GHigh           *float64 `yaml:"g_high"`
	QPos            float64  `yaml:"q_pos"`
	QPosLow         *float64 `yaml:"q_pos_low"`
	QPosHigh        *float64 `yaml:"q_pos_high"`
	QVel            float64  `yaml:"q_vel"`
	QVelLow         *float64 `yaml:"q_vel_low"`
	QVelHigh        *float64 `yaml:"q_vel_high"`
	Efficiency      *float64 `yaml:"efficiency"`
	Dt              *float64 `yaml:"dt"`
	RobotCGOffset   float64  `yaml:"robot_cg_offset"`
	KalmanQPos      *float64 `yaml:"kalman_q_pos"`
	KalmanQVel      *float64 `yaml:"kalman_q_vel"`
	KalmanQVoltage  *float64 `yaml:"kalman_q_voltage"`
	KalmanRPosition *float64 `yaml:"kalman_r_position"`
	VoltageLimit    *float64 `yaml:"voltage_limit"`
	QPosFF          *float64 `yaml:"q_pos_ff"`
	QVelFF          *float64 `yaml:"q_vel_ff"`
	HasIMU          bool     `yaml:"has_imu"`
	Force           bool     `yaml:"force"`
}

// Flywheel is a velocity controlled flywheel.
// Its noise standard deviations are continuous-time.
type Flywheel struct {
	Name         string   `yaml:"name"`
	Motor        Motor    `yaml:"motor"`
	G            float64  `yaml:"g"`
	J            float64  `yaml:"j"`
	QPos         float64  `yaml:"q_pos"`
	QVel         float64  `yaml:"q_vel"`
	QVoltage     float64  `yaml:"q_voltage"`
	RPos         float64  `yaml:"r_pos"`
	Pole         float64  `yaml:"pole"`
	Dt           *float64 `yaml:"dt"`
	VoltageLimit *float64 `yaml:"voltage_limit"`
	QVelFF       *float64 `yaml:"q_vel_ff"`
}

// Plot configures the validation harness run in plot mode.
// Goal is a velocity for flywheel targets.
type Plot struct {
	Goal            *float64 `yaml:"goal"`
	MaxVelocity     *float64 `yaml:"max_velocity"`
	MaxAcceleration *float64 `yaml:"max_acceleration"`
	Duration        *float64 `yaml:"duration"`
	Kick            *float64 `yaml:"kick"`
	// Noise is the standard deviation of the measurement noise. Zero disables it.
	Noise float64 `yaml:"noise"`
	Seed  uint64  `yaml:"seed"`
}

// Load reads the target at path.
// It returns error wrapping control.ErrConfig if the target can not be read or is invalid.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(control.ErrConfig, "open %s: %v", path, err)
	}
	defer f.Close()

	c, err := Decode(f)
	if err != nil {
		return nil, errors.Wrapf(err, "%s", path)
	}

	return c, nil
}

// Parse parses a YAML target.
func Parse(data []byte) (*Config, error) {
	return Decode(bytes.NewReader(data))
}

// Decode decodes a YAML target, applies defaults and validates it.
// Unknown fields are rejected.
func Decode(r io.Reader) (*Config, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	c := &Config{}
	if err := dec.Decode(c); err != nil {
		return nil, errors.Wrapf(control.ErrConfig, "decode: %v", err)
	}

	c.SetDefaults()

	if err := c.Validate(); err != nil {
		return nil, err
	}

	return c, nil
}

// SetDefaults fills in unset fields.
func (c *Config) SetDefaults() {
	for i := range c.Systems {
		c.Systems[i].setDefaults()
	}

	if c.Drivetrain != nil {
		c.Drivetrain.setDefaults()
	}

	for i := range c.Flywheels {
		c.Flywheels[i].setDefaults()
	}

	c.Plot.setDefaults()
}

func (s *System) setDefaults() {
	s.Motor.setDefaults()
	def(&s.Dt, plant.DefaultDt)
	def(&s.VoltageLimit, plant.DefaultVoltageLimit)
	def(&s.QPosFF, plant.DefaultQPosFF)
	def(&s.QVelFF, plant.DefaultQVelFF)
	if s.EnableVoltageError == nil {
		enable := true
		s.EnableVoltageError = &enable
	}
}

func (d *Drivetrain) setDefaults() {
	if d.Motor.Type == "" {
		d.Motor.Type = "cim"
	}
	if d.Motor.Count == 0 {
		d.Motor.Count = plant.DefaultNumMotors
	}
	def(&d.GLow, d.G)
	def(&d.GHigh, d.G)
	def(&d.QPosLow, d.QPos)
	def(&d.QPosHigh, d.QPos)
	def(&d.QVelLow, d.QVel)
	def(&d.QVelHigh, d.QVel)
	def(&d.Efficiency, plant.DefaultEfficiency)
	def(&d.Dt, plant.DefaultDt)
	def(&d.KalmanQPos, DefaultDrivetrainKalmanQPos)
	def(&d.KalmanQVel, DefaultDrivetrainKalmanQVel)
	def(&d.KalmanQVoltage, DefaultDrivetrainKalmanQVoltage)
	def(&d.KalmanRPosition, DefaultDrivetrainKalmanRPosition)
	def(&d.VoltageLimit, plant.DefaultVoltageLimit)
	def(&d.QPosFF, plant.DefaultQPosFF)
	def(&d.QVelFF, plant.DefaultQVelFF)
	if d.Name == "" {
		d.Name = "Drivetrain"
	}
}

func (f *Flywheel) setDefaults() {
	f.Motor.setDefaults()
	def(&f.Dt, plant.DefaultDt)
	def(&f.VoltageLimit, plant.DefaultVoltageLimit)
	def(&f.QVelFF, plant.DefaultQVelFFFlywheel)
}

func (m *Motor) setDefaults() {
	if m.Count == 0 {
		m.Count = 1
	}
}

func (p *Plot) setDefaults() {
	def(&p.Goal, DefaultGoal)
	def(&p.MaxVelocity, DefaultMaxVelocity)
	def(&p.MaxAcceleration, DefaultMaxAcceleration)
	def(&p.Duration, DefaultPlotDuration)
	def(&p.Kick, DefaultKick)
}

// def points v at d unless it is set. Explicit zeros are kept and rejected by validation.
func def(v **float64, d float64) {
	if *v == nil {
		*v = &d
	}
}

// val returns the value v points to or zero if it is unset.
func val(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}

// Float returns a pointer to v.
func Float(v float64) *float64 {
	return &v
}

// Validate checks the target is complete and that explicitly set
// sample intervals and voltage limits are positive.
// Remaining physical parameters are validated when the target is converted to plant parameters.
func (c *Config) Validate() error {
	switch c.Kind {
	case KindAngular, KindLinear:
		if len(c.Systems) == 0 {
			return errors.Wrapf(control.ErrConfig, "%s target without systems", c.Kind)
		}
		if c.Drivetrain != nil || len(c.Flywheels) != 0 {
			return errors.Wrapf(control.ErrConfig, "%s target with drivetrain or flywheels", c.Kind)
		}
		for _, s := range c.Systems {
			if s.Name == "" {
				return errors.Wrap(control.ErrConfig, "system without name")
			}
			if err := s.Motor.validate(); err != nil {
				return errors.Wrapf(err, "system %q", s.Name)
			}
			if err := positive(field{"dt", s.Dt}, field{"voltage_limit", s.VoltageLimit}); err != nil {
				return errors.Wrapf(err, "system %q", s.Name)
			}
		}
	case KindDrivetrain:
		if c.Drivetrain == nil {
			return errors.Wrap(control.ErrConfig, "drivetrain target without drivetrain")
		}
		if len(c.Systems) != 0 || len(c.Flywheels) != 0 {
			return errors.Wrap(control.ErrConfig, "drivetrain target with systems or flywheels")
		}
		d := c.Drivetrain
		if err := d.Motor.validate(); err != nil {
			return errors.Wrapf(err, "drivetrain %q", d.Name)
		}
		if err := positive(field{"dt", d.Dt}, field{"voltage_limit", d.VoltageLimit}); err != nil {
			return errors.Wrapf(err, "drivetrain %q", d.Name)
		}
	case KindFlywheel:
		if len(c.Flywheels) == 0 {
			return errors.Wrap(control.ErrConfig, "flywheel target without flywheels")
		}
		if c.Drivetrain != nil || len(c.Systems) != 0 {
			return errors.Wrap(control.ErrConfig, "flywheel target with systems or drivetrain")
		}
		for _, f := range c.Flywheels {
			if f.Name == "" {
				return errors.Wrap(control.ErrConfig, "flywheel without name")
			}
			if err := f.Motor.validate(); err != nil {
				return errors.Wrapf(err, "flywheel %q", f.Name)
			}
			if err := positive(field{"dt", f.Dt}, field{"voltage_limit", f.VoltageLimit}); err != nil {
				return errors.Wrapf(err, "flywheel %q", f.Name)
			}
		}
	default:
		return errors.Wrapf(control.ErrConfig, "unknown kind: %q", c.Kind)
	}

	p := c.Plot
	if val(p.MaxVelocity) < 0 || val(p.MaxAcceleration) < 0 || val(p.Duration) < 0 || p.Noise < 0 {
		return errors.Wrap(control.ErrConfig, "plot limits must not be negative")
	}

	return nil
}

type field struct {
	name string
	val  *float64
}

// positive checks every set field is a positive number.
func positive(fields ...field) error {
	for _, f := range fields {
		if f.val != nil && !(*f.val > 0) {
			return errors.Wrapf(control.ErrConfig, "%s must be positive: %v", f.name, *f.val)
		}
	}

	return nil
}

func (m Motor) validate() error {
	if _, err := motor.Lookup(m.Type); err != nil {
		return err
	}
	if m.Count < 1 {
		return errors.Wrapf(control.ErrConfig, "motor count must be positive: %d", m.Count)
	}

	return nil
}

// Stages returns the number of bundles the target generates.
func (c *Config) Stages() int {
	if c.Kind == KindDrivetrain {
		return 3
	}
	return 2
}

// Params converts the single-axis systems to plant parameters.
func (c *Config) Params() ([]plant.Params, error) {
	if c.Kind != KindAngular && c.Kind != KindLinear {
		return nil, errors.Wrapf(control.ErrConfig, "%s target has no single-axis systems", c.Kind)
	}

	params := make([]plant.Params, 0, len(c.Systems))
	for _, s := range c.Systems {
		m, err := motor.Lookup(s.Motor.Type)
		if err != nil {
			return nil, errors.Wrapf(err, "system %q", s.Name)
		}

		enable := true
		if s.EnableVoltageError != nil {
			enable = *s.EnableVoltageError
		}

		params = append(params, plant.Params{
			Name:               s.Name,
			Motor:              motor.N(m, s.Motor.Count),
			G:                  s.G,
			J:                  s.J,
			Mass:               s.Mass,
			Radius:             s.Radius,
			QPos:               s.QPos,
			QVel:               s.QVel,
			KalmanQPos:         s.KalmanQPos,
			KalmanQVel:         s.KalmanQVel,
			KalmanQVoltage:     s.KalmanQVoltage,
			KalmanRPosition:    s.KalmanRPosition,
			Dt:                 val(s.Dt),
			VoltageLimit:       val(s.VoltageLimit),
			EnableVoltageError: enable,
			DelayedU:           s.DelayedU,
			WrapPoint:          s.WrapPoint,
			QPosFF:             val(s.QPosFF),
			QVelFF:             val(s.QVelFF),
		})
	}

	return params, nil
}

// DrivetrainParams converts the drivetrain to plant parameters.
func (c *Config) DrivetrainParams() (plant.DrivetrainParams, error) {
	if c.Kind != KindDrivetrain || c.Drivetrain == nil {
		return plant.DrivetrainParams{}, errors.Wrapf(control.ErrConfig, "%s target has no drivetrain", c.Kind)
	}

	d := c.Drivetrain
	m, err := motor.Lookup(d.Motor.Type)
	if err != nil {
		return plant.DrivetrainParams{}, errors.Wrapf(err, "drivetrain %q", d.Name)
	}

	return plant.DrivetrainParams{
		Name:            d.Name,
		J:               d.J,
		Mass:            d.Mass,
		RobotRadius:     d.RobotRadius,
		WheelRadius:     d.WheelRadius,
		GLow:            val(d.GLow),
		GHigh:           val(d.GHigh),
		QPosLow:         val(d.QPosLow),
		QPosHigh:        val(d.QPosHigh),
		QVelLow:         val(d.QVelLow),
		QVelHigh:        val(d.QVelHigh),
		Efficiency:      val(d.Efficiency),
		Motor:           m,
		NumMotors:       d.Motor.Count,
		Dt:              val(d.Dt),
		RobotCGOffset:   d.RobotCGOffset,
		KalmanQPos:      val(d.KalmanQPos),
		KalmanQVel:      val(d.KalmanQVel),
		KalmanQVoltage:  val(d.KalmanQVoltage),
		KalmanRPosition: val(d.KalmanRPosition),
		VoltageLimit:    val(d.VoltageLimit),
		QPosFF:          val(d.QPosFF),
		QVelFF:          val(d.QVelFF),
		HasIMU:          d.HasIMU,
		Force:           d.Force,
	}, nil
}

// FlywheelParams converts the flywheels to plant parameters.
func (c *Config) FlywheelParams() ([]plant.FlywheelParams, error) {
	if c.Kind != KindFlywheel {
		return nil, errors.Wrapf(control.ErrConfig, "%s target has no flywheels", c.Kind)
	}

	params := make([]plant.FlywheelParams, 0, len(c.Flywheels))
	for _, f := range c.Flywheels {
		m, err := motor.Lookup(f.Motor.Type)
		if err != nil {
			return nil, errors.Wrapf(err, "flywheel %q", f.Name)
		}

		params = append(params, plant.FlywheelParams{
			Name:         f.Name,
			Motor:        motor.N(m, f.Motor.Count),
			G:            f.G,
			J:            f.J,
			QPos:         f.QPos,
			QVel:         f.QVel,
			QVoltage:     f.QVoltage,
			RPos:         f.RPos,
			Pole:         f.Pole,
			Dt:           val(f.Dt),
			VoltageLimit: val(f.VoltageLimit),
			QVelFF:       val(f.QVelFF),
		})
	}

	return params, nil
}
