// Package demo replays the accident sequences against a control module.
package demo

import (
	"sync"
	"time"

	"github.com/go-errors/errors"
	"github.com/the-lightning-land/theracd/control"
	"golang.org/x/sync/errgroup"
)

type Scenario struct {
	Id          string
	Name        string
	Description string
	run         func(r *runner) error
}

// Outcome is what a scenario did to the patient.
type Outcome struct {
	Scenario *Scenario
	// Results holds one entry per beam fire, none when the machine
	// refused to get that far.
	Results []control.FireResult
	// Doses holds the configured dose at each fire, aligned with Results.
	Doses  []int
	Status control.Status
}

// Accident reports whether any fire was hazardous or delivered a dose that
// never passed validation.
func (o *Outcome) Accident() bool {
	for i, result := range o.Results {
		if result.Hazardous() {
			return true
		}

		unvalidated := o.Doses[i] < control.MinDose || o.Doses[i] > control.MaxDose
		if result == control.FireSuccess && unvalidated {
			return true
		}
	}

	return false
}

type runner struct {
	ctl      *control.ControlModule
	timeUnit time.Duration
	log      Logger
	mtx      sync.Mutex
	results  []control.FireResult
	doses    []int
}

func (r *runner) fire() control.FireResult {
	result := r.ctl.FireBeam()
	dose := r.ctl.Status().Dose

	r.mtx.Lock()
	r.results = append(r.results, result)
	r.doses = append(r.doses, dose)
	r.mtx.Unlock()

	if result.Hazardous() {
		r.log.Errorf("Fire result: %v", result)
	} else {
		r.log.Infof("Fire result: %v", result)
	}

	return result
}

func (r *runner) pause(units float64) {
	time.Sleep(control.Units(r.timeUnit, units))
}

var (
	ModeChangeRace = &Scenario{
		Id:          "1",
		Name:        "Mode change race",
		Description: "Operator corrects x-ray to electron and fires before the turntable moved",
		run: func(r *runner) error {
			if err := r.ctl.SetupTreatment(200, 10, 15); err != nil {
				return errors.Errorf("Could not set up treatment: %v", err)
			}

			if err := r.ctl.ChangeMode(control.BeamXray); err != nil {
				return errors.Errorf("Could not select x-ray: %v", err)
			}

			if err := r.ctl.ChangeMode(control.BeamElectron); err != nil {
				return errors.Errorf("Could not select electron: %v", err)
			}

			r.fire()

			return nil
		},
	}

	CounterOverflow = &Scenario{
		Id:          "2",
		Name:        "Setup counter overflow",
		Description: "The 256th setup of the day wraps the counter and skips dose validation",
		run: func(r *runner) error {
			for i := 0; i < 255; i++ {
				if err := r.ctl.SetupTreatment(100, 0, 0); err != nil {
					return errors.Errorf("Routine setup %d failed: %v", i+1, err)
				}
			}

			r.log.Infof("Setup counter at %d", r.ctl.Status().SetupCounter)

			if err := r.ctl.SetupTreatment(9999, 0, 0); err != nil {
				r.log.Infof("Setup with dose 9999 rejected: %v", err)
				return nil
			}

			r.log.Warnf("Setup with dose 9999 accepted, counter at %d", r.ctl.Status().SetupCounter)

			r.fire()

			return nil
		},
	}

	EditRace = &Scenario{
		Id:          "3",
		Name:        "Edit race",
		Description: "Operator edits the dose while the machine changes mode and fires",
		run: func(r *runner) error {
			if err := r.ctl.SetupTreatment(200, 10, 15); err != nil {
				return errors.Errorf("Could not set up treatment: %v", err)
			}

			var g errgroup.Group

			g.Go(func() error {
				for i := 0; i < 5; i++ {
					if err := r.ctl.EditField(control.FieldDose, 900+10*i); err != nil {
						return err
					}
					r.pause(0.01)
				}
				return nil
			})

			g.Go(func() error {
				r.pause(0.05)
				if err := r.ctl.ChangeMode(control.BeamElectron); err != nil {
					r.log.Warnf("Mode change failed: %v", err)
					return nil
				}
				r.fire()
				return nil
			})

			return g.Wait()
		},
	}

	ConcurrentOperators = &Scenario{
		Id:          "4",
		Name:        "Concurrent operators",
		Description: "Five operators set up, switch mode and fire on the same machine at once",
		run: func(r *runner) error {
			var g errgroup.Group

			for i := 0; i < 5; i++ {
				operator := i

				g.Go(func() error {
					if err := r.ctl.SetupTreatment(100+operator, operator, operator); err != nil {
						r.log.Warnf("Operator %d setup failed: %v", operator, err)
						return nil
					}

					mode := control.BeamXray
					if operator%2 == 0 {
						mode = control.BeamElectron
					}

					if err := r.ctl.ChangeMode(mode); err != nil {
						r.log.Warnf("Operator %d mode change failed: %v", operator, err)
						return nil
					}

					r.pause(0.01)
					r.fire()

					return nil
				})
			}

			return g.Wait()
		},
	}

	Scenarios = []*Scenario{
		ModeChangeRace,
		CounterOverflow,
		EditRace,
		ConcurrentOperators,
	}
)

func ScenarioById(id string) (*Scenario, error) {
	for _, s := range Scenarios {
		if s.Id == id {
			return s, nil
		}
	}

	return nil, errors.Errorf("unknown scenario %v", id)
}

type Config struct {
	NewControl func() *control.ControlModule
	// TimeUnit must match the one the control modules run with.
	TimeUnit time.Duration
	Logger   Logger
}

type Demo struct {
	newControl func() *control.ControlModule
	timeUnit   time.Duration
	log        Logger
}

func New(config *Config) *Demo {
	d := &Demo{
		newControl: config.NewControl,
		timeUnit:   config.TimeUnit,
	}

	if config.Logger != nil {
		d.log = config.Logger
	} else {
		d.log = noopLogger{}
	}

	if d.timeUnit <= 0 {
		d.timeUnit = control.DefaultTimeUnit
	}

	return d
}

// Run replays a scenario on a fresh control module.
func (d *Demo) Run(s *Scenario) (*Outcome, error) {
	ctl := d.newControl()
	defer ctl.Close()

	d.log.Infof("Scenario %v: %v (%v mode)", s.Id, s.Name, ctl.Mode())
	d.log.Infof("%v", s.Description)

	r := &runner{
		ctl:      ctl,
		timeUnit: d.timeUnit,
		log:      d.log,
	}

	if err := s.run(r); err != nil {
		return nil, errors.Errorf("Scenario %v failed: %v", s.Id, err)
	}

	outcome := &Outcome{
		Scenario: s,
		Results:  r.results,
		Doses:    r.doses,
		Status:   ctl.Status(),
	}

	if outcome.Accident() {
		d.log.Errorf("Scenario %v: patient would have received a lethal dose", s.Id)
	} else {
		d.log.Infof("Scenario %v: safety systems prevented an accident", s.Id)
	}

	return outcome, nil
}

// RunAll runs the given scenarios one after another.
func (d *Demo) RunAll(scenarios []*Scenario) ([]*Outcome, error) {
	outcomes := make([]*Outcome, 0, len(scenarios))

	for _, s := range scenarios {
		outcome, err := d.Run(s)
		if err != nil {
			return nil, err
		}

		outcomes = append(outcomes, outcome)
	}

	return outcomes, nil
}

func Accidents(outcomes []*Outcome) int {
	accidents := 0

	for _, o := range outcomes {
		if o.Accident() {
			accidents++
		}
	}

	return accidents
}
