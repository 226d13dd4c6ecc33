package control

import (
	"context"
	"math"
	"sync"
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/the-lightning-land/theracd/machine"
	"go.uber.org/mock/gomock"
)

const testTimeUnit = 10 * time.Millisecond

// holdTurntable makes every rotation block until release is closed or the
// module is closed.
func holdTurntable(turntable *MockTurntable, release <-chan struct{}) {
	turntable.EXPECT().
		Rotate(gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, to machine.Position) error {
			select {
			case <-release:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		}).
		AnyTimes()
}

var _ = Describe("ControlModule", func() {
	var (
		mockCtrl  *gomock.Controller
		turntable *MockTurntable
		release   chan struct{}
		c         *ControlModule
	)

	newModule := func(mode Mode) *ControlModule {
		return New(&Config{
			Mode:            mode,
			Turntable:       turntable,
			TimeUnit:        testTimeUnit,
			HardwareTimeout: 2 * time.Second,
		})
	}

	BeforeEach(func() {
		mockCtrl = gomock.NewController(GinkgoT())
		turntable = NewMockTurntable(mockCtrl)
		release = make(chan struct{})
	})

	AfterEach(func() {
		if c != nil {
			c.Close()
			c = nil
		}
		mockCtrl.Finish()
	})

	It("should start in startup state with the turntable at x-ray", func() {
		c = newModule(Unsynchronized)

		status := c.Status()
		Expect(status.State).To(Equal(StateStartup))
		Expect(status.BeamMode).To(Equal(BeamXray))
		Expect(status.TurntablePosition).To(Equal(machine.PositionXray))
		Expect(status.TurntableMoving).To(BeFalse())
		Expect(status.SetupCounter).To(BeZero())
		Expect(status.Mode).To(Equal(Unsynchronized))
	})

	It("should return identical snapshots without intervening mutation", func() {
		c = newModule(Synchronized)
		Expect(c.SetupTreatment(200, 10, 15)).To(Succeed())

		Expect(c.Status()).To(Equal(c.Status()))
	})

	Context("unsynchronized", func() {
		BeforeEach(func() {
			c = newModule(Unsynchronized)
		})

		DescribeTable("setup counter wraps at 256",
			func(n int) {
				for i := 0; i < n; i++ {
					_ = c.SetupTreatment(100, 0, 0)
				}

				Expect(c.Status().SetupCounter).To(Equal(int32(n % 256)))
			},
			Entry("1 setup", 1),
			Entry("255 setups", 255),
			Entry("256 setups", 256),
			Entry("257 setups", 257),
			Entry("300 setups", 300),
			Entry("512 setups", 512),
		)

		It("should accept an invalid dose when the counter overflows", func() {
			for i := 0; i < 255; i++ {
				Expect(c.SetupTreatment(100, 0, 0)).To(Succeed())
			}
			Expect(c.Status().SetupCounter).To(Equal(int32(255)))

			Expect(c.SetupTreatment(9999, 0, 0)).To(Succeed())

			status := c.Status()
			Expect(status.SetupCounter).To(BeZero())
			Expect(status.Dose).To(Equal(9999))
			Expect(status.State).To(Equal(StateReady))
		})

		It("should fire the unvalidated dose as is", func() {
			for i := 0; i < 255; i++ {
				_ = c.SetupTreatment(100, 0, 0)
			}
			Expect(c.SetupTreatment(25000, 0, 0)).To(Succeed())

			Expect(c.FireBeam()).To(Equal(FireSuccess))
			Expect(c.Status().Dose).To(Equal(25000))
		})

		DescribeTable("rejects out of range doses while the counter is not zero",
			func(dose int) {
				err := c.SetupTreatment(dose, 1, 2)

				Expect(err).To(MatchError(ErrInvalidDose))
				status := c.Status()
				Expect(status.SetupCounter).NotTo(BeZero())
				Expect(status.State).To(Equal(StateError))
			},
			Entry("zero", 0),
			Entry("negative", -5),
			Entry("just above the limit", MaxDose+1),
			Entry("far above the limit", 25000),
		)

		DescribeTable("accepts doses in range",
			func(dose int) {
				Expect(c.SetupTreatment(dose, 3, 4)).To(Succeed())

				status := c.Status()
				Expect(status.State).To(Equal(StateReady))
				Expect(status.Dose).To(Equal(dose))
				Expect(status.PositionX).To(Equal(3))
				Expect(status.PositionY).To(Equal(4))
			},
			Entry("minimum", MinDose),
			Entry("typical", 200),
			Entry("maximum", MaxDose),
		)

		It("should return from a mode change before the turntable moved", func() {
			holdTurntable(turntable, release)

			Expect(c.ChangeMode(BeamElectron)).To(Succeed())

			status := c.Status()
			Expect(status.BeamMode).To(Equal(BeamElectron))
			Expect(status.TurntableMoving).To(BeTrue())
			Expect(status.TurntablePosition).To(Equal(machine.PositionXray))

			close(release)

			Eventually(func() bool { return c.Status().TurntableMoving }).Should(BeFalse())
			Expect(c.Status().TurntablePosition).To(Equal(machine.PositionElectron))
		})

		It("should not move the turntable when the mode does not change", func() {
			Expect(c.ChangeMode(BeamXray)).To(Succeed())
			Expect(c.Status().TurntableMoving).To(BeFalse())
		})

		It("should deliver a lethal overdose when firing right after switching to electron", func() {
			holdTurntable(turntable, release)

			Expect(c.SetupTreatment(200, 10, 15)).To(Succeed())
			Expect(c.ChangeMode(BeamXray)).To(Succeed())
			Expect(c.ChangeMode(BeamElectron)).To(Succeed())

			Expect(c.FireBeam()).To(Equal(FireLethalOverdose))
		})

		It("should overdose when firing while the turntable leaves electron", func() {
			holdTurntable(turntable, release)

			c.beamMode.Store(int32(BeamElectron))
			c.turntablePosition.Store(int32(machine.PositionElectron))

			Expect(c.ChangeMode(BeamXray)).To(Succeed())
			Expect(c.FireBeam()).To(Equal(FireOverdose))
		})

		It("should overdose when the turntable is parked at the wrong position", func() {
			c.beamMode.Store(int32(BeamElectron))
			c.turntablePosition.Store(int32(machine.PositionXray))
			c.turntableMoving.Store(false)

			Expect(c.FireBeam()).To(Equal(FireOverdose))
		})

		It("should write an edited field after the keystroke delay", func() {
			Expect(c.SetupTreatment(200, 10, 15)).To(Succeed())

			Expect(c.EditField(FieldDose, 900)).To(Succeed())
			Expect(c.EditField(FieldPositionX, 7)).To(Succeed())
			Expect(c.EditField(FieldPositionY, 8)).To(Succeed())

			status := c.Status()
			Expect(status.Dose).To(Equal(900))
			Expect(status.PositionX).To(Equal(7))
			Expect(status.PositionY).To(Equal(8))
			Expect(status.State).To(Equal(StateReady))
		})

		It("should not validate edited doses", func() {
			Expect(c.SetupTreatment(200, 10, 15)).To(Succeed())
			Expect(c.EditField(FieldDose, 50000)).To(Succeed())

			Expect(c.FireBeam()).To(Equal(FireSuccess))
			Expect(c.Status().Dose).To(Equal(50000))
		})
	})

	Context("synchronized", func() {
		BeforeEach(func() {
			c = newModule(Synchronized)
		})

		It("should count setups without wrapping", func() {
			for i := 0; i < 300; i++ {
				_ = c.SetupTreatment(100, 0, 0)
			}

			Expect(c.Status().SetupCounter).To(Equal(int32(300)))
		})

		It("should validate the dose after 256 setups", func() {
			for i := 0; i < 255; i++ {
				Expect(c.SetupTreatment(100, 0, 0)).To(Succeed())
			}

			Expect(c.SetupTreatment(9999, 0, 0)).To(MatchError(ErrInvalidDose))

			status := c.Status()
			Expect(status.SetupCounter).To(Equal(int32(256)))
			Expect(status.State).To(Equal(StateError))
		})

		It("should abort when the turntable is parked at the wrong position", func() {
			c.beamMode.Store(int32(BeamElectron))
			c.turntablePosition.Store(int32(machine.PositionXray))
			c.turntableMoving.Store(false)

			Expect(c.FireBeam()).To(Equal(FireSafetyAbort))
			Expect(c.Status().State).NotTo(Equal(StateFiring))
		})

		It("should abort while the turntable is moving", func() {
			c.beamMode.Store(int32(BeamElectron))
			c.turntableMoving.Store(true)

			Expect(c.FireBeam()).To(Equal(FireSafetyAbort))
		})

		It("should return from a mode change only after the turntable moved", func() {
			turntable.EXPECT().
				Rotate(gomock.Any(), machine.PositionElectron).
				DoAndReturn(func(ctx context.Context, to machine.Position) error {
					time.Sleep(Units(testTimeUnit, TurntableTravelUnits))
					return nil
				})

			Expect(c.ChangeMode(BeamElectron)).To(Succeed())

			status := c.Status()
			Expect(status.TurntableMoving).To(BeFalse())
			Expect(status.TurntablePosition).To(Equal(machine.PositionElectron))
			Expect(status.BeamMode).To(Equal(BeamElectron))
		})

		It("should fire safely once the mode change returned", func() {
			turntable.EXPECT().Rotate(gomock.Any(), machine.PositionElectron).Return(nil)

			Expect(c.SetupTreatment(200, 10, 15)).To(Succeed())
			Expect(c.ChangeMode(BeamElectron)).To(Succeed())

			Expect(c.FireBeam()).To(Equal(FireSuccess))
			Expect(c.Status().State).To(Equal(StateReady))
		})

		It("should fail the mode change when the turntable never confirms", func() {
			c.Close()
			c = New(&Config{
				Mode:            Synchronized,
				Turntable:       turntable,
				TimeUnit:        testTimeUnit,
				HardwareTimeout: 30 * time.Millisecond,
			})
			holdTurntable(turntable, release)

			Expect(c.ChangeMode(BeamElectron)).To(MatchError(ErrHardwareTimeout))
			Expect(c.Status().State).To(Equal(StateError))
			Expect(c.Status().TurntableMoving).To(BeTrue())
		})

		It("should time out when the turntable reports a fault", func() {
			c.Close()
			c = New(&Config{
				Mode:            Synchronized,
				Turntable:       turntable,
				TimeUnit:        testTimeUnit,
				HardwareTimeout: 30 * time.Millisecond,
			})
			turntable.EXPECT().Rotate(gomock.Any(), gomock.Any()).Return(context.DeadlineExceeded)

			Expect(c.ChangeMode(BeamElectron)).To(MatchError(ErrHardwareTimeout))
			Expect(c.Status().State).To(Equal(StateError))
		})

		It("should not let an edit through while a mode change waits for the turntable", func() {
			holdTurntable(turntable, release)
			Expect(c.SetupTreatment(200, 10, 15)).To(Succeed())

			changed := make(chan error, 1)
			go func() {
				changed <- c.ChangeMode(BeamElectron)
			}()
			Eventually(func() bool { return c.Status().TurntableMoving }).Should(BeTrue())

			edited := make(chan error, 1)
			go func() {
				edited <- c.EditField(FieldDose, 300)
			}()

			Consistently(edited, 5*testTimeUnit).ShouldNot(Receive())
			Expect(c.Status().Dose).To(Equal(200))

			close(release)

			Eventually(changed).Should(Receive(BeNil()))
			Eventually(edited).Should(Receive(BeNil()))
			Expect(c.Status().Dose).To(Equal(300))
		})
	})

	It("should reject unknown fields without touching the state", func() {
		c = newModule(Unsynchronized)
		Expect(c.SetupTreatment(200, 10, 15)).To(Succeed())
		before := c.Status()

		Expect(c.EditField(Field("energy"), 25)).To(MatchError(ErrUnknownField))
		Expect(c.Status()).To(Equal(before))
	})

	It("should enter the error state on emergency stop", func() {
		c = newModule(Synchronized)
		Expect(c.SetupTreatment(200, 10, 15)).To(Succeed())

		c.EmergencyStop()

		Expect(c.Status().State).To(Equal(StateError))
	})

	Context("closing", func() {
		It("should refuse mode changes racing or following close", func() {
			holdTurntable(turntable, release)
			c = newModule(Unsynchronized)

			var wg sync.WaitGroup

			for i := 0; i < 4; i++ {
				wg.Add(1)

				go func() {
					defer GinkgoRecover()
					defer wg.Done()

					mode := BeamElectron
					for j := 0; j < 200; j++ {
						if err := c.ChangeMode(mode); err != nil {
							Expect(err).To(MatchError(ErrClosed))
							return
						}

						if mode == BeamElectron {
							mode = BeamXray
						} else {
							mode = BeamElectron
						}
					}
				}()
			}

			time.Sleep(time.Millisecond)
			c.Close()
			wg.Wait()

			Expect(c.ChangeMode(BeamElectron)).To(MatchError(ErrClosed))
			Expect(c.ChangeMode(BeamXray)).To(MatchError(ErrClosed))
		})

		It("should release a synchronized mode change waiting for the turntable", func() {
			holdTurntable(turntable, release)
			c = newModule(Synchronized)

			result := make(chan error, 1)
			go func() {
				result <- c.ChangeMode(BeamElectron)
			}()

			Eventually(func() bool { return c.Status().TurntableMoving }).Should(BeTrue())

			c.Close()

			Eventually(result).Should(Receive(MatchError(ErrClosed)))
			Expect(c.Status().State).NotTo(Equal(StateError))
		})
	})

	It("should stop counting synchronized setups at the top of the int32 range", func() {
		p := &synchronized{}

		var counter atomic.Int32
		counter.Store(math.MaxInt32 - 1)

		Expect(p.nextCounter(&counter)).To(Equal(int32(math.MaxInt32)))
		Expect(p.nextCounter(&counter)).To(Equal(int32(math.MaxInt32)))
		Expect(p.skipValidation(counter.Load())).To(BeFalse())
	})

	Context("events", func() {
		BeforeEach(func() {
			c = newModule(Unsynchronized)
		})

		It("should publish setups to subscribers", func() {
			client := c.SubscribeEvents()
			defer client.Cancel()

			Expect(c.SetupTreatment(200, 10, 15)).To(Succeed())

			var event *Event
			Eventually(client.Events).Should(Receive(&event))
			Expect(event.Kind).To(Equal(EventSetupAccepted))
			Expect(event.Status.Dose).To(Equal(200))
		})

		It("should publish accidents with their result", func() {
			holdTurntable(turntable, release)
			client := c.SubscribeEvents()
			defer client.Cancel()

			Expect(c.ChangeMode(BeamElectron)).To(Succeed())
			Expect(c.FireBeam()).To(Equal(FireLethalOverdose))

			var event *Event
			Eventually(client.Events).Should(Receive(&event))
			Expect(event.Kind).To(Equal(EventModeChanged))
			Eventually(client.Events).Should(Receive(&event))
			Expect(event.Kind).To(Equal(EventAccident))
			Expect(event.Result).To(Equal(FireLethalOverdose))
		})

		It("should close the channel on cancel", func() {
			client := c.SubscribeEvents()
			client.Cancel()
			client.Cancel()

			Eventually(client.Events).Should(BeClosed())
		})

		It("should close every channel when the module closes", func() {
			first := c.SubscribeEvents()
			second := c.SubscribeEvents()

			c.Close()

			Eventually(first.Events).Should(BeClosed())
			Eventually(second.Events).Should(BeClosed())
			Eventually(c.SubscribeEvents().Events).Should(BeClosed())
		})
	})
})
