package cmd

import (
	"fmt"

	"github.com/hsklein/simprovise/sim"
)

// Resource kind tags for the demo teller pool.
const (
	tellerKind   = "teller"
	merchantKind = "merchant"
)

// Random stream numbers, one per sampler, so adding a sampler never
// perturbs the draws of another.
const (
	streamCustomerArrivals = iota + 1
	streamCustomerService
	streamMerchantArrivals
	streamMerchantService
)

// bankModel is the demo model behind the run subcommand: customers arrive
// at an entrance, queue inside the bank for a teller from a typed pool,
// are served at the counter (service waits extended through teller
// breaks), and leave through the exit. Merchants, when configured, use
// their own tellers with longer service times.
type bankModel struct {
	sim     *sim.Simulation
	bank    *sim.Location
	queue   *sim.Location
	counter *sim.Location
	tellers *sim.ResourcePool
	exit    *sim.EntitySink
}

// buildBankModel instantiates the demo model against a fresh simulation.
func buildBankModel(cfg *Config) *bankModel {
	s := sim.NewSimulation(cfg.Run.Seed)

	entrance := sim.NewEntitySource(s, "Entrance")
	exit := sim.NewEntitySink(s, "Exit")

	bank := sim.NewLocation(s, "Bank", nil, "Queue")
	queue := sim.NewQueue(s, "Queue", bank)
	counter := sim.NewLocation(s, "Counter", bank, "")

	pool := sim.NewResourcePool(s, "Tellers", bank)
	for i := 1; i <= cfg.Bank.Tellers; i++ {
		pool.AddResource(sim.NewResource(s, fmt.Sprintf("Teller%d", i), bank, 1, tellerKind))
	}
	for i := 1; i <= cfg.Bank.MerchantTellers; i++ {
		pool.AddResource(sim.NewResource(s, fmt.Sprintf("MerchantTeller%d", i), bank, 1, merchantKind))
	}

	if b := cfg.Bank.TellerBreak; b.Enabled {
		schedule := sim.NewDowntimeSchedule(
			minutes(b.CycleMinutes),
			sim.DowntimeInterval{Start: minutes(b.StartMinute), Length: minutes(b.LengthMinutes)},
		)
		sim.NewScheduledDowntimeAgent(s, pool.Resources(tellerKind)[0], schedule)
	}

	model := &bankModel{
		sim:     s,
		bank:    bank,
		queue:   queue,
		counter: counter,
		tellers: pool,
		exit:    exit,
	}

	customer := sim.NewEntityType(s, "Customer")
	entrance.AddGenerator(customer,
		sim.Exponential(s.Stream(streamCustomerArrivals), minutes(cfg.Bank.MeanInterarrival)),
		model.visit(tellerKind, serviceSampler(s, streamCustomerService, cfg.Bank.MeanService, cfg.Bank.ServiceStdev)))

	if cfg.Bank.MerchantTellers > 0 {
		// Merchants arrive a quarter as often and take twice as long.
		merchant := sim.NewEntityType(s, "Merchant")
		entrance.AddGenerator(merchant,
			sim.Exponential(s.Stream(streamMerchantArrivals), minutes(4*cfg.Bank.MeanInterarrival)),
			model.visit(merchantKind, serviceSampler(s, streamMerchantService, 2*cfg.Bank.MeanService, cfg.Bank.ServiceStdev)))
	}

	return model
}

// visit returns the process body one bank visit executes: queue for a
// teller of the given kind, get served at the counter, leave.
func (m *bankModel) visit(kind string, service sim.Sampler) sim.ProcessBody {
	return func(p *sim.Process) error {
		entity := p.Entity()
		if err := entity.MoveTo(m.bank); err != nil {
			return err
		}
		teller, err := p.AcquireFrom(m.tellers, kind, 1)
		if err != nil {
			return err
		}
		if err := entity.MoveTo(m.counter); err != nil {
			return err
		}
		if err := p.WaitFor(service(), sim.ExtendThroughDowntime); err != nil {
			return err
		}
		if err := p.Release(teller); err != nil {
			return err
		}
		return entity.MoveTo(m.exit)
	}
}

// serviceSampler builds the service-time sampler for one entity class:
// normal with the configured spread, resampled non-negative, or constant
// when the spread is zero.
func serviceSampler(s *sim.Simulation, stream int, meanMinutes, stdevMinutes float64) sim.Sampler {
	if stdevMinutes == 0 {
		return sim.Constant(minutes(meanMinutes))
	}
	return sim.Normal(s.Stream(stream), minutes(meanMinutes), minutes(stdevMinutes))
}

func minutes(v float64) sim.SimTime { return sim.NewSimTime(v, sim.Minutes) }
