package systems

import (
	"math"
	"testing"

	"github.com/pthm-cable/forge/components"
	"github.com/pthm-cable/forge/config"
)

// testPolicies loads the embedded defaults and resolves the policy table.
func testPolicies(t testing.TB) (*config.Config, *PolicyTable) {
	t.Helper()
	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("loading defaults: %v", err)
	}
	return cfg, NewPolicyTable(cfg)
}

func livePhys(pol *Policy) components.Physiology {
	return components.Physiology{
		Energy:        pol.MaxEnergy,
		MaxEnergy:     pol.MaxEnergy,
		Health:        pol.MaxHealth,
		MaxHealth:     pol.MaxHealth,
		Alive:         true,
		SinceAttacked: 1e6,
		SinceAte:      1e6,
	}
}

// ---------- UpdateEnergy basic behavior ----------

func TestUpdateEnergy_DeadEntityNoOp(t *testing.T) {
	_, pols := testPolicies(t)
	ph := livePhys(pols[components.SpeciesGrazer])
	ph.Alive = false
	ph.Energy = 50

	cost := UpdateEnergy(&ph, pols[components.SpeciesGrazer], 1, 0, 0, 1.0/60)
	if cost != 0 {
		t.Errorf("expected 0 cost for dead entity, got %f", cost)
	}
	if ph.Energy != 50 {
		t.Errorf("dead entity energy should not change, got %f", ph.Energy)
	}
}

func TestUpdateEnergy_AgeIncreases(t *testing.T) {
	_, pols := testPolicies(t)
	pol := pols[components.SpeciesGrazer]
	dt := float32(1.0 / 60.0)
	ph := livePhys(pol)
	ph.Age = 10

	UpdateEnergy(&ph, pol, 1, 0, 0, dt)

	expected := float32(10.0) + dt
	if math.Abs(float64(ph.Age-expected)) > 1e-6 {
		t.Errorf("expected age %.6f, got %.6f", expected, ph.Age)
	}
}

func TestUpdateEnergy_BaseCostApplied(t *testing.T) {
	_, pols := testPolicies(t)
	pol := pols[components.SpeciesGrazer]
	dt := float32(1.0 / 60.0)
	ph := livePhys(pol)

	cost := UpdateEnergy(&ph, pol, 1, 0, 0, dt)

	want := pol.Metabolism * dt
	if math.Abs(float64(cost-want)) > 1e-5 {
		t.Errorf("cost = %f, want metabolism %f", cost, want)
	}
	if energyLost := pol.MaxEnergy - ph.Energy; math.Abs(float64(cost-energyLost)) > 1e-5 {
		t.Errorf("cost (%f) should match energy lost (%f)", cost, energyLost)
	}
}

func TestUpdateEnergy_EfficiencyLowersCost(t *testing.T) {
	_, pols := testPolicies(t)
	pol := pols[components.SpeciesGrazer]
	a, b := livePhys(pol), livePhys(pol)

	slow := UpdateEnergy(&a, pol, 1.25, 0, 0, 1)
	fast := UpdateEnergy(&b, pol, 0.75, 0, 0, 1)
	if slow >= fast {
		t.Errorf("efficient metabolism cost %f, inefficient %f", slow, fast)
	}
}

func TestUpdateEnergy_DeathCauses(t *testing.T) {
	_, pols := testPolicies(t)
	pol := pols[components.SpeciesGrazer]

	tests := []struct {
		name  string
		setup func(*components.Physiology)
		want  components.DeathCause
	}{
		{"starvation", func(p *components.Physiology) { p.Energy = 0.001 }, components.CauseStarvation},
		{"injury", func(p *components.Physiology) { p.Health = 0 }, components.CauseInjury},
		{"old age", func(p *components.Physiology) { p.Age = pol.MaxAge }, components.CauseOldAge},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			ph := livePhys(pol)
			tc.setup(&ph)
			UpdateEnergy(&ph, pol, 1, 0, 0, 1)
			if ph.Alive {
				t.Fatal("expected death")
			}
			if ph.Cause != tc.want {
				t.Errorf("cause = %v, want %v", ph.Cause, tc.want)
			}
			if ph.Energy < 0 || ph.Energy > ph.MaxEnergy {
				t.Errorf("energy %f outside [0, max]", ph.Energy)
			}
		})
	}
}

func TestGainEnergyClamps(t *testing.T) {
	_, pols := testPolicies(t)
	pol := pols[components.SpeciesGrazer]
	ph := livePhys(pol)
	ph.Energy = pol.MaxEnergy - 5

	got := GainEnergy(&ph, 20)
	if got != 5 {
		t.Errorf("absorbed %f, want 5", got)
	}
	if ph.Energy != pol.MaxEnergy {
		t.Errorf("energy = %f, want max", ph.Energy)
	}
	if ph.SinceAte != 0 {
		t.Error("eating did not reset SinceAte")
	}
}

func TestTransferEnergyKillsHost(t *testing.T) {
	_, pols := testPolicies(t)
	par := livePhys(pols[components.SpeciesParasite])
	par.Energy = 1
	host := livePhys(pols[components.SpeciesGrazer])
	host.Energy = 3

	taken := TransferEnergy(&par, &host, 10)
	if taken != 3 {
		t.Errorf("taken = %f, want 3", taken)
	}
	if host.Alive {
		t.Error("drained host should be dead")
	}
	if par.Energy != 4 {
		t.Errorf("parasite energy = %f, want 4", par.Energy)
	}
}

func TestDamage(t *testing.T) {
	_, pols := testPolicies(t)
	ph := livePhys(pols[components.SpeciesGrazer])
	if Damage(&ph, 10, components.CausePredation) {
		t.Fatal("non-lethal hit reported fatal")
	}
	if !Damage(&ph, ph.MaxHealth, components.CausePredation) {
		t.Fatal("lethal hit not fatal")
	}
	if ph.Cause != components.CausePredation || ph.EnergyAtDeath != ph.MaxEnergy {
		t.Errorf("cause %v energy at death %f", ph.Cause, ph.EnergyAtDeath)
	}
}
