package policy

import (
	"math"
	"testing"

	"github.com/talgya/smokersim/internal/entropy"
)

func TestDefaultInputs(t *testing.T) {
	in := DefaultInputs()
	if in.MinSmokingAge != 21 || in.RetirementAge != 63 || in.LifeStress != 0.3 {
		t.Fatalf("unexpected defaults: %+v", in)
	}
	if in.FamilyValue() != 0 {
		t.Fatal("family influence should default off")
	}
}

func TestSettersSubstituteDefaults(t *testing.T) {
	in := DefaultInputs()
	in.SetMinSmokingAge(math.NaN())
	in.SetRetirementAge(-4)
	in.SetTaxRate(-1)
	in.SetLifeStress(3)
	in.SetSocialInfluence(2)

	if in.MinSmokingAge != DefaultMinSmokingAge {
		t.Errorf("min age = %v", in.MinSmokingAge)
	}
	if in.RetirementAge != DefaultRetirementAge {
		t.Errorf("retirement = %v", in.RetirementAge)
	}
	if in.TaxRate != 0 {
		t.Errorf("tax = %v", in.TaxRate)
	}
	if in.LifeStress != 1 {
		t.Errorf("stress = %v", in.LifeStress)
	}
	if in.SocialInfluence != MaxSocialInfluence {
		t.Errorf("social = %v", in.SocialInfluence)
	}
}

func TestSmokerFriends(t *testing.T) {
	in := DefaultInputs()
	in.SetSmokerFriends(true, entropy.Fixed(0.9))
	if in.SocialInfluence != 0.4 {
		t.Fatalf("checked: social = %v, want 0.4", in.SocialInfluence)
	}

	in.SetSmokerFriends(false, entropy.NewSequence(0.1, 0.5))
	if math.Abs(in.SocialInfluence-(-0.1)) > 1e-12 {
		t.Fatalf("unchecked negative: social = %v, want -0.1", in.SocialInfluence)
	}

	in.SetSmokerFriends(false, entropy.Fixed(0.7))
	if in.SocialInfluence != 0 {
		t.Fatalf("unchecked neutral: social = %v, want 0", in.SocialInfluence)
	}
}

func TestTaxAdjustment(t *testing.T) {
	if TaxAdjustment(0) != 1 {
		t.Fatal("zero tax should be neutral")
	}
	want := math.Pow(2, -0.5)
	if got := TaxAdjustment(1); math.Abs(got-want) > 1e-12 {
		t.Fatalf("TaxAdjustment(1) = %v, want %v", got, want)
	}
}

func TestBanRatchetsOnlyOnStepTicks(t *testing.T) {
	in := DefaultInputs()
	in.PublicSmokingBan = true
	m := NewModifiers()

	for tick := uint64(1); tick < 50; tick++ {
		m.Advance(in, tick, 10)
		if m.PublicSmokingMultiplier != 1 {
			t.Fatalf("tick %d: multiplier moved to %v", tick, m.PublicSmokingMultiplier)
		}
	}
	m.Advance(in, 50, 10)
	if m.PublicSmokingMultiplier != 0.93 {
		t.Fatalf("tick 50: multiplier = %v, want 0.93", m.PublicSmokingMultiplier)
	}
	m.Advance(in, 51, 10)
	if m.PublicSmokingMultiplier != 0.93 {
		t.Fatalf("tick 51: multiplier = %v, want 0.93", m.PublicSmokingMultiplier)
	}

	for tick := uint64(100); tick <= 5000; tick += 50 {
		m.Advance(in, tick, 10)
	}
	if m.PublicSmokingMultiplier != 0 {
		t.Fatalf("multiplier should floor at 0, got %v", m.PublicSmokingMultiplier)
	}

	in.PublicSmokingBan = false
	m.Advance(in, 5001, 10)
	if m.PublicSmokingMultiplier != 1 {
		t.Fatalf("lifting ban should reset multiplier, got %v", m.PublicSmokingMultiplier)
	}
}

func TestStressDrift(t *testing.T) {
	if d := NewStressDrift(1, 0); d != nil {
		t.Fatal("zero amplitude should disable drift")
	}
	var nilDrift *StressDrift
	if nilDrift.Level(0.3, 12) != 0.3 {
		t.Fatal("nil drift should pass base through")
	}

	d := NewStressDrift(42, 0.2)
	for y := 0.0; y < 60; y += 0.1 {
		v := d.Level(0.3, y)
		if v < 0.1-1e-9 || v > 0.5+1e-9 {
			t.Fatalf("year %.1f: level %v outside base±amplitude", y, v)
		}
	}
	if d.Level(0.3, 7.5) != NewStressDrift(42, 0.2).Level(0.3, 7.5) {
		t.Fatal("drift should be deterministic for a seed")
	}
}
