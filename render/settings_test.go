package render

import "testing"

func TestSettingsClamp(t *testing.T) {
	s := Settings{FOV: 0, Scale: 5, Sharpness: -1, ReflectionCount: 9, ReflectionIntensity: 2, AOIntensity: -1, AASamples: 0, QualityCutoff: 3}.Clamp()
	want := Settings{FOV: 1, Scale: 2, Sharpness: 0, ReflectionCount: 2, ReflectionIntensity: 1, AOIntensity: 0, AASamples: 1, QualityCutoff: 1}
	if s != want {
		t.Errorf("Clamp() = %+v, want %+v", s, want)
	}
}

func TestApplyEpsilons(t *testing.T) {
	prev := DefaultSettings()
	next := prev
	next.Scale += 0.009
	next.ReflectionIntensity += 0.009
	got, d := apply(prev, next)
	if got != prev || d != (settingsDiff{}) {
		t.Errorf("apply(within epsilon) = %+v, %+v, want unchanged", got, d)
	}

	next = prev
	next.Scale = 1.5
	next.Sharpening = false
	got, d = apply(prev, next)
	if got.Scale != 1.5 || !d.scale || d.shader || !d.present {
		t.Errorf("apply(scale, sharpening) = %+v, %+v", got, d)
	}
}
