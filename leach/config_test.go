package leach

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	"github.com/ccdlab/leachgo/arc"
)

const testSettings = `CCD:
  IntegralTime: 10.0
  Gain: 5
  PedestalWait: 1.2
  SignalWait: 1.2
  DGWidth: 1.0
  OGWidth: 1.0
  SkippingRGWidth: 0.5
  SWWidth: 1.0
  IdleClocks: true
  EraseDwell: 3
Bias:
  BattRelay: 5.0
`

func writeSettings(t *testing.T, body string) string {
	t.Helper()
	dir, err := ioutil.TempDir("", "leachgo")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })
	path := filepath.Join(dir, "settings.yml")
	if err := ioutil.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadSettings(t *testing.T) {
	path := writeSettings(t, testSettings)
	c := NewController(&fakeCommander{}, nil)
	if err := c.LoadSettings(path); err != nil {
		t.Fatal(err)
	}
	if c.CCDParams.IntegralTime != 10.0 {
		t.Errorf("IntegralTime: got %v, want 10.0", c.CCDParams.IntegralTime)
	}
	if c.CCDParams.Gain != 5 {
		t.Errorf("Gain: got %v, want 5", c.CCDParams.Gain)
	}
	if c.CCDParams.SkippingRGWidth != 0.5 {
		t.Errorf("SkippingRGWidth: got %v, want 0.5", c.CCDParams.SkippingRGWidth)
	}
	if c.BiasParams.BattRelay != 5.0 {
		t.Errorf("BattRelay: got %v, want 5.0", c.BiasParams.BattRelay)
	}
}

func TestLoadSettingsDefaults(t *testing.T) {
	// a sparse file picks up defaults for everything it omits
	path := writeSettings(t, "CCD:\n  Gain: 2\n")
	c := NewController(&fakeCommander{}, nil)
	if err := c.LoadSettings(path); err != nil {
		t.Fatal(err)
	}
	if c.CCDParams.Gain != 2 {
		t.Errorf("Gain: got %v, want 2", c.CCDParams.Gain)
	}
	if c.CCDParams.IntegralTime != defaultSettings.CCD.IntegralTime {
		t.Errorf("IntegralTime should default to %v, got %v", defaultSettings.CCD.IntegralTime, c.CCDParams.IntegralTime)
	}
	if c.BiasParams.BattRelay != DefaultBattRelayVolts {
		t.Errorf("BattRelay should default to %v, got %v", DefaultBattRelayVolts, c.BiasParams.BattRelay)
	}
}

func TestSettingsChangeDetection(t *testing.T) {
	path := writeSettings(t, testSettings)
	c := NewController(&fakeCommander{}, nil)

	// nothing ever applied: everything reads as changed
	configChanged, sequencerChanged, err := c.LoadAndCheckForSettingsChange(path)
	if err != nil {
		t.Fatal(err)
	}
	if !configChanged || !sequencerChanged {
		t.Errorf("fresh settings should report changed, got config=%v sequencer=%v", configChanged, sequencerChanged)
	}

	if err := c.MarkSettingsApplied(path); err != nil {
		t.Fatal(err)
	}
	configChanged, sequencerChanged, err = c.LoadAndCheckForSettingsChange(path)
	if err != nil {
		t.Fatal(err)
	}
	if configChanged || sequencerChanged {
		t.Errorf("just-applied settings should report clean, got config=%v sequencer=%v", configChanged, sequencerChanged)
	}

	// editing the file flips the config flag only
	if err := ioutil.WriteFile(path, []byte(testSettings+"# edited\n"), 0644); err != nil {
		t.Fatal(err)
	}
	configChanged, sequencerChanged, err = c.LoadAndCheckForSettingsChange(path)
	if err != nil {
		t.Fatal(err)
	}
	if !configChanged {
		t.Error("edited settings file should report config changed")
	}
	if sequencerChanged {
		t.Error("sequencer should still read clean, only the settings file was edited")
	}
}

func TestApplyAllCCDParams(t *testing.T) {
	fake := &fakeCommander{}
	c := NewController(fake, nil)
	c.CCDParams = CCDParams{
		IntegralTime:    10.0,
		Gain:            5,
		PedestalWait:    1.2,
		SignalWait:      1.2,
		DGWidth:         1.0,
		OGWidth:         1.0,
		SkippingRGWidth: 0.5,
		SWWidth:         1.0}

	if err := c.ApplyAllCCDParams(); err != nil {
		t.Fatal(err)
	}
	// SGN+CIT for the integration time, then one command per parameter
	if len(fake.calls) != 8 {
		t.Fatalf("expected 8 commands, got %d", len(fake.calls))
	}
	wantOps := []uint32{arc.SGN, arc.CIT, arc.CPR, arc.CPO, arc.DGW, arc.OGW, arc.RSW, arc.SWW}
	for i, call := range fake.calls {
		if call.op != wantOps[i] {
			t.Errorf("command %d: got %s, want %s", i, arc.Mnemonic(call.op), arc.Mnemonic(wantOps[i]))
		}
	}
}

func TestApplyAllStopsAtFirstRejection(t *testing.T) {
	fake := &fakeCommander{replies: map[uint32]uint32{arc.CPO: arc.ERR}}
	c := NewController(fake, nil)
	c.CCDParams = CCDParams{IntegralTime: 10.0, Gain: 1}

	if err := c.ApplyAllCCDParams(); err == nil {
		t.Fatal("expected an error when a parameter is rejected")
	}
	// SGN, CIT, CPR succeed; CPO fails; nothing after
	if got := len(fake.calls); got != 4 {
		t.Errorf("expected application to stop after the rejected command, %d commands were sent", got)
	}
}
