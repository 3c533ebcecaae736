package leach

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io/ioutil"
	"os"
	"strings"

	"github.com/knadh/koanf"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
)

// CCDParams holds the timing parameters of the CCD, as loaded from the
// settings file.  Times and widths are in microseconds.
type CCDParams struct {
	// IntegralTime is the dual-slope integration time
	IntegralTime float64 `koanf:"IntegralTime"`

	// Gain is the integrator gain, one of 1, 2, 5, 10
	Gain int `koanf:"Gain"`

	// PedestalWait and SignalWait are the settling waits before the
	// pedestal and signal integrations of the CDS pair
	PedestalWait float64 `koanf:"PedestalWait"`
	SignalWait   float64 `koanf:"SignalWait"`

	// DGWidth, OGWidth, SkippingRGWidth and SWWidth are the gate and
	// summing well pulse widths
	DGWidth         float64 `koanf:"DGWidth"`
	OGWidth         float64 `koanf:"OGWidth"`
	SkippingRGWidth float64 `koanf:"SkippingRGWidth"`
	SWWidth         float64 `koanf:"SWWidth"`

	// IdleClocks selects whether the sequencer shuffles charge between
	// exposures
	IdleClocks bool `koanf:"IdleClocks"`

	// EraseDwell is how long the erase procedure holds the substrate
	// grounded, in seconds
	EraseDwell float64 `koanf:"EraseDwell"`

	// SequencerFile is the DSP timing file the controller was booted
	// with; it participates in change detection only
	SequencerFile string `koanf:"SequencerFile"`
}

// BiasParams holds the substrate bias settings
type BiasParams struct {
	// BattRelay is the relay drive voltage of the battery box
	BattRelay float64 `koanf:"BattRelay"`
}

// Settings is the root of the settings file
type Settings struct {
	CCD  CCDParams  `koanf:"CCD"`
	Bias BiasParams `koanf:"Bias"`
}

// defaultSettings are layered under the settings file, so a sparse file
// is fine
var defaultSettings = Settings{
	CCD: CCDParams{
		IntegralTime: 12.0,
		Gain:         1,
		EraseDwell:   DefaultEraseDwell.Seconds(),
		IdleClocks:   true},
	Bias: BiasParams{BattRelay: DefaultBattRelayVolts}}

// LoadSettings reads a YAML settings file into the controller's CCDParams
// and BiasParams.  Nothing is written to hardware; use ApplyAllCCDParams
// for that.
func (c *Controller) LoadSettings(path string) error {
	k := koanf.New(".")
	if err := k.Load(structs.Provider(defaultSettings, "koanf"), nil); err != nil {
		return err
	}
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return fmt.Errorf("leach: could not load settings %s: %w", path, err)
	}
	s := Settings{}
	if err := k.Unmarshal("", &s); err != nil {
		return fmt.Errorf("leach: could not parse settings %s: %w", path, err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.CCDParams = s.CCD
	c.BiasParams = s.Bias
	return nil
}

// appliedPath is where the digests of the last-applied settings live
func appliedPath(path string) string {
	return path + ".applied"
}

func digestFile(path string) (string, error) {
	b, err := ioutil.ReadFile(path)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}

// LoadAndCheckForSettingsChange loads the settings file and reports
// whether the settings or the sequencer timing file have changed since
// they were last marked applied.  Either flag true means the hardware is
// not running what the file says; upload first, then
// MarkSettingsApplied.
//
// A missing sequencer file or digest cache counts as changed, never as
// an error; the first run of a fresh checkout must report stale.
func (c *Controller) LoadAndCheckForSettingsChange(path string) (configChanged, sequencerChanged bool, err error) {
	if err = c.LoadSettings(path); err != nil {
		return false, false, err
	}

	confDigest, err := digestFile(path)
	if err != nil {
		return false, false, err
	}
	seqDigest := ""
	if c.CCDParams.SequencerFile != "" {
		seqDigest, err = digestFile(c.CCDParams.SequencerFile)
		if err != nil {
			if !os.IsNotExist(err) {
				return false, false, err
			}
			seqDigest, err = "", nil
		}
	}

	cache, cerr := ioutil.ReadFile(appliedPath(path))
	if cerr != nil {
		if os.IsNotExist(cerr) {
			return true, true, nil
		}
		return false, false, cerr
	}
	fields := strings.Fields(string(cache))
	for len(fields) < 2 {
		fields = append(fields, "")
	}
	return fields[0] != confDigest, fields[1] != seqDigest, nil
}

// MarkSettingsApplied records the digests of the settings and sequencer
// files, so LoadAndCheckForSettingsChange reports clean until either
// file changes again
func (c *Controller) MarkSettingsApplied(path string) error {
	confDigest, err := digestFile(path)
	if err != nil {
		return err
	}
	seqDigest := ""
	if c.CCDParams.SequencerFile != "" {
		if seqDigest, err = digestFile(c.CCDParams.SequencerFile); err != nil {
			if !os.IsNotExist(err) {
				return err
			}
			seqDigest = ""
		}
	}
	return ioutil.WriteFile(appliedPath(path), []byte(confDigest+" "+seqDigest+"\n"), 0644)
}

// ApplyAllCCDParams pushes every timing parameter in CCDParams to the
// controller, stopping at the first rejection
func (c *Controller) ApplyAllCCDParams() error {
	p := c.CCDParams
	steps := []struct {
		name string
		fn   func() error
	}{
		{"integration time and gain", func() error { return c.ApplyNewIntegralTimeAndGain(p.IntegralTime, p.Gain) }},
		{"pedestal wait", func() error { return c.ApplyNewPedestalIntegralWait(p.PedestalWait) }},
		{"signal wait", func() error { return c.ApplyNewSignalIntegralWait(p.SignalWait) }},
		{"DG width", func() error { return c.ApplyDGWidth(p.DGWidth) }},
		{"OG width", func() error { return c.ApplyOGWidth(p.OGWidth) }},
		{"RG width", func() error { return c.ApplySkippingRGWidth(p.SkippingRGWidth) }},
		{"SW width", func() error { return c.ApplySummingWellWidth(p.SWWidth) }},
	}
	for _, s := range steps {
		if err := s.fn(); err != nil {
			return fmt.Errorf("applying %s: %w", s.name, err)
		}
	}
	return nil
}
