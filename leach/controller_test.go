package leach

import (
	"errors"
	"testing"

	"github.com/ccdlab/leachgo/arc"
)

// fakeCommander stands in for the controller hardware; it records every
// command and answers DON unless told otherwise
type fakeCommander struct {
	calls   []fakeCall
	replies map[uint32]uint32 // keyed by opcode; missing means DON
}

type fakeCall struct {
	board int
	op    uint32
	args  []int32
}

func (f *fakeCommander) Command(board int, op uint32, args ...int32) (uint32, error) {
	f.calls = append(f.calls, fakeCall{board: board, op: op, args: args})
	if reply, ok := f.replies[op]; ok {
		return reply, nil
	}
	return arc.DON, nil
}

func TestApplyIntegralTimeAndGain(t *testing.T) {
	fake := &fakeCommander{}
	c := NewController(fake, nil)

	if err := c.ApplyNewIntegralTimeAndGain(10.0, 5); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(fake.calls) != 2 {
		t.Fatalf("expected 2 commands (SGN then CIT), got %d", len(fake.calls))
	}
	sgn := fake.calls[0]
	if sgn.board != arc.TimID || sgn.op != arc.SGN {
		t.Errorf("first command should be SGN to the timing board, got %v to board %d", arc.Mnemonic(sgn.op), sgn.board)
	}
	if len(sgn.args) != 2 || sgn.args[0] != 5 || sgn.args[1] != int32(Slow) {
		t.Errorf("SGN args should be (5, slow), got %v", sgn.args)
	}
	cit := fake.calls[1]
	if cit.op != arc.CIT {
		t.Errorf("second command should be CIT, got %v", arc.Mnemonic(cit.op))
	}
	if len(cit.args) != 1 || cit.args[0] != 0x9F0000 {
		t.Errorf("CIT arg should be the 10 us clock code 0x9F0000, got %X", cit.args)
	}
	if c.IntegratorSpeed() != Slow {
		t.Error("10 us integration should have stored the slow speed")
	}
}

func TestApplyIntegralTimePicksFastSpeed(t *testing.T) {
	fake := &fakeCommander{}
	c := NewController(fake, nil)

	if err := c.ApplyNewIntegralTimeAndGain(2.0, 2); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := fake.calls[0].args[1]; got != int32(Fast) {
		t.Errorf("2 us integration should send the fast speed, sent %d", got)
	}
	if c.IntegratorSpeed() != Fast {
		t.Error("fast speed was not stored on the controller")
	}
}

func TestGainSpeedRejectionShortCircuits(t *testing.T) {
	fake := &fakeCommander{replies: map[uint32]uint32{arc.SGN: 0xDEAD}}
	c := NewController(fake, nil)

	err := c.ApplyNewIntegralTimeAndGain(10.0, 5)
	if err == nil {
		t.Fatal("expected an error when SGN is rejected")
	}
	var re arc.ReplyError
	if !errors.As(err, &re) {
		t.Fatalf("expected a ReplyError, got %T: %v", err, err)
	}
	if re.Code != 0xDEAD {
		t.Errorf("ReplyError should carry the raw reply 0xDEAD, got %X", re.Code)
	}
	if len(fake.calls) != 1 {
		t.Errorf("CIT must not be sent after SGN fails; %d commands were sent", len(fake.calls))
	}
}

func TestBadGainNeverReachesHardware(t *testing.T) {
	fake := &fakeCommander{}
	c := NewController(fake, nil)

	if err := c.ApplyNewIntegralTimeAndGain(10.0, 3); err == nil {
		t.Fatal("gain of 3 should be rejected")
	}
	if err := c.ApplyGainAndSpeed(7, Slow); err == nil {
		t.Fatal("gain of 7 should be rejected")
	}
	if len(fake.calls) != 0 {
		t.Errorf("invalid gains must be rejected before transmission, %d commands were sent", len(fake.calls))
	}
}

func TestApplicatorOpcodes(t *testing.T) {
	cases := []struct {
		name string
		fn   func(*Controller, float64) error
		op   uint32
	}{
		{"pedestal wait", (*Controller).ApplyNewPedestalIntegralWait, arc.CPR},
		{"signal wait", (*Controller).ApplyNewSignalIntegralWait, arc.CPO},
		{"DG width", (*Controller).ApplyDGWidth, arc.DGW},
		{"OG width", (*Controller).ApplyOGWidth, arc.OGW},
		{"RG width", (*Controller).ApplySkippingRGWidth, arc.RSW},
		{"SW width", (*Controller).ApplySummingWellWidth, arc.SWW},
	}
	for _, tc := range cases {
		fake := &fakeCommander{}
		c := NewController(fake, nil)
		if err := tc.fn(c, 1.0); err != nil {
			t.Errorf("%s: unexpected error: %v", tc.name, err)
			continue
		}
		if len(fake.calls) != 1 {
			t.Errorf("%s: expected exactly one command, got %d", tc.name, len(fake.calls))
			continue
		}
		call := fake.calls[0]
		if call.board != arc.TimID {
			t.Errorf("%s: addressed board %d, want the timing board", tc.name, call.board)
		}
		if call.op != tc.op {
			t.Errorf("%s: sent opcode %s, want %s", tc.name, arc.Mnemonic(call.op), arc.Mnemonic(tc.op))
		}
		want := int32(Quantize(1.0))
		if len(call.args) != 1 || call.args[0] != want {
			t.Errorf("%s: arg %X, want quantized code %X", tc.name, call.args, want)
		}
	}
}

func TestApplicatorIdempotent(t *testing.T) {
	fake := &fakeCommander{}
	c := NewController(fake, nil)
	if err := c.ApplyDGWidth(2.5); err != nil {
		t.Fatal(err)
	}
	if err := c.ApplyDGWidth(2.5); err != nil {
		t.Fatal(err)
	}
	if len(fake.calls) != 2 {
		t.Fatalf("expected 2 commands, got %d", len(fake.calls))
	}
	a, b := fake.calls[0], fake.calls[1]
	if a.op != b.op || a.board != b.board || a.args[0] != b.args[0] {
		t.Errorf("repeat application should issue identical requests, got %v then %v", a, b)
	}
}

func TestApplicatorFailureCarriesReply(t *testing.T) {
	fake := &fakeCommander{replies: map[uint32]uint32{arc.CPR: arc.ERR}}
	c := NewController(fake, nil)
	err := c.ApplyNewPedestalIntegralWait(1.0)
	var re arc.ReplyError
	if !errors.As(err, &re) {
		t.Fatalf("expected a ReplyError, got %T: %v", err, err)
	}
	if re.Code != arc.ERR {
		t.Errorf("ReplyError should carry ERR, got %X", re.Code)
	}
}
