package cable

import (
	"testing"

	"github.com/stianeikeland/go-rpio/v4"
)

func TestParseRPiPins(t *testing.T) {
	tests := []struct {
		name    string
		params  Params
		tck     rpio.Pin
		tdo     rpio.Pin
		lines   Signal
		wantErr bool
	}{
		{
			name:  "defaults",
			tck:   11,
			tdo:   9,
			lines: SignalTCK | SignalTMS | SignalTDI | SignalTRST,
		},
		{
			name:   "custom with srst, no trst",
			params: Params{"tck": "4", "tdo": "17", "trst": "-1", "srst": "22"},
			tck:    4,
			tdo:    17,
			lines:  SignalTCK | SignalTMS | SignalTDI | SignalSRST,
		},
		{name: "tck removed", params: Params{"tck": "-1"}, wantErr: true},
		{name: "out of header", params: Params{"tdi": "40"}, wantErr: true},
		{name: "shared pin", params: Params{"tms": "11"}, wantErr: true},
		{name: "not a number", params: Params{"tdo": "x"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := tt.params
			if p == nil {
				p = Params{}
			}
			cfg, err := parseRPiPins(p)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if cfg.out[SignalTCK] != tt.tck || cfg.tdo != tt.tdo {
				t.Fatalf("tck=%d tdo=%d", cfg.out[SignalTCK], cfg.tdo)
			}
			var lines Signal
			for sig := range cfg.out {
				lines |= sig
			}
			if lines != tt.lines {
				t.Fatalf("lines = %v, want %v", lines, tt.lines)
			}
		})
	}
}

func TestMaxFrequencyParam(t *testing.T) {
	tests := []struct {
		max     string
		want    int
		wantErr bool
	}{
		{"", gpioDefaultMaxFrequency, false},
		{"0", gpioDefaultMaxFrequency, false},
		{"-1", gpioDefaultMaxFrequency, false},
		{"100000", 100_000, false},
		{"fast", 0, true},
	}
	for _, tt := range tests {
		got, err := maxFrequencyParam(Params{"max": tt.max})
		if (err != nil) != tt.wantErr {
			t.Fatalf("max=%q: err = %v", tt.max, err)
		}
		if got != tt.want {
			t.Fatalf("max=%q = %d, want %d", tt.max, got, tt.want)
		}
	}
}
