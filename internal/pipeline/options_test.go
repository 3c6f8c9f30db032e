package pipeline

import (
	"testing"
	"time"
)

func TestOptionsValidateFillsDefaults(t *testing.T) {
	o := Options{BufferPackets: 100}
	if err := o.Validate(); err != nil {
		t.Fatalf("Validate() = %v", err)
	}
	if o.Clock == nil || o.Log == nil {
		t.Error("Validate left Clock or Log nil")
	}
	if o.BitRateAdjustInterval != DefaultBitRateAdjustInterval {
		t.Errorf("BitRateAdjustInterval = %v, want %v", o.BitRateAdjustInterval, DefaultBitRateAdjustInterval)
	}
	if o.InitBitRateAdjustPackets != DefaultInitBitRateAdjustPackets {
		t.Errorf("InitBitRateAdjustPackets = %d, want %d", o.InitBitRateAdjustPackets, DefaultInitBitRateAdjustPackets)
	}
}

func TestOptionsValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name string
		o    Options
	}{
		{"zero buffer", Options{}},
		{"negative buffer", Options{BufferPackets: -1}},
		{"negative flush", Options{BufferPackets: 100, MaxFlushPackets: -1}},
		{"negative stuffing", Options{BufferPackets: 100, StuffStart: -1}},
		{"half interleave", Options{BufferPackets: 100, StuffNull: 2}},
		{"negative timeout", Options{BufferPackets: 100, ReceiveTimeout: -time.Second}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := tc.o.Validate(); err == nil {
				t.Error("Validate() accepted invalid options")
			}
		})
	}
}

func TestRealTimeDefaults(t *testing.T) {
	o := Options{BufferPackets: 1000}
	if err := o.Validate(); err != nil {
		t.Fatal(err)
	}
	o.applyRealTimeDefaults(true)
	if o.MaxFlushPackets != DefaultMaxFlushPacketsRealTime {
		t.Errorf("MaxFlushPackets = %d, want %d", o.MaxFlushPackets, DefaultMaxFlushPacketsRealTime)
	}
	if o.MaxInputPackets != DefaultMaxInputPacketsRealTime {
		t.Errorf("MaxInputPackets = %d, want %d", o.MaxInputPackets, DefaultMaxInputPacketsRealTime)
	}
	if o.InitialInputPackets != 500 {
		t.Errorf("InitialInputPackets = %d, want half the arena (500)", o.InitialInputPackets)
	}
}

func TestOfflineDefaults(t *testing.T) {
	o := Options{BufferPackets: 1000}
	if err := o.Validate(); err != nil {
		t.Fatal(err)
	}
	o.applyRealTimeDefaults(false)
	if o.MaxFlushPackets != DefaultMaxFlushPackets {
		t.Errorf("MaxFlushPackets = %d, want %d", o.MaxFlushPackets, DefaultMaxFlushPackets)
	}
	if o.MaxInputPackets != 0 {
		t.Errorf("MaxInputPackets = %d, want unbounded (0) for offline sources", o.MaxInputPackets)
	}
}

func TestExplicitKnobsSurviveModeDefaults(t *testing.T) {
	o := Options{BufferPackets: 1000, MaxFlushPackets: 17, MaxInputPackets: 23, InitialInputPackets: 9}
	if err := o.Validate(); err != nil {
		t.Fatal(err)
	}
	o.applyRealTimeDefaults(true)
	if o.MaxFlushPackets != 17 || o.MaxInputPackets != 23 || o.InitialInputPackets != 9 {
		t.Errorf("explicit knobs overwritten: %+v", o)
	}
}

func TestInitialInputClampedToBuffer(t *testing.T) {
	o := Options{BufferPackets: 100, InitialInputPackets: 500}
	if err := o.Validate(); err != nil {
		t.Fatal(err)
	}
	o.applyRealTimeDefaults(false)
	if o.InitialInputPackets != 100 {
		t.Errorf("InitialInputPackets = %d, want clamped to 100", o.InitialInputPackets)
	}
}
