package bfield

import (
	"encoding/binary"
	"errors"
	"testing"

	bferrors "github.com/bfieldstore/bfield/errors"
)

func seqSeeds(base uint64) func(int) (uint64, uint64) {
	return func(level int) (uint64, uint64) {
		return base + uint64(level)*2, base + uint64(level)*2 + 1
	}
}

func TestCreateValidatesParameters(t *testing.T) {
	dir := t.TempDir()
	cases := []struct {
		name string
		fn   func() error
		want error
	}{
		{"nu zero", func() error {
			_, err := Create(dir, "b", 1024, 4, 0, 1, 1, 0.5, 0.1, 1, true)
			return err
		}, bferrors.ErrInvalidMarkerWidth},
		{"kappa zero", func() error {
			_, err := Create(dir, "b", 1024, 4, 8, 0, 1, 0.5, 0.1, 1, true)
			return err
		}, bferrors.ErrInvalidMarkerBits},
		{"kappa > nu", func() error {
			_, err := Create(dir, "b", 1024, 4, 8, 9, 1, 0.5, 0.1, 1, true)
			return err
		}, bferrors.ErrInvalidMarkerBits},
		{"k zero", func() error {
			_, err := Create(dir, "b", 1024, 0, 8, 2, 1, 0.5, 0.1, 1, true)
			return err
		}, bferrors.ErrInvalidHashCount},
		{"size too small", func() error {
			_, err := Create(dir, "b", 4, 4, 8, 2, 1, 0.5, 0.1, 1, true)
			return err
		}, bferrors.ErrSizeTooSmall},
		{"beta out of range", func() error {
			_, err := Create(dir, "b", 1024, 4, 8, 2, 1, 1.5, 0.1, 1, true)
			return err
		}, bferrors.ErrInvalidScaledown},
		{"max_scaledown out of range", func() error {
			_, err := Create(dir, "b", 1024, 4, 8, 2, 1, 0.5, 0, 1, true)
			return err
		}, bferrors.ErrInvalidMaxScaledown},
		{"empty base on disk", func() error {
			_, err := Create(dir, "", 1024, 4, 8, 2, 1, 0.5, 0.1, 1, false)
			return err
		}, bferrors.ErrEmptyBase},
		{"theta too large", func() error {
			_, err := Create(dir, "b", 1024, 4, 5, 2, 11, 0.5, 0.1, 1, true) // C(5,2)=10
			return err
		}, bferrors.ErrMaxValueTooLarge},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := tc.fn(); !errors.Is(err, tc.want) {
				t.Fatalf("got %v, want %v", err, tc.want)
			}
		})
	}
}

func TestBFieldInsertPassRouting(t *testing.T) {
	f, err := Create("", "routing", 4096, 4, 24, 6, 10, 0.25, 0.05, 2, true, WithSeeds(seqSeeds(1)))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer f.Close()

	if err := f.Insert([]byte("k"), 0, -1); !errors.Is(err, bferrors.ErrInvalidPass) {
		t.Fatalf("pass=-1: got %v, want ErrInvalidPass", err)
	}
	if err := f.Insert([]byte("k"), 0, 99); !errors.Is(err, bferrors.ErrInvalidPass) {
		t.Fatalf("pass=99: got %v, want ErrInvalidPass", err)
	}

	if err := f.Insert([]byte("present-at-0"), 5, 0); err != nil {
		t.Fatalf("pass 0 insert: %v", err)
	}
	res, v, err := f.arrays[0].Lookup([]byte("present-at-0"))
	if err != nil {
		t.Fatal(err)
	}
	if res != Found || v != 5 {
		t.Fatalf("Array[0].Lookup after pass-0 insert = (%v, %d), want (Found, 5)", res, v)
	}

	// pass 1 insert of a key Array[0] has never seen: Array[0].Lookup
	// returns Absent, so nothing should be written to Array[1] either.
	if err := f.Insert([]byte("skip-me"), 3, 1); err != nil {
		t.Fatalf("pass 1 insert: %v", err)
	}
	res, _, err = f.arrays[1].Lookup([]byte("skip-me"))
	if err != nil {
		t.Fatal(err)
	}
	if res != Absent {
		t.Fatalf("Array[1].Lookup(skip-me) = %v, want Absent (pass-0 was Absent, so pass-1 must skip the write)", res)
	}
}

func TestBFieldInsertRejectsValueOutOfRange(t *testing.T) {
	f, err := Create("", "range", 4096, 4, 5, 2, 10, 0.25, 0.05, 1, true) // C(5,2)=10, theta=10
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := f.Insert([]byte("k"), 10, 0); !errors.Is(err, bferrors.ErrValueOutOfRange) {
		t.Fatalf("Insert(value==theta): got %v, want ErrValueOutOfRange", err)
	}
}

func TestBFieldFinalizeThenClosedSemantics(t *testing.T) {
	f, err := Create("", "fin", 4096, 4, 24, 6, 10, 0.25, 0.05, 1, true)
	if err != nil {
		t.Fatal(err)
	}
	if err := f.Insert([]byte("k"), 1, 0); err != nil {
		t.Fatal(err)
	}
	if err := f.Finalize(); err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if err := f.Insert([]byte("k2"), 2, 0); !errors.Is(err, bferrors.ErrFinalized) {
		t.Fatalf("Insert after Finalize: got %v, want ErrFinalized", err)
	}
	res, v, err := f.Get([]byte("k"))
	if err != nil || res != Found || v != 1 {
		t.Fatalf("Get after Finalize = (%v, %d, %v), want (Found, 1, nil)", res, v, err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}
	if _, _, err := f.Get([]byte("k")); !errors.Is(err, bferrors.ErrClosed) {
		t.Fatalf("Get after Close: got %v, want ErrClosed", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}

func TestBFieldInfoReportsLevels(t *testing.T) {
	f, err := Create("", "info", 1_000_000, 6, 5, 2, 10, 0.1, 0.025, 3, true)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	info := f.Info()
	if len(info.Levels) != 4 {
		t.Fatalf("len(Levels) = %d, want 4", len(info.Levels))
	}
	if info.Params.NSecondaries != 3 {
		t.Fatalf("NSecondaries = %d, want 3", info.Params.NSecondaries)
	}
	for i := 1; i < len(info.Levels); i++ {
		if info.Levels[i].Bits > info.Levels[i-1].Bits {
			t.Fatalf("level %d bits (%d) > level %d bits (%d), want non-increasing",
				i, info.Levels[i].Bits, i-1, info.Levels[i-1].Bits)
		}
	}
}

func TestParseArrayFilename(t *testing.T) {
	cases := []struct {
		name     string
		wantBase string
		wantIdx  int
		wantErr  bool
	}{
		{"myfield.0.bfd", "myfield", 0, false},
		{"myfield.3.bfd", "myfield", 3, false},
		{"a.b.2.bfd", "a.b", 2, false},
		{"noext", "", 0, true},
		{"noindex.bfd", "", 0, true},
	}
	for _, tc := range cases {
		base, idx, err := parseArrayFilename(tc.name)
		if tc.wantErr {
			if err == nil {
				t.Errorf("%s: want error, got nil", tc.name)
			}
			continue
		}
		if err != nil {
			t.Errorf("%s: unexpected error: %v", tc.name, err)
			continue
		}
		if base != tc.wantBase || idx != tc.wantIdx {
			t.Errorf("%s: got (%s, %d), want (%s, %d)", tc.name, base, idx, tc.wantBase, tc.wantIdx)
		}
	}
}

func bigEndianKey(i uint32) []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, i)
	return b
}
