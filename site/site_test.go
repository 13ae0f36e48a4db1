package site

import (
	"fmt"
	"slices"
	"testing"
)

func TestSpinHalf(t *testing.T) {
	t.Parallel()
	tests := []struct {
		conserve string
		ops      []string
	}{
		{conserve: "", ops: []string{"Id", "Sigmax", "Sigmaz", "Sm", "Sp", "Sx", "Sz"}},
		{conserve: "Sz", ops: []string{"Id", "Sigmaz", "Sm", "Sp", "Sz"}},
	}
	for _, test := range tests {
		t.Run(fmt.Sprintf("%q", test.conserve), func(t *testing.T) {
			t.Parallel()
			s, err := SpinHalf(test.conserve)
			if err != nil {
				t.Fatalf("%+v", err)
			}
			if s.Dim() != 2 {
				t.Fatalf("%d", s.Dim())
			}
			if !slices.Equal(s.OpNames(), test.ops) {
				t.Fatalf("%#v, expected %#v", s.OpNames(), test.ops)
			}
			for _, name := range s.OpNames() {
				op, err := s.Op(name)
				if err != nil {
					t.Fatalf("%+v", err)
				}
				if !slices.Equal(op.Labels(), []string{"p", "p*"}) {
					t.Fatalf("%s %#v", name, op.Labels())
				}
			}

			sz, err := s.Op("Sz")
			if err != nil {
				t.Fatalf("%+v", err)
			}
			if sz.At(0, 0) != 0.5 || sz.At(1, 1) != -0.5 {
				t.Fatalf("%v", sz)
			}
			if err := sz.CheckCharges(0); err != nil {
				t.Fatalf("%+v", err)
			}
		})
	}
}

func TestOpCopy(t *testing.T) {
	t.Parallel()
	s, err := SpinHalf("")
	if err != nil {
		t.Fatalf("%+v", err)
	}
	op, err := s.Op("Sz")
	if err != nil {
		t.Fatalf("%+v", err)
	}
	op.Set(100, 0, 0)
	again, err := s.Op("Sz")
	if err != nil {
		t.Fatalf("%+v", err)
	}
	if again.At(0, 0) != 0.5 {
		t.Fatalf("%v", again)
	}

	if _, err := s.Op("Sy"); err == nil {
		t.Fatalf("expected error")
	}
	if _, err := SpinHalf("Sx"); err == nil {
		t.Fatalf("expected error")
	}
}

func TestOpCharges(t *testing.T) {
	t.Parallel()
	s, err := SpinHalf("Sz")
	if err != nil {
		t.Fatalf("%+v", err)
	}
	tests := []struct {
		name   string
		qtotal []int
	}{
		{name: "Id", qtotal: []int{0}},
		{name: "Sz", qtotal: []int{0}},
		{name: "Sp", qtotal: []int{2}},
		{name: "Sm", qtotal: []int{-2}},
	}
	for _, test := range tests {
		op, err := s.Op(test.name)
		if err != nil {
			t.Fatalf("%+v", err)
		}
		if !slices.Equal(op.QTotal(), test.qtotal) {
			t.Fatalf("%s %#v, expected %#v", test.name, op.QTotal(), test.qtotal)
		}
		if err := op.CheckCharges(0); err != nil {
			t.Fatalf("%s %+v", test.name, err)
		}
	}

	if _, err := New(s.Leg(), map[string][][]float64{"Sx": pauliX}); err == nil {
		t.Fatalf("expected error")
	}
	zero, err := New(s.Leg(), map[string][][]float64{"Zero": {{0, 0}, {0, 0}}})
	if err != nil {
		t.Fatalf("%+v", err)
	}
	if op, _ := zero.Op("Zero"); !slices.Equal(op.QTotal(), []int{0}) {
		t.Fatalf("%#v", op.QTotal())
	}
}
