package mps_test

import (
	"fmt"
	"log"

	"github.com/fumin/qmps/mps"
	"github.com/fumin/qmps/site"
)

func Example() {
	// A Neel state on four spins, conserving the total Sz.
	sites, err := site.SpinHalfChain(4, "Sz")
	if err != nil {
		log.Fatalf("%+v", err)
	}
	states := []mps.State{mps.BasisIndex(0), mps.BasisIndex(1), mps.BasisIndex(0), mps.BasisIndex(1)}
	psi, err := mps.FromProductState(sites, states, mps.Finite, mps.B, nil)
	if err != nil {
		log.Fatalf("%+v", err)
	}

	sz, err := psi.ExpectationValue([]mps.Operator{mps.OpName("Sz")}, nil)
	if err != nil {
		log.Fatalf("%+v", err)
	}
	fmt.Printf("<Sz> %v\n", sz)
	fmt.Printf("chi %v\n", psi.Chi())

	// Output:
	// <Sz> [0.5 -0.5 0.5 -0.5]
	// chi [1 1 1]
}
