// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/psbtcheck/classify"
	"github.com/btcsuite/psbtcheck/pkg/btcunit"
)

// writeReport prints the ledger in the order a reviewer confirms a spend:
// what leaves, what comes back, and what it costs.
func writeReport(w io.Writer, ledger *classify.Ledger) error {
	var b strings.Builder

	policy := "none"
	ledger.Policy.WhenSome(func(p classify.Policy) {
		policy = p.String()
	})

	fmt.Fprintf(&b, "Policy:        %s\n", policy)
	fmt.Fprintf(&b, "Inputs:        %d (%v)\n", ledger.NumInputs,
		ledger.InputAmount)

	if ledger.IsCooperative() {
		fmt.Fprintf(&b, "External:      %d (%v)\n",
			ledger.NumExternalInputs, ledger.ExternalInputAmount)
	}

	fmt.Fprintf(&b, "Destinations:  %d\n", ledger.NumDestinations())
	for i, addr := range ledger.DestinationAddresses {
		fmt.Fprintf(&b, "  %s  %v\n", addr, ledger.DestinationAmounts[i])
	}

	fmt.Fprintf(&b, "Change:        %d\n", ledger.NumChangeOutputs())
	for _, entry := range ledger.ChangeData {
		fmt.Fprintf(&b, "  #%d %s  %v\n", entry.OutputIndex,
			entry.Address, entry.Amount)

		for j, path := range entry.DerivationPaths {
			fmt.Fprintf(&b, "     [%s] %s\n", entry.Fingerprints[j],
				path)
		}
	}

	if ledger.NumDestinations() == 0 && ledger.NumInputs > 0 {
		fmt.Fprintf(&b, "Note:          all outputs return to this "+
			"wallet\n")
	}

	fmt.Fprintf(&b, "Spend:         %v\n", ledger.SpendAmount)
	fmt.Fprintf(&b, "Change total:  %v\n", ledger.ChangeAmount)
	fmt.Fprintf(&b, "Fee:           %v\n", ledger.FeeAmount)

	ledger.EstimatedVSize.WhenSome(func(v btcunit.VByte) {
		fmt.Fprintf(&b, "Size:          ~%v\n", v)
	})
	ledger.FeeRate.WhenSome(func(r btcunit.SatPerVByte) {
		fmt.Fprintf(&b, "Fee rate:      ~%v\n", r)
	})

	if len(ledger.DustOutputs) > 0 {
		fmt.Fprintf(&b, "Dust outputs:  %v\n", ledger.DustOutputs)
	}

	_, err := io.WriteString(w, b.String())

	return err
}

// writeFeeWarning prints a warning when the estimated fee rate is above
// maxRate sat/vb. Ledgers without an estimate are never flagged.
func writeFeeWarning(w io.Writer, ledger *classify.Ledger,
	maxRate btcutil.Amount) error {

	limit := btcunit.NewSatPerVByte(maxRate)

	var err error
	ledger.FeeRate.WhenSome(func(rate btcunit.SatPerVByte) {
		if !limit.LessThan(rate) {
			return
		}

		_, err = fmt.Fprintf(w, "Warning:       fee rate %v is above "+
			"%v\n", rate, limit)
	})

	return err
}
