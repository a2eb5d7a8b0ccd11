package model

import (
	"strings"
	"testing"
)

const sampleMdef = `# sample phonetic model definition
BASEPHONES 2
AA
SIL
SENSEQ 2
10 11 12
20 21 22
CIMAP AA 0 0
CIMAP SIL 1 0
TRIPHONES 1
AA SIL SIL s 0 0
`

func TestReadPhoneticModelDefText_ParsesAllSections(t *testing.T) {
	d, err := ReadPhoneticModelDefText(strings.NewReader(sampleMdef))
	if err != nil {
		t.Fatalf("ReadPhoneticModelDefText: %v", err)
	}
	if len(d.BasePhones) != 2 || d.BasePhones[0] != "AA" || d.BasePhones[1] != "SIL" {
		t.Fatalf("BasePhones = %v", d.BasePhones)
	}
	if len(d.SenSeq) != 2 || d.SenSeq[0] != [3]SenoneID{10, 11, 12} {
		t.Fatalf("SenSeq[0] = %v", d.SenSeq[0])
	}
	senones, tmat, ok := d.Resolve(TriphoneKey{Base: "AA", Left: "SIL", Right: "SIL", WordPos: WordPosSingle})
	if !ok || senones != [3]SenoneID{10, 11, 12} || tmat != 0 {
		t.Fatalf("Resolve triphone: senones=%v tmat=%v ok=%v", senones, tmat, ok)
	}
	// Unmatched context falls back to the CI entry for the base phone.
	senones, _, ok = d.Resolve(TriphoneKey{Base: "SIL", Left: "AA", Right: "AA", WordPos: WordPosInternal})
	if !ok || senones != [3]SenoneID{20, 21, 22} {
		t.Fatalf("Resolve fallback: senones=%v ok=%v", senones, ok)
	}
}

func TestReadPhoneticModelDefText_RejectsMissingCIMap(t *testing.T) {
	bad := `BASEPHONES 1
AA
SENSEQ 1
1 2 3
`
	if _, err := ReadPhoneticModelDefText(strings.NewReader(bad)); err == nil {
		t.Fatal("expected ModelError for base phone missing a CIMAP entry")
	}
}
