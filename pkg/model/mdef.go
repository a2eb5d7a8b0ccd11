package model

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// ReadPhoneticModelDefText parses the text phonetic-model-definition format
// (§6 "Phonetic model definition... text or binary; provides base phones,
// triphones, state-sequence ids, and triphone-context mapping").
//
// Layout (comments beginning with "#" and blank lines ignored):
//
//	BASEPHONES n
//	phone0
//	phone1
//	...
//	SENSEQ n
//	sen0 sen1 sen2
//	...
//	CIMAP base senseq tmat
//	...
//	TRIPHONES n
//	base left right wordpos senseq tmat
//	...
//
// wordpos is one of "i" (internal), "b" (begin), "e" (end), "s" (single).
func ReadPhoneticModelDefText(r io.Reader) (*PhoneticModelDef, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)

	d := &PhoneticModelDef{Triphones: make(map[TriphoneKey]TriphoneEntry)}
	section := ""
	var ciSet, tmatSet map[int]bool

	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		switch fields[0] {
		case "BASEPHONES":
			section = "base"
			n, err := strconv.Atoi(fields[1])
			if err != nil {
				return nil, &ModelError{Msg: "mdef: bad BASEPHONES count"}
			}
			d.BasePhones = make([]string, 0, n)
			d.CISenSeq = make([]SenSeqID, n)
			d.CITMat = make([]TransitionMatrixID, n)
			ciSet = make(map[int]bool)
			tmatSet = make(map[int]bool)
			continue
		case "SENSEQ":
			section = "senseq"
			n, err := strconv.Atoi(fields[1])
			if err != nil {
				return nil, &ModelError{Msg: "mdef: bad SENSEQ count"}
			}
			d.SenSeq = make([][3]SenoneID, 0, n)
			continue
		case "CIMAP":
			section = "cimap"
			if len(fields) == 1 {
				continue
			}
			// "CIMAP base senseq tmat": the row follows the keyword.
			fields = fields[1:]
		case "TRIPHONES":
			section = "triphones"
			continue
		}

		switch section {
		case "base":
			d.BasePhones = append(d.BasePhones, fields[0])
		case "senseq":
			if len(fields) != 3 {
				return nil, &ModelError{Msg: "mdef: SENSEQ row needs exactly 3 senone ids"}
			}
			var row [3]SenoneID
			for i := 0; i < 3; i++ {
				v, err := strconv.Atoi(fields[i])
				if err != nil {
					return nil, &ModelError{Msg: "mdef: malformed senone id"}
				}
				row[i] = SenoneID(v)
			}
			d.SenSeq = append(d.SenSeq, row)
		case "cimap":
			if len(fields) != 3 {
				return nil, &ModelError{Msg: "mdef: CIMAP row needs base, senseq, tmat"}
			}
			base := d.BaseIndex(fields[0])
			if base < 0 {
				return nil, &ModelError{Msg: fmt.Sprintf("mdef: CIMAP references unknown base phone %q", fields[0])}
			}
			senseq, err1 := strconv.Atoi(fields[1])
			tmat, err2 := strconv.Atoi(fields[2])
			if err1 != nil || err2 != nil {
				return nil, &ModelError{Msg: "mdef: malformed CIMAP row"}
			}
			d.CISenSeq[base] = SenSeqID(senseq)
			d.CITMat[base] = TransitionMatrixID(tmat)
			ciSet[base] = true
		case "triphones":
			if len(fields) != 6 {
				return nil, &ModelError{Msg: "mdef: TRIPHONES row needs base,left,right,wordpos,senseq,tmat"}
			}
			wp, err := parseWordPosition(fields[3])
			if err != nil {
				return nil, err
			}
			senseq, err1 := strconv.Atoi(fields[4])
			tmat, err2 := strconv.Atoi(fields[5])
			if err1 != nil || err2 != nil {
				return nil, &ModelError{Msg: "mdef: malformed TRIPHONES row"}
			}
			key := TriphoneKey{Base: fields[0], Left: fields[1], Right: fields[2], WordPos: wp}
			d.Triphones[key] = TriphoneEntry{SenSeq: SenSeqID(senseq), TMat: TransitionMatrixID(tmat)}
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("model: scan phonetic model def: %w", err)
	}
	for i, p := range d.BasePhones {
		if !ciSet[i] {
			return nil, &ModelError{Msg: fmt.Sprintf("mdef: base phone %q has no CIMAP entry", p)}
		}
	}
	_ = tmatSet
	return d, nil
}

func parseWordPosition(s string) (WordPosition, error) {
	switch s {
	case "i":
		return WordPosInternal, nil
	case "b":
		return WordPosBegin, nil
	case "e":
		return WordPosEnd, nil
	case "s":
		return WordPosSingle, nil
	}
	return 0, &ModelError{Msg: fmt.Sprintf("mdef: unknown word position %q", s)}
}
